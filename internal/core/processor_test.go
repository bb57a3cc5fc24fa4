package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockExtractor struct {
	mock.Mock
}

func (m *mockExtractor) Extract(ctx context.Context, req ExtractRequest) (*ExtractedFields, error) {
	args := m.Called(ctx, req)
	fields, _ := args.Get(0).(*ExtractedFields)
	return fields, args.Error(1)
}

type mockRegistry struct {
	mock.Mock
}

func (m *mockRegistry) Lookup(ctx context.Context, taxID string) (*RegistryRecord, error) {
	args := m.Called(ctx, taxID)
	record, _ := args.Get(0).(*RegistryRecord)
	return record, args.Error(1)
}

var fixedNow = time.Date(2025, 6, 18, 15, 0, 0, 0, time.UTC)

func newTestProcessor(ext Extractor, reg Registry) *Processor {
	return NewProcessor(ext, reg, ProcessorConfig{
		ExtractTimeout:  50 * time.Millisecond,
		RegistryTimeout: 50 * time.Millisecond,
		Clock:           func() time.Time { return fixedNow },
	})
}

func TestProcess_AllFlagsPass(t *testing.T) {
	ext := new(mockExtractor)
	reg := new(mockRegistry)
	ref := sampleReference()

	ext.On("Extract", mock.Anything, ExtractRequest{
		Locator:  "https://example.com/12345678000190.pdf",
		Contacts: []string{"Carlos Lima", "Ana Paula"},
	}).Return(validFields(fixedNow), nil).Once()
	reg.On("Lookup", mock.Anything, "12345678000190").Return(activeRecord(), nil).Once()

	result := newTestProcessor(ext, reg).Process(context.Background(), "https://example.com/12345678000190.pdf", ref)

	assert.Equal(t, StatusValid, result.Status)
	assert.True(t, result.ValidationFlags.All())
	assert.Empty(t, result.ErrorDetail)
	assert.Empty(t, result.RegistryError)
	require.NotNil(t, result.RegistryRecord)
	assert.Equal(t, "ATIVA", result.RegistryRecord.RegistrationStatus)
	ext.AssertExpectations(t)
	reg.AssertExpectations(t)
}

func TestProcess_ExtractionTimeout(t *testing.T) {
	ext := new(mockExtractor)
	reg := new(mockRegistry)

	ext.On("Extract", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			<-args.Get(0).(context.Context).Done()
		}).
		Return(nil, context.DeadlineExceeded).Once()

	result := newTestProcessor(ext, reg).Process(context.Background(), "https://slow.example.com/doc.pdf", sampleReference())

	assert.Equal(t, StatusError, result.Status)
	assert.Contains(t, result.ErrorDetail, "timeout")
	assert.Nil(t, result.ExtractedFields)
	assert.Equal(t, ValidationFlags{}, result.ValidationFlags)
	reg.AssertNotCalled(t, "Lookup", mock.Anything, mock.Anything)
}

func TestProcess_ExtractionErrorKeepsDetail(t *testing.T) {
	ext := new(mockExtractor)
	ext.On("Extract", mock.Anything, mock.Anything).
		Return(nil, &ExtractionError{Kind: KindNotFound, Detail: "HTTP 404"}).Once()

	result := newTestProcessor(ext, new(mockRegistry)).Process(context.Background(), "https://example.com/missing.pdf", sampleReference())

	assert.Equal(t, StatusError, result.Status)
	assert.Equal(t, "HTTP 404", result.ErrorDetail, "adapter detail is stored as-is")
}

func TestProcess_UntypedExtractionError(t *testing.T) {
	ext := new(mockExtractor)
	ext.On("Extract", mock.Anything, mock.Anything).
		Return(nil, errors.New("dial tcp: connection refused")).Once()

	result := newTestProcessor(ext, new(mockRegistry)).Process(context.Background(), "https://down.example.com/a.pdf", sampleReference())

	assert.Equal(t, StatusError, result.Status)
	assert.Equal(t, "dial tcp: connection refused", result.ErrorDetail)
}

func TestProcess_RegistryFailureIsSoft(t *testing.T) {
	ext := new(mockExtractor)
	reg := new(mockRegistry)

	ext.On("Extract", mock.Anything, mock.Anything).Return(validFields(fixedNow), nil).Once()
	reg.On("Lookup", mock.Anything, "12345678000190").Return(nil, errors.New("connection refused")).Once()

	result := newTestProcessor(ext, reg).Process(context.Background(), "https://example.com/a.pdf", sampleReference())

	assert.Equal(t, StatusInvalid, result.Status, "registry failure must not escalate to error")
	assert.Contains(t, result.RegistryError, "connection refused")
	assert.Empty(t, result.ErrorDetail)
	assert.Nil(t, result.RegistryRecord)
	assert.False(t, result.ValidationFlags.LegalNameValid)
	assert.False(t, result.ValidationFlags.TaxIDActiveInRegistry)
	assert.True(t, result.ValidationFlags.TaxIDInReference)
	assert.True(t, result.ValidationFlags.DocumentDateValid)
}

func TestProcess_NoTaxIDSkipsRegistry(t *testing.T) {
	ext := new(mockExtractor)
	reg := new(mockRegistry)

	fields := validFields(fixedNow)
	fields.TaxID = ""
	ext.On("Extract", mock.Anything, mock.Anything).Return(fields, nil).Once()

	result := newTestProcessor(ext, reg).Process(context.Background(), "https://example.com/a.html", sampleReference())

	assert.Equal(t, StatusInvalid, result.Status)
	assert.Empty(t, result.RegistryError)
	assert.False(t, result.ValidationFlags.TaxIDInReference)
	reg.AssertNotCalled(t, "Lookup", mock.Anything, mock.Anything)
}

func TestProcess_NilRegistryRecord(t *testing.T) {
	ext := new(mockExtractor)
	reg := new(mockRegistry)

	ext.On("Extract", mock.Anything, mock.Anything).Return(validFields(fixedNow), nil).Once()
	reg.On("Lookup", mock.Anything, mock.Anything).Return(nil, nil).Once()

	result := newTestProcessor(ext, reg).Process(context.Background(), "https://example.com/a.pdf", sampleReference())

	assert.Equal(t, StatusInvalid, result.Status)
	assert.Contains(t, result.RegistryError, string(KindNotFound))
}

func TestProcess_EmptyExtraction(t *testing.T) {
	ext := new(mockExtractor)
	reg := new(mockRegistry)
	ext.On("Extract", mock.Anything, mock.Anything).Return(&ExtractedFields{}, nil).Once()

	result := newTestProcessor(ext, reg).Process(context.Background(), "https://example.com/blank.pdf", sampleReference())

	assert.Equal(t, StatusInvalid, result.Status)
	assert.Equal(t, ValidationFlags{}, result.ValidationFlags)
	reg.AssertNotCalled(t, "Lookup", mock.Anything, mock.Anything)
}
