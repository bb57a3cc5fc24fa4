package core

import (
	"context"
	"time"
)

// Extractor is the port for document content extraction.
// Implementations fetch the document behind a locator and pull out the
// fields the rule engine needs. The context carries the per-call timeout.
type Extractor interface {
	Extract(ctx context.Context, req ExtractRequest) (*ExtractedFields, error)
}

// Registry is the port for the government company registry.
// Lookup returns the registry's view of a company by tax identifier.
type Registry interface {
	Lookup(ctx context.Context, taxID string) (*RegistryRecord, error)
}

// ExtractRequest describes one extraction call.
type ExtractRequest struct {
	Locator string // Document URL

	// Contacts are the reference dataset's network-contact names in display
	// form. Extractors report the first one found in the document text.
	Contacts []string
}

// ExtractedFields holds the fields pulled from one document.
// An empty string or nil date means the field was not found.
type ExtractedFields struct {
	TaxID              string     `json:"taxId,omitempty"`
	RepresentativeName string     `json:"representativeName,omitempty"`
	DocumentDate       *time.Time `json:"documentDate,omitempty"`
	SpecificNameFound  string     `json:"specificNameFound,omitempty"`
	DocumentType       string     `json:"documentType,omitempty"` // "pdf" or "html"
}

// RegistryRecord is the registry's view of a company.
type RegistryRecord struct {
	LegalName          string `json:"legalName,omitempty"`
	RegistrationStatus string `json:"registrationStatus,omitempty"`
	Address            string `json:"address,omitempty"`
	MainActivity       string `json:"mainActivity,omitempty"`
}

// ValidationFlags holds the outcome of the six validation predicates.
type ValidationFlags struct {
	TaxIDInReference      bool `json:"taxIdInReference"`
	LegalNameValid        bool `json:"legalNameValid"`
	TaxIDActiveInRegistry bool `json:"taxIdActiveInRegistry"`
	RepresentativeValid   bool `json:"representativeValid"`
	SpecificNameValid     bool `json:"specificNameValid"`
	DocumentDateValid     bool `json:"documentDateValid"`
}

// All reports whether every predicate passed.
func (f ValidationFlags) All() bool {
	return f.TaxIDInReference &&
		f.LegalNameValid &&
		f.TaxIDActiveInRegistry &&
		f.RepresentativeValid &&
		f.SpecificNameValid &&
		f.DocumentDateValid
}

// Status is the terminal classification of a document.
type Status string

const (
	StatusValid   Status = "valid"
	StatusInvalid Status = "invalid"
	StatusError   Status = "error"
)

// DocumentResult is the verdict for one submitted document.
type DocumentResult struct {
	Locator         string           `json:"locator"`
	Status          Status           `json:"status"`
	ExtractedFields *ExtractedFields `json:"extractedFields,omitempty"`
	RegistryRecord  *RegistryRecord  `json:"registryRecord,omitempty"`
	ValidationFlags ValidationFlags  `json:"validationFlags"`
	ErrorDetail     string           `json:"errorDetail,omitempty"` // Only set when Status is StatusError

	// RegistryError records a soft registry failure. It never changes Status.
	RegistryError string `json:"registryError,omitempty"`
}

// BatchReport is the aggregated outcome of one run.
type BatchReport struct {
	Timestamp      time.Time        `json:"timestamp"`
	TotalDocuments int              `json:"totalDocuments"`
	ValidCount     int              `json:"validCount"`
	InvalidCount   int              `json:"invalidCount"`
	ErrorCount     int              `json:"errorCount"`
	Results        []DocumentResult `json:"results"`
}

// Phase indicates where a batch session is in its lifecycle.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseRunning   Phase = "running"
	PhaseCompleted Phase = "completed"
	PhaseCancelled Phase = "cancelled"
)

// Terminal reports whether no further transitions are possible.
func (p Phase) Terminal() bool {
	return p == PhaseCompleted || p == PhaseCancelled
}

// Clock returns the current time. Tests substitute a fixed clock.
type Clock func() time.Time
