package web

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/docvalidate/internal/config"
	"github.com/JonMunkholm/docvalidate/internal/core"
	"github.com/JonMunkholm/docvalidate/internal/session"
	"github.com/JonMunkholm/docvalidate/internal/sheet"
)

type stubLoader struct{}

func (stubLoader) Load(ctx context.Context, source string) (*core.ReferenceDataset, error) {
	switch {
	case strings.Contains(source, "missing"):
		return nil, fmt.Errorf("%w: status 404", sheet.ErrSheetUnavailable)
	case strings.Contains(source, "broken"):
		return nil, fmt.Errorf("%w: bare quote", sheet.ErrInvalidSheet)
	}
	return core.NewReferenceDataset(core.ReferenceRecords{
		LegalNames:      []string{"ACME Telecom Ltda"},
		TaxIDs:          []string{"12.345.678/0001-90", "98765432000110"},
		Representatives: []string{"Maria Silva"},
		NetworkContacts: []string{"Carlos Lima"},
	}), nil
}

// stubProcessor marks documents containing "bad" invalid and blocks on
// documents containing "slow" until the context ends.
type stubProcessor struct{}

func (stubProcessor) Process(ctx context.Context, locator string, ref *core.ReferenceDataset) core.DocumentResult {
	if strings.Contains(locator, "slow") {
		<-ctx.Done()
		return core.DocumentResult{Locator: locator, Status: core.StatusError, ErrorDetail: "timeout"}
	}
	if strings.Contains(locator, "bad") {
		return core.DocumentResult{Locator: locator, Status: core.StatusInvalid}
	}
	return core.DocumentResult{
		Locator:         locator,
		Status:          core.StatusValid,
		ExtractedFields: &core.ExtractedFields{TaxID: "12345678000190", RepresentativeName: "Maria Silva"},
		ValidationFlags: core.ValidationFlags{
			TaxIDInReference: true, LegalNameValid: true, TaxIDActiveInRegistry: true,
			RepresentativeValid: true, SpecificNameValid: true, DocumentDateValid: true,
		},
	}
}

func testConfig() *config.Config {
	cfg, err := config.LoadFrom(func(key string) string {
		switch key {
		case "RATE_LIMIT_ENABLED":
			return "false"
		case "RUN_MAX_WAIT_TIME":
			return "100ms"
		}
		return ""
	})
	if err != nil {
		panic(err)
	}
	return cfg
}

func newTestServer(t *testing.T, cfg *config.Config) (*Server, *session.Manager) {
	t.Helper()
	if cfg == nil {
		cfg = testConfig()
	}
	orch := core.NewOrchestrator(stubProcessor{}, core.OrchestratorConfig{MaxBatchSize: cfg.Validation.MaxBatchSize})
	mgr := session.NewManager(stubLoader{}, orch, session.Config{
		ReferenceTTL:      cfg.Session.ReferenceTTL,
		ResultRetention:   cfg.Session.ResultRetention,
		RunTimeout:        cfg.Validation.RunTimeout,
		MaxConcurrentRuns: cfg.Validation.MaxConcurrentRuns,
		MaxWaitTime:       cfg.Validation.MaxWaitTime,
	}, nil)
	t.Cleanup(mgr.CancelAll)

	srv := NewServer(mgr, cfg)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv, mgr
}

func do(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func loadReference(t *testing.T, srv *Server) string {
	t.Helper()
	rec := do(t, srv, http.MethodPost, "/api/references", `{"csv_url":"https://sheets.example.com/ref.csv"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[session.ReferenceInfo](t, rec).ID
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	rec := do(t, srv, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, rec.Header().Get("Content-Security-Policy"))
}

func TestLoadReference(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	rec := do(t, srv, http.MethodPost, "/api/references", `{"csv_url":"https://sheets.example.com/ref.csv"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body["reference_id"])
	summary, ok := body["summary"].(map[string]any)
	require.True(t, ok, "summary missing: %s", rec.Body.String())
	assert.Equal(t, float64(2), summary["taxIds"])

	list := do(t, srv, http.MethodGet, "/api/references", "")
	assert.Len(t, decode[[]session.ReferenceInfo](t, list), 1)
}

func TestLoadReference_Errors(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantCode   string
	}{
		{"malformed json", `{"csv_url":`, http.StatusBadRequest, "REQ001"},
		{"unknown field", `{"url":"https://x"}`, http.StatusBadRequest, "REQ001"},
		{"empty url", `{"csv_url":"  "}`, http.StatusBadRequest, "REQ001"},
		{"file path rejected", `{"csv_url":"/etc/passwd"}`, http.StatusBadRequest, "REQ001"},
		{"sheet unavailable", `{"csv_url":"https://sheets.example.com/missing.csv"}`, http.StatusBadGateway, "REF002"},
		{"invalid sheet", `{"csv_url":"https://sheets.example.com/broken.csv"}`, http.StatusUnprocessableEntity, "REF003"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, srv, http.MethodPost, "/api/references", tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantCode, decode[ErrorResponse](t, rec).Code)
		})
	}
}

func TestStartBatch_Wait(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	refID := loadReference(t, srv)

	body := fmt.Sprintf(`{"reference_id":%q,"document_urls":["https://docs.example.com/a.pdf","https://docs.example.com/bad.pdf"]}`, refID)
	rec := do(t, srv, http.MethodPost, "/api/batches?wait=true", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	report := decode[core.BatchReport](t, rec)
	assert.Equal(t, 2, report.TotalDocuments)
	assert.Equal(t, 1, report.ValidCount)
	assert.Equal(t, 1, report.InvalidCount)
	assert.Equal(t, "https://docs.example.com/a.pdf", report.Results[0].Locator)
	assert.Equal(t, "https://docs.example.com/bad.pdf", report.Results[1].Locator)
}

func TestStartBatch_WaitClientGoneCancelsRun(t *testing.T) {
	srv, mgr := newTestServer(t, nil)
	refID := loadReference(t, srv)

	ctx, cancel := context.WithCancel(context.Background())
	body := fmt.Sprintf(`{"reference_id":%q,"document_urls":["https://docs.example.com/slow.pdf"]}`, refID)
	req := httptest.NewRequest(http.MethodPost, "/api/batches?wait=true", strings.NewReader(body)).WithContext(ctx)
	req.Header.Set("Content-Type", "application/json")

	time.AfterFunc(50*time.Millisecond, cancel)
	srv.Router().ServeHTTP(httptest.NewRecorder(), req)

	runs := mgr.Runs()
	require.Len(t, runs, 1)
	runID := runs[0].RunID

	require.Eventually(t, func() bool {
		status, err := mgr.Status(runID)
		return err == nil && status.Phase == core.PhaseCancelled
	}, 2*time.Second, 10*time.Millisecond)
}

func TestStartBatch_AsyncThenReport(t *testing.T) {
	srv, mgr := newTestServer(t, nil)
	refID := loadReference(t, srv)

	body := fmt.Sprintf(`{"reference_id":%q,"document_urls":["https://docs.example.com/a.pdf"]}`, refID)
	rec := do(t, srv, http.MethodPost, "/api/batches", body)
	require.Equal(t, http.StatusAccepted, rec.Code)

	accepted := decode[startBatchResponse](t, rec)
	require.NotEmpty(t, accepted.RunID)
	assert.Equal(t, accepted.StatusURL, rec.Header().Get("Location"))

	_, err := mgr.Report(context.Background(), accepted.RunID)
	require.NoError(t, err)

	status := do(t, srv, http.MethodGet, accepted.StatusURL, "")
	assert.Equal(t, core.PhaseCompleted, decode[session.RunStatus](t, status).Phase)

	jsonRec := do(t, srv, http.MethodGet, accepted.ReportURL, "")
	require.Equal(t, http.StatusOK, jsonRec.Code)
	report, err := core.UnmarshalReport(jsonRec.Body.Bytes())
	require.NoError(t, err)
	assert.Equal(t, 1, report.ValidCount)

	csvRec := do(t, srv, http.MethodGet, accepted.ReportURL+"?format=csv", "")
	require.Equal(t, http.StatusOK, csvRec.Code)
	assert.Contains(t, csvRec.Header().Get("Content-Disposition"), ".csv")
	lines := strings.Split(strings.TrimSpace(csvRec.Body.String()), "\n")
	assert.Len(t, lines, 2)

	bad := do(t, srv, http.MethodGet, accepted.ReportURL+"?format=xml", "")
	assert.Equal(t, http.StatusBadRequest, bad.Code)

	page := do(t, srv, http.MethodGet, "/runs/"+accepted.RunID, "")
	assert.Equal(t, http.StatusOK, page.Code)
	assert.Contains(t, page.Body.String(), "https://docs.example.com/a.pdf")

	home := do(t, srv, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, home.Code)
	assert.Contains(t, home.Body.String(), refID)
}

func TestStartBatch_InvalidSize(t *testing.T) {
	srv, mgr := newTestServer(t, nil)
	refID := loadReference(t, srv)

	tests := []struct {
		name     string
		urls     string
		wantCode string
	}{
		{"empty", `[]`, "BATCH001"},
		{"too many", `["https://d/1","https://d/2","https://d/3","https://d/4"]`, "BATCH002"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := fmt.Sprintf(`{"reference_id":%q,"document_urls":%s}`, refID, tt.urls)
			rec := do(t, srv, http.MethodPost, "/api/batches", body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.wantCode, decode[ErrorResponse](t, rec).Code)
		})
	}
	assert.Empty(t, mgr.Runs())
}

func TestStartBatch_UnknownReference(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	rec := do(t, srv, http.MethodPost, "/api/batches", `{"reference_id":"nope","document_urls":["https://d/1"]}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "REF001", decode[ErrorResponse](t, rec).Code)
}

func TestCancelRun(t *testing.T) {
	srv, mgr := newTestServer(t, nil)
	refID := loadReference(t, srv)

	body := fmt.Sprintf(`{"reference_id":%q,"document_urls":["https://docs.example.com/slow.pdf"]}`, refID)
	rec := do(t, srv, http.MethodPost, "/api/batches", body)
	require.Equal(t, http.StatusAccepted, rec.Code)
	runID := decode[startBatchResponse](t, rec).RunID

	notReady := do(t, srv, http.MethodGet, "/api/batches/"+runID+"/report", "")
	assert.Equal(t, http.StatusConflict, notReady.Code)
	assert.Equal(t, "RUN003", decode[ErrorResponse](t, notReady).Code)

	cancel := do(t, srv, http.MethodPost, "/api/batches/"+runID+"/cancel", "")
	assert.Equal(t, http.StatusAccepted, cancel.Code)

	_, err := mgr.Report(context.Background(), runID)
	require.True(t, errors.Is(err, core.ErrCancelledBatch), "err = %v", err)

	report := do(t, srv, http.MethodGet, "/api/batches/"+runID+"/report", "")
	assert.Equal(t, http.StatusConflict, report.Code)
	assert.Equal(t, "BATCH003", decode[ErrorResponse](t, report).Code)

	missing := do(t, srv, http.MethodPost, "/api/batches/unknown/cancel", "")
	assert.Equal(t, http.StatusNotFound, missing.Code)
	assert.Equal(t, "RUN001", decode[ErrorResponse](t, missing).Code)
}

func TestRunEvents_SSE(t *testing.T) {
	srv, mgr := newTestServer(t, nil)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	refID := loadReference(t, srv)
	runID, err := mgr.StartRun(context.Background(), refID, []string{"https://docs.example.com/a.pdf", "https://docs.example.com/b.pdf"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/batches/"+runID+"/events", nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	var names []string
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		if name, ok := strings.CutPrefix(scanner.Text(), "event: "); ok {
			names = append(names, name)
		}
	}
	assert.Equal(t, []string{"started", "document", "document", "finished"}, names)
}

func TestRunEvents_ResumeAfterLastEventID(t *testing.T) {
	srv, mgr := newTestServer(t, nil)
	refID := loadReference(t, srv)

	runID, err := mgr.StartRun(context.Background(), refID, []string{"https://docs.example.com/a.pdf"})
	require.NoError(t, err)
	_, err = mgr.Report(context.Background(), runID)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/batches/"+runID+"/events", nil)
	req.Header.Set("Last-Event-ID", "1")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	body := rec.Body.String()
	assert.NotContains(t, body, "event: started")
	assert.NotContains(t, body, "event: document")
	assert.Contains(t, body, "id: 2\nevent: finished")
}

func TestAPIKeyRequired(t *testing.T) {
	cfg := testConfig()
	cfg.Security.RequireAPIKey = true
	cfg.Security.APIKeys = []string{"secret"}
	srv, _ := newTestServer(t, cfg)

	rec := do(t, srv, http.MethodGet, "/api/references", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/references", nil)
	req.Header.Set("X-API-Key", "secret")
	ok := httptest.NewRecorder()
	srv.Router().ServeHTTP(ok, req)
	assert.Equal(t, http.StatusOK, ok.Code)

	// Health stays open.
	assert.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, "/healthz", "").Code)
}

func TestRunPage_NotFoundRendersHTML(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	rec := do(t, srv, http.MethodGet, "/runs/unknown", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "RUN001")
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{core.ErrEmptyBatch, http.StatusBadRequest},
		{fmt.Errorf("wrap: %w", session.ErrRunNotFound), http.StatusNotFound},
		{session.ErrRunNotFinished, http.StatusConflict},
		{session.ErrTooManyRuns, http.StatusServiceUnavailable},
		{sheet.ErrSheetTooLarge, http.StatusRequestEntityTooLarge},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
