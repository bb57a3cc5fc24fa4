package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/docvalidate/internal/core"
	"github.com/JonMunkholm/docvalidate/internal/logging"
	"github.com/JonMunkholm/docvalidate/internal/web/templates"
)

// maxRequestBody caps JSON request bodies.
const maxRequestBody = 64 * 1024

type loadReferenceRequest struct {
	CSVURL string `json:"csv_url"`
}

type startBatchRequest struct {
	ReferenceID  string   `json:"reference_id"`
	DocumentURLs []string `json:"document_urls"`
}

type startBatchResponse struct {
	RunID     string `json:"run_id"`
	StatusURL string `json:"status_url"`
	EventsURL string `json:"events_url"`
	ReportURL string `json:"report_url"`
}

// decodeJSON reads a size-limited JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: invalid JSON body: %v", errBadRequest, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: trailing data after JSON body", errBadRequest)
	}
	return nil
}

// handleHome renders the landing page.
func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_ = templates.Home(s.sessions.References(), s.sessions.Runs(), s.sessions.LimiterStatus()).Render(r.Context(), w)
}

// handleRunPage renders a run's status and report.
func (s *Server) handleRunPage(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")

	status, err := s.sessions.Status(runID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	// A running or cancelled run has no report; the page shows the status.
	report, _ := s.sessions.Result(runID)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_ = templates.RunPage(status, report).Render(r.Context(), w)
}

// handleListReferences returns every loaded reference.
func (s *Server) handleListReferences(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.sessions.References())
}

// handleLoadReference loads a spreadsheet and returns its id and summary.
func (s *Server) handleLoadReference(w http.ResponseWriter, r *http.Request) {
	var req loadReferenceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	req.CSVURL = strings.TrimSpace(req.CSVURL)
	if req.CSVURL == "" {
		s.respondError(w, r, fmt.Errorf("%w: csv_url is required", errBadRequest))
		return
	}
	if !isHTTPURL(req.CSVURL) {
		s.respondError(w, r, fmt.Errorf("%w: csv_url must be an http(s) URL", errBadRequest))
		return
	}

	info, err := s.sessions.LoadReference(r.Context(), req.CSVURL)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	logging.FromContext(r.Context()).Info("reference loaded",
		"reference_id", info.ID,
		"tax_ids", info.Summary.TaxIDs,
	)
	writeJSON(w, http.StatusCreated, info)
}

// handleStartBatch starts a validation run. With ?wait=true it blocks until
// the report is ready, falling back to 202 when the run outlasts the wait.
// A waiting client that disconnects cancels the run.
func (s *Server) handleStartBatch(w http.ResponseWriter, r *http.Request) {
	var req startBatchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	if strings.TrimSpace(req.ReferenceID) == "" {
		s.respondError(w, r, fmt.Errorf("%w: reference_id is required", errBadRequest))
		return
	}
	for i, u := range req.DocumentURLs {
		req.DocumentURLs[i] = strings.TrimSpace(u)
		if !isHTTPURL(req.DocumentURLs[i]) {
			s.respondError(w, r, fmt.Errorf("%w: document_urls[%d] must be an http(s) URL", errBadRequest, i))
			return
		}
	}

	runID, err := s.sessions.StartRun(r.Context(), req.ReferenceID, req.DocumentURLs)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	logger := logging.WithFields(r.Context(), "run_id", runID, "reference_id", req.ReferenceID)
	logger.Info("batch accepted", "documents", len(req.DocumentURLs))

	accepted := startBatchResponse{
		RunID:     runID,
		StatusURL: "/api/batches/" + runID,
		EventsURL: "/api/batches/" + runID + "/events",
		ReportURL: "/api/batches/" + runID + "/report",
	}

	if wait, _ := strconv.ParseBool(r.URL.Query().Get("wait")); !wait {
		w.Header().Set("Location", accepted.StatusURL)
		writeJSON(w, http.StatusAccepted, accepted)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.Validation.RunTimeout)
	defer cancel()

	report, err := s.sessions.Report(ctx, runID)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, report)
	case r.Context().Err() != nil:
		// Nobody is left to read the report.
		logger.Info("client went away while waiting for report, cancelling run")
		if err := s.sessions.CancelRun(runID); err != nil {
			logger.Debug("cancel after disconnect", "error", err)
		}
	case ctx.Err() != nil:
		// The run is still going; hand the client the polling URLs.
		w.Header().Set("Location", accepted.StatusURL)
		writeJSON(w, http.StatusAccepted, accepted)
	default:
		s.respondError(w, r, err)
	}
}

// handleListRuns returns every tracked run.
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.sessions.Runs())
}

// handleRunStatus returns one run's status.
func (s *Server) handleRunStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.sessions.Status(chi.URLParam(r, "runID"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// handleReport exports a finished run as JSON (default) or CSV.
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")

	report, err := s.sessions.Result(runID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	filename := "validation_" + report.Timestamp.UTC().Format("20060102_150405")

	switch strings.ToLower(r.URL.Query().Get("format")) {
	case "csv":
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.csv"`, filename))
		if err := core.WriteCSV(w, report); err != nil {
			logging.FromContext(r.Context()).Error("csv export failed", "run_id", runID, "error", err)
		}
	case "", "json":
		data, err := core.MarshalReport(report)
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Has("download") {
			w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.json"`, filename))
		}
		_, _ = w.Write(data)
	default:
		s.respondError(w, r, fmt.Errorf("%w: format must be json or csv", errBadRequest))
	}
}

// handleCancelRun requests cancellation of a run.
func (s *Server) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	if err := s.sessions.CancelRun(runID); err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"run_id": runID, "status": "cancelling"})
}

// sseEventName maps a core event to its SSE event name.
func sseEventName(t core.EventType) string {
	switch t {
	case core.EventStarted:
		return "started"
	case core.EventDocumentCompleted:
		return "document"
	case core.EventFinished:
		return "finished"
	case core.EventCancelled:
		return "cancelled"
	default:
		return "message"
	}
}

// handleRunEvents streams run progress as Server-Sent Events. Every event of
// the run is replayed to late subscribers; a Last-Event-ID header (or
// lastEventId query parameter) skips the ones a reconnecting client already
// has.
func (s *Server) handleRunEvents(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")

	lastEventID := -1
	if v := r.Header.Get("Last-Event-ID"); v != "" {
		lastEventID, _ = strconv.Atoi(v)
	} else if v := r.URL.Query().Get("lastEventId"); v != "" {
		lastEventID, _ = strconv.Atoi(v)
	}

	events, err := s.sessions.SubscribeProgress(runID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	rc := http.NewResponseController(w)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	_ = rc.Flush()

	keepAlive := time.NewTicker(15 * time.Second)
	defer keepAlive.Stop()

	seq := 0
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			id := seq
			seq++
			if id <= lastEventID {
				continue
			}

			data, err := json.Marshal(ev)
			if err != nil {
				logging.FromContext(r.Context()).Error("sse encode failed", "run_id", runID, "error", err)
				continue
			}
			if _, err := fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", id, sseEventName(ev.Type), data); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}

		case <-keepAlive.C:
			if _, err := io.WriteString(w, ": keep-alive\n\n"); err != nil {
				return
			}
			_ = rc.Flush()

		case <-r.Context().Done():
			return
		}
	}
}

func isHTTPURL(s string) bool {
	lower := strings.ToLower(s)
	return (strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")) && len(s) > len("https://")
}
