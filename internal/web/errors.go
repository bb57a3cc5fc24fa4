package web

// errors.go turns handler errors into responses.
//
// The technical error is logged with the request id; the client gets the
// UserMessage from core.MapError as JSON on /api routes or as an HTML page
// elsewhere.

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/JonMunkholm/docvalidate/internal/core"
	"github.com/JonMunkholm/docvalidate/internal/logging"
	"github.com/JonMunkholm/docvalidate/internal/session"
	"github.com/JonMunkholm/docvalidate/internal/sheet"
	"github.com/JonMunkholm/docvalidate/internal/web/templates"
)

// ErrorResponse is the JSON body of every API error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// errBadRequest marks malformed request bodies.
var errBadRequest = errors.New("bad request")

// statusFor picks the HTTP status for an error.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest), errors.Is(err, core.ErrInvalidBatchSize):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrReferenceNotFound), errors.Is(err, session.ErrRunNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrRunNotFinished), errors.Is(err, core.ErrCancelledBatch):
		return http.StatusConflict
	case errors.Is(err, sheet.ErrSheetTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, sheet.ErrInvalidSheet):
		return http.StatusUnprocessableEntity
	case errors.Is(err, sheet.ErrSheetUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, session.ErrTooManyRuns):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// respondError logs err and writes the user-facing response.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	userMsg := core.MapError(err)

	logger := logging.FromContext(r.Context())
	attrs := []any{
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", userMsg.Code,
	}
	if status >= http.StatusInternalServerError {
		logger.Error("request error", attrs...)
	} else {
		logger.Warn("request error", attrs...)
	}

	if wantsJSON(r) {
		respondErrorJSON(w, userMsg, status)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_ = templates.ErrorPage(userMsg.Message, userMsg.Action, userMsg.Code).Render(r.Context(), w)
}

// respondErrorJSON writes a JSON error response.
func respondErrorJSON(w http.ResponseWriter, msg core.UserMessage, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error:   msg.Message,
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
	})
}

// wantsJSON reports whether the client should get a JSON error.
func wantsJSON(r *http.Request) bool {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "application/json") ||
		strings.Contains(r.Header.Get("Content-Type"), "application/json")
}
