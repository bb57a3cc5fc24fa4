// Package extract fetches authorization letters over HTTP and pulls out the
// fields the rule engine checks.
//
// PDF and HTML documents are supported. The document type is decided by the
// response Content-Type, falling back to the locator's extension.
package extract

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/JonMunkholm/docvalidate/internal/core"
)

// DefaultMaxDocumentSize caps a downloaded document.
const DefaultMaxDocumentSize = 20 * 1024 * 1024

// Document types reported in ExtractedFields.DocumentType.
const (
	TypePDF  = "pdf"
	TypeHTML = "html"
)

// Config controls document downloads.
type Config struct {
	MaxDocumentSize int64
	UserAgent       string
}

// HTTPExtractor implements core.Extractor for documents reachable by URL.
// Timeouts come from the caller's context.
type HTTPExtractor struct {
	client *http.Client
	cfg    Config
	logger *slog.Logger
}

var _ core.Extractor = (*HTTPExtractor)(nil)

// New creates an extractor. A nil client gets http.DefaultClient.
func New(cfg Config, client *http.Client, logger *slog.Logger) *HTTPExtractor {
	if cfg.MaxDocumentSize <= 0 {
		cfg.MaxDocumentSize = DefaultMaxDocumentSize
	}
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPExtractor{client: client, cfg: cfg, logger: logger}
}

// Extract downloads the document and extracts its fields.
// Failures are returned as *core.ExtractionError.
func (e *HTTPExtractor) Extract(ctx context.Context, req core.ExtractRequest) (*core.ExtractedFields, error) {
	start := time.Now()

	data, contentType, err := e.fetch(ctx, req.Locator)
	if err != nil {
		return nil, err
	}

	docType := detectType(req.Locator, contentType)

	var text string
	switch docType {
	case TypePDF:
		text, err = pdfText(data)
	default:
		text, err = htmlText(data)
	}
	if err != nil {
		return nil, &core.ExtractionError{Kind: core.KindUnreadable, Detail: err.Error(), Err: err}
	}

	fields := &core.ExtractedFields{
		TaxID:              TaxID(req.Locator, text),
		RepresentativeName: Representative(text),
		DocumentDate:       DocumentDate(text),
		SpecificNameFound:  SpecificName(text, req.Contacts),
		DocumentType:       docType,
	}

	e.logger.Debug("document extracted",
		"locator", req.Locator,
		"type", docType,
		"bytes", len(data),
		"tax_id_found", fields.TaxID != "",
		"date_found", fields.DocumentDate != nil,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return fields, nil
}

func (e *HTTPExtractor) fetch(ctx context.Context, locator string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, locator, nil)
	if err != nil {
		return nil, "", &core.ExtractionError{Kind: core.KindNotFound, Detail: "invalid document URL: " + err.Error(), Err: err}
	}
	if e.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", e.cfg.UserAgent)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, "", transportError(ctx, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return nil, "", &core.ExtractionError{Kind: core.KindNotFound, Detail: fmt.Sprintf("HTTP %d", resp.StatusCode)}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, "", &core.ExtractionError{Kind: core.KindNetwork, Detail: fmt.Sprintf("HTTP %d", resp.StatusCode)}
	}

	limit := e.cfg.MaxDocumentSize
	if resp.ContentLength > limit {
		return nil, "", &core.ExtractionError{
			Kind:   core.KindUnreadable,
			Detail: fmt.Sprintf("document is %d bytes, limit is %d", resp.ContentLength, limit),
		}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, "", transportError(ctx, err)
	}
	if int64(len(data)) > limit {
		return nil, "", &core.ExtractionError{
			Kind:   core.KindUnreadable,
			Detail: fmt.Sprintf("document exceeds %d bytes", limit),
		}
	}

	return data, resp.Header.Get("Content-Type"), nil
}

// transportError classifies a failed request or body read.
func transportError(ctx context.Context, err error) *core.ExtractionError {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &core.ExtractionError{Kind: core.KindTimeout, Detail: core.TimeoutDetail(err), Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &core.ExtractionError{Kind: core.KindTimeout, Detail: core.TimeoutDetail(err), Err: err}
	}
	return &core.ExtractionError{Kind: core.KindNetwork, Detail: err.Error(), Err: err}
}

func detectType(locator, contentType string) string {
	if strings.Contains(strings.ToLower(contentType), "application/pdf") {
		return TypePDF
	}
	path := locator
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	if strings.HasSuffix(strings.ToLower(path), ".pdf") {
		return TypePDF
	}
	return TypeHTML
}
