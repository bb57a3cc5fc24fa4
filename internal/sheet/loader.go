// Package sheet loads the reference spreadsheet of known companies.
//
// The spreadsheet is a CSV export (typically a published Google Sheet) with
// one company per row. Only four columns are read:
//
//	C (2)  tax identifier
//	D (3)  legal name
//	K (10) authorized representative, kept only when the row has a tax id
//	L (11) comma-separated network contacts
//
// The first row is a header. Blank cells and "#N/A" are ignored.
package sheet

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/JonMunkholm/docvalidate/internal/core"
)

var (
	// ErrSheetUnavailable means the spreadsheet could not be fetched.
	ErrSheetUnavailable = errors.New("sheet unavailable")

	// ErrInvalidSheet means the content is not parseable CSV.
	ErrInvalidSheet = errors.New("invalid sheet")

	// ErrSheetTooLarge means the content exceeds the configured size cap.
	ErrSheetTooLarge = errors.New("sheet too large")
)

// Column positions, 0-based.
const (
	colTaxID          = 2
	colLegalName      = 3
	colRepresentative = 10
	colContacts       = 11
)

const notAvailable = "#N/A"

// Defaults used when Config leaves a field zero.
const (
	DefaultMaxSize = 10 * 1024 * 1024
	DefaultTimeout = 30 * time.Second
)

// Config controls how spreadsheets are fetched.
type Config struct {
	MaxSize   int64
	Timeout   time.Duration
	UserAgent string
}

// Loader fetches and parses reference spreadsheets.
type Loader struct {
	client *http.Client
	cfg    Config
	logger *slog.Logger
}

// NewLoader creates a loader. A nil client gets a default one with cfg.Timeout.
func NewLoader(cfg Config, client *http.Client, logger *slog.Logger) *Loader {
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = DefaultMaxSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{client: client, cfg: cfg, logger: logger}
}

// Load reads the spreadsheet at source, which is an http(s) URL or a local
// file path, and builds a reference dataset from it.
func (l *Loader) Load(ctx context.Context, source string) (*core.ReferenceDataset, error) {
	start := time.Now()

	body, err := l.open(ctx, source)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	records, err := Parse(body, l.cfg.MaxSize)
	if err != nil {
		return nil, err
	}

	ref := core.NewReferenceDataset(records)
	summary := ref.Summary()
	l.logger.Info("reference spreadsheet loaded",
		"source", redactSource(source),
		"tax_ids", summary.TaxIDs,
		"legal_names", summary.LegalNames,
		"representatives", summary.Representatives,
		"network_contacts", summary.NetworkContacts,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return ref, nil
}

func (l *Loader) open(ctx context.Context, source string) (io.ReadCloser, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return nil, fmt.Errorf("%w: empty source", ErrSheetUnavailable)
	}

	if !isRemote(source) {
		f, err := os.Open(source)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrSheetUnavailable, err)
		}
		return f, nil
	}

	ctx, cancel := context.WithTimeout(ctx, l.cfg.Timeout)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: %w", ErrSheetUnavailable, err)
	}
	req.Header.Set("Accept", "text/csv, text/plain;q=0.9, */*;q=0.1")
	if l.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", l.cfg.UserAgent)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: %w", ErrSheetUnavailable, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("%w: HTTP %d", ErrSheetUnavailable, resp.StatusCode)
	}
	if resp.ContentLength > l.cfg.MaxSize {
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("%w: %d bytes exceeds %d", ErrSheetTooLarge, resp.ContentLength, l.cfg.MaxSize)
	}

	return &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}, nil
}

// cancelOnClose releases the request context together with the body.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

func isRemote(source string) bool {
	lower := strings.ToLower(source)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// redactSource drops the query string, which for published sheets can carry
// access tokens.
func redactSource(source string) string {
	if i := strings.IndexByte(source, '?'); i >= 0 {
		return source[:i]
	}
	return source
}

// Parse reads CSV rows from r into reference records. maxSize <= 0 disables
// the size cap.
func Parse(r io.Reader, maxSize int64) (core.ReferenceRecords, error) {
	cr := csv.NewReader(wrapForParsing(r, maxSize))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.ReuseRecord = true

	var records core.ReferenceRecords
	for row := 0; ; row++ {
		fields, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			if errors.Is(err, ErrSheetTooLarge) {
				return core.ReferenceRecords{}, err
			}
			return core.ReferenceRecords{}, fmt.Errorf("%w: %w", ErrInvalidSheet, err)
		}
		if row == 0 {
			continue
		}

		taxID := cell(fields, colTaxID)
		if taxID != "" {
			records.TaxIDs = append(records.TaxIDs, taxID)
		}
		if name := cell(fields, colLegalName); name != "" {
			records.LegalNames = append(records.LegalNames, name)
		}
		if rep := cell(fields, colRepresentative); rep != "" && taxID != "" {
			records.Representatives = append(records.Representatives, rep)
		}
		if contacts := cell(fields, colContacts); contacts != "" {
			for _, name := range strings.Split(contacts, ",") {
				if name = usable(name); name != "" {
					records.NetworkContacts = append(records.NetworkContacts, name)
				}
			}
		}
	}

	return records, nil
}

// cell returns the trimmed value at idx, or "" when absent or "#N/A".
func cell(fields []string, idx int) string {
	if idx >= len(fields) {
		return ""
	}
	return usable(fields[idx])
}

func usable(s string) string {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, notAvailable) {
		return ""
	}
	return s
}
