package sheet

// streaming.go provides the reader chain applied to every spreadsheet before
// CSV parsing:
//
//   - a size cap on the raw bytes, so a wrong link cannot exhaust memory
//   - UTF-8 BOM removal (Google Sheets and Excel exports often carry one)
//   - invalid UTF-8 replaced with U+FFFD
//
// Use wrapForParsing to apply all transforms in the correct order.

import (
	"fmt"
	"io"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// limitedReader wraps an io.Reader and fails with ErrSheetTooLarge once more
// than limit bytes have been read.
type limitedReader struct {
	reader    io.Reader
	limit     int64
	BytesRead int64
}

func newLimitedReader(r io.Reader, limit int64) *limitedReader {
	return &limitedReader{reader: r, limit: limit}
}

// Read implements io.Reader.
func (r *limitedReader) Read(p []byte) (int, error) {
	if r.limit > 0 {
		// Allow one byte past the limit so an exact-size file still succeeds.
		remaining := r.limit - r.BytesRead + 1
		if remaining <= 0 {
			return 0, fmt.Errorf("%w: exceeds %d bytes", ErrSheetTooLarge, r.limit)
		}
		if int64(len(p)) > remaining {
			p = p[:remaining]
		}
	}

	n, err := r.reader.Read(p)
	r.BytesRead += int64(n)

	if r.limit > 0 && r.BytesRead > r.limit {
		return 0, fmt.Errorf("%w: exceeds %d bytes", ErrSheetTooLarge, r.limit)
	}
	return n, err
}

// newSanitizingReader strips a leading UTF-8 BOM and replaces invalid UTF-8
// sequences with the replacement character. BOMOverride stops validating once
// it has seen a BOM, so stripping and sanitizing are separate steps.
func newSanitizingReader(r io.Reader) io.Reader {
	return transform.NewReader(r, transform.Chain(
		unicode.BOMOverride(transform.Nop),
		unicode.UTF8.NewDecoder(),
	))
}

// wrapForParsing applies the size cap first, so the limit applies to the
// bytes on the wire, then BOM removal and sanitization.
func wrapForParsing(r io.Reader, limit int64) io.Reader {
	return newSanitizingReader(newLimitedReader(r, limit))
}
