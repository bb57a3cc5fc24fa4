// Package templates holds the HTML views of the validator. The .templ files
// are the sources; the _templ.go files are generated with `templ generate`.
package templates

import (
	"strings"
	"time"

	"github.com/JonMunkholm/docvalidate/internal/core"
)

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}

// fieldsOf returns the extracted fields, or an empty value when extraction
// failed.
func fieldsOf(res core.DocumentResult) core.ExtractedFields {
	if res.ExtractedFields == nil {
		return core.ExtractedFields{}
	}
	return *res.ExtractedFields
}

func documentDate(res core.DocumentResult) string {
	if d := fieldsOf(res).DocumentDate; d != nil {
		return d.Format(time.DateOnly)
	}
	return ""
}

// resultDetail prefers the extraction error over a soft registry error.
func resultDetail(res core.DocumentResult) string {
	if res.ErrorDetail != "" {
		return res.ErrorDetail
	}
	return res.RegistryError
}

// flagSummary renders the six flags as a compact pass/fail string.
func flagSummary(f core.ValidationFlags) string {
	mark := func(ok bool) string {
		if ok {
			return "✓"
		}
		return "✗"
	}
	return strings.Join([]string{
		"ref " + mark(f.TaxIDInReference),
		"name " + mark(f.LegalNameValid),
		"active " + mark(f.TaxIDActiveInRegistry),
		"rep " + mark(f.RepresentativeValid),
		"contact " + mark(f.SpecificNameValid),
		"date " + mark(f.DocumentDateValid),
	}, " ")
}
