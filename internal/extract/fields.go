package extract

// fields.go pulls the validation fields out of document text.
//
// The patterns target Brazilian authorization letters: the tax id is a CNPJ,
// the signer introduces themselves with "Eu, <name>," and dates are written
// either in full Portuguese ("18 de junho de 2025") or numerically.

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/JonMunkholm/docvalidate/internal/core"
)

var (
	// Documents are often stored under their company's CNPJ.
	urlTaxIDPattern = regexp.MustCompile(`(?i)(\d{14})\.(?:pdf|html|txt)`)

	textTaxIDPattern = regexp.MustCompile(
		`(?i)CN\s*PJ\s*(?:nº|n\.|no|:)?\s*(\d{2}\.?\d{3}\.?\d{3}/?\d{4}-?\d{2}|\d{14})`)

	longDatePattern    = regexp.MustCompile(`(?i)(\d{1,2})\s+de\s+(\p{L}+)\s+de\s+(\d{4})`)
	numericDatePattern = regexp.MustCompile(`(\d{1,2})[/-](\d{1,2})[/-](\d{4})`)
)

// months is keyed by the normalized month name.
var months = map[string]time.Month{
	"janeiro":   time.January,
	"fevereiro": time.February,
	"marco":     time.March,
	"abril":     time.April,
	"maio":      time.May,
	"junho":     time.June,
	"julho":     time.July,
	"agosto":    time.August,
	"setembro":  time.September,
	"outubro":   time.October,
	"novembro":  time.November,
	"dezembro":  time.December,
}

const representativeMarker = "Eu,"

// maxRepresentativeLen bounds an undelimited representative name.
const maxRepresentativeLen = 100

var representativeDelimiters = []string{
	",", ".", "\n", "(", ")", "[", "]", "-", "\r",
	" e ", " ou ", " inscrito no ",
}

// TaxID returns the document's CNPJ in digits-only form. A CNPJ embedded in
// the locator's file name wins over one printed in the text.
func TaxID(locator, text string) string {
	if matches := urlTaxIDPattern.FindAllStringSubmatch(locator, -1); len(matches) > 0 {
		return core.NormalizeTaxID(matches[len(matches)-1][1])
	}
	if m := textTaxIDPattern.FindStringSubmatch(text); m != nil {
		return core.NormalizeTaxID(m[1])
	}
	return ""
}

// Representative returns the name following the first "Eu," in text.
func Representative(text string) string {
	start := strings.Index(text, representativeMarker)
	if start < 0 {
		return ""
	}
	rest := strings.TrimSpace(text[start+len(representativeMarker):])
	if rest == "" {
		return ""
	}

	// Word delimiters are matched case-insensitively. Lowercasing can change
	// byte offsets for a few scripts, in which case the original is searched.
	search := strings.ToLower(rest)
	if len(search) != len(rest) {
		search = rest
	}

	end := -1
	for _, d := range representativeDelimiters {
		if i := strings.Index(search, d); i >= 0 && (end < 0 || i < end) {
			end = i
		}
	}

	var name string
	if end >= 0 {
		name = strings.TrimSpace(rest[:end])
	} else {
		name, _, _ = strings.Cut(rest, "\n")
		name = strings.TrimSpace(name)
		if runes := []rune(name); len(runes) > maxRepresentativeLen {
			name = strings.TrimSpace(string(runes[:maxRepresentativeLen])) + "..."
		}
	}

	name = strings.NewReplacer(`"`, "", "'", "").Replace(name)
	return strings.TrimSpace(name)
}

// DocumentDate returns the first date found in text, as midnight UTC of that
// calendar day. A written-out date takes precedence over a numeric one.
func DocumentDate(text string) *time.Time {
	if m := longDatePattern.FindStringSubmatch(text); m != nil {
		if month, ok := months[core.NormalizeName(m[2])]; ok {
			return buildDate(m[1], int(month), m[3])
		}
	}
	if m := numericDatePattern.FindStringSubmatch(text); m != nil {
		month, err := strconv.Atoi(m[2])
		if err != nil {
			return nil
		}
		return buildDate(m[1], month, m[3])
	}
	return nil
}

// buildDate rejects impossible dates such as 31/02 instead of normalizing them.
func buildDate(dayStr string, month int, yearStr string) *time.Time {
	day, err := strconv.Atoi(dayStr)
	if err != nil {
		return nil
	}
	year, err := strconv.Atoi(yearStr)
	if err != nil {
		return nil
	}
	if month < 1 || month > 12 || day < 1 {
		return nil
	}

	d := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if d.Day() != day || int(d.Month()) != month {
		return nil
	}
	return &d
}

// SpecificName returns the first contact whose normalized form appears in
// the normalized text, in the contacts' order.
func SpecificName(text string, contacts []string) string {
	if text == "" || len(contacts) == 0 {
		return ""
	}
	normalized := core.NormalizeName(text)
	for _, name := range contacts {
		key := core.NormalizeName(name)
		if key != "" && strings.Contains(normalized, key) {
			return name
		}
	}
	return ""
}
