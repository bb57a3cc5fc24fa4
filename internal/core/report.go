package core

// report.go provides the export formats for a BatchReport.
//
// JSON is the canonical format: field names and nesting match the in-memory
// structure, dates are RFC 3339, and decoding an encoded report yields an
// equal value. CSV is a flat convenience export for spreadsheets.

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"
)

// MarshalReport encodes a report in the canonical JSON format.
func MarshalReport(report *BatchReport) ([]byte, error) {
	if report == nil {
		return nil, fmt.Errorf("marshal report: nil report")
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal report: %w", err)
	}
	return data, nil
}

// UnmarshalReport decodes a report from the canonical JSON format and checks
// that its counts are consistent.
func UnmarshalReport(data []byte) (*BatchReport, error) {
	var report BatchReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("unmarshal report: %w", err)
	}
	if report.ValidCount+report.InvalidCount+report.ErrorCount != report.TotalDocuments {
		return nil, fmt.Errorf("unmarshal report: counts %d+%d+%d do not add up to %d",
			report.ValidCount, report.InvalidCount, report.ErrorCount, report.TotalDocuments)
	}
	if len(report.Results) != report.TotalDocuments {
		return nil, fmt.Errorf("unmarshal report: %d results for %d documents",
			len(report.Results), report.TotalDocuments)
	}
	return &report, nil
}

// CSVHeader lists the columns written by WriteCSV.
var CSVHeader = []string{
	"locator", "status",
	"tax_id", "representative_name", "document_date", "specific_name_found",
	"registry_legal_name", "registry_status", "registry_address",
	"tax_id_in_reference", "legal_name_valid", "tax_id_active_in_registry",
	"representative_valid", "specific_name_valid", "document_date_valid",
	"error_detail", "registry_error",
}

// WriteCSV writes one row per document in submission order.
func WriteCSV(w io.Writer, report *BatchReport) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	for _, r := range report.Results {
		var f ExtractedFields
		if r.ExtractedFields != nil {
			f = *r.ExtractedFields
		}
		var reg RegistryRecord
		if r.RegistryRecord != nil {
			reg = *r.RegistryRecord
		}
		date := ""
		if f.DocumentDate != nil {
			date = f.DocumentDate.Format(time.DateOnly)
		}
		flags := r.ValidationFlags

		row := []string{
			r.Locator, string(r.Status),
			f.TaxID, f.RepresentativeName, date, f.SpecificNameFound,
			reg.LegalName, reg.RegistrationStatus, reg.Address,
			strconv.FormatBool(flags.TaxIDInReference),
			strconv.FormatBool(flags.LegalNameValid),
			strconv.FormatBool(flags.TaxIDActiveInRegistry),
			strconv.FormatBool(flags.RepresentativeValid),
			strconv.FormatBool(flags.SpecificNameValid),
			strconv.FormatBool(flags.DocumentDateValid),
			r.ErrorDetail, r.RegistryError,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}
