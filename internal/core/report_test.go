package core

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func sampleReport() *BatchReport {
	date := time.Date(2025, 6, 18, 0, 0, 0, 0, time.UTC)
	return &BatchReport{
		Timestamp:      time.Date(2025, 6, 20, 10, 30, 0, 0, time.UTC),
		TotalDocuments: 2,
		ValidCount:     1,
		ErrorCount:     1,
		Results: []DocumentResult{
			{
				Locator: "https://example.com/12345678000190.pdf",
				Status:  StatusValid,
				ExtractedFields: &ExtractedFields{
					TaxID:              "12345678000190",
					RepresentativeName: "Maria Silva",
					DocumentDate:       &date,
					SpecificNameFound:  "Carlos Lima",
					DocumentType:       "pdf",
				},
				RegistryRecord: &RegistryRecord{
					LegalName:          "ACME TELECOM LTDA",
					RegistrationStatus: "ATIVA",
					Address:            "Rua A, 10 - Centro, Curitiba - PR, CEP: 80000-000",
					MainActivity:       "61.10-8-03 - Servicos de comunicacao multimidia",
				},
				ValidationFlags: ValidationFlags{true, true, true, true, true, true},
			},
			{
				Locator:     "https://example.com/missing.pdf",
				Status:      StatusError,
				ErrorDetail: "HTTP 404",
			},
		},
	}
}

func TestReport_JSONRoundTrip(t *testing.T) {
	want := sampleReport()

	data, err := MarshalReport(want)
	if err != nil {
		t.Fatalf("MarshalReport() error = %v", err)
	}

	got, err := UnmarshalReport(data)
	if err != nil {
		t.Fatalf("UnmarshalReport() error = %v", err)
	}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestReport_JSONFieldNames(t *testing.T) {
	data, err := MarshalReport(sampleReport())
	if err != nil {
		t.Fatalf("MarshalReport() error = %v", err)
	}

	for _, key := range []string{
		`"totalDocuments"`, `"validCount"`, `"results"`, `"validationFlags"`,
		`"taxIdActiveInRegistry"`, `"documentDate": "2025-06-18T00:00:00Z"`, `"errorDetail"`,
	} {
		if !bytes.Contains(data, []byte(key)) {
			t.Errorf("encoded report missing %s", key)
		}
	}
}

func TestUnmarshalReport_Inconsistent(t *testing.T) {
	tests := []struct {
		name string
		json string
	}{
		{"counts do not add up", `{"totalDocuments":2,"validCount":1,"results":[{},{}]}`},
		{"results length differs", `{"totalDocuments":1,"validCount":1,"results":[]}`},
		{"malformed", `{"totalDocuments":`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := UnmarshalReport([]byte(tt.json)); err == nil {
				t.Error("UnmarshalReport() should fail")
			}
		})
	}
}

func TestMarshalReport_Nil(t *testing.T) {
	if _, err := MarshalReport(nil); err == nil {
		t.Error("MarshalReport(nil) should fail")
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, sampleReport()); err != nil {
		t.Fatalf("WriteCSV() error = %v", err)
	}

	rows, err := csv.NewReader(strings.NewReader(buf.String())).ReadAll()
	if err != nil {
		t.Fatalf("reading csv: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want 3", len(rows))
	}
	if diff := cmp.Diff(CSVHeader, rows[0]); diff != "" {
		t.Errorf("header mismatch (-want +got):\n%s", diff)
	}

	first := rows[1]
	if first[0] != "https://example.com/12345678000190.pdf" || first[1] != "valid" {
		t.Errorf("first row = %v", first)
	}
	if first[4] != "2025-06-18" {
		t.Errorf("document_date = %q, want 2025-06-18", first[4])
	}
	if first[11] != "true" {
		t.Errorf("tax_id_active_in_registry = %q, want true", first[11])
	}

	second := rows[2]
	if second[1] != "error" || second[15] != "extraction notFound: HTTP 404" {
		t.Errorf("second row = %v", second)
	}
	if second[2] != "" || second[9] != "false" {
		t.Errorf("error row should have empty fields and false flags: %v", second)
	}
}
