package main

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/JonMunkholm/docvalidate/internal/core"
)

// progressLine formats one progress event, or returns "" for events that
// need no line.
func progressLine(ev core.Event) string {
	switch ev.Type {
	case core.EventStarted:
		return fmt.Sprintf("validating %d document(s)", ev.Total)
	case core.EventDocumentCompleted:
		if ev.Result == nil {
			return ""
		}
		return fmt.Sprintf("[%d/%d] %s: %s", ev.Completed, ev.Total, ev.Result.Locator, ev.Result.Status)
	case core.EventCancelled:
		return fmt.Sprintf("cancelled after %d/%d document(s)", ev.Completed, ev.Total)
	default:
		return ""
	}
}

func mark(ok bool) string {
	if ok {
		return "yes"
	}
	return "no"
}

// renderReport draws the per-document results and the totals.
func renderReport(report *core.BatchReport) string {
	w := table.NewWriter()
	w.SetStyle(table.StyleLight)
	w.AppendHeader(table.Row{"#", "Document", "Status", "Tax id", "In ref", "Name", "Active", "Rep", "Contact", "Date", "Detail"})

	for i, res := range report.Results {
		var taxID string
		if res.ExtractedFields != nil {
			taxID = res.ExtractedFields.TaxID
		}
		detail := res.ErrorDetail
		if detail == "" {
			detail = res.RegistryError
		}
		f := res.ValidationFlags
		w.AppendRow(table.Row{
			i + 1, res.Locator, res.Status, taxID,
			mark(f.TaxIDInReference), mark(f.LegalNameValid), mark(f.TaxIDActiveInRegistry),
			mark(f.RepresentativeValid), mark(f.SpecificNameValid), mark(f.DocumentDateValid),
			detail,
		})
	}

	w.AppendFooter(table.Row{"", fmt.Sprintf("%d document(s)", report.TotalDocuments),
		fmt.Sprintf("%d valid / %d invalid / %d error", report.ValidCount, report.InvalidCount, report.ErrorCount)})
	w.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignRight},
		{Number: 2, WidthMax: 48},
		{Number: 11, WidthMax: 40},
	})
	return w.Render() + "\n"
}

// renderSummary draws the reference spreadsheet counts.
func renderSummary(s core.ReferenceSummary) string {
	w := table.NewWriter()
	w.SetStyle(table.StyleLight)
	w.AppendHeader(table.Row{"Column", "Entries"})
	w.AppendRows([]table.Row{
		{"Tax ids", s.TaxIDs},
		{"Legal names", s.LegalNames},
		{"Representatives", s.Representatives},
		{"Network contacts", s.NetworkContacts},
	})
	w.SetColumnConfigs([]table.ColumnConfig{{Number: 2, Align: text.AlignRight}})
	return w.Render() + "\n"
}
