package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/docvalidate/internal/application"
	"github.com/JonMunkholm/docvalidate/internal/core"
)

var validateFlags struct {
	sheet  string
	docs   []string
	out    string
	format string
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a batch of authorization letters",
	Long: "Validate loads the reference spreadsheet, checks each --doc against it and\n" +
		"the registry, and prints a result table. Ctrl-C cancels the batch; no\n" +
		"report is written for a cancelled batch.",
	RunE: runValidate,
}

func init() {
	f := validateCmd.Flags()
	f.StringVar(&validateFlags.sheet, "sheet", "", "Spreadsheet path or CSV URL (required)")
	f.StringArrayVar(&validateFlags.docs, "doc", nil, "Document URL (repeatable, required)")
	f.StringVar(&validateFlags.out, "out", "", "Write the report to this file instead of stdout")
	f.StringVar(&validateFlags.format, "format", "table", "Output format: table, json or csv")

	_ = validateCmd.MarkFlagRequired("sheet")
	_ = validateCmd.MarkFlagRequired("doc")
}

func runValidate(cmd *cobra.Command, _ []string) error {
	format := strings.ToLower(validateFlags.format)
	switch format {
	case "table", "json", "csv":
	default:
		return fmt.Errorf("unknown format %q (want table, json or csv)", validateFlags.format)
	}

	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := application.New(ctx, cfg, logger, application.Options{SkipDatabase: rootFlags.noDB})
	if err != nil {
		return err
	}
	defer app.Close()

	if err := app.Orchestrator.CheckBatch(validateFlags.docs); err != nil {
		return err
	}

	ref, err := app.Sheets.Load(ctx, validateFlags.sheet)
	if err != nil {
		return fmt.Errorf("load reference: %w", err)
	}

	progress := cmd.ErrOrStderr()
	report, err := app.Orchestrator.Run(ctx, ref, validateFlags.docs, func(ev core.Event) {
		if line := progressLine(ev); line != "" {
			fmt.Fprintln(progress, line)
		}
	})
	if errors.Is(err, core.ErrCancelledBatch) {
		return errors.New("batch cancelled, no report written")
	}
	if err != nil {
		return err
	}

	return writeReport(cmd.OutOrStdout(), report, format, validateFlags.out)
}

// writeReport renders report in format to the --out file, or to stdout.
func writeReport(stdout io.Writer, report *core.BatchReport, format, out string) error {
	w := stdout
	if out != "" {
		f, err := os.Create(out)
		if err != nil {
			return fmt.Errorf("create %s: %w", out, err)
		}
		defer f.Close()
		w = f
	}

	switch format {
	case "json":
		data, err := core.MarshalReport(report)
		if err != nil {
			return err
		}
		if _, err := w.Write(append(data, '\n')); err != nil {
			return err
		}
	case "csv":
		if err := core.WriteCSV(w, report); err != nil {
			return err
		}
	default:
		if _, err := io.WriteString(w, renderReport(report)); err != nil {
			return err
		}
	}

	if out != "" {
		fmt.Fprintf(stdout, "report written to %s\n", out)
	}
	return nil
}
