package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/docvalidate/internal/application"
)

var referenceFlags struct {
	sheet string
}

var referenceCmd = &cobra.Command{
	Use:   "reference",
	Short: "Load a reference spreadsheet and print its summary",
	RunE:  runReference,
}

func init() {
	f := referenceCmd.Flags()
	f.StringVar(&referenceFlags.sheet, "sheet", "", "Spreadsheet path or CSV URL (required)")
	_ = referenceCmd.MarkFlagRequired("sheet")
}

func runReference(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	app, err := application.New(cmd.Context(), cfg, logger, application.Options{SkipDatabase: true})
	if err != nil {
		return err
	}
	defer app.Close()

	ref, err := app.Sheets.Load(cmd.Context(), referenceFlags.sheet)
	if err != nil {
		return fmt.Errorf("load reference: %w", err)
	}

	fmt.Fprint(cmd.OutOrStdout(), renderSummary(ref.Summary()))
	return nil
}
