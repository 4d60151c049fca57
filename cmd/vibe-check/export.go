package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bdougie/vibe-check/pkg/aggregate"
	"github.com/bdougie/vibe-check/pkg/fsutil"
)

var (
	exportFormat  string
	exportGroupBy string
	exportOutput  string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export aggregated results",
	Long: `Load every run record from the results directory, compute aggregate
statistics, and export them as structured JSON (nested per-group stats) or
flat CSV (one row per run).`,
	RunE: runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().StringVar(&exportFormat, "format", "json", "export format (json, csv)")
	exportCmd.Flags().StringVar(&exportGroupBy, "group-by", "model",
		"grouping key for the structured export (model, task, difficulty)")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "",
		"write the export to this file instead of stdout")
}

func runExport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	format, err := aggregate.ParseFormat(exportFormat)
	if err != nil {
		return err
	}

	agg := aggregate.NewAggregator(log)

	records, err := agg.LoadAll(cfg.Workspace.ResultsDir)
	if err != nil {
		return fmt.Errorf("loading results: %w", err)
	}

	if len(records) == 0 {
		log.WithField("dir", cfg.Workspace.ResultsDir).Info("No run records found")

		return nil
	}

	rep, err := agg.BuildReport(records, exportGroupBy)
	if err != nil {
		return err
	}

	out := os.Stdout

	if exportOutput != "" {
		owner, err := resultsOwner(cfg)
		if err != nil {
			return err
		}

		f, err := os.OpenFile(exportOutput, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
		if err != nil {
			return fmt.Errorf("creating export file: %w", err)
		}

		defer f.Close()
		defer fsutil.Chown(exportOutput, owner)

		out = f
	}

	if err := agg.Export(rep, format, out); err != nil {
		return fmt.Errorf("exporting results: %w", err)
	}

	if exportOutput != "" {
		log.WithField("path", exportOutput).Info("Export written")
	}

	return nil
}
