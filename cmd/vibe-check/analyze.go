package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bdougie/vibe-check/pkg/aggregate"
	"github.com/bdougie/vibe-check/pkg/fsutil"
	"github.com/bdougie/vibe-check/pkg/report"
)

var (
	analyzeOutput   string
	analyzeMaxChars int
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Analyze stored benchmark results",
	Long: `Load every run record from the results directory and render a
markdown report: overall stats, per-model, per-task and per-difficulty
tables, intervention analysis and code change totals.`,
	RunE: runAnalyze,
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
	analyzeCmd.Flags().StringVarP(&analyzeOutput, "output", "o", "",
		"write the report to this file instead of stdout")
	analyzeCmd.Flags().IntVar(&analyzeMaxChars, "max-chars", report.DefaultMaxChars,
		"truncate the report at this size (0 = unlimited)")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
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

	md, err := report.Generate(log, records, analyzeMaxChars)
	if err != nil {
		return fmt.Errorf("generating report: %w", err)
	}

	if analyzeOutput == "" {
		fmt.Print(md)

		return nil
	}

	owner, err := resultsOwner(cfg)
	if err != nil {
		return err
	}

	if err := fsutil.WriteFile(analyzeOutput, []byte(md), 0644, owner); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}

	log.WithField("path", analyzeOutput).Info("Report written")

	return nil
}
