package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bdougie/vibe-check/pkg/upload"
)

var uploadResultDir string

var uploadResultsCmd = &cobra.Command{
	Use:   "upload-results",
	Short: "Upload benchmark results to remote storage",
	Long:  `Upload a results directory to S3-compatible storage using the config file settings.`,
	RunE:  runUploadResults,
}

func init() {
	rootCmd.AddCommand(uploadResultsCmd)
	uploadResultsCmd.Flags().StringVar(&uploadResultDir, "result-dir", "",
		"results directory to upload (defaults to workspace.results_dir)")
}

func runUploadResults(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if cfg.Upload.S3 == nil || !cfg.Upload.S3.Enabled {
		return fmt.Errorf("S3 upload is not configured or not enabled in config")
	}

	dir := uploadResultDir
	if dir == "" {
		dir = cfg.Workspace.ResultsDir
	}

	uploader, err := upload.NewS3Uploader(log, cfg.Upload.S3)
	if err != nil {
		return fmt.Errorf("creating S3 uploader: %w", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	if err := uploader.Preflight(ctx); err != nil {
		return fmt.Errorf("S3 upload preflight check failed: %w", err)
	}

	log.WithField("dir", dir).Info("Uploading results")

	if err := uploader.Upload(ctx, dir); err != nil {
		return fmt.Errorf("uploading results: %w", err)
	}

	log.Info("Upload completed successfully")

	return nil
}
