package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bdougie/vibe-check/pkg/config"
	"github.com/bdougie/vibe-check/pkg/fsutil"
	"github.com/bdougie/vibe-check/pkg/ollama"
	"github.com/bdougie/vibe-check/pkg/runner"
	"github.com/bdougie/vibe-check/pkg/tasks"
)

var (
	runModel string
	runTask  string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a single benchmark task against one model",
	Long: `Start an interactive benchmark run: the task description is shown,
prompts and interventions are logged as they happen, and completing the run
captures the git diff and writes the run record.`,
	RunE: runBenchmark,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVar(&runModel, "model", "", "model under test, e.g. codellama:7b")
	runCmd.Flags().StringVar(&runTask, "task", "", "task name, e.g. easy/fix-typo")

	_ = runCmd.MarkFlagRequired("model")
	_ = runCmd.MarkFlagRequired("task")
}

func runBenchmark(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	owner, err := resultsOwner(cfg)
	if err != nil {
		return err
	}

	taskPath, err := tasks.ResolveTaskPath(cfg.Benchmark.TasksDir, runTask)
	if err != nil {
		return fmt.Errorf("resolving task: %w", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	r := newRunner(cfg, owner)

	record, err := r.Run(ctx, &runner.RunRequest{
		Model:    runModel,
		Task:     runTask,
		TaskPath: taskPath,
	})
	if err != nil {
		return fmt.Errorf("running benchmark: %w", err)
	}

	if record == nil {
		log.Info("Run abandoned")
	}

	return nil
}

// newRunner assembles the runner with its Ollama preflight client.
func newRunner(cfg *config.Config, owner *fsutil.OwnerConfig) runner.Runner {
	ollamaClient := ollama.NewClient(log, cfg.Ollama.URL, cfg.Ollama.RequestTimeout())

	return runner.NewRunner(log, &runner.Config{
		RepoDir:          cfg.Workspace.RepoDir,
		ResultsDir:       cfg.Workspace.ResultsDir,
		SessionImportDir: cfg.Benchmark.SessionImportDir,
		Owner:            owner,
	}, ollamaClient)
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.WithField("signal", sig).Info("Received shutdown signal")
		cancel()
	}()

	return ctx, cancel
}
