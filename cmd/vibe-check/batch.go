package main

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/bdougie/vibe-check/pkg/config"
	"github.com/bdougie/vibe-check/pkg/models"
	"github.com/bdougie/vibe-check/pkg/ollama"
	"github.com/bdougie/vibe-check/pkg/tasks"
)

var (
	batchModels      []string
	batchTasks       []string
	batchDifficulty  string
	resolveFallbacks bool
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Run a set of tasks against a set of models",
	Long: `Run every selected task against every selected model, one run at a
time, then write a batch summary with per-model statistics and rankings.`,
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)
	batchCmd.Flags().StringSliceVar(&batchModels, "model", nil,
		"models to run (comma-separated or repeated flag; defaults to models.default from config)")
	batchCmd.Flags().StringSliceVar(&batchTasks, "task", nil,
		"tasks to run (comma-separated or repeated flag; defaults to all discovered tasks)")
	batchCmd.Flags().StringVar(&batchDifficulty, "difficulty", "",
		"only run tasks of this difficulty (easy, medium, hard)")
	batchCmd.Flags().BoolVar(&resolveFallbacks, "resolve-fallbacks", false,
		"substitute catalog fallback models for models not installed in Ollama")
}

func runBatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	owner, err := resultsOwner(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	modelList := batchModels
	if len(modelList) == 0 {
		modelList = cfg.Models.Default
	}

	if len(modelList) == 0 {
		return fmt.Errorf("no models selected (use --model or models.default in config)")
	}

	if resolveFallbacks {
		modelList, err = applyFallbacks(cmd, cfg, modelList)
		if err != nil {
			return err
		}
	}

	taskList, err := selectTasks(cfg.Benchmark.TasksDir, batchTasks, batchDifficulty)
	if err != nil {
		return err
	}

	r := newRunner(cfg, owner)

	if _, err := r.RunBatch(ctx, modelList, taskList); err != nil {
		return fmt.Errorf("running batch: %w", err)
	}

	return nil
}

// applyFallbacks replaces models missing from Ollama with their catalog
// fallback chain.
func applyFallbacks(cmd *cobra.Command, cfg *config.Config, modelList []string) ([]string, error) {
	catalog, err := loadCatalogOrDefault(cfg.Models.CatalogPath)
	if err != nil {
		return nil, err
	}

	client := ollama.NewClient(log, cfg.Ollama.URL, cfg.Ollama.RequestTimeout())

	has, err := installedModelSet(cmd, client)
	if err != nil {
		return nil, err
	}

	resolved := catalog.ResolveFallbacks(modelList, has)

	for i, name := range modelList {
		if resolved[i] != name {
			log.WithFields(logrus.Fields{
				"requested": name,
				"fallback":  resolved[i],
			}).Info("Substituting fallback model")
		}
	}

	return resolved, nil
}

// selectTasks resolves the batch task selection against the task directory.
func selectTasks(tasksDir string, names []string, difficulty string) ([]tasks.Task, error) {
	discovered, err := tasks.Discover(tasksDir)
	if err != nil {
		return nil, fmt.Errorf("discovering tasks: %w", err)
	}

	if len(discovered) == 0 {
		return nil, fmt.Errorf("no tasks found under %s", tasksDir)
	}

	byName := make(map[string]tasks.Task, len(discovered))
	for _, task := range discovered {
		byName[task.Name] = task
	}

	var selected []tasks.Task

	if len(names) > 0 {
		for _, name := range names {
			task, ok := byName[name]
			if !ok {
				return nil, fmt.Errorf("unknown task %q (vibe-check tasks lists them)", name)
			}

			selected = append(selected, task)
		}
	} else {
		selected = discovered
	}

	if difficulty != "" {
		difficulty = strings.ToLower(difficulty)

		filtered := make([]tasks.Task, 0, len(selected))
		for _, task := range selected {
			if task.Difficulty == difficulty {
				filtered = append(filtered, task)
			}
		}

		if len(filtered) == 0 {
			return nil, fmt.Errorf("no tasks with difficulty %q", difficulty)
		}

		selected = filtered
	}

	return selected, nil
}

// loadCatalogOrDefault loads the configured model catalog, falling back to
// the built-in one.
func loadCatalogOrDefault(catalogPath string) (*models.Catalog, error) {
	if catalogPath == "" {
		return models.DefaultCatalog(), nil
	}

	catalog, err := models.LoadCatalog(catalogPath)
	if err != nil {
		return nil, fmt.Errorf("loading model catalog: %w", err)
	}

	return catalog, nil
}

// installedModelSet lists the models installed in Ollama as a lookup
// function for fallback resolution.
func installedModelSet(cmd *cobra.Command, client ollama.Client) (func(string) bool, error) {
	installed, err := client.ListModels(cmd.Context())
	if err != nil {
		return nil, fmt.Errorf("listing installed models: %w", err)
	}

	names := make(map[string]struct{}, len(installed))
	for _, model := range installed {
		names[model.Name] = struct{}{}
		names[models.BaseName(model.Name)] = struct{}{}
	}

	return func(name string) bool {
		if _, ok := names[name]; ok {
			return true
		}

		_, ok := names[models.BaseName(name)]

		return ok
	}, nil
}
