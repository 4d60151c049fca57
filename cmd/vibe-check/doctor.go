package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bdougie/vibe-check/pkg/config"
	"github.com/bdougie/vibe-check/pkg/git"
	"github.com/bdougie/vibe-check/pkg/models"
	"github.com/bdougie/vibe-check/pkg/ollama"
	"github.com/bdougie/vibe-check/pkg/sysinfo"
	"github.com/bdougie/vibe-check/pkg/tasks"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check the benchmark environment",
	Long: `Inspect the host, the Ollama server, the model catalog and the
workspace, and report anything that would keep a benchmark run from working.`,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

func runDoctor(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	fmt.Println("vibe-check environment check")
	fmt.Println()

	info := sysinfo.Capture(ctx, log)

	fmt.Println("System:")
	fmt.Printf("  Host:    %s (%s/%s)\n", info.Hostname, info.OS, info.Arch)

	if info.Platform != "" {
		fmt.Printf("  OS:      %s %s\n", info.Platform, info.PlatformVersion)
	}

	if info.CPUModel != "" {
		fmt.Printf("  CPU:     %s (%d cores)\n", info.CPUModel, info.CPUCores)
	}

	fmt.Printf("  Memory:  %.1f GB\n", info.MemoryTotalGB)
	fmt.Println()

	checkOllama(ctx, cfg, info)
	checkWorkspace(ctx, cfg.Workspace.RepoDir, cfg.Workspace.ResultsDir)
	checkTasks(cfg.Benchmark.TasksDir)

	return nil
}

// checkOllama reports server health, version, installed models and catalog
// recommendations for this machine.
func checkOllama(ctx context.Context, cfg *config.Config, info *sysinfo.Info) {
	fmt.Println("Ollama:")

	url := cfg.Ollama.URL
	client := ollama.NewClient(log, url, cfg.Ollama.RequestTimeout())

	if err := client.Health(ctx); err != nil {
		fmt.Printf("  [FAIL] server not reachable at %s: %v\n\n", url, err)

		return
	}

	version, err := client.Version(ctx)
	if err == nil {
		fmt.Printf("  [ OK ] server %s at %s\n", version, url)
	}

	installed, err := client.ListModels(ctx)
	if err != nil {
		fmt.Printf("  [WARN] could not list models: %v\n\n", err)

		return
	}

	fmt.Printf("  [ OK ] %d models installed\n", len(installed))

	for _, model := range installed {
		fmt.Printf("         %-30s %s\n", model.Name, models.FormatSize(model.Size))
	}

	catalog, err := loadCatalogOrDefault(cfg.Models.CatalogPath)
	if err != nil {
		fmt.Printf("  [WARN] %v\n\n", err)

		return
	}

	recommended := catalog.RecommendFor(info.MemoryTotalBytes)
	if len(recommended) > 0 {
		fmt.Println("  Recommended for this machine:")

		for _, model := range recommended {
			fmt.Printf("         %-30s %s RAM, %s\n", model.Name, model.RAMRequired, model.Priority)
		}
	}

	fmt.Println()
}

// checkWorkspace verifies the benchmark repository and results directory.
func checkWorkspace(ctx context.Context, repoDir, resultsDir string) {
	fmt.Println("Workspace:")

	gitClient := git.NewClient(repoDir)

	revision, err := gitClient.CurrentRevision(ctx)
	if err != nil {
		fmt.Printf("  [FAIL] %s is not a usable git repository: %v\n", repoDir, err)
	} else {
		dirty, _ := gitClient.IsDirty(ctx)

		state := "clean"
		if dirty {
			state = "dirty"
		}

		fmt.Printf("  [ OK ] repository %s at %.12s (%s)\n", repoDir, revision, state)
	}

	if info, err := os.Stat(resultsDir); err != nil {
		fmt.Printf("  [INFO] results directory %s will be created on first run\n", resultsDir)
	} else if !info.IsDir() {
		fmt.Printf("  [FAIL] results path %s exists but is not a directory\n", resultsDir)
	} else {
		fmt.Printf("  [ OK ] results directory %s\n", resultsDir)
	}

	fmt.Println()
}

// checkTasks verifies the task directory has something to run.
func checkTasks(tasksDir string) {
	fmt.Println("Tasks:")

	taskList, err := tasks.Discover(tasksDir)

	switch {
	case err != nil:
		fmt.Printf("  [FAIL] %v\n", err)
	case len(taskList) == 0:
		fmt.Printf("  [WARN] no tasks under %s\n", tasksDir)
	default:
		counts := make(map[string]int, 3)
		for _, task := range taskList {
			counts[task.Difficulty]++
		}

		fmt.Printf("  [ OK ] %d tasks (%d easy, %d medium, %d hard)\n",
			len(taskList), counts["easy"], counts["medium"], counts["hard"])
	}

	fmt.Println()
}
