package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bdougie/vibe-check/pkg/tasks"
)

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "List the available benchmark tasks",
	RunE:  runTasks,
}

func init() {
	rootCmd.AddCommand(tasksCmd)
}

func runTasks(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	taskList, err := tasks.Discover(cfg.Benchmark.TasksDir)
	if err != nil {
		return fmt.Errorf("discovering tasks: %w", err)
	}

	if len(taskList) == 0 {
		log.WithField("dir", cfg.Benchmark.TasksDir).Info("No tasks found")

		return nil
	}

	current := ""

	for _, task := range taskList {
		if task.Difficulty != current {
			current = task.Difficulty

			fmt.Printf("\n%s:\n", current)
		}

		if task.Title != "" {
			fmt.Printf("  %-40s %s\n", task.Name, task.Title)
		} else {
			fmt.Printf("  %s\n", task.Name)
		}
	}

	fmt.Println()

	return nil
}
