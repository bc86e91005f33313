package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jdtzmn/port/pkg/adapter"
	"github.com/jdtzmn/port/pkg/workerentry"
)

// workerCmd is the §4.K entry point: pkg/adapter.LocalAdapter.Start spawns
// this with PORT_TASK_ID/PORT_REPO/PORT_WORKTREE set in its environment and the
// process's working directory already set to the task's worktree.
var workerCmd = &cobra.Command{
	Use:    "worker",
	Short:  "Run a single task to completion (invoked by the local adapter)",
	Hidden: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		taskID, _ := cmd.Flags().GetString("task")
		if taskID == "" {
			taskID = os.Getenv(adapter.EnvTaskID)
		}
		if taskID == "" {
			return fmt.Errorf("worker: no task id given (--task or %s)", adapter.EnvTaskID)
		}

		repo := os.Getenv(adapter.EnvRepo)
		if repo == "" {
			return fmt.Errorf("worker: %s is not set", adapter.EnvRepo)
		}

		worktree := os.Getenv(adapter.EnvWorktree)
		if worktree == "" {
			var err error
			worktree, err = os.Getwd()
			if err != nil {
				return err
			}
		}

		return workerentry.Run(context.Background(), repo, taskID, worktree)
	},
}

func init() {
	workerCmd.Flags().String("task", "", "Task id to run (defaults to "+adapter.EnvTaskID+")")
}
