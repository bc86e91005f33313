package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jdtzmn/port/pkg/adapter"
	"github.com/jdtzmn/port/pkg/config"
	"github.com/jdtzmn/port/pkg/daemon"
	"github.com/jdtzmn/port/pkg/jobs"
	"github.com/jdtzmn/port/pkg/types"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Manage scheduled tasks",
}

var taskCreateCmd = &cobra.Command{
	Use:   "create TITLE",
	Short: "Queue a new task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, err := repoRoot(cmd)
		if err != nil {
			return err
		}
		branch, _ := cmd.Flags().GetString("branch")
		lockKey, _ := cmd.Flags().GetString("lock-key")
		write, _ := cmd.Flags().GetBool("write")

		mode := types.TaskModeRead
		if write {
			mode = types.TaskModeWrite
		}

		local := &adapter.LocalAdapter{Repo: repo}
		now := time.Now()
		task := &types.Task{
			ID:           uuid.NewString(),
			Title:        args[0],
			Mode:         mode,
			Status:       types.TaskStatusQueued,
			Branch:       branch,
			Adapter:      adapter.Name,
			Capabilities: local.Capabilities(),
			Queue:        types.QueueState{LockKey: lockKey},
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := jobs.CreateTask(repo, task); err != nil {
			return err
		}

		if _, err := daemon.EnsureRunning(repo, ""); err != nil {
			return fmt.Errorf("ensure daemon: %w", err)
		}

		fmt.Printf("queued task #%d (%s)\n", task.DisplayID, task.ID)
		return nil
	},
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks",
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, err := repoRoot(cmd)
		if err != nil {
			return err
		}
		index, err := jobs.LoadIndex(repo)
		if err != nil {
			return err
		}
		if len(index.Tasks) == 0 {
			fmt.Println("no tasks")
			return nil
		}
		fmt.Printf("%-6s %-10s %-8s %-20s %s\n", "ID", "STATUS", "MODE", "BRANCH", "TITLE")
		for _, t := range index.Tasks {
			fmt.Printf("%-6d %-10s %-8s %-20s %s\n", t.DisplayID, t.Status, t.Mode, t.Branch, t.Title)
		}
		return nil
	},
}

var taskShowCmd = &cobra.Command{
	Use:   "show REF",
	Short: "Show a single task's full state",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, err := repoRoot(cmd)
		if err != nil {
			return err
		}
		index, err := jobs.LoadIndex(repo)
		if err != nil {
			return err
		}
		task, err := jobs.ResolveTaskRef(index, args[0])
		if err != nil {
			return err
		}
		fmt.Printf("#%d %s\n", task.DisplayID, task.ID)
		fmt.Printf("  title:    %s\n", task.Title)
		fmt.Printf("  status:   %s\n", task.Status)
		fmt.Printf("  mode:     %s\n", task.Mode)
		fmt.Printf("  branch:   %s\n", task.Branch)
		fmt.Printf("  adapter:  %s\n", task.Adapter)
		fmt.Printf("  created:  %s\n", task.CreatedAt.Format(time.RFC3339))
		fmt.Printf("  updated:  %s\n", task.UpdatedAt.Format(time.RFC3339))
		if task.Queue.BlockedByTaskID != "" {
			fmt.Printf("  blocked by: %s\n", task.Queue.BlockedByTaskID)
		}
		if task.Runtime.RetainedForDebug {
			fmt.Printf("  worktree retained for debug: %s\n", task.Runtime.WorktreePath)
		}
		return nil
	},
}

var taskCancelCmd = &cobra.Command{
	Use:   "cancel REF",
	Short: "Cancel a task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, err := repoRoot(cmd)
		if err != nil {
			return err
		}
		index, err := jobs.LoadIndex(repo)
		if err != nil {
			return err
		}
		task, err := jobs.ResolveTaskRef(index, args[0])
		if err != nil {
			return err
		}
		if task.Status.IsTerminal() {
			fmt.Printf("task #%d is already %s\n", task.DisplayID, task.Status)
			return nil
		}

		local := &adapter.LocalAdapter{Repo: repo}
		if task.Status.NeedsLivenessProbe() {
			if err := local.Cancel(cmd.Context(), task); err != nil {
				return fmt.Errorf("cancel worker: %w", err)
			}
		}
		if err := jobs.PatchTask(repo, task.ID, func(t *types.Task) {
			t.Status = types.TaskStatusCancelled
			t.UpdatedAt = time.Now()
			t.Runtime.RetainedForDebug = true
		}); err != nil {
			return err
		}
		fmt.Printf("cancelled task #%d\n", task.DisplayID)
		return nil
	},
}

var taskLogsCmd = &cobra.Command{
	Use:   "logs REF",
	Short: "Show a task's events and stdout/stderr",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, err := repoRoot(cmd)
		if err != nil {
			return err
		}
		follow, _ := cmd.Flags().GetBool("follow")

		index, err := jobs.LoadIndex(repo)
		if err != nil {
			return err
		}
		task, err := jobs.ResolveTaskRef(index, args[0])
		if err != nil {
			return err
		}

		events, err := jobs.ReadTaskEvents(repo, task.ID)
		if err != nil {
			return err
		}
		for _, e := range events {
			fmt.Printf("%s  %s  %s\n", e.At.Format(time.RFC3339), e.Type, e.Message)
		}

		stdoutPath := filepath.Join(jobs.ArtifactsDir(repo, task.ID), "stdout.log")
		stderrPath := filepath.Join(jobs.ArtifactsDir(repo, task.ID), "stderr.log")
		if !follow {
			printIfExists(stdoutPath)
			printIfExists(stderrPath)
			return nil
		}
		if err := followTaskOutput(repo, task.ID, stdoutPath); err != nil {
			return err
		}
		printIfExists(stderrPath)
		return nil
	},
}

var taskGCCmd = &cobra.Command{
	Use:   "gc",
	Short: "Remove artifacts for cleaned tasks past their retention window",
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, err := repoRoot(cmd)
		if err != nil {
			return err
		}
		cfg, err := config.Load(repo)
		if err != nil {
			return err
		}
		retention := time.Duration(cfg.Task.ArtifactRetentionMs) * time.Millisecond

		index, err := jobs.LoadIndex(repo)
		if err != nil {
			return err
		}

		removed := 0
		for _, t := range index.Tasks {
			if t.Status != types.TaskStatusCleaned || t.Runtime.RetainedForDebug {
				continue
			}
			if t.Runtime.CleanedAt == nil || time.Since(*t.Runtime.CleanedAt) < retention {
				continue
			}
			dir := jobs.ArtifactsDir(repo, t.ID)
			if _, statErr := os.Stat(dir); statErr != nil {
				continue
			}
			if err := os.RemoveAll(dir); err != nil {
				fmt.Fprintf(os.Stderr, "gc: failed to remove artifacts for #%d: %v\n", t.DisplayID, err)
				continue
			}
			removed++
		}
		fmt.Printf("removed artifacts for %d task(s)\n", removed)
		return nil
	},
}

// followTaskOutput tails path, printing new bytes as they appear, until the
// task reaches a terminal status.
func followTaskOutput(repo, taskID, path string) error {
	printIfExists(path)

	var offset int64
	if info, err := os.Stat(path); err == nil {
		offset = info.Size()
	}

	ticker := time.NewTicker(300 * time.Millisecond)
	defer ticker.Stop()

	for range ticker.C {
		f, err := os.Open(path)
		if err == nil {
			if _, err := f.Seek(offset, io.SeekStart); err == nil {
				n, _ := io.Copy(os.Stdout, f)
				offset += n
			}
			f.Close()
		}

		index, err := jobs.LoadIndex(repo)
		if err != nil {
			return err
		}
		task, err := jobs.ResolveTaskRef(index, taskID)
		if err != nil {
			return err
		}
		if task.Status.IsTerminal() {
			return nil
		}
	}
	return nil
}

func printIfExists(path string) {
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		fmt.Println(scanner.Text())
	}
}

func init() {
	for _, cmd := range []*cobra.Command{taskCreateCmd, taskListCmd, taskShowCmd, taskCancelCmd, taskLogsCmd, taskGCCmd} {
		cmd.Flags().String("repo", "", "Repository path (defaults to the current directory)")
	}
	taskCreateCmd.Flags().String("branch", "", "Branch the task's worktree is created from/against")
	taskCreateCmd.Flags().String("lock-key", "", "Explicit branch-lock group (defaults to --branch)")
	taskCreateCmd.Flags().Bool("write", false, "Run in write mode (task may commit to its worktree)")

	taskLogsCmd.Flags().Bool("follow", false, "Keep tailing output until the task finishes")

	taskCmd.AddCommand(taskCreateCmd)
	taskCmd.AddCommand(taskListCmd)
	taskCmd.AddCommand(taskShowCmd)
	taskCmd.AddCommand(taskCancelCmd)
	taskCmd.AddCommand(taskLogsCmd)
	taskCmd.AddCommand(taskGCCmd)
}
