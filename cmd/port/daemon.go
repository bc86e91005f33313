package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jdtzmn/port/pkg/adapter"
	"github.com/jdtzmn/port/pkg/config"
	"github.com/jdtzmn/port/pkg/daemon"
	"github.com/jdtzmn/port/pkg/log"
	"github.com/jdtzmn/port/pkg/subscriber"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Scheduler daemon operations",
}

var daemonRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the scheduler daemon in the foreground",
	Long: `Run drives one repository's task scheduling loop until it is signaled
to stop or goes idle for its configured idle timeout. It is normally spawned
detached by pkg/daemon.EnsureRunning, not invoked directly.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, err := repoRoot(cmd)
		if err != nil {
			return err
		}

		watcher, err := config.NewWatcher(repo)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg := watcher.Current()

		baseBranch, _ := cmd.Flags().GetString("base-branch")

		d := daemon.New(daemon.Options{
			Repo:        repo,
			Adapter:     &adapter.LocalAdapter{Repo: repo, BaseBranch: baseBranch},
			Dispatcher:  subscriber.NewDispatcher(cfg.Subscribers),
			TaskTimeout: time.Duration(cfg.Task.TimeoutMs) * time.Millisecond,
			IdleTimeout: time.Duration(cfg.Task.IdleStopMs) * time.Millisecond,
		})

		return d.Run(context.Background())
	},
}

var daemonStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Wait for a repository's daemon to report itself alive",
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, err := repoRoot(cmd)
		if err != nil {
			return err
		}
		timeout, _ := cmd.Flags().GetDuration("timeout")
		if err := daemon.WaitUntilRunning(repo, timeout); err != nil {
			return err
		}
		fmt.Println("daemon is running")
		return nil
	},
}

var daemonEnsureCmd = &cobra.Command{
	Use:   "ensure",
	Short: "Spawn a detached daemon for this repository if one is not already running",
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, err := repoRoot(cmd)
		if err != nil {
			return err
		}
		alreadyRunning, err := daemon.EnsureRunning(repo, "")
		if err != nil {
			return err
		}
		if alreadyRunning {
			log.WithComponent("cli").Info().Str("repo", repo).Msg("daemon already running")
		} else {
			log.WithComponent("cli").Info().Str("repo", repo).Msg("daemon spawned")
		}
		return nil
	},
}

func init() {
	for _, cmd := range []*cobra.Command{daemonRunCmd, daemonStatusCmd, daemonEnsureCmd} {
		cmd.Flags().String("repo", "", "Repository path (defaults to the current directory)")
	}
	daemonRunCmd.Flags().String("base-branch", "main", "Branch new task worktrees are created from")
	daemonStatusCmd.Flags().Duration("timeout", 10*time.Second, "How long to wait for the daemon to come up")

	daemonCmd.AddCommand(daemonRunCmd)
	daemonCmd.AddCommand(daemonStatusCmd)
	daemonCmd.AddCommand(daemonEnsureCmd)
}
