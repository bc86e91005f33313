package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jdtzmn/port/pkg/config"
	"github.com/jdtzmn/port/pkg/hostservice"
	"github.com/jdtzmn/port/pkg/registry"
)

var hostserviceCmd = &cobra.Command{
	Use:   "hostservice",
	Short: "Run host-local auxiliary processes behind the shared reverse proxy",
}

var hostserviceRunCmd = &cobra.Command{
	Use:   "run -- COMMAND [ARGS...]",
	Short: "Allocate a port, register a dynamic routing entry, and run COMMAND until it exits",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, err := repoRoot(cmd)
		if err != nil {
			return err
		}
		branch, _ := cmd.Flags().GetString("branch")
		logicalPort, _ := cmd.Flags().GetInt("port")
		domain, _ := cmd.Flags().GetString("domain")

		globalDir, err := config.GlobalDir()
		if err != nil {
			return err
		}

		exitCode, _ := hostservice.Run(context.Background(), hostservice.Options{
			Repo: repo, Branch: branch, LogicalPort: logicalPort, Domain: domain,
			Command: args, GlobalDir: globalDir,
		})
		os.Exit(exitCode)
		return nil
	},
}

var hostserviceStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop a registered host service from outside the process that started it",
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, err := repoRoot(cmd)
		if err != nil {
			return err
		}
		branch, _ := cmd.Flags().GetString("branch")
		logicalPort, _ := cmd.Flags().GetInt("port")
		grace, _ := cmd.Flags().GetDuration("grace-period")

		svc, err := registry.GetHostService(repo, branch, logicalPort)
		if err != nil {
			return err
		}
		if svc == nil {
			fmt.Println("no such host service registered")
			return nil
		}

		result, err := hostservice.StopHostService(*svc, grace)
		if err != nil {
			return err
		}
		fmt.Printf("stopped: %s\n", result)
		return nil
	},
}

func init() {
	for _, cmd := range []*cobra.Command{hostserviceRunCmd, hostserviceStopCmd} {
		cmd.Flags().String("repo", "", "Repository path (defaults to the current directory)")
		cmd.Flags().String("branch", "", "Branch this host service belongs to")
		cmd.Flags().Int("port", 0, "Logical port this host service is addressed as")
	}
	hostserviceRunCmd.Flags().String("domain", "port", "Base domain for the generated hostname route")
	hostserviceStopCmd.Flags().Duration("grace-period", 5*time.Second, "How long to wait after SIGTERM before SIGKILL")

	hostserviceCmd.AddCommand(hostserviceRunCmd)
	hostserviceCmd.AddCommand(hostserviceStopCmd)
}
