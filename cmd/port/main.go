package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jdtzmn/port/pkg/log"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "port",
	Short: "port - developer-workstation task scheduler and routing control plane",
	Long: `port runs scoped coding-agent tasks against a git repository and
exposes each worktree's services behind a shared local reverse proxy.`,
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(taskCmd)
	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(workerCmd)
	rootCmd.AddCommand(registryCmd)
	rootCmd.AddCommand(hostserviceCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}

// repoRoot resolves the repository a command operates against: the current
// working directory, unless overridden by --repo.
func repoRoot(cmd *cobra.Command) (string, error) {
	if repo, _ := cmd.Flags().GetString("repo"); repo != "" {
		return repo, nil
	}
	return os.Getwd()
}
