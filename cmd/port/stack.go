package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jdtzmn/port/pkg/compose"
	"github.com/jdtzmn/port/pkg/config"
	"github.com/jdtzmn/port/pkg/override"
	"github.com/jdtzmn/port/pkg/registry"
	"github.com/jdtzmn/port/pkg/routing"
)

const proxyNetwork = "proxy"

// stackCmd groups operations over a single branch worktree's published
// services: generating its routing override and registering it with the
// shared reverse proxy.
var stackCmd = &cobra.Command{
	Use:   "stack",
	Short: "Manage a branch worktree's routed service stack",
}

var stackApplyCmd = &cobra.Command{
	Use:   "apply BRANCH",
	Short: "Generate BRANCH's override file and register its ports with the shared proxy",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		branch := args[0]
		repo, err := repoRoot(cmd)
		if err != nil {
			return err
		}
		worktree, _ := cmd.Flags().GetString("worktree")
		if worktree == "" {
			worktree = repo
		}

		cfg, err := config.Load(repo)
		if err != nil {
			return err
		}

		raw, err := os.ReadFile(filepath.Join(worktree, cfg.ComposePath))
		if err != nil {
			return fmt.Errorf("read compose file: %w", err)
		}
		doc, err := compose.Parse(raw)
		if err != nil {
			return fmt.Errorf("parse compose file: %w", err)
		}

		// Capture published ports before Generate replaces each service's
		// "ports" with an empty !override sequence.
		ports := publishedPorts(doc)

		override.Generate(doc, override.Options{
			Branch:         branch,
			Domain:         cfg.Domain,
			ProjectNetwork: branch + "_default",
			ProxyNetwork:   proxyNetwork,
		})

		out, err := doc.Marshal()
		if err != nil {
			return err
		}
		overridePath := filepath.Join(worktree, ".port", "override.yml")
		if err := os.MkdirAll(filepath.Dir(overridePath), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(overridePath, out, 0o644); err != nil {
			return err
		}

		globalDir, err := config.GlobalDir()
		if err != nil {
			return err
		}
		if err := routing.InitFiles(globalDir, cfg.TCPPorts); err != nil {
			return err
		}
		allPorts := append(append([]int{}, cfg.TCPPorts...), ports...)
		if _, err := routing.EnsurePorts(globalDir, allPorts); err != nil {
			return err
		}
		if err := registry.RegisterProject(repo, branch, ports); err != nil {
			return err
		}

		fmt.Printf("stack applied: %s -> %s\n", overridePath, ports)
		return nil
	},
}

var stackDownCmd = &cobra.Command{
	Use:   "down BRANCH",
	Short: "Unregister a branch's stack from the shared proxy",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		branch := args[0]
		repo, err := repoRoot(cmd)
		if err != nil {
			return err
		}
		if err := registry.UnregisterProject(repo, branch); err != nil {
			return err
		}
		fmt.Printf("stack down: %s\n", branch)
		return nil
	},
}

func publishedPorts(doc *compose.Document) []int {
	var ports []int
	for _, name := range doc.ServiceNames() {
		service := doc.Service(name)
		if service == nil {
			continue
		}
		for _, p := range compose.Ports(service) {
			ports = append(ports, p.Published)
		}
	}
	return compose.SortedInts(ports)
}

func init() {
	for _, cmd := range []*cobra.Command{stackApplyCmd, stackDownCmd} {
		cmd.Flags().String("repo", "", "Repository path (defaults to the current directory)")
	}
	stackApplyCmd.Flags().String("worktree", "", "Worktree path holding the compose file (defaults to --repo)")

	stackCmd.AddCommand(stackApplyCmd)
	stackCmd.AddCommand(stackDownCmd)
	rootCmd.AddCommand(stackCmd)
}
