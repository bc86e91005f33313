package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jdtzmn/port/pkg/registry"
)

var registryCmd = &cobra.Command{
	Use:   "registry",
	Short: "Query the host-wide registry of active stacks and host services",
}

var registryProjectsCmd = &cobra.Command{
	Use:   "projects",
	Short: "List registered project stacks",
	RunE: func(cmd *cobra.Command, args []string) error {
		projects, err := registry.GetAllProjects()
		if err != nil {
			return err
		}
		if len(projects) == 0 {
			fmt.Println("no registered projects")
			return nil
		}
		fmt.Printf("%-40s %-20s %s\n", "REPO", "BRANCH", "PORTS")
		for _, p := range projects {
			fmt.Printf("%-40s %-20s %v\n", p.Repo, p.Branch, p.Ports)
		}
		return nil
	},
}

var registryHostServicesCmd = &cobra.Command{
	Use:   "host-services",
	Short: "List registered host-local auxiliary services",
	RunE: func(cmd *cobra.Command, args []string) error {
		services, err := registry.GetAllHostServices()
		if err != nil {
			return err
		}
		if len(services) == 0 {
			fmt.Println("no registered host services")
			return nil
		}
		fmt.Printf("%-40s %-20s %-8s %-8s %s\n", "REPO", "BRANCH", "LOGICAL", "ACTUAL", "PID")
		for _, s := range services {
			fmt.Printf("%-40s %-20s %-8d %-8d %d\n", s.Repo, s.Branch, s.LogicalPort, s.ActualPort, s.PID)
		}
		return nil
	},
}

var registrySweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Remove registry entries whose owning process is no longer alive",
	RunE: func(cmd *cobra.Command, args []string) error {
		return registry.Sweep()
	},
}

func init() {
	registryCmd.AddCommand(registryProjectsCmd)
	registryCmd.AddCommand(registryHostServicesCmd)
	registryCmd.AddCommand(registrySweepCmd)
}
