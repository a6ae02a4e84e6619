// Package cmd provides the CLI commands for knowdiskd.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/knowdisk/knowdisk/internal/profiling"
	"github.com/knowdisk/knowdisk/pkg/version"
)

var (
	profileCPU string
	profileMem string
	profiler   = profiling.NewProfiler()
	cpuCleanup func()
)

// NewRootCmd creates the root command for the knowdiskd CLI.
func NewRootCmd() *cobra.Command {
	var root string

	cmd := &cobra.Command{
		Use:     "knowdiskd",
		Short:   "Local-first knowledge indexer and hybrid retrieval engine",
		Version: version.Version,
	}
	cmd.SetVersionTemplate("knowdiskd version {{.Version}}\n")
	cmd.PersistentFlags().StringVar(&root, "root", ".", "source root to index and watch")
	cmd.PersistentFlags().StringVar(&profileCPU, "profile-cpu", "", "write CPU profile to file")
	cmd.PersistentFlags().StringVar(&profileMem, "profile-mem", "", "write memory profile to file")
	cmd.PersistentPreRunE = startProfiling
	cmd.PersistentPostRunE = stopProfiling

	cmd.AddCommand(newIndexCmd(&root))
	cmd.AddCommand(newWatchCmd(&root))
	cmd.AddCommand(newReconcileCmd(&root))
	cmd.AddCommand(newSearchCmd(&root))
	cmd.AddCommand(newServeCmd(&root))

	return cmd
}

func startProfiling(_ *cobra.Command, _ []string) error {
	if profileCPU == "" {
		return nil
	}
	cleanup, err := profiler.StartCPU(profileCPU)
	if err != nil {
		return fmt.Errorf("start CPU profile: %w", err)
	}
	cpuCleanup = cleanup
	return nil
}

func stopProfiling(_ *cobra.Command, _ []string) error {
	if cpuCleanup != nil {
		cpuCleanup()
		cpuCleanup = nil
	}
	if profileMem != "" {
		if err := profiler.WriteHeap(profileMem); err != nil {
			return fmt.Errorf("write memory profile: %w", err)
		}
	}
	return nil
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
