package commands

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath   string
	manifestFlag string
	verbose      bool
	jsonOutput   bool

	// toolVersion is the running version, used when initializing telemetry.
	toolVersion string
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	toolVersion = version
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "fel4",
		Short: "fel4 - feL4 image build tool",
		Long: `fel4 builds, simulates, and deploys feL4 system images for seL4 targets.

A project's fel4.toml manifest declares build configuration in layers:
  [fel4]              selection defaults (reserved header, not a layer)
  [global]            properties shared by every build
  [x86_64-sel4-fel4]  per-target overrides (armv7, aarch64 likewise)
  [pc99]              per-platform overrides (sabre, tx1 likewise)
  [debug]             per-profile overrides (release likewise)

Resolution applies layers in precedence order: profile over platform over
target over global. Higher layers replace property values whole.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			}
		},
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "tool config file path")
	rootCmd.PersistentFlags().StringVarP(&manifestFlag, "manifest", "m", "", "fel4.toml manifest path (default: search upward from the current directory)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	// Add subcommands
	rootCmd.AddCommand(newResolveCommand())
	rootCmd.AddCommand(newTargetsCommand())
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newBuildCommand())
	rootCmd.AddCommand(newSimulateCommand())
	rootCmd.AddCommand(newDeployCommand())
	rootCmd.AddCommand(newHistoryCommand())
	rootCmd.AddCommand(newDoctorCommand())
	rootCmd.AddCommand(newInitCommand())
	rootCmd.AddCommand(newCleanCommand())

	return rootCmd
}
