package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fel4os/fel4/pkg/manifest"
	"github.com/fel4os/fel4/pkg/toolchain"
)

// newDoctorCommand probes the host toolchain and reports what is missing.
func newDoctorCommand() *cobra.Command {
	var targetNames []string

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check the host toolchain",
		Long: `Doctor probes the host for every tool the build pipeline needs: cmake,
ninja, the cross compilers, and the QEMU system emulators. Probes
bypass the cache, so the report always reflects the live host.

Without --target the report covers the tools of every supported
target; with it, only the named targets are checked. The command exits
non-zero when a required tool is missing.`,
		Example: `  # Check the tools of every supported target
  fel4 doctor

  # Check a single target's tools
  fel4 doctor --target aarch64-sel4-fel4`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			targets := make([]manifest.SupportedTarget, 0, len(targetNames))
			for _, name := range targetNames {
				target, err := manifest.ParseTarget(name)
				if err != nil {
					return err
				}
				targets = append(targets, target)
			}

			app, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer app.Close()

			report := toolchain.NewDoctor(app.prober).Check(ctx, targets...)

			if jsonOutput {
				if err := renderJSON(report); err != nil {
					return err
				}
			} else {
				printReport(report)
			}

			if missing := report.Missing(); len(missing) > 0 {
				return fmt.Errorf("%d required tools missing", len(missing))
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&targetNames, "target", "t", nil, "Target to check tools for (repeatable)")

	return cmd
}

// printReport renders one line per tool check.
func printReport(report *toolchain.Report) {
	for _, check := range report.Checks {
		switch {
		case check.Status == toolchain.CheckStatusFound:
			line := fmt.Sprintf("✓ %-24s %s", check.Tool, check.Path)
			if check.Version != "" {
				line += fmt.Sprintf(" (%s)", check.Version)
			}
			fmt.Println(line)
		case check.Optional:
			fmt.Printf("- %-24s not found (optional, %s)\n", check.Tool, check.Purpose)
		default:
			fmt.Printf("✗ %-24s not found (%s)\n", check.Tool, check.Purpose)
			if check.Detail != "" {
				fmt.Printf("    %s\n", check.Detail)
			}
		}
	}
}
