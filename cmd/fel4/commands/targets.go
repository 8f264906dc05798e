package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fel4os/fel4/pkg/manifest"
)

// newTargetsCommand lists the closed sets of supported identifiers.
func newTargetsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "targets",
		Short: "List supported targets, platforms, and build profiles",
		Long: `Targets prints the closed identifier sets the tool understands. Manifest
section headers and command flags must come from these sets; anything
else is rejected during validation.`,
		Example: `  # List the supported identifiers
  fel4 targets

  # Emit the identifier sets as JSON
  fel4 targets --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if jsonOutput {
				return renderJSON(map[string][]string{
					"targets":        manifest.TargetNames(),
					"platforms":      manifest.PlatformNames(),
					"build_profiles": manifest.BuildProfileNames(),
				})
			}

			fmt.Println("Targets:")
			for _, name := range manifest.TargetNames() {
				fmt.Printf("  %s\n", name)
			}
			fmt.Println()
			fmt.Println("Platforms:")
			for _, name := range manifest.PlatformNames() {
				fmt.Printf("  %s\n", name)
			}
			fmt.Println()
			fmt.Println("Build profiles:")
			for _, name := range manifest.BuildProfileNames() {
				fmt.Printf("  %s\n", name)
			}
			return nil
		},
	}

	return cmd
}
