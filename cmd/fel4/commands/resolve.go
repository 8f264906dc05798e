package commands

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fel4os/fel4/pkg/manifest"
)

// newResolveCommand resolves the layered manifest for one triple and
// prints the flattened configuration.
func newResolveCommand() *cobra.Command {
	var (
		targetFlag   string
		platformFlag string
		profileFlag  string
		outputFormat string
	)

	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Resolve the manifest for a target, platform, and profile",
		Long: `Resolve flattens the layered fel4.toml manifest into the effective
configuration for a single target/platform/profile triple.

Layers are applied in order:
  [global]       base properties for every build
  [<target>]     target-specific overrides
  [<platform>]   platform-specific overrides
  [<profile>]    profile-specific overrides

A later layer replaces a property wholesale; values never merge. Unset
flags fall back to the defaults declared in the [fel4] header.`,
		Example: `  # Resolve using the manifest's declared defaults
  fel4 resolve

  # Resolve a specific triple
  fel4 resolve --target aarch64-sel4-fel4 --platform tx1 --profile release

  # Emit the resolved configuration as JSON
  fel4 resolve -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, path, err := loadManifest()
			if err != nil {
				return err
			}

			sel, err := selectionFromFlags(m, targetFlag, platformFlag, profileFlag)
			if err != nil {
				return err
			}

			log.Debug().
				Str("manifest", path).
				Str("selection", sel.String()).
				Msg("Resolving configuration")

			cfg, err := manifest.Resolve(m, sel.Target, sel.Platform, sel.Profile)
			if err != nil {
				return err
			}

			if jsonOutput && outputFormat == "text" {
				outputFormat = "json"
			}

			switch outputFormat {
			case "json":
				return renderJSON(cfg)
			case "yaml":
				return renderYAML(cfg)
			case "text":
				printResolved(cfg)
				return nil
			default:
				return fmt.Errorf("unknown output format: %s (expected text, json, or yaml)", outputFormat)
			}
		},
	}

	cmd.Flags().StringVarP(&targetFlag, "target", "t", "", "Target triple to resolve for")
	cmd.Flags().StringVarP(&platformFlag, "platform", "p", "", "Platform to resolve for")
	cmd.Flags().StringVar(&profileFlag, "profile", "", "Build profile to resolve for")
	cmd.Flags().StringVarP(&outputFormat, "output", "o", "text", "Output format (text, json, yaml)")

	return cmd
}

// printResolved renders the flattened configuration as an aligned table.
func printResolved(cfg *manifest.Fel4Config) {
	fmt.Printf("Target:         %s\n", cfg.Target)
	fmt.Printf("Platform:       %s\n", cfg.Platform)
	fmt.Printf("Build profile:  %s\n", cfg.BuildProfile)
	fmt.Printf("Artifact path:  %s\n", cfg.ArtifactPath)
	fmt.Printf("Target specs:   %s\n", cfg.TargetSpecsPath)

	names := cfg.PropertyNames()
	if len(names) == 0 {
		return
	}

	fmt.Println()
	fmt.Println("Properties:")
	width := 0
	for _, name := range names {
		if len(name) > width {
			width = len(name)
		}
	}
	for _, name := range names {
		value := cfg.Properties[name]
		fmt.Printf("  %-*s  %s\n", width, name, value.String())
	}
}
