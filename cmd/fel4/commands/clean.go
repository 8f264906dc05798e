package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fel4os/fel4/pkg/manifest"
	"github.com/fel4os/fel4/pkg/pipeline"
)

// newCleanCommand removes staged artifacts and build directories.
func newCleanCommand() *cobra.Command {
	var (
		targetFlag   string
		platformFlag string
		profileFlag  string
		all          bool
		dryRun       bool
	)

	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove staged artifacts and build directories",
		Long: `Clean removes the per-selection stage directory under the manifest's
artifact path, including the CMake build directory inside it. Build
history is not touched; use 'fel4 history prune' for that.

Without --all only the selected triple is cleaned. With --all every
resolvable selection is cleaned.`,
		Example: `  # Clean the default selection
  fel4 clean

  # Clean a specific triple
  fel4 clean --target armv7-sel4-fel4 --platform sabre --profile debug

  # Clean every selection
  fel4 clean --all`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, path, err := loadManifest()
			if err != nil {
				return err
			}
			projectRoot := filepath.Dir(path)

			var selections []pipeline.Selection
			if all {
				if targetFlag != "" || platformFlag != "" || profileFlag != "" {
					return fmt.Errorf("--all cannot be combined with --target/--platform/--profile")
				}
				selections = allSelections()
			} else {
				sel, err := selectionFromFlags(m, targetFlag, platformFlag, profileFlag)
				if err != nil {
					return err
				}
				selections = []pipeline.Selection{sel}
			}

			removed := 0
			for _, sel := range selections {
				cfg, err := manifest.Resolve(m, sel.Target, sel.Platform, sel.Profile)
				if err != nil {
					if !all {
						return err
					}
					log.Debug().
						Err(err).
						Str("selection", sel.String()).
						Msg("Skipping unresolvable selection")
					continue
				}

				_, stageDir := pipeline.SelectionDirs(projectRoot, cfg, sel)
				gone, err := removeStageDir(projectRoot, stageDir, dryRun)
				if err != nil {
					return err
				}
				if gone {
					removed++
				}
			}

			if removed == 0 {
				fmt.Println("Nothing to clean")
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&targetFlag, "target", "t", "", "Target triple to clean")
	cmd.Flags().StringVarP(&platformFlag, "platform", "p", "", "Platform to clean")
	cmd.Flags().StringVar(&profileFlag, "profile", "", "Build profile to clean")
	cmd.Flags().BoolVar(&all, "all", false, "Clean every selection")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print what would be removed without removing it")

	return cmd
}

// removeStageDir deletes one stage directory. It refuses paths that would
// take the project root or the filesystem root with them.
func removeStageDir(projectRoot, stageDir string, dryRun bool) (bool, error) {
	cleaned := filepath.Clean(stageDir)
	if cleaned == "/" || cleaned == filepath.Clean(projectRoot) {
		return false, fmt.Errorf("refusing to remove %s", cleaned)
	}

	if _, err := os.Stat(cleaned); os.IsNotExist(err) {
		return false, nil
	}

	if dryRun {
		fmt.Printf("Would remove %s\n", cleaned)
		return true, nil
	}

	if err := os.RemoveAll(cleaned); err != nil {
		return false, fmt.Errorf("failed to remove %s: %w", cleaned, err)
	}
	fmt.Printf("✓ Removed %s\n", cleaned)
	return true, nil
}
