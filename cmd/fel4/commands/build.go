package commands

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fel4os/fel4/pkg/manifest"
)

// newBuildCommand runs the build pipeline for one or more selections.
func newBuildCommand() *cobra.Command {
	var (
		targetFlag   string
		platformFlag string
		profileFlag  string
		selects      []string
		maxParallel  int
		failFast     bool
		dryRun       bool
		watch        bool
	)

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build feL4 images for one or more selections",
		Long: `Build resolves the manifest for each selection and runs the pipeline:
generate the CMake cache initialization script, configure, compile, and
stage the boot image into the artifact path.

Selections default to the [fel4] header. A build matrix is expressed
with repeated --select triples; independent selections run in parallel
up to the configured worker count. Every run is recorded in build
history.`,
		Example: `  # Build the manifest's default selection
  fel4 build

  # Build a specific triple
  fel4 build --target armv7-sel4-fel4 --platform sabre --profile release

  # Build a matrix of two selections
  fel4 build --select armv7-sel4-fel4/sabre/debug --select x86_64-sel4-fel4/pc99/debug

  # Plan without executing
  fel4 build --dry-run

  # Rebuild whenever the manifest changes
  fel4 build --watch`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			app, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer app.Close()

			m, path, err := loadManifest()
			if err != nil {
				return err
			}

			selections, err := buildSelections(m, selects, targetFlag, platformFlag, profileFlag)
			if err != nil {
				return err
			}

			tel, err := openTelemetry(app)
			if err != nil {
				return err
			}
			defer shutdownTelemetry(tel)

			opts := pipelineOptions{
				selections:  selections,
				maxParallel: maxParallel,
				failFast:    failFast,
				dryRun:      dryRun,
			}

			log.Info().
				Str("manifest", path).
				Int("selections", len(selections)).
				Bool("dry_run", dryRun).
				Msg("Starting build")

			if !watch {
				return runPipeline(ctx, app, tel, m, path, opts)
			}

			if err := runPipeline(ctx, app, tel, m, path, opts); err != nil {
				log.Error().Err(err).Msg("Build failed")
			}

			watcher := manifest.NewWatcher(tel.Logger.Zerolog(), path)
			err = watcher.Watch(ctx, func(reloaded *manifest.FullFel4Manifest) error {
				selections, err := buildSelections(reloaded, selects, targetFlag, platformFlag, profileFlag)
				if err != nil {
					return err
				}
				opts.selections = selections
				if err := runPipeline(ctx, app, tel, reloaded, path, opts); err != nil {
					log.Error().Err(err).Msg("Build failed")
				}
				return nil
			})
			if err != nil {
				return err
			}
			defer func() { _ = watcher.Stop() }()

			fmt.Printf("Watching %s for changes. Press Ctrl+C to stop.\n", path)
			<-ctx.Done()
			return nil
		},
	}

	cmd.Flags().StringVarP(&targetFlag, "target", "t", "", "Target triple to build")
	cmd.Flags().StringVarP(&platformFlag, "platform", "p", "", "Platform to build for")
	cmd.Flags().StringVar(&profileFlag, "profile", "", "Build profile")
	cmd.Flags().StringSliceVar(&selects, "select", nil, "Build matrix entry as target/platform/profile (repeatable)")
	cmd.Flags().IntVar(&maxParallel, "max-parallel", 0, "Maximum parallel steps (0 uses the configured default)")
	cmd.Flags().BoolVar(&failFast, "fail-fast", false, "Stop scheduling after the first failure")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the plan without executing it")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Rebuild whenever the manifest changes")

	return cmd
}
