package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/fel4os/fel4/pkg/stores"
)

const historyTimeFormat = "2006-01-02 15:04:05"

// newHistoryCommand groups the build history subcommands.
func newHistoryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect recorded builds and deployments",
		Long: `History queries the local build store. Every pipeline run records its
builds, steps, staged artifacts, and deployments; these subcommands
list and show them, and prune old rows.`,
		Example: `  # List recent builds
  fel4 history list

  # Show one build with its steps and artifacts
  fel4 history show 4f1c9f5e-8932-4f3a-9c41-2b1a0d3f7ab2

  # Keep the 20 most recent builds, drop the rest
  fel4 history prune --keep 20`,
	}

	cmd.AddCommand(newHistoryListCommand())
	cmd.AddCommand(newHistoryShowCommand())
	cmd.AddCommand(newHistoryDeploymentsCommand())
	cmd.AddCommand(newHistoryPruneCommand())

	return cmd
}

// newHistoryListCommand lists recorded builds, newest first.
func newHistoryListCommand() *cobra.Command {
	var (
		targetFlag   string
		platformFlag string
		profileFlag  string
		limit        int
		offset       int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded builds",
		Example: `  # The twenty most recent builds
  fel4 history list

  # Builds of one platform
  fel4 history list --platform sabre`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			app, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer app.Close()

			builds, err := app.store.ListBuilds(ctx,
				optional(targetFlag), optional(platformFlag), optional(profileFlag),
				limit, offset)
			if err != nil {
				return err
			}

			if jsonOutput {
				return renderJSON(builds)
			}

			if len(builds) == 0 {
				fmt.Println("No builds recorded")
				return nil
			}

			fmt.Printf("%-36s  %-40s  %-10s  %-19s  %s\n",
				"ID", "SELECTION", "STATUS", "STARTED", "DURATION")
			for _, b := range builds {
				fmt.Printf("%-36s  %-40s  %-10s  %-19s  %s\n",
					b.ID,
					fmt.Sprintf("%s/%s/%s", b.Target, b.Platform, b.Profile),
					b.Status,
					b.StartedAt.Format(historyTimeFormat),
					buildDuration(b))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&targetFlag, "target", "t", "", "Filter by target")
	cmd.Flags().StringVarP(&platformFlag, "platform", "p", "", "Filter by platform")
	cmd.Flags().StringVar(&profileFlag, "profile", "", "Filter by build profile")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of builds to list")
	cmd.Flags().IntVar(&offset, "offset", 0, "Number of builds to skip")

	return cmd
}

// newHistoryShowCommand shows one build with its steps and artifacts.
func newHistoryShowCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <build-id>",
		Short: "Show a build with its steps and artifacts",
		Example: `  # Show a build by ID
  fel4 history show 4f1c9f5e-8932-4f3a-9c41-2b1a0d3f7ab2`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			app, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer app.Close()

			build, err := app.store.GetBuild(ctx, args[0])
			if err != nil {
				return err
			}
			steps, err := app.store.ListStepsByBuild(ctx, build.ID)
			if err != nil {
				return err
			}
			artifacts, err := app.store.ListArtifactsByBuild(ctx, build.ID)
			if err != nil {
				return err
			}

			if jsonOutput {
				return renderJSON(struct {
					Build     *stores.Build      `json:"build"`
					Steps     []*stores.Step     `json:"steps"`
					Artifacts []*stores.Artifact `json:"artifacts"`
				}{build, steps, artifacts})
			}

			printBuild(build, steps, artifacts)
			return nil
		},
	}

	return cmd
}

// newHistoryDeploymentsCommand lists recorded deployments.
func newHistoryDeploymentsCommand() *cobra.Command {
	var (
		boardFlag string
		limit     int
		offset    int
	)

	cmd := &cobra.Command{
		Use:   "deployments",
		Short: "List recorded deployments",
		Example: `  # Recent deployments across all boards
  fel4 history deployments

  # Deployments to one board
  fel4 history deployments --board sabre-01`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			app, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer app.Close()

			deployments, err := app.store.ListDeployments(ctx, optional(boardFlag), limit, offset)
			if err != nil {
				return err
			}

			if jsonOutput {
				return renderJSON(deployments)
			}

			if len(deployments) == 0 {
				fmt.Println("No deployments recorded")
				return nil
			}

			fmt.Printf("%-36s  %-16s  %-12s  %-19s  %s\n",
				"ID", "BOARD", "STATUS", "STARTED", "IMAGE")
			for _, d := range deployments {
				fmt.Printf("%-36s  %-16s  %-12s  %-19s  %s\n",
					d.ID, d.Board, d.Status,
					d.StartedAt.Format(historyTimeFormat),
					d.ImagePath)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&boardFlag, "board", "b", "", "Filter by board name")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of deployments to list")
	cmd.Flags().IntVar(&offset, "offset", 0, "Number of deployments to skip")

	return cmd
}

// newHistoryPruneCommand deletes all but the most recent builds.
func newHistoryPruneCommand() *cobra.Command {
	var keep int

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete all but the most recent builds",
		Long: `Prune removes old build rows together with their steps, artifacts,
events, and deployments. The most recent builds are kept.`,
		Example: `  # Keep the 50 most recent builds
  fel4 history prune

  # Keep only the last 10
  fel4 history prune --keep 10`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			app, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer app.Close()

			pruned, err := app.store.PruneBuilds(ctx, keep)
			if err != nil {
				return err
			}

			fmt.Printf("Pruned %d builds\n", pruned)
			return nil
		},
	}

	cmd.Flags().IntVar(&keep, "keep", 50, "Number of recent builds to keep")

	return cmd
}

// printBuild renders one build with its steps and artifacts.
func printBuild(build *stores.Build, steps []*stores.Step, artifacts []*stores.Artifact) {
	fmt.Printf("Build:      %s\n", build.ID)
	fmt.Printf("Selection:  %s/%s/%s\n", build.Target, build.Platform, build.Profile)
	fmt.Printf("Status:     %s\n", build.Status)
	fmt.Printf("Manifest:   %s\n", build.ManifestPath)
	fmt.Printf("Started:    %s\n", build.StartedAt.Format(historyTimeFormat))
	if build.CompletedAt != nil {
		fmt.Printf("Completed:  %s (%s)\n",
			build.CompletedAt.Format(historyTimeFormat), buildDuration(build))
	}
	if build.ArtifactPath != nil {
		fmt.Printf("Artifacts:  %s\n", *build.ArtifactPath)
	}
	if build.ImageSize != nil {
		fmt.Printf("Image size: %s\n", formatSize(*build.ImageSize))
	}
	if build.Error != nil {
		fmt.Printf("Error:      %s\n", *build.Error)
	}

	if len(steps) > 0 {
		fmt.Println()
		fmt.Println("Steps:")
		for _, s := range steps {
			line := fmt.Sprintf("  %-10s  %-10s", s.Name, s.Status)
			if s.ExitCode != nil && *s.ExitCode != 0 {
				line += fmt.Sprintf("  exit %d", *s.ExitCode)
			}
			if s.Error != nil {
				line += "  " + *s.Error
			}
			fmt.Println(line)
			if s.LogPath != nil {
				fmt.Printf("              log: %s\n", *s.LogPath)
			}
		}
	}

	if len(artifacts) > 0 {
		fmt.Println()
		fmt.Println("Artifacts:")
		for _, a := range artifacts {
			fmt.Printf("  %-10s  %-9s  %s\n", a.Kind, formatSize(a.Size), a.Path)
		}
	}
}

// buildDuration formats the wall time of a finished build.
func buildDuration(b *stores.Build) string {
	if b.CompletedAt == nil {
		return "-"
	}
	return b.CompletedAt.Sub(b.StartedAt).Round(time.Second).String()
}
