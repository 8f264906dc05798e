package commands

import (
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fel4os/fel4/pkg/config"
	"github.com/fel4os/fel4/pkg/deploy"
	"github.com/fel4os/fel4/pkg/pipeline"
)

// newDeployCommand builds a selection and pushes the image to a board.
func newDeployCommand() *cobra.Command {
	var (
		targetFlag     string
		platformFlag   string
		profileFlag    string
		boardName      string
		inventoryPath  string
		skipVerify     bool
		skipPostDeploy bool
	)

	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Build an image and deploy it to a lab board",
		Long: `Deploy runs the build pipeline for a single selection and appends a
deploy step that uploads the staged boot image to a board over SSH.
After the upload is verified the board's post-deploy command runs, if
one is configured.

Boards come from a YAML inventory, looked up in this order: the
--inventory flag, the deploy.inventory setting of the tool
configuration, then boards.yaml next to the manifest. Every deployment
is recorded in build history.`,
		Example: `  # Build the default selection and deploy it
  fel4 deploy --board sabre-01

  # Deploy a release image without running the post-deploy command
  fel4 deploy --board tx1-shelf --profile release --skip-post-deploy

  # Use an explicit inventory file
  fel4 deploy --board sabre-01 --inventory ./lab/boards.yaml`,
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

			sel, err := selectionFromFlags(m, targetFlag, platformFlag, profileFlag)
			if err != nil {
				return err
			}

			invPath := inventoryPath
			if invPath == "" && app.cfg.Deploy.Inventory != "" {
				invPath = config.ExpandHome(app.cfg.Deploy.Inventory)
			}
			if invPath == "" {
				invPath = filepath.Join(filepath.Dir(path), deploy.InventoryFilename)
			}

			inv, err := deploy.LoadInventory(invPath)
			if err != nil {
				return err
			}
			board, err := inv.Board(boardName)
			if err != nil {
				return err
			}

			deployer, err := deploy.NewDeployer(board, app.store, deploy.Options{
				SkipVerify:     skipVerify,
				SkipPostDeploy: skipPostDeploy,
			})
			if err != nil {
				return err
			}

			tel, err := openTelemetry(app)
			if err != nil {
				return err
			}
			defer shutdownTelemetry(tel)

			log.Info().
				Str("manifest", path).
				Str("selection", sel.String()).
				Str("board", board.Name).
				Msg("Starting deployment build")

			return runPipeline(ctx, app, tel, m, path, pipelineOptions{
				selections: []pipeline.Selection{sel},
				deploy:     deployer.Hook(),
			})
		},
	}

	cmd.Flags().StringVarP(&targetFlag, "target", "t", "", "Target triple to deploy")
	cmd.Flags().StringVarP(&platformFlag, "platform", "p", "", "Platform to deploy")
	cmd.Flags().StringVar(&profileFlag, "profile", "", "Build profile")
	cmd.Flags().StringVarP(&boardName, "board", "b", "", "Board name from the inventory")
	cmd.Flags().StringVar(&inventoryPath, "inventory", "", "Path to the board inventory file")
	cmd.Flags().BoolVar(&skipVerify, "skip-verify", false, "Skip the post-upload checksum verification")
	cmd.Flags().BoolVar(&skipPostDeploy, "skip-post-deploy", false, "Skip the board's post-deploy command")
	cmd.MarkFlagRequired("board")

	return cmd
}
