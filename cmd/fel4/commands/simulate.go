package commands

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fel4os/fel4/pkg/pipeline"
	"github.com/fel4os/fel4/pkg/simulate"
)

// newSimulateCommand builds a selection and boots the image under QEMU.
func newSimulateCommand() *cobra.Command {
	var (
		targetFlag   string
		platformFlag string
		profileFlag  string
		memory       string
		qmpSocket    string
		graphic      bool
		qemuArgs     []string
	)

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Build an image and boot it under QEMU",
		Long: `Simulate runs the build pipeline for a single selection and appends a
simulation step that boots the staged image under the platform's QEMU
system emulator. The guest serial console is attached to the terminal;
the command blocks until the guest exits or the run is interrupted.

With --qmp-socket the emulator exposes a QMP control socket, which the
status and stop subcommands talk to from another terminal.`,
		Example: `  # Build and boot the default selection
  fel4 simulate

  # Boot with more guest memory and a control socket
  fel4 simulate --memory 2048M --qmp-socket /tmp/fel4-qmp.sock

  # Pass extra arguments through to QEMU
  fel4 simulate --qemu-arg -d --qemu-arg int`,
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

			tel, err := openTelemetry(app)
			if err != nil {
				return err
			}
			defer shutdownTelemetry(tel)

			sim := simulate.NewSimulator(app.prober, simulate.Options{
				Memory:    memory,
				QMPSocket: qmpSocket,
				Graphic:   graphic,
				ExtraArgs: qemuArgs,
			})

			log.Info().
				Str("manifest", path).
				Str("selection", sel.String()).
				Msg("Starting simulation build")

			return runPipeline(ctx, app, tel, m, path, pipelineOptions{
				selections: []pipeline.Selection{sel},
				simulate:   sim.Hook(),
			})
		},
	}

	cmd.Flags().StringVarP(&targetFlag, "target", "t", "", "Target triple to simulate")
	cmd.Flags().StringVarP(&platformFlag, "platform", "p", "", "Platform to simulate")
	cmd.Flags().StringVar(&profileFlag, "profile", "", "Build profile")
	cmd.Flags().StringVar(&memory, "memory", "", "Guest memory size, e.g. 2048M")
	cmd.Flags().StringVar(&qmpSocket, "qmp-socket", "", "Expose a QMP control socket at this path")
	cmd.Flags().BoolVar(&graphic, "graphic", false, "Enable the QEMU display instead of the serial console")
	cmd.Flags().StringArrayVar(&qemuArgs, "qemu-arg", nil, "Extra argument passed through to QEMU (repeatable)")

	cmd.AddCommand(newSimulateStatusCommand())
	cmd.AddCommand(newSimulateStopCommand())

	return cmd
}

// newSimulateStatusCommand queries a running simulation over QMP.
func newSimulateStatusCommand() *cobra.Command {
	var qmpSocket string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Query a running simulation over its QMP socket",
		Example: `  # Check whether the guest is running
  fel4 simulate status --qmp-socket /tmp/fel4-qmp.sock`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sim := simulate.NewSimulator(nil, simulate.Options{QMPSocket: qmpSocket})
			status, err := sim.Status(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOutput {
				return renderJSON(status)
			}
			fmt.Printf("Guest status: %s (running: %t)\n", status.Status, status.Running)
			return nil
		},
	}

	cmd.Flags().StringVar(&qmpSocket, "qmp-socket", "", "QMP socket of the running simulation")
	cmd.MarkFlagRequired("qmp-socket")

	return cmd
}

// newSimulateStopCommand quits a running simulation over QMP.
func newSimulateStopCommand() *cobra.Command {
	var qmpSocket string

	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop a running simulation over its QMP socket",
		Example: `  # Quit the emulator
  fel4 simulate stop --qmp-socket /tmp/fel4-qmp.sock`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sim := simulate.NewSimulator(nil, simulate.Options{QMPSocket: qmpSocket})
			if err := sim.Shutdown(cmd.Context()); err != nil {
				return err
			}
			fmt.Println("Simulation stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&qmpSocket, "qmp-socket", "", "QMP socket of the running simulation")
	cmd.MarkFlagRequired("qmp-socket")

	return cmd
}
