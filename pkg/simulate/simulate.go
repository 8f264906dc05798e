package simulate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fel4os/fel4/pkg/pipeline"
)

// Options tune the QEMU invocation and how the guest console is attached.
type Options struct {
	// Memory overrides the platform default guest memory size, e.g. "2048M".
	Memory string

	// QMPSocket, when set, exposes a QMP control socket at the given path.
	QMPSocket string

	// Graphic enables the QEMU display instead of the serial console.
	Graphic bool

	// ExtraArgs are appended verbatim to the QEMU command line.
	ExtraArgs []string

	// Stdin, Stdout, and Stderr attach the guest console. Unset streams
	// inherit the fel4 process streams.
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// Simulator boots packaged feL4 images under QEMU.
type Simulator struct {
	resolver pipeline.ToolResolver
	opts     Options
}

// NewSimulator creates a simulator. A nil resolver falls back to PATH
// lookup when the emulator is launched.
func NewSimulator(resolver pipeline.ToolResolver, opts Options) *Simulator {
	return &Simulator{resolver: resolver, opts: opts}
}

// Run boots the image for a packaged build and blocks until the guest
// exits or ctx is cancelled.
func (s *Simulator) Run(ctx context.Context, build *pipeline.BuildRecord) error {
	inv, err := BuildInvocation(build, s.opts)
	if err != nil {
		return err
	}
	return s.launch(ctx, build, inv)
}

// Hook adapts the simulator to a pipeline simulate step.
func (s *Simulator) Hook() pipeline.SimulateHook {
	return func(ctx context.Context, build *pipeline.BuildRecord, result *pipeline.StepResult) error {
		inv, err := BuildInvocation(build, s.opts)
		if err != nil {
			return err
		}
		result.Output = inv.String()
		return s.launch(ctx, build, inv)
	}
}

// Shutdown stops a running simulation over its QMP socket. seL4 guests do
// not honor ACPI powerdown, so this quits the emulator directly.
func (s *Simulator) Shutdown(ctx context.Context) error {
	client, err := s.dialQMP(ctx)
	if err != nil {
		return err
	}
	defer client.Close()
	return client.Quit(ctx)
}

// Status queries the run state of a running simulation.
func (s *Simulator) Status(ctx context.Context) (*GuestStatus, error) {
	client, err := s.dialQMP(ctx)
	if err != nil {
		return nil, err
	}
	defer client.Close()
	return client.Status(ctx)
}

func (s *Simulator) dialQMP(ctx context.Context) (*Client, error) {
	if s.opts.QMPSocket == "" {
		return nil, fmt.Errorf("no QMP socket configured")
	}
	return Dial(ctx, s.opts.QMPSocket)
}

// launch resolves the emulator binary and runs it to completion.
func (s *Simulator) launch(ctx context.Context, build *pipeline.BuildRecord, inv *Invocation) error {
	binary := inv.Binary
	if s.resolver != nil {
		path, err := s.resolver.Resolve(ctx, inv.Binary)
		if err != nil {
			return pipeline.NewPermanentError(
				fmt.Sprintf("simulator %s not available", inv.Binary), err).
				WithCode(pipeline.ErrCodeToolMissing)
		}
		binary = path
	}

	log.Info().
		Str("build_id", build.BuildID).
		Str("binary", binary).
		Strs("args", inv.Args).
		Msg("Starting simulation")

	cmd := exec.CommandContext(ctx, binary, inv.Args...)
	cmd.Stdin, cmd.Stdout, cmd.Stderr = os.Stdin, os.Stdout, os.Stderr
	if s.opts.Stdin != nil {
		cmd.Stdin = s.opts.Stdin
	}
	if s.opts.Stdout != nil {
		cmd.Stdout = s.opts.Stdout
	}
	if s.opts.Stderr != nil {
		cmd.Stderr = s.opts.Stderr
	}
	cmd.WaitDelay = 10 * time.Second

	if s.opts.QMPSocket != "" {
		// Prefer a clean monitor-driven exit over killing the emulator
		cmd.Cancel = func() error {
			qctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			if err := s.Shutdown(qctx); err == nil {
				return nil
			}
			return cmd.Process.Kill()
		}
	}

	err := cmd.Run()
	switch {
	case ctx.Err() != nil:
		return pipeline.NewPermanentError("simulation cancelled", ctx.Err()).
			WithCode(pipeline.ErrCodeCancelled)
	case err != nil:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return pipeline.NewPermanentError(
				fmt.Sprintf("simulator exited with code %d", exitErr.ExitCode()), err).
				WithCode(pipeline.ErrCodeToolFailed).
				WithExitCode(exitErr.ExitCode())
		}
		return pipeline.NewPermanentError("failed to start simulator", err).
			WithCode(pipeline.ErrCodeToolFailed)
	}

	log.Info().Str("build_id", build.BuildID).Msg("Simulation finished")
	return nil
}
