package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// outputTailLimit bounds how much tool output a step result carries. The
// full output always goes to the step log file.
const outputTailLimit = 4096

// BuildExecutor runs pipeline steps. In-process steps run through their
// Run function; command steps shell out to the tool resolved through the
// ToolResolver, with output captured to a per-step log file.
type BuildExecutor struct {
	tools  ToolResolver
	logDir string
	logger zerolog.Logger
}

// NewBuildExecutor creates an executor. logDir may be empty, in which case
// tool output is only kept in the result tail.
func NewBuildExecutor(tools ToolResolver, logDir string, logger zerolog.Logger) *BuildExecutor {
	return &BuildExecutor{
		tools:  tools,
		logDir: logDir,
		logger: logger.With().Str("component", "executor").Logger(),
	}
}

// ExecuteStep implements Executor.
func (e *BuildExecutor) ExecuteStep(ctx context.Context, step *Step) (*StepResult, error) {
	result := &StepResult{
		StepID:    step.ID,
		Status:    StepStatusRunning,
		StartedAt: time.Now(),
	}

	var err error
	if step.Run != nil {
		err = e.executeFunc(ctx, step, result)
	} else {
		err = e.executeCommand(ctx, step, result)
	}

	result.CompletedAt = time.Now()
	result.Duration = result.CompletedAt.Sub(result.StartedAt)

	if err != nil {
		perr := classifyStepError(err, step)
		result.Status = StepStatusFailed
		if perr.ExitCode != 0 {
			result.ExitCode = perr.ExitCode
		}
		result.Error = perr
		return result, perr
	}

	result.Status = StepStatusSucceeded
	return result, nil
}

// executeFunc runs an in-process step.
func (e *BuildExecutor) executeFunc(ctx context.Context, step *Step, result *StepResult) error {
	e.logger.Debug().
		Str("step", step.ID).
		Str("kind", string(step.Kind)).
		Msg("Running in-process step")

	return step.Run(ctx, result)
}

// executeCommand runs a command step via the resolved tool.
func (e *BuildExecutor) executeCommand(ctx context.Context, step *Step, result *StepResult) error {
	if step.Tool == "" {
		return NewPermanentError("step has neither a run function nor a tool", nil).
			WithCode(ErrCodeValidation)
	}

	toolPath, err := e.tools.Resolve(ctx, step.Tool)
	if err != nil {
		return NewPermanentError(fmt.Sprintf("tool %s is not available", step.Tool), err).
			WithCode(ErrCodeToolMissing)
	}

	cmd := exec.CommandContext(ctx, toolPath, step.Args...)
	cmd.Dir = step.Dir
	cmd.Env = append(os.Environ(), step.Env...)

	tail := newTailBuffer(outputTailLimit)
	var sink io.Writer = tail
	if e.logDir != "" {
		if logFile, logErr := e.openLogFile(step.ID); logErr == nil {
			defer logFile.Close()
			sink = io.MultiWriter(logFile, tail)
			result.LogPath = logFile.Name()
		} else {
			e.logger.Warn().Err(logErr).Str("step", step.ID).Msg("Could not open step log file")
		}
	}
	cmd.Stdout = sink
	cmd.Stderr = sink

	e.logger.Debug().
		Str("step", step.ID).
		Str("tool", toolPath).
		Strs("args", step.Args).
		Msg("Running tool")

	runErr := cmd.Run()
	result.Output = tail.String()

	if runErr == nil {
		result.ExitCode = 0
		return nil
	}

	// Distinguish a deadline or cancellation from a genuine tool failure,
	// so the retry logic sees the right classification.
	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return NewTransientError(fmt.Sprintf("%s timed out", step.Tool), ctxErr).
				WithCode(ErrCodeTimeout)
		}
		return NewPermanentError(fmt.Sprintf("%s was cancelled", step.Tool), ctxErr).
			WithCode(ErrCodeCancelled)
	}

	var exitErr *exec.ExitError
	if errors.As(runErr, &exitErr) {
		code := exitErr.ExitCode()
		result.ExitCode = code
		return NewPermanentError(fmt.Sprintf("%s exited with code %d", step.Tool, code), runErr).
			WithCode(ErrCodeToolFailed).
			WithExitCode(code)
	}

	return NewPermanentError(fmt.Sprintf("failed to run %s", step.Tool), runErr).
		WithCode(ErrCodeInternal)
}

// openLogFile creates the per-step log file under the executor's log
// directory.
func (e *BuildExecutor) openLogFile(stepID string) (*os.File, error) {
	if err := os.MkdirAll(e.logDir, 0o755); err != nil {
		return nil, err
	}
	return os.Create(filepath.Join(e.logDir, stepLogName(stepID)))
}

// stepLogName flattens a step ID into a file name.
func stepLogName(stepID string) string {
	return strings.ReplaceAll(stepID, "/", "-") + ".log"
}

// classifyStepError ensures the error carries the step context and a
// classification the scheduler can act on.
func classifyStepError(err error, step *Step) *PipelineError {
	var perr *PipelineError
	if errors.As(err, &perr) {
		if perr.Step == "" {
			perr.Step = step.ID
		}
		if perr.Operation == "" {
			perr.Operation = string(step.Kind)
		}
		return perr
	}

	return NewPermanentError("step failed", err).
		WithStep(step.ID).
		WithOperation(string(step.Kind)).
		WithCode(ErrCodeInternal)
}

// tailBuffer keeps the last limit bytes written to it. Safe for concurrent
// writes because a command's stdout and stderr share one buffer.
type tailBuffer struct {
	mu    sync.Mutex
	buf   []byte
	limit int
}

func newTailBuffer(limit int) *tailBuffer {
	return &tailBuffer{limit: limit}
}

// Write implements io.Writer.
func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.buf = append(t.buf, p...)
	if len(t.buf) > t.limit {
		t.buf = t.buf[len(t.buf)-t.limit:]
	}
	return len(p), nil
}

// String returns the buffered tail.
func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}
