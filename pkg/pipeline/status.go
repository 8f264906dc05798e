package pipeline

import (
	"encoding/json"
	"fmt"
)

// StepKind represents the kind of work a pipeline step performs.
type StepKind string

const (
	// StepKindResolve materializes the resolved configuration and prepares
	// the build workspace.
	StepKindResolve StepKind = "resolve"

	// StepKindGenerate renders build system inputs from the resolved
	// configuration, such as the CMake cache initialization script.
	StepKindGenerate StepKind = "generate"

	// StepKindToolchain invokes a native build tool (cmake, ninja).
	StepKindToolchain StepKind = "toolchain"

	// StepKindPackage stages build outputs into the artifact path with
	// checksums.
	StepKindPackage StepKind = "package"

	// StepKindSimulate boots a built image under an emulator.
	StepKindSimulate StepKind = "simulate"

	// StepKindDeploy transfers a built image to a development board.
	StepKindDeploy StepKind = "deploy"
)

// Validate checks if the step kind is valid.
func (k StepKind) Validate() error {
	switch k {
	case StepKindResolve, StepKindGenerate, StepKindToolchain,
		StepKindPackage, StepKindSimulate, StepKindDeploy:
		return nil
	default:
		return fmt.Errorf("invalid step kind: %s", k)
	}
}

// StepStatus represents the status of a pipeline step during execution.
type StepStatus string

const (
	// StepStatusPending indicates the step is waiting to execute.
	StepStatusPending StepStatus = "pending"

	// StepStatusRunning indicates the step is currently executing.
	StepStatusRunning StepStatus = "running"

	// StepStatusSucceeded indicates the step completed successfully.
	StepStatusSucceeded StepStatus = "succeeded"

	// StepStatusFailed indicates the step failed.
	StepStatusFailed StepStatus = "failed"

	// StepStatusSkipped indicates the step was skipped because a
	// dependency failed.
	StepStatusSkipped StepStatus = "skipped"

	// StepStatusCancelled indicates the step was cancelled.
	StepStatusCancelled StepStatus = "cancelled"
)

// IsTerminal returns true if the step status represents a final state.
func (s StepStatus) IsTerminal() bool {
	return s == StepStatusSucceeded || s == StepStatusFailed ||
		s == StepStatusSkipped || s == StepStatusCancelled
}

// IsActive returns true if the step is currently active.
func (s StepStatus) IsActive() bool {
	return s == StepStatusPending || s == StepStatusRunning
}

// Validate checks if the step status is valid.
func (s StepStatus) Validate() error {
	switch s {
	case StepStatusPending, StepStatusRunning, StepStatusSucceeded,
		StepStatusFailed, StepStatusSkipped, StepStatusCancelled:
		return nil
	default:
		return fmt.Errorf("invalid step status: %s", s)
	}
}

// RunStatus represents the overall status of a pipeline run.
type RunStatus string

const (
	// RunStatusPending indicates the run is queued but not yet started.
	RunStatusPending RunStatus = "pending"

	// RunStatusRunning indicates the run is currently executing.
	RunStatusRunning RunStatus = "running"

	// RunStatusSucceeded indicates the run completed successfully.
	RunStatusSucceeded RunStatus = "succeeded"

	// RunStatusFailed indicates the run failed with errors.
	RunStatusFailed RunStatus = "failed"

	// RunStatusCancelled indicates the run was cancelled.
	RunStatusCancelled RunStatus = "cancelled"

	// RunStatusPartial indicates the run partially succeeded (some
	// selections built, some failed).
	RunStatusPartial RunStatus = "partial"
)

// IsTerminal returns true if the run status represents a final state.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusSucceeded || s == RunStatusFailed ||
		s == RunStatusCancelled || s == RunStatusPartial
}

// IsActive returns true if the run is currently active (pending or running).
func (s RunStatus) IsActive() bool {
	return s == RunStatusPending || s == RunStatusRunning
}

// Validate checks if the run status is valid.
func (s RunStatus) Validate() error {
	switch s {
	case RunStatusPending, RunStatusRunning, RunStatusSucceeded,
		RunStatusFailed, RunStatusCancelled, RunStatusPartial:
		return nil
	default:
		return fmt.Errorf("invalid run status: %s", s)
	}
}

// MarshalJSON implements custom JSON marshaling for type-safe enum serialization.
func (s RunStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(s))
}

// UnmarshalJSON implements custom JSON unmarshaling with validation.
func (s *RunStatus) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	*s = RunStatus(str)
	return s.Validate()
}

// DependencyType represents how a step depends on another step.
type DependencyType string

const (
	// DependencyRequire means the dependency must succeed before this step
	// can run. A failed dependency skips the step.
	DependencyRequire DependencyType = "require"

	// DependencyOrder means this step runs after the dependency finishes
	// regardless of its outcome.
	DependencyOrder DependencyType = "order"
)

// Validate checks if the dependency type is valid.
func (d DependencyType) Validate() error {
	switch d {
	case DependencyRequire, DependencyOrder:
		return nil
	default:
		return fmt.Errorf("invalid dependency type: %s", d)
	}
}
