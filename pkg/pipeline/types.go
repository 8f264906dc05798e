package pipeline

import (
	"context"
	"time"

	"github.com/fel4os/fel4/pkg/manifest"
	"github.com/fel4os/fel4/pkg/stores"
)

// StepFunc is the body of an in-process step. The function may fill in
// result fields such as staged artifacts; the executor owns status and
// timing. Steps that shell out to a tool leave Run nil and set Tool and
// Args instead.
type StepFunc func(ctx context.Context, result *StepResult) error

// Dependency represents an edge from a step to one of its prerequisites.
type Dependency struct {
	// TargetID is the ID of the step this one depends on.
	TargetID string `json:"target_id"`

	// Type determines whether the dependency must succeed (require) or
	// merely finish (order).
	Type DependencyType `json:"type"`
}

// Step is a unit of work in the build pipeline DAG.
type Step struct {
	// ID uniquely identifies the step within a plan. The planner derives
	// it from the selection and the step name, for example
	// "armv7-sel4-fel4/sabre/debug/configure".
	ID string `json:"id"`

	// Name is the short step name within its build ("configure",
	// "compile", ...).
	Name string `json:"name"`

	// Kind classifies the work the step performs.
	Kind StepKind `json:"kind"`

	// BuildID ties the step to the build record of its selection.
	BuildID string `json:"build_id"`

	// Target, Platform, and Profile name the selection the step serves.
	Target   string `json:"target"`
	Platform string `json:"platform"`
	Profile  string `json:"profile"`

	// Tool is the executable a command step invokes, resolved through the
	// scheduler's ToolResolver. Empty for in-process steps.
	Tool string `json:"tool,omitempty"`

	// Args are the command line arguments for the tool.
	Args []string `json:"args,omitempty"`

	// Dir is the working directory for the tool. Empty means the current
	// directory.
	Dir string `json:"dir,omitempty"`

	// Env holds additional environment entries in KEY=VALUE form,
	// appended to the inherited environment.
	Env []string `json:"env,omitempty"`

	// Run is the body of an in-process step. Nil for command steps.
	Run StepFunc `json:"-"`

	// Dependencies lists the steps that must finish before this one.
	Dependencies []Dependency `json:"dependencies,omitempty"`

	// Status is the current execution status.
	Status StepStatus `json:"status"`

	// ExecutionOrder is the level in the execution graph (0-based).
	ExecutionOrder int `json:"execution_order"`

	// Retries is the number of retry attempts made so far.
	Retries int `json:"retries"`

	// MaxRetries is the maximum number of retries for retryable failures.
	MaxRetries int `json:"max_retries"`

	// Timeout is the maximum duration for a single execution attempt.
	Timeout time.Duration `json:"timeout"`

	// Result is the execution result, populated when the step finishes.
	Result *StepResult `json:"result,omitempty"`
}

// ArtifactInfo describes one file staged into the artifact path.
type ArtifactInfo struct {
	// Kind classifies the artifact (kernel, root-task, bootimage).
	Kind string `json:"kind"`

	// Path is the staged location of the artifact.
	Path string `json:"path"`

	// Size is the file size in bytes.
	Size int64 `json:"size"`

	// Checksum is the SHA-256 of the file contents, hex encoded.
	Checksum string `json:"checksum"`
}

// StepResult represents the outcome of executing a single step.
type StepResult struct {
	// StepID is the ID of the step that was executed.
	StepID string `json:"step_id"`

	// Status is the final execution status.
	Status StepStatus `json:"status"`

	// StartedAt is when execution began.
	StartedAt time.Time `json:"started_at"`

	// CompletedAt is when execution finished.
	CompletedAt time.Time `json:"completed_at"`

	// Duration is the total execution time.
	Duration time.Duration `json:"duration"`

	// ExitCode is the tool exit code for command steps, 0 for successful
	// in-process steps.
	ExitCode int `json:"exit_code"`

	// LogPath is the path of the captured tool output, if any.
	LogPath string `json:"log_path,omitempty"`

	// Output holds the tail of the captured output for quick diagnosis.
	Output string `json:"output,omitempty"`

	// ImagePath is the staged boot image, set by package steps.
	ImagePath string `json:"image_path,omitempty"`

	// ImageSize is the boot image size in bytes, set by package steps.
	ImageSize int64 `json:"image_size,omitempty"`

	// Artifacts lists every file the step staged.
	Artifacts []ArtifactInfo `json:"artifacts,omitempty"`

	// Error is the classified error if the step failed.
	Error *PipelineError `json:"error,omitempty"`
}

// BuildRecord ties the steps of one selection to its history row and the
// paths the steps agreed on at plan time.
//
// ImagePath and ImageSize are filled in by the package step. Steps of the
// same build run in dependency order, so simulate and deploy steps may read
// them safely.
type BuildRecord struct {
	// BuildID is the history row ID shared by every step of the selection.
	BuildID string `json:"build_id"`

	// Target, Platform, and Profile identify the selection.
	Target   manifest.SupportedTarget   `json:"target"`
	Platform manifest.SupportedPlatform `json:"platform"`
	Profile  manifest.BuildProfile      `json:"profile"`

	// Config is the resolved configuration for the selection.
	Config *manifest.Fel4Config `json:"config"`

	// ManifestPath is the manifest the configuration was resolved from.
	ManifestPath string `json:"manifest_path"`

	// BuildDir is the CMake binary directory for the selection.
	BuildDir string `json:"build_dir"`

	// StageDir is where the package step places finished artifacts.
	StageDir string `json:"stage_dir"`

	// CacheInitPath is where the generate step writes the cache
	// initialization script.
	CacheInitPath string `json:"cache_init_path"`

	// ImagePath is the staged boot image, available after packaging.
	ImagePath string `json:"image_path,omitempty"`

	// ImageSize is the staged boot image size in bytes.
	ImageSize int64 `json:"image_size,omitempty"`

	// Artifacts lists every staged file, available after packaging.
	Artifacts []ArtifactInfo `json:"artifacts,omitempty"`
}

// Plan is a complete execution plan for one or more selections.
type Plan struct {
	// ID uniquely identifies the plan.
	ID string `json:"id"`

	// CreatedAt is when the plan was created.
	CreatedAt time.Time `json:"created_at"`

	// Steps are the units of work in the plan.
	Steps []Step `json:"steps"`

	// Builds are the per-selection records the steps belong to.
	Builds []*BuildRecord `json:"builds"`

	// Graph is the execution DAG built from the steps.
	Graph *ExecutionGraph `json:"graph,omitempty"`

	// Summary provides plan statistics.
	Summary PlanSummary `json:"summary"`

	// Metadata contains additional plan information.
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// PlanSummary summarizes the contents of a plan.
type PlanSummary struct {
	// TotalSteps is the number of steps in the plan.
	TotalSteps int `json:"total_steps"`

	// Builds is the number of selections the plan covers.
	Builds int `json:"builds"`

	// Kinds counts the steps by kind.
	Kinds map[StepKind]int `json:"kinds,omitempty"`
}

// ExecutionGraph is the DAG of steps with computed execution levels.
type ExecutionGraph struct {
	// Nodes maps step IDs to graph nodes.
	Nodes map[string]*GraphNode `json:"nodes"`

	// Edges are the dependency edges between steps.
	Edges []GraphEdge `json:"edges"`

	// Roots are the step IDs with no dependencies.
	Roots []string `json:"roots"`

	// Depth is the number of execution levels.
	Depth int `json:"depth"`
}

// GraphNode is a node in the execution graph.
type GraphNode struct {
	// ID is the step ID.
	ID string `json:"id"`

	// Level is the execution level (0-based). Steps at the same level can
	// run in parallel.
	Level int `json:"level"`

	// Dependencies are the IDs of steps this node depends on.
	Dependencies []string `json:"dependencies"`

	// Dependents are the IDs of steps that depend on this node.
	Dependents []string `json:"dependents"`
}

// GraphEdge is a directed dependency edge in the execution graph.
type GraphEdge struct {
	// From is the prerequisite step ID.
	From string `json:"from"`

	// To is the dependent step ID.
	To string `json:"to"`

	// Type is the dependency type of the edge.
	Type DependencyType `json:"type"`
}

// Run is one execution of a plan.
type Run struct {
	// ID uniquely identifies the run.
	ID string `json:"id"`

	// PlanID is the plan that was executed.
	PlanID string `json:"plan_id"`

	// Status is the overall run status.
	Status RunStatus `json:"status"`

	// StartedAt is when the run began.
	StartedAt time.Time `json:"started_at"`

	// CompletedAt is when the run finished.
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Duration is the total run time.
	Duration time.Duration `json:"duration"`

	// Summary counts step outcomes.
	Summary RunSummary `json:"summary"`

	// Metadata contains additional run information.
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// RunSummary counts the step outcomes of a run.
type RunSummary struct {
	// Total is the number of steps in the run.
	Total int `json:"total"`

	// Succeeded is the number of steps that completed successfully.
	Succeeded int `json:"succeeded"`

	// Failed is the number of steps that failed.
	Failed int `json:"failed"`

	// Skipped is the number of steps skipped due to failed dependencies.
	Skipped int `json:"skipped"`

	// Cancelled is the number of steps cancelled mid-run.
	Cancelled int `json:"cancelled"`

	// Pending is the number of steps never scheduled, for example after a
	// fail-fast stop.
	Pending int `json:"pending"`
}

// Executor runs a single step to completion.
type Executor interface {
	// ExecuteStep executes one step and returns its result. The returned
	// error carries the retry classification for failed steps.
	ExecuteStep(ctx context.Context, step *Step) (*StepResult, error)
}

// ToolResolver locates host tools for command steps.
type ToolResolver interface {
	// Resolve returns the absolute path of the named tool or an error if
	// the tool is not available.
	Resolve(ctx context.Context, tool string) (string, error)
}

// Recorder persists build history as a run progresses. stores.Store
// satisfies it.
type Recorder interface {
	CreateBuild(ctx context.Context, build *stores.Build) error
	UpdateBuildStatus(ctx context.Context, id string, status stores.BuildStatus, err *string) error
	UpdateBuildArtifact(ctx context.Context, id string, artifactPath string, imageSize int64) error
	CreateStep(ctx context.Context, step *stores.Step) error
	UpdateStepStatus(ctx context.Context, id string, status stores.StepStatus, exitCode *int, err *string) error
	IncrementStepRetries(ctx context.Context, id string) error
	RecordArtifact(ctx context.Context, artifact *stores.Artifact) error
	AppendEvent(ctx context.Context, event *stores.Event) error
}

// EventSink receives pipeline lifecycle events. *telemetry.EventPublisher
// satisfies it.
type EventSink interface {
	PublishBuildStarted(buildID, target, platform, profile string) error
	PublishBuildCompleted(buildID, status string, duration time.Duration) error
	PublishBuildFailed(buildID, reason string) error
	PublishStepStarted(buildID, stepID, tool string) error
	PublishStepCompleted(buildID, stepID string, duration time.Duration) error
	PublishStepFailed(buildID, stepID, reason string) error
}
