package stores

import (
	"context"
	"database/sql"
	"path/filepath"
	"time"
)

// BuildStatus represents the status of a build
type BuildStatus string

const (
	BuildStatusPending   BuildStatus = "pending"
	BuildStatusRunning   BuildStatus = "running"
	BuildStatusSucceeded BuildStatus = "succeeded"
	BuildStatusFailed    BuildStatus = "failed"
	BuildStatusCancelled BuildStatus = "cancelled"
)

// StepStatus represents the status of a pipeline step
type StepStatus string

const (
	StepStatusPending   StepStatus = "pending"
	StepStatusRunning   StepStatus = "running"
	StepStatusSucceeded StepStatus = "succeeded"
	StepStatusFailed    StepStatus = "failed"
	StepStatusSkipped   StepStatus = "skipped"
	StepStatusCancelled StepStatus = "cancelled"
)

// DeploymentStatus represents the status of a board deployment
type DeploymentStatus string

const (
	DeploymentStatusPending      DeploymentStatus = "pending"
	DeploymentStatusTransferring DeploymentStatus = "transferring"
	DeploymentStatusFlashing     DeploymentStatus = "flashing"
	DeploymentStatusVerified     DeploymentStatus = "verified"
	DeploymentStatusFailed       DeploymentStatus = "failed"
)

// EventLevel represents the severity level of an event
type EventLevel string

const (
	EventLevelDebug   EventLevel = "debug"
	EventLevelInfo    EventLevel = "info"
	EventLevelWarning EventLevel = "warning"
	EventLevelError   EventLevel = "error"
)

// Artifact kinds produced by the build pipeline.
const (
	ArtifactKindKernel    = "kernel"
	ArtifactKindRootTask  = "root-task"
	ArtifactKindBootImage = "bootimage"
)

// Build represents one invocation of the build pipeline for a single
// target/platform/profile selection
type Build struct {
	ID             string      `json:"id"`
	Target         string      `json:"target"`
	Platform       string      `json:"platform"`
	Profile        string      `json:"profile"`
	Status         BuildStatus `json:"status"`
	ManifestPath   string      `json:"manifest_path"`
	ResolvedConfig string      `json:"resolved_config"` // JSON blob of the flattened configuration
	ArtifactPath   *string     `json:"artifact_path,omitempty"`
	ImageSize      *int64      `json:"image_size,omitempty"`
	StartedAt      time.Time   `json:"started_at"`
	CompletedAt    *time.Time  `json:"completed_at,omitempty"`
	Error          *string     `json:"error,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// Step represents a single step in a build pipeline
type Step struct {
	ID          string     `json:"id"`
	BuildID     string     `json:"build_id"`
	Name        string     `json:"name"` // e.g. "configure-kernel", "compile-root-task"
	Tool        string     `json:"tool"` // e.g. "cmake", "ninja", "cargo"
	Status      StepStatus `json:"status"`
	ExitCode    *int       `json:"exit_code,omitempty"`
	LogPath     *string    `json:"log_path,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       *string    `json:"error,omitempty"`
	Retries     int        `json:"retries"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Artifact represents a file produced by a build
type Artifact struct {
	ID        string    `json:"id"`
	BuildID   string    `json:"build_id"`
	Kind      string    `json:"kind"`
	Path      string    `json:"path"`
	Size      int64     `json:"size"`
	Checksum  string    `json:"checksum"` // SHA256 of file contents
	CreatedAt time.Time `json:"created_at"`
}

// Deployment represents the transfer of a boot image to a board
type Deployment struct {
	ID          string           `json:"id"`
	BuildID     string           `json:"build_id"`
	Board       string           `json:"board"`
	Host        string           `json:"host"`
	ImagePath   string           `json:"image_path"`
	Status      DeploymentStatus `json:"status"`
	StartedAt   time.Time        `json:"started_at"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
	Error       *string          `json:"error,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// ToolProbe caches the result of locating a host tool so repeated
// environment checks skip the filesystem walk
type ToolProbe struct {
	ID        string     `json:"id"`
	Tool      string     `json:"tool"` // e.g. "cmake", "ninja", "qemu-system-x86_64"
	Path      string     `json:"path"`
	Version   string     `json:"version"`
	TTL       int        `json:"ttl"` // seconds, 0 = no expiry
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Event represents an append-only log event
type Event struct {
	ID        int64      `json:"id"`
	BuildID   *string    `json:"build_id,omitempty"`
	StepID    *string    `json:"step_id,omitempty"`
	Level     EventLevel `json:"level"`
	Message   string     `json:"message"`
	Details   *string    `json:"details,omitempty"` // JSON blob
	Timestamp time.Time  `json:"timestamp"`
}

// Store defines the interface for the build history layer
type Store interface {
	// Lifecycle
	Init(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error

	// Transaction support
	BeginTx(ctx context.Context) (*sql.Tx, error)
	CommitTx(tx *sql.Tx) error
	RollbackTx(tx *sql.Tx) error

	// Build operations
	CreateBuild(ctx context.Context, build *Build) error
	GetBuild(ctx context.Context, id string) (*Build, error)
	UpdateBuildStatus(ctx context.Context, id string, status BuildStatus, err *string) error
	UpdateBuildArtifact(ctx context.Context, id string, artifactPath string, imageSize int64) error
	ListBuilds(ctx context.Context, target *string, platform *string, profile *string, limit, offset int) ([]*Build, error)
	GetLatestBuild(ctx context.Context, target, platform, profile string) (*Build, error)
	DeleteBuild(ctx context.Context, id string) error
	PruneBuilds(ctx context.Context, keep int) (int64, error)

	// Step operations
	CreateStep(ctx context.Context, step *Step) error
	GetStep(ctx context.Context, id string) (*Step, error)
	UpdateStepStatus(ctx context.Context, id string, status StepStatus, exitCode *int, err *string) error
	ListStepsByBuild(ctx context.Context, buildID string) ([]*Step, error)
	IncrementStepRetries(ctx context.Context, id string) error

	// Artifact operations
	RecordArtifact(ctx context.Context, artifact *Artifact) error
	GetArtifact(ctx context.Context, buildID, kind string) (*Artifact, error)
	ListArtifactsByBuild(ctx context.Context, buildID string) ([]*Artifact, error)

	// Deployment operations
	CreateDeployment(ctx context.Context, deployment *Deployment) error
	GetDeployment(ctx context.Context, id string) (*Deployment, error)
	UpdateDeploymentStatus(ctx context.Context, id string, status DeploymentStatus, err *string) error
	ListDeployments(ctx context.Context, board *string, limit, offset int) ([]*Deployment, error)

	// Tool probe operations
	UpsertToolProbe(ctx context.Context, probe *ToolProbe) error
	GetToolProbe(ctx context.Context, tool string) (*ToolProbe, error)
	DeleteExpiredToolProbes(ctx context.Context) (int64, error)

	// Event operations
	AppendEvent(ctx context.Context, event *Event) error
	GetEvents(ctx context.Context, buildID *string, stepID *string, level *EventLevel, limit, offset int) ([]*Event, error)

	// Utility
	HealthCheck(ctx context.Context) error
}

// DatabasePath returns the default location of the build history database
// beneath a project root.
func DatabasePath(projectRoot string) string {
	return filepath.Join(projectRoot, ".fel4", "history.db")
}
