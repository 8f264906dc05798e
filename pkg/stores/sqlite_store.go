package stores

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db  *sql.DB
	cfg Config
}

// Config holds SQLite store configuration
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewSQLiteStore creates a new SQLite store instance
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	// Set defaults
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 25
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 5
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}

	return &SQLiteStore{
		cfg: cfg,
	}, nil
}

// Init initializes the database connection and enables WAL mode.
func (s *SQLiteStore) Init(ctx context.Context) error {
	// Open database with SQLite-specific connection parameters
	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_txlock=immediate", s.cfg.Path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(s.cfg.MaxOpenConns)
	db.SetMaxIdleConns(s.cfg.MaxIdleConns)
	db.SetConnMaxLifetime(s.cfg.ConnMaxLifetime)

	// Verify connection and set PRAGMAs
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	// Ensure foreign keys are enabled (connection-level setting)
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs database migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	// Create migration source from embedded FS
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	// Create database driver
	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	// Create migration instance
	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	// Run migrations
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// BeginTx starts a new transaction
func (s *SQLiteStore) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return s.db.BeginTx(ctx, &sql.TxOptions{
		Isolation: sql.LevelSerializable,
	})
}

// CommitTx commits a transaction
func (s *SQLiteStore) CommitTx(tx *sql.Tx) error {
	return tx.Commit()
}

// RollbackTx rolls back a transaction
func (s *SQLiteStore) RollbackTx(tx *sql.Tx) error {
	return tx.Rollback()
}

// CreateBuild creates a new build record
func (s *SQLiteStore) CreateBuild(ctx context.Context, build *Build) error {
	query := `
		INSERT INTO builds (
			id, target, platform, profile, status, manifest_path, resolved_config,
			artifact_path, image_size, started_at, completed_at, error, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		build.ID,
		build.Target,
		build.Platform,
		build.Profile,
		build.Status,
		build.ManifestPath,
		build.ResolvedConfig,
		build.ArtifactPath,
		build.ImageSize,
		build.StartedAt,
		build.CompletedAt,
		build.Error,
		build.CreatedAt,
		build.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create build: %w", err)
	}

	return nil
}

// GetBuild retrieves a build by ID
func (s *SQLiteStore) GetBuild(ctx context.Context, id string) (*Build, error) {
	query := `
		SELECT id, target, platform, profile, status, manifest_path, resolved_config,
			   artifact_path, image_size, started_at, completed_at, error, created_at, updated_at
		FROM builds
		WHERE id = ?
	`

	build := &Build{}
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&build.ID,
		&build.Target,
		&build.Platform,
		&build.Profile,
		&build.Status,
		&build.ManifestPath,
		&build.ResolvedConfig,
		&build.ArtifactPath,
		&build.ImageSize,
		&build.StartedAt,
		&build.CompletedAt,
		&build.Error,
		&build.CreatedAt,
		&build.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("build not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get build: %w", err)
	}

	return build, nil
}

// UpdateBuildStatus updates the status of a build
func (s *SQLiteStore) UpdateBuildStatus(ctx context.Context, id string, status BuildStatus, errMsg *string) error {
	query := `
		UPDATE builds
		SET status = ?, error = ?, completed_at = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`

	var completedAt *time.Time
	if status == BuildStatusSucceeded || status == BuildStatusFailed || status == BuildStatusCancelled {
		now := time.Now()
		completedAt = &now
	}

	result, err := s.db.ExecContext(ctx, query, status, errMsg, completedAt, id)
	if err != nil {
		return fmt.Errorf("failed to update build status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("build not found: %s", id)
	}

	return nil
}

// UpdateBuildArtifact records the final boot image of a build
func (s *SQLiteStore) UpdateBuildArtifact(ctx context.Context, id string, artifactPath string, imageSize int64) error {
	query := `
		UPDATE builds
		SET artifact_path = ?, image_size = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`

	result, err := s.db.ExecContext(ctx, query, artifactPath, imageSize, id)
	if err != nil {
		return fmt.Errorf("failed to update build artifact: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("build not found: %s", id)
	}

	return nil
}

// ListBuilds lists builds with optional selection filters and pagination
func (s *SQLiteStore) ListBuilds(ctx context.Context, target *string, platform *string, profile *string, limit, offset int) ([]*Build, error) {
	query := `
		SELECT id, target, platform, profile, status, manifest_path, resolved_config,
			   artifact_path, image_size, started_at, completed_at, error, created_at, updated_at
		FROM builds
		WHERE (? IS NULL OR target = ?)
		  AND (? IS NULL OR platform = ?)
		  AND (? IS NULL OR profile = ?)
		ORDER BY started_at DESC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, target, target, platform, platform, profile, profile, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list builds: %w", err)
	}
	defer rows.Close()

	builds := []*Build{}
	for rows.Next() {
		build := &Build{}
		err := rows.Scan(
			&build.ID,
			&build.Target,
			&build.Platform,
			&build.Profile,
			&build.Status,
			&build.ManifestPath,
			&build.ResolvedConfig,
			&build.ArtifactPath,
			&build.ImageSize,
			&build.StartedAt,
			&build.CompletedAt,
			&build.Error,
			&build.CreatedAt,
			&build.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan build: %w", err)
		}
		builds = append(builds, build)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating builds: %w", err)
	}

	return builds, nil
}

// GetLatestBuild retrieves the most recent successful build for a selection
func (s *SQLiteStore) GetLatestBuild(ctx context.Context, target, platform, profile string) (*Build, error) {
	query := `
		SELECT id, target, platform, profile, status, manifest_path, resolved_config,
			   artifact_path, image_size, started_at, completed_at, error, created_at, updated_at
		FROM builds
		WHERE target = ? AND platform = ? AND profile = ? AND status = 'succeeded'
		ORDER BY started_at DESC
		LIMIT 1
	`

	build := &Build{}
	err := s.db.QueryRowContext(ctx, query, target, platform, profile).Scan(
		&build.ID,
		&build.Target,
		&build.Platform,
		&build.Profile,
		&build.Status,
		&build.ManifestPath,
		&build.ResolvedConfig,
		&build.ArtifactPath,
		&build.ImageSize,
		&build.StartedAt,
		&build.CompletedAt,
		&build.Error,
		&build.CreatedAt,
		&build.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("no successful build for %s/%s/%s", target, platform, profile)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest build: %w", err)
	}

	return build, nil
}

// DeleteBuild deletes a build by ID
func (s *SQLiteStore) DeleteBuild(ctx context.Context, id string) error {
	query := `DELETE FROM builds WHERE id = ?`

	result, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete build: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("build not found: %s", id)
	}

	return nil
}

// PruneBuilds deletes all builds except the most recent keep entries
func (s *SQLiteStore) PruneBuilds(ctx context.Context, keep int) (int64, error) {
	query := `
		DELETE FROM builds
		WHERE id NOT IN (
			SELECT id FROM builds ORDER BY started_at DESC LIMIT ?
		)
	`

	result, err := s.db.ExecContext(ctx, query, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to prune builds: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rows, nil
}

// CreateStep creates a new step record
func (s *SQLiteStore) CreateStep(ctx context.Context, step *Step) error {
	query := `
		INSERT INTO steps (
			id, build_id, name, tool, status, exit_code, log_path,
			started_at, completed_at, error, retries, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		step.ID,
		step.BuildID,
		step.Name,
		step.Tool,
		step.Status,
		step.ExitCode,
		step.LogPath,
		step.StartedAt,
		step.CompletedAt,
		step.Error,
		step.Retries,
		step.CreatedAt,
		step.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create step: %w", err)
	}

	return nil
}

// GetStep retrieves a step by ID
func (s *SQLiteStore) GetStep(ctx context.Context, id string) (*Step, error) {
	query := `
		SELECT id, build_id, name, tool, status, exit_code, log_path,
			   started_at, completed_at, error, retries, created_at, updated_at
		FROM steps
		WHERE id = ?
	`

	step := &Step{}
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&step.ID,
		&step.BuildID,
		&step.Name,
		&step.Tool,
		&step.Status,
		&step.ExitCode,
		&step.LogPath,
		&step.StartedAt,
		&step.CompletedAt,
		&step.Error,
		&step.Retries,
		&step.CreatedAt,
		&step.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("step not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get step: %w", err)
	}

	return step, nil
}

// UpdateStepStatus updates the status of a step
func (s *SQLiteStore) UpdateStepStatus(ctx context.Context, id string, status StepStatus, exitCode *int, errMsg *string) error {
	query := `
		UPDATE steps
		SET status = ?, exit_code = ?, error = ?, updated_at = CURRENT_TIMESTAMP,
			started_at = CASE WHEN started_at IS NULL AND ? = 'running' THEN CURRENT_TIMESTAMP ELSE started_at END,
			completed_at = CASE WHEN ? IN ('succeeded', 'failed', 'skipped') THEN CURRENT_TIMESTAMP ELSE completed_at END
		WHERE id = ?
	`

	result, err := s.db.ExecContext(ctx, query, status, exitCode, errMsg, status, status, id)
	if err != nil {
		return fmt.Errorf("failed to update step status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("step not found: %s", id)
	}

	return nil
}

// ListStepsByBuild lists all steps for a build
func (s *SQLiteStore) ListStepsByBuild(ctx context.Context, buildID string) ([]*Step, error) {
	query := `
		SELECT id, build_id, name, tool, status, exit_code, log_path,
			   started_at, completed_at, error, retries, created_at, updated_at
		FROM steps
		WHERE build_id = ?
		ORDER BY created_at ASC
	`

	rows, err := s.db.QueryContext(ctx, query, buildID)
	if err != nil {
		return nil, fmt.Errorf("failed to list steps: %w", err)
	}
	defer rows.Close()

	steps := []*Step{}
	for rows.Next() {
		step := &Step{}
		err := rows.Scan(
			&step.ID,
			&step.BuildID,
			&step.Name,
			&step.Tool,
			&step.Status,
			&step.ExitCode,
			&step.LogPath,
			&step.StartedAt,
			&step.CompletedAt,
			&step.Error,
			&step.Retries,
			&step.CreatedAt,
			&step.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan step: %w", err)
		}
		steps = append(steps, step)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating steps: %w", err)
	}

	return steps, nil
}

// IncrementStepRetries increments the retry counter for a step
func (s *SQLiteStore) IncrementStepRetries(ctx context.Context, id string) error {
	query := `UPDATE steps SET retries = retries + 1 WHERE id = ?`

	result, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to increment retries: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("step not found: %s", id)
	}

	return nil
}

// RecordArtifact inserts or updates an artifact record
func (s *SQLiteStore) RecordArtifact(ctx context.Context, artifact *Artifact) error {
	query := `
		INSERT INTO artifacts (
			id, build_id, kind, path, size, checksum, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(build_id, kind, path) DO UPDATE SET
			size = excluded.size,
			checksum = excluded.checksum
	`

	_, err := s.db.ExecContext(ctx, query,
		artifact.ID,
		artifact.BuildID,
		artifact.Kind,
		artifact.Path,
		artifact.Size,
		artifact.Checksum,
		artifact.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to record artifact: %w", err)
	}

	return nil
}

// GetArtifact retrieves the newest artifact of a kind for a build
func (s *SQLiteStore) GetArtifact(ctx context.Context, buildID, kind string) (*Artifact, error) {
	query := `
		SELECT id, build_id, kind, path, size, checksum, created_at
		FROM artifacts
		WHERE build_id = ? AND kind = ?
		ORDER BY created_at DESC
		LIMIT 1
	`

	artifact := &Artifact{}
	err := s.db.QueryRowContext(ctx, query, buildID, kind).Scan(
		&artifact.ID,
		&artifact.BuildID,
		&artifact.Kind,
		&artifact.Path,
		&artifact.Size,
		&artifact.Checksum,
		&artifact.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("artifact not found: %s/%s", buildID, kind)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get artifact: %w", err)
	}

	return artifact, nil
}

// ListArtifactsByBuild lists all artifacts for a build
func (s *SQLiteStore) ListArtifactsByBuild(ctx context.Context, buildID string) ([]*Artifact, error) {
	query := `
		SELECT id, build_id, kind, path, size, checksum, created_at
		FROM artifacts
		WHERE build_id = ?
		ORDER BY kind ASC, created_at ASC
	`

	rows, err := s.db.QueryContext(ctx, query, buildID)
	if err != nil {
		return nil, fmt.Errorf("failed to list artifacts: %w", err)
	}
	defer rows.Close()

	artifacts := []*Artifact{}
	for rows.Next() {
		artifact := &Artifact{}
		err := rows.Scan(
			&artifact.ID,
			&artifact.BuildID,
			&artifact.Kind,
			&artifact.Path,
			&artifact.Size,
			&artifact.Checksum,
			&artifact.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan artifact: %w", err)
		}
		artifacts = append(artifacts, artifact)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating artifacts: %w", err)
	}

	return artifacts, nil
}

// CreateDeployment creates a new deployment record
func (s *SQLiteStore) CreateDeployment(ctx context.Context, deployment *Deployment) error {
	query := `
		INSERT INTO deployments (
			id, build_id, board, host, image_path, status,
			started_at, completed_at, error, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		deployment.ID,
		deployment.BuildID,
		deployment.Board,
		deployment.Host,
		deployment.ImagePath,
		deployment.Status,
		deployment.StartedAt,
		deployment.CompletedAt,
		deployment.Error,
		deployment.CreatedAt,
		deployment.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create deployment: %w", err)
	}

	return nil
}

// GetDeployment retrieves a deployment by ID
func (s *SQLiteStore) GetDeployment(ctx context.Context, id string) (*Deployment, error) {
	query := `
		SELECT id, build_id, board, host, image_path, status,
			   started_at, completed_at, error, created_at, updated_at
		FROM deployments
		WHERE id = ?
	`

	deployment := &Deployment{}
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&deployment.ID,
		&deployment.BuildID,
		&deployment.Board,
		&deployment.Host,
		&deployment.ImagePath,
		&deployment.Status,
		&deployment.StartedAt,
		&deployment.CompletedAt,
		&deployment.Error,
		&deployment.CreatedAt,
		&deployment.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("deployment not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get deployment: %w", err)
	}

	return deployment, nil
}

// UpdateDeploymentStatus updates the status of a deployment
func (s *SQLiteStore) UpdateDeploymentStatus(ctx context.Context, id string, status DeploymentStatus, errMsg *string) error {
	query := `
		UPDATE deployments
		SET status = ?, error = ?, completed_at = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`

	var completedAt *time.Time
	if status == DeploymentStatusVerified || status == DeploymentStatusFailed {
		now := time.Now()
		completedAt = &now
	}

	result, err := s.db.ExecContext(ctx, query, status, errMsg, completedAt, id)
	if err != nil {
		return fmt.Errorf("failed to update deployment status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("deployment not found: %s", id)
	}

	return nil
}

// ListDeployments lists deployments with an optional board filter and pagination
func (s *SQLiteStore) ListDeployments(ctx context.Context, board *string, limit, offset int) ([]*Deployment, error) {
	query := `
		SELECT id, build_id, board, host, image_path, status,
			   started_at, completed_at, error, created_at, updated_at
		FROM deployments
		WHERE (? IS NULL OR board = ?)
		ORDER BY started_at DESC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, board, board, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list deployments: %w", err)
	}
	defer rows.Close()

	deployments := []*Deployment{}
	for rows.Next() {
		deployment := &Deployment{}
		err := rows.Scan(
			&deployment.ID,
			&deployment.BuildID,
			&deployment.Board,
			&deployment.Host,
			&deployment.ImagePath,
			&deployment.Status,
			&deployment.StartedAt,
			&deployment.CompletedAt,
			&deployment.Error,
			&deployment.CreatedAt,
			&deployment.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan deployment: %w", err)
		}
		deployments = append(deployments, deployment)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating deployments: %w", err)
	}

	return deployments, nil
}

// UpsertToolProbe inserts or updates a tool probe
func (s *SQLiteStore) UpsertToolProbe(ctx context.Context, probe *ToolProbe) error {
	query := `
		INSERT INTO tool_probes (
			id, tool, path, version, ttl, expires_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tool) DO UPDATE SET
			path = excluded.path,
			version = excluded.version,
			ttl = excluded.ttl,
			expires_at = excluded.expires_at
	`

	// Format expires_at to SQLite-compatible datetime string
	var expiresAtStr *string
	if probe.ExpiresAt != nil {
		formatted := probe.ExpiresAt.UTC().Format("2006-01-02 15:04:05")
		expiresAtStr = &formatted
	}

	_, err := s.db.ExecContext(ctx, query,
		probe.ID,
		probe.Tool,
		probe.Path,
		probe.Version,
		probe.TTL,
		expiresAtStr,
		probe.CreatedAt.UTC().Format("2006-01-02 15:04:05"),
		probe.UpdatedAt.UTC().Format("2006-01-02 15:04:05"),
	)

	if err != nil {
		return fmt.Errorf("failed to upsert tool probe: %w", err)
	}

	return nil
}

// GetToolProbe retrieves a non-expired tool probe by tool name
func (s *SQLiteStore) GetToolProbe(ctx context.Context, tool string) (*ToolProbe, error) {
	query := `
		SELECT id, tool, path, version, ttl, expires_at, created_at, updated_at
		FROM tool_probes
		WHERE tool = ?
		  AND (expires_at IS NULL OR datetime(expires_at) > datetime('now'))
	`

	probe := &ToolProbe{}
	err := s.db.QueryRowContext(ctx, query, tool).Scan(
		&probe.ID,
		&probe.Tool,
		&probe.Path,
		&probe.Version,
		&probe.TTL,
		&probe.ExpiresAt,
		&probe.CreatedAt,
		&probe.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("tool probe not found or expired: %s", tool)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tool probe: %w", err)
	}

	return probe, nil
}

// DeleteExpiredToolProbes deletes all expired tool probes
func (s *SQLiteStore) DeleteExpiredToolProbes(ctx context.Context) (int64, error) {
	query := `DELETE FROM tool_probes WHERE expires_at IS NOT NULL AND datetime(expires_at) <= datetime('now')`

	result, err := s.db.ExecContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired tool probes: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rows, nil
}

// AppendEvent appends a new event to the log
func (s *SQLiteStore) AppendEvent(ctx context.Context, event *Event) error {
	query := `
		INSERT INTO events (build_id, step_id, level, message, details, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	result, err := s.db.ExecContext(ctx, query,
		event.BuildID,
		event.StepID,
		event.Level,
		event.Message,
		event.Details,
		event.Timestamp,
	)

	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}

	// Get the auto-generated ID
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get event ID: %w", err)
	}

	event.ID = id
	return nil
}

// GetEvents retrieves events with optional filters and pagination
func (s *SQLiteStore) GetEvents(ctx context.Context, buildID *string, stepID *string, level *EventLevel, limit, offset int) ([]*Event, error) {
	query := `
		SELECT id, build_id, step_id, level, message, details, timestamp
		FROM events
		WHERE (? IS NULL OR build_id = ?)
		  AND (? IS NULL OR step_id = ?)
		  AND (? IS NULL OR level = ?)
		ORDER BY timestamp DESC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, buildID, buildID, stepID, stepID, level, level, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to get events: %w", err)
	}
	defer rows.Close()

	events := []*Event{}
	for rows.Next() {
		event := &Event{}
		err := rows.Scan(
			&event.ID,
			&event.BuildID,
			&event.StepID,
			&event.Level,
			&event.Message,
			&event.Details,
			&event.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}

	return events, nil
}

// HealthCheck verifies the database connection is healthy
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	return s.db.PingContext(ctx)
}
