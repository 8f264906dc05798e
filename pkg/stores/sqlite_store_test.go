package stores

import (
	"context"
	"os"
	"testing"
	"time"
)

// setupTestStore creates an in-memory SQLite store for testing
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	// In-memory databases exist per connection, so keep the pool at one
	store, err := NewSQLiteStore(Config{
		Path:         ":memory:",
		MaxOpenConns: 1,
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}

	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate store: %v", err)
	}

	return store
}

// testBuild returns a pending build for the given ID and start time
func testBuild(id string, startedAt time.Time) *Build {
	return &Build{
		ID:             id,
		Target:         "x86_64-sel4-fel4",
		Platform:       "pc99",
		Profile:        "debug",
		Status:         BuildStatusPending,
		ManifestPath:   "/work/fel4.toml",
		ResolvedConfig: `{"kernel":"sel4"}`,
		StartedAt:      startedAt,
		CreatedAt:      startedAt,
		UpdatedAt:      startedAt,
	}
}

// TestStoreLifecycle tests database initialization and closure
func TestStoreLifecycle(t *testing.T) {
	store, err := NewSQLiteStore(Config{
		Path:         ":memory:",
		MaxOpenConns: 1,
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}

	if err := store.HealthCheck(ctx); err != nil {
		t.Fatalf("health check failed: %v", err)
	}

	if err := store.Close(); err != nil {
		t.Fatalf("failed to close store: %v", err)
	}
}

// TestStoreMigrations tests database migrations
func TestStoreMigrations(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()

	// Check that tables exist by querying them
	tables := []string{"builds", "steps", "artifacts", "deployments", "tool_probes", "events"}
	for _, table := range tables {
		query := "SELECT COUNT(*) FROM " + table
		var count int
		err := store.db.QueryRowContext(ctx, query).Scan(&count)
		if err != nil {
			t.Errorf("table %s does not exist or is not accessible: %v", table, err)
		}
	}
}

// TestBuildCRUD tests Build CRUD operations
func TestBuildCRUD(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	now := time.Now()

	// Create
	build := testBuild("build-001", now)
	if err := store.CreateBuild(ctx, build); err != nil {
		t.Fatalf("failed to create build: %v", err)
	}

	// Read
	retrieved, err := store.GetBuild(ctx, build.ID)
	if err != nil {
		t.Fatalf("failed to get build: %v", err)
	}

	if retrieved.ID != build.ID {
		t.Errorf("expected ID %s, got %s", build.ID, retrieved.ID)
	}
	if retrieved.Target != build.Target {
		t.Errorf("expected Target %s, got %s", build.Target, retrieved.Target)
	}
	if retrieved.Status != build.Status {
		t.Errorf("expected Status %s, got %s", build.Status, retrieved.Status)
	}

	// Update status
	errMsg := "kernel compile failed"
	if err := store.UpdateBuildStatus(ctx, build.ID, BuildStatusFailed, &errMsg); err != nil {
		t.Fatalf("failed to update build status: %v", err)
	}

	updated, err := store.GetBuild(ctx, build.ID)
	if err != nil {
		t.Fatalf("failed to get updated build: %v", err)
	}

	if updated.Status != BuildStatusFailed {
		t.Errorf("expected Status %s, got %s", BuildStatusFailed, updated.Status)
	}
	if updated.Error == nil || *updated.Error != errMsg {
		t.Errorf("expected Error %s, got %v", errMsg, updated.Error)
	}
	if updated.CompletedAt == nil {
		t.Error("expected CompletedAt to be set")
	}

	// Update artifact
	if err := store.UpdateBuildArtifact(ctx, build.ID, "/work/artifacts/bootimage.elf", 4194304); err != nil {
		t.Fatalf("failed to update build artifact: %v", err)
	}

	withArtifact, err := store.GetBuild(ctx, build.ID)
	if err != nil {
		t.Fatalf("failed to get build with artifact: %v", err)
	}

	if withArtifact.ArtifactPath == nil || *withArtifact.ArtifactPath != "/work/artifacts/bootimage.elf" {
		t.Errorf("expected ArtifactPath /work/artifacts/bootimage.elf, got %v", withArtifact.ArtifactPath)
	}
	if withArtifact.ImageSize == nil || *withArtifact.ImageSize != 4194304 {
		t.Errorf("expected ImageSize 4194304, got %v", withArtifact.ImageSize)
	}

	// List
	builds, err := store.ListBuilds(ctx, nil, nil, nil, 10, 0)
	if err != nil {
		t.Fatalf("failed to list builds: %v", err)
	}

	if len(builds) != 1 {
		t.Errorf("expected 1 build, got %d", len(builds))
	}

	// Delete
	if err := store.DeleteBuild(ctx, build.ID); err != nil {
		t.Fatalf("failed to delete build: %v", err)
	}

	_, err = store.GetBuild(ctx, build.ID)
	if err == nil {
		t.Error("expected error when getting deleted build")
	}
}

// TestBuildFilters tests selection filters and latest build lookup
func TestBuildFilters(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	now := time.Now()

	older := testBuild("build-x86-old", now.Add(-2*time.Hour))
	newer := testBuild("build-x86-new", now.Add(-1*time.Hour))

	arm := testBuild("build-arm", now)
	arm.Target = "armv7-sel4-fel4"
	arm.Platform = "sabre"

	for _, b := range []*Build{older, newer, arm} {
		if err := store.CreateBuild(ctx, b); err != nil {
			t.Fatalf("failed to create build %s: %v", b.ID, err)
		}
	}

	if err := store.UpdateBuildStatus(ctx, older.ID, BuildStatusSucceeded, nil); err != nil {
		t.Fatalf("failed to mark build succeeded: %v", err)
	}
	if err := store.UpdateBuildStatus(ctx, newer.ID, BuildStatusSucceeded, nil); err != nil {
		t.Fatalf("failed to mark build succeeded: %v", err)
	}

	// Filter by target
	target := "x86_64-sel4-fel4"
	filtered, err := store.ListBuilds(ctx, &target, nil, nil, 10, 0)
	if err != nil {
		t.Fatalf("failed to list filtered builds: %v", err)
	}

	if len(filtered) != 2 {
		t.Errorf("expected 2 x86_64 builds, got %d", len(filtered))
	}

	// Latest successful build for the selection
	latest, err := store.GetLatestBuild(ctx, "x86_64-sel4-fel4", "pc99", "debug")
	if err != nil {
		t.Fatalf("failed to get latest build: %v", err)
	}

	if latest.ID != newer.ID {
		t.Errorf("expected latest build %s, got %s", newer.ID, latest.ID)
	}

	// No successful build for the ARM selection yet
	_, err = store.GetLatestBuild(ctx, "armv7-sel4-fel4", "sabre", "debug")
	if err == nil {
		t.Error("expected error when no successful build exists")
	}
}

// TestPruneBuilds tests history pruning
func TestPruneBuilds(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	now := time.Now()

	ids := []string{"build-old", "build-mid", "build-new"}
	for i, id := range ids {
		b := testBuild(id, now.Add(time.Duration(i-2)*time.Hour))
		if err := store.CreateBuild(ctx, b); err != nil {
			t.Fatalf("failed to create build %s: %v", id, err)
		}
	}

	deleted, err := store.PruneBuilds(ctx, 1)
	if err != nil {
		t.Fatalf("failed to prune builds: %v", err)
	}

	if deleted != 2 {
		t.Errorf("expected 2 builds pruned, got %d", deleted)
	}

	remaining, err := store.ListBuilds(ctx, nil, nil, nil, 10, 0)
	if err != nil {
		t.Fatalf("failed to list remaining builds: %v", err)
	}

	if len(remaining) != 1 {
		t.Fatalf("expected 1 remaining build, got %d", len(remaining))
	}
	if remaining[0].ID != "build-new" {
		t.Errorf("expected newest build to survive, got %s", remaining[0].ID)
	}
}

// TestStepCRUD tests Step CRUD operations
func TestStepCRUD(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	now := time.Now()

	// Create a build first (required for foreign key)
	build := testBuild("build-002", now)
	if err := store.CreateBuild(ctx, build); err != nil {
		t.Fatalf("failed to create build: %v", err)
	}

	// Create
	step := &Step{
		ID:        "step-001",
		BuildID:   build.ID,
		Name:      "configure-kernel",
		Tool:      "cmake",
		Status:    StepStatusPending,
		Retries:   0,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := store.CreateStep(ctx, step); err != nil {
		t.Fatalf("failed to create step: %v", err)
	}

	// Read
	retrieved, err := store.GetStep(ctx, step.ID)
	if err != nil {
		t.Fatalf("failed to get step: %v", err)
	}

	if retrieved.ID != step.ID {
		t.Errorf("expected ID %s, got %s", step.ID, retrieved.ID)
	}
	if retrieved.Tool != step.Tool {
		t.Errorf("expected Tool %s, got %s", step.Tool, retrieved.Tool)
	}

	// Transition to running sets started_at
	if err := store.UpdateStepStatus(ctx, step.ID, StepStatusRunning, nil, nil); err != nil {
		t.Fatalf("failed to update step status: %v", err)
	}

	running, err := store.GetStep(ctx, step.ID)
	if err != nil {
		t.Fatalf("failed to get running step: %v", err)
	}

	if running.Status != StepStatusRunning {
		t.Errorf("expected Status %s, got %s", StepStatusRunning, running.Status)
	}
	if running.StartedAt == nil {
		t.Error("expected StartedAt to be set after running transition")
	}

	// Terminal transition sets completed_at and exit code
	exitCode := 0
	if err := store.UpdateStepStatus(ctx, step.ID, StepStatusSucceeded, &exitCode, nil); err != nil {
		t.Fatalf("failed to update step status: %v", err)
	}

	done, err := store.GetStep(ctx, step.ID)
	if err != nil {
		t.Fatalf("failed to get completed step: %v", err)
	}

	if done.Status != StepStatusSucceeded {
		t.Errorf("expected Status %s, got %s", StepStatusSucceeded, done.Status)
	}
	if done.ExitCode == nil || *done.ExitCode != 0 {
		t.Errorf("expected ExitCode 0, got %v", done.ExitCode)
	}
	if done.CompletedAt == nil {
		t.Error("expected CompletedAt to be set")
	}

	// Increment Retries
	if err := store.IncrementStepRetries(ctx, step.ID); err != nil {
		t.Fatalf("failed to increment retries: %v", err)
	}

	retried, err := store.GetStep(ctx, step.ID)
	if err != nil {
		t.Fatalf("failed to get step after retry increment: %v", err)
	}

	if retried.Retries != 1 {
		t.Errorf("expected Retries 1, got %d", retried.Retries)
	}

	// List by build
	steps, err := store.ListStepsByBuild(ctx, build.ID)
	if err != nil {
		t.Fatalf("failed to list steps: %v", err)
	}

	if len(steps) != 1 {
		t.Errorf("expected 1 step, got %d", len(steps))
	}
}

// TestArtifactOperations tests Artifact operations
func TestArtifactOperations(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	now := time.Now()

	// Create a build first
	build := testBuild("build-003", now)
	if err := store.CreateBuild(ctx, build); err != nil {
		t.Fatalf("failed to create build: %v", err)
	}

	// Record (insert)
	artifact := &Artifact{
		ID:        "artifact-001",
		BuildID:   build.ID,
		Kind:      ArtifactKindKernel,
		Path:      "/work/artifacts/kernel.elf",
		Size:      2097152,
		Checksum:  "abc123def456",
		CreatedAt: now,
	}

	if err := store.RecordArtifact(ctx, artifact); err != nil {
		t.Fatalf("failed to record artifact: %v", err)
	}

	// Get by kind
	retrieved, err := store.GetArtifact(ctx, build.ID, ArtifactKindKernel)
	if err != nil {
		t.Fatalf("failed to get artifact: %v", err)
	}

	if retrieved.Checksum != artifact.Checksum {
		t.Errorf("expected Checksum %s, got %s", artifact.Checksum, retrieved.Checksum)
	}

	// Record again (update)
	artifact.Size = 2359296
	artifact.Checksum = "xyz789ghi012"

	if err := store.RecordArtifact(ctx, artifact); err != nil {
		t.Fatalf("failed to record artifact (update): %v", err)
	}

	updated, err := store.GetArtifact(ctx, build.ID, ArtifactKindKernel)
	if err != nil {
		t.Fatalf("failed to get updated artifact: %v", err)
	}

	if updated.Checksum != "xyz789ghi012" {
		t.Errorf("expected updated Checksum xyz789ghi012, got %s", updated.Checksum)
	}

	// Record a second kind
	bootimage := &Artifact{
		ID:        "artifact-002",
		BuildID:   build.ID,
		Kind:      ArtifactKindBootImage,
		Path:      "/work/artifacts/bootimage.elf",
		Size:      4194304,
		Checksum:  "boot111",
		CreatedAt: now,
	}
	if err := store.RecordArtifact(ctx, bootimage); err != nil {
		t.Fatalf("failed to record bootimage: %v", err)
	}

	// List
	artifacts, err := store.ListArtifactsByBuild(ctx, build.ID)
	if err != nil {
		t.Fatalf("failed to list artifacts: %v", err)
	}

	if len(artifacts) != 2 {
		t.Errorf("expected 2 artifacts, got %d", len(artifacts))
	}
}

// TestDeploymentOperations tests Deployment operations
func TestDeploymentOperations(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	now := time.Now()

	// Create a build first
	build := testBuild("build-004", now)
	if err := store.CreateBuild(ctx, build); err != nil {
		t.Fatalf("failed to create build: %v", err)
	}

	// Create
	deployment := &Deployment{
		ID:        "deploy-001",
		BuildID:   build.ID,
		Board:     "sabre-lab-1",
		Host:      "192.168.10.21",
		ImagePath: "/work/artifacts/bootimage.elf",
		Status:    DeploymentStatusPending,
		StartedAt: now,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := store.CreateDeployment(ctx, deployment); err != nil {
		t.Fatalf("failed to create deployment: %v", err)
	}

	// Read
	retrieved, err := store.GetDeployment(ctx, deployment.ID)
	if err != nil {
		t.Fatalf("failed to get deployment: %v", err)
	}

	if retrieved.Board != deployment.Board {
		t.Errorf("expected Board %s, got %s", deployment.Board, retrieved.Board)
	}

	// Non-terminal transition leaves completed_at unset
	if err := store.UpdateDeploymentStatus(ctx, deployment.ID, DeploymentStatusTransferring, nil); err != nil {
		t.Fatalf("failed to update deployment status: %v", err)
	}

	transferring, err := store.GetDeployment(ctx, deployment.ID)
	if err != nil {
		t.Fatalf("failed to get transferring deployment: %v", err)
	}

	if transferring.Status != DeploymentStatusTransferring {
		t.Errorf("expected Status %s, got %s", DeploymentStatusTransferring, transferring.Status)
	}
	if transferring.CompletedAt != nil {
		t.Error("expected CompletedAt to be unset for non-terminal status")
	}

	// Terminal transition sets completed_at
	if err := store.UpdateDeploymentStatus(ctx, deployment.ID, DeploymentStatusVerified, nil); err != nil {
		t.Fatalf("failed to update deployment status: %v", err)
	}

	verified, err := store.GetDeployment(ctx, deployment.ID)
	if err != nil {
		t.Fatalf("failed to get verified deployment: %v", err)
	}

	if verified.Status != DeploymentStatusVerified {
		t.Errorf("expected Status %s, got %s", DeploymentStatusVerified, verified.Status)
	}
	if verified.CompletedAt == nil {
		t.Error("expected CompletedAt to be set")
	}

	// List with board filter
	board := "sabre-lab-1"
	deployments, err := store.ListDeployments(ctx, &board, 10, 0)
	if err != nil {
		t.Fatalf("failed to list deployments: %v", err)
	}

	if len(deployments) != 1 {
		t.Errorf("expected 1 deployment, got %d", len(deployments))
	}

	other := "tx1-lab-1"
	none, err := store.ListDeployments(ctx, &other, 10, 0)
	if err != nil {
		t.Fatalf("failed to list deployments for other board: %v", err)
	}

	if len(none) != 0 {
		t.Errorf("expected 0 deployments for other board, got %d", len(none))
	}
}

// TestToolProbeOperations tests ToolProbe operations including TTL
func TestToolProbeOperations(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	now := time.Now().UTC()

	// Upsert probe without expiry
	probe1 := &ToolProbe{
		ID:        "probe-001",
		Tool:      "cmake",
		Path:      "/usr/bin/cmake",
		Version:   "3.28.3",
		TTL:       0,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := store.UpsertToolProbe(ctx, probe1); err != nil {
		t.Fatalf("failed to upsert tool probe: %v", err)
	}

	// Upsert probe with TTL (future expiry)
	expiresAt := now.Add(1 * time.Hour)
	probe2 := &ToolProbe{
		ID:        "probe-002",
		Tool:      "ninja",
		Path:      "/usr/bin/ninja",
		Version:   "1.11.1",
		TTL:       3600,
		ExpiresAt: &expiresAt,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := store.UpsertToolProbe(ctx, probe2); err != nil {
		t.Fatalf("failed to upsert tool probe with TTL: %v", err)
	}

	// Upsert expired probe (past expiry)
	expiredAt := now.Add(-1 * time.Hour)
	probe3 := &ToolProbe{
		ID:        "probe-003",
		Tool:      "qemu-system-arm",
		Path:      "/usr/bin/qemu-system-arm",
		Version:   "8.2.0",
		TTL:       3600,
		ExpiresAt: &expiredAt,
		CreatedAt: now.Add(-2 * time.Hour),
		UpdatedAt: now.Add(-2 * time.Hour),
	}

	if err := store.UpsertToolProbe(ctx, probe3); err != nil {
		t.Fatalf("failed to upsert expired tool probe: %v", err)
	}

	// Get non-expired probe
	retrieved, err := store.GetToolProbe(ctx, probe1.Tool)
	if err != nil {
		t.Fatalf("failed to get tool probe: %v", err)
	}

	if retrieved.Version != probe1.Version {
		t.Errorf("expected Version %s, got %s", probe1.Version, retrieved.Version)
	}

	// Try to get expired probe (should fail because GetToolProbe filters expired probes)
	_, err = store.GetToolProbe(ctx, probe3.Tool)
	if err == nil {
		t.Error("expected error when getting expired tool probe")
	}

	// Upserting the same tool again replaces the row
	probe1.Version = "3.29.0"
	if err := store.UpsertToolProbe(ctx, probe1); err != nil {
		t.Fatalf("failed to upsert tool probe (update): %v", err)
	}

	updated, err := store.GetToolProbe(ctx, probe1.Tool)
	if err != nil {
		t.Fatalf("failed to get updated tool probe: %v", err)
	}

	if updated.Version != "3.29.0" {
		t.Errorf("expected updated Version 3.29.0, got %s", updated.Version)
	}

	// Delete expired probes
	deleted, err := store.DeleteExpiredToolProbes(ctx)
	if err != nil {
		t.Fatalf("failed to delete expired tool probes: %v", err)
	}

	if deleted != 1 {
		t.Errorf("expected 1 expired tool probe deleted, got %d", deleted)
	}

	// Verify probe3 is really gone
	var count int
	err = store.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM tool_probes WHERE id = ?", probe3.ID).Scan(&count)
	if err != nil {
		t.Fatalf("failed to count probe3: %v", err)
	}
	if count != 0 {
		t.Errorf("expected probe3 to be deleted, but it still exists")
	}
}

// TestEventOperations tests Event operations
func TestEventOperations(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	now := time.Now()

	// Create a build first
	build := testBuild("build-005", now)
	if err := store.CreateBuild(ctx, build); err != nil {
		t.Fatalf("failed to create build: %v", err)
	}

	// Append events
	events := []*Event{
		{
			BuildID:   &build.ID,
			Level:     EventLevelInfo,
			Message:   "Starting build",
			Timestamp: now,
		},
		{
			BuildID:   &build.ID,
			Level:     EventLevelWarning,
			Message:   "Platform pairing mismatch",
			Timestamp: now.Add(1 * time.Second),
		},
		{
			BuildID:   &build.ID,
			Level:     EventLevelError,
			Message:   "Kernel compile failed",
			Timestamp: now.Add(2 * time.Second),
		},
	}

	for _, event := range events {
		if err := store.AppendEvent(ctx, event); err != nil {
			t.Fatalf("failed to append event: %v", err)
		}
		if event.ID == 0 {
			t.Error("expected event ID to be set after insert")
		}
	}

	// Get all events for build
	retrieved, err := store.GetEvents(ctx, &build.ID, nil, nil, 10, 0)
	if err != nil {
		t.Fatalf("failed to get events: %v", err)
	}

	if len(retrieved) != 3 {
		t.Errorf("expected 3 events, got %d", len(retrieved))
	}

	// Filter by level
	errorLevel := EventLevelError
	filtered, err := store.GetEvents(ctx, nil, nil, &errorLevel, 10, 0)
	if err != nil {
		t.Fatalf("failed to get filtered events: %v", err)
	}

	if len(filtered) != 1 {
		t.Errorf("expected 1 error event, got %d", len(filtered))
	}
	if filtered[0].Level != EventLevelError {
		t.Errorf("expected level %s, got %s", EventLevelError, filtered[0].Level)
	}
}

// TestTransactions tests transaction support
func TestTransactions(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	now := time.Now()

	// Begin transaction
	tx, err := store.BeginTx(ctx)
	if err != nil {
		t.Fatalf("failed to begin transaction: %v", err)
	}

	build := testBuild("build-tx-001", now)

	query := `
		INSERT INTO builds (id, target, platform, profile, status, manifest_path, resolved_config, started_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = tx.ExecContext(ctx, query, build.ID, build.Target, build.Platform, build.Profile,
		build.Status, build.ManifestPath, build.ResolvedConfig, build.StartedAt, build.CreatedAt, build.UpdatedAt)
	if err != nil {
		store.RollbackTx(tx)
		t.Fatalf("failed to insert build in transaction: %v", err)
	}

	// Rollback
	if err := store.RollbackTx(tx); err != nil {
		t.Fatalf("failed to rollback transaction: %v", err)
	}

	// Verify build was not created
	_, err = store.GetBuild(ctx, build.ID)
	if err == nil {
		t.Error("expected error when getting rolled back build")
	}

	// Begin new transaction and commit
	tx, err = store.BeginTx(ctx)
	if err != nil {
		t.Fatalf("failed to begin second transaction: %v", err)
	}

	_, err = tx.ExecContext(ctx, query, build.ID, build.Target, build.Platform, build.Profile,
		build.Status, build.ManifestPath, build.ResolvedConfig, build.StartedAt, build.CreatedAt, build.UpdatedAt)
	if err != nil {
		store.RollbackTx(tx)
		t.Fatalf("failed to insert build in second transaction: %v", err)
	}

	if err := store.CommitTx(tx); err != nil {
		t.Fatalf("failed to commit transaction: %v", err)
	}

	// Verify build was created
	retrieved, err := store.GetBuild(ctx, build.ID)
	if err != nil {
		t.Fatalf("failed to get committed build: %v", err)
	}

	if retrieved.ID != build.ID {
		t.Errorf("expected ID %s, got %s", build.ID, retrieved.ID)
	}
}

// TestCascadeDelete tests foreign key cascading
func TestCascadeDelete(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	now := time.Now()

	// Create build
	build := testBuild("build-cascade-001", now)
	if err := store.CreateBuild(ctx, build); err != nil {
		t.Fatalf("failed to create build: %v", err)
	}

	// Create step
	step := &Step{
		ID:        "step-cascade-001",
		BuildID:   build.ID,
		Name:      "compile-root-task",
		Tool:      "cargo",
		Status:    StepStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := store.CreateStep(ctx, step); err != nil {
		t.Fatalf("failed to create step: %v", err)
	}

	// Create artifact
	artifact := &Artifact{
		ID:        "artifact-cascade-001",
		BuildID:   build.ID,
		Kind:      ArtifactKindRootTask,
		Path:      "/work/artifacts/root-task.elf",
		Size:      1024,
		Checksum:  "cafe",
		CreatedAt: now,
	}
	if err := store.RecordArtifact(ctx, artifact); err != nil {
		t.Fatalf("failed to record artifact: %v", err)
	}

	// Create event
	event := &Event{
		BuildID:   &build.ID,
		Level:     EventLevelInfo,
		Message:   "test event",
		Timestamp: now,
	}
	if err := store.AppendEvent(ctx, event); err != nil {
		t.Fatalf("failed to append event: %v", err)
	}

	// Delete build (should cascade to steps, artifacts and events)
	if err := store.DeleteBuild(ctx, build.ID); err != nil {
		t.Fatalf("failed to delete build: %v", err)
	}

	// Verify step was deleted
	_, err := store.GetStep(ctx, step.ID)
	if err == nil {
		t.Error("expected error when getting cascaded deleted step")
	}

	// Verify artifacts were deleted
	artifacts, err := store.ListArtifactsByBuild(ctx, build.ID)
	if err != nil {
		t.Fatalf("failed to list artifacts: %v", err)
	}
	if len(artifacts) != 0 {
		t.Errorf("expected 0 artifacts after cascade delete, got %d", len(artifacts))
	}

	// Verify events were deleted
	events, err := store.GetEvents(ctx, &build.ID, nil, nil, 10, 0)
	if err != nil {
		t.Fatalf("failed to get events: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("expected 0 events after cascade delete, got %d", len(events))
	}
}

// TestMain sets up and tears down test environment
func TestMain(m *testing.M) {
	// Run tests
	code := m.Run()

	// Exit
	os.Exit(code)
}
