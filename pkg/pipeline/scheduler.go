package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/fel4os/fel4/pkg/stores"
)

// DefaultMaxParallel is the default worker count. Build tools parallelize
// internally, so the step-level pool stays small.
const DefaultMaxParallel = 4

// Options control one scheduler run.
type Options struct {
	// MaxParallel caps the worker count for this run. Zero uses the
	// scheduler default.
	MaxParallel int

	// FailFast stops scheduling further levels after the first failure.
	FailFast bool

	// DryRun walks the plan without executing steps or recording history.
	DryRun bool
}

// Scheduler executes a plan level by level with a bounded worker pool.
// Steps at the same level run in parallel; a step whose required
// dependency failed is skipped. Run and step records are persisted through
// the recorder and lifecycle events go to the event sink; both are
// optional.
type Scheduler struct {
	// maxParallel is the maximum number of concurrent workers
	maxParallel int

	// executor runs individual steps
	executor Executor

	// recorder persists build history, may be nil
	recorder Recorder

	// events receives lifecycle events, may be nil
	events EventSink

	logger zerolog.Logger

	// mu protects shared state during execution
	mu sync.RWMutex

	// stepResults maps step IDs to their execution results
	stepResults map[string]*StepResult

	// stepStatus tracks the current status of each step
	stepStatus map[string]StepStatus
}

// NewScheduler creates a scheduler. recorder and events may be nil to
// disable history persistence and event publishing.
func NewScheduler(
	maxParallel int,
	executor Executor,
	recorder Recorder,
	events EventSink,
	logger zerolog.Logger,
) *Scheduler {
	if maxParallel <= 0 {
		maxParallel = DefaultMaxParallel
	}

	return &Scheduler{
		maxParallel: maxParallel,
		executor:    executor,
		recorder:    recorder,
		events:      events,
		logger:      logger.With().Str("component", "scheduler").Logger(),
		stepResults: make(map[string]*StepResult),
		stepStatus:  make(map[string]StepStatus),
	}
}

// Execute runs the plan to completion and returns the run. Step failures
// are reported through the run status and summary, not the error return;
// the error is non-nil only when the plan cannot be executed at all or the
// context was cancelled.
func (s *Scheduler) Execute(ctx context.Context, plan *Plan, opts Options) (*Run, error) {
	if plan == nil {
		return nil, NewPermanentError("plan is nil", nil).WithCode(ErrCodeValidation)
	}
	if plan.Graph == nil {
		return nil, NewPermanentError("plan has no execution graph", nil).
			WithCode(ErrCodeValidation)
	}

	run := &Run{
		ID:        uuid.New().String(),
		PlanID:    plan.ID,
		Status:    RunStatusRunning,
		StartedAt: time.Now(),
		Summary: RunSummary{
			Total:   len(plan.Steps),
			Pending: len(plan.Steps),
		},
		Metadata: make(map[string]interface{}),
	}

	if plan.Metadata == nil {
		plan.Metadata = make(map[string]interface{})
	}
	plan.Metadata["run_id"] = run.ID

	s.mu.Lock()
	s.stepResults = make(map[string]*StepResult, len(plan.Steps))
	s.stepStatus = make(map[string]StepStatus, len(plan.Steps))
	for i := range plan.Steps {
		s.stepStatus[plan.Steps[i].ID] = StepStatusPending
	}
	s.mu.Unlock()

	if !opts.DryRun {
		if err := s.recordRunStart(ctx, plan); err != nil {
			return nil, err
		}
	}

	s.logger.Info().
		Str("run_id", run.ID).
		Int("steps", len(plan.Steps)).
		Int("builds", len(plan.Builds)).
		Bool("dry_run", opts.DryRun).
		Msg("Starting pipeline run")

	execErr := s.executeLevels(ctx, run, plan, opts)

	s.mu.RLock()
	summary := s.calculateRunSummary(plan.Steps)
	s.mu.RUnlock()

	run.Summary = summary
	completedAt := time.Now()
	run.CompletedAt = &completedAt
	run.Duration = completedAt.Sub(run.StartedAt)

	switch {
	case ctx.Err() != nil:
		run.Status = RunStatusCancelled
	case summary.Failed > 0:
		if summary.Succeeded > 0 {
			run.Status = RunStatusPartial
		} else {
			run.Status = RunStatusFailed
		}
	case summary.Skipped > 0 || summary.Cancelled > 0:
		run.Status = RunStatusPartial
	default:
		run.Status = RunStatusSucceeded
	}

	if !opts.DryRun {
		// The run context may already be cancelled; final statuses must
		// still land in the store.
		s.recordRunFinish(context.Background(), plan, run)
	}

	s.logger.Info().
		Str("run_id", run.ID).
		Str("status", string(run.Status)).
		Dur("duration", run.Duration).
		Int("succeeded", summary.Succeeded).
		Int("failed", summary.Failed).
		Int("skipped", summary.Skipped).
		Msg("Pipeline run finished")

	return run, execErr
}

// StepResultFor returns the stored result of a step from the last run.
func (s *Scheduler) StepResultFor(stepID string) (*StepResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result, ok := s.stepResults[stepID]
	return result, ok
}

// executeLevels executes the plan level by level, with parallelism within
// each level.
func (s *Scheduler) executeLevels(ctx context.Context, run *Run, plan *Plan, opts Options) error {
	stepMap := make(map[string]*Step, len(plan.Steps))
	for i := range plan.Steps {
		step := &plan.Steps[i]
		stepMap[step.ID] = step
	}

	for level := 0; level < plan.Graph.Depth; level++ {
		levelSteps := s.stepsAtLevel(plan.Graph, level, stepMap)
		if len(levelSteps) == 0 {
			continue
		}

		if err := s.executeLevelParallel(ctx, run, levelSteps, opts); err != nil {
			if opts.FailFast {
				s.logger.Warn().Int("level", level).Err(err).Msg("Stopping run after level failure")
				return nil
			}
			// Later levels still run; steps that required the failed one
			// will be skipped by the dependency check.
		}

		select {
		case <-ctx.Done():
			return s.handleCancellation(ctx, plan)
		default:
		}
	}

	return nil
}

// stepsAtLevel returns the steps at an execution level in ID order.
func (s *Scheduler) stepsAtLevel(graph *ExecutionGraph, level int, stepMap map[string]*Step) []*Step {
	steps := make([]*Step, 0)
	for _, node := range graph.Nodes {
		if node.Level == level {
			if step, exists := stepMap[node.ID]; exists {
				steps = append(steps, step)
			}
		}
	}

	sort.Slice(steps, func(i, j int) bool { return steps[i].ID < steps[j].ID })
	return steps
}

// executeLevelParallel executes all steps at a level using a worker pool.
func (s *Scheduler) executeLevelParallel(ctx context.Context, run *Run, steps []*Step, opts Options) error {
	workerCount := s.maxParallel
	if opts.MaxParallel > 0 && opts.MaxParallel < workerCount {
		workerCount = opts.MaxParallel
	}
	if len(steps) < workerCount {
		workerCount = len(steps)
	}

	workQueue := make(chan *Step, len(steps))
	for _, step := range steps {
		workQueue <- step
	}
	close(workQueue)

	var wg sync.WaitGroup
	errChan := make(chan error, len(steps))

	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			for step := range workQueue {
				if !s.checkDependencies(step) {
					s.markStepSkipped(ctx, step, "dependency failed")
					continue
				}

				if err := s.executeStep(ctx, run, step, opts); err != nil {
					errChan <- fmt.Errorf("step %s failed: %w", step.ID, err)
				}

				select {
				case <-ctx.Done():
					return
				default:
				}
			}
		}()
	}

	wg.Wait()
	close(errChan)

	var firstErr error
	for err := range errChan {
		if firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}

// executeStep executes a single step with retry logic.
func (s *Scheduler) executeStep(ctx context.Context, run *Run, step *Step, opts Options) error {
	s.updateStepStatus(step.ID, StepStatusRunning)
	if !opts.DryRun {
		s.recordStepStatus(ctx, step.ID, stores.StepStatusRunning, nil, nil)
	}
	s.publishStepStarted(step)

	startTime := time.Now()

	var result *StepResult
	var err error

	for attempt := 0; attempt <= step.MaxRetries; attempt++ {
		execCtx, cancel := context.WithTimeout(ctx, step.Timeout)

		if opts.DryRun {
			result = s.simulateDryRun(step)
			err = nil
		} else {
			result, err = s.executor.ExecuteStep(execCtx, step)
		}

		cancel()

		if err == nil && result != nil && result.Status == StepStatusSucceeded {
			break
		}

		if err != nil && !IsRetryable(err) {
			break
		}

		if attempt >= step.MaxRetries {
			break
		}

		step.Retries = attempt + 1
		if !opts.DryRun && s.recorder != nil {
			if recErr := s.recorder.IncrementStepRetries(ctx, step.ID); recErr != nil {
				s.logger.Warn().Err(recErr).Str("step", step.ID).Msg("Failed to record retry")
			}
		}

		backoff := s.calculateBackoff(attempt, err)
		s.logger.Warn().
			Str("step", step.ID).
			Int("attempt", attempt+1).
			Int("max_attempts", step.MaxRetries+1).
			Dur("backoff", backoff).
			Err(err).
			Msg("Step failed, retrying")
		s.appendHistoryEvent(ctx, step, stores.EventLevelWarning,
			fmt.Sprintf("Retrying %s after failure (attempt %d/%d)", step.Name, attempt+1, step.MaxRetries+1))

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if result == nil {
		result = &StepResult{
			StepID:      step.ID,
			Status:      StepStatusFailed,
			StartedAt:   startTime,
			CompletedAt: time.Now(),
			Duration:    time.Since(startTime),
		}
	}

	if err != nil {
		result.Status = StepStatusFailed
		if result.Error == nil {
			result.Error = classifyStepError(err, step)
		}
	}

	s.storeStepResult(step.ID, result)
	step.Result = result

	if result.Status == StepStatusSucceeded {
		s.updateStepStatus(step.ID, StepStatusSucceeded)
		if !opts.DryRun {
			s.recordStepStatus(ctx, step.ID, stores.StepStatusSucceeded, &result.ExitCode, nil)
			s.recordStepLog(ctx, step, result)
			s.persistArtifacts(ctx, step, result)
		}
		s.publishStepCompleted(step, result)
		return nil
	}

	if result.Error == nil {
		result.Error = NewPermanentError("step failed", nil).WithStep(step.ID)
	}

	s.updateStepStatus(step.ID, StepStatusFailed)
	if !opts.DryRun {
		errMsg := result.Error.Error()
		s.recordStepStatus(ctx, step.ID, stores.StepStatusFailed, &result.ExitCode, &errMsg)
		s.recordStepLog(ctx, step, result)
		s.appendHistoryEvent(ctx, step, stores.EventLevelError,
			fmt.Sprintf("Step %s failed: %s", step.Name, errMsg))
	}
	s.publishStepFailed(step, result)
	return result.Error
}

// checkDependencies verifies that the step's dependencies allow it to run.
func (s *Scheduler) checkDependencies(step *Step) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, dep := range step.Dependencies {
		status, exists := s.stepStatus[dep.TargetID]
		if !exists {
			return false
		}

		switch dep.Type {
		case DependencyRequire:
			// Required dependencies must succeed
			if status != StepStatusSucceeded {
				return false
			}
		case DependencyOrder:
			// Order dependencies must merely finish
			if !status.IsTerminal() {
				return false
			}
		}
	}

	return true
}

// calculateBackoff calculates exponential backoff with jitter.
func (s *Scheduler) calculateBackoff(attempt int, err error) time.Duration {
	baseDelay := 1 * time.Second

	if IsThrottled(err) {
		baseDelay = 5 * time.Second
	} else if IsConflict(err) {
		baseDelay = 2 * time.Second
	}

	// Exponential backoff: delay = baseDelay * 2^attempt
	delay := baseDelay * time.Duration(math.Pow(2, float64(attempt)))

	if delay > time.Minute {
		delay = time.Minute
	}

	// Add jitter (+12.5%)
	jitter := time.Duration(float64(delay) * 0.25)
	delay = delay + jitter/2

	return delay
}

// simulateDryRun produces a successful result without running the step.
func (s *Scheduler) simulateDryRun(step *Step) *StepResult {
	now := time.Now()
	return &StepResult{
		StepID:      step.ID,
		Status:      StepStatusSucceeded,
		StartedAt:   now,
		CompletedAt: now,
		Duration:    0,
	}
}

// handleCancellation marks every step that has not finished as cancelled.
func (s *Scheduler) handleCancellation(ctx context.Context, plan *Plan) error {
	s.mu.Lock()
	cancelled := make([]string, 0)
	for i := range plan.Steps {
		id := plan.Steps[i].ID
		if !s.stepStatus[id].IsTerminal() {
			s.stepStatus[id] = StepStatusCancelled
			cancelled = append(cancelled, id)
		}
	}
	s.mu.Unlock()

	if s.recorder != nil {
		reason := "run cancelled"
		for _, id := range cancelled {
			// Persist with a background context, the run context is gone.
			s.recordStepStatus(context.Background(), id, stores.StepStatusCancelled, nil, &reason)
		}
	}

	return NewPermanentError("execution cancelled", ctx.Err()).
		WithCode(ErrCodeCancelled)
}

// updateStepStatus updates the in-memory status of a step.
func (s *Scheduler) updateStepStatus(stepID string, status StepStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stepStatus[stepID] = status
}

// storeStepResult stores the execution result for a step.
func (s *Scheduler) storeStepResult(stepID string, result *StepResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stepResults[stepID] = result
}

// markStepSkipped marks a step as skipped because a dependency failed.
func (s *Scheduler) markStepSkipped(ctx context.Context, step *Step, reason string) {
	s.updateStepStatus(step.ID, StepStatusSkipped)

	now := time.Now()
	result := &StepResult{
		StepID:      step.ID,
		Status:      StepStatusSkipped,
		StartedAt:   now,
		CompletedAt: now,
		Duration:    0,
		Error: NewPermanentError(reason, nil).
			WithCode(ErrCodeDependencyFailed).
			WithStep(step.ID),
	}

	s.storeStepResult(step.ID, result)
	step.Result = result

	s.recordStepStatus(ctx, step.ID, stores.StepStatusSkipped, nil, &reason)
	s.appendHistoryEvent(ctx, step, stores.EventLevelWarning,
		fmt.Sprintf("Skipped %s: %s", step.Name, reason))
	s.logger.Warn().Str("step", step.ID).Str("reason", reason).Msg("Step skipped")
}

// calculateRunSummary tallies final step statuses.
func (s *Scheduler) calculateRunSummary(steps []Step) RunSummary {
	summary := RunSummary{
		Total: len(steps),
	}

	for i := range steps {
		switch s.stepStatus[steps[i].ID] {
		case StepStatusSucceeded:
			summary.Succeeded++
		case StepStatusFailed:
			summary.Failed++
		case StepStatusSkipped:
			summary.Skipped++
		case StepStatusCancelled:
			summary.Cancelled++
		default:
			summary.Pending++
		}
	}

	return summary
}

// recordRunStart persists the build and step rows before execution begins.
func (s *Scheduler) recordRunStart(ctx context.Context, plan *Plan) error {
	if s.recorder == nil {
		return nil
	}

	now := time.Now()
	for _, rec := range plan.Builds {
		cfgJSON, err := json.Marshal(rec.Config)
		if err != nil {
			return NewPermanentError("failed to encode resolved configuration", err).
				WithCode(ErrCodeInternal)
		}

		build := &stores.Build{
			ID:             rec.BuildID,
			Target:         rec.Target.FullName(),
			Platform:       rec.Platform.FullName(),
			Profile:        rec.Profile.FullName(),
			Status:         stores.BuildStatusRunning,
			ManifestPath:   rec.ManifestPath,
			ResolvedConfig: string(cfgJSON),
			StartedAt:      now,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := s.recorder.CreateBuild(ctx, build); err != nil {
			return fmt.Errorf("failed to create build record: %w", err)
		}

		if s.events != nil {
			if err := s.events.PublishBuildStarted(rec.BuildID,
				rec.Target.FullName(), rec.Platform.FullName(), rec.Profile.FullName()); err != nil {
				s.logger.Debug().Err(err).Msg("Failed to publish build started event")
			}
		}
	}

	for i := range plan.Steps {
		step := &plan.Steps[i]
		row := &stores.Step{
			ID:        step.ID,
			BuildID:   step.BuildID,
			Name:      step.Name,
			Tool:      step.Tool,
			Status:    stores.StepStatusPending,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.recorder.CreateStep(ctx, row); err != nil {
			return fmt.Errorf("failed to create step record: %w", err)
		}
	}

	return nil
}

// recordRunFinish settles the build rows from their step outcomes.
func (s *Scheduler) recordRunFinish(ctx context.Context, plan *Plan, run *Run) {
	if s.recorder == nil && s.events == nil {
		return
	}

	for _, rec := range plan.Builds {
		status, failMsg := s.buildOutcome(plan, rec)

		if s.recorder != nil {
			var errMsg *string
			if failMsg != "" {
				errMsg = &failMsg
			}
			if err := s.recorder.UpdateBuildStatus(ctx, rec.BuildID, status, errMsg); err != nil {
				s.logger.Warn().Err(err).Str("build", rec.BuildID).Msg("Failed to update build status")
			}
		}

		if s.events == nil {
			continue
		}
		switch status {
		case stores.BuildStatusSucceeded:
			if err := s.events.PublishBuildCompleted(rec.BuildID, string(status), run.Duration); err != nil {
				s.logger.Debug().Err(err).Msg("Failed to publish build completed event")
			}
		case stores.BuildStatusFailed:
			if err := s.events.PublishBuildFailed(rec.BuildID, failMsg); err != nil {
				s.logger.Debug().Err(err).Msg("Failed to publish build failed event")
			}
		case stores.BuildStatusCancelled:
			if err := s.events.PublishBuildCompleted(rec.BuildID, string(status), run.Duration); err != nil {
				s.logger.Debug().Err(err).Msg("Failed to publish build cancelled event")
			}
		}
	}
}

// buildOutcome derives a build's final status from its step statuses.
func (s *Scheduler) buildOutcome(plan *Plan, rec *BuildRecord) (stores.BuildStatus, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	failMsg := ""
	sawCancelled := false
	sawPending := false

	for i := range plan.Steps {
		step := &plan.Steps[i]
		if step.BuildID != rec.BuildID {
			continue
		}

		switch s.stepStatus[step.ID] {
		case StepStatusFailed:
			if failMsg == "" && step.Result != nil && step.Result.Error != nil {
				failMsg = step.Result.Error.Error()
			}
			if failMsg == "" {
				failMsg = fmt.Sprintf("step %s failed", step.Name)
			}
			return stores.BuildStatusFailed, failMsg
		case StepStatusSkipped:
			if failMsg == "" {
				failMsg = fmt.Sprintf("step %s skipped after a dependency failure", step.Name)
			}
		case StepStatusCancelled:
			sawCancelled = true
		case StepStatusPending, StepStatusRunning:
			sawPending = true
		}
	}

	if failMsg != "" {
		return stores.BuildStatusFailed, failMsg
	}
	if sawCancelled {
		return stores.BuildStatusCancelled, "run cancelled"
	}
	if sawPending {
		return stores.BuildStatusCancelled, "run stopped before the build finished"
	}
	return stores.BuildStatusSucceeded, ""
}

// recordStepStatus persists a step status transition.
func (s *Scheduler) recordStepStatus(ctx context.Context, stepID string, status stores.StepStatus, exitCode *int, errMsg *string) {
	if s.recorder == nil {
		return
	}
	if err := s.recorder.UpdateStepStatus(ctx, stepID, status, exitCode, errMsg); err != nil {
		s.logger.Warn().Err(err).Str("step", stepID).Msg("Failed to update step status")
	}
}

// recordStepLog attaches the captured log to the step's history event
// stream so failures stay diagnosable after the run.
func (s *Scheduler) recordStepLog(ctx context.Context, step *Step, result *StepResult) {
	if s.recorder == nil || result.LogPath == "" {
		return
	}
	details, err := json.Marshal(map[string]string{"log_path": result.LogPath})
	if err != nil {
		return
	}
	detailsStr := string(details)
	event := &stores.Event{
		BuildID:   &step.BuildID,
		StepID:    &step.ID,
		Level:     stores.EventLevelDebug,
		Message:   fmt.Sprintf("Output of %s captured", step.Name),
		Details:   &detailsStr,
		Timestamp: time.Now(),
	}
	if appendErr := s.recorder.AppendEvent(ctx, event); appendErr != nil {
		s.logger.Debug().Err(appendErr).Str("step", step.ID).Msg("Failed to append log event")
	}
}

// persistArtifacts records staged artifacts and promotes the boot image
// onto the build row.
func (s *Scheduler) persistArtifacts(ctx context.Context, step *Step, result *StepResult) {
	if s.recorder == nil {
		return
	}

	for _, art := range result.Artifacts {
		row := &stores.Artifact{
			ID:        uuid.New().String(),
			BuildID:   step.BuildID,
			Kind:      art.Kind,
			Path:      art.Path,
			Size:      art.Size,
			Checksum:  art.Checksum,
			CreatedAt: time.Now(),
		}
		if err := s.recorder.RecordArtifact(ctx, row); err != nil {
			s.logger.Warn().Err(err).Str("path", art.Path).Msg("Failed to record artifact")
		}
	}

	if result.ImagePath != "" {
		if err := s.recorder.UpdateBuildArtifact(ctx, step.BuildID, result.ImagePath, result.ImageSize); err != nil {
			s.logger.Warn().Err(err).Str("build", step.BuildID).Msg("Failed to update build artifact")
		}
	}
}

// appendHistoryEvent writes an event row to the history store.
func (s *Scheduler) appendHistoryEvent(ctx context.Context, step *Step, level stores.EventLevel, message string) {
	if s.recorder == nil {
		return
	}
	event := &stores.Event{
		BuildID:   &step.BuildID,
		StepID:    &step.ID,
		Level:     level,
		Message:   message,
		Timestamp: time.Now(),
	}
	if err := s.recorder.AppendEvent(ctx, event); err != nil {
		s.logger.Debug().Err(err).Str("step", step.ID).Msg("Failed to append history event")
	}
}

// publishStepStarted publishes a step started event.
func (s *Scheduler) publishStepStarted(step *Step) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishStepStarted(step.BuildID, step.ID, step.Tool); err != nil {
		s.logger.Debug().Err(err).Str("step", step.ID).Msg("Failed to publish step started event")
	}
}

// publishStepCompleted publishes a step completed event.
func (s *Scheduler) publishStepCompleted(step *Step, result *StepResult) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishStepCompleted(step.BuildID, step.ID, result.Duration); err != nil {
		s.logger.Debug().Err(err).Str("step", step.ID).Msg("Failed to publish step completed event")
	}
}

// publishStepFailed publishes a step failed event.
func (s *Scheduler) publishStepFailed(step *Step, result *StepResult) {
	if s.events == nil {
		return
	}
	reason := ""
	if result.Error != nil {
		reason = result.Error.Error()
	}
	if err := s.events.PublishStepFailed(step.BuildID, step.ID, reason); err != nil {
		s.logger.Debug().Err(err).Str("step", step.ID).Msg("Failed to publish step failed event")
	}
}
