package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event represents a telemetry event in the fel4 build pipeline.
type Event struct {
	// ID is the unique identifier for this event.
	ID string `json:"id"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Type is the event type.
	Type string `json:"type"`

	// Source identifies where the event originated.
	Source string `json:"source"`

	// BuildID is the associated build ID, if applicable.
	BuildID string `json:"build_id,omitempty"`

	// StepID is the associated pipeline step ID, if applicable.
	StepID string `json:"step_id,omitempty"`

	// Board is the associated deployment board, if applicable.
	Board string `json:"board,omitempty"`

	// Message is a human-readable event message.
	Message string `json:"message"`

	// Level is the event severity level (info, warning, error).
	Level string `json:"level"`

	// Data contains additional event-specific data.
	Data map[string]interface{} `json:"data,omitempty"`
}

// EventType constants for common event types.
const (
	EventTypeBuildStarted        = "build.started"
	EventTypeBuildCompleted      = "build.completed"
	EventTypeBuildFailed         = "build.failed"
	EventTypeStepStarted         = "step.started"
	EventTypeStepCompleted       = "step.completed"
	EventTypeStepFailed          = "step.failed"
	EventTypeManifestResolved    = "manifest.resolved"
	EventTypeSimulationStarted   = "simulation.started"
	EventTypeSimulationExited    = "simulation.exited"
	EventTypeDeploymentStarted   = "deployment.started"
	EventTypeDeploymentCompleted = "deployment.completed"
	EventTypeDeploymentFailed    = "deployment.failed"
	EventTypePolicyViolation     = "policy.violation"
	EventTypeError               = "error"
)

// EventLevel constants for event severity.
const (
	EventLevelInfo    = "info"
	EventLevelWarning = "warning"
	EventLevelError   = "error"
)

// EventSubscriber is a function that handles events.
type EventSubscriber func(event Event)

// EventFilter determines if an event should be processed.
type EventFilter func(event Event) bool

// EventPublisher manages event publishing and subscriptions.
type EventPublisher struct {
	config      EventsConfig
	buffer      chan Event
	subscribers []subscriberEntry
	filters     []EventFilter
	wg          sync.WaitGroup
	mu          sync.RWMutex
	ctx         context.Context
	cancel      context.CancelFunc
}

type subscriberEntry struct {
	subscriber EventSubscriber
	filter     EventFilter
}

// NewEventPublisher creates a new event publisher with the given configuration.
func NewEventPublisher(cfg EventsConfig) (*EventPublisher, error) {
	if !cfg.Enabled {
		return &EventPublisher{config: cfg}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())

	ep := &EventPublisher{
		config:      cfg,
		buffer:      make(chan Event, cfg.BufferSize),
		subscribers: make([]subscriberEntry, 0),
		filters:     make([]EventFilter, 0),
		ctx:         ctx,
		cancel:      cancel,
	}

	// Start the event processing goroutine
	if cfg.EnableAsync {
		ep.wg.Add(1)
		go ep.processEvents()
	}

	return ep, nil
}

// Publish publishes an event to all subscribers.
func (ep *EventPublisher) Publish(event Event) error {
	if !ep.config.Enabled {
		return nil
	}

	// Set ID and timestamp if not already set
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	// Apply global filters
	ep.mu.RLock()
	for _, filter := range ep.filters {
		if !filter(event) {
			ep.mu.RUnlock()
			return nil // Event filtered out
		}
	}
	ep.mu.RUnlock()

	// Send to buffer if async, otherwise process immediately
	if ep.config.EnableAsync {
		select {
		case ep.buffer <- event:
			return nil
		case <-ep.ctx.Done():
			return fmt.Errorf("event publisher stopped")
		default:
			// Buffer full, drop event or log warning
			return fmt.Errorf("event buffer full, event dropped")
		}
	}

	// Synchronous publishing
	ep.deliverEvent(event)
	return nil
}

// PublishBuildStarted publishes a build started event.
func (ep *EventPublisher) PublishBuildStarted(buildID, target, platform, profile string) error {
	return ep.Publish(Event{
		Type:    EventTypeBuildStarted,
		Source:  "pipeline",
		BuildID: buildID,
		Message: fmt.Sprintf("Build %s started for %s/%s (%s)", buildID, target, platform, profile),
		Level:   EventLevelInfo,
		Data: map[string]interface{}{
			"target":   target,
			"platform": platform,
			"profile":  profile,
		},
	})
}

// PublishBuildCompleted publishes a build completed event.
func (ep *EventPublisher) PublishBuildCompleted(buildID, status string, duration time.Duration) error {
	return ep.Publish(Event{
		Type:    EventTypeBuildCompleted,
		Source:  "pipeline",
		BuildID: buildID,
		Message: fmt.Sprintf("Build %s completed with status: %s", buildID, status),
		Level:   EventLevelInfo,
		Data: map[string]interface{}{
			"status":   status,
			"duration": duration.Seconds(),
		},
	})
}

// PublishBuildFailed publishes a build failed event.
func (ep *EventPublisher) PublishBuildFailed(buildID, reason string) error {
	return ep.Publish(Event{
		Type:    EventTypeBuildFailed,
		Source:  "pipeline",
		BuildID: buildID,
		Message: fmt.Sprintf("Build %s failed: %s", buildID, reason),
		Level:   EventLevelError,
		Data: map[string]interface{}{
			"reason": reason,
		},
	})
}

// PublishStepStarted publishes a pipeline step started event.
func (ep *EventPublisher) PublishStepStarted(buildID, stepID, tool string) error {
	return ep.Publish(Event{
		Type:    EventTypeStepStarted,
		Source:  "pipeline",
		BuildID: buildID,
		StepID:  stepID,
		Message: fmt.Sprintf("Step %s started (%s)", stepID, tool),
		Level:   EventLevelInfo,
		Data: map[string]interface{}{
			"tool": tool,
		},
	})
}

// PublishStepCompleted publishes a pipeline step completed event.
func (ep *EventPublisher) PublishStepCompleted(buildID, stepID string, duration time.Duration) error {
	return ep.Publish(Event{
		Type:    EventTypeStepCompleted,
		Source:  "pipeline",
		BuildID: buildID,
		StepID:  stepID,
		Message: fmt.Sprintf("Step %s completed", stepID),
		Level:   EventLevelInfo,
		Data: map[string]interface{}{
			"duration": duration.Seconds(),
		},
	})
}

// PublishStepFailed publishes a pipeline step failed event.
func (ep *EventPublisher) PublishStepFailed(buildID, stepID, reason string) error {
	return ep.Publish(Event{
		Type:    EventTypeStepFailed,
		Source:  "pipeline",
		BuildID: buildID,
		StepID:  stepID,
		Message: fmt.Sprintf("Step %s failed: %s", stepID, reason),
		Level:   EventLevelError,
		Data: map[string]interface{}{
			"reason": reason,
		},
	})
}

// PublishManifestResolved publishes a manifest resolution event.
func (ep *EventPublisher) PublishManifestResolved(target, platform, profile string, properties int) error {
	return ep.Publish(Event{
		Type:    EventTypeManifestResolved,
		Source:  "manifest",
		Message: fmt.Sprintf("Manifest resolved for %s/%s (%s): %d properties", target, platform, profile, properties),
		Level:   EventLevelInfo,
		Data: map[string]interface{}{
			"target":     target,
			"platform":   platform,
			"profile":    profile,
			"properties": properties,
		},
	})
}

// PublishSimulationStarted publishes a simulation started event.
func (ep *EventPublisher) PublishSimulationStarted(buildID, platform string) error {
	return ep.Publish(Event{
		Type:    EventTypeSimulationStarted,
		Source:  "simulate",
		BuildID: buildID,
		Message: fmt.Sprintf("Simulation started for platform %s", platform),
		Level:   EventLevelInfo,
		Data: map[string]interface{}{
			"platform": platform,
		},
	})
}

// PublishSimulationExited publishes a simulation exited event.
func (ep *EventPublisher) PublishSimulationExited(buildID, platform string, exitCode int) error {
	level := EventLevelInfo
	if exitCode != 0 {
		level = EventLevelWarning
	}
	return ep.Publish(Event{
		Type:    EventTypeSimulationExited,
		Source:  "simulate",
		BuildID: buildID,
		Message: fmt.Sprintf("Simulation for platform %s exited with code %d", platform, exitCode),
		Level:   level,
		Data: map[string]interface{}{
			"platform":  platform,
			"exit_code": exitCode,
		},
	})
}

// PublishDeploymentStarted publishes a deployment started event.
func (ep *EventPublisher) PublishDeploymentStarted(board, image string) error {
	return ep.Publish(Event{
		Type:    EventTypeDeploymentStarted,
		Source:  "deploy",
		Board:   board,
		Message: fmt.Sprintf("Deployment of %s to board %s started", image, board),
		Level:   EventLevelInfo,
		Data: map[string]interface{}{
			"image": image,
		},
	})
}

// PublishDeploymentCompleted publishes a deployment completed event.
func (ep *EventPublisher) PublishDeploymentCompleted(board string, duration time.Duration) error {
	return ep.Publish(Event{
		Type:    EventTypeDeploymentCompleted,
		Source:  "deploy",
		Board:   board,
		Message: fmt.Sprintf("Deployment to board %s completed", board),
		Level:   EventLevelInfo,
		Data: map[string]interface{}{
			"duration": duration.Seconds(),
		},
	})
}

// PublishDeploymentFailed publishes a deployment failed event.
func (ep *EventPublisher) PublishDeploymentFailed(board, reason string) error {
	return ep.Publish(Event{
		Type:    EventTypeDeploymentFailed,
		Source:  "deploy",
		Board:   board,
		Message: fmt.Sprintf("Deployment to board %s failed: %s", board, reason),
		Level:   EventLevelError,
		Data: map[string]interface{}{
			"reason": reason,
		},
	})
}

// PublishPolicyViolation publishes a policy violation event.
func (ep *EventPublisher) PublishPolicyViolation(policyName, reason string) error {
	return ep.Publish(Event{
		Type:    EventTypePolicyViolation,
		Source:  "policy",
		Message: fmt.Sprintf("Policy violation: %s - %s", policyName, reason),
		Level:   EventLevelError,
		Data: map[string]interface{}{
			"policy": policyName,
			"reason": reason,
		},
	})
}

// Subscribe adds a new event subscriber.
func (ep *EventPublisher) Subscribe(subscriber EventSubscriber, filter EventFilter) {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	ep.subscribers = append(ep.subscribers, subscriberEntry{
		subscriber: subscriber,
		filter:     filter,
	})
}

// AddFilter adds a global event filter.
func (ep *EventPublisher) AddFilter(filter EventFilter) {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	ep.filters = append(ep.filters, filter)
}

// processEvents processes events from the buffer asynchronously.
func (ep *EventPublisher) processEvents() {
	defer ep.wg.Done()

	batch := make([]Event, 0, ep.config.MaxBatchSize)

	for {
		select {
		case event := <-ep.buffer:
			batch = append(batch, event)

			// Flush batch if it reaches max size
			if len(batch) >= ep.config.MaxBatchSize {
				ep.flushBatch(batch)
				batch = make([]Event, 0, ep.config.MaxBatchSize)
			}

		case <-time.After(ep.config.FlushInterval):
			if len(batch) > 0 {
				ep.flushBatch(batch)
				batch = make([]Event, 0, ep.config.MaxBatchSize)
			}

		case <-ep.ctx.Done():
			// Flush remaining events before shutting down
			for {
				select {
				case event := <-ep.buffer:
					batch = append(batch, event)
					continue
				default:
				}
				break
			}
			if len(batch) > 0 {
				ep.flushBatch(batch)
			}
			return
		}
	}
}

// flushBatch delivers a batch of events to subscribers.
func (ep *EventPublisher) flushBatch(events []Event) {
	for _, event := range events {
		ep.deliverEvent(event)
	}
}

// deliverEvent delivers an event to all subscribers.
func (ep *EventPublisher) deliverEvent(event Event) {
	ep.mu.RLock()
	defer ep.mu.RUnlock()

	for _, entry := range ep.subscribers {
		// Apply subscriber-specific filter
		if entry.filter != nil && !entry.filter(event) {
			continue
		}

		entry.subscriber(event)
	}
}

// Shutdown gracefully shuts down the event publisher.
func (ep *EventPublisher) Shutdown(ctx context.Context) error {
	if !ep.config.Enabled {
		return nil
	}

	// Signal shutdown
	ep.cancel()

	// Wait for processing to complete with timeout
	done := make(chan struct{})
	go func() {
		ep.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("event publisher shutdown timeout")
	}
}

// Common event filters.

// FilterByLevel creates a filter that only allows events of a specific level or higher.
func FilterByLevel(minLevel string) EventFilter {
	levels := map[string]int{
		EventLevelInfo:    0,
		EventLevelWarning: 1,
		EventLevelError:   2,
	}

	minLevelValue := levels[minLevel]

	return func(event Event) bool {
		return levels[event.Level] >= minLevelValue
	}
}

// FilterByType creates a filter that only allows events of specific types.
func FilterByType(types ...string) EventFilter {
	typeSet := make(map[string]bool)
	for _, t := range types {
		typeSet[t] = true
	}

	return func(event Event) bool {
		return typeSet[event.Type]
	}
}

// FilterByBuildID creates a filter that only allows events for a specific build.
func FilterByBuildID(buildID string) EventFilter {
	return func(event Event) bool {
		return event.BuildID == buildID
	}
}

// FilterByBoard creates a filter that only allows events for a specific board.
func FilterByBoard(board string) EventFilter {
	return func(event Event) bool {
		return event.Board == board
	}
}
