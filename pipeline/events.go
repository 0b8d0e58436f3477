// ABOUTME: Lifecycle events emitted by the orchestrator during query execution.
// ABOUTME: Consumers (CLI verbose mode, server log, TUI) subscribe via an event callback.
package pipeline

import "time"

// EventType identifies the kind of pipeline lifecycle event.
type EventType string

const (
	EventQueryStarted   EventType = "query.started"
	EventQueryCompleted EventType = "query.completed"
	EventQueryBlocked   EventType = "query.blocked"
	EventQueryFailed    EventType = "query.failed"
	EventStageCompleted EventType = "stage.completed"
	EventBatchCalled    EventType = "batch.called"
	EventCorrection     EventType = "correction.attempted"
)

// Event is one lifecycle event emitted during query execution.
type Event struct {
	Type      EventType
	QueryID   string
	Stage     string
	Data      map[string]any
	Timestamp time.Time
}

// EventHandler receives pipeline events. Handlers must be fast; the
// orchestrator calls them synchronously.
type EventHandler func(Event)
