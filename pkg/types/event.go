package types

import "time"

// EventType defines the closed set of lifecycle events the engine emits.
type EventType string

const (
	EventEngineInitialized EventType = "engine_initialized" // EventEngineInitialized indicates the browser session is ready.
	EventTaskCompleted     EventType = "task_completed"     // EventTaskCompleted indicates a task finished with Success=true.
	EventTaskFailed        EventType = "task_failed"        // EventTaskFailed indicates a task finished with Success=false.
	EventEngineError       EventType = "engine_error"       // EventEngineError indicates an engine-level failure outside any task.
	EventEngineCleanup     EventType = "engine_cleanup"     // EventEngineCleanup indicates the browser session was torn down.
)

// Event is a strongly-typed lifecycle notification. Events are delivered
// over per-subscriber buffered channels; a slow subscriber drops events
// rather than blocking task execution.
type Event struct {
	// Type indicates the kind of event.
	Type EventType

	// TaskID identifies the task for task-scoped events.
	TaskID string

	// Result carries the task outcome for completion/failure events.
	Result *Result

	// Err carries failure detail for engine_error events.
	Err error

	// Timestamp is when the event was emitted.
	Timestamp time.Time
}

// NewEngineInitializedEvent creates an engine_initialized event.
func NewEngineInitializedEvent() Event {
	return Event{Type: EventEngineInitialized, Timestamp: time.Now()}
}

// NewTaskCompletedEvent creates a task_completed event.
func NewTaskCompletedEvent(result *Result) Event {
	return Event{Type: EventTaskCompleted, TaskID: result.TaskID, Result: result, Timestamp: time.Now()}
}

// NewTaskFailedEvent creates a task_failed event.
func NewTaskFailedEvent(result *Result) Event {
	return Event{Type: EventTaskFailed, TaskID: result.TaskID, Result: result, Timestamp: time.Now()}
}

// NewEngineErrorEvent creates an engine_error event.
func NewEngineErrorEvent(err error) Event {
	return Event{Type: EventEngineError, Err: err, Timestamp: time.Now()}
}

// NewEngineCleanupEvent creates an engine_cleanup event.
func NewEngineCleanupEvent() Event {
	return Event{Type: EventEngineCleanup, Timestamp: time.Now()}
}

// IsTaskEvent returns true for task-scoped events.
func (e Event) IsTaskEvent() bool {
	return e.Type == EventTaskCompleted || e.Type == EventTaskFailed
}
