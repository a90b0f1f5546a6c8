package types

import "time"

// ErrorKind classifies a task-level error.
type ErrorKind string

const (
	ErrElementNotFound  ErrorKind = "element_not_found" // ErrElementNotFound means the resolver exhausted all strategies.
	ErrTimeout          ErrorKind = "timeout"           // ErrTimeout means an action or the task exceeded its allotted time.
	ErrNetwork          ErrorKind = "network_error"     // ErrNetwork means navigation or a resource load failed.
	ErrValidationFailed ErrorKind = "validation_failed" // ErrValidationFailed means a required validation rule did not hold.
	ErrSecurity         ErrorKind = "security_error"    // ErrSecurity means the security gate rejected the task.
)

// ValidationPhaseStep is the StepIndex recorded for errors raised during
// the validation phase, which has no corresponding action step.
const ValidationPhaseStep = -1

// TaskError records one task-level failure.
type TaskError struct {
	// Kind classifies the failure.
	Kind ErrorKind `json:"kind" yaml:"kind"`

	// Message is the human-readable description.
	Message string `json:"message" yaml:"message"`

	// StepIndex is the action index the failure occurred at, or
	// ValidationPhaseStep for validation-phase failures.
	StepIndex int `json:"step_index" yaml:"step_index"`

	// Recoverable indicates a retry or fallback could have addressed it.
	Recoverable bool `json:"recoverable" yaml:"recoverable"`

	// Timestamp is when the failure was recorded.
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
}

// StepResult records the outcome of one attempted action.
type StepResult struct {
	// Action is the action that was attempted.
	Action Action `json:"action" yaml:"action"`

	// Success reports whether the action completed.
	Success bool `json:"success" yaml:"success"`

	// Duration is how long the attempt took.
	Duration time.Duration `json:"duration" yaml:"duration"`

	// Error holds the failure message for unsuccessful steps.
	Error string `json:"error,omitempty" yaml:"error,omitempty"`

	// ElementFound reports whether the resolver located the target.
	ElementFound bool `json:"element_found" yaml:"element_found"`

	// Confidence is the resolver's confidence in the located element.
	Confidence float64 `json:"confidence,omitempty" yaml:"confidence,omitempty"`
}

// PerformanceMetrics aggregates timing and resource data for one task.
type PerformanceMetrics struct {
	// TotalDuration is the wall-clock execution time.
	TotalDuration time.Duration `json:"total_duration" yaml:"total_duration"`

	// AverageStepDuration is the mean per-step time.
	AverageStepDuration time.Duration `json:"average_step_duration" yaml:"average_step_duration"`

	// ElementDetection estimates time spent locating elements.
	ElementDetection time.Duration `json:"element_detection" yaml:"element_detection"`

	// NetworkTime estimates time spent waiting on the network.
	NetworkTime time.Duration `json:"network_time" yaml:"network_time"`

	// MemoryBytes is the process resident set at completion.
	MemoryBytes uint64 `json:"memory_bytes" yaml:"memory_bytes"`

	// SuccessRate is the fraction of steps that succeeded.
	SuccessRate float64 `json:"success_rate" yaml:"success_rate"`
}

// ExtractedKind tags an extracted payload variant.
type ExtractedKind string

const (
	ExtractedText   ExtractedKind = "text"
	ExtractedNumber ExtractedKind = "number"
	ExtractedList   ExtractedKind = "list"
	ExtractedNone   ExtractedKind = "none"
)

// ExtractedValue is a tagged variant for extraction payloads so consumers
// never handle untyped blobs.
type ExtractedValue struct {
	// Kind selects which field below is populated.
	Kind ExtractedKind `json:"kind" yaml:"kind"`

	// Text holds the payload for ExtractedText.
	Text string `json:"text,omitempty" yaml:"text,omitempty"`

	// Number holds the payload for ExtractedNumber.
	Number float64 `json:"number,omitempty" yaml:"number,omitempty"`

	// List holds the payload for ExtractedList.
	List []ExtractedValue `json:"list,omitempty" yaml:"list,omitempty"`
}

// TextValue builds a text variant.
func TextValue(s string) ExtractedValue {
	return ExtractedValue{Kind: ExtractedText, Text: s}
}

// NumberValue builds a number variant.
func NumberValue(n float64) ExtractedValue {
	return ExtractedValue{Kind: ExtractedNumber, Number: n}
}

// ListValue builds a list variant.
func ListValue(items ...ExtractedValue) ExtractedValue {
	return ExtractedValue{Kind: ExtractedList, List: items}
}

// NoneValue builds the empty variant.
func NoneValue() ExtractedValue {
	return ExtractedValue{Kind: ExtractedNone}
}

// Result is the self-describing outcome of one task execution. Steps entries
// correspond 1:1, in order, to the actions actually attempted, and Success is
// true iff Errors is empty.
type Result struct {
	// TaskID identifies the executed task.
	TaskID string `json:"task_id" yaml:"task_id"`

	// Success reports whether the task completed without errors.
	Success bool `json:"success" yaml:"success"`

	// Duration is the total wall-clock execution time.
	Duration time.Duration `json:"duration" yaml:"duration"`

	// Steps records each attempted action in execution order.
	Steps []StepResult `json:"steps" yaml:"steps"`

	// Errors holds all task-level failures.
	Errors []TaskError `json:"errors" yaml:"errors"`

	// Metrics aggregates performance data for the run.
	Metrics PerformanceMetrics `json:"metrics" yaml:"metrics"`

	// Extracted holds payloads produced by extract actions.
	Extracted []ExtractedValue `json:"extracted,omitempty" yaml:"extracted,omitempty"`
}

// AddError appends a task error stamped with the current time and keeps
// Success consistent with the invariant that it is true iff Errors is empty.
func (r *Result) AddError(kind ErrorKind, message string, stepIndex int, recoverable bool) {
	r.Errors = append(r.Errors, TaskError{
		Kind:        kind,
		Message:     message,
		StepIndex:   stepIndex,
		Recoverable: recoverable,
		Timestamp:   time.Now(),
	})
	r.Success = false
}
