package types

import (
	"time"

	"github.com/google/uuid"
)

// TaskKind categorizes the overall intent of a task.
type TaskKind string

const (
	TaskKindNavigation  TaskKind = "navigation"  // TaskKindNavigation loads a page and optionally validates it.
	TaskKindInteraction TaskKind = "interaction" // TaskKindInteraction drives clicks, typing, and form input.
	TaskKindExtraction  TaskKind = "extraction"  // TaskKindExtraction pulls content out of a page.
	TaskKindValidation  TaskKind = "validation"  // TaskKindValidation checks page state without mutating it.
	TaskKindWorkflow    TaskKind = "workflow"    // TaskKindWorkflow mixes several of the above in one sequence.
)

// Priority orders tasks in the queue. Higher values dispatch first.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Weight returns the numeric rank of the priority for queue ordering.
// Unknown priorities rank below low so malformed input never jumps the queue.
func (p Priority) Weight() int {
	switch p {
	case PriorityCritical:
		return 4
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	default:
		return 0
	}
}

// TaskStatus tracks a task through its lifecycle.
type TaskStatus string

const (
	StatusPending   TaskStatus = "pending"
	StatusRunning   TaskStatus = "running"
	StatusCompleted TaskStatus = "completed"
	StatusFailed    TaskStatus = "failed"
	StatusCancelled TaskStatus = "cancelled"
)

// Terminal reports whether the status is an end state.
func (s TaskStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// ActionType identifies one atomic page operation.
type ActionType string

const (
	ActionClick    ActionType = "click"
	ActionTypeText ActionType = "type"
	ActionSelect   ActionType = "select"
	ActionScroll   ActionType = "scroll"
	ActionWait     ActionType = "wait"
	ActionExtract  ActionType = "extract"
	ActionValidate ActionType = "validate"
)

// ValidationType identifies a post-condition check kind.
type ValidationType string

const (
	ValidatePresence  ValidationType = "presence"
	ValidateText      ValidationType = "text"
	ValidateAttribute ValidationType = "attribute"
	ValidateCount     ValidationType = "count"
	ValidateCustom    ValidationType = "custom"
)

// Strategy selects how the engine reacts to a failed step.
type Strategy string

const (
	StrategyRetry    Strategy = "retry"    // StrategyRetry re-attempts the failed step up to the task's retry budget.
	StrategySkip     Strategy = "skip"     // StrategySkip records the failure and continues with the next step.
	StrategyFallback Strategy = "fallback" // StrategyFallback substitutes the configured fallback actions.
	StrategyAbort    Strategy = "abort"    // StrategyAbort stops the task at the failed step.
)

// Default timeouts applied when a task or action does not set its own.
const (
	DefaultTaskTimeout   = 30 * time.Second
	DefaultActionTimeout = 5 * time.Second
	DefaultMaxRetries    = 3
)

// ActionOptions tunes how a single action executes.
type ActionOptions struct {
	// WaitForSelector waits for the target to appear before acting.
	WaitForSelector bool `json:"wait_for_selector,omitempty" yaml:"wait_for_selector,omitempty"`

	// ScrollIntoView scrolls the target into the viewport before acting.
	ScrollIntoView bool `json:"scroll_into_view,omitempty" yaml:"scroll_into_view,omitempty"`

	// DoubleClick performs a double click instead of a single click.
	DoubleClick bool `json:"double_click,omitempty" yaml:"double_click,omitempty"`

	// RightClick performs a right click instead of a left click.
	RightClick bool `json:"right_click,omitempty" yaml:"right_click,omitempty"`

	// Force bypasses actionability checks in the driver.
	Force bool `json:"force,omitempty" yaml:"force,omitempty"`

	// Delay pauses after the action completes.
	Delay Duration `json:"delay,omitempty" yaml:"delay,omitempty"`

	// Fallbacks are alternate selectors tried when the primary one fails.
	Fallbacks []string `json:"fallbacks,omitempty" yaml:"fallbacks,omitempty"`
}

// Action is one atomic operation against a page element.
type Action struct {
	// Type is the operation to perform.
	Type ActionType `json:"type" yaml:"type"`

	// Selector identifies the target element.
	Selector string `json:"selector,omitempty" yaml:"selector,omitempty"`

	// Value is the literal input for type/select actions.
	Value string `json:"value,omitempty" yaml:"value,omitempty"`

	// Options tunes execution of this action.
	Options ActionOptions `json:"options,omitempty" yaml:"options,omitempty"`

	// Timeout bounds this action; zero means DefaultActionTimeout.
	Timeout Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	// SmartResolve marks the action eligible for learned-pattern resolution.
	SmartResolve bool `json:"smart_resolve,omitempty" yaml:"smart_resolve,omitempty"`
}

// EffectiveTimeout returns the action timeout, falling back to the default.
func (a Action) EffectiveTimeout() time.Duration {
	if a.Timeout > 0 {
		return a.Timeout.Std()
	}
	return DefaultActionTimeout
}

// ValidationRule is a post-condition checked after the action loop.
type ValidationRule struct {
	// Type is the kind of check.
	Type ValidationType `json:"type" yaml:"type"`

	// Selector identifies the element(s) the check runs against.
	Selector string `json:"selector" yaml:"selector"`

	// Expected is the value the check compares against. For attribute
	// checks it is encoded as "name=value"; for count checks it is the
	// decimal element count.
	Expected string `json:"expected,omitempty" yaml:"expected,omitempty"`

	// Required makes a failing check a task-level error. Optional rules
	// that fail are informational only.
	Required bool `json:"required" yaml:"required"`
}

// ErrorHandlingPolicy governs step-failure disposition.
type ErrorHandlingPolicy struct {
	// Strategy selects the disposition; empty means abort.
	Strategy Strategy `json:"strategy,omitempty" yaml:"strategy,omitempty"`

	// Fallbacks are substituted for a failed step under StrategyFallback.
	Fallbacks []Action `json:"fallbacks,omitempty" yaml:"fallbacks,omitempty"`

	// Notification is the level callers want failure notices at.
	Notification string `json:"notification,omitempty" yaml:"notification,omitempty"`
}

// EffectiveStrategy returns the configured strategy, defaulting to abort.
func (p ErrorHandlingPolicy) EffectiveStrategy() Strategy {
	if p.Strategy == "" {
		return StrategyAbort
	}
	return p.Strategy
}

// PerformanceProfile configures performance tracking for a task or engine.
type PerformanceProfile struct {
	// TrackRequests enables the network traffic observer.
	TrackRequests bool `json:"track_requests" yaml:"track_requests"`

	// SlowRequestThreshold flags requests slower than this in the report.
	SlowRequestThreshold Duration `json:"slow_request_threshold,omitempty" yaml:"slow_request_threshold,omitempty"`

	// MetricsNamespace prefixes registered Prometheus metrics.
	MetricsNamespace string `json:"metrics_namespace,omitempty" yaml:"metrics_namespace,omitempty"`
}

// TaskConfig is the declarative payload of a task. It is immutable once
// the task begins execution.
type TaskConfig struct {
	// URL is the optional page to navigate to before running actions.
	URL string `json:"url,omitempty" yaml:"url,omitempty"`

	// Actions run in order against the page.
	Actions []Action `json:"actions,omitempty" yaml:"actions,omitempty"`

	// Validations run after the action loop, in order.
	Validations []ValidationRule `json:"validations,omitempty" yaml:"validations,omitempty"`

	// ErrorHandling governs step-failure disposition.
	ErrorHandling ErrorHandlingPolicy `json:"error_handling,omitempty" yaml:"error_handling,omitempty"`

	// Performance tunes tracking for this task.
	Performance PerformanceProfile `json:"performance,omitempty" yaml:"performance,omitempty"`
}

// Task is one declarative unit of browser work.
type Task struct {
	// ID uniquely identifies the task.
	ID string `json:"id" yaml:"id"`

	// Kind categorizes the task's intent.
	Kind TaskKind `json:"kind" yaml:"kind"`

	// Priority orders the task in the queue.
	Priority Priority `json:"priority" yaml:"priority"`

	// Config is the declarative payload.
	Config TaskConfig `json:"config" yaml:"config"`

	// RetryCount is the number of step retries consumed so far.
	RetryCount int `json:"retry_count" yaml:"retry_count"`

	// MaxRetries bounds step retries under the retry strategy.
	MaxRetries int `json:"max_retries" yaml:"max_retries"`

	// Timeout bounds the whole task; zero means DefaultTaskTimeout.
	Timeout Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	// CreatedAt is when the task was built.
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`

	// Status is the task's lifecycle state.
	Status TaskStatus `json:"status" yaml:"status"`
}

// NewTask creates a pending task with a fresh ID and default budgets.
func NewTask(kind TaskKind, priority Priority, config TaskConfig) *Task {
	return &Task{
		ID:         uuid.New().String(),
		Kind:       kind,
		Priority:   priority,
		Config:     config,
		MaxRetries: DefaultMaxRetries,
		Timeout:    Duration(DefaultTaskTimeout),
		CreatedAt:  time.Now(),
		Status:     StatusPending,
	}
}

// EffectiveTimeout returns the task timeout, falling back to the default.
func (t *Task) EffectiveTimeout() time.Duration {
	if t.Timeout > 0 {
		return t.Timeout.Std()
	}
	return DefaultTaskTimeout
}
