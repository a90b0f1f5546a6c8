package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/entrhq/pilot/pkg/browser"
	"github.com/entrhq/pilot/pkg/config"
	"github.com/entrhq/pilot/pkg/types"
)

// fakeDriver is an in-memory Driver for engine tests. It treats the
// elements map as the page: a selector exists iff its entry is true.
type fakeDriver struct {
	mu sync.Mutex

	elements map[string]bool
	texts    map[string]string
	attrs    map[string]map[string]string
	counts   map[string]int
	content  string
	current  string

	navErr        error
	clickFailures map[string]int
	waitDelay     time.Duration

	calls    []string
	closed   bool
	closeErr error
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{
		elements:      map[string]bool{"body": true},
		texts:         make(map[string]string),
		attrs:         make(map[string]map[string]string),
		counts:        make(map[string]int),
		clickFailures: make(map[string]int),
	}
}

func (d *fakeDriver) record(call string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, call)
}

func (d *fakeDriver) callLog() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.calls))
	copy(out, d.calls)
	return out
}

func (d *fakeDriver) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	d.record("navigate:" + url)
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.navErr != nil {
		return d.navErr
	}
	d.current = url
	return nil
}

func (d *fakeDriver) WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error {
	d.record("wait:" + selector)
	d.mu.Lock()
	delay := d.waitDelay
	d.mu.Unlock()
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	exists, _ := d.Exists(ctx, selector)
	if !exists {
		return fmt.Errorf("timeout waiting for %q", selector)
	}
	return nil
}

func (d *fakeDriver) Exists(ctx context.Context, selector string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.elements[selector], nil
}

func (d *fakeDriver) Click(ctx context.Context, selector string, opts browser.ClickOptions) error {
	d.record("click:" + selector)
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.clickFailures[selector] > 0 {
		d.clickFailures[selector]--
		return fmt.Errorf("element %q is not clickable", selector)
	}
	return nil
}

func (d *fakeDriver) Fill(ctx context.Context, selector, value string) error {
	d.record("fill:" + selector + "=" + value)
	return nil
}

func (d *fakeDriver) SelectOption(ctx context.Context, selector, value string) error {
	d.record("select:" + selector + "=" + value)
	return nil
}

func (d *fakeDriver) ScrollIntoView(ctx context.Context, selector string) error {
	d.record("scroll:" + selector)
	return nil
}

func (d *fakeDriver) Text(ctx context.Context, selector string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	text, ok := d.texts[selector]
	if !ok {
		return "", fmt.Errorf("no element matching %q", selector)
	}
	return text, nil
}

func (d *fakeDriver) Attribute(ctx context.Context, selector, name string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.attrs[selector][name], nil
}

func (d *fakeDriver) Count(ctx context.Context, selector string) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if n, ok := d.counts[selector]; ok {
		return n, nil
	}
	if d.elements[selector] {
		return 1, nil
	}
	return 0, nil
}

func (d *fakeDriver) Content(ctx context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.content, nil
}

func (d *fakeDriver) URL() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current
}

func (d *fakeDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return d.closeErr
}

func newTestEngine(t *testing.T, driver browser.Driver) *Engine {
	t.Helper()

	cfg := config.Default()
	cfg.Security.AllowedDomains = []string{"example.com"}

	e, err := New(cfg, zap.NewNop(), WithDriver(driver))
	require.NoError(t, err)
	require.NoError(t, e.Initialize(context.Background()))
	t.Cleanup(func() { _ = e.Cleanup() })
	return e
}

func waitForTaskEvent(t *testing.T, events <-chan types.Event) types.Event {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case event, ok := <-events:
			require.True(t, ok, "event channel closed before a task event arrived")
			if event.IsTaskEvent() {
				return event
			}
		case <-deadline:
			t.Fatal("timed out waiting for a task event")
		}
	}
}

func TestExecuteTask_ValidationOnlySucceeds(t *testing.T) {
	driver := newFakeDriver()
	e := newTestEngine(t, driver)

	task := types.NewTask(types.TaskKindNavigation, types.PriorityMedium, types.TaskConfig{
		URL: "https://example.com",
		Validations: []types.ValidationRule{
			{Type: types.ValidatePresence, Selector: "body", Required: true},
		},
	})

	result := e.ExecuteTask(context.Background(), task)

	assert.True(t, result.Success)
	assert.Empty(t, result.Steps)
	assert.Empty(t, result.Errors)
	assert.Equal(t, 1.0, result.Metrics.SuccessRate)
	assert.Equal(t, types.StatusCompleted, task.Status)
	assert.Contains(t, driver.callLog(), "navigate:https://example.com")
}

func TestExecuteTask_SecurityRejectionRunsNothing(t *testing.T) {
	driver := newFakeDriver()
	e := newTestEngine(t, driver)

	task := types.NewTask(types.TaskKindNavigation, types.PriorityHigh, types.TaskConfig{
		URL: "javascript:alert(1)",
		Actions: []types.Action{
			{Type: types.ActionClick, Selector: "#run"},
		},
	})

	result := e.ExecuteTask(context.Background(), task)

	assert.False(t, result.Success)
	assert.Empty(t, result.Steps)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, types.ErrSecurity, result.Errors[0].Kind)
	assert.Equal(t, types.ValidationPhaseStep, result.Errors[0].StepIndex)
	assert.Empty(t, driver.callLog(), "rejected task must not touch the browser")
}

func TestExecuteTask_DisallowedDomainRejected(t *testing.T) {
	driver := newFakeDriver()
	e := newTestEngine(t, driver)

	task := types.NewTask(types.TaskKindNavigation, types.PriorityMedium, types.TaskConfig{
		URL: "https://evil.test/login",
	})

	result := e.ExecuteTask(context.Background(), task)

	assert.False(t, result.Success)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, types.ErrSecurity, result.Errors[0].Kind)
}

func TestExecuteTask_AbortOnUnresolvableElement(t *testing.T) {
	driver := newFakeDriver()
	e := newTestEngine(t, driver)

	task := types.NewTask(types.TaskKindInteraction, types.PriorityMedium, types.TaskConfig{
		URL: "https://example.com",
		Actions: []types.Action{
			{Type: types.ActionClick, Selector: "#does-not-exist"},
			{Type: types.ActionClick, Selector: "body"},
		},
	})

	result := e.ExecuteTask(context.Background(), task)

	assert.False(t, result.Success)
	require.Len(t, result.Steps, 1)
	assert.False(t, result.Steps[0].Success)
	assert.False(t, result.Steps[0].ElementFound)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, types.ErrElementNotFound, result.Errors[0].Kind)
	assert.Equal(t, 0, result.Errors[0].StepIndex)
	assert.True(t, result.Errors[0].Recoverable)
}

func TestExecuteTask_SkipStrategyContinues(t *testing.T) {
	driver := newFakeDriver()
	e := newTestEngine(t, driver)

	task := types.NewTask(types.TaskKindInteraction, types.PriorityMedium, types.TaskConfig{
		URL: "https://example.com",
		Actions: []types.Action{
			{Type: types.ActionClick, Selector: "#missing"},
			{Type: types.ActionClick, Selector: "body"},
		},
		ErrorHandling: types.ErrorHandlingPolicy{Strategy: types.StrategySkip},
	})

	result := e.ExecuteTask(context.Background(), task)

	// A skipped step failure lives only in its StepResult.
	assert.True(t, result.Success)
	require.Len(t, result.Steps, 2)
	assert.False(t, result.Steps[0].Success)
	assert.True(t, result.Steps[1].Success)
	assert.Empty(t, result.Errors)
	assert.InDelta(t, 0.5, result.Metrics.SuccessRate, 0.001)
}

func TestExecuteTask_RetryStrategyRecovers(t *testing.T) {
	driver := newFakeDriver()
	driver.elements["#btn"] = true
	driver.clickFailures["#btn"] = 2
	e := newTestEngine(t, driver)

	task := types.NewTask(types.TaskKindInteraction, types.PriorityMedium, types.TaskConfig{
		URL: "https://example.com",
		Actions: []types.Action{
			{Type: types.ActionClick, Selector: "#btn"},
		},
		ErrorHandling: types.ErrorHandlingPolicy{Strategy: types.StrategyRetry},
	})

	result := e.ExecuteTask(context.Background(), task)

	assert.True(t, result.Success)
	require.Len(t, result.Steps, 1, "re-attempts replace the failed step record")
	assert.True(t, result.Steps[0].Success)
	assert.Equal(t, 2, task.RetryCount)
}

func TestExecuteTask_RetryBudgetExhausted(t *testing.T) {
	driver := newFakeDriver()
	driver.elements["#btn"] = true
	driver.clickFailures["#btn"] = 100
	e := newTestEngine(t, driver)

	task := types.NewTask(types.TaskKindInteraction, types.PriorityMedium, types.TaskConfig{
		URL: "https://example.com",
		Actions: []types.Action{
			{Type: types.ActionClick, Selector: "#btn"},
		},
		ErrorHandling: types.ErrorHandlingPolicy{Strategy: types.StrategyRetry},
	})
	task.MaxRetries = 2

	result := e.ExecuteTask(context.Background(), task)

	assert.False(t, result.Success)
	require.Len(t, result.Steps, 1)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0].Message, "after 2 retries")
	assert.Equal(t, 2, task.RetryCount)
}

func TestExecuteTask_FallbackActionsSubstituted(t *testing.T) {
	driver := newFakeDriver()
	driver.elements["#alt"] = true
	e := newTestEngine(t, driver)

	task := types.NewTask(types.TaskKindInteraction, types.PriorityMedium, types.TaskConfig{
		URL: "https://example.com",
		Actions: []types.Action{
			{Type: types.ActionClick, Selector: "#missing"},
		},
		ErrorHandling: types.ErrorHandlingPolicy{
			Strategy: types.StrategyFallback,
			Fallbacks: []types.Action{
				{Type: types.ActionClick, Selector: "#alt"},
			},
		},
	})

	result := e.ExecuteTask(context.Background(), task)

	assert.True(t, result.Success)
	require.Len(t, result.Steps, 2)
	assert.False(t, result.Steps[0].Success)
	assert.True(t, result.Steps[1].Success)
	assert.Contains(t, driver.callLog(), "click:#alt")
}

func TestExecuteTask_FallbackPolicyNotMutated(t *testing.T) {
	driver := newFakeDriver()
	driver.elements["#alt"] = true
	e := newTestEngine(t, driver)

	// Spare capacity in the policy's backing array: a splice that appended
	// in place would write the trailing actions into it.
	backing := make([]types.Action, 1, 4)
	backing[0] = types.Action{Type: types.ActionClick, Selector: "#alt"}

	task := types.NewTask(types.TaskKindInteraction, types.PriorityMedium, types.TaskConfig{
		URL: "https://example.com",
		Actions: []types.Action{
			{Type: types.ActionClick, Selector: "#missing"},
			{Type: types.ActionClick, Selector: "body"},
		},
		ErrorHandling: types.ErrorHandlingPolicy{
			Strategy:  types.StrategyFallback,
			Fallbacks: backing,
		},
	})

	result := e.ExecuteTask(context.Background(), task)

	require.True(t, result.Success)
	require.Len(t, result.Steps, 3)

	require.Len(t, task.Config.ErrorHandling.Fallbacks, 1)
	assert.Equal(t, types.Action{}, backing[:2][1],
		"splicing must not write into the policy's backing array")
}

func TestExecuteTask_FallbackAppliedOnlyOnce(t *testing.T) {
	driver := newFakeDriver()
	e := newTestEngine(t, driver)

	task := types.NewTask(types.TaskKindInteraction, types.PriorityMedium, types.TaskConfig{
		URL: "https://example.com",
		Actions: []types.Action{
			{Type: types.ActionClick, Selector: "#missing"},
		},
		ErrorHandling: types.ErrorHandlingPolicy{
			Strategy: types.StrategyFallback,
			Fallbacks: []types.Action{
				{Type: types.ActionClick, Selector: "#also-missing"},
			},
		},
	})

	result := e.ExecuteTask(context.Background(), task)

	assert.False(t, result.Success)
	require.Len(t, result.Steps, 2)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, types.ErrElementNotFound, result.Errors[0].Kind)
	assert.Equal(t, 1, result.Errors[0].StepIndex)
}

func TestExecuteTask_ActionSequence(t *testing.T) {
	driver := newFakeDriver()
	driver.elements["#name"] = true
	driver.elements["#country"] = true
	driver.elements["#submit"] = true
	e := newTestEngine(t, driver)

	task := types.NewTask(types.TaskKindInteraction, types.PriorityMedium, types.TaskConfig{
		URL: "https://example.com/form",
		Actions: []types.Action{
			{Type: types.ActionTypeText, Selector: "#name", Value: "Ada"},
			{Type: types.ActionSelect, Selector: "#country", Value: "nz"},
			{Type: types.ActionClick, Selector: "#submit"},
		},
	})

	result := e.ExecuteTask(context.Background(), task)

	require.True(t, result.Success)
	assert.Equal(t, []string{
		"navigate:https://example.com/form",
		"fill:#name=Ada",
		"select:#country=nz",
		"click:#submit",
	}, driver.callLog())
}

func TestExecuteTask_ExtractActions(t *testing.T) {
	driver := newFakeDriver()
	driver.elements["#price"] = true
	driver.elements["#title"] = true
	driver.texts["#price"] = " 42.5 "
	driver.texts["#title"] = "Checkout"
	e := newTestEngine(t, driver)

	task := types.NewTask(types.TaskKindExtraction, types.PriorityMedium, types.TaskConfig{
		URL: "https://example.com",
		Actions: []types.Action{
			{Type: types.ActionExtract, Selector: "#title"},
			{Type: types.ActionExtract, Selector: "#price", Value: "number"},
		},
	})

	result := e.ExecuteTask(context.Background(), task)

	require.True(t, result.Success)
	require.Len(t, result.Extracted, 2)
	assert.Equal(t, types.TextValue("Checkout"), result.Extracted[0])
	assert.Equal(t, types.NumberValue(42.5), result.Extracted[1])
}

func TestExecuteTask_StructuredExtraction(t *testing.T) {
	driver := newFakeDriver()
	driver.elements["html"] = true
	driver.content = `<html><head><title>Shop</title></head><body><h1>Deals</h1><a href="/cart">Cart</a></body></html>`
	e := newTestEngine(t, driver)

	task := types.NewTask(types.TaskKindExtraction, types.PriorityMedium, types.TaskConfig{
		URL: "https://example.com",
		Actions: []types.Action{
			{Type: types.ActionExtract, Selector: "html", Value: "structured"},
		},
	})

	result := e.ExecuteTask(context.Background(), task)

	require.True(t, result.Success)
	require.Len(t, result.Extracted, 1)
	page := result.Extracted[0]
	require.Equal(t, types.ExtractedList, page.Kind)
	require.Len(t, page.List, 3)
	assert.Equal(t, types.TextValue("Shop"), page.List[0])
	assert.Equal(t, types.ListValue(types.TextValue("Deals")), page.List[1])
	assert.Equal(t, types.ListValue(types.TextValue("/cart")), page.List[2])
}

func TestExecuteTask_ValidationRules(t *testing.T) {
	driver := newFakeDriver()
	driver.elements["#status"] = true
	driver.elements[".item"] = true
	driver.texts["#status"] = "Done"
	driver.attrs["#status"] = map[string]string{"class": "ok"}
	driver.counts[".item"] = 3
	e := newTestEngine(t, driver)

	tests := []struct {
		name string
		rule types.ValidationRule
		pass bool
	}{
		{"presence holds", types.ValidationRule{Type: types.ValidatePresence, Selector: "#status", Required: true}, true},
		{"presence fails", types.ValidationRule{Type: types.ValidatePresence, Selector: "#gone", Required: true}, false},
		{"text holds", types.ValidationRule{Type: types.ValidateText, Selector: "#status", Expected: "Done", Required: true}, true},
		{"text fails", types.ValidationRule{Type: types.ValidateText, Selector: "#status", Expected: "Pending", Required: true}, false},
		{"attribute holds", types.ValidationRule{Type: types.ValidateAttribute, Selector: "#status", Expected: "class=ok", Required: true}, true},
		{"attribute fails", types.ValidationRule{Type: types.ValidateAttribute, Selector: "#status", Expected: "class=bad", Required: true}, false},
		{"count holds", types.ValidationRule{Type: types.ValidateCount, Selector: ".item", Expected: "3", Required: true}, true},
		{"count fails", types.ValidationRule{Type: types.ValidateCount, Selector: ".item", Expected: "5", Required: true}, false},
		{"unknown type passes", types.ValidationRule{Type: "regex", Selector: "#gone", Expected: "x.*", Required: true}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task := types.NewTask(types.TaskKindValidation, types.PriorityMedium, types.TaskConfig{
				URL:         "https://example.com",
				Validations: []types.ValidationRule{tt.rule},
			})

			result := e.ExecuteTask(context.Background(), task)

			assert.Equal(t, tt.pass, result.Success)
			if !tt.pass {
				require.Len(t, result.Errors, 1)
				assert.Equal(t, types.ErrValidationFailed, result.Errors[0].Kind)
				assert.Equal(t, types.ValidationPhaseStep, result.Errors[0].StepIndex)
			}
		})
	}
}

func TestExecuteTask_OptionalValidationDoesNotFail(t *testing.T) {
	driver := newFakeDriver()
	e := newTestEngine(t, driver)

	task := types.NewTask(types.TaskKindValidation, types.PriorityMedium, types.TaskConfig{
		URL: "https://example.com",
		Validations: []types.ValidationRule{
			{Type: types.ValidatePresence, Selector: "#banner", Required: false},
		},
	})

	result := e.ExecuteTask(context.Background(), task)

	assert.True(t, result.Success)
	assert.Empty(t, result.Errors)
}

func TestExecuteTask_TaskTimeoutStopsLoop(t *testing.T) {
	driver := newFakeDriver()
	e := newTestEngine(t, driver)

	task := types.NewTask(types.TaskKindInteraction, types.PriorityMedium, types.TaskConfig{
		URL: "https://example.com",
		Actions: []types.Action{
			{Type: types.ActionWait, Timeout: types.Duration(50 * time.Millisecond)},
			{Type: types.ActionClick, Selector: "body"},
		},
	})
	task.Timeout = types.Duration(10 * time.Millisecond)

	result := e.ExecuteTask(context.Background(), task)

	assert.False(t, result.Success)
	require.Len(t, result.Steps, 1)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, types.ErrTimeout, result.Errors[0].Kind)
	assert.NotContains(t, driver.callLog(), "click:body")
}

func TestExecuteTask_ActionTimeoutFailsStep(t *testing.T) {
	driver := newFakeDriver()
	driver.elements["#spinner"] = true
	driver.waitDelay = 5 * time.Second
	e := newTestEngine(t, driver)

	task := types.NewTask(types.TaskKindInteraction, types.PriorityMedium, types.TaskConfig{
		URL: "https://example.com",
		Actions: []types.Action{
			{Type: types.ActionWait, Selector: "#spinner", Timeout: types.Duration(20 * time.Millisecond)},
		},
	})

	result := e.ExecuteTask(context.Background(), task)

	assert.False(t, result.Success)
	require.Len(t, result.Steps, 1)
	assert.False(t, result.Steps[0].Success)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, types.ErrTimeout, result.Errors[0].Kind)
}

func TestExecuteTask_CancelledTaskStopsBeforeNextStep(t *testing.T) {
	driver := newFakeDriver()
	e := newTestEngine(t, driver)

	events := e.Subscribe(4)
	t.Cleanup(func() { e.Unsubscribe(events) })

	task := types.NewTask(types.TaskKindInteraction, types.PriorityMedium, types.TaskConfig{
		URL: "https://example.com",
		Actions: []types.Action{
			{Type: types.ActionClick, Selector: "body"},
		},
		Validations: []types.ValidationRule{
			{Type: types.ValidatePresence, Selector: "#never-there", Required: true},
		},
	})
	require.NoError(t, e.queue.Enqueue(task))
	require.NotNil(t, e.queue.DequeueNext())
	require.NoError(t, e.CancelTask(task.ID))

	result := e.ExecuteTask(context.Background(), task)

	assert.Empty(t, result.Steps, "cancelled task must not run further actions")
	assert.NotContains(t, driver.callLog(), "click:body")

	// Cancelled stays terminal: no validation ran, no completion or
	// failure event fired, and the status survives execution.
	assert.Empty(t, result.Errors, "validations must not run after a cancel")
	assert.Equal(t, types.StatusCancelled, task.Status)

	status, err := e.TaskStatus(task.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCancelled, status)

	select {
	case event := <-events:
		t.Fatalf("unexpected event %q for cancelled task", event.Type)
	default:
	}
}

func TestExecuteTask_NavigationFailure(t *testing.T) {
	driver := newFakeDriver()
	driver.navErr = fmt.Errorf("net::ERR_CONNECTION_REFUSED")
	e := newTestEngine(t, driver)

	task := types.NewTask(types.TaskKindNavigation, types.PriorityMedium, types.TaskConfig{
		URL: "https://example.com",
		Actions: []types.Action{
			{Type: types.ActionClick, Selector: "body"},
		},
	})

	result := e.ExecuteTask(context.Background(), task)

	assert.False(t, result.Success)
	assert.Empty(t, result.Steps)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, types.ErrNetwork, result.Errors[0].Kind)
}

func TestSubmitTask_DeliversResultAndEvents(t *testing.T) {
	driver := newFakeDriver()
	e := newTestEngine(t, driver)

	events := e.Subscribe(0)
	t.Cleanup(func() { e.Unsubscribe(events) })

	task := types.NewTask(types.TaskKindNavigation, types.PriorityMedium, types.TaskConfig{
		URL: "https://example.com",
		Validations: []types.ValidationRule{
			{Type: types.ValidatePresence, Selector: "body", Required: true},
		},
	})

	id, err := e.SubmitTask(task)
	require.NoError(t, err)
	assert.Equal(t, task.ID, id)

	event := waitForTaskEvent(t, events)
	assert.Equal(t, types.EventTaskCompleted, event.Type)
	assert.Equal(t, task.ID, event.TaskID)
	require.NotNil(t, event.Result)
	assert.True(t, event.Result.Success)

	// The result is stored just after the event fires.
	require.Eventually(t, func() bool {
		status, statusErr := e.TaskStatus(id)
		return statusErr == nil && status == types.StatusCompleted
	}, 5*time.Second, 10*time.Millisecond)

	result, err := e.TaskResult(id)
	require.NoError(t, err)
	assert.True(t, result.Success)
}

func TestSubmitTask_FailedTaskEmitsFailureEvent(t *testing.T) {
	driver := newFakeDriver()
	e := newTestEngine(t, driver)

	events := e.Subscribe(0)
	t.Cleanup(func() { e.Unsubscribe(events) })

	task := types.NewTask(types.TaskKindInteraction, types.PriorityMedium, types.TaskConfig{
		URL: "https://example.com",
		Actions: []types.Action{
			{Type: types.ActionClick, Selector: "#missing"},
		},
	})

	_, err := e.SubmitTask(task)
	require.NoError(t, err)

	event := waitForTaskEvent(t, events)
	assert.Equal(t, types.EventTaskFailed, event.Type)
	require.NotNil(t, event.Result)
	assert.False(t, event.Result.Success)

	require.Eventually(t, func() bool {
		status, statusErr := e.TaskStatus(task.ID)
		return statusErr == nil && status == types.StatusFailed
	}, 5*time.Second, 10*time.Millisecond)
}

func TestSubmitTask_RequiresInitialize(t *testing.T) {
	cfg := config.Default()
	e, err := New(cfg, zap.NewNop(), WithDriver(newFakeDriver()))
	require.NoError(t, err)

	task := types.NewTask(types.TaskKindNavigation, types.PriorityMedium, types.TaskConfig{})
	_, err = e.SubmitTask(task)
	assert.Error(t, err)
}

func TestTaskResult_UnknownTask(t *testing.T) {
	e := newTestEngine(t, newFakeDriver())

	_, err := e.TaskResult("nope")
	assert.Error(t, err)
}

func TestCleanup_ClosesDriverAndEventChannels(t *testing.T) {
	driver := newFakeDriver()

	cfg := config.Default()
	e, err := New(cfg, zap.NewNop(), WithDriver(driver))
	require.NoError(t, err)
	require.NoError(t, e.Initialize(context.Background()))

	events := e.Subscribe(4)

	require.NoError(t, e.Cleanup())
	assert.True(t, driver.closed)

	sawCleanup := false
	for event := range events {
		if event.Type == types.EventEngineCleanup {
			sawCleanup = true
		}
	}
	assert.True(t, sawCleanup, "subscribers see engine_cleanup before their channel closes")

	// Second cleanup is a no-op.
	require.NoError(t, e.Cleanup())
}

func TestCleanup_ReportsDriverCloseFailure(t *testing.T) {
	driver := newFakeDriver()
	driver.closeErr = fmt.Errorf("browser already gone")

	cfg := config.Default()
	e, err := New(cfg, zap.NewNop(), WithDriver(driver))
	require.NoError(t, err)
	require.NoError(t, e.Initialize(context.Background()))

	err = e.Cleanup()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to close browser")
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.MaxConcurrency = 0

	_, err := New(cfg, zap.NewNop())
	assert.Error(t, err)
}
