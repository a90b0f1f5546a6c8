package types

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestNewTask_Defaults(t *testing.T) {
	task := NewTask(TaskKindInteraction, PriorityHigh, TaskConfig{URL: "https://example.com"})

	assert.NotEmpty(t, task.ID)
	assert.Equal(t, StatusPending, task.Status)
	assert.Equal(t, DefaultMaxRetries, task.MaxRetries)
	assert.Equal(t, DefaultTaskTimeout, task.EffectiveTimeout())
	assert.False(t, task.CreatedAt.IsZero())
}

func TestPriority_Weight_Ordering(t *testing.T) {
	assert.Greater(t, PriorityCritical.Weight(), PriorityHigh.Weight())
	assert.Greater(t, PriorityHigh.Weight(), PriorityMedium.Weight())
	assert.Greater(t, PriorityMedium.Weight(), PriorityLow.Weight())
	assert.Greater(t, PriorityLow.Weight(), Priority("bogus").Weight())
}

func TestTaskStatus_Terminal(t *testing.T) {
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusRunning.Terminal())
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusFailed.Terminal())
	assert.True(t, StatusCancelled.Terminal())
}

func TestAction_EffectiveTimeout(t *testing.T) {
	assert.Equal(t, DefaultActionTimeout, Action{Type: ActionClick}.EffectiveTimeout())
	assert.Equal(t, 2*time.Second, Action{Type: ActionClick, Timeout: Duration(2 * time.Second)}.EffectiveTimeout())
}

func TestErrorHandlingPolicy_EffectiveStrategy(t *testing.T) {
	assert.Equal(t, StrategyAbort, ErrorHandlingPolicy{}.EffectiveStrategy())
	assert.Equal(t, StrategySkip, ErrorHandlingPolicy{Strategy: StrategySkip}.EffectiveStrategy())
}

func roundTripTask() *Task {
	task := NewTask(TaskKindWorkflow, PriorityCritical, TaskConfig{
		URL: "https://app.example.com/login",
		Actions: []Action{
			{
				Type:     ActionTypeText,
				Selector: "#username",
				Value:    "demo",
				Options:  ActionOptions{WaitForSelector: true, Fallbacks: []string{"[name='username']"}},
				Timeout:  Duration(2 * time.Second),
			},
			{
				Type:         ActionClick,
				Selector:     "button[type='submit']",
				Options:      ActionOptions{ScrollIntoView: true, Delay: Duration(100 * time.Millisecond)},
				SmartResolve: true,
			},
		},
		Validations: []ValidationRule{
			{Type: ValidatePresence, Selector: ".dashboard", Required: true},
			{Type: ValidateText, Selector: "h1", Expected: "Welcome", Required: false},
		},
		ErrorHandling: ErrorHandlingPolicy{
			Strategy:  StrategyFallback,
			Fallbacks: []Action{{Type: ActionClick, Selector: ".submit-alt"}},
		},
		Performance: PerformanceProfile{TrackRequests: true},
	})
	// Stable timestamp so equality checks compare wire fidelity, not clocks.
	task.CreatedAt = time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	return task
}

func TestTask_RoundTripYAML(t *testing.T) {
	original := roundTripTask()

	data, err := yaml.Marshal(original)
	require.NoError(t, err)

	var decoded Task
	require.NoError(t, yaml.Unmarshal(data, &decoded))

	assert.Equal(t, original.ID, decoded.ID)
	assert.Equal(t, original.Priority, decoded.Priority)
	assert.Equal(t, original.Config, decoded.Config)
	assert.True(t, original.CreatedAt.Equal(decoded.CreatedAt))
}

func TestTask_RoundTripJSON(t *testing.T) {
	original := roundTripTask()

	data, err := json.Marshal(original)
	require.NoError(t, err)

	var decoded Task
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, original.Config, decoded.Config)
	assert.Equal(t, original.Timeout, decoded.Timeout)
}

func TestDuration_UnmarshalForms(t *testing.T) {
	tests := []struct {
		name     string
		yamlDoc  string
		expected time.Duration
	}{
		{name: "duration string", yamlDoc: `"1m30s"`, expected: 90 * time.Second},
		{name: "bare milliseconds", yamlDoc: `5000`, expected: 5 * time.Second},
		{name: "fractional milliseconds", yamlDoc: `2500.5`, expected: 2500500 * time.Microsecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d Duration
			require.NoError(t, yaml.Unmarshal([]byte(tt.yamlDoc), &d))
			assert.Equal(t, tt.expected, d.Std())
		})
	}
}

func TestDuration_UnmarshalInvalid(t *testing.T) {
	var d Duration
	assert.Error(t, yaml.Unmarshal([]byte(`"not-a-duration"`), &d))
	assert.Error(t, yaml.Unmarshal([]byte(`[1, 2]`), &d))
}
