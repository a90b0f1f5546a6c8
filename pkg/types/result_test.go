package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResult_AddError_ClearsSuccess(t *testing.T) {
	result := &Result{TaskID: "t1", Success: true}

	result.AddError(ErrElementNotFound, "no match for #missing", 2, true)

	assert.False(t, result.Success)
	assert.Len(t, result.Errors, 1)
	assert.Equal(t, ErrElementNotFound, result.Errors[0].Kind)
	assert.Equal(t, 2, result.Errors[0].StepIndex)
	assert.True(t, result.Errors[0].Recoverable)
	assert.False(t, result.Errors[0].Timestamp.IsZero())
}

func TestResult_ValidationPhaseStepIndex(t *testing.T) {
	result := &Result{TaskID: "t1"}
	result.AddError(ErrValidationFailed, "required rule failed", ValidationPhaseStep, false)

	assert.Equal(t, -1, result.Errors[0].StepIndex)
}

func TestExtractedValue_Constructors(t *testing.T) {
	text := TextValue("hello")
	assert.Equal(t, ExtractedText, text.Kind)
	assert.Equal(t, "hello", text.Text)

	num := NumberValue(42.5)
	assert.Equal(t, ExtractedNumber, num.Kind)
	assert.Equal(t, 42.5, num.Number)

	list := ListValue(text, num)
	assert.Equal(t, ExtractedList, list.Kind)
	assert.Len(t, list.List, 2)

	assert.Equal(t, ExtractedNone, NoneValue().Kind)
}

func TestEvent_Constructors(t *testing.T) {
	result := &Result{TaskID: "t9", Success: true}

	completed := NewTaskCompletedEvent(result)
	assert.Equal(t, EventTaskCompleted, completed.Type)
	assert.Equal(t, "t9", completed.TaskID)
	assert.True(t, completed.IsTaskEvent())

	initialized := NewEngineInitializedEvent()
	assert.Equal(t, EventEngineInitialized, initialized.Type)
	assert.False(t, initialized.IsTaskEvent())

	cleanup := NewEngineCleanupEvent()
	assert.Equal(t, EventEngineCleanup, cleanup.Type)
}
