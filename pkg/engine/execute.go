package engine

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/entrhq/pilot/pkg/browser"
	"github.com/entrhq/pilot/pkg/perf"
	"github.com/entrhq/pilot/pkg/resolver"
	"github.com/entrhq/pilot/pkg/types"
)

// ExecuteTask runs one task synchronously: security screening, navigation,
// the action loop under the task's error-handling policy, validations, and
// metric aggregation. It always returns a populated result; failures are
// recorded in Result.Errors rather than returned.
func (e *Engine) ExecuteTask(ctx context.Context, task *types.Task) *types.Result {
	start := time.Now()
	result := &types.Result{TaskID: task.ID, Success: true}
	task.Status = types.StatusRunning

	var cancelled bool

	defer func() {
		result.Duration = time.Since(start)
		result.Metrics = perf.ComputeMetrics(result.Steps, result.Duration)
		result.Success = len(result.Errors) == 0

		// Cancelled is terminal: no completion or failure event fires.
		switch {
		case cancelled:
			task.Status = types.StatusCancelled
		case result.Success:
			task.Status = types.StatusCompleted
			e.dispatcher.emit(types.NewTaskCompletedEvent(result))
		default:
			task.Status = types.StatusFailed
			e.dispatcher.emit(types.NewTaskFailedEvent(result))
		}
		e.tracker.ObserveTask(result)

		e.logger.Info("task finished",
			zap.String("task_id", task.ID),
			zap.String("status", string(task.Status)),
			zap.Bool("success", result.Success),
			zap.Int("steps", len(result.Steps)),
			zap.Int("errors", len(result.Errors)),
			zap.Duration("duration", result.Duration))
	}()

	if err := e.gate.Validate(task); err != nil {
		result.AddError(types.ErrSecurity, err.Error(), types.ValidationPhaseStep, false)
		return result
	}

	e.mu.Lock()
	driver := e.driver
	res := e.resolver
	e.mu.Unlock()
	if driver == nil || res == nil {
		result.AddError(types.ErrNetwork, "engine not initialized", types.ValidationPhaseStep, false)
		return result
	}

	timeout := task.EffectiveTimeout()
	if task.Timeout == 0 && e.cfg.Timeout > 0 {
		timeout = e.cfg.Timeout.Std()
	}
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if task.Config.URL != "" {
		if err := driver.Navigate(tctx, task.Config.URL, timeout); err != nil {
			kind := types.ErrNetwork
			if tctx.Err() != nil {
				kind = types.ErrTimeout
			}
			result.AddError(kind, fmt.Sprintf("navigation to %s failed: %v", task.Config.URL, err),
				types.ValidationPhaseStep, kind == types.ErrNetwork)
			return result
		}
	}

	cancelled = e.runActions(tctx, task, driver, res, result) || e.queue.Cancelled(task.ID)
	if cancelled {
		return result
	}
	e.runValidations(tctx, task, driver, result)
	return result
}

// runActions executes the task's action sequence, applying the task's
// error-handling policy at each failed step. Under the retry strategy a
// failed step's record is replaced by its re-attempt so Steps stays 1:1
// with the actions that count; under fallback the policy's actions are
// spliced in after the failed one, at most once per task. Returns true
// when the task was cancelled at a step boundary.
func (e *Engine) runActions(ctx context.Context, task *types.Task, driver browser.Driver, res *resolver.Resolver, result *types.Result) bool {
	actions := make([]types.Action, len(task.Config.Actions))
	copy(actions, task.Config.Actions)
	fallbackApplied := false

	for idx := 0; idx < len(actions); idx++ {
		if e.queue.Cancelled(task.ID) {
			e.logger.Info("task cancelled, stopping before next step",
				zap.String("task_id", task.ID), zap.Int("step", len(result.Steps)))
			return true
		}
		if ctx.Err() != nil {
			result.AddError(types.ErrTimeout, "task timeout exceeded", len(result.Steps), false)
			return false
		}

		step := e.performAction(ctx, actions[idx], res, driver, result)
		result.Steps = append(result.Steps, step)
		stepIndex := len(result.Steps) - 1

		if step.Success {
			if delay := actions[idx].Options.Delay.Std(); delay > 0 {
				select {
				case <-time.After(delay):
				case <-ctx.Done():
				}
			}
			continue
		}

		switch task.Config.ErrorHandling.EffectiveStrategy() {
		case types.StrategySkip:
			e.logger.Warn("step failed, skipping",
				zap.String("task_id", task.ID), zap.Int("step", stepIndex), zap.String("error", step.Error))
			continue

		case types.StrategyRetry:
			if task.RetryCount < task.MaxRetries && ctx.Err() == nil {
				task.RetryCount++
				e.logger.Info("retrying failed step",
					zap.String("task_id", task.ID), zap.Int("step", stepIndex),
					zap.Int("attempt", task.RetryCount+1))
				result.Steps = result.Steps[:stepIndex]
				idx--
				continue
			}
			kind, recoverable := stepErrorKind(step)
			result.AddError(kind,
				fmt.Sprintf("step %d failed after %d retries: %s", stepIndex, task.RetryCount, step.Error),
				stepIndex, recoverable)
			return false

		case types.StrategyFallback:
			if !fallbackApplied && len(task.Config.ErrorHandling.Fallbacks) > 0 {
				fallbackApplied = true
				e.logger.Info("substituting fallback actions",
					zap.String("task_id", task.ID), zap.Int("step", stepIndex),
					zap.Int("fallbacks", len(task.Config.ErrorHandling.Fallbacks)))
				// Copy both slices so the splice never writes into the
				// policy's backing array; TaskConfig is immutable during
				// execution.
				fallbacks := append([]types.Action{}, task.Config.ErrorHandling.Fallbacks...)
				rest := append([]types.Action{}, actions[idx+1:]...)
				actions = append(actions[:idx+1], append(fallbacks, rest...)...)
				continue
			}
			kind, recoverable := stepErrorKind(step)
			result.AddError(kind, step.Error, stepIndex, recoverable)
			return false

		default: // abort
			kind, recoverable := stepErrorKind(step)
			result.AddError(kind, step.Error, stepIndex, recoverable)
			return false
		}
	}
	return false
}

// performAction runs a single action and records its outcome. The returned
// step is never appended here; the caller owns Result.Steps.
func (e *Engine) performAction(ctx context.Context, action types.Action, res *resolver.Resolver, driver browser.Driver, result *types.Result) (step types.StepResult) {
	start := time.Now()
	step.Action = action
	defer func() {
		step.Duration = time.Since(start)
	}()

	actx, cancel := context.WithTimeout(ctx, action.EffectiveTimeout())
	defer cancel()

	// A wait with no selector is a plain pause.
	if action.Type == types.ActionWait && action.Selector == "" {
		select {
		case <-time.After(action.EffectiveTimeout()):
		case <-actx.Done():
		}
		step.Success = true
		return step
	}

	resolution := res.Resolve(actx, action.Selector, action.Options.Fallbacks, action.SmartResolve)
	step.Confidence = resolution.Confidence
	if !resolution.Found {
		step.Error = fmt.Sprintf("element not found for selector %q (method %s)", action.Selector, resolution.Method)
		return step
	}
	step.ElementFound = true
	selector := resolution.Selector

	if action.Options.WaitForSelector {
		if err := driver.WaitForSelector(actx, selector, action.EffectiveTimeout()); err != nil {
			step.Error = fmt.Sprintf("wait for %q failed: %v", selector, err)
			return step
		}
	}
	if action.Options.ScrollIntoView && action.Type != types.ActionScroll {
		if err := driver.ScrollIntoView(actx, selector); err != nil {
			step.Error = fmt.Sprintf("scroll to %q failed: %v", selector, err)
			return step
		}
	}

	var err error
	switch action.Type {
	case types.ActionClick:
		err = driver.Click(actx, selector, browser.ClickOptions{
			DoubleClick: action.Options.DoubleClick,
			RightClick:  action.Options.RightClick,
			Force:       action.Options.Force,
			Timeout:     action.EffectiveTimeout(),
		})
	case types.ActionTypeText:
		err = driver.Fill(actx, selector, action.Value)
	case types.ActionSelect:
		err = driver.SelectOption(actx, selector, action.Value)
	case types.ActionScroll:
		err = driver.ScrollIntoView(actx, selector)
	case types.ActionWait:
		err = driver.WaitForSelector(actx, selector, action.EffectiveTimeout())
	case types.ActionExtract:
		var value types.ExtractedValue
		value, err = e.extract(actx, driver, selector, action.Value)
		if err == nil {
			result.Extracted = append(result.Extracted, value)
		}
	case types.ActionValidate:
		// Resolution already proved the element is present.
	default:
		err = fmt.Errorf("unsupported action type %q", action.Type)
	}
	if err != nil {
		step.Error = err.Error()
		return step
	}

	step.Success = true
	return step
}

// extract reads a value off the page. The action's Value field selects the
// format: "number" parses the element text as a float, "structured" parses
// the whole page into title, headings, and links, and anything else (or
// empty) returns the element text.
func (e *Engine) extract(ctx context.Context, driver browser.Driver, selector, format string) (types.ExtractedValue, error) {
	switch format {
	case "structured":
		raw, err := driver.Content(ctx)
		if err != nil {
			return types.NoneValue(), fmt.Errorf("failed to read page content: %w", err)
		}
		content, err := browser.ParseContent(raw)
		if err != nil {
			return types.NoneValue(), err
		}

		headings := make([]types.ExtractedValue, 0, len(content.Headings))
		for _, h := range content.Headings {
			headings = append(headings, types.TextValue(h))
		}
		links := make([]types.ExtractedValue, 0, len(content.Links))
		for _, l := range content.Links {
			links = append(links, types.TextValue(l.Href))
		}
		return types.ListValue(
			types.TextValue(content.Title),
			types.ListValue(headings...),
			types.ListValue(links...),
		), nil

	case "number":
		text, err := driver.Text(ctx, selector)
		if err != nil {
			return types.NoneValue(), fmt.Errorf("failed to read text of %q: %w", selector, err)
		}
		n, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
		if err != nil {
			return types.NoneValue(), fmt.Errorf("text of %q is not numeric: %w", selector, err)
		}
		return types.NumberValue(n), nil

	default:
		text, err := driver.Text(ctx, selector)
		if err != nil {
			return types.NoneValue(), fmt.Errorf("failed to read text of %q: %w", selector, err)
		}
		text = strings.TrimSpace(text)
		if text == "" {
			return types.NoneValue(), nil
		}
		return types.TextValue(text), nil
	}
}

// runValidations evaluates every validation rule in order. Failing required
// rules become task errors; failing optional rules are only logged.
func (e *Engine) runValidations(ctx context.Context, task *types.Task, driver browser.Driver, result *types.Result) {
	for _, rule := range task.Config.Validations {
		ok, detail := e.checkRule(ctx, driver, rule)
		if ok {
			continue
		}
		if rule.Required {
			result.AddError(types.ErrValidationFailed, detail, types.ValidationPhaseStep, false)
		} else {
			e.logger.Warn("optional validation failed",
				zap.String("task_id", task.ID), zap.String("detail", detail))
		}
	}
}

// checkRule evaluates one validation rule against the page.
func (e *Engine) checkRule(ctx context.Context, driver browser.Driver, rule types.ValidationRule) (bool, string) {
	switch rule.Type {
	case types.ValidatePresence:
		exists, err := driver.Exists(ctx, rule.Selector)
		if err != nil {
			return false, fmt.Sprintf("presence check for %q failed: %v", rule.Selector, err)
		}
		if !exists {
			return false, fmt.Sprintf("expected %q to be present", rule.Selector)
		}
		return true, ""

	case types.ValidateText:
		text, err := driver.Text(ctx, rule.Selector)
		if err != nil {
			return false, fmt.Sprintf("text check for %q failed: %v", rule.Selector, err)
		}
		if strings.TrimSpace(text) != rule.Expected {
			return false, fmt.Sprintf("expected text of %q to be %q, got %q", rule.Selector, rule.Expected, strings.TrimSpace(text))
		}
		return true, ""

	case types.ValidateAttribute:
		name, want, found := strings.Cut(rule.Expected, "=")
		if !found {
			return false, fmt.Sprintf("attribute check for %q needs expected in name=value form, got %q", rule.Selector, rule.Expected)
		}
		got, err := driver.Attribute(ctx, rule.Selector, name)
		if err != nil {
			return false, fmt.Sprintf("attribute check for %q failed: %v", rule.Selector, err)
		}
		if got != want {
			return false, fmt.Sprintf("expected %s of %q to be %q, got %q", name, rule.Selector, want, got)
		}
		return true, ""

	case types.ValidateCount:
		want, err := strconv.Atoi(rule.Expected)
		if err != nil {
			return false, fmt.Sprintf("count check for %q needs a numeric expected value, got %q", rule.Selector, rule.Expected)
		}
		got, err := driver.Count(ctx, rule.Selector)
		if err != nil {
			return false, fmt.Sprintf("count check for %q failed: %v", rule.Selector, err)
		}
		if got != want {
			return false, fmt.Sprintf("expected %d elements matching %q, got %d", want, rule.Selector, got)
		}
		return true, ""

	case types.ValidateCustom:
		// Custom predicates are supplied out of band; without one the
		// rule degenerates to a presence check.
		exists, err := driver.Exists(ctx, rule.Selector)
		if err != nil {
			return false, fmt.Sprintf("custom check for %q failed: %v", rule.Selector, err)
		}
		if !exists {
			return false, fmt.Sprintf("expected %q to be present", rule.Selector)
		}
		return true, ""

	default:
		// Unknown rule types pass so new rule kinds in task files do not
		// fail older engines.
		e.logger.Warn("unknown validation type, passing",
			zap.String("type", string(rule.Type)), zap.String("selector", rule.Selector))
		return true, ""
	}
}

// stepErrorKind classifies a failed step into a task error kind.
func stepErrorKind(step types.StepResult) (types.ErrorKind, bool) {
	if !step.ElementFound {
		return types.ErrElementNotFound, true
	}
	msg := strings.ToLower(step.Error)
	if strings.Contains(msg, "deadline exceeded") || strings.Contains(msg, "timeout") {
		return types.ErrTimeout, false
	}
	return types.ErrNetwork, true
}
