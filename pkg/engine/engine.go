// Package engine orchestrates browser-task execution: it owns one browser
// session, drains the task queue, resolves elements, applies error-handling
// policy, runs validations, and emits lifecycle events.
//
// The engine executes tasks strictly serially against its single page; the
// queue's MaxConcurrency setting is admission control over that serial
// executor, not a parallelism guarantee.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/entrhq/pilot/pkg/browser"
	"github.com/entrhq/pilot/pkg/config"
	"github.com/entrhq/pilot/pkg/logging"
	"github.com/entrhq/pilot/pkg/perf"
	"github.com/entrhq/pilot/pkg/queue"
	"github.com/entrhq/pilot/pkg/resolver"
	"github.com/entrhq/pilot/pkg/security"
	"github.com/entrhq/pilot/pkg/types"
)

// Engine runs automation tasks against one browser session.
type Engine struct {
	cfg        config.EngineConfig
	gate       *security.Gate
	tracker    *perf.Tracker
	queue      *queue.Queue
	dispatcher *dispatcher
	logger     *zap.Logger

	mu          sync.Mutex
	driver      browser.Driver
	resolver    *resolver.Resolver
	results     map[string]*types.Result
	initialized bool
	closed      bool

	wake     chan struct{}
	loopDone chan struct{}
	stopLoop context.CancelFunc
}

// Option customizes engine construction.
type Option func(*Engine)

// WithDriver supplies a pre-built driver instead of launching Playwright
// in Initialize. Used by tests and embedders with their own session
// management.
func WithDriver(driver browser.Driver) Option {
	return func(e *Engine) {
		e.driver = driver
	}
}

// WithRegistry registers the tracker's Prometheus metrics on the given
// registry.
func WithRegistry(registry prometheus.Registerer) Option {
	return func(e *Engine) {
		e.tracker = perf.NewTracker(registry, e.cfg.Performance.MetricsNamespace)
	}
}

// New builds an engine from the configuration. The browser session is not
// started until Initialize.
func New(cfg config.EngineConfig, logger *zap.Logger, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	gate, err := security.NewGate(cfg.Security)
	if err != nil {
		return nil, fmt.Errorf("invalid security config: %w", err)
	}

	e := &Engine{
		cfg:      cfg,
		gate:     gate,
		tracker:  perf.NewTracker(nil, ""),
		queue:    queue.New(cfg.MaxConcurrency),
		logger:   logging.Component(logger, "engine"),
		results:  make(map[string]*types.Result),
		wake:     make(chan struct{}, 1),
		loopDone: make(chan struct{}),
	}
	e.dispatcher = newDispatcher(e.logger)

	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Initialize starts the browser session and the queue worker. Callers must
// not proceed when it fails; the engine is unusable and only Cleanup may
// be called.
func (e *Engine) Initialize(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.initialized {
		return nil
	}
	if e.closed {
		return fmt.Errorf("engine is closed")
	}

	if e.driver == nil {
		var observer browser.ResponseObserver
		if e.cfg.Performance.TrackRequests {
			observer = func(url, resourceType string, duration time.Duration) {
				e.tracker.Record(perf.RequestRecord{
					URL:          url,
					ResourceType: resourceType,
					Duration:     duration,
				})
			}
		}

		session, err := browser.NewSession(browser.SessionOptions{
			Headless:   e.cfg.Headless,
			Timeout:    e.cfg.Timeout.Std(),
			OnResponse: observer,
		}, e.logger)
		if err != nil {
			err = fmt.Errorf("failed to initialize browser: %w", err)
			e.dispatcher.emit(types.NewEngineErrorEvent(err))
			return err
		}
		e.driver = session
	}

	e.resolver = resolver.New(e.driver, e.logger)

	loopCtx, cancel := context.WithCancel(context.Background())
	e.stopLoop = cancel
	go e.runLoop(loopCtx)

	e.initialized = true
	e.dispatcher.emit(types.NewEngineInitializedEvent())
	e.logger.Info("engine initialized", zap.Bool("headless", e.cfg.Headless))
	return nil
}

// runLoop drains the queue serially until the engine is cleaned up.
func (e *Engine) runLoop(ctx context.Context) {
	defer close(e.loopDone)

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.wake:
		}

		for {
			task := e.queue.DequeueNext()
			if task == nil {
				break
			}

			result := e.ExecuteTask(ctx, task)

			status := types.StatusCompleted
			switch {
			case e.queue.Cancelled(task.ID):
				status = types.StatusCancelled
			case !result.Success:
				status = types.StatusFailed
			}
			e.mu.Lock()
			e.results[task.ID] = result
			e.mu.Unlock()

			// Release last so a terminal status implies the result
			// is already readable.
			e.queue.Release(task.ID, status)
		}
	}
}

// SubmitTask enqueues a task for asynchronous execution and returns its ID.
func (e *Engine) SubmitTask(task *types.Task) (string, error) {
	e.mu.Lock()
	initialized := e.initialized
	e.mu.Unlock()
	if !initialized {
		return "", fmt.Errorf("engine not initialized")
	}

	if err := e.queue.Enqueue(task); err != nil {
		return "", err
	}

	select {
	case e.wake <- struct{}{}:
	default:
	}
	return task.ID, nil
}

// CancelTask cancels a pending or running task. Running tasks stop
// cooperatively at the next step boundary; an in-flight browser call
// cannot be interrupted.
func (e *Engine) CancelTask(taskID string) error {
	return e.queue.Cancel(taskID)
}

// TaskStatus returns the lifecycle state of a submitted task.
func (e *Engine) TaskStatus(taskID string) (types.TaskStatus, error) {
	return e.queue.Status(taskID)
}

// TaskResult returns the result of a finished submitted task.
func (e *Engine) TaskResult(taskID string) (*types.Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	result, ok := e.results[taskID]
	if !ok {
		return nil, fmt.Errorf("no result for task %q", taskID)
	}
	return result, nil
}

// Subscribe returns a channel of lifecycle events. A non-positive buffer
// uses DefaultEventBuffer. Slow subscribers drop events.
func (e *Engine) Subscribe(buffer int) <-chan types.Event {
	return e.dispatcher.subscribe(buffer)
}

// Unsubscribe closes and removes a subscription channel.
func (e *Engine) Unsubscribe(ch <-chan types.Event) {
	e.dispatcher.unsubscribe(ch)
}

// PerformanceReport aggregates all network requests observed so far.
func (e *Engine) PerformanceReport() perf.Report {
	return e.tracker.Report()
}

// Cleanup stops the worker and closes the browser session. Safe to call
// even when Initialize failed partway, and safe to call more than once.
func (e *Engine) Cleanup() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	initialized := e.initialized
	e.initialized = false
	driver := e.driver
	e.driver = nil
	e.mu.Unlock()

	if e.stopLoop != nil {
		e.stopLoop()
		<-e.loopDone
	}

	var err error
	if driver != nil {
		if closeErr := driver.Close(); closeErr != nil {
			err = fmt.Errorf("failed to close browser: %w", closeErr)
			e.dispatcher.emit(types.NewEngineErrorEvent(err))
		}
	}

	if initialized || driver != nil {
		e.logger.Info("engine cleaned up")
	}
	e.dispatcher.emit(types.NewEngineCleanupEvent())
	e.dispatcher.close()
	return err
}
