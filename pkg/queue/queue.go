// Package queue holds submitted tasks, orders dispatch by priority, and
// bounds how many tasks may be running at once. The engine drains the
// queue serially; MaxConcurrency is an admission bound, not a parallelism
// guarantee.
package queue

import (
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/entrhq/pilot/pkg/types"
)

// DefaultMaxConcurrency admits one running task at a time.
const DefaultMaxConcurrency = 1

// Queue is a priority task queue with a running-task admission bound.
// Safe for concurrent use.
type Queue struct {
	mu        sync.Mutex
	pending   []*types.Task          // insertion order preserved for stable ties
	tasks     map[string]*types.Task // all known tasks by ID
	running   map[string]bool
	cancelled map[string]bool // survives engine writes to task.Status
	slots     *semaphore.Weighted
}

// New creates a queue admitting at most maxConcurrency running tasks;
// values below 1 use DefaultMaxConcurrency.
func New(maxConcurrency int) *Queue {
	if maxConcurrency < 1 {
		maxConcurrency = DefaultMaxConcurrency
	}
	return &Queue{
		tasks:     make(map[string]*types.Task),
		running:   make(map[string]bool),
		cancelled: make(map[string]bool),
		slots:     semaphore.NewWeighted(int64(maxConcurrency)),
	}
}

// Enqueue adds a pending task. Tasks are owned by the queue until
// dispatched via DequeueNext.
func (q *Queue) Enqueue(task *types.Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, exists := q.tasks[task.ID]; exists {
		return fmt.Errorf("task %q already enqueued", task.ID)
	}

	task.Status = types.StatusPending
	q.tasks[task.ID] = task
	q.pending = append(q.pending, task)
	return nil
}

// DequeueNext returns the highest-priority pending task and marks it
// running, or nil when nothing is pending or the admission bound is
// reached. Ties within a priority dispatch in insertion order.
func (q *Queue) DequeueNext() *types.Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pending) == 0 {
		return nil
	}
	if !q.slots.TryAcquire(1) {
		return nil
	}

	best := -1
	for i, task := range q.pending {
		if best == -1 || task.Priority.Weight() > q.pending[best].Priority.Weight() {
			best = i
		}
	}
	if best == -1 {
		q.slots.Release(1)
		return nil
	}

	task := q.pending[best]
	q.pending = append(q.pending[:best], q.pending[best+1:]...)
	task.Status = types.StatusRunning
	q.running[task.ID] = true
	return task
}

// Release records a dispatched task's terminal status and frees its
// admission slot.
func (q *Queue) Release(taskID string, status types.TaskStatus) {
	q.mu.Lock()
	defer q.mu.Unlock()

	task, ok := q.tasks[taskID]
	if !ok || !q.running[taskID] {
		return
	}
	delete(q.running, taskID)
	if q.cancelled[taskID] {
		status = types.StatusCancelled
	}
	task.Status = status
	q.slots.Release(1)
}

// Cancel marks a task cancelled. Pending tasks are removed from the
// dispatch order immediately; running tasks keep their slot until the
// engine notices the cancellation between steps and calls Release.
func (q *Queue) Cancel(taskID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	task, ok := q.tasks[taskID]
	if !ok {
		return fmt.Errorf("task %q not found", taskID)
	}
	if task.Status.Terminal() {
		return fmt.Errorf("task %q already %s", taskID, task.Status)
	}

	if task.Status == types.StatusPending {
		for i, pending := range q.pending {
			if pending.ID == taskID {
				q.pending = append(q.pending[:i], q.pending[i+1:]...)
				break
			}
		}
	}
	task.Status = types.StatusCancelled
	q.cancelled[taskID] = true
	return nil
}

// Status returns the lifecycle state of a known task.
func (q *Queue) Status(taskID string) (types.TaskStatus, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	task, ok := q.tasks[taskID]
	if !ok {
		return "", fmt.Errorf("task %q not found", taskID)
	}
	return task.Status, nil
}

// Cancelled reports whether the task has been cancelled. The engine checks
// this between steps. Tracked separately from task.Status so the engine's
// own status writes cannot mask a cancellation.
func (q *Queue) Cancelled(taskID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.cancelled[taskID]
}

// Len returns the number of pending tasks.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Running returns the number of tasks currently holding an admission slot.
func (q *Queue) Running() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.running)
}
