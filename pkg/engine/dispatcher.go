package engine

import (
	"sync"

	"go.uber.org/zap"

	"github.com/entrhq/pilot/pkg/types"
)

// DefaultEventBuffer is the subscriber channel capacity used when
// Subscribe is called with a non-positive buffer.
const DefaultEventBuffer = 16

// dispatcher fans lifecycle events out to subscriber channels. Delivery
// is non-blocking: a subscriber that falls behind its buffer loses events
// instead of stalling task execution.
type dispatcher struct {
	mu     sync.Mutex
	subs   map[chan types.Event]struct{}
	closed bool
	logger *zap.Logger
}

func newDispatcher(logger *zap.Logger) *dispatcher {
	return &dispatcher{
		subs:   make(map[chan types.Event]struct{}),
		logger: logger,
	}
}

func (d *dispatcher) subscribe(buffer int) <-chan types.Event {
	if buffer <= 0 {
		buffer = DefaultEventBuffer
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	ch := make(chan types.Event, buffer)
	if d.closed {
		close(ch)
		return ch
	}
	d.subs[ch] = struct{}{}
	return ch
}

func (d *dispatcher) unsubscribe(ch <-chan types.Event) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for sub := range d.subs {
		if sub == ch {
			delete(d.subs, sub)
			close(sub)
			return
		}
	}
}

func (d *dispatcher) emit(event types.Event) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return
	}
	for sub := range d.subs {
		select {
		case sub <- event:
		default:
			d.logger.Warn("dropping event for slow subscriber",
				zap.String("event", string(event.Type)))
		}
	}
}

// close closes all subscriber channels. Emit becomes a no-op afterwards.
func (d *dispatcher) close() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return
	}
	d.closed = true
	for sub := range d.subs {
		delete(d.subs, sub)
		close(sub)
	}
}
