package resolver

import (
	"container/list"
	"sync"
	"time"
)

// Pattern learning parameters.
const (
	DefaultPatternCapacity = 256
	initialConfidence      = 0.60
	confidenceStep         = 0.05
	maxConfidence          = 0.95
)

// ElementPattern is a learned mapping from an originally-requested selector
// to a selector that previously worked as a substitute.
type ElementPattern struct {
	// Original is the selector the caller asked for.
	Original string

	// Learned is the selector that actually matched.
	Learned string

	// Frequency counts successful uses of the learned selector.
	Frequency int

	// LastUsed is when the pattern last resolved successfully.
	LastUsed time.Time

	// Confidence grows by a fixed step on repeated success, capped.
	Confidence float64
}

// PatternStore holds learned patterns keyed by original selector. It is
// bounded: once capacity is reached the least-recently-used pattern is
// evicted, so long-lived engines do not leak memory. Safe for concurrent
// use.
type PatternStore struct {
	mu       sync.Mutex
	capacity int
	order    *list.List // front = most recently used
	entries  map[string]*list.Element
}

// NewPatternStore creates a store with the given capacity; values below 1
// use DefaultPatternCapacity.
func NewPatternStore(capacity int) *PatternStore {
	if capacity < 1 {
		capacity = DefaultPatternCapacity
	}
	return &PatternStore{
		capacity: capacity,
		order:    list.New(),
		entries:  make(map[string]*list.Element),
	}
}

// Learn upserts the pattern for original: a new entry starts at the initial
// confidence; repeated success increments frequency and steps confidence up
// to the cap. The entry becomes most recently used.
func (s *PatternStore) Learn(original, learned string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if elem, ok := s.entries[original]; ok {
		pattern := elem.Value.(*ElementPattern)
		pattern.Learned = learned
		pattern.Frequency++
		pattern.LastUsed = time.Now()
		pattern.Confidence += confidenceStep
		if pattern.Confidence > maxConfidence {
			pattern.Confidence = maxConfidence
		}
		s.order.MoveToFront(elem)
		return
	}

	if s.order.Len() >= s.capacity {
		oldest := s.order.Back()
		if oldest != nil {
			s.order.Remove(oldest)
			delete(s.entries, oldest.Value.(*ElementPattern).Original)
		}
	}

	s.entries[original] = s.order.PushFront(&ElementPattern{
		Original:   original,
		Learned:    learned,
		Frequency:  1,
		LastUsed:   time.Now(),
		Confidence: initialConfidence,
	})
}

// Lookup returns a copy of the pattern for original, if one is known, and
// marks it recently used.
func (s *PatternStore) Lookup(original string) (ElementPattern, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	elem, ok := s.entries[original]
	if !ok {
		return ElementPattern{}, false
	}
	s.order.MoveToFront(elem)
	return *elem.Value.(*ElementPattern), true
}

// Len returns the number of learned patterns.
func (s *PatternStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.order.Len()
}
