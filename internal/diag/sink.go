package diag

import (
	"sync"
)

// Sink collects diagnostics from concurrently compiled functions. Workers
// merge whole bags at the end of a unit; individual reports inside a unit
// stay on the worker's private bag and never contend on the lock.
type Sink struct {
	mu    sync.Mutex
	items []Diagnostic
}

func NewSink() *Sink {
	return &Sink{}
}

// Merge appends every diagnostic of the bag.
func (s *Sink) Merge(b *Bag) {
	if s == nil || b == nil || b.Len() == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, b.Items()...)
}

// Drain returns the collected diagnostics in deterministic order and resets
// the sink.
func (s *Sink) Drain() []Diagnostic {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.items
	s.items = nil
	bag := Bag{items: out, max: ^uint16(0)}
	bag.SortStable()
	return bag.items
}

// Len reports the number of collected diagnostics.
func (s *Sink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}
