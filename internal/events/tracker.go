package events

import (
	"slices"
	"sync"
)

// DefaultTrackerSize bounds how many entities a Tracker remembers.
const DefaultTrackerSize = 10000

// Tracker remembers the last applied version per entity. Applying an event
// at or below that version is a no-op, which makes redelivery harmless.
type Tracker struct {
	mu    sync.Mutex
	limit int
	last  map[string]int64
	order []string // insertion order, oldest first
}

func NewTracker(limit int) *Tracker {
	if limit <= 0 {
		limit = DefaultTrackerSize
	}
	return &Tracker{limit: limit, last: make(map[string]int64)}
}

// Apply records e and reports whether it is new to this consumer.
func (t *Tracker) Apply(e Event) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := e.Key()
	prev, seen := t.last[key]
	if seen && e.Version <= prev {
		return false
	}
	if !seen {
		t.order = append(t.order, key)
		if len(t.order) > t.limit {
			evict := t.order[0]
			t.order = t.order[1:]
			delete(t.last, evict)
		}
	}
	t.last[key] = e.Version
	return true
}

// Revert undoes Apply(e) when delivery failed after it, putting the entity
// back at prev (0 forgets it). A newer version applied since is left alone.
func (t *Tracker) Revert(e Event, prev int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := e.Key()
	if cur, ok := t.last[key]; !ok || cur != e.Version {
		return
	}
	if prev > 0 {
		t.last[key] = prev
		return
	}
	delete(t.last, key)
	if i := slices.Index(t.order, key); i >= 0 {
		t.order = slices.Delete(t.order, i, i+1)
	}
}

// Last returns the last applied version for the entity key.
func (t *Tracker) Last(key string) (int64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.last[key]
	return v, ok
}

// Len returns how many entities are remembered.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.last)
}
