// Package observe holds the subscriber registry shared by the call
// components. Subscribing returns an unsubscribe func instead of exposing
// assignable callback fields.
package observe

import (
	"maps"
	"slices"
	"sync"
)

// Hub is a set of subscribers. The zero value is ready to use.
type Hub[F any] struct {
	mu   sync.Mutex
	next int
	subs map[int]F
}

// Add registers f and returns a func that removes it. Calling the
// returned func more than once is harmless.
func (h *Hub[F]) Add(f F) func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs == nil {
		h.subs = make(map[int]F)
	}
	id := h.next
	h.next++
	h.subs[id] = f
	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
		})
	}
}

// List returns a snapshot of subscribers in registration order. Callers
// invoke them without holding any Hub lock.
func (h *Hub[F]) List() []F {
	h.mu.Lock()
	defer h.mu.Unlock()
	keys := slices.Sorted(maps.Keys(h.subs))
	out := make([]F, len(keys))
	for i, k := range keys {
		out[i] = h.subs[k]
	}
	return out
}

// Len returns the number of subscribers.
func (h *Hub[F]) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
