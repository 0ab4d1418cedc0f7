package buffer

import "sync"

// Window keeps the most recent elements added to it.
type Window[T any] struct {
	mu    sync.Mutex
	buf   []T
	next  int
	count int
}

// WindowN creates a Window holding at most size elements.
func WindowN[T any](size int) *Window[T] {
	if size <= 0 {
		panic("buffer: window size must be positive")
	}
	return &Window[T]{buf: make([]T, size)}
}

// Add appends v, evicting the oldest element when full.
func (w *Window[T]) Add(v T) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf[w.next] = v
	w.next = (w.next + 1) % len(w.buf)
	if w.count < len(w.buf) {
		w.count++
	}
}

// Items returns a copy of the elements, oldest first.
func (w *Window[T]) Items() []T {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]T, 0, w.count)
	start := (w.next - w.count + len(w.buf)) % len(w.buf)
	for i := range w.count {
		out = append(out, w.buf[(start+i)%len(w.buf)])
	}
	return out
}

// Len returns the number of elements held.
func (w *Window[T]) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}
