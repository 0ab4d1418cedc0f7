package buffer

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// RingBuffer is a fixed-size ring. Writes never block: when full, the oldest
// elements are overwritten. Reads block until data arrives, the write side
// is closed, or the context is done.
type RingBuffer[T any] struct {
	writeNotify chan struct{}

	mu         sync.Mutex
	buf        []T
	head, tail int64
	dropped    int64
	closeWrite bool
	closeErr   error
}

// RingN creates a RingBuffer holding at most size elements.
func RingN[T any](size int) *RingBuffer[T] {
	if size <= 0 {
		panic("buffer: ring size must be positive")
	}
	return &RingBuffer[T]{
		writeNotify: make(chan struct{}, 1),
		buf:         make([]T, size),
	}
}

// Write appends p, overwriting the oldest elements if needed. It always
// consumes all of p unless the buffer is closed.
func (rb *RingBuffer[T]) Write(p []T) (int, error) {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	if rb.closeErr != nil {
		return 0, fmt.Errorf("buffer: write to closed buffer: %w", rb.closeErr)
	}
	if rb.closeWrite {
		return 0, fmt.Errorf("buffer: write to closed buffer: %w", io.ErrClosedPipe)
	}

	size := int64(len(rb.buf))
	src := p
	if int64(len(src)) > size {
		rb.dropped += int64(len(src)) - size
		src = src[int64(len(src))-size:]
	}
	for _, v := range src {
		rb.buf[rb.tail%size] = v
		rb.tail++
	}
	if over := rb.tail - rb.head - size; over > 0 {
		rb.head += over
		rb.dropped += over
	}
	rb.notify()
	return len(p), nil
}

func (rb *RingBuffer[T]) notify() {
	select {
	case rb.writeNotify <- struct{}{}:
	default:
	}
}

// Read copies up to len(p) buffered elements into p. It blocks while the
// buffer is empty. It returns io.EOF once the write side is closed and the
// buffer drained, or ctx.Err() if ctx is done first.
func (rb *RingBuffer[T]) Read(ctx context.Context, p []T) (int, error) {
	rb.mu.Lock()
	for rb.head == rb.tail {
		if rb.closeErr != nil {
			rb.mu.Unlock()
			return 0, fmt.Errorf("buffer: read from closed buffer: %w", rb.closeErr)
		}
		if rb.closeWrite {
			rb.mu.Unlock()
			return 0, io.EOF
		}
		rb.mu.Unlock()
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-rb.writeNotify:
		}
		rb.mu.Lock()
	}
	defer rb.mu.Unlock()
	if rb.closeErr != nil {
		return 0, fmt.Errorf("buffer: read from closed buffer: %w", rb.closeErr)
	}

	size := int64(len(rb.buf))
	n := 0
	for n < len(p) && rb.head < rb.tail {
		p[n] = rb.buf[rb.head%size]
		rb.head++
		n++
	}
	if rb.head < rb.tail {
		rb.notify()
	}
	return n, nil
}

// ReadFull reads exactly len(p) elements, blocking as needed. A short read
// is returned with io.ErrUnexpectedEOF when the write side closes midway.
func (rb *RingBuffer[T]) ReadFull(ctx context.Context, p []T) (int, error) {
	n := 0
	for n < len(p) {
		m, err := rb.Read(ctx, p[n:])
		n += m
		if err != nil {
			if err == io.EOF && n > 0 {
				return n, io.ErrUnexpectedEOF
			}
			return n, err
		}
	}
	return n, nil
}

// Len returns the number of buffered elements.
func (rb *RingBuffer[T]) Len() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return int(rb.tail - rb.head)
}

// Dropped returns how many elements were overwritten before being read.
func (rb *RingBuffer[T]) Dropped() int64 {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.dropped
}

// Reset discards all buffered elements.
func (rb *RingBuffer[T]) Reset() {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.head = rb.tail
}

// CloseWrite stops further writes. Buffered data can still be read.
func (rb *RingBuffer[T]) CloseWrite() error {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	if rb.closeWrite {
		return nil
	}
	rb.closeWrite = true
	close(rb.writeNotify)
	return nil
}

// CloseWithError closes both sides; pending and future reads return err.
func (rb *RingBuffer[T]) CloseWithError(err error) error {
	if err == nil {
		err = io.ErrClosedPipe
	}
	rb.mu.Lock()
	defer rb.mu.Unlock()
	if rb.closeErr != nil {
		return nil
	}
	rb.closeErr = err
	if !rb.closeWrite {
		rb.closeWrite = true
		close(rb.writeNotify)
	}
	return nil
}

// Close is CloseWithError(io.ErrClosedPipe).
func (rb *RingBuffer[T]) Close() error {
	return rb.CloseWithError(io.ErrClosedPipe)
}
