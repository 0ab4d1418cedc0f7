// Package meter turns a stream of call frames into per-direction volume
// levels emitted at a fixed cadence.
package meter

import (
	"context"
	"time"

	"github.com/eburon/brokerdial/pkg/audio/pcm"
)

// DefaultInterval is the emission cadence, about 20 updates per second.
const DefaultInterval = 50 * time.Millisecond

// Sample is one direction's level at an emission tick.
type Sample struct {
	Direction pcm.Direction
	Level     float32
}

// Option configures a Meter.
type Option func(*Meter)

// WithInterval sets the emission cadence.
func WithInterval(d time.Duration) Option {
	return func(m *Meter) {
		if d > 0 {
			m.interval = d
		}
	}
}

// WithGain scales computed levels before clamping. Browser-captured audio
// tends to be quiet, so a gain above 1 makes the bars readable.
func WithGain(g float32) Option {
	return func(m *Meter) {
		if g > 0 {
			m.gain = g
		}
	}
}

// Meter tracks the loudest level seen per direction in the current window.
// Observe may be called from any goroutine; Run owns the window reset.
type Meter struct {
	interval time.Duration
	gain     float32

	inbound  pcm.AtomicFloat32
	outbound pcm.AtomicFloat32
}

// New creates a Meter.
func New(opts ...Option) *Meter {
	m := &Meter{interval: DefaultInterval, gain: 1}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Interval returns the emission cadence.
func (m *Meter) Interval() time.Duration {
	return m.interval
}

// Observe records the level of f in its direction's window.
func (m *Meter) Observe(f pcm.Frame) {
	level := pcm.Level(f.Data) * m.gain
	if level > 1 {
		level = 1
	}
	switch f.Direction {
	case pcm.Inbound:
		m.inbound.StoreMax(level)
	case pcm.Outbound:
		m.outbound.StoreMax(level)
	}
}

// Flush returns the window maxima and starts a new window.
func (m *Meter) Flush() (in, out float32) {
	return m.inbound.Swap(0), m.outbound.Swap(0)
}

// Run calls emit once per interval with the window maxima until ctx is
// done. A tick with no frames emits zeros.
func (m *Meter) Run(ctx context.Context, emit func(in, out float32)) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			emit(m.Flush())
		}
	}
}
