package pcm

import (
	"math"
	"sync/atomic"
)

// AtomicFloat32 is a float32 with atomic access, stored as its IEEE bits.
// The zero value holds 0.
type AtomicFloat32 struct {
	bits atomic.Uint32
}

// Load returns the current value.
func (af *AtomicFloat32) Load() float32 {
	return math.Float32frombits(af.bits.Load())
}

// Store sets the value.
func (af *AtomicFloat32) Store(val float32) {
	af.bits.Store(math.Float32bits(val))
}

// Swap sets the value and returns the previous one.
func (af *AtomicFloat32) Swap(val float32) float32 {
	return math.Float32frombits(af.bits.Swap(math.Float32bits(val)))
}

// StoreMax raises the value to val if val is larger.
func (af *AtomicFloat32) StoreMax(val float32) {
	for {
		old := af.bits.Load()
		if math.Float32frombits(old) >= val {
			return
		}
		if af.bits.CompareAndSwap(old, math.Float32bits(val)) {
			return
		}
	}
}
