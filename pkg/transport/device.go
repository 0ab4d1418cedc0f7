package transport

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/eburon/brokerdial/pkg/audio/pcm"
)

// NullDevice produces silence at real-time pace and discards playback. It
// keeps the uplink alive for calls without a local audio endpoint, such as
// the CLI and tests.
type NullDevice struct {
	format pcm.Format
	frame  time.Duration
	played atomic.Int64
	next   time.Time
}

// NewNullDevice creates a NullDevice that emits 20ms frames in format.
func NewNullDevice(format pcm.Format) *NullDevice {
	return &NullDevice{format: format, frame: pcm.DefaultChunkDuration}
}

func (d *NullDevice) Format() pcm.Format {
	return d.format
}

// ReadFrame waits until the next frame is due and returns silence. It is
// meant for a single reader.
func (d *NullDevice) ReadFrame(ctx context.Context) ([]byte, error) {
	now := time.Now()
	if d.next.IsZero() || d.next.Before(now.Add(-time.Second)) {
		d.next = now
	}
	if wait := d.next.Sub(now); wait > 0 {
		t := time.NewTimer(wait)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-t.C:
		}
	} else if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.next = d.next.Add(d.frame)
	return make([]byte, d.format.BytesInDuration(d.frame)), nil
}

// Play discards f.
func (d *NullDevice) Play(f pcm.Frame) error {
	d.played.Add(int64(len(f.Data)))
	return nil
}

// Played returns the number of bytes passed to Play.
func (d *NullDevice) Played() int64 {
	return d.played.Load()
}
