package dialapi

import (
	"context"
	"errors"
	"time"

	"github.com/eburon/brokerdial/pkg/audio/pcm"
	"github.com/eburon/brokerdial/pkg/buffer"
	"github.com/eburon/brokerdial/pkg/observe"
	"github.com/eburon/brokerdial/pkg/transport"
)

// MicFormat is the format browsers send microphone audio in.
const MicFormat = pcm.L16Mono16K

// ErrOddFrame rejects microphone data that is not whole L16 samples.
var ErrOddFrame = errors.New("dialapi: microphone frame has an odd length")

// Device is the transport.Device of calls placed through the API. The
// microphone is fed by websocket clients and playback is fanned out to
// them.
type Device struct {
	mic      *buffer.RingBuffer[byte]
	playback observe.Hub[func(pcm.Frame)]
}

var _ transport.Device = (*Device)(nil)

// NewDevice returns a Device buffering up to two seconds of microphone
// audio. Older audio is dropped when clients send faster than the call
// consumes.
func NewDevice() *Device {
	return &Device{
		mic: buffer.RingN[byte](int(MicFormat.BytesInDuration(2 * time.Second))),
	}
}

func (d *Device) Format() pcm.Format {
	return MicFormat
}

// ReadFrame blocks for up to one chunk of microphone audio.
func (d *Device) ReadFrame(ctx context.Context) ([]byte, error) {
	buf := make([]byte, MicFormat.BytesInDuration(pcm.DefaultChunkDuration))
	n, err := d.mic.Read(ctx, buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

// Play hands model audio to playback subscribers.
func (d *Device) Play(f pcm.Frame) error {
	for _, fn := range d.playback.List() {
		fn(f)
	}
	return nil
}

// WriteMic queues microphone audio in MicFormat.
func (d *Device) WriteMic(p []byte) error {
	if len(p)%2 != 0 {
		return ErrOddFrame
	}
	_, err := d.mic.Write(p)
	return err
}

// OnPlayback subscribes to played frames. f runs on the call's audio
// goroutine and must not block.
func (d *Device) OnPlayback(f func(pcm.Frame)) func() {
	return d.playback.Add(f)
}

// Flush drops buffered microphone audio so a new call does not start with
// audio captured before it.
func (d *Device) Flush() {
	d.mic.Reset()
}

// Close hangs up the device. Calls in progress see a remote end.
func (d *Device) Close() error {
	return d.mic.CloseWrite()
}
