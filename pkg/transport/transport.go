// Package transport carries call audio between a local Device and a remote
// voice Backend, and surfaces volume, close and raw-frame observations.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/eburon/brokerdial/pkg/audio/pcm"
)

var (
	// ErrAlreadyConnected is returned by Connect on a session that has
	// already been connected or is connecting.
	ErrAlreadyConnected = errors.New("transport: already connected")

	// ErrClosed is returned by Connect on a disconnected session.
	ErrClosed = errors.New("transport: session closed")

	// ErrDisconnected is the cause of a ConnectionError when Disconnect
	// interrupts an in-flight Connect.
	ErrDisconnected = errors.New("transport: disconnected while connecting")
)

// ConnectionError reports that the backend could not be reached or rejected
// the session.
type ConnectionError struct {
	Backend string
	Err     error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("transport: connect %s: %v", e.Backend, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// CloseEvent describes how a connected session ended.
type CloseEvent struct {
	// Remote is true when the backend or the device ended the session
	// rather than a local Disconnect.
	Remote bool
	// Err is the failure that ended the session, if any. A clean remote
	// hang-up has a nil Err.
	Err error
}

// Transport is one duplex call session. Implementations fire every OnClose
// subscriber exactly once per connected session, asynchronously, whether
// the session ended locally or remotely. Subscriptions return an
// unsubscribe function.
type Transport interface {
	// Connect opens the session with the given instruction text. Failure
	// is reported synchronously as a *ConnectionError.
	Connect(ctx context.Context, instruction string) error
	// Disconnect ends the session. It is idempotent and safe to call before
	// or during Connect.
	Disconnect()
	OnVolume(func(in, out float32)) (unsubscribe func())
	OnClose(func(CloseEvent)) (unsubscribe func())
	OnFrame(func(pcm.Frame)) (unsubscribe func())
}

// Backend opens streams to a realtime voice service.
type Backend interface {
	Name() string
	// Dial connects and hands the instruction to the service. It returns
	// once the service has accepted the session.
	Dial(ctx context.Context, instruction string) (Stream, error)
}

// Stream is an open backend conversation carrying raw L16 audio.
type Stream interface {
	// InputFormat is the format Send expects.
	InputFormat() pcm.Format
	// OutputFormat is the format Recv returns.
	OutputFormat() pcm.Format
	Send(pcm []byte) error
	// Recv blocks for the next chunk of model audio. It returns io.EOF
	// when the service ends the conversation cleanly.
	Recv() ([]byte, error)
	Close() error
}

// Device is the local end of a call: a microphone source and a speaker.
type Device interface {
	// Format is the format ReadFrame produces.
	Format() pcm.Format
	// ReadFrame blocks for the next captured chunk. It returns io.EOF when
	// the device has hung up.
	ReadFrame(ctx context.Context) ([]byte, error)
	// Play queues model audio for playback. Frames arrive in the backend's
	// output format.
	Play(pcm.Frame) error
}

func isCleanEnd(err error) bool {
	return err == nil || errors.Is(err, io.EOF)
}
