package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/eburon/brokerdial/pkg/audio/meter"
	"github.com/eburon/brokerdial/pkg/audio/pcm"
	"github.com/eburon/brokerdial/pkg/audio/resampler"
	"github.com/eburon/brokerdial/pkg/observe"
)

type phase int

const (
	phaseIdle phase = iota
	phaseDialing
	phaseOpen
	phaseClosed
)

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		s.logger = l
	}
}

// WithMeterOptions configures the session's level meter.
func WithMeterOptions(opts ...meter.Option) Option {
	return func(s *Session) {
		s.meterOpts = append(s.meterOpts, opts...)
	}
}

// WithClock sets the time source used to stamp frames.
func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		s.now = now
	}
}

// Session is a Transport for a single call. Construct a new Session for
// every call; a disconnected Session cannot be reconnected.
//
// Once connected, three goroutines run until the session ends: the uplink
// (device capture, resampled to the backend rate and sent in 20ms chunks),
// the downlink (backend audio to the device) and the level meter. Outbound
// frames are tapped in the device format, inbound frames in the backend
// output format.
type Session struct {
	backend   Backend
	device    Device
	logger    *slog.Logger
	meterOpts []meter.Option
	now       func() time.Time

	volume observe.Hub[func(in, out float32)]
	closed observe.Hub[func(CloseEvent)]
	frames observe.Hub[func(pcm.Frame)]

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	phase  phase
	stream Stream
}

var _ Transport = (*Session)(nil)

// New creates an unconnected Session.
func New(backend Backend, device Device, opts ...Option) *Session {
	s := &Session{
		backend: backend,
		device:  device,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("backend", backend.Name())
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s
}

// OnVolume subscribes to (inbound, outbound) levels at the meter cadence.
func (s *Session) OnVolume(f func(in, out float32)) func() {
	return s.volume.Add(f)
}

// OnClose subscribes to the end of the session.
func (s *Session) OnClose(f func(CloseEvent)) func() {
	return s.closed.Add(f)
}

// OnFrame subscribes to every frame in both directions. Subscribers run on
// the audio goroutines and must not block.
func (s *Session) OnFrame(f func(pcm.Frame)) func() {
	return s.frames.Add(f)
}

// Connect dials the backend and starts streaming. The dial follows ctx; the
// streams that follow do not, and run until Disconnect or a remote end.
func (s *Session) Connect(ctx context.Context, instruction string) error {
	s.mu.Lock()
	switch s.phase {
	case phaseIdle:
	case phaseClosed:
		s.mu.Unlock()
		return ErrClosed
	default:
		s.mu.Unlock()
		return ErrAlreadyConnected
	}
	s.phase = phaseDialing
	s.mu.Unlock()

	dialCtx, dialCancel := context.WithCancel(ctx)
	stop := context.AfterFunc(s.ctx, dialCancel)
	stream, err := s.backend.Dial(dialCtx, instruction)
	stop()
	dialCancel()

	s.mu.Lock()
	if s.phase == phaseClosed {
		s.mu.Unlock()
		if stream != nil {
			stream.Close()
		}
		return &ConnectionError{Backend: s.backend.Name(), Err: ErrDisconnected}
	}
	if err != nil {
		s.phase = phaseClosed
		s.mu.Unlock()
		s.cancel()
		s.logger.Warn("connect failed", "error", err)
		return &ConnectionError{Backend: s.backend.Name(), Err: err}
	}
	s.phase = phaseOpen
	s.stream = stream
	s.mu.Unlock()

	m := meter.New(s.meterOpts...)
	s.wg.Add(3)
	go s.uplink(stream, m)
	go s.downlink(stream, m)
	go func() {
		defer s.wg.Done()
		m.Run(s.ctx, s.emitVolume)
	}()
	s.logger.Info("connected",
		"input", stream.InputFormat().String(),
		"output", stream.OutputFormat().String(),
		"device", s.device.Format().String())
	return nil
}

// Disconnect ends the session locally.
func (s *Session) Disconnect() {
	if s.markClosed() {
		s.finish(CloseEvent{Remote: false})
	}
	s.cancel()
}

// markClosed moves the session to closed and reports whether it was open,
// which makes the caller responsible for the close event.
func (s *Session) markClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	wasOpen := s.phase == phaseOpen
	s.phase = phaseClosed
	return wasOpen
}

func (s *Session) remoteEnd(err error) {
	if !s.markClosed() {
		return
	}
	if isCleanEnd(err) {
		err = nil
		s.logger.Info("remote hung up")
	} else {
		s.logger.Warn("session failed", "error", err)
	}
	s.finish(CloseEvent{Remote: true, Err: err})
}

// finish tears down the stream and notifies subscribers once the audio
// goroutines have stopped.
func (s *Session) finish(ev CloseEvent) {
	s.cancel()
	s.mu.Lock()
	stream := s.stream
	s.mu.Unlock()
	if stream != nil {
		if err := stream.Close(); err != nil {
			s.logger.Debug("close stream", "error", err)
		}
	}
	go func() {
		s.wg.Wait()
		for _, f := range s.closed.List() {
			f(ev)
		}
	}()
}

func (s *Session) emitVolume(in, out float32) {
	for _, f := range s.volume.List() {
		f(in, out)
	}
}

func (s *Session) tap(f pcm.Frame, m *meter.Meter) {
	m.Observe(f)
	for _, fn := range s.frames.List() {
		fn(f)
	}
}

func (s *Session) uplink(stream Stream, m *meter.Meter) {
	defer s.wg.Done()
	src := &captureReader{ctx: s.ctx, s: s, m: m}
	conv, err := resampler.New(src,
		resampler.FromPCM(s.device.Format()),
		resampler.FromPCM(stream.InputFormat()))
	if err != nil {
		s.remoteEnd(err)
		return
	}
	defer conv.Close()

	send := pcm.WriteFunc(func(c pcm.Chunk) error {
		return stream.Send(c.(*pcm.DataChunk).Data)
	})
	err = pcm.Copy(send, conv, stream.InputFormat())
	if s.ctx.Err() != nil {
		return
	}
	if err == nil {
		err = src.err
	}
	if err == nil {
		err = io.EOF
	}
	s.remoteEnd(fmt.Errorf("uplink: %w", err))
}

func (s *Session) downlink(stream Stream, m *meter.Meter) {
	defer s.wg.Done()
	format := stream.OutputFormat()
	for {
		data, err := stream.Recv()
		if err != nil {
			if s.ctx.Err() == nil {
				s.remoteEnd(err)
			}
			return
		}
		if len(data) == 0 {
			continue
		}
		f := pcm.Frame{Direction: pcm.Inbound, Time: s.now(), Format: format, Data: data}
		s.tap(f, m)
		if err := s.device.Play(f); err != nil {
			s.logger.Debug("play", "error", err)
		}
	}
}

// captureReader adapts Device.ReadFrame to io.Reader for the resampler,
// tapping each captured frame on the way through.
type captureReader struct {
	ctx     context.Context
	s       *Session
	m       *meter.Meter
	pending []byte
	err     error
}

func (r *captureReader) Read(p []byte) (int, error) {
	for len(r.pending) == 0 {
		data, err := r.s.device.ReadFrame(r.ctx)
		if err != nil {
			if !errors.Is(err, io.EOF) && r.ctx.Err() == nil {
				r.err = err
			}
			return 0, io.EOF
		}
		r.s.tap(pcm.Frame{
			Direction: pcm.Outbound,
			Time:      r.s.now(),
			Format:    r.s.device.Format(),
			Data:      data,
		}, r.m)
		r.pending = data
	}
	n := copy(p, r.pending)
	r.pending = r.pending[n:]
	return n, nil
}
