// Package callsession drives one outbound voice call at a time.
//
// A Manager moves through Idle, Connecting, Active, Ended and back to
// Idle, or through Connecting, Error and back to Idle when the backend
// cannot be reached. Each call gets a fresh transport. Ending a call,
// locally or from the remote side, stops any recording in progress and
// hands the artifact to the review gate before the transport is torn
// down. A per-call guard makes sure that happens once.
//
// Subscriber callbacks run in order on a dedicated goroutine and may call
// back into the Manager.
package callsession

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/eburon/brokerdial/pkg/audio/pcm"
	"github.com/eburon/brokerdial/pkg/jsontime"
	"github.com/eburon/brokerdial/pkg/observe"
	"github.com/eburon/brokerdial/pkg/persona"
	"github.com/eburon/brokerdial/pkg/recorder"
	"github.com/eburon/brokerdial/pkg/review"
	"github.com/eburon/brokerdial/pkg/transport"
)

var (
	// ErrInvalidTransition is returned for an operation the current state
	// does not allow, such as starting a call that is not Idle.
	ErrInvalidTransition = errors.New("callsession: invalid transition")

	// ErrRecordingPending is returned while the previous recording still
	// waits for review.
	ErrRecordingPending = errors.New("callsession: a recording is pending review")

	// ErrEmptyDestination is returned by StartCall for a blank number.
	ErrEmptyDestination = errors.New("callsession: empty destination")

	// ErrCanceled is returned by StartCall when the call was ended before
	// it connected.
	ErrCanceled = errors.New("callsession: call ended while connecting")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("callsession: manager closed")
)

// DefaultDebounce is how long Ended and Error are shown before Idle.
const DefaultDebounce = 2 * time.Second

// Recorder captures the frames of a call.
type Recorder interface {
	Start() error
	Write(pcm.Frame)
	Stop() (*recorder.Recording, error)
	Recording() bool
}

// Gate receives finished recordings. *review.Gate implements it.
type Gate interface {
	Offer(*recorder.Recording) error
	Pending() *review.PendingRecording
	OnChange(func(*review.PendingRecording)) func()
}

// Config configures a Manager.
type Config struct {
	// NewTransport builds the transport for one call. Required.
	NewTransport func(destination string) transport.Transport

	// Persona is read at every StartCall. Defaults to persona.Default.
	Persona func() persona.Persona

	// Gate holds recordings for review. Required.
	Gate Gate

	// NewRecorder builds a recorder each time recording is switched on.
	// Defaults to a recorder.Recorder on Clock.
	NewRecorder func() Recorder

	// Debounce is the delay before Ended or Error returns to Idle.
	// Zero means DefaultDebounce; negative means immediately.
	Debounce time.Duration

	Clock  Clock
	Logger *slog.Logger
}

// Snapshot is a consistent view of the manager for UI polling.
type Snapshot struct {
	State       State                    `json:"state"`
	CallID      string                   `json:"callId,omitempty"`
	Destination string                   `json:"destination,omitempty"`
	StartedAt   jsontime.Milli           `json:"startedAt"`
	Recording   bool                     `json:"recording"`
	Pending     *review.PendingRecording `json:"pending,omitempty"`
	Error       string                   `json:"error,omitempty"`
}

type call struct {
	id          string
	destination string
	tr          transport.Transport
	startedAt   time.Time
	rec         Recorder
	ended       bool
	unsubscribe []func()
}

// Manager is the call state machine. It is safe for concurrent use.
type Manager struct {
	cfg    Config
	clock  Clock
	logger *slog.Logger
	events *dispatcher

	onState     observe.Hub[func(State)]
	onVolume    observe.Hub[func(in, out float32)]
	onRecording observe.Hub[func(bool)]
	onPending   observe.Hub[func(*review.PendingRecording)]
	gateUnsub   func()

	mu      sync.Mutex
	state   State
	cur     *call
	lastErr error
	timer   Timer
	closed  bool
}

// New returns an Idle manager.
func New(cfg Config) (*Manager, error) {
	if cfg.NewTransport == nil {
		return nil, errors.New("callsession: NewTransport is required")
	}
	if cfg.Gate == nil {
		return nil, errors.New("callsession: Gate is required")
	}
	if cfg.Persona == nil {
		cfg.Persona = persona.Default
	}
	if cfg.Clock == nil {
		cfg.Clock = SystemClock
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	switch {
	case cfg.Debounce == 0:
		cfg.Debounce = DefaultDebounce
	case cfg.Debounce < 0:
		cfg.Debounce = 0
	}
	if cfg.NewRecorder == nil {
		clock, logger := cfg.Clock, cfg.Logger
		cfg.NewRecorder = func() Recorder {
			return recorder.New(recorder.WithClock(clock.Now), recorder.WithLogger(logger))
		}
	}

	m := &Manager{
		cfg:    cfg,
		clock:  cfg.Clock,
		logger: cfg.Logger,
		events: newDispatcher(),
	}
	m.gateUnsub = cfg.Gate.OnChange(func(p *review.PendingRecording) {
		m.events.post(func() {
			for _, f := range m.onPending.List() {
				f(p)
			}
		})
	})
	return m, nil
}

// OnState subscribes to state changes.
func (m *Manager) OnState(f func(State)) func() {
	return m.onState.Add(f)
}

// OnVolume subscribes to (inbound, outbound) levels of the current call.
func (m *Manager) OnVolume(f func(in, out float32)) func() {
	return m.onVolume.Add(f)
}

// OnRecording subscribes to the recording-in-progress flag.
func (m *Manager) OnRecording(f func(bool)) func() {
	return m.onRecording.Add(f)
}

// OnPending subscribes to the review slot. f receives nil when it clears.
func (m *Manager) OnPending(f func(*review.PendingRecording)) func() {
	return m.onPending.Add(f)
}

// State returns the current state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Snapshot returns the current state, call, and review slot together.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := Snapshot{State: m.state, Pending: m.cfg.Gate.Pending()}
	if c := m.cur; c != nil {
		s.CallID = c.id
		s.Destination = c.destination
		if !c.startedAt.IsZero() {
			s.StartedAt = jsontime.FromTime(c.startedAt)
		}
		s.Recording = c.rec != nil && c.rec.Recording()
	}
	if m.lastErr != nil {
		s.Error = m.lastErr.Error()
	}
	return s
}

// StartCall places a call to destination. It returns once the call is
// Active or has failed; a connect failure leaves the manager in Error,
// from which it returns to Idle after the debounce delay.
func (m *Manager) StartCall(ctx context.Context, destination string) error {
	destination = strings.TrimSpace(destination)
	if destination == "" {
		return ErrEmptyDestination
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.state != Idle {
		st := m.state
		m.mu.Unlock()
		return fmt.Errorf("%w: start call while %s", ErrInvalidTransition, st)
	}
	if m.cfg.Gate.Pending() != nil {
		m.mu.Unlock()
		return ErrRecordingPending
	}

	instruction := persona.Build(m.cfg.Persona())
	c := &call{
		id:          uuid.NewString(),
		destination: destination,
		tr:          m.cfg.NewTransport(destination),
	}
	c.unsubscribe = []func(){
		c.tr.OnFrame(func(f pcm.Frame) { m.frame(c, f) }),
		c.tr.OnVolume(func(in, out float32) { m.volume(c, in, out) }),
		c.tr.OnClose(func(ev transport.CloseEvent) { m.remoteClose(c, ev) }),
	}
	m.cur = c
	m.lastErr = nil
	m.stopTimer()
	m.setState(Connecting)
	m.mu.Unlock()

	log := m.logger.With("call", c.id)
	log.Info("dialing", "destination", destination)
	err := c.tr.Connect(ctx, instruction)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cur != c || c.ended {
		if err == nil {
			go c.tr.Disconnect()
		}
		return ErrCanceled
	}
	if err != nil {
		c.ended = true
		c.unsubscribeAll()
		m.lastErr = err
		m.setState(Error)
		m.armIdle(c)
		log.Warn("call failed", "error", err)
		return fmt.Errorf("callsession: start call: %w", err)
	}
	c.startedAt = m.clock.Now()
	m.setState(Active)
	log.Info("call active")
	return nil
}

// EndCall hangs up. It is a no-op once the call has Ended or failed and
// an error when Idle. Ending during Connecting cancels the dial.
func (m *Manager) EndCall() error {
	m.mu.Lock()
	switch m.state {
	case Idle:
		m.mu.Unlock()
		return fmt.Errorf("%w: end call while idle", ErrInvalidTransition)
	case Ended, Error:
		m.mu.Unlock()
		return nil
	}
	c := m.cur
	ended := m.teardown(c, nil)
	m.mu.Unlock()

	if ended {
		c.tr.Disconnect()
	}
	return nil
}

// ToggleRecording starts or stops recording the current call. Starting
// requires an Active call and an empty review slot. Stopping hands the
// recording to the review gate; stopping when nothing is recording is a
// no-op.
func (m *Manager) ToggleRecording(on bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.cur
	if !on {
		if c == nil || c.ended {
			return nil
		}
		return m.stopRecording(c)
	}

	if m.state != Active {
		return fmt.Errorf("%w: record while %s", ErrInvalidTransition, m.state)
	}
	if c.rec != nil && c.rec.Recording() {
		return nil
	}
	if m.cfg.Gate.Pending() != nil {
		return ErrRecordingPending
	}
	rec := m.cfg.NewRecorder()
	if err := rec.Start(); err != nil {
		return fmt.Errorf("callsession: start recording: %w", err)
	}
	c.rec = rec
	m.postRecording(true)
	m.logger.Info("recording started", "call", c.id)
	return nil
}

// Close ends any call in progress and stops event delivery. It must not be
// called from a subscriber.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.stopTimer()
	c := m.cur
	var ended bool
	if c != nil {
		ended = m.teardown(c, nil)
	}
	m.mu.Unlock()

	if ended {
		c.tr.Disconnect()
	}
	m.gateUnsub()
	m.events.close()
	return nil
}

// teardown ends c: it stops the recording and offers it for review, then
// moves to Ended. It reports false when c had already ended. The caller
// holds m.mu and disconnects the transport afterwards.
func (m *Manager) teardown(c *call, cause error) bool {
	if c == nil || c.ended {
		return false
	}
	c.ended = true
	c.unsubscribeAll()
	if err := m.stopRecording(c); err != nil {
		m.logger.Warn("recording lost", "call", c.id, "error", err)
	}
	if cause != nil {
		m.lastErr = cause
	}
	m.setState(Ended)
	m.armIdle(c)
	m.logger.Info("call ended", "call", c.id)
	return true
}

// stopRecording finalizes the recording of c, if any, and offers it to the
// gate. The caller holds m.mu.
func (m *Manager) stopRecording(c *call) error {
	if c.rec == nil || !c.rec.Recording() {
		return nil
	}
	art, err := c.rec.Stop()
	m.postRecording(false)
	if err != nil {
		return fmt.Errorf("callsession: stop recording: %w", err)
	}
	if art == nil {
		m.logger.Info("recording empty", "call", c.id)
		return nil
	}
	m.logger.Info("recording stopped", "call", c.id, "handle", art.Handle, "duration", art.DurationSeconds())
	if err := m.cfg.Gate.Offer(art); err != nil {
		return fmt.Errorf("callsession: offer recording: %w", err)
	}
	return nil
}

func (m *Manager) remoteClose(c *call, ev transport.CloseEvent) {
	m.mu.Lock()
	if m.cur != c || c.ended {
		m.mu.Unlock()
		return
	}
	if ev.Err != nil {
		m.logger.Warn("call dropped", "call", c.id, "error", ev.Err)
	} else {
		m.logger.Info("remote hung up", "call", c.id)
	}
	ended := m.teardown(c, ev.Err)
	m.mu.Unlock()
	if ended {
		c.tr.Disconnect()
	}
}

func (m *Manager) frame(c *call, f pcm.Frame) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cur != c || c.ended || c.rec == nil {
		return
	}
	c.rec.Write(f)
}

func (m *Manager) volume(c *call, in, out float32) {
	m.mu.Lock()
	live := m.cur == c && !c.ended
	m.mu.Unlock()
	if !live {
		return
	}
	m.events.post(func() {
		for _, f := range m.onVolume.List() {
			f(in, out)
		}
	})
}

// setState records s and queues the notification. The caller holds m.mu.
func (m *Manager) setState(s State) {
	if m.state == s {
		return
	}
	m.logger.Debug("state", "from", m.state.String(), "to", s.String())
	m.state = s
	m.events.post(func() {
		for _, f := range m.onState.List() {
			f(s)
		}
	})
}

func (m *Manager) postRecording(on bool) {
	m.events.post(func() {
		for _, f := range m.onRecording.List() {
			f(on)
		}
	})
}

// armIdle schedules the return to Idle for c. A timer armed for an older
// call finds a different current call and does nothing.
func (m *Manager) armIdle(c *call) {
	m.stopTimer()
	fire := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.cur != c || (m.state != Ended && m.state != Error) {
			return
		}
		m.cur = nil
		m.timer = nil
		m.setState(Idle)
	}
	if m.cfg.Debounce == 0 {
		m.cur = nil
		m.setState(Idle)
		return
	}
	m.timer = m.clock.AfterFunc(m.cfg.Debounce, fire)
}

func (m *Manager) stopTimer() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

func (c *call) unsubscribeAll() {
	for _, f := range c.unsubscribe {
		f()
	}
	c.unsubscribe = nil
}
