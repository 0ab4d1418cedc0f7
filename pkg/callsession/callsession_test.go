package callsession

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/eburon/brokerdial/pkg/audio/pcm"
	"github.com/eburon/brokerdial/pkg/crm"
	"github.com/eburon/brokerdial/pkg/kv"
	"github.com/eburon/brokerdial/pkg/observe"
	"github.com/eburon/brokerdial/pkg/persona"
	"github.com/eburon/brokerdial/pkg/recorder"
	"github.com/eburon/brokerdial/pkg/review"
	"github.com/eburon/brokerdial/pkg/storage"
	"github.com/eburon/brokerdial/pkg/transport"
)

// ---------------------------------------------------------------------------
// fakes
// ---------------------------------------------------------------------------

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	c       *fakeClock
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{c: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	if t.fired || t.stopped {
		return false
	}
	t.stopped = true
	return true
}

// Advance moves the clock and runs due timers in deadline order.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.fired && !t.stopped && !t.at.After(c.now) {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()
	sort.Slice(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })
	for _, t := range due {
		t.f()
	}
}

type fakeTransport struct {
	connectErr error
	block      chan struct{}

	mu          sync.Mutex
	connects    int
	connected   bool
	ended       bool
	instruction string
	cancel      chan struct{}
	disconnects atomic.Int32

	volume observe.Hub[func(in, out float32)]
	closed observe.Hub[func(transport.CloseEvent)]
	frames observe.Hub[func(pcm.Frame)]
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{cancel: make(chan struct{})}
}

func (f *fakeTransport) Connect(ctx context.Context, instruction string) error {
	f.mu.Lock()
	f.connects++
	f.instruction = instruction
	f.mu.Unlock()

	if f.block != nil {
		select {
		case <-f.block:
		case <-f.cancel:
			return &transport.ConnectionError{Backend: "fake", Err: transport.ErrDisconnected}
		case <-ctx.Done():
			return &transport.ConnectionError{Backend: "fake", Err: ctx.Err()}
		}
	}
	if f.connectErr != nil {
		return &transport.ConnectionError{Backend: "fake", Err: f.connectErr}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ended {
		return &transport.ConnectionError{Backend: "fake", Err: transport.ErrDisconnected}
	}
	f.connected = true
	return nil
}

func (f *fakeTransport) Disconnect() {
	f.disconnects.Add(1)
	f.mu.Lock()
	fire := f.connected && !f.ended
	if !f.ended {
		f.ended = true
		close(f.cancel)
	}
	f.mu.Unlock()
	if fire {
		go f.fireClose(transport.CloseEvent{})
	}
}

func (f *fakeTransport) hangup(err error) {
	f.mu.Lock()
	fire := f.connected && !f.ended
	if !f.ended {
		f.ended = true
		close(f.cancel)
	}
	f.mu.Unlock()
	if fire {
		go f.fireClose(transport.CloseEvent{Remote: true, Err: err})
	}
}

func (f *fakeTransport) fireClose(ev transport.CloseEvent) {
	for _, fn := range f.closed.List() {
		fn(ev)
	}
}

func (f *fakeTransport) emitFrame(fr pcm.Frame) {
	for _, fn := range f.frames.List() {
		fn(fr)
	}
}

func (f *fakeTransport) emitVolume(in, out float32) {
	for _, fn := range f.volume.List() {
		fn(in, out)
	}
}

func (f *fakeTransport) OnVolume(fn func(in, out float32)) func()  { return f.volume.Add(fn) }
func (f *fakeTransport) OnClose(fn func(transport.CloseEvent)) func() { return f.closed.Add(fn) }
func (f *fakeTransport) OnFrame(fn func(pcm.Frame)) func()           { return f.frames.Add(fn) }

// countingCRM counts lead updates and task creations.
type countingCRM struct {
	crm.Store
	updates atomic.Int32
	tasks   atomic.Int32
}

func (c *countingCRM) UpdateLead(ctx context.Context, l *crm.Lead) error {
	c.updates.Add(1)
	return c.Store.UpdateLead(ctx, l)
}

func (c *countingCRM) CreateTask(ctx context.Context, t *crm.Task) error {
	c.tasks.Add(1)
	return c.Store.CreateTask(ctx, t)
}

// countingGate counts offers to the real gate.
type countingGate struct {
	*review.Gate
	offers atomic.Int32
}

func (g *countingGate) Offer(r *recorder.Recording) error {
	g.offers.Add(1)
	return g.Gate.Offer(r)
}

// ---------------------------------------------------------------------------
// harness
// ---------------------------------------------------------------------------

type harness struct {
	t          *testing.T
	m          *Manager
	clock      *fakeClock
	crm        *countingCRM
	gate       *countingGate
	transports []*fakeTransport
	next       func() *fakeTransport
	persona    persona.Persona

	mu        sync.Mutex
	states    []State
	recording []bool
	volumes   [][2]float32
	pending   []*review.PendingRecording
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{t: t, clock: newFakeClock(), persona: persona.Default()}
	h.next = newFakeTransport

	backing := crm.NewKVStore(kv.NewMemory(), nil)
	for _, l := range crm.DemoLeads() {
		if err := backing.UpdateLead(context.Background(), l); err != nil {
			t.Fatal(err)
		}
	}
	h.crm = &countingCRM{Store: backing}
	h.gate = &countingGate{Gate: review.NewGate(h.crm, storage.NewMemory(), review.WithClock(h.clock.Now))}

	m, err := New(Config{
		NewTransport: func(string) transport.Transport {
			tr := h.next()
			h.mu.Lock()
			h.transports = append(h.transports, tr)
			h.mu.Unlock()
			return tr
		},
		Persona: func() persona.Persona { return h.persona },
		Gate:    h.gate,
		Clock:   h.clock,
	})
	if err != nil {
		t.Fatal(err)
	}
	h.m = m
	m.OnState(func(s State) {
		h.mu.Lock()
		h.states = append(h.states, s)
		h.mu.Unlock()
	})
	m.OnRecording(func(on bool) {
		h.mu.Lock()
		h.recording = append(h.recording, on)
		h.mu.Unlock()
	})
	m.OnVolume(func(in, out float32) {
		h.mu.Lock()
		h.volumes = append(h.volumes, [2]float32{in, out})
		h.mu.Unlock()
	})
	m.OnPending(func(p *review.PendingRecording) {
		h.mu.Lock()
		h.pending = append(h.pending, p)
		h.mu.Unlock()
	})
	t.Cleanup(func() { m.Close() })
	return h
}

func (h *harness) transport(i int) *fakeTransport {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.transports[i]
}

func (h *harness) dialCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.transports)
}

func (h *harness) seenStates() []State {
	h.m.events.sync()
	h.mu.Lock()
	defer h.mu.Unlock()
	return slices.Clone(h.states)
}

func (h *harness) seenRecording() []bool {
	h.m.events.sync()
	h.mu.Lock()
	defer h.mu.Unlock()
	return slices.Clone(h.recording)
}

func (h *harness) waitState(want State) {
	h.t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.m.State() != want {
		if time.Now().After(deadline) {
			h.t.Fatalf("state = %s, want %s", h.m.State(), want)
		}
		time.Sleep(time.Millisecond)
	}
}

func (h *harness) start(dest string) *fakeTransport {
	h.t.Helper()
	if err := h.m.StartCall(context.Background(), dest); err != nil {
		h.t.Fatalf("StartCall: %v", err)
	}
	return h.transport(h.dialCount() - 1)
}

// speak emits one outbound and one inbound frame covering d, then advances
// the clock by d.
func (h *harness) speak(tr *fakeTransport, d time.Duration) {
	now := h.clock.Now()
	out := make([]byte, pcm.L16Mono16K.BytesInDuration(d))
	in := make([]byte, pcm.L16Mono24K.BytesInDuration(d))
	for i := 0; i+1 < len(out); i += 2 {
		out[i+1] = 0x10
	}
	tr.emitFrame(pcm.Frame{Direction: pcm.Outbound, Time: now, Format: pcm.L16Mono16K, Data: out})
	tr.emitFrame(pcm.Frame{Direction: pcm.Inbound, Time: now, Format: pcm.L16Mono24K, Data: in})
	h.clock.Advance(d)
}

// ---------------------------------------------------------------------------
// tests
// ---------------------------------------------------------------------------

func TestStateJSON(t *testing.T) {
	for _, s := range []State{Idle, Connecting, Active, Ended, Error} {
		b, err := json.Marshal(s)
		if err != nil {
			t.Fatal(err)
		}
		var back State
		if err := json.Unmarshal(b, &back); err != nil || back != s {
			t.Errorf("%s round trip = %s, %v", b, back, err)
		}
	}
	if State(42).String() != "unknown" {
		t.Error("unknown state name")
	}
}

func TestNewRequiresCollaborators(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("New without transport factory succeeded")
	}
	if _, err := New(Config{NewTransport: func(string) transport.Transport { return nil }}); err == nil {
		t.Error("New without gate succeeded")
	}
}

func TestCallLifecycleStates(t *testing.T) {
	h := newHarness(t)
	h.start("+32 477 12 34 56")
	if h.m.State() != Active {
		t.Fatalf("state = %s", h.m.State())
	}
	snap := h.m.Snapshot()
	if snap.Destination != "+32 477 12 34 56" || snap.CallID == "" || !snap.StartedAt.Time().Equal(h.clock.Now()) {
		t.Errorf("snapshot = %+v", snap)
	}

	if err := h.m.EndCall(); err != nil {
		t.Fatal(err)
	}
	if h.m.State() != Ended {
		t.Fatalf("state after EndCall = %s", h.m.State())
	}
	h.clock.Advance(DefaultDebounce - time.Millisecond)
	if h.m.State() != Ended {
		t.Fatalf("left Ended early: %s", h.m.State())
	}
	h.clock.Advance(time.Millisecond)

	want := []State{Connecting, Active, Ended, Idle}
	if got := h.seenStates(); !slices.Equal(got, want) {
		t.Errorf("states = %v, want %v", got, want)
	}
	if tr := h.transport(0); tr.disconnects.Load() == 0 {
		t.Error("transport not disconnected")
	}
}

func TestConnectFailure(t *testing.T) {
	h := newHarness(t)
	h.next = func() *fakeTransport {
		tr := newFakeTransport()
		tr.connectErr = errors.New("backend unreachable")
		return tr
	}
	err := h.m.StartCall(context.Background(), "+32 486 98 76 54")
	var cerr *transport.ConnectionError
	if !errors.As(err, &cerr) {
		t.Fatalf("StartCall = %v, want ConnectionError", err)
	}
	if h.m.State() != Error {
		t.Fatalf("state = %s", h.m.State())
	}
	if snap := h.m.Snapshot(); !strings.Contains(snap.Error, "backend unreachable") {
		t.Errorf("snapshot error = %q", snap.Error)
	}
	if err := h.m.StartCall(context.Background(), "x"); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("StartCall in Error = %v", err)
	}

	h.clock.Advance(DefaultDebounce)
	want := []State{Connecting, Error, Idle}
	if got := h.seenStates(); !slices.Equal(got, want) {
		t.Errorf("states = %v, want %v", got, want)
	}
	if h.dialCount() != 1 || h.transport(0).connects != 1 {
		t.Error("connect was retried")
	}
}

func TestStartCallWhileActiveRejected(t *testing.T) {
	h := newHarness(t)
	tr := h.start("+32 477 12 34 56")

	err := h.m.StartCall(context.Background(), "+32 499 11 22 33")
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("second StartCall = %v", err)
	}
	if h.m.State() != Active {
		t.Errorf("state = %s", h.m.State())
	}
	if h.dialCount() != 1 || tr.connects != 1 {
		t.Errorf("dials = %d, connects = %d", h.dialCount(), tr.connects)
	}
	if tr.disconnects.Load() != 0 {
		t.Error("existing session disturbed")
	}
}

func TestDoubleTapDuringConnecting(t *testing.T) {
	h := newHarness(t)
	release := make(chan struct{})
	h.next = func() *fakeTransport {
		tr := newFakeTransport()
		tr.block = release
		return tr
	}
	done := make(chan error, 1)
	go func() { done <- h.m.StartCall(context.Background(), "+32 472 55 66 77") }()
	h.waitState(Connecting)

	if err := h.m.StartCall(context.Background(), "+32 472 55 66 77"); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("double tap = %v", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	if h.dialCount() != 1 {
		t.Errorf("dials = %d", h.dialCount())
	}
}

func TestEndCallDuringConnecting(t *testing.T) {
	h := newHarness(t)
	h.next = func() *fakeTransport {
		tr := newFakeTransport()
		tr.block = make(chan struct{})
		return tr
	}
	done := make(chan error, 1)
	go func() { done <- h.m.StartCall(context.Background(), "+32 470 00 00 01") }()
	h.waitState(Connecting)

	if err := h.m.EndCall(); err != nil {
		t.Fatal(err)
	}
	if err := <-done; !errors.Is(err, ErrCanceled) {
		t.Errorf("StartCall = %v, want ErrCanceled", err)
	}
	if h.m.State() != Ended {
		t.Errorf("state = %s", h.m.State())
	}
	h.clock.Advance(DefaultDebounce)
	want := []State{Connecting, Ended, Idle}
	if got := h.seenStates(); !slices.Equal(got, want) {
		t.Errorf("states = %v, want %v", got, want)
	}
}

func TestEndCallRules(t *testing.T) {
	h := newHarness(t)
	if err := h.m.EndCall(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("EndCall while Idle = %v", err)
	}
	h.start("1")
	if err := h.m.EndCall(); err != nil {
		t.Fatal(err)
	}
	if err := h.m.EndCall(); err != nil {
		t.Errorf("EndCall while Ended = %v", err)
	}
	if err := h.m.StartCall(context.Background(), "  "); !errors.Is(err, ErrEmptyDestination) {
		t.Errorf("blank destination = %v", err)
	}
}

func TestForcedStopOnEnd(t *testing.T) {
	h := newHarness(t)
	tr := h.start("+32 477 12 34 56")
	if err := h.m.ToggleRecording(true); err != nil {
		t.Fatal(err)
	}
	if !h.m.Snapshot().Recording {
		t.Error("snapshot not recording")
	}
	h.speak(tr, 2*time.Second)

	if err := h.m.EndCall(); err != nil {
		t.Fatal(err)
	}
	p := h.gate.Pending()
	if p == nil || p.DurationSeconds != 2 {
		t.Fatalf("pending = %+v", p)
	}
	if got := h.seenRecording(); !slices.Equal(got, []bool{true, false}) {
		t.Errorf("recording events = %v", got)
	}
	h.mu.Lock()
	n := len(h.pending)
	h.mu.Unlock()
	if n != 1 {
		t.Errorf("pending events = %d", n)
	}
}

func TestForcedStopWithoutFramesHasNoArtifact(t *testing.T) {
	h := newHarness(t)
	h.start("1")
	if err := h.m.ToggleRecording(true); err != nil {
		t.Fatal(err)
	}
	h.clock.Advance(5 * time.Second)
	if err := h.m.EndCall(); err != nil {
		t.Fatal(err)
	}
	if h.gate.Pending() != nil || h.gate.offers.Load() != 0 {
		t.Error("empty recording offered")
	}
}

func TestTwelveSecondCallRecordedFromThree(t *testing.T) {
	h := newHarness(t)
	tr := h.start("+32 477 12 34 56")

	for range 3 {
		h.speak(tr, time.Second)
	}
	if err := h.m.ToggleRecording(true); err != nil {
		t.Fatal(err)
	}
	for range 90 {
		h.speak(tr, 100*time.Millisecond)
	}
	if err := h.m.EndCall(); err != nil {
		t.Fatal(err)
	}

	p := h.gate.Pending()
	if p == nil {
		t.Fatal("no pending recording")
	}
	if p.DurationSeconds != 9 {
		t.Errorf("durationSeconds = %d, want 9", p.DurationSeconds)
	}
	_, r, err := h.gate.Download()
	if err != nil {
		t.Fatal(err)
	}
	var hdr [4]byte
	if _, err := r.Read(hdr[:]); err != nil || string(hdr[:]) != "RIFF" {
		t.Errorf("artifact header = %q, %v", hdr, err)
	}
}

func TestToggleRecordingRules(t *testing.T) {
	h := newHarness(t)
	if err := h.m.ToggleRecording(true); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("record while Idle = %v", err)
	}
	if err := h.m.ToggleRecording(false); err != nil {
		t.Errorf("stop while Idle = %v", err)
	}

	tr := h.start("1")
	if err := h.m.ToggleRecording(true); err != nil {
		t.Fatal(err)
	}
	if err := h.m.ToggleRecording(true); err != nil {
		t.Errorf("second start = %v", err)
	}
	h.speak(tr, time.Second)
	if err := h.m.ToggleRecording(false); err != nil {
		t.Fatal(err)
	}
	if h.gate.Pending() == nil {
		t.Fatal("explicit stop did not offer recording")
	}
	if err := h.m.ToggleRecording(true); !errors.Is(err, ErrRecordingPending) {
		t.Errorf("start with pending = %v", err)
	}
	if err := h.m.EndCall(); err != nil {
		t.Fatal(err)
	}
	if h.gate.offers.Load() != 1 {
		t.Errorf("offers = %d", h.gate.offers.Load())
	}
}

func TestPendingRecordingBlocksNextCall(t *testing.T) {
	h := newHarness(t)
	tr := h.start("1")
	if err := h.m.ToggleRecording(true); err != nil {
		t.Fatal(err)
	}
	h.speak(tr, time.Second)
	if err := h.m.EndCall(); err != nil {
		t.Fatal(err)
	}
	h.clock.Advance(DefaultDebounce)
	if h.m.State() != Idle {
		t.Fatalf("state = %s", h.m.State())
	}

	if err := h.m.StartCall(context.Background(), "2"); !errors.Is(err, ErrRecordingPending) {
		t.Fatalf("StartCall with pending = %v", err)
	}
	if h.dialCount() != 1 {
		t.Errorf("transport built while pending")
	}
	if !h.m.Snapshot().Pending.CapturedAt.Time().Equal(h.clock.Now().Add(-DefaultDebounce - time.Second)) {
		t.Errorf("snapshot pending = %+v", h.m.Snapshot().Pending)
	}

	h.gate.Discard()
	h.start("2")
}

func TestRemoteCloseDuringRecording(t *testing.T) {
	h := newHarness(t)
	tr := h.start("+32 477 12 34 56")
	if err := h.m.ToggleRecording(true); err != nil {
		t.Fatal(err)
	}
	h.speak(tr, 4*time.Second)

	tr.hangup(nil)
	h.waitState(Ended)
	if h.gate.offers.Load() != 1 {
		t.Fatalf("offers = %d", h.gate.offers.Load())
	}

	if _, err := h.gate.Confirm(context.Background(), crm.OutcomeFollowUp, "1"); err != nil {
		t.Fatal(err)
	}
	if u, n := h.crm.updates.Load(), h.crm.tasks.Load(); u != 1 || n != 1 {
		t.Errorf("crm updates = %d, tasks = %d", u, n)
	}
}

func TestRemoteCloseRacingEndCall(t *testing.T) {
	for i := range 20 {
		h := newHarness(t)
		tr := h.start("+32 477 12 34 56")
		if err := h.m.ToggleRecording(true); err != nil {
			t.Fatal(err)
		}
		h.speak(tr, time.Second)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() { defer wg.Done(); tr.hangup(errors.New("socket reset")) }()
		go func() { defer wg.Done(); h.m.EndCall() }()
		wg.Wait()
		h.waitState(Ended)
		// Let the asynchronous close event land.
		time.Sleep(5 * time.Millisecond)

		if n := h.gate.offers.Load(); n != 1 {
			t.Fatalf("run %d: offers = %d", i, n)
		}
		var ended int
		for _, s := range h.seenStates() {
			if s == Ended {
				ended++
			}
		}
		if ended != 1 {
			t.Fatalf("run %d: Ended entered %d times", i, ended)
		}
		if got := h.seenRecording(); !slices.Equal(got, []bool{true, false}) {
			t.Fatalf("run %d: recording events = %v", i, got)
		}
	}
}

func TestVolumeForwardedWhileLive(t *testing.T) {
	h := newHarness(t)
	tr := h.start("1")
	tr.emitVolume(0.5, 0.25)
	if err := h.m.EndCall(); err != nil {
		t.Fatal(err)
	}
	tr.emitVolume(0.9, 0.9)
	h.m.events.sync()

	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.volumes) != 1 || h.volumes[0] != [2]float32{0.5, 0.25} {
		t.Errorf("volumes = %v", h.volumes)
	}
}

func TestPersonaReadAtEachCall(t *testing.T) {
	h := newHarness(t)
	first := h.start("1")
	if !strings.Contains(first.instruction, "Laurent De Wilde") {
		t.Fatalf("instruction = %q", first.instruction[:40])
	}
	h.persona.Name = "Anke Janssens"
	if !strings.Contains(first.instruction, "Laurent De Wilde") {
		t.Error("active call instruction changed")
	}
	if err := h.m.EndCall(); err != nil {
		t.Fatal(err)
	}
	h.clock.Advance(DefaultDebounce)
	second := h.start("2")
	if !strings.HasPrefix(second.instruction, "You are **Anke Janssens**.") {
		t.Errorf("next call instruction = %q", second.instruction[:40])
	}
}

func TestCloseEndsCall(t *testing.T) {
	h := newHarness(t)
	tr := h.start("1")
	if err := h.m.ToggleRecording(true); err != nil {
		t.Fatal(err)
	}
	h.speak(tr, time.Second)
	if err := h.m.Close(); err != nil {
		t.Fatal(err)
	}
	if tr.disconnects.Load() == 0 {
		t.Error("Close left transport connected")
	}
	if h.gate.Pending() == nil {
		t.Error("recording lost on Close")
	}
	if err := h.m.StartCall(context.Background(), "2"); !errors.Is(err, ErrClosed) {
		t.Errorf("StartCall after Close = %v", err)
	}
}

func TestImmediateDebounce(t *testing.T) {
	h := newHarness(t)
	h.m.cfg.Debounce = 0
	h.start("1")
	if err := h.m.EndCall(); err != nil {
		t.Fatal(err)
	}
	if h.m.State() != Idle {
		t.Errorf("state = %s", h.m.State())
	}
}
