// Package recorder captures both directions of a call into a stereo WAV
// artifact.
//
// Frames are laid on a wall-clock timeline that starts at Start: a frame
// arriving later than the end of its track is preceded by silence, and a
// burst of frames arriving early is appended back to back. The reported
// duration is always the wall-clock time between Start and Stop, so lost
// frames shorten the audio but never the duration.
package recorder

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/youpy/go-wav"

	"github.com/eburon/brokerdial/pkg/audio/pcm"
	"github.com/eburon/brokerdial/pkg/audio/resampler"
)

// ErrRecording is returned by Start while a recording is in progress.
var ErrRecording = errors.New("recorder: already recording")

// gapTolerance is how far behind the timeline a track may fall before
// silence is inserted. Delivery jitter below this is ignored.
const gapTolerance = 60 * time.Millisecond

// Recording is a finalized artifact.
type Recording struct {
	// Handle identifies the artifact.
	Handle string
	// Audio is a 16-bit stereo WAV: left is outbound, right is inbound.
	Audio     []byte
	StartedAt time.Time
	Duration  time.Duration
}

// DurationSeconds returns the duration in whole seconds, rounded down.
func (r *Recording) DurationSeconds() int {
	return int(r.Duration / time.Second)
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithFormat sets the sample rate of the WAV output.
func WithFormat(f pcm.Format) Option {
	return func(r *Recorder) {
		r.format = f
	}
}

// WithClock sets the time source for Start and Stop.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) {
		r.now = now
	}
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Recorder) {
		r.logger = l
	}
}

// Recorder buffers call frames between Start and Stop. It is safe for
// concurrent use; Write is typically called from transport goroutines while
// Start and Stop come from the call state machine.
type Recorder struct {
	format pcm.Format
	now    func() time.Time
	logger *slog.Logger

	mu        sync.Mutex
	active    bool
	startedAt time.Time
	tracks    map[pcm.Direction]*track
	frames    int
}

// New creates a Recorder. The default output rate is 24 kHz.
func New(opts ...Option) *Recorder {
	r := &Recorder{
		format: pcm.L16Mono24K,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// Start begins a recording.
func (r *Recorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active {
		return ErrRecording
	}
	r.active = true
	r.startedAt = r.now()
	r.tracks = make(map[pcm.Direction]*track, 2)
	r.frames = 0
	r.logger.Debug("recording started", "at", r.startedAt)
	return nil
}

// Recording reports whether a recording is in progress.
func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// Write buffers f. Frames written while not recording are dropped.
func (r *Recorder) Write(f pcm.Frame) {
	if len(f.Data) == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.active {
		return
	}
	t, ok := r.tracks[f.Direction]
	if !ok {
		t = &track{format: f.Format}
		r.tracks[f.Direction] = t
	}
	if err := t.place(f, f.Time.Sub(r.startedAt)); err != nil {
		r.logger.Warn("drop frame", "direction", f.Direction, "error", err)
		return
	}
	r.frames++
}

// Stop finalizes the recording. It returns nil without error when no
// recording was started, when called a second time, or when no frame was
// buffered.
func (r *Recorder) Stop() (*Recording, error) {
	r.mu.Lock()
	if !r.active {
		r.mu.Unlock()
		return nil, nil
	}
	r.active = false
	duration := r.now().Sub(r.startedAt)
	if duration < 0 {
		duration = 0
	}
	startedAt := r.startedAt
	tracks, frames := r.tracks, r.frames
	r.tracks = nil
	r.mu.Unlock()

	if frames == 0 {
		r.logger.Debug("recording empty", "duration", duration)
		return nil, nil
	}
	audio, err := r.encode(tracks, duration)
	if err != nil {
		return nil, err
	}
	rec := &Recording{
		Handle:    "rec_" + uuid.NewString(),
		Audio:     audio,
		StartedAt: startedAt,
		Duration:  duration,
	}
	r.logger.Info("recording finalized",
		"handle", rec.Handle,
		"seconds", rec.DurationSeconds(),
		"frames", frames,
		"bytes", len(audio))
	return rec, nil
}

func (r *Recorder) encode(tracks map[pcm.Direction]*track, duration time.Duration) ([]byte, error) {
	dst := resampler.FromPCM(r.format)
	var left, right []byte
	for dir, t := range tracks {
		b, err := resampler.Bytes(t.buf.Bytes(), resampler.FromPCM(t.format), dst)
		if err != nil {
			return nil, fmt.Errorf("recorder: align %s track: %w", dir, err)
		}
		if dir == pcm.Outbound {
			left = b
		} else {
			right = b
		}
	}

	frames := max(len(left), len(right)) / 2
	if n := int(r.format.SamplesInDuration(duration)); n > frames {
		frames = n
	}

	samples := make([]wav.Sample, frames)
	for i := range samples {
		samples[i].Values[0] = sampleAt(left, i)
		samples[i].Values[1] = sampleAt(right, i)
	}
	var out bytes.Buffer
	w := wav.NewWriter(&out, uint32(frames), 2, uint32(r.format.SampleRate()), 16)
	if err := w.WriteSamples(samples); err != nil {
		return nil, fmt.Errorf("recorder: encode wav: %w", err)
	}
	return out.Bytes(), nil
}

func sampleAt(b []byte, i int) int {
	if 2*i+1 >= len(b) {
		return 0
	}
	return int(int16(uint16(b[2*i]) | uint16(b[2*i+1])<<8))
}

// track is one direction's audio in the format of its first frame.
type track struct {
	format pcm.Format
	buf    bytes.Buffer
}

func (t *track) place(f pcm.Frame, offset time.Duration) error {
	data := f.Data
	if f.Format != t.format {
		b, err := resampler.Bytes(data, resampler.FromPCM(f.Format), resampler.FromPCM(t.format))
		if err != nil {
			return err
		}
		data = b
	}
	end := t.format.Duration(int64(t.buf.Len()))
	if gap := offset - end; gap > gapTolerance {
		if _, err := t.format.SilenceChunk(gap).WriteTo(&t.buf); err != nil {
			return err
		}
	}
	t.buf.Write(data)
	return nil
}
