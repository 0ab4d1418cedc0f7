// Package review holds a finished call recording until the broker decides
// what happens to it: classify and save it to a lead, download it, or
// discard it.
//
// The gate has one slot. While it is occupied no other recording can be
// offered, and the slot is only cleared by a successful Confirm or by
// Discard. A Confirm that fails part way keeps the recording pending and
// can be retried; every write uses identifiers fixed when the recording
// was offered, so a retry never duplicates history or tasks.
package review

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/eburon/brokerdial/pkg/crm"
	"github.com/eburon/brokerdial/pkg/jsontime"
	"github.com/eburon/brokerdial/pkg/observe"
	"github.com/eburon/brokerdial/pkg/recorder"
	"github.com/eburon/brokerdial/pkg/storage"
)

var (
	// ErrNoLead is returned by Confirm when no lead is selected.
	ErrNoLead = errors.New("review: no lead selected")

	// ErrNoPending is returned when the slot is empty.
	ErrNoPending = errors.New("review: no pending recording")

	// ErrPendingOccupied is returned by Offer while another recording
	// waits for review.
	ErrPendingOccupied = errors.New("review: a recording is already pending")

	// ErrCommitMismatch is returned when a Confirm retry names a different
	// lead or outcome than the attempt that already wrote to the CRM.
	ErrCommitMismatch = errors.New("review: retry must use the lead and outcome already saved")
)

// FollowUpDelay is how far after confirmation a follow-up task is due.
const FollowUpDelay = 24 * time.Hour

// PersistenceError reports a failed write during Confirm. The recording
// stays pending.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("review: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// PendingRecording describes the recording in the slot.
type PendingRecording struct {
	Handle          string         `json:"handle"`
	DurationSeconds int            `json:"durationSeconds"`
	CapturedAt      jsontime.Milli `json:"capturedAt"`
	Size            int            `json:"size"`
}

// recordingAdder is implemented by stores that append to a lead's history
// atomically, such as crm.KVStore.
type recordingAdder interface {
	AddRecording(ctx context.Context, leadID string, rec crm.Recording) (bool, error)
}

type slot struct {
	meta   PendingRecording
	audio  []byte
	recID  string
	taskID string

	// Progress of earlier Confirm attempts.
	stored   string
	leadID   string
	outcome  crm.Outcome
	appended bool
}

// Option configures a Gate.
type Option func(*Gate)

// WithClock sets the time source used for task due dates.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) {
		g.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Gate) {
		g.logger = l
	}
}

// Gate is the review slot.
type Gate struct {
	crm    crm.Store
	files  storage.FileStore
	now    func() time.Time
	logger *slog.Logger

	// op serializes Offer, Confirm, and Discard. mu guards slot and is
	// never held across I/O.
	op   sync.Mutex
	mu   sync.Mutex
	slot *slot

	changed observe.Hub[func(*PendingRecording)]
}

// NewGate returns an empty gate committing to store and files.
func NewGate(store crm.Store, files storage.FileStore, opts ...Option) *Gate {
	g := &Gate{
		crm:    store,
		files:  files,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// OnChange subscribes to slot changes. f receives the new pending
// recording, or nil when the slot is cleared.
func (g *Gate) OnChange(f func(*PendingRecording)) func() {
	return g.changed.Add(f)
}

func (g *Gate) notify(p *PendingRecording) {
	for _, f := range g.changed.List() {
		f(p)
	}
}

// Pending returns the pending recording, or nil.
func (g *Gate) Pending() *PendingRecording {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.slot == nil {
		return nil
	}
	p := g.slot.meta
	return &p
}

// Offer places rec in the slot. A nil or empty recording is ignored.
func (g *Gate) Offer(rec *recorder.Recording) error {
	if rec == nil || len(rec.Audio) == 0 {
		return nil
	}
	g.op.Lock()
	defer g.op.Unlock()

	g.mu.Lock()
	if g.slot != nil {
		g.mu.Unlock()
		return ErrPendingOccupied
	}
	s := &slot{
		meta: PendingRecording{
			Handle:          rec.Handle,
			DurationSeconds: rec.DurationSeconds(),
			CapturedAt:      jsontime.FromTime(rec.StartedAt),
			Size:            len(rec.Audio),
		},
		audio:  rec.Audio,
		recID:  uuid.NewString(),
		taskID: uuid.NewString(),
	}
	g.slot = s
	p := s.meta
	g.mu.Unlock()

	g.logger.Info("review: recording pending", "handle", p.Handle, "duration", p.DurationSeconds)
	g.notify(&p)
	return nil
}

// Confirm saves the pending recording to the lead with the given outcome.
// A follow_up outcome also creates a medium-priority task due 24 hours
// after confirmation. The slot is cleared only when every write succeeded.
func (g *Gate) Confirm(ctx context.Context, outcome crm.Outcome, leadID string) (*crm.Recording, error) {
	if leadID == "" {
		return nil, ErrNoLead
	}
	if _, err := crm.ParseOutcome(string(outcome)); err != nil {
		return nil, err
	}

	g.op.Lock()
	defer g.op.Unlock()

	g.mu.Lock()
	s := g.slot
	g.mu.Unlock()
	if s == nil {
		return nil, ErrNoPending
	}
	if s.appended && (s.leadID != leadID || s.outcome != outcome) {
		return nil, ErrCommitMismatch
	}

	lead, err := g.crm.GetLead(ctx, leadID)
	if err != nil {
		if errors.Is(err, crm.ErrLeadNotFound) {
			return nil, fmt.Errorf("review: lead %s: %w", leadID, err)
		}
		return nil, &PersistenceError{Op: "get lead", Err: err}
	}

	path := storage.RecordingPath(leadID, s.recID)
	if s.stored != path {
		if err := g.files.Put(ctx, path, s.audio, "audio/wav"); err != nil {
			return nil, &PersistenceError{Op: "store audio", Err: err}
		}
		if s.stored != "" {
			g.dropArtifact(s.stored)
		}
		s.stored = path
	}

	rec := crm.Recording{
		ID:              s.recID,
		CapturedAt:      s.meta.CapturedAt,
		DurationSeconds: s.meta.DurationSeconds,
		ArtifactHandle:  path,
		Outcome:         outcome,
	}
	if !s.appended {
		if err := g.appendRecording(ctx, lead, rec); err != nil {
			return nil, &PersistenceError{Op: "update lead", Err: err}
		}
		s.appended = true
		s.leadID = leadID
		s.outcome = outcome
	}

	if outcome == crm.OutcomeFollowUp {
		now := g.now()
		task := &crm.Task{
			ID:        s.taskID,
			Title:     "Follow up with " + lead.Name(),
			DueDate:   jsontime.FromTime(now.Add(FollowUpDelay)),
			Priority:  crm.PriorityMedium,
			LeadID:    lead.ID,
			LeadName:  lead.Name(),
			CreatedAt: jsontime.FromTime(now),
		}
		if err := g.crm.CreateTask(ctx, task); err != nil {
			return nil, &PersistenceError{Op: "create task", Err: err}
		}
	}

	g.mu.Lock()
	g.slot = nil
	g.mu.Unlock()

	g.logger.Info("review: recording saved", "lead", leadID, "recording", rec.ID, "outcome", outcome)
	g.notify(nil)
	return &rec, nil
}

func (g *Gate) appendRecording(ctx context.Context, lead *crm.Lead, rec crm.Recording) error {
	if a, ok := g.crm.(recordingAdder); ok {
		_, err := a.AddRecording(ctx, lead.ID, rec)
		return err
	}
	next, changed := crm.AppendRecording(lead, rec)
	if !changed {
		return nil
	}
	return g.crm.UpdateLead(ctx, next)
}

// Download returns a file name and the WAV bytes of the pending recording.
// The slot is left as is.
func (g *Gate) Download() (string, io.Reader, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.slot == nil {
		return "", nil, ErrNoPending
	}
	return DownloadName(g.slot.meta.CapturedAt.Time()), bytes.NewReader(g.slot.audio), nil
}

// DownloadName is the file name offered for a recording captured at t.
func DownloadName(t time.Time) string {
	return "call-recording-" + t.UTC().Format(time.RFC3339) + ".wav"
}

// Discard releases the pending recording. It is a no-op when the slot is
// empty. Audio stored by a failed Confirm that never reached the lead is
// deleted.
func (g *Gate) Discard() {
	g.op.Lock()
	defer g.op.Unlock()

	g.mu.Lock()
	s := g.slot
	g.slot = nil
	g.mu.Unlock()
	if s == nil {
		return
	}
	if s.stored != "" && !s.appended {
		g.dropArtifact(s.stored)
	}
	g.logger.Info("review: recording discarded", "handle", s.meta.Handle)
	g.notify(nil)
}

func (g *Gate) dropArtifact(path string) {
	if err := g.files.Delete(context.Background(), path); err != nil {
		g.logger.Warn("review: delete orphaned audio", "path", path, "error", err)
	}
}
