package crm

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/eburon/brokerdial/pkg/kv"
	"github.com/vmihailenco/msgpack/v5"
)

var (
	// ErrLeadNotFound is returned when a lead ID does not exist.
	ErrLeadNotFound = errors.New("crm: lead not found")

	// ErrTaskNotFound is returned when a task ID does not exist.
	ErrTaskNotFound = errors.New("crm: task not found")
)

// Store is the CRM collaborator used by the call manager and the review
// gate.
type Store interface {
	GetLeads(ctx context.Context) ([]*Lead, error)
	GetLead(ctx context.Context, id string) (*Lead, error)
	// UpdateLead creates or replaces the lead with the same ID.
	UpdateLead(ctx context.Context, lead *Lead) error
	// CreateTask stores task under its ID. Creating the same ID twice
	// overwrites.
	CreateTask(ctx context.Context, task *Task) error
	GetTasks(ctx context.Context) ([]*Task, error)
	// UpdateTask fails with ErrTaskNotFound for unknown IDs.
	UpdateTask(ctx context.Context, task *Task) error
}

// Key layout:
//
//	{prefix}:lead:{id}  → msgpack Lead
//	{prefix}:task:{id}  → msgpack Task
const (
	leadSegment = "lead"
	taskSegment = "task"
)

// KVStore is a Store over a kv.Store.
type KVStore struct {
	kv     kv.Store
	prefix kv.Key
}

// NewKVStore returns a KVStore scoped under prefix. A nil prefix stores at
// the root.
func NewKVStore(store kv.Store, prefix kv.Key) *KVStore {
	return &KVStore{kv: store, prefix: prefix}
}

func (s *KVStore) key(kind, id string) kv.Key {
	k := make(kv.Key, 0, len(s.prefix)+2)
	k = append(k, s.prefix...)
	return append(k, kind, id)
}

func (s *KVStore) scan(kind string) kv.Key {
	k := make(kv.Key, 0, len(s.prefix)+1)
	k = append(k, s.prefix...)
	return append(k, kind)
}

func (s *KVStore) GetLeads(ctx context.Context) ([]*Lead, error) {
	var leads []*Lead
	for entry, err := range s.kv.List(ctx, s.scan(leadSegment)) {
		if err != nil {
			return nil, fmt.Errorf("crm: list leads: %w", err)
		}
		var l Lead
		if err := msgpack.Unmarshal(entry.Value, &l); err != nil {
			return nil, fmt.Errorf("crm: decode lead %s: %w", entry.Key, err)
		}
		leads = append(leads, &l)
	}
	slices.SortStableFunc(leads, func(a, b *Lead) int {
		return strings.Compare(a.ID, b.ID)
	})
	return leads, nil
}

func (s *KVStore) GetLead(ctx context.Context, id string) (*Lead, error) {
	if id == "" {
		return nil, ErrLeadNotFound
	}
	data, err := s.kv.Get(ctx, s.key(leadSegment, id))
	if errors.Is(err, kv.ErrNotFound) {
		return nil, ErrLeadNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("crm: get lead %s: %w", id, err)
	}
	var l Lead
	if err := msgpack.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("crm: decode lead %s: %w", id, err)
	}
	return &l, nil
}

func (s *KVStore) UpdateLead(ctx context.Context, lead *Lead) error {
	if lead == nil || lead.ID == "" {
		return errors.New("crm: lead id is required")
	}
	data, err := msgpack.Marshal(lead)
	if err != nil {
		return fmt.Errorf("crm: encode lead %s: %w", lead.ID, err)
	}
	if err := s.kv.Set(ctx, s.key(leadSegment, lead.ID), data); err != nil {
		return fmt.Errorf("crm: update lead %s: %w", lead.ID, err)
	}
	return nil
}

// AddRecording appends rec to the stored lead in a single read-modify-write.
// It reports whether the lead changed; a recording already present is left
// alone.
func (s *KVStore) AddRecording(ctx context.Context, leadID string, rec Recording) (bool, error) {
	var changed bool
	err := s.kv.Update(ctx, s.key(leadSegment, leadID), func(old []byte) ([]byte, error) {
		if old == nil {
			return nil, ErrLeadNotFound
		}
		var l Lead
		if err := msgpack.Unmarshal(old, &l); err != nil {
			return nil, err
		}
		next, ok := AppendRecording(&l, rec)
		changed = ok
		return msgpack.Marshal(next)
	})
	if errors.Is(err, ErrLeadNotFound) {
		return false, err
	}
	if err != nil {
		return false, fmt.Errorf("crm: add recording to lead %s: %w", leadID, err)
	}
	return changed, nil
}

func (s *KVStore) CreateTask(ctx context.Context, task *Task) error {
	if task == nil || task.ID == "" {
		return errors.New("crm: task id is required")
	}
	return s.putTask(ctx, task)
}

func (s *KVStore) putTask(ctx context.Context, task *Task) error {
	data, err := msgpack.Marshal(task)
	if err != nil {
		return fmt.Errorf("crm: encode task %s: %w", task.ID, err)
	}
	if err := s.kv.Set(ctx, s.key(taskSegment, task.ID), data); err != nil {
		return fmt.Errorf("crm: put task %s: %w", task.ID, err)
	}
	return nil
}

// GetTasks returns all tasks ordered by due date.
func (s *KVStore) GetTasks(ctx context.Context) ([]*Task, error) {
	var tasks []*Task
	for entry, err := range s.kv.List(ctx, s.scan(taskSegment)) {
		if err != nil {
			return nil, fmt.Errorf("crm: list tasks: %w", err)
		}
		var t Task
		if err := msgpack.Unmarshal(entry.Value, &t); err != nil {
			return nil, fmt.Errorf("crm: decode task %s: %w", entry.Key, err)
		}
		tasks = append(tasks, &t)
	}
	slices.SortStableFunc(tasks, func(a, b *Task) int {
		return a.DueDate.Time().Compare(b.DueDate.Time())
	})
	return tasks, nil
}

func (s *KVStore) UpdateTask(ctx context.Context, task *Task) error {
	if task == nil || task.ID == "" {
		return errors.New("crm: task id is required")
	}
	if _, err := s.kv.Get(ctx, s.key(taskSegment, task.ID)); err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return ErrTaskNotFound
		}
		return fmt.Errorf("crm: get task %s: %w", task.ID, err)
	}
	return s.putTask(ctx, task)
}
