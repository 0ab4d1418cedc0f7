package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"sync"
	"time"
)

// Memory is an in-process FileStore.
type Memory struct {
	mu   sync.RWMutex
	objs map[string]memObject
}

type memObject struct {
	data    []byte
	modTime time.Time
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{objs: make(map[string]memObject)}
}

func (m *Memory) Put(_ context.Context, p string, body []byte, _ string) error {
	c, err := cleanPath(p)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.objs[c] = memObject{data: bytes.Clone(body), modTime: time.Now()}
	m.mu.Unlock()
	return nil
}

func (m *Memory) Open(_ context.Context, p string) (io.ReadCloser, error) {
	c, err := cleanPath(p)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	o, ok := m.objs[c]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("storage: open %s: %w", p, os.ErrNotExist)
	}
	return io.NopCloser(bytes.NewReader(o.data)), nil
}

func (m *Memory) Delete(_ context.Context, p string) error {
	c, err := cleanPath(p)
	if err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.objs, c)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Exists(_ context.Context, p string) (bool, error) {
	c, err := cleanPath(p)
	if err != nil {
		return false, err
	}
	m.mu.RLock()
	_, ok := m.objs[c]
	m.mu.RUnlock()
	return ok, nil
}

func (m *Memory) List(_ context.Context, prefix string) ([]Object, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var objs []Object
	for p, o := range m.objs {
		if strings.HasPrefix(p, prefix) {
			objs = append(objs, Object{Path: p, Size: int64(len(o.data)), ModTime: o.modTime})
		}
	}
	slices.SortFunc(objs, func(a, b Object) int { return strings.Compare(a.Path, b.Path) })
	return objs, nil
}

var _ FileStore = (*Memory)(nil)
