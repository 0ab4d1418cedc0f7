// Package kv is the key-value layer under the CRM and persona stores.
// Keys are segment paths such as Key{"lead", "42"}, stored as "lead:42".
// Badger backs the on-disk store; Memory serves tests and ephemeral runs.
package kv

import (
	"context"
	"errors"
	"iter"
	"strings"
)

var (
	// ErrNotFound is returned when a key does not exist.
	ErrNotFound = errors.New("kv: not found")

	// ErrInvalidKey is returned for empty keys or segments containing the
	// separator.
	ErrInvalidKey = errors.New("kv: invalid key")
)

// Separator joins key segments.
const Separator = ':'

// Key is a hierarchical path of segments.
type Key []string

func (k Key) String() string {
	return strings.Join(k, string(Separator))
}

func (k Key) encode() ([]byte, error) {
	if len(k) == 0 {
		return nil, ErrInvalidKey
	}
	for _, seg := range k {
		if seg == "" || strings.IndexByte(seg, Separator) >= 0 {
			return nil, ErrInvalidKey
		}
	}
	return []byte(k.String()), nil
}

// prefix returns the encoded scan prefix for k, with a trailing separator
// so that "lead" does not match "leads:1". An empty key scans everything.
func (k Key) prefix() ([]byte, error) {
	if len(k) == 0 {
		return nil, nil
	}
	b, err := k.encode()
	if err != nil {
		return nil, err
	}
	return append(b, Separator), nil
}

func decodeKey(b []byte) Key {
	return strings.Split(string(b), string(Separator))
}

// Entry is a key-value pair yielded by List.
type Entry struct {
	Key   Key
	Value []byte
}

// UpdateFunc computes a new value from the current one. old is nil when
// the key does not exist. Returning an error aborts the update.
type UpdateFunc func(old []byte) (new []byte, err error)

// Store is a key-value store.
type Store interface {
	// Get returns ErrNotFound if key is absent.
	Get(ctx context.Context, key Key) ([]byte, error)
	Set(ctx context.Context, key Key, value []byte) error
	// Delete is a no-op for absent keys.
	Delete(ctx context.Context, key Key) error
	// Update applies fn atomically with respect to other writers.
	Update(ctx context.Context, key Key, fn UpdateFunc) error
	// List yields entries under prefix in lexicographic key order.
	List(ctx context.Context, prefix Key) iter.Seq2[Entry, error]
	Close() error
}
