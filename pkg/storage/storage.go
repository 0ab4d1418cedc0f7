// Package storage persists committed call recordings. Paths are
// forward-slash separated and relative to the store root, for example
// "recordings/<lead>/<recording>.wav".
//
// Local keeps files on disk, S3Store writes to any S3-compatible bucket,
// and Memory serves tests.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"
)

// ErrInvalidPath is returned for empty, absolute, or escaping paths.
var ErrInvalidPath = errors.New("storage: invalid path")

// Object describes a stored file.
type Object struct {
	Path    string
	Size    int64
	ModTime time.Time
}

// FileStore stores whole objects. Implementations are safe for concurrent
// use. Putting the same path twice replaces the object, so retried writes
// are harmless.
type FileStore interface {
	// Put stores body at p. contentType may be empty.
	Put(ctx context.Context, p string, body []byte, contentType string) error

	// Open returns the object at p. A missing object yields an error
	// wrapping os.ErrNotExist.
	Open(ctx context.Context, p string) (io.ReadCloser, error)

	// Delete removes p. Missing objects are not an error.
	Delete(ctx context.Context, p string) error

	Exists(ctx context.Context, p string) (bool, error)

	// List returns the objects under prefix sorted by path.
	List(ctx context.Context, prefix string) ([]Object, error)
}

// RecordingPath is where a committed recording lives.
func RecordingPath(leadID, recordingID string) string {
	return path.Join("recordings", leadID, recordingID+".wav")
}

func cleanPath(p string) (string, error) {
	if p == "" || strings.HasPrefix(p, "/") || strings.Contains(p, `\`) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, p)
	}
	c := path.Clean(p)
	if c == "." || c == ".." || strings.HasPrefix(c, "../") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, p)
	}
	return c, nil
}
