// Package blobstore abstracts where snapshot blobs live: in memory, on the
// local file system, or in an object store. A Pointer tracks which blob is
// the current snapshot.
package blobstore

import (
	"bytes"
	"context"
	"io"
	"os"
	"strings"
)

// ErrNotFound is returned when a blob does not exist.
//
// Implementations should return an error that satisfies
// `errors.Is(err, ErrNotFound)`. The default maps to `os.ErrNotExist`.
var ErrNotFound = os.ErrNotExist

// Store is an abstraction for storing immutable snapshot blobs.
type Store interface {
	// Put writes a blob under name, replacing any existing one.
	Put(ctx context.Context, name string, r io.Reader) error

	// Get opens a blob for reading. The caller must close it.
	Get(ctx context.Context, name string) (io.ReadCloser, error)

	// Delete removes a blob. Deleting a missing blob is not an error.
	Delete(ctx context.Context, name string) error

	// List returns the names of all blobs with the given prefix.
	List(ctx context.Context, prefix string) ([]string, error)
}

// Pointer tracks the current snapshot blob name.
type Pointer interface {
	// SetCurrent atomically updates the current snapshot name.
	SetCurrent(ctx context.Context, name string) error

	// Current returns the current snapshot name, or ErrNotFound when no
	// snapshot has been committed yet.
	Current(ctx context.Context) (string, error)
}

// currentKey is the object name the ObjectPointer stores its state under.
const currentKey = "CURRENT"

// ObjectPointer keeps the current-snapshot pointer as a plain object in the
// same store. Sufficient for a single writer; pair an S3 store with the
// DynamoDB commit pointer when multiple writers may race.
type ObjectPointer struct {
	store Store
}

// NewObjectPointer creates a pointer stored as an object in store.
func NewObjectPointer(store Store) *ObjectPointer {
	return &ObjectPointer{store: store}
}

// SetCurrent implements Pointer.
func (p *ObjectPointer) SetCurrent(ctx context.Context, name string) error {
	return p.store.Put(ctx, currentKey, bytes.NewReader([]byte(name)))
}

// Current implements Pointer.
func (p *ObjectPointer) Current(ctx context.Context) (string, error) {
	rc, err := p.store.Get(ctx, currentKey)
	if err != nil {
		return "", err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(string(data)), nil
}
