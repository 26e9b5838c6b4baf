// Package remote defines the storage-adapter boundary used by the collection
// store: a file-contents API that supports conditional reads (entity tags)
// and compare-and-swap writes (revision ids).
package remote

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by Fetch when no file exists at the path.
	ErrNotFound = errors.New("remote file not found")
	// ErrNotModified is returned by Fetch when the file still matches the
	// entity tag passed as ifNoneMatch.
	ErrNotModified = errors.New("remote file not modified")
	// ErrAlreadyExists is returned by Create when a file is already present.
	ErrAlreadyExists = errors.New("remote file already exists")
	// ErrWriteConflict is matched by every *ConflictError.
	ErrWriteConflict = errors.New("remote revision conflict")
)

// File is a remote file's content together with its version identifiers.
type File struct {
	Path     string
	Content  []byte
	Revision string // identifies the persisted version, used for conditional writes
	ETag     string // identifies the content version, used for conditional reads
}

// Store is a remote file store with optimistic concurrency.
type Store interface {
	// Fetch reads the file at path. When ifNoneMatch is non-empty and equals
	// the current entity tag, ErrNotModified is returned.
	Fetch(ctx context.Context, path string, ifNoneMatch string) (*File, error)
	// Create writes a new file, failing with ErrAlreadyExists if one is present.
	Create(ctx context.Context, path string, content []byte) (*File, error)
	// Put replaces the file's content if its current revision equals
	// expectedRevision, otherwise it fails with a *ConflictError.
	Put(ctx context.Context, path string, content []byte, expectedRevision string) (*File, error)
}

// ConflictError reports a write whose base revision is no longer current.
type ConflictError struct {
	Path             string
	ExpectedRevision string
	CurrentRevision  string
}

func (e *ConflictError) Error() string {
	if e.CurrentRevision != "" {
		return fmt.Sprintf("revision conflict on %s: expected %s, current %s", e.Path, e.ExpectedRevision, e.CurrentRevision)
	}
	return fmt.Sprintf("revision conflict on %s: expected %s", e.Path, e.ExpectedRevision)
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrWriteConflict
}

// TransportError is any failed remote call that is not a conflict, a missing
// file, or an unchanged file.
type TransportError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("remote transport error (%d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("remote transport error: %s", e.Message)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsConflict reports whether err is a revision conflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrWriteConflict)
}
