package persistence

import (
	"errors"
	"fmt"
)

var (
	// ErrRecordNotFound is returned when an update or delete targets a key
	// that matches no record.
	ErrRecordNotFound = errors.New("record not found")
	// ErrStoreClosed fails writes submitted to, or still queued on, a closed
	// store.
	ErrStoreClosed = errors.New("store closed")
	// ErrInvalidCollection rejects collection names that cannot map to a
	// remote path.
	ErrInvalidCollection = errors.New("invalid collection name")
	// ErrNoChange is returned by a Mutation to skip the remote write.
	ErrNoChange = errors.New("no change")
)

// RecordNotFoundError names the collection and key of a failed lookup.
type RecordNotFoundError struct {
	Collection string
	Key        string
}

func (e *RecordNotFoundError) Error() string {
	return fmt.Sprintf("record %q not found in %s", e.Key, e.Collection)
}

func (e *RecordNotFoundError) Is(target error) bool {
	return target == ErrRecordNotFound
}
