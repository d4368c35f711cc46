package histore

import (
	"errors"
	"fmt"

	"github.com/hupe1980/histore/index"
	"github.com/hupe1980/histore/model"
	"github.com/hupe1980/histore/ref"
)

var (
	// ErrNotFound is returned when a record does not exist or is not visible
	// at the requested version.
	ErrNotFound = errors.New("histore: not found")

	// ErrAlreadyExists is returned when adding a key that is already stored.
	ErrAlreadyExists = errors.New("histore: already exists")

	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("histore: store closed")

	// ErrInvalidArgument is returned for malformed operations and options.
	ErrInvalidArgument = errors.New("histore: invalid argument")

	// ErrVersionRegression is returned when a write version does not exceed
	// the version of the last applied write.
	ErrVersionRegression = errors.New("histore: version regression")

	// ErrUnknownIndex is returned when a read names an index that is not defined.
	ErrUnknownIndex = errors.New("histore: unknown index")

	// ErrReadOnly is returned by writes to a store opened for inspection.
	ErrReadOnly = errors.New("histore: read-only store")

	// ErrFailed is returned by writes after the WAL or the backend failed to
	// persist a batch. The in-memory state may be ahead of durable state;
	// reopening the store replays the WAL and recovers the batch.
	ErrFailed = errors.New("histore: store failed")
)

// UniqueConflictError reports that a write claimed a value of a unique
// index that another record holds.
//
// It matches index.ErrUniqueConflict with errors.Is.
type UniqueConflictError struct {
	// Index is the name of the unique index.
	Index string
	// Reference is the property that carried the conflicting value.
	Reference ref.Reference
	// Key is the record whose claim was rejected.
	Key model.Key
	// HeldBy is the record holding the value.
	HeldBy model.Key
}

func (e *UniqueConflictError) Error() string {
	return fmt.Sprintf("histore: unique conflict on index %q at %s: record %s already holds the value claimed by %s",
		e.Index, e.Reference, e.HeldBy, e.Key)
}

func (e *UniqueConflictError) Unwrap() error { return index.ErrUniqueConflict }

func invalidArgument(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}
