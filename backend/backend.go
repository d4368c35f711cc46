package backend

import (
	"context"
	"errors"

	"github.com/hupe1980/histore/model"
	"github.com/hupe1980/histore/ref"
	"github.com/hupe1980/histore/value"
)

// ErrClosed is returned by operations on a closed backend.
var ErrClosed = errors.New("backend: closed")

// NodeEntry is one entry of a value node chain.
type NodeEntry struct {
	Version model.Version
	Value   value.Value
	Deleted bool
}

// NodeState is the complete chain of one reference, oldest first.
// An empty chain removes the node.
type NodeState struct {
	Key     model.Key
	Ref     ref.Reference
	Entries []NodeEntry
}

// RecordMeta is the version bookkeeping of one record.
type RecordMeta struct {
	Key          model.Key
	FirstVersion model.Version
	LastVersion  model.Version
}

// IndexEntry is one entry of an index slot chain. A nil Record marks a
// vacant slot.
type IndexEntry struct {
	Version model.Version
	Record  model.Key
}

// SlotState is the complete chain of one index slot, oldest first.
// An empty chain removes the slot.
type SlotState struct {
	Index   string
	Key     []byte
	Entries []IndexEntry
}

// Batch is the state change produced by one applied write.
type Batch struct {
	Version model.Version
	Records []RecordMeta
	Nodes   []NodeState
	Slots   []SlotState
	// Dropped lists hard-deleted record keys. Their metadata and every
	// node they own are removed.
	Dropped []model.Key
}

// IsEmpty reports whether the batch changes nothing besides the version.
func (b *Batch) IsEmpty() bool {
	return len(b.Records) == 0 && len(b.Nodes) == 0 && len(b.Slots) == 0 && len(b.Dropped) == 0
}

// RecordState is a record as loaded from a backend.
type RecordState struct {
	RecordMeta
	Nodes []NodeState
}

// State is everything a backend holds.
type State struct {
	// Version is the version of the last applied batch.
	Version model.Version
	// Records are ordered by key; their nodes by reference.
	Records []RecordState
	// Slots are ordered by index name, then slot key.
	Slots []SlotState
}

// Backend persists Store state.
type Backend interface {
	// Apply writes b atomically.
	Apply(ctx context.Context, b *Batch) error
	// Load reads the complete persisted state.
	Load(ctx context.Context) (*State, error)
	// Close releases the backend.
	Close() error
}

// TimeTraveler is implemented by backends that answer point-in-time reads
// without loading state into memory.
type TimeTraveler interface {
	// GetAt returns the value of key/r as of version v.
	GetAt(ctx context.Context, key model.Key, r ref.Reference, v model.Version) (value.Value, bool, error)
}
