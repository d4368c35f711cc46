package index

import (
	"fmt"

	"github.com/hupe1980/histore/model"
)

// Entry is an index slot: *Current or *Historical.
type Entry[T any] interface {
	// Key returns the index key of the slot.
	Key() T
	// Latest returns the newest state of the slot.
	Latest() *Current[T]
	isEntry()
}

// Current records which record holds a key as of a version.
type Current[T any] struct {
	key     T
	Record  model.RecordID
	Version model.Version
}

// NewCurrent returns a Current entry. rec may be model.NoRecord for a vacant slot.
func NewCurrent[T any](key T, rec model.RecordID, version model.Version) *Current[T] {
	return &Current[T]{key: key, Record: rec, Version: version}
}

func (c *Current[T]) Key() T              { return c.key }
func (c *Current[T]) Latest() *Current[T] { return c }
func (*Current[T]) isEntry()              {}

// Vacant reports whether no record holds the key in this entry.
func (c *Current[T]) Vacant() bool { return c.Record == model.NoRecord }

// Historical is the retained chain of a slot, oldest first.
type Historical[T any] struct {
	key     T
	entries []*Current[T]
}

// NewHistorical builds a chain from entries ordered oldest first. It panics
// if versions are not strictly increasing or consecutive entries name the same holder.
func NewHistorical[T any](key T, entries []*Current[T]) *Historical[T] {
	if len(entries) == 0 {
		panic("index: empty historical chain")
	}
	chain := make([]*Current[T], len(entries))
	for i, e := range entries {
		if i > 0 {
			prev := entries[i-1]
			if e.Version <= prev.Version {
				panic(fmt.Sprintf("index: chain not strictly increasing (%d after %d)", e.Version, prev.Version))
			}
			if e.Record == prev.Record {
				panic(fmt.Sprintf("index: redundant chain entry at version %d", e.Version))
			}
		}
		chain[i] = &Current[T]{key: key, Record: e.Record, Version: e.Version}
	}
	return &Historical[T]{key: key, entries: chain}
}

func (h *Historical[T]) Key() T              { return h.key }
func (h *Historical[T]) Latest() *Current[T] { return h.entries[len(h.entries)-1] }
func (*Historical[T]) isEntry()              {}

// Entries returns the chain, oldest first. The slice must not be modified.
func (h *Historical[T]) Entries() []*Current[T] { return h.entries }

// Chain returns the entries of a slot, oldest first.
func Chain[T any](e Entry[T]) []*Current[T] {
	switch s := e.(type) {
	case *Current[T]:
		return []*Current[T]{s}
	case *Historical[T]:
		return s.entries
	default:
		return nil
	}
}

// holderAt returns the record holding the slot as of toVersion.
func holderAt[T any](e Entry[T], toVersion model.Version) model.RecordID {
	switch s := e.(type) {
	case *Current[T]:
		if s.Version <= toVersion {
			return s.Record
		}
	case *Historical[T]:
		for i := len(s.entries) - 1; i >= 0; i-- {
			if s.entries[i].Version <= toVersion {
				return s.entries[i].Record
			}
		}
	}
	return model.NoRecord
}

// appendState returns the slot e with (rec, version) appended to its chain.
// A state at the newest entry's version replaces that entry; a state equal to
// its predecessor is dropped. A chain reduced to one entry collapses to Current.
func appendState[T any](e Entry[T], rec model.RecordID, version model.Version) Entry[T] {
	chain := Chain(e)
	last := chain[len(chain)-1]
	if version < last.Version {
		panic(fmt.Sprintf("index: write at version %d precedes slot version %d", version, last.Version))
	}
	if last.Version == version {
		chain = chain[:len(chain)-1]
	}
	out := make([]*Current[T], 0, len(chain)+1)
	out = append(out, chain...)
	if len(out) == 0 || out[len(out)-1].Record != rec {
		out = append(out, &Current[T]{key: e.Key(), Record: rec, Version: version})
	}
	if len(out) == 1 {
		return out[0]
	}
	return &Historical[T]{key: e.Key(), entries: out}
}
