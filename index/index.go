package index

import (
	"bytes"
	"cmp"
	"errors"
	"fmt"
	"iter"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/histore/model"
)

// ErrUniqueConflict is the sentinel matched by every *ConflictError.
var ErrUniqueConflict = errors.New("index: unique conflict")

// ConflictError reports that a different record already holds a key.
type ConflictError struct {
	Index  string
	HeldBy model.RecordID
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("index %q: key held by record %d", e.Index, e.HeldBy)
}

func (e *ConflictError) Unwrap() error { return ErrUniqueConflict }

// Index is a versioned mapping from keys of type T to record ids.
type Index[T any] struct {
	name   string
	unique bool
	cmp    func(a, b T) int

	mu    sync.Mutex // serializes writers
	slots atomic.Pointer[[]Entry[T]]
}

// New creates an empty index ordered by cmp.
func New[T any](name string, unique bool, cmp func(a, b T) int) *Index[T] {
	idx := &Index[T]{name: name, unique: unique, cmp: cmp}
	idx.slots.Store(&[]Entry[T]{})
	return idx
}

// NewOrdered creates an index over a naturally ordered key type.
func NewOrdered[T cmp.Ordered](name string, unique bool) *Index[T] {
	return New[T](name, unique, cmp.Compare[T])
}

// NewBytes creates an index over byte string keys.
func NewBytes(name string, unique bool) *Index[[]byte] {
	return New[[]byte](name, unique, bytes.Compare)
}

// Name returns the index name.
func (idx *Index[T]) Name() string { return idx.name }

// Unique reports whether the index enforces uniqueness.
func (idx *Index[T]) Unique() bool { return idx.unique }

// Len returns the number of slots. Only slots with history can be vacant.
func (idx *Index[T]) Len() int { return len(*idx.slots.Load()) }

// Slots returns all slots in key order. The slice must not be modified.
func (idx *Index[T]) Slots() []Entry[T] { return *idx.slots.Load() }

func (idx *Index[T]) search(slots []Entry[T], key T) (int, bool) {
	return slices.BinarySearchFunc(slots, key, func(e Entry[T], k T) int {
		return idx.cmp(e.Key(), k)
	})
}

// Slot returns the slot for key, or nil.
func (idx *Index[T]) Slot(key T) Entry[T] {
	slots := *idx.slots.Load()
	if i, ok := idx.search(slots, key); ok {
		return slots[i]
	}
	return nil
}

// Add claims key for rec at version and reports whether the claim was
// accepted. A claim on a vacant slot or one already held by rec is
// accepted; a claim on a slot held by another record is rejected.
func (idx *Index[T]) Add(key T, rec model.RecordID, version model.Version) bool {
	if rec == model.NoRecord {
		panic("index: add with no record")
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()

	slots := *idx.slots.Load()
	i, found := idx.search(slots, key)
	if !found {
		idx.insert(slots, i, NewCurrent(key, rec, version))
		return true
	}
	e := slots[i]
	switch latest := e.Latest(); {
	case latest.Record == rec:
		return true
	case !latest.Vacant():
		return false
	}
	if c, ok := e.(*Current[T]); ok {
		// a vacant Current only exists without retention
		idx.replace(slots, i, NewCurrent(c.key, rec, version))
		return true
	}
	idx.replace(slots, i, appendState(e, rec, version))
	return true
}

// Remove releases key if rec holds it and reports whether it did. With
// keepHistory the release is appended to the slot's chain. A slot without
// history is dropped.
func (idx *Index[T]) Remove(key T, rec model.RecordID, version model.Version, keepHistory bool) bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	slots := *idx.slots.Load()
	i, found := idx.search(slots, key)
	if !found {
		return false
	}
	e := slots[i]
	if e.Latest().Record != rec {
		return false
	}
	switch s := e.(type) {
	case *Current[T]:
		if !keepHistory || s.Version == version {
			idx.delete(slots, i)
		} else {
			idx.replace(slots, i, &Historical[T]{key: s.key, entries: []*Current[T]{s, NewCurrent(s.key, model.NoRecord, version)}})
		}
	default:
		idx.replace(slots, i, appendState(e, model.NoRecord, version))
	}
	return true
}

// ValidateUniqueNotExists returns a *ConflictError if a record other than
// rec currently holds key.
func (idx *Index[T]) ValidateUniqueNotExists(key T, rec model.RecordID) error {
	holder := idx.Holder(key)
	if holder != model.NoRecord && holder != rec {
		return &ConflictError{Index: idx.name, HeldBy: holder}
	}
	return nil
}

// Holder returns the record currently holding key, or model.NoRecord.
func (idx *Index[T]) Holder(key T) model.RecordID {
	if e := idx.Slot(key); e != nil {
		return e.Latest().Record
	}
	return model.NoRecord
}

// Lookup returns the record holding key as of toVersion.
func (idx *Index[T]) Lookup(key T, toVersion model.Version) (model.RecordID, bool) {
	e := idx.Slot(key)
	if e == nil {
		return model.NoRecord, false
	}
	rec := holderAt(e, toVersion)
	return rec, rec != model.NoRecord
}

// Ascend iterates held keys in key order as of toVersion, starting at from
// (inclusive) and stopping before to (exclusive). A nil bound is unbounded.
func (idx *Index[T]) Ascend(from, to *T, toVersion model.Version) iter.Seq2[T, model.RecordID] {
	slots := *idx.slots.Load()
	return func(yield func(T, model.RecordID) bool) {
		i := 0
		if from != nil {
			i, _ = idx.search(slots, *from)
		}
		for ; i < len(slots); i++ {
			e := slots[i]
			if to != nil && idx.cmp(e.Key(), *to) >= 0 {
				return
			}
			rec := holderAt(e, toVersion)
			if rec == model.NoRecord {
				continue
			}
			if !yield(e.Key(), rec) {
				return
			}
		}
	}
}

// Purge erases every trace of rec, historical entries included, and returns
// the keys of the slots it touched. Slots left without any holder are removed.
func (idx *Index[T]) Purge(rec model.RecordID) []T {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	slots := *idx.slots.Load()
	var touched []T
	next := make([]Entry[T], 0, len(slots))
	for _, e := range slots {
		chain := Chain(e)
		if !slices.ContainsFunc(chain, func(c *Current[T]) bool { return c.Record == rec }) {
			next = append(next, e)
			continue
		}
		touched = append(touched, e.Key())
		if kept := purgeChain(e.Key(), chain, rec); kept != nil {
			next = append(next, kept)
		}
	}
	if len(touched) > 0 {
		idx.slots.Store(&next)
	}
	return touched
}

// purgeChain rewrites chain without rec. Entries of rec become vacancies,
// then leading and repeated vacancies are dropped.
func purgeChain[T any](key T, chain []*Current[T], rec model.RecordID) Entry[T] {
	var out []*Current[T]
	for _, c := range chain {
		holder := c.Record
		if holder == rec {
			holder = model.NoRecord
		}
		if holder == model.NoRecord && (len(out) == 0 || out[len(out)-1].Vacant()) {
			continue
		}
		out = append(out, NewCurrent(key, holder, c.Version))
	}
	switch len(out) {
	case 0:
		return nil
	case 1:
		return out[0]
	default:
		return &Historical[T]{key: key, entries: out}
	}
}

// Load replaces the contents of the index with slots, which must be sorted
// by key without duplicates.
func (idx *Index[T]) Load(slots []Entry[T]) error {
	for i := 1; i < len(slots); i++ {
		if idx.cmp(slots[i-1].Key(), slots[i].Key()) >= 0 {
			return fmt.Errorf("index %q: slots out of order at position %d", idx.name, i)
		}
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()
	cp := slices.Clone(slots)
	idx.slots.Store(&cp)
	return nil
}

func (idx *Index[T]) insert(slots []Entry[T], i int, e Entry[T]) {
	next := make([]Entry[T], 0, len(slots)+1)
	next = append(next, slots[:i]...)
	next = append(next, e)
	next = append(next, slots[i:]...)
	idx.slots.Store(&next)
}

func (idx *Index[T]) delete(slots []Entry[T], i int) {
	next := make([]Entry[T], 0, len(slots)-1)
	next = append(next, slots[:i]...)
	next = append(next, slots[i+1:]...)
	idx.slots.Store(&next)
}

func (idx *Index[T]) replace(slots []Entry[T], i int, e Entry[T]) {
	next := slices.Clone(slots)
	next[i] = e
	idx.slots.Store(&next)
}
