package histore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/histore/backend"
	"github.com/hupe1980/histore/internal/bitmap"
	"github.com/hupe1980/histore/internal/hlc"
	"github.com/hupe1980/histore/model"
	"github.com/hupe1980/histore/record"
	"github.com/hupe1980/histore/resource"
	"github.com/hupe1980/histore/wal"
)

// Store is a versioned record store with secondary indexes.
//
// Writes are serialized by a single writer lock. Reads do not take the
// writer lock: record nodes and index entries are immutable and replaced on
// every write, so a reader always observes committed state.
type Store struct {
	opts    options
	logger  *Logger
	metrics MetricsCollector
	clock   *hlc.Clock

	indexes []*storeIndex // in definition order
	byName  map[string]*storeIndex

	writeMu sync.Mutex
	version model.Version // last applied version, guarded by writeMu
	failed  error         // sticky persistence failure, guarded by writeMu
	applied atomic.Uint64 // mirror of version for readers

	// mu guards the catalog below. Writers hold it only while publishing
	// structural changes.
	mu      sync.RWMutex
	records []*record.Record // arena indexed by RecordID, slot 0 unused
	ids     map[string]model.RecordID
	keys    []model.Key // sorted
	all     *bitmap.Set // every stored record
	live    *bitmap.Set // records not soft-deleted

	wal     *wal.WAL
	walOpts wal.Options
	backend backend.Backend
	rc      *resource.Controller

	closed atomic.Bool
}

// Open creates a store, restoring state from the configured backend or
// snapshot and replaying the WAL.
func Open(ctx context.Context, optFns ...Option) (*Store, error) {
	o := applyOptions(optFns)
	if err := o.validate(); err != nil {
		if o.backend != nil {
			_ = o.backend.Close()
		}
		return nil, err
	}

	s := newStore(o)
	if err := s.recoverState(ctx); err != nil {
		_ = s.closeResources()
		return nil, err
	}
	return s, nil
}

func newStore(o options) *Store {
	s := &Store{
		opts:    o,
		logger:  o.logger.WithStore(o.name),
		metrics: o.metricsCollector,
		clock:   hlc.New(o.clock),
		byName:  make(map[string]*storeIndex, len(o.indexes)),
		records: []*record.Record{nil},
		ids:     make(map[string]model.RecordID),
		all:     bitmap.New(),
		live:    bitmap.New(),
		backend: o.backend,
		rc:      o.resource,
	}
	if s.rc == nil {
		s.rc = resource.NewController(resource.Config{})
	}
	for _, def := range o.indexes {
		si := newStoreIndex(def)
		s.indexes = append(s.indexes, si)
		s.byName[def.Name] = si
	}
	return s
}

// Version returns the version of the last applied write.
func (s *Store) Version() model.Version {
	return model.Version(s.applied.Load())
}

// KeepAllVersions reports whether the store retains full history.
func (s *Store) KeepAllVersions() bool { return s.opts.keepAllVersions }

// Indexes returns the index definitions in definition order.
func (s *Store) Indexes() []IndexDef {
	out := make([]IndexDef, len(s.indexes))
	for i, si := range s.indexes {
		out[i] = si.def
	}
	return out
}

// Close flushes and releases the WAL and the backend.
func (s *Store) Close() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if !s.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}
	return s.closeResources()
}

func (s *Store) closeResources() error {
	var errs []error
	if s.wal != nil {
		if err := s.wal.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close wal: %w", err))
		}
	}
	if s.backend != nil {
		if err := s.backend.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close backend: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Stats describes the contents of a store.
type Stats struct {
	Version         model.Version
	KeepAllVersions bool
	// Records counts stored records, soft-deleted ones included.
	Records int
	// Live counts records that are not soft-deleted.
	Live    int
	Deleted int
	Indexes []IndexStats
}

// IndexStats describes one index.
type IndexStats struct {
	Name   string
	Unique bool
	// Slots counts index keys, vacant ones included.
	Slots int
}

// Stats returns a summary of the store.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	total := int(s.all.Cardinality())
	live := int(s.live.Cardinality())
	s.mu.RUnlock()

	st := Stats{
		Version:         s.Version(),
		KeepAllVersions: s.opts.keepAllVersions,
		Records:         total,
		Live:            live,
		Deleted:         total - live,
	}
	for _, si := range s.indexes {
		st.Indexes = append(st.Indexes, IndexStats{
			Name:   si.def.Name,
			Unique: si.def.Unique,
			Slots:  si.idx.Len(),
		})
	}
	return st
}

func (s *Store) checkOpen() error {
	if s.closed.Load() {
		return ErrClosed
	}
	return nil
}

// fail puts the store into the failed state. Caller holds writeMu.
func (s *Store) fail(ctx context.Context, err error) error {
	s.failed = fmt.Errorf("%w: reopen to recover: %w", ErrFailed, err)
	s.logger.ErrorContext(ctx, "store failed, rejecting writes until reopened", "error", err)
	return s.failed
}

// lookupRecord returns the record stored under key, or nil.
func (s *Store) lookupRecord(key model.Key) *record.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.ids[string(key)]
	if !ok {
		return nil
	}
	return s.records[id]
}

// recordByID returns the arena record for id, or nil.
func (s *Store) recordByID(id model.RecordID) *record.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if int(id) >= len(s.records) {
		return nil
	}
	return s.records[id]
}

// nextID returns the id the next inserted record receives. Caller holds writeMu.
func (s *Store) nextID() model.RecordID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return model.RecordID(len(s.records))
}

// insertRecord publishes rec. Caller holds writeMu.
func (s *Store) insertRecord(rec *record.Record, live bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec.ID() != model.RecordID(len(s.records)) {
		panic(fmt.Sprintf("histore: record id %d out of sequence (next %d)", rec.ID(), len(s.records)))
	}
	s.records = append(s.records, rec)
	s.ids[string(rec.Key())] = rec.ID()
	i, _ := slices.BinarySearchFunc(s.keys, rec.Key(), compareKeys)
	s.keys = slices.Insert(s.keys, i, rec.Key())
	s.all.Add(rec.ID())
	if live {
		s.live.Add(rec.ID())
	}
}

// dropRecord removes rec from the catalog. The arena is copied so that
// readers holding the previous slice keep a consistent view. Caller holds writeMu.
func (s *Store) dropRecord(rec *record.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	arena := slices.Clone(s.records)
	arena[rec.ID()] = nil
	s.records = arena
	delete(s.ids, string(rec.Key()))
	if i, ok := slices.BinarySearchFunc(s.keys, rec.Key(), compareKeys); ok {
		s.keys = slices.Delete(s.keys, i, i+1)
	}
	s.all.Remove(rec.ID())
	s.live.Remove(rec.ID())
}

// setLive marks rec live or soft-deleted in the catalog. Caller holds writeMu.
func (s *Store) setLive(id model.RecordID, live bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if live {
		s.live.Add(id)
	} else {
		s.live.Remove(id)
	}
}

func compareKeys(a, b model.Key) int { return bytes.Compare(a, b) }
