package histore

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/hupe1980/histore/backend"
	"github.com/hupe1980/histore/index"
	"github.com/hupe1980/histore/internal/node"
	"github.com/hupe1980/histore/model"
	"github.com/hupe1980/histore/record"
	"github.com/hupe1980/histore/ref"
	"github.com/hupe1980/histore/wal"
)

// recoverState seeds the store from the backend or snapshot store, then replays
// the WAL and opens it for appending.
func (s *Store) recoverState(ctx context.Context) error {
	switch {
	case s.backend != nil:
		st, err := s.backend.Load(ctx)
		if err != nil {
			err = fmt.Errorf("histore: load backend: %w", err)
			s.logger.LogRecovery(ctx, "backend", 0, err)
			return err
		}
		if err := s.restore(st); err != nil {
			s.logger.LogRecovery(ctx, "backend", 0, err)
			return err
		}
		s.logger.LogRecovery(ctx, "backend", len(st.Records), nil)
	case s.opts.snapshotStore != nil:
		n, err := s.loadCurrentSnapshot(ctx, s.opts.snapshotStore)
		if err != nil {
			s.logger.LogRecovery(ctx, "snapshot", 0, err)
			return err
		}
		s.logger.LogRecovery(ctx, "snapshot", n, nil)
	}

	if s.opts.walPath == "" {
		return nil
	}
	walOpts := wal.DefaultOptions()
	for _, fn := range s.opts.walOptions {
		fn(&walOpts)
	}
	if walOpts.CheckpointBytes <= 0 {
		walOpts.CheckpointBytes = wal.DefaultCheckpointBytes
	}
	if err := s.replayWAL(ctx, walOpts); err != nil {
		return err
	}
	w, err := wal.Open(s.opts.walPath, walOpts)
	if err != nil {
		return fmt.Errorf("histore: open wal: %w", err)
	}
	s.wal = w
	s.walOpts = walOpts

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.maybeCheckpoint(ctx)
	return nil
}

// maybeCheckpoint drops the WAL records the backend already holds once the
// log outgrows its checkpoint size. Without a backend the log is the only
// durable copy and is checkpointed by Snapshot instead. Caller holds writeMu.
func (s *Store) maybeCheckpoint(ctx context.Context) {
	if s.wal == nil || s.backend == nil || s.wal.Size() < s.walOpts.CheckpointBytes {
		return
	}
	s.checkpointWAL(ctx, s.version)
}

// checkpointWAL drops the WAL records at or below v. A failed checkpoint
// leaves the log intact, so it is logged rather than returned. Caller holds
// writeMu.
func (s *Store) checkpointWAL(ctx context.Context, v model.Version) {
	before := s.wal.Size()
	dropped, err := s.wal.Checkpoint(v)
	if err != nil {
		s.logger.WarnContext(ctx, "wal checkpoint failed", "version", v.String(), "error", err)
		return
	}
	s.logger.DebugContext(ctx, "wal checkpointed",
		"version", v.String(), "dropped", dropped, "bytes_before", before, "bytes_after", s.wal.Size())
}

// replayWAL applies every logged batch newer than the restored state. The
// batches run through the regular write path with their logged versions, so
// each operation reaches the same outcome it had when it was logged.
func (s *Store) replayWAL(ctx context.Context, opts wal.Options) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	applied := 0
	res, err := wal.Replay(s.opts.walPath, opts, func(rec *wal.Record) error {
		if rec.Type != wal.RecordTypeBatch || rec.Version <= s.version {
			return nil
		}
		s.clock.Observe(rec.Version)
		if _, err := s.apply(ctx, rec.Version, opsFromWAL(rec)); err != nil {
			return err
		}
		applied++
		return nil
	})
	if err != nil {
		err = fmt.Errorf("histore: replay wal: %w", err)
		s.logger.LogRecovery(ctx, "wal", applied, err)
		return err
	}
	if res.Truncated > 0 {
		s.logger.WarnContext(ctx, "truncated torn wal tail", "bytes", res.Truncated)
	}
	s.logger.LogRecovery(ctx, "wal", applied, nil)
	return nil
}

// restore replaces the contents of an empty store with st.
func (s *Store) restore(st *backend.State) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	for _, rs := range st.Records {
		id := s.nextID()
		nodes := make([]node.Node, 0, len(rs.Nodes))
		for _, ns := range rs.Nodes {
			if n := nodeFromEntries(ns.Ref, ns.Entries); n != nil {
				nodes = append(nodes, n)
			}
		}
		rec, err := loadRecord(id, rs, nodes)
		if err != nil {
			return err
		}
		s.insertRecord(rec, !rec.IsDeleted(model.Latest))
	}

	bySlots := make(map[string][]index.Entry[[]byte])
	for _, ss := range st.Slots {
		si, ok := s.byName[ss.Index]
		if !ok {
			continue
		}
		e, err := s.slotFromState(ss)
		if err != nil {
			return err
		}
		if e != nil {
			bySlots[si.def.Name] = append(bySlots[si.def.Name], e)
		}
	}
	for _, si := range s.indexes {
		slots, ok := bySlots[si.def.Name]
		if !ok {
			s.rebuildIndex(si, st.Version)
			continue
		}
		if err := si.idx.Load(slots); err != nil {
			return fmt.Errorf("histore: restore index: %w", err)
		}
	}
	for name := range namesOf(st.Slots) {
		if _, ok := s.byName[name]; !ok {
			s.logger.Warn("ignoring persisted slots of undefined index", "index", name)
		}
	}

	s.version = st.Version
	s.applied.Store(uint64(st.Version))
	s.clock.Observe(st.Version)
	return nil
}

// loadRecord rebuilds a record, turning invariant panics of corrupt input
// into errors.
func loadRecord(id model.RecordID, rs backend.RecordState, nodes []node.Node) (rec *record.Record, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("histore: restore record %s: %v", rs.Key, r)
		}
	}()
	slices.SortFunc(nodes, func(a, b node.Node) int { return ref.Compare(a.Ref(), b.Ref()) })
	return record.Load(id, rs.Key, rs.FirstVersion, rs.LastVersion, nodes), nil
}

func nodeFromEntries(r ref.Reference, entries []backend.NodeEntry) node.Node {
	flat := make([]node.Node, 0, len(entries))
	for _, e := range entries {
		if e.Deleted {
			flat = append(flat, node.NewTombstone(r, e.Version))
		} else {
			flat = append(flat, node.NewLive(r, e.Value, e.Version))
		}
	}
	return node.FromEntries(r, flat)
}

func (s *Store) slotFromState(ss backend.SlotState) (e index.Entry[[]byte], err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("histore: restore slot of index %q: %v", ss.Index, r)
		}
	}()
	chain := make([]*index.Current[[]byte], 0, len(ss.Entries))
	for _, ie := range ss.Entries {
		id := model.NoRecord
		if ie.Record != nil {
			var ok bool
			s.mu.RLock()
			id, ok = s.ids[string(ie.Record)]
			s.mu.RUnlock()
			if !ok {
				return nil, fmt.Errorf("histore: index %q references unknown record %s", ss.Index, ie.Record)
			}
		}
		chain = append(chain, index.NewCurrent(ss.Key, id, ie.Version))
	}
	switch len(chain) {
	case 0:
		return nil, nil
	case 1:
		return chain[0], nil
	default:
		return index.NewHistorical(ss.Key, chain), nil
	}
}

// rebuildIndex claims the current values of every live record at version v.
// It serves indexes defined after the state was persisted.
func (s *Store) rebuildIndex(si *storeIndex, v model.Version) {
	if v == 0 {
		return
	}
	s.mu.RLock()
	arena := s.records
	live := s.live.Clone()
	s.mu.RUnlock()
	for id := range live.All() {
		rec := arena[id]
		for _, c := range si.claims(rec, rec.Key()) {
			if !si.idx.Add(c.key, id, v) {
				s.logger.Warn("duplicate value while rebuilding unique index",
					"index", si.def.Name, "ref", c.ref.String(), "key", rec.Key().String())
			}
		}
	}
}

func namesOf(slots []backend.SlotState) map[string]struct{} {
	out := make(map[string]struct{})
	for _, ss := range slots {
		out[ss.Index] = struct{}{}
	}
	return out
}

// export captures the complete state of the store. Caller holds writeMu.
func (s *Store) export() *backend.State {
	st := &backend.State{Version: s.version}

	s.mu.RLock()
	recs := make([]*record.Record, 0, len(s.keys))
	for _, k := range s.keys {
		recs = append(recs, s.records[s.ids[string(k)]])
	}
	s.mu.RUnlock()

	for _, rec := range recs {
		rs := backend.RecordState{RecordMeta: recordMeta(rec)}
		for _, n := range rec.Nodes() {
			rs.Nodes = append(rs.Nodes, backend.NodeState{
				Key:     rec.Key(),
				Ref:     n.Ref(),
				Entries: nodeEntries(n),
			})
		}
		st.Records = append(st.Records, rs)
	}

	indexes := slices.Clone(s.indexes)
	slices.SortFunc(indexes, func(a, b *storeIndex) int { return cmp.Compare(a.def.Name, b.def.Name) })
	for _, si := range indexes {
		for _, e := range si.idx.Slots() {
			st.Slots = append(st.Slots, s.slotState(si, e.Key(), e))
		}
	}
	return st
}
