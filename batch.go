package histore

import (
	"bytes"
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

// batchState collects what one write touched, for projection to a backend.
type batchState struct {
	version model.Version
	records map[model.RecordID]*touched
	slots   map[*storeIndex]map[string][]byte
	dropped []model.Key
}

type touched struct {
	rec     *record.Record
	refs    map[string]ref.Reference
	dropped bool
}

func newBatchState(v model.Version) *batchState {
	return &batchState{
		version: v,
		records: make(map[model.RecordID]*touched),
		slots:   make(map[*storeIndex]map[string][]byte),
	}
}

func (b *batchState) touch(rec *record.Record) *touched {
	t, ok := b.records[rec.ID()]
	if !ok {
		t = &touched{rec: rec, refs: make(map[string]ref.Reference)}
		b.records[rec.ID()] = t
	}
	return t
}

func (b *batchState) touchRef(rec *record.Record, r ref.Reference) {
	b.touch(rec).refs[string(r)] = r
}

func (b *batchState) touchSlot(si *storeIndex, k []byte) {
	m, ok := b.slots[si]
	if !ok {
		m = make(map[string][]byte)
		b.slots[si] = m
	}
	m[string(k)] = k
}

func (b *batchState) drop(rec *record.Record) {
	b.touch(rec).dropped = true
	b.dropped = append(b.dropped, rec.Key())
}

// project converts b into the backend batch holding the full new state of
// everything it touched. Caller holds writeMu.
func (s *Store) project(b *batchState) *backend.Batch {
	out := &backend.Batch{Version: b.version, Dropped: b.dropped}

	ids := make([]model.RecordID, 0, len(b.records))
	for id := range b.records {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		t := b.records[id]
		if t.dropped {
			continue
		}
		out.Records = append(out.Records, recordMeta(t.rec))
		refs := make([]ref.Reference, 0, len(t.refs))
		for _, r := range t.refs {
			refs = append(refs, r)
		}
		slices.SortFunc(refs, ref.Compare)
		for _, r := range refs {
			out.Nodes = append(out.Nodes, backend.NodeState{
				Key:     t.rec.Key(),
				Ref:     r,
				Entries: nodeEntries(t.rec.Node(r)),
			})
		}
	}

	for _, si := range s.indexes {
		touchedKeys := b.slots[si]
		keys := make([][]byte, 0, len(touchedKeys))
		for _, k := range touchedKeys {
			keys = append(keys, k)
		}
		slices.SortFunc(keys, bytes.Compare)
		for _, k := range keys {
			out.Slots = append(out.Slots, s.slotState(si, k, si.idx.Slot(k)))
		}
	}
	return out
}

func recordMeta(rec *record.Record) backend.RecordMeta {
	return backend.RecordMeta{
		Key:          rec.Key(),
		FirstVersion: rec.FirstVersion(),
		LastVersion:  rec.LastVersion(),
	}
}

func nodeEntries(n node.Node) []backend.NodeEntry {
	flat := node.Flatten(n)
	out := make([]backend.NodeEntry, 0, len(flat))
	for _, e := range flat {
		switch cur := e.(type) {
		case *node.Live:
			out = append(out, backend.NodeEntry{Version: cur.At, Value: cur.Value})
		case *node.Tombstone:
			out = append(out, backend.NodeEntry{Version: cur.At, Deleted: true})
		}
	}
	return out
}

func (s *Store) slotState(si *storeIndex, k []byte, e index.Entry[[]byte]) backend.SlotState {
	st := backend.SlotState{Index: si.def.Name, Key: k}
	if e == nil {
		return st
	}
	for _, c := range index.Chain(e) {
		entry := backend.IndexEntry{Version: c.Version}
		if !c.Vacant() {
			rec := s.recordByID(c.Record)
			if rec == nil {
				panic(fmt.Sprintf("histore: index %q references dropped record %d", si.def.Name, c.Record))
			}
			entry.Record = rec.Key()
		}
		st.Entries = append(st.Entries, entry)
	}
	return st
}

func walRecord(v model.Version, ops []Op) *wal.Record {
	rec := &wal.Record{Version: v, Type: wal.RecordTypeBatch, Ops: make([]wal.Op, len(ops))}
	for i, op := range ops {
		changes := make([]wal.Change, len(op.Changes))
		for j, c := range op.Changes {
			changes[j] = wal.Change{Ref: c.Ref, Value: c.Value, Delete: c.Delete}
		}
		rec.Ops[i] = wal.Op{Kind: uint8(op.Kind), Key: op.Key, Changes: changes}
	}
	return rec
}

func opsFromWAL(rec *wal.Record) []Op {
	ops := make([]Op, len(rec.Ops))
	for i, op := range rec.Ops {
		changes := make([]Change, len(op.Changes))
		for j, c := range op.Changes {
			changes[j] = Change{Ref: ref.Reference(c.Ref), Value: c.Value, Delete: c.Delete}
		}
		ops[i] = Op{Kind: OpKind(op.Kind), Key: model.Key(op.Key), Changes: changes}
	}
	return ops
}
