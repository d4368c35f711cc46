package badger

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync/atomic"

	"github.com/dgraph-io/badger/v4"
	"github.com/hupe1980/histore/backend"
	"github.com/hupe1980/histore/internal/keyenc"
	"github.com/hupe1980/histore/model"
	"github.com/hupe1980/histore/ref"
	"github.com/hupe1980/histore/value"
)

// Store is a backend.Backend on an embedded badger database.
type Store struct {
	db       *badger.DB
	gc       *GCRunner
	inMemory bool
	closed   atomic.Bool
}

var (
	_ backend.Backend      = (*Store)(nil)
	_ backend.TimeTraveler = (*Store)(nil)
)

// Open opens the database and starts value log GC when configured.
func Open(cfg Config) (*Store, error) {
	db, err := openDB(cfg)
	if err != nil {
		return nil, err
	}

	s := &Store{db: db, inMemory: cfg.InMemory}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		runner, err := NewGCRunner(db, cfg.GCInterval, cfg.GCDiscardRatio, cfg.Logger)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("badger: create gc runner: %w", err)
		}
		s.gc = runner
		runner.Start()
	}
	return s, nil
}

// OpenInMemory opens an in-memory store for tests.
func OpenInMemory() (*Store, error) {
	return Open(InMemoryConfig())
}

// DB exposes the underlying database.
func (s *Store) DB() *badger.DB {
	return s.db
}

// Close stops GC and closes the database. Safe to call more than once.
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	if s.gc != nil {
		s.gc.Stop()
	}
	return s.db.Close()
}

// Sync flushes pending writes. No-op in memory.
func (s *Store) Sync() error {
	if s.closed.Load() {
		return backend.ErrClosed
	}
	if s.inMemory {
		return nil
	}
	return s.db.Sync()
}

// Apply writes the batch in one transaction.
func (s *Store) Apply(ctx context.Context, b *backend.Batch) error {
	if s.closed.Load() {
		return backend.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		for _, key := range b.Dropped {
			if err := txn.Delete(metaKey(key)); err != nil {
				return err
			}
			if err := deletePrefix(txn, nodeRecordPrefix(key)); err != nil {
				return err
			}
		}

		for _, m := range b.Records {
			if err := txn.Set(metaKey(m.Key), encodeMeta(m)); err != nil {
				return err
			}
		}

		for _, n := range b.Nodes {
			if err := deletePrefix(txn, nodePrefix(n.Key, n.Ref)); err != nil {
				return err
			}
			for _, e := range n.Entries {
				if err := txn.Set(nodeKey(n.Key, n.Ref, e.Version), encodeNodeEntry(e)); err != nil {
					return err
				}
			}
		}

		for _, sl := range b.Slots {
			if err := deletePrefix(txn, slotPrefix(sl.Index, sl.Key)); err != nil {
				return err
			}
			for _, e := range sl.Entries {
				if err := txn.Set(slotKey(sl.Index, sl.Key, e.Version), encodeSlotEntry(e)); err != nil {
					return err
				}
			}
		}

		return txn.Set(stateKey, keyenc.AppendUint64(nil, uint64(b.Version)))
	})
	if err != nil {
		return fmt.Errorf("badger: apply version %d: %w", b.Version, err)
	}
	return nil
}

func deletePrefix(txn *badger.Txn, prefix []byte) error {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix

	it := txn.NewIterator(opts)
	var keys [][]byte
	for it.Rewind(); it.Valid(); it.Next() {
		keys = append(keys, it.Item().KeyCopy(nil))
	}
	it.Close()

	for _, k := range keys {
		if err := txn.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

// Load reads every record, node chain and index slot.
func (s *Store) Load(ctx context.Context) (*backend.State, error) {
	if s.closed.Load() {
		return nil, backend.ErrClosed
	}

	state := &backend.State{}
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(stateKey)
		switch {
		case errors.Is(err, badger.ErrKeyNotFound):
		case err != nil:
			return err
		default:
			if err := item.Value(func(v []byte) error {
				ver, _, err := keyenc.Uint64(v)
				state.Version = model.Version(ver)
				return err
			}); err != nil {
				return err
			}
		}

		if err := loadRecords(ctx, txn, state); err != nil {
			return err
		}
		return loadSlots(ctx, txn, state)
	})
	if err != nil {
		return nil, fmt.Errorf("badger: load: %w", err)
	}
	return state, nil
}

func scan(ctx context.Context, txn *badger.Txn, prefix byte, fn func(k, v []byte) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte{prefix}

	it := txn.NewIterator(opts)
	defer it.Close()

	n := 0
	for it.Rewind(); it.Valid(); it.Next() {
		n++
		if n%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		item := it.Item()
		if err := item.Value(func(v []byte) error {
			return fn(item.Key(), v)
		}); err != nil {
			return err
		}
	}
	return nil
}

func loadRecords(ctx context.Context, txn *badger.Txn, state *backend.State) error {
	byKey := make(map[string]int)
	if err := scan(ctx, txn, prefixMeta, func(k, v []byte) error {
		m, err := decodeMeta(k, v)
		if err != nil {
			return err
		}
		byKey[string(m.Key)] = len(state.Records)
		state.Records = append(state.Records, backend.RecordState{RecordMeta: m})
		return nil
	}); err != nil {
		return err
	}

	var cur *backend.NodeState
	flush := func() error {
		if cur == nil {
			return nil
		}
		i, ok := byKey[string(cur.Key)]
		if !ok {
			return fmt.Errorf("%w: node without record %s", errCorrupt, cur.Key)
		}
		slices.Reverse(cur.Entries)
		state.Records[i].Nodes = append(state.Records[i].Nodes, *cur)
		cur = nil
		return nil
	}

	if err := scan(ctx, txn, prefixNode, func(k, v []byte) error {
		key, r, ver, err := decodeNodeKey(k)
		if err != nil {
			return err
		}
		val, deleted, err := decodeNodeEntry(v)
		if err != nil {
			return err
		}
		if cur == nil || !bytes.Equal(cur.Key, key) || !bytes.Equal(cur.Ref, r) {
			if err := flush(); err != nil {
				return err
			}
			cur = &backend.NodeState{Key: key, Ref: r}
		}
		cur.Entries = append(cur.Entries, backend.NodeEntry{Version: ver, Value: val, Deleted: deleted})
		return nil
	}); err != nil {
		return err
	}
	return flush()
}

func loadSlots(ctx context.Context, txn *badger.Txn, state *backend.State) error {
	var cur *backend.SlotState
	flush := func() {
		if cur != nil {
			slices.Reverse(cur.Entries)
			state.Slots = append(state.Slots, *cur)
			cur = nil
		}
	}

	if err := scan(ctx, txn, prefixSlot, func(k, v []byte) error {
		index, slot, ver, err := decodeSlotKey(k)
		if err != nil {
			return err
		}
		rec, err := decodeSlotEntry(v)
		if err != nil {
			return err
		}
		if cur == nil || cur.Index != index || !bytes.Equal(cur.Key, slot) {
			flush()
			cur = &backend.SlotState{Index: index, Key: slot}
		}
		cur.Entries = append(cur.Entries, backend.IndexEntry{Version: ver, Record: rec})
		return nil
	}); err != nil {
		return err
	}
	flush()
	return nil
}

// GetAt answers a point-in-time read with a single seek: the first entry at
// or after ^v under the node prefix is the newest one not newer than v.
func (s *Store) GetAt(ctx context.Context, key model.Key, r ref.Reference, v model.Version) (value.Value, bool, error) {
	if s.closed.Load() {
		return value.Value{}, false, backend.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return value.Value{}, false, err
	}

	var (
		out   value.Value
		found bool
	)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = nodePrefix(key, r)
		opts.PrefetchSize = 1

		it := txn.NewIterator(opts)
		defer it.Close()

		it.Seek(nodeKey(key, r, v))
		if !it.Valid() {
			return nil
		}
		return it.Item().Value(func(b []byte) error {
			val, deleted, err := decodeNodeEntry(b)
			if err != nil {
				return err
			}
			out, found = val, !deleted
			return nil
		})
	})
	if err != nil {
		return value.Value{}, false, fmt.Errorf("badger: get: %w", err)
	}
	return out, found, nil
}
