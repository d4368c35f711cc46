package histore

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/hupe1980/histore/index"
	"github.com/hupe1980/histore/model"
	"github.com/hupe1980/histore/record"
	"github.com/hupe1980/histore/ref"
	"github.com/hupe1980/histore/value"
)

// OpKind is the kind of a write operation.
type OpKind uint8

const (
	// OpAdd creates a record. The key must not be stored.
	OpAdd OpKind = iota + 1
	// OpChange sets or deletes properties of a live record.
	OpChange
	// OpDelete soft-deletes a record. Its history is kept and it can be restored.
	OpDelete
	// OpRestore undoes a soft delete.
	OpRestore
	// OpHardDelete erases a record and every index entry it ever held.
	OpHardDelete
)

func (k OpKind) String() string {
	switch k {
	case OpAdd:
		return "add"
	case OpChange:
		return "change"
	case OpDelete:
		return "delete"
	case OpRestore:
		return "restore"
	case OpHardDelete:
		return "hard-delete"
	default:
		return fmt.Sprintf("op(%d)", uint8(k))
	}
}

// Change sets or deletes one property.
type Change struct {
	Ref    ref.Reference
	Value  value.Value
	Delete bool

	wildcard string // pattern given to Set or Unset that names no single property
}

// Set returns a change writing v to the concrete pattern p. A pattern with
// wildcards fails the operation with ErrInvalidArgument.
func Set(p ref.Pattern, v value.Value) Change {
	return Change{Ref: concrete(p), Value: v, wildcard: wildcardOf(p)}
}

// Unset returns a change deleting the property at the concrete pattern p.
func Unset(p ref.Pattern) Change {
	return Change{Ref: concrete(p), Delete: true, wildcard: wildcardOf(p)}
}

func concrete(p ref.Pattern) ref.Reference {
	r, _ := p.Reference()
	return r
}

func wildcardOf(p ref.Pattern) string {
	if p.HasWildcard() {
		return p.String()
	}
	return ""
}

// Op is one operation of a write.
type Op struct {
	Kind OpKind
	// Key identifies the record. An add with a nil key gets a generated key.
	Key     model.Key
	Changes []Change
}

// OpResult is the outcome of one operation.
type OpResult struct {
	Key model.Key
	// Changed reports whether the operation modified stored state.
	Changed bool
	// Err is the per-operation failure, e.g. ErrNotFound or a
	// *UniqueConflictError. A failed operation changes nothing.
	Err error
}

// Write applies ops at one new version and returns it. Operations are
// applied in order and each is atomic. A failing operation is reported in
// its OpResult and does not affect the others. The returned error is
// reserved for failures of the store itself. If the batch could not be
// persisted the error wraps ErrFailed: the batch may already be visible to
// reads, and further writes are rejected until the store is reopened.
func (s *Store) Write(ctx context.Context, ops ...Op) (model.Version, []OpResult, error) {
	return s.write(ctx, 0, ops)
}

// WriteAt is like Write with a caller-chosen version, e.g. when importing
// history. v must exceed the version of every previous write.
func (s *Store) WriteAt(ctx context.Context, v model.Version, ops ...Op) ([]OpResult, error) {
	if v == 0 || v.IsLatest() {
		return nil, invalidArgument("write version %s", v)
	}
	_, res, err := s.write(ctx, v, ops)
	return res, err
}

// Add creates a record. A nil key is generated; the stored key is returned.
func (s *Store) Add(ctx context.Context, key model.Key, changes ...Change) (model.Key, model.Version, error) {
	v, res, err := s.Write(ctx, Op{Kind: OpAdd, Key: key, Changes: changes})
	if err != nil {
		return nil, 0, err
	}
	return res[0].Key, v, res[0].Err
}

// Change applies changes to a live record.
func (s *Store) Change(ctx context.Context, key model.Key, changes ...Change) (model.Version, error) {
	return s.single(ctx, Op{Kind: OpChange, Key: key, Changes: changes})
}

// Delete soft-deletes a record.
func (s *Store) Delete(ctx context.Context, key model.Key) (model.Version, error) {
	return s.single(ctx, Op{Kind: OpDelete, Key: key})
}

// Restore undoes a soft delete.
func (s *Store) Restore(ctx context.Context, key model.Key) (model.Version, error) {
	return s.single(ctx, Op{Kind: OpRestore, Key: key})
}

// HardDelete erases a record irrecoverably.
func (s *Store) HardDelete(ctx context.Context, key model.Key) (model.Version, error) {
	return s.single(ctx, Op{Kind: OpHardDelete, Key: key})
}

func (s *Store) single(ctx context.Context, op Op) (model.Version, error) {
	v, res, err := s.Write(ctx, op)
	if err != nil {
		return 0, err
	}
	return v, res[0].Err
}

func (s *Store) write(ctx context.Context, v model.Version, ops []Op) (model.Version, []OpResult, error) {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return 0, nil, err
	}
	if s.opts.readOnly {
		return 0, nil, ErrReadOnly
	}
	if len(ops) == 0 {
		return 0, nil, invalidArgument("empty write")
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.checkOpen(); err != nil {
		return 0, nil, err
	}
	if s.failed != nil {
		return 0, nil, s.failed
	}

	prepared, err := s.prepare(ops)
	if err != nil {
		return 0, nil, err
	}

	switch {
	case v == 0:
		v = s.clock.Now()
	case v <= s.version:
		return 0, nil, fmt.Errorf("%w: %s does not exceed %s", ErrVersionRegression, v, s.version)
	default:
		s.clock.Observe(v)
	}

	if s.wal != nil {
		if err := s.wal.Append(walRecord(v, prepared)); err != nil {
			// a partially written record would hide every later append
			// from replay
			err = s.fail(ctx, fmt.Errorf("histore: wal append: %w", err))
			s.metrics.RecordWrite(len(ops), len(ops), time.Since(start), err)
			s.logger.LogWrite(ctx, v, len(ops), len(ops), err)
			return 0, nil, err
		}
	}

	results, err := s.apply(ctx, v, prepared)
	if err != nil {
		// the batch is applied in memory but not projected; replay must
		// not skip it
		err = s.fail(ctx, err)
	} else {
		s.maybeCheckpoint(ctx)
	}
	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	s.metrics.RecordWrite(len(ops), failed, time.Since(start), err)
	s.logger.LogWrite(ctx, v, len(ops), failed, err)
	return v, results, err
}

// prepare copies ops so that callers may reuse their buffers, and assigns
// generated keys.
func (s *Store) prepare(ops []Op) ([]Op, error) {
	out := make([]Op, len(ops))
	for i, op := range ops {
		key := op.Key.Clone()
		if key == nil && op.Kind == OpAdd {
			k, err := s.opts.keyGenerator()
			if err != nil {
				return nil, fmt.Errorf("histore: generate key: %w", err)
			}
			key = k
		}
		changes := make([]Change, len(op.Changes))
		for j, c := range op.Changes {
			changes[j] = c
			changes[j].Ref = c.Ref.Clone()
		}
		out[i] = Op{Kind: op.Kind, Key: key, Changes: changes}
	}
	return out, nil
}

// apply runs ops at version v and projects the result to the backend.
// Caller holds writeMu.
func (s *Store) apply(ctx context.Context, v model.Version, ops []Op) ([]OpResult, error) {
	b := newBatchState(v)
	results := make([]OpResult, len(ops))
	for i, op := range ops {
		changed, err := s.applyOp(ctx, b, op)
		results[i] = OpResult{Key: op.Key, Changed: changed, Err: err}
	}
	s.version = v
	s.applied.Store(uint64(v))

	if s.backend != nil {
		if err := s.backend.Apply(ctx, s.project(b)); err != nil {
			return results, fmt.Errorf("histore: backend apply: %w", err)
		}
	}
	return results, nil
}

func (s *Store) applyOp(ctx context.Context, b *batchState, op Op) (bool, error) {
	if len(op.Key) == 0 {
		return false, invalidArgument("empty key")
	}
	switch op.Kind {
	case OpAdd:
		return s.applyAdd(ctx, b, op)
	case OpChange:
		return s.applyChange(ctx, b, op)
	}

	if len(op.Changes) > 0 {
		return false, invalidArgument("%s carries property changes", op.Kind)
	}
	switch op.Kind {
	case OpDelete:
		return s.applyDelete(b, op)
	case OpRestore:
		return s.applyRestore(ctx, b, op)
	case OpHardDelete:
		return s.applyHardDelete(b, op)
	default:
		return false, invalidArgument("unknown op kind %d", uint8(op.Kind))
	}
}

func notFound(key model.Key) error {
	return fmt.Errorf("%w: %s", ErrNotFound, key)
}

func checkChanges(changes []Change) error {
	for _, c := range changes {
		switch {
		case c.wildcard != "":
			return invalidArgument("%s is not a concrete reference", c.wildcard)
		case len(c.Ref) == 0:
			return invalidArgument("change without reference")
		case c.Ref.IsSoftDelete():
			return invalidArgument("the soft-delete marker is not writable")
		case !c.Delete && !c.Value.IsValid():
			return invalidArgument("invalid value for %s", c.Ref)
		}
	}
	return nil
}

func (s *Store) applyAdd(ctx context.Context, b *batchState, op Op) (bool, error) {
	if err := checkChanges(op.Changes); err != nil {
		return false, err
	}
	if s.lookupRecord(op.Key) != nil {
		return false, fmt.Errorf("%w: %s", ErrAlreadyExists, op.Key)
	}
	id := s.nextID()
	next := s.claimsOf(newOverlay(nil, op.Changes), op.Key)
	if err := s.validateClaims(ctx, id, op.Key, nil, next); err != nil {
		return false, err
	}

	rec := record.New(id, op.Key, b.version)
	s.applyChanges(b, rec, op.Changes)
	b.touch(rec)
	s.insertRecord(rec, true)
	s.updateClaims(b, id, nil, next)
	return true, nil
}

func (s *Store) applyChange(ctx context.Context, b *batchState, op Op) (bool, error) {
	if err := checkChanges(op.Changes); err != nil {
		return false, err
	}
	rec := s.lookupRecord(op.Key)
	if rec == nil || rec.IsDeleted(model.Latest) {
		return false, notFound(op.Key)
	}
	prev := s.claimsOf(rec, rec.Key())
	next := s.claimsOf(newOverlay(rec, op.Changes), rec.Key())
	if err := s.validateClaims(ctx, rec.ID(), rec.Key(), prev, next); err != nil {
		return false, err
	}

	changed := s.applyChanges(b, rec, op.Changes)
	s.updateClaims(b, rec.ID(), prev, next)
	return changed, nil
}

func (s *Store) applyDelete(b *batchState, op Op) (bool, error) {
	rec := s.lookupRecord(op.Key)
	if rec == nil {
		return false, notFound(op.Key)
	}
	if rec.IsDeleted(model.Latest) {
		return false, nil
	}
	prev := s.claimsOf(rec, rec.Key())
	if rec.MarkDeleted(b.version, s.opts.keepAllVersions) {
		b.touchRef(rec, ref.SoftDelete)
	}
	s.updateClaims(b, rec.ID(), prev, nil)
	s.setLive(rec.ID(), false)
	return true, nil
}

func (s *Store) applyRestore(ctx context.Context, b *batchState, op Op) (bool, error) {
	rec := s.lookupRecord(op.Key)
	if rec == nil {
		return false, notFound(op.Key)
	}
	if !rec.IsDeleted(model.Latest) {
		return false, nil
	}
	next := s.claimsOf(rec, rec.Key())
	if err := s.validateClaims(ctx, rec.ID(), rec.Key(), nil, next); err != nil {
		return false, err
	}
	if rec.Undelete(b.version, s.opts.keepAllVersions) {
		b.touchRef(rec, ref.SoftDelete)
	}
	s.updateClaims(b, rec.ID(), nil, next)
	s.setLive(rec.ID(), true)
	return true, nil
}

func (s *Store) applyHardDelete(b *batchState, op Op) (bool, error) {
	rec := s.lookupRecord(op.Key)
	if rec == nil {
		return false, notFound(op.Key)
	}
	for _, si := range s.indexes {
		for _, k := range si.idx.Purge(rec.ID()) {
			b.touchSlot(si, k)
		}
	}
	s.dropRecord(rec)
	b.drop(rec)
	return true, nil
}

// applyChanges writes changes to rec and reports whether any changed state.
func (s *Store) applyChanges(b *batchState, rec *record.Record, changes []Change) bool {
	changed := false
	for _, c := range changes {
		var ok bool
		if c.Delete {
			ok = rec.Delete(c.Ref, b.version, s.opts.keepAllVersions)
		} else {
			ok = rec.Set(c.Ref, c.Value, b.version, s.opts.keepAllVersions)
		}
		if ok {
			b.touchRef(rec, c.Ref)
			changed = true
		}
	}
	return changed
}

// claimsOf returns the claims src holds, per index in definition order.
func (s *Store) claimsOf(src source, key model.Key) [][]claim {
	out := make([][]claim, len(s.indexes))
	for i, si := range s.indexes {
		out[i] = si.claims(src, key)
	}
	return out
}

// validateClaims checks every unique claim in next that is not already in
// prev against the holders of the index.
func (s *Store) validateClaims(ctx context.Context, id model.RecordID, key model.Key, prev, next [][]claim) error {
	for i, si := range s.indexes {
		if !si.def.Unique {
			continue
		}
		for _, c := range next[i] {
			if prev != nil && containsClaim(prev[i], c.key) {
				continue
			}
			if err := si.idx.ValidateUniqueNotExists(c.key, id); err != nil {
				return s.conflict(ctx, si, c, key, err)
			}
		}
	}
	return nil
}

func (s *Store) conflict(ctx context.Context, si *storeIndex, c claim, key model.Key, err error) error {
	uc := &UniqueConflictError{Index: si.def.Name, Reference: c.ref.Clone(), Key: key.Clone()}
	var ce *index.ConflictError
	if errors.As(err, &ce) {
		if held := s.recordByID(ce.HeldBy); held != nil {
			uc.HeldBy = held.Key()
		}
	}
	s.metrics.RecordConflict(si.def.Name)
	s.logger.LogUniqueConflict(ctx, uc.Index, uc.Reference, uc.Key, uc.HeldBy)
	return uc
}

// updateClaims releases the claims of prev missing from next and claims
// those of next missing from prev.
func (s *Store) updateClaims(b *batchState, id model.RecordID, prev, next [][]claim) {
	for i, si := range s.indexes {
		var p, n []claim
		if prev != nil {
			p = prev[i]
		}
		if next != nil {
			n = next[i]
		}
		for _, c := range p {
			if containsClaim(n, c.key) {
				continue
			}
			if si.idx.Remove(c.key, id, b.version, s.opts.keepAllVersions) {
				b.touchSlot(si, c.key)
			}
		}
		for _, c := range n {
			if containsClaim(p, c.key) {
				continue
			}
			if !si.idx.Add(c.key, id, b.version) {
				panic(fmt.Sprintf("histore: index %q rejected a validated claim of record %d", si.def.Name, id))
			}
			b.touchSlot(si, c.key)
		}
	}
}

// overlay is a record view with pending changes applied.
type overlay struct {
	base    *record.Record // nil for a new record
	changes map[string]Change
	refs    []ref.Reference // sorted
}

func newOverlay(base *record.Record, changes []Change) *overlay {
	o := &overlay{base: base, changes: make(map[string]Change, len(changes))}
	for _, c := range changes {
		if _, dup := o.changes[string(c.Ref)]; !dup {
			o.refs = append(o.refs, c.Ref)
		}
		o.changes[string(c.Ref)] = c
	}
	slices.SortFunc(o.refs, ref.Compare)
	return o
}

func (o *overlay) Get(r ref.Reference, toVersion model.Version) (value.Value, bool) {
	if c, ok := o.changes[string(r)]; ok {
		if c.Delete {
			return value.Value{}, false
		}
		return c.Value, true
	}
	if o.base == nil {
		return value.Value{}, false
	}
	return o.base.Get(r, toVersion)
}

func (o *overlay) Resolve(p ref.Pattern) []ref.Reference {
	if r, ok := p.Reference(); ok {
		return []ref.Reference{r}
	}
	var out []ref.Reference
	if o.base != nil {
		out = o.base.Resolve(p)
	}
	for _, r := range o.refs {
		if !p.Match(r) {
			continue
		}
		if _, found := slices.BinarySearchFunc(out, r, ref.Compare); !found {
			out = append(out, r)
			slices.SortFunc(out, ref.Compare)
		}
	}
	return out
}
