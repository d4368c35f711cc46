package histore

import (
	"bytes"
	"context"
	"fmt"
	"runtime"
	"slices"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/histore/filter"
	"github.com/hupe1980/histore/internal/bitmap"
	"github.com/hupe1980/histore/model"
	"github.com/hupe1980/histore/record"
	"github.com/hupe1980/histore/ref"
	"github.com/hupe1980/histore/value"
)

type readOptions struct {
	version        model.Version
	includeDeleted bool
}

// ReadOption configures a read.
type ReadOption func(*readOptions)

// AtVersion pins a read to the state as of v.
func AtVersion(v model.Version) ReadOption {
	return func(o *readOptions) {
		o.version = v
	}
}

// IncludeDeleted makes soft-deleted records visible.
func IncludeDeleted() ReadOption {
	return func(o *readOptions) {
		o.includeDeleted = true
	}
}

func applyReadOptions(optFns []ReadOption) readOptions {
	o := readOptions{version: model.Latest}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	if o.version == 0 {
		o.version = model.Latest
	}
	return o
}

// visible reports whether rec exists as of o.version.
func (o readOptions) visible(rec *record.Record) bool {
	if rec.FirstVersion() > o.version {
		return false
	}
	return o.includeDeleted || !rec.IsDeleted(o.version)
}

// Property is one property value of a record.
type Property struct {
	Ref   ref.Reference
	Value value.Value
}

// Result is one record returned by Scan.
type Result struct {
	Key        model.Key
	Deleted    bool
	Properties []Property
}

func (s *Store) visibleRecord(key model.Key, o readOptions) (*record.Record, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	rec := s.lookupRecord(key)
	if rec == nil || !o.visible(rec) {
		return nil, notFound(key)
	}
	return rec, nil
}

// Get returns the value of one property. A property that is absent at the
// requested version returns ok == false and no error; a record that is not
// visible returns ErrNotFound.
func (s *Store) Get(ctx context.Context, key model.Key, r ref.Reference, optFns ...ReadOption) (v value.Value, ok bool, err error) {
	start := time.Now()
	defer func() { s.metrics.RecordRead(time.Since(start), err) }()
	if err := ctx.Err(); err != nil {
		return value.Value{}, false, err
	}
	o := applyReadOptions(optFns)
	rec, err := s.visibleRecord(key, o)
	if err != nil {
		return value.Value{}, false, err
	}
	v, ok = rec.Get(r, o.version)
	return v, ok, nil
}

// Values returns the properties of a record in reference order.
func (s *Store) Values(ctx context.Context, key model.Key, optFns ...ReadOption) (props []Property, err error) {
	start := time.Now()
	defer func() { s.metrics.RecordRead(time.Since(start), err) }()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	o := applyReadOptions(optFns)
	rec, err := s.visibleRecord(key, o)
	if err != nil {
		return nil, err
	}
	return properties(rec, o.version), nil
}

func properties(rec *record.Record, v model.Version) []Property {
	var out []Property
	for r, val := range rec.Values(v) {
		out = append(out, Property{Ref: r, Value: val})
	}
	return out
}

// Exists reports whether a record is visible.
func (s *Store) Exists(ctx context.Context, key model.Key, optFns ...ReadOption) (ok bool, err error) {
	start := time.Now()
	defer func() { s.metrics.RecordRead(time.Since(start), err) }()
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if err := s.checkOpen(); err != nil {
		return false, err
	}
	rec := s.lookupRecord(key)
	return rec != nil && applyReadOptions(optFns).visible(rec), nil
}

// ScanRequest selects records for Scan.
type ScanRequest struct {
	// From is the first key of the range (inclusive). Nil is unbounded.
	From model.Key
	// To ends the range (exclusive). Nil is unbounded.
	To model.Key
	// Filter restricts results to matching records. Nil matches all.
	Filter filter.Filter
	// Version pins the scan. Zero reads the latest state.
	Version model.Version
	// IncludeDeleted includes soft-deleted records.
	IncludeDeleted bool
	// Limit caps the number of results. Zero is unlimited.
	Limit int
}

// Scan returns matching records in key order.
func (s *Store) Scan(ctx context.Context, req ScanRequest) ([]Result, error) {
	start := time.Now()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if req.Filter != nil {
		if err := filter.Validate(req.Filter); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
		}
	}
	if req.Limit < 0 {
		return nil, invalidArgument("negative limit %d", req.Limit)
	}
	o := readOptions{version: req.Version, includeDeleted: req.IncludeDeleted}
	if o.version == 0 {
		o.version = model.Latest
	}

	candidates := s.keyRange(req.From, req.To)
	var (
		out     []Result
		scanned int
		err     error
	)
	for _, rec := range candidates {
		if scanned%1024 == 0 {
			if err = ctx.Err(); err != nil {
				break
			}
		}
		scanned++
		if !o.visible(rec) {
			continue
		}
		if req.Filter != nil && !filter.Evaluate(req.Filter, rec, o.version) {
			continue
		}
		out = append(out, Result{
			Key:        rec.Key(),
			Deleted:    rec.IsDeleted(o.version),
			Properties: properties(rec, o.version),
		})
		if req.Limit > 0 && len(out) == req.Limit {
			break
		}
	}
	s.metrics.RecordScan(scanned, len(out), time.Since(start), err)
	s.logger.LogScan(ctx, scanned, len(out), err)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// keyRange returns the records with keys in [from, to) in key order.
func (s *Store) keyRange(from, to model.Key) []*record.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	lo := 0
	if from != nil {
		lo, _ = slices.BinarySearchFunc(s.keys, from, compareKeys)
	}
	hi := len(s.keys)
	if to != nil {
		hi, _ = slices.BinarySearchFunc(s.keys, to, compareKeys)
	}
	if hi <= lo {
		return nil
	}
	out := make([]*record.Record, 0, hi-lo)
	for _, k := range s.keys[lo:hi] {
		out = append(out, s.records[s.ids[string(k)]])
	}
	return out
}

// Count returns the number of visible records matching f. A nil filter
// counts every visible record. Filters are evaluated in parallel over
// partitions of the record set.
func (s *Store) Count(ctx context.Context, f filter.Filter, optFns ...ReadOption) (int, error) {
	start := time.Now()
	if err := s.checkOpen(); err != nil {
		return 0, err
	}
	if f != nil {
		if err := filter.Validate(f); err != nil {
			return 0, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
		}
	}
	o := applyReadOptions(optFns)

	s.mu.RLock()
	var candidates *bitmap.Set
	if o.version.IsLatest() && !o.includeDeleted {
		candidates = s.live.Clone()
	} else {
		candidates = s.all.Clone()
	}
	arena := s.records
	s.mu.RUnlock()

	if f == nil && o.version.IsLatest() {
		n := int(candidates.Cardinality())
		s.metrics.RecordScan(n, n, time.Since(start), nil)
		return n, nil
	}

	var matched, scanned atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	for _, part := range candidates.Partition(runtime.GOMAXPROCS(0)) {
		g.Go(func() error {
			var n, m int64
			defer func() {
				scanned.Add(n)
				matched.Add(m)
			}()
			for id := range part.All() {
				if n%1024 == 0 {
					if err := gctx.Err(); err != nil {
						return err
					}
				}
				n++
				rec := arena[id]
				if rec == nil || !o.visible(rec) {
					continue
				}
				if f == nil || filter.Evaluate(f, rec, o.version) {
					m++
				}
			}
			return nil
		})
	}
	err := g.Wait()
	s.metrics.RecordScan(int(scanned.Load()), int(matched.Load()), time.Since(start), err)
	s.logger.LogScan(ctx, int(scanned.Load()), int(matched.Load()), err)
	if err != nil {
		return 0, err
	}
	return int(matched.Load()), nil
}

func (s *Store) index(name string) (*storeIndex, error) {
	si, ok := s.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownIndex, name)
	}
	return si, nil
}

// Lookup returns the key of the record holding v in a unique index.
func (s *Store) Lookup(ctx context.Context, name string, v value.Value, optFns ...ReadOption) (key model.Key, err error) {
	start := time.Now()
	defer func() { s.metrics.RecordRead(time.Since(start), err) }()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	si, err := s.index(name)
	if err != nil {
		return nil, err
	}
	if !si.def.Unique {
		return nil, invalidArgument("index %q is not unique", name)
	}
	o := applyReadOptions(optFns)
	id, ok := si.idx.Lookup(si.key(v, nil), o.version)
	if !ok {
		return nil, fmt.Errorf("%w: %s in index %q", ErrNotFound, v, name)
	}
	rec := s.recordByID(id)
	if rec == nil {
		return nil, fmt.Errorf("%w: %s in index %q", ErrNotFound, v, name)
	}
	return rec.Key(), nil
}

// ScanIndex returns the keys of records holding values in [from, to) in
// index order. A nil bound is unbounded. A record appears once per value it
// holds in the range.
func (s *Store) ScanIndex(ctx context.Context, name string, from, to *value.Value, optFns ...ReadOption) ([]model.Key, error) {
	start := time.Now()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	si, err := s.index(name)
	if err != nil {
		return nil, err
	}
	o := applyReadOptions(optFns)
	lo, hi := si.bound(from), si.bound(to)
	if lo != nil && hi != nil && bytes.Compare(*lo, *hi) > 0 {
		return nil, invalidArgument("index range starts after it ends")
	}

	var (
		out     []model.Key
		scanned int
	)
	for _, id := range si.idx.Ascend(lo, hi, o.version) {
		if scanned%1024 == 0 {
			if err = ctx.Err(); err != nil {
				break
			}
		}
		scanned++
		if rec := s.recordByID(id); rec != nil {
			out = append(out, rec.Key())
		}
	}
	s.metrics.RecordScan(scanned, len(out), time.Since(start), err)
	if err != nil {
		return nil, err
	}
	return out, nil
}
