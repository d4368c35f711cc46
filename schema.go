package histore

import (
	"bytes"
	"slices"

	"github.com/hupe1980/histore/index"
	"github.com/hupe1980/histore/internal/keyenc"
	"github.com/hupe1980/histore/model"
	"github.com/hupe1980/histore/ref"
	"github.com/hupe1980/histore/value"
)

// IndexDef defines a secondary index over one property.
//
// A Reference with wildcards indexes every matching property, e.g. all
// elements of a list. A unique index rejects a second record claiming a
// value another record holds. A non-unique index orders records by value
// and supports range scans.
//
// Numbers are keyed by value where exact: Int(1) and Float(1) claim the same
// unique value. Fractional floats order after all ints.
type IndexDef struct {
	Name      string
	Reference ref.Pattern
	Unique    bool
}

func (d IndexDef) validate() error {
	if d.Name == "" {
		return invalidArgument("index name is empty")
	}
	if d.Reference.IsEmpty() {
		return invalidArgument("index %q has no reference", d.Name)
	}
	if r, ok := d.Reference.Reference(); ok && r.IsSoftDelete() {
		return invalidArgument("index %q references the soft-delete marker", d.Name)
	}
	return nil
}

// storeIndex binds an IndexDef to its index engine.
type storeIndex struct {
	def IndexDef
	idx *index.Index[[]byte]
}

func newStoreIndex(def IndexDef) *storeIndex {
	return &storeIndex{def: def, idx: index.NewBytes(def.Name, def.Unique)}
}

// key builds the index key of v for the record key. Integral floats key as
// ints, matching filter equality. Ordering indexes append the record key so
// that every record owns a distinct slot.
func (si *storeIndex) key(v value.Value, rec model.Key) []byte {
	k := value.AppendSortable(nil, value.Canonical(v))
	if si.def.Unique {
		return k
	}
	return keyenc.AppendEscaped(k, rec)
}

// bound returns the index key that starts the range of v.
func (si *storeIndex) bound(v *value.Value) *[]byte {
	if v == nil {
		return nil
	}
	k := value.AppendSortable(nil, value.Canonical(*v))
	return &k
}

// claim is one index key a record holds and the property it came from.
type claim struct {
	key []byte
	ref ref.Reference
}

// source is the record view index claims are derived from. It matches
// filter.Source.
type source interface {
	Get(r ref.Reference, toVersion model.Version) (value.Value, bool)
	Resolve(p ref.Pattern) []ref.Reference
}

// claims returns the keys src holds in si, sorted and without duplicates.
func (si *storeIndex) claims(src source, rec model.Key) []claim {
	var out []claim
	for _, r := range src.Resolve(si.def.Reference) {
		v, ok := src.Get(r, model.Latest)
		if !ok {
			continue
		}
		k := si.key(v, rec)
		i, found := slices.BinarySearchFunc(out, k, compareClaim)
		if !found {
			out = slices.Insert(out, i, claim{key: k, ref: r})
		}
	}
	return out
}

func compareClaim(c claim, k []byte) int { return bytes.Compare(c.key, k) }

func containsClaim(set []claim, k []byte) bool {
	_, found := slices.BinarySearchFunc(set, k, compareClaim)
	return found
}
