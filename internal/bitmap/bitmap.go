// Package bitmap provides a roaring bitmap of record ids.
package bitmap

import (
	"iter"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/histore/model"
)

// Set is a 32-bit roaring bitmap of model.RecordID.
// It is not safe for concurrent mutation; Clone before handing it to readers.
type Set struct {
	rb *roaring.Bitmap
}

// New creates an empty set.
func New() *Set {
	return &Set{rb: roaring.New()}
}

// Of creates a set holding ids.
func Of(ids ...model.RecordID) *Set {
	s := New()
	for _, id := range ids {
		s.Add(id)
	}
	return s
}

// Add adds id to the set.
func (s *Set) Add(id model.RecordID) { s.rb.Add(uint32(id)) }

// Remove removes id from the set.
func (s *Set) Remove(id model.RecordID) { s.rb.Remove(uint32(id)) }

// Contains checks if id is in the set.
func (s *Set) Contains(id model.RecordID) bool { return s.rb.Contains(uint32(id)) }

// IsEmpty returns true if the set is empty.
func (s *Set) IsEmpty() bool { return s.rb.IsEmpty() }

// Cardinality returns the number of ids in the set.
func (s *Set) Cardinality() uint64 { return s.rb.GetCardinality() }

// Clone returns a deep copy of the set.
func (s *Set) Clone() *Set { return &Set{rb: s.rb.Clone()} }

// And intersects s with other in place.
func (s *Set) And(other *Set) { s.rb.And(other.rb) }

// Or unions s with other in place.
func (s *Set) Or(other *Set) { s.rb.Or(other.rb) }

// AndNot removes every id of other from s.
func (s *Set) AndNot(other *Set) { s.rb.AndNot(other.rb) }

// Max returns the largest id in the set, or model.NoRecord if empty.
func (s *Set) Max() model.RecordID {
	if s.rb.IsEmpty() {
		return model.NoRecord
	}
	return model.RecordID(s.rb.Maximum())
}

// All iterates the ids in ascending order.
func (s *Set) All() iter.Seq[model.RecordID] {
	return func(yield func(model.RecordID) bool) {
		it := s.rb.Iterator()
		for it.HasNext() {
			if !yield(model.RecordID(it.Next())) {
				return
			}
		}
	}
}

// Partition splits the set into at most n sets of roughly equal cardinality,
// preserving ascending order across parts.
func (s *Set) Partition(n int) []*Set {
	total := s.rb.GetCardinality()
	if n <= 1 || total == 0 {
		return []*Set{s.Clone()}
	}
	per := (total + uint64(n) - 1) / uint64(n)
	parts := make([]*Set, 0, n)
	cur := New()
	it := s.rb.Iterator()
	for it.HasNext() {
		cur.rb.Add(it.Next())
		if cur.rb.GetCardinality() == per {
			parts = append(parts, cur)
			cur = New()
		}
	}
	if !cur.IsEmpty() {
		parts = append(parts, cur)
	}
	return parts
}

// SizeInBytes returns the serialized size of the set.
func (s *Set) SizeInBytes() uint64 { return s.rb.GetSizeInBytes() }

// MarshalBinary encodes the set in the portable roaring format.
func (s *Set) MarshalBinary() ([]byte, error) { return s.rb.ToBytes() }

// UnmarshalBinary decodes a set written by MarshalBinary.
func (s *Set) UnmarshalBinary(data []byte) error {
	rb := roaring.New()
	if err := rb.UnmarshalBinary(data); err != nil {
		return err
	}
	s.rb = rb
	return nil
}
