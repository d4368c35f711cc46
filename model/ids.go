package model

import (
	"bytes"
	"encoding/hex"
	"math"
	"strconv"
)

// Version is a monotonically comparable logical timestamp.
// Versions issued by the store's clock are hybrid logical clock values.
type Version uint64

// Latest is the read version meaning "not pinned".
const Latest Version = math.MaxUint64

// IsLatest reports whether v is the Latest sentinel.
func (v Version) IsLatest() bool { return v == Latest }

// String returns a string representation of the version.
func (v Version) String() string {
	if v == Latest {
		return "latest"
	}
	return strconv.FormatUint(uint64(v), 10)
}

// Key is the immutable identity of a record.
type Key []byte

// String returns the hex encoding of the key.
func (k Key) String() string { return hex.EncodeToString(k) }

// Equal reports whether k and o hold the same bytes.
func (k Key) Equal(o Key) bool { return bytes.Equal(k, o) }

// Clone returns a copy of k that does not alias the caller's buffer.
func (k Key) Clone() Key {
	if k == nil {
		return nil
	}
	c := make(Key, len(k))
	copy(c, k)
	return c
}

// RecordID is the dense arena identifier of a record within one store.
// It is a non-owning back-reference: index entries hold RecordIDs, never records.
type RecordID uint32

// NoRecord is the zero RecordID. Slot 0 of the arena is never used, so
// NoRecord marks a vacant index slot.
const NoRecord RecordID = 0

// MaxRecordID is the maximum possible value for a RecordID.
const MaxRecordID = ^RecordID(0)
