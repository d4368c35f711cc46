package ref

import (
	"bytes"
	"encoding/hex"
)

// Reference is the canonical ordered byte sequence of a property path.
type Reference []byte

// SoftDelete is the reserved reference of the soft-delete marker.
var SoftDelete = Reference{0x00}

// Compare orders two references.
func Compare(a, b Reference) int { return bytes.Compare(a, b) }

// Equal reports whether r and o are the same reference.
func (r Reference) Equal(o Reference) bool { return bytes.Equal(r, o) }

// IsSoftDelete reports whether r is the reserved soft-delete reference.
func (r Reference) IsSoftDelete() bool { return bytes.Equal(r, SoftDelete) }

// Clone returns a copy of r that does not alias the caller's buffer.
func (r Reference) Clone() Reference {
	if r == nil {
		return nil
	}
	c := make(Reference, len(r))
	copy(c, r)
	return c
}

// String returns the path text of r, or its hex form if r does not decode.
func (r Reference) String() string {
	if r.IsSoftDelete() {
		return "<deleted>"
	}
	segs, err := Decode(r)
	if err != nil {
		return "0x" + hex.EncodeToString(r)
	}
	return Pattern{segs: segs}.String()
}
