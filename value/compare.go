package value

import (
	"bytes"
	"cmp"
	"math"
	"strings"
)

// rank orders the kinds relative to each other. Int and Float share a rank.
func rank(k Kind) int {
	switch k {
	case KindNull:
		return 1
	case KindBool:
		return 2
	case KindInt, KindFloat:
		return 3
	case KindString:
		return 4
	case KindBytes:
		return 5
	default:
		return 0
	}
}

// Equal reports whether a and b are identical: same kind and same payload.
//
// Equal is the no-op test of the versioning state machine, so Int(1) and
// Float(1) are NOT equal here even though Compare orders them as equal.
func Equal(a, b Value) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case KindNull, KindInvalid:
		return true
	case KindBool:
		return a.B == b.B
	case KindInt:
		return a.I64 == b.I64
	case KindFloat:
		return math.Float64bits(a.F64) == math.Float64bits(b.F64)
	case KindString:
		return a.s == b.s
	case KindBytes:
		return bytes.Equal(a.y, b.y)
	default:
		return false
	}
}

// Comparable reports whether a and b can be ordered by a filter comparison:
// both numbers, or both of the same kind.
func Comparable(a, b Value) bool {
	if a.IsNumber() && b.IsNumber() {
		return true
	}
	return a.Kind == b.Kind && a.IsValid()
}

// Compare returns -1, 0 or +1. It is a total order over all values:
// values of different kinds are ordered by kind
// (null < bool < number < string < bytes), Int and Float compare numerically
// and NaN sorts before every other number.
func Compare(a, b Value) int {
	ra, rb := rank(a.Kind), rank(b.Kind)
	if ra != rb {
		return cmp.Compare(ra, rb)
	}

	switch a.Kind {
	case KindNull, KindInvalid:
		return 0
	case KindBool:
		switch {
		case a.B == b.B:
			return 0
		case !a.B:
			return -1
		default:
			return 1
		}
	case KindInt, KindFloat:
		if a.Kind == KindInt && b.Kind == KindInt {
			return cmp.Compare(a.I64, b.I64)
		}
		return cmp.Compare(a.asFloat64(), b.asFloat64())
	case KindString:
		return strings.Compare(a.s.Value(), b.s.Value())
	case KindBytes:
		return bytes.Compare(a.y, b.y)
	default:
		return 0
	}
}

// HasPrefix reports whether v is a string or byte string starting with p.
// p must be of the same kind as v.
func HasPrefix(v, p Value) bool {
	switch {
	case v.Kind == KindString && p.Kind == KindString:
		return strings.HasPrefix(v.s.Value(), p.s.Value())
	case v.Kind == KindBytes && p.Kind == KindBytes:
		return bytes.HasPrefix(v.y, p.y)
	default:
		return false
	}
}

// Canonical returns the Int equal to an integral Float in the int64 range
// and v otherwise, so that values Compare treats as equal encode alike.
func Canonical(v Value) Value {
	if v.Kind != KindFloat {
		return v
	}
	f := v.F64
	if f != math.Trunc(f) || f < -(1<<63) || f >= 1<<63 {
		return v
	}
	return Int(int64(f))
}
