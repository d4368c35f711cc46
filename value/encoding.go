package value

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/hupe1980/histore/internal/keyenc"
)

var (
	// ErrShortBuffer is returned when a binary value is truncated.
	ErrShortBuffer = errors.New("value: short buffer")
	// ErrInvalidKind is returned when a binary value carries an unknown kind.
	ErrInvalidKind = errors.New("value: invalid kind")
)

// AppendBinary appends the compact binary form of v to dst.
//
// Format: [Kind: 1 byte] followed by
//
//	Bool:         1 byte
//	Int, Float:   8 bytes little endian
//	String/Bytes: uvarint length + bytes
func AppendBinary(dst []byte, v Value) []byte {
	dst = append(dst, byte(v.Kind))
	switch v.Kind {
	case KindBool:
		if v.B {
			dst = append(dst, 1)
		} else {
			dst = append(dst, 0)
		}
	case KindInt:
		dst = binary.LittleEndian.AppendUint64(dst, uint64(v.I64))
	case KindFloat:
		dst = binary.LittleEndian.AppendUint64(dst, math.Float64bits(v.F64))
	case KindString:
		s := v.s.Value()
		dst = binary.AppendUvarint(dst, uint64(len(s)))
		dst = append(dst, s...)
	case KindBytes:
		dst = binary.AppendUvarint(dst, uint64(len(v.y)))
		dst = append(dst, v.y...)
	}
	return dst
}

// DecodeBinary decodes a value written by AppendBinary.
// It returns the value and the number of bytes consumed.
func DecodeBinary(src []byte) (Value, int, error) {
	if len(src) < 1 {
		return Value{}, 0, ErrShortBuffer
	}
	kind := Kind(src[0])
	body := src[1:]

	switch kind {
	case KindNull:
		return Null(), 1, nil
	case KindBool:
		if len(body) < 1 {
			return Value{}, 0, ErrShortBuffer
		}
		return Bool(body[0] != 0), 2, nil
	case KindInt:
		if len(body) < 8 {
			return Value{}, 0, ErrShortBuffer
		}
		return Int(int64(binary.LittleEndian.Uint64(body))), 9, nil
	case KindFloat:
		if len(body) < 8 {
			return Value{}, 0, ErrShortBuffer
		}
		return Float(math.Float64frombits(binary.LittleEndian.Uint64(body))), 9, nil
	case KindString, KindBytes:
		l, n := binary.Uvarint(body)
		if n <= 0 {
			return Value{}, 0, ErrShortBuffer
		}
		if uint64(len(body)-n) < l {
			return Value{}, 0, ErrShortBuffer
		}
		payload := body[n : n+int(l)]
		consumed := 1 + n + int(l)
		if kind == KindString {
			return String(string(payload)), consumed, nil
		}
		return Bytes(payload), consumed, nil
	default:
		return Value{}, 0, fmt.Errorf("%w: %d", ErrInvalidKind, kind)
	}
}

// Sortable kind tags. Int and Float use separate tags, so an index over a
// property mixing both kinds orders all ints before all floats.
const (
	sortNull   = 0x01
	sortFalse  = 0x02
	sortTrue   = 0x03
	sortInt    = 0x04
	sortFloat  = 0x05
	sortString = 0x06
	sortBytes  = 0x07
)

// AppendSortable appends an order-preserving encoding of v to dst: for two
// values of the same kind, bytes.Compare of the encodings equals Compare of
// the values. The encoding is self-delimiting, so more components may follow.
func AppendSortable(dst []byte, v Value) []byte {
	switch v.Kind {
	case KindNull:
		return append(dst, sortNull)
	case KindBool:
		if v.B {
			return append(dst, sortTrue)
		}
		return append(dst, sortFalse)
	case KindInt:
		dst = append(dst, sortInt)
		return keyenc.AppendUint64(dst, uint64(v.I64)^(1<<63))
	case KindFloat:
		dst = append(dst, sortFloat)
		bits := math.Float64bits(v.F64)
		if bits&(1<<63) != 0 {
			bits = ^bits
		} else {
			bits |= 1 << 63
		}
		return keyenc.AppendUint64(dst, bits)
	case KindString:
		dst = append(dst, sortString)
		return keyenc.AppendEscaped(dst, []byte(v.s.Value()))
	case KindBytes:
		dst = append(dst, sortBytes)
		return keyenc.AppendEscaped(dst, v.y)
	default:
		return dst
	}
}
