package keyenc

import (
	"encoding/binary"
	"errors"
)

const (
	escape     = 0x00
	escapedNul = 0xFF
	terminator = 0x01
)

var (
	// ErrUnterminated is returned when an escaped string has no terminator.
	ErrUnterminated = errors.New("keyenc: unterminated escaped bytes")
	// ErrInvalidEscape is returned for an escape byte followed by an unknown marker.
	ErrInvalidEscape = errors.New("keyenc: invalid escape sequence")
	// ErrShort is returned when a fixed-width component is truncated.
	ErrShort = errors.New("keyenc: short buffer")
)

// AppendEscaped appends the escaped and terminated form of b to dst.
func AppendEscaped(dst, b []byte) []byte {
	for _, c := range b {
		if c == escape {
			dst = append(dst, escape, escapedNul)
			continue
		}
		dst = append(dst, c)
	}
	return append(dst, escape, terminator)
}

// DecodeEscaped decodes one escaped component from src.
// It returns the decoded bytes and the remainder of src.
func DecodeEscaped(src []byte) ([]byte, []byte, error) {
	out := make([]byte, 0, len(src))
	for i := 0; i < len(src); i++ {
		c := src[i]
		if c != escape {
			out = append(out, c)
			continue
		}
		if i+1 >= len(src) {
			return nil, nil, ErrUnterminated
		}
		switch src[i+1] {
		case escapedNul:
			out = append(out, escape)
			i++
		case terminator:
			return out, src[i+2:], nil
		default:
			return nil, nil, ErrInvalidEscape
		}
	}
	return nil, nil, ErrUnterminated
}

// AppendUint64 appends v as 8 big endian bytes.
func AppendUint64(dst []byte, v uint64) []byte {
	return binary.BigEndian.AppendUint64(dst, v)
}

// Uint64 decodes a big endian uint64 and returns the remainder.
func Uint64(src []byte) (uint64, []byte, error) {
	if len(src) < 8 {
		return 0, nil, ErrShort
	}
	return binary.BigEndian.Uint64(src), src[8:], nil
}

// AppendUint64Desc appends v so that larger values sort first.
func AppendUint64Desc(dst []byte, v uint64) []byte {
	return binary.BigEndian.AppendUint64(dst, ^v)
}

// Uint64Desc decodes a value written by AppendUint64Desc.
func Uint64Desc(src []byte) (uint64, []byte, error) {
	v, rest, err := Uint64(src)
	return ^v, rest, err
}

// PrefixEnd returns the smallest key that is greater than every key with the
// given prefix, or nil if no such key exists.
func PrefixEnd(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xFF {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}
