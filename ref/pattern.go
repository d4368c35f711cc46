package ref

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/hupe1980/histore/internal/keyenc"
)

// SegmentKind identifies the type of a path segment.
type SegmentKind uint8

const (
	// SegmentField addresses a property by its field number.
	SegmentField SegmentKind = iota + 1
	// SegmentIndex addresses one element of a list property.
	SegmentIndex
	// SegmentKey addresses one entry of a map property.
	SegmentKey
	// SegmentAnyIndex matches every element of a list property.
	SegmentAnyIndex
	// SegmentAnyKey matches every entry of a map property.
	SegmentAnyKey
)

const (
	tagField = 0x10
	tagIndex = 0x20
	tagKey   = 0x30
)

var (
	// ErrInvalidReference is returned when reference bytes do not decode.
	ErrInvalidReference = errors.New("ref: invalid reference")
	// ErrSyntax is returned when pattern text does not parse.
	ErrSyntax = errors.New("ref: syntax error")
)

// Segment is one element of a path.
type Segment struct {
	Kind  SegmentKind
	Field uint32 // SegmentField
	Index uint32 // SegmentIndex
	Key   string // SegmentKey
}

func (s Segment) isWildcard() bool {
	return s.Kind == SegmentAnyIndex || s.Kind == SegmentAnyKey
}

// matches reports whether the concrete segment c is matched by s.
func (s Segment) matches(c Segment) bool {
	switch s.Kind {
	case SegmentAnyIndex:
		return c.Kind == SegmentIndex
	case SegmentAnyKey:
		return c.Kind == SegmentKey
	default:
		return s == c
	}
}

func (s Segment) appendTo(dst []byte) []byte {
	switch s.Kind {
	case SegmentField:
		dst = append(dst, tagField)
		return binary.BigEndian.AppendUint32(dst, s.Field)
	case SegmentIndex:
		dst = append(dst, tagIndex)
		return binary.BigEndian.AppendUint32(dst, s.Index)
	case SegmentKey:
		dst = append(dst, tagKey)
		return keyenc.AppendEscaped(dst, []byte(s.Key))
	default:
		panic(fmt.Sprintf("ref: cannot encode wildcard segment %d", s.Kind))
	}
}

// Pattern is a property path, possibly containing wildcards.
// Patterns are immutable; builder methods return a new Pattern.
type Pattern struct {
	segs []Segment
}

func (p Pattern) with(s Segment) Pattern {
	segs := make([]Segment, len(p.segs), len(p.segs)+1)
	copy(segs, p.segs)
	return Pattern{segs: append(segs, s)}
}

// Field starts a pattern at the given top-level field number.
func Field(n uint32) Pattern { return Pattern{}.Field(n) }

// Field appends a field segment.
func (p Pattern) Field(n uint32) Pattern { return p.with(Segment{Kind: SegmentField, Field: n}) }

// Index appends a list element segment.
func (p Pattern) Index(i uint32) Pattern { return p.with(Segment{Kind: SegmentIndex, Index: i}) }

// Key appends a map key segment.
func (p Pattern) Key(k string) Pattern { return p.with(Segment{Kind: SegmentKey, Key: k}) }

// AnyIndex appends a wildcard matching every list element.
func (p Pattern) AnyIndex() Pattern { return p.with(Segment{Kind: SegmentAnyIndex}) }

// AnyKey appends a wildcard matching every map key.
func (p Pattern) AnyKey() Pattern { return p.with(Segment{Kind: SegmentAnyKey}) }

// Segments returns a copy of the pattern's segments.
func (p Pattern) Segments() []Segment {
	out := make([]Segment, len(p.segs))
	copy(out, p.segs)
	return out
}

// IsEmpty reports whether the pattern has no segments.
func (p Pattern) IsEmpty() bool { return len(p.segs) == 0 }

// HasWildcard reports whether the pattern contains any wildcard segment.
func (p Pattern) HasWildcard() bool {
	for _, s := range p.segs {
		if s.isWildcard() {
			return true
		}
	}
	return false
}

// Reference returns the concrete reference of a wildcard-free pattern.
func (p Pattern) Reference() (Reference, bool) {
	if p.IsEmpty() || p.HasWildcard() {
		return nil, false
	}
	var out Reference
	for _, s := range p.segs {
		out = s.appendTo(out)
	}
	return out, true
}

// Ref returns the concrete reference of p. It panics if p is empty or
// contains a wildcard.
func (p Pattern) Ref() Reference {
	r, ok := p.Reference()
	if !ok {
		panic(fmt.Sprintf("ref: pattern %q is not concrete", p.String()))
	}
	return r
}

// Prefix returns the encoded segments before the first wildcard. Every
// reference matched by p starts with this prefix.
func (p Pattern) Prefix() Reference {
	var out Reference
	for _, s := range p.segs {
		if s.isWildcard() {
			break
		}
		out = s.appendTo(out)
	}
	return out
}

// Match reports whether the concrete reference r is matched by p.
func (p Pattern) Match(r Reference) bool {
	segs, err := Decode(r)
	if err != nil || len(segs) != len(p.segs) {
		return false
	}
	for i, s := range p.segs {
		if !s.matches(segs[i]) {
			return false
		}
	}
	return true
}

// String returns the text form of p, accepted by Parse.
func (p Pattern) String() string {
	var b strings.Builder
	for i, s := range p.segs {
		if i > 0 {
			b.WriteByte('.')
		}
		switch s.Kind {
		case SegmentField:
			b.WriteString(strconv.FormatUint(uint64(s.Field), 10))
		case SegmentIndex:
			b.WriteString("[" + strconv.FormatUint(uint64(s.Index), 10) + "]")
		case SegmentKey:
			b.WriteString("{" + s.Key + "}")
		case SegmentAnyIndex:
			b.WriteString("[*]")
		case SegmentAnyKey:
			b.WriteString("{*}")
		}
	}
	return b.String()
}

// Decode splits a concrete reference into its segments.
func Decode(r Reference) ([]Segment, error) {
	var segs []Segment
	rest := []byte(r)
	for len(rest) > 0 {
		tag := rest[0]
		rest = rest[1:]
		switch tag {
		case tagField, tagIndex:
			if len(rest) < 4 {
				return nil, ErrInvalidReference
			}
			n := binary.BigEndian.Uint32(rest)
			rest = rest[4:]
			if tag == tagField {
				segs = append(segs, Segment{Kind: SegmentField, Field: n})
			} else {
				segs = append(segs, Segment{Kind: SegmentIndex, Index: n})
			}
		case tagKey:
			k, tail, err := keyenc.DecodeEscaped(rest)
			if err != nil {
				return nil, fmt.Errorf("%w: %w", ErrInvalidReference, err)
			}
			segs = append(segs, Segment{Kind: SegmentKey, Key: string(k)})
			rest = tail
		default:
			return nil, fmt.Errorf("%w: unknown tag 0x%02x", ErrInvalidReference, tag)
		}
	}
	if len(segs) == 0 {
		return nil, ErrInvalidReference
	}
	return segs, nil
}

// Parse parses pattern text. Segments are separated by '.':
//
//	N      field number
//	[N]    list element
//	[*]    any list element
//	{name} map key
//	{*}    any map key
//
// The first segment must be a field number.
func Parse(s string) (Pattern, error) {
	if s == "" {
		return Pattern{}, fmt.Errorf("%w: empty pattern", ErrSyntax)
	}
	var p Pattern
	for i, part := range splitSegments(s) {
		switch {
		case part == "[*]":
			p = p.AnyIndex()
		case part == "{*}":
			p = p.AnyKey()
		case strings.HasPrefix(part, "[") && strings.HasSuffix(part, "]"):
			n, err := strconv.ParseUint(part[1:len(part)-1], 10, 32)
			if err != nil {
				return Pattern{}, fmt.Errorf("%w: list index %q", ErrSyntax, part)
			}
			p = p.Index(uint32(n))
		case strings.HasPrefix(part, "{") && strings.HasSuffix(part, "}"):
			p = p.Key(part[1 : len(part)-1])
		default:
			n, err := strconv.ParseUint(part, 10, 32)
			if err != nil {
				return Pattern{}, fmt.Errorf("%w: field %q", ErrSyntax, part)
			}
			p = p.Field(uint32(n))
		}
		if i == 0 && p.segs[0].Kind != SegmentField {
			return Pattern{}, fmt.Errorf("%w: %q must start with a field number", ErrSyntax, s)
		}
	}
	return p, nil
}

// MustParse is like Parse but panics on error.
func MustParse(s string) Pattern {
	p, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return p
}

// splitSegments splits on '.' outside of braces so map keys may contain dots.
func splitSegments(s string) []string {
	var parts []string
	depth := 0
	start := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			if depth > 0 {
				depth--
			}
		case '.':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, s[start:])
}
