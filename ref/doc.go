// Package ref provides property references.
//
// A Reference is an opaque, totally ordered byte sequence naming one property
// of a record, or one element inside a list or map property. References are
// the sort key of a record's value nodes and the identity of an index.
//
// # Encoding
//
// A reference is a concatenation of segments, each of which compares like the
// path element it encodes:
//
//	field  0x10 + uint32 big endian
//	index  0x20 + uint32 big endian
//	key    0x30 + escaped bytes
//
// The single byte 0x00 is reserved for the soft-delete marker (SoftDelete),
// which therefore sorts before every property.
//
// # Patterns
//
// A Pattern is a path that may contain "any element" wildcards. Patterns are
// built fluently or parsed from text:
//
//	ref.Field(4).AnyIndex()          // same as ref.MustParse("4.[*]")
//	ref.Field(2).Key("city")         // same as ref.MustParse("2.{city}")
//
// A Pattern without wildcards converts to a Reference with Ref.
package ref
