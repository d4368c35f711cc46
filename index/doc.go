// Package index implements the versioned index engine.
//
// An Index maps index keys to the record currently holding them. Every key
// owns one slot: a *Current entry, or a *Historical chain of Current entries
// when all versions are retained. A Current entry whose Record is
// model.NoRecord is vacant: it records the version at which the key was
// released.
//
// The same algorithm serves both flavours. A unique index keys slots by the
// indexed value, so a second record claiming a held key is a conflict. An
// ordering index appends the record key to the value, so claims from
// different records never collide.
//
// Writers are serialized by an internal mutex. Readers never lock: entries
// and the slot list are immutable and replaced on every write.
package index
