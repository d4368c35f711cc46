// Package model defines core identity types used throughout histore.
//
// # Identity Types
//
//   - Version: totally ordered logical write timestamp (hybrid logical clock)
//   - Key: immutable, opaque record key
//   - RecordID: dense arena slot of a record inside one store (never reused)
//
// # Versions
//
// Every read accepts a version. Latest means "no version pinned" and always
// resolves to the newest state.
package model
