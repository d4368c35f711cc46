// Package node implements the per-reference value node state machine.
//
// A node is one of three immutable variants:
//
//   - *Live:      the value is present as of a version
//   - *Tombstone: the value was deleted as of a version
//   - *History:   a chain of Live/Tombstone entries ordered by strictly
//     increasing version, kept only when all versions are retained
//
// An absent node is represented by nil. Transitions never modify a node in
// place: Set and Delete return a replacement node, so a reader holding the old
// node keeps a consistent view.
package node
