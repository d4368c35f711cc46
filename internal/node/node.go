package node

import (
	"fmt"

	"github.com/hupe1980/histore/model"
	"github.com/hupe1980/histore/ref"
	"github.com/hupe1980/histore/value"
)

// Node is a value node. The concrete type is *Live, *Tombstone or *History.
type Node interface {
	// Ref returns the reference the node is stored under.
	Ref() ref.Reference
	// Version returns the version of the node's newest state.
	Version() model.Version
	isNode()
}

// Live holds a present value.
type Live struct {
	ref   ref.Reference
	Value value.Value
	At    model.Version
}

// Tombstone marks a deleted value.
type Tombstone struct {
	ref ref.Reference
	At  model.Version
}

// History is an append-only chain of Live and Tombstone entries.
type History struct {
	ref     ref.Reference
	entries []Node
}

// NewLive returns a Live node.
func NewLive(r ref.Reference, v value.Value, at model.Version) *Live {
	return &Live{ref: r, Value: v, At: at}
}

// NewTombstone returns a Tombstone node.
func NewTombstone(r ref.Reference, at model.Version) *Tombstone {
	return &Tombstone{ref: r, At: at}
}

func (n *Live) Ref() ref.Reference          { return n.ref }
func (n *Live) Version() model.Version      { return n.At }
func (n *Tombstone) Ref() ref.Reference     { return n.ref }
func (n *Tombstone) Version() model.Version { return n.At }
func (n *History) Ref() ref.Reference       { return n.ref }
func (n *History) Version() model.Version   { return n.last().Version() }

func (*Live) isNode()      {}
func (*Tombstone) isNode() {}
func (*History) isNode()   {}

// Entries returns the history entries, oldest first. The slice must not be modified.
func (n *History) Entries() []Node { return n.entries }

// Len returns the number of entries in the chain.
func (n *History) Len() int { return len(n.entries) }

func (n *History) last() Node { return n.entries[len(n.entries)-1] }

// Set applies a write of v at version to n (nil means absent).
// It returns the resulting node and whether the stored state changed.
func Set(n Node, r ref.Reference, v value.Value, version model.Version, keepHistory bool) (Node, bool) {
	switch cur := n.(type) {
	case nil:
		return NewLive(r, v, version), true
	case *Live:
		if value.Equal(cur.Value, v) {
			return cur, false
		}
		mustNotRegress(cur, version)
		if !keepHistory || cur.At == version {
			return NewLive(cur.ref, v, version), true
		}
		return &History{ref: cur.ref, entries: []Node{cur, NewLive(cur.ref, v, version)}}, true
	case *Tombstone:
		mustNotRegress(cur, version)
		return NewLive(cur.ref, v, version), true
	case *History:
		if l, ok := cur.last().(*Live); ok && value.Equal(l.Value, v) {
			return cur, false
		}
		mustNotRegress(cur, version)
		return cur.append(NewLive(cur.ref, v, version)), true
	default:
		panic(fmt.Sprintf("node: unknown node type %T", n))
	}
}

// Delete applies a delete at version to n (nil means absent).
// It returns the resulting node and whether the stored state changed.
func Delete(n Node, version model.Version, keepHistory bool) (Node, bool) {
	switch cur := n.(type) {
	case nil:
		return nil, false
	case *Live:
		mustNotRegress(cur, version)
		if !keepHistory || cur.At == version {
			return NewTombstone(cur.ref, version), true
		}
		return &History{ref: cur.ref, entries: []Node{cur, NewTombstone(cur.ref, version)}}, true
	case *Tombstone:
		return cur, false
	case *History:
		if _, ok := cur.last().(*Tombstone); ok {
			return cur, false
		}
		mustNotRegress(cur, version)
		return cur.append(NewTombstone(cur.ref, version)), true
	default:
		panic(fmt.Sprintf("node: unknown node type %T", n))
	}
}

// append returns a new node with e appended. An entry at the same version as
// the newest entry replaces it. The receiver is never modified.
func (n *History) append(e Node) Node {
	entries := n.entries
	if entries[len(entries)-1].Version() == e.Version() {
		entries = entries[:len(entries)-1]
	}
	out := make([]Node, 0, len(entries)+1)
	out = append(out, entries...)
	if len(out) == 0 || !redundant(out[len(out)-1], e) {
		out = append(out, e)
	}
	if len(out) == 1 {
		return out[0]
	}
	return &History{ref: n.ref, entries: out}
}

// redundant reports whether appending e after prev would record no change.
func redundant(prev, e Node) bool {
	switch p := prev.(type) {
	case *Live:
		l, ok := e.(*Live)
		return ok && value.Equal(p.Value, l.Value)
	case *Tombstone:
		_, ok := e.(*Tombstone)
		return ok
	}
	return false
}

func mustNotRegress(n Node, version model.Version) {
	if version < n.Version() {
		panic(fmt.Sprintf("node: write at version %d precedes newest version %d of %s",
			version, n.Version(), n.Ref()))
	}
}

// Get reads the value of n as of toVersion (model.Latest for the newest state).
func Get(n Node, toVersion model.Version) (value.Value, bool) {
	switch cur := n.(type) {
	case *Live:
		if cur.At <= toVersion {
			return cur.Value, true
		}
		return value.Value{}, false
	case *History:
		for i := len(cur.entries) - 1; i >= 0; i-- {
			e := cur.entries[i]
			if e.Version() > toVersion {
				continue
			}
			if l, ok := e.(*Live); ok {
				return l.Value, true
			}
			return value.Value{}, false
		}
		return value.Value{}, false
	default:
		// nil and *Tombstone
		return value.Value{}, false
	}
}

// Flatten returns the Live/Tombstone entries of n, oldest first.
func Flatten(n Node) []Node {
	switch cur := n.(type) {
	case nil:
		return nil
	case *History:
		return cur.entries
	default:
		return []Node{cur}
	}
}

// FromEntries rebuilds a node from Live/Tombstone entries ordered oldest
// first, as produced by Flatten. It panics if the entries violate the
// history invariants.
func FromEntries(r ref.Reference, entries []Node) Node {
	switch len(entries) {
	case 0:
		return nil
	case 1:
		return rebind(r, entries[0])
	}
	out := make([]Node, len(entries))
	for i, e := range entries {
		out[i] = rebind(r, e)
	}
	h := &History{ref: r, entries: out}
	Check(h)
	return h
}

func rebind(r ref.Reference, e Node) Node {
	switch cur := e.(type) {
	case *Live:
		return NewLive(r, cur.Value, cur.At)
	case *Tombstone:
		return NewTombstone(r, cur.At)
	default:
		panic(fmt.Sprintf("node: %T is not a history entry", e))
	}
}

// Check panics if n violates the history invariants: entries must be Live or
// Tombstone, strictly increasing by version, and no two consecutive entries
// may record the same state.
func Check(n Node) {
	h, ok := n.(*History)
	if !ok {
		return
	}
	if len(h.entries) == 0 {
		panic(fmt.Sprintf("node: empty history for %s", h.ref))
	}
	for i, e := range h.entries {
		switch e.(type) {
		case *Live, *Tombstone:
		default:
			panic(fmt.Sprintf("node: %T nested in history of %s", e, h.ref))
		}
		if i == 0 {
			continue
		}
		prev := h.entries[i-1]
		if e.Version() <= prev.Version() {
			panic(fmt.Sprintf("node: history of %s not strictly increasing (%d after %d)",
				h.ref, e.Version(), prev.Version()))
		}
		if redundant(prev, e) {
			panic(fmt.Sprintf("node: redundant history entry for %s at version %d", h.ref, e.Version()))
		}
	}
}
