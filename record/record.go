package record

import (
	"fmt"
	"iter"
	"slices"
	"sync/atomic"

	"github.com/hupe1980/histore/internal/node"
	"github.com/hupe1980/histore/model"
	"github.com/hupe1980/histore/ref"
	"github.com/hupe1980/histore/value"
)

// Record is the versioned state of one key.
type Record struct {
	id           model.RecordID
	key          model.Key
	firstVersion model.Version
	lastVersion  atomic.Uint64
	nodes        atomic.Pointer[[]node.Node]
}

// New creates an empty record created at version.
func New(id model.RecordID, key model.Key, version model.Version) *Record {
	r := &Record{id: id, key: key.Clone(), firstVersion: version}
	r.lastVersion.Store(uint64(version))
	r.nodes.Store(&[]node.Node{})
	return r
}

// Load rebuilds a record from persisted nodes. It panics if the nodes are
// not sorted by reference or contain a duplicate reference.
func Load(id model.RecordID, key model.Key, first, last model.Version, nodes []node.Node) *Record {
	for i := 1; i < len(nodes); i++ {
		if ref.Compare(nodes[i-1].Ref(), nodes[i].Ref()) >= 0 {
			panic(fmt.Sprintf("record %s: nodes out of order at %s", key, nodes[i].Ref()))
		}
	}
	for _, n := range nodes {
		node.Check(n)
	}
	r := &Record{id: id, key: key.Clone(), firstVersion: first}
	r.lastVersion.Store(uint64(last))
	cp := slices.Clone(nodes)
	r.nodes.Store(&cp)
	return r
}

// ID returns the arena id of the record.
func (r *Record) ID() model.RecordID { return r.id }

// Key returns the record key. The slice must not be modified.
func (r *Record) Key() model.Key { return r.key }

// FirstVersion returns the version the record was created at.
func (r *Record) FirstVersion() model.Version { return r.firstVersion }

// LastVersion returns the version of the most recent mutation.
func (r *Record) LastVersion() model.Version { return model.Version(r.lastVersion.Load()) }

// Len returns the number of nodes.
func (r *Record) Len() int { return len(*r.nodes.Load()) }

// Nodes returns the current node list sorted by reference. The slice must not be modified.
func (r *Record) Nodes() []node.Node { return *r.nodes.Load() }

func search(nodes []node.Node, target ref.Reference) (int, bool) {
	return slices.BinarySearchFunc(nodes, target, func(n node.Node, t ref.Reference) int {
		return ref.Compare(n.Ref(), t)
	})
}

// Node returns the node stored under target, or nil.
func (r *Record) Node(target ref.Reference) node.Node {
	nodes := *r.nodes.Load()
	if i, ok := search(nodes, target); ok {
		return nodes[i]
	}
	return nil
}

// Get returns the value of target as of toVersion.
func (r *Record) Get(target ref.Reference, toVersion model.Version) (value.Value, bool) {
	return node.Get(r.Node(target), toVersion)
}

// Set writes v under target at version and reports whether the stored
// state changed.
func (r *Record) Set(target ref.Reference, v value.Value, version model.Version, keepHistory bool) bool {
	nodes := *r.nodes.Load()
	i, found := search(nodes, target)
	var cur node.Node
	if found {
		cur = nodes[i]
	} else {
		target = target.Clone()
	}
	next, changed := node.Set(cur, target, v, version, keepHistory)
	if !changed {
		return false
	}
	r.store(nodes, i, found, next, version)
	return true
}

// Delete deletes the value under target at version and reports whether the
// stored state changed.
func (r *Record) Delete(target ref.Reference, version model.Version, keepHistory bool) bool {
	nodes := *r.nodes.Load()
	i, found := search(nodes, target)
	if !found {
		return false
	}
	next, changed := node.Delete(nodes[i], version, keepHistory)
	if !changed {
		return false
	}
	r.store(nodes, i, true, next, version)
	return true
}

func (r *Record) store(nodes []node.Node, i int, found bool, n node.Node, version model.Version) {
	if last := r.LastVersion(); version < last {
		panic(fmt.Sprintf("record %s: write at version %d precedes last version %d", r.key, version, last))
	}
	var next []node.Node
	if found {
		next = slices.Clone(nodes)
		next[i] = n
	} else {
		next = make([]node.Node, 0, len(nodes)+1)
		next = append(next, nodes[:i]...)
		next = append(next, n)
		next = append(next, nodes[i:]...)
	}
	r.nodes.Store(&next)
	r.lastVersion.Store(uint64(version))
}

// IsDeleted reports whether the record is soft-deleted as of toVersion.
func (r *Record) IsDeleted(toVersion model.Version) bool {
	v, ok := r.Get(ref.SoftDelete, toVersion)
	if !ok {
		return false
	}
	b, _ := v.AsBool()
	return b
}

// MarkDeleted soft-deletes the record at version.
func (r *Record) MarkDeleted(version model.Version, keepHistory bool) bool {
	return r.Set(ref.SoftDelete, value.Bool(true), version, keepHistory)
}

// Undelete clears the soft-delete marker at version.
func (r *Record) Undelete(version model.Version, keepHistory bool) bool {
	return r.Delete(ref.SoftDelete, version, keepHistory)
}

// VisibleAt reports whether the record existed and was not soft-deleted as of toVersion.
func (r *Record) VisibleAt(toVersion model.Version) bool {
	return r.firstVersion <= toVersion && !r.IsDeleted(toVersion)
}

// Resolve returns the references of all nodes matching p, in reference order.
// A pattern without wildcards resolves to its single reference.
func (r *Record) Resolve(p ref.Pattern) []ref.Reference {
	if c, ok := p.Reference(); ok {
		return []ref.Reference{c}
	}
	nodes := *r.nodes.Load()
	prefix := p.Prefix()
	i, _ := search(nodes, prefix)
	var out []ref.Reference
	for ; i < len(nodes); i++ {
		nr := nodes[i].Ref()
		if len(nr) < len(prefix) || !ref.Reference(nr[:len(prefix)]).Equal(prefix) {
			break
		}
		if p.Match(nr) {
			out = append(out, nr)
		}
	}
	return out
}

// Values iterates the properties present as of toVersion in reference
// order. The soft-delete marker is skipped.
func (r *Record) Values(toVersion model.Version) iter.Seq2[ref.Reference, value.Value] {
	nodes := *r.nodes.Load()
	return func(yield func(ref.Reference, value.Value) bool) {
		for _, n := range nodes {
			if n.Ref().IsSoftDelete() {
				continue
			}
			v, ok := node.Get(n, toVersion)
			if !ok {
				continue
			}
			if !yield(n.Ref(), v) {
				return
			}
		}
	}
}
