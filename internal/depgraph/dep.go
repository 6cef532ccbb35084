// Package depgraph holds the immutable dependency-tree value types
// (Dep, DepIdx) and the three-valued Invalidation lattice used to
// summarize, bottom-up, how stale a dependency subtree is.
//
// Every dependency record captures a snapshot of its target's own deps
// at the moment of consultation, rather than a back-pointer into live
// cell state. That keeps invalidation a pure tree-walk over values with
// no locks held on intermediate cells, and avoids the cyclic ownership a
// graph of back-pointers would otherwise need (see
// original_source/src/runtime/dep.rs and src/invalidation.rs, which this
// package ports almost directly).
package depgraph

import (
	"fmt"
	"reflect"

	"github.com/frondeus/guacamole/internal/revision"
)

// DepIdx identifies one query cell: its type and its dense slot index
// within that type's storage. Two deps with equal DepIdx name the same
// cell.
type DepIdx struct {
	Type reflect.Type
	Slot int
}

func (d DepIdx) String() string {
	name := "<nil>"
	if d.Type != nil {
		name = d.Type.String()
	}
	return fmt.Sprintf("%s@%d", name, d.Slot)
}

// Dep is one recorded sub-query consultation: the identity of the target
// cell, the revision observed at consultation time, and a snapshot of
// that target's own dependency tree at that same moment.
type Dep struct {
	Idx      DepIdx
	Observed revision.Revision
	Children []Dep
}

func (d Dep) String() string {
	if len(d.Children) == 0 {
		return fmt.Sprintf("(%s: %s)", d.Observed, d.Idx)
	}
	return fmt.Sprintf("(%s: %s)=>%v", d.Observed, d.Idx, d.Children)
}

// CheckOutdated compares the recorded observation against currentRev,
// the dependency target's live cell revision. Per spec.md §4.3: a strictly
// newer live revision means the dependency has moved since it was
// recorded, so the subtree needs (at least) a cutoff check; otherwise it
// is still Fresh.
func (d Dep) CheckOutdated(currentRev revision.Revision) Invalidation {
	if d.Observed.Less(currentRev) {
		return Outdated(currentRev, d.Idx)
	}
	return Fresh()
}

// LastRev returns the maximum Observed revision across a dependency list,
// or ok=false for an empty (input or parameter-only) list. Used to assign
// a freshly computed cell's revision: the latest observed dep revision,
// or the current revision when the cell has no deps.
func LastRev(deps []Dep) (rev revision.Revision, ok bool) {
	for _, d := range deps {
		if !ok || rev.Less(d.Observed) {
			rev = d.Observed
			ok = true
		}
	}
	return rev, ok
}

// BumpObserved walks deps looking for the node identified by causedBy,
// setting its Observed revision to rev. Every ancestor on the path down
// to that node is bumped to rev as well — an ancestor's Observed field
// records "revision at which any of my children last moved", so a
// change anywhere in a subtree must propagate up it. Reports whether
// anything in the tree matched, so a no-op walk can be told apart from
// one that actually touched something.
func BumpObserved(deps []Dep, causedBy DepIdx, rev revision.Revision) ([]Dep, bool) {
	if len(deps) == 0 {
		return deps, false
	}
	out := make([]Dep, len(deps))
	changed := false
	for i, d := range deps {
		matched := d.Idx == causedBy
		children, childChanged := BumpObserved(d.Children, causedBy, rev)
		if matched || childChanged {
			d.Observed = rev
			d.Children = children
			changed = true
		}
		out[i] = d
	}
	return out, changed
}

// DeepCopy snapshots a dependency list so that later mutation of the
// source cell's deps (by a concurrent recompute) cannot be observed
// through a dependency record taken earlier. Children are already
// snapshots by construction (queryInner and recalc build each Dep from
// a cell view whose deps are replaced wholesale, never edited), so only the slice
// header itself needs copying at each level; this still walks
// recursively because Dep is a value type whose Children field would
// otherwise alias the same backing array.
func DeepCopy(deps []Dep) []Dep {
	if deps == nil {
		return nil
	}
	out := make([]Dep, len(deps))
	for i, d := range deps {
		d.Children = DeepCopy(d.Children)
		out[i] = d
	}
	return out
}
