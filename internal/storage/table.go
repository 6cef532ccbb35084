package storage

import (
	"sync"

	"github.com/frondeus/guacamole/internal/depgraph"
	"github.com/frondeus/guacamole/internal/reservation"
	"github.com/frondeus/guacamole/internal/revision"
)

// Table is the per-query-type storage named in spec.md §4.4: a
// key->slot index plus a dense, append-only list of cells. Every method
// is a short, non-blocking critical section guarded by mu — nothing
// here blocks on a reservation latch or user calculation, so mu is
// never held across an await point (the rule spec.md §5 states for the
// heterogeneous table applies just as well one level down).
type Table[Q comparable, O comparable] struct {
	mu    sync.Mutex
	keys  map[Q]int
	slots []Q
	cells []*cell[O]
}

// NewTable constructs an empty per-type table.
func NewTable[Q comparable, O comparable]() *Table[Q, O] {
	return &Table[Q, O]{keys: make(map[Q]int)}
}

// Contains reports whether key has ever been reserved or calculated.
func (t *Table[Q, O]) Contains(key Q) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.keys[key]
	return ok
}

// Get returns key's current cell, if any, along with its slot.
func (t *Table[Q, O]) Get(key Q) (view CellView[O], slot int, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	slot, ok = t.keys[key]
	if !ok {
		return CellView[O]{}, 0, false
	}
	return t.cells[slot].view(), slot, true
}

// CellAt re-reads the cell at slot, used after an in-place revision
// update (UpdateRev) to return the refreshed cell.
func (t *Table[Q, O]) CellAt(slot int) CellView[O] {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cells[slot].view()
}

// KeyAt recovers the query key stored at slot, needed to re-invoke its
// Calc method during recomputation (spec.md §4.4's dyn_query).
func (t *Table[Q, O]) KeyAt(slot int) (Q, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if slot < 0 || slot >= len(t.slots) {
		var zero Q
		return zero, false
	}
	return t.slots[slot], true
}

// Reserve unconditionally creates, or rewrites, key's cell into
// Calculating(fork, rev), returning the slot, the Holder that owns the
// in-flight computation, and a Reader any concurrent demander can await.
// Only SetInput uses this directly: an explicit input write always wins
// regardless of what any other lineage is doing with the cell. Every
// query-evaluation recompute path instead goes through GetOrReserve or
// ReplaceIfStillStale, which only install a fresh reservation when the
// caller's reason for recomputing is still valid, so two lineages
// racing the same decision cannot both win.
func (t *Table[Q, O]) Reserve(key Q, fork revision.ForkId, rev revision.Revision) (slot int, holder *reservation.Holder, reader reservation.Reader) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c := calculatingCell[O](fork, rev)
	if existing, ok := t.keys[key]; ok {
		slot = existing
		t.cells[slot] = c
	} else {
		slot = len(t.cells)
		t.cells = append(t.cells, c)
		t.slots = append(t.slots, key)
		t.keys[key] = slot
	}
	return slot, c.holder, c.reader
}

// GetOrReserve atomically resolves key's slot: if a cell already exists
// (Calculating or Calculated) it is returned as-is with reserved=false;
// a genuinely absent key gets a fresh Calculating(fork, rev) reservation
// installed in the very same critical section, with reserved=true and
// the caller now owning holder. Folding the existence check and the
// installation into one lock acquisition is what makes the join/wait
// path in the root package's queryInner reachable at all — without it,
// two lineages racing a first demand for the same key could both
// observe "absent" and both install their own reservation, running Calc
// twice for what spec.md treats as a single in-flight computation.
func (t *Table[Q, O]) GetOrReserve(key Q, fork revision.ForkId, rev revision.Revision) (view CellView[O], slot int, holder *reservation.Holder, reserved bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if existing, ok := t.keys[key]; ok {
		return t.cells[existing].view(), existing, nil, false
	}

	c := calculatingCell[O](fork, rev)
	slot = len(t.cells)
	t.cells = append(t.cells, c)
	t.slots = append(t.slots, key)
	t.keys[key] = slot
	return c.view(), slot, c.holder, true
}

// ReplaceIfStillStale installs a fresh Calculating(fork, rev)
// reservation over slot, but only if the cell stored there still has
// revision expectRev — the exact revision the caller's recompute
// decision (a reservation stale from an aborted earlier revision, or an
// invalidation walk that proved the cell Outdated) was made against. If
// some other lineage already replaced the cell first, reserved is false
// and the caller should re-read the slot and re-decide rather than
// reserving a second, redundant computation.
func (t *Table[Q, O]) ReplaceIfStillStale(slot int, expectRev revision.Revision, fork revision.ForkId, rev revision.Revision) (holder *reservation.Holder, reserved bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cells[slot].rev != expectRev {
		return nil, false
	}
	c := calculatingCell[O](fork, rev)
	t.cells[slot] = c
	return c.holder, true
}

// InsertCalculated replaces slot's cell with a settled value, overriding
// whatever Calculating reservation (if any) was there. It does not
// release that reservation's holder; the caller still owns that.
func (t *Table[Q, O]) InsertCalculated(slot int, value O, rev revision.Revision, deps []depgraph.Dep) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cells[slot] = calculatedCell(value, rev, depgraph.DeepCopy(deps))
}

// DepRev returns the live revision stamped on the cell at slot —
// spec.md §4.4's dep_rev.
func (t *Table[Q, O]) DepRev(slot int) (revision.Revision, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if slot < 0 || slot >= len(t.cells) {
		return 0, false
	}
	return t.cells[slot].rev, true
}

// UpdateRev sets slot's own cell revision to rev, then bumps the
// Observed revision of whichever recorded dependency (or ancestor of
// one) matches causedBy. Used by the orchestrator when a cell's
// top-level invalidation summary comes back Revisioned: only the
// revision and the stale dependency record move, the cached output
// survives (spec.md §4.4, §4.8).
func (t *Table[Q, O]) UpdateRev(slot int, causedBy depgraph.DepIdx, rev revision.Revision) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c := t.cells[slot]
	deps, _ := depgraph.BumpObserved(c.deps, causedBy, rev)
	t.cells[slot] = &cell[O]{kind: c.kind, value: c.value, rev: rev, deps: deps, fork: c.fork, holder: c.holder, reader: c.reader}
}

// UpdateDepRev refreshes slot's own recorded dependency tree to reflect
// that causedBy moved to rev, without touching slot's own cell
// revision. Used by the invalidation walker (spec.md §4.7) on
// intermediate nodes, so the canonical stored tree stays in sync with
// what the walk just learned even when the walk's caller does not
// itself need recomputing.
func (t *Table[Q, O]) UpdateDepRev(slot int, causedBy depgraph.DepIdx, rev revision.Revision) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c := t.cells[slot]
	deps, _ := depgraph.BumpObserved(c.deps, causedBy, rev)
	t.cells[slot] = &cell[O]{kind: c.kind, value: c.value, rev: c.rev, deps: deps, fork: c.fork, holder: c.holder, reader: c.reader}
}

// UpdateOutput applies UpdateRev, then compares newValue against the
// previously stored output with Equal. Equal values yield Revisioned
// (early cutoff: keep the old output, just move the revision); unequal
// values replace the stored output and yield Outdated. Mirrors
// spec.md §4.4's update_output exactly.
func (t *Table[Q, O]) UpdateOutput(slot int, causedBy depgraph.DepIdx, newValue O, rev revision.Revision) depgraph.Invalidation {
	t.mu.Lock()
	defer t.mu.Unlock()
	c := t.cells[slot]
	deps, _ := depgraph.BumpObserved(c.deps, causedBy, rev)
	if Equal(c.value, newValue) {
		t.cells[slot] = &cell[O]{kind: calculated, value: c.value, rev: rev, deps: deps}
		return depgraph.Revisioned(rev, causedBy)
	}
	t.cells[slot] = &cell[O]{kind: calculated, value: newValue, rev: rev, deps: deps}
	return depgraph.Outdated(rev, causedBy)
}
