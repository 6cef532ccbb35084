package guacamole

import (
	"context"
	"reflect"

	"github.com/samsarahq/go/oops"

	"github.com/frondeus/guacamole/internal/depgraph"
	"github.com/frondeus/guacamole/internal/revision"
	"github.com/frondeus/guacamole/internal/storage"
)

// table is the type-erased view of a per-type storage.Table, exposing
// exactly the operations expressible on type-erased data (spec.md
// §4.5): dep_rev, update_rev, update_dep_rev, update_output, dyn_query.
// The invalidation walker in query.go never needs to re-read a cell's
// dependency tree through this interface — it already has a snapshot of
// it in the Dep record it is walking.
type table interface {
	depRev(slot int) (revision.Revision, bool)
	updateRev(slot int, causedBy depgraph.DepIdx, rev revision.Revision)
	updateDepRev(slot int, causedBy depgraph.DepIdx, rev revision.Revision)
	updateOutput(slot int, causedBy depgraph.DepIdx, newValue any, rev revision.Revision) depgraph.Invalidation
	dynQuery(ctx context.Context, slot int, sys System) (any, []depgraph.Dep, error)
}

// typedTable adapts a concrete storage.Table[Q, O] to the erased table
// interface, downcasting at exactly the points spec.md §4.5 calls for:
// a write-guarded section using the statically known Q, O at the call
// site (here, the typed methods below; the heterogeneous map itself
// only ever sees the erased interface).
type typedTable[Q QueryType[O], O comparable] struct {
	typed *storage.Table[Q, O]
}

func newTypedTable[Q QueryType[O], O comparable]() *typedTable[Q, O] {
	return &typedTable[Q, O]{typed: storage.NewTable[Q, O]()}
}

func (t *typedTable[Q, O]) depRev(slot int) (revision.Revision, bool) {
	return t.typed.DepRev(slot)
}

func (t *typedTable[Q, O]) updateRev(slot int, causedBy depgraph.DepIdx, rev revision.Revision) {
	t.typed.UpdateRev(slot, causedBy, rev)
}

func (t *typedTable[Q, O]) updateDepRev(slot int, causedBy depgraph.DepIdx, rev revision.Revision) {
	t.typed.UpdateDepRev(slot, causedBy, rev)
}

func (t *typedTable[Q, O]) updateOutput(slot int, causedBy depgraph.DepIdx, newValue any, rev revision.Revision) depgraph.Invalidation {
	v, ok := newValue.(O)
	if !ok {
		panic(oops.Errorf("guacamole: storage type mismatch at slot %d: got %T, want %T", slot, newValue, v))
	}
	return t.typed.UpdateOutput(slot, causedBy, v, rev)
}

// dynQuery re-invokes the query stored at slot against a fresh tracker
// sharing sys's own ForkId (the tracking-fork rule from spec.md §5),
// returning its freshly computed value and the dependencies that
// computation made.
func (t *typedTable[Q, O]) dynQuery(ctx context.Context, slot int, sys System) (any, []depgraph.Dep, error) {
	key, ok := t.typed.KeyAt(slot)
	if !ok {
		panic(oops.Errorf("guacamole: missing slot %d in storage for %T", slot, key))
	}
	trk := newTracker(sys.engine(), sys.forkId())
	value := key.Calc(ctx, trk)
	if err := context.Cause(ctx); err != nil {
		return nil, nil, err
	}
	return value, trk.into(), nil
}

// tableFor returns (creating if necessary) the heterogeneous table's
// entry for Q's type, downcasting to the statically known Q, O.
func tableFor[Q QueryType[O], O comparable](rt *Runtime) *typedTable[Q, O] {
	var zero Q
	key := reflect.TypeOf(zero)

	rt.mu.RLock()
	if existing, ok := rt.tables[key]; ok {
		rt.mu.RUnlock()
		return existing.(*typedTable[Q, O])
	}
	rt.mu.RUnlock()

	rt.mu.Lock()
	defer rt.mu.Unlock()
	if existing, ok := rt.tables[key]; ok {
		return existing.(*typedTable[Q, O])
	}
	tt := newTypedTable[Q, O]()
	rt.tables[key] = tt
	return tt
}
