package guacamole

import (
	"context"
	"reflect"

	"github.com/samsarahq/go/oops"

	"github.com/frondeus/guacamole/internal/depgraph"
	"github.com/frondeus/guacamole/internal/reservation"
	"github.com/frondeus/guacamole/internal/revision"
)

// Query resolves q against sys, recomputing it (and any stale
// dependency) only if needed, and returns its output by value. If sys
// is itself a tracker running some other query's Calc, this consultation
// is recorded against that tracker's dependency list, per spec.md §4.6.
//
// Go disallows generic methods on interfaces, so this is a free
// function over the narrow System interface rather than a method — the
// same shape QueryRef and SetInput take.
func Query[Q QueryType[O], O comparable](ctx context.Context, sys System, q Q) (O, error) {
	var zero O
	lineage, ticket, err := sys.fork(ctx)
	if err != nil {
		return zero, err
	}
	defer ticket.Release()

	value, dep, err := queryInner[Q, O](ctx, lineage, q)
	if err != nil {
		return zero, err
	}
	sys.trackDep(dep)
	return value, nil
}

// QueryRef behaves like Query but returns a pointer to the settled
// value. Go has no equivalent to the source engine's Arc-backed shared
// handle, so this hands back a private heap copy rather than literally
// shared memory — a fine substitute since settled outputs are replaced
// wholesale by UpdateOutput, never mutated in place.
func QueryRef[Q QueryType[O], O comparable](ctx context.Context, sys System, q Q) (*O, error) {
	value, err := Query[Q, O](ctx, sys, q)
	if err != nil {
		return nil, err
	}
	return &value, nil
}

// queryInner resolves q to its settled value and the Dependency record
// that consultation produced, reusing a cached cell when possible,
// waiting when another lineage is calculating it at the current
// revision, and recomputing when the cell is missing, left Calculating
// by an earlier revision, or found outdated. Every recompute decision below
// (absent, stale-from-an-earlier-revision, or proved-Outdated) is
// committed through GetOrReserve/ReplaceIfStillStale, the table's
// atomic check-and-reserve primitives: a lineage that loses the race
// re-reads the winner's cell instead of reserving a second, redundant
// computation, so "continue" always means "go around and re-evaluate",
// never "try to reserve again blindly".
func queryInner[Q QueryType[O], O comparable](ctx context.Context, sys System, q Q) (O, depgraph.Dep, error) {
	var zero O
	rt := sys.engine()
	tbl := tableFor[Q, O](rt)
	typ := reflect.TypeOf(q)
	fork := sys.forkId()

	for {
		rev := rt.clock.Current()
		view, slot, holder, reserved := tbl.typed.GetOrReserve(q, fork, rev)
		if reserved {
			return recalc[Q, O](ctx, sys, tbl, typ, slot, holder, rev)
		}

		if view.Calculating {
			switch {
			case view.Fork == fork && rev == view.Rev:
				// Same tracking lineage, same revision: q transitively
				// demands itself.
				if cb, isBreaker := any(q).(CycleBreaker[O]); isBreaker {
					idx := depgraph.DepIdx{Type: typ, Slot: slot}
					return cb.OnCycle(), depgraph.Dep{Idx: idx, Observed: view.Rev}, nil
				}
				panic(oops.Errorf("guacamole: cycle detected evaluating %T at revision %s", q, view.Rev))
			case view.Rev != rev:
				// Stale reservation left by an aborted computation from
				// an earlier revision: treat as needing recompute.
				if h, ok := tbl.typed.ReplaceIfStillStale(slot, view.Rev, fork, rev); ok {
					return recalc[Q, O](ctx, sys, tbl, typ, slot, h, rev)
				}
				continue
			default:
				if err := view.Reader.Wait(ctx); err != nil {
					return zero, depgraph.Dep{}, err
				}
				continue
			}
		}

		idx := depgraph.DepIdx{Type: typ, Slot: slot}

		if len(view.Deps) == 0 {
			return view.Value, depgraph.Dep{Idx: idx, Observed: view.Rev, Children: view.Deps}, nil
		}

		inv := checkInvalidation(ctx, sys, view.Deps)
		switch {
		case inv.IsOutdated():
			if h, ok := tbl.typed.ReplaceIfStillStale(slot, view.Rev, fork, rev); ok {
				return recalc[Q, O](ctx, sys, tbl, typ, slot, h, rev)
			}
			continue
		case inv.IsRevisioned():
			tbl.updateRev(slot, inv.Idx(), inv.Revision())
			cell := tbl.typed.CellAt(slot)
			return cell.Value, depgraph.Dep{Idx: idx, Observed: cell.Rev, Children: cell.Deps}, nil
		default:
			return view.Value, depgraph.Dep{Idx: idx, Observed: view.Rev, Children: view.Deps}, nil
		}
	}
}

// recalc runs q's Calc method under a fresh tracker and stores the
// result at slot, under the reservation the caller already installed
// atomically (via GetOrReserve or ReplaceIfStillStale) in the same step
// that decided a recompute was necessary. The reservation is held for
// the duration of the calculation and released (waking every waiter) on
// every exit path via defer, including a canceled or panicking Calc.
func recalc[Q QueryType[O], O comparable](ctx context.Context, sys System, tbl *typedTable[Q, O], typ reflect.Type, slot int, holder *reservation.Holder, rev revision.Revision) (O, depgraph.Dep, error) {
	var zero O
	rt := sys.engine()
	myFork := sys.forkId()

	cctx, unregister := rt.registerCancel(ctx)
	defer unregister()
	defer holder.Release()

	key, _ := tbl.typed.KeyAt(slot)
	trk := newTracker(rt, myFork)
	value := key.Calc(cctx, trk)
	if err := context.Cause(cctx); err != nil {
		return zero, depgraph.Dep{}, err
	}

	deps := trk.into()
	newRev := rev
	if last, ok := depgraph.LastRev(deps); ok {
		newRev = last
	}
	tbl.typed.InsertCalculated(slot, value, newRev, deps)
	rt.log.Debug("recalc", "query", typ, "rev", newRev)

	idx := depgraph.DepIdx{Type: typ, Slot: slot}
	return value, depgraph.Dep{Idx: idx, Observed: newRev, Children: deps}, nil
}

// checkInvalidation folds a dependency list into one Invalidation
// summary, per spec.md §4.7.
func checkInvalidation(ctx context.Context, sys System, deps []depgraph.Dep) depgraph.Invalidation {
	acc := depgraph.Fresh()
	for _, d := range deps {
		acc = depgraph.Combine(acc, checkOne(ctx, sys, d))
	}
	return acc
}

// checkOne walks one recorded dependency: first its own children
// (bottom-up). If a child came back Outdated, the dependency's target is
// recomputed so early cutoff has a chance to stop the staleness here; if
// a child came back Revisioned, only the target's recorded dep tree is
// refreshed. With all children Fresh, the recorded observation is
// compared against the target cell's live revision.
func checkOne(ctx context.Context, sys System, d depgraph.Dep) depgraph.Invalidation {
	childStatus := checkInvalidation(ctx, sys, d.Children)

	rt := sys.engine()
	rt.mu.RLock()
	tbl, ok := rt.tables[d.Idx.Type]
	rt.mu.RUnlock()
	if !ok {
		panic(oops.Errorf("guacamole: dependency on unknown query type %s", d.Idx.Type))
	}

	switch {
	case childStatus.IsOutdated():
		return recalcOutdatedDep(ctx, sys, tbl, d, childStatus.Idx(), childStatus.Revision())
	case childStatus.IsRevisioned():
		tbl.updateDepRev(d.Idx.Slot, childStatus.Idx(), childStatus.Revision())
		return childStatus
	default:
		currentRev, ok := tbl.depRev(d.Idx.Slot)
		if !ok {
			return depgraph.Fresh()
		}
		return d.CheckOutdated(currentRev)
	}
}

// recalcOutdatedDep re-runs the dependency's own stored evaluator and
// applies update_output, giving the early cutoff: an unchanged
// re-evaluated value yields Revisioned rather than Outdated, so the
// parent need not itself recompute.
func recalcOutdatedDep(ctx context.Context, sys System, tbl table, d depgraph.Dep, causedBy depgraph.DepIdx, rev revision.Revision) depgraph.Invalidation {
	value, _, err := tbl.dynQuery(ctx, d.Idx.Slot, sys)
	if err != nil {
		return depgraph.Outdated(rev, causedBy)
	}
	return tbl.updateOutput(d.Idx.Slot, causedBy, value, rev)
}
