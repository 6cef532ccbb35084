package guacamole

import (
	"context"
	"errors"
	"sync"

	"github.com/frondeus/guacamole/internal/depgraph"
	"github.com/frondeus/guacamole/internal/revision"
	"github.com/frondeus/guacamole/limiter"
)

// ErrInputChanged is the cancellation cause every in-flight computation
// observes when SetInput aborts it: the revision it was computing
// against no longer exists.
var ErrInputChanged = errors.New("guacamole: input changed, computation aborted")

// System is the narrow, non-generic capability every evaluation lineage
// exposes. Go disallows generic methods on interfaces, so the Rust
// System trait's generic query/query_ref methods are rendered instead
// as free functions (Query, QueryRef below) taking a System value; both
// Runtime and the unexported tracker type satisfy it.
type System interface {
	fork(ctx context.Context) (System, *limiter.Ticket, error)
	forkId() revision.ForkId
	engine() *Runtime
	trackDep(dep depgraph.Dep)
}

// QueryType is the constraint a query type must satisfy: usable as a
// map key, and able to compute its own output given a System to issue
// sub-queries against.
type QueryType[O any] interface {
	comparable
	Calc(ctx context.Context, sys System) O
}

// CycleBreaker lets a query type supply a placeholder output instead of
// panicking when the engine detects that it transitively demands
// itself. Detected via a type assertion on the query value at
// cycle-detection time, not required by QueryType itself, since most
// query types have no sensible placeholder.
type CycleBreaker[O any] interface {
	OnCycle() O
}

// Input is an embeddable marker for query types whose value is written
// directly via SetInput rather than computed. Its Calc exists only as a
// fallback for a query consulted before ever being set, mirroring the
// blanket Query impl for Input types in the source this engine is
// based on: it returns the zero value rather than panicking.
type Input[O any] struct{}

// Calc returns the zero value of O. Real input values come from
// SetInput, not from this method; it only runs if the input is queried
// before it has ever been set.
func (Input[O]) Calc(context.Context, System) O {
	var zero O
	return zero
}

// evalSystem is a plain evaluation lineage with a fixed ForkId and no
// dependency recording, handed out by Runtime.Fork and used as the
// handle ForkAndRun spawns independent concurrent work under.
type evalSystem struct {
	rt *Runtime
	id revision.ForkId
}

// fork mints a fresh ForkId for the next query consultation made against
// e, drawing no Ticket from the Runtime's pool. Ticket-bounded
// concurrency is reserved for the two places a genuinely independent
// evaluation lineage is actually spawned — Runtime.Fork and ForkAndRun —
// both of which call Runtime.fork directly rather than through this
// method; see tracker.fork for the matching nested-call rationale.
func (e *evalSystem) fork(context.Context) (System, *limiter.Ticket, error) {
	return &evalSystem{rt: e.rt, id: revision.NewForkId()}, &limiter.Ticket{}, nil
}
func (e *evalSystem) forkId() revision.ForkId { return e.id }
func (e *evalSystem) engine() *Runtime        { return e.rt }
func (e *evalSystem) trackDep(depgraph.Dep)   {}

// tracker is the per-evaluation façade from spec.md §4.6: it wraps a
// fork of the Runtime and an append-only dependency list. Its fork is
// the "non-incrementing variant" from spec.md §5 — every sub-query made
// while running one Calc invocation shares the tracker's own ForkId, so
// mutual sub-queries on the same tracking lineage can still detect a
// cycle against each other.
type tracker struct {
	rt *Runtime
	id revision.ForkId

	mu   sync.Mutex
	deps []depgraph.Dep
}

func newTracker(rt *Runtime, id revision.ForkId) *tracker {
	return &tracker{rt: rt, id: id}
}

// fork returns this same tracker, drawing no Ticket from the Runtime's
// pool: WithConcurrency bounds how many genuinely independent forked
// lineages may run at once (Runtime.Fork, ForkAndRun), not how many
// nested or cached Query/QueryRef calls one Calc invocation happens to
// make on its way down a dependency chain. Query still calls fork on
// every consultation to get a System to recurse with, so a chain of
// depth D synchronously calling into itself D times must not hold D
// tickets at once — that starves WithConcurrency(n) the moment any
// dependency chain runs deeper than n, since the outer tickets are held
// across the entire inner Calc via defer. The zero-value Ticket Release
// is a no-op, matching the nil-pool branch of limiter.Pool.Acquire.
func (t *tracker) fork(context.Context) (System, *limiter.Ticket, error) {
	return t, &limiter.Ticket{}, nil
}

func (t *tracker) forkId() revision.ForkId { return t.id }
func (t *tracker) engine() *Runtime        { return t.rt }

func (t *tracker) trackDep(dep depgraph.Dep) {
	t.mu.Lock()
	t.deps = append(t.deps, dep)
	t.mu.Unlock()
}

// into consumes the tracker's recorded dependencies. Ordering is the
// order of first consultation, preserved since trackDep only appends.
func (t *tracker) into() []depgraph.Dep {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.deps
}
