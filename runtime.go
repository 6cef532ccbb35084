package guacamole

import (
	"context"
	"reflect"
	"sync"

	"github.com/frondeus/guacamole/internal/depgraph"
	"github.com/frondeus/guacamole/internal/revision"
	"github.com/frondeus/guacamole/limiter"
	"github.com/frondeus/guacamole/log"
)

// Runtime is guacamole's orchestrator: the heterogeneous storage table
// (spec.md §4.5), the shared revision clock, the bounded-parallelism
// pool that Fork and ForkAndRun draw a Ticket from, and the cancellation
// registry SetInput drains on every input change.
type Runtime struct {
	mu     sync.RWMutex
	tables map[reflect.Type]table

	clock *revision.Clock
	pool  *limiter.Pool
	log   log.Logger

	selfID revision.ForkId

	cancelMu     sync.Mutex
	cancels      map[uint64]context.CancelCauseFunc
	nextCancelID uint64
}

// Option configures a Runtime at construction.
type Option func(*Runtime)

// WithLogger sets the Logger a Runtime reports debug trace points to.
// The default is log.Discard.
func WithLogger(l log.Logger) Option {
	return func(rt *Runtime) { rt.log = l }
}

// WithConcurrency bounds how many forked evaluation lineages may run at
// once. n <= 0 (the default) means unbounded.
func WithConcurrency(n int) Option {
	return func(rt *Runtime) { rt.pool = limiter.New(n) }
}

// New constructs an empty Runtime.
func New(opts ...Option) *Runtime {
	rt := &Runtime{
		tables:  make(map[reflect.Type]table),
		clock:   &revision.Clock{},
		pool:    limiter.New(0),
		log:     log.Discard,
		cancels: make(map[uint64]context.CancelCauseFunc),
		selfID:  revision.NewForkId(),
	}
	for _, opt := range opts {
		opt(rt)
	}
	return rt
}

func (rt *Runtime) fork(ctx context.Context) (System, *limiter.Ticket, error) {
	ticket, err := rt.pool.Acquire(ctx)
	if err != nil {
		return nil, nil, err
	}
	return &evalSystem{rt: rt, id: revision.NewForkId()}, ticket, nil
}

func (rt *Runtime) forkId() revision.ForkId { return rt.selfID }
func (rt *Runtime) engine() *Runtime        { return rt }
func (rt *Runtime) trackDep(depgraph.Dep)   {}

// CurrentRev reports the Runtime's current revision without advancing
// it.
func (rt *Runtime) CurrentRev() revision.Revision {
	return rt.clock.Current()
}

// Fork hands the caller a raw evaluation lineage sharing this Runtime's
// storage, clock, and cancellation registry, along with a context that
// SetInput can cancel and a func to release the lineage's concurrency
// ticket and unregister the cancellation. Callers that spawn their own
// goroutines to run concurrent sub-computations should use this, or the
// higher-level ForkAndRun.
func (rt *Runtime) Fork(ctx context.Context) (System, context.Context, context.CancelFunc, error) {
	cctx, unregister := rt.registerCancel(ctx)
	sys, ticket, err := rt.fork(cctx)
	if err != nil {
		unregister()
		return nil, nil, nil, err
	}
	cancel := func() {
		unregister()
		ticket.Release()
	}
	return sys, cctx, cancel, nil
}

// ForkResult is the outcome ForkAndRun delivers on its result channel.
type ForkResult[O any] struct {
	Value O
	Err   error
}

// ForkAndRun spawns fn on a goroutine under a fresh fork and a bounded
// concurrency ticket, returning a channel that receives its result (or
// the cancellation cause, if SetInput aborts it first). This gives
// callers the fan-out pattern the source's test suite hand-writes with
// system.fork(|system| Task::spawn(...)) without repeating the
// goroutine-plus-channel boilerplate at every call site.
//
// This always forks off sys.engine(), never off sys directly: sys may be
// a tracker mid-Calc, whose own fork() deliberately returns itself
// unchanged (the non-incrementing variant Query's internal per-call fork
// relies on for self-cycle detection, spec.md §5). Spawning a
// concurrent sibling task needs the opposite — a genuinely fresh
// ForkId — so that two such siblings racing to demand the same cell see
// each other as benign contention rather than a cycle.
func ForkAndRun[O any](ctx context.Context, sys System, fn func(System) (O, error)) <-chan ForkResult[O] {
	out := make(chan ForkResult[O], 1)

	lineage, ticket, err := sys.engine().fork(ctx)
	if err != nil {
		var zero O
		out <- ForkResult[O]{Value: zero, Err: err}
		close(out)
		return out
	}

	go func() {
		defer close(out)
		defer ticket.Release()
		value, err := fn(lineage)
		out <- ForkResult[O]{Value: value, Err: err}
	}()
	return out
}

func (rt *Runtime) registerCancel(ctx context.Context) (context.Context, func()) {
	cctx, cancel := context.WithCancelCause(ctx)
	rt.cancelMu.Lock()
	id := rt.nextCancelID
	rt.nextCancelID++
	rt.cancels[id] = cancel
	rt.cancelMu.Unlock()

	return cctx, func() {
		rt.cancelMu.Lock()
		delete(rt.cancels, id)
		rt.cancelMu.Unlock()
	}
}

// cancelAll signals every registered in-flight computation's
// cancellation cause with ErrInputChanged, per spec.md §5: set_input
// must abort outstanding evaluations before writing the new value.
func (rt *Runtime) cancelAll() {
	rt.cancelMu.Lock()
	cancels := make([]context.CancelCauseFunc, 0, len(rt.cancels))
	for _, c := range rt.cancels {
		cancels = append(cancels, c)
	}
	rt.cancelMu.Unlock()

	for _, cancel := range cancels {
		cancel(ErrInputChanged)
	}
}

// SetInput writes key's value directly as a Calculated cell at a freshly
// minted revision, first aborting any in-flight computation so no
// stale evaluation can race the new value into storage. Go forbids
// generic methods, so this is a free function, like Query and QueryRef.
// Concurrent SetInput calls are serialized by the heterogeneous table's
// write lock.
func SetInput[Q QueryType[O], O comparable](rt *Runtime, key Q, value O) {
	tbl := tableFor[Q, O](rt)

	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.cancelAll()
	rev := rt.clock.Next()

	slot, holder, _ := tbl.typed.Reserve(key, rt.selfID, rev)
	tbl.typed.InsertCalculated(slot, value, rev, nil)
	holder.Release()

	rt.log.Debug("set_input", "query", reflect.TypeOf(key), "rev", rev)
}

// QueryRev reports the revision stamped on key's cell, if it has one.
func QueryRev[Q QueryType[O], O comparable](rt *Runtime, key Q) (revision.Revision, bool) {
	tbl := tableFor[Q, O](rt)
	_, slot, ok := tbl.typed.Get(key)
	if !ok {
		return 0, false
	}
	return tbl.typed.DepRev(slot)
}
