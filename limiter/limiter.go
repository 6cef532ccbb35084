// Package limiter provides the bounded-parallelism pool Runtime.ForkAndRun
// uses to cap how many forked goroutines run a query calculation at once.
//
// The teacher's own concurrency_limiter.go threads a hand-rolled
// chan-struct{} semaphore through context.Context (WithConcurrencyLimiter,
// AcquireGoroutineToken/ReleaseGoroutineToken); this package keeps that
// acquire/release vocabulary but drops the context-keyed lookup in favor
// of an explicit *Pool value Runtime holds directly, backed by
// golang.org/x/sync/semaphore.Weighted — the same dependency the pack's
// other incremental-engine example (bufbuild-protocompile's
// experimental/incremental Executor) uses for an identically shaped
// parallelism bound.
package limiter

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Pool bounds how many Tickets can be held concurrently.
type Pool struct {
	sem *semaphore.Weighted
}

// New creates a Pool that allows up to n concurrently held Tickets. n <= 0
// is treated as unbounded (no semaphore acquired).
func New(n int) *Pool {
	if n <= 0 {
		return &Pool{}
	}
	return &Pool{sem: semaphore.NewWeighted(int64(n))}
}

// Ticket represents one held slot in a Pool. Release returns the slot;
// calling it more than once is a programming error, same as releasing a
// sync.Mutex twice.
type Ticket struct {
	sem *semaphore.Weighted
}

// Acquire blocks until a slot is free or ctx is done, whichever happens
// first.
func (p *Pool) Acquire(ctx context.Context) (*Ticket, error) {
	if p.sem == nil {
		return &Ticket{}, nil
	}
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return &Ticket{sem: p.sem}, nil
}

// Release returns this ticket's slot to the pool.
func (t *Ticket) Release() {
	if t.sem == nil {
		return
	}
	t.sem.Release(1)
}
