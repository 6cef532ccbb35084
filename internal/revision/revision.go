// Package revision implements guacamole's monotone clocks: the global
// Revision counter that stamps input mutations and memoized results, and
// ForkId, which distinguishes concurrent evaluation lineages for cycle
// detection.
//
// Both are thin wrappers around atomic.Uint64. There is no wraparound
// handling: a 64-bit counter does not overflow in practice, and overflow
// would be a programming error rather than a condition to recover from.
package revision

import (
	"fmt"
	"sync/atomic"
)

// Revision is a point on guacamole's global, monotone clock. It orders
// input mutations and stamps the cells computed or revalidated at each
// one.
type Revision uint64

// String renders a Revision the way the source engine's Debug impl does
// ("R1", "R2", ...), which the ported acceptance tests assert against.
func (r Revision) String() string {
	return fmt.Sprintf("R%d", uint64(r))
}

// Less reports whether r precedes other on the clock.
func (r Revision) Less(other Revision) bool { return r < other }

// Clock is a monotone counter shared by a Runtime and every value forked
// from it, so that forks observe a single, consistent revision.
type Clock struct {
	counter atomic.Uint64
}

// Next atomically advances the clock and returns the new revision. Called
// exactly once per SetInput.
func (c *Clock) Next() Revision {
	return Revision(c.counter.Add(1))
}

// Current reads the clock without advancing it.
func (c *Clock) Current() Revision {
	return Revision(c.counter.Load())
}

// ForkId identifies one concurrent evaluation lineage. It exists solely
// to let the engine detect a query that transitively demands itself:
// every sub-query made while one Calc invocation runs shares that
// invocation's ForkId, so a query that re-enters itself within the same
// fork and revision is recognized as a cycle rather than benign
// contention.
type ForkId uint64

func (f ForkId) String() string { return fmt.Sprintf("F%d", uint64(f)) }

// forkCounter is process-global rather than per-Runtime: fork identity
// only needs to be unique among concurrently live forks, and a single
// global counter is simpler than threading a second clock through every
// Runtime value without changing the guarantee.
var forkCounter atomic.Uint64

// NewForkId mints a fresh, previously-unused ForkId.
func NewForkId() ForkId {
	return ForkId(forkCounter.Add(1))
}
