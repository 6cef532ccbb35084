package depgraph

import (
	"fmt"

	"github.com/frondeus/guacamole/internal/revision"
)

// kind discriminates the three Invalidation variants from spec.md §4.3.
type kind uint8

const (
	kindFresh kind = iota
	kindRevisioned
	kindOutdated
)

// Invalidation is the three-valued summary a bottom-up walk over a
// dependency subtree folds towards: Fresh (nothing moved), Revisioned
// (something moved but re-evaluated to an equal value: early cutoff),
// or Outdated (something moved and produced a genuinely different
// value, so the parent must recompute). Outdated dominates Revisioned
// dominates Fresh; among same-kind values the higher revision wins,
// ties broken toward the right-hand operand of Combine. See
// original_source/src/invalidation.rs for the rule table this ports.
type Invalidation struct {
	k   kind
	rev revision.Revision
	idx DepIdx
}

// Fresh constructs the Fresh variant: the dependency subtree is
// unchanged.
func Fresh() Invalidation { return Invalidation{k: kindFresh} }

// Revisioned constructs the Revisioned variant: a dependency's revision
// moved to rev (caused by the cell named by idx), but its output value
// did not change (early cutoff).
func Revisioned(rev revision.Revision, idx DepIdx) Invalidation {
	return Invalidation{k: kindRevisioned, rev: rev, idx: idx}
}

// Outdated constructs the Outdated variant: a dependency's revision
// moved to rev (caused by idx) and its output value changed, so whatever
// consulted it must recompute.
func Outdated(rev revision.Revision, idx DepIdx) Invalidation {
	return Invalidation{k: kindOutdated, rev: rev, idx: idx}
}

// IsFresh reports whether this is the Fresh variant.
func (inv Invalidation) IsFresh() bool { return inv.k == kindFresh }

// IsOutdated reports whether this is the Outdated variant.
func (inv Invalidation) IsOutdated() bool { return inv.k == kindOutdated }

// IsRevisioned reports whether this is the Revisioned variant.
func (inv Invalidation) IsRevisioned() bool { return inv.k == kindRevisioned }

// Revision and Idx are only meaningful for the non-Fresh variants; they
// name the revision the subtree moved to and the cell that caused it.
func (inv Invalidation) Revision() revision.Revision { return inv.rev }
func (inv Invalidation) Idx() DepIdx                 { return inv.idx }

func (inv Invalidation) String() string {
	switch inv.k {
	case kindOutdated:
		return fmt.Sprintf("Outdated(%s, %s)", inv.rev, inv.idx)
	case kindRevisioned:
		return fmt.Sprintf("Revisioned(%s, %s)", inv.rev, inv.idx)
	default:
		return "Fresh"
	}
}

// Combine folds two Invalidation values into one: Outdated dominates
// Revisioned dominates Fresh, and among equal-kind non-Fresh values the
// higher revision wins. The resulting kind and revision do not depend on
// operand order; on an exact tie b is returned, so the reported Idx does.
// A post-order walk over a dependency forest folds Combine over a
// node's children to summarize the whole subtree in one pass.
func Combine(a, b Invalidation) Invalidation {
	if a.k == kindOutdated || b.k == kindOutdated {
		switch {
		case a.k == kindOutdated && b.k != kindOutdated:
			return a
		case b.k == kindOutdated && a.k != kindOutdated:
			return b
		default: // both Outdated: a wins only if strictly newer, ties go to b
			if b.rev.Less(a.rev) {
				return a
			}
			return b
		}
	}
	if a.k == kindRevisioned || b.k == kindRevisioned {
		switch {
		case a.k == kindRevisioned && b.k != kindRevisioned:
			return a
		case b.k == kindRevisioned && a.k != kindRevisioned:
			return b
		default: // both Revisioned: a wins only if strictly newer, ties go to b
			if b.rev.Less(a.rev) {
				return a
			}
			return b
		}
	}
	return Fresh()
}

// CombineAll folds Combine across zero or more values, starting from
// Fresh (Combine's identity element).
func CombineAll(invs ...Invalidation) Invalidation {
	acc := Fresh()
	for _, inv := range invs {
		acc = Combine(acc, inv)
	}
	return acc
}
