package depgraph

import "testing"

func TestCombineDominance(t *testing.T) {
	outdated := Outdated(5, idx(0))
	revisioned := Revisioned(5, idx(1))
	fresh := Fresh()

	if got := Combine(outdated, revisioned); !got.IsOutdated() {
		t.Fatalf("Outdated+Revisioned = %v, want Outdated", got)
	}
	if got := Combine(revisioned, outdated); !got.IsOutdated() {
		t.Fatalf("Revisioned+Outdated = %v, want Outdated", got)
	}
	if got := Combine(outdated, fresh); !got.IsOutdated() {
		t.Fatalf("Outdated+Fresh = %v, want Outdated", got)
	}
	if got := Combine(revisioned, fresh); !got.IsRevisioned() {
		t.Fatalf("Revisioned+Fresh = %v, want Revisioned", got)
	}
	if got := Combine(fresh, fresh); !got.IsFresh() {
		t.Fatalf("Fresh+Fresh = %v, want Fresh", got)
	}
}

func TestCombineHigherRevisionWins(t *testing.T) {
	lo := Outdated(3, idx(0))
	hi := Outdated(7, idx(1))

	if got := Combine(lo, hi); got.Revision() != 7 || got.Idx() != idx(1) {
		t.Fatalf("Combine(lo, hi) = %v, want revision 7 idx %v", got, idx(1))
	}
	if got := Combine(hi, lo); got.Revision() != 7 || got.Idx() != idx(1) {
		t.Fatalf("Combine(hi, lo) = %v, want revision 7 idx %v", got, idx(1))
	}

	loR := Revisioned(3, idx(0))
	hiR := Revisioned(7, idx(1))
	if got := Combine(loR, hiR); got.Revision() != 7 || got.Idx() != idx(1) {
		t.Fatalf("Combine(loR, hiR) = %v, want revision 7 idx %v", got, idx(1))
	}
	if got := Combine(hiR, loR); got.Revision() != 7 || got.Idx() != idx(1) {
		t.Fatalf("Combine(hiR, loR) = %v, want revision 7 idx %v", got, idx(1))
	}
}

// On an exact revision tie, Combine must pick the right-hand operand —
// this is the behavior original_source/src/invalidation.rs's fallback
// match arm encodes, and the bug this test was written to pin down.
func TestCombineTieGoesToRightOperand(t *testing.T) {
	a := Outdated(5, idx(0))
	b := Outdated(5, idx(1))

	if got := Combine(a, b); got.Idx() != idx(1) {
		t.Fatalf("Combine(a, b) tie = %v, want right operand idx %v", got, idx(1))
	}
	if got := Combine(b, a); got.Idx() != idx(0) {
		t.Fatalf("Combine(b, a) tie = %v, want right operand idx %v", got, idx(0))
	}

	aR := Revisioned(5, idx(0))
	bR := Revisioned(5, idx(1))
	if got := Combine(aR, bR); got.Idx() != idx(1) {
		t.Fatalf("Combine(aR, bR) tie = %v, want right operand idx %v", got, idx(1))
	}
	if got := Combine(bR, aR); got.Idx() != idx(0) {
		t.Fatalf("Combine(bR, aR) tie = %v, want right operand idx %v", got, idx(0))
	}
}

func TestCombineAll(t *testing.T) {
	if got := CombineAll(); !got.IsFresh() {
		t.Fatalf("CombineAll() = %v, want Fresh", got)
	}

	got := CombineAll(Fresh(), Revisioned(2, idx(0)), Outdated(4, idx(1)), Revisioned(6, idx(2)))
	if !got.IsOutdated() || got.Revision() != 4 {
		t.Fatalf("CombineAll(...) = %v, want Outdated at revision 4", got)
	}
}
