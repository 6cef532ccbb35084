// Package storage holds the generic per-query-type table from spec.md
// §4.4: a key->slot map plus a dense list of cells, each either a
// settled Calculated value or an in-flight Calculating reservation.
//
// This package knows nothing about query evaluation, the System
// interface, or how a query's Calc method gets invoked — that belongs to
// the root package, which type-erases Table[Q, O] behind a narrow
// interface so many differently-typed tables can live in one
// heterogeneous map (spec.md §4.5). Keeping that split means storage
// never needs to import the package that defines System, so the two
// never cycle.
package storage

import (
	"github.com/frondeus/guacamole/internal/depgraph"
	"github.com/frondeus/guacamole/internal/reservation"
	"github.com/frondeus/guacamole/internal/revision"
)

type cellKind uint8

const (
	calculated cellKind = iota
	calculating
)

// cell is one stored query result, always in exactly one of two states.
type cell[O any] struct {
	kind cellKind

	rev  revision.Revision
	deps []depgraph.Dep

	value O

	fork   revision.ForkId
	holder *reservation.Holder
	reader reservation.Reader
}

func calculatedCell[O any](value O, rev revision.Revision, deps []depgraph.Dep) *cell[O] {
	return &cell[O]{kind: calculated, value: value, rev: rev, deps: deps}
}

func calculatingCell[O any](fork revision.ForkId, rev revision.Revision) *cell[O] {
	holder, reader := reservation.New()
	return &cell[O]{kind: calculating, fork: fork, rev: rev, holder: holder, reader: reader}
}

// CellView is a read-only snapshot of a cell, handed across the package
// boundary so callers never hold a pointer into table-internal state.
type CellView[O any] struct {
	Calculating bool
	Rev         revision.Revision
	Deps        []depgraph.Dep
	Value       O
	Fork        revision.ForkId
	Reader      reservation.Reader
}

func (c *cell[O]) view() CellView[O] {
	return CellView[O]{
		Calculating: c.kind == calculating,
		Rev:         c.rev,
		Deps:        c.deps,
		Value:       c.value,
		Fork:        c.fork,
		Reader:      c.reader,
	}
}
