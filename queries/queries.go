// Package queries collects a handful of small demonstration query
// types, consumed by the cmd/guacamole CLI and exercised directly by
// integration tests. Nothing in the core engine imports this package;
// it exists purely to give guacamole.Query/guacamole.Input a concrete,
// runnable example the way _examples/original_source/examples/raven_count.rs
// does for the source engine.
package queries

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/frondeus/guacamole"
)

// Text is the raw source document every other query in this package
// ultimately derives from. Its value is written with guacamole.SetInput,
// never computed.
type Text struct {
	guacamole.Input[string]
}

// Lines splits Text into its trimmed, non-empty lines.
type Lines struct{}

func (Lines) Calc(ctx context.Context, sys guacamole.System) []string {
	text, err := guacamole.QueryRef[Text, string](ctx, sys, Text{})
	if err != nil {
		return nil
	}

	var lines []string
	for _, line := range strings.Split(*text, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// RavenCount counts case-sensitive, non-overlapping occurrences of the
// substring "Raven" across Lines, scanning one line at a time (a match
// cannot span a line break).
type RavenCount struct{}

const needle = "Raven"

func (RavenCount) Calc(ctx context.Context, sys guacamole.System) int {
	lines, err := guacamole.QueryRef[Lines, []string](ctx, sys, Lines{})
	if err != nil {
		return 0
	}

	count := 0
	for _, line := range *lines {
		count += strings.Count(line, needle)
	}
	return count
}

// Add is a parameterized arithmetic query: two Add values with
// different A or B occupy distinct storage slots, so changing either
// parameter forces a fresh computation while an unchanged pair reuses
// the memoized result.
type Add struct {
	A, B int
}

func (a Add) Calc(context.Context, guacamole.System) string {
	return strconv.Itoa(a.A) + " + " + strconv.Itoa(a.B) + " = " + fmt.Sprint(a.A+a.B)
}
