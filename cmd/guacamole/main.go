// Command guacamole is a small demonstrator for the incremental query
// engine: it loads a document (inline or from a file), computes a
// couple of derived queries over it, prints their results, then edits
// the document and re-queries it; with --verbose it also logs each
// input write and full recomputation. It exists to
// give guacamole.Query/guacamole.SetInput a runnable example, mirroring
// _examples/original_source/examples/raven_count.rs's main().
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	flag "github.com/spf13/pflag"

	"github.com/frondeus/guacamole"
	"github.com/frondeus/guacamole/log"
	"github.com/frondeus/guacamole/queries"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, out, errOut *os.File) int {
	flagSet := flag.NewFlagSet("guacamole", flag.ContinueOnError)
	flagSet.SetOutput(errOut)

	text := flagSet.String("text", "Foo\nRaven flew over the Raven's nest\nFoo", "inline source document")
	file := flagSet.String("file", "", "read the source document from this file instead of --text")
	workers := flagSet.Int("workers", 0, "bound how many forked lineages may evaluate concurrently (0 = unbounded)")
	verbose := flagSet.Bool("verbose", false, "log every input write and full recomputation (reservations and early cutoffs are not logged)")

	if err := flagSet.Parse(args); err != nil {
		return 2
	}

	body := *text
	if *file != "" {
		data, err := os.ReadFile(*file)
		if err != nil {
			fmt.Fprintln(errOut, "error:", err)
			return 1
		}
		body = string(data)
	}

	runID := uuid.New()
	logger := log.Discard
	if *verbose {
		logger = log.New(out)
	}

	rt := guacamole.New(guacamole.WithLogger(logger), guacamole.WithConcurrency(*workers))
	guacamole.SetInput[queries.Text, string](rt, queries.Text{}, body)

	sys, ctx, cancel, err := rt.Fork(context.Background())
	if err != nil {
		fmt.Fprintln(errOut, "error:", err)
		return 1
	}
	defer cancel()

	if err := report(ctx, out, runID, sys); err != nil {
		fmt.Fprintln(errOut, "error:", err)
		return 1
	}

	// Editing the document invalidates RavenCount's dependency chain;
	// re-running the same queries demonstrates the recompute/cutoff path.
	guacamole.SetInput[queries.Text, string](rt, queries.Text{}, body+"\nOne more Raven, for luck")
	sys, ctx, cancel, err = rt.Fork(context.Background())
	if err != nil {
		fmt.Fprintln(errOut, "error:", err)
		return 1
	}
	defer cancel()

	return boolToCode(report(ctx, out, runID, sys) == nil)
}

func report(ctx context.Context, out *os.File, runID uuid.UUID, sys guacamole.System) error {
	lines, err := guacamole.Query[queries.Lines, []string](ctx, sys, queries.Lines{})
	if err != nil {
		return err
	}
	ravens, err := guacamole.Query[queries.RavenCount, int](ctx, sys, queries.RavenCount{})
	if err != nil {
		return err
	}
	sum, err := guacamole.Query[queries.Add, string](ctx, sys, queries.Add{A: len(lines), B: ravens})
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "[%s] lines=%d ravens=%d lines+ravens=%s\n", runID, len(lines), ravens, sum)
	return nil
}

func boolToCode(ok bool) int {
	if ok {
		return 0
	}
	return 1
}
