package queries_test

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/frondeus/guacamole"
	"github.com/frondeus/guacamole/queries"
)

func TestRavenCountOverMultipleLines(t *testing.T) {
	rt := guacamole.New()
	guacamole.SetInput[queries.Text, string](rt, queries.Text{}, "Foo\n Raven\n Foo Raven Raven")

	sys, ctx, cancel, err := rt.Fork(context.Background())
	require.NoError(t, err)
	defer cancel()

	count, err := guacamole.Query[queries.RavenCount, int](ctx, sys, queries.RavenCount{})
	require.NoError(t, err)
	require.Equal(t, 3, count)
}

func TestRavenCountRepeatedQueryReturnsSameCount(t *testing.T) {
	rt := guacamole.New()
	guacamole.SetInput[queries.Text, string](rt, queries.Text{}, "Raven Raven")

	sys, ctx, cancel, err := rt.Fork(context.Background())
	require.NoError(t, err)
	defer cancel()

	first, err := guacamole.Query[queries.RavenCount, int](ctx, sys, queries.RavenCount{})
	require.NoError(t, err)
	require.Equal(t, 2, first)

	second, err := guacamole.Query[queries.RavenCount, int](ctx, sys, queries.RavenCount{})
	require.NoError(t, err)
	require.Equal(t, 2, second)
}

func TestAddIsKeyedByItsParameters(t *testing.T) {
	rt := guacamole.New()
	sys, ctx, cancel, err := rt.Fork(context.Background())
	require.NoError(t, err)
	defer cancel()

	a, err := guacamole.Query[queries.Add, string](ctx, sys, queries.Add{A: 2, B: 3})
	require.NoError(t, err)
	require.Equal(t, "2 + 3 = 5", a)

	b, err := guacamole.Query[queries.Add, string](ctx, sys, queries.Add{A: 3, B: 2})
	require.NoError(t, err)
	require.Equal(t, "3 + 2 = 5", b)

	again, err := guacamole.Query[queries.Add, string](ctx, sys, queries.Add{A: 2, B: 3})
	require.NoError(t, err)
	require.Equal(t, a, again)
}

func TestLinesDropsBlankLines(t *testing.T) {
	rt := guacamole.New()
	guacamole.SetInput[queries.Text, string](rt, queries.Text{}, "a\n\n  \nb\n")

	sys, ctx, cancel, err := rt.Fork(context.Background())
	require.NoError(t, err)
	defer cancel()

	lines, err := guacamole.Query[queries.Lines, []string](ctx, sys, queries.Lines{})
	require.NoError(t, err)
	if diff := cmp.Diff([]string{"a", "b"}, lines); diff != "" {
		t.Fatalf("Lines mismatch (-want +got):\n%s", diff)
	}
}
