package graph

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smallnest/stategraph/log"
)

func noop(context.Context, State) (Result, error) {
	return Update(nil), nil
}

func quiet() CompileOption {
	return WithLogger(&log.NoOpLogger{})
}

func TestStateGraph_AddNode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		build func(g *StateGraph) error
		check func(t *testing.T, err error)
	}{
		{
			name: "duplicate",
			build: func(g *StateGraph) error {
				require.NoError(t, g.AddNode("a", noop))
				return g.AddNode("a", noop)
			},
			check: func(t *testing.T, err error) {
				var dup *DuplicateNodeError
				require.ErrorAs(t, err, &dup)
				assert.Equal(t, "a", dup.Node)
			},
		},
		{
			name:  "reserved start",
			build: func(g *StateGraph) error { return g.AddNode(START, noop) },
			check: func(t *testing.T, err error) {
				var dup *DuplicateNodeError
				require.ErrorAs(t, err, &dup)
				assert.Contains(t, err.Error(), "reserved")
			},
		},
		{
			name:  "reserved end",
			build: func(g *StateGraph) error { return g.AddNode(END, noop) },
			check: func(t *testing.T, err error) {
				var dup *DuplicateNodeError
				assert.ErrorAs(t, err, &dup)
			},
		},
		{
			name:  "empty name",
			build: func(g *StateGraph) error { return g.AddNode("", noop) },
			check: func(t *testing.T, err error) { assert.Error(t, err) },
		},
		{
			name:  "nil function",
			build: func(g *StateGraph) error { return g.AddNode("a", nil) },
			check: func(t *testing.T, err error) { assert.Error(t, err) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewStateGraph(nil)
			err := tt.build(g)
			tt.check(t, err)

			// Compile reports the first construction error again.
			_, compileErr := g.Compile(quiet())
			assert.Equal(t, err, compileErr)
		})
	}
}

func TestStateGraph_AddEdge(t *testing.T) {
	t.Parallel()

	g := NewStateGraph(nil)
	require.NoError(t, g.AddNode("a", noop))

	var unknown *UnknownNodeError
	err := g.AddEdge("a", "missing")
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "missing", unknown.Node)

	assert.ErrorAs(t, g.AddEdge("missing", "a"), &unknown)
	assert.ErrorAs(t, g.AddEdge(END, "a"), &unknown)
	assert.ErrorAs(t, g.AddEdge("a", START), &unknown)
	assert.ErrorAs(t, g.AddConditionalEdge("missing", func(context.Context, State) string { return END }), &unknown)
	assert.Error(t, g.AddConditionalEdge("a", nil))

	_, compileErr := g.Compile(quiet())
	assert.Equal(t, err, compileErr, "the first error wins")
}

func TestStateGraph_Compile(t *testing.T) {
	t.Parallel()

	t.Run("no entry point", func(t *testing.T) {
		g := NewStateGraph(nil)
		require.NoError(t, g.AddNode("a", noop))
		_, err := g.Compile(quiet())
		assert.ErrorIs(t, err, ErrNoEntryPoint)
	})

	t.Run("unknown conditional destination", func(t *testing.T) {
		g := NewStateGraph(nil)
		require.NoError(t, g.AddNode("a", noop))
		require.NoError(t, g.SetEntryPoint("a"))
		require.NoError(t, g.AddConditionalEdge("a", func(context.Context, State) string { return "ghost" }, "ghost"))

		_, err := g.Compile(quiet())
		var unknown *UnknownNodeError
		require.ErrorAs(t, err, &unknown)
		assert.Equal(t, "ghost", unknown.Node)
	})

	t.Run("unknown goto destination", func(t *testing.T) {
		g := NewStateGraph(nil)
		require.NoError(t, g.AddNode("a", noop, "ghost"))
		require.NoError(t, g.SetEntryPoint("a"))

		_, err := g.Compile(quiet())
		var unknown *UnknownNodeError
		require.ErrorAs(t, err, &unknown)
		assert.Equal(t, "ghost", unknown.Node)
	})

	t.Run("unreachable node", func(t *testing.T) {
		g := NewStateGraph(nil)
		require.NoError(t, g.AddNode("a", noop))
		require.NoError(t, g.AddNode("island", noop))
		require.NoError(t, g.AddNode("b", noop))
		require.NoError(t, g.SetEntryPoint("a"))
		require.NoError(t, g.AddEdge("b", "a"))

		_, err := g.Compile(quiet())
		var unreachable *UnreachableNodeError
		require.ErrorAs(t, err, &unreachable)
		assert.Equal(t, "island", unreachable.Node, "reported in registration order")
	})

	t.Run("goto destinations count as reachable", func(t *testing.T) {
		g := NewStateGraph(nil)
		require.NoError(t, g.AddNode("a", noop, "b"))
		require.NoError(t, g.AddNode("b", noop))
		require.NoError(t, g.SetEntryPoint("a"))

		_, err := g.Compile(quiet())
		assert.NoError(t, err)
	})

	t.Run("no termination is a warning", func(t *testing.T) {
		g := NewStateGraph(nil)
		require.NoError(t, g.AddNode("a", noop))
		require.NoError(t, g.AddNode("b", noop))
		require.NoError(t, g.SetEntryPoint("a"))
		require.NoError(t, g.AddEdge("a", "b"))
		require.NoError(t, g.AddEdge("b", "a"))

		_, err := g.Compile(quiet())
		assert.NoError(t, err)

		_, err = g.Compile(quiet(), WithStrictTermination())
		var noTerm *NoTerminationError
		assert.ErrorAs(t, err, &noTerm)
	})

	t.Run("router exit terminates", func(t *testing.T) {
		g := NewStateGraph(nil)
		require.NoError(t, g.AddNode("a", noop))
		require.NoError(t, g.AddNode("b", noop))
		require.NoError(t, g.SetEntryPoint("a"))
		require.NoError(t, g.AddEdge("a", "b"))
		require.NoError(t, g.AddConditionalEdge("b", func(context.Context, State) string { return "a" }, "a"))

		_, err := g.Compile(quiet(), WithStrictTermination())
		assert.NoError(t, err)
	})

	t.Run("compiled graph is frozen", func(t *testing.T) {
		g := NewStateGraph(nil)
		require.NoError(t, g.AddNode("a", func(context.Context, State) (Result, error) {
			return Update(State{"ran": "a"}), nil
		}))
		require.NoError(t, g.SetEntryPoint("a"))
		compiled, err := g.Compile(quiet())
		require.NoError(t, err)

		require.NoError(t, g.AddNode("b", func(context.Context, State) (Result, error) {
			return Update(State{"ran": "b"}), nil
		}))
		require.NoError(t, g.AddEdge("a", "b"))

		out, err := compiled.Invoke(context.Background(), nil, nil)
		require.NoError(t, err)
		assert.Equal(t, "a", out.State["ran"])
	})
}

func TestErrors(t *testing.T) {
	t.Parallel()

	cause := errors.New("boom")
	nodeErr := &NodeExecutionError{Node: "a", Cause: cause}
	assert.ErrorIs(t, nodeErr, cause)
	assert.Equal(t, "error in node a: boom", nodeErr.Error())

	limitErr := &StepLimitError{Limit: 3}
	assert.ErrorIs(t, limitErr, ErrStepLimitExceeded)
	assert.Contains(t, limitErr.Error(), "3")

	assert.Contains(t, (&RoutingError{From: "a"}).Error(), "no destination")
	assert.Contains(t, (&RoutingError{From: "a", Destination: "x"}).Error(), `"x"`)
	assert.Contains(t, (&UnknownNodeError{Node: "x"}).Error(), `"x"`)
}
