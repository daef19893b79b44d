package graph

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smallnest/stategraph/store"
	"github.com/smallnest/stategraph/store/memory"
)

// reviewGraph is draft -> review -> publish where review asks for approval.
func reviewGraph(t *testing.T, reviews *atomic.Int32) *CompiledGraph {
	t.Helper()

	schema := nlistSchema().AddField("approved", nil, nil)
	g := NewStateGraph(schema)
	require.NoError(t, g.AddNode("draft", emit("draft")))
	require.NoError(t, g.AddNode("review", func(ctx context.Context, _ State) (Result, error) {
		reviews.Add(1)
		answer, err := Interrupt(ctx, "approve?")
		if err != nil {
			return Result{}, err
		}
		return Update(State{"approved": answer, "nlist": "reviewed"}), nil
	}))
	require.NoError(t, g.AddNode("publish", emit("published")))
	require.NoError(t, g.SetEntryPoint("draft"))
	require.NoError(t, g.AddEdge("draft", "review"))
	require.NoError(t, g.AddEdge("review", "publish"))
	require.NoError(t, g.SetFinishPoint("publish"))

	compiled, err := g.Compile(quiet(), WithCheckpointer(memory.NewMemoryCheckpointStore()))
	require.NoError(t, err)
	return compiled
}

func sources(history []*StateSnapshot) []any {
	out := make([]any, 0, len(history))
	for _, s := range history {
		out = append(out, s.Metadata["source"])
	}
	return out
}

func TestThread_Checkpoints(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	compiled := fanOutGraph(t, WithCheckpointer(memory.NewMemoryCheckpointStore()))

	config := &Config{ThreadID: "t1", Metadata: map[string]any{"user": "u1"}}
	out, err := compiled.Invoke(ctx, State{"nlist": []string{"Initial String:"}}, config)
	require.NoError(t, err)
	assert.NotEmpty(t, out.CheckpointID)

	history, err := compiled.History(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, history, 4)

	assert.Equal(t, []any{"input", "loop", "loop", "loop"}, sources(history))
	assert.Equal(t, [][]string{{"a"}, {"b", "c"}, {"d"}}, [][]string{
		history[0].Next, history[1].Next, history[2].Next,
	})
	assert.Empty(t, history[3].Next)
	for i, s := range history {
		assert.Equal(t, i+1, s.Version)
		assert.Equal(t, i, s.Step)
		assert.Equal(t, "u1", s.Metadata["user"])
	}
	assert.Equal(t, out.CheckpointID, history[3].CheckpointID)
	assert.Equal(t, []string{"Initial String:", "A"}, history[1].Values["nlist"])

	snapshot, err := compiled.GetState(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, out.State, snapshot.Values)
	assert.Empty(t, snapshot.Interrupts)

	// a finished thread is returned as is
	again, err := compiled.Invoke(ctx, nil, WithThreadID("t1"))
	require.NoError(t, err)
	assert.Equal(t, out.State, again.State)
	history, err = compiled.History(ctx, "t1")
	require.NoError(t, err)
	assert.Len(t, history, 4)
}

func TestThread_MemoryAcrossInvocations(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	g := NewStateGraph(nlistSchema())
	require.NoError(t, g.AddNode("reply", emit("reply")))
	require.NoError(t, g.SetEntryPoint("reply"))
	compiled, err := g.Compile(quiet(), WithCheckpointer(memory.NewMemoryCheckpointStore()))
	require.NoError(t, err)

	_, err = compiled.Invoke(ctx, State{"nlist": "hi"}, WithThreadID("alice"))
	require.NoError(t, err)
	_, err = compiled.Invoke(ctx, State{"nlist": "hello"}, WithThreadID("bob"))
	require.NoError(t, err)
	out, err := compiled.Invoke(ctx, State{"nlist": "again"}, WithThreadID("alice"))
	require.NoError(t, err)

	assert.Equal(t, []string{"hi", "reply", "again", "reply"}, out.State["nlist"])
	assert.Equal(t, 2, out.Step)

	bob, err := compiled.GetState(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, []string{"hello", "reply"}, bob.Values["nlist"])
}

func TestThread_ConcurrentThreads(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	compiled := fanOutGraph(t, WithCheckpointer(memory.NewMemoryCheckpointStore()))

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := fmt.Sprintf("thread-%d", i)
			_, errs[i] = compiled.Invoke(ctx, State{"nlist": []string{id}}, WithThreadID(id))
		}()
	}
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err)
		id := fmt.Sprintf("thread-%d", i)
		snapshot, err := compiled.GetState(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, []string{id, "A", "B", "C", "D"}, snapshot.Values["nlist"])
		assert.Equal(t, 4, snapshot.Version)
	}
}

func TestThread_Errors(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	g := NewStateGraph(nil)
	require.NoError(t, g.AddNode("a", noop))
	require.NoError(t, g.SetEntryPoint("a"))

	stateless, err := g.Compile(quiet())
	require.NoError(t, err)
	_, err = stateless.Invoke(ctx, nil, WithThreadID("t"))
	assert.ErrorIs(t, err, ErrNoCheckpointer)
	_, err = stateless.History(ctx, "t")
	assert.ErrorIs(t, err, ErrNoCheckpointer)

	compiled, err := g.Compile(quiet(), WithCheckpointer(memory.NewMemoryCheckpointStore()))
	require.NoError(t, err)

	_, err = compiled.Resume(ctx, "x", nil)
	assert.ErrorIs(t, err, ErrThreadRequired)
	_, err = compiled.GetState(ctx, "")
	assert.ErrorIs(t, err, ErrThreadRequired)
	_, err = compiled.History(ctx, "")
	assert.ErrorIs(t, err, ErrThreadRequired)
	_, err = compiled.UpdateState(ctx, "", State{})
	assert.ErrorIs(t, err, ErrThreadRequired)

	_, err = compiled.GetState(ctx, "nobody")
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = compiled.UpdateState(ctx, "nobody", State{"a": 1})
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = compiled.Resume(ctx, "x", WithThreadID("nobody"))
	assert.ErrorIs(t, err, ErrNoPendingInterrupt)

	_, err = compiled.Invoke(ctx, nil, WithThreadID("done"))
	require.NoError(t, err)
	_, err = compiled.Resume(ctx, "x", WithThreadID("done"))
	assert.ErrorIs(t, err, ErrNoPendingInterrupt)
}

func TestThread_RetryAfterFailure(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	var healthy atomic.Bool

	g := NewStateGraph(nlistSchema())
	require.NoError(t, g.AddNode("a", emit("A")))
	require.NoError(t, g.AddNode("b", func(context.Context, State) (Result, error) {
		if !healthy.Load() {
			return Result{}, fmt.Errorf("service unavailable")
		}
		return Update(State{"nlist": "B"}), nil
	}))
	require.NoError(t, g.SetEntryPoint("a"))
	require.NoError(t, g.AddEdge("a", "b"))
	compiled, err := g.Compile(quiet(), WithCheckpointer(memory.NewMemoryCheckpointStore()))
	require.NoError(t, err)

	_, err = compiled.Invoke(ctx, nil, WithThreadID("t"))
	var nodeErr *NodeExecutionError
	require.ErrorAs(t, err, &nodeErr)
	assert.Equal(t, "b", nodeErr.Node)

	// the failed step left no checkpoint
	snapshot, err := compiled.GetState(ctx, "t")
	require.NoError(t, err)
	assert.Equal(t, 2, snapshot.Version)
	assert.Equal(t, []string{"b"}, snapshot.Next)
	assert.Equal(t, []string{"A"}, snapshot.Values["nlist"])

	healthy.Store(true)
	out, err := compiled.Invoke(ctx, nil, WithThreadID("t"))
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, out.State["nlist"])
}

func TestThread_UpdateState(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	var reviews atomic.Int32
	compiled := reviewGraph(t, &reviews)
	config := WithThreadID("doc")

	out, err := compiled.Invoke(ctx, State{"nlist": []string{"topic"}}, config)
	require.NoError(t, err)
	require.True(t, out.Paused())

	snapshot, err := compiled.UpdateState(ctx, "doc", State{"nlist": "edited"})
	require.NoError(t, err)
	assert.Equal(t, []string{"topic", "draft", "edited"}, snapshot.Values["nlist"])
	assert.Equal(t, []string{"review"}, snapshot.Next)
	assert.Equal(t, []InterruptInfo{{Node: "review", Value: "approve?"}}, snapshot.Interrupts)
	assert.Equal(t, "update", snapshot.Metadata["source"])

	out, err = compiled.Resume(ctx, "yes", config)
	require.NoError(t, err)
	assert.Equal(t, []string{"topic", "draft", "edited", "reviewed", "published"}, out.State["nlist"])

	var schemaErr *SchemaError
	_, err = compiled.UpdateState(ctx, "doc", State{"bogus": 1})
	assert.ErrorAs(t, err, &schemaErr)
}
