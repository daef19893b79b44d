// Package storetest provides a behavioral test suite shared by every
// store.CheckpointStore backend.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/smallnest/stategraph/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns a fresh, empty store for one subtest.
type Factory func(t *testing.T) store.CheckpointStore

// NewCheckpoint builds a checkpoint with string-only state so it survives any codec.
func NewCheckpoint(threadID, id string, step int) *store.Checkpoint {
	return &store.Checkpoint{
		ID:        id,
		ThreadID:  threadID,
		Step:      step,
		State:     map[string]any{"status": fmt.Sprintf("step-%d", step)},
		Next:      []string{"worker"},
		Metadata:  map[string]any{"source": "loop"},
		Timestamp: time.Now().UTC().Truncate(time.Millisecond),
	}
}

// Run exercises the CheckpointStore contract.
func Run(t *testing.T, newStore Factory) {
	ctx := context.Background()

	t.Run("versions increase per thread", func(t *testing.T) {
		s := newStore(t)
		for i := 1; i <= 3; i++ {
			cp := NewCheckpoint("thread-a", fmt.Sprintf("cp-%d", i), i)
			require.NoError(t, s.Save(ctx, cp))
			assert.Equal(t, i, cp.Version)
		}

		latest, err := s.LoadLatest(ctx, "thread-a")
		require.NoError(t, err)
		assert.Equal(t, "cp-3", latest.ID)
		assert.Equal(t, 3, latest.Version)

		list, err := s.List(ctx, "thread-a")
		require.NoError(t, err)
		require.Len(t, list, 3)
		for i, cp := range list {
			assert.Equal(t, i+1, cp.Version)
			assert.Equal(t, fmt.Sprintf("cp-%d", i+1), cp.ID)
		}
	})

	t.Run("load round trips fields", func(t *testing.T) {
		s := newStore(t)
		cp := NewCheckpoint("thread-a", "cp-1", 4)
		require.NoError(t, s.Save(ctx, cp))

		loaded, err := s.Load(ctx, "cp-1")
		require.NoError(t, err)
		assert.Equal(t, "thread-a", loaded.ThreadID)
		assert.Equal(t, 1, loaded.Version)
		assert.Equal(t, 4, loaded.Step)
		assert.Equal(t, "step-4", loaded.State["status"])
		assert.Equal(t, []string{"worker"}, loaded.Next)
		assert.Equal(t, "loop", loaded.Metadata["source"])
		assert.WithinDuration(t, cp.Timestamp, loaded.Timestamp, time.Millisecond)
		assert.Nil(t, loaded.Interrupt)
	})

	t.Run("pending interrupt survives", func(t *testing.T) {
		s := newStore(t)
		cp := NewCheckpoint("thread-a", "cp-1", 1)
		cp.Interrupt = &store.PendingInterrupt{
			Node:     "review",
			Value:    "approve?",
			Resumes:  []any{"yes"},
			Frontier: []string{"draft", "review"},
			Gotos:    map[string][]string{"draft": {"publish"}},
		}
		require.NoError(t, s.Save(ctx, cp))

		loaded, err := s.LoadLatest(ctx, "thread-a")
		require.NoError(t, err)
		require.NotNil(t, loaded.Interrupt)
		assert.Equal(t, "review", loaded.Interrupt.Node)
		assert.Equal(t, "approve?", loaded.Interrupt.Value)
		assert.Equal(t, []any{"yes"}, loaded.Interrupt.Resumes)
		assert.Equal(t, []string{"draft", "review"}, loaded.Interrupt.Frontier)
		assert.Equal(t, []string{"publish"}, loaded.Interrupt.Gotos["draft"])
		assert.False(t, loaded.Done())
	})

	t.Run("missing data", func(t *testing.T) {
		s := newStore(t)

		_, err := s.Load(ctx, "nope")
		assert.ErrorIs(t, err, store.ErrNotFound)

		_, err = s.LoadLatest(ctx, "nope")
		assert.ErrorIs(t, err, store.ErrNotFound)

		list, err := s.List(ctx, "nope")
		require.NoError(t, err)
		assert.Empty(t, list)
	})

	t.Run("duplicate id rejected", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Save(ctx, NewCheckpoint("thread-a", "cp-1", 1)))

		err := s.Save(ctx, NewCheckpoint("thread-a", "cp-1", 2))
		assert.ErrorIs(t, err, store.ErrCheckpointExists)

		list, err := s.List(ctx, "thread-a")
		require.NoError(t, err)
		assert.Len(t, list, 1)
	})

	t.Run("thread id required", func(t *testing.T) {
		s := newStore(t)
		err := s.Save(ctx, NewCheckpoint("", "cp-1", 1))
		assert.ErrorIs(t, err, store.ErrThreadIDRequired)
	})

	t.Run("threads are isolated", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Save(ctx, NewCheckpoint("thread-a", "a-1", 1)))
		require.NoError(t, s.Save(ctx, NewCheckpoint("thread-b", "b-1", 1)))
		require.NoError(t, s.Save(ctx, NewCheckpoint("thread-a", "a-2", 2)))

		b, err := s.LoadLatest(ctx, "thread-b")
		require.NoError(t, err)
		assert.Equal(t, "b-1", b.ID)
		assert.Equal(t, 1, b.Version)

		a, err := s.LoadLatest(ctx, "thread-a")
		require.NoError(t, err)
		assert.Equal(t, 2, a.Version)
	})

	t.Run("clear removes the thread", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Save(ctx, NewCheckpoint("thread-a", "a-1", 1)))
		require.NoError(t, s.Save(ctx, NewCheckpoint("thread-a", "a-2", 2)))
		require.NoError(t, s.Save(ctx, NewCheckpoint("thread-b", "b-1", 1)))

		require.NoError(t, s.Clear(ctx, "thread-a"))

		_, err := s.LoadLatest(ctx, "thread-a")
		assert.ErrorIs(t, err, store.ErrNotFound)
		_, err = s.Load(ctx, "a-1")
		assert.ErrorIs(t, err, store.ErrNotFound)

		_, err = s.LoadLatest(ctx, "thread-b")
		assert.NoError(t, err)

		cp := NewCheckpoint("thread-a", "a-3", 1)
		require.NoError(t, s.Save(ctx, cp))
		assert.Equal(t, 1, cp.Version)
	})

	t.Run("dot thread ids are ordinary threads", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Save(ctx, NewCheckpoint("thread-a", "a-1", 1)))
		require.NoError(t, s.Save(ctx, NewCheckpoint("..", "up-1", 1)))
		require.NoError(t, s.Save(ctx, NewCheckpoint(".", "dot-1", 1)))

		up, err := s.LoadLatest(ctx, "..")
		require.NoError(t, err)
		assert.Equal(t, "up-1", up.ID)
		assert.Equal(t, 1, up.Version)

		list, err := s.List(ctx, ".")
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, "dot-1", list[0].ID)

		require.NoError(t, s.Clear(ctx, ".."))
		require.NoError(t, s.Clear(ctx, "."))

		a, err := s.LoadLatest(ctx, "thread-a")
		require.NoError(t, err)
		assert.Equal(t, "a-1", a.ID)
		_, err = s.LoadLatest(ctx, "..")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("concurrent saves get distinct versions", func(t *testing.T) {
		s := newStore(t)
		const n = 16

		var wg sync.WaitGroup
		errs := make(chan error, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				errs <- s.Save(ctx, NewCheckpoint("thread-a", fmt.Sprintf("cp-%02d", i), i))
			}(i)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		list, err := s.List(ctx, "thread-a")
		require.NoError(t, err)
		require.Len(t, list, n)
		for i, cp := range list {
			assert.Equal(t, i+1, cp.Version)
		}
	})
}
