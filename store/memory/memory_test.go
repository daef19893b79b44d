package memory

import (
	"context"
	"testing"

	"github.com/smallnest/stategraph/store"
	"github.com/smallnest/stategraph/store/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCheckpointStore_Contract(t *testing.T) {
	t.Parallel()

	storetest.Run(t, func(t *testing.T) store.CheckpointStore {
		return NewMemoryCheckpointStore()
	})
}

func TestMemoryCheckpointStore_ReturnsCopies(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	ms := NewMemoryCheckpointStore()

	cp := storetest.NewCheckpoint("thread-a", "cp-1", 1)
	require.NoError(t, ms.Save(ctx, cp))

	// Mutating the caller's copy after Save must not change history.
	cp.State["status"] = "changed"
	cp.Next[0] = "other"

	loaded, err := ms.Load(ctx, "cp-1")
	require.NoError(t, err)
	assert.Equal(t, "step-1", loaded.State["status"])
	assert.Equal(t, []string{"worker"}, loaded.Next)

	// Nor must mutating a loaded copy.
	loaded.State["status"] = "changed"
	again, err := ms.LoadLatest(ctx, "thread-a")
	require.NoError(t, err)
	assert.Equal(t, "step-1", again.State["status"])
}
