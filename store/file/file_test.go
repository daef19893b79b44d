package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/smallnest/stategraph/store"
	"github.com/smallnest/stategraph/store/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileCheckpointStore_Contract(t *testing.T) {
	t.Parallel()

	t.Run("json", func(t *testing.T) {
		t.Parallel()
		storetest.Run(t, func(t *testing.T) store.CheckpointStore {
			s, err := NewFileCheckpointStore(t.TempDir())
			require.NoError(t, err)
			return s
		})
	})

	t.Run("msgpack+zstd", func(t *testing.T) {
		t.Parallel()
		storetest.Run(t, func(t *testing.T) store.CheckpointStore {
			s, err := NewFileCheckpointStore(t.TempDir(), WithCodec(store.Compressed(store.MsgpackCodec{})))
			require.NoError(t, err)
			return s
		})
	})
}

func TestFileCheckpointStore_New(t *testing.T) {
	t.Parallel()

	checkpointPath := filepath.Join(t.TempDir(), "nested", "checkpoints")
	s, err := NewFileCheckpointStore(checkpointPath)
	require.NoError(t, err)
	require.NotNil(t, s)

	info, err := os.Stat(checkpointPath)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestFileCheckpointStore_Layout(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := t.TempDir()
	s, err := NewFileCheckpointStore(dir)
	require.NoError(t, err)

	require.NoError(t, s.Save(ctx, storetest.NewCheckpoint("user/42", "cp-1", 1)))
	require.NoError(t, s.Save(ctx, storetest.NewCheckpoint("user/42", "cp-2", 2)))

	// The thread id is escaped into a single directory name.
	files, err := os.ReadDir(filepath.Join(dir, "user%2F42"))
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "00000001-cp-1.ckpt", files[0].Name())
	assert.Equal(t, "00000002-cp-2.ckpt", files[1].Name())

	// Stray files are ignored.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "user%2F42", "notes.txt"), []byte("x"), 0o644))
	list, err := s.List(ctx, "user/42")
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestFileCheckpointStore_RejectsPathInID(t *testing.T) {
	t.Parallel()

	s, err := NewFileCheckpointStore(t.TempDir())
	require.NoError(t, err)

	err = s.Save(context.Background(), storetest.NewCheckpoint("thread-a", "../escape", 1))
	assert.Error(t, err)
}

func TestFileCheckpointStore_ThreadStaysUnderRoot(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	base := t.TempDir()
	precious := filepath.Join(base, "precious.txt")
	require.NoError(t, os.WriteFile(precious, []byte("keep"), 0o644))

	root := filepath.Join(base, "checkpoints")
	s, err := NewFileCheckpointStore(root)
	require.NoError(t, err)

	require.NoError(t, s.Save(ctx, storetest.NewCheckpoint("..", "up-1", 1)))
	require.NoError(t, s.Save(ctx, storetest.NewCheckpoint(".", "dot-1", 1)))

	_, err = os.Stat(filepath.Join(base, "00000001-up-1.ckpt"))
	assert.ErrorIs(t, err, os.ErrNotExist)
	_, err = os.Stat(filepath.Join(root, "%2E%2E", "00000001-up-1.ckpt"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(root, "%2E", "00000001-dot-1.ckpt"))
	assert.NoError(t, err)

	require.NoError(t, s.Clear(ctx, ".."))
	require.NoError(t, s.Clear(ctx, "."))

	data, err := os.ReadFile(precious)
	require.NoError(t, err)
	assert.Equal(t, "keep", string(data))
	info, err := os.Stat(root)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	assert.ErrorIs(t, s.Clear(ctx, ""), store.ErrThreadIDRequired)
	_, err = os.Stat(root)
	assert.NoError(t, err)
}

func TestFileCheckpointStore_FindsFilesFromAnotherInstance(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := t.TempDir()
	first, err := NewFileCheckpointStore(dir)
	require.NoError(t, err)
	second, err := NewFileCheckpointStore(dir)
	require.NoError(t, err)

	// Builds the second instance's index before the first one writes.
	_, err = second.Load(ctx, "cp-1")
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, first.Save(ctx, storetest.NewCheckpoint("thread-a", "cp-1", 1)))

	cp, err := second.Load(ctx, "cp-1")
	require.NoError(t, err)
	assert.Equal(t, "thread-a", cp.ThreadID)

	err = second.Save(ctx, storetest.NewCheckpoint("thread-b", "cp-1", 1))
	assert.ErrorIs(t, err, store.ErrCheckpointExists)
}

func TestFileCheckpointStore_DuplicateAcrossThreads(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s, err := NewFileCheckpointStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, s.Save(ctx, storetest.NewCheckpoint("thread-a", "cp-1", 1)))
	err = s.Save(ctx, storetest.NewCheckpoint("thread-b", "cp-1", 1))
	assert.ErrorIs(t, err, store.ErrCheckpointExists)

	list, err := s.List(ctx, "thread-b")
	require.NoError(t, err)
	assert.Empty(t, list)

	// A cleared thread frees its ids.
	require.NoError(t, s.Clear(ctx, "thread-a"))
	require.NoError(t, s.Save(ctx, storetest.NewCheckpoint("thread-b", "cp-1", 1)))
}

func TestParseName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		version int
		id      string
		ok      bool
	}{
		{"00000003-abc.ckpt", 3, "abc", true},
		{"00000010-a-b-c.ckpt", 10, "a-b-c", true},
		{"abc.ckpt", 0, "", false},
		{"x-abc.ckpt", 0, "", false},
		{"00000001-abc.json", 0, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, ok := parseName(tt.name)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.version, e.version)
				assert.Equal(t, tt.id, e.id)
			}
		})
	}
}
