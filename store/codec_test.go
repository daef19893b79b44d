package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleCheckpoint() *Checkpoint {
	return &Checkpoint{
		ID:       "cp-1",
		ThreadID: "thread-a",
		Version:  2,
		Step:     5,
		State: map[string]any{
			"count":    3,
			"messages": []any{"hi", "there"},
		},
		Next: []string{"b", "c"},
		Interrupt: &PendingInterrupt{
			Node:     "b",
			Value:    "confirm",
			Frontier: []string{"b", "c"},
			Gotos:    map[string][]string{"c": {"__end__"}},
		},
		Timestamp: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestCodecs(t *testing.T) {
	t.Parallel()

	codecs := []Codec{
		JSONCodec{},
		MsgpackCodec{},
		Compressed(JSONCodec{}),
		Compressed(MsgpackCodec{}),
	}

	for _, codec := range codecs {
		t.Run(codec.Name(), func(t *testing.T) {
			t.Parallel()

			cp := sampleCheckpoint()
			data, err := codec.Marshal(cp)
			require.NoError(t, err)

			got, err := codec.Unmarshal(data)
			require.NoError(t, err)
			assert.Equal(t, cp.ID, got.ID)
			assert.Equal(t, cp.ThreadID, got.ThreadID)
			assert.Equal(t, cp.Version, got.Version)
			assert.Equal(t, cp.Step, got.Step)
			assert.Equal(t, cp.Next, got.Next)
			assert.EqualValues(t, 3, got.State["count"])
			assert.Equal(t, []any{"hi", "there"}, got.State["messages"])
			require.NotNil(t, got.Interrupt)
			assert.Equal(t, "b", got.Interrupt.Node)
			assert.Equal(t, []string{"__end__"}, got.Interrupt.Gotos["c"])
			assert.True(t, cp.Timestamp.Equal(got.Timestamp))
		})
	}
}

func TestCodecNames(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "json", JSONCodec{}.Name())
	assert.Equal(t, "msgpack", MsgpackCodec{}.Name())
	assert.Equal(t, "msgpack+zstd", Compressed(MsgpackCodec{}).Name())
	assert.Equal(t, "json", DefaultCodec().Name())
}

func TestJSONNumbersBecomeFloat(t *testing.T) {
	t.Parallel()

	data, err := JSONCodec{}.Marshal(sampleCheckpoint())
	require.NoError(t, err)
	got, err := JSONCodec{}.Unmarshal(data)
	require.NoError(t, err)

	_, isFloat := got.State["count"].(float64)
	assert.True(t, isFloat)
}

func TestCompressedRejectsGarbage(t *testing.T) {
	t.Parallel()

	_, err := Compressed(JSONCodec{}).Unmarshal([]byte("not zstd"))
	assert.Error(t, err)

	_, err = JSONCodec{}.Unmarshal([]byte("{"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	assert.Error(t, Validate(nil))
	assert.ErrorIs(t, Validate(&Checkpoint{ID: "x"}), ErrThreadIDRequired)
	assert.Error(t, Validate(&Checkpoint{ThreadID: "t"}))
	assert.NoError(t, Validate(&Checkpoint{ID: "x", ThreadID: "t"}))
}

func TestCheckpointDone(t *testing.T) {
	t.Parallel()

	assert.True(t, (&Checkpoint{}).Done())
	assert.False(t, (&Checkpoint{Next: []string{"a"}}).Done())
	assert.False(t, (&Checkpoint{Interrupt: &PendingInterrupt{Node: "a"}}).Done())
}
