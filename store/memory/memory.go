// Package memory provides the in-memory reference implementation of store.CheckpointStore.
package memory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/smallnest/stategraph/store"
)

// MemoryCheckpointStore keeps an append-only slice of checkpoints per thread.
// It is safe for concurrent use. Nothing survives the process.
type MemoryCheckpointStore struct {
	mu      sync.RWMutex
	threads map[string][]*store.Checkpoint
	byID    map[string]*store.Checkpoint
}

var _ store.CheckpointStore = (*MemoryCheckpointStore)(nil)

// NewMemoryCheckpointStore creates an empty store.
func NewMemoryCheckpointStore() *MemoryCheckpointStore {
	return &MemoryCheckpointStore{
		threads: make(map[string][]*store.Checkpoint),
		byID:    make(map[string]*store.Checkpoint),
	}
}

// Save appends the checkpoint to its thread and assigns the next version.
func (m *MemoryCheckpointStore) Save(_ context.Context, checkpoint *store.Checkpoint) error {
	if err := store.Validate(checkpoint); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byID[checkpoint.ID]; ok {
		return fmt.Errorf("%w: %s", store.ErrCheckpointExists, checkpoint.ID)
	}

	history := m.threads[checkpoint.ThreadID]
	checkpoint.Version = len(history) + 1

	// Store a copy so later changes by the caller do not leak into history.
	saved := clone(checkpoint)
	m.threads[checkpoint.ThreadID] = append(history, saved)
	m.byID[saved.ID] = saved
	return nil
}

// Load retrieves a checkpoint by ID
func (m *MemoryCheckpointStore) Load(_ context.Context, checkpointID string) (*store.Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cp, ok := m.byID[checkpointID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", store.ErrNotFound, checkpointID)
	}
	return clone(cp), nil
}

// LoadLatest returns the newest checkpoint of the thread
func (m *MemoryCheckpointStore) LoadLatest(_ context.Context, threadID string) (*store.Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	history := m.threads[threadID]
	if len(history) == 0 {
		return nil, fmt.Errorf("%w: thread %s", store.ErrNotFound, threadID)
	}
	return clone(history[len(history)-1]), nil
}

// List returns the thread history, oldest first
func (m *MemoryCheckpointStore) List(_ context.Context, threadID string) ([]*store.Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	history := m.threads[threadID]
	result := make([]*store.Checkpoint, 0, len(history))
	for _, cp := range history {
		result = append(result, clone(cp))
	}
	return result, nil
}

// Clear removes all checkpoints of the thread
func (m *MemoryCheckpointStore) Clear(_ context.Context, threadID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, cp := range m.threads[threadID] {
		delete(m.byID, cp.ID)
	}
	delete(m.threads, threadID)
	return nil
}

// clone copies the checkpoint and its top-level containers. Values inside
// the state are shared; the engine never mutates committed values in place.
func clone(cp *store.Checkpoint) *store.Checkpoint {
	out := *cp
	out.State = maps.Clone(cp.State)
	out.Metadata = maps.Clone(cp.Metadata)
	out.Next = slices.Clone(cp.Next)
	if cp.Interrupt != nil {
		pi := *cp.Interrupt
		pi.Resumes = slices.Clone(cp.Interrupt.Resumes)
		pi.Frontier = slices.Clone(cp.Interrupt.Frontier)
		pi.Gotos = maps.Clone(cp.Interrupt.Gotos)
		out.Interrupt = &pi
	}
	return &out
}
