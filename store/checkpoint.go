package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a checkpoint or thread has no stored data.
	ErrNotFound = errors.New("checkpoint not found")

	// ErrCheckpointExists is returned when saving a checkpoint whose ID is already stored.
	// Checkpoints are immutable once saved.
	ErrCheckpointExists = errors.New("checkpoint already exists")

	// ErrThreadIDRequired is returned when saving a checkpoint without a thread ID.
	ErrThreadIDRequired = errors.New("checkpoint thread id is required")
)

// PendingInterrupt describes a superstep that was suspended and is waiting for input.
type PendingInterrupt struct {
	// Node is the node that requested the suspension.
	Node string `json:"node" msgpack:"node"`

	// Value is the payload passed to the interrupt call.
	Value any `json:"value,omitempty" msgpack:"value,omitempty"`

	// Resumes holds resume values already supplied for earlier interrupt calls
	// of the same node activation, in call order.
	Resumes []any `json:"resumes,omitempty" msgpack:"resumes,omitempty"`

	// Frontier is the full set of nodes of the suspended superstep.
	Frontier []string `json:"frontier,omitempty" msgpack:"frontier,omitempty"`

	// Gotos keeps the explicit routing returned by the nodes of the suspended
	// superstep whose outputs were already merged.
	Gotos map[string][]string `json:"gotos,omitempty" msgpack:"gotos,omitempty"`

	// Static is set for InterruptBefore / InterruptAfter pauses. Resuming a
	// static pause continues the saved frontier instead of re-running a node.
	Static bool `json:"static,omitempty" msgpack:"static,omitempty"`

	// After marks a static pause taken after its superstep committed.
	After bool `json:"after,omitempty" msgpack:"after,omitempty"`
}

// Checkpoint is an immutable snapshot of a thread after a committed superstep.
type Checkpoint struct {
	ID       string `json:"id" msgpack:"id"`
	ThreadID string `json:"thread_id" msgpack:"thread_id"`

	// Version is the per-thread sequence number assigned by the store on Save.
	Version int `json:"version" msgpack:"version"`

	// Step is the number of supersteps the run had committed.
	Step int `json:"step" msgpack:"step"`

	State map[string]any `json:"state" msgpack:"state"`

	// Next is the frontier scheduled for the following superstep. Empty when the run finished.
	Next []string `json:"next,omitempty" msgpack:"next,omitempty"`

	Interrupt *PendingInterrupt `json:"interrupt,omitempty" msgpack:"interrupt,omitempty"`

	Metadata  map[string]any `json:"metadata,omitempty" msgpack:"metadata,omitempty"`
	Timestamp time.Time      `json:"timestamp" msgpack:"timestamp"`
}

// Done reports whether the checkpoint marks a finished run.
func (c *Checkpoint) Done() bool {
	return len(c.Next) == 0 && c.Interrupt == nil
}

// CheckpointStore persists checkpoints as an append-only history per thread.
//
// Implementations must serialize concurrent saves for the same thread so that
// versions are strictly increasing. Independent threads never observe each other.
type CheckpointStore interface {
	// Save appends a checkpoint to its thread and assigns its Version.
	Save(ctx context.Context, checkpoint *Checkpoint) error

	// Load retrieves a checkpoint by ID.
	Load(ctx context.Context, checkpointID string) (*Checkpoint, error)

	// LoadLatest returns the checkpoint with the highest version for the thread,
	// or ErrNotFound.
	LoadLatest(ctx context.Context, threadID string) (*Checkpoint, error)

	// List returns all checkpoints of a thread in ascending version order.
	List(ctx context.Context, threadID string) ([]*Checkpoint, error)

	// Clear removes a thread and its history.
	Clear(ctx context.Context, threadID string) error
}

// Validate checks the fields a store relies on before saving.
func Validate(checkpoint *Checkpoint) error {
	if checkpoint == nil {
		return errors.New("checkpoint is nil")
	}
	if checkpoint.ThreadID == "" {
		return ErrThreadIDRequired
	}
	if checkpoint.ID == "" {
		return errors.New("checkpoint id is required")
	}
	return nil
}
