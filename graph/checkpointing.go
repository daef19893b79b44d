package graph

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/smallnest/stategraph/store"
)

// StateSnapshot is a read-only view of one checkpoint of a thread.
type StateSnapshot struct {
	Values       State
	Next         []string
	Interrupts   []InterruptInfo
	Step         int
	Version      int
	CheckpointID string
	Metadata     map[string]any
	CreatedAt    time.Time
}

func snapshotOf(cp *store.Checkpoint) *StateSnapshot {
	s := &StateSnapshot{
		Values:       State(cp.State).Clone(),
		Next:         slices.Clone(cp.Next),
		Step:         cp.Step,
		Version:      cp.Version,
		CheckpointID: cp.ID,
		Metadata:     maps.Clone(cp.Metadata),
		CreatedAt:    cp.Timestamp,
	}
	if cp.Interrupt != nil {
		s.Interrupts = []InterruptInfo{{Node: cp.Interrupt.Node, Value: cp.Interrupt.Value}}
	}
	return s
}

// Invoke runs the graph.
//
// Without a thread the run starts from the schema defaults merged with input
// and nothing is persisted. Such a run cannot pause: a node interrupt fails it
// with ErrThreadRequired, as do InterruptBefore/InterruptAfter. With
// config.ThreadID:
//
//   - a new thread starts like a stateless run, checkpointing every superstep;
//   - input on an existing thread is merged into its latest state through the
//     reducers and the run starts again from START, superseding any pending
//     interrupt;
//   - a nil input continues the thread where it stopped: the saved frontier,
//     or past an InterruptBefore/InterruptAfter pause. A thread waiting on a
//     dynamic interrupt is returned as is; use Resume to answer it.
func (c *CompiledGraph) Invoke(ctx context.Context, input State, config *Config) (*Output, error) {
	if config == nil {
		config = &Config{}
	}
	r := &run{config: config, threadID: config.ThreadID}

	if r.threadID == "" {
		if len(config.InterruptBefore) > 0 || len(config.InterruptAfter) > 0 {
			return nil, fmt.Errorf("static interrupts: %w", ErrThreadRequired)
		}
		state, err := c.schema.Update(c.schema.Init(), input)
		if err != nil {
			return nil, err
		}
		r.state = state
		return c.execute(ctx, r, c.fromStart(r))
	}

	latest, err := c.latest(ctx, r.threadID)
	if err != nil {
		return nil, err
	}

	if latest == nil {
		state, err := c.schema.Update(c.schema.Init(), input)
		if err != nil {
			return nil, err
		}
		r.state = state
		return c.execute(ctx, r, c.fromStart(r))
	}

	r.state = State(latest.State).Clone()
	r.step = latest.Step
	r.checkpointID = latest.ID

	if input != nil {
		if latest.Interrupt != nil {
			c.logger.Warn("thread %q: new input supersedes the pending interrupt at %s", r.threadID, latest.Interrupt.Node)
		}
		state, err := c.schema.Update(r.state, input)
		if err != nil {
			return nil, err
		}
		r.state = state
		return c.execute(ctx, r, c.fromStart(r))
	}

	pi := latest.Interrupt
	switch {
	case pi != nil && !pi.Static:
		return c.output(r, pi), nil
	case len(latest.Next) == 0:
		return c.output(r, nil), nil
	}
	return c.execute(ctx, r, func(context.Context) (*plan, error) {
		return &plan{frontier: slices.Clone(latest.Next), skipBefore: pi != nil && !pi.After}, nil
	})
}

// Resume answers the pending interrupt of a thread with value and continues.
//
// For an interrupt raised by a node, that node runs again from its start and
// its Interrupt calls return the values supplied so far, in order. For an
// InterruptBefore/InterruptAfter pause value is ignored and the saved
// frontier runs.
func (c *CompiledGraph) Resume(ctx context.Context, value any, config *Config) (*Output, error) {
	if config == nil || config.ThreadID == "" {
		return nil, ErrThreadRequired
	}
	r := &run{config: config, threadID: config.ThreadID}

	latest, err := c.latest(ctx, r.threadID)
	if err != nil {
		return nil, err
	}
	if latest == nil || latest.Interrupt == nil {
		return nil, fmt.Errorf("%w: thread %s", ErrNoPendingInterrupt, r.threadID)
	}

	r.state = State(latest.State).Clone()
	r.step = latest.Step
	r.checkpointID = latest.ID

	pi := latest.Interrupt
	c.logger.Info("thread %q resuming at %s", r.threadID, pi.Node)

	if pi.Static {
		return c.execute(ctx, r, func(context.Context) (*plan, error) {
			return &plan{frontier: slices.Clone(latest.Next), skipBefore: !pi.After}, nil
		})
	}
	return c.execute(ctx, r, func(context.Context) (*plan, error) {
		return &plan{
			frontier: slices.Clone(pi.Frontier),
			pending:  pi.Node,
			gotos:    maps.Clone(pi.Gotos),
			resumes:  append(slices.Clone(pi.Resumes), value),
		}, nil
	})
}

// fromStart routes out of START against the run's state and records the input checkpoint.
func (c *CompiledGraph) fromStart(r *run) func(context.Context) (*plan, error) {
	return func(ctx context.Context) (*plan, error) {
		frontier, err := c.route(ctx, []string{START}, nil, r.state)
		if err != nil {
			return nil, err
		}
		if err := c.commit(ctx, r, frontier, nil, "input"); err != nil {
			return nil, err
		}
		if len(frontier) == 0 {
			return nil, nil
		}
		return &plan{frontier: frontier}, nil
	}
}

// latest loads the newest checkpoint of a thread, or nil for a new thread.
func (c *CompiledGraph) latest(ctx context.Context, threadID string) (*store.Checkpoint, error) {
	if c.checkpointer == nil {
		return nil, ErrNoCheckpointer
	}
	cp, err := c.checkpointer.LoadLatest(ctx, threadID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load thread %s: %w", threadID, err)
	}
	return cp, nil
}

// GetState returns the latest snapshot of a thread.
func (c *CompiledGraph) GetState(ctx context.Context, threadID string) (*StateSnapshot, error) {
	if threadID == "" {
		return nil, ErrThreadRequired
	}
	cp, err := c.latest(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if cp == nil {
		return nil, fmt.Errorf("%w: thread %s", store.ErrNotFound, threadID)
	}
	return snapshotOf(cp), nil
}

// History returns every snapshot of a thread, oldest first.
func (c *CompiledGraph) History(ctx context.Context, threadID string) ([]*StateSnapshot, error) {
	if threadID == "" {
		return nil, ErrThreadRequired
	}
	if c.checkpointer == nil {
		return nil, ErrNoCheckpointer
	}
	cps, err := c.checkpointer.List(ctx, threadID)
	if err != nil {
		return nil, fmt.Errorf("failed to list thread %s: %w", threadID, err)
	}
	out := make([]*StateSnapshot, 0, len(cps))
	for _, cp := range cps {
		out = append(out, snapshotOf(cp))
	}
	return out, nil
}

// UpdateState merges update into the latest state of a thread through the
// reducers and appends the result as a new checkpoint. The saved frontier and
// any pending interrupt are kept, so a paused thread can be edited before it
// is resumed.
func (c *CompiledGraph) UpdateState(ctx context.Context, threadID string, update State) (*StateSnapshot, error) {
	if threadID == "" {
		return nil, ErrThreadRequired
	}
	latest, err := c.latest(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if latest == nil {
		return nil, fmt.Errorf("%w: thread %s", store.ErrNotFound, threadID)
	}

	state, err := c.schema.Update(State(latest.State), update)
	if err != nil {
		return nil, err
	}

	r := &run{
		config:   &Config{Metadata: latest.Metadata},
		threadID: threadID,
		state:    state,
		step:     latest.Step,
	}
	if err := c.commit(ctx, r, latest.Next, latest.Interrupt, "update"); err != nil {
		return nil, err
	}

	cp, err := c.checkpointer.Load(ctx, r.checkpointID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload checkpoint: %w", err)
	}
	return snapshotOf(cp), nil
}
