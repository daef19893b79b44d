package graph

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/smallnest/stategraph/log"
	"github.com/smallnest/stategraph/store"
	"golang.org/x/sync/errgroup"
)

// Config configures one invocation.
type Config struct {
	// ThreadID selects the checkpoint history. Empty runs statelessly.
	ThreadID string

	// InterruptBefore pauses before a superstep that would run any of these nodes.
	InterruptBefore []string

	// InterruptAfter pauses after a superstep that ran any of these nodes.
	InterruptAfter []string

	// Metadata is copied into every checkpoint written by the invocation.
	Metadata map[string]any
}

// WithThreadID creates a Config bound to a thread.
//
//	out, err := g.Invoke(ctx, graph.State{"question": q}, graph.WithThreadID("user-42"))
func WithThreadID(threadID string) *Config {
	return &Config{ThreadID: threadID}
}

// CompiledGraph is an immutable, validated graph. It is safe for concurrent
// use; independent threads do not share any state.
type CompiledGraph struct {
	schema   *Schema
	nodes    map[string]*Node
	order    []string
	edges    map[string][]string
	branches map[string][]*branch

	checkpointer      store.CheckpointStore
	logger            log.Logger
	tracer            *Tracer
	maxSteps          int
	maxConcurrency    int
	strictTermination bool
}

// Schema returns the state schema the graph was built with.
func (c *CompiledGraph) Schema() *Schema {
	return c.schema
}

// run is the mutable bookkeeping of one invocation.
type run struct {
	config       *Config
	threadID     string
	state        State
	step         int // supersteps committed on the thread
	budget       int // supersteps executed by this invocation
	checkpointID string
}

// plan is the superstep about to execute.
type plan struct {
	// frontier is every node of the superstep, in registration order.
	frontier []string

	// pending is set when resuming: only this node runs, the rest of the
	// frontier already merged before the pause.
	pending string
	gotos   map[string][]string
	resumes []any

	// skipBefore resumes past an InterruptBefore pause.
	skipBefore bool
}

// outcome is the result of one node activation.
type outcome struct {
	node      string
	update    State
	gotos     []string
	hasGoto   bool
	interrupt *NodeInterrupt
	resumes   []any
	err       error
}

// execute wraps a whole invocation in a graph span.
func (c *CompiledGraph) execute(ctx context.Context, r *run, first func(context.Context) (*plan, error)) (*Output, error) {
	ctx = WithConfig(ctx, r.config)

	var graphSpan *TraceSpan
	if c.tracer != nil {
		graphSpan = c.tracer.StartSpan(ctx, TraceEventGraphStart, "")
		graphSpan.State = r.state
		ctx = ContextWithSpan(ctx, graphSpan)
	}

	out, err := c.drive(ctx, r, first)

	if graphSpan != nil {
		c.tracer.EndSpan(ctx, graphSpan, r.state, err)
	}
	return out, err
}

// drive runs supersteps until the frontier empties, the run pauses or fails.
func (c *CompiledGraph) drive(ctx context.Context, r *run, first func(context.Context) (*plan, error)) (*Output, error) {
	p, err := first(ctx)
	if err != nil {
		return nil, err
	}

	for p != nil {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if r.budget >= c.maxSteps {
			return nil, &StepLimitError{Limit: c.maxSteps}
		}

		if p.pending == "" && !p.skipBefore {
			if node, ok := firstListed(r.config.InterruptBefore, p.frontier); ok {
				if c.tracer != nil {
					c.tracer.TraceInterrupt(ctx, node, nil)
				}
				return c.pause(ctx, r, p.frontier, &store.PendingInterrupt{
					Node:     node,
					Frontier: slices.Clone(p.frontier),
					Static:   true,
				})
			}
		}

		var out *Output
		p, out, err = c.superstep(ctx, r, p)
		if err != nil || out != nil {
			return out, err
		}
	}

	c.logger.Debug("thread %q finished after %d supersteps", r.threadID, r.step)
	return c.output(r, nil), nil
}

// superstep runs one BSP round. It returns the next plan, or an Output when
// the run paused, or nil for both when the run finished.
func (c *CompiledGraph) superstep(ctx context.Context, r *run, p *plan) (*plan, *Output, error) {
	r.budget++
	toRun := p.frontier
	if p.pending != "" {
		toRun = []string{p.pending}
	}

	var stepSpan *TraceSpan
	if c.tracer != nil {
		stepSpan = c.tracer.StartSpan(ctx, TraceEventStepStart, "")
		stepSpan.Metadata["step"] = r.step + 1
		stepSpan.Metadata["nodes"] = slices.Clone(toRun)
		ctx = ContextWithSpan(ctx, stepSpan)
	}
	endStep := func(err error) {
		if stepSpan != nil {
			c.tracer.EndSpan(ctx, stepSpan, r.state, err)
		}
	}

	c.logger.Debug("thread %q superstep %d: running %v", r.threadID, r.step+1, toRun)
	outcomes := c.runNodes(ctx, toRun, r.state, p)

	// The first failure in frontier order aborts the step.
	for _, o := range outcomes {
		if o.err != nil {
			c.logger.Error("superstep %d failed: %v", r.step+1, o.err)
			endStep(o.err)
			return nil, nil, o.err
		}
	}

	var interrupted *outcome
	for i := range outcomes {
		if outcomes[i].interrupt == nil {
			continue
		}
		if interrupted != nil {
			err := fmt.Errorf("%w: %s and %s", ErrMultipleInterrupts, interrupted.node, outcomes[i].node)
			endStep(err)
			return nil, nil, err
		}
		interrupted = &outcomes[i]
	}

	state := r.state
	gotos := maps.Clone(p.gotos)
	if gotos == nil {
		gotos = make(map[string][]string)
	}
	for _, o := range outcomes {
		if o.interrupt != nil {
			continue
		}
		merged, err := c.schema.Update(state, o.update)
		if err != nil {
			err = &NodeExecutionError{Node: o.node, Cause: err}
			endStep(err)
			return nil, nil, err
		}
		state = merged
		if o.hasGoto {
			gotos[o.node] = o.gotos
		}
	}

	if interrupted != nil {
		if r.threadID == "" {
			err := fmt.Errorf("node %s interrupted a run without a thread: %w", interrupted.node, ErrThreadRequired)
			endStep(err)
			return nil, nil, err
		}
		r.state = state
		endStep(nil)
		out, err := c.pause(ctx, r, []string{interrupted.node}, &store.PendingInterrupt{
			Node:     interrupted.node,
			Value:    interrupted.interrupt.Value,
			Resumes:  interrupted.resumes,
			Frontier: slices.Clone(p.frontier),
			Gotos:    gotos,
		})
		return nil, out, err
	}

	next, err := c.route(ctx, p.frontier, gotos, state)
	if err != nil {
		endStep(err)
		return nil, nil, err
	}

	r.state = state
	r.step++

	var after *store.PendingInterrupt
	if len(next) > 0 {
		if node, ok := firstListed(r.config.InterruptAfter, p.frontier); ok {
			after = &store.PendingInterrupt{Node: node, Frontier: slices.Clone(next), Static: true, After: true}
		}
	}

	if err := c.commit(ctx, r, next, after, "loop"); err != nil {
		endStep(err)
		return nil, nil, err
	}
	endStep(nil)

	if after != nil {
		if c.tracer != nil {
			c.tracer.TraceInterrupt(ctx, after.Node, nil)
		}
		c.logger.Info("thread %q paused after %s", r.threadID, after.Node)
		return nil, c.output(r, after), nil
	}
	if len(next) == 0 {
		return nil, nil, nil
	}
	return &plan{frontier: next}, nil, nil
}

// runNodes executes the nodes of a superstep concurrently. Outcomes keep the order of names.
func (c *CompiledGraph) runNodes(ctx context.Context, names []string, state State, p *plan) []outcome {
	outcomes := make([]outcome, len(names))

	var eg errgroup.Group
	if c.maxConcurrency > 0 {
		eg.SetLimit(c.maxConcurrency)
	}
	for i, name := range names {
		var resumes []any
		if name == p.pending {
			resumes = p.resumes
		}
		eg.Go(func() error {
			outcomes[i] = c.runNode(ctx, name, state, resumes)
			return nil
		})
	}
	_ = eg.Wait()
	return outcomes
}

// runNode executes one activation. Panics are recovered into a NodeExecutionError.
func (c *CompiledGraph) runNode(ctx context.Context, name string, state State, resumes []any) (out outcome) {
	node := c.nodes[name]
	out.node = name
	out.resumes = resumes

	var nodeSpan *TraceSpan
	if c.tracer != nil {
		nodeSpan = c.tracer.StartSpan(ctx, TraceEventNodeStart, name)
		ctx = ContextWithSpan(ctx, nodeSpan)
	}

	defer func() {
		if rec := recover(); rec != nil {
			out.err = &NodeExecutionError{Node: name, Cause: fmt.Errorf("panic: %v", rec)}
		}
		if nodeSpan != nil {
			c.tracer.EndSpan(ctx, nodeSpan, out.update, out.err)
			if out.interrupt != nil {
				c.tracer.TraceInterrupt(ctx, name, out.interrupt.Value)
			}
		}
	}()

	scope := &interruptScope{node: name, resumes: resumes}
	res, err := node.Function(withInterruptScope(ctx, scope), state.Clone())
	if err != nil {
		var ni *NodeInterrupt
		if errors.As(err, &ni) {
			out.interrupt = &NodeInterrupt{Node: name, Value: ni.Value}
			return out
		}
		out.err = &NodeExecutionError{Node: name, Cause: err}
		return out
	}

	switch res.kind {
	case resultSuspend:
		out.interrupt = &NodeInterrupt{Node: name, Value: res.payload}
	case resultGoto:
		for _, dest := range res.gotos {
			if dest != END && !slices.Contains(node.Destinations, dest) {
				out.err = &IllegalGotoError{Node: name, Destination: dest}
				return out
			}
		}
		out.update = res.update
		out.gotos = slices.Clone(res.gotos)
		out.hasGoto = true
	default:
		out.update = res.update
	}
	return out
}

// route computes the next frontier from the nodes that ran. Explicit gotos
// replace a node's edges; routers see the merged state. The result is ordered
// by registration index, without duplicates and without END.
func (c *CompiledGraph) route(ctx context.Context, ran []string, gotos map[string][]string, state State) ([]string, error) {
	seen := make(map[string]bool)
	add := func(from, to string) {
		if c.tracer != nil {
			c.tracer.TraceEdgeTraversal(ctx, from, to)
		}
		if to != END {
			seen[to] = true
		}
	}

	for _, name := range ran {
		if dests, ok := gotos[name]; ok {
			for _, to := range dests {
				add(name, to)
			}
			continue
		}
		for _, to := range c.edges[name] {
			add(name, to)
		}
		for _, b := range c.branches[name] {
			to, err := callRouter(ctx, name, b, state)
			if err != nil {
				return nil, err
			}
			if to == "" || !b.allows(to) {
				return nil, &RoutingError{From: name, Destination: to}
			}
			add(name, to)
		}
	}

	next := make([]string, 0, len(seen))
	for name := range seen {
		next = append(next, name)
	}
	slices.SortFunc(next, func(a, b string) int {
		return c.nodes[a].index - c.nodes[b].index
	})
	return next, nil
}

// callRouter evaluates one branch, recovering a panic into a RoutingError.
func callRouter(ctx context.Context, from string, b *branch, state State) (to string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = &RoutingError{From: from, Cause: fmt.Errorf("panic: %v", rec)}
		}
	}()
	return b.router(ctx, state.Clone()), nil
}

// pause commits a checkpoint carrying the pending interrupt and builds the paused Output.
func (c *CompiledGraph) pause(ctx context.Context, r *run, next []string, pi *store.PendingInterrupt) (*Output, error) {
	if err := c.commit(ctx, r, next, pi, "interrupt"); err != nil {
		return nil, err
	}
	c.logger.Info("thread %q paused at %s", r.threadID, pi.Node)
	return c.output(r, pi), nil
}

// commit appends a checkpoint for threaded runs.
func (c *CompiledGraph) commit(ctx context.Context, r *run, next []string, pi *store.PendingInterrupt, source string) error {
	if r.threadID == "" {
		return nil
	}

	metadata := maps.Clone(r.config.Metadata)
	if metadata == nil {
		metadata = make(map[string]any)
	}
	metadata["source"] = source
	metadata["step"] = r.step

	cp := &store.Checkpoint{
		ID:        generateCheckpointID(),
		ThreadID:  r.threadID,
		Step:      r.step,
		State:     r.state.Clone(),
		Next:      slices.Clone(next),
		Interrupt: pi,
		Metadata:  metadata,
		Timestamp: time.Now(),
	}
	if err := c.checkpointer.Save(ctx, cp); err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	r.checkpointID = cp.ID
	return nil
}

func (c *CompiledGraph) output(r *run, pi *store.PendingInterrupt) *Output {
	out := &Output{
		State:        r.state.Clone(),
		Step:         r.step,
		CheckpointID: r.checkpointID,
	}
	if pi != nil {
		out.Interrupts = []InterruptInfo{{Node: pi.Node, Value: pi.Value}}
	}
	return out
}

// firstListed returns the first node of frontier that appears in list.
func firstListed(list, frontier []string) (string, bool) {
	for _, name := range frontier {
		if slices.Contains(list, name) {
			return name, true
		}
	}
	return "", false
}

func generateCheckpointID() string {
	return fmt.Sprintf("checkpoint_%s", uuid.New().String())
}
