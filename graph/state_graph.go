package graph

import (
	"errors"
	"fmt"
	"slices"

	"github.com/smallnest/stategraph/log"
	"github.com/smallnest/stategraph/store"
)

const (
	// START is the pseudo-node every run begins from.
	START = "__start__"

	// END is the pseudo-node that terminates a run.
	END = "__end__"
)

// DefaultMaxSteps bounds the number of supersteps of one invocation.
const DefaultMaxSteps = 25

// Node represents a node in the graph.
type Node struct {
	// Name is the unique identifier for the node.
	Name string

	// Function is the node body.
	Function NodeFunc

	// Destinations lists the nodes the function may Goto.
	Destinations []string

	index int
}

// branch is a conditional edge.
type branch struct {
	router       Router
	destinations []string
}

func (b *branch) allows(dest string) bool {
	return dest == END || slices.Contains(b.destinations, dest)
}

// StateGraph is a mutable graph definition. Compile it to run it.
type StateGraph struct {
	schema   *Schema
	nodes    map[string]*Node
	order    []string
	edges    map[string][]string
	branches map[string][]*branch

	// err is the first construction error, reported again by Compile.
	err error
}

// NewStateGraph creates an empty graph over the given schema. A nil schema
// accepts any field and overwrites on update.
func NewStateGraph(schema *Schema) *StateGraph {
	return &StateGraph{
		schema:   schema,
		nodes:    make(map[string]*Node),
		edges:    make(map[string][]string),
		branches: make(map[string][]*branch),
	}
}

func (g *StateGraph) fail(err error) error {
	if g.err == nil {
		g.err = err
	}
	return err
}

// AddNode registers a node. destinations lists the nodes fn may Goto.
func (g *StateGraph) AddNode(name string, fn NodeFunc, destinations ...string) error {
	if name == "" {
		return g.fail(errors.New("node name must not be empty"))
	}
	if fn == nil {
		return g.fail(fmt.Errorf("node %s has no function", name))
	}
	if name == START || name == END {
		return g.fail(&DuplicateNodeError{Node: name})
	}
	if _, ok := g.nodes[name]; ok {
		return g.fail(&DuplicateNodeError{Node: name})
	}
	g.nodes[name] = &Node{
		Name:         name,
		Function:     fn,
		Destinations: slices.Clone(destinations),
		index:        len(g.order),
	}
	g.order = append(g.order, name)
	return nil
}

// AddEdge adds a static edge. Both endpoints must already be registered,
// except START as a source and END as a destination.
func (g *StateGraph) AddEdge(from, to string) error {
	ref := fmt.Sprintf("edge %s -> %s", from, to)
	if from == END || (from != START && g.nodes[from] == nil) {
		return g.fail(&UnknownNodeError{Node: from, Ref: ref})
	}
	if to == START || (to != END && g.nodes[to] == nil) {
		return g.fail(&UnknownNodeError{Node: to, Ref: ref})
	}
	if !slices.Contains(g.edges[from], to) {
		g.edges[from] = append(g.edges[from], to)
	}
	return nil
}

// SetEntryPoint is shorthand for AddEdge(START, name).
func (g *StateGraph) SetEntryPoint(name string) error {
	return g.AddEdge(START, name)
}

// SetFinishPoint is shorthand for AddEdge(name, END).
func (g *StateGraph) SetFinishPoint(name string) error {
	return g.AddEdge(name, END)
}

// AddConditionalEdge adds a router evaluated after from runs. The router must
// return one of destinations or END; other values fail the run with a
// *RoutingError. Destinations are checked against registered nodes at Compile.
func (g *StateGraph) AddConditionalEdge(from string, router Router, destinations ...string) error {
	if from == END || (from != START && g.nodes[from] == nil) {
		return g.fail(&UnknownNodeError{Node: from, Ref: "conditional edge"})
	}
	if router == nil {
		return g.fail(fmt.Errorf("conditional edge from %s has no router", from))
	}
	g.branches[from] = append(g.branches[from], &branch{
		router:       router,
		destinations: slices.Clone(destinations),
	})
	return nil
}

// CompileOption configures a CompiledGraph.
type CompileOption func(*CompiledGraph)

// WithCheckpointer enables threads backed by the given store.
func WithCheckpointer(cp store.CheckpointStore) CompileOption {
	return func(c *CompiledGraph) {
		c.checkpointer = cp
	}
}

// WithLogger sets the logger. Defaults to the package-level logger of the log package.
func WithLogger(logger log.Logger) CompileOption {
	return func(c *CompiledGraph) {
		c.logger = logger
	}
}

// WithTracer attaches a tracer for observability
func WithTracer(tracer *Tracer) CompileOption {
	return func(c *CompiledGraph) {
		c.tracer = tracer
	}
}

// WithMaxSteps bounds the supersteps of one invocation. Values below 1 keep the default.
func WithMaxSteps(n int) CompileOption {
	return func(c *CompiledGraph) {
		if n > 0 {
			c.maxSteps = n
		}
	}
}

// WithMaxConcurrency bounds how many nodes of one superstep run at once. 0 means unbounded.
func WithMaxConcurrency(n int) CompileOption {
	return func(c *CompiledGraph) {
		if n >= 0 {
			c.maxConcurrency = n
		}
	}
}

// WithStrictTermination turns the no-termination warning into a Compile error.
func WithStrictTermination() CompileOption {
	return func(c *CompiledGraph) {
		c.strictTermination = true
	}
}

// Compile validates the graph and freezes a copy of it. Later changes to the
// StateGraph do not affect the returned graph.
func (g *StateGraph) Compile(opts ...CompileOption) (*CompiledGraph, error) {
	if g.err != nil {
		return nil, g.err
	}
	if len(g.edges[START]) == 0 && len(g.branches[START]) == 0 {
		return nil, ErrNoEntryPoint
	}

	for _, from := range append([]string{START}, g.order...) {
		for _, b := range g.branches[from] {
			for _, dest := range b.destinations {
				if dest != END && g.nodes[dest] == nil {
					return nil, &UnknownNodeError{Node: dest, Ref: "conditional edge from " + from}
				}
			}
		}
	}
	for _, name := range g.order {
		for _, dest := range g.nodes[name].Destinations {
			if dest != END && g.nodes[dest] == nil {
				return nil, &UnknownNodeError{Node: dest, Ref: "destinations of " + name}
			}
		}
	}

	reached, terminates := g.analyze()
	for _, name := range g.order {
		if !reached[name] {
			return nil, &UnreachableNodeError{Node: name}
		}
	}

	c := &CompiledGraph{
		schema:   g.schema,
		nodes:    make(map[string]*Node, len(g.nodes)),
		order:    slices.Clone(g.order),
		edges:    make(map[string][]string, len(g.edges)),
		branches: make(map[string][]*branch, len(g.branches)),
		logger:   log.GetDefaultLogger(),
		maxSteps: DefaultMaxSteps,
	}
	for name, n := range g.nodes {
		cp := *n
		cp.Destinations = slices.Clone(n.Destinations)
		c.nodes[name] = &cp
	}
	for from, to := range g.edges {
		c.edges[from] = slices.Clone(to)
	}
	for from, bs := range g.branches {
		c.branches[from] = slices.Clone(bs)
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = &log.NoOpLogger{}
	}

	if !terminates {
		if c.strictTermination {
			return nil, &NoTerminationError{}
		}
		c.logger.Warn("graph may never terminate: %v", &NoTerminationError{})
	}
	return c, nil
}

// successors lists every node a node may hand control to, END included.
func (g *StateGraph) successors(name string) []string {
	out := slices.Clone(g.edges[name])
	for _, b := range g.branches[name] {
		out = append(out, b.destinations...)
		// Routers may always pick END.
		out = append(out, END)
	}
	if n := g.nodes[name]; n != nil {
		out = append(out, n.Destinations...)
		if len(n.Destinations) > 0 {
			out = append(out, END)
		}
	}
	return out
}

// analyze walks the graph from START. A run can terminate if END is reachable
// or a reachable node has nowhere to go, which empties the frontier.
func (g *StateGraph) analyze() (map[string]bool, bool) {
	reached := map[string]bool{START: true}
	queue := []string{START}
	terminates := false
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		next := g.successors(cur)
		if len(next) == 0 {
			terminates = true
		}
		for _, n := range next {
			if n == END {
				terminates = true
				continue
			}
			if !reached[n] {
				reached[n] = true
				queue = append(queue, n)
			}
		}
	}
	return reached, terminates
}
