package graph

import "context"

type resultKind int

const (
	resultUpdate resultKind = iota
	resultGoto
	resultSuspend
)

// Result is what a node returns: a partial update, optionally with an explicit
// destination, or a request to suspend. Build one with Update, Goto or Suspend.
type Result struct {
	kind    resultKind
	update  State
	gotos   []string
	payload any
}

// Update returns a partial state update routed by the node's edges.
func Update(update State) Result {
	return Result{kind: resultUpdate, update: update}
}

// Goto returns a partial update and sends execution to the given nodes,
// overriding the node's edges. Destinations must be declared when the node is
// added, except END.
func Goto(update State, destinations ...string) Result {
	if len(destinations) == 0 {
		return Update(update)
	}
	return Result{kind: resultGoto, update: update, gotos: destinations}
}

// Suspend pauses the run at this node with payload. It behaves like an
// unresolved Interrupt call; see ResumeValue for reading the resume value.
func Suspend(payload any) Result {
	return Result{kind: resultSuspend, payload: payload}
}

// State returns the partial update carried by the result.
func (r Result) State() State { return r.update }

// Destinations returns the explicit destinations, if any.
func (r Result) Destinations() []string { return r.gotos }

// Suspended reports whether the result asks to pause.
func (r Result) Suspended() bool { return r.kind == resultSuspend }

// NodeFunc is the body of a node. It receives a copy of the committed state.
type NodeFunc func(ctx context.Context, state State) (Result, error)

// Router picks the next node from the state after a node ran.
type Router func(ctx context.Context, state State) string
