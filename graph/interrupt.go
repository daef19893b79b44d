package graph

import (
	"context"
	"fmt"
)

// NodeInterrupt is returned by Interrupt when no resume value is available.
// A node should return it unchanged; the scheduler turns it into a pause.
type NodeInterrupt struct {
	// Node is the name of the node that triggered the interrupt
	Node string
	// Value is the payload passed to Interrupt
	Value any
}

func (e *NodeInterrupt) Error() string {
	return fmt.Sprintf("interrupt at node %s: %v", e.Node, e.Value)
}

// Interrupt pauses the run and waits for input.
//
// The first time it is reached it returns a *NodeInterrupt carrying payload.
// After the caller resumes the thread, the node runs again from the top and
// the k-th Interrupt call returns the k-th supplied resume value. Anything the
// node does before an Interrupt call is therefore executed again on resume
// and must be safe to repeat.
//
//	answer, err := graph.Interrupt(ctx, "approve the draft?")
//	if err != nil {
//		return graph.Result{}, err
//	}
func Interrupt(ctx context.Context, payload any) (any, error) {
	if v, ok := ResumeValue(ctx); ok {
		return v, nil
	}
	ni := &NodeInterrupt{Value: payload}
	if scope := scopeFromContext(ctx); scope != nil {
		ni.Node = scope.node
	}
	return nil, ni
}

// InterruptInfo describes one pause.
type InterruptInfo struct {
	Node  string `json:"node"`
	Value any    `json:"value,omitempty"`
}

// Output is the result of Invoke and Resume.
type Output struct {
	// State is the latest committed state.
	State State

	// Interrupts is non-empty when the run is paused.
	Interrupts []InterruptInfo

	// Step is the number of supersteps the thread has committed.
	Step int

	// CheckpointID identifies the last checkpoint written, empty for stateless runs.
	CheckpointID string
}

// Paused reports whether the run stopped at an interrupt.
func (o *Output) Paused() bool {
	return len(o.Interrupts) > 0
}
