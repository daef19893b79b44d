package graph

import (
	"errors"
	"fmt"
)

var (
	// ErrNoEntryPoint is returned by Compile when START has no outgoing edge.
	ErrNoEntryPoint = errors.New("entry point not set")

	// ErrStepLimitExceeded is matched by *StepLimitError.
	ErrStepLimitExceeded = errors.New("step limit exceeded")

	// ErrMultipleInterrupts is returned when more than one node of the same
	// superstep asks to interrupt. Nothing from that step is committed.
	ErrMultipleInterrupts = errors.New("multiple nodes interrupted in the same superstep")

	// ErrNoPendingInterrupt is returned by Resume when the thread is not paused.
	ErrNoPendingInterrupt = errors.New("no pending interrupt")

	// ErrThreadRequired is returned by thread operations called without a thread id.
	ErrThreadRequired = errors.New("thread id is required")

	// ErrNoCheckpointer is returned by thread operations on a graph compiled
	// without WithCheckpointer.
	ErrNoCheckpointer = errors.New("graph was compiled without a checkpointer")
)

// SchemaError reports an update for a field the schema does not declare.
type SchemaError struct {
	Field string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("field %q is not declared in the state schema", e.Field)
}

// DuplicateNodeError reports a node name registered twice or a reserved name.
type DuplicateNodeError struct {
	Node string
}

func (e *DuplicateNodeError) Error() string {
	if e.Node == START || e.Node == END {
		return fmt.Sprintf("node name %q is reserved", e.Node)
	}
	return fmt.Sprintf("node %q already registered", e.Node)
}

// UnknownNodeError reports a reference to a node that was never registered.
type UnknownNodeError struct {
	Node string
	// Ref describes where the reference came from, e.g. "edge from a".
	Ref string
}

func (e *UnknownNodeError) Error() string {
	if e.Ref == "" {
		return fmt.Sprintf("unknown node %q", e.Node)
	}
	return fmt.Sprintf("unknown node %q in %s", e.Node, e.Ref)
}

// UnreachableNodeError reports a node that cannot be reached from START.
type UnreachableNodeError struct {
	Node string
}

func (e *UnreachableNodeError) Error() string {
	return fmt.Sprintf("node %q is not reachable from %s", e.Node, START)
}

// NoTerminationError reports that static analysis found no way to finish a run.
// Compile only returns it with WithStrictTermination.
type NoTerminationError struct{}

func (e *NoTerminationError) Error() string {
	return fmt.Sprintf("no path from %s reaches %s", START, END)
}

// IllegalGotoError reports an explicit destination the node did not declare.
type IllegalGotoError struct {
	Node        string
	Destination string
}

func (e *IllegalGotoError) Error() string {
	return fmt.Sprintf("node %q may not go to %q", e.Node, e.Destination)
}

// RoutingError reports a router that returned a destination outside its
// declared set, or that panicked. Cause holds the recovered panic.
type RoutingError struct {
	From        string
	Destination string
	Cause       error
}

func (e *RoutingError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("router of %q failed: %v", e.From, e.Cause)
	}
	if e.Destination == "" {
		return fmt.Sprintf("router of %q returned no destination", e.From)
	}
	return fmt.Sprintf("router of %q returned undeclared destination %q", e.From, e.Destination)
}

func (e *RoutingError) Unwrap() error {
	return e.Cause
}

// NodeExecutionError wraps an error returned by, or a panic raised in, a node.
type NodeExecutionError struct {
	Node  string
	Cause error
}

func (e *NodeExecutionError) Error() string {
	return fmt.Sprintf("error in node %s: %v", e.Node, e.Cause)
}

func (e *NodeExecutionError) Unwrap() error {
	return e.Cause
}

// StepLimitError is returned when a run would exceed its superstep budget.
type StepLimitError struct {
	Limit int
}

func (e *StepLimitError) Error() string {
	return fmt.Sprintf("%v: more than %d supersteps", ErrStepLimitExceeded, e.Limit)
}

func (e *StepLimitError) Is(target error) bool {
	return target == ErrStepLimitExceeded
}
