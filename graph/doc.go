// Package graph provides the state graph construction and execution engine.
//
// A graph is a set of named nodes over a shared State. Nodes return partial
// updates which a Schema merges field by field through reducers. Control flows
// along static edges, conditional edges chosen by a Router, or explicit Goto
// destinations declared when a node is added.
//
// # Execution model
//
// Runs proceed in supersteps. Every node of the frontier runs concurrently
// against the state committed by the previous superstep; none sees another's
// output from the same step. Updates are then merged in node registration
// order, so results are deterministic whatever order the nodes finish in. The
// next frontier is the union of the destinations of every node that ran,
// with routers evaluated against the merged state. The run ends when the
// frontier is empty or only END remains. A failing node aborts the superstep
// and nothing from it is committed. Runs are bounded by WithMaxSteps.
//
//	schema := graph.NewSchema().
//		AddField("messages", graph.AppendReducer, func() any { return []string{} })
//
//	g := graph.NewStateGraph(schema)
//	g.AddNode("agent", func(ctx context.Context, state graph.State) (graph.Result, error) {
//		return graph.Update(graph.State{"messages": "hello"}), nil
//	})
//	g.SetEntryPoint("agent")
//	g.SetFinishPoint("agent")
//
//	compiled, err := g.Compile()
//	if err != nil {
//		return err
//	}
//	out, err := compiled.Invoke(ctx, graph.State{"messages": "hi"}, nil)
//
// # Threads and checkpoints
//
// Compiled with WithCheckpointer, a graph persists a checkpoint after every
// superstep of a run whose Config names a ThreadID. Calling Invoke again on
// the same thread merges the new input into the saved state. GetState,
// History and UpdateState inspect and edit a thread.
//
// # Interrupts
//
// A node pauses the run by calling Interrupt, or by returning Suspend. The
// paused thread is answered with Resume, which runs the node again from its
// start; the node's Interrupt calls then return the supplied values in order.
// Config.InterruptBefore and Config.InterruptAfter pause around named nodes
// without any code in the node. Pausing needs a thread; a run without one
// fails with ErrThreadRequired instead.
//
//	answer, err := graph.Interrupt(ctx, "approve?")
//	if err != nil {
//		return graph.Result{}, err
//	}
//
// # Observability
//
// A Tracer receives spans for runs, supersteps, nodes, edges and interrupts.
// Structure describes a compiled graph, and Exporter renders it as Mermaid,
// DOT or ASCII.
package graph
