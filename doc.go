// Stategraph - stateful graph execution for Go
//
// Stategraph runs workflows described as directed graphs of nodes over a
// shared state. It executes nodes in bulk-synchronous supersteps, merges their
// partial updates through per-field reducers, and checkpoints every step so a
// run can be resumed, inspected or paused for human input.
//
// # Quick Start
//
// Install the package:
//
//	go get github.com/smallnest/stategraph
//
// Basic example:
//
//	package main
//
//	import (
//		"context"
//		"fmt"
//
//		"github.com/smallnest/stategraph/graph"
//		"github.com/smallnest/stategraph/store/memory"
//	)
//
//	func main() {
//		schema := graph.NewSchema().AddField("nlist", graph.AppendReducer, nil)
//		g := graph.NewStateGraph(schema)
//
//		g.AddNode("a", func(ctx context.Context, s graph.State) (graph.Result, error) {
//			return graph.Update(nil), nil
//		})
//		g.AddNode("b", func(ctx context.Context, s graph.State) (graph.Result, error) {
//			return graph.Update(graph.State{"nlist": "B"}), nil
//		})
//		g.SetEntryPoint("a")
//		g.AddConditionalEdge("a", func(ctx context.Context, s graph.State) string {
//			list := s["nlist"].([]string)
//			if list[len(list)-1] == "b" {
//				return "b"
//			}
//			return graph.END
//		}, "b")
//		g.SetFinishPoint("b")
//
//		compiled, _ := g.Compile(graph.WithCheckpointer(memory.NewMemoryCheckpointStore()))
//		out, _ := compiled.Invoke(context.Background(),
//			graph.State{"nlist": []string{"b"}}, graph.WithThreadID("demo"))
//
//		fmt.Println(out.State["nlist"]) // [b B]
//	}
//
// # Packages
//
//   - graph: schema, builder, superstep scheduler, interrupts, tracing, visualization
//   - store: checkpoint model, the CheckpointStore interface and codecs
//   - store/memory, store/file, store/sqlite, store/postgres, store/redis: stores
//   - store/storetest: conformance suite shared by the stores
//   - log: leveled logging with a golog adapter
//   - metrics: Prometheus collectors fed by graph traces
//
// # Checkpoint stores
//
// Every store is append-only per thread and assigns increasing versions.
// Stores serialize checkpoints with a store.Codec: JSON by default, msgpack,
// or either one compressed with zstd.
//
//	st := redis.NewRedisCheckpointStore(redis.RedisOptions{
//		Addr:  "localhost:6379",
//		Codec: store.Compressed(store.MsgpackCodec{}),
//	})
//
// A value restored by the JSON codec loses its Go type (numbers become
// float64, slices []any). graph.Decode copies such a state into a struct.
package stategraph // import "github.com/smallnest/stategraph"
