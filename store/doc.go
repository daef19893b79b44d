// Package store defines the checkpoint model and the CheckpointStore contract
// used by the graph runtime, plus the codecs durable backends share.
//
// A checkpoint is an immutable snapshot taken after a committed superstep.
// Checkpoints of the same thread form an append-only history; the store
// assigns each one a strictly increasing Version on Save.
//
// Backends live in sub-packages:
//
//   - store/memory: in-process reference implementation
//   - store/file: one directory per thread on the local filesystem
//   - store/sqlite: single-file SQLite database
//   - store/postgres: PostgreSQL through a pgx pool
//   - store/redis: Redis, with optional TTL expiration
//
// Durable backends encode checkpoints with a Codec. JSONCodec is the
// default; MsgpackCodec keeps integers as integers, and Compressed wraps
// either with zstd:
//
//	s := redis.NewRedisCheckpointStore(redis.RedisOptions{
//	    Addr:  "localhost:6379",
//	    Codec: store.Compressed(store.MsgpackCodec{}),
//	})
//
// Note that JSON decodes numbers in the state as float64.
package store
