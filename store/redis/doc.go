// Package redis stores checkpoints in Redis.
//
// Every checkpoint is a single key; a sorted set per thread indexes the
// history by version, and an INCR counter hands out versions so concurrent
// writers on one thread never collide.
//
//	s := redis.NewRedisCheckpointStore(redis.RedisOptions{
//	    Addr: "localhost:6379",
//	    TTL:  24 * time.Hour,
//	})
//	defer s.Close()
package redis
