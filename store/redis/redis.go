package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/smallnest/stategraph/store"
)

// RedisCheckpointStore implements store.CheckpointStore using Redis.
//
// Layout under the prefix:
//
//	checkpoint:<id>            encoded checkpoint
//	thread:<tid>:seq           last version handed out
//	thread:<tid>:checkpoints   ZSET of checkpoint ids scored by version
type RedisCheckpointStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	codec  store.Codec
}

var _ store.CheckpointStore = (*RedisCheckpointStore)(nil)

// RedisOptions configuration for Redis connection
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string        // Key prefix, default "stategraph:"
	TTL      time.Duration // Expiration for checkpoints, default 0 (no expiration)
	Codec    store.Codec   // Default JSON
}

// NewRedisCheckpointStore creates a new Redis checkpoint store
func NewRedisCheckpointStore(opts RedisOptions) *RedisCheckpointStore {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	return NewRedisCheckpointStoreFromClient(client, opts)
}

// NewRedisCheckpointStoreFromClient wraps an existing client. Connection fields
// of opts are ignored.
func NewRedisCheckpointStoreFromClient(client *redis.Client, opts RedisOptions) *RedisCheckpointStore {
	prefix := opts.Prefix
	if prefix == "" {
		prefix = "stategraph:"
	}
	codec := opts.Codec
	if codec == nil {
		codec = store.DefaultCodec()
	}
	return &RedisCheckpointStore{
		client: client,
		prefix: prefix,
		ttl:    opts.TTL,
		codec:  codec,
	}
}

// Close closes the underlying client
func (s *RedisCheckpointStore) Close() error {
	return s.client.Close()
}

func (s *RedisCheckpointStore) checkpointKey(id string) string {
	return fmt.Sprintf("%scheckpoint:%s", s.prefix, id)
}

func (s *RedisCheckpointStore) seqKey(threadID string) string {
	return fmt.Sprintf("%sthread:%s:seq", s.prefix, threadID)
}

func (s *RedisCheckpointStore) indexKey(threadID string) string {
	return fmt.Sprintf("%sthread:%s:checkpoints", s.prefix, threadID)
}

// maxSaveRetries bounds the optimistic transaction retries of one Save.
const maxSaveRetries = 100

// Save stores a checkpoint. The thread sequence and the checkpoint key are
// watched, and the version bump, the checkpoint and its index entry are
// written in one MULTI/EXEC, so concurrent writers on the same thread get
// strictly increasing versions and a failed save leaves nothing behind.
func (s *RedisCheckpointStore) Save(ctx context.Context, checkpoint *store.Checkpoint) error {
	if err := store.Validate(checkpoint); err != nil {
		return err
	}

	key := s.checkpointKey(checkpoint.ID)
	seqKey := s.seqKey(checkpoint.ThreadID)
	indexKey := s.indexKey(checkpoint.ThreadID)

	var version int
	txf := func(tx *redis.Tx) error {
		exists, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return fmt.Errorf("failed to check checkpoint in redis: %w", err)
		}
		if exists > 0 {
			return fmt.Errorf("%w: %s", store.ErrCheckpointExists, checkpoint.ID)
		}

		current, err := tx.Get(ctx, seqKey).Int()
		if err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("failed to read checkpoint version: %w", err)
		}
		version = current + 1

		cp := *checkpoint
		cp.Version = version
		data, err := s.codec.Marshal(&cp)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, seqKey, version, s.ttl)
			pipe.Set(ctx, key, data, s.ttl)
			pipe.ZAdd(ctx, indexKey, redis.Z{Score: float64(version), Member: checkpoint.ID})
			if s.ttl > 0 {
				pipe.Expire(ctx, indexKey, s.ttl)
			}
			return nil
		})
		return err
	}

	for i := 0; i < maxSaveRetries; i++ {
		err := s.client.Watch(ctx, txf, key, seqKey)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			if errors.Is(err, store.ErrCheckpointExists) {
				return err
			}
			return fmt.Errorf("failed to save checkpoint to redis: %w", err)
		}
		checkpoint.Version = version
		return nil
	}
	return fmt.Errorf("failed to save checkpoint to redis: too much contention on thread %s", checkpoint.ThreadID)
}

// Load retrieves a checkpoint by ID
func (s *RedisCheckpointStore) Load(ctx context.Context, checkpointID string) (*store.Checkpoint, error) {
	data, err := s.client.Get(ctx, s.checkpointKey(checkpointID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: %s", store.ErrNotFound, checkpointID)
		}
		return nil, fmt.Errorf("failed to load checkpoint from redis: %w", err)
	}
	return s.codec.Unmarshal(data)
}

// LoadLatest returns the highest version of the thread
func (s *RedisCheckpointStore) LoadLatest(ctx context.Context, threadID string) (*store.Checkpoint, error) {
	ids, err := s.client.ZRevRange(ctx, s.indexKey(threadID), 0, 0).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read thread index: %w", err)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: thread %s", store.ErrNotFound, threadID)
	}
	return s.Load(ctx, ids[0])
}

// List returns all checkpoints of the thread, oldest first. Expired entries are skipped.
func (s *RedisCheckpointStore) List(ctx context.Context, threadID string) ([]*store.Checkpoint, error) {
	ids, err := s.client.ZRange(ctx, s.indexKey(threadID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints for thread %s: %w", threadID, err)
	}
	if len(ids) == 0 {
		return []*store.Checkpoint{}, nil
	}

	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, s.checkpointKey(id))
	}

	results, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch checkpoints: %w", err)
	}

	checkpoints := make([]*store.Checkpoint, 0, len(results))
	for _, result := range results {
		strData, ok := result.(string)
		if !ok {
			continue
		}
		cp, err := s.codec.Unmarshal([]byte(strData))
		if err != nil {
			return nil, err
		}
		checkpoints = append(checkpoints, cp)
	}
	return checkpoints, nil
}

// Clear removes all checkpoints of the thread
func (s *RedisCheckpointStore) Clear(ctx context.Context, threadID string) error {
	indexKey := s.indexKey(threadID)
	ids, err := s.client.ZRange(ctx, indexKey, 0, -1).Result()
	if err != nil {
		return fmt.Errorf("failed to get checkpoints for clearing: %w", err)
	}

	pipe := s.client.Pipeline()
	for _, id := range ids {
		pipe.Del(ctx, s.checkpointKey(id))
	}
	pipe.Del(ctx, indexKey, s.seqKey(threadID))

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to clear checkpoints: %w", err)
	}
	return nil
}
