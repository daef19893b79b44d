package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/smallnest/stategraph/store"
)

const uniqueViolation = "23505"

// DBPool defines the interface for database connection pool
type DBPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresCheckpointStore implements store.CheckpointStore using PostgreSQL
type PostgresCheckpointStore struct {
	pool      DBPool
	tableName string
	codec     store.Codec
}

var _ store.CheckpointStore = (*PostgresCheckpointStore)(nil)

// PostgresOptions configuration for Postgres connection
type PostgresOptions struct {
	ConnString string
	TableName  string      // Default "checkpoints"
	Codec      store.Codec // Default JSON
}

// NewPostgresCheckpointStore creates a new Postgres checkpoint store
func NewPostgresCheckpointStore(ctx context.Context, opts PostgresOptions) (*PostgresCheckpointStore, error) {
	pool, err := pgxpool.New(ctx, opts.ConnString)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}
	return NewPostgresCheckpointStoreWithPool(pool, opts), nil
}

// NewPostgresCheckpointStoreWithPool creates a new Postgres checkpoint store with an existing pool
// Useful for testing with mocks
func NewPostgresCheckpointStoreWithPool(pool DBPool, opts PostgresOptions) *PostgresCheckpointStore {
	tableName := opts.TableName
	if tableName == "" {
		tableName = "checkpoints"
	}
	codec := opts.Codec
	if codec == nil {
		codec = store.DefaultCodec()
	}
	return &PostgresCheckpointStore{
		pool:      pool,
		tableName: tableName,
		codec:     codec,
	}
}

// InitSchema creates the necessary table if it doesn't exist
func (s *PostgresCheckpointStore) InitSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			thread_id TEXT NOT NULL,
			version INTEGER NOT NULL,
			step INTEGER NOT NULL,
			data BYTEA NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			UNIQUE (thread_id, version)
		);
	`, s.tableName)

	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Close closes the connection pool
func (s *PostgresCheckpointStore) Close() {
	s.pool.Close()
}

// Save appends a checkpoint. A transaction-scoped advisory lock on the thread
// serializes concurrent writers so versions stay strictly increasing.
func (s *PostgresCheckpointStore) Save(ctx context.Context, checkpoint *store.Checkpoint) error {
	if err := store.Validate(checkpoint); err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := s.insert(ctx, tx, checkpoint); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit checkpoint: %w", err)
	}
	return nil
}

func (s *PostgresCheckpointStore) insert(ctx context.Context, tx pgx.Tx, checkpoint *store.Checkpoint) error {
	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", checkpoint.ThreadID); err != nil {
		return fmt.Errorf("failed to lock thread: %w", err)
	}

	var current int
	query := fmt.Sprintf("SELECT COALESCE(MAX(version), 0) FROM %s WHERE thread_id = $1", s.tableName)
	if err := tx.QueryRow(ctx, query, checkpoint.ThreadID).Scan(&current); err != nil {
		return fmt.Errorf("failed to read thread version: %w", err)
	}
	checkpoint.Version = current + 1

	data, err := s.codec.Marshal(checkpoint)
	if err != nil {
		return err
	}

	insert := fmt.Sprintf(`
		INSERT INTO %s (id, thread_id, version, step, data, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, s.tableName)

	_, err = tx.Exec(ctx, insert,
		checkpoint.ID,
		checkpoint.ThreadID,
		checkpoint.Version,
		checkpoint.Step,
		data,
		checkpoint.Timestamp,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("%w: %s", store.ErrCheckpointExists, checkpoint.ID)
		}
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

func (s *PostgresCheckpointStore) scanOne(row pgx.Row, what string) (*store.Checkpoint, error) {
	var data []byte
	if err := row.Scan(&data); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", store.ErrNotFound, what)
		}
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	return s.codec.Unmarshal(data)
}

// Load retrieves a checkpoint by ID
func (s *PostgresCheckpointStore) Load(ctx context.Context, checkpointID string) (*store.Checkpoint, error) {
	query := fmt.Sprintf("SELECT data FROM %s WHERE id = $1", s.tableName)
	return s.scanOne(s.pool.QueryRow(ctx, query, checkpointID), checkpointID)
}

// LoadLatest returns the highest version of the thread
func (s *PostgresCheckpointStore) LoadLatest(ctx context.Context, threadID string) (*store.Checkpoint, error) {
	query := fmt.Sprintf("SELECT data FROM %s WHERE thread_id = $1 ORDER BY version DESC LIMIT 1", s.tableName)
	return s.scanOne(s.pool.QueryRow(ctx, query, threadID), "thread "+threadID)
}

// List returns all checkpoints of the thread, oldest first
func (s *PostgresCheckpointStore) List(ctx context.Context, threadID string) ([]*store.Checkpoint, error) {
	query := fmt.Sprintf("SELECT data FROM %s WHERE thread_id = $1 ORDER BY version ASC", s.tableName)

	rows, err := s.pool.Query(ctx, query, threadID)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}
	defer rows.Close()

	checkpoints := []*store.Checkpoint{}
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan checkpoint row: %w", err)
		}
		cp, err := s.codec.Unmarshal(data)
		if err != nil {
			return nil, err
		}
		checkpoints = append(checkpoints, cp)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating checkpoint rows: %w", err)
	}
	return checkpoints, nil
}

// Clear removes all checkpoints of the thread
func (s *PostgresCheckpointStore) Clear(ctx context.Context, threadID string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE thread_id = $1", s.tableName)
	if _, err := s.pool.Exec(ctx, query, threadID); err != nil {
		return fmt.Errorf("failed to clear checkpoints: %w", err)
	}
	return nil
}
