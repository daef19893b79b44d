package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
	"github.com/smallnest/stategraph/store"
)

// SqliteCheckpointStore implements store.CheckpointStore using SQLite
type SqliteCheckpointStore struct {
	db        *sql.DB
	tableName string
	codec     store.Codec
}

var _ store.CheckpointStore = (*SqliteCheckpointStore)(nil)

// SqliteOptions configuration for SQLite connection
type SqliteOptions struct {
	Path      string
	TableName string      // Default "checkpoints"
	Codec     store.Codec // Default JSON
}

// NewSqliteCheckpointStore creates a new SQLite checkpoint store
func NewSqliteCheckpointStore(opts SqliteOptions) (*SqliteCheckpointStore, error) {
	db, err := sql.Open("sqlite3", opts.Path)
	if err != nil {
		return nil, fmt.Errorf("unable to open database: %w", err)
	}
	// A single connection serializes writers and keeps ":memory:" databases shared.
	db.SetMaxOpenConns(1)

	tableName := opts.TableName
	if tableName == "" {
		tableName = "checkpoints"
	}
	codec := opts.Codec
	if codec == nil {
		codec = store.DefaultCodec()
	}

	s := &SqliteCheckpointStore{
		db:        db,
		tableName: tableName,
		codec:     codec,
	}

	if err := s.InitSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// InitSchema creates the necessary table if it doesn't exist
func (s *SqliteCheckpointStore) InitSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			thread_id TEXT NOT NULL,
			version INTEGER NOT NULL,
			step INTEGER NOT NULL,
			data BLOB NOT NULL,
			created_at DATETIME NOT NULL,
			UNIQUE (thread_id, version)
		);
	`, s.tableName)

	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *SqliteCheckpointStore) Close() error {
	return s.db.Close()
}

// Save appends a checkpoint as the next version of its thread
func (s *SqliteCheckpointStore) Save(ctx context.Context, checkpoint *store.Checkpoint) error {
	if err := store.Validate(checkpoint); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := s.insert(ctx, tx, checkpoint); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit checkpoint: %w", err)
	}
	return nil
}

func (s *SqliteCheckpointStore) insert(ctx context.Context, tx *sql.Tx, checkpoint *store.Checkpoint) error {
	var current int
	query := fmt.Sprintf("SELECT COALESCE(MAX(version), 0) FROM %s WHERE thread_id = ?", s.tableName)
	if err := tx.QueryRowContext(ctx, query, checkpoint.ThreadID).Scan(&current); err != nil {
		return fmt.Errorf("failed to read thread version: %w", err)
	}
	checkpoint.Version = current + 1

	data, err := s.codec.Marshal(checkpoint)
	if err != nil {
		return err
	}

	insert := fmt.Sprintf(`
		INSERT INTO %s (id, thread_id, version, step, data, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, s.tableName)

	_, err = tx.ExecContext(ctx, insert,
		checkpoint.ID,
		checkpoint.ThreadID,
		checkpoint.Version,
		checkpoint.Step,
		data,
		checkpoint.Timestamp,
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey {
			return fmt.Errorf("%w: %s", store.ErrCheckpointExists, checkpoint.ID)
		}
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

func (s *SqliteCheckpointStore) scanOne(row *sql.Row, what string) (*store.Checkpoint, error) {
	var data []byte
	if err := row.Scan(&data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", store.ErrNotFound, what)
		}
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	return s.codec.Unmarshal(data)
}

// Load retrieves a checkpoint by ID
func (s *SqliteCheckpointStore) Load(ctx context.Context, checkpointID string) (*store.Checkpoint, error) {
	query := fmt.Sprintf("SELECT data FROM %s WHERE id = ?", s.tableName)
	return s.scanOne(s.db.QueryRowContext(ctx, query, checkpointID), checkpointID)
}

// LoadLatest returns the highest version of the thread
func (s *SqliteCheckpointStore) LoadLatest(ctx context.Context, threadID string) (*store.Checkpoint, error) {
	query := fmt.Sprintf("SELECT data FROM %s WHERE thread_id = ? ORDER BY version DESC LIMIT 1", s.tableName)
	return s.scanOne(s.db.QueryRowContext(ctx, query, threadID), "thread "+threadID)
}

// List returns all checkpoints of the thread, oldest first
func (s *SqliteCheckpointStore) List(ctx context.Context, threadID string) ([]*store.Checkpoint, error) {
	query := fmt.Sprintf("SELECT data FROM %s WHERE thread_id = ? ORDER BY version ASC", s.tableName)

	rows, err := s.db.QueryContext(ctx, query, threadID)
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
func (s *SqliteCheckpointStore) Clear(ctx context.Context, threadID string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE thread_id = ?", s.tableName)
	if _, err := s.db.ExecContext(ctx, query, threadID); err != nil {
		return fmt.Errorf("failed to clear checkpoints: %w", err)
	}
	return nil
}
