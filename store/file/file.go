// Package file provides a directory-backed store.CheckpointStore.
//
// Each thread gets its own sub-directory; every checkpoint is one file named
// after its zero-padded version and ID, so a directory listing is already the
// thread history in order. Writes go through a temp file and a rename.
package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/smallnest/stategraph/store"
)

const fileExt = ".ckpt"

// FileCheckpointStore implements store.CheckpointStore on the local filesystem.
// Saves for the same thread are serialized within one process.
type FileCheckpointStore struct {
	path  string
	codec store.Codec
	locks sync.Map // thread id -> *sync.Mutex

	mu    sync.Mutex
	index map[string]string // checkpoint id -> file path, nil until first scan
}

var _ store.CheckpointStore = (*FileCheckpointStore)(nil)

// Option configures a FileCheckpointStore.
type Option func(*FileCheckpointStore)

// WithCodec sets the checkpoint codec (default JSON).
func WithCodec(codec store.Codec) Option {
	return func(s *FileCheckpointStore) {
		s.codec = codec
	}
}

// NewFileCheckpointStore creates the directory if needed and returns a store rooted there.
func NewFileCheckpointStore(path string, opts ...Option) (*FileCheckpointStore, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint directory: %w", err)
	}
	s := &FileCheckpointStore{
		path:  path,
		codec: store.DefaultCodec(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// threadDir maps a thread to one directory directly under the store root.
// Dots are escaped as well, so "." and ".." never name a relative path.
func (s *FileCheckpointStore) threadDir(threadID string) (string, error) {
	if threadID == "" {
		return "", store.ErrThreadIDRequired
	}
	name := strings.ReplaceAll(url.PathEscape(threadID), ".", "%2E")
	return filepath.Join(s.path, name), nil
}

func (s *FileCheckpointStore) lock(threadID string) func() {
	v, _ := s.locks.LoadOrStore(threadID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

type entry struct {
	version int
	id      string
	path    string
}

// entries lists a thread directory in version order.
func (s *FileCheckpointStore) entries(threadID string) ([]entry, error) {
	dir, err := s.threadDir(threadID)
	if err != nil {
		return nil, err
	}
	files, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read thread directory: %w", err)
	}

	var out []entry
	for _, f := range files {
		e, ok := parseName(f.Name())
		if !ok {
			continue
		}
		e.path = filepath.Join(dir, f.Name())
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].version < out[j].version })
	return out, nil
}

func parseName(name string) (entry, bool) {
	if !strings.HasSuffix(name, fileExt) {
		return entry{}, false
	}
	base := strings.TrimSuffix(name, fileExt)
	ver, id, ok := strings.Cut(base, "-")
	if !ok {
		return entry{}, false
	}
	v, err := strconv.Atoi(ver)
	if err != nil {
		return entry{}, false
	}
	return entry{version: v, id: id}, true
}

// scan adds every checkpoint file on disk to the id index. Callers hold s.mu.
func (s *FileCheckpointStore) scan() error {
	threads, err := os.ReadDir(s.path)
	if err != nil {
		return fmt.Errorf("failed to read checkpoint directory: %w", err)
	}
	if s.index == nil {
		s.index = make(map[string]string)
	}
	for _, t := range threads {
		if !t.IsDir() {
			continue
		}
		dir := filepath.Join(s.path, t.Name())
		files, err := os.ReadDir(dir)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to read thread directory: %w", err)
		}
		for _, f := range files {
			if e, ok := parseName(f.Name()); ok {
				s.index[e.id] = filepath.Join(dir, f.Name())
			}
		}
	}
	return nil
}

// find locates a checkpoint file by ID. A miss rescans the directory once so
// files written by another process are still found.
func (s *FileCheckpointStore) find(checkpointID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if path, ok := s.index[checkpointID]; ok {
		return path, nil
	}
	if err := s.scan(); err != nil {
		return "", err
	}
	if path, ok := s.index[checkpointID]; ok {
		return path, nil
	}
	return "", fmt.Errorf("%w: %s", store.ErrNotFound, checkpointID)
}

// reserve claims a checkpoint id for path, failing if the id is taken.
func (s *FileCheckpointStore) reserve(checkpointID, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.index == nil {
		if err := s.scan(); err != nil {
			return err
		}
	}
	if _, ok := s.index[checkpointID]; ok {
		return fmt.Errorf("%w: %s", store.ErrCheckpointExists, checkpointID)
	}
	s.index[checkpointID] = path
	return nil
}

func (s *FileCheckpointStore) release(checkpointID string) {
	s.mu.Lock()
	delete(s.index, checkpointID)
	s.mu.Unlock()
}

// Save writes the checkpoint as the next version of its thread.
func (s *FileCheckpointStore) Save(_ context.Context, checkpoint *store.Checkpoint) error {
	if err := store.Validate(checkpoint); err != nil {
		return err
	}
	if strings.ContainsAny(checkpoint.ID, `/\`) {
		return fmt.Errorf("invalid checkpoint id %q", checkpoint.ID)
	}

	dir, err := s.threadDir(checkpoint.ThreadID)
	if err != nil {
		return err
	}

	unlock := s.lock(checkpoint.ThreadID)
	defer unlock()

	existing, err := s.entries(checkpoint.ThreadID)
	if err != nil {
		return err
	}
	version := 1
	if len(existing) > 0 {
		version = existing[len(existing)-1].version + 1
	}
	name := fmt.Sprintf("%08d-%s%s", version, checkpoint.ID, fileExt)
	if err := s.reserve(checkpoint.ID, filepath.Join(dir, name)); err != nil {
		return err
	}
	if err := s.write(checkpoint, version, dir, name); err != nil {
		s.release(checkpoint.ID)
		return err
	}
	checkpoint.Version = version
	return nil
}

func (s *FileCheckpointStore) write(checkpoint *store.Checkpoint, version int, dir, name string) error {
	cp := *checkpoint
	cp.Version = version
	data, err := s.codec.Marshal(&cp)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create thread directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(dir, name)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to commit checkpoint file: %w", err)
	}
	return nil
}

func (s *FileCheckpointStore) read(path string) (*store.Checkpoint, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", store.ErrNotFound, filepath.Base(path))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint file: %w", err)
	}
	return s.codec.Unmarshal(data)
}

// Load retrieves a checkpoint by ID
func (s *FileCheckpointStore) Load(_ context.Context, checkpointID string) (*store.Checkpoint, error) {
	path, err := s.find(checkpointID)
	if err != nil {
		return nil, err
	}
	return s.read(path)
}

// LoadLatest returns the highest version of the thread
func (s *FileCheckpointStore) LoadLatest(_ context.Context, threadID string) (*store.Checkpoint, error) {
	existing, err := s.entries(threadID)
	if err != nil {
		return nil, err
	}
	if len(existing) == 0 {
		return nil, fmt.Errorf("%w: thread %s", store.ErrNotFound, threadID)
	}
	return s.read(existing[len(existing)-1].path)
}

// List returns all checkpoints of the thread, oldest first
func (s *FileCheckpointStore) List(_ context.Context, threadID string) ([]*store.Checkpoint, error) {
	existing, err := s.entries(threadID)
	if err != nil {
		return nil, err
	}
	out := make([]*store.Checkpoint, 0, len(existing))
	for _, e := range existing {
		cp, err := s.read(e.path)
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	return out, nil
}

// Clear removes the thread directory
func (s *FileCheckpointStore) Clear(_ context.Context, threadID string) error {
	dir, err := s.threadDir(threadID)
	if err != nil {
		return err
	}

	unlock := s.lock(threadID)
	defer unlock()

	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to clear thread: %w", err)
	}

	s.mu.Lock()
	for id, path := range s.index {
		if filepath.Dir(path) == dir {
			delete(s.index, id)
		}
	}
	s.mu.Unlock()
	return nil
}
