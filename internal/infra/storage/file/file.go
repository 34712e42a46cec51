// Package file stores the session snapshot as a JSON file on local disk.
package file

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
	"github.com/google/renameio/v2"

	"github.com/vietddude/botkeeper/internal/core/domain"
	"github.com/vietddude/botkeeper/internal/infra/storage"
)

// FileMode is the permission used for the snapshot file.
const FileMode = 0o644

// recentWrites bounds how many of our own file versions the watcher can
// still recognise when its events lag behind Save.
const recentWrites = 32

// ErrLocked is returned when another process owns the snapshot file.
var ErrLocked = errors.New("snapshot file locked by another process")

// Store writes the snapshot atomically and holds an exclusive lock on
// <path>.lock for its lifetime so two processes never manage the same pool.
type Store struct {
	path string
	lock *flock.Flock

	mu   sync.Mutex
	seen [recentWrites][sha256.Size]byte
	next int
	full bool
}

// Open locks and opens the snapshot at path. The file itself may not exist yet.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create snapshot dir: %w", err)
		}
	}

	lock := flock.New(path + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquiring snapshot lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s", ErrLocked, path)
	}

	return &Store{path: path, lock: lock}, nil
}

// Path returns the snapshot file path.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) Save(ctx context.Context, params []domain.Params) error {
	data, err := storage.Encode(params)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// Recorded before the rename so the watcher never sees an unknown own version.
	s.rememberLocked(data)
	if err := renameio.WriteFile(s.path, data, FileMode); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	return nil
}

func (s *Store) Load(ctx context.Context) ([]domain.Params, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, storage.ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	s.mu.Lock()
	s.rememberLocked(data)
	s.mu.Unlock()

	return storage.Decode(data)
}

func (s *Store) Close() error {
	return s.lock.Unlock()
}

// isOwnWrite reports whether data matches one of the recent versions this
// process wrote or read.
func (s *Store) isOwnWrite(data []byte) bool {
	sum := sha256.Sum256(data)

	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.next
	if s.full {
		n = recentWrites
	}
	for i := 0; i < n; i++ {
		if s.seen[i] == sum {
			return true
		}
	}
	return false
}

// acceptEdit records an external version so repeated events for it are
// reported once.
func (s *Store) acceptEdit(data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rememberLocked(data)
}

func (s *Store) rememberLocked(data []byte) {
	s.seen[s.next] = sha256.Sum256(data)
	s.next++
	if s.next == recentWrites {
		s.next, s.full = 0, true
	}
}
