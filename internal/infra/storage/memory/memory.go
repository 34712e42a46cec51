package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/vietddude/botkeeper/internal/core/domain"
	"github.com/vietddude/botkeeper/internal/infra/storage"
)

// MemoryStorage keeps the snapshot in process memory. Used for ephemeral
// runs and tests.
type MemoryStorage struct {
	mu      sync.RWMutex
	params  []domain.Params
	present bool
	saves   int
	saveErr error
	loadErr error
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

func (s *MemoryStorage) Save(ctx context.Context, params []domain.Params) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	if s.saveErr != nil {
		return s.saveErr
	}
	s.params = slices.Clone(params)
	s.present = true
	return nil
}

func (s *MemoryStorage) Load(ctx context.Context) ([]domain.Params, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	if !s.present {
		return nil, storage.ErrNoSnapshot
	}
	return slices.Clone(s.params), nil
}

func (s *MemoryStorage) Close() error {
	return nil
}

// Saves returns how many times Save was called, failed calls included.
func (s *MemoryStorage) Saves() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves
}

// Snapshot returns the last saved parameters.
func (s *MemoryStorage) Snapshot() []domain.Params {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.params)
}

// FailSaves makes every following Save return err. Pass nil to recover.
func (s *MemoryStorage) FailSaves(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveErr = err
}

// FailLoads makes every following Load return err. Pass nil to recover.
func (s *MemoryStorage) FailLoads(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadErr = err
}
