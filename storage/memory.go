package storage

import (
	"context"
	"sync"
)

// MemoryStore keeps encoded records so that callers never share state with the store
type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	checkpoints map[string][]byte
	history     map[string][]float64
}

var _ Store = &MemoryStore{}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.initialized {
		return nil
	}
	s.initialized = true
	s.checkpoints = make(map[string][]byte)
	s.history = make(map[string][]float64)
	return nil
}

func (s *MemoryStore) SaveCheckpoint(_ context.Context, checkpoint *Checkpoint) error {
	payload, err := EncodeCheckpoint(checkpoint)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return ErrNotInitialized
	}
	s.checkpoints[checkpoint.RunID] = payload
	return nil
}

func (s *MemoryStore) LatestCheckpoint(_ context.Context, runID string) (*Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.initialized {
		return nil, ErrNotInitialized
	}
	payload, ok := s.checkpoints[runID]
	if !ok {
		return nil, ErrNotFound
	}
	return DecodeCheckpoint(payload)
}

func (s *MemoryStore) SaveRewardHistory(_ context.Context, runID string, history []float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return ErrNotInitialized
	}
	s.history[runID] = append([]float64(nil), history...)
	return nil
}

func (s *MemoryStore) GetRewardHistory(_ context.Context, runID string) ([]float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.initialized {
		return nil, ErrNotInitialized
	}
	history, ok := s.history[runID]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]float64(nil), history...), nil
}

func (s *MemoryStore) Close() error {
	return nil
}
