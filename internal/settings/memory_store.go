package settings

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps config documents in memory.
type MemoryStore struct {
	mu   sync.Mutex
	docs map[string]NotificationConfig
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: map[string]NotificationConfig{}}
}

// Get returns the document or ErrNotFound.
func (s *MemoryStore) Get(ctx context.Context, configID string) (NotificationConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg, ok := s.docs[configID]
	if !ok {
		return NotificationConfig{}, ErrNotFound
	}
	return cfg, nil
}

// Put replaces the document.
func (s *MemoryStore) Put(ctx context.Context, cfg NotificationConfig) error {
	cfg.UpdatedAt = time.Now().UTC()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[cfg.ConfigID] = cfg
	return nil
}
