// Package memory keeps checkpoints in-memory for development and tests.
package memory

import (
	"context"
	"sync"

	"github.com/JakeFAU/wayback-archiver/internal/cache"
)

// Store records every checkpoint as the serialized document it would have written.
type Store struct {
	mu        sync.RWMutex
	documents [][]byte
	finals    int
	seed      []byte
	err       error
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{}
}

// Seed sets the document returned by Load.
func (s *Store) Seed(c *cache.Cache) error {
	data, err := cache.Marshal(c)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.seed = data
	s.mu.Unlock()
	return nil
}

// FailWith makes every subsequent Checkpoint return err. Pass nil to clear it.
func (s *Store) FailWith(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// Name implements storage.Provider.
func (s *Store) Name() string { return "memory" }

// Load returns the seeded cache, the most recent checkpoint, or an empty cache.
func (s *Store) Load(_ context.Context) (*cache.Cache, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n := len(s.documents); n > 0 {
		return cache.Unmarshal(s.documents[n-1])
	}
	return cache.Unmarshal(s.seed)
}

// Checkpoint serializes the cache and keeps the document.
func (s *Store) Checkpoint(_ context.Context, c *cache.Cache, final bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	data, err := cache.Marshal(c)
	if err != nil {
		return err
	}
	s.documents = append(s.documents, data)
	if final {
		s.finals++
	}
	return nil
}

// Checkpoints returns how many checkpoints succeeded.
func (s *Store) Checkpoints() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.documents)
}

// Finals returns how many successful checkpoints were flagged final.
func (s *Store) Finals() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.finals
}

// Persisted returns the cache as of checkpoint n (0-based).
func (s *Store) Persisted(n int) (*cache.Cache, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cache.Unmarshal(s.documents[n])
}
