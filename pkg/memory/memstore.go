package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemStore is an in-memory [Store], the default when no database is
// configured. Facts do not survive a restart.
type MemStore struct {
	mu    sync.RWMutex
	facts map[string]Fact
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{facts: make(map[string]Fact)}
}

func (s *MemStore) Remember(_ context.Context, fact Fact) error {
	if fact.Key == "" {
		return fmt.Errorf("memory: fact key must not be empty")
	}
	if fact.CreatedAt.IsZero() {
		fact.CreatedAt = time.Now()
	}
	s.mu.Lock()
	s.facts[fact.Key] = fact
	s.mu.Unlock()
	return nil
}

func (s *MemStore) Recall(_ context.Context, key string) (Fact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fact, ok := s.facts[key]
	if !ok {
		return Fact{}, fmt.Errorf("%w: %q", ErrNotFound, key)
	}
	return fact, nil
}

func (s *MemStore) List(_ context.Context) ([]Fact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Fact, 0, len(s.facts))
	for _, fact := range s.facts {
		out = append(out, fact)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *MemStore) Forget(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.facts[key]; !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, key)
	}
	delete(s.facts, key)
	return nil
}

var _ Store = (*MemStore)(nil)
