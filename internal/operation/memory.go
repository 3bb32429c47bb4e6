package operation

import (
	"context"
	"sync"
	"time"
)

// Compile-time check that MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)

// MemoryStore is an in-memory implementation of Store.
// It uses a map with RWMutex for thread-safe access. Operation state is
// lost on process restart; no persistence guarantee is made.
type MemoryStore struct {
	mu  sync.RWMutex
	ops map[string]*Operation
}

// NewMemoryStore creates a new in-memory operation store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		ops: make(map[string]*Operation),
	}
}

// Save persists an operation to the in-memory storage.
// Creates a clone to avoid external mutations.
func (s *MemoryStore) Save(_ context.Context, op *Operation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops[op.ID] = op.Clone()
	return nil
}

// FindByID retrieves an operation by its ID.
// Returns a clone to prevent external mutations.
func (s *MemoryStore) FindByID(_ context.Context, id string) (*Operation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	op, ok := s.ops[id]
	if !ok {
		return nil, ErrNotFound
	}
	return op.Clone(), nil
}

// Update applies mutate to the stored operation while holding the store
// lock, so concurrent updaters serialize and no update is lost. The
// operation's own transition guard keeps terminal states from regressing.
func (s *MemoryStore) Update(_ context.Context, id string, mutate func(*Operation) error) (*Operation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	op, ok := s.ops[id]
	if !ok {
		return nil, ErrNotFound
	}
	if err := mutate(op); err != nil {
		return nil, err
	}
	return op.Clone(), nil
}

// List returns all operations in the store.
// Returns clones to prevent external mutations.
func (s *MemoryStore) List(_ context.Context) ([]*Operation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*Operation, 0, len(s.ops))
	for _, op := range s.ops {
		result = append(result, op.Clone())
	}
	return result, nil
}

// Delete removes an operation from storage.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ops[id]; !ok {
		return ErrNotFound
	}
	delete(s.ops, id)
	return nil
}

// CleanupExpired removes terminal operations whose completion is older than
// the given duration.
func (s *MemoryStore) CleanupExpired(_ context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().Add(-olderThan)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, op := range s.ops {
		if op.GetStatus().IsTerminal() && op.CompletedAt.Before(cutoff) {
			delete(s.ops, id)
			removed++
		}
	}
	return removed, nil
}
