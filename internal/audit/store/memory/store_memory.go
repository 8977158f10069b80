package memory

import (
	"context"
	"sync"

	"villageops/internal/audit"
	"villageops/pkg/domain"
)

// InMemoryStore keeps entries in append order behind a mutex. Intended for
// tests and for running the server without Postgres.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries []audit.Entry
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
}

func (s *InMemoryStore) Append(_ context.Context, entry audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

// ListRecent returns up to limit entries, most recent first.
func (s *InMemoryStore) ListRecent(_ context.Context, limit int) ([]audit.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.entries)
	if limit > n {
		limit = n
	}
	out := make([]audit.Entry, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, s.entries[i])
	}
	return out, nil
}

// ListByEntity returns entries for one entity in append order.
func (s *InMemoryStore) ListByEntity(_ context.Context, entityKind string, entityID domain.EntityID) ([]audit.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []audit.Entry
	for _, e := range s.entries {
		if e.EntityKind == entityKind && e.EntityID == entityID {
			out = append(out, e)
		}
	}
	return out, nil
}

// Len reports the total number of entries. Test helper.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
