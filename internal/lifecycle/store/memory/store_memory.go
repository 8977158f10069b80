// Package memory provides an in-memory entity store for tests and for
// running without a database.
package memory

import (
	"context"
	"sync"

	"villageops/internal/lifecycle"
	"villageops/pkg/domain"
	"villageops/pkg/platform/sentinel"
)

type entityKey struct {
	kind lifecycle.Kind
	id   domain.EntityID
}

type naturalKey struct {
	kind        lifecycle.Kind
	communityID domain.CommunityID
	key         string
}

// InMemoryStore implements lifecycle.EntityStore with map storage. Writes and
// reads copy entities, so callers never share mutable state with the store.
type InMemoryStore struct {
	mu       sync.Mutex
	entities map[entityKey]*lifecycle.Entity
	byKey    map[naturalKey]domain.EntityID
}

// NewInMemoryStore creates an empty in-memory entity store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		entities: make(map[entityKey]*lifecycle.Entity),
		byKey:    make(map[naturalKey]domain.EntityID),
	}
}

func (s *InMemoryStore) Create(_ context.Context, e *lifecycle.Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := entityKey{kind: e.Kind, id: e.ID}
	if _, exists := s.entities[k]; exists {
		return sentinel.ErrConflict
	}
	s.entities[k] = e.Clone()
	return nil
}

func (s *InMemoryStore) CreateIfKeyAvailable(_ context.Context, e *lifecycle.Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	nk := naturalKey{kind: e.Kind, communityID: e.CommunityID, key: e.Key}
	if _, taken := s.byKey[nk]; taken {
		return sentinel.ErrAlreadyUsed
	}
	k := entityKey{kind: e.Kind, id: e.ID}
	if _, exists := s.entities[k]; exists {
		return sentinel.ErrConflict
	}
	s.entities[k] = e.Clone()
	s.byKey[nk] = e.ID
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, kind lifecycle.Kind, id domain.EntityID) (*lifecycle.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entities[entityKey{kind: kind, id: id}]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return e.Clone(), nil
}

func (s *InMemoryStore) FindByKey(_ context.Context, kind lifecycle.Kind, communityID domain.CommunityID, key string) (*lifecycle.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byKey[naturalKey{kind: kind, communityID: communityID, key: key}]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	e, ok := s.entities[entityKey{kind: kind, id: id}]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return e.Clone(), nil
}

// UpdateIfStatus replaces the stored entity only when its current status
// still equals expected. The check and the write happen under one lock, so a
// concurrent transition loses with sentinel.ErrConflict.
func (s *InMemoryStore) UpdateIfStatus(_ context.Context, expected lifecycle.Status, e *lifecycle.Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := entityKey{kind: e.Kind, id: e.ID}
	current, ok := s.entities[k]
	if !ok {
		return sentinel.ErrNotFound
	}
	if current.Status != expected {
		return sentinel.ErrConflict
	}
	s.entities[k] = e.Clone()
	return nil
}

// Len reports the number of stored entities. Test helper.
func (s *InMemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entities)
}

// Clear removes all entities. Test helper.
func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entities = make(map[entityKey]*lifecycle.Entity)
	s.byKey = make(map[naturalKey]domain.EntityID)
}
