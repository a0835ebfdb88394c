package directory

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

type MemoryStore struct {
	mu         sync.RWMutex
	providers  map[uuid.UUID]Provider
	byContact  map[string]uuid.UUID
	requesters map[uuid.UUID]Requester
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		providers:  make(map[uuid.UUID]Provider),
		byContact:  make(map[string]uuid.UUID),
		requesters: make(map[uuid.UUID]Requester),
	}
}

func (s *MemoryStore) Provider(_ context.Context, id uuid.UUID) (Provider, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.providers[id]
	if !ok {
		return Provider{}, ErrProviderNotFound
	}
	return p, nil
}

func (s *MemoryStore) ProviderByContact(_ context.Context, contact string) (Provider, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byContact[NormalizeContact(contact)]
	if !ok {
		return Provider{}, ErrProviderNotFound
	}
	return s.providers[id], nil
}

func (s *MemoryStore) Requester(_ context.Context, id uuid.UUID) (Requester, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.requesters[id]
	if !ok {
		return Requester{}, ErrRequesterNotFound
	}
	return r, nil
}

func (s *MemoryStore) UpsertProvider(_ context.Context, p Provider) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.Email = NormalizeContact(p.Email)
	if old, ok := s.providers[p.ID]; ok {
		delete(s.byContact, old.Email)
	}
	s.providers[p.ID] = p
	s.byContact[p.Email] = p.ID
	return nil
}

func (s *MemoryStore) UpsertRequester(_ context.Context, r Requester) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r.Email = NormalizeContact(r.Email)
	s.requesters[r.ID] = r
	return nil
}
