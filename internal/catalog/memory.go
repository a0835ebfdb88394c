package catalog

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore keeps services in a map. Used for local runs and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	services map[uuid.UUID]Service
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{services: make(map[uuid.UUID]Service)}
}

func (s *MemoryStore) Get(_ context.Context, id uuid.UUID) (Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	svc, ok := s.services[id]
	if !ok {
		return Service{}, ErrServiceNotFound
	}
	return svc, nil
}

func (s *MemoryStore) List(_ context.Context) ([]Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Service, 0, len(s.services))
	for _, svc := range s.services {
		out = append(out, svc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *MemoryStore) Upsert(_ context.Context, svc Service) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.services[svc.ID] = svc
	return nil
}

// Delete removes a service. Existing requests keep their cost snapshot.
func (s *MemoryStore) Delete(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.services, id)
}
