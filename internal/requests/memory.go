package requests

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// MemoryLedger keeps requests in process. One mutex covers every atomic unit,
// which serializes Assign across providers as well.
type MemoryLedger struct {
	mu    sync.Mutex
	rows  map[uuid.UUID]ServiceRequest
	order []uuid.UUID
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{rows: make(map[uuid.UUID]ServiceRequest)}
}

func (l *MemoryLedger) Insert(_ context.Context, r ServiceRequest) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if r.ProviderID != nil && r.Status.holdsProvider() && l.busy(*r.ProviderID, r.ID) {
		return ErrProviderBusy
	}
	l.rows[r.ID] = clone(r)
	l.order = append(l.order, r.ID)
	return nil
}

func (l *MemoryLedger) Get(_ context.Context, id uuid.UUID) (ServiceRequest, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	r, ok := l.rows[id]
	if !ok {
		return ServiceRequest{}, ErrNotFound
	}
	return clone(r), nil
}

func (l *MemoryLedger) ListByRequester(_ context.Context, requesterID uuid.UUID, statuses []Status) ([]ServiceRequest, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.filter(func(r ServiceRequest) bool {
		return r.RequesterID == requesterID && matches(r.Status, statuses)
	}), nil
}

func (l *MemoryLedger) List(_ context.Context, statuses []Status) ([]ServiceRequest, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.filter(func(r ServiceRequest) bool { return matches(r.Status, statuses) }), nil
}

func (l *MemoryLedger) Mutate(_ context.Context, id uuid.UUID, fn MutateFunc) (ServiceRequest, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	r, ok := l.rows[id]
	if !ok {
		return ServiceRequest{}, ErrNotFound
	}
	r = clone(r)
	if err := fn(&r); err != nil {
		return ServiceRequest{}, err
	}
	if r.ProviderID != nil && r.Status.holdsProvider() && l.busy(*r.ProviderID, r.ID) {
		return ServiceRequest{}, ErrProviderBusy
	}
	l.rows[id] = r
	return clone(r), nil
}

func (l *MemoryLedger) Assign(_ context.Context, id, providerID uuid.UUID, fn AssignFunc) (ServiceRequest, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	r, ok := l.rows[id]
	if !ok {
		return ServiceRequest{}, ErrNotFound
	}
	r = clone(r)
	if err := fn(&r, l.busy(providerID, id)); err != nil {
		return ServiceRequest{}, err
	}
	l.rows[id] = r
	return clone(r), nil
}

// busy reports whether providerID holds an active request other than except. Caller holds mu.
func (l *MemoryLedger) busy(providerID, except uuid.UUID) bool {
	for id, r := range l.rows {
		if id != except && r.ProviderID != nil && *r.ProviderID == providerID && r.Status.holdsProvider() {
			return true
		}
	}
	return false
}

// filter returns matching rows newest first. Caller holds mu.
func (l *MemoryLedger) filter(keep func(ServiceRequest) bool) []ServiceRequest {
	out := []ServiceRequest{}
	for i := len(l.order) - 1; i >= 0; i-- {
		if r := l.rows[l.order[i]]; keep(r) {
			out = append(out, clone(r))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func matches(s Status, statuses []Status) bool {
	if len(statuses) == 0 {
		return true
	}
	for _, st := range statuses {
		if s == st {
			return true
		}
	}
	return false
}

func clone(r ServiceRequest) ServiceRequest {
	if r.ProviderID != nil {
		id := *r.ProviderID
		r.ProviderID = &id
	}
	return r
}
