package requests

import (
	"context"

	"github.com/google/uuid"
)

// MutateFunc changes r in place. Returning an error discards the change.
type MutateFunc func(r *ServiceRequest) error

// AssignFunc is a MutateFunc that also learns whether the provider holds another active request.
type AssignFunc func(r *ServiceRequest, busy bool) error

// Ledger is the durable record of service requests. Mutate and Assign are atomic units:
// the request is locked for the duration of fn, and Assign additionally serializes on the provider.
type Ledger interface {
	Insert(ctx context.Context, r ServiceRequest) error
	Get(ctx context.Context, id uuid.UUID) (ServiceRequest, error)
	ListByRequester(ctx context.Context, requesterID uuid.UUID, statuses []Status) ([]ServiceRequest, error)
	List(ctx context.Context, statuses []Status) ([]ServiceRequest, error)
	Mutate(ctx context.Context, id uuid.UUID, fn MutateFunc) (ServiceRequest, error)
	Assign(ctx context.Context, id, providerID uuid.UUID, fn AssignFunc) (ServiceRequest, error)
}
