package requests

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sudo-init-do/fieldhub/internal/catalog"
	"github.com/sudo-init-do/fieldhub/internal/directory"
)

type Status string

const (
	StatusPending   Status = "Pending"
	StatusAccepted  Status = "Accepted"
	StatusArrived   Status = "Arrived"
	StatusCompleted Status = "Completed"
	StatusCancelled Status = "Cancelled"
)

// ActiveStatuses are the states a requester can still act on.
var ActiveStatuses = []Status{StatusPending, StatusAccepted, StatusArrived}

// ParseStatus rejects anything outside the five lifecycle states.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusPending, StatusAccepted, StatusArrived, StatusCompleted, StatusCancelled:
		return st, nil
	}
	return "", &ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", s)}
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// holdsProvider reports whether the status counts against the provider's single active job.
func (s Status) holdsProvider() bool {
	return s == StatusAccepted || s == StatusArrived
}

// Role is the party a confirmation is made on behalf of.
type Role string

const (
	RoleProvider Role = "provider"
	RoleUser     Role = "user"
)

func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleProvider, RoleUser:
		return r, nil
	}
	return "", ErrInvalidRole
}

type ServiceRequest struct {
	ID                  uuid.UUID  `json:"id"`
	ServiceID           uuid.UUID  `json:"service_id"`
	RequesterID         uuid.UUID  `json:"requester_id"`
	ProviderID          *uuid.UUID `json:"provider_id"`
	Status              Status     `json:"status"`
	Notes               string     `json:"notes"`
	Lat                 float64    `json:"lat"`
	Lng                 float64    `json:"lng"`
	EstimatedCost       int64      `json:"estimated_cost"`
	ArrivedByProvider   bool       `json:"arrived_by_provider"`
	ArrivedByUser       bool       `json:"arrived_by_user"`
	CompletedByProvider bool       `json:"completed_by_provider"`
	CompletedByUser     bool       `json:"completed_by_user"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// MaxNotesLen bounds the free-text notes on a request.
const MaxNotesLen = 2000

// Patch is the set of fields a requester may edit. Nil means unchanged.
// Status carries the raw client value; it is parsed only after the edit window check.
type Patch struct {
	Notes  *string
	Lat    *float64
	Lng    *float64
	Status *string
}

func (p Patch) empty() bool {
	return p.Notes == nil && p.Lat == nil && p.Lng == nil && p.Status == nil
}

// View is a request with its service and provider resolved.
type View struct {
	ServiceRequest
	Service  catalog.Service     `json:"service"`
	Provider *directory.Provider `json:"provider"`
}
