// Package directory holds provider and requester profiles.
package directory

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrProviderNotFound  = errors.New("provider not found")
	ErrRequesterNotFound = errors.New("requester not found")
)

// Provider is a field professional. Email is the unique contact used to match a caller.
type Provider struct {
	ID     uuid.UUID `json:"id" yaml:"id"`
	Name   string    `json:"name" yaml:"name"`
	Email  string    `json:"email" yaml:"email"`
	Type   string    `json:"type" yaml:"type"`
	Lat    float64   `json:"lat" yaml:"lat"`
	Lng    float64   `json:"lng" yaml:"lng"`
	Rating float64   `json:"rating" yaml:"rating"`
	Phone  string    `json:"phone" yaml:"phone"`
}

// Requester is the profile of an account that files requests.
type Requester struct {
	ID    uuid.UUID `json:"id" yaml:"id"`
	Role  string    `json:"role" yaml:"role"`
	Phone string    `json:"phone" yaml:"phone"`
	Email string    `json:"email" yaml:"email"`
}

type Store interface {
	Provider(ctx context.Context, id uuid.UUID) (Provider, error)
	ProviderByContact(ctx context.Context, contact string) (Provider, error)
	Requester(ctx context.Context, id uuid.UUID) (Requester, error)
}

// NormalizeContact is applied to emails before storage and lookup.
func NormalizeContact(contact string) string {
	return strings.ToLower(strings.TrimSpace(contact))
}
