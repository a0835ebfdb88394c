// Package catalog serves the read-only service definitions requests are priced against.
package catalog

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var ErrServiceNotFound = errors.New("service not found")

// Service is a requestable offering. BasePrice is in minor currency units.
type Service struct {
	ID          uuid.UUID `json:"id" yaml:"id"`
	Name        string    `json:"name" yaml:"name"`
	Description string    `json:"description" yaml:"description"`
	BasePrice   int64     `json:"base_price" yaml:"base_price"`
}

// Store reads service definitions.
type Store interface {
	Get(ctx context.Context, id uuid.UUID) (Service, error)
	List(ctx context.Context) ([]Service, error)
}
