package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Get(ctx context.Context, id uuid.UUID) (Service, error) {
	var svc Service
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, description, base_price FROM services WHERE id = $1`, id,
	).Scan(&svc.ID, &svc.Name, &svc.Description, &svc.BasePrice)
	if errors.Is(err, pgx.ErrNoRows) {
		return Service{}, ErrServiceNotFound
	}
	if err != nil {
		return Service{}, fmt.Errorf("get service: %w", err)
	}
	return svc, nil
}

func (s *PostgresStore) List(ctx context.Context) ([]Service, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name, description, base_price FROM services ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	defer rows.Close()

	services := []Service{}
	for rows.Next() {
		var svc Service
		if err := rows.Scan(&svc.ID, &svc.Name, &svc.Description, &svc.BasePrice); err != nil {
			return nil, fmt.Errorf("scan service: %w", err)
		}
		services = append(services, svc)
	}
	return services, rows.Err()
}

// Upsert inserts or replaces a service definition.
func (s *PostgresStore) Upsert(ctx context.Context, svc Service) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO services (id, name, description, base_price)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, description = EXCLUDED.description, base_price = EXCLUDED.base_price`,
		svc.ID, svc.Name, svc.Description, svc.BasePrice,
	)
	if err != nil {
		return fmt.Errorf("upsert service %s: %w", svc.ID, err)
	}
	return nil
}
