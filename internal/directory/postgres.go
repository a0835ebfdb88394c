package directory

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const providerColumns = `id, name, email, type, lat, lng, rating, phone`

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func scanProvider(row pgx.Row) (Provider, error) {
	var p Provider
	err := row.Scan(&p.ID, &p.Name, &p.Email, &p.Type, &p.Lat, &p.Lng, &p.Rating, &p.Phone)
	return p, err
}

func (s *PostgresStore) Provider(ctx context.Context, id uuid.UUID) (Provider, error) {
	p, err := scanProvider(s.pool.QueryRow(ctx, `SELECT `+providerColumns+` FROM providers WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Provider{}, ErrProviderNotFound
	}
	if err != nil {
		return Provider{}, fmt.Errorf("get provider: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) ProviderByContact(ctx context.Context, contact string) (Provider, error) {
	p, err := scanProvider(s.pool.QueryRow(ctx,
		`SELECT `+providerColumns+` FROM providers WHERE email = $1`, NormalizeContact(contact)))
	if errors.Is(err, pgx.ErrNoRows) {
		return Provider{}, ErrProviderNotFound
	}
	if err != nil {
		return Provider{}, fmt.Errorf("get provider by contact: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) Requester(ctx context.Context, id uuid.UUID) (Requester, error) {
	var r Requester
	err := s.pool.QueryRow(ctx,
		`SELECT id, role, phone, email FROM requesters WHERE id = $1`, id,
	).Scan(&r.ID, &r.Role, &r.Phone, &r.Email)
	if errors.Is(err, pgx.ErrNoRows) {
		return Requester{}, ErrRequesterNotFound
	}
	if err != nil {
		return Requester{}, fmt.Errorf("get requester: %w", err)
	}
	return r, nil
}

func (s *PostgresStore) UpsertProvider(ctx context.Context, p Provider) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO providers (`+providerColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, email = EXCLUDED.email, type = EXCLUDED.type,
		    lat = EXCLUDED.lat, lng = EXCLUDED.lng, rating = EXCLUDED.rating, phone = EXCLUDED.phone`,
		p.ID, p.Name, NormalizeContact(p.Email), p.Type, p.Lat, p.Lng, p.Rating, p.Phone,
	)
	if err != nil {
		return fmt.Errorf("upsert provider %s: %w", p.ID, err)
	}
	return nil
}

func (s *PostgresStore) UpsertRequester(ctx context.Context, r Requester) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO requesters (id, role, phone, email)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET role = EXCLUDED.role, phone = EXCLUDED.phone, email = EXCLUDED.email`,
		r.ID, r.Role, r.Phone, NormalizeContact(r.Email),
	)
	if err != nil {
		return fmt.Errorf("upsert requester %s: %w", r.ID, err)
	}
	return nil
}
