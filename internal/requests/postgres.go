package requests

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const requestColumns = `id, service_id, requester_id, provider_id, status, notes, lat, lng, estimated_cost,
	arrived_by_provider, arrived_by_user, completed_by_provider, completed_by_user, created_at, updated_at`

// PostgresLedger stores requests in service_requests. The partial unique index on
// provider_id backs the advisory lock taken by Assign.
type PostgresLedger struct {
	pool *pgxpool.Pool
}

func NewPostgresLedger(pool *pgxpool.Pool) *PostgresLedger {
	return &PostgresLedger{pool: pool}
}

func scanRequest(row pgx.Row) (ServiceRequest, error) {
	var r ServiceRequest
	var status string
	err := row.Scan(
		&r.ID, &r.ServiceID, &r.RequesterID, &r.ProviderID, &status, &r.Notes, &r.Lat, &r.Lng, &r.EstimatedCost,
		&r.ArrivedByProvider, &r.ArrivedByUser, &r.CompletedByProvider, &r.CompletedByUser, &r.CreatedAt, &r.UpdatedAt,
	)
	r.Status = Status(status)
	return r, err
}

func (l *PostgresLedger) Insert(ctx context.Context, r ServiceRequest) error {
	_, err := l.pool.Exec(ctx, `
		INSERT INTO service_requests (`+requestColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		r.ID, r.ServiceID, r.RequesterID, r.ProviderID, string(r.Status), r.Notes, r.Lat, r.Lng, r.EstimatedCost,
		r.ArrivedByProvider, r.ArrivedByUser, r.CompletedByProvider, r.CompletedByUser, r.CreatedAt, r.UpdatedAt,
	)
	return mapWriteErr("insert request", err)
}

func (l *PostgresLedger) Get(ctx context.Context, id uuid.UUID) (ServiceRequest, error) {
	r, err := scanRequest(l.pool.QueryRow(ctx, `SELECT `+requestColumns+` FROM service_requests WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return ServiceRequest{}, ErrNotFound
	}
	if err != nil {
		return ServiceRequest{}, fmt.Errorf("get request: %w", err)
	}
	return r, nil
}

func (l *PostgresLedger) ListByRequester(ctx context.Context, requesterID uuid.UUID, statuses []Status) ([]ServiceRequest, error) {
	return l.query(ctx, `
		SELECT `+requestColumns+` FROM service_requests
		WHERE requester_id = $1 AND (cardinality($2::text[]) = 0 OR status = ANY($2))
		ORDER BY created_at DESC`,
		requesterID, statusStrings(statuses),
	)
}

func (l *PostgresLedger) List(ctx context.Context, statuses []Status) ([]ServiceRequest, error) {
	return l.query(ctx, `
		SELECT `+requestColumns+` FROM service_requests
		WHERE cardinality($1::text[]) = 0 OR status = ANY($1)
		ORDER BY created_at DESC`,
		statusStrings(statuses),
	)
}

func (l *PostgresLedger) query(ctx context.Context, sql string, args ...any) ([]ServiceRequest, error) {
	rows, err := l.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	defer rows.Close()

	out := []ServiceRequest{}
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan request: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (l *PostgresLedger) Mutate(ctx context.Context, id uuid.UUID, fn MutateFunc) (ServiceRequest, error) {
	var out ServiceRequest
	err := l.inTx(ctx, func(tx pgx.Tx) error {
		r, err := lockRequest(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := fn(&r); err != nil {
			return err
		}
		if err := update(ctx, tx, r); err != nil {
			return err
		}
		out = r
		return nil
	})
	return out, err
}

func (l *PostgresLedger) Assign(ctx context.Context, id, providerID uuid.UUID, fn AssignFunc) (ServiceRequest, error) {
	var out ServiceRequest
	err := l.inTx(ctx, func(tx pgx.Tx) error {
		// Serializes concurrent accepts for the same provider until commit.
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, providerID.String()); err != nil {
			return fmt.Errorf("provider lock: %w", err)
		}
		r, err := lockRequest(ctx, tx, id)
		if err != nil {
			return err
		}

		var busy bool
		err = tx.QueryRow(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM service_requests
				WHERE provider_id = $1 AND id <> $2 AND status IN ('Accepted', 'Arrived')
			)`, providerID, id,
		).Scan(&busy)
		if err != nil {
			return fmt.Errorf("provider active check: %w", err)
		}

		if err := fn(&r, busy); err != nil {
			return err
		}
		if err := update(ctx, tx, r); err != nil {
			return err
		}
		out = r
		return nil
	})
	return out, err
}

// inTx runs fn in a transaction and commits if it returns nil.
func (l *PostgresLedger) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("transaction start failed: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return mapWriteErr("commit", err)
	}
	return nil
}

func lockRequest(ctx context.Context, tx pgx.Tx, id uuid.UUID) (ServiceRequest, error) {
	r, err := scanRequest(tx.QueryRow(ctx, `SELECT `+requestColumns+` FROM service_requests WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return ServiceRequest{}, ErrNotFound
	}
	if err != nil {
		return ServiceRequest{}, fmt.Errorf("lock request: %w", err)
	}
	return r, nil
}

func update(ctx context.Context, tx pgx.Tx, r ServiceRequest) error {
	_, err := tx.Exec(ctx, `
		UPDATE service_requests
		SET provider_id = $2, status = $3, notes = $4, lat = $5, lng = $6, estimated_cost = $7,
		    arrived_by_provider = $8, arrived_by_user = $9, completed_by_provider = $10, completed_by_user = $11,
		    updated_at = $12
		WHERE id = $1`,
		r.ID, r.ProviderID, string(r.Status), r.Notes, r.Lat, r.Lng, r.EstimatedCost,
		r.ArrivedByProvider, r.ArrivedByUser, r.CompletedByProvider, r.CompletedByUser, r.UpdatedAt,
	)
	return mapWriteErr("update request", err)
}

// mapWriteErr turns a violation of the single-active-job index into ErrProviderBusy.
func mapWriteErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == "uq_service_requests_active_provider" {
		return ErrProviderBusy
	}
	return fmt.Errorf("%s: %w", op, err)
}

func statusStrings(statuses []Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
