package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
)

// AuditSink stores consumed lifecycle events.
type AuditSink interface {
	Record(ctx context.Context, taskType string, p LifecyclePayload) error
}

// Processor consumes the lifecycle queue into an AuditSink.
type Processor struct {
	sink AuditSink
	log  logrus.FieldLogger
}

func NewProcessor(sink AuditSink, log logrus.FieldLogger) *Processor {
	return &Processor{sink: sink, log: log}
}

// Mux routes every lifecycle task type to the processor.
func (p *Processor) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	for _, taskType := range taskTypes {
		mux.HandleFunc(taskType, p.handle)
	}
	return mux
}

func (p *Processor) handle(ctx context.Context, t *asynq.Task) error {
	var payload LifecyclePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		// Malformed payloads will never succeed.
		return fmt.Errorf("decode %s: %v: %w", t.Type(), err, asynq.SkipRetry)
	}
	if err := p.sink.Record(ctx, t.Type(), payload); err != nil {
		p.log.WithFields(logrus.Fields{"task": t.Type(), "request_id": payload.RequestID}).WithError(err).Error("audit write failed")
		return err
	}
	p.log.WithFields(logrus.Fields{
		"task":       t.Type(),
		"request_id": payload.RequestID,
		"status":     payload.Status,
	}).Info("lifecycle event recorded")
	return nil
}

// NewServer builds an asynq server that only pulls the lifecycle queue.
func NewServer(redisAddr string, concurrency int) *asynq.Server {
	return asynq.NewServer(asynq.RedisClientOpt{Addr: redisAddr}, asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{Queue: 1},
	})
}

// PostgresAudit writes events into request_events.
type PostgresAudit struct {
	pool *pgxpool.Pool
}

func NewPostgresAudit(pool *pgxpool.Pool) *PostgresAudit {
	return &PostgresAudit{pool: pool}
}

func (a *PostgresAudit) Record(ctx context.Context, taskType string, p LifecyclePayload) error {
	_, err := a.pool.Exec(ctx, `
		INSERT INTO request_events (task_type, request_id, actor_id, status, estimated_cost, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		taskType, p.RequestID, p.ActorID, p.Status, p.EstimatedCost, p.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("insert request event: %w", err)
	}
	return nil
}
