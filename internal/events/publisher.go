package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/sudo-init-do/fieldhub/internal/requests"
)

// Enqueuer is the subset of *asynq.Client the publisher needs.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Publisher enqueues lifecycle events. Enqueue failures are logged and dropped.
type Publisher struct {
	client Enqueuer
	log    logrus.FieldLogger
}

func NewPublisher(client Enqueuer, log logrus.FieldLogger) *Publisher {
	return &Publisher{client: client, log: log}
}

// NewRedisClient returns an asynq client for addr. The caller closes it.
func NewRedisClient(addr string) *asynq.Client {
	return asynq.NewClient(asynq.RedisClientOpt{Addr: addr})
}

func (p *Publisher) Publish(ctx context.Context, ev requests.Event) {
	if err := p.enqueue(ctx, ev); err != nil {
		p.log.WithFields(logrus.Fields{
			"request_id": ev.Request.ID,
			"event":      ev.Kind,
		}).WithError(err).Warn("lifecycle event not enqueued")
	}
}

func (p *Publisher) enqueue(ctx context.Context, ev requests.Event) error {
	taskType, ok := taskTypes[ev.Kind]
	if !ok {
		return fmt.Errorf("no task type for event %q", ev.Kind)
	}
	b, err := json.Marshal(payloadFor(ev))
	if err != nil {
		return err
	}
	task := asynq.NewTask(taskType, b)
	_, err = p.client.EnqueueContext(ctx, task, asynq.Queue(Queue), asynq.MaxRetry(5))
	return err
}
