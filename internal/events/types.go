// Package events publishes committed request lifecycle changes as asynq tasks.
package events

import (
	"time"

	"github.com/sudo-init-do/fieldhub/internal/requests"
)

// Task type constants
const (
	TaskRequestCreated   = "request:created"
	TaskRequestAccepted  = "request:accepted"
	TaskRequestUpdated   = "request:updated"
	TaskRequestCancelled = "request:cancelled"
	TaskRequestConfirmed = "request:confirmed"
	TaskRequestArrived   = "request:arrived"
	TaskRequestCompleted = "request:completed"
)

const Queue = "lifecycle"

var taskTypes = map[requests.EventKind]string{
	requests.EventCreated:   TaskRequestCreated,
	requests.EventAccepted:  TaskRequestAccepted,
	requests.EventUpdated:   TaskRequestUpdated,
	requests.EventCancelled: TaskRequestCancelled,
	requests.EventConfirmed: TaskRequestConfirmed,
	requests.EventArrived:   TaskRequestArrived,
	requests.EventCompleted: TaskRequestCompleted,
}

// LifecyclePayload is the JSON body of every lifecycle task.
type LifecyclePayload struct {
	RequestID     string    `json:"request_id"`
	ServiceID     string    `json:"service_id"`
	RequesterID   string    `json:"requester_id"`
	ProviderID    string    `json:"provider_id,omitempty"`
	ActorID       string    `json:"actor_id"`
	Status        string    `json:"status"`
	EstimatedCost int64     `json:"estimated_cost"`
	OccurredAt    time.Time `json:"occurred_at"`
}

func payloadFor(ev requests.Event) LifecyclePayload {
	p := LifecyclePayload{
		RequestID:     ev.Request.ID.String(),
		ServiceID:     ev.Request.ServiceID.String(),
		RequesterID:   ev.Request.RequesterID.String(),
		ActorID:       ev.ActorID.String(),
		Status:        string(ev.Request.Status),
		EstimatedCost: ev.Request.EstimatedCost,
		OccurredAt:    ev.At,
	}
	if ev.Request.ProviderID != nil {
		p.ProviderID = ev.Request.ProviderID.String()
	}
	return p
}
