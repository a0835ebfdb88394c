package requests

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type EventKind string

const (
	EventCreated   EventKind = "created"
	EventAccepted  EventKind = "accepted"
	EventUpdated   EventKind = "updated"
	EventCancelled EventKind = "cancelled"
	EventArrived   EventKind = "arrived"
	EventCompleted EventKind = "completed"
	EventConfirmed EventKind = "confirmed"
)

// Event describes a committed lifecycle change.
type Event struct {
	Kind    EventKind
	Request ServiceRequest
	ActorID uuid.UUID
	At      time.Time
}

// Publisher receives events after the change is durable. Failures must not affect the caller.
type Publisher interface {
	Publish(ctx context.Context, ev Event)
}

// Recorder counts lifecycle outcomes.
type Recorder interface {
	Transition(from, to Status)
	Rejected(op, code string)
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, Event) {}

type nopRecorder struct{}

func (nopRecorder) Transition(Status, Status) {}
func (nopRecorder) Rejected(string, string)   {}
