package requests

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/juju/clock"
	"github.com/sirupsen/logrus"

	"github.com/sudo-init-do/fieldhub/internal/auth"
	"github.com/sudo-init-do/fieldhub/internal/catalog"
	"github.com/sudo-init-do/fieldhub/internal/directory"
)

// Policy holds the switches that vary between deployments.
type Policy struct {
	AllowCancelAfterAccept bool
}

// Deps are the collaborators of an Engine. Events, Metrics and Clock are optional.
type Deps struct {
	Ledger    Ledger
	Catalog   catalog.Store
	Directory directory.Store
	Events    Publisher
	Metrics   Recorder
	Clock     clock.Clock
	Log       logrus.FieldLogger
	Policy    Policy
}

// Engine runs the request lifecycle. It keeps no state between calls.
type Engine struct {
	ledger    Ledger
	catalog   catalog.Store
	directory directory.Store
	events    Publisher
	metrics   Recorder
	clock     clock.Clock
	log       logrus.FieldLogger
	policy    Policy
}

func NewEngine(d Deps) *Engine {
	e := &Engine{
		ledger:    d.Ledger,
		catalog:   d.Catalog,
		directory: d.Directory,
		events:    d.Events,
		metrics:   d.Metrics,
		clock:     d.Clock,
		log:       d.Log,
		policy:    d.Policy,
	}
	if e.events == nil {
		e.events = nopPublisher{}
	}
	if e.metrics == nil {
		e.metrics = nopRecorder{}
	}
	if e.clock == nil {
		e.clock = clock.WallClock
	}
	if e.log == nil {
		e.log = logrus.StandardLogger()
	}
	return e
}

// CreateInput is a new request as filed by a requester.
type CreateInput struct {
	ServiceID uuid.UUID
	Lat       float64
	Lng       float64
	Notes     string
	Provider  *string
}

// Create files a Pending request priced at the service's base price.
func (e *Engine) Create(ctx context.Context, caller auth.Identity, in CreateInput) (View, error) {
	const op = "Engine.Create"
	if in.Provider != nil {
		return e.reject(op, &ValidationError{Field: "provider", Reason: "providers are assigned by accepting a request"})
	}
	if err := ValidateLocation(in.Lat, in.Lng); err != nil {
		return e.reject(op, err)
	}

	svc, err := e.catalog.Get(ctx, in.ServiceID)
	if errors.Is(err, catalog.ErrServiceNotFound) {
		return e.reject(op, fmt.Errorf("service %s: %w", in.ServiceID, ErrNotFound))
	}
	if err != nil {
		return e.reject(op, internal("load service", err))
	}
	if _, err := e.directory.Requester(ctx, caller.UserID); err != nil {
		if errors.Is(err, directory.ErrRequesterNotFound) {
			return e.reject(op, fmt.Errorf("requester %s: %w", caller.UserID, ErrNotFound))
		}
		return e.reject(op, internal("load requester", err))
	}

	now := e.now()
	r := ServiceRequest{
		ID:            uuid.New(),
		ServiceID:     svc.ID,
		RequesterID:   caller.UserID,
		Status:        StatusPending,
		Notes:         in.Notes,
		Lat:           in.Lat,
		Lng:           in.Lng,
		EstimatedCost: svc.BasePrice,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := e.ledger.Insert(ctx, r); err != nil {
		return e.reject(op, e.persistErr("insert request", err))
	}

	e.log.WithFields(logrus.Fields{"op": op, "request_id": r.ID, "service_id": svc.ID}).Info("request created")
	e.metrics.Transition("", StatusPending)
	e.publish(ctx, EventCreated, r, caller)
	return View{ServiceRequest: r, Service: svc}, nil
}

// Accept binds the calling provider to a Pending request.
func (e *Engine) Accept(ctx context.Context, caller auth.Identity, id uuid.UUID) (View, error) {
	const op = "Engine.Accept"
	if _, err := e.ledger.Get(ctx, id); err != nil {
		return e.reject(op, e.persistErr("load request", err))
	}

	provider, err := e.directory.ProviderByContact(ctx, caller.Contact)
	if errors.Is(err, directory.ErrProviderNotFound) {
		return e.reject(op, ErrInvalidProvider)
	}
	if err != nil {
		return e.reject(op, internal("load provider", err))
	}

	var from Status
	var changed bool
	r, err := e.ledger.Assign(ctx, id, provider.ID, func(r *ServiceRequest, busy bool) error {
		from = r.Status
		ok, err := r.accept(provider.ID, busy)
		if err != nil {
			return err
		}
		changed = ok
		if changed {
			return e.save(ctx, r)
		}
		return nil
	})
	if err != nil {
		return e.reject(op, e.persistErr("assign provider", err))
	}

	if changed {
		e.log.WithFields(logrus.Fields{"op": op, "request_id": id, "provider_id": provider.ID}).Info("request accepted")
		if from != r.Status {
			e.metrics.Transition(from, r.Status)
		}
		e.publish(ctx, EventAccepted, r, caller)
	}
	return e.project(ctx, r)
}

// Edit applies an owner patch while the request is still open.
func (e *Engine) Edit(ctx context.Context, caller auth.Identity, id uuid.UUID, p Patch) (View, error) {
	const op = "Engine.Edit"
	var from Status
	var changed bool
	r, err := e.ledger.Mutate(ctx, id, func(r *ServiceRequest) error {
		if r.RequesterID != caller.UserID {
			return ErrForbidden
		}
		if !r.editable() {
			return ErrForbidden
		}
		from = r.Status
		ok, err := r.applyPatch(p, e.policy.AllowCancelAfterAccept)
		if err != nil {
			return err
		}
		changed = ok
		return e.save(ctx, r)
	})
	if err != nil {
		return e.reject(op, e.persistErr("edit request", err))
	}

	if changed {
		e.log.WithFields(logrus.Fields{"op": op, "request_id": id, "status": r.Status}).Info("request edited")
	}
	kind := EventUpdated
	if from != r.Status {
		e.metrics.Transition(from, r.Status)
		if r.Status == StatusCancelled {
			kind = EventCancelled
		}
	}
	if changed {
		e.publish(ctx, kind, r, caller)
	}
	return e.project(ctx, r)
}

// Cancel is Edit with status Cancelled.
func (e *Engine) Cancel(ctx context.Context, caller auth.Identity, id uuid.UUID) (View, error) {
	st := string(StatusCancelled)
	return e.Edit(ctx, caller, id, Patch{Status: &st})
}

// ConfirmArrived records one party's arrival acknowledgement.
func (e *Engine) ConfirmArrived(ctx context.Context, caller auth.Identity, id uuid.UUID, role string) (View, error) {
	return e.confirm(ctx, "Engine.ConfirmArrived", caller, id, role, EventArrived, (*ServiceRequest).confirmArrived)
}

// ConfirmCompleted records one party's completion acknowledgement.
func (e *Engine) ConfirmCompleted(ctx context.Context, caller auth.Identity, id uuid.UUID, role string) (View, error) {
	return e.confirm(ctx, "Engine.ConfirmCompleted", caller, id, role, EventCompleted, (*ServiceRequest).confirmCompleted)
}

func (e *Engine) confirm(ctx context.Context, op string, caller auth.Identity, id uuid.UUID, rawRole string,
	done EventKind, apply func(*ServiceRequest, Role) (bool, error)) (View, error) {
	role, err := ParseRole(rawRole)
	if err != nil {
		return e.reject(op, err)
	}

	var providerID uuid.UUID
	if role == RoleProvider {
		p, err := e.directory.ProviderByContact(ctx, caller.Contact)
		switch {
		case errors.Is(err, directory.ErrProviderNotFound):
			providerID = uuid.Nil
		case err != nil:
			return e.reject(op, internal("load provider", err))
		default:
			providerID = p.ID
		}
	}

	var from Status
	var changed bool
	r, err := e.ledger.Mutate(ctx, id, func(r *ServiceRequest) error {
		if !boundTo(r, caller, role, providerID) {
			return ErrForbidden
		}
		from = r.Status
		ok, err := apply(r, role)
		if err != nil {
			return err
		}
		changed = ok
		return e.save(ctx, r)
	})
	if err != nil {
		return e.reject(op, e.persistErr("confirm", err))
	}

	if changed {
		e.log.WithFields(logrus.Fields{"op": op, "request_id": id, "role": role, "status": r.Status}).Info("confirmation recorded")
		kind := EventConfirmed
		if from != r.Status {
			e.metrics.Transition(from, r.Status)
			kind = done
		}
		e.publish(ctx, kind, r, caller)
	}
	return e.project(ctx, r)
}

// boundTo reports whether caller may confirm on behalf of role.
func boundTo(r *ServiceRequest, caller auth.Identity, role Role, providerID uuid.UUID) bool {
	switch role {
	case RoleUser:
		return r.RequesterID == caller.UserID
	case RoleProvider:
		return providerID != uuid.Nil && r.ProviderID != nil && *r.ProviderID == providerID
	}
	return false
}

// Get returns one request. Owners, providers and admins may read it.
func (e *Engine) Get(ctx context.Context, caller auth.Identity, id uuid.UUID) (View, error) {
	const op = "Engine.Get"
	r, err := e.ledger.Get(ctx, id)
	if err != nil {
		return e.reject(op, e.persistErr("load request", err))
	}
	if r.RequesterID != caller.UserID && !caller.IsProvider() && !caller.IsAdmin() {
		return e.reject(op, ErrForbidden)
	}
	return e.project(ctx, r)
}

// ListMine returns the caller's own requests, optionally only the active ones.
func (e *Engine) ListMine(ctx context.Context, caller auth.Identity, activeOnly bool) ([]View, error) {
	var statuses []Status
	if activeOnly {
		statuses = ActiveStatuses
	}
	rows, err := e.ledger.ListByRequester(ctx, caller.UserID, statuses)
	if err != nil {
		return nil, e.logInternal("Engine.ListMine", internal("list requests", err))
	}
	return e.projectAll(ctx, rows)
}

// ListAll returns every request, optionally filtered by status. Providers and admins only.
func (e *Engine) ListAll(ctx context.Context, caller auth.Identity, statuses []Status) ([]View, error) {
	const op = "Engine.ListAll"
	if !caller.IsProvider() && !caller.IsAdmin() {
		e.metrics.Rejected(op, Code(ErrForbidden))
		return nil, ErrForbidden
	}
	rows, err := e.ledger.List(ctx, statuses)
	if err != nil {
		return nil, e.logInternal(op, internal("list requests", err))
	}
	return e.projectAll(ctx, rows)
}

// save recomputes the derived cost and bumps updated_at. Every mutation goes through here.
func (e *Engine) save(ctx context.Context, r *ServiceRequest) error {
	svc, err := e.catalog.Get(ctx, r.ServiceID)
	switch {
	case errors.Is(err, catalog.ErrServiceNotFound):
		e.log.WithFields(logrus.Fields{"request_id": r.ID, "service_id": r.ServiceID}).
			Warn("service no longer in catalog, keeping previous cost")
	case err != nil:
		return internal("load service", err)
	default:
		r.EstimatedCost = svc.BasePrice
	}
	r.UpdatedAt = e.now()
	return nil
}

func (e *Engine) project(ctx context.Context, r ServiceRequest) (View, error) {
	v := View{ServiceRequest: r}
	svc, err := e.catalog.Get(ctx, r.ServiceID)
	switch {
	case errors.Is(err, catalog.ErrServiceNotFound):
		v.Service = catalog.Service{ID: r.ServiceID}
	case err != nil:
		return View{}, e.logInternal("Engine.project", internal("load service", err))
	default:
		v.Service = svc
	}
	if r.ProviderID != nil {
		p, err := e.directory.Provider(ctx, *r.ProviderID)
		switch {
		case errors.Is(err, directory.ErrProviderNotFound):
		case err != nil:
			return View{}, e.logInternal("Engine.project", internal("load provider", err))
		default:
			v.Provider = &p
		}
	}
	return v, nil
}

func (e *Engine) projectAll(ctx context.Context, rows []ServiceRequest) ([]View, error) {
	out := make([]View, 0, len(rows))
	for _, r := range rows {
		v, err := e.project(ctx, r)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (e *Engine) publish(ctx context.Context, kind EventKind, r ServiceRequest, caller auth.Identity) {
	e.events.Publish(ctx, Event{Kind: kind, Request: r, ActorID: caller.UserID, At: r.UpdatedAt})
}

func (e *Engine) reject(op string, err error) (View, error) {
	e.metrics.Rejected(op, Code(err))
	if Code(err) == "internal" {
		return View{}, e.logInternal(op, err)
	}
	e.log.WithFields(logrus.Fields{"op": op, "code": Code(err)}).Debug(err.Error())
	return View{}, err
}

func (e *Engine) logInternal(op string, err error) error {
	e.log.WithField("op", op).WithError(err).Error("internal failure")
	return err
}

// persistErr passes lifecycle errors through and wraps anything else as internal.
func (e *Engine) persistErr(op string, err error) error {
	if Code(err) != "internal" {
		return err
	}
	var ie *InternalError
	if errors.As(err, &ie) {
		return err
	}
	return internal(op, err)
}

func (e *Engine) now() time.Time {
	return e.clock.Now().UTC()
}
