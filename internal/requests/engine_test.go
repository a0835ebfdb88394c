package requests

import (
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/juju/clock/testclock"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sudo-init-do/fieldhub/internal/auth"
	"github.com/sudo-init-do/fieldhub/internal/catalog"
	"github.com/sudo-init-do/fieldhub/internal/directory"
)

var epoch = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
}

func (p *recordingPublisher) Publish(_ context.Context, ev Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

func (p *recordingPublisher) kinds() []EventKind {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]EventKind, len(p.events))
	for i, ev := range p.events {
		out[i] = ev.Kind
	}
	return out
}

type fixture struct {
	engine    *Engine
	ledger    *MemoryLedger
	catalog   *catalog.MemoryStore
	directory *directory.MemoryStore
	clock     *testclock.Clock
	events    *recordingPublisher

	plumbing  catalog.Service
	requester auth.Identity
	other     auth.Identity
	provider  auth.Identity
	provider2 auth.Identity
	admin     auth.Identity
}

func newFixture(t *testing.T, policy Policy) *fixture {
	t.Helper()
	ctx := context.Background()
	f := &fixture{
		ledger:    NewMemoryLedger(),
		catalog:   catalog.NewMemoryStore(),
		directory: directory.NewMemoryStore(),
		clock:     testclock.NewClock(epoch),
		events:    &recordingPublisher{},
	}

	f.plumbing = catalog.Service{ID: uuid.New(), Name: "Plumbing", BasePrice: 4500}
	require.NoError(t, f.catalog.Upsert(ctx, f.plumbing))

	f.requester = auth.Identity{UserID: uuid.New(), Contact: "req@example.com", Role: auth.RoleRequester}
	f.other = auth.Identity{UserID: uuid.New(), Contact: "other@example.com", Role: auth.RoleRequester}
	f.admin = auth.Identity{UserID: uuid.New(), Contact: "admin@example.com", Role: auth.RoleAdmin}
	for _, id := range []auth.Identity{f.requester, f.other} {
		require.NoError(t, f.directory.UpsertRequester(ctx, directory.Requester{ID: id.UserID, Role: id.Role, Email: id.Contact}))
	}

	f.provider = auth.Identity{UserID: uuid.New(), Contact: "pro@example.com", Role: auth.RoleProvider}
	f.provider2 = auth.Identity{UserID: uuid.New(), Contact: "pro2@example.com", Role: auth.RoleProvider}
	for _, id := range []auth.Identity{f.provider, f.provider2} {
		require.NoError(t, f.directory.UpsertProvider(ctx, directory.Provider{ID: uuid.New(), Name: id.Contact, Email: id.Contact}))
	}

	log := logrus.New()
	log.SetOutput(io.Discard)
	f.engine = NewEngine(Deps{
		Ledger:    f.ledger,
		Catalog:   f.catalog,
		Directory: f.directory,
		Events:    f.events,
		Clock:     f.clock,
		Log:       log,
		Policy:    policy,
	})
	return f
}

func (f *fixture) create(t *testing.T) View {
	t.Helper()
	v, err := f.engine.Create(context.Background(), f.requester, CreateInput{ServiceID: f.plumbing.ID, Lat: 6.5, Lng: 3.4, Notes: "kitchen sink"})
	require.NoError(t, err)
	return v
}

func (f *fixture) providerID(t *testing.T, id auth.Identity) uuid.UUID {
	t.Helper()
	p, err := f.directory.ProviderByContact(context.Background(), id.Contact)
	require.NoError(t, err)
	return p.ID
}

func ptr[T any](v T) *T { return &v }

func TestCreate(t *testing.T) {
	f := newFixture(t, Policy{})
	v := f.create(t)

	assert.Equal(t, StatusPending, v.Status)
	assert.Equal(t, int64(4500), v.EstimatedCost)
	assert.Nil(t, v.ProviderID)
	assert.Nil(t, v.Provider)
	assert.False(t, v.ArrivedByProvider || v.ArrivedByUser || v.CompletedByProvider || v.CompletedByUser)
	assert.Equal(t, epoch, v.CreatedAt)
	assert.Equal(t, "Plumbing", v.Service.Name)
	assert.Equal(t, []EventKind{EventCreated}, f.events.kinds())
}

func TestCreateRejects(t *testing.T) {
	f := newFixture(t, Policy{})
	ctx := context.Background()
	stranger := auth.Identity{UserID: uuid.New(), Role: auth.RoleRequester}

	tests := []struct {
		name   string
		caller auth.Identity
		in     CreateInput
		check  func(error) bool
	}{
		{"unknown service", f.requester, CreateInput{ServiceID: uuid.New()}, func(err error) bool { return assert.ErrorIs(t, err, ErrNotFound) }},
		{"unknown requester", stranger, CreateInput{ServiceID: f.plumbing.ID}, func(err error) bool { return assert.ErrorIs(t, err, ErrNotFound) }},
		{"latitude out of range", f.requester, CreateInput{ServiceID: f.plumbing.ID, Lat: 91}, isValidation(t)},
		{"longitude out of range", f.requester, CreateInput{ServiceID: f.plumbing.ID, Lng: -181}, isValidation(t)},
		{"provider supplied", f.requester, CreateInput{ServiceID: f.plumbing.ID, Provider: ptr("pro@example.com")}, isValidation(t)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.engine.Create(ctx, tt.caller, tt.in)
			tt.check(err)
		})
	}

	all, err := f.ledger.List(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func isValidation(t *testing.T) func(error) bool {
	return func(err error) bool {
		var ve *ValidationError
		return assert.ErrorAs(t, err, &ve)
	}
}

func TestFullLifecycle(t *testing.T) {
	f := newFixture(t, Policy{AllowCancelAfterAccept: true})
	ctx := context.Background()
	v := f.create(t)

	f.clock.Advance(time.Minute)
	v, err := f.engine.Accept(ctx, f.provider, v.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusAccepted, v.Status)
	require.NotNil(t, v.Provider)
	assert.Equal(t, "pro@example.com", v.Provider.Email)
	assert.Equal(t, epoch.Add(time.Minute), v.UpdatedAt)

	v, err = f.engine.ConfirmArrived(ctx, f.requester, v.ID, "user")
	require.NoError(t, err)
	assert.Equal(t, StatusAccepted, v.Status)
	assert.True(t, v.ArrivedByUser)
	assert.False(t, v.ArrivedByProvider)

	v, err = f.engine.ConfirmArrived(ctx, f.provider, v.ID, "provider")
	require.NoError(t, err)
	assert.Equal(t, StatusArrived, v.Status)

	v, err = f.engine.ConfirmCompleted(ctx, f.requester, v.ID, "user")
	require.NoError(t, err)
	assert.Equal(t, StatusArrived, v.Status)

	v, err = f.engine.ConfirmCompleted(ctx, f.provider, v.ID, "provider")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, v.Status)
	assert.Equal(t, int64(4500), v.EstimatedCost)

	_, err = f.engine.Edit(ctx, f.requester, v.ID, Patch{Notes: ptr("too late")})
	assert.ErrorIs(t, err, ErrForbidden)

	assert.Equal(t, []EventKind{
		EventCreated, EventAccepted, EventConfirmed, EventArrived, EventConfirmed, EventCompleted,
	}, f.events.kinds())

	mine, err := f.engine.ListMine(ctx, f.requester, true)
	require.NoError(t, err)
	assert.Empty(t, mine)
	mine, err = f.engine.ListMine(ctx, f.requester, false)
	require.NoError(t, err)
	assert.Len(t, mine, 1)
}

func TestAcceptChecks(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown request", func(t *testing.T) {
		f := newFixture(t, Policy{})
		_, err := f.engine.Accept(ctx, f.provider, uuid.New())
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("unknown provider leaves request untouched", func(t *testing.T) {
		f := newFixture(t, Policy{})
		v := f.create(t)
		stranger := auth.Identity{UserID: uuid.New(), Contact: "nobody@example.com", Role: auth.RoleProvider}

		_, err := f.engine.Accept(ctx, stranger, v.ID)
		assert.ErrorIs(t, err, ErrInvalidProvider)

		got, err := f.ledger.Get(ctx, v.ID)
		require.NoError(t, err)
		assert.Equal(t, v.ServiceRequest, got)
	})

	t.Run("provider busy", func(t *testing.T) {
		f := newFixture(t, Policy{})
		first, second := f.create(t), f.create(t)
		_, err := f.engine.Accept(ctx, f.provider, first.ID)
		require.NoError(t, err)

		_, err = f.engine.Accept(ctx, f.provider, second.ID)
		assert.ErrorIs(t, err, ErrProviderBusy)

		got, err := f.ledger.Get(ctx, second.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusPending, got.Status)
		assert.Nil(t, got.ProviderID)
	})

	t.Run("repeat by bound provider is a no-op", func(t *testing.T) {
		f := newFixture(t, Policy{})
		v := f.create(t)
		first, err := f.engine.Accept(ctx, f.provider, v.ID)
		require.NoError(t, err)
		f.clock.Advance(time.Hour)

		again, err := f.engine.Accept(ctx, f.provider, v.ID)
		require.NoError(t, err)
		assert.Equal(t, first.UpdatedAt, again.UpdatedAt)
	})

	t.Run("second provider takes over an accepted request", func(t *testing.T) {
		f := newFixture(t, Policy{})
		v, next := f.create(t), f.create(t)
		_, err := f.engine.Accept(ctx, f.provider, v.ID)
		require.NoError(t, err)
		_, err = f.engine.ConfirmArrived(ctx, f.provider, v.ID, "provider")
		require.NoError(t, err)

		got, err := f.engine.Accept(ctx, f.provider2, v.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusAccepted, got.Status)
		require.NotNil(t, got.Provider)
		assert.Equal(t, "pro2@example.com", got.Provider.Email)
		assert.False(t, got.ArrivedByProvider)

		_, err = f.engine.ConfirmArrived(ctx, f.provider, v.ID, "provider")
		assert.ErrorIs(t, err, ErrForbidden)

		freed, err := f.engine.Accept(ctx, f.provider, next.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusAccepted, freed.Status)
	})

	t.Run("busy provider cannot take over an arrived request", func(t *testing.T) {
		f := newFixture(t, Policy{})
		v, held := f.create(t), f.create(t)
		_, err := f.engine.Accept(ctx, f.provider, v.ID)
		require.NoError(t, err)
		_, err = f.engine.ConfirmArrived(ctx, f.provider, v.ID, "provider")
		require.NoError(t, err)
		_, err = f.engine.ConfirmArrived(ctx, f.requester, v.ID, "user")
		require.NoError(t, err)
		_, err = f.engine.Accept(ctx, f.provider2, held.ID)
		require.NoError(t, err)

		_, err = f.engine.Accept(ctx, f.provider2, v.ID)
		assert.ErrorIs(t, err, ErrProviderBusy)

		got, err := f.ledger.Get(ctx, v.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusArrived, got.Status)
		assert.Equal(t, f.providerID(t, f.provider), *got.ProviderID)
	})

	t.Run("closed request cannot be accepted", func(t *testing.T) {
		f := newFixture(t, Policy{})
		v := f.create(t)
		_, err := f.engine.Cancel(ctx, f.requester, v.ID)
		require.NoError(t, err)

		_, err = f.engine.Accept(ctx, f.provider, v.ID)
		assert.ErrorIs(t, err, ErrForbidden)
	})

	t.Run("provider freed after completion", func(t *testing.T) {
		f := newFixture(t, Policy{})
		first, second := f.create(t), f.create(t)
		_, err := f.engine.Accept(ctx, f.provider, first.ID)
		require.NoError(t, err)
		for _, step := range []func(context.Context, auth.Identity, uuid.UUID, string) (View, error){
			f.engine.ConfirmArrived, f.engine.ConfirmCompleted,
		} {
			_, err = step(ctx, f.provider, first.ID, "provider")
			require.NoError(t, err)
			_, err = step(ctx, f.requester, first.ID, "user")
			require.NoError(t, err)
		}

		v, err := f.engine.Accept(ctx, f.provider, second.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusAccepted, v.Status)
	})
}

func TestConcurrentAcceptSingleActiveJob(t *testing.T) {
	f := newFixture(t, Policy{})
	ctx := context.Background()

	const n = 8
	ids := make([]uuid.UUID, n)
	for i := range ids {
		ids[i] = f.create(t).ID
	}

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.engine.Accept(ctx, f.provider, ids[i])
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, ErrProviderBusy)
	}
	assert.Equal(t, 1, succeeded)

	active, err := f.ledger.List(ctx, []Status{StatusAccepted, StatusArrived})
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestEdit(t *testing.T) {
	ctx := context.Background()

	t.Run("owner updates notes and location", func(t *testing.T) {
		f := newFixture(t, Policy{})
		v := f.create(t)
		f.clock.Advance(time.Minute)

		got, err := f.engine.Edit(ctx, f.requester, v.ID, Patch{Notes: ptr("bathroom"), Lat: ptr(7.0), Lng: ptr(3.9)})
		require.NoError(t, err)
		assert.Equal(t, "bathroom", got.Notes)
		assert.Equal(t, 7.0, got.Lat)
		assert.Equal(t, epoch.Add(time.Minute), got.UpdatedAt)
		assert.Equal(t, epoch, got.CreatedAt)
	})

	t.Run("not owner", func(t *testing.T) {
		f := newFixture(t, Policy{})
		v := f.create(t)
		_, err := f.engine.Edit(ctx, f.other, v.ID, Patch{Notes: ptr("x")})
		assert.ErrorIs(t, err, ErrForbidden)
	})

	t.Run("missing", func(t *testing.T) {
		f := newFixture(t, Policy{})
		_, err := f.engine.Edit(ctx, f.requester, uuid.New(), Patch{Notes: ptr("x")})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("validation", func(t *testing.T) {
		f := newFixture(t, Policy{})
		v := f.create(t)
		for name, p := range map[string]Patch{
			"empty":           {},
			"bad latitude":    {Lat: ptr(-95.0)},
			"status accepted": {Status: ptr("Accepted")},
			"status complete": {Status: ptr("Completed")},
			"unknown status":  {Status: ptr("Done")},
			"long notes":      {Notes: ptr(strings.Repeat("x", MaxNotesLen+1))},
		} {
			_, err := f.engine.Edit(ctx, f.requester, v.ID, p)
			var ve *ValidationError
			assert.ErrorAs(t, err, &ve, name)
		}
	})

	t.Run("pending after accept is rejected", func(t *testing.T) {
		f := newFixture(t, Policy{})
		v := f.create(t)
		_, err := f.engine.Accept(ctx, f.provider, v.ID)
		require.NoError(t, err)

		_, err = f.engine.Edit(ctx, f.requester, v.ID, Patch{Status: ptr("Pending")})
		var ve *ValidationError
		assert.ErrorAs(t, err, &ve)
	})

	t.Run("completed is closed for any patch", func(t *testing.T) {
		f := newFixture(t, Policy{AllowCancelAfterAccept: true})
		v := f.create(t)
		r, err := f.ledger.Mutate(ctx, v.ID, func(r *ServiceRequest) error {
			r.Status = StatusCompleted
			return nil
		})
		require.NoError(t, err)

		for _, p := range []Patch{
			{}, {Notes: ptr("n")}, {Status: ptr("Cancelled")}, {Status: ptr("Done")},
			{Notes: ptr(strings.Repeat("x", MaxNotesLen+1))}, {Lat: ptr(1000.0)},
		} {
			_, err := f.engine.Edit(ctx, f.requester, r.ID, p)
			assert.ErrorIs(t, err, ErrForbidden)
		}
	})
}

func TestCancel(t *testing.T) {
	ctx := context.Background()

	t.Run("pending", func(t *testing.T) {
		f := newFixture(t, Policy{})
		v := f.create(t)
		got, err := f.engine.Cancel(ctx, f.requester, v.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusCancelled, got.Status)

		_, err = f.engine.Cancel(ctx, f.requester, v.ID)
		assert.ErrorIs(t, err, ErrForbidden)
	})

	t.Run("after accept when allowed keeps provider and frees them", func(t *testing.T) {
		f := newFixture(t, Policy{AllowCancelAfterAccept: true})
		v, other := f.create(t), f.create(t)
		_, err := f.engine.Accept(ctx, f.provider, v.ID)
		require.NoError(t, err)

		got, err := f.engine.Cancel(ctx, f.requester, v.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusCancelled, got.Status)
		require.NotNil(t, got.ProviderID)
		assert.Equal(t, f.providerID(t, f.provider), *got.ProviderID)

		_, err = f.engine.Accept(ctx, f.provider, other.ID)
		assert.NoError(t, err)
		assert.Contains(t, f.events.kinds(), EventCancelled)
	})

	t.Run("after accept when disallowed", func(t *testing.T) {
		f := newFixture(t, Policy{AllowCancelAfterAccept: false})
		v := f.create(t)
		_, err := f.engine.Accept(ctx, f.provider, v.ID)
		require.NoError(t, err)

		_, err = f.engine.Cancel(ctx, f.requester, v.ID)
		assert.ErrorIs(t, err, ErrForbidden)
	})
}

func TestConfirm(t *testing.T) {
	ctx := context.Background()

	accepted := func(t *testing.T) (*fixture, View) {
		f := newFixture(t, Policy{})
		v := f.create(t)
		v, err := f.engine.Accept(ctx, f.provider, v.ID)
		require.NoError(t, err)
		return f, v
	}

	t.Run("invalid role", func(t *testing.T) {
		f, v := accepted(t)
		_, err := f.engine.ConfirmArrived(ctx, f.provider, v.ID, "driver")
		assert.ErrorIs(t, err, ErrInvalidRole)
		_, err = f.engine.ConfirmCompleted(ctx, f.provider, v.ID, "")
		assert.ErrorIs(t, err, ErrInvalidRole)
	})

	t.Run("role must match caller", func(t *testing.T) {
		f, v := accepted(t)
		tests := []struct {
			name   string
			caller auth.Identity
			role   string
		}{
			{"requester claiming provider", f.requester, "provider"},
			{"unbound provider claiming provider", f.provider2, "provider"},
			{"provider claiming user", f.provider, "user"},
			{"other requester claiming user", f.other, "user"},
		}
		for _, tt := range tests {
			_, err := f.engine.ConfirmArrived(ctx, tt.caller, v.ID, tt.role)
			assert.ErrorIs(t, err, ErrForbidden, tt.name)
		}
		got, err := f.ledger.Get(ctx, v.ID)
		require.NoError(t, err)
		assert.False(t, got.ArrivedByProvider || got.ArrivedByUser)
	})

	t.Run("arrival is idempotent", func(t *testing.T) {
		f, v := accepted(t)
		for i := 0; i < 3; i++ {
			got, err := f.engine.ConfirmArrived(ctx, f.provider, v.ID, "provider")
			require.NoError(t, err)
			assert.Equal(t, StatusAccepted, got.Status)
		}
		_, err := f.engine.ConfirmArrived(ctx, f.requester, v.ID, "user")
		require.NoError(t, err)
		got, err := f.engine.ConfirmArrived(ctx, f.requester, v.ID, "user")
		require.NoError(t, err)
		assert.Equal(t, StatusArrived, got.Status)
	})

	t.Run("completion before arrival", func(t *testing.T) {
		f, v := accepted(t)
		_, err := f.engine.ConfirmCompleted(ctx, f.provider, v.ID, "provider")
		assert.ErrorIs(t, err, ErrInvalidTransition)
	})

	t.Run("arrival on pending", func(t *testing.T) {
		f := newFixture(t, Policy{})
		v := f.create(t)
		_, err := f.engine.ConfirmArrived(ctx, f.requester, v.ID, "user")
		assert.ErrorIs(t, err, ErrInvalidTransition)
	})

	t.Run("completion is idempotent", func(t *testing.T) {
		f, v := accepted(t)
		parties := []struct {
			caller auth.Identity
			role   string
		}{{f.provider, "provider"}, {f.requester, "user"}}
		for _, p := range parties {
			_, err := f.engine.ConfirmArrived(ctx, p.caller, v.ID, p.role)
			require.NoError(t, err)
		}
		for _, p := range parties {
			_, err := f.engine.ConfirmCompleted(ctx, p.caller, v.ID, p.role)
			require.NoError(t, err)
		}
		got, err := f.engine.ConfirmCompleted(ctx, f.provider, v.ID, "provider")
		require.NoError(t, err)
		assert.Equal(t, StatusCompleted, got.Status)
	})
}

func TestCostFollowsCatalogOnSave(t *testing.T) {
	f := newFixture(t, Policy{})
	ctx := context.Background()
	v := f.create(t)

	f.plumbing.BasePrice = 5200
	require.NoError(t, f.catalog.Upsert(ctx, f.plumbing))

	stored, err := f.ledger.Get(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(4500), stored.EstimatedCost)

	got, err := f.engine.Edit(ctx, f.requester, v.ID, Patch{Notes: ptr("reprice")})
	require.NoError(t, err)
	assert.Equal(t, int64(5200), got.EstimatedCost)

	f.catalog.Delete(f.plumbing.ID)
	got, err = f.engine.Edit(ctx, f.requester, v.ID, Patch{Notes: ptr("service retired")})
	require.NoError(t, err)
	assert.Equal(t, int64(5200), got.EstimatedCost)
	assert.Equal(t, f.plumbing.ID, got.Service.ID)
}

func TestReads(t *testing.T) {
	f := newFixture(t, Policy{})
	ctx := context.Background()
	v := f.create(t)

	for _, caller := range []auth.Identity{f.requester, f.provider, f.admin} {
		_, err := f.engine.Get(ctx, caller, v.ID)
		assert.NoError(t, err)
	}
	_, err := f.engine.Get(ctx, f.other, v.ID)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = f.engine.Get(ctx, f.requester, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.engine.ListAll(ctx, f.requester, nil)
	assert.ErrorIs(t, err, ErrForbidden)
	all, err := f.engine.ListAll(ctx, f.provider, []Status{StatusPending})
	require.NoError(t, err)
	assert.Len(t, all, 1)

	theirs, err := f.engine.ListMine(ctx, f.other, false)
	require.NoError(t, err)
	assert.Empty(t, theirs)
}
