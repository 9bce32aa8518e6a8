package dashboard

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/spot-confirmation/internal/clock"
	"github.com/iliyamo/spot-confirmation/internal/model"
	"github.com/iliyamo/spot-confirmation/internal/repository"
)

var now = time.Date(2026, 3, 1, 15, 0, 0, 0, time.UTC)

func at(d time.Duration) *time.Time {
	t := now.Add(d)
	return &t
}

func spot(id string, st model.Status, deadline, responded *time.Time) model.Spot {
	return model.Spot{ID: id, EventID: "ev-1", Confirmation: model.Confirmation{Status: st, Deadline: deadline, RespondedAt: responded}}
}

func TestSummarize(t *testing.T) {
	spots := []model.Spot{
		spot("p1", model.StatusPending, at(2*time.Hour), nil),
		spot("p2", model.StatusPending, at(10*time.Hour), nil),
		spot("p3", model.StatusPending, at(30*time.Hour), nil),
		spot("p4", model.StatusPending, at(-time.Minute), nil),
		spot("e1", model.StatusExpired, at(-2*time.Hour), at(-time.Hour)),
		spot("e2", model.StatusExpired, at(-48*time.Hour), at(-40*time.Hour)),
		spot("c1", model.StatusConfirmed, at(5*time.Hour), at(-3*time.Hour)),
		spot("c2", model.StatusConfirmed, at(5*time.Hour), at(-20*time.Hour)),
		spot("d1", model.StatusDeclined, at(5*time.Hour), at(-time.Hour)),
		spot("u1", model.StatusUnassigned, nil, nil),
	}

	got := Summarize(spots, now, 12*time.Hour)

	assert.Equal(t, 4, got.PendingTotal)
	assert.Equal(t, 2, got.ExpiringWithin)
	assert.Equal(t, 3, got.AlreadyExpired)
	assert.Equal(t, 1, got.Expiring6h)
	assert.Equal(t, 1, got.Expiring24h)
	assert.Equal(t, 1, got.ExpiredToday)
	assert.Equal(t, 1, got.ConfirmedToday)
	assert.Equal(t, 12.0, got.WindowHours)
}

func TestSummarize_WindowEdges(t *testing.T) {
	spots := []model.Spot{
		spot("now", model.StatusPending, at(0), nil),
		spot("edge", model.StatusPending, at(time.Hour), nil),
		spot("beyond", model.StatusPending, at(time.Hour+time.Second), nil),
	}
	got := Summarize(spots, now, time.Hour)
	assert.Equal(t, 2, got.ExpiringWithin)
	assert.Zero(t, got.AlreadyExpired)
}

func TestSummarize_DefaultWindowAndEmpty(t *testing.T) {
	got := Summarize(nil, now, 0)
	assert.Equal(t, DefaultWindow, got.Window)
	assert.Zero(t, got.PendingTotal)
}

func TestSummarize_DoesNotMutate(t *testing.T) {
	spots := []model.Spot{spot("p1", model.StatusPending, at(time.Hour), nil)}
	before := spots[0].Clone()
	Summarize(spots, now, time.Hour)
	assert.Equal(t, before, spots[0])
}

func TestService_SummarizeForPromoter(t *testing.T) {
	ctx := context.Background()
	mem := repository.NewMemoryStore()
	require.NoError(t, mem.PutEvent(ctx, model.Event{ID: "ev-1", PromoterID: "pro-1", StartsAt: now.Add(48 * time.Hour)}))
	require.NoError(t, mem.PutEvent(ctx, model.Event{ID: "ev-2", PromoterID: "pro-2", StartsAt: now.Add(48 * time.Hour)}))
	require.NoError(t, mem.CreateSpot(ctx, spot("a", model.StatusPending, at(time.Hour), nil)))
	other := spot("b", model.StatusPending, at(time.Hour), nil)
	other.EventID = "ev-2"
	require.NoError(t, mem.CreateSpot(ctx, other))

	svc := NewService(mem, mem, clock.NewFake(now))
	got, err := svc.SummarizeForPromoter(ctx, "pro-1", 0)
	require.NoError(t, err)
	assert.Equal(t, 1, got.PendingTotal)
	assert.Equal(t, 1, got.ExpiringWithin)

	none, err := svc.SummarizeForPromoter(ctx, "nobody", 0)
	require.NoError(t, err)
	assert.Zero(t, none.PendingTotal)
}

type brokenLister struct{}

func (brokenLister) ListByEvents(context.Context, []string) ([]model.Spot, error) {
	return nil, errors.New("timeout")
}

func TestService_PropagatesStoreErrors(t *testing.T) {
	mem := repository.NewMemoryStore()
	_, err := NewService(mem, brokenLister{}, nil).SummarizeForPromoter(context.Background(), "pro-1", time.Hour)
	assert.Error(t, err)
}

func TestService_UpcomingEventsOnly(t *testing.T) {
	ctx := context.Background()
	mem := repository.NewMemoryStore()
	require.NoError(t, mem.PutEvent(ctx, model.Event{ID: "past", PromoterID: "pro-1", Title: "Last Week", StartsAt: now.Add(-7 * 24 * time.Hour)}))
	require.NoError(t, mem.PutEvent(ctx, model.Event{ID: "later", PromoterID: "pro-1", Title: "Saturday", StartsAt: now.Add(96 * time.Hour)}))
	require.NoError(t, mem.PutEvent(ctx, model.Event{ID: "soon", PromoterID: "pro-1", Title: "Friday", StartsAt: now.Add(24 * time.Hour)}))

	add := func(id, eventID, name string, st model.Status, deadline *time.Time) {
		s := spot(id, st, deadline, nil)
		s.EventID = eventID
		s.Name = name
		if st == model.StatusPending {
			com := "com-" + id
			s.ComedianID = &com
		}
		require.NoError(t, mem.CreateSpot(ctx, s))
	}
	add("old", "past", "Host", model.StatusPending, at(-24*time.Hour))
	add("s2", "soon", "Closer", model.StatusPending, at(5*time.Hour))
	add("s1", "soon", "Opener", model.StatusPending, at(2*time.Hour))
	add("s3", "soon", "Feature", model.StatusConfirmed, at(2*time.Hour))
	add("l1", "later", "Host", model.StatusConfirmed, at(20*time.Hour))

	got, err := NewService(mem, mem, clock.NewFake(now)).SummarizeForPromoter(ctx, "pro-1", 0)
	require.NoError(t, err)
	assert.Equal(t, 2, got.PendingTotal, "past events are left out")
	assert.Zero(t, got.AlreadyExpired)

	require.Len(t, got.Events, 2)
	assert.Equal(t, "soon", got.Events[0].EventID)
	assert.Equal(t, "Friday", got.Events[0].Title)
	assert.Equal(t, []PendingSpot{
		{SpotID: "s1", Name: "Opener", ComedianID: "com-s1", Deadline: at(2 * time.Hour)},
		{SpotID: "s2", Name: "Closer", ComedianID: "com-s2", Deadline: at(5 * time.Hour)},
	}, got.Events[0].Pending)
	assert.Equal(t, "later", got.Events[1].EventID)
	assert.Empty(t, got.Events[1].Pending)
}

func TestService_EventStartingNowIsUpcoming(t *testing.T) {
	ctx := context.Background()
	mem := repository.NewMemoryStore()
	require.NoError(t, mem.PutEvent(ctx, model.Event{ID: "ev-1", PromoterID: "pro-1", StartsAt: now}))

	got, err := NewService(mem, mem, clock.NewFake(now)).SummarizeForPromoter(ctx, "pro-1", 0)
	require.NoError(t, err)
	require.Len(t, got.Events, 1)
}
