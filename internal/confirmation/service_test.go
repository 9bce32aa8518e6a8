package confirmation

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/spot-confirmation/internal/clock"
	"github.com/iliyamo/spot-confirmation/internal/model"
	"github.com/iliyamo/spot-confirmation/internal/repository"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type recorder struct {
	mu   sync.Mutex
	sent []model.Notification
	err  error
}

func (r *recorder) Send(_ context.Context, n model.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return r.err
}

func (r *recorder) all() []model.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.Notification(nil), r.sent...)
}

type fixture struct {
	store *repository.MemoryStore
	clk   *clock.Fake
	notes *recorder
	svc   *Service
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	ctx := context.Background()
	f := &fixture{store: repository.NewMemoryStore(), clk: clock.NewFake(t0), notes: &recorder{}}
	require.NoError(t, f.store.PutEvent(ctx, model.Event{ID: "ev-1", PromoterID: "pro-1", Title: "Friday Late", StartsAt: t0.Add(72 * time.Hour)}))
	require.NoError(t, f.store.CreateSpot(ctx, model.Spot{
		ID: "spot-1", EventID: "ev-1", Name: "Opener", DurationMinutes: 10,
		PaymentAmount: decimal.NewFromInt(50), Currency: "USD", OrderIndex: 1,
	}))
	base := []Option{WithClock(f.clk), WithNotifier(f.notes), WithLogger(logrus.New())}
	f.svc = New(f.store, f.store, append(base, opts...)...)
	return f
}

func (f *fixture) invite(t *testing.T, window time.Duration) model.Spot {
	t.Helper()
	o, err := f.svc.Invite(context.Background(), InviteInput{SpotID: "spot-1", ComedianID: "com-1", PromoterID: "pro-1", DeadlineIn: window})
	require.NoError(t, err)
	require.True(t, o.Applied)
	return o.Spot
}

func TestInvite_StartsPendingEpoch(t *testing.T) {
	f := newFixture(t)

	spot := f.invite(t, 0)

	assert.Equal(t, model.StatusPending, spot.Confirmation.Status)
	require.NotNil(t, spot.Confirmation.Deadline)
	assert.True(t, t0.Add(24*time.Hour).Equal(*spot.Confirmation.Deadline), "default window is 24h")
	assert.True(t, spot.AssignedTo("com-1"))
	assert.Empty(t, spot.Confirmation.RemindersSent)
	assert.Equal(t, uint64(2), spot.Confirmation.Version)

	sent := f.notes.all()
	require.Len(t, sent, 1)
	assert.Equal(t, model.NotifyInvited, sent[0].Kind)
	assert.Equal(t, "com-1", sent[0].Recipient)
	assert.NotEmpty(t, sent[0].ID)

	h, err := f.svc.History(context.Background(), "spot-1")
	require.NoError(t, err)
	require.Len(t, h, 1)
	assert.Equal(t, model.StatusUnassigned, h[0].FromStatus)
	assert.Equal(t, model.StatusPending, h[0].ToStatus)
	assert.Equal(t, model.ActorPromoter, h[0].Actor)
	assert.Equal(t, "pro-1", h[0].ActorID)
}

func TestInvite_Validation(t *testing.T) {
	ctx := context.Background()
	past := t0.Add(-time.Minute)

	tests := []struct {
		name string
		in   InviteInput
		want error
	}{
		{"missing comedian", InviteInput{SpotID: "spot-1", PromoterID: "pro-1"}, ErrInvalidInput},
		{"missing spot", InviteInput{ComedianID: "com-1", PromoterID: "pro-1"}, ErrInvalidInput},
		{"unknown spot", InviteInput{SpotID: "nope", ComedianID: "com-1", PromoterID: "pro-1"}, ErrSpotNotFound},
		{"foreign promoter", InviteInput{SpotID: "spot-1", ComedianID: "com-1", PromoterID: "pro-2"}, ErrUnauthorized},
		{"past deadline", InviteInput{SpotID: "spot-1", ComedianID: "com-1", PromoterID: "pro-1", Deadline: &past}, ErrInvalidDeadline},
		{"negative window", InviteInput{SpotID: "spot-1", ComedianID: "com-1", PromoterID: "pro-1", DeadlineIn: -time.Hour}, ErrInvalidDeadline},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.svc.Invite(ctx, tt.in)
			assert.ErrorIs(t, err, tt.want)
			assert.Empty(t, f.notes.all())
		})
	}
}

type conflictStub bool

func (c conflictStub) HasConflict(context.Context, model.Spot, string) (bool, error) { return bool(c), nil }

func TestInvite_SchedulingConflict(t *testing.T) {
	f := newFixture(t, WithConflictChecker(conflictStub(true)))

	_, err := f.svc.Invite(context.Background(), InviteInput{SpotID: "spot-1", ComedianID: "com-1", PromoterID: "pro-1"})
	assert.ErrorIs(t, err, ErrSchedulingConflict)

	spot, err := f.svc.Get(context.Background(), "spot-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusUnassigned, spot.Confirmation.Status)
}

func TestInvite_RejectsPendingSpot(t *testing.T) {
	f := newFixture(t)
	f.invite(t, time.Hour)

	_, err := f.svc.Invite(context.Background(), InviteInput{SpotID: "spot-1", ComedianID: "com-2", PromoterID: "pro-1"})
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestInvite_AbsoluteDeadline(t *testing.T) {
	f := newFixture(t)
	at := t0.Add(5 * time.Hour).In(time.FixedZone("EST", -5*3600))

	o, err := f.svc.Invite(context.Background(), InviteInput{SpotID: "spot-1", ComedianID: "com-1", Deadline: &at})
	require.NoError(t, err)
	assert.True(t, at.Equal(*o.Spot.Confirmation.Deadline))
	assert.Equal(t, time.UTC, o.Spot.Confirmation.Deadline.Location())

	h, err := f.svc.History(context.Background(), "spot-1")
	require.NoError(t, err)
	assert.Equal(t, model.ActorSystem, h[0].Actor)
}

func TestInviteMany_IndependentResults(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.CreateSpot(ctx, model.Spot{ID: "spot-2", EventID: "ev-1", Name: "Closer", OrderIndex: 2}))

	res := f.svc.InviteMany(ctx, []InviteInput{
		{SpotID: "spot-1", ComedianID: "com-1", PromoterID: "pro-1"},
		{SpotID: "missing", ComedianID: "com-2", PromoterID: "pro-1"},
		{SpotID: "spot-2", ComedianID: "com-3", PromoterID: "pro-1"},
	})

	require.Len(t, res, 3)
	assert.NoError(t, res[0].Err)
	assert.ErrorIs(t, res[1].Err, ErrSpotNotFound)
	assert.NoError(t, res[2].Err)
	assert.True(t, res[2].Outcome.Spot.AssignedTo("com-3"))
}

// Confirming one second before the deadline succeeds.
func TestConfirm_BeforeDeadline(t *testing.T) {
	f := newFixture(t)
	f.invite(t, time.Hour)
	f.clk.Set(t0.Add(time.Hour - time.Second))

	o, err := f.svc.Confirm(context.Background(), "spot-1", "com-1")
	require.NoError(t, err)
	assert.True(t, o.Applied)
	assert.Equal(t, model.StatusConfirmed, o.Spot.Confirmation.Status)
	require.NotNil(t, o.Spot.Confirmation.RespondedAt)
	assert.True(t, f.clk.Now().Equal(*o.Spot.Confirmation.RespondedAt))

	sent := f.notes.all()
	require.Len(t, sent, 3)
	assert.Equal(t, model.NotifyConfirmed, sent[1].Kind)
	assert.Equal(t, "pro-1", sent[1].Recipient)
	assert.Equal(t, model.RolePromoter, sent[1].Role)
	assert.Equal(t, model.NotifyLineupComplete, sent[2].Kind, "spot-1 is the only spot of ev-1")
	assert.Equal(t, "pro-1", sent[2].Recipient)
	assert.Equal(t, "lineup_complete", sent[2].TemplateID)
	assert.Equal(t, "ev-1", sent[2].EventID)
}

func TestConfirm_LineupCompleteOnlyOnLastSpot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.CreateSpot(ctx, model.Spot{
		ID: "spot-2", EventID: "ev-1", Name: "Closer", DurationMinutes: 15,
		PaymentAmount: decimal.NewFromInt(80), Currency: "USD", OrderIndex: 2,
	}))
	f.invite(t, time.Hour)
	_, err := f.svc.Invite(ctx, InviteInput{SpotID: "spot-2", ComedianID: "com-2", PromoterID: "pro-1", DeadlineIn: time.Hour})
	require.NoError(t, err)

	lineupSent := func() int {
		n := 0
		for _, m := range f.notes.all() {
			if m.Kind == model.NotifyLineupComplete {
				n++
			}
		}
		return n
	}

	_, err = f.svc.Confirm(ctx, "spot-1", "com-1")
	require.NoError(t, err)
	assert.Zero(t, lineupSent(), "spot-2 is still pending")

	f.clk.Advance(time.Minute)
	_, err = f.svc.Confirm(ctx, "spot-2", "com-2")
	require.NoError(t, err)
	assert.Equal(t, 1, lineupSent())

	_, err = f.svc.Confirm(ctx, "spot-2", "com-2")
	require.NoError(t, err)
	assert.Equal(t, 1, lineupSent(), "a repeated confirm does not announce again")
}

func TestConfirm_RetryIsNoop(t *testing.T) {
	f := newFixture(t)
	f.invite(t, time.Hour)
	ctx := context.Background()

	first, err := f.svc.Confirm(ctx, "spot-1", "com-1")
	require.NoError(t, err)
	second, err := f.svc.Confirm(ctx, "spot-1", "com-1")
	require.NoError(t, err)

	assert.False(t, second.Applied)
	assert.Equal(t, first.Spot.Confirmation.Version, second.Spot.Confirmation.Version)
	h, err := f.svc.History(ctx, "spot-1")
	require.NoError(t, err)
	assert.Len(t, h, 2)
}

func TestConfirm_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("wrong comedian", func(t *testing.T) {
		f := newFixture(t)
		f.invite(t, time.Hour)
		_, err := f.svc.Confirm(ctx, "spot-1", "com-2")
		assert.ErrorIs(t, err, ErrNotAssignedToComedian)
	})
	t.Run("late confirmation disallowed", func(t *testing.T) {
		f := newFixture(t)
		f.invite(t, time.Hour)
		f.clk.Advance(time.Hour + time.Second)
		_, err := f.svc.Confirm(ctx, "spot-1", "com-1")
		assert.ErrorIs(t, err, ErrResponseWindowClosed)
		assert.ErrorIs(t, err, ErrDeadlineExpired)
		assert.Equal(t, "The time to respond to this invitation has run out.", UserMessage(err))

		spot, err := f.svc.Get(ctx, "spot-1")
		require.NoError(t, err)
		assert.Equal(t, model.StatusPending, spot.Confirmation.Status, "not swept yet")
	})
	t.Run("already expired", func(t *testing.T) {
		f := newFixture(t, WithLateConfirmation(true))
		f.invite(t, time.Hour)
		f.clk.Advance(2 * time.Hour)
		_, err := f.svc.Expire(ctx, "spot-1")
		require.NoError(t, err)
		_, err = f.svc.Confirm(ctx, "spot-1", "com-1")
		assert.ErrorIs(t, err, ErrDeadlineExpired)
		assert.NotErrorIs(t, err, ErrResponseWindowClosed)
	})
	t.Run("unassigned", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.Confirm(ctx, "spot-1", "com-1")
		assert.ErrorIs(t, err, ErrInvalidTransition)
	})
	t.Run("confirmed by someone else", func(t *testing.T) {
		f := newFixture(t)
		f.invite(t, time.Hour)
		_, err := f.svc.Confirm(ctx, "spot-1", "com-1")
		require.NoError(t, err)
		_, err = f.svc.Confirm(ctx, "spot-1", "com-2")
		assert.ErrorIs(t, err, ErrInvalidTransition)
	})
}

func TestConfirm_LateAllowed(t *testing.T) {
	f := newFixture(t, WithLateConfirmation(true))
	f.invite(t, time.Hour)
	f.clk.Advance(90 * time.Minute)

	o, err := f.svc.Confirm(context.Background(), "spot-1", "com-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusConfirmed, o.Spot.Confirmation.Status)
}

func TestDecline_ReopensSpot(t *testing.T) {
	f := newFixture(t)
	f.invite(t, time.Hour)
	f.clk.Advance(3 * time.Hour) // decline is accepted after the deadline

	o, err := f.svc.Decline(context.Background(), "spot-1", "com-1", "double booked")
	require.NoError(t, err)
	assert.Equal(t, model.StatusDeclined, o.Spot.Confirmation.Status)
	assert.Nil(t, o.Spot.ComedianID)
	assert.Equal(t, "double booked", o.Spot.Confirmation.Notes)

	sent := f.notes.all()
	require.Len(t, sent, 2)
	assert.Equal(t, model.NotifyDeclined, sent[1].Kind)
	assert.Equal(t, "pro-1", sent[1].Recipient)
	assert.Equal(t, "double booked", sent[1].Reason)

	again, err := f.svc.Decline(context.Background(), "spot-1", "com-1", "")
	require.NoError(t, err)
	assert.False(t, again.Applied)

	_, err = f.svc.Decline(context.Background(), "spot-1", "com-2", "")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestDecline_AfterExpiryReturnsSettledSpot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.invite(t, time.Hour)
	f.clk.Advance(2 * time.Hour)
	expired, err := f.svc.Expire(ctx, "spot-1")
	require.NoError(t, err)
	require.True(t, expired.Applied)
	before := len(f.notes.all())

	o, err := f.svc.Decline(ctx, "spot-1", "com-1", "sorry, missed it")
	require.NoError(t, err)
	assert.False(t, o.Applied)
	assert.Equal(t, model.StatusExpired, o.Spot.Confirmation.Status)
	assert.Equal(t, expired.Spot.Confirmation.Version, o.Spot.Confirmation.Version)
	assert.Len(t, f.notes.all(), before, "no notification for a no-op")
}

// The sweeper expiring one second after the deadline clears the comedian
// and notifies both sides.
func TestExpire_AfterDeadline(t *testing.T) {
	f := newFixture(t)
	f.invite(t, time.Hour)
	f.clk.Set(t0.Add(time.Hour + time.Second))

	o, err := f.svc.Expire(context.Background(), "spot-1")
	require.NoError(t, err)
	assert.True(t, o.Applied)
	assert.Equal(t, model.StatusExpired, o.Spot.Confirmation.Status)
	assert.Nil(t, o.Spot.ComedianID)

	sent := f.notes.all()
	require.Len(t, sent, 3)
	assert.Equal(t, model.NotifyExpired, sent[1].Kind)
	assert.Equal(t, "com-1", sent[1].Recipient)
	assert.Equal(t, model.RoleComedian, sent[1].Role)
	assert.Equal(t, model.NotifyExpired, sent[2].Kind)
	assert.Equal(t, "pro-1", sent[2].Recipient)

	h, err := f.svc.History(context.Background(), "spot-1")
	require.NoError(t, err)
	require.Len(t, h, 2)
	assert.Equal(t, model.ActorSystem, h[1].Actor)
	assert.Equal(t, model.StatusExpired, h[1].ToStatus)
}

func TestExpire_NotDueAndSettled(t *testing.T) {
	f := newFixture(t)
	f.invite(t, time.Hour)
	ctx := context.Background()

	f.clk.Set(t0.Add(time.Hour)) // exactly at the deadline is not overdue
	_, err := f.svc.Expire(ctx, "spot-1")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	f.clk.Advance(time.Second)
	_, err = f.svc.Expire(ctx, "spot-1")
	require.NoError(t, err)

	dup, err := f.svc.Expire(ctx, "spot-1")
	require.NoError(t, err)
	assert.False(t, dup.Applied)
	assert.Equal(t, model.StatusExpired, dup.Spot.Confirmation.Status)
}

func TestExtendDeadline_ResetsReminders(t *testing.T) {
	f := newFixture(t)
	spot := f.invite(t, 20*time.Hour)
	ctx := context.Background()
	_, err := f.svc.MarkReminderSent(ctx, "spot-1", *spot.Confirmation.Deadline, "24h", "6h")
	require.NoError(t, err)

	next := spot.Confirmation.Deadline.Add(24 * time.Hour)
	o, err := f.svc.ExtendDeadline(ctx, ExtendInput{SpotID: "spot-1", PromoterID: "pro-1", NewDeadline: next, Reason: "venue change"})
	require.NoError(t, err)
	assert.True(t, next.Equal(*o.Spot.Confirmation.Deadline))
	assert.Empty(t, o.Spot.Confirmation.RemindersSent)
	assert.Equal(t, model.StatusPending, o.Spot.Confirmation.Status)

	h, err := f.svc.History(ctx, "spot-1")
	require.NoError(t, err)
	require.Len(t, h, 2)
	assert.Equal(t, "venue change", h[1].Notes)
	assert.Equal(t, model.StatusPending, h[1].FromStatus)
	assert.Equal(t, model.StatusPending, h[1].ToStatus)

	sent := f.notes.all()
	last := sent[len(sent)-1]
	assert.Equal(t, model.NotifyDeadlineExtended, last.Kind)
	assert.Equal(t, "com-1", last.Recipient)
	assert.Equal(t, "venue change", last.Reason)
}

func TestExtendDeadline_MustAdvance(t *testing.T) {
	f := newFixture(t)
	spot := f.invite(t, 10*time.Hour)
	ctx := context.Background()
	current := *spot.Confirmation.Deadline

	for _, d := range []time.Time{current, current.Add(-time.Minute)} {
		_, err := f.svc.ExtendDeadline(ctx, ExtendInput{SpotID: "spot-1", PromoterID: "pro-1", NewDeadline: d})
		assert.ErrorIs(t, err, ErrDeadlineMustAdvance)
		assert.Equal(t, "Deadlines can only be extended, not shortened.", UserMessage(err))
	}

	got, err := f.svc.Get(ctx, "spot-1")
	require.NoError(t, err)
	assert.True(t, current.Equal(*got.Confirmation.Deadline))
}

func TestExtendDeadline_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("foreign promoter", func(t *testing.T) {
		f := newFixture(t)
		spot := f.invite(t, time.Hour)
		_, err := f.svc.ExtendDeadline(ctx, ExtendInput{SpotID: "spot-1", PromoterID: "pro-2", NewDeadline: spot.Confirmation.Deadline.Add(time.Hour)})
		assert.ErrorIs(t, err, ErrUnauthorized)
	})
	t.Run("not pending", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.ExtendDeadline(ctx, ExtendInput{SpotID: "spot-1", PromoterID: "pro-1", NewDeadline: t0.Add(time.Hour)})
		assert.ErrorIs(t, err, ErrInvalidTransition)
	})
	t.Run("still in the past", func(t *testing.T) {
		f := newFixture(t)
		spot := f.invite(t, time.Hour)
		f.clk.Advance(5 * time.Hour)
		_, err := f.svc.ExtendDeadline(ctx, ExtendInput{SpotID: "spot-1", PromoterID: "pro-1", NewDeadline: spot.Confirmation.Deadline.Add(time.Hour)})
		assert.ErrorIs(t, err, ErrInvalidDeadline)
	})
	t.Run("missing promoter", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.ExtendDeadline(ctx, ExtendInput{SpotID: "spot-1", NewDeadline: t0})
		assert.ErrorIs(t, err, ErrInvalidInput)
	})
}

func TestMarkReminderSent(t *testing.T) {
	f := newFixture(t)
	spot := f.invite(t, 2*time.Hour)
	ctx := context.Background()
	deadline := *spot.Confirmation.Deadline

	o, err := f.svc.MarkReminderSent(ctx, "spot-1", deadline, "6h", "24h")
	require.NoError(t, err)
	assert.True(t, o.Applied)
	assert.ElementsMatch(t, []string{"24h", "6h"}, o.Spot.Confirmation.RemindersSent)

	dup, err := f.svc.MarkReminderSent(ctx, "spot-1", deadline, "6h")
	require.NoError(t, err)
	assert.False(t, dup.Applied)

	stale, err := f.svc.MarkReminderSent(ctx, "spot-1", deadline.Add(-time.Hour), "1h")
	require.NoError(t, err)
	assert.False(t, stale.Applied, "a different deadline belongs to another epoch")

	h, err := f.svc.History(ctx, "spot-1")
	require.NoError(t, err)
	assert.Len(t, h, 1, "reminder bookkeeping is not a transition")
}

func TestClaimReminder_OnlyOneClaimantWins(t *testing.T) {
	f := newFixture(t)
	spot := f.invite(t, 30*time.Minute)
	ctx := context.Background()
	deadline := *spot.Confirmation.Deadline

	o, added, err := f.svc.ClaimReminder(ctx, "spot-1", deadline, "24h", "6h", "1h")
	require.NoError(t, err)
	assert.True(t, o.Applied)
	assert.Equal(t, []string{"24h", "6h", "1h"}, added)

	o, added, err = f.svc.ClaimReminder(ctx, "spot-1", deadline, "24h", "6h", "1h")
	require.NoError(t, err)
	assert.False(t, o.Applied)
	assert.Empty(t, added)
}

func TestClaimReminder_ConcurrentClaimsSplitTiers(t *testing.T) {
	f := newFixture(t)
	spot := f.invite(t, 30*time.Minute)
	deadline := *spot.Confirmation.Deadline

	var wg sync.WaitGroup
	results := make([][]string, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, added, err := f.svc.ClaimReminder(context.Background(), "spot-1", deadline, "1h")
			assert.NoError(t, err)
			results[i] = added
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, added := range results {
		if len(added) > 0 {
			winners++
		}
	}
	assert.Equal(t, 1, winners)
}

func TestReleaseReminder(t *testing.T) {
	f := newFixture(t)
	spot := f.invite(t, 30*time.Minute)
	ctx := context.Background()
	deadline := *spot.Confirmation.Deadline

	_, err := f.svc.MarkReminderSent(ctx, "spot-1", deadline, "24h")
	require.NoError(t, err)
	_, added, err := f.svc.ClaimReminder(ctx, "spot-1", deadline, "24h", "6h", "1h")
	require.NoError(t, err)
	require.Equal(t, []string{"6h", "1h"}, added)

	o, err := f.svc.ReleaseReminder(ctx, "spot-1", deadline, added...)
	require.NoError(t, err)
	assert.True(t, o.Applied)
	assert.Equal(t, []string{"24h"}, o.Spot.Confirmation.RemindersSent)

	stale, err := f.svc.ReleaseReminder(ctx, "spot-1", deadline.Add(time.Hour), "24h")
	require.NoError(t, err)
	assert.False(t, stale.Applied, "a different deadline belongs to another epoch")

	again, err := f.svc.ReleaseReminder(ctx, "spot-1", deadline, "6h")
	require.NoError(t, err)
	assert.False(t, again.Applied)
}

func TestReassignment_ResetsEpoch(t *testing.T) {
	f := newFixture(t)
	spot := f.invite(t, time.Hour)
	ctx := context.Background()
	_, err := f.svc.MarkReminderSent(ctx, "spot-1", *spot.Confirmation.Deadline, "24h", "6h", "1h")
	require.NoError(t, err)

	f.clk.Advance(2 * time.Hour)
	_, err = f.svc.Expire(ctx, "spot-1")
	require.NoError(t, err)

	o, err := f.svc.Invite(ctx, InviteInput{SpotID: "spot-1", ComedianID: "com-2", PromoterID: "pro-1", DeadlineIn: 12 * time.Hour})
	require.NoError(t, err)
	assert.Empty(t, o.Spot.Confirmation.RemindersSent)
	assert.Nil(t, o.Spot.Confirmation.RespondedAt)
	assert.True(t, o.Spot.AssignedTo("com-2"))

	h, err := f.svc.History(ctx, "spot-1")
	require.NoError(t, err)
	require.Len(t, h, 3)
	assert.Equal(t, model.StatusExpired, h[2].FromStatus)
	assert.Equal(t, model.StatusPending, h[2].ToStatus)
}

// hookStore runs beforeCAS once, just before the first compare-and-swap.
// The hook may itself write through the store.
type hookStore struct {
	*repository.MemoryStore
	fired     bool
	beforeCAS func()
}

func (h *hookStore) CompareAndSwap(ctx context.Context, id string, v uint64, p model.ConfirmationPatch) (uint64, error) {
	if !h.fired {
		h.fired = true
		h.beforeCAS()
	}
	return h.MemoryStore.CompareAndSwap(ctx, id, v, p)
}

// A confirm that read version N loses to an expire that commits N+1
// first; the retried confirm observes the settled spot and returns it.
func TestConfirm_LosesRaceToExpire(t *testing.T) {
	f := newFixture(t, WithLateConfirmation(true))
	f.invite(t, time.Hour)
	f.clk.Advance(time.Hour + time.Second)
	ctx := context.Background()

	hs := &hookStore{MemoryStore: f.store}
	svc := New(hs, f.store, WithClock(f.clk), WithNotifier(f.notes), WithLateConfirmation(true))
	hs.beforeCAS = func() {
		_, err := svc.Expire(ctx, "spot-1")
		require.NoError(t, err)
	}

	o, err := svc.Confirm(ctx, "spot-1", "com-1")
	require.NoError(t, err)
	assert.False(t, o.Applied)
	assert.Equal(t, model.StatusExpired, o.Spot.Confirmation.Status)
	assert.Equal(t, uint64(3), o.Spot.Confirmation.Version)
}

// barrierStore holds the first n reads until all of them happened, so
// every caller starts from the same version.
type barrierStore struct {
	*repository.MemoryStore
	n     int32
	reads int32
	wg    sync.WaitGroup
}

func newBarrierStore(s *repository.MemoryStore, n int) *barrierStore {
	b := &barrierStore{MemoryStore: s, n: int32(n)}
	b.wg.Add(n)
	return b
}

func (b *barrierStore) Get(ctx context.Context, id string) (model.Spot, error) {
	spot, err := b.MemoryStore.Get(ctx, id)
	if atomic.AddInt32(&b.reads, 1) <= b.n {
		b.wg.Done()
		b.wg.Wait()
	}
	return spot, err
}

func TestSettle_ExactlyOneWinner(t *testing.T) {
	f := newFixture(t)
	f.invite(t, time.Hour)
	f.clk.Advance(time.Hour + time.Second)
	ctx := context.Background()

	const callers = 9
	bs := newBarrierStore(f.store, callers)
	svc := New(bs, f.store, WithClock(f.clk), WithLateConfirmation(true), WithMaxAttempts(callers+1))

	var (
		wg      sync.WaitGroup
		applied int32
		errs    = make(chan error, callers)
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var (
				o   Outcome
				err error
			)
			switch i % 3 {
			case 0:
				o, err = svc.Confirm(ctx, "spot-1", "com-1")
			case 1:
				o, err = svc.Decline(ctx, "spot-1", "com-1", "")
			default:
				o, err = svc.Expire(ctx, "spot-1")
			}
			if err != nil {
				errs <- err
				return
			}
			if o.Applied {
				atomic.AddInt32(&applied, 1)
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("unexpected error: %v", err)
	}
	assert.Equal(t, int32(1), applied)

	spot, err := f.svc.Get(ctx, "spot-1")
	require.NoError(t, err)
	assert.True(t, spot.Confirmation.Status.Settled())
	assert.Equal(t, uint64(3), spot.Confirmation.Version)
}

// alwaysConflict loses every compare-and-swap.
type alwaysConflict struct {
	*repository.MemoryStore
	calls int32
}

func (a *alwaysConflict) CompareAndSwap(context.Context, string, uint64, model.ConfirmationPatch) (uint64, error) {
	atomic.AddInt32(&a.calls, 1)
	return 0, repository.ErrVersionConflict
}

func TestConcurrentModification_AfterMaxAttempts(t *testing.T) {
	f := newFixture(t)
	f.invite(t, time.Hour)

	ac := &alwaysConflict{MemoryStore: f.store}
	svc := New(ac, f.store, WithClock(f.clk), WithMaxAttempts(3))

	_, err := svc.Confirm(context.Background(), "spot-1", "com-1")
	assert.ErrorIs(t, err, ErrConcurrentModification)
	assert.Equal(t, int32(3), atomic.LoadInt32(&ac.calls))
}

type mockNotifier struct{ mock.Mock }

func (m *mockNotifier) Send(ctx context.Context, n model.Notification) error {
	return m.Called(ctx, n).Error(0)
}

func TestNotificationFailure_DoesNotUndoCommit(t *testing.T) {
	hook := logtest.NewGlobal()
	defer hook.Reset()

	n := new(mockNotifier)
	n.On("Send", mock.Anything, mock.MatchedBy(func(m model.Notification) bool {
		return m.Kind == model.NotifyInvited && m.Recipient == "com-1"
	})).Return(errors.New("smtp down")).Once()

	f := newFixture(t)
	svc := New(f.store, f.store, WithClock(f.clk), WithNotifier(n))

	o, err := svc.Invite(context.Background(), InviteInput{SpotID: "spot-1", ComedianID: "com-1", PromoterID: "pro-1"})
	require.NoError(t, err)
	assert.True(t, o.Applied)
	n.AssertExpectations(t)

	spot, err := svc.Get(context.Background(), "spot-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, spot.Confirmation.Status)

	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "notification failed", hook.LastEntry().Message)
	assert.Equal(t, "com-1", hook.LastEntry().Data["recipient"])
	assert.NotEmpty(t, hook.LastEntry().Data["notification_id"])
}

// failingHistory drops every history append.
type failingHistory struct{ *repository.MemoryStore }

func (failingHistory) AppendHistory(context.Context, model.HistoryEntry) error {
	return errors.New("disk full")
}

func TestHistoryFailure_DoesNotUndoCommit(t *testing.T) {
	f := newFixture(t)
	logger, hook := logtest.NewNullLogger()
	svc := New(failingHistory{f.store}, f.store, WithClock(f.clk), WithLogger(logger))

	o, err := svc.Invite(context.Background(), InviteInput{SpotID: "spot-1", ComedianID: "com-1", PromoterID: "pro-1"})
	require.NoError(t, err)
	assert.True(t, o.Applied)
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "confirmation history append failed", hook.LastEntry().Message)
	assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
}

func TestCancelledContext_BeforeRead(t *testing.T) {
	f := newFixture(t)
	f.invite(t, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.svc.Confirm(ctx, "spot-1", "com-1")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestUserMessage_Unknown(t *testing.T) {
	assert.Equal(t, "Something went wrong. Please try again later.", UserMessage(errors.New("x")))
	assert.Equal(t, "This spot no longer exists.", UserMessage(ErrSpotNotFound))
}
