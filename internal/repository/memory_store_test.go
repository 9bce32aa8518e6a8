package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/spot-confirmation/internal/model"
)

func TestMemoryStore_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.CreateSpot(ctx, model.Spot{ID: "a", EventID: "ev-1"}))
	assert.ErrorIs(t, s.CreateSpot(ctx, model.Spot{ID: "a"}), ErrConflict)

	got, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, model.StatusUnassigned, got.Confirmation.Status)
	assert.Equal(t, uint64(1), got.Confirmation.Version)

	_, err = s.Get(ctx, "b")
	assert.ErrorIs(t, err, ErrSpotNotFound)
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.CreateSpot(ctx, model.Spot{ID: "a", Confirmation: model.Confirmation{RemindersSent: []string{"24h"}}}))

	got, err := s.Get(ctx, "a")
	require.NoError(t, err)
	got.Confirmation.RemindersSent[0] = "mutated"

	again, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []string{"24h"}, again.Confirmation.RemindersSent)
}

func TestMemoryStore_CompareAndSwap(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.CreateSpot(ctx, model.Spot{ID: "a"}))

	v, err := s.CompareAndSwap(ctx, "a", 1, model.ConfirmationPatch{Status: model.StatusPending})
	require.NoError(t, err)
	assert.Equal(t, uint64(2), v)

	_, err = s.CompareAndSwap(ctx, "a", 1, model.ConfirmationPatch{Status: model.StatusExpired})
	assert.ErrorIs(t, err, ErrVersionConflict)

	_, err = s.CompareAndSwap(ctx, "zzz", 1, model.ConfirmationPatch{})
	assert.ErrorIs(t, err, ErrSpotNotFound)
}

func TestMemoryStore_CompareAndSwapSingleWinner(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.CreateSpot(ctx, model.Spot{ID: "a"}))

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.CompareAndSwap(ctx, "a", 1, model.ConfirmationPatch{Status: model.StatusPending}); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestMemoryStore_ListPendingOrdersByDeadline(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	late, early := base.Add(2*time.Hour), base.Add(time.Hour)

	require.NoError(t, s.CreateSpot(ctx, model.Spot{ID: "late", Confirmation: model.Confirmation{Status: model.StatusPending, Deadline: &late}}))
	require.NoError(t, s.CreateSpot(ctx, model.Spot{ID: "early", Confirmation: model.Confirmation{Status: model.StatusPending, Deadline: &early}}))
	require.NoError(t, s.CreateSpot(ctx, model.Spot{ID: "done", Confirmation: model.Confirmation{Status: model.StatusConfirmed}}))

	pending, err := s.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "early", pending[0].ID)
	assert.Equal(t, "late", pending[1].ID)
}

func TestMemoryStore_HistoryIsOrdered(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	t0 := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.AppendHistory(ctx, model.HistoryEntry{ID: "02", SpotID: "a", At: t0.Add(time.Minute)}))
	require.NoError(t, s.AppendHistory(ctx, model.HistoryEntry{ID: "01", SpotID: "a", At: t0}))

	h, err := s.History(ctx, "a")
	require.NoError(t, err)
	require.Len(t, h, 2)
	assert.Equal(t, "01", h[0].ID)

	empty, err := s.History(ctx, "other")
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestMemoryStore_Events(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	t0 := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.PutEvent(ctx, model.Event{ID: "e2", PromoterID: "p", StartsAt: t0.Add(time.Hour)}))
	require.NoError(t, s.PutEvent(ctx, model.Event{ID: "e1", PromoterID: "p", StartsAt: t0}))
	require.NoError(t, s.PutEvent(ctx, model.Event{ID: "e3", PromoterID: "q", StartsAt: t0}))

	evs, err := s.EventsByPromoter(ctx, "p")
	require.NoError(t, err)
	require.Len(t, evs, 2)
	assert.Equal(t, "e1", evs[0].ID)

	_, err = s.GetEvent(ctx, "nope")
	assert.ErrorIs(t, err, ErrEventNotFound)
}
