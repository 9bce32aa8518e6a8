package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/iliyamo/spot-confirmation/internal/model"
)

// MemoryStore keeps spots, history and events in process memory.  It is
// the fallback when no database is configured and the backing store for
// tests.  Every read returns a copy, so callers never share state with the
// store, which mirrors the MySQL repositories.
type MemoryStore struct {
	mu      sync.Mutex
	spots   map[string]model.Spot
	history map[string][]model.HistoryEntry
	events  map[string]model.Event
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		spots:   make(map[string]model.Spot),
		history: make(map[string][]model.HistoryEntry),
		events:  make(map[string]model.Event),
	}
}

// CreateSpot inserts a new spot.  A zero status is stored as unassigned
// and the version starts at 1.
func (s *MemoryStore) CreateSpot(ctx context.Context, spot model.Spot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.spots[spot.ID]; ok {
		return ErrConflict
	}
	if spot.Confirmation.Status == "" {
		spot.Confirmation.Status = model.StatusUnassigned
	}
	spot.Confirmation.Version = 1
	s.spots[spot.ID] = spot.Clone()
	return nil
}

// Get returns the spot with its current version.
func (s *MemoryStore) Get(ctx context.Context, spotID string) (model.Spot, error) {
	if err := ctx.Err(); err != nil {
		return model.Spot{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	spot, ok := s.spots[spotID]
	if !ok {
		return model.Spot{}, ErrSpotNotFound
	}
	return spot.Clone(), nil
}

// CompareAndSwap writes patch when the stored version equals expected and
// returns the new version.
func (s *MemoryStore) CompareAndSwap(ctx context.Context, spotID string, expected uint64, patch model.ConfirmationPatch) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	spot, ok := s.spots[spotID]
	if !ok {
		return 0, ErrSpotNotFound
	}
	if spot.Confirmation.Version != expected {
		return 0, ErrVersionConflict
	}
	next := expected + 1
	s.spots[spotID] = spot.Apply(patch, next)
	return next, nil
}

// ListPending returns every pending spot ordered by deadline.
func (s *MemoryStore) ListPending(ctx context.Context) ([]model.Spot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	var out []model.Spot
	for _, spot := range s.spots {
		if spot.Confirmation.Status == model.StatusPending {
			out = append(out, spot.Clone())
		}
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		di, dj := out[i].Confirmation.Deadline, out[j].Confirmation.Deadline
		if di == nil || dj == nil {
			return dj != nil
		}
		if di.Equal(*dj) {
			return out[i].ID < out[j].ID
		}
		return di.Before(*dj)
	})
	return out, nil
}

// ListByEvents returns the spots belonging to any of eventIDs ordered by
// event and lineup position.
func (s *MemoryStore) ListByEvents(ctx context.Context, eventIDs []string) ([]model.Spot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	want := make(map[string]bool, len(eventIDs))
	for _, id := range eventIDs {
		want[id] = true
	}
	s.mu.Lock()
	var out []model.Spot
	for _, spot := range s.spots {
		if want[spot.EventID] {
			out = append(out, spot.Clone())
		}
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].EventID != out[j].EventID {
			return out[i].EventID < out[j].EventID
		}
		if out[i].OrderIndex != out[j].OrderIndex {
			return out[i].OrderIndex < out[j].OrderIndex
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// AppendHistory appends entry to the spot's history.
func (s *MemoryStore) AppendHistory(ctx context.Context, entry model.HistoryEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history[entry.SpotID] = append(s.history[entry.SpotID], copyEntry(entry))
	return nil
}

// History returns the spot's entries ordered by time, then id.
func (s *MemoryStore) History(ctx context.Context, spotID string) ([]model.HistoryEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	entries := s.history[spotID]
	out := make([]model.HistoryEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, copyEntry(e))
	}
	s.mu.Unlock()
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].At.Equal(out[j].At) {
			return out[i].ID < out[j].ID
		}
		return out[i].At.Before(out[j].At)
	})
	return out, nil
}

// PutEvent inserts or replaces an event.
func (s *MemoryStore) PutEvent(ctx context.Context, ev model.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[ev.ID] = ev
	return nil
}

// GetEvent returns the event with the given id.
func (s *MemoryStore) GetEvent(ctx context.Context, eventID string) (model.Event, error) {
	if err := ctx.Err(); err != nil {
		return model.Event{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.events[eventID]
	if !ok {
		return model.Event{}, ErrEventNotFound
	}
	return ev, nil
}

// EventsByPromoter returns the promoter's events ordered by start time.
func (s *MemoryStore) EventsByPromoter(ctx context.Context, promoterID string) ([]model.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	var out []model.Event
	for _, ev := range s.events {
		if ev.PromoterID == promoterID {
			out = append(out, ev)
		}
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartsAt.Equal(out[j].StartsAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartsAt.Before(out[j].StartsAt)
	})
	return out, nil
}

func copyEntry(e model.HistoryEntry) model.HistoryEntry {
	if e.Deadline != nil {
		d := *e.Deadline
		e.Deadline = &d
	}
	return e
}
