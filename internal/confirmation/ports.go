package confirmation

import (
	"context"

	"github.com/iliyamo/spot-confirmation/internal/model"
)

// SpotStore is the single source of truth for spot confirmation state.
// CompareAndSwap must return repository.ErrVersionConflict when the
// stored version differs from expected and repository.ErrSpotNotFound
// when the spot does not exist.
type SpotStore interface {
	Get(ctx context.Context, spotID string) (model.Spot, error)
	CompareAndSwap(ctx context.Context, spotID string, expected uint64, patch model.ConfirmationPatch) (uint64, error)
	ListPending(ctx context.Context) ([]model.Spot, error)
	ListByEvents(ctx context.Context, eventIDs []string) ([]model.Spot, error)
	AppendHistory(ctx context.Context, entry model.HistoryEntry) error
	History(ctx context.Context, spotID string) ([]model.HistoryEntry, error)
}

// EventDirectory resolves event ownership.
type EventDirectory interface {
	GetEvent(ctx context.Context, eventID string) (model.Event, error)
	EventsByPromoter(ctx context.Context, promoterID string) ([]model.Event, error)
}

// Notifier delivers a notification.  Delivery is at least once; callers
// never roll back state when Send fails.
type Notifier interface {
	Send(ctx context.Context, n model.Notification) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, n model.Notification) error

// Send calls f.
func (f NotifierFunc) Send(ctx context.Context, n model.Notification) error { return f(ctx, n) }

// ConflictChecker reports whether assigning comedianID to spot would
// clash with another booking of the same comedian.
type ConflictChecker interface {
	HasConflict(ctx context.Context, spot model.Spot, comedianID string) (bool, error)
}

// NoConflicts accepts every assignment.
type NoConflicts struct{}

// HasConflict always returns false.
func (NoConflicts) HasConflict(context.Context, model.Spot, string) (bool, error) { return false, nil }

type discardNotifier struct{}

func (discardNotifier) Send(context.Context, model.Notification) error { return nil }
