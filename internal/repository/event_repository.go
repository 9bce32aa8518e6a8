package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/spot-confirmation/internal/model"
)

// EventRepo gives read access to the events table.  Events are owned by
// the event management side of the product; this subsystem only needs to
// know who promotes an event, so there is no update path here.
type EventRepo struct {
	db *sql.DB
}

// NewEventRepo returns a new EventRepo bound to the provided database.
func NewEventRepo(db *sql.DB) *EventRepo { return &EventRepo{db: db} }

// PutEvent inserts or replaces an event row.  It exists for seeding
// local databases.
func (r *EventRepo) PutEvent(ctx context.Context, ev model.Event) error {
	const q = `INSERT INTO events (id, promoter_id, title, starts_at) VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE promoter_id = VALUES(promoter_id), title = VALUES(title), starts_at = VALUES(starts_at)`
	_, err := r.db.ExecContext(ctx, q, ev.ID, ev.PromoterID, ev.Title, ev.StartsAt.UTC())
	return err
}

// GetEvent returns the event with the given id or ErrEventNotFound.
func (r *EventRepo) GetEvent(ctx context.Context, eventID string) (model.Event, error) {
	var ev model.Event
	err := r.db.QueryRowContext(ctx,
		`SELECT id, promoter_id, title, starts_at FROM events WHERE id = ?`, eventID,
	).Scan(&ev.ID, &ev.PromoterID, &ev.Title, &ev.StartsAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Event{}, ErrEventNotFound
	}
	if err != nil {
		return model.Event{}, err
	}
	ev.StartsAt = ev.StartsAt.UTC()
	return ev, nil
}

// EventsByPromoter lists the promoter's events ordered by start time.
func (r *EventRepo) EventsByPromoter(ctx context.Context, promoterID string) ([]model.Event, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, promoter_id, title, starts_at FROM events WHERE promoter_id = ? ORDER BY starts_at, id`,
		promoterID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Event{}
	for rows.Next() {
		var ev model.Event
		if err := rows.Scan(&ev.ID, &ev.PromoterID, &ev.Title, &ev.StartsAt); err != nil {
			return nil, err
		}
		ev.StartsAt = ev.StartsAt.UTC()
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
