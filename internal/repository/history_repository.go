package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/spot-confirmation/internal/model"
)

// HistoryRepo provides append-only access to the
// spot_confirmation_history table.  There is no update or delete method;
// rows disappear only when their spot is deleted through the foreign key
// cascade.
type HistoryRepo struct {
	db *sql.DB
}

// NewHistoryRepo returns a new HistoryRepo bound to the provided database.
func NewHistoryRepo(db *sql.DB) *HistoryRepo { return &HistoryRepo{db: db} }

// AppendHistory inserts one history entry.
func (r *HistoryRepo) AppendHistory(ctx context.Context, e model.HistoryEntry) error {
	const q = `INSERT INTO spot_confirmation_history
		(id, spot_id, from_status, to_status, actor, actor_id, at, deadline, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, q,
		e.ID, e.SpotID, string(e.FromStatus), string(e.ToStatus), string(e.Actor), e.ActorID,
		e.At.UTC(), nullTime(e.Deadline), e.Notes,
	)
	return err
}

// History returns the entries of a spot in commit order.  Ties on the
// timestamp are broken by id, which is a ULID and therefore sortable.
func (r *HistoryRepo) History(ctx context.Context, spotID string) ([]model.HistoryEntry, error) {
	const q = `SELECT id, spot_id, from_status, to_status, actor, actor_id, at, deadline, notes
		FROM spot_confirmation_history
		WHERE spot_id = ?
		ORDER BY at, id`
	rows, err := r.db.QueryContext(ctx, q, spotID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.HistoryEntry{}
	for rows.Next() {
		var (
			e        model.HistoryEntry
			from, to string
			actor    string
			deadline sql.NullTime
		)
		if err := rows.Scan(&e.ID, &e.SpotID, &from, &to, &actor, &e.ActorID, &e.At, &deadline, &e.Notes); err != nil {
			return nil, err
		}
		e.FromStatus = model.Status(from)
		e.ToStatus = model.Status(to)
		e.Actor = model.Actor(actor)
		e.At = e.At.UTC()
		if deadline.Valid {
			d := deadline.Time.UTC()
			e.Deadline = &d
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
