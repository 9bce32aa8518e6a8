package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/iliyamo/spot-confirmation/internal/model"
)

// SpotRepo provides data access to the spots table, including the
// confirmation columns.  Every confirmation write goes through
// CompareAndSwap so that two writers racing on the same row can never
// both succeed.  All timestamps are stored in UTC.
type SpotRepo struct {
	db *sql.DB
}

// NewSpotRepo returns a new SpotRepo bound to the provided database.
func NewSpotRepo(db *sql.DB) *SpotRepo { return &SpotRepo{db: db} }

// DB exposes the underlying handle so callers can share the pool.
func (r *SpotRepo) DB() *sql.DB { return r.db }

const spotColumns = `id, event_id, name, duration_minutes, payment_amount, currency, order_index,
	comedian_id, status, deadline, responded_at, reminders_sent, notes, version, updated_at`

// CreateSpot inserts a spot row.  It is used when a lineup is built; new
// spots start unassigned at version 1 unless a status is supplied.
func (r *SpotRepo) CreateSpot(ctx context.Context, s model.Spot) error {
	if s.Confirmation.Status == "" {
		s.Confirmation.Status = model.StatusUnassigned
	}
	reminders, err := encodeReminders(s.Confirmation.RemindersSent)
	if err != nil {
		return err
	}
	updated := s.Confirmation.UpdatedAt
	if updated.IsZero() {
		updated = time.Now().UTC()
	}
	const q = `INSERT INTO spots (id, event_id, name, duration_minutes, payment_amount, currency, order_index,
		comedian_id, status, deadline, responded_at, reminders_sent, notes, version, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?)`
	_, err = r.db.ExecContext(ctx, q,
		s.ID, s.EventID, s.Name, s.DurationMinutes, s.PaymentAmount, s.Currency, s.OrderIndex,
		nullString(s.ComedianID), string(s.Confirmation.Status), nullTime(s.Confirmation.Deadline),
		nullTime(s.Confirmation.RespondedAt), reminders, s.Confirmation.Notes, updated.UTC(),
	)
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr.Number == 1062 { // ER_DUP_ENTRY
		return ErrConflict
	}
	return err
}

// Get loads a spot by id.  It returns ErrSpotNotFound when no row exists.
func (r *SpotRepo) Get(ctx context.Context, spotID string) (model.Spot, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+spotColumns+` FROM spots WHERE id = ?`, spotID)
	s, err := scanSpot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Spot{}, ErrSpotNotFound
	}
	return s, err
}

// CompareAndSwap overwrites the confirmation columns of a spot if, and
// only if, its version still equals expected.  The version is bumped in
// the same statement.  When no row is updated the spot is looked up again
// to tell a missing row (ErrSpotNotFound) apart from a lost race
// (ErrVersionConflict).
func (r *SpotRepo) CompareAndSwap(ctx context.Context, spotID string, expected uint64, p model.ConfirmationPatch) (uint64, error) {
	reminders, err := encodeReminders(p.RemindersSent)
	if err != nil {
		return 0, err
	}
	const q = `UPDATE spots
		SET comedian_id = ?, status = ?, deadline = ?, responded_at = ?, reminders_sent = ?, notes = ?,
		    updated_at = ?, version = version + 1
		WHERE id = ? AND version = ?`
	res, err := r.db.ExecContext(ctx, q,
		nullString(p.ComedianID), string(p.Status), nullTime(p.Deadline), nullTime(p.RespondedAt),
		reminders, p.Notes, p.UpdatedAt.UTC(), spotID, expected,
	)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n == 1 {
		return expected + 1, nil
	}
	var current uint64
	err = r.db.QueryRowContext(ctx, `SELECT version FROM spots WHERE id = ?`, spotID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrSpotNotFound
	}
	if err != nil {
		return 0, err
	}
	return 0, ErrVersionConflict
}

// ListPending returns all pending spots, earliest deadline first.  It is
// used by the deadline sweeper only.
func (r *SpotRepo) ListPending(ctx context.Context) ([]model.Spot, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+spotColumns+` FROM spots WHERE status = ? ORDER BY deadline, id`,
		string(model.StatusPending),
	)
	if err != nil {
		return nil, err
	}
	return scanSpots(rows)
}

// ListByEvents returns the spots of the given events ordered by event and
// lineup position.  An empty id list returns an empty slice without
// touching the database.
func (r *SpotRepo) ListByEvents(ctx context.Context, eventIDs []string) ([]model.Spot, error) {
	if len(eventIDs) == 0 {
		return []model.Spot{}, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(eventIDs)), ",")
	args := make([]interface{}, 0, len(eventIDs))
	for _, id := range eventIDs {
		args = append(args, id)
	}
	q := `SELECT ` + spotColumns + ` FROM spots WHERE event_id IN (` + placeholders + `) ORDER BY event_id, order_index, id`
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	return scanSpots(rows)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSpot(row rowScanner) (model.Spot, error) {
	var (
		s          model.Spot
		comedianID sql.NullString
		status     string
		deadline   sql.NullTime
		responded  sql.NullTime
		reminders  []byte
	)
	err := row.Scan(
		&s.ID, &s.EventID, &s.Name, &s.DurationMinutes, &s.PaymentAmount, &s.Currency, &s.OrderIndex,
		&comedianID, &status, &deadline, &responded, &reminders, &s.Confirmation.Notes,
		&s.Confirmation.Version, &s.Confirmation.UpdatedAt,
	)
	if err != nil {
		return model.Spot{}, err
	}
	if comedianID.Valid {
		id := comedianID.String
		s.ComedianID = &id
	}
	s.Confirmation.Status = model.Status(status)
	if deadline.Valid {
		d := deadline.Time.UTC()
		s.Confirmation.Deadline = &d
	}
	if responded.Valid {
		t := responded.Time.UTC()
		s.Confirmation.RespondedAt = &t
	}
	if len(reminders) > 0 {
		if err := json.Unmarshal(reminders, &s.Confirmation.RemindersSent); err != nil {
			return model.Spot{}, fmt.Errorf("decode reminders_sent for spot %s: %w", s.ID, err)
		}
	}
	s.Confirmation.UpdatedAt = s.Confirmation.UpdatedAt.UTC()
	return s, nil
}

func scanSpots(rows *sql.Rows) ([]model.Spot, error) {
	defer rows.Close()
	var out []model.Spot
	for rows.Next() {
		s, err := scanSpot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func encodeReminders(tiers []string) (string, error) {
	if tiers == nil {
		tiers = []string{}
	}
	b, err := json.Marshal(tiers)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
