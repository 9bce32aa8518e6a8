package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status is the confirmation state of a spot assignment.
type Status string

const (
	StatusUnassigned Status = "unassigned"
	StatusPending    Status = "pending"
	StatusConfirmed  Status = "confirmed"
	StatusDeclined   Status = "declined"
	StatusExpired    Status = "expired"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusUnassigned, StatusPending, StatusConfirmed, StatusDeclined, StatusExpired:
		return true
	}
	return false
}

// Settled reports whether the current epoch has been resolved.  A settled
// spot can only move again through a fresh invite.
func (s Status) Settled() bool {
	return s == StatusConfirmed || s == StatusDeclined || s == StatusExpired
}

// Invitable reports whether a new pending epoch may start from s.
func (s Status) Invitable() bool {
	return s == StatusUnassigned || s == StatusDeclined || s == StatusExpired
}

// Actor identifies who caused a transition.
type Actor string

const (
	ActorComedian Actor = "comedian"
	ActorPromoter Actor = "promoter"
	ActorSystem   Actor = "system"
)

// Spot represents a performance slot in an event lineup as stored in the
// `spots` table.  The confirmation columns live on the same row so that
// a single compare-and-swap on Version covers both.
//
// Fields:
//  ID              – opaque identifier of the spot.
//  EventID         – event whose lineup contains the spot.
//  Name            – display name of the slot (e.g. "Headliner", "5 min spot").
//  DurationMinutes – stage time in minutes.
//  PaymentAmount   – fee offered for the spot.
//  Currency        – ISO currency code of PaymentAmount.
//  OrderIndex      – position of the spot in the lineup.
//  ComedianID      – assigned comedian; nil when the slot is open.
//  Confirmation    – response lifecycle of the current assignment.
type Spot struct {
	ID              string          // spots.id
	EventID         string          // spots.event_id
	Name            string          // spots.name
	DurationMinutes int             // spots.duration_minutes
	PaymentAmount   decimal.Decimal // spots.payment_amount
	Currency        string          // spots.currency
	OrderIndex      int             // spots.order_index
	ComedianID      *string         // spots.comedian_id (nullable)
	Confirmation    Confirmation
}

// Confirmation is the state of a comedian's response to a spot
// assignment.  It has no lifecycle of its own; it is owned by Spot.
//
// Fields:
//  Status        – current state in the confirmation state machine.
//  Deadline      – when a pending confirmation expires; retained after
//                  the epoch settles for audit.
//  RespondedAt   – when the epoch settled (confirm, decline or expiry).
//  RemindersSent – reminder tiers already dispatched in this epoch.
//  Notes         – free text attached by the last transition.
//  Version       – incremented on every write; used for optimistic
//                  concurrency.
//  UpdatedAt     – timestamp of the last write.
type Confirmation struct {
	Status        Status     // spots.status
	Deadline      *time.Time // spots.deadline (nullable)
	RespondedAt   *time.Time // spots.responded_at (nullable)
	RemindersSent []string   // spots.reminders_sent (JSON array)
	Notes         string     // spots.notes
	Version       uint64     // spots.version
	UpdatedAt     time.Time  // spots.updated_at
}

// AssignedTo reports whether the spot is currently assigned to comedianID.
func (s Spot) AssignedTo(comedianID string) bool {
	return s.ComedianID != nil && *s.ComedianID == comedianID
}

// ReminderSent reports whether tier was already dispatched in this epoch.
func (c Confirmation) ReminderSent(tier string) bool {
	for _, t := range c.RemindersSent {
		if t == tier {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so callers can mutate the result without
// touching shared state.
func (s Spot) Clone() Spot {
	out := s
	if s.ComedianID != nil {
		id := *s.ComedianID
		out.ComedianID = &id
	}
	if s.Confirmation.Deadline != nil {
		d := *s.Confirmation.Deadline
		out.Confirmation.Deadline = &d
	}
	if s.Confirmation.RespondedAt != nil {
		r := *s.Confirmation.RespondedAt
		out.Confirmation.RespondedAt = &r
	}
	if s.Confirmation.RemindersSent != nil {
		out.Confirmation.RemindersSent = append([]string(nil), s.Confirmation.RemindersSent...)
	}
	return out
}

// ConfirmationPatch is the full set of mutable assignment columns written
// by one compare-and-swap.  Columns not listed here (name, fee, order)
// belong to lineup management and are never touched by a transition.
type ConfirmationPatch struct {
	ComedianID    *string
	Status        Status
	Deadline      *time.Time
	RespondedAt   *time.Time
	RemindersSent []string
	Notes         string
	UpdatedAt     time.Time
}

// Patch captures the current mutable state of s as a starting point for
// the next write.
func (s Spot) Patch() ConfirmationPatch {
	c := s.Clone()
	return ConfirmationPatch{
		ComedianID:    c.ComedianID,
		Status:        c.Confirmation.Status,
		Deadline:      c.Confirmation.Deadline,
		RespondedAt:   c.Confirmation.RespondedAt,
		RemindersSent: c.Confirmation.RemindersSent,
		Notes:         c.Confirmation.Notes,
		UpdatedAt:     c.Confirmation.UpdatedAt,
	}
}

// Apply returns a copy of s with p written over it and Version set to v.
func (s Spot) Apply(p ConfirmationPatch, v uint64) Spot {
	out := s.Clone()
	out.ComedianID = p.ComedianID
	out.Confirmation.Status = p.Status
	out.Confirmation.Deadline = p.Deadline
	out.Confirmation.RespondedAt = p.RespondedAt
	out.Confirmation.RemindersSent = p.RemindersSent
	out.Confirmation.Notes = p.Notes
	out.Confirmation.UpdatedAt = p.UpdatedAt
	out.Confirmation.Version = v
	return out.Clone()
}
