package model

import "time"

// HistoryEntry is an immutable record of one confirmation transition as
// stored in the `spot_confirmation_history` table.  Entries are appended
// by every successful transition and never updated or deleted while the
// spot exists.
//
// Fields:
//  ID         – sortable identifier (ULID).
//  SpotID     – spot the transition applied to.
//  FromStatus – status before the transition.
//  ToStatus   – status after the transition.
//  Actor      – comedian, promoter or system.
//  ActorID    – identifier of the acting user; empty for the system.
//  At         – when the transition was committed.
//  Deadline   – deadline in force after the transition, if any.
//  Notes      – decline notes, extension reason, invite notes.
type HistoryEntry struct {
	ID         string     // spot_confirmation_history.id
	SpotID     string     // spot_confirmation_history.spot_id
	FromStatus Status     // spot_confirmation_history.from_status
	ToStatus   Status     // spot_confirmation_history.to_status
	Actor      Actor      // spot_confirmation_history.actor
	ActorID    string     // spot_confirmation_history.actor_id
	At         time.Time  // spot_confirmation_history.at
	Deadline   *time.Time // spot_confirmation_history.deadline (nullable)
	Notes      string     // spot_confirmation_history.notes
}
