package model

import "time"

// Event is the read-only view of an event that the confirmation
// subsystem needs: who owns it and when it starts.  Event management
// itself lives elsewhere.
type Event struct {
	ID         string    // events.id
	PromoterID string    // events.promoter_id
	Title      string    // events.title
	StartsAt   time.Time // events.starts_at
}
