package model

import "time"

// NotificationKind names the message being sent.
type NotificationKind string

const (
	NotifyInvited          NotificationKind = "invited"
	NotifyReminder         NotificationKind = "reminder"
	NotifyConfirmed        NotificationKind = "confirmed"
	NotifyDeclined         NotificationKind = "declined"
	NotifyExpired          NotificationKind = "expired"
	NotifyDeadlineExtended NotificationKind = "deadline_extended"
	NotifyLineupComplete   NotificationKind = "lineup_complete"
)

// Role of the notification recipient.
type Role string

const (
	RoleComedian Role = "comedian"
	RolePromoter Role = "promoter"
)

// Notification is a single message for one recipient.  ID is stable
// across delivery retries so downstream consumers can de-duplicate.
type Notification struct {
	ID         string
	Kind       NotificationKind
	Recipient  string
	Role       Role
	SpotID     string
	SpotName   string
	EventID    string
	Tier       string // reminder tier name, only for NotifyReminder
	Priority   string // reminder priority, only for NotifyReminder
	TemplateID string
	Deadline   *time.Time
	Reason     string
	At         time.Time
}
