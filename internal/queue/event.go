// Package queue carries notifications over RabbitMQ.  The API process
// publishes one message per notification; the consume command delivers
// them to their destinations.
package queue

import (
	"time"

	"github.com/iliyamo/spot-confirmation/internal/model"
)

// NotificationQueue is the durable queue notifications travel on.
const NotificationQueue = "spot.notifications"

// NotificationEvent is the wire form of a model.Notification.  ID is
// stable across redeliveries so consumers can drop duplicates.
type NotificationEvent struct {
	ID         string `json:"id"`
	Kind       string `json:"kind"`
	Recipient  string `json:"recipient"`
	Role       string `json:"role"`
	SpotID     string `json:"spot_id"`
	SpotName   string `json:"spot_name,omitempty"`
	EventID    string `json:"event_id,omitempty"`
	Tier       string `json:"tier,omitempty"`
	Priority   string `json:"priority,omitempty"`
	TemplateID string `json:"template_id,omitempty"`
	Deadline   string `json:"deadline,omitempty"`
	Reason     string `json:"reason,omitempty"`
	At         string `json:"at"`
}

// EventFromNotification converts n to its wire form.  Times are RFC 3339
// in UTC.
func EventFromNotification(n model.Notification) NotificationEvent {
	ev := NotificationEvent{
		ID:         n.ID,
		Kind:       string(n.Kind),
		Recipient:  n.Recipient,
		Role:       string(n.Role),
		SpotID:     n.SpotID,
		SpotName:   n.SpotName,
		EventID:    n.EventID,
		Tier:       n.Tier,
		Priority:   n.Priority,
		TemplateID: n.TemplateID,
		Reason:     n.Reason,
		At:         n.At.UTC().Format(time.RFC3339),
	}
	if n.Deadline != nil {
		ev.Deadline = n.Deadline.UTC().Format(time.RFC3339)
	}
	return ev
}

// Notification converts the wire form back.  Malformed timestamps are an
// error; a missing deadline is not.
func (ev NotificationEvent) Notification() (model.Notification, error) {
	n := model.Notification{
		ID:         ev.ID,
		Kind:       model.NotificationKind(ev.Kind),
		Recipient:  ev.Recipient,
		Role:       model.Role(ev.Role),
		SpotID:     ev.SpotID,
		SpotName:   ev.SpotName,
		EventID:    ev.EventID,
		Tier:       ev.Tier,
		Priority:   ev.Priority,
		TemplateID: ev.TemplateID,
		Reason:     ev.Reason,
	}
	at, err := time.Parse(time.RFC3339, ev.At)
	if err != nil {
		return model.Notification{}, err
	}
	n.At = at.UTC()
	if ev.Deadline != "" {
		d, err := time.Parse(time.RFC3339, ev.Deadline)
		if err != nil {
			return model.Notification{}, err
		}
		d = d.UTC()
		n.Deadline = &d
	}
	return n, nil
}
