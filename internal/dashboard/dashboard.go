// Package dashboard computes the promoter's read-only view of pending,
// expiring and settled confirmations.
package dashboard

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/iliyamo/spot-confirmation/internal/clock"
	"github.com/iliyamo/spot-confirmation/internal/confirmation"
	"github.com/iliyamo/spot-confirmation/internal/model"
)

// DefaultWindow is used when no look-ahead window is given.
const DefaultWindow = 24 * time.Hour

// Summary counts confirmations in one snapshot.
//
// Fields:
//  PendingTotal   – spots awaiting a response.
//  ExpiringWithin – pending spots whose deadline falls in [now, now+Window].
//  AlreadyExpired – expired spots plus pending spots already past their
//                   deadline that the sweeper has not reached yet.
//  Expiring6h     – pending, deadline within the next six hours.
//  Expiring24h    – pending, deadline between six and twenty-four hours out.
//  ExpiredToday   – spots that expired since UTC midnight.
//  ConfirmedToday – spots confirmed since UTC midnight.
type Summary struct {
	PendingTotal   int           `json:"pending_total"`
	ExpiringWithin int           `json:"expiring_within"`
	AlreadyExpired int           `json:"already_expired"`
	Expiring6h     int           `json:"expiring_6h"`
	Expiring24h    int           `json:"expiring_24h"`
	ExpiredToday   int           `json:"expired_today"`
	ConfirmedToday int           `json:"confirmed_today"`
	Window         time.Duration  `json:"-"`
	WindowHours    float64        `json:"window_hours"`
	GeneratedAt    time.Time      `json:"generated_at"`
	Events         []EventSummary `json:"events,omitempty"`
}

// EventSummary lists the spots of one upcoming event still awaiting a
// response, most urgent first.
type EventSummary struct {
	EventID  string        `json:"event_id"`
	Title    string        `json:"title"`
	StartsAt time.Time     `json:"starts_at"`
	Pending  []PendingSpot `json:"pending"`
}

// PendingSpot is one row of EventSummary.Pending.
type PendingSpot struct {
	SpotID     string     `json:"spot_id"`
	Name       string     `json:"name"`
	ComedianID string     `json:"comedian_id,omitempty"`
	Deadline   *time.Time `json:"deadline,omitempty"`
}

// Summarize is pure: it only reads spots.
func Summarize(spots []model.Spot, now time.Time, window time.Duration) Summary {
	if window <= 0 {
		window = DefaultWindow
	}
	now = now.UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	sum := Summary{Window: window, WindowHours: window.Hours(), GeneratedAt: now}

	for _, s := range spots {
		c := s.Confirmation
		switch c.Status {
		case model.StatusPending:
			sum.PendingTotal++
			if c.Deadline == nil {
				continue
			}
			d := *c.Deadline
			if d.Before(now) {
				sum.AlreadyExpired++
				continue
			}
			left := d.Sub(now)
			if left <= window {
				sum.ExpiringWithin++
			}
			switch {
			case left <= 6*time.Hour:
				sum.Expiring6h++
			case left <= 24*time.Hour:
				sum.Expiring24h++
			}
		case model.StatusExpired:
			sum.AlreadyExpired++
			if c.RespondedAt != nil && !c.RespondedAt.Before(midnight) {
				sum.ExpiredToday++
			}
		case model.StatusConfirmed:
			if c.RespondedAt != nil && !c.RespondedAt.Before(midnight) {
				sum.ConfirmedToday++
			}
		}
	}
	return sum
}

type spotLister interface {
	ListByEvents(ctx context.Context, eventIDs []string) ([]model.Spot, error)
}

// Service loads a promoter's spots and summarises them.  It never writes.
type Service struct {
	events confirmation.EventDirectory
	spots  spotLister
	clock  clock.Clock
}

// NewService returns a Service.  A nil clock uses the system clock.
func NewService(events confirmation.EventDirectory, spots spotLister, c clock.Clock) *Service {
	if c == nil {
		c = clock.System{}
	}
	return &Service{events: events, spots: spots, clock: c}
}

// SummarizeForPromoter summarises the spots on the promoter's upcoming
// events, those starting at or after now, in start order.
func (s *Service) SummarizeForPromoter(ctx context.Context, promoterID string, window time.Duration) (Summary, error) {
	events, err := s.events.EventsByPromoter(ctx, promoterID)
	if err != nil {
		return Summary{}, fmt.Errorf("events of promoter %s: %w", promoterID, err)
	}
	now := s.clock.Now()
	upcoming := make([]model.Event, 0, len(events))
	for _, ev := range events {
		if !ev.StartsAt.Before(now) {
			upcoming = append(upcoming, ev)
		}
	}
	sort.SliceStable(upcoming, func(i, j int) bool { return upcoming[i].StartsAt.Before(upcoming[j].StartsAt) })

	ids := make([]string, 0, len(upcoming))
	for _, ev := range upcoming {
		ids = append(ids, ev.ID)
	}
	spots, err := s.spots.ListByEvents(ctx, ids)
	if err != nil {
		return Summary{}, fmt.Errorf("spots of promoter %s: %w", promoterID, err)
	}
	sum := Summarize(spots, now, window)
	sum.Events = byEvent(upcoming, spots)
	return sum, nil
}

func byEvent(events []model.Event, spots []model.Spot) []EventSummary {
	pending := make(map[string][]PendingSpot, len(events))
	for _, sp := range spots {
		c := sp.Confirmation
		if c.Status != model.StatusPending {
			continue
		}
		row := PendingSpot{SpotID: sp.ID, Name: sp.Name, Deadline: c.Deadline}
		if sp.ComedianID != nil {
			row.ComedianID = *sp.ComedianID
		}
		pending[sp.EventID] = append(pending[sp.EventID], row)
	}
	out := make([]EventSummary, 0, len(events))
	for _, ev := range events {
		rows := pending[ev.ID]
		sort.SliceStable(rows, func(i, j int) bool { return earlier(rows[i].Deadline, rows[j].Deadline) })
		if rows == nil {
			rows = []PendingSpot{}
		}
		out = append(out, EventSummary{EventID: ev.ID, Title: ev.Title, StartsAt: ev.StartsAt, Pending: rows})
	}
	return out
}

// earlier orders deadlines ascending with missing deadlines last.
func earlier(a, b *time.Time) bool {
	switch {
	case a == nil:
		return false
	case b == nil:
		return true
	}
	return a.Before(*b)
}
