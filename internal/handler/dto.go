package handler

import (
	"time"

	"github.com/iliyamo/spot-confirmation/internal/confirmation"
	"github.com/iliyamo/spot-confirmation/internal/model"
)

// ----- requests -----

type inviteReq struct {
	SpotID        string     `json:"spot_id"`
	ComedianID    string     `json:"comedian_id"`
	DeadlineHours float64    `json:"deadline_hours"`
	Deadline      *time.Time `json:"deadline"`
	Notes         string     `json:"notes"`
}

type batchInviteReq struct {
	Invites []inviteReq `json:"invites"`
}

type declineReq struct {
	Notes string `json:"notes"`
}

type extendReq struct {
	Deadline *time.Time `json:"deadline"`
	Reason   string     `json:"reason"`
}

// input turns the request into service input for promoterID.  The path
// spot id, when set, wins over the body.
func (r inviteReq) input(spotID, promoterID string) confirmation.InviteInput {
	if spotID == "" {
		spotID = r.SpotID
	}
	in := confirmation.InviteInput{
		SpotID:     spotID,
		ComedianID: r.ComedianID,
		PromoterID: promoterID,
		Deadline:   r.Deadline,
		Notes:      r.Notes,
	}
	if r.DeadlineHours != 0 {
		in.DeadlineIn = time.Duration(r.DeadlineHours * float64(time.Hour))
	}
	return in
}

// ----- responses -----

type spotResp struct {
	ID              string       `json:"id"`
	EventID         string       `json:"event_id"`
	Name            string       `json:"name"`
	DurationMinutes int          `json:"duration_minutes"`
	PaymentAmount   string       `json:"payment_amount"`
	Currency        string       `json:"currency"`
	OrderIndex      int          `json:"order_index"`
	ComedianID      *string      `json:"comedian_id"`
	Status          model.Status `json:"status"`
	Deadline        *time.Time   `json:"deadline"`
	RespondedAt     *time.Time   `json:"responded_at"`
	RemindersSent   []string     `json:"reminders_sent"`
	Notes           string       `json:"notes,omitempty"`
	Version         uint64       `json:"version"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

func toSpotResp(s model.Spot) spotResp {
	c := s.Confirmation
	sent := c.RemindersSent
	if sent == nil {
		sent = []string{}
	}
	return spotResp{
		ID:              s.ID,
		EventID:         s.EventID,
		Name:            s.Name,
		DurationMinutes: s.DurationMinutes,
		PaymentAmount:   s.PaymentAmount.StringFixed(2),
		Currency:        s.Currency,
		OrderIndex:      s.OrderIndex,
		ComedianID:      s.ComedianID,
		Status:          c.Status,
		Deadline:        c.Deadline,
		RespondedAt:     c.RespondedAt,
		RemindersSent:   sent,
		Notes:           c.Notes,
		Version:         c.Version,
		UpdatedAt:       c.UpdatedAt,
	}
}

type outcomeResp struct {
	Spot     spotResp     `json:"spot"`
	Previous model.Status `json:"previous_status"`
	Applied  bool         `json:"applied"`
}

func toOutcomeResp(o confirmation.Outcome) outcomeResp {
	return outcomeResp{Spot: toSpotResp(o.Spot), Previous: o.Previous, Applied: o.Applied}
}

type batchItemResp struct {
	SpotID  string       `json:"spot_id"`
	Outcome *outcomeResp `json:"outcome,omitempty"`
	Error   string       `json:"error,omitempty"`
	Message string       `json:"message,omitempty"`
}

type historyResp struct {
	ID         string       `json:"id"`
	FromStatus model.Status `json:"from_status"`
	ToStatus   model.Status `json:"to_status"`
	Actor      model.Actor  `json:"actor"`
	ActorID    string       `json:"actor_id,omitempty"`
	At         time.Time    `json:"at"`
	Deadline   *time.Time   `json:"deadline,omitempty"`
	Notes      string       `json:"notes,omitempty"`
}

func toHistoryResp(entries []model.HistoryEntry) []historyResp {
	out := make([]historyResp, 0, len(entries))
	for _, e := range entries {
		out = append(out, historyResp{
			ID:         e.ID,
			FromStatus: e.FromStatus,
			ToStatus:   e.ToStatus,
			Actor:      e.Actor,
			ActorID:    e.ActorID,
			At:         e.At,
			Deadline:   e.Deadline,
			Notes:      e.Notes,
		})
	}
	return out
}
