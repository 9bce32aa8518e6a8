package sweeper

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/iliyamo/spot-confirmation/internal/model"
)

// Planned actions.
const (
	ActionExpire = "expire"
	ActionRemind = "remind"
)

// PlannedAction is what a cycle run at a given time would do to one spot.
type PlannedAction struct {
	SpotID   string    `json:"spot_id"`
	Action   string    `json:"action"`
	Tier     string    `json:"tier,omitempty"`
	Deadline time.Time `json:"deadline"`
}

// Preview reports what RunCycle would do if it ran at the given time.  It
// only reads: nothing is expired, claimed or sent.
func (s *Sweeper) Preview(ctx context.Context, at time.Time) ([]PlannedAction, error) {
	spots, err := s.sm.Pending(ctx)
	if err != nil {
		return nil, fmt.Errorf("list pending spots: %w", err)
	}
	var plan []PlannedAction
	for _, spot := range spots {
		c := spot.Confirmation
		if c.Status != model.StatusPending || c.Deadline == nil {
			continue
		}
		deadline := *c.Deadline
		if at.After(deadline) {
			plan = append(plan, PlannedAction{SpotID: spot.ID, Action: ActionExpire, Deadline: deadline})
			continue
		}
		tier, due := s.policy.NextTier(deadline, at, c.RemindersSent)
		if !due || spot.ComedianID == nil {
			continue
		}
		plan = append(plan, PlannedAction{SpotID: spot.ID, Action: ActionRemind, Tier: tier.Name, Deadline: deadline})
	}
	sort.Slice(plan, func(i, j int) bool {
		if !plan[i].Deadline.Equal(plan[j].Deadline) {
			return plan[i].Deadline.Before(plan[j].Deadline)
		}
		return plan[i].SpotID < plan[j].SpotID
	})
	return plan, nil
}
