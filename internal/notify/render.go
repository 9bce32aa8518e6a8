// Package notify delivers notifications to their final destinations: a
// local log file, a Telegram operations chat, or the process log.
package notify

import (
	"fmt"
	"time"

	"github.com/iliyamo/spot-confirmation/internal/model"
)

const deadlineLayout = "Mon 02 Jan 15:04 MST"

// Render returns the human readable text for n.
func Render(n model.Notification) string {
	spot := n.SpotName
	if spot == "" {
		spot = n.SpotID
	}
	deadline := "no deadline"
	if n.Deadline != nil {
		deadline = n.Deadline.UTC().Format(deadlineLayout)
	}

	switch n.Kind {
	case model.NotifyInvited:
		return fmt.Sprintf("You have been offered the spot %q. Please confirm or decline by %s.", spot, deadline)
	case model.NotifyReminder:
		left := "soon"
		if n.Deadline != nil {
			left = "in " + n.Deadline.Sub(n.At).Round(time.Minute).String()
		}
		return fmt.Sprintf("Reminder (%s): your response for %q is due %s, at %s.", n.Tier, spot, left, deadline)
	case model.NotifyConfirmed:
		return fmt.Sprintf("The comedian confirmed the spot %q.", spot)
	case model.NotifyDeclined:
		if n.Reason != "" {
			return fmt.Sprintf("The comedian declined the spot %q: %s. The spot is open again.", spot, n.Reason)
		}
		return fmt.Sprintf("The comedian declined the spot %q. The spot is open again.", spot)
	case model.NotifyExpired:
		if n.Role == model.RoleComedian {
			return fmt.Sprintf("Your invitation for %q expired at %s.", spot, deadline)
		}
		return fmt.Sprintf("Nobody responded for %q by %s. The spot is open again.", spot, deadline)
	case model.NotifyDeadlineExtended:
		if n.Reason != "" {
			return fmt.Sprintf("The deadline for %q moved to %s (%s).", spot, deadline, n.Reason)
		}
		return fmt.Sprintf("The deadline for %q moved to %s.", spot, deadline)
	case model.NotifyLineupComplete:
		return fmt.Sprintf("Every spot of event %s is confirmed; %q was the last one.", n.EventID, spot)
	}
	return fmt.Sprintf("Update for %q: %s.", spot, n.Kind)
}
