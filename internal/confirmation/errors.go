package confirmation

import (
	"errors"
	"fmt"

	"github.com/iliyamo/spot-confirmation/internal/repository"
)

// Errors returned by Service.  Callers match them with errors.Is.
var (
	ErrSpotNotFound           = repository.ErrSpotNotFound
	ErrEventNotFound          = repository.ErrEventNotFound
	ErrNotAssignedToComedian  = errors.New("spot is not assigned to this comedian")
	ErrUnauthorized           = errors.New("promoter does not own this event")
	ErrInvalidTransition      = errors.New("invalid confirmation transition")
	ErrDeadlineExpired        = errors.New("confirmation deadline has passed")
	ErrResponseWindowClosed   = fmt.Errorf("%w: response window closed", ErrDeadlineExpired)
	ErrConcurrentModification = errors.New("spot was modified concurrently")
	ErrDeadlineMustAdvance    = errors.New("new deadline must be later than the current one")
	ErrInvalidDeadline        = errors.New("deadline must be in the future")
	ErrSchedulingConflict     = errors.New("comedian has a conflicting booking")
	ErrInvalidInput           = errors.New("invalid input")
)

var userMessages = []struct {
	err error
	msg string
}{
	{ErrResponseWindowClosed, "The time to respond to this invitation has run out."},
	{ErrDeadlineExpired, "This invitation has expired; the promoter has been notified and the spot reopened."},
	{ErrDeadlineMustAdvance, "Deadlines can only be extended, not shortened."},
	{ErrSpotNotFound, "This spot no longer exists."},
	{ErrEventNotFound, "The event for this spot could not be found."},
	{ErrNotAssignedToComedian, "This spot is not assigned to you."},
	{ErrUnauthorized, "You can only manage spots on your own events."},
	{ErrInvalidTransition, "This spot cannot change to that state right now."},
	{ErrConcurrentModification, "This spot was updated by someone else at the same time. Please try again."},
	{ErrInvalidDeadline, "The deadline must be in the future."},
	{ErrSchedulingConflict, "The comedian already has a conflicting booking at this time."},
	{ErrInvalidInput, "The request is missing required information."},
}

// UserMessage returns the text shown to end users for err.  Unknown errors
// get a generic message so internal details never leak.
func UserMessage(err error) string {
	for _, m := range userMessages {
		if errors.Is(err, m.err) {
			return m.msg
		}
	}
	return "Something went wrong. Please try again later."
}
