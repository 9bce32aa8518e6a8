// Package confirmation implements the spot confirmation state machine.
// It is the only code allowed to change a spot's confirmation columns.
// Every transition is a read, a validation against the copy that was
// read, and a compare-and-swap on the spot's version; a lost race
// restarts the whole operation from a fresh read.  History entries and
// notifications are written after the commit and never undo it.
package confirmation

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/spot-confirmation/internal/clock"
	"github.com/iliyamo/spot-confirmation/internal/metrics"
	"github.com/iliyamo/spot-confirmation/internal/model"
	"github.com/iliyamo/spot-confirmation/internal/repository"
)

// Service runs confirmation transitions against a SpotStore.  It keeps
// no spot state between calls and is safe for concurrent use.
type Service struct {
	store     SpotStore
	events    EventDirectory
	clock     clock.Clock
	notifier  Notifier
	conflicts ConflictChecker
	log       logrus.FieldLogger
	metrics   *metrics.Metrics

	maxAttempts     int
	allowLate       bool
	defaultDeadline time.Duration
}

// New returns a Service.  Without options it uses the system clock,
// discards notifications and accepts every assignment.
func New(store SpotStore, events EventDirectory, opts ...Option) *Service {
	s := &Service{
		store:           store,
		events:          events,
		clock:           clock.System{},
		notifier:        discardNotifier{},
		conflicts:       NoConflicts{},
		log:             logrus.StandardLogger(),
		maxAttempts:     defaultMaxAttempts,
		defaultDeadline: defaultDeadline,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Outcome is the result of a state-changing call.  Applied is false when
// the call was a no-op because the spot was already in the state the
// caller asked for, or was settled by a concurrent caller.
type Outcome struct {
	Spot     model.Spot
	Previous model.Status
	Applied  bool
}

// InviteInput describes one assignment.  Deadline, when set, is used as
// is; otherwise the deadline is DeadlineIn from now, or the default
// response window when both are zero.  An empty PromoterID records the
// system as the actor and skips the ownership check.
type InviteInput struct {
	SpotID     string
	ComedianID string
	PromoterID string
	DeadlineIn time.Duration
	Deadline   *time.Time
	Notes      string
}

// InviteResult pairs an input of InviteMany with its result.
type InviteResult struct {
	Input   InviteInput
	Outcome Outcome
	Err     error
}

// ExtendInput describes a deadline extension.
type ExtendInput struct {
	SpotID      string
	PromoterID  string
	NewDeadline time.Time
	Reason      string
}

// transition is what a decide function asks apply to commit.
type transition struct {
	patch        model.ConfirmationPatch
	actor        model.Actor
	actorID      string
	record       bool // append history and count the transition
	lineup       bool // notify the promoter if this completes the event
	historyNotes string
	notify       []model.Notification
}

// decideFunc validates cur and returns the transition to commit, nil for
// a no-op, or an error.  contended is true once a compare-and-swap for
// this call has lost a race.
type decideFunc func(cur model.Spot, now time.Time, contended bool) (*transition, error)

// Invite assigns a comedian to an unassigned, declined or expired spot
// and starts a new pending epoch.
func (s *Service) Invite(ctx context.Context, in InviteInput) (Outcome, error) {
	if in.ComedianID == "" {
		return Outcome{}, fmt.Errorf("%w: comedian id is required", ErrInvalidInput)
	}
	if in.DeadlineIn < 0 {
		return Outcome{}, fmt.Errorf("%w: negative response window", ErrInvalidDeadline)
	}
	owned := false
	return s.apply(ctx, "invite", in.SpotID, func(cur model.Spot, now time.Time, contended bool) (*transition, error) {
		if in.PromoterID != "" && !owned {
			if err := s.checkOwner(ctx, cur.EventID, in.PromoterID); err != nil {
				return nil, err
			}
			owned = true
		}
		c := cur.Confirmation
		if contended && c.Status == model.StatusPending && cur.AssignedTo(in.ComedianID) {
			return nil, nil
		}
		if !c.Status.Invitable() {
			return nil, fmt.Errorf("%w: cannot invite to a %s spot", ErrInvalidTransition, c.Status)
		}

		var deadline time.Time
		if in.Deadline != nil {
			deadline = in.Deadline.UTC()
			if !deadline.After(now) {
				return nil, ErrInvalidDeadline
			}
		} else {
			window := in.DeadlineIn
			if window == 0 {
				window = s.defaultDeadline
			}
			deadline = now.Add(window)
		}

		clash, err := s.conflicts.HasConflict(ctx, cur, in.ComedianID)
		if err != nil {
			return nil, fmt.Errorf("conflict check for spot %s: %w", cur.ID, err)
		}
		if clash {
			return nil, ErrSchedulingConflict
		}

		comedian := in.ComedianID
		p := cur.Patch()
		p.ComedianID = &comedian
		p.Status = model.StatusPending
		p.Deadline = &deadline
		p.RespondedAt = nil
		p.RemindersSent = []string{}
		p.Notes = in.Notes

		actor, actorID := model.ActorSystem, ""
		if in.PromoterID != "" {
			actor, actorID = model.ActorPromoter, in.PromoterID
		}
		return &transition{
			patch:        p,
			actor:        actor,
			actorID:      actorID,
			record:       true,
			historyNotes: in.Notes,
			notify: []model.Notification{{
				Kind:       model.NotifyInvited,
				Recipient:  comedian,
				Role:       model.RoleComedian,
				TemplateID: "spot_invited",
				Reason:     in.Notes,
			}},
		}, nil
	})
}

// InviteMany runs Invite for every input.  Each assignment succeeds or
// fails on its own.
func (s *Service) InviteMany(ctx context.Context, inputs []InviteInput) []InviteResult {
	out := make([]InviteResult, 0, len(inputs))
	for _, in := range inputs {
		o, err := s.Invite(ctx, in)
		out = append(out, InviteResult{Input: in, Outcome: o, Err: err})
	}
	return out
}

// Confirm accepts a pending invitation.  Confirming a spot the same
// comedian already confirmed is a no-op.
func (s *Service) Confirm(ctx context.Context, spotID, comedianID string) (Outcome, error) {
	if comedianID == "" {
		return Outcome{}, fmt.Errorf("%w: comedian id is required", ErrInvalidInput)
	}
	return s.apply(ctx, "confirm", spotID, func(cur model.Spot, now time.Time, contended bool) (*transition, error) {
		c := cur.Confirmation
		switch {
		case c.Status == model.StatusConfirmed && cur.AssignedTo(comedianID):
			return nil, nil
		case contended && c.Status.Settled():
			return nil, nil
		case c.Status == model.StatusExpired:
			return nil, ErrDeadlineExpired
		case c.Status != model.StatusPending:
			return nil, fmt.Errorf("%w: cannot confirm a %s spot", ErrInvalidTransition, c.Status)
		case !cur.AssignedTo(comedianID):
			return nil, ErrNotAssignedToComedian
		case c.Deadline != nil && now.After(*c.Deadline) && !s.allowLate:
			// Past the deadline but not swept yet.
			return nil, ErrResponseWindowClosed
		}
		p := cur.Patch()
		p.Status = model.StatusConfirmed
		p.RespondedAt = &now
		return &transition{
			patch:   p,
			actor:   model.ActorComedian,
			actorID: comedianID,
			record:  true,
			lineup:  true,
			notify: []model.Notification{{
				Kind:       model.NotifyConfirmed,
				Role:       model.RolePromoter,
				TemplateID: "spot_confirmed",
			}},
		}, nil
	})
}

// Decline rejects a pending invitation and reopens the spot.  Decline is
// accepted after the deadline as long as the spot is still pending; once
// the spot has expired it is a no-op that returns the expired spot.
func (s *Service) Decline(ctx context.Context, spotID, comedianID, notes string) (Outcome, error) {
	if comedianID == "" {
		return Outcome{}, fmt.Errorf("%w: comedian id is required", ErrInvalidInput)
	}
	return s.apply(ctx, "decline", spotID, func(cur model.Spot, now time.Time, contended bool) (*transition, error) {
		c := cur.Confirmation
		switch {
		case c.Status == model.StatusDeclined && s.lastDeclinedBy(ctx, cur.ID, comedianID):
			return nil, nil
		case contended && c.Status.Settled():
			return nil, nil
		case c.Status == model.StatusExpired:
			return nil, nil
		case c.Status != model.StatusPending:
			return nil, fmt.Errorf("%w: cannot decline a %s spot", ErrInvalidTransition, c.Status)
		case !cur.AssignedTo(comedianID):
			return nil, ErrNotAssignedToComedian
		}
		p := cur.Patch()
		p.ComedianID = nil
		p.Status = model.StatusDeclined
		p.RespondedAt = &now
		p.Notes = notes
		return &transition{
			patch:        p,
			actor:        model.ActorComedian,
			actorID:      comedianID,
			record:       true,
			historyNotes: notes,
			notify: []model.Notification{{
				Kind:       model.NotifyDeclined,
				Role:       model.RolePromoter,
				TemplateID: "spot_declined",
				Reason:     notes,
			}},
		}, nil
	})
}

// Expire settles a pending spot whose deadline has passed.  It is called
// by the sweeper only.  A spot that is no longer pending is returned
// unchanged with Applied false.
func (s *Service) Expire(ctx context.Context, spotID string) (Outcome, error) {
	return s.apply(ctx, "expire", spotID, func(cur model.Spot, now time.Time, _ bool) (*transition, error) {
		c := cur.Confirmation
		switch {
		case c.Status != model.StatusPending:
			return nil, nil
		case c.Deadline == nil:
			return nil, fmt.Errorf("%w: pending spot has no deadline", ErrInvalidTransition)
		case !now.After(*c.Deadline):
			return nil, fmt.Errorf("%w: deadline %s not reached", ErrInvalidTransition, c.Deadline.Format(time.RFC3339))
		}
		var notify []model.Notification
		if cur.ComedianID != nil {
			notify = append(notify, model.Notification{
				Kind:       model.NotifyExpired,
				Recipient:  *cur.ComedianID,
				Role:       model.RoleComedian,
				TemplateID: "spot_expired_comedian",
			})
		}
		notify = append(notify, model.Notification{
			Kind:       model.NotifyExpired,
			Role:       model.RolePromoter,
			TemplateID: "spot_expired_promoter",
		})
		p := cur.Patch()
		p.ComedianID = nil
		p.Status = model.StatusExpired
		p.RespondedAt = &now
		p.Notes = ""
		return &transition{
			patch:        p,
			actor:        model.ActorSystem,
			record:       true,
			historyNotes: "deadline passed without a response",
			notify:       notify,
		}, nil
	})
}

// ExtendDeadline moves a pending spot's deadline later and starts a new
// reminder epoch.
func (s *Service) ExtendDeadline(ctx context.Context, in ExtendInput) (Outcome, error) {
	if in.PromoterID == "" {
		return Outcome{}, fmt.Errorf("%w: promoter id is required", ErrInvalidInput)
	}
	if in.NewDeadline.IsZero() {
		return Outcome{}, fmt.Errorf("%w: new deadline is required", ErrInvalidInput)
	}
	newDeadline := in.NewDeadline.UTC()
	owned := false
	return s.apply(ctx, "extend", in.SpotID, func(cur model.Spot, now time.Time, _ bool) (*transition, error) {
		if !owned {
			if err := s.checkOwner(ctx, cur.EventID, in.PromoterID); err != nil {
				return nil, err
			}
			owned = true
		}
		c := cur.Confirmation
		if c.Status != model.StatusPending {
			return nil, fmt.Errorf("%w: cannot extend a %s spot", ErrInvalidTransition, c.Status)
		}
		if c.Deadline != nil && !newDeadline.After(*c.Deadline) {
			return nil, ErrDeadlineMustAdvance
		}
		if !newDeadline.After(now) {
			return nil, ErrInvalidDeadline
		}
		p := cur.Patch()
		p.Deadline = &newDeadline
		p.RemindersSent = []string{}
		p.Notes = in.Reason

		var notify []model.Notification
		if cur.ComedianID != nil {
			notify = append(notify, model.Notification{
				Kind:       model.NotifyDeadlineExtended,
				Recipient:  *cur.ComedianID,
				Role:       model.RoleComedian,
				TemplateID: "deadline_extended",
				Reason:     in.Reason,
			})
		}
		return &transition{
			patch:        p,
			actor:        model.ActorPromoter,
			actorID:      in.PromoterID,
			record:       true,
			historyNotes: in.Reason,
			notify:       notify,
		}, nil
	})
}

// MarkReminderSent adds tiers to the spot's sent reminders without a
// status change or history entry.  If the spot left the pending epoch
// identified by deadline, nothing is written.
func (s *Service) MarkReminderSent(ctx context.Context, spotID string, deadline time.Time, tiers ...string) (Outcome, error) {
	o, _, err := s.ClaimReminder(ctx, spotID, deadline, tiers...)
	return o, err
}

// ClaimReminder records tiers as sent before the reminder goes out and
// returns the tiers this call added.  A tier another caller already
// recorded is not returned, so of two overlapping claims for the same
// tier exactly one gets it back.
func (s *Service) ClaimReminder(ctx context.Context, spotID string, deadline time.Time, tiers ...string) (Outcome, []string, error) {
	var added []string
	o, err := s.apply(ctx, "claim_reminder", spotID, func(cur model.Spot, _ time.Time, _ bool) (*transition, error) {
		added = nil
		c := cur.Confirmation
		if c.Status != model.StatusPending || c.Deadline == nil || !c.Deadline.Equal(deadline) {
			return nil, nil
		}
		for _, t := range tiers {
			if !c.ReminderSent(t) && !slices.Contains(added, t) {
				added = append(added, t)
			}
		}
		if len(added) == 0 {
			return nil, nil
		}
		p := cur.Patch()
		p.RemindersSent = append(append([]string(nil), c.RemindersSent...), added...)
		return &transition{patch: p}, nil
	})
	if err != nil || !o.Applied {
		return o, nil, err
	}
	return o, added, nil
}

// ReleaseReminder undoes a ClaimReminder whose reminder could not be
// delivered, so a later sweep tries the tiers again.  It is a no-op once
// the spot left the pending epoch identified by deadline.
func (s *Service) ReleaseReminder(ctx context.Context, spotID string, deadline time.Time, tiers ...string) (Outcome, error) {
	return s.apply(ctx, "release_reminder", spotID, func(cur model.Spot, _ time.Time, _ bool) (*transition, error) {
		c := cur.Confirmation
		if c.Status != model.StatusPending || c.Deadline == nil || !c.Deadline.Equal(deadline) {
			return nil, nil
		}
		kept := make([]string, 0, len(c.RemindersSent))
		for _, t := range c.RemindersSent {
			if !slices.Contains(tiers, t) {
				kept = append(kept, t)
			}
		}
		if len(kept) == len(c.RemindersSent) {
			return nil, nil
		}
		p := cur.Patch()
		p.RemindersSent = kept
		return &transition{patch: p}, nil
	})
}

// Get returns the spot with its confirmation.
func (s *Service) Get(ctx context.Context, spotID string) (model.Spot, error) {
	spot, err := s.store.Get(ctx, spotID)
	if err != nil {
		return model.Spot{}, fmt.Errorf("get spot %s: %w", spotID, err)
	}
	return spot, nil
}

// History returns the spot's transitions in commit order.
func (s *Service) History(ctx context.Context, spotID string) ([]model.HistoryEntry, error) {
	if _, err := s.Get(ctx, spotID); err != nil {
		return nil, err
	}
	entries, err := s.store.History(ctx, spotID)
	if err != nil {
		return nil, fmt.Errorf("history of spot %s: %w", spotID, err)
	}
	return entries, nil
}

// Pending returns every pending spot.
func (s *Service) Pending(ctx context.Context) ([]model.Spot, error) {
	return s.store.ListPending(ctx)
}

// Now reports the service clock.
func (s *Service) Now() time.Time { return s.clock.Now() }

func (s *Service) apply(ctx context.Context, op, spotID string, decide decideFunc) (Outcome, error) {
	if spotID == "" {
		return Outcome{}, fmt.Errorf("%w: spot id is required", ErrInvalidInput)
	}
	contended := false
	for attempt := 0; attempt < s.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return Outcome{}, err
		}
		cur, err := s.store.Get(ctx, spotID)
		if err != nil {
			return Outcome{}, fmt.Errorf("%s spot %s: %w", op, spotID, err)
		}
		now := s.clock.Now()
		tr, err := decide(cur, now, contended)
		if err != nil {
			return Outcome{}, err
		}
		if tr == nil {
			return Outcome{Spot: cur, Previous: cur.Confirmation.Status}, nil
		}
		tr.patch.UpdatedAt = now
		v, err := s.store.CompareAndSwap(ctx, spotID, cur.Confirmation.Version, tr.patch)
		if errors.Is(err, repository.ErrVersionConflict) {
			contended = true
			s.metrics.Conflict(op)
			continue
		}
		if err != nil {
			return Outcome{}, fmt.Errorf("%s spot %s: %w", op, spotID, err)
		}
		next := cur.Apply(tr.patch, v)
		s.committed(ctx, cur, next, now, tr)
		return Outcome{Spot: next, Previous: cur.Confirmation.Status, Applied: true}, nil
	}
	return Outcome{}, fmt.Errorf("%s spot %s after %d attempts: %w", op, spotID, s.maxAttempts, ErrConcurrentModification)
}

// committed runs the post-commit side effects.  They outlive the caller's
// context because the transition already stands.
func (s *Service) committed(ctx context.Context, prev, next model.Spot, now time.Time, tr *transition) {
	ctx = context.WithoutCancel(ctx)
	from, to := prev.Confirmation.Status, next.Confirmation.Status

	if tr.record {
		s.metrics.Transition(string(from), string(to))
		entry := model.HistoryEntry{
			ID:         ulid.Make().String(),
			SpotID:     next.ID,
			FromStatus: from,
			ToStatus:   to,
			Actor:      tr.actor,
			ActorID:    tr.actorID,
			At:         now,
			Deadline:   next.Confirmation.Deadline,
			Notes:      tr.historyNotes,
		}
		if err := s.store.AppendHistory(ctx, entry); err != nil {
			s.log.WithError(err).WithFields(logrus.Fields{
				"spot_id":    next.ID,
				"history_id": entry.ID,
				"from":       from,
				"to":         to,
				"actor":      tr.actor,
			}).Error("confirmation history append failed")
		}
	}

	var promoterID string
	for _, n := range tr.notify {
		if n.Role == model.RolePromoter && n.Recipient == "" {
			if promoterID == "" {
				ev, err := s.events.GetEvent(ctx, next.EventID)
				if err != nil {
					s.log.WithError(err).WithFields(logrus.Fields{
						"spot_id":  next.ID,
						"event_id": next.EventID,
						"kind":     n.Kind,
					}).Error("promoter lookup failed, notification skipped")
					continue
				}
				promoterID = ev.PromoterID
			}
			n.Recipient = promoterID
		}
		n.ID = uuid.NewString()
		n.SpotID = next.ID
		n.SpotName = next.Name
		n.EventID = next.EventID
		n.At = now
		if n.Deadline == nil {
			n.Deadline = next.Confirmation.Deadline
		}
		s.dispatch(ctx, n)
	}

	if tr.lineup {
		s.lineupComplete(ctx, next, now, promoterID)
	}
}

// lineupComplete tells the promoter once every spot of the event is
// confirmed.  When the last two confirms race, the one with the later
// response time sends it.
func (s *Service) lineupComplete(ctx context.Context, confirmed model.Spot, now time.Time, promoterID string) {
	spots, err := s.store.ListByEvents(ctx, []string{confirmed.EventID})
	if err != nil {
		s.log.WithError(err).WithField("event_id", confirmed.EventID).Error("lineup check failed")
		return
	}
	if len(spots) == 0 {
		return
	}
	for _, sp := range spots {
		c := sp.Confirmation
		if c.Status != model.StatusConfirmed {
			return
		}
		if sp.ID != confirmed.ID && c.RespondedAt != nil && c.RespondedAt.After(now) {
			return
		}
	}
	if promoterID == "" {
		ev, err := s.events.GetEvent(ctx, confirmed.EventID)
		if err != nil {
			s.log.WithError(err).WithField("event_id", confirmed.EventID).Error("promoter lookup failed, notification skipped")
			return
		}
		promoterID = ev.PromoterID
	}
	s.dispatch(ctx, model.Notification{
		ID:         uuid.NewString(),
		Kind:       model.NotifyLineupComplete,
		Recipient:  promoterID,
		Role:       model.RolePromoter,
		SpotID:     confirmed.ID,
		SpotName:   confirmed.Name,
		EventID:    confirmed.EventID,
		TemplateID: "lineup_complete",
		At:         now,
	})
}

func (s *Service) dispatch(ctx context.Context, n model.Notification) {
	if err := s.notifier.Send(ctx, n); err != nil {
		s.metrics.NotificationFailed(string(n.Kind))
		s.log.WithError(err).WithFields(logrus.Fields{
			"notification_id": n.ID,
			"kind":            n.Kind,
			"recipient":       n.Recipient,
			"role":            n.Role,
			"spot_id":         n.SpotID,
		}).Error("notification failed")
	}
}

func (s *Service) checkOwner(ctx context.Context, eventID, promoterID string) error {
	ev, err := s.events.GetEvent(ctx, eventID)
	if err != nil {
		return fmt.Errorf("event %s: %w", eventID, err)
	}
	if ev.PromoterID != promoterID {
		return ErrUnauthorized
	}
	return nil
}

// lastDeclinedBy reports whether the latest history entry of the spot is
// a decline by comedianID.  The comedian is cleared on decline, so the
// history is the only record of who declined.
func (s *Service) lastDeclinedBy(ctx context.Context, spotID, comedianID string) bool {
	entries, err := s.store.History(ctx, spotID)
	if err != nil || len(entries) == 0 {
		return false
	}
	last := entries[len(entries)-1]
	return last.ToStatus == model.StatusDeclined && last.ActorID == comedianID
}
