// Package sweeper brings pending spots in line with elapsed time: it
// expires overdue spots and sends the reminder tiers that have come due.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/spot-confirmation/internal/confirmation"
	"github.com/iliyamo/spot-confirmation/internal/metrics"
	"github.com/iliyamo/spot-confirmation/internal/model"
	"github.com/iliyamo/spot-confirmation/internal/reminder"
)

// StateMachine is the part of the confirmation service the sweeper
// drives.  All writes go through it.
type StateMachine interface {
	Now() time.Time
	Pending(ctx context.Context) ([]model.Spot, error)
	Get(ctx context.Context, spotID string) (model.Spot, error)
	Expire(ctx context.Context, spotID string) (confirmation.Outcome, error)
	ClaimReminder(ctx context.Context, spotID string, deadline time.Time, tiers ...string) (confirmation.Outcome, []string, error)
	ReleaseReminder(ctx context.Context, spotID string, deadline time.Time, tiers ...string) (confirmation.Outcome, error)
}

// Result summarises one cycle.
type Result struct {
	Scanned   int `json:"scanned"`
	Expired   int `json:"expired"`
	Reminders int `json:"reminders"`
	Failed    int `json:"failed"`
}

// Sweeper runs deadline sweep cycles.  Cycles may overlap safely; every
// write is version checked by the state machine.
type Sweeper struct {
	sm          StateMachine
	policy      *reminder.Policy
	notifier    confirmation.Notifier
	backoff     Backoff
	concurrency int
	log         logrus.FieldLogger
	metrics     *metrics.Metrics
}

// Config tunes a Sweeper.  Zero values fall back to defaults.
type Config struct {
	Backoff     Backoff
	Concurrency int
	Logger      logrus.FieldLogger
	Metrics     *metrics.Metrics
}

// New returns a Sweeper that sends reminders through notifier.
func New(sm StateMachine, policy *reminder.Policy, notifier confirmation.Notifier, cfg Config) *Sweeper {
	s := &Sweeper{
		sm:          sm,
		policy:      policy,
		notifier:    notifier,
		backoff:     cfg.Backoff,
		concurrency: cfg.Concurrency,
		log:         cfg.Logger,
		metrics:     cfg.Metrics,
	}
	if s.backoff.Attempts < 1 {
		s.backoff = DefaultBackoff
	}
	if s.concurrency < 1 {
		s.concurrency = 4
	}
	if s.log == nil {
		s.log = logrus.StandardLogger()
	}
	if s.notifier == nil {
		s.notifier = confirmation.NotifierFunc(func(context.Context, model.Notification) error { return nil })
	}
	return s
}

type spotResult int

const (
	resultNone spotResult = iota
	resultExpired
	resultReminded
	resultFailed
)

// RunCycle processes every pending spot once.  Failures on one spot are
// logged and counted; only a failure to list pending spots aborts the
// cycle.
func (s *Sweeper) RunCycle(ctx context.Context) (Result, error) {
	start := time.Now()
	spots, err := s.sm.Pending(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("list pending spots: %w", err)
	}

	var (
		res  = Result{Scanned: len(spots)}
		mu   sync.Mutex
		wg   sync.WaitGroup
		jobs = make(chan model.Spot)
	)
	workers := s.concurrency
	if workers > len(spots) {
		workers = len(spots)
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for spot := range jobs {
				r := s.safeHandle(ctx, spot)
				mu.Lock()
				switch r {
				case resultExpired:
					res.Expired++
				case resultReminded:
					res.Reminders++
				case resultFailed:
					res.Failed++
				}
				mu.Unlock()
			}
		}()
	}
feed:
	for _, spot := range spots {
		select {
		case <-ctx.Done():
			break feed
		case jobs <- spot:
		}
	}
	close(jobs)
	wg.Wait()

	s.metrics.SweepCycle(time.Since(start), res.Expired, res.Reminders, res.Failed)
	s.log.WithFields(logrus.Fields{
		"scanned":   res.Scanned,
		"expired":   res.Expired,
		"reminders": res.Reminders,
		"failed":    res.Failed,
		"took":      time.Since(start).String(),
	}).Info("sweep cycle finished")
	return res, ctx.Err()
}

func (s *Sweeper) safeHandle(ctx context.Context, spot model.Spot) (r spotResult) {
	defer func() {
		if p := recover(); p != nil {
			s.log.WithField("spot_id", spot.ID).Errorf("sweep panic: %v", p)
			r = resultFailed
		}
	}()
	return s.handle(ctx, spot)
}

func (s *Sweeper) handle(ctx context.Context, listed model.Spot) spotResult {
	log := s.log.WithField("spot_id", listed.ID)

	// The listing may be stale by the time a worker gets to it.
	spot, err := s.sm.Get(ctx, listed.ID)
	if errors.Is(err, confirmation.ErrSpotNotFound) {
		return resultNone
	}
	if err != nil {
		log.WithError(err).Warn("sweep: reload failed")
		return resultFailed
	}
	c := spot.Confirmation
	if c.Status != model.StatusPending {
		return resultNone
	}
	if c.Deadline == nil {
		log.Warn("sweep: pending spot without deadline")
		return resultFailed
	}
	deadline := *c.Deadline
	now := s.sm.Now()

	if now.After(deadline) {
		var o confirmation.Outcome
		err := s.storeOnceMore(ctx, func() error {
			var err error
			o, err = s.sm.Expire(ctx, spot.ID)
			return err
		})
		if err != nil {
			log.WithError(err).Error("sweep: expire failed, skipping until next cycle")
			return resultFailed
		}
		if o.Applied {
			return resultExpired
		}
		return resultNone
	}

	tier, due := s.policy.NextTier(deadline, now, c.RemindersSent)
	if !due || spot.ComedianID == nil {
		return resultNone
	}
	// Claim before sending: of two overlapping cycles only the one whose
	// claim adds the tier sends it.
	var claimed []string
	err = s.storeOnceMore(ctx, func() error {
		var err error
		_, claimed, err = s.sm.ClaimReminder(ctx, spot.ID, deadline, s.policy.Covered(tier)...)
		return err
	})
	if err != nil {
		log.WithError(err).WithField("tier", tier.Name).Error("sweep: reminder claim failed")
		return resultFailed
	}
	if !slices.Contains(claimed, tier.Name) {
		return resultNone
	}

	delivered := false
	defer func() {
		if !delivered {
			s.release(ctx, log, spot.ID, deadline, claimed)
		}
	}()

	n := model.Notification{
		ID:         uuid.NewString(),
		Kind:       model.NotifyReminder,
		Recipient:  *spot.ComedianID,
		Role:       model.RoleComedian,
		SpotID:     spot.ID,
		SpotName:   spot.Name,
		EventID:    spot.EventID,
		Tier:       tier.Name,
		Priority:   tier.Priority,
		TemplateID: tier.TemplateID,
		Deadline:   &deadline,
		At:         now,
	}
	if err := s.backoff.Retry(ctx, func() error { return s.notifier.Send(ctx, n) }); err != nil {
		s.metrics.NotificationFailed(string(n.Kind))
		log.WithError(err).WithFields(logrus.Fields{
			"notification_id": n.ID,
			"tier":            tier.Name,
			"recipient":       n.Recipient,
		}).Warn("reminder undelivered")
		return resultFailed
	}
	delivered = true
	return resultReminded
}

// release hands claimed tiers back so the next cycle sends them.  It runs
// after a failed or panicking send and outlives cancellation of ctx.
func (s *Sweeper) release(ctx context.Context, log logrus.FieldLogger, spotID string, deadline time.Time, tiers []string) {
	ctx = context.WithoutCancel(ctx)
	err := s.storeOnceMore(ctx, func() error {
		_, err := s.sm.ReleaseReminder(ctx, spotID, deadline, tiers...)
		return err
	})
	if err != nil {
		// The tiers stay claimed and this reminder is not sent again.
		log.WithError(err).WithField("tiers", tiers).Error("sweep: reminder release failed")
	}
}

// storeOnceMore runs fn and retries it once on a store failure.  Rule
// violations and cancellation are not retried.
func (s *Sweeper) storeOnceMore(ctx context.Context, fn func() error) error {
	err := fn()
	if err == nil || ctx.Err() != nil ||
		errors.Is(err, confirmation.ErrInvalidTransition) ||
		errors.Is(err, confirmation.ErrSpotNotFound) {
		return err
	}
	return fn()
}
