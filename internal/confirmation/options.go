package confirmation

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/spot-confirmation/internal/clock"
	"github.com/iliyamo/spot-confirmation/internal/metrics"
)

const (
	defaultMaxAttempts = 5
	defaultDeadline    = 24 * time.Hour
)

// Option configures a Service.
type Option func(*Service)

// WithClock sets the time source.
func WithClock(c clock.Clock) Option {
	return func(s *Service) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithNotifier sets where notifications are sent after each commit.
func WithNotifier(n Notifier) Option {
	return func(s *Service) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithConflictChecker sets the scheduling conflict check used by Invite.
func WithConflictChecker(c ConflictChecker) Option {
	return func(s *Service) {
		if c != nil {
			s.conflicts = c
		}
	}
}

// WithLogger sets the logger for post-commit failures.
func WithLogger(l logrus.FieldLogger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// WithMetrics records transitions and conflicts into m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithMaxAttempts bounds how many times a contended operation re-reads
// the spot before giving up with ErrConcurrentModification.
func WithMaxAttempts(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// WithLateConfirmation allows Confirm after the deadline as long as the
// sweeper has not expired the spot yet.
func WithLateConfirmation(allow bool) Option {
	return func(s *Service) { s.allowLate = allow }
}

// WithDefaultDeadline sets the response window used when an invite names
// no deadline.
func WithDefaultDeadline(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.defaultDeadline = d
		}
	}
}
