package sweeper

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Runner triggers a sweep cycle on every tick.
type Runner struct {
	sweeper  *Sweeper
	interval time.Duration
	log      logrus.FieldLogger
}

// NewRunner returns a Runner.  A non-positive interval defaults to 15
// minutes.
func NewRunner(s *Sweeper, interval time.Duration) *Runner {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &Runner{sweeper: s, interval: interval, log: s.log}
}

// Start blocks until ctx is done.
func (r *Runner) Start(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.log.WithField("interval", r.interval.String()).Info("deadline sweeper started")

	for {
		select {
		case <-ctx.Done():
			r.log.Info("deadline sweeper stopped")
			return
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

func (r *Runner) tick(ctx context.Context) {
	if _, err := r.sweeper.RunCycle(ctx); err != nil && ctx.Err() == nil {
		r.log.WithError(err).Error("sweep cycle failed")
	}
}
