package sweeper

import (
	"context"
	"math/rand"
	"time"
)

// Backoff bounds the delivery retries of one reminder within a cycle.
type Backoff struct {
	Attempts int           // total tries, including the first
	Base     time.Duration // delay before the second try
	Max      time.Duration // cap on any single delay
}

// DefaultBackoff is used when a Sweeper is built without one.
var DefaultBackoff = Backoff{Attempts: 3, Base: 200 * time.Millisecond, Max: 3 * time.Second}

// Delay returns the wait before try number attempt+1: Base doubled per
// earlier retry, capped at Max, with up to 25% jitter either way.
func (b Backoff) Delay(attempt int) time.Duration {
	if b.Base <= 0 {
		return 0
	}
	d := b.Base
	for i := 1; i < attempt && (b.Max <= 0 || d < b.Max); i++ {
		d *= 2
	}
	if b.Max > 0 && d > b.Max {
		d = b.Max
	}
	if quarter := int64(d / 4); quarter > 0 {
		jitter := time.Duration(rand.Int63n(2*quarter+1) - quarter)
		d += jitter
	}
	return d
}

// Retry calls fn until it succeeds, the attempts run out or ctx is done.
// It returns the last error.
func (b Backoff) Retry(ctx context.Context, fn func() error) error {
	attempts := b.Attempts
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 1; i <= attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if i == attempts {
			break
		}
		t := time.NewTimer(b.Delay(i))
		select {
		case <-ctx.Done():
			t.Stop()
			return err
		case <-t.C:
		}
	}
	return err
}
