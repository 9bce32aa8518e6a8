package notify

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/spot-confirmation/internal/model"
)

// Sender is anything that can deliver a notification.
type Sender interface {
	Send(ctx context.Context, n model.Notification) error
}

// Fanout sends to every target.  One failing target does not stop the
// others; the joined error is returned.
type Fanout []Sender

// Send delivers n to all targets.
func (f Fanout) Send(ctx context.Context, n model.Notification) error {
	var errs []error
	for _, s := range f {
		if err := s.Send(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogNotifier writes notifications to the process log.  It is the
// notifier used when no broker is configured.
type LogNotifier struct {
	Log logrus.FieldLogger
}

// Send logs n at info level.
func (l LogNotifier) Send(_ context.Context, n model.Notification) error {
	log := l.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	log.WithFields(logrus.Fields{
		"notification_id": n.ID,
		"kind":            n.Kind,
		"recipient":       n.Recipient,
		"role":            n.Role,
		"spot_id":         n.SpotID,
		"tier":            n.Tier,
	}).Info(Render(n))
	return nil
}
