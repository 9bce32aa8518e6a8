package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/spot-confirmation/internal/model"
)

// Deliverer hands a notification to its final destination.
type Deliverer interface {
	Send(ctx context.Context, n model.Notification) error
}

// StartNotificationConsumer connects to the broker at url, declares the
// notification queue and passes every message to d.  It reconnects with
// a doubling backoff capped at 30s and returns only when ctx is done.
// A message that cannot be decoded goes straight to DeadLetterQueue.  A
// delivery failure is requeued once and dead-lettered if the redelivery
// fails as well.
func StartNotificationConsumer(ctx context.Context, url string, d Deliverer, log logrus.FieldLogger) error {
	if log == nil {
		log = logrus.StandardLogger()
	}
	backoff := time.Second
	for {
		conn, err := amqp.Dial(url)
		if err != nil {
			log.WithError(err).Warnf("notification-consumer: dial failed; retrying in %s", backoff)
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = consumeLoop(ctx, conn, d, log)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.WithError(err).Warn("notification-consumer: consume loop ended; reconnecting")
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func consumeLoop(ctx context.Context, conn *amqp.Connection, d Deliverer, log logrus.FieldLogger) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		log.WithError(err).Warn("notification-consumer: set QoS failed")
	}
	if err := declareQueues(ch); err != nil {
		return err
	}
	msgs, err := ch.Consume(NotificationQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	log.WithField("queue", NotificationQueue).Info("notification-consumer: consuming")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := handleMessage(ctx, m.Body, d); err != nil {
				requeue := shouldRequeue(err, m.Redelivered)
				log.WithError(err).WithFields(logrus.Fields{
					"message_id": m.MessageId,
					"requeue":    requeue,
				}).Error("notification-consumer: handle message failed")
				_ = m.Nack(false, requeue)
				continue
			}
			_ = m.Ack(false)
		}
	}
}

// errMalformed marks messages that will never decode, however often they
// are redelivered.
var errMalformed = errors.New("malformed notification message")

// shouldRequeue gives a delivery failure one more attempt.  Malformed
// messages and failed redeliveries are dead-lettered.
func shouldRequeue(err error, redelivered bool) bool {
	return !errors.Is(err, errMalformed) && !redelivered
}

func handleMessage(ctx context.Context, body []byte, d Deliverer) error {
	var ev NotificationEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("%w: unmarshal: %v", errMalformed, err)
	}
	n, err := ev.Notification()
	if err != nil {
		return fmt.Errorf("%w: notification %s: %v", errMalformed, ev.ID, err)
	}
	if err := d.Send(ctx, n); err != nil {
		return fmt.Errorf("deliver notification %s: %w", n.ID, err)
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
