package queue

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/spot-confirmation/internal/model"
)

// Publisher sends notifications to NotificationQueue.  It dials per
// publish, which keeps it free of connection state; notification volume
// is a handful of messages per transition.
type Publisher struct {
	url string
	log logrus.FieldLogger
}

// NewPublisher returns a Publisher for the broker at url.
func NewPublisher(url string, log logrus.FieldLogger) *Publisher {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Publisher{url: url, log: log}
}

// Send publishes n as a persistent JSON message.  Errors are logged and
// returned so the caller can decide whether to retry.
func (p *Publisher) Send(ctx context.Context, n model.Notification) error {
	log := p.log.WithFields(logrus.Fields{"notification_id": n.ID, "kind": n.Kind})

	conn, err := amqp.Dial(p.url)
	if err != nil {
		log.WithError(err).Warn("rabbitmq: dial failed")
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		log.WithError(err).Warn("rabbitmq: channel open failed")
		return err
	}
	defer func() { _ = ch.Close() }()

	if err := declareQueues(ch); err != nil {
		log.WithError(err).Warn("rabbitmq: queue declare failed")
		return err
	}

	pub, err := publishing(n)
	if err != nil {
		log.WithError(err).Error("rabbitmq: marshal notification failed")
		return err
	}
	if err := ch.PublishWithContext(ctx, "", NotificationQueue, false, false, pub); err != nil {
		log.WithError(err).Warn("rabbitmq: publish failed")
		return err
	}
	return nil
}

func publishing(n model.Notification) (amqp.Publishing, error) {
	body, err := json.Marshal(EventFromNotification(n))
	if err != nil {
		return amqp.Publishing{}, err
	}
	prio := uint8(0)
	if n.Priority == "high" {
		prio = priorityHigh
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    n.ID,
		Type:         string(n.Kind),
		Priority:     prio,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}, nil
}
