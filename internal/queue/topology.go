package queue

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// DeadLetterQueue receives notifications that could not be decoded, or
// failed delivery again after one requeue.
const DeadLetterQueue = "spot.notifications.dead"

// MaxPriority is the x-max-priority of NotificationQueue.  High priority
// reminders are published at priorityHigh.
const (
	MaxPriority  = 10
	priorityHigh = 5
)

type queueDeclarer interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
}

// notificationQueueArgs must be identical for the publisher and the
// consumer; RabbitMQ rejects a redeclare with different arguments.
func notificationQueueArgs() amqp.Table {
	return amqp.Table{
		"x-max-priority":            int32(MaxPriority),
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": DeadLetterQueue,
	}
}

// declareQueues declares the dead letter queue and then the durable
// notification queue that routes rejected messages to it.
func declareQueues(ch queueDeclarer) error {
	if _, err := ch.QueueDeclare(DeadLetterQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare %s: %w", DeadLetterQueue, err)
	}
	if _, err := ch.QueueDeclare(NotificationQueue, true, false, false, false, notificationQueueArgs()); err != nil {
		return fmt.Errorf("declare %s: %w", NotificationQueue, err)
	}
	return nil
}
