// Package queue_publisher publishes domain events to RabbitMQ.  Errors are
// returned so callers can decide whether a failed publish matters.
package queue_publisher

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	amqp "github.com/rabbitmq/amqp091-go"

	q "github.com/iliyamo/county-health/internal/queue"
)

// PublishTableIngested sends ev to queueName on the default exchange.  The
// queue is declared durable and the message is marked persistent.
func PublishTableIngested(ctx context.Context, url, queueName string, ev q.TableIngestedEvent) error {
	if queueName == "" {
		queueName = q.DefaultQueue
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return errors.Wrap(err, "marshal event")
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return errors.Wrap(err, "rabbitmq dial")
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		return errors.Wrap(err, "rabbitmq channel")
	}
	defer func() { _ = ch.Close() }()

	if _, err := ch.QueueDeclare(
		queueName,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,
	); err != nil {
		return errors.Wrap(err, "rabbitmq queue declare")
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Type:         queueName,
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", queueName, false, false, pub); err != nil {
		return errors.Wrap(err, "rabbitmq publish")
	}
	return nil
}
