package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Logger is the subset of the echo/gommon logger the consumer writes to.
type Logger interface {
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
}

// HandlerFunc reacts to one decoded event.
type HandlerFunc func(ctx context.Context, ev TableIngestedEvent) error

// Consumer listens on the table.ingested queue.
type Consumer struct {
	URL    string
	Queue  string
	Handle HandlerFunc
	Log    Logger

	// MaxBackoff caps the delay between reconnect attempts.
	MaxBackoff time.Duration
}

// Run connects to the broker, declares the durable queue and hands every
// delivery to Handle.  Broken connections are retried with exponential
// backoff.  Run returns ctx.Err() once ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	maxBackoff := c.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = 30 * time.Second
	}
	backoff := time.Second
	for {
		conn, err := amqp.Dial(c.URL)
		if err == nil {
			backoff = time.Second
			err = c.consume(ctx, conn)
			_ = conn.Close()
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.Log.Warnf("events: consumer on %s stopped: %v; retrying in %s", c.Queue, err, backoff)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		if backoff < maxBackoff {
			backoff *= 2
		}
	}
}

func (c *Consumer) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return errors.Wrap(err, "channel open")
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(10, 0, false); err != nil {
		c.Log.Warnf("events: set QoS failed: %v", err)
	}
	if _, err := ch.QueueDeclare(c.Queue, true, false, false, false, nil); err != nil {
		return errors.Wrap(err, "queue declare")
	}
	msgs, err := ch.Consume(c.Queue, "", false, false, false, false, nil)
	if err != nil {
		return errors.Wrap(err, "queue consume")
	}
	c.Log.Infof("events: consuming %s", c.Queue)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := c.handleMessage(ctx, d.Body); err != nil {
				c.Log.Warnf("events: handle message failed: %v", err)
				// Not requeued: a poison message would loop forever.
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

func (c *Consumer) handleMessage(ctx context.Context, body []byte) error {
	var ev TableIngestedEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return errors.Wrap(err, "unmarshal")
	}
	if ev.Table == "" {
		return errors.New("event without table")
	}
	c.Log.Infof("events: table %s ingested rows=%d null_substitutions=%d", ev.Table, ev.Rows, ev.NullSubstitutions)
	if c.Handle == nil {
		return nil
	}
	return c.Handle(ctx, ev)
}
