package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/labstack/gommon/log"
	amqp "github.com/rabbitmq/amqp091-go"
)

// PaymentQueue carries PaymentEvent messages from the payment provider.
const PaymentQueue = "payment.events"

// Handler processes one decoded payment event.
type Handler func(ctx context.Context, ev PaymentEvent) error

// Consumer reads the payment.events queue and hands every message to a
// Handler.  Malformed messages are rejected; messages whose handler
// fails are requeued once and then dropped so a poison message cannot
// spin forever.
type Consumer struct {
	url     string
	queue   string
	handler Handler
	logger  *log.Logger
}

func NewConsumer(url string, handler Handler, logger *log.Logger) *Consumer {
	if logger == nil {
		logger = log.New("queue")
	}
	return &Consumer{url: url, queue: PaymentQueue, handler: handler, logger: logger}
}

// Run connects to the broker and consumes until ctx is cancelled,
// reconnecting with exponential backoff whenever the connection drops.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(c.url)
		if err != nil {
			c.logger.Warnf("payment-consumer: failed to dial broker: %v; retrying in %s", err, backoff)
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = c.consumeLoop(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.Warnf("payment-consumer: consume loop ended: %v; reconnecting", err)
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func (c *Consumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		c.logger.Warnf("payment-consumer: set QoS failed: %v", err)
	}
	if _, err := ch.QueueDeclare(c.queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			c.deliver(ctx, d)
		}
	}
}

func (c *Consumer) deliver(ctx context.Context, d amqp.Delivery) {
	requeue, err := c.process(ctx, d.Body, d.Redelivered)
	if err != nil {
		c.logger.Errorf("payment-consumer: handle message failed: %v", err)
		_ = d.Nack(false, requeue)
		return
	}
	_ = d.Ack(false)
}

// process reports whether a failed message should go back on the queue.
func (c *Consumer) process(ctx context.Context, body []byte, redelivered bool) (bool, error) {
	ev, err := DecodePaymentEvent(body)
	if err != nil {
		return false, err
	}
	if err := c.handler(ctx, ev); err != nil {
		return !redelivered, fmt.Errorf("event %s (%s): %w", ev.ID, ev.Type, err)
	}
	return false, nil
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
