package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/labstack/gommon/log"
	amqp "github.com/rabbitmq/amqp091-go"
)

// FinalizedQueue receives SeatsFinalizedEvent messages.
const FinalizedQueue = "booking.finalized"

// Publisher sends domain events to RabbitMQ.  Errors are logged and
// returned so callers can ignore them without interrupting the request.
type Publisher struct {
	url    string
	logger *log.Logger
}

func NewPublisher(url string, logger *log.Logger) *Publisher {
	if logger == nil {
		logger = log.New("queue")
	}
	return &Publisher{url: url, logger: logger}
}

// PublishSeatsFinalized publishes ev to the booking.finalized queue as a
// persistent message.
func (p *Publisher) PublishSeatsFinalized(ctx context.Context, ev SeatsFinalizedEvent) error {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		p.logger.Warnf("rabbitmq: dial failed: %v", err)
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		p.logger.Warnf("rabbitmq: channel open failed: %v", err)
		return err
	}
	defer func() { _ = ch.Close() }()

	if _, err := ch.QueueDeclare(FinalizedQueue, true, false, false, false, nil); err != nil {
		p.logger.Warnf("rabbitmq: queue declare failed: %v", err)
		return err
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    ev.EventID,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", FinalizedQueue, false, false, pub); err != nil {
		p.logger.Warnf("rabbitmq: publish failed: %v", err)
		return err
	}
	return nil
}
