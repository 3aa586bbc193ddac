package messaging

import (
	"context"
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

// Message is a single event handed to the broker. Type doubles as the routing key.
type Message struct {
	ID      string
	Type    string
	Payload []byte
}

type Publisher interface {
	Publish(ctx context.Context, msg Message) error
	Close() error
}

type RabbitPublisher struct {
	conn     *amqp091.Connection
	exchange string
}

func NewRabbitPublisher(url, exchange string) (*RabbitPublisher, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	if err := declareExchange(ch, exchange); err != nil {
		conn.Close()
		return nil, err
	}

	return &RabbitPublisher{conn: conn, exchange: exchange}, nil
}

// Publish returns only after the broker confirmed the message, so the outbox row is not marked
// sent for a message RabbitMQ never took.
func (p *RabbitPublisher) Publish(ctx context.Context, msg Message) error {
	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	if err := ch.Confirm(false); err != nil {
		return fmt.Errorf("enable confirms: %w", err)
	}

	confirm, err := ch.PublishWithDeferredConfirmWithContext(ctx, p.exchange, msg.Type, false, false, amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		MessageId:    msg.ID,
		Type:         msg.Type,
		Timestamp:    time.Now().UTC(),
		Body:         msg.Payload,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", msg.Type, err)
	}

	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("await confirm: %w", err)
	}
	if !acked {
		return fmt.Errorf("broker nacked %s %s", msg.Type, msg.ID)
	}
	return nil
}

func (p *RabbitPublisher) Close() error {
	return p.conn.Close()
}

func declareExchange(ch *amqp091.Channel, exchange string) error {
	if err := ch.ExchangeDeclare(
		exchange,
		"fanout",
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}
	return nil
}
