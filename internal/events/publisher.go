// Package events publishes change events for committed store mutations so
// downstream consumers (sync, analytics) can react without polling.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Event types emitted by the domain store.
const (
	TypeMealAdded      = "meal.added"
	TypeMealDeleted    = "meal.deleted"
	TypeWaterAdded     = "water.added"
	TypeWaterDeleted   = "water.deleted"
	TypeProfileUpdated = "profile.updated"
)

// Event describes one committed mutation.
type Event struct {
	Type    string    `json:"type"`
	UserID  string    `json:"userId"`
	Payload any       `json:"payload,omitempty"`
	At      time.Time `json:"at"`
}

// Publisher delivers events. Publishing is best-effort from the store's
// point of view; failures are logged, never rolled back.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// NopPublisher drops all events. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
func (NopPublisher) Close() error                         { return nil }

// AMQPPublisher sends events to a topic exchange, routed by event type.
type AMQPPublisher struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
}

// NewAMQPPublisher connects to the broker and declares the exchange.
func NewAMQPPublisher(url, exchange string) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	return &AMQPPublisher{conn: conn, ch: ch, exchange: exchange}, nil
}

// Publish routes the event by its type.
func (p *AMQPPublisher) Publish(ctx context.Context, ev Event) error {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	err = p.ch.PublishWithContext(ctx, p.exchange, ev.Type, false, false, amqp.Publishing{
		ContentType: "application/json",
		Timestamp:   ev.At,
		Body:        body,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", ev.Type, err)
	}
	return nil
}

// Close shuts down the channel and connection.
func (p *AMQPPublisher) Close() error {
	if err := p.ch.Close(); err != nil {
		_ = p.conn.Close()
		return err
	}
	return p.conn.Close()
}
