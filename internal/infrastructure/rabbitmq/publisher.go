// Package rabbitmq publishes outbox events to a RabbitMQ topic exchange.
package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/iho/walletledger/internal/domain"
)

// channel is the subset of *amqp091.Channel the publisher needs.
type channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp091.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
	Close() error
}

// Publisher sends outbox events to a durable topic exchange. The routing key
// is the event kind in dotted lowercase, e.g. money.transferred.sent.
type Publisher struct {
	mu       sync.Mutex
	conn     *amqp091.Connection
	ch       channel
	reopen   func() (channel, error)
	exchange string
	logger   zerolog.Logger
}

// message is the JSON body of a published event.
type message struct {
	ID            string         `json:"id"`
	WalletID      string         `json:"wallet_id"`
	AggregateType string         `json:"aggregate_type"`
	EventType     string         `json:"event_type"`
	Version       int64          `json:"version"`
	Payload       map[string]any `json:"payload"`
	CreatedAt     time.Time      `json:"created_at"`
}

// NewPublisher dials the broker and declares the exchange.
func NewPublisher(amqpURL, exchange string, logger zerolog.Logger) (*Publisher, error) {
	if err := validateURL(amqpURL); err != nil {
		return nil, err
	}

	conn, err := amqp091.DialConfig(amqpURL, amqp091.Config{Dial: amqp091.DefaultDial(10 * time.Second)})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}

	reopen := func() (channel, error) { return conn.Channel() }
	ch, err := reopen()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open rabbitmq channel: %w", err)
	}

	p := newPublisher(ch, reopen, exchange, logger)
	p.conn = conn

	if err := p.declare(); err != nil {
		p.Close()
		return nil, err
	}
	return p, nil
}

func newPublisher(ch channel, reopen func() (channel, error), exchange string, logger zerolog.Logger) *Publisher {
	return &Publisher{
		ch:       ch,
		reopen:   reopen,
		exchange: exchange,
		logger:   logger.With().Str("component", "rabbitmq_publisher").Logger(),
	}
}

func (p *Publisher) declare() error {
	if err := p.ch.ExchangeDeclare(p.exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare exchange %s: %w", p.exchange, err)
	}
	return nil
}

// Publish sends one event. A failed publish reopens the channel and retries
// once before giving up.
func (p *Publisher) Publish(ctx context.Context, event *domain.OutboxEvent) error {
	body, err := json.Marshal(message{
		ID:            event.ID,
		WalletID:      event.AggregateID,
		AggregateType: event.AggregateType,
		EventType:     event.EventType,
		Version:       event.Version,
		Payload:       event.Payload,
		CreatedAt:     event.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to encode event %s: %w", event.ID, err)
	}

	msg := amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		MessageId:    event.ID,
		Timestamp:    event.CreatedAt,
		Type:         event.EventType,
		Headers: amqp091.Table{
			"wallet_id": event.AggregateID,
			"version":   event.Version,
		},
		Body: body,
	}
	key := RoutingKey(event.EventType)

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.ch.PublishWithContext(ctx, p.exchange, key, false, false, msg)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil || p.reopen == nil {
		return err
	}

	p.logger.Warn().Err(err).Str("routing_key", key).Msg("publish failed; reopening channel")
	ch, chErr := p.reopen()
	if chErr != nil {
		return errors.Join(err, chErr)
	}
	_ = p.ch.Close()
	p.ch = ch
	if err := p.declare(); err != nil {
		return err
	}
	return p.ch.PublishWithContext(ctx, p.exchange, key, false, false, msg)
}

// Close gracefully closes the channel and connection to RabbitMQ.
func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
}

// RoutingKey converts an event kind to its routing key.
func RoutingKey(kind string) string {
	return strings.ToLower(strings.ReplaceAll(kind, "_", "."))
}

func validateURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid AMQP URL: %w", err)
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return errors.New("AMQP scheme must be either 'amqp://' or 'amqps://'")
	}
	return nil
}
