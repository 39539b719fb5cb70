package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iho/walletledger/internal/domain"
)

type published struct {
	exchange string
	key      string
	msg      amqp091.Publishing
}

type fakeChannel struct {
	declared   []string
	published  []published
	publishErr error
	closed     bool
}

func (c *fakeChannel) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp091.Table) error {
	c.declared = append(c.declared, name+"/"+kind)
	return nil
}

func (c *fakeChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error {
	if c.publishErr != nil {
		return c.publishErr
	}
	c.published = append(c.published, published{exchange: exchange, key: key, msg: msg})
	return nil
}

func (c *fakeChannel) Close() error {
	c.closed = true
	return nil
}

func testEvent() *domain.OutboxEvent {
	return &domain.OutboxEvent{
		ID:            "ob-1",
		AggregateID:   "w-1",
		AggregateType: domain.AggregateTypeWallet,
		EventType:     domain.EventKindTransferSent,
		Version:       4,
		Payload:       map[string]any{"amount": "5"},
		CreatedAt:     time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestPublisher_Publish(t *testing.T) {
	ch := &fakeChannel{}
	p := newPublisher(ch, nil, "wallet.events", zerolog.Nop())

	require.NoError(t, p.Publish(context.Background(), testEvent()))
	require.Len(t, ch.published, 1)

	got := ch.published[0]
	assert.Equal(t, "wallet.events", got.exchange)
	assert.Equal(t, "money.transferred.sent", got.key)
	assert.Equal(t, "ob-1", got.msg.MessageId)
	assert.Equal(t, amqp091.Persistent, got.msg.DeliveryMode)

	var body message
	require.NoError(t, json.Unmarshal(got.msg.Body, &body))
	assert.Equal(t, "w-1", body.WalletID)
	assert.Equal(t, int64(4), body.Version)
	assert.Equal(t, "5", body.Payload["amount"])
}

func TestPublisher_ReopensChannelOnFailure(t *testing.T) {
	broken := &fakeChannel{publishErr: errors.New("channel closed")}
	fresh := &fakeChannel{}
	p := newPublisher(broken, func() (channel, error) { return fresh, nil }, "wallet.events", zerolog.Nop())

	require.NoError(t, p.Publish(context.Background(), testEvent()))
	assert.True(t, broken.closed)
	assert.Equal(t, []string{"wallet.events/topic"}, fresh.declared)
	assert.Len(t, fresh.published, 1)
}

func TestPublisher_GivesUpWhenReopenFails(t *testing.T) {
	broken := &fakeChannel{publishErr: errors.New("channel closed")}
	p := newPublisher(broken, func() (channel, error) { return nil, errors.New("connection closed") }, "x", zerolog.Nop())

	err := p.Publish(context.Background(), testEvent())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection closed")
}

func TestRoutingKey(t *testing.T) {
	assert.Equal(t, "wallet.created", RoutingKey(domain.EventKindWalletCreated))
	assert.Equal(t, "money.deposited", RoutingKey(domain.EventKindMoneyDeposited))
	assert.Equal(t, "money.transferred.received", RoutingKey(domain.EventKindTransferReceived))
}

func TestNewPublisherRejectsBadScheme(t *testing.T) {
	_, err := NewPublisher("http://localhost:5672", "x", zerolog.Nop())
	require.Error(t, err)
}
