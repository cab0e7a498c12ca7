package rabbitmq

import (
	"context"
	"errors"
	"testing"

	"github.com/cenkalti/backoff/v5"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"manuscript-ingest/config"
)

type fakeAcknowledger struct {
	acks    int
	nacks   int
	requeue bool
}

func (a *fakeAcknowledger) Ack(uint64, bool) error {
	a.acks++
	return nil
}

func (a *fakeAcknowledger) Nack(_ uint64, _ bool, requeue bool) error {
	a.nacks++
	a.requeue = requeue
	return nil
}

func (a *fakeAcknowledger) Reject(uint64, bool) error { return nil }

func newTestConsumer(handler func(ctx context.Context, msg amqp.Delivery, deps int) error) consumer[int] {
	c := NewConsumer[int](nil, &config.RabbitMQ{Kind: "topic"}, Topology{}, 1, handler).(*consumer[int])
	c.newBackOff = func() backoff.BackOff { return &backoff.ZeroBackOff{} }
	c.maxTries = 3
	return *c
}

func TestHandleAcksOnSuccess(t *testing.T) {
	calls := 0
	c := newTestConsumer(func(context.Context, amqp.Delivery, int) error {
		calls++
		if calls == 1 {
			return errors.New("transient")
		}
		return nil
	})
	ack := &fakeAcknowledger{}

	c.handle(context.Background(), 1, amqp.Delivery{Acknowledger: ack, DeliveryTag: 1}, 0)

	assert.Equal(t, 2, calls)
	assert.Equal(t, 1, ack.acks)
	assert.Equal(t, 0, ack.nacks)
}

func TestHandleDeadLettersAfterRetries(t *testing.T) {
	calls := 0
	c := newTestConsumer(func(context.Context, amqp.Delivery, int) error {
		calls++
		return errors.New("still down")
	})
	ack := &fakeAcknowledger{}

	c.handle(context.Background(), 1, amqp.Delivery{Acknowledger: ack, DeliveryTag: 1}, 0)

	assert.Equal(t, 3, calls)
	assert.Equal(t, 0, ack.acks)
	assert.Equal(t, 1, ack.nacks)
	assert.False(t, ack.requeue)
}

func TestHandlePermanentErrorSkipsRetries(t *testing.T) {
	calls := 0
	c := newTestConsumer(func(context.Context, amqp.Delivery, int) error {
		calls++
		return backoff.Permanent(errors.New("bad message"))
	})
	ack := &fakeAcknowledger{}

	c.handle(context.Background(), 1, amqp.Delivery{Acknowledger: ack, DeliveryTag: 1}, 0)

	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, ack.nacks)
}

func TestTranscriptionTopology(t *testing.T) {
	topo := TranscriptionTopology(&config.RabbitMQ{ExchangeName: "transcription_exchange"})

	assert.Equal(t, "transcription_exchange", topo.Exchange)
	assert.Equal(t, "transcription_exchange_dlx", topo.DLX)
	assert.Equal(t, "transcription_queue", topo.Queue)
	assert.Equal(t, "transcription.request", topo.RoutingKey)
}

func TestHandleRequeuesOnShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	c := newTestConsumer(func(ctx context.Context, _ amqp.Delivery, _ int) error {
		calls++
		cancel()
		return backoff.Permanent(errors.Join(errors.New("transcription cancelled"), ctx.Err()))
	})
	ack := &fakeAcknowledger{}

	c.handle(ctx, 1, amqp.Delivery{Acknowledger: ack, DeliveryTag: 1}, 0)

	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, ack.acks)
	assert.Equal(t, 1, ack.nacks)
	assert.True(t, ack.requeue)
}
