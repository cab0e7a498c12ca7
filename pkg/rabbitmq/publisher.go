package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"manuscript-ingest/config"
	"sync"
)

type Publisher interface {
	Publish(ctx context.Context, body any) error
}

type publisher struct {
	mu       sync.Mutex
	ch       *amqp.Channel
	topology Topology
}

// NewPublisher opens a channel and declares the exchange the consumer binds to.
func NewPublisher(ctx context.Context, conn *amqp.Connection, cfg *config.RabbitMQ, topology Topology) (Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}
	err = ch.ExchangeDeclare(topology.Exchange, cfg.Kind, true, false, false, false, nil)
	if err != nil {
		zerolog.Ctx(ctx).Error().Str("exchange", topology.Exchange).Msg("failed to declare exchange")
		ch.Close()
		return nil, err
	}
	go func() {
		<-ctx.Done()
		ch.Close()
	}()
	return &publisher{ch: ch, topology: topology}, nil
}

func (p *publisher) Publish(ctx context.Context, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	// amqp channels are not safe for concurrent publishing.
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ch.PublishWithContext(ctx, p.topology.Exchange, p.topology.RoutingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Body:         payload,
	})
}
