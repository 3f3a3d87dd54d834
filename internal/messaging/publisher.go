package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"ai-tools-server/internal/models"
)

const (
	// ExchangeGenerationEvents is the fanout exchange for generation
	// lifecycle events.
	ExchangeGenerationEvents = "generation_events"

	EventGenerationCreated = "generation.created"
	EventGenerationDeleted = "generation.deleted"
)

// GenerationEvent is the message body published for every lifecycle change.
type GenerationEvent struct {
	Type      string                `json:"type"`
	OwnerID   string                `json:"ownerId"`
	ID        string                `json:"id"`
	Kind      models.GenerationKind `json:"kind,omitempty"`
	Timestamp time.Time             `json:"timestamp"`
}

// GenerationEventPublisher notifies interested consumers about generation
// lifecycle changes. Publishing failures must not fail the originating
// request; implementations only report the error.
type GenerationEventPublisher interface {
	PublishCreated(ctx context.Context, generation *models.Generation) error
	PublishDeleted(ctx context.Context, ownerID, id string) error
}

// RabbitMQPublisher publishes generation events to a durable fanout
// exchange. The connection is managed by the caller; a stable connection is
// expected here.
type RabbitMQPublisher struct {
	conn   *amqp091.Connection
	ch     *amqp091.Channel
	logger *zap.Logger
}

func NewRabbitMQPublisher(conn *amqp091.Connection, logger *zap.Logger) (*RabbitMQPublisher, error) {
	if conn == nil {
		return nil, fmt.Errorf("rabbitmq connection is nil")
	}

	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		ExchangeGenerationEvents, // name
		"fanout",                 // type
		true,                     // durable
		false,                    // auto-deleted
		false,                    // internal
		false,                    // no-wait
		nil,                      // arguments
	)
	if err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("failed to declare exchange '%s': %w", ExchangeGenerationEvents, err)
	}

	logger.Info("Generation events exchange declared", zap.String("exchange", ExchangeGenerationEvents))
	return &RabbitMQPublisher{conn: conn, ch: ch, logger: logger.Named("RabbitMQPublisher")}, nil
}

func (p *RabbitMQPublisher) PublishCreated(ctx context.Context, generation *models.Generation) error {
	return p.publish(ctx, GenerationEvent{
		Type:      EventGenerationCreated,
		OwnerID:   generation.OwnerID,
		ID:        generation.ID,
		Kind:      generation.Kind,
		Timestamp: time.Now().UTC(),
	})
}

func (p *RabbitMQPublisher) PublishDeleted(ctx context.Context, ownerID, id string) error {
	return p.publish(ctx, GenerationEvent{
		Type:      EventGenerationDeleted,
		OwnerID:   ownerID,
		ID:        id,
		Timestamp: time.Now().UTC(),
	})
}

func (p *RabbitMQPublisher) publish(ctx context.Context, event GenerationEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal generation event: %w", err)
	}

	err = p.ch.PublishWithContext(ctx,
		ExchangeGenerationEvents, // exchange
		"",                       // routing key (unused for fanout)
		false,                    // mandatory
		false,                    // immediate
		amqp091.Publishing{
			ContentType: "application/json",
			Body:        body,
			Timestamp:   time.Now(),
		},
	)
	if err != nil {
		p.logger.Error("Failed to publish generation event",
			zap.String("type", event.Type),
			zap.String("generation_id", event.ID),
			zap.Error(err),
		)
		return fmt.Errorf("failed to publish generation event: %w", err)
	}

	p.logger.Debug("Generation event published",
		zap.String("type", event.Type),
		zap.String("generation_id", event.ID),
	)
	return nil
}

// Close closes the RabbitMQ channel.
func (p *RabbitMQPublisher) Close() error {
	if p.ch != nil {
		return p.ch.Close()
	}
	return nil
}

// NoopPublisher is used when no message broker is configured.
type NoopPublisher struct{}

func (NoopPublisher) PublishCreated(context.Context, *models.Generation) error { return nil }
func (NoopPublisher) PublishDeleted(context.Context, string, string) error     { return nil }
