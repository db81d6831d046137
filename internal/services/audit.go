package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"
)

// AuditEvent is the envelope published for every successful engine mutation
type AuditEvent struct {
	ID         uuid.UUID         `json:"id"`
	OccurredAt time.Time         `json:"occurred_at"`
	ActorID    uuid.UUID         `json:"actor_id"`
	Action     string            `json:"action"`
	ResourceID uuid.UUID         `json:"resource_id"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// AuditPublisher records engine mutations on an external sink. Publishing is
// fire-and-forget: a sink failure must never roll back the primary operation.
type AuditPublisher interface {
	Publish(ctx context.Context, routingKey string, event AuditEvent) error
	Close() error
}

// AMQPAuditPublisher publishes audit events to a RabbitMQ topic exchange
type AMQPAuditPublisher struct {
	conn     *amqp091.Connection
	exchange string
}

// NewAMQPAuditPublisher connects to RabbitMQ and declares the audit exchange
func NewAMQPAuditPublisher(url, exchange string) (*AMQPAuditPublisher, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	defer ch.Close()

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, err
	}

	return &AMQPAuditPublisher{conn: conn, exchange: exchange}, nil
}

// Publish sends one audit event with routing keys like conversation.assigned
// or campaign.completed
func (p *AMQPAuditPublisher) Publish(ctx context.Context, routingKey string, event AuditEvent) error {
	ch, err := p.conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	body, err := json.Marshal(event)
	if err != nil {
		return err
	}

	return ch.PublishWithContext(ctx, p.exchange, routingKey, false, false, amqp091.Publishing{
		ContentType:  "application/json",
		MessageId:    event.ID.String(),
		Timestamp:    event.OccurredAt,
		DeliveryMode: amqp091.Persistent,
		Body:         body,
	})
}

// Close closes the underlying connection
func (p *AMQPAuditPublisher) Close() error {
	return p.conn.Close()
}

// NopAuditPublisher drops events when no broker is configured
type NopAuditPublisher struct{}

// Publish logs and drops the event
func (NopAuditPublisher) Publish(ctx context.Context, routingKey string, event AuditEvent) error {
	log.Debug().Str("routing_key", routingKey).Str("action", event.Action).Msg("audit publisher disabled, event dropped")
	return nil
}

// Close is a no-op
func (NopAuditPublisher) Close() error { return nil }

// publishAudit is the shared fire-and-forget helper: failures are logged and
// swallowed so the caller's operation result is unaffected
func publishAudit(publisher AuditPublisher, routingKey string, actorID, resourceID uuid.UUID, action string, metadata map[string]string) {
	if publisher == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	event := AuditEvent{
		ID:         uuid.New(),
		OccurredAt: time.Now(),
		ActorID:    actorID,
		Action:     action,
		ResourceID: resourceID,
		Metadata:   metadata,
	}

	if err := publisher.Publish(ctx, routingKey, event); err != nil {
		log.Warn().Err(err).Str("action", action).Str("resource_id", resourceID.String()).Msg("failed to publish audit event")
	}
}
