// Package bus implements the broker-facing adapters: publishing, dispatching
// with in-process retry, and the dead-letter sink.
package bus

import (
	"context"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/avolkov/choreo/internal/entity"
	"github.com/avolkov/choreo/internal/obs"
	"github.com/avolkov/choreo/pkg/rabbitmq"
)

const _contentType = "application/json"

// Publisher hands fully-formed envelopes to the broker for at-least-once
// delivery. It never retries on its own: a local send failure is returned to
// the caller, who owns the retry policy (the cursor service, for one, must
// not advance its cursor until the send succeeded).
type Publisher struct {
	rmq *rabbitmq.RabbitMQ
}

func NewPublisher(rmq *rabbitmq.RabbitMQ) *Publisher {
	return &Publisher{rmq: rmq}
}

func (p *Publisher) Publish(ctx context.Context, e *entity.Envelope) error {
	ch, err := p.rmq.Channel()
	if err != nil {
		obs.PublishErrors.Inc()

		return fmt.Errorf("Publisher - Publish - p.rmq.Channel: %w", err)
	}

	pub, err := buildPublishing(e)
	if err != nil {
		obs.PublishErrors.Inc()

		return fmt.Errorf("Publisher - Publish - buildPublishing: %w", err)
	}

	err = ch.PublishWithContext(ctx, p.rmq.Exchange(), e.RoutingKey(), false, false, pub)
	if err != nil {
		obs.PublishErrors.Inc()

		return fmt.Errorf("Publisher - Publish - ch.PublishWithContext: %w", err)
	}

	obs.Published.Inc()

	return nil
}

// PublishBatch sends each envelope independently; one failing send does not
// block the rest. Failures come back joined, naming the envelope ids.
func (p *Publisher) PublishBatch(ctx context.Context, envelopes []*entity.Envelope) error {
	var batchErrors []error

	for _, e := range envelopes {
		if err := p.Publish(ctx, e); err != nil {
			batchErrors = append(batchErrors, fmt.Errorf("envelope %s: %w", e.ID, err))
		}
	}

	if len(batchErrors) > 0 {
		return fmt.Errorf("Publisher - PublishBatch: %w", errors.Join(batchErrors...))
	}

	return nil
}

// buildPublishing mirrors the envelope id and correlation id into delivery
// headers so brokers and operators can trace messages without touching the
// body. Persistent delivery mode keeps messages across broker restarts.
func buildPublishing(e *entity.Envelope) (amqp.Publishing, error) {
	body, err := e.Encode()
	if err != nil {
		return amqp.Publishing{}, err
	}

	return amqp.Publishing{
		ContentType:  _contentType,
		DeliveryMode: amqp.Persistent,
		MessageId:    e.ID.String(),
		Timestamp:    e.Timestamp,
		Type:         e.Type,
		Body:         body,
		Headers: amqp.Table{
			"x-event-id":       e.ID.String(),
			"x-correlation-id": e.Metadata.CorrelationID,
		},
	}, nil
}
