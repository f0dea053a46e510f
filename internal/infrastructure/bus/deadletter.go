package bus

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/avolkov/choreo/internal/entity"
	"github.com/avolkov/choreo/pkg/logger"
	"github.com/avolkov/choreo/pkg/rabbitmq"
)

const _defaultDrainLimit = 20

// DeadLetterSink reads the catch-all dead-letter queue for inspection.
// Draining never reprocesses anything: replay is a manual act of re-publishing
// through the normal Publisher.
type DeadLetterSink struct {
	rmq    *rabbitmq.RabbitMQ
	logger logger.Interface
}

func NewDeadLetterSink(rmq *rabbitmq.RabbitMQ, l logger.Interface) *DeadLetterSink {
	return &DeadLetterSink{rmq: rmq, logger: l}
}

// Drain fetches up to limit messages with peek semantics: every fetched
// delivery is nack-requeued after collection, so the queue is left intact.
// Malformed entries are logged and skipped. A non-positive limit falls back
// to the default.
func (s *DeadLetterSink) Drain(ctx context.Context, limit int) ([]*entity.DeadLetter, error) {
	limit = drainLimit(limit)

	ch, err := s.rmq.Channel()
	if err != nil {
		return nil, fmt.Errorf("DeadLetterSink - Drain - s.rmq.Channel: %w", err)
	}

	fetched := make([]amqp.Delivery, 0, limit)

	for i := 0; i < limit; i++ {
		select {
		case <-ctx.Done():
			s.requeue(fetched)

			return nil, ctx.Err()
		default:
		}

		msg, ok, err := ch.Get(s.rmq.DeadLetterQueue(), false)
		if err != nil {
			s.requeue(fetched)

			return nil, fmt.Errorf("DeadLetterSink - Drain - ch.Get: %w", err)
		}
		if !ok {
			break
		}

		fetched = append(fetched, msg)
	}

	letters := s.collect(fetched)

	s.requeue(fetched)

	return letters, nil
}

// drainLimit guards the fetch count: a caller-supplied non-positive limit
// falls back to the default instead of reaching slice allocation.
func drainLimit(limit int) int {
	if limit <= 0 {
		return _defaultDrainLimit
	}

	return limit
}

// collect parses fetched deliveries into dead-letter records, skipping
// entries whose body is not a valid envelope.
func (s *DeadLetterSink) collect(deliveries []amqp.Delivery) []*entity.DeadLetter {
	letters := make([]*entity.DeadLetter, 0, len(deliveries))

	for _, msg := range deliveries {
		e, err := entity.DecodeEnvelope(msg.Body)
		if err != nil {
			s.logger.Warn("DeadLetterSink - collect - skipping malformed entry: %v", err)

			continue
		}

		letters = append(letters, &entity.DeadLetter{
			Envelope:   e,
			Raw:        msg.Body,
			RoutingKey: msg.RoutingKey,
			DeathCount: deathCount(msg.Headers),
		})
	}

	return letters
}

// requeue returns each fetched delivery by its own tag. Delivery tags are a
// per-channel sequence shared with the consumers on that channel, so a
// multi-nack up to the highest fetched tag would also requeue unrelated
// in-flight deliveries and leave their handlers acking unknown tags.
func (s *DeadLetterSink) requeue(deliveries []amqp.Delivery) {
	for _, msg := range deliveries {
		if err := msg.Nack(false, true); err != nil {
			s.logger.Error(err, "DeadLetterSink - requeue - msg.Nack")
		}
	}
}

// deathCount reads the broker's x-death header, the number of times the
// message was dead-lettered.
func deathCount(headers amqp.Table) int64 {
	deaths, ok := headers["x-death"].([]interface{})
	if !ok || len(deaths) == 0 {
		return 0
	}

	first, ok := deaths[0].(amqp.Table)
	if !ok {
		return 0
	}

	count, ok := first["count"].(int64)
	if !ok {
		return 0
	}

	return count
}
