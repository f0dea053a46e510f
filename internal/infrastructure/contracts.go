package infrastructure

import (
	"context"

	"github.com/avolkov/choreo/internal/entity"
)

type (
	// EventPublisher is the local-send contract of the bus publisher:
	// synchronous relative to the send, no implicit retry.
	EventPublisher interface {
		Publish(ctx context.Context, e *entity.Envelope) error
		PublishBatch(ctx context.Context, envelopes []*entity.Envelope) error
	}
)
