// Package cache keeps a per-entity Redis snapshot in sync with the event
// stream. One idempotent write per delivery: SET on create/update, DEL on
// delete, keyed by the entity id.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/avolkov/choreo/internal/entity"
	"github.com/avolkov/choreo/pkg/logger"
)

type Handler struct {
	client *redis.Client
	ttl    time.Duration
	logger logger.Interface
}

func New(client *redis.Client, ttl time.Duration, l logger.Interface) *Handler {
	return &Handler{
		client: client,
		ttl:    ttl,
		logger: l,
	}
}

// Handle is safe to invoke more than once for the same envelope id: SET and
// DEL converge on the same state regardless of duplicates.
func (h *Handler) Handle(ctx context.Context, e *entity.Envelope) error {
	payload, err := entity.DecodePayload(e)
	if err != nil {
		return fmt.Errorf("CacheHandler - Handle - entity.DecodePayload: %w", err)
	}

	switch p := payload.(type) {
	case entity.OrderPayload:
		return h.set(ctx, key(e.Entity, p.OrderID.String()), e.Data)
	case entity.OrderDeletedPayload:
		return h.del(ctx, key(e.Entity, p.OrderID.String()))
	case entity.CustomerPayload:
		return h.set(ctx, key(e.Entity, p.CustomerID.String()), e.Data)
	case entity.UnknownPayload:
		h.logger.Warn("CacheHandler - Handle - ignoring unknown type %s", p.Type)

		return nil
	default:
		return nil
	}
}

func (h *Handler) set(ctx context.Context, key string, snapshot []byte) error {
	err := h.client.Set(ctx, key, snapshot, h.ttl).Err()
	if err != nil {
		return fmt.Errorf("CacheHandler - set - h.client.Set: %w", err)
	}

	return nil
}

func (h *Handler) del(ctx context.Context, key string) error {
	err := h.client.Del(ctx, key).Err()
	if err != nil {
		return fmt.Errorf("CacheHandler - del - h.client.Del: %w", err)
	}

	return nil
}

func key(entityName, entityID string) string {
	return fmt.Sprintf("cache:%s:%s", entityName, entityID)
}
