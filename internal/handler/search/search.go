// Package search maintains a Redis-backed search index over entity
// snapshots: one hash document per entity plus a member set per entity type.
package search

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/avolkov/choreo/internal/entity"
	"github.com/avolkov/choreo/pkg/logger"
)

type Handler struct {
	client *redis.Client
	logger logger.Interface
}

func New(client *redis.Client, l logger.Interface) *Handler {
	return &Handler{
		client: client,
		logger: l,
	}
}

func (h *Handler) Handle(ctx context.Context, e *entity.Envelope) error {
	payload, err := entity.DecodePayload(e)
	if err != nil {
		return fmt.Errorf("SearchHandler - Handle - entity.DecodePayload: %w", err)
	}

	switch p := payload.(type) {
	case entity.OrderPayload:
		return h.index(ctx, e.Entity, p.OrderID.String(), map[string]interface{}{
			"customerId": p.CustomerID.String(),
			"status":     p.Status,
			"currency":   p.Currency,
			"totalCents": p.TotalCents,
		})
	case entity.OrderDeletedPayload:
		return h.remove(ctx, e.Entity, p.OrderID.String())
	case entity.CustomerPayload:
		return h.index(ctx, e.Entity, p.CustomerID.String(), map[string]interface{}{
			"email": p.Email,
			"name":  p.Name,
		})
	case entity.UnknownPayload:
		h.logger.Warn("SearchHandler - Handle - ignoring unknown type %s", p.Type)

		return nil
	default:
		return nil
	}
}

func (h *Handler) index(ctx context.Context, entityName, entityID string, fields map[string]interface{}) error {
	_, err := h.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, docKey(entityName, entityID), fields)
		pipe.SAdd(ctx, setKey(entityName), entityID)

		return nil
	})
	if err != nil {
		return fmt.Errorf("SearchHandler - index - h.client.TxPipelined: %w", err)
	}

	return nil
}

func (h *Handler) remove(ctx context.Context, entityName, entityID string) error {
	_, err := h.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, docKey(entityName, entityID))
		pipe.SRem(ctx, setKey(entityName), entityID)

		return nil
	})
	if err != nil {
		return fmt.Errorf("SearchHandler - remove - h.client.TxPipelined: %w", err)
	}

	return nil
}

func docKey(entityName, entityID string) string {
	return fmt.Sprintf("search:%s:%s", entityName, entityID)
}

func setKey(entityName string) string {
	return fmt.Sprintf("search:index:%s", entityName)
}
