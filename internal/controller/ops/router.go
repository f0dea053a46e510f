// Package ops exposes the operational HTTP surface: health, metrics and
// dead-letter inspection. No business routing lives here.
package ops

import (
	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/avolkov/choreo/internal/infrastructure/bus"
	"github.com/avolkov/choreo/pkg/logger"
	"github.com/avolkov/choreo/pkg/rabbitmq"
)

type Ops struct {
	rmq    *rabbitmq.RabbitMQ
	sink   *bus.DeadLetterSink
	logger logger.Interface
}

func NewRouter(app *fiber.App, rmq *rabbitmq.RabbitMQ, sink *bus.DeadLetterSink, l logger.Interface) {
	r := &Ops{rmq: rmq, sink: sink, logger: l}

	{
		app.Get("/healthz", r.health)
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
		app.Get("/dead-letters", r.deadLetters)
	}
}

func (r *Ops) health(c *fiber.Ctx) error {
	if !r.rmq.IsConnected() {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status": "degraded",
			"broker": "disconnected",
		})
	}

	return c.JSON(fiber.Map{
		"status": "ok",
		"broker": "connected",
	})
}

type deadLetterResponse struct {
	ID            string `json:"id"`
	Type          string `json:"type"`
	Entity        string `json:"entity"`
	RoutingKey    string `json:"routingKey"`
	CorrelationID string `json:"correlationId"`
	DeathCount    int64  `json:"deathCount"`
}

// deadLetters peeks the dead-letter queue; nothing is consumed or replayed.
func (r *Ops) deadLetters(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 20)

	letters, err := r.sink.Drain(c.Context(), limit)
	if err != nil {
		r.logger.Error(err, "ops - deadLetters - r.sink.Drain")

		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to drain dead-letter queue",
		})
	}

	response := make([]deadLetterResponse, 0, len(letters))
	for _, letter := range letters {
		response = append(response, deadLetterResponse{
			ID:            letter.Envelope.ID.String(),
			Type:          letter.Envelope.Type,
			Entity:        letter.Envelope.Entity,
			RoutingKey:    letter.RoutingKey,
			CorrelationID: letter.Envelope.Metadata.CorrelationID,
			DeathCount:    letter.DeathCount,
		})
	}

	return c.JSON(fiber.Map{
		"count":       len(response),
		"deadLetters": response,
	})
}
