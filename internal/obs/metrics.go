// Package obs holds the prometheus instrumentation for the bus and the
// cursor service.
package obs

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Published = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bus_published_total",
		Help: "Messages handed to the broker exchange",
	})
	PublishErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bus_publish_errors_total",
		Help: "Local publish failures surfaced to callers",
	})
	Consumed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bus_consumed_total",
		Help: "Deliveries that reached a terminal ack",
	}, []string{"queue"})
	HandlerRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bus_handler_retries_total",
		Help: "In-process handler re-invocations after a failure",
	}, []string{"queue"})
	DeadLettered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bus_dead_lettered_total",
		Help: "Deliveries negatively acknowledged into the dead-letter queue",
	}, []string{"queue"})

	CursorRowsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cursor_rows_published_total",
		Help: "Change-log rows translated into events",
	}, []string{"entity_type"})
	CursorCycleErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cursor_cycle_errors_total",
		Help: "Per-entity-type failures during a scan cycle",
	}, []string{"entity_type"})
)
