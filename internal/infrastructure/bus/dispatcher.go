package bus

import (
	"context"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/avolkov/choreo/internal/entity"
	"github.com/avolkov/choreo/internal/obs"
	"github.com/avolkov/choreo/pkg/logger"
	"github.com/avolkov/choreo/pkg/rabbitmq"
	"github.com/avolkov/choreo/pkg/retry"
	"github.com/avolkov/choreo/pkg/types/errs"
)

// Handler processes one envelope. It must be idempotent on the envelope id:
// in-process retry and broker redelivery both cause duplicate invocations.
type Handler func(ctx context.Context, e *entity.Envelope) error

type subscription struct {
	routingKey string
	queue      string
	handler    Handler
	cancel     context.CancelFunc
}

// Dispatcher binds one durable queue per (consumer, entity, message type) and
// runs the registered handler with bounded in-process retry before finalizing
// the delivery: exactly one ack on success, exactly one nack (no requeue, so
// the broker dead-letters it) on exhaustion. The handler registry is owned by
// the instance, built up by Subscribe and torn down by Shutdown.
type Dispatcher struct {
	rmq    *rabbitmq.RabbitMQ
	logger logger.Interface

	consumerID string
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
	queueTTL   time.Duration

	mu   sync.Mutex
	subs map[string]*subscription
	wg   sync.WaitGroup
}

func NewDispatcher(
	rmq *rabbitmq.RabbitMQ,
	l logger.Interface,
	consumerID string,
	maxRetries int,
	baseDelay time.Duration,
	maxDelay time.Duration,
	queueTTL time.Duration,
) *Dispatcher {
	return &Dispatcher{
		rmq:        rmq,
		logger:     l,
		consumerID: consumerID,
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		maxDelay:   maxDelay,
		queueTTL:   queueTTL,
		subs:       make(map[string]*subscription),
	}
}

// Subscribe declares the durable queue "{consumer}.{entity}.{type}", binds it
// on "{entity}.{type}" and starts one consume loop for it. Queue declaration
// is idempotent on the broker side; a second Subscribe for the same routing
// key is rejected so a routing key maps to exactly one handler per instance.
func (d *Dispatcher) Subscribe(entityName, messageType string, h Handler) error {
	routingKey := entityName + "." + messageType

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.subs[routingKey]; ok {
		return fmt.Errorf("Dispatcher - Subscribe - %s: %w", routingKey, errs.ErrAlreadySubscribed)
	}

	ch, err := d.rmq.Channel()
	if err != nil {
		return fmt.Errorf("Dispatcher - Subscribe - d.rmq.Channel: %w", err)
	}

	queue := fmt.Sprintf("%s.%s.%s", d.consumerID, entityName, messageType)

	// Orphaned messages expire into the dead-letter queue instead of
	// growing the queue unbounded.
	_, err = ch.QueueDeclare(queue, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange": d.rmq.DeadLetterExchange(),
		"x-message-ttl":          d.queueTTL.Milliseconds(),
	})
	if err != nil {
		return fmt.Errorf("Dispatcher - Subscribe - ch.QueueDeclare: %w", err)
	}

	err = ch.QueueBind(queue, routingKey, d.rmq.Exchange(), false, nil)
	if err != nil {
		return fmt.Errorf("Dispatcher - Subscribe - ch.QueueBind: %w", err)
	}

	deliveries, err := ch.Consume(queue, queue, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("Dispatcher - Subscribe - ch.Consume: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	sub := &subscription{routingKey: routingKey, queue: queue, handler: h, cancel: cancel}
	d.subs[routingKey] = sub

	d.wg.Add(1)
	go d.consume(ctx, sub, deliveries)

	d.logger.Info("Dispatcher - Subscribe - queue %s bound on %s", queue, routingKey)

	return nil
}

// Unsubscribe removes the handler from the registry and stops its consume
// loop. The queue stays declared and bound: its lifecycle is independent of
// one process's registration state.
func (d *Dispatcher) Unsubscribe(entityName, messageType string) {
	routingKey := entityName + "." + messageType

	d.mu.Lock()
	defer d.mu.Unlock()

	sub, ok := d.subs[routingKey]
	if !ok {
		return
	}

	delete(d.subs, routingKey)

	if ch, err := d.rmq.Channel(); err == nil {
		if err := ch.Cancel(sub.queue, false); err != nil {
			d.logger.Warn("Dispatcher - Unsubscribe - ch.Cancel: %v", err)
		}
	}

	sub.cancel()
}

// consume handles deliveries one at a time; the retry loop drives each
// message to a terminal outcome before the next delivery is taken, so retry
// introduces no reordering within the queue.
func (d *Dispatcher) consume(ctx context.Context, sub *subscription, deliveries <-chan amqp.Delivery) {
	defer d.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case del, ok := <-deliveries:
			if !ok {
				// Broker closed the channel. Deregister so a reconnecting
				// caller can Subscribe the route again without an explicit
				// Unsubscribe first.
				d.logger.Warn("Dispatcher - consume - deliveries closed for %s, consumption stopped", sub.queue)
				d.forget(sub)

				return
			}

			d.process(ctx, sub, del)
		}
	}
}

// forget drops the subscription from the registry if it is still the
// registered one for its routing key.
func (d *Dispatcher) forget(sub *subscription) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if current, ok := d.subs[sub.routingKey]; ok && current == sub {
		delete(d.subs, sub.routingKey)
	}
}

func (d *Dispatcher) process(ctx context.Context, sub *subscription, del amqp.Delivery) {
	e, err := entity.DecodeEnvelope(del.Body)
	if err != nil {
		// Retrying garbage wastes cycles: malformed bodies go straight
		// to the dead-letter queue.
		d.logger.Error(err, "Dispatcher - process - entity.DecodeEnvelope")
		d.finalize(sub, del, false)

		return
	}

	// Shutdown must not abandon a delivery mid-retry: the attempt budget
	// runs to completion even if the consume loop's context is cancelled.
	hctx := context.WithoutCancel(ctx)

	attempt := 0
	err = retry.Do(hctx, d.maxRetries, d.baseDelay, d.maxDelay, func() error {
		attempt++
		if attempt > 1 {
			obs.HandlerRetries.WithLabelValues(sub.queue).Inc()
		}

		return sub.handler(hctx, e)
	})
	if err != nil {
		d.logger.Error(err, fmt.Sprintf("Dispatcher - process - handler exhausted %d attempts, id=%s", d.maxRetries, e.ID))
		d.finalize(sub, del, false)

		return
	}

	d.finalize(sub, del, true)
}

// finalize issues the single terminal broker outcome for a delivery.
func (d *Dispatcher) finalize(sub *subscription, del amqp.Delivery, ok bool) {
	if ok {
		if err := del.Ack(false); err != nil {
			d.logger.Error(err, "Dispatcher - finalize - del.Ack")

			return
		}

		obs.Consumed.WithLabelValues(sub.queue).Inc()

		return
	}

	if err := del.Nack(false, false); err != nil {
		d.logger.Error(err, "Dispatcher - finalize - del.Nack")

		return
	}

	obs.DeadLettered.WithLabelValues(sub.queue).Inc()
}

// Shutdown stops taking new deliveries and waits for in-flight handler
// invocations to finish, up to the context deadline.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	for key, sub := range d.subs {
		sub.cancel()
		delete(d.subs, key)
	}
	d.mu.Unlock()

	done := make(chan struct{})

	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
