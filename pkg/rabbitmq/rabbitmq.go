// Package rabbitmq owns the single logical AMQP connection and channel of the
// process, the broker topology, and the bounded reconnect policy around them.
package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/avolkov/choreo/pkg/retry"
	"github.com/avolkov/choreo/pkg/types/errs"
)

const (
	_defaultConnRetries   = 5
	_defaultConnBaseDelay = time.Second
	_defaultConnMaxDelay  = 30 * time.Second
	_defaultPrefetch      = 10

	_defaultExchange   = "events"
	_defaultDLExchange = "events.dead-letter"
	_defaultDLQueue    = "events.dead-letter.queue"
)

type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Disconnecting
)

// RabbitMQ is the connection manager. One instance per process; the instance
// is handed by reference to the Publisher and the Dispatcher, never reachable
// globally. Reconnection is caller-driven: after an asynchronous connection
// loss the next Channel call fails and the caller decides to Connect again.
type RabbitMQ struct {
	url string

	connRetries   int
	connBaseDelay time.Duration
	connMaxDelay  time.Duration
	prefetch      int

	exchange   string
	dlExchange string
	dlQueue    string

	mu    sync.Mutex
	state State
	conn  *amqp.Connection
	ch    *amqp.Channel
}

func New(url string, opts ...Option) *RabbitMQ {
	r := &RabbitMQ{
		url:           url,
		connRetries:   _defaultConnRetries,
		connBaseDelay: _defaultConnBaseDelay,
		connMaxDelay:  _defaultConnMaxDelay,
		prefetch:      _defaultPrefetch,
		exchange:      _defaultExchange,
		dlExchange:    _defaultDLExchange,
		dlQueue:       _defaultDLQueue,
		state:         Disconnected,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Connect establishes the connection, channel and topology. Calling it while
// already connected is a no-op. Each failed attempt waits
// min(baseDelay * 2^attempt, maxDelay) before the next one; after connRetries
// failed waits the error is fatal and wraps errs.ErrConnectExhausted — the
// process is expected to fail fast rather than spin.
func (r *RabbitMQ) Connect(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == Connected {
		return nil
	}

	r.state = Connecting

	var lastErr error

	for attempt := 0; attempt <= r.connRetries; attempt++ {
		if attempt > 0 {
			delay := retry.Backoff(r.connBaseDelay, r.connMaxDelay, attempt)

			select {
			case <-ctx.Done():
				r.state = Disconnected
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		lastErr = r.dial()
		if lastErr == nil {
			r.state = Connected
			return nil
		}
	}

	r.state = Disconnected

	return fmt.Errorf("RabbitMQ - Connect - attempts exhausted: %w", errors.Join(errs.ErrConnectExhausted, lastErr))
}

func (r *RabbitMQ) dial() error {
	conn, err := amqp.Dial(r.url)
	if err != nil {
		return fmt.Errorf("RabbitMQ - dial - amqp.Dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()

		return fmt.Errorf("RabbitMQ - dial - conn.Channel: %w", err)
	}

	err = r.declareTopology(ch)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()

		return err
	}

	r.conn = conn
	r.ch = ch

	// Broker-initiated close or a network error only flips the state;
	// no background reconnect loop is started.
	go r.watchClose(conn.NotifyClose(make(chan *amqp.Error, 1)))

	return nil
}

func (r *RabbitMQ) declareTopology(ch *amqp.Channel) error {
	err := ch.ExchangeDeclare(r.exchange, amqp.ExchangeTopic, true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("RabbitMQ - declareTopology - ch.ExchangeDeclare main: %w", err)
	}

	err = ch.ExchangeDeclare(r.dlExchange, amqp.ExchangeTopic, true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("RabbitMQ - declareTopology - ch.ExchangeDeclare dead-letter: %w", err)
	}

	_, err = ch.QueueDeclare(r.dlQueue, true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("RabbitMQ - declareTopology - ch.QueueDeclare dead-letter: %w", err)
	}

	// "#" catches every routing key the main exchange knows about.
	err = ch.QueueBind(r.dlQueue, "#", r.dlExchange, false, nil)
	if err != nil {
		return fmt.Errorf("RabbitMQ - declareTopology - ch.QueueBind dead-letter: %w", err)
	}

	err = ch.Qos(r.prefetch, 0, false)
	if err != nil {
		return fmt.Errorf("RabbitMQ - declareTopology - ch.Qos: %w", err)
	}

	return nil
}

func (r *RabbitMQ) watchClose(closed <-chan *amqp.Error) {
	<-closed

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == Connected {
		r.state = Disconnected
		r.conn = nil
		r.ch = nil
	}
}

// Channel returns the live channel or errs.ErrNotConnected. Callers observe
// a lost connection here, on their next operation.
func (r *RabbitMQ) Channel() (*amqp.Channel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != Connected || r.ch == nil {
		return nil, errs.ErrNotConnected
	}

	return r.ch, nil
}

func (r *RabbitMQ) IsConnected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.state == Connected
}

// Disconnect closes the channel, then the connection. Safe to call more than
// once and in any state.
func (r *RabbitMQ) Disconnect() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == Disconnected {
		return nil
	}

	r.state = Disconnecting

	var closeErrors []error

	if r.ch != nil {
		if err := r.ch.Close(); err != nil {
			closeErrors = append(closeErrors, fmt.Errorf("RabbitMQ - Disconnect - r.ch.Close: %w", err))
		}
		r.ch = nil
	}

	if r.conn != nil {
		if err := r.conn.Close(); err != nil {
			closeErrors = append(closeErrors, fmt.Errorf("RabbitMQ - Disconnect - r.conn.Close: %w", err))
		}
		r.conn = nil
	}

	r.state = Disconnected

	return errors.Join(closeErrors...)
}

func (r *RabbitMQ) Exchange() string           { return r.exchange }
func (r *RabbitMQ) DeadLetterExchange() string { return r.dlExchange }
func (r *RabbitMQ) DeadLetterQueue() string    { return r.dlQueue }
