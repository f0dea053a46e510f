package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/avolkov/choreo/config"
	"github.com/avolkov/choreo/internal/controller/ops"
	"github.com/avolkov/choreo/internal/controller/worker/cursor"
	"github.com/avolkov/choreo/internal/entity"
	"github.com/avolkov/choreo/internal/handler/audit"
	"github.com/avolkov/choreo/internal/handler/cache"
	"github.com/avolkov/choreo/internal/handler/search"
	"github.com/avolkov/choreo/internal/infrastructure/bus"
	"github.com/avolkov/choreo/internal/repo/persistent"
	"github.com/avolkov/choreo/internal/usecase/feed"
	"github.com/avolkov/choreo/pkg/httpserver"
	"github.com/avolkov/choreo/pkg/logger"
	"github.com/avolkov/choreo/pkg/postgres"
	"github.com/avolkov/choreo/pkg/rabbitmq"
	"github.com/avolkov/choreo/pkg/redisclient"
)

// Consumer identities; each one owns its own set of durable queues.
const (
	_cacheConsumer  = "cache-updater"
	_auditConsumer  = "audit-logger"
	_searchConsumer = "search-indexer"
)

func Run(cfg *config.Config) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Logger
	l := logger.New(cfg.Log.Level)

	// Repository

	// postgres
	pg, err := postgres.New(cfg.PG.URL, postgres.MaxPoolSize(cfg.PG.PoolMax))
	if err != nil {
		l.Fatal(fmt.Errorf("app - Run - postgres.New: %w", err))
	}
	defer pg.Close()

	// redis
	rdb, err := redisclient.New(ctx, cfg.Redis.Addr,
		redisclient.Password(cfg.Redis.Password),
		redisclient.DB(cfg.Redis.DB),
	)
	if err != nil {
		l.Fatal(fmt.Errorf("app - Run - redisclient.New: %w", err))
	}
	defer rdb.Close()

	// Broker connection manager. Connect exhaustion is fatal: the process
	// fails fast and lets the supervisor restart it.
	rmq := rabbitmq.New(cfg.RMQ.URL,
		rabbitmq.Exchange(cfg.RMQ.Exchange),
		rabbitmq.DeadLetterExchange(cfg.RMQ.DLExchange),
		rabbitmq.DeadLetterQueue(cfg.RMQ.DLQueue),
		rabbitmq.Prefetch(cfg.RMQ.Prefetch),
		rabbitmq.ConnRetries(cfg.RMQ.ConnRetries),
		rabbitmq.ConnBaseDelay(cfg.RMQ.ConnBaseDelay),
		rabbitmq.ConnMaxDelay(cfg.RMQ.ConnMaxDelay),
	)

	err = rmq.Connect(ctx)
	if err != nil {
		l.Fatal(fmt.Errorf("app - Run - rmq.Connect: %w", err))
	}
	defer rmq.Disconnect()

	// Bus
	publisher := bus.NewPublisher(rmq)
	deadLetterSink := bus.NewDeadLetterSink(rmq, l)

	newDispatcher := func(consumerID string) *bus.Dispatcher {
		return bus.NewDispatcher(rmq, l, consumerID,
			cfg.Bus.HandlerMaxRetries,
			cfg.Bus.HandlerBaseDelay,
			cfg.Bus.HandlerMaxDelay,
			cfg.Bus.QueueTTL,
		)
	}

	cacheDispatcher := newDispatcher(_cacheConsumer)
	auditDispatcher := newDispatcher(_auditConsumer)
	searchDispatcher := newDispatcher(_searchConsumer)

	// Use-Case

	// change feed use-case
	feedUseCase := feed.New(
		persistent.NewChangeLogRepo(pg),
		persistent.NewCursorRepo(pg),
		cfg.App.Name,
		l,
	)

	// Cursor Service Worker
	cursorService := cursor.New(
		feedUseCase,
		publisher,
		l,
		cfg.Cursor.EntityTypes,
		cfg.Cursor.PollInterval,
		cfg.Cursor.CycleTimeout,
		cfg.Cursor.BatchSize,
	)

	// Downstream Handlers
	cacheHandler := cache.New(rdb, cfg.Redis.CacheTTL, l)
	auditHandler := audit.New(persistent.NewAuditRepo(pg))
	searchHandler := search.New(rdb, l)

	subscriptions := []struct {
		dispatcher *bus.Dispatcher
		handler    bus.Handler
	}{
		{cacheDispatcher, cacheHandler.Handle},
		{auditDispatcher, auditHandler.Handle},
		{searchDispatcher, searchHandler.Handle},
	}

	routes := []struct {
		entity      string
		messageType string
	}{
		{entity.EntityOrder, entity.TypeOrderCreated},
		{entity.EntityOrder, entity.TypeOrderUpdated},
		{entity.EntityOrder, entity.TypeOrderDeleted},
		{entity.EntityCustomer, entity.TypeCustomerCreated},
		{entity.EntityCustomer, entity.TypeCustomerUpdated},
	}

	for _, sub := range subscriptions {
		for _, route := range routes {
			err = sub.dispatcher.Subscribe(route.entity, route.messageType, sub.handler)
			if err != nil {
				l.Fatal(fmt.Errorf("app - Run - dispatcher.Subscribe: %w", err))
			}
		}
	}

	// Ops HTTP Server
	opsServer := httpserver.New(l, httpserver.Port(cfg.Ops.Port))
	ops.NewRouter(opsServer.App, rmq, deadLetterSink, l)

	// Start Components
	err = cursorService.Start(ctx)
	if err != nil {
		l.Fatal(fmt.Errorf("app - Run - cursorService.Start: %w", err))
	}
	opsServer.Start()

	// Waiting Signal
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	select {
	case s := <-interrupt:
		l.Info("app - Run - signal: %s", s.String())
	case err = <-opsServer.Notify():
		l.Error(fmt.Errorf("app - Run - opsServer.Notify: %w", err))
	}

	// Shutdown
	err = opsServer.Shutdown()
	if err != nil {
		l.Error(fmt.Errorf("app - Run - opsServer.Shutdown: %w", err))
	}

	cursorShutdownCtx, cursorShutdownCancel := context.WithTimeout(ctx, cfg.Cursor.ShutdownTimeout)
	defer cursorShutdownCancel()
	err = cursorService.Shutdown(cursorShutdownCtx)
	if err != nil {
		l.Error(fmt.Errorf("app - Run - cursorService.Shutdown: %w", err))
	}

	busShutdownCtx, busShutdownCancel := context.WithTimeout(ctx, cfg.Bus.ShutdownTimeout)
	defer busShutdownCancel()
	for _, d := range []*bus.Dispatcher{cacheDispatcher, auditDispatcher, searchDispatcher} {
		err = d.Shutdown(busShutdownCtx)
		if err != nil {
			l.Error(fmt.Errorf("app - Run - dispatcher.Shutdown: %w", err))
		}
	}
}
