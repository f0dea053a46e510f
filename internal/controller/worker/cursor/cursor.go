// Package cursor implements the change-capture poll worker: it translates
// unseen change-log rows into events, in commit order per entity type, at
// least once.
package cursor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/avolkov/choreo/internal/entity"
	"github.com/avolkov/choreo/internal/infrastructure"
	"github.com/avolkov/choreo/internal/obs"
	"github.com/avolkov/choreo/internal/usecase"
	"github.com/avolkov/choreo/pkg/logger"
)

type Service struct {
	feed      usecase.ChangeFeedUseCase
	publisher infrastructure.EventPublisher
	logger    logger.Interface

	entityTypes  []string
	pollInterval time.Duration
	cycleTimeout time.Duration
	batchSize    int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	started atomic.Bool
}

func New(
	feed usecase.ChangeFeedUseCase,
	publisher infrastructure.EventPublisher,
	l logger.Interface,
	entityTypes []string,
	pollInterval time.Duration,
	cycleTimeout time.Duration,
	batchSize int,
) *Service {
	return &Service{
		feed:         feed,
		publisher:    publisher,
		logger:       l,
		entityTypes:  entityTypes,
		pollInterval: pollInterval,
		cycleTimeout: cycleTimeout,
		batchSize:    batchSize,
	}
}

func (s *Service) Start(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return fmt.Errorf("CursorService - Start - worker already started")
	}

	s.ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go s.run()

	return nil
}

// run checks the stop signal only between ticks, so a cycle that already
// started always finishes.
func (s *Service) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			cycleCtx, cycleCancel := context.WithTimeout(context.WithoutCancel(s.ctx), s.cycleTimeout)
			s.cycle(cycleCtx)
			cycleCancel()
		}
	}
}

// cycle runs one full scan across all tracked entity types. A failure in one
// entity type is logged and isolated: its cursor stays put and it retries
// from the same point next tick, while the remaining types still run.
func (s *Service) cycle(ctx context.Context) {
	for _, entityType := range s.entityTypes {
		err := s.processEntityType(ctx, entityType)
		if err != nil {
			obs.CursorCycleErrors.WithLabelValues(entityType).Inc()
			s.logger.Error(err, "CursorService - cycle - s.processEntityType")
		}
	}
}

func (s *Service) processEntityType(ctx context.Context, entityType string) error {
	rows, err := s.feed.UnseenRows(ctx, entityType, s.batchSize)
	if err != nil {
		return fmt.Errorf("CursorService - processEntityType - s.feed.UnseenRows: %w", err)
	}

	for _, row := range rows {
		err = s.processRow(ctx, row)
		if err != nil {
			// Rows after this one stay unseen too; ascending order
			// would break if we skipped ahead.
			return err
		}
	}

	return nil
}

// processRow publishes the row's event and only then advances the cursor.
// The two writes are deliberately not one transaction: a crash in between
// re-emits the row next tick, which is the at-least-once contract.
func (s *Service) processRow(ctx context.Context, row *entity.ChangeRow) error {
	e, err := s.feed.Envelope(row)
	if err != nil {
		return fmt.Errorf("CursorService - processRow - s.feed.Envelope: %w", err)
	}

	err = s.publisher.Publish(ctx, e)
	if err != nil {
		return fmt.Errorf("CursorService - processRow - s.publisher.Publish: %w", err)
	}

	err = s.feed.Advance(ctx, row.EntityType, row.ID)
	if err != nil {
		return fmt.Errorf("CursorService - processRow - s.feed.Advance: %w", err)
	}

	obs.CursorRowsPublished.WithLabelValues(row.EntityType).Inc()

	return nil
}

func (s *Service) Shutdown(ctx context.Context) error {
	if !s.started.Load() {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})

	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
