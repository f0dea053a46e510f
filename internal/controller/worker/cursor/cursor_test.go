package cursor

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/avolkov/choreo/internal/entity"
	"github.com/avolkov/choreo/internal/usecase/feed"
	"github.com/avolkov/choreo/pkg/logger"
	"github.com/avolkov/choreo/pkg/types/errs"
)

type memChangeLog struct {
	rows []*entity.ChangeRow
	err  map[string]error // per entity type
}

func (m *memChangeLog) Append(ctx context.Context, row *entity.ChangeRow) (int64, error) {
	m.rows = append(m.rows, row)
	return row.ID, nil
}

func (m *memChangeLog) GetAfter(ctx context.Context, entityType string, afterID int64, limit int) ([]*entity.ChangeRow, error) {
	if err := m.err[entityType]; err != nil {
		return nil, err
	}

	var result []*entity.ChangeRow
	for _, row := range m.rows {
		if row.EntityType == entityType && row.ID > afterID {
			result = append(result, row)
		}
		if len(result) == limit {
			break
		}
	}
	return result, nil
}

type memCursors struct {
	cursors map[string]*entity.Cursor
}

func (m *memCursors) Get(ctx context.Context, entityType string) (*entity.Cursor, error) {
	cursor, ok := m.cursors[entityType]
	if !ok {
		return nil, errs.ErrRecordNotFound
	}
	return cursor, nil
}

func (m *memCursors) Upsert(ctx context.Context, cursor *entity.Cursor) error {
	m.cursors[cursor.EntityType] = cursor
	return nil
}

type memPublisher struct {
	published []*entity.Envelope
	failFor   map[string]error // per entity name
}

func (m *memPublisher) Publish(ctx context.Context, e *entity.Envelope) error {
	if err := m.failFor[e.Entity]; err != nil {
		return err
	}

	m.published = append(m.published, e)
	return nil
}

func (m *memPublisher) PublishBatch(ctx context.Context, envelopes []*entity.Envelope) error {
	for _, e := range envelopes {
		if err := m.Publish(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

type fixture struct {
	service   *Service
	changeLog *memChangeLog
	cursors   *memCursors
	publisher *memPublisher
}

func newFixture(entityTypes ...string) *fixture {
	changeLog := &memChangeLog{err: make(map[string]error)}
	cursors := &memCursors{cursors: make(map[string]*entity.Cursor)}
	publisher := &memPublisher{failFor: make(map[string]error)}

	l := logger.New("error")
	feedUseCase := feed.New(changeLog, cursors, "cursor-service", l)

	return &fixture{
		service:   New(feedUseCase, publisher, l, entityTypes, 10*time.Millisecond, time.Second, 100),
		changeLog: changeLog,
		cursors:   cursors,
		publisher: publisher,
	}
}

func row(id int64, entityType string) *entity.ChangeRow {
	return &entity.ChangeRow{
		ID:          id,
		EntityType:  entityType,
		EntityID:    uuid.New(),
		Operation:   entity.OpCreated,
		Snapshot:    json.RawMessage(`{"status":"new"}`),
		CommittedAt: time.Now().UTC(),
	}
}

func TestCycle_FirstSightPublishesAndAdvances(t *testing.T) {
	f := newFixture(entity.EntityOrder)
	f.changeLog.rows = append(f.changeLog.rows, row(42, entity.EntityOrder))

	f.service.cycle(context.Background())

	if len(f.publisher.published) != 1 {
		t.Fatalf("expected 1 published envelope, got %d", len(f.publisher.published))
	}

	e := f.publisher.published[0]
	if e.Type != "OrderCreated" || e.Entity != entity.EntityOrder {
		t.Errorf("unexpected envelope identity: %s.%s", e.Entity, e.Type)
	}
	if string(e.Data) != `{"status":"new"}` {
		t.Errorf("expected data derived from the row snapshot, got %s", e.Data)
	}

	cursor := f.cursors.cursors[entity.EntityOrder]
	if cursor == nil || cursor.LastSeenID != 42 {
		t.Errorf("expected cursor at 42, got %+v", cursor)
	}
}

func TestCycle_SecondCycleIsIdempotent(t *testing.T) {
	f := newFixture(entity.EntityOrder)
	f.changeLog.rows = append(f.changeLog.rows, row(42, entity.EntityOrder))

	f.service.cycle(context.Background())
	f.service.cycle(context.Background())

	if len(f.publisher.published) != 1 {
		t.Errorf("expected no re-publication on the second cycle, got %d envelopes", len(f.publisher.published))
	}
}

func TestCycle_AscendingCommitOrder(t *testing.T) {
	f := newFixture(entity.EntityOrder)
	for _, id := range []int64{7, 9, 12} {
		f.changeLog.rows = append(f.changeLog.rows, row(id, entity.EntityOrder))
	}

	f.service.cycle(context.Background())

	if len(f.publisher.published) != 3 {
		t.Fatalf("expected 3 published envelopes, got %d", len(f.publisher.published))
	}

	cursor := f.cursors.cursors[entity.EntityOrder]
	if cursor == nil || cursor.LastSeenID != 12 {
		t.Errorf("expected cursor at 12, got %+v", cursor)
	}
}

func TestCycle_PublishFailureDoesNotAdvanceCursor(t *testing.T) {
	f := newFixture(entity.EntityOrder)
	f.changeLog.rows = append(f.changeLog.rows, row(42, entity.EntityOrder))
	f.publisher.failFor[entity.EntityOrder] = errors.New("channel not ready")

	f.service.cycle(context.Background())

	if len(f.publisher.published) != 0 {
		t.Errorf("expected no published envelopes, got %d", len(f.publisher.published))
	}
	if _, ok := f.cursors.cursors[entity.EntityOrder]; ok {
		t.Error("expected cursor untouched after publish failure")
	}

	// Broker recovers; the next tick picks up from the same point.
	delete(f.publisher.failFor, entity.EntityOrder)
	f.service.cycle(context.Background())

	if len(f.publisher.published) != 1 {
		t.Errorf("expected the row re-published after recovery, got %d", len(f.publisher.published))
	}
	if cursor := f.cursors.cursors[entity.EntityOrder]; cursor == nil || cursor.LastSeenID != 42 {
		t.Errorf("expected cursor at 42, got %+v", cursor)
	}
}

func TestCycle_EntityTypeFailureIsIsolated(t *testing.T) {
	f := newFixture(entity.EntityOrder, entity.EntityCustomer)
	f.changeLog.rows = append(f.changeLog.rows,
		row(1, entity.EntityOrder),
		row(2, entity.EntityCustomer),
	)
	f.changeLog.err[entity.EntityOrder] = errors.New("query timeout")

	f.service.cycle(context.Background())

	if len(f.publisher.published) != 1 {
		t.Fatalf("expected the healthy entity type to publish, got %d envelopes", len(f.publisher.published))
	}
	if f.publisher.published[0].Entity != entity.EntityCustomer {
		t.Errorf("expected a Customer envelope, got %s", f.publisher.published[0].Entity)
	}
	if _, ok := f.cursors.cursors[entity.EntityOrder]; ok {
		t.Error("expected the failing entity type's cursor untouched")
	}
}

func TestCycle_CursorIsMonotonic(t *testing.T) {
	f := newFixture(entity.EntityOrder)

	var previous int64

	for _, id := range []int64{3, 8, 21} {
		f.changeLog.rows = append(f.changeLog.rows, row(id, entity.EntityOrder))
		f.service.cycle(context.Background())

		cursor := f.cursors.cursors[entity.EntityOrder]
		if cursor == nil {
			t.Fatal("expected a cursor row")
		}
		if cursor.LastSeenID < previous {
			t.Errorf("cursor went backwards: %d < %d", cursor.LastSeenID, previous)
		}
		previous = cursor.LastSeenID
	}
}

func TestStartShutdown(t *testing.T) {
	f := newFixture(entity.EntityOrder)

	if err := f.service.Start(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := f.service.Start(context.Background()); err == nil {
		t.Error("expected error on double start")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := f.service.Shutdown(ctx); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestShutdown_WithoutStart(t *testing.T) {
	f := newFixture(entity.EntityOrder)

	if err := f.service.Shutdown(context.Background()); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
