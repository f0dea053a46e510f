package persistent

import (
	"context"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/avolkov/choreo/internal/entity"
	"github.com/avolkov/choreo/pkg/postgres"
	"github.com/avolkov/choreo/pkg/types/errs"
)

const (
	// Table
	cursorTable = "sync_cursors"

	// Columns
	cursorEntityTypeColumn   = "entity_type"
	cursorLastSeenIDColumn   = "last_seen_id"
	cursorLastSyncTimeColumn = "last_sync_time"
)

type CursorRepo struct {
	*postgres.Postgres
}

func NewCursorRepo(pg *postgres.Postgres) *CursorRepo {
	return &CursorRepo{pg}
}

func (r *CursorRepo) Get(ctx context.Context, entityType string) (*entity.Cursor, error) {
	sql, args, err := r.Builder.
		Select(
			cursorEntityTypeColumn,
			cursorLastSeenIDColumn,
			cursorLastSyncTimeColumn,
		).
		From(cursorTable).
		Where(squirrel.Eq{cursorEntityTypeColumn: entityType}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("CursorRepo - Get - r.Builder.ToSql: %w", err)
	}

	executor := r.GetExecutor(ctx)

	var cursor entity.Cursor

	err = executor.QueryRow(ctx, sql, args...).Scan(
		&cursor.EntityType,
		&cursor.LastSeenID,
		&cursor.LastSyncTime,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("CursorRepo - Get - %s: %w", entityType, errs.ErrRecordNotFound)
		}

		return nil, fmt.Errorf("CursorRepo - Get - executor.QueryRow: %w", err)
	}

	return &cursor, nil
}

// Upsert creates the row on first sight of an entity type and advances it
// afterwards. The conflict guard keeps last_seen_id monotonically
// non-decreasing even if a stale write slips through.
func (r *CursorRepo) Upsert(ctx context.Context, cursor *entity.Cursor) error {
	sql, args, err := r.Builder.
		Insert(cursorTable).
		Columns(
			cursorEntityTypeColumn,
			cursorLastSeenIDColumn,
			cursorLastSyncTimeColumn,
		).
		Values(
			cursor.EntityType,
			cursor.LastSeenID,
			cursor.LastSyncTime,
		).
		Suffix(fmt.Sprintf(
			"ON CONFLICT (%[1]s) DO UPDATE SET %[2]s = EXCLUDED.%[2]s, %[3]s = EXCLUDED.%[3]s WHERE %[4]s.%[2]s <= EXCLUDED.%[2]s",
			cursorEntityTypeColumn,
			cursorLastSeenIDColumn,
			cursorLastSyncTimeColumn,
			cursorTable,
		)).
		ToSql()
	if err != nil {
		return fmt.Errorf("CursorRepo - Upsert - r.Builder.ToSql: %w", err)
	}

	executor := r.GetExecutor(ctx)

	_, err = executor.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("CursorRepo - Upsert - executor.Exec: %w", err)
	}

	return nil
}
