package repo

import (
	"context"

	"github.com/avolkov/choreo/internal/entity"
)

type (
	// ChangeLogRepo reads and appends the append-only change log. GetAfter
	// returns rows strictly after afterID in ascending id order; the log's
	// sequence is assumed strictly increasing and visible in commit order
	// per entity type.
	ChangeLogRepo interface {
		Append(ctx context.Context, row *entity.ChangeRow) (int64, error)
		GetAfter(ctx context.Context, entityType string, afterID int64, limit int) ([]*entity.ChangeRow, error)
	}

	// CursorRepo persists one bookmark row per entity type. The cursor
	// service is the single writer.
	CursorRepo interface {
		Get(ctx context.Context, entityType string) (*entity.Cursor, error)
		Upsert(ctx context.Context, cursor *entity.Cursor) error
	}

	// AuditRepo appends delivered envelopes, idempotent on the envelope id.
	AuditRepo interface {
		Append(ctx context.Context, e *entity.Envelope) error
	}

	Transactor interface {
		WithinTransaction(ctx context.Context, f func(ctx context.Context) error) error
	}
)
