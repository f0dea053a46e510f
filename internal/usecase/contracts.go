package usecase

import (
	"context"

	"github.com/avolkov/choreo/internal/entity"
)

type (
	// ChangeFeedUseCase exposes the change log as an incremental,
	// per-entity-type feed with an explicit bookmark.
	ChangeFeedUseCase interface {
		UnseenRows(ctx context.Context, entityType string, limit int) ([]*entity.ChangeRow, error)
		Advance(ctx context.Context, entityType string, lastSeenID int64) error
		Envelope(row *entity.ChangeRow) (*entity.Envelope, error)
	}
)
