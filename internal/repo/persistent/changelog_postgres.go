package persistent

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"

	"github.com/avolkov/choreo/internal/entity"
	"github.com/avolkov/choreo/pkg/postgres"
)

const (
	// Table
	changeLogTable = "change_log"

	// Columns
	changeLogIDColumn          = "id"
	changeLogEntityTypeColumn  = "entity_type"
	changeLogEntityIDColumn    = "entity_id"
	changeLogOperationColumn   = "operation"
	changeLogSnapshotColumn    = "snapshot"
	changeLogCommittedAtColumn = "committed_at"
)

type ChangeLogRepo struct {
	*postgres.Postgres
}

func NewChangeLogRepo(pg *postgres.Postgres) *ChangeLogRepo {
	return &ChangeLogRepo{pg}
}

func (r *ChangeLogRepo) Append(ctx context.Context, row *entity.ChangeRow) (int64, error) {
	sql, args, err := r.Builder.
		Insert(changeLogTable).
		Columns(
			changeLogEntityTypeColumn,
			changeLogEntityIDColumn,
			changeLogOperationColumn,
			changeLogSnapshotColumn,
			changeLogCommittedAtColumn,
		).
		Values(
			row.EntityType,
			row.EntityID,
			row.Operation,
			row.Snapshot,
			row.CommittedAt,
		).
		Suffix("RETURNING " + changeLogIDColumn).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("ChangeLogRepo - Append - r.Builder.ToSql: %w", err)
	}

	executor := r.GetExecutor(ctx)

	var id int64

	err = executor.QueryRow(ctx, sql, args...).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("ChangeLogRepo - Append - executor.QueryRow: %w", err)
	}

	return id, nil
}

// GetAfter returns rows of one entity type with id strictly greater than
// afterID, ascending. The ordering here is the lone delivery-order guarantee
// the cursor service gives.
func (r *ChangeLogRepo) GetAfter(ctx context.Context, entityType string, afterID int64, limit int) ([]*entity.ChangeRow, error) {
	sql, args, err := r.Builder.
		Select(
			changeLogIDColumn,
			changeLogEntityTypeColumn,
			changeLogEntityIDColumn,
			changeLogOperationColumn,
			changeLogSnapshotColumn,
			changeLogCommittedAtColumn,
		).
		From(changeLogTable).
		Where(squirrel.And{
			squirrel.Eq{changeLogEntityTypeColumn: entityType},
			squirrel.Gt{changeLogIDColumn: afterID},
		}).
		OrderBy(changeLogIDColumn + " ASC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("ChangeLogRepo - GetAfter - r.Builder.ToSql: %w", err)
	}

	executor := r.GetExecutor(ctx)

	rows, err := executor.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("ChangeLogRepo - GetAfter - executor.Query: %w", err)
	}
	defer rows.Close()

	result := make([]*entity.ChangeRow, 0, limit)
	for rows.Next() {
		var row entity.ChangeRow
		err = rows.Scan(
			&row.ID,
			&row.EntityType,
			&row.EntityID,
			&row.Operation,
			&row.Snapshot,
			&row.CommittedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("ChangeLogRepo - GetAfter - rows.Scan: %w", err)
		}
		result = append(result, &row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ChangeLogRepo - GetAfter - rows.Err: %w", err)
	}

	return result, nil
}
