package persistent

import (
	"context"
	"fmt"

	"github.com/avolkov/choreo/internal/entity"
	"github.com/avolkov/choreo/pkg/postgres"
)

const (
	// Table
	auditTable = "audit_log"

	// Columns
	auditEventIDColumn       = "event_id"
	auditEventTypeColumn     = "event_type"
	auditEntityColumn        = "entity"
	auditCorrelationIDColumn = "correlation_id"
	auditOccurredAtColumn    = "occurred_at"
	auditPayloadColumn       = "payload"
)

type AuditRepo struct {
	*postgres.Postgres
}

func NewAuditRepo(pg *postgres.Postgres) *AuditRepo {
	return &AuditRepo{pg}
}

// Append records a delivered envelope. The primary key on event_id plus
// DO NOTHING makes redelivered duplicates a no-op.
func (r *AuditRepo) Append(ctx context.Context, e *entity.Envelope) error {
	sql, args, err := r.Builder.
		Insert(auditTable).
		Columns(
			auditEventIDColumn,
			auditEventTypeColumn,
			auditEntityColumn,
			auditCorrelationIDColumn,
			auditOccurredAtColumn,
			auditPayloadColumn,
		).
		Values(
			e.ID,
			e.Type,
			e.Entity,
			e.Metadata.CorrelationID,
			e.Timestamp,
			[]byte(e.Data),
		).
		Suffix("ON CONFLICT (" + auditEventIDColumn + ") DO NOTHING").
		ToSql()
	if err != nil {
		return fmt.Errorf("AuditRepo - Append - r.Builder.ToSql: %w", err)
	}

	executor := r.GetExecutor(ctx)

	_, err = executor.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("AuditRepo - Append - executor.Exec: %w", err)
	}

	return nil
}
