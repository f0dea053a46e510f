// Package audit appends every delivered envelope to the audit table.
package audit

import (
	"context"
	"fmt"

	"github.com/avolkov/choreo/internal/entity"
	"github.com/avolkov/choreo/internal/repo"
)

type Handler struct {
	auditRepo repo.AuditRepo
}

func New(auditRepo repo.AuditRepo) *Handler {
	return &Handler{auditRepo: auditRepo}
}

// Handle relies on the repo's insert being a no-op for an already-recorded
// event id, so redeliveries leave exactly one row.
func (h *Handler) Handle(ctx context.Context, e *entity.Envelope) error {
	err := h.auditRepo.Append(ctx, e)
	if err != nil {
		return fmt.Errorf("AuditHandler - Handle - h.auditRepo.Append: %w", err)
	}

	return nil
}
