package entity

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/avolkov/choreo/pkg/types/errs"
)

// Operation is the kind of change a log row records.
type Operation string

const (
	OpCreated Operation = "created"
	OpUpdated Operation = "updated"
	OpDeleted Operation = "deleted"
)

// ChangeRow is one append-only change-log record. ID is assigned by the log's
// strictly increasing sequence; the cursor service relies on that ordering
// being the commit ordering per entity type.
type ChangeRow struct {
	ID          int64           `json:"id"`
	EntityType  string          `json:"entity_type"`
	EntityID    uuid.UUID       `json:"entity_id"`
	Operation   Operation       `json:"operation"`
	Snapshot    json.RawMessage `json:"snapshot"`
	CommittedAt time.Time       `json:"committed_at"`
}

// MessageType maps the row to the envelope type discriminator, e.g.
// ("Order", created) -> "OrderCreated".
func (r *ChangeRow) MessageType() (string, error) {
	switch r.Operation {
	case OpCreated:
		return r.EntityType + "Created", nil
	case OpUpdated:
		return r.EntityType + "Updated", nil
	case OpDeleted:
		return r.EntityType + "Deleted", nil
	default:
		return "", fmt.Errorf("ChangeRow - MessageType - %q: %w", r.Operation, errs.ErrUnknownOperation)
	}
}

// Cursor is the per-entity-type bookmark over the change log. LastSeenID is
// monotonically non-decreasing and written only by the cursor service.
type Cursor struct {
	EntityType   string    `json:"entity_type"`
	LastSeenID   int64     `json:"last_seen_id"`
	LastSyncTime time.Time `json:"last_sync_time"`
}
