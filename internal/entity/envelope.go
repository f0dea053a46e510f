package entity

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/avolkov/choreo/pkg/types/errs"
)

// Metadata threads tracing context through every hop of a causal chain.
// CorrelationID is set once at the chain origin and propagated unchanged by
// anything that re-publishes a derived message.
type Metadata struct {
	Source        string `json:"source"`
	CorrelationID string `json:"correlationId"`
	UserID        string `json:"userId,omitempty"`
	TenantID      string `json:"tenantId,omitempty"`
	Version       int    `json:"version"`
}

// Envelope is the shared wire shape for events and commands. It is created
// once by a producer and immutable in transit; ID is unique per logical
// occurrence and Timestamp reflects creation, not delivery.
type Envelope struct {
	ID        uuid.UUID       `json:"id"`
	Type      string          `json:"type"`
	Entity    string          `json:"entity"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
	Metadata  Metadata        `json:"metadata"`
}

func NewEnvelope(entityName, messageType string, data any, meta Metadata) (*Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("Envelope - NewEnvelope - json.Marshal: %w", err)
	}

	id := uuid.New()

	if meta.CorrelationID == "" {
		meta.CorrelationID = id.String()
	}
	if meta.Version == 0 {
		meta.Version = 1
	}

	return &Envelope{
		ID:        id,
		Type:      messageType,
		Entity:    entityName,
		Timestamp: time.Now().UTC(),
		Data:      raw,
		Metadata:  meta,
	}, nil
}

// Derive builds a new envelope for a message caused by this one: fresh id and
// timestamp, same correlation id, same tenant/user context.
func (e *Envelope) Derive(entityName, messageType string, data any, source string) (*Envelope, error) {
	meta := e.Metadata
	meta.Source = source

	return NewEnvelope(entityName, messageType, data, meta)
}

// RoutingKey is the broker routing key, "{entity}.{type}".
func (e *Envelope) RoutingKey() string {
	return e.Entity + "." + e.Type
}

func (e *Envelope) Encode() ([]byte, error) {
	raw, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("Envelope - Encode - json.Marshal: %w", err)
	}

	return raw, nil
}

func DecodeEnvelope(raw []byte) (*Envelope, error) {
	var e Envelope

	err := json.Unmarshal(raw, &e)
	if err != nil {
		return nil, fmt.Errorf("Envelope - DecodeEnvelope - json.Unmarshal: %w", errors.Join(errs.ErrMalformedEnvelope, err))
	}

	if e.ID == uuid.Nil || e.Type == "" || e.Entity == "" {
		return nil, fmt.Errorf("Envelope - DecodeEnvelope - missing id, type or entity: %w", errs.ErrMalformedEnvelope)
	}

	return &e, nil
}
