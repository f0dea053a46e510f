package entity

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/avolkov/choreo/pkg/types/errs"
)

func TestNewEnvelope(t *testing.T) {
	before := time.Now().UTC()

	e, err := NewEnvelope(EntityOrder, TypeOrderCreated, map[string]string{"k": "v"}, Metadata{Source: "api"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if e.ID == uuid.Nil {
		t.Error("expected a generated id")
	}
	if e.Timestamp.Before(before) {
		t.Errorf("timestamp %v predates creation", e.Timestamp)
	}
	if e.Metadata.CorrelationID != e.ID.String() {
		t.Errorf("expected correlation id to default to the envelope id, got %q", e.Metadata.CorrelationID)
	}
	if e.Metadata.Version != 1 {
		t.Errorf("expected version 1, got %d", e.Metadata.Version)
	}
	if e.RoutingKey() != "Order.OrderCreated" {
		t.Errorf("expected routing key Order.OrderCreated, got %q", e.RoutingKey())
	}
}

func TestNewEnvelope_KeepsExplicitCorrelationID(t *testing.T) {
	e, err := NewEnvelope(EntityOrder, TypeOrderCreated, nil, Metadata{Source: "api", CorrelationID: "chain-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if e.Metadata.CorrelationID != "chain-1" {
		t.Errorf("expected correlation id chain-1, got %q", e.Metadata.CorrelationID)
	}
}

func TestEnvelope_Derive(t *testing.T) {
	origin, err := NewEnvelope(EntityOrder, TypeOrderCreated, nil, Metadata{Source: "api", TenantID: "t1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	derived, err := origin.Derive(EntityOrder, TypeOrderUpdated, nil, "worker")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if derived.ID == origin.ID {
		t.Error("expected a fresh id for the derived envelope")
	}
	if derived.Metadata.CorrelationID != origin.Metadata.CorrelationID {
		t.Errorf("correlation id changed across the hop: %q != %q",
			derived.Metadata.CorrelationID, origin.Metadata.CorrelationID)
	}
	if derived.Metadata.TenantID != "t1" {
		t.Errorf("tenant id lost: %q", derived.Metadata.TenantID)
	}
	if derived.Metadata.Source != "worker" {
		t.Errorf("expected source worker, got %q", derived.Metadata.Source)
	}
}

func TestEnvelope_EncodeDecode(t *testing.T) {
	e, err := NewEnvelope(EntityCustomer, TypeCustomerCreated, map[string]string{"email": "a@b.c"}, Metadata{
		Source: "api",
		UserID: "u1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	raw, err := e.Encode()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	decoded, err := DecodeEnvelope(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if decoded.ID != e.ID || decoded.Type != e.Type || decoded.Entity != e.Entity {
		t.Errorf("identity fields did not survive the round trip: %+v", decoded)
	}
	if decoded.Metadata != e.Metadata {
		t.Errorf("metadata did not survive the round trip: %+v", decoded.Metadata)
	}
	if !decoded.Timestamp.Equal(e.Timestamp) {
		t.Errorf("timestamp changed: %v != %v", decoded.Timestamp, e.Timestamp)
	}
}

func TestDecodeEnvelope_Malformed(t *testing.T) {
	tests := []struct {
		name string
		raw  []byte
	}{
		{"not json", []byte("not json at all")},
		{"missing id", []byte(`{"type":"OrderCreated","entity":"Order"}`)},
		{"missing type", []byte(`{"id":"` + uuid.NewString() + `","entity":"Order"}`)},
		{"missing entity", []byte(`{"id":"` + uuid.NewString() + `","type":"OrderCreated"}`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeEnvelope(tt.raw)
			if !errors.Is(err, errs.ErrMalformedEnvelope) {
				t.Errorf("expected ErrMalformedEnvelope, got: %v", err)
			}
		})
	}
}

func TestEnvelope_WireShape(t *testing.T) {
	e, err := NewEnvelope(EntityOrder, TypeOrderCreated, map[string]string{"k": "v"}, Metadata{Source: "api"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	raw, err := e.Encode()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var wire map[string]json.RawMessage
	if err := json.Unmarshal(raw, &wire); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, field := range []string{"id", "type", "entity", "timestamp", "data", "metadata"} {
		if _, ok := wire[field]; !ok {
			t.Errorf("wire envelope is missing %q", field)
		}
	}
}
