package entity

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/avolkov/choreo/pkg/types/errs"
)

func TestDecodePayload_KnownTypes(t *testing.T) {
	orderID := uuid.New()

	raw, err := json.Marshal(OrderPayload{OrderID: orderID, Status: "new", Currency: "EUR"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	e := &Envelope{Type: TypeOrderCreated, Entity: EntityOrder, Data: raw}

	payload, err := DecodePayload(e)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	order, ok := payload.(OrderPayload)
	if !ok {
		t.Fatalf("expected OrderPayload, got %T", payload)
	}
	if order.OrderID != orderID || order.Status != "new" {
		t.Errorf("payload fields lost: %+v", order)
	}
}

func TestDecodePayload_UnknownTypeFallsBack(t *testing.T) {
	e := &Envelope{Type: "InvoiceSettled", Entity: "Invoice", Data: json.RawMessage(`{"x":1}`)}

	payload, err := DecodePayload(e)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	unknown, ok := payload.(UnknownPayload)
	if !ok {
		t.Fatalf("expected UnknownPayload, got %T", payload)
	}
	if unknown.Type != "InvoiceSettled" {
		t.Errorf("expected type discriminator preserved, got %q", unknown.Type)
	}
	if string(unknown.Raw) != `{"x":1}` {
		t.Errorf("expected raw bytes preserved, got %s", unknown.Raw)
	}
}

func TestDecodePayload_MalformedData(t *testing.T) {
	e := &Envelope{Type: TypeOrderCreated, Entity: EntityOrder, Data: json.RawMessage(`{"orderId": 12}`)}

	if _, err := DecodePayload(e); err == nil {
		t.Error("expected error for malformed payload, got nil")
	}
}

func TestChangeRow_MessageType(t *testing.T) {
	tests := []struct {
		name      string
		operation Operation
		expected  string
		wantErr   bool
	}{
		{"created", OpCreated, "OrderCreated", false},
		{"updated", OpUpdated, "OrderUpdated", false},
		{"deleted", OpDeleted, "OrderDeleted", false},
		{"unknown", Operation("truncated"), "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row := &ChangeRow{EntityType: EntityOrder, Operation: tt.operation}

			got, err := row.MessageType()
			if tt.wantErr {
				if !errors.Is(err, errs.ErrUnknownOperation) {
					t.Errorf("expected ErrUnknownOperation, got: %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}
