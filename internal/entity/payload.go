package entity

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Known entity and message-type names. Routing keys pair them as
// "{entity}.{type}".
const (
	EntityOrder    = "Order"
	EntityCustomer = "Customer"

	TypeOrderCreated    = "OrderCreated"
	TypeOrderUpdated    = "OrderUpdated"
	TypeOrderDeleted    = "OrderDeleted"
	TypeCustomerCreated = "CustomerCreated"
	TypeCustomerUpdated = "CustomerUpdated"
)

// Payload is the closed union of message payload shapes, keyed by the
// envelope Type discriminator. Types outside the known set decode to
// UnknownPayload so newer producers do not break older consumers.
type Payload interface {
	isPayload()
}

type OrderPayload struct {
	OrderID    uuid.UUID `json:"orderId"`
	CustomerID uuid.UUID `json:"customerId"`
	TotalCents int64     `json:"totalCents"`
	Currency   string    `json:"currency"`
	Status     string    `json:"status"`
	OccurredAt time.Time `json:"occurredAt"`
}

type OrderDeletedPayload struct {
	OrderID    uuid.UUID `json:"orderId"`
	OccurredAt time.Time `json:"occurredAt"`
}

type CustomerPayload struct {
	CustomerID uuid.UUID `json:"customerId"`
	Email      string    `json:"email"`
	Name       string    `json:"name"`
	OccurredAt time.Time `json:"occurredAt"`
}

type UnknownPayload struct {
	Type string
	Raw  json.RawMessage
}

func (OrderPayload) isPayload()        {}
func (OrderDeletedPayload) isPayload() {}
func (CustomerPayload) isPayload()     {}
func (UnknownPayload) isPayload()      {}

// DecodePayload resolves the envelope data against the known payload shapes.
func DecodePayload(e *Envelope) (Payload, error) {
	switch e.Type {
	case TypeOrderCreated, TypeOrderUpdated:
		var p OrderPayload
		if err := json.Unmarshal(e.Data, &p); err != nil {
			return nil, fmt.Errorf("Payload - DecodePayload - %s: %w", e.Type, err)
		}
		return p, nil
	case TypeOrderDeleted:
		var p OrderDeletedPayload
		if err := json.Unmarshal(e.Data, &p); err != nil {
			return nil, fmt.Errorf("Payload - DecodePayload - %s: %w", e.Type, err)
		}
		return p, nil
	case TypeCustomerCreated, TypeCustomerUpdated:
		var p CustomerPayload
		if err := json.Unmarshal(e.Data, &p); err != nil {
			return nil, fmt.Errorf("Payload - DecodePayload - %s: %w", e.Type, err)
		}
		return p, nil
	default:
		return UnknownPayload{Type: e.Type, Raw: e.Data}, nil
	}
}
