package amqp

import (
	"encoding/json"
	"time"
)

// Event kinds carried by PaymentEvent.
const (
	KindStatusChanged      = "status_changed"
	KindBulkPaid           = "bulk_paid"
	KindInstallmentOverdue = "installment_overdue"
)

// PaymentEvent is published after a payment state change is committed, and by
// the overdue sweep for installments that just became late. Consumers only
// log it; the database stays the source of truth.
type PaymentEvent struct {
	Kind        string    `json:"kind"`
	UserID      string    `json:"user_id"`
	ItemID      string    `json:"item_id,omitempty"`
	ItemType    string    `json:"item_type,omitempty"`
	Status      string    `json:"status,omitempty"`
	Month       string    `json:"month,omitempty"`
	Description string    `json:"description,omitempty"`
	AmountCents int64     `json:"amount_cents,omitempty"`
	Count       int       `json:"count,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// NewPaymentEvent creates an event of the given kind stamped with the current time.
func NewPaymentEvent(kind, userID string) *PaymentEvent {
	return &PaymentEvent{
		Kind:      kind,
		UserID:    userID,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *PaymentEvent) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// PaymentEventFromJSON creates a message from JSON bytes
func PaymentEventFromJSON(data []byte) (*PaymentEvent, error) {
	var msg PaymentEvent
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

