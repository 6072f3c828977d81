package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventKind identifies the type of a ledger event.
type EventKind string

const (
	EventInvoicePaid   EventKind = "invoice_paid"
	EventPaymentSent   EventKind = "payment_sent"
	EventPaymentFailed EventKind = "payment_failed"
	EventChannelOpened EventKind = "channel_opened"
	EventChannelClosed EventKind = "channel_closed"
)

// AllEventKinds lists every valid kind, in no particular order.
var AllEventKinds = []EventKind{
	EventInvoicePaid,
	EventPaymentSent,
	EventPaymentFailed,
	EventChannelOpened,
	EventChannelClosed,
}

// Valid reports whether k is a known event kind.
func (k EventKind) Valid() bool {
	switch k {
	case EventInvoicePaid, EventPaymentSent, EventPaymentFailed, EventChannelOpened, EventChannelClosed:
		return true
	}
	return false
}

// Event is an immutable, sequenced fact about payment/channel state change.
// Sequence is globally unique and strictly increasing; it is assigned at
// persistence time and never reused or reordered.
type Event struct {
	Sequence  int64           `json:"sequence"`
	Kind      EventKind       `json:"kind"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// InvoicePaidPayload is the payload of an invoice_paid event.
type InvoicePaidPayload struct {
	PaymentID   uuid.UUID `json:"payment_id"`
	PaymentHash string    `json:"payment_hash"`
	AmountMsat  int64     `json:"amount_msat"`
}

// PaymentSentPayload is the payload of a payment_sent event.
type PaymentSentPayload struct {
	PaymentID   uuid.UUID `json:"payment_id"`
	PaymentHash string    `json:"payment_hash"`
	AmountMsat  int64     `json:"amount_msat"`
	FeesMsat    int64     `json:"fees_msat"`
	Preimage    string    `json:"preimage"`
}

// PaymentFailedPayload is the payload of a payment_failed event.
type PaymentFailedPayload struct {
	PaymentID uuid.UUID `json:"payment_id"`
	Reason    string    `json:"reason"`
}

// ChannelOpenedPayload is the payload of a channel_opened event.
type ChannelOpenedPayload struct {
	ChannelID   string `json:"channel_id"`
	CapacitySat int64  `json:"capacity_sat"`
}

// ChannelClosedPayload is the payload of a channel_closed event.
type ChannelClosedPayload struct {
	ChannelID string `json:"channel_id"`
	Reason    string `json:"reason"`
}

// IsPaymentTerminal reports whether the event settles a payment one way or
// the other.
func (e *Event) IsPaymentTerminal() bool {
	switch e.Kind {
	case EventInvoicePaid, EventPaymentSent, EventPaymentFailed:
		return true
	}
	return false
}

// PaymentID extracts the payment identifier from payment-related payloads.
// Returns uuid.Nil for channel events.
func (e *Event) PaymentID() uuid.UUID {
	switch e.Kind {
	case EventInvoicePaid:
		var p InvoicePaidPayload
		if json.Unmarshal(e.Payload, &p) == nil {
			return p.PaymentID
		}
	case EventPaymentSent:
		var p PaymentSentPayload
		if json.Unmarshal(e.Payload, &p) == nil {
			return p.PaymentID
		}
	case EventPaymentFailed:
		var p PaymentFailedPayload
		if json.Unmarshal(e.Payload, &p) == nil {
			return p.PaymentID
		}
	}
	return uuid.Nil
}
