package domain

import (
	"time"

	"github.com/google/uuid"
)

// PaymentStatus represents the lifecycle state of a payment.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusSucceeded PaymentStatus = "succeeded"
	PaymentStatusFailed    PaymentStatus = "failed"
)

// PaymentDirection distinguishes received from sent payments.
type PaymentDirection string

const (
	PaymentIncoming PaymentDirection = "incoming"
	PaymentOutgoing PaymentDirection = "outgoing"
)

// PaymentRecord is the mutable projection of a payment, derived by folding
// ledger events. TerminalSequence is the sequence of the event that settled
// the payment; nil while pending.
type PaymentRecord struct {
	PaymentID        uuid.UUID        `json:"payment_id"`
	Status           PaymentStatus    `json:"status"`
	Direction        PaymentDirection `json:"direction"`
	AmountMsat       int64            `json:"amount_msat"`
	FeesMsat         int64            `json:"fees_msat"`
	FailureReason    *string          `json:"failure_reason,omitempty"`
	TerminalSequence *int64           `json:"terminal_sequence,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// IsTerminal returns true if the payment is in a final state.
func (p *PaymentRecord) IsTerminal() bool {
	return p.Status == PaymentStatusSucceeded || p.Status == PaymentStatusFailed
}

// Invoice is the engine's response to a create-invoice command. The invoice
// itself lives in the engine; this is the slice the service layer surfaces.
type Invoice struct {
	PaymentID      uuid.UUID `json:"payment_id"`
	PaymentHash    string    `json:"payment_hash"`
	PaymentRequest string    `json:"payment_request"`
	AmountMsat     int64     `json:"amount_msat"`
	Description    string    `json:"description"`
	CreatedAt      time.Time `json:"created_at"`
}
