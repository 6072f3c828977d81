package ports

import (
	"context"
	"time"

	"payment-node/internal/core/domain"

	"github.com/google/uuid"
)

// LedgerStore is the single source of truth for events and derived payment
// state. Append is the only sequence-assignment point; concurrent appends are
// serialized so the sequence order matches commit order.
type LedgerStore interface {
	// Append persists the event durably and folds it into the payment
	// projection in the same transaction. The returned event carries the
	// assigned sequence. On error nothing was recorded.
	Append(ctx context.Context, kind domain.EventKind, payload any) (domain.Event, error)
	// ReadFrom returns all events with sequence >= fromSequence in ascending
	// order; a finite snapshot at call time, not a live stream.
	ReadFrom(ctx context.Context, fromSequence int64) ([]domain.Event, error)
	// ReadRange is ReadFrom bounded to at most limit events, for callers that
	// page rather than catch up.
	ReadRange(ctx context.Context, fromSequence int64, limit int) ([]domain.Event, error)
	GetPayment(ctx context.Context, id uuid.UUID) (*domain.PaymentRecord, error)
	ListPayments(ctx context.Context, params PaymentListParams) ([]domain.PaymentRecord, int64, error)
	// RecordPendingPayment registers an engine-accepted outgoing payment so
	// callers observe it as pending before its terminal event arrives.
	RecordPendingPayment(ctx context.Context, record *domain.PaymentRecord) error
}

// EventPublisher accepts engine-emitted events for durable recording and
// distribution. engineEventID is the engine's own identifier for the
// notification, used to deduplicate re-notifies; empty disables dedup.
type EventPublisher interface {
	Publish(ctx context.Context, kind domain.EventKind, payload any, engineEventID string) (*domain.Event, error)
}

// EventConsumer receives successfully persisted events, in sequence order.
// Implementations must not block publication.
type EventConsumer interface {
	OnPublish(event domain.Event)
}

// PaymentEngine is the external payment-protocol engine, consumed as opaque
// calls. Routing, fees, channel cryptography all live behind it.
type PaymentEngine interface {
	// CreateInvoice asks the engine for a new invoice. Synchronous; the
	// corresponding invoice_paid event arrives later, if ever.
	CreateInvoice(ctx context.Context, amountMsat int64, description string) (*domain.Invoice, error)
	// SubmitPayment hands a payment request to the engine. Returns the
	// engine-assigned payment id; settlement arrives as a payment_sent or
	// payment_failed event.
	SubmitPayment(ctx context.Context, paymentRequest string, amountMsat *int64) (uuid.UUID, error)
}

// CommandService is the command router: validates parameters, forwards to the
// engine, and correlates state-changing commands with their terminal events.
type CommandService interface {
	CreateInvoice(ctx context.Context, params CreateInvoiceParams) (*domain.Invoice, error)
	PayInvoice(ctx context.Context, params PayInvoiceParams) (*domain.PaymentRecord, error)
	GetPayment(ctx context.Context, id uuid.UUID) (*domain.PaymentRecord, error)
	ListPayments(ctx context.Context, params PaymentListParams) ([]domain.PaymentRecord, int64, error)
}

// CreateInvoiceParams holds validated input for invoice creation.
type CreateInvoiceParams struct {
	AmountMsat  int64
	Description string
}

// PayInvoiceParams holds validated input for paying an invoice.
// AmountMsat overrides the invoice amount (required for zero-amount invoices).
type PayInvoiceParams struct {
	PaymentRequest string
	AmountMsat     *int64
}

// AuthService exchanges the node password for an API token.
type AuthService interface {
	Login(ctx context.Context, password string) (string, time.Time, error)
}

// TokenService handles JWT token operations.
type TokenService interface {
	Generate(subject string) (string, time.Time, error)
	Validate(tokenString string) (*TokenClaims, error)
}

// TokenClaims holds the parsed JWT claims.
type TokenClaims struct {
	Subject string
}

// SignatureService handles HMAC-SHA256 signing and verification of webhook
// payloads.
type SignatureService interface {
	Sign(secretKey string, payload string) string
	Verify(secretKey string, payload string, signature string) bool
}

// HashService handles password hashing (Argon2id).
type HashService interface {
	Hash(password string) (string, error)
	Verify(password string, hash string) (bool, error)
}

// IdempotencyCache is a fast-path duplicate check used to absorb engine
// re-notifications of the same event.
type IdempotencyCache interface {
	Get(ctx context.Context, key string) ([]byte, error) // Returns cached value or nil
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}
