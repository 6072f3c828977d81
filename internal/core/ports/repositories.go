package ports

import (
	"context"

	"payment-node/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// EventRepository defines persistence for the append-only event table.
// Insert runs inside the ledger's single-writer transaction; the ledger owns
// sequence assignment and passes it in on the event.
type EventRepository interface {
	Insert(ctx context.Context, tx pgx.Tx, event *domain.Event) error
	Get(ctx context.Context, sequence int64) (*domain.Event, error)
	// ListFrom returns events with sequence >= fromSequence in ascending
	// order, at most limit rows (limit <= 0 means no limit).
	ListFrom(ctx context.Context, fromSequence int64, limit int) ([]domain.Event, error)
	LatestSequence(ctx context.Context) (int64, error)
}

// PaymentRepository defines persistence for the payment projection.
// Upsert runs inside the ledger transaction that appends the folded event.
type PaymentRepository interface {
	Upsert(ctx context.Context, tx pgx.Tx, record *domain.PaymentRecord) error
	// CreatePending inserts a pending record outside any event fold; used
	// when a pay command is accepted by the engine. No-op if the record
	// already reached a terminal state.
	CreatePending(ctx context.Context, record *domain.PaymentRecord) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.PaymentRecord, error)
	List(ctx context.Context, params PaymentListParams) ([]domain.PaymentRecord, int64, error)
}

// PaymentListParams holds filter + pagination for listing payments.
type PaymentListParams struct {
	Status    *domain.PaymentStatus
	Direction *domain.PaymentDirection
	Page      int
	PageSize  int
}

// WebhookEndpointRepository defines persistence for registered webhook
// endpoints. Read-mostly; the dispatcher reads, the admin API writes.
type WebhookEndpointRepository interface {
	Create(ctx context.Context, endpoint *domain.WebhookEndpoint) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.WebhookEndpoint, error)
	GetByURL(ctx context.Context, url string) (*domain.WebhookEndpoint, error)
	List(ctx context.Context) ([]domain.WebhookEndpoint, error)
	ListEnabled(ctx context.Context) ([]domain.WebhookEndpoint, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// DeliveryAttemptRepository defines persistence for webhook delivery state.
// One logical row per (endpoint, event sequence); only the dispatcher
// mutates rows.
type DeliveryAttemptRepository interface {
	Create(ctx context.Context, attempt *domain.DeliveryAttempt) error
	Update(ctx context.Context, attempt *domain.DeliveryAttempt) error
	// NextPending returns the lowest-sequence pending attempt for the
	// endpoint, or nil if none. Per-endpoint delivery order derives from
	// this: sequence N+1 is never returned while N is still pending.
	NextPending(ctx context.Context, endpointID uuid.UUID) (*domain.DeliveryAttempt, error)
	// PendingEndpoints returns the ids of endpoints that have at least one
	// pending attempt. Used to resume delivery after a restart.
	PendingEndpoints(ctx context.Context) ([]uuid.UUID, error)
}

// DBTransactor provides database transaction management.
type DBTransactor interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}
