package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"payment-node/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// AttemptRepo implements ports.DeliveryAttemptRepository. The table holds one
// row per (endpoint, event sequence) pair; the dispatcher is its only writer.
type AttemptRepo struct {
	pool Pool
}

// NewAttemptRepo creates a new AttemptRepo.
func NewAttemptRepo(pool Pool) *AttemptRepo {
	return &AttemptRepo{pool: pool}
}

func (r *AttemptRepo) Create(ctx context.Context, a *domain.DeliveryAttempt) error {
	query := `INSERT INTO webhook_delivery_attempts
		(endpoint_id, event_sequence, delivery_id, attempt_count, next_attempt_at, status, last_error, last_http_status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (endpoint_id, event_sequence) DO NOTHING`

	_, err := r.pool.Exec(ctx, query,
		a.EndpointID, a.EventSequence, a.DeliveryID, a.AttemptCount,
		a.NextAttemptAt, string(a.Status), a.LastError, a.LastHTTPStatus,
		a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert delivery attempt: %w", err)
	}
	return nil
}

func (r *AttemptRepo) Update(ctx context.Context, a *domain.DeliveryAttempt) error {
	a.UpdatedAt = time.Now()
	query := `UPDATE webhook_delivery_attempts
		SET attempt_count = $1, next_attempt_at = $2, status = $3, last_error = $4, last_http_status = $5, updated_at = $6
		WHERE endpoint_id = $7 AND event_sequence = $8`

	tag, err := r.pool.Exec(ctx, query,
		a.AttemptCount, a.NextAttemptAt, string(a.Status), a.LastError, a.LastHTTPStatus,
		a.UpdatedAt, a.EndpointID, a.EventSequence,
	)
	if err != nil {
		return fmt.Errorf("update delivery attempt: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delivery attempt not found: %s/%d", a.EndpointID, a.EventSequence)
	}
	return nil
}

// NextPending returns the lowest-sequence pending attempt for the endpoint.
// The ascending-sequence pick is what enforces per-endpoint delivery order.
func (r *AttemptRepo) NextPending(ctx context.Context, endpointID uuid.UUID) (*domain.DeliveryAttempt, error) {
	query := `SELECT endpoint_id, event_sequence, delivery_id, attempt_count, next_attempt_at, status, last_error, last_http_status, created_at, updated_at
		FROM webhook_delivery_attempts
		WHERE endpoint_id = $1 AND status = 'pending'
		ORDER BY event_sequence ASC
		LIMIT 1`

	a := &domain.DeliveryAttempt{}
	var status string
	err := r.pool.QueryRow(ctx, query, endpointID).Scan(
		&a.EndpointID, &a.EventSequence, &a.DeliveryID, &a.AttemptCount,
		&a.NextAttemptAt, &status, &a.LastError, &a.LastHTTPStatus,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("next pending attempt: %w", err)
	}
	a.Status = domain.DeliveryStatus(status)
	return a, nil
}

// PendingEndpoints lists endpoints with unfinished delivery work, used to
// resume per-endpoint streams after a daemon restart.
func (r *AttemptRepo) PendingEndpoints(ctx context.Context) ([]uuid.UUID, error) {
	query := `SELECT DISTINCT endpoint_id FROM webhook_delivery_attempts WHERE status = 'pending'`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("pending endpoints: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan pending endpoint: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending endpoints: %w", err)
	}
	return ids, nil
}
