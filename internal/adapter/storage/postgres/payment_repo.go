package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"payment-node/internal/core/domain"
	"payment-node/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// PaymentRepo implements ports.PaymentRepository over the payments
// projection table.
type PaymentRepo struct {
	pool Pool
}

// NewPaymentRepo creates a new PaymentRepo.
func NewPaymentRepo(pool Pool) *PaymentRepo {
	return &PaymentRepo{pool: pool}
}

// Upsert writes the folded projection row within the ledger's transaction.
func (r *PaymentRepo) Upsert(ctx context.Context, tx pgx.Tx, p *domain.PaymentRecord) error {
	query := `INSERT INTO payments
		(payment_id, status, direction, amount_msat, fees_msat, failure_reason, terminal_sequence, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (payment_id) DO UPDATE SET
		status = EXCLUDED.status,
		amount_msat = EXCLUDED.amount_msat,
		fees_msat = EXCLUDED.fees_msat,
		failure_reason = EXCLUDED.failure_reason,
		terminal_sequence = EXCLUDED.terminal_sequence,
		updated_at = EXCLUDED.updated_at`

	_, err := tx.Exec(ctx, query,
		p.PaymentID, string(p.Status), string(p.Direction),
		p.AmountMsat, p.FeesMsat, p.FailureReason, p.TerminalSequence,
		p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert payment: %w", err)
	}
	return nil
}

// CreatePending inserts a pending record for an engine-accepted payment.
// A row that already exists (a terminal event raced ahead) is left alone.
func (r *PaymentRepo) CreatePending(ctx context.Context, p *domain.PaymentRecord) error {
	query := `INSERT INTO payments
		(payment_id, status, direction, amount_msat, fees_msat, failure_reason, terminal_sequence, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (payment_id) DO NOTHING`

	_, err := r.pool.Exec(ctx, query,
		p.PaymentID, string(p.Status), string(p.Direction),
		p.AmountMsat, p.FeesMsat, p.FailureReason, p.TerminalSequence,
		p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create pending payment: %w", err)
	}
	return nil
}

// GetByID fetches a payment record by id. Returns nil, nil when absent.
func (r *PaymentRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.PaymentRecord, error) {
	query := `SELECT payment_id, status, direction, amount_msat, fees_msat, failure_reason, terminal_sequence, created_at, updated_at
		FROM payments WHERE payment_id = $1`

	return scanPayment(r.pool.QueryRow(ctx, query, id))
}

// List fetches payment records with filtering and pagination, newest first.
func (r *PaymentRepo) List(ctx context.Context, params ports.PaymentListParams) ([]domain.PaymentRecord, int64, error) {
	var conditions []string
	var args []any
	argIdx := 1

	if params.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, string(*params.Status))
		argIdx++
	}
	if params.Direction != nil {
		conditions = append(conditions, fmt.Sprintf("direction = $%d", argIdx))
		args = append(args, string(*params.Direction))
		argIdx++
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM payments %s", where)
	var total int64
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count payments: %w", err)
	}

	offset := (params.Page - 1) * params.PageSize
	dataQuery := fmt.Sprintf(`SELECT payment_id, status, direction, amount_msat, fees_msat, failure_reason, terminal_sequence, created_at, updated_at
		FROM payments %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, where, argIdx, argIdx+1)
	args = append(args, params.PageSize, offset)

	rows, err := r.pool.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	var records []domain.PaymentRecord
	for rows.Next() {
		var p domain.PaymentRecord
		var status, direction string
		if err := rows.Scan(
			&p.PaymentID, &status, &direction, &p.AmountMsat, &p.FeesMsat,
			&p.FailureReason, &p.TerminalSequence, &p.CreatedAt, &p.UpdatedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("scan payment row: %w", err)
		}
		p.Status = domain.PaymentStatus(status)
		p.Direction = domain.PaymentDirection(direction)
		records = append(records, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate payment rows: %w", err)
	}
	return records, total, nil
}

func scanPayment(row pgx.Row) (*domain.PaymentRecord, error) {
	p := &domain.PaymentRecord{}
	var status, direction string
	err := row.Scan(
		&p.PaymentID, &status, &direction, &p.AmountMsat, &p.FeesMsat,
		&p.FailureReason, &p.TerminalSequence, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan payment: %w", err)
	}
	p.Status = domain.PaymentStatus(status)
	p.Direction = domain.PaymentDirection(direction)
	return p, nil
}
