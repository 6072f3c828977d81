package postgres

import (
	"context"
	"errors"
	"fmt"

	"payment-node/internal/core/domain"

	"github.com/jackc/pgx/v5"
)

// EventRepo implements ports.EventRepository over the append-only events
// table. Rows are never updated or deleted.
type EventRepo struct {
	pool Pool
}

// NewEventRepo creates a new EventRepo.
func NewEventRepo(pool Pool) *EventRepo {
	return &EventRepo{pool: pool}
}

// Insert writes an event within the ledger's transaction. The sequence is
// assigned by the ledger before the call.
func (r *EventRepo) Insert(ctx context.Context, tx pgx.Tx, event *domain.Event) error {
	query := `INSERT INTO events (sequence, kind, payload, created_at) VALUES ($1, $2, $3, $4)`

	_, err := tx.Exec(ctx, query, event.Sequence, string(event.Kind), event.Payload, event.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// Get fetches a single event by sequence.
func (r *EventRepo) Get(ctx context.Context, sequence int64) (*domain.Event, error) {
	query := `SELECT sequence, kind, payload, created_at FROM events WHERE sequence = $1`

	e := &domain.Event{}
	var kind string
	err := r.pool.QueryRow(ctx, query, sequence).Scan(&e.Sequence, &kind, &e.Payload, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	e.Kind = domain.EventKind(kind)
	return e, nil
}

// ListFrom returns events with sequence >= fromSequence in ascending order.
func (r *EventRepo) ListFrom(ctx context.Context, fromSequence int64, limit int) ([]domain.Event, error) {
	query := `SELECT sequence, kind, payload, created_at FROM events WHERE sequence >= $1 ORDER BY sequence ASC`
	args := []any{fromSequence}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		var e domain.Event
		var kind string
		if err := rows.Scan(&e.Sequence, &kind, &e.Payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event row: %w", err)
		}
		e.Kind = domain.EventKind(kind)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate event rows: %w", err)
	}
	return events, nil
}

// LatestSequence returns the highest assigned sequence, or 0 if the table is
// empty. The ledger loads this once at startup to seed its counter.
func (r *EventRepo) LatestSequence(ctx context.Context) (int64, error) {
	query := `SELECT COALESCE(MAX(sequence), 0) FROM events`

	var seq int64
	if err := r.pool.QueryRow(ctx, query).Scan(&seq); err != nil {
		return 0, fmt.Errorf("latest sequence: %w", err)
	}
	return seq, nil
}
