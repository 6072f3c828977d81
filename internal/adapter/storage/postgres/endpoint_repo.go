package postgres

import (
	"context"
	"errors"
	"fmt"

	"payment-node/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// EndpointRepo implements ports.WebhookEndpointRepository.
type EndpointRepo struct {
	pool Pool
}

// NewEndpointRepo creates a new EndpointRepo.
func NewEndpointRepo(pool Pool) *EndpointRepo {
	return &EndpointRepo{pool: pool}
}

func (r *EndpointRepo) Create(ctx context.Context, ep *domain.WebhookEndpoint) error {
	query := `INSERT INTO webhook_endpoints (id, url, secret, subscribed_kinds, enabled, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := r.pool.Exec(ctx, query,
		ep.ID, ep.URL, ep.Secret, kindsToStrings(ep.SubscribedKinds), ep.Enabled, ep.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert webhook endpoint: %w", err)
	}
	return nil
}

func (r *EndpointRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.WebhookEndpoint, error) {
	query := `SELECT id, url, secret, subscribed_kinds, enabled, created_at
		FROM webhook_endpoints WHERE id = $1`

	return scanEndpoint(r.pool.QueryRow(ctx, query, id))
}

func (r *EndpointRepo) GetByURL(ctx context.Context, url string) (*domain.WebhookEndpoint, error) {
	query := `SELECT id, url, secret, subscribed_kinds, enabled, created_at
		FROM webhook_endpoints WHERE url = $1`

	return scanEndpoint(r.pool.QueryRow(ctx, query, url))
}

func (r *EndpointRepo) List(ctx context.Context) ([]domain.WebhookEndpoint, error) {
	return r.list(ctx, `SELECT id, url, secret, subscribed_kinds, enabled, created_at
		FROM webhook_endpoints ORDER BY created_at ASC`)
}

func (r *EndpointRepo) ListEnabled(ctx context.Context) ([]domain.WebhookEndpoint, error) {
	return r.list(ctx, `SELECT id, url, secret, subscribed_kinds, enabled, created_at
		FROM webhook_endpoints WHERE enabled ORDER BY created_at ASC`)
}

func (r *EndpointRepo) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM webhook_endpoints WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete webhook endpoint: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("webhook endpoint not found: %s", id)
	}
	return nil
}

func (r *EndpointRepo) list(ctx context.Context, query string) ([]domain.WebhookEndpoint, error) {
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list webhook endpoints: %w", err)
	}
	defer rows.Close()

	var endpoints []domain.WebhookEndpoint
	for rows.Next() {
		var ep domain.WebhookEndpoint
		var kinds []string
		if err := rows.Scan(&ep.ID, &ep.URL, &ep.Secret, &kinds, &ep.Enabled, &ep.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan webhook endpoint row: %w", err)
		}
		ep.SubscribedKinds = stringsToKinds(kinds)
		endpoints = append(endpoints, ep)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate webhook endpoint rows: %w", err)
	}
	return endpoints, nil
}

func scanEndpoint(row pgx.Row) (*domain.WebhookEndpoint, error) {
	ep := &domain.WebhookEndpoint{}
	var kinds []string
	err := row.Scan(&ep.ID, &ep.URL, &ep.Secret, &kinds, &ep.Enabled, &ep.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan webhook endpoint: %w", err)
	}
	ep.SubscribedKinds = stringsToKinds(kinds)
	return ep, nil
}

func kindsToStrings(kinds []domain.EventKind) []string {
	out := make([]string, len(kinds))
	for i, k := range kinds {
		out[i] = string(k)
	}
	return out
}

func stringsToKinds(ss []string) []domain.EventKind {
	if len(ss) == 0 {
		return nil
	}
	out := make([]domain.EventKind, len(ss))
	for i, s := range ss {
		out[i] = domain.EventKind(s)
	}
	return out
}
