package integration

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"payment-node/internal/core/domain"
	"payment-node/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// --- In-Memory Event Repo ---

type inMemoryEventRepo struct {
	mu     sync.RWMutex
	events map[int64]domain.Event
}

func newInMemoryEventRepo() *inMemoryEventRepo {
	return &inMemoryEventRepo{events: make(map[int64]domain.Event)}
}

func (r *inMemoryEventRepo) Insert(ctx context.Context, tx pgx.Tx, event *domain.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.events[event.Sequence]; exists {
		return fmt.Errorf("duplicate sequence %d", event.Sequence)
	}
	r.events[event.Sequence] = *event
	return nil
}

func (r *inMemoryEventRepo) Get(ctx context.Context, sequence int64) (*domain.Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.events[sequence]; ok {
		return &e, nil
	}
	return nil, nil
}

func (r *inMemoryEventRepo) ListFrom(ctx context.Context, fromSequence int64, limit int) ([]domain.Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.Event
	for seq, e := range r.events {
		if seq >= fromSequence {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *inMemoryEventRepo) LatestSequence(ctx context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var max int64
	for seq := range r.events {
		if seq > max {
			max = seq
		}
	}
	return max, nil
}

// --- In-Memory Payment Repo ---

type inMemoryPaymentRepo struct {
	mu      sync.RWMutex
	records map[uuid.UUID]domain.PaymentRecord
}

func newInMemoryPaymentRepo() *inMemoryPaymentRepo {
	return &inMemoryPaymentRepo{records: make(map[uuid.UUID]domain.PaymentRecord)}
}

func (r *inMemoryPaymentRepo) Upsert(ctx context.Context, tx pgx.Tx, record *domain.PaymentRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[record.PaymentID] = *record
	return nil
}

func (r *inMemoryPaymentRepo) CreatePending(ctx context.Context, record *domain.PaymentRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.records[record.PaymentID]; exists {
		return nil
	}
	r.records[record.PaymentID] = *record
	return nil
}

func (r *inMemoryPaymentRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.PaymentRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if rec, ok := r.records[id]; ok {
		return &rec, nil
	}
	return nil, nil
}

func (r *inMemoryPaymentRepo) List(ctx context.Context, params ports.PaymentListParams) ([]domain.PaymentRecord, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var filtered []domain.PaymentRecord
	for _, rec := range r.records {
		if params.Status != nil && rec.Status != *params.Status {
			continue
		}
		if params.Direction != nil && rec.Direction != *params.Direction {
			continue
		}
		filtered = append(filtered, rec)
	}
	sort.Slice(filtered, func(i, j int) bool {
		return filtered[i].CreatedAt.After(filtered[j].CreatedAt)
	})

	total := int64(len(filtered))
	start := (params.Page - 1) * params.PageSize
	if start >= len(filtered) {
		return nil, total, nil
	}
	end := start + params.PageSize
	if end > len(filtered) {
		end = len(filtered)
	}
	return filtered[start:end], total, nil
}

// --- In-Memory Webhook Endpoint Repo ---

type inMemoryEndpointRepo struct {
	mu        sync.RWMutex
	endpoints map[uuid.UUID]domain.WebhookEndpoint
}

func newInMemoryEndpointRepo() *inMemoryEndpointRepo {
	return &inMemoryEndpointRepo{endpoints: make(map[uuid.UUID]domain.WebhookEndpoint)}
}

func (r *inMemoryEndpointRepo) Create(ctx context.Context, ep *domain.WebhookEndpoint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.endpoints {
		if existing.URL == ep.URL {
			return fmt.Errorf("url already registered")
		}
	}
	r.endpoints[ep.ID] = *ep
	return nil
}

func (r *inMemoryEndpointRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.WebhookEndpoint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if ep, ok := r.endpoints[id]; ok {
		return &ep, nil
	}
	return nil, nil
}

func (r *inMemoryEndpointRepo) GetByURL(ctx context.Context, url string) (*domain.WebhookEndpoint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, ep := range r.endpoints {
		if ep.URL == url {
			e := ep
			return &e, nil
		}
	}
	return nil, nil
}

func (r *inMemoryEndpointRepo) List(ctx context.Context) ([]domain.WebhookEndpoint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.WebhookEndpoint, 0, len(r.endpoints))
	for _, ep := range r.endpoints {
		out = append(out, ep)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *inMemoryEndpointRepo) ListEnabled(ctx context.Context) ([]domain.WebhookEndpoint, error) {
	all, _ := r.List(ctx)
	out := make([]domain.WebhookEndpoint, 0, len(all))
	for _, ep := range all {
		if ep.Enabled {
			out = append(out, ep)
		}
	}
	return out, nil
}

func (r *inMemoryEndpointRepo) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.endpoints, id)
	return nil
}

// --- In-Memory Delivery Attempt Repo ---

type attemptKey struct {
	endpoint uuid.UUID
	sequence int64
}

type inMemoryAttemptRepo struct {
	mu       sync.RWMutex
	attempts map[attemptKey]domain.DeliveryAttempt
}

func newInMemoryAttemptRepo() *inMemoryAttemptRepo {
	return &inMemoryAttemptRepo{attempts: make(map[attemptKey]domain.DeliveryAttempt)}
}

func (r *inMemoryAttemptRepo) Create(ctx context.Context, attempt *domain.DeliveryAttempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := attemptKey{attempt.EndpointID, attempt.EventSequence}
	if _, exists := r.attempts[key]; exists {
		return nil
	}
	r.attempts[key] = *attempt
	return nil
}

func (r *inMemoryAttemptRepo) Update(ctx context.Context, attempt *domain.DeliveryAttempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := attemptKey{attempt.EndpointID, attempt.EventSequence}
	if _, exists := r.attempts[key]; !exists {
		return fmt.Errorf("attempt not found")
	}
	r.attempts[key] = *attempt
	return nil
}

func (r *inMemoryAttemptRepo) NextPending(ctx context.Context, endpointID uuid.UUID) (*domain.DeliveryAttempt, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var best *domain.DeliveryAttempt
	for key, a := range r.attempts {
		if key.endpoint != endpointID || a.Status != domain.DeliveryStatusPending {
			continue
		}
		if best == nil || a.EventSequence < best.EventSequence {
			copied := a
			best = &copied
		}
	}
	return best, nil
}

func (r *inMemoryAttemptRepo) PendingEndpoints(ctx context.Context) ([]uuid.UUID, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[uuid.UUID]bool)
	var out []uuid.UUID
	for key, a := range r.attempts {
		if a.Status == domain.DeliveryStatusPending && !seen[key.endpoint] {
			seen[key.endpoint] = true
			out = append(out, key.endpoint)
		}
	}
	return out, nil
}

// --- In-Memory Transactor (no-op tx) ---

type inMemoryTransactor struct{}

func newInMemoryTransactor() *inMemoryTransactor {
	return &inMemoryTransactor{}
}

func (t *inMemoryTransactor) Begin(ctx context.Context) (pgx.Tx, error) {
	return &noopTx{}, nil
}

// noopTx is a no-op pgx.Tx implementation for in-memory testing.
type noopTx struct{}

func (t *noopTx) Begin(ctx context.Context) (pgx.Tx, error) { return t, nil }
func (t *noopTx) Commit(ctx context.Context) error          { return nil }
func (t *noopTx) Rollback(ctx context.Context) error        { return nil }
func (t *noopTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (t *noopTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }
func (t *noopTx) LargeObjects() pgx.LargeObjects                               { return pgx.LargeObjects{} }
func (t *noopTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (t *noopTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag(""), nil
}
func (t *noopTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}
func (t *noopTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return nil
}
func (t *noopTx) Conn() *pgx.Conn { return nil }
