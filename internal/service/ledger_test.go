package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"payment-node/internal/core/domain"
	"payment-node/internal/core/ports"
	"payment-node/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTx satisfies pgx.Tx for repos that never touch the transaction itself.
type fakeTx struct{ pgx.Tx }

func (f *fakeTx) Rollback(_ context.Context) error { return nil }
func (f *fakeTx) Commit(_ context.Context) error   { return nil }

type fakeTransactor struct{}

func (f *fakeTransactor) Begin(_ context.Context) (pgx.Tx, error) { return &fakeTx{}, nil }

type fakeEventRepo struct {
	mu     sync.Mutex
	events []domain.Event
	insErr error
}

func (r *fakeEventRepo) Insert(_ context.Context, _ pgx.Tx, event *domain.Event) error {
	if r.insErr != nil {
		return r.insErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, *event)
	return nil
}

func (r *fakeEventRepo) Get(_ context.Context, sequence int64) (*domain.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.Sequence == sequence {
			ev := e
			return &ev, nil
		}
	}
	return nil, nil
}

func (r *fakeEventRepo) ListFrom(_ context.Context, fromSequence int64, limit int) ([]domain.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Event
	for _, e := range r.events {
		if e.Sequence >= fromSequence {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeEventRepo) LatestSequence(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var max int64
	for _, e := range r.events {
		if e.Sequence > max {
			max = e.Sequence
		}
	}
	return max, nil
}

type fakePaymentRepo struct {
	mu      sync.Mutex
	records map[uuid.UUID]domain.PaymentRecord
}

func newFakePaymentRepo() *fakePaymentRepo {
	return &fakePaymentRepo{records: make(map[uuid.UUID]domain.PaymentRecord)}
}

func (r *fakePaymentRepo) Upsert(_ context.Context, _ pgx.Tx, record *domain.PaymentRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[record.PaymentID] = *record
	return nil
}

func (r *fakePaymentRepo) CreatePending(_ context.Context, record *domain.PaymentRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.records[record.PaymentID]; exists {
		return nil
	}
	r.records[record.PaymentID] = *record
	return nil
}

func (r *fakePaymentRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.PaymentRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (r *fakePaymentRepo) List(_ context.Context, params ports.PaymentListParams) ([]domain.PaymentRecord, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.PaymentRecord
	for _, rec := range r.records {
		if params.Status != nil && rec.Status != *params.Status {
			continue
		}
		if params.Direction != nil && rec.Direction != *params.Direction {
			continue
		}
		out = append(out, rec)
	}
	return out, int64(len(out)), nil
}

func newTestLedger() (*LedgerService, *fakeEventRepo, *fakePaymentRepo) {
	eventRepo := &fakeEventRepo{}
	paymentRepo := newFakePaymentRepo()
	ledger := NewLedgerService(eventRepo, paymentRepo, &fakeTransactor{}, zerolog.Nop())
	return ledger, eventRepo, paymentRepo
}

func TestLedgerService_Append_AssignsSequences(t *testing.T) {
	ledger, _, _ := newTestLedger()
	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		event, err := ledger.Append(ctx, domain.EventChannelOpened, domain.ChannelOpenedPayload{
			ChannelID:   "chan-1",
			CapacitySat: 100000,
		})
		require.NoError(t, err)
		assert.Equal(t, i, event.Sequence)
		assert.Equal(t, domain.EventChannelOpened, event.Kind)
		assert.False(t, event.CreatedAt.IsZero())
	}
}

func TestLedgerService_Append_RejectsUnknownKind(t *testing.T) {
	ledger, _, _ := newTestLedger()

	_, err := ledger.Append(context.Background(), domain.EventKind("bogus"), nil)
	require.Error(t, err)

	var appErr *apperror.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "CMD_001", appErr.Code)
}

func TestLedgerService_Append_SeedsFromStorage(t *testing.T) {
	eventRepo := &fakeEventRepo{events: []domain.Event{
		{Sequence: 41, Kind: domain.EventChannelOpened, Payload: []byte(`{}`)},
	}}
	ledger := NewLedgerService(eventRepo, newFakePaymentRepo(), &fakeTransactor{}, zerolog.Nop())

	event, err := ledger.Append(context.Background(), domain.EventChannelClosed, domain.ChannelClosedPayload{
		ChannelID: "chan-1",
		Reason:    "mutual close",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(42), event.Sequence)
}

func TestLedgerService_Append_StorageFailureConsumesNoSequence(t *testing.T) {
	ledger, eventRepo, _ := newTestLedger()
	ctx := context.Background()

	_, err := ledger.Append(ctx, domain.EventChannelOpened, domain.ChannelOpenedPayload{ChannelID: "a"})
	require.NoError(t, err)

	eventRepo.insErr = errors.New("disk full")
	_, err = ledger.Append(ctx, domain.EventChannelOpened, domain.ChannelOpenedPayload{ChannelID: "b"})
	require.Error(t, err)

	var appErr *apperror.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "STORE_001", appErr.Code)

	eventRepo.insErr = nil
	event, err := ledger.Append(ctx, domain.EventChannelOpened, domain.ChannelOpenedPayload{ChannelID: "c"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), event.Sequence, "failed append must not consume a sequence")
}

func TestLedgerService_Fold_InvoicePaid(t *testing.T) {
	ledger, _, _ := newTestLedger()
	ctx := context.Background()
	paymentID := uuid.New()

	event, err := ledger.Append(ctx, domain.EventInvoicePaid, domain.InvoicePaidPayload{
		PaymentID:   paymentID,
		PaymentHash: "abcd",
		AmountMsat:  50000,
	})
	require.NoError(t, err)

	record, err := ledger.GetPayment(ctx, paymentID)
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, domain.PaymentStatusSucceeded, record.Status)
	assert.Equal(t, domain.PaymentIncoming, record.Direction)
	assert.Equal(t, int64(50000), record.AmountMsat)
	require.NotNil(t, record.TerminalSequence)
	assert.Equal(t, event.Sequence, *record.TerminalSequence)
}

func TestLedgerService_Fold_PaymentSentAfterPending(t *testing.T) {
	ledger, _, _ := newTestLedger()
	ctx := context.Background()
	paymentID := uuid.New()

	created := time.Now().UTC().Add(-time.Minute)
	require.NoError(t, ledger.RecordPendingPayment(ctx, &domain.PaymentRecord{
		PaymentID:  paymentID,
		Status:     domain.PaymentStatusPending,
		Direction:  domain.PaymentOutgoing,
		AmountMsat: 75000,
		CreatedAt:  created,
		UpdatedAt:  created,
	}))

	_, err := ledger.Append(ctx, domain.EventPaymentSent, domain.PaymentSentPayload{
		PaymentID:  paymentID,
		AmountMsat: 75000,
		FeesMsat:   75,
		Preimage:   "00ff",
	})
	require.NoError(t, err)

	record, err := ledger.GetPayment(ctx, paymentID)
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, domain.PaymentStatusSucceeded, record.Status)
	assert.Equal(t, int64(75), record.FeesMsat)
	assert.Equal(t, created, record.CreatedAt, "fold must keep the original creation time")
}

func TestLedgerService_Fold_PaymentFailedKeepsPendingAmount(t *testing.T) {
	ledger, _, _ := newTestLedger()
	ctx := context.Background()
	paymentID := uuid.New()

	require.NoError(t, ledger.RecordPendingPayment(ctx, &domain.PaymentRecord{
		PaymentID:  paymentID,
		Status:     domain.PaymentStatusPending,
		Direction:  domain.PaymentOutgoing,
		AmountMsat: 30000,
		CreatedAt:  time.Now().UTC(),
		UpdatedAt:  time.Now().UTC(),
	}))

	_, err := ledger.Append(ctx, domain.EventPaymentFailed, domain.PaymentFailedPayload{
		PaymentID: paymentID,
		Reason:    "no route",
	})
	require.NoError(t, err)

	record, err := ledger.GetPayment(ctx, paymentID)
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, domain.PaymentStatusFailed, record.Status)
	assert.Equal(t, int64(30000), record.AmountMsat)
	require.NotNil(t, record.FailureReason)
	assert.Equal(t, "no route", *record.FailureReason)
}

func TestLedgerService_Fold_ChannelEventsSkipProjection(t *testing.T) {
	ledger, _, paymentRepo := newTestLedger()

	_, err := ledger.Append(context.Background(), domain.EventChannelOpened, domain.ChannelOpenedPayload{
		ChannelID: "chan-2",
	})
	require.NoError(t, err)
	assert.Empty(t, paymentRepo.records)
}

func TestLedgerService_ConcurrentAppends_GapFree(t *testing.T) {
	ledger, eventRepo, _ := newTestLedger()
	ctx := context.Background()

	const writers = 20
	const perWriter = 10

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				_, err := ledger.Append(ctx, domain.EventChannelOpened, domain.ChannelOpenedPayload{
					ChannelID: "chan",
				})
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	events, err := eventRepo.ListFrom(ctx, 1, 0)
	require.NoError(t, err)
	require.Len(t, events, writers*perWriter)
	for i, e := range events {
		assert.Equal(t, int64(i+1), e.Sequence, "sequences must be gap-free and strictly increasing")
	}
}

func TestLedgerService_ReadFrom(t *testing.T) {
	ledger, _, _ := newTestLedger()
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_, err := ledger.Append(ctx, domain.EventChannelOpened, domain.ChannelOpenedPayload{ChannelID: "c"})
		require.NoError(t, err)
	}

	events, err := ledger.ReadFrom(ctx, 4)
	require.NoError(t, err)
	require.Len(t, events, 7)
	assert.Equal(t, int64(4), events[0].Sequence)
	assert.Equal(t, int64(10), events[len(events)-1].Sequence)

	all, err := ledger.ReadFrom(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 10)

	none, err := ledger.ReadFrom(ctx, 11)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestLedgerService_ReadRange(t *testing.T) {
	ledger, _, _ := newTestLedger()
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_, err := ledger.Append(ctx, domain.EventChannelOpened, domain.ChannelOpenedPayload{ChannelID: "c"})
		require.NoError(t, err)
	}

	page, err := ledger.ReadRange(ctx, 3, 4)
	require.NoError(t, err)
	require.Len(t, page, 4)
	assert.Equal(t, int64(3), page[0].Sequence)
	assert.Equal(t, int64(6), page[len(page)-1].Sequence)

	tail, err := ledger.ReadRange(ctx, 9, 100)
	require.NoError(t, err)
	assert.Len(t, tail, 2)

	unbounded, err := ledger.ReadRange(ctx, 1, 0)
	require.NoError(t, err)
	assert.Len(t, unbounded, 10)
}
