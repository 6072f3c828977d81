package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"payment-node/internal/core/domain"
	"payment-node/internal/core/ports"
	"payment-node/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// readBatchSize bounds each catch-up query. ReadFrom pages through the table
// so a subscriber resuming from sequence 1 cannot pull the whole ledger into
// memory in one query.
const readBatchSize = 500

// LedgerService implements ports.LedgerStore. All appends funnel through a
// single mutex so sequence assignment order matches commit order; readers
// never take the lock.
type LedgerService struct {
	eventRepo   ports.EventRepository
	paymentRepo ports.PaymentRepository
	transactor  ports.DBTransactor
	log         zerolog.Logger

	mu      sync.Mutex
	lastSeq int64
	seeded  bool
}

// NewLedgerService creates a new LedgerService. The sequence counter is
// seeded lazily from storage on first append.
func NewLedgerService(
	eventRepo ports.EventRepository,
	paymentRepo ports.PaymentRepository,
	transactor ports.DBTransactor,
	log zerolog.Logger,
) *LedgerService {
	return &LedgerService{
		eventRepo:   eventRepo,
		paymentRepo: paymentRepo,
		transactor:  transactor,
		log:         log,
	}
}

// Append assigns the next sequence, persists the event and folds it into the
// payment projection in one transaction. On any error nothing is recorded and
// the sequence is not consumed.
func (s *LedgerService) Append(ctx context.Context, kind domain.EventKind, payload any) (domain.Event, error) {
	if !kind.Valid() {
		return domain.Event{}, apperror.ErrInvalidArgument(fmt.Sprintf("unknown event kind %q", kind))
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return domain.Event{}, apperror.ErrInvalidArgument(fmt.Sprintf("unencodable payload: %v", err))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.seeded {
		latest, err := s.eventRepo.LatestSequence(ctx)
		if err != nil {
			return domain.Event{}, apperror.ErrStorage(fmt.Errorf("seed sequence counter: %w", err))
		}
		s.lastSeq = latest
		s.seeded = true
	}

	event := domain.Event{
		Sequence:  s.lastSeq + 1,
		Kind:      kind,
		Payload:   raw,
		CreatedAt: time.Now().UTC(),
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return domain.Event{}, apperror.ErrStorage(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	if err := s.eventRepo.Insert(ctx, dbTx, &event); err != nil {
		return domain.Event{}, apperror.ErrStorage(err)
	}

	if err := s.fold(ctx, dbTx, &event); err != nil {
		return domain.Event{}, err
	}

	if err := dbTx.Commit(ctx); err != nil {
		return domain.Event{}, apperror.ErrStorage(fmt.Errorf("commit: %w", err))
	}

	s.lastSeq = event.Sequence

	s.log.Debug().
		Int64("sequence", event.Sequence).
		Str("kind", string(event.Kind)).
		Msg("event appended")

	return event, nil
}

// fold applies the event to the payment projection inside the append
// transaction. Channel events carry no projection state and fold to nothing.
func (s *LedgerService) fold(ctx context.Context, dbTx pgx.Tx, event *domain.Event) error {
	if !event.IsPaymentTerminal() {
		return nil
	}

	record, err := s.projectTerminal(ctx, event)
	if err != nil {
		return err
	}
	if record == nil {
		return nil
	}

	if err := s.paymentRepo.Upsert(ctx, dbTx, record); err != nil {
		return apperror.ErrStorage(err)
	}
	return nil
}

// projectTerminal derives the projection row implied by a terminal payment
// event. The existing row, if any, supplies the original creation time and
// any fields the event payload does not carry.
func (s *LedgerService) projectTerminal(ctx context.Context, event *domain.Event) (*domain.PaymentRecord, error) {
	paymentID := event.PaymentID()
	if paymentID == uuid.Nil {
		s.log.Warn().
			Int64("sequence", event.Sequence).
			Str("kind", string(event.Kind)).
			Msg("terminal event without payment id, projection skipped")
		return nil, nil
	}

	existing, err := s.paymentRepo.GetByID(ctx, paymentID)
	if err != nil {
		return nil, apperror.ErrStorage(err)
	}

	now := event.CreatedAt
	record := &domain.PaymentRecord{
		PaymentID: paymentID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if existing != nil {
		record.CreatedAt = existing.CreatedAt
		record.AmountMsat = existing.AmountMsat
		record.Direction = existing.Direction
	}
	seq := event.Sequence
	record.TerminalSequence = &seq

	switch event.Kind {
	case domain.EventInvoicePaid:
		var p domain.InvoicePaidPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			return nil, apperror.ErrInvalidArgument(fmt.Sprintf("malformed invoice_paid payload: %v", err))
		}
		record.Status = domain.PaymentStatusSucceeded
		record.Direction = domain.PaymentIncoming
		record.AmountMsat = p.AmountMsat

	case domain.EventPaymentSent:
		var p domain.PaymentSentPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			return nil, apperror.ErrInvalidArgument(fmt.Sprintf("malformed payment_sent payload: %v", err))
		}
		record.Status = domain.PaymentStatusSucceeded
		record.Direction = domain.PaymentOutgoing
		record.AmountMsat = p.AmountMsat
		record.FeesMsat = p.FeesMsat

	case domain.EventPaymentFailed:
		var p domain.PaymentFailedPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			return nil, apperror.ErrInvalidArgument(fmt.Sprintf("malformed payment_failed payload: %v", err))
		}
		record.Status = domain.PaymentStatusFailed
		if record.Direction == "" {
			record.Direction = domain.PaymentOutgoing
		}
		reason := p.Reason
		record.FailureReason = &reason
	}

	return record, nil
}

// ReadFrom returns all events with sequence >= fromSequence, paging through
// storage in batches. The result is a snapshot of what existed at call time.
func (s *LedgerService) ReadFrom(ctx context.Context, fromSequence int64) ([]domain.Event, error) {
	if fromSequence < 1 {
		fromSequence = 1
	}

	var all []domain.Event
	cursor := fromSequence
	for {
		batch, err := s.eventRepo.ListFrom(ctx, cursor, readBatchSize)
		if err != nil {
			return nil, apperror.ErrStorage(err)
		}
		all = append(all, batch...)
		if len(batch) < readBatchSize {
			return all, nil
		}
		cursor = batch[len(batch)-1].Sequence + 1
	}
}

// ReadRange returns at most limit events with sequence >= fromSequence in
// ascending order. limit <= 0 falls back to an unbounded ReadFrom.
func (s *LedgerService) ReadRange(ctx context.Context, fromSequence int64, limit int) ([]domain.Event, error) {
	if limit <= 0 {
		return s.ReadFrom(ctx, fromSequence)
	}
	if fromSequence < 1 {
		fromSequence = 1
	}
	events, err := s.eventRepo.ListFrom(ctx, fromSequence, limit)
	if err != nil {
		return nil, apperror.ErrStorage(err)
	}
	return events, nil
}

func (s *LedgerService) GetPayment(ctx context.Context, id uuid.UUID) (*domain.PaymentRecord, error) {
	record, err := s.paymentRepo.GetByID(ctx, id)
	if err != nil {
		return nil, apperror.ErrStorage(err)
	}
	return record, nil
}

func (s *LedgerService) ListPayments(ctx context.Context, params ports.PaymentListParams) ([]domain.PaymentRecord, int64, error) {
	if params.Page < 1 {
		params.Page = 1
	}
	if params.PageSize < 1 || params.PageSize > 100 {
		params.PageSize = 20
	}
	records, total, err := s.paymentRepo.List(ctx, params)
	if err != nil {
		return nil, 0, apperror.ErrStorage(err)
	}
	return records, total, nil
}

// RecordPendingPayment registers an engine-accepted outgoing payment. If a
// terminal fold for the same payment already landed, the insert is a no-op.
func (s *LedgerService) RecordPendingPayment(ctx context.Context, record *domain.PaymentRecord) error {
	if err := s.paymentRepo.CreatePending(ctx, record); err != nil {
		return apperror.ErrStorage(err)
	}
	return nil
}
