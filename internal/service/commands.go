package service

import (
	"context"
	"hash/fnv"
	"strings"
	"sync"
	"time"

	"payment-node/internal/core/domain"
	"payment-node/internal/core/ports"
	"payment-node/internal/metrics"
	"payment-node/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const lockStripes = 64

// maxDescriptionLen caps invoice descriptions; engines embed them in the
// payment request so they cannot be arbitrarily long.
const maxDescriptionLen = 640

// Correlator matches terminal payment events to commands waiting on them.
// It consumes the bus like any other consumer, so a waiter is woken only
// after the event is durable.
type Correlator struct {
	mu      sync.Mutex
	waiters map[uuid.UUID]chan domain.Event
}

// NewCorrelator creates a new Correlator.
func NewCorrelator() *Correlator {
	return &Correlator{waiters: make(map[uuid.UUID]chan domain.Event)}
}

// OnPublish implements ports.EventConsumer.
func (c *Correlator) OnPublish(event domain.Event) {
	if !event.IsPaymentTerminal() {
		return
	}
	id := event.PaymentID()
	if id == uuid.Nil {
		return
	}

	c.mu.Lock()
	ch, ok := c.waiters[id]
	if ok {
		delete(c.waiters, id)
	}
	c.mu.Unlock()

	if ok {
		ch <- event // buffered, never blocks
	}
}

// await registers interest in the payment's terminal event. The returned
// cancel must be called if the caller stops waiting.
func (c *Correlator) await(paymentID uuid.UUID) (<-chan domain.Event, func()) {
	ch := make(chan domain.Event, 1)
	c.mu.Lock()
	c.waiters[paymentID] = ch
	c.mu.Unlock()

	cancel := func() {
		c.mu.Lock()
		if c.waiters[paymentID] == ch {
			delete(c.waiters, paymentID)
		}
		c.mu.Unlock()
	}
	return ch, cancel
}

// CommandRouter implements ports.CommandService. Reads go straight to the
// projection; state-changing commands go to the engine and, where the API
// promises a result, block until the correlated terminal event lands.
type CommandRouter struct {
	engine     ports.PaymentEngine
	ledger     ports.LedgerStore
	correlator *Correlator
	timeout    time.Duration
	log        zerolog.Logger
	met        *metrics.Metrics

	locks [lockStripes]sync.Mutex
}

// NewCommandRouter creates a new CommandRouter.
func NewCommandRouter(
	engine ports.PaymentEngine,
	ledger ports.LedgerStore,
	correlator *Correlator,
	timeout time.Duration,
	met *metrics.Metrics,
	log zerolog.Logger,
) *CommandRouter {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &CommandRouter{
		engine:     engine,
		ledger:     ledger,
		correlator: correlator,
		timeout:    timeout,
		met:        met,
		log:        log,
	}
}

func (r *CommandRouter) observe(command string, start time.Time) {
	if r.met != nil {
		r.met.CommandDuration.WithLabelValues(command).Observe(time.Since(start).Seconds())
	}
}

// CreateInvoice validates and forwards to the engine. Synchronous: the
// invoice exists as soon as the engine answers, payment comes later as an
// invoice_paid event.
func (r *CommandRouter) CreateInvoice(ctx context.Context, params ports.CreateInvoiceParams) (*domain.Invoice, error) {
	defer r.observe("create_invoice", time.Now())

	if params.AmountMsat <= 0 {
		return nil, apperror.ErrInvalidArgument("amount_msat must be positive")
	}
	if len(params.Description) > maxDescriptionLen {
		return nil, apperror.ErrInvalidArgument("description too long")
	}

	invoice, err := r.engine.CreateInvoice(ctx, params.AmountMsat, params.Description)
	if err != nil {
		return nil, apperror.ErrCommandFailed(err.Error())
	}

	r.log.Info().
		Str("payment_id", invoice.PaymentID.String()).
		Int64("amount_msat", invoice.AmountMsat).
		Msg("invoice created")
	return invoice, nil
}

// PayInvoice submits the payment and waits for the terminal event. The
// returned record is always terminal: succeeded or failed. A timeout means
// the payment may still settle later; callers should poll GetPayment.
func (r *CommandRouter) PayInvoice(ctx context.Context, params ports.PayInvoiceParams) (*domain.PaymentRecord, error) {
	defer r.observe("pay_invoice", time.Now())

	request := strings.TrimSpace(params.PaymentRequest)
	if request == "" {
		return nil, apperror.ErrInvalidArgument("payment_request is required")
	}
	if params.AmountMsat != nil && *params.AmountMsat <= 0 {
		return nil, apperror.ErrInvalidArgument("amount_msat override must be positive")
	}

	paymentID, err := r.engine.SubmitPayment(ctx, request, params.AmountMsat)
	if err != nil {
		return nil, apperror.ErrCommandFailed(err.Error())
	}

	lock := &r.locks[stripeFor(paymentID)]
	lock.Lock()
	defer lock.Unlock()

	// Waiter first, then the terminal check: an event landing between the
	// two is caught either way.
	terminal, cancel := r.correlator.await(paymentID)
	defer cancel()

	now := time.Now().UTC()
	amount := int64(0)
	if params.AmountMsat != nil {
		amount = *params.AmountMsat
	}
	pending := &domain.PaymentRecord{
		PaymentID:  paymentID,
		Status:     domain.PaymentStatusPending,
		Direction:  domain.PaymentOutgoing,
		AmountMsat: amount,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := r.ledger.RecordPendingPayment(ctx, pending); err != nil {
		r.log.Warn().Err(err).
			Str("payment_id", paymentID.String()).
			Msg("failed to record pending payment")
	}

	if record, err := r.ledger.GetPayment(ctx, paymentID); err == nil && record != nil && record.IsTerminal() {
		return record, nil
	}

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, apperror.ErrCommandTimeout()
	case <-timer.C:
		r.log.Warn().
			Str("payment_id", paymentID.String()).
			Dur("timeout", r.timeout).
			Msg("timed out waiting for payment settlement")
		return nil, apperror.ErrCommandTimeout()
	case event := <-terminal:
		record, err := r.ledger.GetPayment(ctx, paymentID)
		if err != nil {
			return nil, err
		}
		if record == nil {
			return nil, apperror.InternalError(nil)
		}
		r.log.Info().
			Str("payment_id", paymentID.String()).
			Str("status", string(record.Status)).
			Int64("sequence", event.Sequence).
			Msg("payment settled")
		return record, nil
	}
}

func (r *CommandRouter) GetPayment(ctx context.Context, id uuid.UUID) (*domain.PaymentRecord, error) {
	defer r.observe("get_payment", time.Now())

	record, err := r.ledger.GetPayment(ctx, id)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, apperror.ErrNotFound("Payment")
	}
	return record, nil
}

func (r *CommandRouter) ListPayments(ctx context.Context, params ports.PaymentListParams) ([]domain.PaymentRecord, int64, error) {
	defer r.observe("list_payments", time.Now())
	return r.ledger.ListPayments(ctx, params)
}

func stripeFor(id uuid.UUID) int {
	h := fnv.New32a()
	h.Write(id[:]) //nolint:errcheck
	return int(h.Sum32() % lockStripes)
}
