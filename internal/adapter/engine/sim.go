// Package engine provides payment engine adapters. The sim engine is the
// built-in default: it settles everything locally after a short delay, which
// is enough to drive the full event pipeline without a real node.
package engine

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"payment-node/internal/core/domain"
	"payment-node/internal/core/ports"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// simRequestPrefix marks payment requests issued by this engine.
const simRequestPrefix = "lnsim1"

// SimEngine implements ports.PaymentEngine. Invoices it issues settle when
// paid back through SubmitPayment; foreign requests settle after the
// configured delay, or fail when the request contains "fail".
type SimEngine struct {
	publisher   ports.EventPublisher
	settleDelay time.Duration
	log         zerolog.Logger

	mu       sync.Mutex
	invoices map[string]domain.Invoice

	wg   sync.WaitGroup
	stop chan struct{}
}

// NewSimEngine creates a new SimEngine.
func NewSimEngine(publisher ports.EventPublisher, settleDelay time.Duration, log zerolog.Logger) *SimEngine {
	return &SimEngine{
		publisher:   publisher,
		settleDelay: settleDelay,
		log:         log,
		invoices:    make(map[string]domain.Invoice),
		stop:        make(chan struct{}),
	}
}

// Stop waits for in-flight settlements to finish.
func (e *SimEngine) Stop() {
	close(e.stop)
	e.wg.Wait()
}

// CreateInvoice issues a sim invoice. It stays unpaid until something submits
// its payment request back to this engine.
func (e *SimEngine) CreateInvoice(ctx context.Context, amountMsat int64, description string) (*domain.Invoice, error) {
	hashBytes := make([]byte, 32)
	if _, err := rand.Read(hashBytes); err != nil {
		return nil, fmt.Errorf("generate payment hash: %w", err)
	}

	invoice := domain.Invoice{
		PaymentID:      uuid.New(),
		PaymentHash:    hex.EncodeToString(hashBytes),
		PaymentRequest: simRequestPrefix + hex.EncodeToString(hashBytes[:16]),
		AmountMsat:     amountMsat,
		Description:    description,
		CreatedAt:      time.Now().UTC(),
	}

	e.mu.Lock()
	e.invoices[invoice.PaymentRequest] = invoice
	e.mu.Unlock()

	return &invoice, nil
}

// SubmitPayment accepts the payment and settles it asynchronously, the way a
// real engine routes and then notifies.
func (e *SimEngine) SubmitPayment(ctx context.Context, paymentRequest string, amountMsat *int64) (uuid.UUID, error) {
	e.mu.Lock()
	invoice, isLocal := e.invoices[paymentRequest]
	e.mu.Unlock()

	amount := int64(0)
	switch {
	case amountMsat != nil:
		amount = *amountMsat
	case isLocal:
		amount = invoice.AmountMsat
	default:
		return uuid.Nil, fmt.Errorf("amount_msat required for zero-amount payment request")
	}
	if amount <= 0 {
		return uuid.Nil, fmt.Errorf("payment amount must be positive")
	}

	paymentID := uuid.New()
	fail := strings.Contains(paymentRequest, "fail")

	e.wg.Add(1)
	go e.settle(paymentID, invoice, isLocal, amount, fail)

	return paymentID, nil
}

func (e *SimEngine) settle(paymentID uuid.UUID, invoice domain.Invoice, isLocal bool, amount int64, fail bool) {
	defer e.wg.Done()

	select {
	case <-time.After(e.settleDelay):
	case <-e.stop:
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if fail {
		_, err := e.publisher.Publish(ctx, domain.EventPaymentFailed, domain.PaymentFailedPayload{
			PaymentID: paymentID,
			Reason:    "no route to destination",
		}, "sim:"+paymentID.String())
		if err != nil {
			e.log.Error().Err(err).Str("payment_id", paymentID.String()).Msg("failed to publish settlement")
		}
		return
	}

	fees := amount / 1000 // 0.1% routing fee
	_, err := e.publisher.Publish(ctx, domain.EventPaymentSent, domain.PaymentSentPayload{
		PaymentID:   paymentID,
		PaymentHash: invoice.PaymentHash,
		AmountMsat:  amount,
		FeesMsat:    fees,
		Preimage:    randomHex(32),
	}, "sim:"+paymentID.String())
	if err != nil {
		e.log.Error().Err(err).Str("payment_id", paymentID.String()).Msg("failed to publish settlement")
		return
	}

	// Paying one of our own invoices settles the incoming side too.
	if isLocal {
		_, err := e.publisher.Publish(ctx, domain.EventInvoicePaid, domain.InvoicePaidPayload{
			PaymentID:   invoice.PaymentID,
			PaymentHash: invoice.PaymentHash,
			AmountMsat:  amount,
		}, "sim:paid:"+invoice.PaymentID.String())
		if err != nil {
			e.log.Error().Err(err).Str("payment_id", invoice.PaymentID.String()).Msg("failed to publish invoice settlement")
		}
	}
}

func randomHex(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return strings.Repeat("0", n*2)
	}
	return hex.EncodeToString(b)
}
