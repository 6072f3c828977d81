package engine

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"payment-node/internal/core/domain"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturedPublish struct {
	kind          domain.EventKind
	payload       any
	engineEventID string
}

type capturingPublisher struct {
	mu     sync.Mutex
	events []capturedPublish
}

func (p *capturingPublisher) Publish(_ context.Context, kind domain.EventKind, payload any, engineEventID string) (*domain.Event, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, capturedPublish{kind, payload, engineEventID})
	return &domain.Event{Sequence: int64(len(p.events)), Kind: kind}, nil
}

func (p *capturingPublisher) seen() []capturedPublish {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]capturedPublish, len(p.events))
	copy(out, p.events)
	return out
}

func TestSimEngine_CreateInvoice(t *testing.T) {
	pub := &capturingPublisher{}
	eng := NewSimEngine(pub, time.Millisecond, zerolog.Nop())
	t.Cleanup(eng.Stop)

	invoice, err := eng.CreateInvoice(context.Background(), 42000, "test invoice")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(invoice.PaymentRequest, "lnsim1"))
	assert.Equal(t, int64(42000), invoice.AmountMsat)
	assert.Equal(t, "test invoice", invoice.Description)
	assert.Len(t, invoice.PaymentHash, 64)

	// Creating an invoice publishes nothing; payment does.
	assert.Empty(t, pub.seen())
}

func TestSimEngine_PayOwnInvoice_SettlesBothSides(t *testing.T) {
	pub := &capturingPublisher{}
	eng := NewSimEngine(pub, time.Millisecond, zerolog.Nop())
	t.Cleanup(eng.Stop)
	ctx := context.Background()

	invoice, err := eng.CreateInvoice(ctx, 42000, "loopback")
	require.NoError(t, err)

	paymentID, err := eng.SubmitPayment(ctx, invoice.PaymentRequest, nil)
	require.NoError(t, err)
	assert.NotEqual(t, invoice.PaymentID, paymentID, "outgoing payment gets its own id")

	require.Eventually(t, func() bool {
		return len(pub.seen()) == 2
	}, 2*time.Second, 5*time.Millisecond)

	events := pub.seen()
	assert.Equal(t, domain.EventPaymentSent, events[0].kind)
	sent := events[0].payload.(domain.PaymentSentPayload)
	assert.Equal(t, paymentID, sent.PaymentID)
	assert.Equal(t, int64(42000), sent.AmountMsat)
	assert.Equal(t, int64(42), sent.FeesMsat)

	assert.Equal(t, domain.EventInvoicePaid, events[1].kind)
	paid := events[1].payload.(domain.InvoicePaidPayload)
	assert.Equal(t, invoice.PaymentID, paid.PaymentID)
	assert.Equal(t, int64(42000), paid.AmountMsat)
}

func TestSimEngine_ForeignRequestNeedsAmount(t *testing.T) {
	pub := &capturingPublisher{}
	eng := NewSimEngine(pub, time.Millisecond, zerolog.Nop())
	t.Cleanup(eng.Stop)

	_, err := eng.SubmitPayment(context.Background(), "lnbc1foreign", nil)
	assert.Error(t, err)

	amount := int64(5000)
	paymentID, err := eng.SubmitPayment(context.Background(), "lnbc1foreign", &amount)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(pub.seen()) == 1
	}, 2*time.Second, 5*time.Millisecond)

	sent := pub.seen()[0].payload.(domain.PaymentSentPayload)
	assert.Equal(t, paymentID, sent.PaymentID)
	assert.Equal(t, int64(5000), sent.AmountMsat)
}

func TestSimEngine_FailingRequest(t *testing.T) {
	pub := &capturingPublisher{}
	eng := NewSimEngine(pub, time.Millisecond, zerolog.Nop())
	t.Cleanup(eng.Stop)

	amount := int64(1000)
	paymentID, err := eng.SubmitPayment(context.Background(), "lnbc1failroute", &amount)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(pub.seen()) == 1
	}, 2*time.Second, 5*time.Millisecond)

	event := pub.seen()[0]
	assert.Equal(t, domain.EventPaymentFailed, event.kind)
	failed := event.payload.(domain.PaymentFailedPayload)
	assert.Equal(t, paymentID, failed.PaymentID)
	assert.NotEmpty(t, failed.Reason)
}

func TestSimEngine_EngineEventIDsAreStable(t *testing.T) {
	pub := &capturingPublisher{}
	eng := NewSimEngine(pub, time.Millisecond, zerolog.Nop())
	t.Cleanup(eng.Stop)

	amount := int64(1000)
	paymentID, err := eng.SubmitPayment(context.Background(), "lnbc1x", &amount)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(pub.seen()) == 1
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, "sim:"+paymentID.String(), pub.seen()[0].engineEventID)
}
