package domain

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventKind_Valid(t *testing.T) {
	for _, k := range AllEventKinds {
		assert.True(t, k.Valid(), string(k))
	}
	assert.False(t, EventKind("invoice_created").Valid())
	assert.False(t, EventKind("").Valid())
}

func TestEvent_PaymentID(t *testing.T) {
	id := uuid.New()

	payload, err := json.Marshal(PaymentSentPayload{PaymentID: id, AmountMsat: 1000})
	require.NoError(t, err)

	ev := &Event{Sequence: 7, Kind: EventPaymentSent, Payload: payload}
	assert.Equal(t, id, ev.PaymentID())
	assert.True(t, ev.IsPaymentTerminal())
}

func TestEvent_PaymentID_ChannelEvent(t *testing.T) {
	payload, err := json.Marshal(ChannelOpenedPayload{ChannelID: "chan-1", CapacitySat: 100000})
	require.NoError(t, err)

	ev := &Event{Sequence: 8, Kind: EventChannelOpened, Payload: payload}
	assert.Equal(t, uuid.Nil, ev.PaymentID())
	assert.False(t, ev.IsPaymentTerminal())
}

func TestPaymentRecord_IsTerminal(t *testing.T) {
	p := &PaymentRecord{Status: PaymentStatusPending}
	assert.False(t, p.IsTerminal())

	p.Status = PaymentStatusSucceeded
	assert.True(t, p.IsTerminal())

	p.Status = PaymentStatusFailed
	assert.True(t, p.IsTerminal())
}

func TestWebhookEndpoint_WantsKind(t *testing.T) {
	ep := &WebhookEndpoint{SubscribedKinds: []EventKind{EventInvoicePaid, EventPaymentSent}}
	assert.True(t, ep.WantsKind(EventInvoicePaid))
	assert.False(t, ep.WantsKind(EventChannelClosed))

	// Empty subscription set means all kinds.
	all := &WebhookEndpoint{}
	for _, k := range AllEventKinds {
		assert.True(t, all.WantsKind(k))
	}
}

func TestDeliveryAttempt_IsRetired(t *testing.T) {
	a := &DeliveryAttempt{Status: DeliveryStatusPending}
	assert.False(t, a.IsRetired())
	a.Status = DeliveryStatusDelivered
	assert.True(t, a.IsRetired())
	a.Status = DeliveryStatusAbandoned
	assert.True(t, a.IsRetired())
}

func TestDeliveryIDFor_Deterministic(t *testing.T) {
	ep := uuid.New()

	id1 := DeliveryIDFor(ep, 42)
	id2 := DeliveryIDFor(ep, 42)
	assert.Equal(t, id1, id2)

	// Different sequence or endpoint produces a different id.
	assert.NotEqual(t, id1, DeliveryIDFor(ep, 43))
	assert.NotEqual(t, id1, DeliveryIDFor(uuid.New(), 42))
}

func TestSubscriberState_String(t *testing.T) {
	assert.Equal(t, "connecting", SubscriberConnecting.String())
	assert.Equal(t, "catching_up", SubscriberCatchingUp.String())
	assert.Equal(t, "live", SubscriberLive.String())
	assert.Equal(t, "closed", SubscriberClosed.String())
}
