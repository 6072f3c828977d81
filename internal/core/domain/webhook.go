package domain

import (
	"time"

	"github.com/google/uuid"
)

// WebhookEndpoint is a registered outbound notification target.
// SubscribedKinds constrains which events the endpoint receives; empty means
// all kinds.
type WebhookEndpoint struct {
	ID              uuid.UUID   `json:"id"`
	URL             string      `json:"url"`
	Secret          string      `json:"-"` // HMAC key, never serialized outward
	SubscribedKinds []EventKind `json:"subscribed_kinds"`
	Enabled         bool        `json:"enabled"`
	CreatedAt       time.Time   `json:"created_at"`
}

// WantsKind reports whether the endpoint subscribed to the given kind.
func (e *WebhookEndpoint) WantsKind(k EventKind) bool {
	if len(e.SubscribedKinds) == 0 {
		return true
	}
	for _, sk := range e.SubscribedKinds {
		if sk == k {
			return true
		}
	}
	return false
}

// DeliveryStatus represents the state of a delivery attempt stream.
type DeliveryStatus string

const (
	DeliveryStatusPending   DeliveryStatus = "pending"
	DeliveryStatusDelivered DeliveryStatus = "delivered"
	DeliveryStatusAbandoned DeliveryStatus = "abandoned"
)

// DeliveryAttempt tracks at-least-once delivery of one event to one endpoint.
// There is exactly one logical row per (endpoint, event sequence) pair; the
// dispatcher's retry loop is its only mutator. DeliveryID is deterministic
// per pair so receivers can deduplicate retried deliveries.
type DeliveryAttempt struct {
	EndpointID     uuid.UUID      `json:"endpoint_id"`
	EventSequence  int64          `json:"event_sequence"`
	DeliveryID     uuid.UUID      `json:"delivery_id"`
	AttemptCount   int            `json:"attempt_count"`
	NextAttemptAt  time.Time      `json:"next_attempt_at"`
	Status         DeliveryStatus `json:"status"`
	LastError      *string        `json:"last_error,omitempty"`
	LastHTTPStatus *int           `json:"last_http_status,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// IsRetired returns true once the attempt stream has reached a final state.
func (a *DeliveryAttempt) IsRetired() bool {
	return a.Status == DeliveryStatusDelivered || a.Status == DeliveryStatusAbandoned
}

// DeliveryIDFor derives the deterministic delivery identifier for an
// (endpoint, sequence) pair. Retries of the same pair always carry the same
// id.
func DeliveryIDFor(endpointID uuid.UUID, sequence int64) uuid.UUID {
	name := make([]byte, 0, 24)
	name = append(name, []byte("seq:")...)
	name = appendInt(name, sequence)
	return uuid.NewSHA1(endpointID, name)
}

func appendInt(b []byte, n int64) []byte {
	if n == 0 {
		return append(b, '0')
	}
	var tmp [20]byte
	i := len(tmp)
	for n > 0 {
		i--
		tmp[i] = byte('0' + n%10)
		n /= 10
	}
	return append(b, tmp[i:]...)
}
