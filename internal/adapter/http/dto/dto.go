package dto

import "payment-node/internal/core/domain"

// LoginRequest is the request body for operator login.
type LoginRequest struct {
	Password string `json:"password" binding:"required"`
}

// LoginResponse is the response body for successful login.
type LoginResponse struct {
	Token  string `json:"token"`
	Expiry int64  `json:"expiry"` // Unix timestamp
}

// CreateInvoiceRequest is the request body for invoice creation.
type CreateInvoiceRequest struct {
	AmountMsat  int64  `json:"amount_msat" binding:"required,gt=0"`
	Description string `json:"description" binding:"max=640"`
}

// InvoiceResponse is the response body for a created invoice.
type InvoiceResponse struct {
	PaymentID      string `json:"payment_id"`
	PaymentHash    string `json:"payment_hash"`
	PaymentRequest string `json:"payment_request"`
	AmountMsat     int64  `json:"amount_msat"`
	Description    string `json:"description"`
	CreatedAt      string `json:"created_at"`
}

// PayInvoiceRequest is the request body for paying an invoice.
// AmountMsat overrides the invoice amount; required for zero-amount invoices.
type PayInvoiceRequest struct {
	PaymentRequest string `json:"payment_request" binding:"required"`
	AmountMsat     *int64 `json:"amount_msat,omitempty" binding:"omitempty,gt=0"`
}

// PaymentResponse is the response body for payment state.
type PaymentResponse struct {
	PaymentID        string  `json:"payment_id"`
	Status           string  `json:"status"`
	Direction        string  `json:"direction"`
	AmountMsat       int64   `json:"amount_msat"`
	FeesMsat         int64   `json:"fees_msat"`
	FailureReason    *string `json:"failure_reason,omitempty"`
	TerminalSequence *int64  `json:"terminal_sequence,omitempty"`
	CreatedAt        string  `json:"created_at"`
	UpdatedAt        string  `json:"updated_at"`
}

// PaymentListResponse wraps a paginated payment list.
type PaymentListResponse struct {
	Items      []PaymentResponse `json:"items"`
	Total      int64             `json:"total"`
	Page       int               `json:"page"`
	PageSize   int               `json:"page_size"`
	TotalPages int               `json:"total_pages"`
}

// CreateWebhookRequest is the request body for registering a webhook
// endpoint. An empty secret means the server generates one.
type CreateWebhookRequest struct {
	URL             string   `json:"url" binding:"required,safe_url,max=2048"`
	Secret          string   `json:"secret" binding:"omitempty,min=16,max=128"`
	SubscribedKinds []string `json:"subscribed_kinds,omitempty"`
}

// WebhookResponse is the response body for a webhook endpoint. Secret is
// only populated on creation.
type WebhookResponse struct {
	ID              string   `json:"id"`
	URL             string   `json:"url"`
	Secret          string   `json:"secret,omitempty"`
	SubscribedKinds []string `json:"subscribed_kinds"`
	Enabled         bool     `json:"enabled"`
	CreatedAt       string   `json:"created_at"`
}

// WebhookListResponse wraps the full endpoint list.
type WebhookListResponse struct {
	Items []WebhookResponse `json:"items"`
	Total int               `json:"total"`
}

// EventListResponse wraps an event range read from the ledger. NextFrom is
// the cursor to pass as from_sequence to continue reading.
type EventListResponse struct {
	Items    []domain.Event `json:"items"`
	NextFrom int64          `json:"next_from"`
}
