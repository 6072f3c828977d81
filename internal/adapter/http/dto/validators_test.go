package dto

import (
	"testing"

	"payment-node/internal/core/domain"

	"github.com/gin-gonic/gin/binding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEventKinds(t *testing.T) {
	kinds, err := ParseEventKinds([]string{"invoice_paid", " payment_sent "})
	require.NoError(t, err)
	assert.Equal(t, []domain.EventKind{domain.EventInvoicePaid, domain.EventPaymentSent}, kinds)
}

func TestParseEventKinds_Empty(t *testing.T) {
	kinds, err := ParseEventKinds(nil)
	require.NoError(t, err)
	assert.Nil(t, kinds)
}

func TestParseEventKinds_Unknown(t *testing.T) {
	_, err := ParseEventKinds([]string{"invoice_paid", "coin_minted"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "coin_minted")
}

func TestSafeURLValidation(t *testing.T) {
	cases := []struct {
		url   string
		valid bool
	}{
		{"https://example.com/hook", true},
		{"http://localhost:9000/hook", true},
		{"ftp://example.com/hook", false},
		{"javascript:alert(1)", false},
		{"not a url", false},
	}

	for _, tc := range cases {
		req := CreateWebhookRequest{URL: tc.url}
		err := binding.Validator.ValidateStruct(&req)
		if tc.valid {
			assert.NoError(t, err, "url %q should validate", tc.url)
		} else {
			assert.Error(t, err, "url %q should be rejected", tc.url)
		}
	}
}

func TestSanitizeStruct_TrimsStrings(t *testing.T) {
	req := PayInvoiceRequest{PaymentRequest: "  lnsim1abc  "}
	SanitizeStruct(&req)
	assert.Equal(t, "lnsim1abc", req.PaymentRequest)
}

func TestSanitizeStruct_TrimsPointerStrings(t *testing.T) {
	type sample struct {
		Name *string
	}
	name := "  padded  "
	s := sample{Name: &name}
	SanitizeStruct(&s)
	assert.Equal(t, "padded", *s.Name)
}

func TestSanitizeStruct_IgnoresNonStruct(t *testing.T) {
	v := "  plain  "
	SanitizeStruct(&v)
	assert.Equal(t, "  plain  ", v)
}
