package integration

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"payment-node/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestConcurrentSettlements drives many payments through the full stack at
// once and verifies the ledger invariants hold: sequences are gap-free,
// every payment reaches exactly one terminal state, the projection matches
// the event count, and a live websocket subscriber sees every event in
// commit order.
func TestConcurrentSettlements(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	token := login(t, app)

	const workers = 10

	// Subscribed before any settlement so the stream covers the whole run.
	wsURL := "ws" + strings.TrimPrefix(app.server.URL, "http") + "/api/v1/ws/events?from_sequence=1"
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	conn, resp, err := wsDial(wsURL, header)
	require.NoError(t, err)
	defer conn.Close()
	defer resp.Body.Close()

	streamed := make(chan []int64, 1)
	go func() {
		var seqs []int64
		conn.SetReadDeadline(time.Now().Add(10 * time.Second))
		for len(seqs) < workers*2 {
			var e domain.Event
			if err := conn.ReadJSON(&e); err != nil {
				break
			}
			seqs = append(seqs, e.Sequence)
		}
		streamed <- seqs
	}()

	var wg sync.WaitGroup
	errs := make(chan error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()

			code, data := app.request(t, http.MethodPost, "/api/v1/invoices", token, map[string]any{
				"amount_msat": int64(1000 * (n + 1)),
				"description": fmt.Sprintf("load test %d", n),
			})
			if code != http.StatusCreated {
				errs <- fmt.Errorf("worker %d: create invoice returned %d", n, code)
				return
			}

			var invoice struct {
				PaymentRequest string `json:"payment_request"`
			}
			if err := json.Unmarshal(data, &invoice); err != nil {
				errs <- err
				return
			}

			code, data = app.request(t, http.MethodPost, "/api/v1/payments", token, map[string]any{
				"payment_request": invoice.PaymentRequest,
			})
			if code != http.StatusOK {
				errs <- fmt.Errorf("worker %d: pay returned %d", n, code)
				return
			}

			var payment struct {
				Status string `json:"status"`
			}
			if err := json.Unmarshal(data, &payment); err != nil {
				errs <- err
				return
			}
			if payment.Status != "succeeded" {
				errs <- fmt.Errorf("worker %d: payment ended %s", n, payment.Status)
			}
		}(i)
	}

	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}

	// Each settled self-payment produces payment_sent + invoice_paid.
	wantEvents := workers * 2
	require.Eventually(t, func() bool {
		req, err := http.NewRequest(http.MethodGet, app.server.URL+"/api/v1/events?from_sequence=1&limit=1000", nil)
		if err != nil {
			return false
		}
		req.Header.Set("Authorization", "Bearer "+token)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		var env struct {
			Data struct {
				Items []domain.Event `json:"items"`
			} `json:"data"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
			return false
		}
		return len(env.Data.Items) == wantEvents
	}, 5*time.Second, 50*time.Millisecond)

	code, data := app.request(t, http.MethodGet, "/api/v1/events?from_sequence=1&limit=1000", token, nil)
	require.Equal(t, http.StatusOK, code)

	var events struct {
		Items []domain.Event `json:"items"`
	}
	require.NoError(t, json.Unmarshal(data, &events))
	require.Len(t, events.Items, wantEvents)

	// Gap-free, strictly increasing from 1.
	for i, e := range events.Items {
		assert.Equal(t, int64(i+1), e.Sequence)
	}

	// The live subscriber saw the same gap-free order, exactly once each.
	select {
	case seqs := <-streamed:
		require.Len(t, seqs, wantEvents)
		for i, s := range seqs {
			assert.Equal(t, int64(i+1), s, "websocket stream out of order at position %d", i)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("websocket subscriber did not receive all events")
	}

	// Projection: every direction settled for every worker.
	for _, direction := range []string{"outgoing", "incoming"} {
		code, data := app.request(t, http.MethodGet, "/api/v1/payments?direction="+direction+"&status=succeeded&page_size=100", token, nil)
		require.Equal(t, http.StatusOK, code)
		var list struct {
			Total int64 `json:"total"`
		}
		require.NoError(t, json.Unmarshal(data, &list))
		assert.Equal(t, int64(workers), list.Total, "direction %s", direction)
	}
}
