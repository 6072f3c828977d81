package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"payment-node/internal/core/domain"
	"payment-node/internal/core/ports/mocks"
	"payment-node/internal/metrics"
	"payment-node/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func wsTestServer(t *testing.T, registry *service.Registry) (*httptest.Server, string) {
	t.Helper()
	r := gin.New()
	h := NewWSHandler(registry, zerolog.Nop())
	r.GET("/ws/events", h.Subscribe)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/events"
}

func readEvent(t *testing.T, conn *websocket.Conn) domain.Event {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var e domain.Event
	require.NoError(t, conn.ReadJSON(&e))
	return e
}

func TestWSSubscribe_CatchUpThenLive(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockLedger := mocks.NewMockLedgerStore(ctrl)
	stored := []domain.Event{
		{Sequence: 1, Kind: domain.EventInvoicePaid, Payload: json.RawMessage(`{}`)},
		{Sequence: 2, Kind: domain.EventPaymentSent, Payload: json.RawMessage(`{}`)},
	}
	mockLedger.EXPECT().ReadFrom(gomock.Any(), int64(1)).Return(stored, nil)
	mockLedger.EXPECT().ReadFrom(gomock.Any(), int64(3)).Return(nil, nil).AnyTimes()

	registry := service.NewRegistry(mockLedger, 8, metrics.New(prometheus.NewRegistry()), zerolog.Nop())
	_, url := wsTestServer(t, registry)

	conn, resp, err := websocket.DefaultDialer.Dial(url+"?from_sequence=1", nil)
	require.NoError(t, err)
	defer conn.Close()
	defer resp.Body.Close()

	assert.Equal(t, int64(1), readEvent(t, conn).Sequence)
	assert.Equal(t, int64(2), readEvent(t, conn).Sequence)

	// Wait for the subscriber to go live, then push a fresh event.
	require.Eventually(t, func() bool { return registry.Count() == 1 }, 2*time.Second, 10*time.Millisecond)
	registry.OnPublish(domain.Event{Sequence: 3, Kind: domain.EventPaymentFailed, Payload: json.RawMessage(`{}`)})

	live := readEvent(t, conn)
	assert.Equal(t, int64(3), live.Sequence)
	assert.Equal(t, domain.EventPaymentFailed, live.Kind)
}

func TestWSSubscribe_InvalidCursor(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	registry := service.NewRegistry(mocks.NewMockLedgerStore(ctrl), 8, metrics.New(prometheus.NewRegistry()), zerolog.Nop())
	srv, _ := wsTestServer(t, registry)

	resp, err := http.Get(srv.URL + "/ws/events?from_sequence=abc")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestWSSubscribe_OverflowClosesWithTryAgainLater(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockLedger := mocks.NewMockLedgerStore(ctrl)
	mockLedger.EXPECT().ReadFrom(gomock.Any(), gomock.Any()).Return(nil, nil).AnyTimes()

	// Queue of 1 and a client that never reads: publishing a burst must
	// overflow and drop the subscriber.
	registry := service.NewRegistry(mockLedger, 1, metrics.New(prometheus.NewRegistry()), zerolog.Nop())
	_, url := wsTestServer(t, registry)

	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	defer resp.Body.Close()

	require.Eventually(t, func() bool { return registry.Count() == 1 }, 2*time.Second, 10*time.Millisecond)
	for seq := int64(1); seq <= 1000; seq++ {
		registry.OnPublish(domain.Event{Sequence: seq, Kind: domain.EventChannelOpened, Payload: json.RawMessage(`{}`)})
	}

	require.Eventually(t, func() bool { return registry.Count() == 0 }, 2*time.Second, 10*time.Millisecond)

	// Drain whatever was delivered; the stream must end with a
	// try-again-later close carrying the overflow code.
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, _, err := conn.ReadMessage()
		if err != nil {
			var closeErr *websocket.CloseError
			require.ErrorAs(t, err, &closeErr)
			assert.Equal(t, websocket.CloseTryAgainLater, closeErr.Code)
			assert.Contains(t, closeErr.Text, "SUB_001")
			return
		}
	}
}
