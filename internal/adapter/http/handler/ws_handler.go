package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"payment-node/internal/service"
	"payment-node/pkg/apperror"
	"payment-node/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPingPeriod = 30 * time.Second
)

// WSHandler streams ledger events over a websocket. Each connection gets its
// own subscriber: catch-up from the requested cursor, then live push.
type WSHandler struct {
	registry *service.Registry
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(registry *service.Registry, log zerolog.Logger) *WSHandler {
	return &WSHandler{
		registry: registry,
		log:      log.With().Str("component", "ws").Logger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Auth happens before the upgrade; cross-origin browser
			// clients are expected.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Subscribe handles GET /api/v1/ws/events.
func (h *WSHandler) Subscribe(c *gin.Context) {
	from, err := strconv.ParseInt(c.DefaultQuery("from_sequence", "0"), 10, 64)
	if err != nil || from < 0 {
		response.Error(c, apperror.ErrInvalidArgument("from_sequence must be a non-negative integer"))
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	sub := h.registry.Subscribe(ctx, from)
	defer h.registry.Unsubscribe(sub.ID())

	// Reader exists only to notice the client going away.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-sub.Out():
			if !ok {
				h.closeWith(conn, sub.Err())
				return
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(event); err != nil {
				return
			}
		case <-sub.Done():
			h.closeWith(conn, sub.Err())
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// closeWith sends a close frame describing why the subscription ended. An
// overflow drop tells the client to reconnect with a fresh cursor.
func (h *WSHandler) closeWith(conn *websocket.Conn, err error) {
	code := websocket.CloseNormalClosure
	reason := ""

	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		code = websocket.CloseTryAgainLater
		reason = appErr.Code + ": " + appErr.Message
	} else if err != nil {
		code = websocket.CloseInternalServerErr
		reason = "subscription ended"
	}

	msg := websocket.FormatCloseMessage(code, reason)
	conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	_ = conn.WriteMessage(websocket.CloseMessage, msg)
}
