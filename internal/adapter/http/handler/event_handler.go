package handler

import (
	"strconv"

	"payment-node/internal/adapter/http/dto"
	"payment-node/internal/core/ports"
	"payment-node/pkg/apperror"
	"payment-node/pkg/response"

	"github.com/gin-gonic/gin"
)

// EventHandler handles ledger read endpoints.
type EventHandler struct {
	ledger ports.LedgerStore
}

// NewEventHandler creates a new EventHandler.
func NewEventHandler(ledger ports.LedgerStore) *EventHandler {
	return &EventHandler{ledger: ledger}
}

// ListEvents handles GET /api/v1/events. Returns a finite snapshot starting
// at from_sequence; live tailing goes through the websocket endpoint.
func (h *EventHandler) ListEvents(c *gin.Context) {
	from, err := strconv.ParseInt(c.DefaultQuery("from_sequence", "0"), 10, 64)
	if err != nil || from < 0 {
		response.Error(c, apperror.ErrInvalidArgument("from_sequence must be a non-negative integer"))
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil || limit < 1 || limit > 1000 {
		response.Error(c, apperror.ErrInvalidArgument("limit must be between 1 and 1000"))
		return
	}

	events, err := h.ledger.ReadRange(c.Request.Context(), from, limit)
	if err != nil {
		response.Error(c, err)
		return
	}

	nextFrom := from
	if len(events) > 0 {
		nextFrom = events[len(events)-1].Sequence + 1
	}

	response.OK(c, dto.EventListResponse{
		Items:    events,
		NextFrom: nextFrom,
	})
}
