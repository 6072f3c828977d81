package handler

import (
	"strconv"
	"time"

	"payment-node/internal/adapter/http/dto"
	"payment-node/internal/core/domain"
	"payment-node/internal/core/ports"
	"payment-node/pkg/apperror"
	"payment-node/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// CommandHandler handles invoice and payment command endpoints.
type CommandHandler struct {
	commandSvc ports.CommandService
}

// NewCommandHandler creates a new CommandHandler.
func NewCommandHandler(commandSvc ports.CommandService) *CommandHandler {
	return &CommandHandler{commandSvc: commandSvc}
}

// CreateInvoice handles POST /api/v1/invoices.
func (h *CommandHandler) CreateInvoice(c *gin.Context) {
	var req dto.CreateInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.ErrInvalidArgument(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	invoice, err := h.commandSvc.CreateInvoice(c.Request.Context(), ports.CreateInvoiceParams{
		AmountMsat:  req.AmountMsat,
		Description: req.Description,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, toInvoiceResponse(invoice))
}

// PayInvoice handles POST /api/v1/payments. Blocks until the payment reaches
// a terminal state or the command timeout elapses.
func (h *CommandHandler) PayInvoice(c *gin.Context) {
	var req dto.PayInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.ErrInvalidArgument(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	record, err := h.commandSvc.PayInvoice(c.Request.Context(), ports.PayInvoiceParams{
		PaymentRequest: req.PaymentRequest,
		AmountMsat:     req.AmountMsat,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, toPaymentResponse(record))
}

// GetPayment handles GET /api/v1/payments/:id.
func (h *CommandHandler) GetPayment(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.ErrInvalidArgument("invalid payment id"))
		return
	}

	record, err := h.commandSvc.GetPayment(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, toPaymentResponse(record))
}

// ListPayments handles GET /api/v1/payments.
func (h *CommandHandler) ListPayments(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	params := ports.PaymentListParams{
		Page:     page,
		PageSize: pageSize,
	}

	if s := c.Query("status"); s != "" {
		status := domain.PaymentStatus(s)
		switch status {
		case domain.PaymentStatusPending, domain.PaymentStatusSucceeded, domain.PaymentStatusFailed:
			params.Status = &status
		default:
			response.Error(c, apperror.ErrInvalidArgument("invalid status filter"))
			return
		}
	}

	if d := c.Query("direction"); d != "" {
		direction := domain.PaymentDirection(d)
		switch direction {
		case domain.PaymentIncoming, domain.PaymentOutgoing:
			params.Direction = &direction
		default:
			response.Error(c, apperror.ErrInvalidArgument("invalid direction filter"))
			return
		}
	}

	records, total, err := h.commandSvc.ListPayments(c.Request.Context(), params)
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]dto.PaymentResponse, 0, len(records))
	for i := range records {
		items = append(items, toPaymentResponse(&records[i]))
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	response.OK(c, dto.PaymentListResponse{
		Items:      items,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
	})
}

func toInvoiceResponse(inv *domain.Invoice) dto.InvoiceResponse {
	return dto.InvoiceResponse{
		PaymentID:      inv.PaymentID.String(),
		PaymentHash:    inv.PaymentHash,
		PaymentRequest: inv.PaymentRequest,
		AmountMsat:     inv.AmountMsat,
		Description:    inv.Description,
		CreatedAt:      inv.CreatedAt.Format(time.RFC3339),
	}
}

func toPaymentResponse(r *domain.PaymentRecord) dto.PaymentResponse {
	return dto.PaymentResponse{
		PaymentID:        r.PaymentID.String(),
		Status:           string(r.Status),
		Direction:        string(r.Direction),
		AmountMsat:       r.AmountMsat,
		FeesMsat:         r.FeesMsat,
		FailureReason:    r.FailureReason,
		TerminalSequence: r.TerminalSequence,
		CreatedAt:        r.CreatedAt.Format(time.RFC3339),
		UpdatedAt:        r.UpdatedAt.Format(time.RFC3339),
	}
}
