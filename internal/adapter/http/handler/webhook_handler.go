package handler

import (
	"crypto/rand"
	"encoding/hex"
	"time"

	"payment-node/internal/adapter/http/dto"
	"payment-node/internal/core/domain"
	"payment-node/internal/core/ports"
	"payment-node/pkg/apperror"
	"payment-node/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// EndpointNotifier is told about endpoint registry changes so live delivery
// workers stay in sync with storage.
type EndpointNotifier interface {
	AddEndpoint(ep domain.WebhookEndpoint)
	RemoveEndpoint(id uuid.UUID)
}

// WebhookHandler handles webhook endpoint admin endpoints.
type WebhookHandler struct {
	repo     ports.WebhookEndpointRepository
	notifier EndpointNotifier // nil = no live dispatcher to notify
}

// NewWebhookHandler creates a new WebhookHandler.
func NewWebhookHandler(repo ports.WebhookEndpointRepository, notifier EndpointNotifier) *WebhookHandler {
	return &WebhookHandler{repo: repo, notifier: notifier}
}

// CreateWebhook handles POST /api/v1/webhooks. The secret is returned
// exactly once, in this response.
func (h *WebhookHandler) CreateWebhook(c *gin.Context) {
	var req dto.CreateWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.ErrInvalidArgument(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	kinds, err := dto.ParseEventKinds(req.SubscribedKinds)
	if err != nil {
		response.Error(c, apperror.ErrInvalidArgument(err.Error()))
		return
	}

	existing, err := h.repo.GetByURL(c.Request.Context(), req.URL)
	if err != nil {
		response.Error(c, err)
		return
	}
	if existing != nil {
		response.Error(c, apperror.ErrEndpointExists())
		return
	}

	secret := req.Secret
	if secret == "" {
		secret, err = generateSecret()
		if err != nil {
			response.Error(c, apperror.InternalError(err))
			return
		}
	}

	endpoint := domain.WebhookEndpoint{
		ID:              uuid.New(),
		URL:             req.URL,
		Secret:          secret,
		SubscribedKinds: kinds,
		Enabled:         true,
		CreatedAt:       time.Now().UTC(),
	}

	if err := h.repo.Create(c.Request.Context(), &endpoint); err != nil {
		response.Error(c, err)
		return
	}

	if h.notifier != nil {
		h.notifier.AddEndpoint(endpoint)
	}

	resp := toWebhookResponse(&endpoint)
	resp.Secret = secret
	response.Created(c, resp)
}

// ListWebhooks handles GET /api/v1/webhooks.
func (h *WebhookHandler) ListWebhooks(c *gin.Context) {
	endpoints, err := h.repo.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]dto.WebhookResponse, 0, len(endpoints))
	for i := range endpoints {
		items = append(items, toWebhookResponse(&endpoints[i]))
	}

	response.OK(c, dto.WebhookListResponse{Items: items, Total: len(items)})
}

// GetWebhook handles GET /api/v1/webhooks/:id.
func (h *WebhookHandler) GetWebhook(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.ErrInvalidArgument("invalid endpoint id"))
		return
	}

	endpoint, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	if endpoint == nil {
		response.Error(c, apperror.ErrNotFound("Webhook endpoint"))
		return
	}

	response.OK(c, toWebhookResponse(endpoint))
}

// DeleteWebhook handles DELETE /api/v1/webhooks/:id. Pending deliveries for
// the endpoint are dropped with it.
func (h *WebhookHandler) DeleteWebhook(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.ErrInvalidArgument("invalid endpoint id"))
		return
	}

	endpoint, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	if endpoint == nil {
		response.Error(c, apperror.ErrNotFound("Webhook endpoint"))
		return
	}

	if err := h.repo.Delete(c.Request.Context(), id); err != nil {
		response.Error(c, err)
		return
	}

	if h.notifier != nil {
		h.notifier.RemoveEndpoint(id)
	}

	response.OK(c, gin.H{"deleted": id.String()})
}

func generateSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func toWebhookResponse(ep *domain.WebhookEndpoint) dto.WebhookResponse {
	kinds := make([]string, 0, len(ep.SubscribedKinds))
	for _, k := range ep.SubscribedKinds {
		kinds = append(kinds, string(k))
	}
	return dto.WebhookResponse{
		ID:              ep.ID.String(),
		URL:             ep.URL,
		SubscribedKinds: kinds,
		Enabled:         ep.Enabled,
		CreatedAt:       ep.CreatedAt.Format(time.RFC3339),
	}
}
