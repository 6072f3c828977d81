package handler

import (
	"payment-node/internal/adapter/http/middleware"
	redisStore "payment-node/internal/adapter/storage/redis"
	"payment-node/internal/core/ports"
	"payment-node/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	AuthSvc        ports.AuthService
	CommandSvc     ports.CommandService
	Ledger         ports.LedgerStore
	WebhookRepo    ports.WebhookEndpointRepository
	Notifier       EndpointNotifier         // nil = no live dispatcher to notify
	Registry       *service.Registry        // nil = websocket streaming disabled
	TokenSvc       ports.TokenService
	RateLimitStore *redisStore.RateLimitStore // nil = rate limiting disabled
	HealthCheckers []ports.HealthChecker
	Gatherer       prometheus.Gatherer // nil = metrics endpoint disabled
	Mode           string              // gin mode: debug, release, test
	Logger         zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	switch deps.Mode {
	case gin.DebugMode, gin.TestMode:
		gin.SetMode(deps.Mode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.MaxBodySize(1 << 20)) // 1 MB request body limit

	// Health check verifies PostgreSQL and Redis reachability.
	r.GET("/health", HealthCheck(deps.HealthCheckers...))

	if deps.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	// Rate limit rules
	rules := middleware.DefaultRateLimitRules()

	// Helper: return rate limiter middleware if store is available, else noop.
	rl := func(group string) gin.HandlerFunc {
		if deps.RateLimitStore == nil {
			return func(c *gin.Context) { c.Next() }
		}
		rule, ok := rules[group]
		if !ok {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.RateLimiter(deps.RateLimitStore, group, rule, deps.Logger)
	}

	// API v1 routes
	v1 := r.Group("/api/v1")

	// --- Public routes (no auth) ---
	authHandler := NewAuthHandler(deps.AuthSvc)
	auth := v1.Group("/auth")
	{
		auth.POST("/login", rl("auth_login"), authHandler.Login)
	}

	// --- JWT-authenticated routes ---
	jwtAuth := middleware.JWTAuth(deps.TokenSvc, deps.Logger)

	commandHandler := NewCommandHandler(deps.CommandSvc)
	invoices := v1.Group("/invoices", jwtAuth)
	{
		invoices.POST("", rl("commands"), commandHandler.CreateInvoice)
	}

	payments := v1.Group("/payments", jwtAuth)
	{
		payments.POST("", rl("commands"), commandHandler.PayInvoice)
		payments.GET("", rl("queries"), commandHandler.ListPayments)
		payments.GET("/:id", rl("queries"), commandHandler.GetPayment)
	}

	eventHandler := NewEventHandler(deps.Ledger)
	events := v1.Group("/events", jwtAuth)
	{
		events.GET("", rl("queries"), eventHandler.ListEvents)
	}

	webhookHandler := NewWebhookHandler(deps.WebhookRepo, deps.Notifier)
	webhooks := v1.Group("/webhooks", jwtAuth)
	{
		webhooks.POST("", rl("webhooks"), webhookHandler.CreateWebhook)
		webhooks.GET("", rl("webhooks"), webhookHandler.ListWebhooks)
		webhooks.GET("/:id", rl("webhooks"), webhookHandler.GetWebhook)
		webhooks.DELETE("/:id", rl("webhooks"), webhookHandler.DeleteWebhook)
	}

	// --- Websocket event streaming ---
	if deps.Registry != nil {
		wsHandler := NewWSHandler(deps.Registry, deps.Logger)
		v1.GET("/ws/events", jwtAuth, wsHandler.Subscribe)
	}

	return r
}
