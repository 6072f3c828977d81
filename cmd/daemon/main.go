package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"payment-node/config"
	"payment-node/internal/adapter/engine"
	httpHandler "payment-node/internal/adapter/http/handler"
	pgStorage "payment-node/internal/adapter/storage/postgres"
	redisStorage "payment-node/internal/adapter/storage/redis"
	"payment-node/internal/core/ports"
	"payment-node/internal/metrics"
	"payment-node/internal/service"
	"payment-node/pkg/logger"

	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	// Load configuration
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)

	log.Info().
		Str("mode", cfg.Server.Mode).
		Int("port", cfg.Server.Port).
		Msg("Starting payment node")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize PostgreSQL pool
	pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()
	log.Info().Msg("PostgreSQL connected")

	// Initialize Redis client
	rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()
	log.Info().Msg("Redis connected")

	// Initialize repositories
	eventRepo := pgStorage.NewEventRepo(pool)
	paymentRepo := pgStorage.NewPaymentRepo(pool)
	endpointRepo := pgStorage.NewEndpointRepo(pool)
	attemptRepo := pgStorage.NewAttemptRepo(pool)
	transactor := pgStorage.NewTransactor(pool)

	// Initialize Redis stores
	idempotencyCache := redisStorage.NewIdempotencyCache(rdb)
	rateLimitStore := redisStorage.NewRateLimitStore(rdb)

	// Metrics
	met := metrics.New(prometheus.DefaultRegisterer)

	// Ledger and event distribution
	ledger := service.NewLedgerService(eventRepo, paymentRepo, transactor, log)
	bus := service.NewEventBus(ledger, idempotencyCache, met, log)
	registry := service.NewRegistry(ledger, cfg.Subscriber.QueueSize, met, log)
	correlator := service.NewCorrelator()

	// Webhook delivery
	sigSvc := service.NewHMACSignatureService()
	dispatcher := service.NewDispatcher(
		endpointRepo,
		attemptRepo,
		eventRepo,
		sigSvc,
		&http.Client{Timeout: cfg.Webhook.Timeout},
		cfg.Webhook,
		met,
		log,
	)

	bus.Register(registry)
	bus.Register(correlator)
	bus.Register(dispatcher)

	if err := dispatcher.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start webhook dispatcher")
	}

	// Payment engine (simulated node backend)
	simEngine := engine.NewSimEngine(bus, cfg.Engine.SettleDelay, log)

	// Commands and auth
	commandSvc := service.NewCommandRouter(simEngine, ledger, correlator, cfg.Command.Timeout, met, log)
	hashSvc := service.NewArgon2HashService()
	tokenSvc := service.NewJWTTokenService(cfg.Auth.JWTSecret, cfg.Auth.JWTExpiry, cfg.Auth.JWTIssuer)
	authSvc := service.NewNodeAuthService(cfg.Auth, hashSvc, tokenSvc)

	// Initialize health checkers
	pgHealth := pgStorage.NewHealthChecker(pool)
	redisHealth := redisStorage.NewHealthCheck(rdb)

	// Setup Gin router with all routes
	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		AuthSvc:        authSvc,
		CommandSvc:     commandSvc,
		Ledger:         ledger,
		WebhookRepo:    endpointRepo,
		Notifier:       dispatcher,
		Registry:       registry,
		TokenSvc:       tokenSvc,
		RateLimitStore: rateLimitStore,
		HealthCheckers: []ports.HealthChecker{pgHealth, redisHealth},
		Gatherer:       prometheus.DefaultGatherer,
		Mode:           cfg.Server.Mode,
		Logger:         log,
	})

	// HTTP Server with graceful shutdown
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Stop intake before the engine so no settlement is lost mid-publish.
	simEngine.Stop()
	dispatcher.Stop()
	cancel()

	log.Info().Msg("Payment node exited")
}
