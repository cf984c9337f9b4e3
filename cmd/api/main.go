package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"wallet-service/config"
	httpHandler "wallet-service/internal/adapter/http/handler"
	"wallet-service/internal/adapter/http/middleware"
	pgStorage "wallet-service/internal/adapter/storage/postgres"
	redisStorage "wallet-service/internal/adapter/storage/redis"
	"wallet-service/internal/core/ports"
	"wallet-service/internal/service"
	"wallet-service/pkg/logger"
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

	for name, secret := range map[string]string{
		"jwt.secret":              cfg.JWT.Secret,
		"identity.secret":         cfg.Identity.Secret,
		"paystack.webhook_secret": cfg.Paystack.WebhookSecret,
	} {
		if secret == "" {
			log.Fatal().Str("key", name).Msg("Required secret is not configured")
		}
	}

	log.Info().
		Str("mode", cfg.Server.Mode).
		Int("port", cfg.Server.Port).
		Str("rollover_policy", cfg.APIKey.RolloverPolicy).
		Msg("Starting Wallet Service")

	ctx := context.Background()

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
	userRepo := pgStorage.NewUserRepo(pool)
	walletRepo := pgStorage.NewWalletRepo(pool)
	txRepo := pgStorage.NewTransactionRepo(pool)
	keyRepo := pgStorage.NewAPIKeyRepo(pool)
	eventRepo := pgStorage.NewWebhookEventRepo(pool)
	auditRepo := pgStorage.NewAuditRepo(pool)
	transactor := pgStorage.NewTransactor(pool)

	// Initialize Redis stores
	eventCache := redisStorage.NewEventCache(rdb)

	// Initialize core services
	encSvc, err := service.NewAESEncryptionService(cfg.AES.Key)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize encryption service")
	}
	sigSvc := service.NewHMACSignatureService()
	hashSvc := service.NewArgon2HashService()
	tokenSvc := service.NewJWTTokenService(cfg.JWT.Secret, cfg.JWT.Expiry, cfg.JWT.Issuer)
	verifier := service.NewJWTAssertionVerifier(cfg.Identity.Secret, cfg.Identity.Issuer, cfg.Identity.Audience, cfg.Identity.Leeway)

	// Initialize business services
	ledger := service.NewLedgerService(walletRepo, txRepo, transactor, logger.Component(log, "ledger"))
	gate := service.NewEventGate(eventRepo, eventCache, ledger, encSvc, transactor, logger.Component(log, "event_gate"))
	vault := service.NewCredentialVault(userRepo, keyRepo, hashSvc, transactor, service.VaultOptions{
		MaxActive:           cfg.APIKey.MaxActive,
		AllowActiveRollover: cfg.APIKey.RolloverPolicy == config.RolloverAllowActive,
	}, logger.Component(log, "vault"))
	sessions := service.NewSessionService(verifier, userRepo, walletRepo, tokenSvc, transactor, logger.Component(log, "sessions"))
	auditSvc := service.NewAuditService(auditRepo, logger.Component(log, "audit"))

	// Initialize rate limit store
	var limiter middleware.Limiter
	if cfg.RateLimit.Enabled {
		limiter = redisStorage.NewRateLimitStore(rdb)
	}

	// Initialize health checkers
	pgHealth := pgStorage.NewHealthCheck(pool)
	redisHealth := redisStorage.NewHealthCheck(rdb)

	// Load OpenAPI spec for Swagger UI
	if specBytes, err := os.ReadFile("docs/api/openapi.yaml"); err == nil {
		httpHandler.SetSwaggerSpec(specBytes)
		log.Info().Msg("OpenAPI spec loaded for Swagger UI at /swagger")
	} else {
		log.Warn().Err(err).Msg("OpenAPI spec not found, Swagger UI will be unavailable")
	}

	// Setup Gin router with all routes
	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		Ledger:         ledger,
		Gate:           gate,
		Vault:          vault,
		Sessions:       sessions,
		SigSvc:         sigSvc,
		PaystackSecret: cfg.Paystack.WebhookSecret,
		RateLimiter:    limiter,
		HealthCheckers: []ports.HealthChecker{pgHealth, redisHealth},
		AuditSvc:       auditSvc,
		Logger:         log,
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
		Mode:           cfg.Server.Mode,
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
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Flush audit writes still in flight before the pool closes.
	auditSvc.Wait()

	log.Info().Msg("Server exited")
}
