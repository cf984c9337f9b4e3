package handler

import (
	"wallet-service/internal/adapter/http/middleware"
	"wallet-service/internal/core/domain"
	"wallet-service/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const defaultMaxBodyBytes = 1 << 20

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	Ledger         ports.LedgerService
	Gate           ports.EventGate
	Vault          ports.CredentialVault
	Sessions       ports.SessionIssuer
	SigSvc         ports.SignatureService
	PaystackSecret string
	RateLimiter    middleware.Limiter // nil = rate limiting disabled
	HealthCheckers []ports.HealthChecker
	AuditSvc       ports.AuditService // nil = audit logging disabled
	Logger         zerolog.Logger
	MaxBodyBytes   int64  // 0 = 1 MB
	Mode           string // gin mode; "" = release
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	mode := deps.Mode
	if mode == "" {
		mode = gin.ReleaseMode
	}
	gin.SetMode(mode)
	r := gin.New()

	maxBody := deps.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBodyBytes
	}

	// Global middleware
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.MaxBodySize(maxBody))

	// Audit logging (after response)
	if deps.AuditSvc != nil {
		r.Use(middleware.AuditLog(deps.AuditSvc))
	}

	// Health check (PostgreSQL + Redis)
	r.GET("/health", HealthCheck(deps.HealthCheckers...))

	// Swagger documentation
	swagger := r.Group("/swagger")
	{
		swagger.GET("", SwaggerUI)
		swagger.GET("/spec", SwaggerSpec)
	}

	// Rate limit rules
	rules := middleware.DefaultRateLimitRules()

	// Helper: return rate limiter middleware if a store is available, else noop.
	rl := func(group string) gin.HandlerFunc {
		if deps.RateLimiter == nil {
			return func(c *gin.Context) { c.Next() }
		}
		rule, ok := rules[group]
		if !ok {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.RateLimiter(deps.RateLimiter, group, rule, deps.Logger)
	}

	// Helper: session or API key carrying the given permission.
	auth := func(p domain.Permission) gin.HandlerFunc {
		return middleware.Authenticate(deps.Sessions, deps.Vault, p, deps.Logger)
	}

	v1 := r.Group("/api/v1")

	// --- Public routes ---
	sessionHandler := NewSessionHandler(deps.Sessions)
	v1.POST("/auth/session", rl("auth_session"), sessionHandler.Create)

	// --- Wallet routes (session or API key) ---
	walletHandler := NewWalletHandler(deps.Ledger)
	webhookHandler := NewWebhookHandler(deps.Gate, deps.SigSvc, deps.PaystackSecret, deps.Logger)
	wallet := v1.Group("/wallet")
	{
		wallet.GET("/balance", auth(domain.PermissionRead), rl("read"), walletHandler.GetBalance)
		wallet.GET("/summary", auth(domain.PermissionRead), rl("read"), walletHandler.GetSummary)
		wallet.GET("/transactions", auth(domain.PermissionRead), rl("read"), walletHandler.ListTransactions)
		wallet.GET("/deposit/:reference/status", auth(domain.PermissionRead), rl("read"), walletHandler.GetDepositStatus)
		wallet.POST("/transfer", auth(domain.PermissionTransfer), rl("transfer"), walletHandler.Transfer)

		// Signed by the provider, not by a user credential.
		wallet.POST("/paystack/webhook", rl("webhook"), webhookHandler.Paystack)
	}

	// --- Key management (session only) ---
	keyHandler := NewKeyHandler(deps.Vault)
	keys := v1.Group("/keys", middleware.SessionOnly(deps.Sessions))
	{
		keys.POST("/create", rl("keys"), keyHandler.Create)
		keys.POST("/rollover", rl("keys"), keyHandler.Rollover)
		keys.GET("/list", rl("keys"), keyHandler.List)
		keys.POST("/revoke/:key_id", rl("keys"), keyHandler.Revoke)
	}

	return r
}
