package middleware

import (
	"net/http"
	"strings"
	"time"

	"wallet-service/internal/core/domain"
	"wallet-service/internal/core/ports"
	"wallet-service/pkg/apperror"
	"wallet-service/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	// HeaderAPIKey carries a programmatic credential.
	HeaderAPIKey = "x-api-key"
	// HeaderRequestID is echoed back on every response.
	HeaderRequestID = "X-Request-ID"

	// Context keys
	CtxUserID     = "user_id"
	CtxAuthMethod = "auth_method"

	AuthMethodSession = "session"
	AuthMethodAPIKey  = "api_key"
)

// Authenticate accepts a session bearer token or an API key granting required.
// A bearer token wins when both are sent.
func Authenticate(sessions ports.SessionIssuer, vault ports.CredentialVault, required domain.Permission, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token, ok := bearerToken(c); ok {
			userID, err := sessions.ValidateSession(c.Request.Context(), token)
			if err != nil {
				response.Error(c, err)
				c.Abort()
				return
			}
			setUser(c, userID, AuthMethodSession)
			c.Next()
			return
		}

		if raw := c.GetHeader(HeaderAPIKey); raw != "" {
			userID, err := vault.Authorize(c.Request.Context(), raw, required)
			if err != nil {
				if apperror.IsRetryable(err) {
					log.Error().Err(err).Msg("api key authorization failed")
				}
				response.Error(c, err)
				c.Abort()
				return
			}
			setUser(c, userID, AuthMethodAPIKey)
			c.Next()
			return
		}

		response.Error(c, apperror.ErrMissingCredentials())
		c.Abort()
	}
}

// SessionOnly admits session bearer tokens only. Key management uses it so an
// API key can never mint or revoke keys.
func SessionOnly(sessions ports.SessionIssuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			if c.GetHeader(HeaderAPIKey) != "" {
				response.Error(c, apperror.ErrSessionRequired())
			} else {
				response.Error(c, apperror.ErrMissingCredentials())
			}
			c.Abort()
			return
		}

		userID, err := sessions.ValidateSession(c.Request.Context(), token)
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}
		setUser(c, userID, AuthMethodSession)
		c.Next()
	}
}

// UserID returns the authenticated user set by Authenticate or SessionOnly.
func UserID(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(CtxUserID)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}

func setUser(c *gin.Context, userID uuid.UUID, method string) {
	c.Set(CtxUserID, userID)
	c.Set(CtxAuthMethod, method)
}

func bearerToken(c *gin.Context) (string, bool) {
	h := c.GetHeader("Authorization")
	if len(h) < 8 || !strings.EqualFold(h[:7], "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(h[7:])
	return token, token != ""
}

// RequestID assigns every request an id, reusing the caller's X-Request-ID if sent.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}
		c.Set(response.RequestIDKey, id)
		c.Header(HeaderRequestID, id)
		c.Next()
	}
}

// RequestLogger creates a middleware that logs every HTTP request.
func RequestLogger(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		status := c.Writer.Status()

		event := log.Info()
		if status >= http.StatusInternalServerError {
			event = log.Error()
		} else if status >= http.StatusBadRequest {
			event = log.Warn()
		}

		if id, ok := c.Get(response.RequestIDKey); ok {
			event = event.Interface("request_id", id)
		}
		if userID, ok := UserID(c); ok {
			event = event.Str("user_id", userID.String())
		}

		event.
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("latency", latency).
			Str("client_ip", c.ClientIP()).
			Msg("http request")
	}
}

// Recovery creates a panic recovery middleware.
func Recovery(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Str("path", c.Request.URL.Path).Msg("panic recovered")
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error_code": "SYS_001",
					"message":    "Internal server error",
				})
			}
		}()
		c.Next()
	}
}
