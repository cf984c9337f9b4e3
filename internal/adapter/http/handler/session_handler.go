package handler

import (
	"net/http"

	"wallet-service/internal/adapter/http/dto"
	"wallet-service/internal/adapter/http/middleware"
	"wallet-service/internal/core/ports"
	"wallet-service/pkg/apperror"
	"wallet-service/pkg/response"

	"github.com/gin-gonic/gin"
)

// SessionHandler handles login.
type SessionHandler struct {
	sessions ports.SessionIssuer
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(sessions ports.SessionIssuer) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

// Create handles POST /api/v1/auth/session. The first login provisions the
// user and their wallet.
func (h *SessionHandler) Create(c *gin.Context) {
	var req dto.SessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	session, err := h.sessions.Authenticate(c.Request.Context(), req.IDToken)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Set(middleware.CtxUserID, session.User.ID)
	c.Set(middleware.CtxResourceID, session.Wallet.WalletNumber)

	resp := dto.SessionResponse{
		Token:     session.Token,
		ExpiresAt: session.ExpiresAt.Unix(),
		User: dto.UserResponse{
			ID:    session.User.ID.String(),
			Email: session.User.Email,
			Name:  session.User.Name,
		},
		WalletNumber: session.Wallet.WalletNumber,
		Created:      session.Created,
	}
	if session.Created {
		response.Created(c, resp)
		return
	}
	response.OK(c, resp)
}

// HealthCheck handles GET /health, pinging every dependency.
func HealthCheck(checkers ...ports.HealthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		type depStatus struct {
			Status string `json:"status"`
			Error  string `json:"error,omitempty"`
		}

		deps := make(map[string]depStatus)
		allHealthy := true

		for _, checker := range checkers {
			if err := checker.Ping(c.Request.Context()); err != nil {
				deps[checker.Name()] = depStatus{Status: "unhealthy", Error: err.Error()}
				allHealthy = false
			} else {
				deps[checker.Name()] = depStatus{Status: "healthy"}
			}
		}

		status := "healthy"
		httpCode := http.StatusOK
		if !allHealthy {
			status = "degraded"
			httpCode = http.StatusServiceUnavailable
		}

		c.JSON(httpCode, gin.H{
			"status":       status,
			"dependencies": deps,
		})
	}
}
