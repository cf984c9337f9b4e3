package middleware

import (
	"encoding/json"
	"net/http"

	"wallet-service/internal/core/domain"
	"wallet-service/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// AuditLog creates an audit middleware that records successful write operations.
// Routes are matched on their registered pattern, so it must run inside the router.
func AuditLog(auditSvc ports.AuditService) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		status := c.Writer.Status()
		if status < 200 || status >= 300 {
			return
		}
		if c.Request.Method != http.MethodPost {
			return
		}

		action, resourceType := mapRouteToAction(c.FullPath())
		if action == "" {
			return
		}

		var userID *uuid.UUID
		if id, ok := UserID(c); ok {
			userID = &id
		}

		details, _ := json.Marshal(map[string]interface{}{
			"method":      c.Request.Method,
			"path":        c.Request.URL.Path,
			"status":      status,
			"auth_method": c.GetString(CtxAuthMethod),
		})

		auditSvc.Log(c.Request.Context(), &domain.AuditLog{
			UserID:       userID,
			Action:       action,
			ResourceType: resourceType,
			ResourceID:   c.GetString(CtxResourceID),
			IPAddress:    c.ClientIP(),
			Details:      string(details),
		})
	}
}

// CtxResourceID lets a handler name the resource an audited write produced.
const CtxResourceID = "audit_resource_id"

func mapRouteToAction(route string) (domain.AuditAction, string) {
	switch route {
	case "/api/v1/auth/session":
		return domain.AuditActionLogin, "session"
	case "/api/v1/wallet/transfer":
		return domain.AuditActionTransfer, "transaction"
	case "/api/v1/wallet/paystack/webhook":
		return domain.AuditActionWebhook, "webhook_event"
	case "/api/v1/keys/create":
		return domain.AuditActionCreateKey, "api_key"
	case "/api/v1/keys/rollover":
		return domain.AuditActionRolloverKey, "api_key"
	case "/api/v1/keys/revoke/:key_id":
		return domain.AuditActionRevokeKey, "api_key"
	}
	return "", ""
}
