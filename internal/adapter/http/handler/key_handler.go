package handler

import (
	"time"

	"wallet-service/internal/adapter/http/dto"
	"wallet-service/internal/adapter/http/middleware"
	"wallet-service/internal/core/domain"
	"wallet-service/internal/core/ports"
	"wallet-service/pkg/apperror"
	"wallet-service/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// KeyHandler manages the caller's API keys. All routes require a session.
type KeyHandler struct {
	vault ports.CredentialVault
}

// NewKeyHandler creates a new KeyHandler.
func NewKeyHandler(vault ports.CredentialVault) *KeyHandler {
	return &KeyHandler{vault: vault}
}

// Create handles POST /api/v1/keys/create.
func (h *KeyHandler) Create(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, apperror.ErrMissingCredentials())
		return
	}

	var req dto.CreateKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	perms, err := domain.ParsePermissionSet(req.Permissions)
	if err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	issued, err := h.vault.Issue(c.Request.Context(), ports.IssueKeyRequest{
		UserID:       userID,
		Name:         req.Name,
		Permissions:  perms,
		DurationCode: req.Expiry,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Set(middleware.CtxResourceID, issued.Key.ID.String())
	response.Created(c, toIssuedKeyResponse(issued))
}

// Rollover handles POST /api/v1/keys/rollover.
func (h *KeyHandler) Rollover(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, apperror.ErrMissingCredentials())
		return
	}

	var req dto.RolloverKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	oldID, err := uuid.Parse(req.ExpiredKeyID)
	if err != nil {
		response.Error(c, apperror.Validation("invalid expired_key_id"))
		return
	}

	issued, err := h.vault.Rollover(c.Request.Context(), userID, oldID, req.Expiry)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Set(middleware.CtxResourceID, issued.Key.ID.String())
	response.Created(c, toIssuedKeyResponse(issued))
}

// List handles GET /api/v1/keys/list. Secrets are never returned.
func (h *KeyHandler) List(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, apperror.ErrMissingCredentials())
		return
	}

	keys, err := h.vault.List(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]dto.KeyResponse, 0, len(keys))
	for i := range keys {
		items = append(items, dto.ToKeyResponse(&keys[i]))
	}
	response.OK(c, items)
}

// Revoke handles POST /api/v1/keys/revoke/:key_id.
func (h *KeyHandler) Revoke(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, apperror.ErrMissingCredentials())
		return
	}

	keyID, err := uuid.Parse(c.Param("key_id"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid key_id"))
		return
	}

	if err := h.vault.Revoke(c.Request.Context(), keyID, userID); err != nil {
		response.Error(c, err)
		return
	}

	c.Set(middleware.CtxResourceID, keyID.String())
	response.OK(c, gin.H{"id": keyID.String(), "status": string(domain.APIKeyStatusRevoked)})
}

func toIssuedKeyResponse(issued *ports.IssuedKey) dto.IssuedKeyResponse {
	return dto.IssuedKeyResponse{
		APIKey:    issued.Plaintext,
		ID:        issued.Key.ID.String(),
		ExpiresAt: issued.Key.ExpiresAt.Format(time.RFC3339),
	}
}
