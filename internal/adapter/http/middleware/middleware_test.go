package middleware

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"wallet-service/internal/core/domain"
	"wallet-service/internal/core/ports/mocks"
	"wallet-service/pkg/apperror"
	"wallet-service/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type authMocks struct {
	sessions *mocks.MockSessionIssuer
	vault    *mocks.MockCredentialVault
}

func newAuthMocks(t *testing.T) *authMocks {
	ctrl := gomock.NewController(t)
	return &authMocks{
		sessions: mocks.NewMockSessionIssuer(ctrl),
		vault:    mocks.NewMockCredentialVault(ctrl),
	}
}

// captureRouter mounts mw on GET /test and records the user it set.
func captureRouter(mw gin.HandlerFunc, captured *uuid.UUID, method *string) *gin.Engine {
	router := gin.New()
	router.GET("/test", mw, func(c *gin.Context) {
		*captured, _ = UserID(c)
		*method = c.GetString(CtxAuthMethod)
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	return router
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	code, _ := resp["error_code"].(string)
	return code
}

func TestAuthenticate_MissingCredentials(t *testing.T) {
	m := newAuthMocks(t)
	var got uuid.UUID
	var method string
	router := captureRouter(Authenticate(m.sessions, m.vault, domain.PermissionRead, zerolog.Nop()), &got, &method)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "AUTH_004", errorCode(t, w))
}

func TestAuthenticate_Session(t *testing.T) {
	m := newAuthMocks(t)
	userID := uuid.New()
	m.sessions.EXPECT().ValidateSession(gomock.Any(), "good_token").Return(userID, nil)

	var got uuid.UUID
	var method string
	router := captureRouter(Authenticate(m.sessions, m.vault, domain.PermissionTransfer, zerolog.Nop()), &got, &method)

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("Authorization", "Bearer good_token")
	req.Header.Set(HeaderAPIKey, "ignored")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, userID, got)
	assert.Equal(t, AuthMethodSession, method)
}

func TestAuthenticate_ExpiredSession(t *testing.T) {
	m := newAuthMocks(t)
	m.sessions.EXPECT().ValidateSession(gomock.Any(), "old").Return(uuid.Nil, apperror.ErrSessionExpired())

	var got uuid.UUID
	var method string
	router := captureRouter(Authenticate(m.sessions, m.vault, domain.PermissionRead, zerolog.Nop()), &got, &method)

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("Authorization", "Bearer old")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "AUTH_002", errorCode(t, w))
}

func TestAuthenticate_APIKey(t *testing.T) {
	m := newAuthMocks(t)
	userID := uuid.New()
	m.vault.EXPECT().Authorize(gomock.Any(), "wsk_key", domain.PermissionDeposit).Return(userID, nil)

	var got uuid.UUID
	var method string
	router := captureRouter(Authenticate(m.sessions, m.vault, domain.PermissionDeposit, zerolog.Nop()), &got, &method)

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set(HeaderAPIKey, "wsk_key")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, userID, got)
	assert.Equal(t, AuthMethodAPIKey, method)
}

func TestAuthenticate_APIKeyRejections(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"invalid", apperror.ErrInvalidAPIKey(), http.StatusUnauthorized, "KEY_003"},
		{"expired", apperror.ErrKeyExpired(), http.StatusUnauthorized, "KEY_004"},
		{"forbidden", apperror.ErrMissingPermission("transfer"), http.StatusForbidden, "KEY_005"},
		{"internal", apperror.InternalError(errors.New("db down")), http.StatusInternalServerError, "SYS_001"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newAuthMocks(t)
			m.vault.EXPECT().Authorize(gomock.Any(), "wsk_key", domain.PermissionTransfer).Return(uuid.Nil, tt.err)

			var got uuid.UUID
			var method string
			router := captureRouter(Authenticate(m.sessions, m.vault, domain.PermissionTransfer, zerolog.Nop()), &got, &method)

			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			req.Header.Set(HeaderAPIKey, "wsk_key")
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.code, errorCode(t, w))
			assert.Equal(t, uuid.Nil, got)
		})
	}
}

func TestSessionOnly(t *testing.T) {
	t.Run("api key refused", func(t *testing.T) {
		m := newAuthMocks(t)
		var got uuid.UUID
		var method string
		router := captureRouter(SessionOnly(m.sessions), &got, &method)

		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set(HeaderAPIKey, "wsk_key")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Equal(t, "AUTH_005", errorCode(t, w))
	})

	t.Run("session accepted", func(t *testing.T) {
		m := newAuthMocks(t)
		userID := uuid.New()
		m.sessions.EXPECT().ValidateSession(gomock.Any(), "tok").Return(userID, nil)

		var got uuid.UUID
		var method string
		router := captureRouter(SessionOnly(m.sessions), &got, &method)

		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set("Authorization", "bearer tok")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, userID, got)
	})

	t.Run("nothing sent", func(t *testing.T) {
		m := newAuthMocks(t)
		var got uuid.UUID
		var method string
		router := captureRouter(SessionOnly(m.sessions), &got, &method)

		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set("Authorization", "Bearer ")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, "AUTH_004", errorCode(t, w))
	})
}

func TestRequestID(t *testing.T) {
	router := gin.New()
	router.Use(RequestID())
	router.GET("/test", func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString("request_id"))
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))
	generated := w.Header().Get(HeaderRequestID)
	assert.NotEmpty(t, generated)
	assert.Equal(t, generated, w.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set(HeaderRequestID, "abc-123")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Header().Get(HeaderRequestID))
}

func TestRequestLogger_LogsStatusAndUser(t *testing.T) {
	var buf bytes.Buffer
	userID := uuid.New()

	router := gin.New()
	router.Use(RequestLogger(logger.NewWithWriter("info", &buf)))
	router.GET("/test", func(c *gin.Context) {
		c.Set(CtxUserID, userID)
		c.Status(http.StatusNotFound)
	})

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/test", nil))

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, float64(404), entry["status"])
	assert.Equal(t, userID.String(), entry["user_id"])
}

func TestRecovery_PanicRecovered(t *testing.T) {
	log := zerolog.Nop()

	router := gin.New()
	router.Use(Recovery(log))
	router.GET("/panic", func(c *gin.Context) {
		panic("something went wrong")
	})

	req := httptest.NewRequest(http.MethodGet, "/panic", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "SYS_001", resp["error_code"])
}
