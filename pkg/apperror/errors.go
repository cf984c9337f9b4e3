package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for propagation and retry decisions.
type Kind string

const (
	KindValidation   Kind = "validation"
	KindNotFound     Kind = "not_found"
	KindConflict     Kind = "conflict"
	KindUnauthorized Kind = "unauthorized"
	KindForbidden    Kind = "forbidden"
	KindInternal     Kind = "internal"
)

// AppError is a structured error that maps to HTTP responses.
type AppError struct {
	Code       string `json:"error_code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	Kind       Kind   `json:"-"`
	Err        error  `json:"-"` // Wrapped internal error (not exposed to client)
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(kind Kind, code string, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Kind:       kind,
	}
}

// Wrap wraps an internal error with an AppError.
func Wrap(kind Kind, code string, message string, httpStatus int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Kind:       kind,
		Err:        err,
	}
}

// KindOf reports the Kind of err. Errors that are not AppErrors are Internal.
func KindOf(err error) Kind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// IsRetryable reports whether a caller may retry the failed operation with backoff.
func IsRetryable(err error) bool {
	return err != nil && KindOf(err) == KindInternal
}

// HasCode reports whether err is an AppError carrying code.
func HasCode(err error, code string) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}

// ---- Validation (VAL) ----

// Validation returns a VAL_001 error with a caller-facing message.
func Validation(message string) *AppError {
	return New(KindValidation, "VAL_001", message, http.StatusBadRequest)
}

// ErrPayloadTooLarge is returned when a request body exceeds the server limit.
func ErrPayloadTooLarge() *AppError {
	return New(KindValidation, "VAL_002", "Request body too large", http.StatusRequestEntityTooLarge)
}

// ---- Ledger (WAL) ----

func ErrInsufficientBalance() *AppError {
	return New(KindConflict, "WAL_001", "Insufficient balance", http.StatusBadRequest)
}

func ErrInvalidAmount() *AppError {
	return New(KindValidation, "WAL_002", "Amount must be a positive number of minor units", http.StatusBadRequest)
}

func ErrDuplicateReference() *AppError {
	return New(KindConflict, "WAL_003", "External reference already bound to a transaction", http.StatusConflict)
}

func ErrNotFound(entity string) *AppError {
	return New(KindNotFound, "WAL_004", fmt.Sprintf("%s not found", entity), http.StatusNotFound)
}

func ErrSameWallet() *AppError {
	return New(KindConflict, "WAL_005", "Cannot transfer to the same wallet", http.StatusBadRequest)
}

func ErrAlreadyReversed() *AppError {
	return New(KindConflict, "WAL_006", "Transaction has already been reversed", http.StatusConflict)
}

func ErrNotReversible() *AppError {
	return New(KindConflict, "WAL_007", "Transaction is not eligible for reversal", http.StatusBadRequest)
}

func ErrAmountMismatch() *AppError {
	return New(KindConflict, "WAL_008", "Amount does not match the original transaction", http.StatusConflict)
}

// ---- Credential Vault (KEY) ----

func ErrKeyLimitExceeded(max int) *AppError {
	return New(KindConflict, "KEY_001", fmt.Sprintf("Maximum of %d active API keys reached", max), http.StatusBadRequest)
}

func ErrKeyNotExpired() *AppError {
	return New(KindConflict, "KEY_002", "API key is still active and cannot be rolled over", http.StatusBadRequest)
}

func ErrInvalidAPIKey() *AppError {
	return New(KindUnauthorized, "KEY_003", "Invalid API key", http.StatusUnauthorized)
}

func ErrKeyExpired() *AppError {
	return New(KindUnauthorized, "KEY_004", "API key has expired", http.StatusUnauthorized)
}

func ErrMissingPermission(permission string) *AppError {
	return New(KindForbidden, "KEY_005", fmt.Sprintf("API key lacks %q permission", permission), http.StatusForbidden)
}

func ErrNotOwner() *AppError {
	return New(KindForbidden, "KEY_006", "API key belongs to another user", http.StatusForbidden)
}

func ErrInvalidDuration() *AppError {
	return New(KindValidation, "KEY_007", "Expiry must be one of 1H, 1D, 1M, 1Y", http.StatusBadRequest)
}

func ErrKeyRevoked() *AppError {
	return New(KindConflict, "KEY_008", "Revoked API keys cannot be rolled over", http.StatusBadRequest)
}

// ---- Identity & Session (AUTH) ----

func ErrInvalidToken() *AppError {
	return New(KindUnauthorized, "AUTH_001", "Invalid session token", http.StatusUnauthorized)
}

func ErrSessionExpired() *AppError {
	return New(KindUnauthorized, "AUTH_002", "Session has expired", http.StatusUnauthorized)
}

func ErrInvalidIdentity() *AppError {
	return New(KindUnauthorized, "AUTH_003", "Identity assertion could not be verified", http.StatusUnauthorized)
}

func ErrMissingCredentials() *AppError {
	return New(KindUnauthorized, "AUTH_004", "Missing bearer token or API key", http.StatusUnauthorized)
}

func ErrSessionRequired() *AppError {
	return New(KindForbidden, "AUTH_005", "This operation requires a user session", http.StatusForbidden)
}

// ---- Webhooks (WHK) ----

func ErrInvalidSignature() *AppError {
	return New(KindUnauthorized, "WHK_001", "Invalid webhook signature", http.StatusUnauthorized)
}

// ---- Rate Limiting (RATE) ----

func ErrRateLimitExceeded() *AppError {
	return New(KindConflict, "RATE_001", "Rate limit exceeded", http.StatusTooManyRequests)
}

// ---- System & Infrastructure (SYS) ----

// InternalError wraps an internal error as a SYS_001 error.
func InternalError(err error) *AppError {
	return Wrap(KindInternal, "SYS_001", "Internal server error", http.StatusInternalServerError, err)
}

func ErrConcurrentModification(err error) *AppError {
	return Wrap(KindInternal, "SYS_002", "Concurrent modification, retry the request", http.StatusServiceUnavailable, err)
}

func ErrEncryptionFailure(err error) *AppError {
	return Wrap(KindInternal, "SYS_003", "Encryption service failure", http.StatusInternalServerError, err)
}
