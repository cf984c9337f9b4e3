package ports

import (
	"context"
	"errors"
	"time"

	"wallet-service/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ErrTokenExpired is wrapped by TokenService.Validate for a well-formed but lapsed token.
var ErrTokenExpired = errors.New("token expired")

// EncryptionService handles AES-256-GCM encryption/decryption.
type EncryptionService interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// SignatureService computes and checks provider webhook signatures.
type SignatureService interface {
	Sign(secretKey string, payload []byte) string
	Verify(secretKey string, payload []byte, signature string) bool
}

// HashService handles secret hashing (Argon2id).
type HashService interface {
	Hash(secret string) (string, error)
	Verify(secret string, hash string) (bool, error)
}

// TokenService issues and validates session tokens.
type TokenService interface {
	Generate(userID uuid.UUID, email string) (string, time.Time, error)
	Validate(tokenString string) (*TokenClaims, error)
}

// TokenClaims holds the parsed session claims.
type TokenClaims struct {
	UserID    uuid.UUID
	Email     string
	ExpiresAt time.Time
}

// ExternalIdentity is a verified subject from the identity provider.
type ExternalIdentity struct {
	Subject string
	Email   string
	Name    string
}

// IdentityVerifier verifies an opaque identity assertion.
type IdentityVerifier interface {
	Verify(ctx context.Context, assertion string) (*ExternalIdentity, error)
}

// EventCache is the Redis fast path in front of the webhook event log.
type EventCache interface {
	// Lookup returns the remembered outcome for key, or "" if unknown.
	Lookup(ctx context.Context, key string) (domain.EventOutcome, error)
	Remember(ctx context.Context, key string, outcome domain.EventOutcome, ttl time.Duration) error
}

// --- Service Ports (Business Logic) ---

// LedgerService owns wallet balances and ledger entries.
type LedgerService interface {
	Deposit(ctx context.Context, walletNumber string, amount int64, externalReference string) (*domain.Transaction, error)
	// DepositTx credits inside a caller-owned transaction; the caller commits.
	DepositTx(ctx context.Context, dbTx pgx.Tx, walletNumber string, amount int64, externalReference string) (*domain.Transaction, error)
	Transfer(ctx context.Context, sourceWallet, destWallet string, amount int64) (*TransferResult, error)
	Reverse(ctx context.Context, transactionID uuid.UUID, reason string) ([]domain.Transaction, error)
	// ReverseTx reverses inside a caller-owned transaction; the caller commits.
	ReverseTx(ctx context.Context, dbTx pgx.Tx, transactionID uuid.UUID, reason string) ([]domain.Transaction, error)
	GetBalance(ctx context.Context, walletNumber string) (int64, error)
	GetWalletByUser(ctx context.Context, userID uuid.UUID) (*domain.Wallet, error)
	GetTransactionByReference(ctx context.Context, externalReference string) (*domain.Transaction, error)
	ListTransactions(ctx context.Context, walletNumber string, filter domain.TransactionFilter) ([]domain.Transaction, int64, error)
	GetSummary(ctx context.Context, walletNumber string) (*domain.WalletSummary, error)
}

// TransferResult is the debit/credit pair committed by a transfer.
type TransferResult struct {
	Debit  *domain.Transaction
	Credit *domain.Transaction
}

// PaymentEventKind distinguishes provider events the gate acts on.
type PaymentEventKind string

const (
	PaymentEventCharge PaymentEventKind = "charge"
	PaymentEventRefund PaymentEventKind = "refund"
)

// PaymentEvent is a parsed provider notification.
type PaymentEvent struct {
	Provider     string
	Kind         PaymentEventKind
	EventType    string // Provider's own event name, e.g. charge.success
	Reference    string
	WalletNumber string
	Amount       int64
	Payload      []byte
}

// AdmitResult is the gate's verdict for one delivery.
type AdmitResult struct {
	Outcome       domain.EventOutcome
	TransactionID *uuid.UUID
	Reason        string
}

// EventGate deduplicates provider events before they reach the ledger.
type EventGate interface {
	Admit(ctx context.Context, signatureValid bool, event PaymentEvent) (*AdmitResult, error)
}

// IssueKeyRequest holds validated input for key issuance.
type IssueKeyRequest struct {
	UserID       uuid.UUID
	Name         string
	Permissions  domain.PermissionSet
	DurationCode string
}

// IssuedKey carries the stored record and the one-time plaintext.
type IssuedKey struct {
	Key       *domain.APIKey
	Plaintext string
}

// CredentialVault issues, authorizes, rotates and revokes API keys.
type CredentialVault interface {
	Issue(ctx context.Context, req IssueKeyRequest) (*IssuedKey, error)
	Rollover(ctx context.Context, callerID uuid.UUID, oldKeyID uuid.UUID, durationCode string) (*IssuedKey, error)
	Authorize(ctx context.Context, rawKey string, required domain.Permission) (uuid.UUID, error)
	Revoke(ctx context.Context, keyID uuid.UUID, callerID uuid.UUID) error
	List(ctx context.Context, userID uuid.UUID) ([]domain.APIKey, error)
}

// Session is the result of a successful login.
type Session struct {
	Token     string
	ExpiresAt time.Time
	User      *domain.User
	Wallet    *domain.Wallet
	Created   bool
}

// SessionIssuer turns identity assertions into session tokens.
type SessionIssuer interface {
	Authenticate(ctx context.Context, assertion string) (*Session, error)
	ValidateSession(ctx context.Context, token string) (uuid.UUID, error)
}

// AuditService records audit events.
type AuditService interface {
	Log(ctx context.Context, entry *domain.AuditLog)
}
