package ports

import (
	"context"
	"errors"
	"time"

	"wallet-service/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Storage adapters wrap these so services can branch on them with errors.Is.
var (
	// ErrDuplicateKey signals a unique-constraint violation.
	ErrDuplicateKey = errors.New("duplicate key")
	// ErrVersionConflict signals a stale wallet version on update.
	ErrVersionConflict = errors.New("version conflict")
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	Create(ctx context.Context, tx pgx.Tx, user *domain.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	GetBySubject(ctx context.Context, subject string) (*domain.User, error)
	// GetByIDForUpdate locks the user row; it serializes per-user counters such as active keys.
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.User, error)
}

// WalletRepository defines persistence operations for wallets.
// Methods accepting pgx.Tx are used inside transaction blocks for pessimistic locking.
type WalletRepository interface {
	Create(ctx context.Context, tx pgx.Tx, wallet *domain.Wallet) error
	GetByNumber(ctx context.Context, walletNumber string) (*domain.Wallet, error)
	GetByUserID(ctx context.Context, userID uuid.UUID) (*domain.Wallet, error)
	GetByNumberForUpdate(ctx context.Context, tx pgx.Tx, walletNumber string) (*domain.Wallet, error)
	// UpdateBalance writes balance if the stored version still equals version, bumping it.
	UpdateBalance(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, balance int64, version int64) error
}

// TransactionRepository defines persistence operations for ledger entries.
type TransactionRepository interface {
	Create(ctx context.Context, tx pgx.Tx, transaction *domain.Transaction) error
	UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.TransactionStatus, at time.Time) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error)
	GetByReference(ctx context.Context, externalReference string) (*domain.Transaction, error)
	ListByCorrelation(ctx context.Context, correlationID uuid.UUID) ([]domain.Transaction, error)
	ReversalExists(ctx context.Context, tx pgx.Tx, originalID uuid.UUID) (bool, error)
	List(ctx context.Context, walletNumber string, filter domain.TransactionFilter) ([]domain.Transaction, int64, error)
	GetSummary(ctx context.Context, walletNumber string) (*domain.WalletSummary, error)
}

// APIKeyRepository defines persistence operations for API keys.
type APIKeyRepository interface {
	Create(ctx context.Context, tx pgx.Tx, key *domain.APIKey) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.APIKey, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.APIKey, error)
	GetByPrefix(ctx context.Context, prefix string) (*domain.APIKey, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.APIKey, error)
	// CountActive counts keys in ACTIVE status whose expiry is after now.
	CountActive(ctx context.Context, tx pgx.Tx, userID uuid.UUID, now time.Time) (int, error)
	UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.APIKeyStatus) error
	// MarkExpired flips an ACTIVE key to EXPIRED outside any caller transaction.
	MarkExpired(ctx context.Context, id uuid.UUID) error
}

// WebhookEventRepository persists the idempotency log for provider events.
type WebhookEventRepository interface {
	// InsertIfAbsent stores event unless its key exists. Returns false on conflict.
	InsertIfAbsent(ctx context.Context, tx pgx.Tx, event *domain.WebhookEvent) (bool, error)
	GetByKey(ctx context.Context, eventKey string) (*domain.WebhookEvent, error)
	LinkTransaction(ctx context.Context, tx pgx.Tx, eventKey string, transactionID uuid.UUID) error
}

// AuditRepository persists audit entries.
type AuditRepository interface {
	Create(ctx context.Context, log *domain.AuditLog) error
}

// DBTransactor provides database transaction management.
type DBTransactor interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}
