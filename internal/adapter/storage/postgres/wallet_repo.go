package postgres

import (
	"context"
	"errors"
	"fmt"

	"wallet-service/internal/core/domain"
	"wallet-service/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const walletColumns = `id, user_id, wallet_number, balance, currency, version, created_at, updated_at`

// WalletRepo implements ports.WalletRepository.
type WalletRepo struct {
	pool Pool
}

// NewWalletRepo creates a new WalletRepo.
func NewWalletRepo(pool Pool) *WalletRepo {
	return &WalletRepo{pool: pool}
}

// Create inserts a new wallet. A wallet number collision surfaces as ports.ErrDuplicateKey.
func (r *WalletRepo) Create(ctx context.Context, tx pgx.Tx, w *domain.Wallet) error {
	query := `INSERT INTO wallets (` + walletColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := tx.Exec(ctx, query,
		w.ID, w.UserID, w.WalletNumber, w.Balance, w.Currency, w.Version,
		w.CreatedAt, w.UpdatedAt,
	)
	if err != nil {
		return classify("insert wallet", err)
	}
	return nil
}

// GetByNumber fetches a wallet by its wallet number (non-locking read of committed state).
func (r *WalletRepo) GetByNumber(ctx context.Context, walletNumber string) (*domain.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE wallet_number = $1`
	return scanWallet(r.pool.QueryRow(ctx, query, walletNumber), "get wallet by number")
}

// GetByUserID fetches the wallet owned by a user.
func (r *WalletRepo) GetByUserID(ctx context.Context, userID uuid.UUID) (*domain.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE user_id = $1`
	return scanWallet(r.pool.QueryRow(ctx, query, userID), "get wallet by user")
}

// GetByNumberForUpdate fetches a wallet with pessimistic locking.
// This MUST be called within a transaction.
func (r *WalletRepo) GetByNumberForUpdate(ctx context.Context, tx pgx.Tx, walletNumber string) (*domain.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE wallet_number = $1 FOR UPDATE`
	return scanWallet(tx.QueryRow(ctx, query, walletNumber), "get wallet for update")
}

// UpdateBalance sets a new balance when the stored version matches, bumping the version.
func (r *WalletRepo) UpdateBalance(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, balance int64, version int64) error {
	query := `UPDATE wallets SET balance = $1, version = version + 1, updated_at = NOW()
		WHERE id = $2 AND version = $3`

	tag, err := tx.Exec(ctx, query, balance, walletID, version)
	if err != nil {
		return fmt.Errorf("update wallet balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("wallet %s at version %d: %w", walletID, version, ports.ErrVersionConflict)
	}
	return nil
}

func scanWallet(row pgx.Row, op string) (*domain.Wallet, error) {
	w := &domain.Wallet{}
	err := row.Scan(
		&w.ID, &w.UserID, &w.WalletNumber, &w.Balance, &w.Currency, &w.Version,
		&w.CreatedAt, &w.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return w, nil
}
