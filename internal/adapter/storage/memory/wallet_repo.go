package memory

import (
	"context"
	"fmt"
	"time"

	"wallet-service/internal/core/domain"
	"wallet-service/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// WalletRepo implements ports.WalletRepository.
type WalletRepo struct {
	store *Store
}

// NewWalletRepo creates a new WalletRepo.
func NewWalletRepo(store *Store) *WalletRepo {
	return &WalletRepo{store: store}
}

func (r *WalletRepo) Create(ctx context.Context, tx pgx.Tx, wallet *domain.Wallet) error {
	t, err := txOf(tx)
	if err != nil {
		return err
	}
	if wallet.Balance < 0 {
		return fmt.Errorf("insert wallet: balance must be non-negative")
	}
	if err := t.lock(ctx, "wallet:number:"+wallet.WalletNumber); err != nil {
		return err
	}
	if _, ok := t.walletWhere(func(w domain.Wallet) bool { return w.WalletNumber == wallet.WalletNumber }); ok {
		return duplicate("wallets_wallet_number_key")
	}
	if err := t.lock(ctx, "wallet:user:"+wallet.UserID.String()); err != nil {
		return err
	}
	if _, ok := t.walletWhere(func(w domain.Wallet) bool { return w.UserID == wallet.UserID }); ok {
		return duplicate("wallets_user_id_key")
	}
	if err := t.lock(ctx, "wallet:"+wallet.ID.String()); err != nil {
		return err
	}
	t.wallets[wallet.ID] = *wallet
	return nil
}

func (r *WalletRepo) GetByNumber(_ context.Context, walletNumber string) (*domain.Wallet, error) {
	return r.committed(func(w domain.Wallet) bool { return w.WalletNumber == walletNumber }), nil
}

func (r *WalletRepo) GetByUserID(_ context.Context, userID uuid.UUID) (*domain.Wallet, error) {
	return r.committed(func(w domain.Wallet) bool { return w.UserID == userID }), nil
}

// GetByNumberForUpdate locks the wallet row and returns its latest committed
// state, or the transaction's own staged state.
func (r *WalletRepo) GetByNumberForUpdate(ctx context.Context, tx pgx.Tx, walletNumber string) (*domain.Wallet, error) {
	t, err := txOf(tx)
	if err != nil {
		return nil, err
	}
	w, ok := t.walletWhere(func(w domain.Wallet) bool { return w.WalletNumber == walletNumber })
	if !ok {
		return nil, nil
	}
	if err := t.lock(ctx, "wallet:"+w.ID.String()); err != nil {
		return nil, err
	}
	w, _ = t.wallet(w.ID)
	return &w, nil
}

func (r *WalletRepo) UpdateBalance(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, balance int64, version int64) error {
	t, err := txOf(tx)
	if err != nil {
		return err
	}
	if err := t.lock(ctx, "wallet:"+walletID.String()); err != nil {
		return err
	}
	w, ok := t.wallet(walletID)
	if !ok || w.Version != version {
		return fmt.Errorf("update wallet %s balance: %w", walletID, ports.ErrVersionConflict)
	}
	if balance < 0 {
		return fmt.Errorf("update wallet %s balance: balance must be non-negative", walletID)
	}
	w.Balance = balance
	w.Version++
	w.UpdatedAt = time.Now().UTC()
	t.wallets[walletID] = w
	return nil
}

func (r *WalletRepo) committed(match func(domain.Wallet) bool) *domain.Wallet {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	for _, w := range r.store.wallets {
		if match(w) {
			return &w
		}
	}
	return nil
}

func (t *Tx) wallet(id uuid.UUID) (domain.Wallet, bool) {
	if w, ok := t.wallets[id]; ok {
		return w, true
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	w, ok := t.store.wallets[id]
	return w, ok
}

func (t *Tx) walletWhere(match func(domain.Wallet) bool) (domain.Wallet, bool) {
	for _, w := range t.wallets {
		if match(w) {
			return w, true
		}
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	for _, w := range t.store.wallets {
		if match(w) {
			return w, true
		}
	}
	return domain.Wallet{}, false
}
