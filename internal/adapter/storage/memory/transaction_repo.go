package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"wallet-service/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// TransactionRepo implements ports.TransactionRepository.
type TransactionRepo struct {
	store *Store
}

// NewTransactionRepo creates a new TransactionRepo.
func NewTransactionRepo(store *Store) *TransactionRepo {
	return &TransactionRepo{store: store}
}

func (r *TransactionRepo) Create(ctx context.Context, tx pgx.Tx, txn *domain.Transaction) error {
	t, err := txOf(tx)
	if err != nil {
		return err
	}
	if txn.ExternalReference != nil {
		ref := *txn.ExternalReference
		if err := t.lock(ctx, "txn:ref:"+ref); err != nil {
			return err
		}
		if t.transactionExists(func(x domain.Transaction) bool {
			return x.ExternalReference != nil && *x.ExternalReference == ref
		}) {
			return duplicate("transactions_external_reference_key")
		}
	}
	if txn.Type == domain.TransactionTypeReversal && txn.OriginalTransactionID != nil {
		orig := *txn.OriginalTransactionID
		if err := t.lock(ctx, "txn:reversal:"+orig.String()); err != nil {
			return err
		}
		if t.reversalExists(orig) {
			return duplicate("transactions_reversal_original_key")
		}
	}
	if err := t.lock(ctx, "txn:"+txn.ID.String()); err != nil {
		return err
	}
	t.transactions[txn.ID] = *txn
	return nil
}

func (r *TransactionRepo) UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.TransactionStatus, at time.Time) error {
	t, err := txOf(tx)
	if err != nil {
		return err
	}
	if err := t.lock(ctx, "txn:"+id.String()); err != nil {
		return err
	}
	txn, ok := t.transactions[id]
	if !ok {
		t.store.mu.RLock()
		txn, ok = t.store.transactions[id]
		t.store.mu.RUnlock()
	}
	if !ok || txn.Status != domain.TransactionStatusPending {
		return fmt.Errorf("pending transaction not found: %s", id)
	}
	txn.Status = status
	txn.CompletedAt = &at
	t.transactions[id] = txn
	return nil
}

func (r *TransactionRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Transaction, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	txn, ok := r.store.transactions[id]
	if !ok {
		return nil, nil
	}
	return &txn, nil
}

func (r *TransactionRepo) GetByReference(_ context.Context, externalReference string) (*domain.Transaction, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	for _, txn := range r.store.transactions {
		if txn.ExternalReference != nil && *txn.ExternalReference == externalReference {
			return &txn, nil
		}
	}
	return nil, nil
}

func (r *TransactionRepo) ListByCorrelation(_ context.Context, correlationID uuid.UUID) ([]domain.Transaction, error) {
	txns := r.where(func(x domain.Transaction) bool {
		return x.CorrelationID != nil && *x.CorrelationID == correlationID
	})
	sort.Slice(txns, func(i, j int) bool {
		if !txns[i].CreatedAt.Equal(txns[j].CreatedAt) {
			return txns[i].CreatedAt.Before(txns[j].CreatedAt)
		}
		return txns[i].Type < txns[j].Type
	})
	return txns, nil
}

func (r *TransactionRepo) ReversalExists(_ context.Context, tx pgx.Tx, originalID uuid.UUID) (bool, error) {
	t, err := txOf(tx)
	if err != nil {
		return false, err
	}
	return t.reversalExists(originalID), nil
}

func (r *TransactionRepo) List(_ context.Context, walletNumber string, filter domain.TransactionFilter) ([]domain.Transaction, int64, error) {
	filter = filter.Normalize()
	txns := r.where(func(x domain.Transaction) bool {
		switch {
		case x.WalletNumber != walletNumber:
			return false
		case filter.Type != nil && x.Type != *filter.Type:
			return false
		case filter.Status != nil && x.Status != *filter.Status:
			return false
		case filter.From != nil && x.CreatedAt.Before(*filter.From):
			return false
		case filter.To != nil && x.CreatedAt.After(*filter.To):
			return false
		}
		return true
	})
	sort.Slice(txns, func(i, j int) bool {
		if !txns[i].CreatedAt.Equal(txns[j].CreatedAt) {
			return txns[i].CreatedAt.After(txns[j].CreatedAt)
		}
		return txns[i].ID.String() < txns[j].ID.String()
	})

	total := int64(len(txns))
	if filter.Offset >= len(txns) {
		return []domain.Transaction{}, total, nil
	}
	end := filter.Offset + filter.Limit
	if end > len(txns) {
		end = len(txns)
	}
	return txns[filter.Offset:end], total, nil
}

func (r *TransactionRepo) GetSummary(_ context.Context, walletNumber string) (*domain.WalletSummary, error) {
	s := &domain.WalletSummary{WalletNumber: walletNumber}
	for _, x := range r.where(func(x domain.Transaction) bool {
		return x.WalletNumber == walletNumber && x.Status == domain.TransactionStatusCompleted
	}) {
		s.Transactions++
		switch x.Type {
		case domain.TransactionTypeDeposit:
			s.TotalDeposited += x.Amount
		case domain.TransactionTypeTransferDebit:
			s.TotalSent += x.Amount
		case domain.TransactionTypeTransferCredit:
			s.TotalReceived += x.Amount
		case domain.TransactionTypeReversal:
			s.TotalReversed += x.Amount
		}
	}
	return s, nil
}

func (r *TransactionRepo) where(match func(domain.Transaction) bool) []domain.Transaction {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var out []domain.Transaction
	for _, x := range r.store.transactions {
		if match(x) {
			out = append(out, x)
		}
	}
	return out
}

func (t *Tx) transactionExists(match func(domain.Transaction) bool) bool {
	for _, x := range t.transactions {
		if match(x) {
			return true
		}
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	for _, x := range t.store.transactions {
		if match(x) {
			return true
		}
	}
	return false
}

func (t *Tx) reversalExists(originalID uuid.UUID) bool {
	return t.transactionExists(func(x domain.Transaction) bool {
		return x.Type == domain.TransactionTypeReversal &&
			x.OriginalTransactionID != nil && *x.OriginalTransactionID == originalID
	})
}
