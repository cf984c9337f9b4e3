package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"wallet-service/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const transactionColumns = `id, type, amount, wallet_number, source_wallet, destination_wallet,
		external_reference, correlation_id, original_transaction_id, description, status,
		created_at, completed_at`

// TransactionRepo implements ports.TransactionRepository.
type TransactionRepo struct {
	pool Pool
}

// NewTransactionRepo creates a new TransactionRepo.
func NewTransactionRepo(pool Pool) *TransactionRepo {
	return &TransactionRepo{pool: pool}
}

// Create inserts a ledger entry within a database transaction.
// Reusing an external reference or reversing the same entry twice surfaces as ports.ErrDuplicateKey.
func (r *TransactionRepo) Create(ctx context.Context, tx pgx.Tx, t *domain.Transaction) error {
	query := `INSERT INTO transactions (` + transactionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err := tx.Exec(ctx, query,
		t.ID, t.Type, t.Amount, t.WalletNumber, t.SourceWallet, t.DestinationWallet,
		t.ExternalReference, t.CorrelationID, t.OriginalTransactionID, t.Description, t.Status,
		t.CreatedAt, t.CompletedAt,
	)
	if err != nil {
		return classify("insert transaction", err)
	}
	return nil
}

// UpdateStatus moves a PENDING entry to its terminal status.
func (r *TransactionRepo) UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.TransactionStatus, at time.Time) error {
	query := `UPDATE transactions SET status = $1, completed_at = $2 WHERE id = $3 AND status = 'PENDING'`

	tag, err := tx.Exec(ctx, query, status, at, id)
	if err != nil {
		return fmt.Errorf("update transaction status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("pending transaction not found: %s", id)
	}
	return nil
}

// GetByID fetches a transaction by UUID.
func (r *TransactionRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`
	return scanTransaction(r.pool.QueryRow(ctx, query, id))
}

// GetByReference fetches the transaction bound to a provider reference.
func (r *TransactionRepo) GetByReference(ctx context.Context, externalReference string) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE external_reference = $1`
	return scanTransaction(r.pool.QueryRow(ctx, query, externalReference))
}

// ListByCorrelation returns every leg sharing a correlation id, oldest first.
func (r *TransactionRepo) ListByCorrelation(ctx context.Context, correlationID uuid.UUID) ([]domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE correlation_id = $1 ORDER BY created_at, type`

	rows, err := r.pool.Query(ctx, query, correlationID)
	if err != nil {
		return nil, fmt.Errorf("list correlated transactions: %w", err)
	}
	return collectTransactions(rows)
}

// ReversalExists reports whether a reversal already points at originalID.
func (r *TransactionRepo) ReversalExists(ctx context.Context, tx pgx.Tx, originalID uuid.UUID) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM transactions WHERE original_transaction_id = $1 AND type = 'REVERSAL')`

	var exists bool
	if err := tx.QueryRow(ctx, query, originalID).Scan(&exists); err != nil {
		return false, fmt.Errorf("check reversal exists: %w", err)
	}
	return exists, nil
}

// List fetches a wallet's entries newest first with filtering and offset pagination.
func (r *TransactionRepo) List(ctx context.Context, walletNumber string, filter domain.TransactionFilter) ([]domain.Transaction, int64, error) {
	filter = filter.Normalize()

	conditions := []string{"wallet_number = $1"}
	args := []any{walletNumber}
	argIdx := 2

	if filter.Type != nil {
		conditions = append(conditions, fmt.Sprintf("type = $%d", argIdx))
		args = append(args, *filter.Type)
		argIdx++
	}
	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, *filter.Status)
		argIdx++
	}
	if filter.From != nil {
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", argIdx))
		args = append(args, *filter.From)
		argIdx++
	}
	if filter.To != nil {
		conditions = append(conditions, fmt.Sprintf("created_at <= $%d", argIdx))
		args = append(args, *filter.To)
		argIdx++
	}

	where := "WHERE " + strings.Join(conditions, " AND ")

	var total int64
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM transactions "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count transactions: %w", err)
	}

	dataQuery := fmt.Sprintf(`SELECT %s FROM transactions %s ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d`,
		transactionColumns, where, argIdx, argIdx+1)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.pool.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list transactions: %w", err)
	}
	txns, err := collectTransactions(rows)
	if err != nil {
		return nil, 0, err
	}
	return txns, total, nil
}

// GetSummary aggregates completed entries for a wallet.
func (r *TransactionRepo) GetSummary(ctx context.Context, walletNumber string) (*domain.WalletSummary, error) {
	query := `SELECT
		COUNT(*) AS transactions,
		COALESCE(SUM(amount) FILTER (WHERE type = 'DEPOSIT'), 0) AS deposited,
		COALESCE(SUM(amount) FILTER (WHERE type = 'TRANSFER_DEBIT'), 0) AS sent,
		COALESCE(SUM(amount) FILTER (WHERE type = 'TRANSFER_CREDIT'), 0) AS received,
		COALESCE(SUM(amount) FILTER (WHERE type = 'REVERSAL'), 0) AS reversed
		FROM transactions WHERE wallet_number = $1 AND status = 'COMPLETED'`

	s := &domain.WalletSummary{WalletNumber: walletNumber}
	err := r.pool.QueryRow(ctx, query, walletNumber).Scan(
		&s.Transactions, &s.TotalDeposited, &s.TotalSent, &s.TotalReceived, &s.TotalReversed,
	)
	if err != nil {
		return nil, fmt.Errorf("get wallet summary: %w", err)
	}
	return s, nil
}

func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	t := &domain.Transaction{}
	err := row.Scan(
		&t.ID, &t.Type, &t.Amount, &t.WalletNumber, &t.SourceWallet, &t.DestinationWallet,
		&t.ExternalReference, &t.CorrelationID, &t.OriginalTransactionID, &t.Description, &t.Status,
		&t.CreatedAt, &t.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan transaction: %w", err)
	}
	return t, nil
}

func collectTransactions(rows pgx.Rows) ([]domain.Transaction, error) {
	defer rows.Close()

	var txns []domain.Transaction
	for rows.Next() {
		t := domain.Transaction{}
		err := rows.Scan(
			&t.ID, &t.Type, &t.Amount, &t.WalletNumber, &t.SourceWallet, &t.DestinationWallet,
			&t.ExternalReference, &t.CorrelationID, &t.OriginalTransactionID, &t.Description, &t.Status,
			&t.CreatedAt, &t.CompletedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan transaction row: %w", err)
		}
		txns = append(txns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transaction rows: %w", err)
	}
	return txns, nil
}
