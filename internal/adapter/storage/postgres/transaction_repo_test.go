package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"wallet-service/internal/core/domain"
	"wallet-service/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var transactionCols = []string{
	"id", "type", "amount", "wallet_number", "source_wallet", "destination_wallet",
	"external_reference", "correlation_id", "original_transaction_id", "description", "status",
	"created_at", "completed_at",
}

func newTestTransaction() *domain.Transaction {
	now := time.Now().UTC().Truncate(time.Microsecond)
	dest := "4123456789012"
	ref := "ref-1"
	return &domain.Transaction{
		ID:                uuid.New(),
		Type:              domain.TransactionTypeDeposit,
		Amount:            500,
		WalletNumber:      dest,
		DestinationWallet: &dest,
		ExternalReference: &ref,
		Description:       "Paystack deposit",
		Status:            domain.TransactionStatusPending,
		CreatedAt:         now,
	}
}

func addTransactionRow(rows *pgxmock.Rows, t *domain.Transaction) *pgxmock.Rows {
	return rows.AddRow(
		t.ID, t.Type, t.Amount, t.WalletNumber, t.SourceWallet, t.DestinationWallet,
		t.ExternalReference, t.CorrelationID, t.OriginalTransactionID, t.Description, t.Status,
		t.CreatedAt, t.CompletedAt,
	)
}

func TestTransactionRepo_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)
	txn := newTestTransaction()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO transactions").
		WithArgs(
			txn.ID, txn.Type, txn.Amount, txn.WalletNumber, txn.SourceWallet, txn.DestinationWallet,
			txn.ExternalReference, txn.CorrelationID, txn.OriginalTransactionID, txn.Description, txn.Status,
			txn.CreatedAt, txn.CompletedAt,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	assert.NoError(t, repo.Create(context.Background(), tx, txn))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepo_Create_DuplicateReference(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO transactions").
		WithArgs(anyArgs(13)...).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "transactions_external_reference_key"})

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	err = repo.Create(context.Background(), tx, newTestTransaction())
	assert.True(t, errors.Is(err, ports.ErrDuplicateKey))
	assert.Contains(t, err.Error(), "transactions_external_reference_key")
}

func TestTransactionRepo_UpdateStatus(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)
	id := uuid.New()
	at := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE transactions SET status").
		WithArgs(domain.TransactionStatusCompleted, at, id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	assert.NoError(t, repo.UpdateStatus(context.Background(), tx, id, domain.TransactionStatusCompleted, at))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepo_UpdateStatus_AlreadyTerminal(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE transactions SET status").
		WithArgs(anyArgs(3)...).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	err = repo.UpdateStatus(context.Background(), tx, uuid.New(), domain.TransactionStatusCompleted, time.Now())
	assert.Error(t, err)
}

func TestTransactionRepo_GetByID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)
	txn := newTestTransaction()

	mock.ExpectQuery("SELECT .+ FROM transactions WHERE id").
		WithArgs(txn.ID).
		WillReturnRows(addTransactionRow(pgxmock.NewRows(transactionCols), txn))

	result, err := repo.GetByID(context.Background(), txn.ID)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, txn.ID, result.ID)
	assert.Equal(t, "ref-1", *result.ExternalReference)
	assert.Nil(t, result.SourceWallet)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepo_GetByReference_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)

	mock.ExpectQuery("SELECT .+ FROM transactions WHERE external_reference").
		WithArgs("missing").
		WillReturnRows(pgxmock.NewRows(transactionCols))

	result, err := repo.GetByReference(context.Background(), "missing")
	assert.NoError(t, err)
	assert.Nil(t, result)
}

func TestTransactionRepo_ListByCorrelation(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)
	corr := uuid.New()
	src, dst := "4000000000001", "4000000000002"

	debit := newTestTransaction()
	debit.Type = domain.TransactionTypeTransferDebit
	debit.WalletNumber = src
	debit.SourceWallet = &src
	debit.DestinationWallet = &dst
	debit.ExternalReference = nil
	debit.CorrelationID = &corr

	credit := *debit
	credit.ID = uuid.New()
	credit.Type = domain.TransactionTypeTransferCredit
	credit.WalletNumber = dst

	rows := pgxmock.NewRows(transactionCols)
	addTransactionRow(rows, debit)
	addTransactionRow(rows, &credit)

	mock.ExpectQuery("SELECT .+ FROM transactions WHERE correlation_id").
		WithArgs(corr).
		WillReturnRows(rows)

	legs, err := repo.ListByCorrelation(context.Background(), corr)
	require.NoError(t, err)
	require.Len(t, legs, 2)
	assert.True(t, legs[0].IsDebit())
	assert.False(t, legs[1].IsDebit())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepo_ReversalExists(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)
	original := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(original).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	exists, err := repo.ReversalExists(context.Background(), tx, original)
	require.NoError(t, err)
	assert.True(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepo_List(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)
	txn := newTestTransaction()

	mock.ExpectQuery("SELECT COUNT").
		WithArgs(txn.WalletNumber).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(1)))
	mock.ExpectQuery("SELECT .+ FROM transactions WHERE wallet_number = .+ ORDER BY created_at DESC").
		WithArgs(txn.WalletNumber, domain.DefaultPageLimit, 0).
		WillReturnRows(addTransactionRow(pgxmock.NewRows(transactionCols), txn))

	txns, total, err := repo.List(context.Background(), txn.WalletNumber, domain.TransactionFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Len(t, txns, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepo_List_WithFilters(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)
	wallet := "4123456789012"
	txType := domain.TransactionTypeTransferDebit
	status := domain.TransactionStatusCompleted
	from := time.Now().Add(-24 * time.Hour).UTC()

	filter := domain.TransactionFilter{Type: &txType, Status: &status, From: &from, Limit: 10, Offset: 20}

	mock.ExpectQuery("SELECT COUNT").
		WithArgs(wallet, txType, status, from).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(0)))
	mock.ExpectQuery("SELECT .+ FROM transactions").
		WithArgs(wallet, txType, status, from, 10, 20).
		WillReturnRows(pgxmock.NewRows(transactionCols))

	txns, total, err := repo.List(context.Background(), wallet, filter)
	require.NoError(t, err)
	assert.Equal(t, int64(0), total)
	assert.Empty(t, txns)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepo_GetSummary(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)
	wallet := "4123456789012"

	mock.ExpectQuery("SELECT\\s+COUNT\\(\\*\\)").
		WithArgs(wallet).
		WillReturnRows(pgxmock.NewRows([]string{"transactions", "deposited", "sent", "received", "reversed"}).
			AddRow(int64(4), int64(10000), int64(3000), int64(250), int64(0)))

	summary, err := repo.GetSummary(context.Background(), wallet)
	require.NoError(t, err)
	assert.Equal(t, wallet, summary.WalletNumber)
	assert.Equal(t, int64(4), summary.Transactions)
	assert.Equal(t, int64(10000), summary.TotalDeposited)
	assert.Equal(t, int64(3000), summary.TotalSent)
	assert.Equal(t, int64(250), summary.TotalReceived)
	assert.NoError(t, mock.ExpectationsWereMet())
}
