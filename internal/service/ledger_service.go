package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"wallet-service/internal/core/domain"
	"wallet-service/internal/core/ports"
	"wallet-service/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// LedgerServiceImpl implements ports.LedgerService.
// Every balance change happens under the wallet's row lock together with the
// ledger entries that explain it, inside one database transaction.
type LedgerServiceImpl struct {
	walletRepo ports.WalletRepository
	txRepo     ports.TransactionRepository
	transactor ports.DBTransactor
	log        zerolog.Logger
	now        func() time.Time
}

// NewLedgerService creates a new LedgerServiceImpl.
func NewLedgerService(
	walletRepo ports.WalletRepository,
	txRepo ports.TransactionRepository,
	transactor ports.DBTransactor,
	log zerolog.Logger,
) *LedgerServiceImpl {
	return &LedgerServiceImpl{
		walletRepo: walletRepo,
		txRepo:     txRepo,
		transactor: transactor,
		log:        log,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Deposit credits a wallet for a provider reference in its own transaction.
func (s *LedgerServiceImpl) Deposit(ctx context.Context, walletNumber string, amount int64, externalReference string) (*domain.Transaction, error) {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	txn, err := s.DepositTx(ctx, dbTx, walletNumber, amount, externalReference)
	if err != nil {
		return nil, err
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.log.Info().
		Str("tx_id", txn.ID.String()).
		Str("wallet_number", walletNumber).
		Str("reference", externalReference).
		Int64("amount", amount).
		Msg("deposit completed")

	return txn, nil
}

// DepositTx credits a wallet inside dbTx. The caller commits or rolls back.
func (s *LedgerServiceImpl) DepositTx(ctx context.Context, dbTx pgx.Tx, walletNumber string, amount int64, externalReference string) (*domain.Transaction, error) {
	if amount <= 0 {
		return nil, apperror.ErrInvalidAmount()
	}
	if strings.TrimSpace(externalReference) == "" {
		return nil, apperror.Validation("external reference is required")
	}

	wallets, err := s.lockWallets(ctx, dbTx, walletNumber)
	if err != nil {
		return nil, err
	}
	wallet := wallets[walletNumber]

	ref := externalReference
	txn := s.newEntry(domain.TransactionTypeDeposit, amount, walletNumber)
	txn.DestinationWallet = &txn.WalletNumber
	txn.ExternalReference = &ref
	txn.Description = "Deposit " + ref

	if err := s.record(ctx, dbTx, txn, apperror.ErrDuplicateReference); err != nil {
		return nil, err
	}
	if err := s.post(ctx, dbTx, wallet, amount); err != nil {
		return nil, err
	}
	if err := s.complete(ctx, dbTx, txn); err != nil {
		return nil, err
	}
	return txn, nil
}

// Transfer moves amount from sourceWallet to destWallet as one atomic unit.
func (s *LedgerServiceImpl) Transfer(ctx context.Context, sourceWallet, destWallet string, amount int64) (*ports.TransferResult, error) {
	if amount <= 0 {
		return nil, apperror.ErrInvalidAmount()
	}
	if sourceWallet == destWallet {
		return nil, apperror.ErrSameWallet()
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	wallets, err := s.lockWallets(ctx, dbTx, sourceWallet, destWallet)
	if err != nil {
		return nil, err
	}
	src, dst := wallets[sourceWallet], wallets[destWallet]

	if !src.CanDebit(amount) {
		return nil, apperror.ErrInsufficientBalance()
	}

	correlationID := uuid.New()
	debit := s.newEntry(domain.TransactionTypeTransferDebit, amount, src.WalletNumber)
	credit := s.newEntry(domain.TransactionTypeTransferCredit, amount, dst.WalletNumber)
	for _, e := range []*domain.Transaction{debit, credit} {
		e.SourceWallet = &src.WalletNumber
		e.DestinationWallet = &dst.WalletNumber
		e.CorrelationID = &correlationID
	}
	debit.Description = "Transfer to " + dst.WalletNumber
	credit.Description = "Transfer from " + src.WalletNumber

	if err := s.record(ctx, dbTx, debit, nil); err != nil {
		return nil, err
	}
	if err := s.record(ctx, dbTx, credit, nil); err != nil {
		return nil, err
	}
	if err := s.post(ctx, dbTx, src, -amount); err != nil {
		return nil, err
	}
	if err := s.post(ctx, dbTx, dst, amount); err != nil {
		return nil, err
	}
	if err := s.complete(ctx, dbTx, debit, credit); err != nil {
		return nil, err
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.log.Info().
		Str("correlation_id", correlationID.String()).
		Str("source", sourceWallet).
		Str("destination", destWallet).
		Int64("amount", amount).
		Msg("transfer completed")

	return &ports.TransferResult{Debit: debit, Credit: credit}, nil
}

// Reverse undoes a completed deposit or transfer in its own transaction.
func (s *LedgerServiceImpl) Reverse(ctx context.Context, transactionID uuid.UUID, reason string) ([]domain.Transaction, error) {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	reversals, err := s.ReverseTx(ctx, dbTx, transactionID, reason)
	if err != nil {
		return nil, err
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.log.Info().
		Str("original_tx_id", transactionID.String()).
		Int("entries", len(reversals)).
		Msg("reversal completed")

	return reversals, nil
}

// ReverseTx writes reversal entries inside dbTx. Originals are never modified;
// each reversal entry points at the entry it undoes.
func (s *LedgerServiceImpl) ReverseTx(ctx context.Context, dbTx pgx.Tx, transactionID uuid.UUID, reason string) ([]domain.Transaction, error) {
	orig, err := s.txRepo.GetByID(ctx, transactionID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get transaction: %w", err))
	}
	if orig == nil {
		return nil, apperror.ErrNotFound("Transaction")
	}
	if !orig.IsReversible() {
		return nil, apperror.ErrNotReversible()
	}
	if reason == "" {
		reason = "Reversal of " + orig.ID.String()
	}

	switch orig.Type {
	case domain.TransactionTypeDeposit:
		return s.reverseDeposit(ctx, dbTx, orig, reason)
	case domain.TransactionTypeTransferDebit, domain.TransactionTypeTransferCredit:
		return s.reverseTransfer(ctx, dbTx, orig, reason)
	default:
		return nil, apperror.ErrNotReversible()
	}
}

func (s *LedgerServiceImpl) reverseDeposit(ctx context.Context, dbTx pgx.Tx, orig *domain.Transaction, reason string) ([]domain.Transaction, error) {
	wallets, err := s.lockWallets(ctx, dbTx, orig.WalletNumber)
	if err != nil {
		return nil, err
	}
	wallet := wallets[orig.WalletNumber]

	if err := s.ensureNotReversed(ctx, dbTx, orig.ID); err != nil {
		return nil, err
	}
	if !wallet.CanDebit(orig.Amount) {
		return nil, apperror.ErrInsufficientBalance()
	}

	rev := s.newEntry(domain.TransactionTypeReversal, orig.Amount, wallet.WalletNumber)
	rev.SourceWallet = &rev.WalletNumber
	rev.OriginalTransactionID = &orig.ID
	rev.Description = reason

	if err := s.record(ctx, dbTx, rev, apperror.ErrAlreadyReversed); err != nil {
		return nil, err
	}
	if err := s.post(ctx, dbTx, wallet, -orig.Amount); err != nil {
		return nil, err
	}
	if err := s.complete(ctx, dbTx, rev); err != nil {
		return nil, err
	}
	return []domain.Transaction{*rev}, nil
}

func (s *LedgerServiceImpl) reverseTransfer(ctx context.Context, dbTx pgx.Tx, orig *domain.Transaction, reason string) ([]domain.Transaction, error) {
	if orig.CorrelationID == nil {
		return nil, apperror.ErrNotReversible()
	}
	legs, err := s.txRepo.ListByCorrelation(ctx, *orig.CorrelationID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("list transfer legs: %w", err))
	}

	var debit, credit *domain.Transaction
	for i := range legs {
		switch legs[i].Type {
		case domain.TransactionTypeTransferDebit:
			debit = &legs[i]
		case domain.TransactionTypeTransferCredit:
			credit = &legs[i]
		}
	}
	if debit == nil || credit == nil || !debit.IsReversible() || !credit.IsReversible() {
		return nil, apperror.ErrNotReversible()
	}

	wallets, err := s.lockWallets(ctx, dbTx, debit.WalletNumber, credit.WalletNumber)
	if err != nil {
		return nil, err
	}
	sender, recipient := wallets[debit.WalletNumber], wallets[credit.WalletNumber]

	for _, leg := range []*domain.Transaction{debit, credit} {
		if err := s.ensureNotReversed(ctx, dbTx, leg.ID); err != nil {
			return nil, err
		}
	}
	if !recipient.CanDebit(credit.Amount) {
		return nil, apperror.ErrInsufficientBalance()
	}

	correlationID := uuid.New()
	takeBack := s.newEntry(domain.TransactionTypeReversal, credit.Amount, recipient.WalletNumber)
	giveBack := s.newEntry(domain.TransactionTypeReversal, debit.Amount, sender.WalletNumber)
	for _, e := range []*domain.Transaction{takeBack, giveBack} {
		e.SourceWallet = &recipient.WalletNumber
		e.DestinationWallet = &sender.WalletNumber
		e.CorrelationID = &correlationID
		e.Description = reason
	}
	takeBack.OriginalTransactionID = &credit.ID
	giveBack.OriginalTransactionID = &debit.ID

	if err := s.record(ctx, dbTx, takeBack, apperror.ErrAlreadyReversed); err != nil {
		return nil, err
	}
	if err := s.record(ctx, dbTx, giveBack, apperror.ErrAlreadyReversed); err != nil {
		return nil, err
	}
	if err := s.post(ctx, dbTx, recipient, -credit.Amount); err != nil {
		return nil, err
	}
	if err := s.post(ctx, dbTx, sender, debit.Amount); err != nil {
		return nil, err
	}
	if err := s.complete(ctx, dbTx, takeBack, giveBack); err != nil {
		return nil, err
	}
	return []domain.Transaction{*takeBack, *giveBack}, nil
}

// GetBalance reads the latest committed balance.
func (s *LedgerServiceImpl) GetBalance(ctx context.Context, walletNumber string) (int64, error) {
	wallet, err := s.getWallet(ctx, walletNumber)
	if err != nil {
		return 0, err
	}
	return wallet.Balance, nil
}

// GetWalletByUser returns the wallet owned by userID.
func (s *LedgerServiceImpl) GetWalletByUser(ctx context.Context, userID uuid.UUID) (*domain.Wallet, error) {
	wallet, err := s.walletRepo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get wallet by user: %w", err))
	}
	if wallet == nil {
		return nil, apperror.ErrNotFound("Wallet")
	}
	return wallet, nil
}

// GetTransactionByReference returns the entry bound to a provider reference.
func (s *LedgerServiceImpl) GetTransactionByReference(ctx context.Context, externalReference string) (*domain.Transaction, error) {
	txn, err := s.txRepo.GetByReference(ctx, externalReference)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get transaction by reference: %w", err))
	}
	if txn == nil {
		return nil, apperror.ErrNotFound("Transaction")
	}
	return txn, nil
}

// ListTransactions returns one page of a wallet's history, newest first, and the total match count.
func (s *LedgerServiceImpl) ListTransactions(ctx context.Context, walletNumber string, filter domain.TransactionFilter) ([]domain.Transaction, int64, error) {
	if _, err := s.getWallet(ctx, walletNumber); err != nil {
		return nil, 0, err
	}
	if filter.From != nil && filter.To != nil && filter.From.After(*filter.To) {
		return nil, 0, apperror.Validation("from must not be after to")
	}

	txns, total, err := s.txRepo.List(ctx, walletNumber, filter.Normalize())
	if err != nil {
		return nil, 0, apperror.InternalError(fmt.Errorf("list transactions: %w", err))
	}
	if txns == nil {
		txns = []domain.Transaction{}
	}
	return txns, total, nil
}

// GetSummary totals a wallet's completed activity.
func (s *LedgerServiceImpl) GetSummary(ctx context.Context, walletNumber string) (*domain.WalletSummary, error) {
	if _, err := s.getWallet(ctx, walletNumber); err != nil {
		return nil, err
	}
	summary, err := s.txRepo.GetSummary(ctx, walletNumber)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get summary: %w", err))
	}
	return summary, nil
}

func (s *LedgerServiceImpl) getWallet(ctx context.Context, walletNumber string) (*domain.Wallet, error) {
	wallet, err := s.walletRepo.GetByNumber(ctx, walletNumber)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get wallet: %w", err))
	}
	if wallet == nil {
		return nil, apperror.ErrNotFound("Wallet")
	}
	return wallet, nil
}

// lockWallets takes row locks in ascending wallet-number order so two
// opposite-direction transfers cannot deadlock.
func (s *LedgerServiceImpl) lockWallets(ctx context.Context, dbTx pgx.Tx, numbers ...string) (map[string]*domain.Wallet, error) {
	ordered := append([]string(nil), numbers...)
	sort.Strings(ordered)

	locked := make(map[string]*domain.Wallet, len(ordered))
	for _, n := range ordered {
		if _, ok := locked[n]; ok {
			continue
		}
		w, err := s.walletRepo.GetByNumberForUpdate(ctx, dbTx, n)
		if err != nil {
			return nil, apperror.InternalError(fmt.Errorf("lock wallet %s: %w", n, err))
		}
		if w == nil {
			return nil, apperror.ErrNotFound("Wallet")
		}
		locked[n] = w
	}
	return locked, nil
}

func (s *LedgerServiceImpl) ensureNotReversed(ctx context.Context, dbTx pgx.Tx, id uuid.UUID) error {
	exists, err := s.txRepo.ReversalExists(ctx, dbTx, id)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("check reversal: %w", err))
	}
	if exists {
		return apperror.ErrAlreadyReversed()
	}
	return nil
}

func (s *LedgerServiceImpl) newEntry(typ domain.TransactionType, amount int64, walletNumber string) *domain.Transaction {
	return &domain.Transaction{
		ID:           uuid.New(),
		Type:         typ,
		Amount:       amount,
		WalletNumber: walletNumber,
		Status:       domain.TransactionStatusPending,
		CreatedAt:    s.now(),
	}
}

// record inserts a pending entry. A unique violation maps to onDuplicate when given.
func (s *LedgerServiceImpl) record(ctx context.Context, dbTx pgx.Tx, txn *domain.Transaction, onDuplicate func() *apperror.AppError) error {
	err := s.txRepo.Create(ctx, dbTx, txn)
	if err == nil {
		return nil
	}
	if onDuplicate != nil && errors.Is(err, ports.ErrDuplicateKey) {
		return onDuplicate()
	}
	return apperror.InternalError(fmt.Errorf("create %s entry: %w", strings.ToLower(string(txn.Type)), err))
}

// post applies delta to a locked wallet with the version check and keeps w in step.
func (s *LedgerServiceImpl) post(ctx context.Context, dbTx pgx.Tx, w *domain.Wallet, delta int64) error {
	if delta > 0 && w.Balance > math.MaxInt64-delta {
		return apperror.ErrInvalidAmount()
	}
	balance := w.Balance + delta
	if balance < 0 {
		return apperror.ErrInsufficientBalance()
	}
	if err := s.walletRepo.UpdateBalance(ctx, dbTx, w.ID, balance, w.Version); err != nil {
		if errors.Is(err, ports.ErrVersionConflict) {
			return apperror.ErrConcurrentModification(err)
		}
		return apperror.InternalError(fmt.Errorf("update balance: %w", err))
	}
	w.Balance = balance
	w.Version++
	return nil
}

func (s *LedgerServiceImpl) complete(ctx context.Context, dbTx pgx.Tx, txns ...*domain.Transaction) error {
	at := s.now()
	for _, txn := range txns {
		if err := s.txRepo.UpdateStatus(ctx, dbTx, txn.ID, domain.TransactionStatusCompleted, at); err != nil {
			return apperror.InternalError(fmt.Errorf("complete transaction: %w", err))
		}
		txn.Status = domain.TransactionStatusCompleted
		txn.CompletedAt = &at
	}
	return nil
}
