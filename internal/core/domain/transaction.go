package domain

import (
	"time"

	"github.com/google/uuid"
)

// TransactionType represents the kind of money movement.
type TransactionType string

const (
	TransactionTypeDeposit        TransactionType = "DEPOSIT"
	TransactionTypeTransferDebit  TransactionType = "TRANSFER_DEBIT"
	TransactionTypeTransferCredit TransactionType = "TRANSFER_CREDIT"
	TransactionTypeReversal       TransactionType = "REVERSAL"
)

// TransactionStatus represents the lifecycle state of a transaction.
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "PENDING"
	TransactionStatusCompleted TransactionStatus = "COMPLETED"
	TransactionStatusFailed    TransactionStatus = "FAILED"
)

// Transaction is an immutable ledger entry against one wallet.
// WalletNumber is the wallet whose balance the entry moves; SourceWallet and
// DestinationWallet describe the money flow. Deposits have no source and pure
// debits have no destination.
type Transaction struct {
	ID                    uuid.UUID         `json:"id"`
	Type                  TransactionType   `json:"type"`
	Amount                int64             `json:"amount"` // Minor units, always positive
	WalletNumber          string            `json:"wallet_number"`
	SourceWallet          *string           `json:"source_wallet,omitempty"`
	DestinationWallet     *string           `json:"destination_wallet,omitempty"`
	ExternalReference     *string           `json:"external_reference,omitempty"`
	CorrelationID         *uuid.UUID        `json:"correlation_id,omitempty"`
	OriginalTransactionID *uuid.UUID        `json:"original_transaction_id,omitempty"`
	Description           string            `json:"description,omitempty"`
	Status                TransactionStatus `json:"status"`
	CreatedAt             time.Time         `json:"created_at"`
	CompletedAt           *time.Time        `json:"completed_at,omitempty"`
}

// IsDebit reports whether the entry takes money out of WalletNumber.
func (t *Transaction) IsDebit() bool {
	return t.SourceWallet != nil && *t.SourceWallet == t.WalletNumber
}

// IsTerminal returns true if the transaction is in a final state.
func (t *Transaction) IsTerminal() bool {
	return t.Status == TransactionStatusCompleted || t.Status == TransactionStatusFailed
}

// IsReversible returns true if the entry can be undone by a reversal.
func (t *Transaction) IsReversible() bool {
	return t.Status == TransactionStatusCompleted && t.Type != TransactionTypeReversal
}

// SignedAmount is the entry's effect on its wallet balance.
func (t *Transaction) SignedAmount() int64 {
	if t.IsDebit() {
		return -t.Amount
	}
	return t.Amount
}

// TransactionFilter narrows a wallet's transaction history.
type TransactionFilter struct {
	Type   *TransactionType
	Status *TransactionStatus
	From   *time.Time
	To     *time.Time
	Limit  int
	Offset int
}

const (
	DefaultPageLimit = 50
	MaxPageLimit     = 100
)

// Normalize clamps paging values into their allowed range.
func (f TransactionFilter) Normalize() TransactionFilter {
	if f.Limit <= 0 {
		f.Limit = DefaultPageLimit
	}
	if f.Limit > MaxPageLimit {
		f.Limit = MaxPageLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// WalletSummary aggregates completed activity on a wallet.
type WalletSummary struct {
	WalletNumber   string `json:"wallet_number"`
	Transactions   int64  `json:"transactions"`
	TotalDeposited int64  `json:"total_deposited"`
	TotalSent      int64  `json:"total_sent"`
	TotalReceived  int64  `json:"total_received"`
	TotalReversed  int64  `json:"total_reversed"`
}
