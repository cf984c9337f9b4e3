package dto

import (
	"time"

	"wallet-service/internal/core/domain"
	"wallet-service/pkg/money"
)

// SessionRequest is the request body for POST /auth/session.
type SessionRequest struct {
	IDToken string `json:"id_token" binding:"required"`
}

// SessionResponse is the response body for a successful login.
type SessionResponse struct {
	Token        string       `json:"token"`
	ExpiresAt    int64        `json:"expires_at"` // Unix timestamp
	User         UserResponse `json:"user"`
	WalletNumber string       `json:"wallet_number"`
	Created      bool         `json:"created"`
}

// UserResponse is the public view of a user.
type UserResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// TransferRequest is the request body for wallet-to-wallet transfers.
type TransferRequest struct {
	WalletNumber string `json:"wallet_number" binding:"required,wallet_number"`
	Amount       int64  `json:"amount" binding:"required,gt=0"`
}

// TransferResponse is the response body for a completed transfer.
type TransferResponse struct {
	Status string              `json:"status"`
	Debit  TransactionResponse `json:"debit"`
	Credit TransactionResponse `json:"credit"`
}

// BalanceResponse is the response body for a balance query.
type BalanceResponse struct {
	WalletNumber string `json:"wallet_number"`
	Balance      int64  `json:"balance"`         // Minor units
	Display      string `json:"balance_display"` // Major units, two decimals
	Currency     string `json:"currency"`
}

// TransactionResponse is the public view of a ledger entry.
type TransactionResponse struct {
	ID                    string  `json:"id"`
	Type                  string  `json:"type"`
	Amount                int64   `json:"amount"`
	AmountDisplay         string  `json:"amount_display"`
	WalletNumber          string  `json:"wallet_number"`
	SourceWallet          *string `json:"source_wallet,omitempty"`
	DestinationWallet     *string `json:"destination_wallet,omitempty"`
	Reference             *string `json:"reference,omitempty"`
	CorrelationID         *string `json:"correlation_id,omitempty"`
	OriginalTransactionID *string `json:"original_transaction_id,omitempty"`
	Description           string  `json:"description,omitempty"`
	Status                string  `json:"status"`
	CreatedAt             string  `json:"created_at"`
	CompletedAt           *string `json:"completed_at,omitempty"`
}

// ListTransactionsQuery holds the query parameters for GET /wallet/transactions.
type ListTransactionsQuery struct {
	Type   string     `form:"type" binding:"omitempty,oneof=DEPOSIT TRANSFER_DEBIT TRANSFER_CREDIT REVERSAL"`
	Status string     `form:"status" binding:"omitempty,oneof=PENDING COMPLETED FAILED"`
	From   *time.Time `form:"from" time_format:"2006-01-02T15:04:05Z07:00"`
	To     *time.Time `form:"to" time_format:"2006-01-02T15:04:05Z07:00"`
	Limit  int        `form:"limit" binding:"omitempty,min=1,max=100"`
	Offset int        `form:"offset" binding:"omitempty,min=0"`
}

// Filter converts the query into a domain filter.
func (q ListTransactionsQuery) Filter() domain.TransactionFilter {
	f := domain.TransactionFilter{From: q.From, To: q.To, Limit: q.Limit, Offset: q.Offset}
	if q.Type != "" {
		t := domain.TransactionType(q.Type)
		f.Type = &t
	}
	if q.Status != "" {
		s := domain.TransactionStatus(q.Status)
		f.Status = &s
	}
	return f
}

// SummaryResponse is the response body for GET /wallet/summary.
type SummaryResponse struct {
	WalletNumber   string `json:"wallet_number"`
	Transactions   int64  `json:"transactions"`
	TotalDeposited int64  `json:"total_deposited"`
	TotalSent      int64  `json:"total_sent"`
	TotalReceived  int64  `json:"total_received"`
	TotalReversed  int64  `json:"total_reversed"`
}

// DepositStatusResponse is the response body for a deposit status lookup.
type DepositStatusResponse struct {
	Reference string `json:"reference"`
	Status    string `json:"status"`
	Amount    int64  `json:"amount"`
}

// CreateKeyRequest is the request body for POST /keys/create.
type CreateKeyRequest struct {
	Name        string   `json:"name" binding:"required,min=1,max=100"`
	Permissions []string `json:"permissions" binding:"required,min=1,dive,permission"`
	Expiry      string   `json:"expiry" binding:"required,duration_code"`
}

// RolloverKeyRequest is the request body for POST /keys/rollover.
type RolloverKeyRequest struct {
	ExpiredKeyID string `json:"expired_key_id" binding:"required,uuid"`
	Expiry       string `json:"expiry" binding:"required,duration_code"`
}

// IssuedKeyResponse carries a freshly issued key. APIKey is shown only here.
type IssuedKeyResponse struct {
	APIKey    string `json:"api_key"`
	ID        string `json:"id"`
	ExpiresAt string `json:"expires_at"`
}

// KeyResponse is the public view of a stored key.
type KeyResponse struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Prefix        string   `json:"prefix"`
	Permissions   []string `json:"permissions"`
	Status        string   `json:"status"`
	CreatedAt     string   `json:"created_at"`
	ExpiresAt     string   `json:"expires_at"`
	PredecessorID *string  `json:"predecessor_id,omitempty"`
}

// PaystackEvent is the webhook body sent by Paystack.
type PaystackEvent struct {
	Event string `json:"event"`
	Data  struct {
		Reference            string `json:"reference"`
		TransactionReference string `json:"transaction_reference"` // Refunds point at the original charge
		Status               string `json:"status"`
		Amount               int64  `json:"amount"` // Kobo
		Metadata             struct {
			WalletNumber string `json:"wallet_number"`
		} `json:"metadata"`
	} `json:"data"`
}

// WebhookAck is the body returned to the provider.
type WebhookAck struct {
	Status  bool   `json:"status"`
	Outcome string `json:"outcome,omitempty"`
	Message string `json:"message,omitempty"`
}

// ToTransactionResponse maps a domain transaction to its public view.
func ToTransactionResponse(t *domain.Transaction) TransactionResponse {
	resp := TransactionResponse{
		ID:                t.ID.String(),
		Type:              string(t.Type),
		Amount:            t.Amount,
		AmountDisplay:     money.Format(t.Amount),
		WalletNumber:      t.WalletNumber,
		SourceWallet:      t.SourceWallet,
		DestinationWallet: t.DestinationWallet,
		Reference:         t.ExternalReference,
		Description:       t.Description,
		Status:            string(t.Status),
		CreatedAt:         t.CreatedAt.Format(time.RFC3339),
	}
	if t.CorrelationID != nil {
		s := t.CorrelationID.String()
		resp.CorrelationID = &s
	}
	if t.OriginalTransactionID != nil {
		s := t.OriginalTransactionID.String()
		resp.OriginalTransactionID = &s
	}
	if t.CompletedAt != nil {
		s := t.CompletedAt.Format(time.RFC3339)
		resp.CompletedAt = &s
	}
	return resp
}

// ToKeyResponse maps a stored key to its public view.
func ToKeyResponse(k *domain.APIKey) KeyResponse {
	resp := KeyResponse{
		ID:          k.ID.String(),
		Name:        k.Name,
		Prefix:      k.Prefix,
		Permissions: k.Permissions.Strings(),
		Status:      string(k.Status),
		CreatedAt:   k.CreatedAt.Format(time.RFC3339),
		ExpiresAt:   k.ExpiresAt.Format(time.RFC3339),
	}
	if k.PredecessorID != nil {
		s := k.PredecessorID.String()
		resp.PredecessorID = &s
	}
	return resp
}
