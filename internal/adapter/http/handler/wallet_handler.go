package handler

import (
	"wallet-service/internal/adapter/http/dto"
	"wallet-service/internal/adapter/http/middleware"
	"wallet-service/internal/core/domain"
	"wallet-service/internal/core/ports"
	"wallet-service/pkg/apperror"
	"wallet-service/pkg/money"
	"wallet-service/pkg/response"

	"github.com/gin-gonic/gin"
)

// WalletHandler serves the caller's own wallet.
type WalletHandler struct {
	ledger ports.LedgerService
}

// NewWalletHandler creates a new WalletHandler.
func NewWalletHandler(ledger ports.LedgerService) *WalletHandler {
	return &WalletHandler{ledger: ledger}
}

// GetBalance handles GET /api/v1/wallet/balance.
func (h *WalletHandler) GetBalance(c *gin.Context) {
	wallet, ok := h.callerWallet(c)
	if !ok {
		return
	}

	balance, err := h.ledger.GetBalance(c.Request.Context(), wallet.WalletNumber)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.BalanceResponse{
		WalletNumber: wallet.WalletNumber,
		Balance:      balance,
		Display:      money.Format(balance),
		Currency:     wallet.Currency,
	})
}

// GetSummary handles GET /api/v1/wallet/summary.
func (h *WalletHandler) GetSummary(c *gin.Context) {
	wallet, ok := h.callerWallet(c)
	if !ok {
		return
	}

	summary, err := h.ledger.GetSummary(c.Request.Context(), wallet.WalletNumber)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.SummaryResponse{
		WalletNumber:   wallet.WalletNumber,
		Transactions:   summary.Transactions,
		TotalDeposited: summary.TotalDeposited,
		TotalSent:      summary.TotalSent,
		TotalReceived:  summary.TotalReceived,
		TotalReversed:  summary.TotalReversed,
	})
}

// Transfer handles POST /api/v1/wallet/transfer from the caller's wallet.
func (h *WalletHandler) Transfer(c *gin.Context) {
	var req dto.TransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	wallet, ok := h.callerWallet(c)
	if !ok {
		return
	}

	result, err := h.ledger.Transfer(c.Request.Context(), wallet.WalletNumber, req.WalletNumber, req.Amount)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Set(middleware.CtxResourceID, result.Debit.ID.String())
	response.OK(c, dto.TransferResponse{
		Status: string(result.Debit.Status),
		Debit:  dto.ToTransactionResponse(result.Debit),
		Credit: dto.ToTransactionResponse(result.Credit),
	})
}

// ListTransactions handles GET /api/v1/wallet/transactions.
func (h *WalletHandler) ListTransactions(c *gin.Context) {
	var q dto.ListTransactionsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	wallet, ok := h.callerWallet(c)
	if !ok {
		return
	}

	filter := q.Filter().Normalize()
	txns, total, err := h.ledger.ListTransactions(c.Request.Context(), wallet.WalletNumber, filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]dto.TransactionResponse, 0, len(txns))
	for i := range txns {
		items = append(items, dto.ToTransactionResponse(&txns[i]))
	}
	response.Paginated(c, items, total, filter.Limit, filter.Offset)
}

// GetDepositStatus handles GET /api/v1/wallet/deposit/:reference/status.
// Deposits into someone else's wallet are reported as not found.
func (h *WalletHandler) GetDepositStatus(c *gin.Context) {
	reference := c.Param("reference")

	wallet, ok := h.callerWallet(c)
	if !ok {
		return
	}

	txn, err := h.ledger.GetTransactionByReference(c.Request.Context(), reference)
	if err != nil {
		response.Error(c, err)
		return
	}
	if txn.Type != domain.TransactionTypeDeposit || txn.WalletNumber != wallet.WalletNumber {
		response.Error(c, apperror.ErrNotFound("Deposit"))
		return
	}

	response.OK(c, dto.DepositStatusResponse{
		Reference: reference,
		Status:    string(txn.Status),
		Amount:    txn.Amount,
	})
}

// callerWallet resolves the authenticated user's wallet, writing the error response on failure.
func (h *WalletHandler) callerWallet(c *gin.Context) (*domain.Wallet, bool) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, apperror.ErrMissingCredentials())
		return nil, false
	}

	wallet, err := h.ledger.GetWalletByUser(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return nil, false
	}
	return wallet, true
}
