package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"wallet-service/internal/adapter/storage/memory"
	"wallet-service/internal/core/domain"
	"wallet-service/internal/core/ports"
	"wallet-service/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// storeStack wires the real services over the in-memory store.
type storeStack struct {
	store      *memory.Store
	walletRepo *memory.WalletRepo
	txRepo     *memory.TransactionRepo
	eventRepo  *memory.WebhookEventRepo
	ledger     *LedgerServiceImpl
	gate       *EventGateImpl
	vault      *CredentialVaultImpl
}

func newStoreStack(t *testing.T) *storeStack {
	t.Helper()
	store := memory.NewStore()
	s := &storeStack{
		store:      store,
		walletRepo: memory.NewWalletRepo(store),
		txRepo:     memory.NewTransactionRepo(store),
		eventRepo:  memory.NewWebhookEventRepo(store),
	}
	encSvc, err := NewAESEncryptionService(testAESKey)
	require.NoError(t, err)

	log := zerolog.Nop()
	s.ledger = NewLedgerService(s.walletRepo, s.txRepo, store, log)
	s.gate = NewEventGate(s.eventRepo, nil, s.ledger, encSvc, store, log)
	s.vault = NewCredentialVault(memory.NewUserRepo(store), memory.NewAPIKeyRepo(store), NewArgon2HashService(), store,
		VaultOptions{MaxActive: 5}, log)
	return s
}

// seedWallet creates a user and a wallet holding balance.
func (s *storeStack) seedWallet(t *testing.T, number string, balance int64) uuid.UUID {
	t.Helper()
	ctx := context.Background()
	tx, err := s.store.Begin(ctx)
	require.NoError(t, err)

	user := &domain.User{ID: uuid.New(), Subject: "sub-" + number, Email: number + "@example.com"}
	require.NoError(t, memory.NewUserRepo(s.store).Create(ctx, tx, user))
	require.NoError(t, s.walletRepo.Create(ctx, tx, &domain.Wallet{
		ID:           uuid.New(),
		UserID:       user.ID,
		WalletNumber: number,
		Balance:      balance,
		Currency:     domain.DefaultCurrency,
	}))
	require.NoError(t, tx.Commit(ctx))
	return user.ID
}

func (s *storeStack) balance(t *testing.T, number string) int64 {
	t.Helper()
	b, err := s.ledger.GetBalance(context.Background(), number)
	require.NoError(t, err)
	return b
}

func TestConcurrentAdmit_SameReferenceCreditsOnce(t *testing.T) {
	s := newStoreStack(t)
	s.seedWallet(t, "4000000000001", 0)

	const deliveries = 16
	var accepted, duplicate atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := s.gate.Admit(context.Background(), true, ports.PaymentEvent{
				Provider:     "paystack",
				Kind:         ports.PaymentEventCharge,
				EventType:    "charge.success",
				Reference:    "ref-1",
				WalletNumber: "4000000000001",
				Amount:       500,
				Payload:      []byte(`{"event":"charge.success"}`),
			})
			if !assert.NoError(t, err) {
				return
			}
			switch result.Outcome {
			case domain.EventOutcomeAccepted:
				accepted.Add(1)
			case domain.EventOutcomeDuplicate:
				duplicate.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), accepted.Load())
	assert.Equal(t, int32(deliveries-1), duplicate.Load())
	assert.Equal(t, int64(500), s.balance(t, "4000000000001"))

	txns, total, err := s.ledger.ListTransactions(context.Background(), "4000000000001", domain.TransactionFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, txns, 1)
	assert.Equal(t, domain.TransactionTypeDeposit, txns[0].Type)

	event, err := s.eventRepo.GetByKey(context.Background(), domain.BuildChargeEventKey("ref-1"))
	require.NoError(t, err)
	require.NotNil(t, event.TransactionID)
	assert.Equal(t, txns[0].ID, *event.TransactionID)
}

func TestAdmit_RejectedDeliveryIsNotRetried(t *testing.T) {
	s := newStoreStack(t)
	ctx := context.Background()
	event := ports.PaymentEvent{
		Provider:     "paystack",
		Kind:         ports.PaymentEventCharge,
		Reference:    "ref-ghost",
		WalletNumber: "9999999999999",
		Amount:       100,
	}

	first, err := s.gate.Admit(ctx, true, event)
	require.NoError(t, err)
	assert.Equal(t, domain.EventOutcomeRejected, first.Outcome)

	// The wallet appears later; the recorded rejection still stands.
	s.seedWallet(t, "9999999999999", 0)
	second, err := s.gate.Admit(ctx, true, event)
	require.NoError(t, err)
	assert.Equal(t, domain.EventOutcomeDuplicate, second.Outcome)
	assert.Zero(t, s.balance(t, "9999999999999"))

	stored, err := s.eventRepo.GetByKey(ctx, domain.BuildChargeEventKey("ref-ghost"))
	require.NoError(t, err)
	assert.Equal(t, domain.EventOutcomeRejected, stored.Outcome)
	assert.Nil(t, stored.TransactionID)
}

func TestAdmit_RefundReversesDeposit(t *testing.T) {
	s := newStoreStack(t)
	ctx := context.Background()
	s.seedWallet(t, "4000000000001", 0)

	charge := ports.PaymentEvent{Provider: "paystack", Kind: ports.PaymentEventCharge, Reference: "ref-9", WalletNumber: "4000000000001", Amount: 700}
	_, err := s.gate.Admit(ctx, true, charge)
	require.NoError(t, err)

	refund := charge
	refund.Kind = ports.PaymentEventRefund
	for i := 0; i < 2; i++ {
		_, err = s.gate.Admit(ctx, true, refund)
		require.NoError(t, err)
	}

	assert.Zero(t, s.balance(t, "4000000000001"))
	summary, err := s.ledger.GetSummary(ctx, "4000000000001")
	require.NoError(t, err)
	assert.Equal(t, int64(700), summary.TotalDeposited)
	assert.Equal(t, int64(700), summary.TotalReversed)
}

func TestAdmit_PartialRefundLeavesBalance(t *testing.T) {
	s := newStoreStack(t)
	ctx := context.Background()
	s.seedWallet(t, "4000000000001", 0)

	charge := ports.PaymentEvent{Provider: "paystack", Kind: ports.PaymentEventCharge, Reference: "ref-p", WalletNumber: "4000000000001", Amount: 500}
	_, err := s.gate.Admit(ctx, true, charge)
	require.NoError(t, err)

	refund := charge
	refund.Kind = ports.PaymentEventRefund
	refund.Amount = 200
	result, err := s.gate.Admit(ctx, true, refund)
	require.NoError(t, err)
	assert.Equal(t, domain.EventOutcomeRejected, result.Outcome)
	assert.Equal(t, int64(500), s.balance(t, "4000000000001"))

	stored, err := s.eventRepo.GetByKey(ctx, domain.BuildRefundEventKey("ref-p"))
	require.NoError(t, err)
	assert.Equal(t, domain.EventOutcomeRejected, stored.Outcome)
}

func TestTransfer_Scenario(t *testing.T) {
	s := newStoreStack(t)
	s.seedWallet(t, "1000000000001", 10000)
	s.seedWallet(t, "1000000000002", 0)

	result, err := s.ledger.Transfer(context.Background(), "1000000000001", "1000000000002", 3000)
	require.NoError(t, err)

	assert.Equal(t, int64(7000), s.balance(t, "1000000000001"))
	assert.Equal(t, int64(3000), s.balance(t, "1000000000002"))
	assert.Equal(t, domain.TransactionTypeTransferDebit, result.Debit.Type)
	assert.Equal(t, domain.TransactionTypeTransferCredit, result.Credit.Type)
	assert.Equal(t, "1000000000001", result.Debit.WalletNumber)
	assert.Equal(t, "1000000000002", result.Credit.WalletNumber)
	require.NotNil(t, result.Debit.CorrelationID)
	assert.Equal(t, *result.Debit.CorrelationID, *result.Credit.CorrelationID)

	legs, err := s.txRepo.ListByCorrelation(context.Background(), *result.Debit.CorrelationID)
	require.NoError(t, err)
	assert.Len(t, legs, 2)
}

func TestTransfer_InsufficientBalanceLeavesBothUnchanged(t *testing.T) {
	s := newStoreStack(t)
	s.seedWallet(t, "1000000000001", 100)
	s.seedWallet(t, "1000000000002", 50)

	_, err := s.ledger.Transfer(context.Background(), "1000000000001", "1000000000002", 101)
	assertAppError(t, err, "WAL_001")

	assert.Equal(t, int64(100), s.balance(t, "1000000000001"))
	assert.Equal(t, int64(50), s.balance(t, "1000000000002"))
	_, total, err := s.ledger.ListTransactions(context.Background(), "1000000000001", domain.TransactionFilter{})
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestConcurrentTransfers_ConserveMoney(t *testing.T) {
	s := newStoreStack(t)
	wallets := []string{"2000000000001", "2000000000002", "2000000000003"}
	for _, w := range wallets {
		s.seedWallet(t, w, 1000)
	}

	var wg sync.WaitGroup
	for i := 0; i < 60; i++ {
		src := wallets[i%3]
		dst := wallets[(i+1+i/3)%3]
		if src == dst {
			dst = wallets[(i+2)%3]
		}
		wg.Add(1)
		go func(src, dst string, amount int64) {
			defer wg.Done()
			_, err := s.ledger.Transfer(context.Background(), src, dst, amount)
			if err != nil {
				assert.True(t, apperror.HasCode(err, "WAL_001"), err)
			}
		}(src, dst, int64(50+i*7))
	}
	wg.Wait()

	var total int64
	for _, w := range wallets {
		b := s.balance(t, w)
		assert.GreaterOrEqual(t, b, int64(0), w)
		total += b
	}
	assert.Equal(t, int64(3000), total)
}

func TestReverseTransfer_RestoresBalances(t *testing.T) {
	s := newStoreStack(t)
	ctx := context.Background()
	s.seedWallet(t, "1000000000001", 500)
	s.seedWallet(t, "1000000000002", 0)

	result, err := s.ledger.Transfer(ctx, "1000000000001", "1000000000002", 200)
	require.NoError(t, err)

	revs, err := s.ledger.Reverse(ctx, result.Debit.ID, "disputed")
	require.NoError(t, err)
	require.Len(t, revs, 2)
	assert.Equal(t, int64(500), s.balance(t, "1000000000001"))
	assert.Zero(t, s.balance(t, "1000000000002"))

	_, err = s.ledger.Reverse(ctx, result.Credit.ID, "again")
	assertAppError(t, err, "WAL_006")
}

func TestVault_KeyLifecycle(t *testing.T) {
	s := newStoreStack(t)
	ctx := context.Background()
	userID := s.seedWallet(t, "3000000000001", 0)
	now := time.Now().UTC()
	s.vault.now = func() time.Time { return now }

	issue := func(code string) (*ports.IssuedKey, error) {
		return s.vault.Issue(ctx, ports.IssueKeyRequest{
			UserID:       userID,
			Name:         "bot",
			Permissions:  domain.NewPermissionSet(domain.PermissionRead, domain.PermissionTransfer),
			DurationCode: code,
		})
	}

	first, err := issue("1H")
	require.NoError(t, err)
	assert.WithinDuration(t, now.Add(time.Hour), first.Key.ExpiresAt, time.Second)

	got, err := s.vault.Authorize(ctx, first.Plaintext, domain.PermissionTransfer)
	require.NoError(t, err)
	assert.Equal(t, userID, got)

	_, err = s.vault.Rollover(ctx, userID, first.Key.ID, "1D")
	assertAppError(t, err, "KEY_002")

	var keys []*ports.IssuedKey
	keys = append(keys, first)
	for i := 0; i < 4; i++ {
		k, err := issue("1Y")
		require.NoError(t, err)
		keys = append(keys, k)
	}
	_, err = issue("1D")
	assertAppError(t, err, "KEY_001")

	require.NoError(t, s.vault.Revoke(ctx, keys[4].Key.ID, userID))
	require.NoError(t, s.vault.Revoke(ctx, keys[4].Key.ID, userID))
	_, err = issue("1D")
	require.NoError(t, err)

	// An hour later the first key has lapsed, whatever permission is asked for.
	now = now.Add(time.Hour)
	_, err = s.vault.Authorize(ctx, first.Plaintext, domain.PermissionDeposit)
	assertAppError(t, err, "KEY_004")

	stored, err := memory.NewAPIKeyRepo(s.store).GetByID(ctx, first.Key.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.APIKeyStatusExpired, stored.Status)

	next, err := s.vault.Rollover(ctx, userID, first.Key.ID, "1M")
	require.NoError(t, err)
	assert.Equal(t, first.Key.ID, *next.Key.PredecessorID)
	assert.Equal(t, first.Key.Permissions.Strings(), next.Key.Permissions.Strings())
	_, err = s.vault.Authorize(ctx, next.Plaintext, domain.PermissionRead)
	require.NoError(t, err)
}

func TestVault_ConcurrentIssueRespectsCeiling(t *testing.T) {
	s := newStoreStack(t)
	userID := s.seedWallet(t, "3000000000002", 0)

	var ok, limited atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.vault.Issue(context.Background(), ports.IssueKeyRequest{
				UserID:       userID,
				Name:         fmt.Sprintf("key-%d", i),
				Permissions:  domain.NewPermissionSet(domain.PermissionRead),
				DurationCode: "1D",
			})
			if err == nil {
				ok.Add(1)
				return
			}
			assert.True(t, apperror.HasCode(err, "KEY_001"), err)
			limited.Add(1)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(5), ok.Load())
	assert.Equal(t, int32(3), limited.Load())
}
