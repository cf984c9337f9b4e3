package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"wallet-service/internal/core/domain"
	"wallet-service/internal/core/ports"
	"wallet-service/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

const eventCacheTTL = 24 * time.Hour

// EventGateImpl implements ports.EventGate.
// The event record is inserted before the ledger is touched, in the same
// database transaction, so concurrent deliveries of one reference serialize
// on the unique event key and only the first reaches the ledger.
type EventGateImpl struct {
	eventRepo  ports.WebhookEventRepository
	cache      ports.EventCache
	ledger     ports.LedgerService
	encSvc     ports.EncryptionService
	transactor ports.DBTransactor
	log        zerolog.Logger
	now        func() time.Time
}

// NewEventGate creates a new EventGateImpl. cache may be nil.
func NewEventGate(
	eventRepo ports.WebhookEventRepository,
	cache ports.EventCache,
	ledger ports.LedgerService,
	encSvc ports.EncryptionService,
	transactor ports.DBTransactor,
	log zerolog.Logger,
) *EventGateImpl {
	return &EventGateImpl{
		eventRepo:  eventRepo,
		cache:      cache,
		ledger:     ledger,
		encSvc:     encSvc,
		transactor: transactor,
		log:        log,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Admit decides the fate of one provider delivery.
// Rejected and Duplicate are outcomes, not errors. An error means nothing was
// recorded and the provider should redeliver.
func (g *EventGateImpl) Admit(ctx context.Context, signatureValid bool, event ports.PaymentEvent) (*ports.AdmitResult, error) {
	if !signatureValid {
		g.log.Warn().
			Str("provider", event.Provider).
			Str("reference", event.Reference).
			Msg("webhook signature rejected")
		return &ports.AdmitResult{Outcome: domain.EventOutcomeRejected, Reason: "invalid signature"}, nil
	}

	key, err := eventKey(event)
	if err != nil {
		return nil, err
	}

	if g.seen(ctx, key) {
		return &ports.AdmitResult{Outcome: domain.EventOutcomeDuplicate}, nil
	}

	record, err := g.newRecord(event, key)
	if err != nil {
		return nil, err
	}

	dbTx, err := g.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	inserted, err := g.eventRepo.InsertIfAbsent(ctx, dbTx, record)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("insert webhook event: %w", err))
	}
	if !inserted {
		g.log.Info().Str("event_key", key).Msg("duplicate webhook delivery")
		return &ports.AdmitResult{Outcome: domain.EventOutcomeDuplicate}, nil
	}

	txID, err := g.apply(ctx, dbTx, event)
	if err != nil {
		if apperror.IsRetryable(err) {
			return nil, err
		}
		_ = dbTx.Rollback(ctx)
		return g.reject(ctx, record, err)
	}

	if err := g.eventRepo.LinkTransaction(ctx, dbTx, key, txID); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("link webhook event: %w", err))
	}
	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	g.remember(ctx, key, domain.EventOutcomeAccepted)

	g.log.Info().
		Str("event_key", key).
		Str("tx_id", txID.String()).
		Int64("amount", event.Amount).
		Msg("webhook event accepted")

	return &ports.AdmitResult{Outcome: domain.EventOutcomeAccepted, TransactionID: &txID}, nil
}

// apply performs the ledger effect of an event inside dbTx and returns the
// id of the entry to link.
func (g *EventGateImpl) apply(ctx context.Context, dbTx pgx.Tx, event ports.PaymentEvent) (uuid.UUID, error) {
	switch event.Kind {
	case ports.PaymentEventCharge:
		txn, err := g.ledger.DepositTx(ctx, dbTx, event.WalletNumber, event.Amount, event.Reference)
		if err != nil {
			return uuid.Nil, err
		}
		return txn.ID, nil
	case ports.PaymentEventRefund:
		orig, err := g.ledger.GetTransactionByReference(ctx, event.Reference)
		if err != nil {
			return uuid.Nil, err
		}
		// Only full refunds are applied; partial ones are recorded as rejected.
		if event.Amount != orig.Amount {
			return uuid.Nil, apperror.ErrAmountMismatch()
		}
		revs, err := g.ledger.ReverseTx(ctx, dbTx, orig.ID, "Refund "+event.Reference)
		if err != nil {
			return uuid.Nil, err
		}
		return revs[0].ID, nil
	}
	return uuid.Nil, apperror.Validation(fmt.Sprintf("unsupported event kind %q", event.Kind))
}

// reject records a terminal Rejected outcome for an event whose ledger effect
// failed on a business rule. The record blocks redelivery from retrying it.
func (g *EventGateImpl) reject(ctx context.Context, record *domain.WebhookEvent, cause error) (*ports.AdmitResult, error) {
	reason := cause.Error()
	var appErr *apperror.AppError
	if errors.As(cause, &appErr) {
		reason = appErr.Message
	}
	record.Outcome = domain.EventOutcomeRejected
	record.FailureReason = &reason

	dbTx, err := g.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	inserted, err := g.eventRepo.InsertIfAbsent(ctx, dbTx, record)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("insert rejected webhook event: %w", err))
	}
	if !inserted {
		return &ports.AdmitResult{Outcome: domain.EventOutcomeDuplicate}, nil
	}
	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	g.remember(ctx, record.EventKey, domain.EventOutcomeRejected)

	g.log.Warn().
		Err(cause).
		Str("event_key", record.EventKey).
		Msg("webhook event rejected")

	return &ports.AdmitResult{Outcome: domain.EventOutcomeRejected, Reason: reason}, nil
}

func (g *EventGateImpl) newRecord(event ports.PaymentEvent, key string) (*domain.WebhookEvent, error) {
	payload, err := g.encSvc.Encrypt(string(event.Payload))
	if err != nil {
		return nil, apperror.ErrEncryptionFailure(fmt.Errorf("encrypt webhook payload: %w", err))
	}
	now := g.now()
	return &domain.WebhookEvent{
		ID:                uuid.New(),
		Provider:          event.Provider,
		EventKey:          key,
		EventType:         event.EventType,
		PayloadEncrypted:  payload,
		SignatureVerified: true,
		Outcome:           domain.EventOutcomeAccepted,
		ReceivedAt:        now,
		UpdatedAt:         now,
	}, nil
}

// seen consults the cache. A cache failure falls through to the database check.
func (g *EventGateImpl) seen(ctx context.Context, key string) bool {
	if g.cache == nil {
		return false
	}
	outcome, err := g.cache.Lookup(ctx, key)
	if err != nil {
		g.log.Warn().Err(err).Str("event_key", key).Msg("event cache lookup failed, falling through to DB")
		return false
	}
	return outcome != ""
}

func (g *EventGateImpl) remember(ctx context.Context, key string, outcome domain.EventOutcome) {
	if g.cache == nil {
		return
	}
	if err := g.cache.Remember(ctx, key, outcome, eventCacheTTL); err != nil {
		g.log.Warn().Err(err).Str("event_key", key).Msg("failed to cache webhook outcome")
	}
}

func eventKey(event ports.PaymentEvent) (string, error) {
	ref := strings.TrimSpace(event.Reference)
	if ref == "" {
		return "", apperror.Validation("event reference is required")
	}
	switch event.Kind {
	case ports.PaymentEventCharge:
		return domain.BuildChargeEventKey(ref), nil
	case ports.PaymentEventRefund:
		return domain.BuildRefundEventKey(ref), nil
	}
	return "", apperror.Validation(fmt.Sprintf("unsupported event kind %q", event.Kind))
}
