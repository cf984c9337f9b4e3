package postgres

import (
	"context"
	"errors"
	"fmt"

	"wallet-service/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const webhookEventColumns = `id, provider, event_key, event_type, payload_encrypted, signature_verified,
		outcome, transaction_id, failure_reason, received_at, updated_at`

// WebhookEventRepo implements ports.WebhookEventRepository.
type WebhookEventRepo struct {
	pool Pool
}

// NewWebhookEventRepo creates a new WebhookEventRepo.
func NewWebhookEventRepo(pool Pool) *WebhookEventRepo {
	return &WebhookEventRepo{pool: pool}
}

// InsertIfAbsent records an event unless its key is already present.
// It reports whether this call created the record.
func (r *WebhookEventRepo) InsertIfAbsent(ctx context.Context, tx pgx.Tx, e *domain.WebhookEvent) (bool, error) {
	query := `INSERT INTO webhook_events (` + webhookEventColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (event_key) DO NOTHING`

	tag, err := tx.Exec(ctx, query,
		e.ID, e.Provider, e.EventKey, e.EventType, e.PayloadEncrypted, e.SignatureVerified,
		e.Outcome, e.TransactionID, e.FailureReason, e.ReceivedAt, e.UpdatedAt,
	)
	if err != nil {
		return false, classify("insert webhook event", err)
	}
	return tag.RowsAffected() == 1, nil
}

// GetByKey fetches the record for an event key.
func (r *WebhookEventRepo) GetByKey(ctx context.Context, eventKey string) (*domain.WebhookEvent, error) {
	query := `SELECT ` + webhookEventColumns + ` FROM webhook_events WHERE event_key = $1`

	e := &domain.WebhookEvent{}
	err := r.pool.QueryRow(ctx, query, eventKey).Scan(
		&e.ID, &e.Provider, &e.EventKey, &e.EventType, &e.PayloadEncrypted, &e.SignatureVerified,
		&e.Outcome, &e.TransactionID, &e.FailureReason, &e.ReceivedAt, &e.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get webhook event: %w", err)
	}
	return e, nil
}

// LinkTransaction attaches the ledger entry an accepted event produced.
func (r *WebhookEventRepo) LinkTransaction(ctx context.Context, tx pgx.Tx, eventKey string, transactionID uuid.UUID) error {
	query := `UPDATE webhook_events SET transaction_id = $1, updated_at = NOW() WHERE event_key = $2`

	tag, err := tx.Exec(ctx, query, transactionID, eventKey)
	if err != nil {
		return fmt.Errorf("link webhook event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("webhook event not found: %s", eventKey)
	}
	return nil
}
