package memory

import (
	"context"
	"fmt"
	"time"

	"wallet-service/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// WebhookEventRepo implements ports.WebhookEventRepository.
type WebhookEventRepo struct {
	store *Store
}

// NewWebhookEventRepo creates a new WebhookEventRepo.
func NewWebhookEventRepo(store *Store) *WebhookEventRepo {
	return &WebhookEventRepo{store: store}
}

// InsertIfAbsent waits for any concurrent writer of the same key to finish,
// then inserts only if no record exists.
func (r *WebhookEventRepo) InsertIfAbsent(ctx context.Context, tx pgx.Tx, event *domain.WebhookEvent) (bool, error) {
	t, err := txOf(tx)
	if err != nil {
		return false, err
	}
	if err := t.lock(ctx, "event:"+event.EventKey); err != nil {
		return false, err
	}
	if _, ok := t.event(event.EventKey); ok {
		return false, nil
	}
	t.events[event.EventKey] = *event
	return true, nil
}

func (r *WebhookEventRepo) GetByKey(_ context.Context, eventKey string) (*domain.WebhookEvent, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	e, ok := r.store.events[eventKey]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (r *WebhookEventRepo) LinkTransaction(ctx context.Context, tx pgx.Tx, eventKey string, transactionID uuid.UUID) error {
	t, err := txOf(tx)
	if err != nil {
		return err
	}
	if err := t.lock(ctx, "event:"+eventKey); err != nil {
		return err
	}
	e, ok := t.event(eventKey)
	if !ok {
		return fmt.Errorf("webhook event not found: %s", eventKey)
	}
	e.TransactionID = &transactionID
	e.UpdatedAt = time.Now().UTC()
	t.events[eventKey] = e
	return nil
}

func (t *Tx) event(key string) (domain.WebhookEvent, bool) {
	if e, ok := t.events[key]; ok {
		return e, true
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	e, ok := t.store.events[key]
	return e, ok
}
