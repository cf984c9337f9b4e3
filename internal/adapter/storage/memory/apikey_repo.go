package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"wallet-service/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// APIKeyRepo implements ports.APIKeyRepository.
type APIKeyRepo struct {
	store *Store
}

// NewAPIKeyRepo creates a new APIKeyRepo.
func NewAPIKeyRepo(store *Store) *APIKeyRepo {
	return &APIKeyRepo{store: store}
}

func (r *APIKeyRepo) Create(ctx context.Context, tx pgx.Tx, key *domain.APIKey) error {
	t, err := txOf(tx)
	if err != nil {
		return err
	}
	if err := t.lock(ctx, "apikey:prefix:"+key.Prefix); err != nil {
		return err
	}
	if t.apiKeyPrefixTaken(key.Prefix) {
		return duplicate("api_keys_prefix_key")
	}
	if err := t.lock(ctx, "apikey:"+key.ID.String()); err != nil {
		return err
	}
	t.apiKeys[key.ID] = cloneKey(*key)
	return nil
}

func (r *APIKeyRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.APIKey, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	k, ok := r.store.apiKeys[id]
	if !ok {
		return nil, nil
	}
	k = cloneKey(k)
	return &k, nil
}

func (r *APIKeyRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.APIKey, error) {
	t, err := txOf(tx)
	if err != nil {
		return nil, err
	}
	if err := t.lock(ctx, "apikey:"+id.String()); err != nil {
		return nil, err
	}
	k, ok := t.apiKey(id)
	if !ok {
		return nil, nil
	}
	return &k, nil
}

func (r *APIKeyRepo) GetByPrefix(_ context.Context, prefix string) (*domain.APIKey, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	for _, k := range r.store.apiKeys {
		if k.Prefix == prefix {
			k = cloneKey(k)
			return &k, nil
		}
	}
	return nil, nil
}

func (r *APIKeyRepo) ListByUser(_ context.Context, userID uuid.UUID) ([]domain.APIKey, error) {
	r.store.mu.RLock()
	var keys []domain.APIKey
	for _, k := range r.store.apiKeys {
		if k.UserID == userID {
			keys = append(keys, cloneKey(k))
		}
	}
	r.store.mu.RUnlock()

	sort.Slice(keys, func(i, j int) bool { return keys[i].CreatedAt.After(keys[j].CreatedAt) })
	return keys, nil
}

func (r *APIKeyRepo) CountActive(_ context.Context, tx pgx.Tx, userID uuid.UUID, now time.Time) (int, error) {
	t, err := txOf(tx)
	if err != nil {
		return 0, err
	}
	merged := make(map[uuid.UUID]domain.APIKey)
	t.store.mu.RLock()
	for id, k := range t.store.apiKeys {
		if k.UserID == userID {
			merged[id] = k
		}
	}
	t.store.mu.RUnlock()
	for id, k := range t.apiKeys {
		if k.UserID == userID {
			merged[id] = k
		}
	}

	count := 0
	for _, k := range merged {
		if k.Status == domain.APIKeyStatusActive && k.ExpiresAt.After(now) {
			count++
		}
	}
	return count, nil
}

func (r *APIKeyRepo) UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.APIKeyStatus) error {
	t, err := txOf(tx)
	if err != nil {
		return err
	}
	if err := t.lock(ctx, "apikey:"+id.String()); err != nil {
		return err
	}
	k, ok := t.apiKey(id)
	if !ok {
		return fmt.Errorf("api key not found: %s", id)
	}
	k.Status = status
	t.apiKeys[id] = k
	return nil
}

// MarkExpired runs in its own short transaction so it waits behind any holder of the row lock.
func (r *APIKeyRepo) MarkExpired(ctx context.Context, id uuid.UUID) error {
	tx, err := r.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	t := tx.(*Tx)
	if err := t.lock(ctx, "apikey:"+id.String()); err != nil {
		return err
	}
	k, ok := t.apiKey(id)
	if !ok || k.Status != domain.APIKeyStatusActive {
		return nil
	}
	k.Status = domain.APIKeyStatusExpired
	t.apiKeys[id] = k
	return tx.Commit(ctx)
}

func (t *Tx) apiKey(id uuid.UUID) (domain.APIKey, bool) {
	if k, ok := t.apiKeys[id]; ok {
		return cloneKey(k), true
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	k, ok := t.store.apiKeys[id]
	return cloneKey(k), ok
}

func (t *Tx) apiKeyPrefixTaken(prefix string) bool {
	for _, k := range t.apiKeys {
		if k.Prefix == prefix {
			return true
		}
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	for _, k := range t.store.apiKeys {
		if k.Prefix == prefix {
			return true
		}
	}
	return false
}

func cloneKey(k domain.APIKey) domain.APIKey {
	k.Permissions = k.Permissions.Clone()
	return k
}
