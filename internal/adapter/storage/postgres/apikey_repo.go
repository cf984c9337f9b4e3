package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"wallet-service/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const apiKeyColumns = `id, user_id, name, prefix, key_hash, permissions, status, created_at, expires_at, predecessor_id`

// APIKeyRepo implements ports.APIKeyRepository.
type APIKeyRepo struct {
	pool Pool
}

// NewAPIKeyRepo creates a new APIKeyRepo.
func NewAPIKeyRepo(pool Pool) *APIKeyRepo {
	return &APIKeyRepo{pool: pool}
}

// Create inserts a key within a database transaction.
func (r *APIKeyRepo) Create(ctx context.Context, tx pgx.Tx, k *domain.APIKey) error {
	query := `INSERT INTO api_keys (` + apiKeyColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := tx.Exec(ctx, query,
		k.ID, k.UserID, k.Name, k.Prefix, k.KeyHash, k.Permissions.Strings(),
		k.Status, k.CreatedAt, k.ExpiresAt, k.PredecessorID,
	)
	if err != nil {
		return classify("insert api key", err)
	}
	return nil
}

// GetByID fetches a key by UUID.
func (r *APIKeyRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.APIKey, error) {
	query := `SELECT ` + apiKeyColumns + ` FROM api_keys WHERE id = $1`
	return scanAPIKey(r.pool.QueryRow(ctx, query, id))
}

// GetByIDForUpdate fetches a key with a row-level lock (SELECT ... FOR UPDATE).
func (r *APIKeyRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.APIKey, error) {
	query := `SELECT ` + apiKeyColumns + ` FROM api_keys WHERE id = $1 FOR UPDATE`
	return scanAPIKey(tx.QueryRow(ctx, query, id))
}

// GetByPrefix fetches the key whose public prefix matches.
func (r *APIKeyRepo) GetByPrefix(ctx context.Context, prefix string) (*domain.APIKey, error) {
	query := `SELECT ` + apiKeyColumns + ` FROM api_keys WHERE prefix = $1`
	return scanAPIKey(r.pool.QueryRow(ctx, query, prefix))
}

// ListByUser returns a user's keys, newest first.
func (r *APIKeyRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.APIKey, error) {
	query := `SELECT ` + apiKeyColumns + ` FROM api_keys WHERE user_id = $1 ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer rows.Close()

	var keys []domain.APIKey
	for rows.Next() {
		k, err := scanAPIKey(rows)
		if err != nil {
			return nil, err
		}
		keys = append(keys, *k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate api key rows: %w", err)
	}
	return keys, nil
}

// CountActive counts keys that are ACTIVE and unexpired at now.
// Callers hold the owning user's row lock so the count cannot go stale before insert.
func (r *APIKeyRepo) CountActive(ctx context.Context, tx pgx.Tx, userID uuid.UUID, now time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM api_keys WHERE user_id = $1 AND status = 'ACTIVE' AND expires_at > $2`

	var count int
	if err := tx.QueryRow(ctx, query, userID, now).Scan(&count); err != nil {
		return 0, fmt.Errorf("count active api keys: %w", err)
	}
	return count, nil
}

// UpdateStatus sets a key's status within a database transaction.
func (r *APIKeyRepo) UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.APIKeyStatus) error {
	query := `UPDATE api_keys SET status = $1 WHERE id = $2`

	if _, err := tx.Exec(ctx, query, status, id); err != nil {
		return fmt.Errorf("update api key status: %w", err)
	}
	return nil
}

// MarkExpired records a lapsed key as EXPIRED. Revoked keys are left alone.
func (r *APIKeyRepo) MarkExpired(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE api_keys SET status = 'EXPIRED' WHERE id = $1 AND status = 'ACTIVE'`

	if _, err := r.pool.Exec(ctx, query, id); err != nil {
		return fmt.Errorf("mark api key expired: %w", err)
	}
	return nil
}

func scanAPIKey(row pgx.Row) (*domain.APIKey, error) {
	k := &domain.APIKey{}
	var perms []string
	err := row.Scan(
		&k.ID, &k.UserID, &k.Name, &k.Prefix, &k.KeyHash, &perms,
		&k.Status, &k.CreatedAt, &k.ExpiresAt, &k.PredecessorID,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan api key: %w", err)
	}
	k.Permissions, err = domain.ParsePermissionSet(perms)
	if err != nil {
		return nil, fmt.Errorf("api key %s: %w", k.ID, err)
	}
	return k, nil
}
