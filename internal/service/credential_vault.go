package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
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

const (
	keyPrefixBytes = 6  // 12 hex chars
	keySecretBytes = 32 // 43 base64url chars
)

// VaultOptions tunes the credential vault.
type VaultOptions struct {
	MaxActive int
	// AllowActiveRollover lets a live key be rotated; the old key is revoked.
	AllowActiveRollover bool
}

// CredentialVaultImpl implements ports.CredentialVault.
type CredentialVaultImpl struct {
	userRepo   ports.UserRepository
	keyRepo    ports.APIKeyRepository
	hashSvc    ports.HashService
	transactor ports.DBTransactor
	opts       VaultOptions
	log        zerolog.Logger
	now        func() time.Time
}

// NewCredentialVault creates a new CredentialVaultImpl.
func NewCredentialVault(
	userRepo ports.UserRepository,
	keyRepo ports.APIKeyRepository,
	hashSvc ports.HashService,
	transactor ports.DBTransactor,
	opts VaultOptions,
	log zerolog.Logger,
) *CredentialVaultImpl {
	if opts.MaxActive <= 0 {
		opts.MaxActive = 5
	}
	return &CredentialVaultImpl{
		userRepo:   userRepo,
		keyRepo:    keyRepo,
		hashSvc:    hashSvc,
		transactor: transactor,
		opts:       opts,
		log:        log,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Issue creates a key for req.UserID. The plaintext is returned once.
func (v *CredentialVaultImpl) Issue(ctx context.Context, req ports.IssueKeyRequest) (*ports.IssuedKey, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, apperror.Validation("key name is required")
	}
	if len(req.Permissions) == 0 {
		return nil, apperror.Validation("at least one permission is required")
	}
	lifetime, err := domain.ExpiryDuration(req.DurationCode)
	if err != nil {
		return nil, apperror.ErrInvalidDuration()
	}

	dbTx, err := v.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	if err := v.lockUser(ctx, dbTx, req.UserID); err != nil {
		return nil, err
	}

	issued, err := v.mint(ctx, dbTx, req.UserID, name, req.Permissions, lifetime, nil)
	if err != nil {
		return nil, err
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	v.log.Info().
		Str("user_id", req.UserID.String()).
		Str("key_id", issued.Key.ID.String()).
		Strs("permissions", issued.Key.Permissions.Strings()).
		Time("expires_at", issued.Key.ExpiresAt).
		Msg("api key issued")

	return issued, nil
}

// Rollover issues a successor to oldKeyID with the same name and permissions.
func (v *CredentialVaultImpl) Rollover(ctx context.Context, callerID uuid.UUID, oldKeyID uuid.UUID, durationCode string) (*ports.IssuedKey, error) {
	lifetime, err := domain.ExpiryDuration(durationCode)
	if err != nil {
		return nil, apperror.ErrInvalidDuration()
	}

	dbTx, err := v.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	// User row first, same as Issue, so the active count cannot move under us.
	if err := v.lockUser(ctx, dbTx, callerID); err != nil {
		return nil, err
	}

	old, err := v.keyRepo.GetByIDForUpdate(ctx, dbTx, oldKeyID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock api key: %w", err))
	}
	if old == nil {
		return nil, apperror.ErrNotFound("API key")
	}
	if old.UserID != callerID {
		return nil, apperror.ErrNotOwner()
	}

	now := v.now()
	switch old.EffectiveStatus(now) {
	case domain.APIKeyStatusRevoked:
		return nil, apperror.ErrKeyRevoked()
	case domain.APIKeyStatusActive:
		if !v.opts.AllowActiveRollover {
			return nil, apperror.ErrKeyNotExpired()
		}
		if err := v.keyRepo.UpdateStatus(ctx, dbTx, old.ID, domain.APIKeyStatusRevoked); err != nil {
			return nil, apperror.InternalError(fmt.Errorf("revoke rotated key: %w", err))
		}
	case domain.APIKeyStatusExpired:
		if old.Status == domain.APIKeyStatusActive {
			if err := v.keyRepo.UpdateStatus(ctx, dbTx, old.ID, domain.APIKeyStatusExpired); err != nil {
				return nil, apperror.InternalError(fmt.Errorf("expire api key: %w", err))
			}
		}
	}

	issued, err := v.mint(ctx, dbTx, callerID, old.Name, old.Permissions.Clone(), lifetime, &old.ID)
	if err != nil {
		return nil, err
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	v.log.Info().
		Str("user_id", callerID.String()).
		Str("old_key_id", old.ID.String()).
		Str("key_id", issued.Key.ID.String()).
		Msg("api key rolled over")

	return issued, nil
}

// Authorize resolves a presented key to its owner if it grants required.
// Expiry is checked before permission, so a lapsed key is Expired whatever it asks for.
func (v *CredentialVaultImpl) Authorize(ctx context.Context, rawKey string, required domain.Permission) (uuid.UUID, error) {
	prefix, ok := parseAPIKey(rawKey)
	if !ok {
		return uuid.Nil, apperror.ErrInvalidAPIKey()
	}

	key, err := v.keyRepo.GetByPrefix(ctx, prefix)
	if err != nil {
		return uuid.Nil, apperror.InternalError(fmt.Errorf("find api key: %w", err))
	}
	if key == nil {
		return uuid.Nil, apperror.ErrInvalidAPIKey()
	}

	match, err := v.hashSvc.Verify(rawKey, key.KeyHash)
	if err != nil {
		return uuid.Nil, apperror.InternalError(fmt.Errorf("verify api key: %w", err))
	}
	if !match {
		return uuid.Nil, apperror.ErrInvalidAPIKey()
	}

	switch key.EffectiveStatus(v.now()) {
	case domain.APIKeyStatusRevoked:
		return uuid.Nil, apperror.ErrInvalidAPIKey()
	case domain.APIKeyStatusExpired:
		if key.Status == domain.APIKeyStatusActive {
			if err := v.keyRepo.MarkExpired(ctx, key.ID); err != nil {
				v.log.Warn().Err(err).Str("key_id", key.ID.String()).Msg("failed to mark api key expired")
			}
		}
		return uuid.Nil, apperror.ErrKeyExpired()
	}

	if !key.Permissions.Has(required) {
		return uuid.Nil, apperror.ErrMissingPermission(string(required))
	}
	return key.UserID, nil
}

// Revoke disables a key. Revoking a revoked key is a no-op.
func (v *CredentialVaultImpl) Revoke(ctx context.Context, keyID uuid.UUID, callerID uuid.UUID) error {
	dbTx, err := v.transactor.Begin(ctx)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	key, err := v.keyRepo.GetByIDForUpdate(ctx, dbTx, keyID)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("lock api key: %w", err))
	}
	if key == nil {
		return apperror.ErrNotFound("API key")
	}
	if key.UserID != callerID {
		return apperror.ErrNotOwner()
	}
	if key.Status == domain.APIKeyStatusRevoked {
		return nil
	}

	if err := v.keyRepo.UpdateStatus(ctx, dbTx, keyID, domain.APIKeyStatusRevoked); err != nil {
		return apperror.InternalError(fmt.Errorf("revoke api key: %w", err))
	}
	if err := dbTx.Commit(ctx); err != nil {
		return apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	v.log.Info().
		Str("user_id", callerID.String()).
		Str("key_id", keyID.String()).
		Msg("api key revoked")
	return nil
}

// List returns the user's keys newest first with their effective status.
func (v *CredentialVaultImpl) List(ctx context.Context, userID uuid.UUID) ([]domain.APIKey, error) {
	keys, err := v.keyRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("list api keys: %w", err))
	}
	now := v.now()
	out := make([]domain.APIKey, 0, len(keys))
	for _, k := range keys {
		k.Status = k.EffectiveStatus(now)
		out = append(out, k)
	}
	return out, nil
}

func (v *CredentialVaultImpl) lockUser(ctx context.Context, dbTx pgx.Tx, userID uuid.UUID) error {
	user, err := v.userRepo.GetByIDForUpdate(ctx, dbTx, userID)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("lock user: %w", err))
	}
	if user == nil {
		return apperror.ErrNotFound("User")
	}
	return nil
}

// mint enforces the active-key ceiling and stores a fresh key. The user row must be locked.
func (v *CredentialVaultImpl) mint(
	ctx context.Context,
	dbTx pgx.Tx,
	userID uuid.UUID,
	name string,
	perms domain.PermissionSet,
	lifetime time.Duration,
	predecessor *uuid.UUID,
) (*ports.IssuedKey, error) {
	now := v.now()
	active, err := v.keyRepo.CountActive(ctx, dbTx, userID, now)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("count active keys: %w", err))
	}
	if active >= v.opts.MaxActive {
		return nil, apperror.ErrKeyLimitExceeded(v.opts.MaxActive)
	}

	prefix, plaintext, err := generateAPIKey()
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("generate api key: %w", err))
	}
	hash, err := v.hashSvc.Hash(plaintext)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("hash api key: %w", err))
	}

	key := &domain.APIKey{
		ID:            uuid.New(),
		UserID:        userID,
		Name:          name,
		Prefix:        prefix,
		KeyHash:       hash,
		Permissions:   perms.Clone(),
		Status:        domain.APIKeyStatusActive,
		CreatedAt:     now,
		ExpiresAt:     now.Add(lifetime),
		PredecessorID: predecessor,
	}
	if err := v.keyRepo.Create(ctx, dbTx, key); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create api key: %w", err))
	}
	return &ports.IssuedKey{Key: key, Plaintext: plaintext}, nil
}

// generateAPIKey returns the lookup prefix and the full plaintext key
// wsk_<prefix>_<secret>.
func generateAPIKey() (string, string, error) {
	buf := make([]byte, keyPrefixBytes+keySecretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", "", err
	}
	prefix := hex.EncodeToString(buf[:keyPrefixBytes])
	secret := base64.RawURLEncoding.EncodeToString(buf[keyPrefixBytes:])
	return prefix, domain.APIKeyPrefix + "_" + prefix + "_" + secret, nil
}

// parseAPIKey extracts the lookup prefix. The secret part may itself contain '_'.
func parseAPIKey(raw string) (string, bool) {
	parts := strings.SplitN(raw, "_", 3)
	if len(parts) != 3 || parts[0] != domain.APIKeyPrefix {
		return "", false
	}
	if len(parts[1]) != 2*keyPrefixBytes || len(parts[2]) != base64.RawURLEncoding.EncodedLen(keySecretBytes) {
		return "", false
	}
	if _, err := hex.DecodeString(parts[1]); err != nil {
		return "", false
	}
	return parts[1], true
}
