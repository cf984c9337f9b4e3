package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"wallet-service/internal/core/domain"
	"wallet-service/internal/core/ports"
	"wallet-service/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const maxProvisionAttempts = 5

var walletNumberSpace = new(big.Int).Exp(big.NewInt(10), big.NewInt(domain.WalletNumberLength), nil)

// SessionServiceImpl implements ports.SessionIssuer.
type SessionServiceImpl struct {
	verifier   ports.IdentityVerifier
	userRepo   ports.UserRepository
	walletRepo ports.WalletRepository
	tokenSvc   ports.TokenService
	transactor ports.DBTransactor
	log        zerolog.Logger
	newNumber  func() (string, error)
}

// NewSessionService creates a new SessionServiceImpl.
func NewSessionService(
	verifier ports.IdentityVerifier,
	userRepo ports.UserRepository,
	walletRepo ports.WalletRepository,
	tokenSvc ports.TokenService,
	transactor ports.DBTransactor,
	log zerolog.Logger,
) *SessionServiceImpl {
	return &SessionServiceImpl{
		verifier:   verifier,
		userRepo:   userRepo,
		walletRepo: walletRepo,
		tokenSvc:   tokenSvc,
		transactor: transactor,
		log:        log,
		newNumber:  generateWalletNumber,
	}
}

// Authenticate verifies assertion, finds or provisions the user and wallet,
// and issues a session token.
func (s *SessionServiceImpl) Authenticate(ctx context.Context, assertion string) (*ports.Session, error) {
	if strings.TrimSpace(assertion) == "" {
		return nil, apperror.ErrInvalidIdentity()
	}

	// Verification happens before any row is touched.
	identity, err := s.verifier.Verify(ctx, assertion)
	if err != nil {
		if ctx.Err() != nil {
			return nil, apperror.InternalError(fmt.Errorf("verify identity: %w", err))
		}
		s.log.Warn().Err(err).Msg("identity assertion rejected")
		return nil, apperror.ErrInvalidIdentity()
	}

	user, wallet, created, err := s.findOrProvision(ctx, identity)
	if err != nil {
		return nil, err
	}

	token, expiresAt, err := s.tokenSvc.Generate(user.ID, user.Email)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("generate token: %w", err))
	}

	s.log.Info().
		Str("user_id", user.ID.String()).
		Str("wallet_number", wallet.WalletNumber).
		Bool("created", created).
		Msg("session issued")

	return &ports.Session{
		Token:     token,
		ExpiresAt: expiresAt,
		User:      user,
		Wallet:    wallet,
		Created:   created,
	}, nil
}

// ValidateSession returns the user id carried by a live session token.
func (s *SessionServiceImpl) ValidateSession(_ context.Context, token string) (uuid.UUID, error) {
	claims, err := s.tokenSvc.Validate(token)
	if err != nil {
		if errors.Is(err, ports.ErrTokenExpired) {
			return uuid.Nil, apperror.ErrSessionExpired()
		}
		return uuid.Nil, apperror.ErrInvalidToken()
	}
	return claims.UserID, nil
}

func (s *SessionServiceImpl) findOrProvision(ctx context.Context, identity *ports.ExternalIdentity) (*domain.User, *domain.Wallet, bool, error) {
	for attempt := 0; attempt < maxProvisionAttempts; attempt++ {
		user, err := s.userRepo.GetBySubject(ctx, identity.Subject)
		if err != nil {
			return nil, nil, false, apperror.InternalError(fmt.Errorf("find user: %w", err))
		}
		if user != nil {
			wallet, err := s.walletRepo.GetByUserID(ctx, user.ID)
			if err != nil {
				return nil, nil, false, apperror.InternalError(fmt.Errorf("find wallet: %w", err))
			}
			if wallet == nil {
				return nil, nil, false, apperror.InternalError(fmt.Errorf("user %s has no wallet", user.ID))
			}
			return user, wallet, false, nil
		}

		user, wallet, err := s.provision(ctx, identity)
		if errors.Is(err, ports.ErrDuplicateKey) {
			// A concurrent login created the user, or the wallet number collided.
			// The next pass tells the two apart.
			continue
		}
		if err != nil {
			return nil, nil, false, err
		}
		return user, wallet, true, nil
	}
	return nil, nil, false, apperror.ErrConcurrentModification(errors.New("could not provision user and wallet"))
}

// provision creates the user and its wallet in one transaction.
func (s *SessionServiceImpl) provision(ctx context.Context, identity *ports.ExternalIdentity) (*domain.User, *domain.Wallet, error) {
	number, err := s.newNumber()
	if err != nil {
		return nil, nil, apperror.InternalError(fmt.Errorf("generate wallet number: %w", err))
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	now := time.Now().UTC()
	user := &domain.User{
		ID:        uuid.New(),
		Subject:   identity.Subject,
		Email:     identity.Email,
		Name:      identity.Name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.userRepo.Create(ctx, dbTx, user); err != nil {
		if errors.Is(err, ports.ErrDuplicateKey) {
			return nil, nil, err
		}
		return nil, nil, apperror.InternalError(fmt.Errorf("create user: %w", err))
	}

	wallet := &domain.Wallet{
		ID:           uuid.New(),
		UserID:       user.ID,
		WalletNumber: number,
		Currency:     domain.DefaultCurrency,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.walletRepo.Create(ctx, dbTx, wallet); err != nil {
		if errors.Is(err, ports.ErrDuplicateKey) {
			return nil, nil, err
		}
		return nil, nil, apperror.InternalError(fmt.Errorf("create wallet: %w", err))
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}
	return user, wallet, nil
}

// generateWalletNumber returns WalletNumberLength uniformly random digits.
func generateWalletNumber() (string, error) {
	n, err := rand.Int(rand.Reader, walletNumberSpace)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", domain.WalletNumberLength, n), nil
}
