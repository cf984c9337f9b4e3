package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"wallet-service/internal/core/ports"

	"github.com/golang-jwt/jwt/v5"
)

// identityClaims is the payload of an identity provider assertion.
type identityClaims struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	jwt.RegisteredClaims
}

// JWTAssertionVerifier implements ports.IdentityVerifier for HS256 assertions
// minted by the identity provider for this service's audience.
type JWTAssertionVerifier struct {
	secret   []byte
	issuer   string
	audience string
	leeway   time.Duration
	now      func() time.Time
}

// NewJWTAssertionVerifier creates a verifier bound to one issuer and audience.
func NewJWTAssertionVerifier(secret, issuer, audience string, leeway time.Duration) *JWTAssertionVerifier {
	return &JWTAssertionVerifier{
		secret:   []byte(secret),
		issuer:   issuer,
		audience: audience,
		leeway:   leeway,
		now:      time.Now,
	}
}

// Verify checks signature, issuer, audience and lifetime, and returns the asserted identity.
func (v *JWTAssertionVerifier) Verify(ctx context.Context, assertion string) (*ports.ExternalIdentity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(v.audience),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.leeway),
		jwt.WithTimeFunc(v.now),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := &identityClaims{}
	if _, err := jwt.ParseWithClaims(assertion, claims, func(*jwt.Token) (any, error) { return v.secret, nil }, opts...); err != nil {
		return nil, fmt.Errorf("verifying identity assertion: %w", err)
	}

	if strings.TrimSpace(claims.Subject) == "" {
		return nil, errors.New("identity assertion has no subject")
	}
	email := strings.ToLower(strings.TrimSpace(claims.Email))
	if email == "" {
		return nil, errors.New("identity assertion has no email")
	}

	return &ports.ExternalIdentity{
		Subject: claims.Subject,
		Email:   email,
		Name:    strings.TrimSpace(claims.Name),
	}, nil
}
