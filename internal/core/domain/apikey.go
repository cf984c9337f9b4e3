package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Permission is a capability an API key may grant.
type Permission string

const (
	PermissionDeposit  Permission = "deposit"
	PermissionTransfer Permission = "transfer"
	PermissionRead     Permission = "read"
)

// AllPermissions lists every grantable permission.
var AllPermissions = []Permission{PermissionDeposit, PermissionTransfer, PermissionRead}

// ParsePermission converts a string into a Permission.
func ParsePermission(s string) (Permission, error) {
	p := Permission(strings.ToLower(strings.TrimSpace(s)))
	switch p {
	case PermissionDeposit, PermissionTransfer, PermissionRead:
		return p, nil
	}
	return "", fmt.Errorf("unknown permission %q", s)
}

// PermissionSet is a set of permissions. The zero value is empty.
type PermissionSet map[Permission]struct{}

// NewPermissionSet builds a set from the given permissions.
func NewPermissionSet(perms ...Permission) PermissionSet {
	set := make(PermissionSet, len(perms))
	for _, p := range perms {
		set[p] = struct{}{}
	}
	return set
}

// ParsePermissionSet parses a list of permission names. Duplicates collapse.
func ParsePermissionSet(names []string) (PermissionSet, error) {
	set := make(PermissionSet, len(names))
	for _, n := range names {
		p, err := ParsePermission(n)
		if err != nil {
			return nil, err
		}
		set[p] = struct{}{}
	}
	return set, nil
}

// Has reports membership.
func (s PermissionSet) Has(p Permission) bool {
	_, ok := s[p]
	return ok
}

// Strings returns the set's members sorted for stable storage and output.
func (s PermissionSet) Strings() []string {
	out := make([]string, 0, len(s))
	for p := range s {
		out = append(out, string(p))
	}
	sort.Strings(out)
	return out
}

// Clone returns an independent copy.
func (s PermissionSet) Clone() PermissionSet {
	c := make(PermissionSet, len(s))
	for p := range s {
		c[p] = struct{}{}
	}
	return c
}

// APIKeyStatus is the stored lifecycle state of a key.
type APIKeyStatus string

const (
	APIKeyStatusActive  APIKeyStatus = "ACTIVE"
	APIKeyStatusExpired APIKeyStatus = "EXPIRED"
	APIKeyStatusRevoked APIKeyStatus = "REVOKED"
)

// APIKeyPrefix starts every plaintext key.
const APIKeyPrefix = "wsk"

// APIKey is a scoped, expiring credential. Only a salted hash of the secret is kept.
type APIKey struct {
	ID            uuid.UUID     `json:"id"`
	UserID        uuid.UUID     `json:"user_id"`
	Name          string        `json:"name"`
	Prefix        string        `json:"prefix"` // Public lookup handle embedded in the plaintext key
	KeyHash       string        `json:"-"`
	Permissions   PermissionSet `json:"-"`
	Status        APIKeyStatus  `json:"status"`
	CreatedAt     time.Time     `json:"created_at"`
	ExpiresAt     time.Time     `json:"expires_at"`
	PredecessorID *uuid.UUID    `json:"predecessor_id,omitempty"`
}

// IsExpiredAt reports whether the key's lifetime has lapsed at now.
func (k *APIKey) IsExpiredAt(now time.Time) bool {
	return !now.Before(k.ExpiresAt)
}

// EffectiveStatus derives the status at now without relying on a sweep.
func (k *APIKey) EffectiveStatus(now time.Time) APIKeyStatus {
	if k.Status == APIKeyStatusActive && k.IsExpiredAt(now) {
		return APIKeyStatusExpired
	}
	return k.Status
}

// IsActiveAt reports whether the key counts toward the active-key ceiling.
func (k *APIKey) IsActiveAt(now time.Time) bool {
	return k.EffectiveStatus(now) == APIKeyStatusActive
}

// ExpiryDuration converts a duration code (1H, 1D, 1M, 1Y) into a fixed length.
// A month is 30 days and a year is 365 days.
func ExpiryDuration(code string) (time.Duration, error) {
	switch strings.ToUpper(strings.TrimSpace(code)) {
	case "1H":
		return time.Hour, nil
	case "1D":
		return 24 * time.Hour, nil
	case "1M":
		return 30 * 24 * time.Hour, nil
	case "1Y":
		return 365 * 24 * time.Hour, nil
	}
	return 0, fmt.Errorf("invalid expiry code %q", code)
}
