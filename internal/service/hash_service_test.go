package service

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArgon2HashService_HashAndVerify(t *testing.T) {
	svc := NewArgon2HashService()

	key := "wsk_0123456789ab_c2VjcmV0LXNlY3JldC1zZWNyZXQtc2VjcmV0LXNlY3Jl"
	hash, err := svc.Hash(key)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hash, "$argon2id$v=19$"))
	assert.Contains(t, hash, "m=19456,t=2,p=1")
	assert.NotContains(t, hash, key)

	match, err := svc.Verify(key, hash)
	require.NoError(t, err)
	assert.True(t, match)
}

func TestArgon2HashService_VerifyWrongSecret(t *testing.T) {
	svc := NewArgon2HashService()

	hash, err := svc.Hash("wsk_aaaaaaaaaaaa_right")
	require.NoError(t, err)

	match, err := svc.Verify("wsk_aaaaaaaaaaaa_wrong", hash)
	require.NoError(t, err)
	assert.False(t, match)
}

func TestArgon2HashService_UniqueSalts(t *testing.T) {
	svc := NewArgon2HashService()

	hash1, err := svc.Hash("same-key")
	require.NoError(t, err)
	hash2, err := svc.Hash("same-key")
	require.NoError(t, err)

	assert.NotEqual(t, hash1, hash2)
}

func TestArgon2HashService_VerifyMalformed(t *testing.T) {
	svc := NewArgon2HashService()

	tests := []struct {
		name string
		hash string
	}{
		{"not phc", "not-a-valid-hash"},
		{"wrong algorithm", "$argon2i$v=19$m=19456,t=2,p=1$c2FsdA$aGFzaA"},
		{"wrong version", "$argon2id$v=16$m=19456,t=2,p=1$c2FsdA$aGFzaA"},
		{"bad params", "$argon2id$v=19$m=x,t=2,p=1$c2FsdA$aGFzaA"},
		{"bad salt", "$argon2id$v=19$m=19456,t=2,p=1$!!!$aGFzaA"},
		{"empty hash", "$argon2id$v=19$m=19456,t=2,p=1$c2FsdA$"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Verify("secret", tt.hash)
			assert.Error(t, err)
		})
	}
}
