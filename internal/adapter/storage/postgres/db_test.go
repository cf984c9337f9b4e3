package postgres

import (
	"errors"
	"fmt"
	"testing"

	"wallet-service/internal/core/ports"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
)

// anyArgs matches a statement with n bind parameters of any value.
func anyArgs(n int) []interface{} {
	args := make([]interface{}, n)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return args
}

func TestClassify_UniqueViolation(t *testing.T) {
	err := classify("insert wallet", &pgconn.PgError{Code: "23505", ConstraintName: "wallets_wallet_number_key"})

	assert.True(t, errors.Is(err, ports.ErrDuplicateKey))
	assert.Contains(t, err.Error(), "wallets_wallet_number_key")
}

func TestClassify_OtherErrors(t *testing.T) {
	err := classify("insert wallet", &pgconn.PgError{Code: "23514", ConstraintName: "wallets_balance_check"})
	assert.False(t, errors.Is(err, ports.ErrDuplicateKey))

	inner := fmt.Errorf("connection reset")
	err = classify("insert wallet", inner)
	assert.True(t, errors.Is(err, inner))
	assert.Contains(t, err.Error(), "insert wallet")
}
