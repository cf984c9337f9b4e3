package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultCurrency is the currency every wallet is opened in.
	DefaultCurrency = "NGN"
	// WalletNumberLength is the number of decimal digits in a wallet number.
	WalletNumberLength = 13
)

// Wallet holds a single user's balance in integer minor units.
type Wallet struct {
	ID           uuid.UUID `json:"id"`
	UserID       uuid.UUID `json:"user_id"`
	WalletNumber string    `json:"wallet_number"`
	Balance      int64     `json:"balance"` // Minor units (kobo), never negative
	Currency     string    `json:"currency"`
	Version      int64     `json:"-"` // Incremented on every balance change
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// CanDebit reports whether the wallet can give up amount without going negative.
func (w *Wallet) CanDebit(amount int64) bool {
	return amount > 0 && w.Balance >= amount
}

// IsValidWalletNumber reports whether s has the wallet number shape.
func IsValidWalletNumber(s string) bool {
	if len(s) != WalletNumberLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
