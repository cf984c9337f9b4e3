// Package money converts between integer minor units and decimal major units.
package money

import "github.com/shopspring/decimal"

// MinorExponent is the number of minor-unit digits for supported currencies (kobo, cents).
const MinorExponent = 2

// FromMinor converts an integer amount in minor units to a decimal in major units.
func FromMinor(amount int64) decimal.Decimal {
	return decimal.New(amount, -MinorExponent)
}

// Format renders minor units as a fixed two-decimal major-unit string, e.g. 150050 -> "1500.50".
func Format(amount int64) string {
	return FromMinor(amount).StringFixed(MinorExponent)
}
