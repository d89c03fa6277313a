package storage

import (
	"errors"

	"github.com/shopspring/decimal"
)

// ErrPrecision indicates an amount carries more than two fractional digits
// and cannot be represented at the ledger's fixed scale.
var ErrPrecision = errors.New("amount exceeds two decimal places")

// Cents converts a fixed-scale currency amount to integer cents. Amounts
// with more than two fractional digits are rejected rather than rounded so
// callers never lose money silently.
func Cents(amount decimal.Decimal) (int64, error) {
	shifted := amount.Shift(2)
	if !shifted.IsInteger() {
		return 0, ErrPrecision
	}
	if !shifted.BigInt().IsInt64() {
		return 0, ErrPrecision
	}
	return shifted.IntPart(), nil
}

// FromCents converts integer cents back to a two-decimal currency amount.
func FromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}
