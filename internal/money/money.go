// Package money provides fixed-point decimal helpers for currency amounts.
//
// Amounts are persisted with 2 decimal places and rates/percentages with 4.
// Rounding is half-up and happens only at persistence boundaries; intermediate
// arithmetic keeps full precision.
package money

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Currency identifies the denomination of an amount.
type Currency string

const (
	// USD is the reference currency for all stored amounts.
	USD Currency = "USD"
	// Local is the condominium's local currency, converted via the daily rate.
	Local Currency = "LOCAL"
)

// ErrNonPositiveAmount indicates an amount that must be strictly positive.
var ErrNonPositiveAmount = errors.New("money: amount must be positive")

// ErrNonPositiveRate indicates a conversion rate that is zero or negative.
var ErrNonPositiveRate = errors.New("money: rate must be positive")

// Round2 rounds an amount to 2 decimal places, half-up.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// Round4 rounds a rate or percentage to 4 decimal places, half-up.
func Round4(d decimal.Decimal) decimal.Decimal {
	return d.Round(4)
}

// Convert translates an amount between USD and the local currency using the
// given USD→local rate. The result is rounded to 2 decimal places.
func Convert(amount, rate decimal.Decimal, target Currency) (decimal.Decimal, error) {
	if !rate.IsPositive() {
		return decimal.Zero, ErrNonPositiveRate
	}
	switch target {
	case Local:
		return Round2(amount.Mul(rate)), nil
	case USD:
		return Round2(amount.Div(rate)), nil
	default:
		return decimal.Zero, fmt.Errorf("money: unknown currency %q", target)
	}
}

// RequirePositive validates that an input amount is strictly positive.
func RequirePositive(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrNonPositiveAmount
	}
	return nil
}

// ParseCurrency normalises a wire-level currency code.
func ParseCurrency(code string) (Currency, error) {
	switch Currency(code) {
	case USD, Local:
		return Currency(code), nil
	default:
		return "", fmt.Errorf("money: unknown currency %q", code)
	}
}
