package domain

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

const minorUnitsExp = 2

// MaxAmount bounds any single amount in minor units (10 trillion major units).
// Keeping amounts far below the int64 range means one credit can never wrap
// a balance.
const MaxAmount int64 = 1_000_000_000_000_000

var (
	hundred      = decimal.NewFromInt(100)
	maxAmountDec = decimal.NewFromInt(MaxAmount)
)

// ParseAmount converts a major-unit string such as "999.99" into minor units.
func ParseAmount(s string) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("ParseAmount: %w", ErrInvalidAmount)
	}
	return AmountFromDecimal(d)
}

func AmountFromDecimal(d decimal.Decimal) (int64, error) {
	minor := d.Mul(hundred)
	if !minor.IsInteger() {
		return 0, fmt.Errorf("AmountFromDecimal: more than two decimal places: %w", ErrInvalidAmount)
	}
	if minor.Abs().GreaterThan(maxAmountDec) {
		return 0, fmt.Errorf("AmountFromDecimal: exceeds %s: %w", FormatAmount(MaxAmount), ErrInvalidAmount)
	}
	return minor.IntPart(), nil
}

// AddBalance credits amount to balance, refusing a result above the int64 range.
func AddBalance(balance, amount int64) (int64, error) {
	if amount > 0 && balance > math.MaxInt64-amount {
		return 0, fmt.Errorf("AddBalance: %w", ErrInvalidAmount)
	}
	return balance + amount, nil
}

func FormatAmount(minor int64) string {
	return decimal.New(minor, -minorUnitsExp).StringFixed(minorUnitsExp)
}
