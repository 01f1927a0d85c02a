package game

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ToMinorUnits converts a token amount into the token's smallest unit.
// Amounts finer than the token precision are rejected rather than rounded.
func ToMinorUnits(amount decimal.Decimal, decimals int32) (int64, error) {
	if decimals < 0 || decimals > 18 {
		return 0, fmt.Errorf("%w: decimals %d", ErrInvalidAmount, decimals)
	}
	if amount.Sign() <= 0 {
		return 0, ErrInvalidAmount
	}
	scaled := amount.Shift(decimals)
	if !scaled.IsInteger() {
		return 0, fmt.Errorf("%w: more than %d decimal places", ErrInvalidAmount, decimals)
	}
	if scaled.GreaterThan(decimal.NewFromInt(maxMinorUnits)) {
		return 0, fmt.Errorf("%w: out of range", ErrInvalidAmount)
	}
	return scaled.IntPart(), nil
}

func FromMinorUnits(amount int64, decimals int32) decimal.Decimal {
	return decimal.New(amount, -decimals)
}

const maxMinorUnits = 1<<63 - 1
