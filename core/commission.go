package core

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// MaxCommission is the largest accepted commission percentage.
const MaxCommission uint64 = 100

// ValidCommission reports whether rate is a percentage in [0, 100].
func ValidCommission(rate uint64) bool {
	return rate <= MaxCommission
}

// Refund returns what a losing bidder gets back from total after the
// commission percentage is withheld:
//
//	floor(total * (100 - commission) / 100)
//
// Decimal arithmetic keeps the product exact for every uint64 total, and
// the result never exceeds total.
func Refund(total, commission uint64) (uint64, error) {
	if !ValidCommission(commission) {
		return 0, ErrInvalidCommission
	}

	totalDecimal := decimal.NewFromBigInt(new(big.Int).SetUint64(total), 0)
	// (100 - commission) percent as an exact decimal fraction
	kept := decimal.New(int64(MaxCommission-commission), -2)

	refund := totalDecimal.Mul(kept).Floor()
	return refund.BigInt().Uint64(), nil
}

// Withheld returns the commission retained from total on retract.
func Withheld(total, commission uint64) (uint64, error) {
	refund, err := Refund(total, commission)
	if err != nil {
		return 0, err
	}
	return total - refund, nil
}
