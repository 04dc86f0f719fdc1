package domain

import "github.com/shopspring/decimal"

// Monetary precision. Balances carry 4 fractional digits, fee rounding uses 2.
// All rounding is banker's (half-even) to avoid systematic drift.
const (
	BalanceScale = 4
	FeeScale     = 2
)

// Quantize normalizes a monetary value to balance precision.
func Quantize(d decimal.Decimal) decimal.Decimal {
	return d.RoundBank(BalanceScale)
}

// QuantizeFee normalizes a fee value to fee precision.
func QuantizeFee(d decimal.Decimal) decimal.Decimal {
	return d.RoundBank(FeeScale)
}

// MoneyString renders a monetary value with the fixed 4-digit scale used on
// the wire and in integrity hashes.
func MoneyString(d decimal.Decimal) string {
	return d.StringFixed(BalanceScale)
}

// ValidatePositiveAmount rejects zero and negative amounts.
func ValidatePositiveAmount(d decimal.Decimal) error {
	if d.Sign() <= 0 {
		return ErrValidation("amount must be positive")
	}
	return nil
}
