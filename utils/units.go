package utils

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

const NativeDecimals = 18

// ToDecimal converts an amount in smallest unit to its display scale.
func ToDecimal(amount *big.Int, decimals uint8) decimal.Decimal {
	if amount == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(amount, -int32(decimals))
}

// ParseAmount converts a display-scale decimal string into smallest unit.
// Amounts with more fractional digits than the token supports are rejected
// rather than rounded.
func ParseAmount(value string, decimals uint8) (*big.Int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, fmt.Errorf("amount is empty")
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", value, err)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("amount %q is negative", value)
	}
	if -d.Exponent() > int32(decimals) {
		scaled := d.Shift(int32(decimals))
		if !scaled.Equal(scaled.Truncate(0)) {
			return nil, fmt.Errorf(
				"amount %q has more than %d fractional digits", value, decimals,
			)
		}
	}
	return d.Shift(int32(decimals)).BigInt(), nil
}

// FormatNative renders a smallest-unit amount with four fractional digits,
// switching to scientific notation for dust.
func FormatNative(amount *big.Int, decimals uint8) string {
	d := ToDecimal(amount, decimals)
	if d.IsZero() {
		return "0.0"
	}
	if d.LessThan(decimal.New(1, -4)) {
		f, _ := d.Float64()
		s := strconv.FormatFloat(f, 'e', 2, 64)
		return strings.Replace(strings.Replace(s, "e-0", "e-", 1), "e+0", "e+", 1)
	}
	return d.StringFixed(4)
}

// FormatUSDApprox renders an approximate fiat value for display only.
func FormatUSDApprox(usd decimal.Decimal) string {
	if !usd.IsPositive() {
		return "~$0"
	}
	if usd.LessThan(decimal.NewFromInt(1000)) {
		return "~$" + usd.StringFixed(2)
	}
	return "~$" + usd.StringFixed(0)
}
