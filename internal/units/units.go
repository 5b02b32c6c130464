// Package units converts between integer minor units and decimal token amounts.
package units

import (
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// ParseMinor parses a base-10 integer amount. Empty or malformed input is zero.
func ParseMinor(raw string) decimal.Decimal {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero
	}
	v, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(v, 0)
}

// ToNative shifts a minor-unit amount down by decimals places.
func ToNative(minor decimal.Decimal, decimals int32) decimal.Decimal {
	return minor.Shift(-decimals)
}

// MinorToNative parses raw and converts it in one step.
func MinorToNative(raw string, decimals int32) decimal.Decimal {
	return ToNative(ParseMinor(raw), decimals)
}

// FromNative converts a token amount back to whole minor units, truncating dust.
func FromNative(amount decimal.Decimal, decimals int32) *big.Int {
	return amount.Shift(decimals).Truncate(0).BigInt()
}

// USD values a native amount at price, rounded to cents.
func USD(amount, price decimal.Decimal) decimal.Decimal {
	return amount.Mul(price).Round(2)
}
