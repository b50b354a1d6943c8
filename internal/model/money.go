package model

import (
	"math"
	"strconv"
)

// ToMinorUnits converts a decimal amount in major units to minor units (cents/piasters).
// Sums over cart lines are done in minor units so that 0.1+0.2 style drift
// never reaches a displayed total.
// Examples: 99.0 → 9900, 0.125 → 13, -10 → -1000
func ToMinorUnits(amount float64) int64 {
	// math.Round handles both positive and negative numbers correctly
	return int64(math.Round(amount * 100))
}

// FromMinorUnits converts minor units back to a decimal amount.
func FromMinorUnits(minor int64) float64 {
	return float64(minor) / 100
}

// FormatAmount renders an amount with two decimals and an optional currency suffix.
// Examples: (1250.5, "EGP") → "1250.50 EGP", (3, "") → "3.00"
func FormatAmount(amount float64, currency string) string {
	s := strconv.FormatFloat(FromMinorUnits(ToMinorUnits(amount)), 'f', 2, 64)
	if currency == "" {
		return s
	}
	return s + " " + currency
}
