package token

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Units is an amount in the token's smallest denomination. All arithmetic
// inside the service happens in Units; decimal text exists only at the edges.
type Units = int64

// ParseUnits converts decimal text ("1.5", "0.00000001", "100") into smallest
// units. Text with more fractional digits than the token carries is an error,
// not a silent truncation.
func ParseUnits(s string, decimals int) (Units, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", s, err)
	}

	scaled := d.Shift(int32(decimals))
	if !scaled.IsInteger() {
		return 0, fmt.Errorf("amount %q exceeds %d decimal places", s, decimals)
	}
	bi := scaled.BigInt()
	if !bi.IsInt64() {
		return 0, fmt.Errorf("amount %q does not fit in 64 bits", s)
	}
	return bi.Int64(), nil
}

// FormatUnits renders smallest units as fixed-point decimal text.
func FormatUnits(u Units, decimals int) string {
	return decimal.New(u, -int32(decimals)).StringFixed(int32(decimals))
}
