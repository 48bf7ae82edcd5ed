package domain

import (
	"fmt"
	"math/big"
	"regexp"

	"github.com/shopspring/decimal"
)

var quoteUnit = decimal.NewFromInt(int64(QuotePrecision))

// plainDecimal admits an optional sign, up to 20 integer digits and any
// fraction digits, bounded by maxQuoteLen. Exponent notation never matches.
var plainDecimal = regexp.MustCompile(`^-?\d{1,20}(\.\d+)?$`)

const maxQuoteLen = 40

// ParseQuote converts a decimal quote-currency amount such as "0.01" into
// fixed-point quote units. Amounts must be non-negative with at most six
// decimal places.
func ParseQuote(s string) (uint64, error) {
	if len(s) > maxQuoteLen || !plainDecimal.MatchString(s) {
		return 0, fmt.Errorf("invalid quote amount %q: want plain decimal notation", s)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("invalid quote amount %q: %w", s, err)
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("quote amount %q must be >= 0", s)
	}
	units := d.Mul(quoteUnit)
	if !units.Equal(units.Truncate(0)) {
		return 0, fmt.Errorf("quote amount %q must have at most 6 decimal places", s)
	}
	if !units.BigInt().IsUint64() {
		return 0, fmt.Errorf("quote amount %q out of range", s)
	}
	return units.BigInt().Uint64(), nil
}

// FormatQuote renders fixed-point quote units as a decimal string.
func FormatQuote(units uint64) string {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(units), 0).Div(quoteUnit).String()
}
