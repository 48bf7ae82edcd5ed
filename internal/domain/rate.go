package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Venue-wide fixed-point constants. A fee numerator of 10 over
// FeeDenominator is one basis point.
const (
	FeeDenominator        uint32 = 100_000
	PercentageDenominator uint32 = 100
	QuotePrecision        uint64 = 1_000_000
)

// DenominatorKind names the fixed denominator a rate field is expressed in.
type DenominatorKind int

const (
	BasisPoints DenominatorKind = iota + 1
	Percentage
)

// Denominator returns the constant every rate of this kind must carry.
func (k DenominatorKind) Denominator() uint32 {
	switch k {
	case BasisPoints:
		return FeeDenominator
	case Percentage:
		return PercentageDenominator
	}
	return 0
}

func (k DenominatorKind) String() string {
	switch k {
	case BasisPoints:
		return "basis_points"
	case Percentage:
		return "percentage"
	}
	return "unknown"
}

// Rate is an unreduced numerator/denominator pair.
type Rate struct {
	Numerator   uint32
	Denominator uint32
}

// FeeRate builds a rate over the basis-points denominator.
func FeeRate(numerator uint32) Rate {
	return Rate{Numerator: numerator, Denominator: FeeDenominator}
}

// PercentRate builds a rate over the percentage denominator.
func PercentRate(numerator uint32) Rate {
	return Rate{Numerator: numerator, Denominator: PercentageDenominator}
}

// Is reports whether r carries exactly the denominator of kind. The
// implied ratio is irrelevant: 10/100 is not a basis-points rate.
func (r Rate) Is(kind DenominatorKind) bool {
	return r.Denominator == kind.Denominator()
}

// Display renders r in the unit of kind, e.g. "10 bps" or "20%".
// Rates whose denominator is zero are rendered as the raw pair.
func (r Rate) Display(kind DenominatorKind) string {
	if r.Denominator == 0 {
		return fmt.Sprintf("%d/%d", r.Numerator, r.Denominator)
	}
	ratio := decimal.NewFromInt(int64(r.Numerator)).Div(decimal.NewFromInt(int64(r.Denominator)))
	switch kind {
	case BasisPoints:
		return ratio.Mul(decimal.NewFromInt(10_000)).String() + " bps"
	case Percentage:
		return ratio.Mul(decimal.NewFromInt(100)).String() + "%"
	}
	return ratio.String()
}
