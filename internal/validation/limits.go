// Package validation proves that a fee structure stays within the venue's
// hard bounds before it is allowed to take effect.
package validation

import (
	"fmt"

	"github.com/efreitasn/feeschedule/internal/domain"
)

// Upper bounds on rate numerators. Basis-point limits are expressed over
// domain.FeeDenominator, where 10 is one basis point.
const (
	FeeRateMax         uint32 = 100 // 10 bps
	MakerRebateMax     uint32 = 30  // 3 bps
	RefereeDiscountMax uint32 = 20  // 20%
	ReferrerRewardMax  uint32 = 20  // 20%
	FillerRewardMax    uint32 = 20  // 20%

	FlatFillerFeeMax = domain.QuotePrecision // one quote unit
)

// rateCheck binds a rate field to the bound and denominator kind it must
// satisfy.
type rateCheck struct {
	check domain.FeeCheck
	label string
	rate  domain.Rate
	kind  domain.DenominatorKind
	max   uint32
}

func (c rateCheck) ok() bool {
	return c.rate.Numerator <= c.max && c.rate.Is(c.kind)
}

// failure builds the error for a failed check. index is domain.NoTier for
// venue-wide rates.
func (c rateCheck) failure(index int) *domain.InvalidFeeStructureError {
	msg := fmt.Sprintf("invalid %s numerator (%d) or denominator (%d)",
		c.label, c.rate.Numerator, c.rate.Denominator)
	if index != domain.NoTier {
		msg = fmt.Sprintf("%s for tier %d", msg, index)
	}
	return &domain.InvalidFeeStructureError{
		Check:       c.check,
		TierIndex:   index,
		Numerator:   uint64(c.rate.Numerator),
		Denominator: uint64(c.rate.Denominator),
		Message:     msg,
	}
}

// FeeToMarket returns the share of a tier's taker fee numerator the venue
// keeps after the referee discount, maker rebate, referrer reward and
// filler reward. Evaluation order and truncation follow the venue's
// integer arithmetic exactly:
//
//	taker = fee * (100 - referee) / 100
//	ftm   = taker - rebate - taker * (referrer + filler) / 100
//
// The result is signed; a negative value is reported as-is. Inputs are
// expected to be within the rate bounds, which keeps every product far
// below the int64 range.
func FeeToMarket(tier domain.FeeTier, fillerRewardNumerator uint32) int64 {
	pct := int64(domain.PercentageDenominator)
	fee := int64(tier.FeeRate.Numerator)

	taker := fee * (pct - int64(tier.RefereeDiscountRate.Numerator)) / pct
	rewards := taker * (int64(tier.ReferrerRewardRate.Numerator) + int64(fillerRewardNumerator)) / pct
	return taker - int64(tier.MakerRebateRate.Numerator) - rewards
}
