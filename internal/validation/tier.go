package validation

import (
	"fmt"

	"github.com/efreitasn/feeschedule/internal/domain"
)

// ValidateTier checks one fee tier against the rate bounds and the
// fee-to-market invariant, which depends on the venue-wide filler reward
// numerator. Checks run in a fixed order and the first failure is
// returned as a *domain.InvalidFeeStructureError. index is used only in
// the reported error.
func ValidateTier(index int, tier domain.FeeTier, fillerRewardNumerator uint32) error {
	checks := [...]rateCheck{
		{domain.CheckFee, "fee", tier.FeeRate, domain.BasisPoints, FeeRateMax},
		{domain.CheckMakerRebate, "maker rebate", tier.MakerRebateRate, domain.BasisPoints, MakerRebateMax},
		{domain.CheckRefereeDiscount, "referee discount", tier.RefereeDiscountRate, domain.Percentage, RefereeDiscountMax},
		{domain.CheckReferrerReward, "referrer reward", tier.ReferrerRewardRate, domain.Percentage, ReferrerRewardMax},
	}
	for _, c := range checks {
		if !c.ok() {
			return c.failure(index)
		}
	}

	feeToMarket := FeeToMarket(tier, fillerRewardNumerator)
	if feeToMarket > int64(tier.FeeRate.Numerator) {
		return &domain.InvalidFeeStructureError{
			Check:       domain.CheckFeeToMarket,
			TierIndex:   index,
			Numerator:   uint64(tier.FeeRate.Numerator),
			Denominator: uint64(tier.FeeRate.Denominator),
			Value:       feeToMarket,
			Message: fmt.Sprintf("invalid fee to market (%d) exceeds fee numerator (%d) for tier %d",
				feeToMarket, tier.FeeRate.Numerator, index),
		}
	}

	return nil
}
