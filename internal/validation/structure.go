package validation

import (
	"fmt"

	"github.com/efreitasn/feeschedule/internal/domain"
)

// ValidateStructure checks every tier in index order and then the
// venue-wide filler parameters. It stops at the first failure and never
// modifies s. A nil error means the whole structure may take effect.
func ValidateStructure(s domain.FeeStructure) error {
	fillerReward := s.FillerReward.RewardRate

	for i, tier := range s.Tiers {
		if err := ValidateTier(i, tier, fillerReward.Numerator); err != nil {
			return err
		}
	}

	filler := rateCheck{domain.CheckFillerReward, "filler reward", fillerReward, domain.Percentage, FillerRewardMax}
	if !filler.ok() {
		return filler.failure(domain.NoTier)
	}

	if s.FlatFillerFee > FlatFillerFeeMax {
		return &domain.InvalidFeeStructureError{
			Check:     domain.CheckFlatFillerFee,
			TierIndex: domain.NoTier,
			Numerator: s.FlatFillerFee,
			Message:   fmt.Sprintf("invalid flat filler fee (%d) exceeds %d", s.FlatFillerFee, FlatFillerFeeMax),
		}
	}

	return nil
}
