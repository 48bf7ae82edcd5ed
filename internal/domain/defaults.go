package domain

// defaultTier builds a tier with the venue's standard affiliate split:
// 15% of the taker fee to the referrer, 5% discount to the referee.
func defaultTier(feeNumerator, makerRebateNumerator uint32) FeeTier {
	return FeeTier{
		FeeRate:             FeeRate(feeNumerator),
		MakerRebateRate:     FeeRate(makerRebateNumerator),
		RefereeDiscountRate: PercentRate(5),
		ReferrerRewardRate:  PercentRate(15),
	}
}

// PerpsDefault returns the fee structure shipped for perpetual futures
// markets: 10 bps down to 3.5 bps taker, 2 bps maker rebate.
func PerpsDefault() FeeStructure {
	return FeeStructure{
		Tiers: []FeeTier{
			defaultTier(100, 20),
			defaultTier(80, 20),
			defaultTier(60, 20),
			defaultTier(50, 20),
			defaultTier(40, 20),
			defaultTier(35, 20),
		},
		FillerReward: FillerRewardStructure{
			RewardRate: PercentRate(10),
		},
		FlatFillerFee: 10_000, // 0.01 quote
	}
}

// SpotDefault returns the fee structure shipped for spot markets.
func SpotDefault() FeeStructure {
	return FeeStructure{
		Tiers: []FeeTier{
			defaultTier(100, 20),
			defaultTier(80, 20),
			defaultTier(60, 20),
			defaultTier(50, 20),
			defaultTier(40, 20),
		},
		FillerReward: FillerRewardStructure{
			RewardRate: PercentRate(10),
		},
		FlatFillerFee: 10_000,
	}
}

// DefaultFor returns the shipped default for a market type.
func DefaultFor(market MarketType) (FeeStructure, bool) {
	switch market {
	case MarketPerp:
		return PerpsDefault(), true
	case MarketSpot:
		return SpotDefault(), true
	}
	return FeeStructure{}, false
}
