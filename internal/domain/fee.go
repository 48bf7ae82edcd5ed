package domain

import "fmt"

// MarketType selects which fee structure applies to a market.
type MarketType string

const (
	MarketPerp MarketType = "perp"
	MarketSpot MarketType = "spot"
)

// MarketTypes lists every market type in a stable order.
var MarketTypes = []MarketType{MarketPerp, MarketSpot}

// ParseMarketType validates a market type string.
func ParseMarketType(s string) (MarketType, error) {
	switch MarketType(s) {
	case MarketPerp, MarketSpot:
		return MarketType(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrMarketNotFound, s)
}

// FeeTier is one row of a tier table.
type FeeTier struct {
	FeeRate             Rate // taker fee, basis points
	MakerRebateRate     Rate // basis points
	RefereeDiscountRate Rate // percentage
	ReferrerRewardRate  Rate // percentage
}

// FillerRewardStructure is the venue-wide reward paid to the filler out
// of the taker's fee.
type FillerRewardStructure struct {
	RewardRate Rate // percentage
}

// FeeStructure is the full tier table plus the venue-wide filler
// parameters. FlatFillerFee is in quote units (QuotePrecision per unit).
type FeeStructure struct {
	Tiers         []FeeTier
	FillerReward  FillerRewardStructure
	FlatFillerFee uint64
}

// Clone returns a copy of s that shares no memory with it.
func (s FeeStructure) Clone() FeeStructure {
	out := s
	if s.Tiers != nil {
		out.Tiers = make([]FeeTier, len(s.Tiers))
		copy(out.Tiers, s.Tiers)
	}
	return out
}
