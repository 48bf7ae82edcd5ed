package domain

import "errors"

// Sentinel errors for domain-level error handling.
// The handler layer maps these to HTTP status codes.
var (
	ErrInvalidFeeStructure  = errors.New("invalid_fee_structure")
	ErrMarketNotFound       = errors.New("market_not_found")
	ErrVersionNotFound      = errors.New("version_not_found")
	ErrProposalNotFound     = errors.New("proposal_not_found")
	ErrProposalNotPending   = errors.New("proposal_not_pending")
	ErrSubscriptionNotFound = errors.New("subscription_not_found")
)

// ValidationError represents a request validation failure.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// FeeCheck names one bound enforced on a fee structure.
type FeeCheck string

const (
	CheckFee             FeeCheck = "fee"
	CheckMakerRebate     FeeCheck = "maker_rebate"
	CheckRefereeDiscount FeeCheck = "referee_discount"
	CheckReferrerReward  FeeCheck = "referrer_reward"
	CheckFeeToMarket     FeeCheck = "fee_to_market"
	CheckFillerReward    FeeCheck = "filler_reward"
	CheckFlatFillerFee   FeeCheck = "flat_filler_fee"
)

// NoTier is the TierIndex of failures in venue-wide parameters.
const NoTier = -1

// InvalidFeeStructureError is the single failure kind produced by the
// fee structure validator. Numerator and Denominator carry the offending
// pair verbatim; for CheckFeeToMarket, Numerator is the tier's fee
// numerator and Value the derived fee-to-market; for CheckFlatFillerFee,
// Numerator is the fee amount and Denominator is zero.
type InvalidFeeStructureError struct {
	Check       FeeCheck
	TierIndex   int
	Numerator   uint64
	Denominator uint64
	Value       int64
	Message     string
}

func (e *InvalidFeeStructureError) Error() string {
	return e.Message
}

// Is makes every instance match ErrInvalidFeeStructure.
func (e *InvalidFeeStructureError) Is(target error) bool {
	return target == ErrInvalidFeeStructure
}

// HasTier reports whether the failure belongs to a specific tier.
func (e *InvalidFeeStructureError) HasTier() bool {
	return e.TierIndex != NoTier
}
