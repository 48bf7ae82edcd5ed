package domain

import "time"

// ProposalStatus represents the lifecycle state of a fee structure proposal.
type ProposalStatus string

const (
	ProposalStatusPending    ProposalStatus = "pending"
	ProposalStatusActive     ProposalStatus = "active"
	ProposalStatusSuperseded ProposalStatus = "superseded"
	ProposalStatusCancelled  ProposalStatus = "cancelled"
)

// Proposal is a validated fee structure submitted for a market. It takes
// effect immediately or at EffectiveAt, whichever is later.
type Proposal struct {
	ProposalID  string
	Market      MarketType
	Structure   FeeStructure
	EffectiveAt *time.Time // nil activates on submission
	Status      ProposalStatus
	Version     uint64 // schedule version, set on activation
	SubmittedAt time.Time
	ActivatedAt *time.Time
	CancelledAt *time.Time
}

// ScheduleVersion is one accepted fee structure in a market's history.
// Versions are numbered from 1 and never modified after insertion.
type ScheduleVersion struct {
	Market      MarketType
	Version     uint64
	ProposalID  string
	Structure   FeeStructure
	ActivatedAt time.Time
}

// Clone returns a deep copy of v.
func (v *ScheduleVersion) Clone() *ScheduleVersion {
	out := *v
	out.Structure = v.Structure.Clone()
	return &out
}
