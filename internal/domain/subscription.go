package domain

import "time"

// Notification event types.
const (
	EventFeeStructureActivated = "fee_structure.activated"
	EventProposalScheduled     = "proposal.scheduled"
	EventProposalCancelled     = "proposal.cancelled"
)

// Subscription represents a downstream consumer's registration for a
// fee schedule event.
type Subscription struct {
	SubscriptionID string
	Subscriber     string
	Event          string
	URL            string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
