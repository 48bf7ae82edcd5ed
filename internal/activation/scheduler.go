package activation

import (
	"context"
	"time"

	"github.com/efreitasn/feeschedule/internal/domain"
	"github.com/efreitasn/feeschedule/internal/store"
)

// Activator puts a due proposal into effect. Implementations must
// re-check the proposal's status, since it may have been cancelled after
// it was dequeued.
type Activator interface {
	ActivateScheduled(p *domain.Proposal, now time.Time)
}

// Scheduler periodically activates pending proposals whose effective
// time has passed.
type Scheduler struct {
	interval  time.Duration
	proposals *store.ProposalStore
	activator Activator
}

// NewScheduler creates a Scheduler with the given dependencies.
func NewScheduler(interval time.Duration, proposals *store.ProposalStore, activator Activator) *Scheduler {
	return &Scheduler{
		interval:  interval,
		proposals: proposals,
		activator: activator,
	}
}

// Start launches a background goroutine that ticks at the configured
// interval. It stops when ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case t := <-ticker.C:
				s.Tick(t.UTC())
			}
		}
	}()
}

// Tick activates every queued proposal with effective_at <= now, in
// effective-time order. It returns the number of proposals handed to the
// activator.
func (s *Scheduler) Tick(now time.Time) int {
	due := s.proposals.PopDue(now)
	for _, p := range due {
		s.activator.ActivateScheduled(p, now)
	}
	return len(due)
}
