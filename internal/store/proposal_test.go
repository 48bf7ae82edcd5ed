package store

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/efreitasn/feeschedule/internal/domain"
)

func newTestProposal(id string, market domain.MarketType, effectiveAt *time.Time) *domain.Proposal {
	return &domain.Proposal{
		ProposalID:  id,
		Market:      market,
		Structure:   domain.PerpsDefault(),
		EffectiveAt: effectiveAt,
		Status:      domain.ProposalStatusPending,
		SubmittedAt: time.Now(),
	}
}

func at(base time.Time, d time.Duration) *time.Time {
	t := base.Add(d)
	return &t
}

func TestProposalStore_Create_and_Get(t *testing.T) {
	s := NewProposalStore()
	s.Create(newTestProposal("p-1", domain.MarketPerp, nil))

	got, err := s.Get("p-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Market != domain.MarketPerp {
		t.Errorf("Market = %q", got.Market)
	}
	if s.PendingCount() != 0 {
		t.Error("proposal without effective time should not be queued")
	}
}

func TestProposalStore_Get_NotFound(t *testing.T) {
	s := NewProposalStore()
	if _, err := s.Get("missing"); err != domain.ErrProposalNotFound {
		t.Fatalf("expected ErrProposalNotFound, got %v", err)
	}
}

func TestProposalStore_PopDue_EffectiveOrder(t *testing.T) {
	s := NewProposalStore()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	s.Create(newTestProposal("p3", domain.MarketPerp, at(base, 3*time.Second)))
	s.Create(newTestProposal("p1", domain.MarketSpot, at(base, 1*time.Second)))
	s.Create(newTestProposal("p2", domain.MarketPerp, at(base, 2*time.Second)))
	s.Create(newTestProposal("p2b", domain.MarketPerp, at(base, 2*time.Second)))

	if s.PendingCount() != 4 {
		t.Fatalf("PendingCount = %d, want 4", s.PendingCount())
	}

	if due := s.PopDue(base); len(due) != 0 {
		t.Fatalf("expected nothing due at base, got %d", len(due))
	}

	due := s.PopDue(base.Add(2 * time.Second))
	ids := make([]string, len(due))
	for i, p := range due {
		ids[i] = p.ProposalID
	}
	want := []string{"p1", "p2", "p2b"}
	if fmt.Sprint(ids) != fmt.Sprint(want) {
		t.Fatalf("due = %v, want %v", ids, want)
	}
	if s.PendingCount() != 1 {
		t.Errorf("PendingCount = %d, want 1", s.PendingCount())
	}
}

func TestProposalStore_Dequeue(t *testing.T) {
	s := NewProposalStore()
	base := time.Now()
	s.Create(newTestProposal("p1", domain.MarketPerp, at(base, time.Second)))
	s.Create(newTestProposal("p2", domain.MarketPerp, at(base, 2*time.Second)))

	s.Dequeue("p1")
	s.Dequeue("unknown")

	due := s.PopDue(base.Add(time.Hour))
	if len(due) != 1 || due[0].ProposalID != "p2" {
		t.Fatalf("expected only p2 due, got %v", due)
	}
}

func TestProposalStore_ListByMarket(t *testing.T) {
	s := NewProposalStore()
	for i := 0; i < 5; i++ {
		p := newTestProposal(fmt.Sprintf("perp-%d", i), domain.MarketPerp, nil)
		if i%2 == 0 {
			p.Status = domain.ProposalStatusActive
		}
		s.Create(p)
	}
	s.Create(newTestProposal("spot-0", domain.MarketSpot, nil))

	all, total := s.ListByMarket(domain.MarketPerp, nil, 1, 10)
	if total != 5 || len(all) != 5 {
		t.Fatalf("total = %d, len = %d, want 5", total, len(all))
	}
	if all[0].ProposalID != "perp-4" {
		t.Errorf("first = %q, want newest perp-4", all[0].ProposalID)
	}

	active := domain.ProposalStatusActive
	filtered, total := s.ListByMarket(domain.MarketPerp, &active, 1, 10)
	if total != 3 || len(filtered) != 3 {
		t.Errorf("active total = %d, len = %d, want 3", total, len(filtered))
	}

	page2, total := s.ListByMarket(domain.MarketPerp, nil, 2, 2)
	if total != 5 || len(page2) != 2 || page2[0].ProposalID != "perp-2" {
		t.Errorf("page 2 = %v (total %d)", page2, total)
	}

	beyond, _ := s.ListByMarket(domain.MarketPerp, nil, 4, 2)
	if len(beyond) != 0 {
		t.Errorf("expected empty page, got %d", len(beyond))
	}
}

func TestProposalStore_ConcurrentAccess(t *testing.T) {
	s := NewProposalStore()
	base := time.Now()
	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			s.Create(newTestProposal(fmt.Sprintf("p-%d", i), domain.MarketPerp, at(base, time.Duration(i)*time.Millisecond)))
		}(i)
		go func() {
			defer wg.Done()
			s.PopDue(base.Add(50 * time.Millisecond))
		}()
	}
	wg.Wait()

	remaining := s.PopDue(base.Add(time.Hour))
	for i := 1; i < len(remaining); i++ {
		if remaining[i].EffectiveAt.Before(*remaining[i-1].EffectiveAt) {
			t.Fatal("pending queue out of order")
		}
	}
}
