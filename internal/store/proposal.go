package store

import (
	"sort"
	"sync"
	"time"

	"github.com/efreitasn/feeschedule/internal/domain"
)

// ProposalStore is a thread-safe in-memory store for proposals, with a
// primary index by proposal_id, a secondary index by market, and a queue
// of pending proposals sorted by effective time.
type ProposalStore struct {
	mu        sync.RWMutex
	proposals map[string]*domain.Proposal
	byMarket  map[domain.MarketType][]*domain.Proposal // append-only
	pending   []*domain.Proposal                       // sorted by EffectiveAt ASC
}

// NewProposalStore creates an empty ProposalStore.
func NewProposalStore() *ProposalStore {
	return &ProposalStore{
		proposals: make(map[string]*domain.Proposal),
		byMarket:  make(map[domain.MarketType][]*domain.Proposal),
		pending:   make([]*domain.Proposal, 0),
	}
}

// Create adds a proposal to the store. Pending proposals with an
// effective time are also queued for activation.
func (s *ProposalStore) Create(p *domain.Proposal) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.proposals[p.ProposalID] = p
	s.byMarket[p.Market] = append(s.byMarket[p.Market], p)

	if p.Status == domain.ProposalStatusPending && p.EffectiveAt != nil {
		s.enqueue(p)
	}
}

// enqueue inserts p into the pending queue, keeping EffectiveAt ASC order
// with ties in submission order. Caller must hold s.mu.
func (s *ProposalStore) enqueue(p *domain.Proposal) {
	effectiveAt := *p.EffectiveAt
	idx := sort.Search(len(s.pending), func(i int) bool {
		return s.pending[i].EffectiveAt.After(effectiveAt)
	})
	s.pending = append(s.pending, nil)
	copy(s.pending[idx+1:], s.pending[idx:])
	s.pending[idx] = p
}

// Dequeue removes a proposal from the pending queue. It is a no-op if
// the proposal is not queued.
func (s *ProposalStore) Dequeue(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, p := range s.pending {
		if p.ProposalID == id {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			return
		}
	}
}

// PopDue removes and returns every queued proposal whose effective time
// is not after now, earliest first.
func (s *ProposalStore) PopDue(now time.Time) []*domain.Proposal {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := 0
	for cutoff < len(s.pending) && !s.pending[cutoff].EffectiveAt.After(now) {
		cutoff++
	}
	if cutoff == 0 {
		return nil
	}

	due := make([]*domain.Proposal, cutoff)
	copy(due, s.pending[:cutoff])
	s.pending = s.pending[cutoff:]
	return due
}

// PendingCount returns the number of queued proposals.
func (s *ProposalStore) PendingCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.pending)
}

// Get retrieves a proposal by ID. It returns
// domain.ErrProposalNotFound if the proposal does not exist.
func (s *ProposalStore) Get(id string) (*domain.Proposal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.proposals[id]
	if !ok {
		return nil, domain.ErrProposalNotFound
	}
	return p, nil
}

// ListByMarket returns proposals for a market newest first. If status is
// non-nil, only proposals with that status are included. Pagination is
// 1-based. It returns the page and the total count before pagination.
func (s *ProposalStore) ListByMarket(market domain.MarketType, status *domain.ProposalStatus, page, limit int) ([]*domain.Proposal, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.byMarket[market]

	filtered := make([]*domain.Proposal, 0)
	for i := len(all) - 1; i >= 0; i-- {
		if status != nil && all[i].Status != *status {
			continue
		}
		filtered = append(filtered, all[i])
	}

	total := len(filtered)

	start := (page - 1) * limit
	if start >= total {
		return []*domain.Proposal{}, total
	}
	end := start + limit
	if end > total {
		end = total
	}

	return filtered[start:end], total
}
