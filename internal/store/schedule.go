package store

import (
	"sync"
	"time"

	"github.com/efreitasn/feeschedule/internal/domain"
	"github.com/google/btree"
)

func versionLess(a, b *domain.ScheduleVersion) bool {
	return a.Version < b.Version
}

// ScheduleStore is a thread-safe in-memory store of accepted fee
// structures. Each market keeps its version history in a B-tree ordered
// by version number; the highest version is the active structure.
type ScheduleStore struct {
	mu      sync.RWMutex
	markets map[domain.MarketType]*btree.BTreeG[*domain.ScheduleVersion]
}

// NewScheduleStore creates an empty ScheduleStore.
func NewScheduleStore() *ScheduleStore {
	return &ScheduleStore{
		markets: make(map[domain.MarketType]*btree.BTreeG[*domain.ScheduleVersion]),
	}
}

// Activate appends s as the next version of the market's history and
// returns a copy of the stored version. The structure is copied, so later
// changes to s are not visible in the store.
func (st *ScheduleStore) Activate(market domain.MarketType, s domain.FeeStructure, proposalID string, at time.Time) *domain.ScheduleVersion {
	st.mu.Lock()
	defer st.mu.Unlock()

	tree, ok := st.markets[market]
	if !ok {
		const degree = 8
		tree = btree.NewG[*domain.ScheduleVersion](degree, versionLess)
		st.markets[market] = tree
	}

	next := uint64(1)
	if last, ok := tree.Max(); ok {
		next = last.Version + 1
	}

	v := &domain.ScheduleVersion{
		Market:      market,
		Version:     next,
		ProposalID:  proposalID,
		Structure:   s.Clone(),
		ActivatedAt: at,
	}
	tree.ReplaceOrInsert(v)
	return v.Clone()
}

// Current returns the active version for a market. It returns
// domain.ErrMarketNotFound if nothing was ever activated for it.
func (st *ScheduleStore) Current(market domain.MarketType) (*domain.ScheduleVersion, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()

	tree, ok := st.markets[market]
	if !ok {
		return nil, domain.ErrMarketNotFound
	}
	v, ok := tree.Max()
	if !ok {
		return nil, domain.ErrMarketNotFound
	}
	return v.Clone(), nil
}

// Version returns a specific version of a market's history.
func (st *ScheduleStore) Version(market domain.MarketType, version uint64) (*domain.ScheduleVersion, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()

	tree, ok := st.markets[market]
	if !ok {
		return nil, domain.ErrMarketNotFound
	}
	v, ok := tree.Get(&domain.ScheduleVersion{Version: version})
	if !ok {
		return nil, domain.ErrVersionNotFound
	}
	return v.Clone(), nil
}

// History returns a market's versions newest first. Pagination is
// 1-based. It returns the page and the total number of versions.
func (st *ScheduleStore) History(market domain.MarketType, page, limit int) ([]*domain.ScheduleVersion, int) {
	st.mu.RLock()
	defer st.mu.RUnlock()

	tree, ok := st.markets[market]
	if !ok {
		return []*domain.ScheduleVersion{}, 0
	}

	total := tree.Len()
	start := (page - 1) * limit
	if start >= total {
		return []*domain.ScheduleVersion{}, total
	}

	result := make([]*domain.ScheduleVersion, 0, limit)
	skipped := 0
	tree.Descend(func(v *domain.ScheduleVersion) bool {
		if skipped < start {
			skipped++
			return true
		}
		result = append(result, v.Clone())
		return len(result) < limit
	})
	return result, total
}

// Markets returns the markets with at least one active version, in the
// order of domain.MarketTypes.
func (st *ScheduleStore) Markets() []domain.MarketType {
	st.mu.RLock()
	defer st.mu.RUnlock()

	result := make([]domain.MarketType, 0, len(st.markets))
	for _, m := range domain.MarketTypes {
		if tree, ok := st.markets[m]; ok && tree.Len() > 0 {
			result = append(result, m)
		}
	}
	return result
}
