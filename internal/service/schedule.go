package service

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/efreitasn/feeschedule/internal/domain"
	"github.com/efreitasn/feeschedule/internal/store"
	"github.com/efreitasn/feeschedule/internal/validation"
	"github.com/google/uuid"
)

// ValidProposalStatuses lists all proposal status values accepted as a
// listing filter.
var ValidProposalStatuses = map[domain.ProposalStatus]bool{
	domain.ProposalStatusPending:    true,
	domain.ProposalStatusActive:     true,
	domain.ProposalStatusSuperseded: true,
	domain.ProposalStatusCancelled:  true,
}

// Notifier receives proposal lifecycle events. Calls happen outside the
// service lock.
type Notifier interface {
	DispatchActivated(p *domain.Proposal, v *domain.ScheduleVersion)
	DispatchScheduled(p *domain.Proposal)
	DispatchCancelled(p *domain.Proposal)
}

// ProposeRequest represents the input for a fee structure proposal.
type ProposeRequest struct {
	Market      string
	Structure   domain.FeeStructure
	EffectiveAt *time.Time // nil activates immediately
}

// ScheduleService validates fee structures and manages their activation
// per market.
type ScheduleService struct {
	mu        sync.Mutex // serializes proposal lifecycle transitions
	schedules *store.ScheduleStore
	proposals *store.ProposalStore
	notifier  Notifier
	metrics   *Metrics
	logger    *slog.Logger
	now       func() time.Time
}

// NewScheduleService creates a new ScheduleService. notifier and metrics
// may be nil.
func NewScheduleService(
	schedules *store.ScheduleStore,
	proposals *store.ProposalStore,
	notifier Notifier,
	metrics *Metrics,
	logger *slog.Logger,
) *ScheduleService {
	return &ScheduleService{
		schedules: schedules,
		proposals: proposals,
		notifier:  notifier,
		metrics:   metrics,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Validate runs the fee structure validator without storing anything.
func (s *ScheduleService) Validate(fs domain.FeeStructure) error {
	err := validation.ValidateStructure(fs)
	s.observeValidation(err)
	return err
}

func (s *ScheduleService) observeValidation(err error) {
	if err == nil {
		if s.metrics != nil {
			s.metrics.Validations.WithLabelValues("valid", "none").Inc()
		}
		return
	}

	var feeErr *domain.InvalidFeeStructureError
	if !errors.As(err, &feeErr) {
		return
	}
	if s.metrics != nil {
		s.metrics.Validations.WithLabelValues("invalid", string(feeErr.Check)).Inc()
	}
	attrs := []any{
		slog.String("check", string(feeErr.Check)),
		slog.Uint64("numerator", feeErr.Numerator),
		slog.Uint64("denominator", feeErr.Denominator),
	}
	if feeErr.HasTier() {
		attrs = append(attrs, slog.Int("tier", feeErr.TierIndex))
	}
	s.logger.Debug("fee structure rejected", attrs...)
}

// Propose validates the structure and either activates it at once or
// queues it until its effective time. Invalid structures are never stored.
func (s *ScheduleService) Propose(req ProposeRequest) (*domain.Proposal, error) {
	market, err := domain.ParseMarketType(req.Market)
	if err != nil {
		return nil, err
	}
	if err := s.Validate(req.Structure); err != nil {
		s.logger.Warn("fee structure proposal rejected",
			slog.String("market", string(market)),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	now := s.now()
	p := &domain.Proposal{
		ProposalID:  uuid.New().String(),
		Market:      market,
		Structure:   req.Structure.Clone(),
		EffectiveAt: req.EffectiveAt,
		Status:      domain.ProposalStatusPending,
		SubmittedAt: now,
	}

	s.mu.Lock()
	if req.EffectiveAt == nil || !req.EffectiveAt.After(now) {
		v := s.activateLocked(p, now)
		s.proposals.Create(p)
		result := snapshot(p)
		s.mu.Unlock()

		if s.notifier != nil {
			s.notifier.DispatchActivated(result, v)
		}
		return result, nil
	}

	s.proposals.Create(p)
	result := snapshot(p)
	s.mu.Unlock()

	s.updatePendingGauge()
	s.logger.Info("fee structure scheduled",
		slog.String("market", string(market)),
		slog.String("proposal_id", p.ProposalID),
		slog.Time("effective_at", *req.EffectiveAt),
	)
	if s.notifier != nil {
		s.notifier.DispatchScheduled(result)
	}
	return result, nil
}

// Seed proposes each structure for immediate activation, in the order of
// domain.MarketTypes. It stops at the first invalid structure.
func (s *ScheduleService) Seed(structures map[domain.MarketType]domain.FeeStructure) error {
	for _, market := range domain.MarketTypes {
		fs, ok := structures[market]
		if !ok {
			continue
		}
		if _, err := s.Propose(ProposeRequest{Market: string(market), Structure: fs}); err != nil {
			return fmt.Errorf("seed %s: %w", market, err)
		}
	}
	return nil
}

// ActivateScheduled puts a queued proposal into effect. It is a no-op if
// the proposal is no longer pending.
func (s *ScheduleService) ActivateScheduled(p *domain.Proposal, now time.Time) {
	s.mu.Lock()
	if p.Status != domain.ProposalStatusPending {
		s.mu.Unlock()
		return
	}
	v := s.activateLocked(p, now)
	result := snapshot(p)
	s.mu.Unlock()

	s.updatePendingGauge()
	if s.notifier != nil {
		s.notifier.DispatchActivated(result, v)
	}
}

// activateLocked appends p's structure to the market history and marks the
// previously active proposal superseded. Caller must hold s.mu.
func (s *ScheduleService) activateLocked(p *domain.Proposal, now time.Time) *domain.ScheduleVersion {
	if cur, err := s.schedules.Current(p.Market); err == nil {
		if prev, err := s.proposals.Get(cur.ProposalID); err == nil && prev.Status == domain.ProposalStatusActive {
			prev.Status = domain.ProposalStatusSuperseded
		}
	}

	v := s.schedules.Activate(p.Market, p.Structure, p.ProposalID, now)
	activatedAt := now
	p.Status = domain.ProposalStatusActive
	p.Version = v.Version
	p.ActivatedAt = &activatedAt

	if s.metrics != nil {
		s.metrics.Activations.WithLabelValues(string(p.Market)).Inc()
	}
	s.logger.Info("fee structure activated",
		slog.String("market", string(p.Market)),
		slog.String("proposal_id", p.ProposalID),
		slog.Uint64("version", v.Version),
		slog.Int("tiers", len(p.Structure.Tiers)),
	)
	return v
}

// Cancel cancels a pending proposal. It returns
// domain.ErrProposalNotPending if the proposal already took effect or was
// cancelled.
func (s *ScheduleService) Cancel(id string) (*domain.Proposal, error) {
	s.mu.Lock()
	p, err := s.proposals.Get(id)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if p.Status != domain.ProposalStatusPending {
		s.mu.Unlock()
		return nil, domain.ErrProposalNotPending
	}

	cancelledAt := s.now()
	p.Status = domain.ProposalStatusCancelled
	p.CancelledAt = &cancelledAt
	s.proposals.Dequeue(id)
	result := snapshot(p)
	s.mu.Unlock()

	s.updatePendingGauge()
	s.logger.Info("fee structure proposal cancelled",
		slog.String("market", string(p.Market)),
		slog.String("proposal_id", id),
	)
	if s.notifier != nil {
		s.notifier.DispatchCancelled(result)
	}
	return result, nil
}

// GetProposal returns a snapshot of a proposal.
func (s *ScheduleService) GetProposal(id string) (*domain.Proposal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.proposals.Get(id)
	if err != nil {
		return nil, err
	}
	return snapshot(p), nil
}

// ListProposals returns snapshots of a market's proposals, newest first,
// optionally filtered by status.
func (s *ScheduleService) ListProposals(market string, status *domain.ProposalStatus, page, limit int) ([]*domain.Proposal, int, error) {
	m, err := domain.ParseMarketType(market)
	if err != nil {
		return nil, 0, err
	}
	if err := validatePage(page, limit); err != nil {
		return nil, 0, err
	}
	if status != nil && !ValidProposalStatuses[*status] {
		return nil, 0, &domain.ValidationError{
			Message: fmt.Sprintf("Unknown status: %s. Must be one of: pending, active, superseded, cancelled", *status),
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	proposals, total := s.proposals.ListByMarket(m, status, page, limit)
	result := make([]*domain.Proposal, len(proposals))
	for i, p := range proposals {
		result[i] = snapshot(p)
	}
	return result, total, nil
}

// Current returns the active fee structure of a market.
func (s *ScheduleService) Current(market string) (*domain.ScheduleVersion, error) {
	m, err := domain.ParseMarketType(market)
	if err != nil {
		return nil, err
	}
	return s.schedules.Current(m)
}

// Version returns one version of a market's fee structure history.
func (s *ScheduleService) Version(market string, version uint64) (*domain.ScheduleVersion, error) {
	m, err := domain.ParseMarketType(market)
	if err != nil {
		return nil, err
	}
	return s.schedules.Version(m, version)
}

// History returns a page of a market's fee structure versions, newest
// first, and the total number of versions.
func (s *ScheduleService) History(market string, page, limit int) ([]*domain.ScheduleVersion, int, error) {
	m, err := domain.ParseMarketType(market)
	if err != nil {
		return nil, 0, err
	}
	if err := validatePage(page, limit); err != nil {
		return nil, 0, err
	}
	versions, total := s.schedules.History(m, page, limit)
	return versions, total, nil
}

func validatePage(page, limit int) error {
	if page < 1 {
		return &domain.ValidationError{Message: "page must be >= 1"}
	}
	if limit < 1 || limit > 100 {
		return &domain.ValidationError{Message: "limit must be between 1 and 100"}
	}
	return nil
}

func (s *ScheduleService) updatePendingGauge() {
	if s.metrics != nil {
		s.metrics.PendingProposals.Set(float64(s.proposals.PendingCount()))
	}
}

func snapshot(p *domain.Proposal) *domain.Proposal {
	c := *p
	c.Structure = p.Structure.Clone()
	return &c
}
