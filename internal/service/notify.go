package service

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/efreitasn/feeschedule/internal/domain"
	"github.com/efreitasn/feeschedule/internal/store"
	"github.com/google/uuid"
	"github.com/sony/gobreaker"
)

// Valid notification event types.
var validEvents = map[string]bool{
	domain.EventFeeStructureActivated: true,
	domain.EventProposalScheduled:     true,
	domain.EventProposalCancelled:     true,
}

// Consecutive delivery failures to one host before its breaker opens.
const breakerFailureThreshold = 5

// UpsertSubscriptionRequest represents the input for subscription
// registration.
type UpsertSubscriptionRequest struct {
	Subscriber string
	URL        string
	Events     []string
}

// NotifyService handles subscription CRUD and event dispatch.
type NotifyService struct {
	store   *store.SubscriptionStore
	client  *http.Client
	metrics *Metrics
	logger  *slog.Logger

	breakerTimeout time.Duration

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker // by URL host

	inflight sync.WaitGroup
}

// NewNotifyService creates a new NotifyService. metrics may be nil.
func NewNotifyService(
	subscriptionStore *store.SubscriptionStore,
	notifyTimeout time.Duration,
	metrics *Metrics,
	logger *slog.Logger,
) *NotifyService {
	return &NotifyService{
		store: subscriptionStore,
		client: &http.Client{
			Timeout: notifyTimeout,
		},
		metrics:        metrics,
		logger:         logger,
		breakerTimeout: 30 * time.Second,
		breakers:       make(map[string]*gobreaker.CircuitBreaker),
	}
}

// Upsert validates the request and creates or updates subscriptions.
// Returns the resulting subscriptions, whether any were created, and any
// error.
func (s *NotifyService) Upsert(req UpsertSubscriptionRequest) ([]*domain.Subscription, bool, error) {
	if strings.TrimSpace(req.Subscriber) == "" {
		return nil, false, &domain.ValidationError{Message: "subscriber is required"}
	}
	if len(req.Subscriber) > 128 {
		return nil, false, &domain.ValidationError{Message: "subscriber must be at most 128 characters"}
	}

	if req.URL == "" {
		return nil, false, &domain.ValidationError{Message: "url is required"}
	}
	if len(req.URL) > 2048 {
		return nil, false, &domain.ValidationError{Message: "url must be at most 2048 characters"}
	}
	parsed, err := url.ParseRequestURI(req.URL)
	if err != nil || !parsed.IsAbs() {
		return nil, false, &domain.ValidationError{Message: "url must be a valid absolute URL"}
	}
	if parsed.Scheme != "https" {
		return nil, false, &domain.ValidationError{Message: "url must use https scheme"}
	}

	if len(req.Events) == 0 {
		return nil, false, &domain.ValidationError{Message: "events must be a non-empty array"}
	}

	seen := make(map[string]bool, len(req.Events))
	deduped := make([]string, 0, len(req.Events))
	for _, event := range req.Events {
		if !validEvents[event] {
			return nil, false, &domain.ValidationError{
				Message: "Unknown event type: " + event + ". Must be one of: fee_structure.activated, proposal.scheduled, proposal.cancelled",
			}
		}
		if !seen[event] {
			seen[event] = true
			deduped = append(deduped, event)
		}
	}

	now := time.Now().UTC().Truncate(time.Second)
	anyCreated := false
	subs := make([]*domain.Subscription, 0, len(deduped))

	for _, event := range deduped {
		sub := &domain.Subscription{
			SubscriptionID: uuid.New().String(),
			Subscriber:     req.Subscriber,
			Event:          event,
			URL:            req.URL,
			CreatedAt:      now,
			UpdatedAt:      now,
		}

		if s.store.Upsert(sub) {
			anyCreated = true
			subs = append(subs, sub)
			continue
		}
		if existing := s.store.GetBySubscriberEvent(req.Subscriber, event); existing != nil {
			subs = append(subs, existing)
		}
	}

	return subs, anyCreated, nil
}

// List returns all subscriptions of a subscriber.
func (s *NotifyService) List(subscriber string) ([]*domain.Subscription, error) {
	if strings.TrimSpace(subscriber) == "" {
		return nil, &domain.ValidationError{Message: "subscriber query parameter is required"}
	}
	return s.store.ListBySubscriber(subscriber), nil
}

// Delete removes a subscription by ID.
func (s *NotifyService) Delete(id string) error {
	return s.store.Delete(id)
}

// eventPayload is the JSON body of every notification.
type eventPayload struct {
	Event     string    `json:"event"`
	Timestamp string    `json:"timestamp"`
	Data      eventData `json:"data"`
}

type eventData struct {
	ProposalID  string  `json:"proposal_id"`
	Market      string  `json:"market"`
	Status      string  `json:"status"`
	Version     uint64  `json:"version,omitempty"`
	EffectiveAt *string `json:"effective_at,omitempty"`
	TierCount   int     `json:"tier_count"`
}

// DispatchActivated notifies fee_structure.activated subscribers.
// Fire-and-forget.
func (s *NotifyService) DispatchActivated(p *domain.Proposal, v *domain.ScheduleVersion) {
	payload := buildEventPayload(domain.EventFeeStructureActivated, p, v.ActivatedAt)
	payload.Data.Version = v.Version
	s.dispatch(domain.EventFeeStructureActivated, payload)
}

// DispatchScheduled notifies proposal.scheduled subscribers.
// Fire-and-forget.
func (s *NotifyService) DispatchScheduled(p *domain.Proposal) {
	s.dispatch(domain.EventProposalScheduled, buildEventPayload(domain.EventProposalScheduled, p, p.SubmittedAt))
}

// DispatchCancelled notifies proposal.cancelled subscribers.
// Fire-and-forget.
func (s *NotifyService) DispatchCancelled(p *domain.Proposal) {
	at := time.Now()
	if p.CancelledAt != nil {
		at = *p.CancelledAt
	}
	s.dispatch(domain.EventProposalCancelled, buildEventPayload(domain.EventProposalCancelled, p, at))
}

// Wait blocks until all in-flight deliveries have finished.
func (s *NotifyService) Wait() {
	s.inflight.Wait()
}

func buildEventPayload(event string, p *domain.Proposal, at time.Time) eventPayload {
	payload := eventPayload{
		Event:     event,
		Timestamp: at.UTC().Truncate(time.Second).Format(time.RFC3339),
		Data: eventData{
			ProposalID: p.ProposalID,
			Market:     string(p.Market),
			Status:     string(p.Status),
			TierCount:  len(p.Structure.Tiers),
		},
	}
	if p.EffectiveAt != nil {
		effectiveAt := p.EffectiveAt.UTC().Format(time.RFC3339)
		payload.Data.EffectiveAt = &effectiveAt
	}
	return payload
}

func (s *NotifyService) dispatch(event string, payload eventPayload) {
	for _, sub := range s.store.ListByEvent(event) {
		s.inflight.Add(1)
		go func(sub *domain.Subscription) {
			defer s.inflight.Done()
			s.deliver(sub, payload)
		}(sub)
	}
}

// breakerFor returns the circuit breaker guarding deliveries to rawURL's
// host.
func (s *NotifyService) breakerFor(rawURL string) *gobreaker.CircuitBreaker {
	host := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		host = u.Host
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.breakers == nil {
		s.breakers = make(map[string]*gobreaker.CircuitBreaker)
	}
	if cb, ok := s.breakers[host]; ok {
		return cb
	}

	timeout := s.breakerTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        host,
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerFailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if s.logger != nil {
				s.logger.Warn("notification breaker state changed",
					slog.String("host", name),
					slog.String("from", from.String()),
					slog.String("to", to.String()),
				)
			}
		},
	})
	s.breakers[host] = cb
	return cb
}

// deliver POSTs the payload with the delivery headers. Failures are logged
// and counted, never retried.
func (s *NotifyService) deliver(sub *domain.Subscription, payload eventPayload) {
	body, err := json.Marshal(payload)
	if err != nil {
		return
	}

	_, err = s.breakerFor(sub.URL).Execute(func() (interface{}, error) {
		req, err := http.NewRequest(http.MethodPost, sub.URL, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Delivery-Id", uuid.New().String())
		req.Header.Set("X-Subscription-Id", sub.SubscriptionID)
		req.Header.Set("X-Event-Type", payload.Event)

		resp, err := s.client.Do(req)
		if err != nil {
			return nil, err
		}
		resp.Body.Close()
		if resp.StatusCode >= http.StatusInternalServerError {
			return nil, fmt.Errorf("subscriber responded %d", resp.StatusCode)
		}
		return nil, nil
	})

	outcome := "delivered"
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		outcome = "skipped"
	case err != nil:
		outcome = "failed"
	}
	if s.metrics != nil {
		s.metrics.Deliveries.WithLabelValues(payload.Event, outcome).Inc()
	}
	if err != nil && s.logger != nil {
		s.logger.Warn("notification delivery failed",
			slog.String("subscription_id", sub.SubscriptionID),
			slog.String("event", payload.Event),
			slog.String("outcome", outcome),
			slog.String("error", err.Error()),
		)
	}
}
