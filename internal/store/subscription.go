package store

import (
	"sync"

	"github.com/efreitasn/feeschedule/internal/domain"
)

// SubscriptionStore is a thread-safe in-memory store for subscriptions.
// Primary index: subscription_id → subscription.
// Secondary index: subscriber → event → subscription.
type SubscriptionStore struct {
	mu            sync.RWMutex
	subscriptions map[string]*domain.Subscription
	bySubscriber  map[string]map[string]*domain.Subscription
}

// NewSubscriptionStore creates an empty SubscriptionStore.
func NewSubscriptionStore() *SubscriptionStore {
	return &SubscriptionStore{
		subscriptions: make(map[string]*domain.Subscription),
		bySubscriber:  make(map[string]map[string]*domain.Subscription),
	}
}

// Upsert inserts or updates a subscription keyed by (subscriber, event).
// An existing subscription keeps its ID; only URL and UpdatedAt change,
// and only when the URL differs. Returns true if a new subscription was
// created.
func (s *SubscriptionStore) Upsert(sub *domain.Subscription) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if events, ok := s.bySubscriber[sub.Subscriber]; ok {
		if existing, ok := events[sub.Event]; ok {
			if existing.URL != sub.URL {
				existing.URL = sub.URL
				existing.UpdatedAt = sub.UpdatedAt
			}
			return false
		}
	}

	s.subscriptions[sub.SubscriptionID] = sub

	if s.bySubscriber[sub.Subscriber] == nil {
		s.bySubscriber[sub.Subscriber] = make(map[string]*domain.Subscription)
	}
	s.bySubscriber[sub.Subscriber][sub.Event] = sub

	return true
}

// Get retrieves a subscription by ID. It returns
// domain.ErrSubscriptionNotFound if it does not exist.
func (s *SubscriptionStore) Get(id string) (*domain.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sub, ok := s.subscriptions[id]
	if !ok {
		return nil, domain.ErrSubscriptionNotFound
	}
	return sub, nil
}

// GetBySubscriberEvent returns the subscription for a subscriber+event
// pair, or nil if none exists.
func (s *SubscriptionStore) GetBySubscriberEvent(subscriber, event string) *domain.Subscription {
	s.mu.RLock()
	defer s.mu.RUnlock()

	events := s.bySubscriber[subscriber]
	if events == nil {
		return nil
	}
	return events[event]
}

// ListBySubscriber returns all subscriptions of a subscriber.
func (s *SubscriptionStore) ListBySubscriber(subscriber string) []*domain.Subscription {
	s.mu.RLock()
	defer s.mu.RUnlock()

	events := s.bySubscriber[subscriber]
	if len(events) == 0 {
		return []*domain.Subscription{}
	}

	result := make([]*domain.Subscription, 0, len(events))
	for _, sub := range events {
		result = append(result, sub)
	}
	return result
}

// ListByEvent returns copies of every subscription for an event across
// subscribers, safe to read after the store changes.
func (s *SubscriptionStore) ListByEvent(event string) []*domain.Subscription {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Subscription, 0)
	for _, events := range s.bySubscriber {
		if sub, ok := events[event]; ok {
			c := *sub
			result = append(result, &c)
		}
	}
	return result
}

// Delete removes a subscription by ID from both indexes. It returns
// domain.ErrSubscriptionNotFound if it does not exist.
func (s *SubscriptionStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subscriptions[id]
	if !ok {
		return domain.ErrSubscriptionNotFound
	}

	delete(s.subscriptions, id)

	if events, ok := s.bySubscriber[sub.Subscriber]; ok {
		delete(events, sub.Event)
		if len(events) == 0 {
			delete(s.bySubscriber, sub.Subscriber)
		}
	}

	return nil
}
