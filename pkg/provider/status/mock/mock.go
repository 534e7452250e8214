// Package mock provides an in-memory mock implementation of the
// [status.Subscriber] and [status.Subscription] interfaces for use in unit
// tests.
//
// Tests push updates with [Subscription.Push] to simulate backend status
// transitions.
package mock

import (
	"context"
	"sync"

	"github.com/solinvox/medscribe/pkg/provider/status"
	"github.com/solinvox/medscribe/pkg/types"
)

// Subscriber is a mock implementation of [status.Subscriber].
type Subscriber struct {
	mu sync.Mutex

	// SubscribeResult is returned by Subscribe. When nil and SubscribeError
	// is nil, a fresh [Subscription] is created per call.
	SubscribeResult *Subscription

	// SubscribeError is returned by Subscribe.
	SubscribeError error

	// SubscribeCalls records the consultation IDs passed to Subscribe.
	SubscribeCalls []string

	// created holds subscriptions handed out when SubscribeResult is nil.
	created []*Subscription
}

// Subscribe implements [status.Subscriber].
func (s *Subscriber) Subscribe(_ context.Context, consultationID string) (status.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SubscribeCalls = append(s.SubscribeCalls, consultationID)
	if s.SubscribeError != nil {
		return nil, s.SubscribeError
	}
	if s.SubscribeResult != nil {
		return s.SubscribeResult, nil
	}
	sub := NewSubscription()
	s.created = append(s.created, sub)
	return sub, nil
}

// Last returns the most recently created subscription, or nil when
// SubscribeResult was set or Subscribe has not been called.
func (s *Subscriber) Last() *Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.created) == 0 {
		return nil
	}
	return s.created[len(s.created)-1]
}

// Subscription is a mock implementation of [status.Subscription].
type Subscription struct {
	mu sync.Mutex

	updates chan types.StatusUpdate
	closed  bool

	// CallCountClose records how many times Close was called.
	CallCountClose int
}

// NewSubscription creates a mock subscription with a buffered update channel.
func NewSubscription() *Subscription {
	return &Subscription{updates: make(chan types.StatusUpdate, 8)}
}

// Updates implements [status.Subscription].
func (s *Subscription) Updates() <-chan types.StatusUpdate { return s.updates }

// Close implements [status.Subscription].
func (s *Subscription) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountClose++
	if !s.closed {
		s.closed = true
		close(s.updates)
	}
	return nil
}

// Push delivers an update to the subscriber. Pushing a terminal update also
// closes the channel, mirroring the real feed's behaviour.
func (s *Subscription) Push(u types.StatusUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.updates <- u
	if u.Status.Terminal() {
		s.closed = true
		close(s.updates)
	}
}
