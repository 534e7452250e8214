// Package status defines the subscription interface for the transcription
// status feed.
//
// After a residual final chunk is dispatched for asynchronous processing,
// the consultation's transcription status is pushed by the backend:
// "completed" carries the finalized diarized transcript, "failed" carries an
// error detail. Consumers subscribe per consultation ID and must close the
// subscription on teardown.
//
// Implementations must be safe for concurrent use.
package status

import (
	"context"

	"github.com/solinvox/medscribe/pkg/types"
)

// Subscriber opens per-consultation subscriptions on the status feed.
type Subscriber interface {
	// Subscribe registers interest in the given consultation and returns a
	// live [Subscription]. The subscription delivers every status transition
	// until a terminal state arrives or the subscription is closed.
	Subscribe(ctx context.Context, consultationID string) (Subscription, error)
}

// Subscription is a live status subscription for one consultation.
type Subscription interface {
	// Updates returns the channel of status transitions. The channel is
	// closed after a terminal update has been delivered, or when the
	// subscription is closed.
	Updates() <-chan types.StatusUpdate

	// Close tears the subscription down. Safe to call more than once.
	Close() error
}
