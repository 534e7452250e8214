// Package ws provides a WebSocket-backed status feed subscriber. It
// implements the status.Subscriber interface against the backend's push
// endpoint:
//
//	GET {base}/v1/consultations/status?consultation_id=… (upgraded to ws)
//
// Each subscription holds one WebSocket connection; the backend pushes a
// JSON status document on every transition of the consultation's
// transcription status.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"github.com/coder/websocket"

	"github.com/solinvox/medscribe/pkg/provider/status"
	"github.com/solinvox/medscribe/pkg/types"
)

const statusPath = "/v1/consultations/status"

// Option is a functional option for configuring the Subscriber.
type Option func(*Subscriber)

// WithAPIKey sets the bearer token sent when dialing the feed.
func WithAPIKey(key string) Option {
	return func(s *Subscriber) {
		s.apiKey = key
	}
}

// Subscriber implements status.Subscriber over WebSocket.
type Subscriber struct {
	baseURL string
	apiKey  string
}

// New creates a Subscriber for the feed at baseURL (ws:// or wss://).
func New(baseURL string, opts ...Option) (*Subscriber, error) {
	if baseURL == "" {
		return nil, errors.New("status: baseURL must not be empty")
	}
	s := &Subscriber{baseURL: baseURL}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Subscribe implements [status.Subscriber]. It dials the feed and starts a
// read loop delivering parsed updates until a terminal status arrives, the
// connection drops, or the subscription is closed.
func (s *Subscriber) Subscribe(ctx context.Context, consultationID string) (status.Subscription, error) {
	if consultationID == "" {
		return nil, errors.New("status: consultationID must not be empty")
	}

	u, err := url.Parse(s.baseURL + statusPath)
	if err != nil {
		return nil, fmt.Errorf("status: parse feed URL: %w", err)
	}
	q := u.Query()
	q.Set("consultation_id", consultationID)
	u.RawQuery = q.Encode()

	headers := http.Header{}
	if s.apiKey != "" {
		headers.Set("Authorization", "Bearer "+s.apiKey)
	}

	conn, _, err := websocket.Dial(ctx, u.String(), &websocket.DialOptions{
		HTTPHeader: headers,
	})
	if err != nil {
		return nil, fmt.Errorf("status: dial: %w", err)
	}

	sub := &subscription{
		conn:    conn,
		updates: make(chan types.StatusUpdate, 8),
		done:    make(chan struct{}),
	}
	sub.wg.Add(1)
	go sub.readLoop(ctx, consultationID)

	return sub, nil
}

// subscription is a live feed subscription. It implements status.Subscription.
type subscription struct {
	conn    *websocket.Conn
	updates chan types.StatusUpdate

	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

// Updates implements [status.Subscription].
func (s *subscription) Updates() <-chan types.StatusUpdate { return s.updates }

// Close implements [status.Subscription].
func (s *subscription) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.conn.Close(websocket.StatusNormalClosure, "subscription closed")
		s.wg.Wait()
	})
	return nil
}

// readLoop receives JSON messages from the feed and dispatches parsed
// updates. It exits after delivering a terminal update, on read error, or
// when the subscription is closed.
func (s *subscription) readLoop(ctx context.Context, consultationID string) {
	defer s.wg.Done()
	defer close(s.updates)

	for {
		_, msg, err := s.conn.Read(ctx)
		if err != nil {
			// Normal close or context cancellation — exit gracefully.
			return
		}

		u, ok := parseUpdate(msg, consultationID)
		if !ok {
			continue
		}

		select {
		case s.updates <- u:
		case <-s.done:
			return
		}

		if u.Status.Terminal() {
			return
		}
	}
}

// parseUpdate parses a raw feed message into a StatusUpdate. Returns
// (update, true) on success, or (zero, false) if the message should be
// ignored — unknown status values and updates for other consultations are
// dropped.
func parseUpdate(data []byte, consultationID string) (types.StatusUpdate, bool) {
	var u types.StatusUpdate
	if err := json.Unmarshal(data, &u); err != nil {
		return types.StatusUpdate{}, false
	}
	if !u.Status.IsValid() {
		return types.StatusUpdate{}, false
	}
	if u.ConsultationID != "" && u.ConsultationID != consultationID {
		return types.StatusUpdate{}, false
	}
	if u.ConsultationID == "" {
		u.ConsultationID = consultationID
	}
	return u, true
}
