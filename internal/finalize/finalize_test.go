package finalize

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/solinvox/medscribe/internal/pipeline"
	diarizemock "github.com/solinvox/medscribe/pkg/provider/diarize/mock"
	statusmock "github.com/solinvox/medscribe/pkg/provider/status/mock"
	storemock "github.com/solinvox/medscribe/pkg/store/mock"
	"github.com/solinvox/medscribe/pkg/types"
)

func testRequest(residual *pipeline.Chunk) Request {
	return Request{
		ConsultationID:     "c-1",
		Language:           "en",
		RealtimeTranscript: "clinician: How are you?\npatient: Fine.",
		Residual:           residual,
	}
}

func testResidual() *pipeline.Chunk {
	return &pipeline.Chunk{Index: 2, StartTime: 115, EndTime: 143, Audio: []byte("pcm")}
}

func TestFinalize_NoResidualCompletesImmediately(t *testing.T) {
	st := storemock.New()
	provider := &diarizemock.Provider{}
	feed := &statusmock.Subscriber{}
	f := New(st, provider, feed)

	z, err := f.Finalize(context.Background(), testRequest(nil))
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if z.State() != StateCompleted {
		t.Errorf("state = %s, want completed", z.State())
	}

	if len(provider.FinalCalls) != 0 {
		t.Errorf("SubmitFinalChunk called %d times, want 0", len(provider.FinalCalls))
	}
	if len(feed.SubscribeCalls) != 0 {
		t.Errorf("Subscribe called %d times, want 0", len(feed.SubscribeCalls))
	}

	rec, err := st.Get(context.Background(), "c-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.Status != types.StatusCompleted {
		t.Errorf("stored status = %s, want completed", rec.Status)
	}
	if rec.TranscriptText == "" {
		t.Error("real-time transcript not persisted")
	}
}

func TestFinalize_ResidualCompletedByBackend(t *testing.T) {
	st := storemock.New()
	provider := &diarizemock.Provider{}
	feed := &statusmock.Subscriber{}
	f := New(st, provider, feed)

	done := make(chan *Finalization, 1)
	go func() {
		z, err := f.Finalize(context.Background(), testRequest(testResidual()))
		if err != nil {
			t.Errorf("Finalize: %v", err)
		}
		done <- z
	}()

	// Wait for the subscription, then walk the backend through its states.
	sub := waitForSubscription(t, feed)
	sub.Push(types.StatusUpdate{ConsultationID: "c-1", Status: types.StatusProcessing})
	sub.Push(types.StatusUpdate{
		ConsultationID: "c-1",
		Status:         types.StatusCompleted,
		Text:           "clinician: How are you?\npatient: Fine, and one more thing.",
	})

	z := <-done
	if z.State() != StateCompleted {
		t.Fatalf("state = %s, want completed", z.State())
	}

	// The submitted final chunk carried the residual coordinates.
	if len(provider.FinalCalls) != 1 {
		t.Fatalf("SubmitFinalChunk called %d times, want 1", len(provider.FinalCalls))
	}
	req := provider.FinalCalls[0]
	if req.ChunkIndex != 2 || req.ChunkStart != 115 || req.ChunkEnd != 143 {
		t.Errorf("final chunk = %+v", req)
	}

	// The finalized transcript replaced the real-time one.
	rec, _ := st.Get(context.Background(), "c-1")
	if rec.Status != types.StatusCompleted {
		t.Errorf("stored status = %s, want completed", rec.Status)
	}
	if rec.TranscriptText != "clinician: How are you?\npatient: Fine, and one more thing." {
		t.Errorf("stored transcript = %q", rec.TranscriptText)
	}
}

func TestFinalize_BackendFailureKeepsRealtimeTranscript(t *testing.T) {
	st := storemock.New()
	provider := &diarizemock.Provider{}
	feed := &statusmock.Subscriber{}
	f := New(st, provider, feed)

	done := make(chan *Finalization, 1)
	go func() {
		z, err := f.Finalize(context.Background(), testRequest(testResidual()))
		if err != nil {
			t.Errorf("Finalize: %v", err)
		}
		done <- z
	}()

	sub := waitForSubscription(t, feed)
	sub.Push(types.StatusUpdate{
		ConsultationID: "c-1",
		Status:         types.StatusFailed,
		ErrorDetail:    "diarization worker crashed",
	})

	z := <-done
	if z.State() != StateFailed {
		t.Fatalf("state = %s, want failed", z.State())
	}
	if z.Detail() != "diarization worker crashed" {
		t.Errorf("detail = %q", z.Detail())
	}

	rec, _ := st.Get(context.Background(), "c-1")
	if rec.Status != types.StatusFailed {
		t.Errorf("stored status = %s, want failed", rec.Status)
	}
	if rec.TranscriptText != testRequest(nil).RealtimeTranscript {
		t.Errorf("real-time transcript not retained: %q", rec.TranscriptText)
	}
	if rec.ErrorDetail != "diarization worker crashed" {
		t.Errorf("stored error detail = %q", rec.ErrorDetail)
	}
}

func TestFinalize_SubmissionErrorIsNonFatal(t *testing.T) {
	st := storemock.New()
	provider := &diarizemock.Provider{FinalError: errors.New("connection refused")}
	feed := &statusmock.Subscriber{}
	f := New(st, provider, feed)

	z, err := f.Finalize(context.Background(), testRequest(testResidual()))
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if z.State() != StateFailed {
		t.Errorf("state = %s, want failed", z.State())
	}
	if len(feed.SubscribeCalls) != 0 {
		t.Errorf("Subscribe called %d times after submission error, want 0", len(feed.SubscribeCalls))
	}

	rec, _ := st.Get(context.Background(), "c-1")
	if rec.Status != types.StatusFailed || rec.TranscriptText == "" {
		t.Errorf("record = %+v", rec)
	}
}

func TestFinalize_FeedClosedWithoutTerminalUpdate(t *testing.T) {
	st := storemock.New()
	provider := &diarizemock.Provider{}
	feed := &statusmock.Subscriber{}
	f := New(st, provider, feed)

	done := make(chan *Finalization, 1)
	go func() {
		z, _ := f.Finalize(context.Background(), testRequest(testResidual()))
		done <- z
	}()

	sub := waitForSubscription(t, feed)
	_ = sub.Close()

	z := <-done
	if z.State() != StateFailed {
		t.Errorf("state = %s, want failed", z.State())
	}
}

func TestFinalize_Timeout(t *testing.T) {
	st := storemock.New()
	provider := &diarizemock.Provider{}
	feed := &statusmock.Subscriber{}
	f := New(st, provider, feed, WithWaitTimeout(20*time.Millisecond))

	z, err := f.Finalize(context.Background(), testRequest(testResidual()))
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if z.State() != StateFailed {
		t.Errorf("state = %s, want failed", z.State())
	}

	rec, _ := st.Get(context.Background(), "c-1")
	if rec.Status != types.StatusFailed {
		t.Errorf("stored status = %s, want failed", rec.Status)
	}
}

func TestFinalize_StoreErrorIsFatal(t *testing.T) {
	st := storemock.New()
	st.SaveError = errors.New("connection pool exhausted")
	f := New(st, &diarizemock.Provider{}, &statusmock.Subscriber{})

	z, err := f.Finalize(context.Background(), testRequest(nil))
	if err == nil {
		t.Fatal("Finalize returned nil error on store failure")
	}
	if z.State() != StateIdle {
		t.Errorf("state = %s, want idle", z.State())
	}
}

func TestFinalization_RejectsIllegalTransitions(t *testing.T) {
	z := newFinalization()
	if err := z.advance(StateCompleted, ""); err != nil {
		t.Fatalf("idle -> completed: %v", err)
	}
	if err := z.advance(StateFailed, ""); err == nil {
		t.Error("completed -> failed allowed, want rejected")
	}
	if err := z.advance(StateSubmitting, ""); err == nil {
		t.Error("completed -> submitting allowed, want rejected")
	}
	if z.State() != StateCompleted {
		t.Errorf("state = %s, want completed", z.State())
	}
}

// waitForSubscription polls until the finalizer has opened its status feed
// subscription.
func waitForSubscription(t *testing.T, feed *statusmock.Subscriber) *statusmock.Subscription {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if sub := feed.Last(); sub != nil {
			return sub
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("subscription not opened within deadline")
	return nil
}
