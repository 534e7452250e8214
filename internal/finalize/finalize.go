// Package finalize implements the stop-time reconciliation of a consultation
// recording.
//
// When a recording stops, the audio after the last completed chunk boundary
// usually has not been diarized yet. That residual is submitted as a final
// chunk for asynchronous processing, the consultation is persisted with the
// real-time transcript and status pending, and the backend's transcription
// status feed is watched until a terminal update arrives: completed replaces
// the stored transcript with the finalized one, failed keeps the real-time
// transcript as the fallback. A recording whose last boundary consumed
// everything is completed immediately.
//
// Every step is tracked by an explicit [Finalization] state machine, so a
// consultation can never be reconciled twice or regress out of a terminal
// state.
package finalize

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/solinvox/medscribe/internal/observe"
	"github.com/solinvox/medscribe/internal/pipeline"
	"github.com/solinvox/medscribe/pkg/provider/diarize"
	"github.com/solinvox/medscribe/pkg/provider/status"
	"github.com/solinvox/medscribe/pkg/store"
	"github.com/solinvox/medscribe/pkg/types"
)

// DefaultWaitTimeout bounds how long a finalization waits for the backend's
// terminal status update.
const DefaultWaitTimeout = 10 * time.Minute

// State is one phase of the finalization lifecycle.
type State string

const (
	// StateIdle is the initial state, before any persistence has happened.
	StateIdle State = "idle"

	// StateSubmitting means the residual final chunk is being dispatched.
	StateSubmitting State = "submitting"

	// StateAwaiting means the final chunk was accepted and the status feed
	// is being watched for the terminal update.
	StateAwaiting State = "awaiting_backend"

	// StateCompleted and StateFailed are terminal.
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// transitions lists the legal state transitions.
var transitions = map[State][]State{
	StateIdle:       {StateSubmitting, StateCompleted, StateFailed},
	StateSubmitting: {StateAwaiting, StateFailed},
	StateAwaiting:   {StateCompleted, StateFailed},
}

// Finalization is the state machine for one consultation's finalization. It
// only ever moves forward; once terminal it rejects further transitions.
type Finalization struct {
	mu     sync.Mutex
	state  State
	detail string
}

func newFinalization() *Finalization {
	return &Finalization{state: StateIdle}
}

// State returns the current phase.
func (z *Finalization) State() State {
	z.mu.Lock()
	defer z.mu.Unlock()
	return z.state
}

// Detail returns the failure description when the state is [StateFailed].
func (z *Finalization) Detail() string {
	z.mu.Lock()
	defer z.mu.Unlock()
	return z.detail
}

// Terminal reports whether the finalization has reached a terminal state.
func (z *Finalization) Terminal() bool {
	s := z.State()
	return s == StateCompleted || s == StateFailed
}

// advance moves the machine to next, or returns an error when the transition
// is not legal from the current state.
func (z *Finalization) advance(next State, detail string) error {
	z.mu.Lock()
	defer z.mu.Unlock()
	for _, allowed := range transitions[z.state] {
		if allowed == next {
			z.state = next
			z.detail = detail
			return nil
		}
	}
	return fmt.Errorf("finalize: illegal transition %s -> %s", z.state, next)
}

// Request carries everything needed to finalize one recording.
type Request struct {
	ConsultationID string
	AppointmentID  string
	PatientRef     string
	Language       string

	// RealtimeTranscript is the merged transcript built during recording,
	// persisted immediately and kept as the fallback on failure.
	RealtimeTranscript string

	// Residual is the trailing audio not covered by any completed chunk.
	// Nil when the last chunk boundary consumed everything.
	Residual *pipeline.Chunk
}

// Option is a functional option for configuring a [Finalizer].
type Option func(*Finalizer)

// WithWaitTimeout bounds the wait for the backend's terminal status update.
// Default: 10 minutes.
func WithWaitTimeout(d time.Duration) Option {
	return func(f *Finalizer) { f.waitTimeout = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(f *Finalizer) { f.log = l }
}

// WithMetrics sets the metrics instance. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(f *Finalizer) { f.metrics = m }
}

// Finalizer reconciles stopped recordings against the diarization backend
// and persists the outcome. Safe for concurrent use; each call to Finalize
// runs an independent state machine.
type Finalizer struct {
	store    store.ConsultationStore
	diarizer diarize.Provider
	feed     status.Subscriber

	mu          sync.Mutex
	waitTimeout time.Duration

	log     *slog.Logger
	metrics *observe.Metrics
}

// SetWaitTimeout replaces the wait timeout for subsequent finalizations.
// Non-positive values are ignored.
func (f *Finalizer) SetWaitTimeout(d time.Duration) {
	if d <= 0 {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.waitTimeout = d
}

func (f *Finalizer) currentWaitTimeout() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.waitTimeout
}

// New creates a Finalizer.
func New(st store.ConsultationStore, diarizer diarize.Provider, feed status.Subscriber, opts ...Option) *Finalizer {
	f := &Finalizer{
		store:       st,
		diarizer:    diarizer,
		feed:        feed,
		waitTimeout: DefaultWaitTimeout,
	}
	for _, o := range opts {
		o(f)
	}
	if f.log == nil {
		f.log = slog.Default()
	}
	if f.metrics == nil {
		f.metrics = observe.DefaultMetrics()
	}
	return f
}

// Finalize runs one consultation's finalization to its terminal state,
// blocking until the backend reports the outcome or the wait times out.
//
// Backend-side problems (rejected submission, failed processing, timeout)
// are not errors: the consultation ends up failed with the real-time
// transcript retained, and the returned error is nil. A non-nil error means
// the outcome could not be persisted.
func (f *Finalizer) Finalize(ctx context.Context, req Request) (*Finalization, error) {
	z := newFinalization()
	log := f.log.With("consultation_id", req.ConsultationID)
	start := time.Now()
	defer func() {
		f.metrics.FinalizationDuration.Record(ctx, time.Since(start).Seconds())
		f.metrics.RecordFinalization(ctx, string(z.State()))
	}()

	if req.Residual == nil {
		if err := f.persist(ctx, req, types.StatusCompleted); err != nil {
			return z, err
		}
		_ = z.advance(StateCompleted, "")
		log.Info("finalized without residual")
		return z, nil
	}

	if err := f.persist(ctx, req, types.StatusPending); err != nil {
		return z, err
	}
	_ = z.advance(StateSubmitting, "")

	ack, err := f.diarizer.SubmitFinalChunk(ctx, diarize.FinalChunkRequest{
		ConsultationID: req.ConsultationID,
		Language:       req.Language,
		ChunkIndex:     req.Residual.Index,
		ChunkStart:     req.Residual.StartTime,
		ChunkEnd:       req.Residual.EndTime,
		Audio:          req.Residual.Audio,
	})
	if err != nil {
		return z, f.fail(ctx, z, req.ConsultationID, fmt.Sprintf("final chunk submission: %v", err))
	}
	if !ack.Accepted {
		return z, f.fail(ctx, z, req.ConsultationID, "final chunk rejected by backend")
	}
	_ = z.advance(StateAwaiting, "")
	log.Info("final chunk submitted, awaiting backend",
		"chunk_index", req.Residual.Index,
		"job_id", ack.JobID,
	)

	sub, err := f.feed.Subscribe(ctx, req.ConsultationID)
	if err != nil {
		return z, f.fail(ctx, z, req.ConsultationID, fmt.Sprintf("status subscription: %v", err))
	}
	defer sub.Close()

	return z, f.await(ctx, z, req.ConsultationID, sub)
}

// await consumes the status feed until a terminal update, channel closure,
// cancellation, or timeout.
func (f *Finalizer) await(ctx context.Context, z *Finalization, consultationID string, sub status.Subscription) error {
	timer := time.NewTimer(f.currentWaitTimeout())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return f.fail(ctx, z, consultationID, fmt.Sprintf("finalization cancelled: %v", ctx.Err()))
		case <-timer.C:
			return f.fail(ctx, z, consultationID, "timed out waiting for transcription status")
		case update, ok := <-sub.Updates():
			if !ok {
				return f.fail(ctx, z, consultationID, "status feed closed before a terminal update")
			}
			switch update.Status {
			case types.StatusCompleted:
				if err := f.store.UpdateTranscription(ctx, consultationID, types.StatusCompleted, update.Text, ""); err != nil {
					return err
				}
				_ = z.advance(StateCompleted, "")
				f.log.Info("finalization completed", "consultation_id", consultationID)
				return nil
			case types.StatusFailed:
				return f.fail(ctx, z, consultationID, update.ErrorDetail)
			default:
				f.log.Debug("transcription status update",
					"consultation_id", consultationID,
					"status", update.Status,
				)
			}
		}
	}
}

// fail marks the consultation failed, keeping the stored real-time
// transcript as the fallback.
func (f *Finalizer) fail(ctx context.Context, z *Finalization, consultationID, detail string) error {
	f.log.Warn("finalization failed, keeping real-time transcript",
		"consultation_id", consultationID,
		"detail", detail,
	)
	// The store update must not inherit a cancelled context.
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
	}
	if err := f.store.UpdateTranscription(ctx, consultationID, types.StatusFailed, "", detail); err != nil {
		return err
	}
	_ = z.advance(StateFailed, detail)
	return nil
}

// persist upserts the consultation record with the real-time transcript.
func (f *Finalizer) persist(ctx context.Context, req Request, st types.TranscriptionStatus) error {
	return f.store.Save(ctx, store.ConsultationRecord{
		ConsultationID: req.ConsultationID,
		AppointmentID:  req.AppointmentID,
		PatientRef:     req.PatientRef,
		Language:       req.Language,
		TranscriptText: req.RealtimeTranscript,
		Status:         st,
	})
}
