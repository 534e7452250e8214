// Package app manages the lifecycle of consultation recording sessions.
//
// The central type is [Manager]. Start acquires audio capture for a
// consultation and runs the chunked diarization pipeline over it; Stop hands
// the residual audio and the real-time transcript to the finalizer; Cancel
// discards the recording without persisting anything. Any number of
// consultations can record concurrently, each keyed by its consultation ID.
//
// For testing, inject mock implementations of the recorder, diarizer, and
// finalizer dependencies via [ManagerConfig].
package app

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/solinvox/medscribe/internal/config"
	"github.com/solinvox/medscribe/internal/finalize"
	"github.com/solinvox/medscribe/internal/observe"
	"github.com/solinvox/medscribe/internal/pipeline"
	"github.com/solinvox/medscribe/pkg/audio"
	"github.com/solinvox/medscribe/pkg/provider/diarize"
)

// ErrSessionExists is returned by Start when the consultation is already
// recording.
var ErrSessionExists = errors.New("app: consultation is already recording")

// ErrSessionNotFound is returned when no active recording exists for the
// consultation.
var ErrSessionNotFound = errors.New("app: no active recording for consultation")

// ErrShuttingDown is returned by Start after Shutdown has begun.
var ErrShuttingDown = errors.New("app: manager is shutting down")

// ErrNotIngestible is returned by Ingest when the consultation's capture does
// not accept pushed audio (a device-backed recorder, for example).
var ErrNotIngestible = errors.New("app: capture does not accept pushed audio")

// SessionInfo holds metadata about an active recording session.
type SessionInfo struct {
	// ConsultationID is the unique identifier for this consultation.
	ConsultationID string

	// AppointmentID and PatientRef are optional external identifiers passed
	// through to the diarization backend and the persisted record.
	AppointmentID string
	PatientRef    string

	// Language is the consultation language code.
	Language string

	// StartedAt is when recording began.
	StartedAt time.Time
}

// StartRequest carries the parameters for starting a recording. An empty
// ConsultationID gets a generated UUID.
type StartRequest struct {
	ConsultationID string
	AppointmentID  string
	PatientRef     string
	Language       string
}

// StopResult is what Stop returns to the caller while finalization continues
// in the background.
type StopResult struct {
	Info SessionInfo

	// Transcript is the real-time transcript at the moment of stopping.
	Transcript string

	// HasResidual reports whether trailing audio was submitted as a final
	// chunk. When false the consultation was completed immediately.
	HasResidual bool
}

// managedSession bundles one live recording with its teardown state.
type managedSession struct {
	info    SessionInfo
	capture audio.Capture
	session *pipeline.Session
	cancel  context.CancelFunc

	// done is closed when the session's run loop has exited.
	done chan struct{}

	// closers are called in reverse order during teardown.
	closers []func() error
}

// ManagerConfig holds all dependencies for a [Manager].
type ManagerConfig struct {
	Recorder  audio.Recorder
	Diarizer  diarize.Provider
	Finalizer *finalize.Finalizer

	// Pipeline carries the chunking and matching tunables. Zero values fall
	// back to the pipeline package defaults.
	Pipeline config.PipelineConfig

	Logger  *slog.Logger
	Metrics *observe.Metrics
}

// Manager manages the lifecycle of concurrent recording sessions.
// All exported methods are safe for concurrent use.
type Manager struct {
	recorder  audio.Recorder
	diarizer  diarize.Provider
	finalizer *finalize.Finalizer
	pcfg      config.PipelineConfig
	log       *slog.Logger
	metrics   *observe.Metrics

	mu       sync.Mutex
	sessions map[string]*managedSession
	closed   bool

	// finalizing tracks background finalization goroutines spawned by Stop.
	finalizing sync.WaitGroup
}

// NewManager creates a Manager with the given dependencies.
func NewManager(cfg ManagerConfig) *Manager {
	m := &Manager{
		recorder:  cfg.Recorder,
		diarizer:  cfg.Diarizer,
		finalizer: cfg.Finalizer,
		pcfg:      cfg.Pipeline,
		log:       cfg.Logger,
		metrics:   cfg.Metrics,
		sessions:  make(map[string]*managedSession),
	}
	if m.log == nil {
		m.log = slog.Default()
	}
	if m.metrics == nil {
		m.metrics = observe.DefaultMetrics()
	}
	return m
}

// Start begins recording a consultation. It acquires audio capture, starts
// the chunk pipeline over it, and returns once the session is live. A capture
// acquisition failure is fatal to the start; nothing is retained.
func (m *Manager) Start(ctx context.Context, req StartRequest) (SessionInfo, error) {
	id := req.ConsultationID
	if id == "" {
		id = uuid.NewString()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return SessionInfo{}, ErrShuttingDown
	}
	if _, ok := m.sessions[id]; ok {
		return SessionInfo{}, ErrSessionExists
	}

	capture, err := m.recorder.Start(ctx, id)
	if err != nil {
		return SessionInfo{}, err
	}

	info := SessionInfo{
		ConsultationID: id,
		AppointmentID:  req.AppointmentID,
		PatientRef:     req.PatientRef,
		Language:       req.Language,
		StartedAt:      time.Now().UTC(),
	}

	sess := pipeline.NewSession(pipeline.SessionConfig{
		ConsultationID: id,
		AppointmentID:  req.AppointmentID,
		PatientRef:     req.PatientRef,
		Language:       req.Language,
		TickInterval:   time.Duration(m.pcfg.TickIntervalSeconds * float64(time.Second)),
	}, capture, m.diarizer, m.sessionOptions(id)...)

	// The run loop outlives the Start context; Stop and Cancel end it.
	runCtx, cancel := context.WithCancel(context.Background())
	ms := &managedSession{
		info:    info,
		capture: capture,
		session: sess,
		cancel:  cancel,
		done:    make(chan struct{}),
		closers: []func() error{capture.Close},
	}
	m.sessions[id] = ms

	go func() {
		sess.Run(runCtx)
		close(ms.done)
	}()

	m.metrics.ActiveSessions.Add(ctx, 1)
	m.log.Info("recording started",
		"consultation_id", id,
		"appointment_id", req.AppointmentID,
		"language", req.Language,
	)
	return info, nil
}

// Stop ends a recording and hands it to the finalizer. The residual audio and
// real-time transcript are captured synchronously; the finalization itself
// (final chunk submission, status wait, persistence) runs in the background
// so the caller is not held for the backend round trip.
func (m *Manager) Stop(ctx context.Context, consultationID string) (*StopResult, error) {
	ms, err := m.take(consultationID)
	if err != nil {
		return nil, err
	}

	ms.cancel()
	<-ms.done

	residual := ms.session.Residual()
	transcript := ms.session.Transcript()
	m.teardown(ms)
	m.metrics.ActiveSessions.Add(ctx, -1)

	freq := finalize.Request{
		ConsultationID:     ms.info.ConsultationID,
		AppointmentID:      ms.info.AppointmentID,
		PatientRef:         ms.info.PatientRef,
		Language:           ms.info.Language,
		RealtimeTranscript: transcript,
		Residual:           residual,
	}

	m.finalizing.Add(1)
	go func() {
		defer m.finalizing.Done()
		// Detached from the caller's context; the finalizer bounds its own
		// wait for the backend.
		if _, err := m.finalizer.Finalize(context.Background(), freq); err != nil {
			m.log.Error("finalization could not be persisted",
				"consultation_id", freq.ConsultationID,
				"error", err,
			)
		}
	}()

	m.log.Info("recording stopped",
		"consultation_id", ms.info.ConsultationID,
		"has_residual", residual != nil,
	)
	return &StopResult{
		Info:        ms.info,
		Transcript:  transcript,
		HasResidual: residual != nil,
	}, nil
}

// Cancel discards a recording. The capture is released and all in-memory
// state dropped; nothing is submitted or persisted.
func (m *Manager) Cancel(ctx context.Context, consultationID string) error {
	ms, err := m.take(consultationID)
	if err != nil {
		return err
	}

	ms.cancel()
	<-ms.done
	m.teardown(ms)
	m.metrics.ActiveSessions.Add(ctx, -1)

	m.log.Info("recording cancelled", "consultation_id", consultationID)
	return nil
}

// Ingest forwards uploaded audio bytes to the consultation's capture. The
// capture must implement [audio.Ingestor].
func (m *Manager) Ingest(consultationID string, p []byte) error {
	m.mu.Lock()
	ms, ok := m.sessions[consultationID]
	m.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	ing, ok := ms.capture.(audio.Ingestor)
	if !ok {
		return ErrNotIngestible
	}
	return ing.Ingest(p)
}

// SetPipelineConfig replaces the pipeline tunables. Recordings already in
// progress keep the configuration they started with.
func (m *Manager) SetPipelineConfig(p config.PipelineConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pcfg = p
}

// Session returns the live pipeline session for a consultation, for state
// inspection and event subscription.
func (m *Manager) Session(consultationID string) (*pipeline.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ms, ok := m.sessions[consultationID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return ms.session, nil
}

// Info returns metadata about an active recording.
func (m *Manager) Info(consultationID string) (SessionInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ms, ok := m.sessions[consultationID]
	if !ok {
		return SessionInfo{}, ErrSessionNotFound
	}
	return ms.info, nil
}

// Active returns metadata for all active recordings.
func (m *Manager) Active() []SessionInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SessionInfo, 0, len(m.sessions))
	for _, ms := range m.sessions {
		out = append(out, ms.info)
	}
	return out
}

// Shutdown stops all active recordings and waits for their background
// finalizations, up to the context deadline. New Start calls are rejected
// once Shutdown has begun. Finalizations still running when the deadline
// expires continue detached; only the wait is abandoned.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		if _, err := m.Stop(ctx, id); err != nil && !errors.Is(err, ErrSessionNotFound) {
			m.log.Warn("shutdown: stop failed", "consultation_id", id, "error", err)
		}
	}

	done := make(chan struct{})
	go func() {
		m.finalizing.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// take removes and returns the session for consultationID.
func (m *Manager) take(consultationID string) (*managedSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ms, ok := m.sessions[consultationID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	delete(m.sessions, consultationID)
	return ms, nil
}

// teardown runs the session's closers in reverse order.
func (m *Manager) teardown(ms *managedSession) {
	for i := len(ms.closers) - 1; i >= 0; i-- {
		if err := ms.closers[i](); err != nil {
			m.log.Warn("teardown: closer error",
				"consultation_id", ms.info.ConsultationID,
				"index", i,
				"error", err,
			)
		}
	}
}

// sessionOptions translates the pipeline config into session options.
func (m *Manager) sessionOptions(consultationID string) []pipeline.SessionOption {
	opts := []pipeline.SessionOption{
		pipeline.WithLogger(m.log.With("consultation_id", consultationID)),
		pipeline.WithMetrics(m.metrics),
	}
	if m.pcfg.ChunkSeconds > 0 || m.pcfg.OverlapSeconds > 0 {
		opts = append(opts, pipeline.WithChunker(
			pipeline.NewChunker(m.pcfg.ChunkSeconds, m.pcfg.OverlapSeconds),
		))
	}
	if m.pcfg.MatchThreshold > 0 {
		opts = append(opts, pipeline.WithMatcher(
			pipeline.NewMatcher(pipeline.WithMatchThreshold(m.pcfg.MatchThreshold)),
		))
	}
	if m.pcfg.DedupToleranceSeconds > 0 {
		opts = append(opts, pipeline.WithMerger(
			pipeline.NewMerger(pipeline.WithDedupTolerance(m.pcfg.DedupToleranceSeconds)),
		))
	}
	return opts
}
