package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/solinvox/medscribe/internal/observe"
	"github.com/solinvox/medscribe/pkg/audio"
	"github.com/solinvox/medscribe/pkg/provider/diarize"
	"github.com/solinvox/medscribe/pkg/types"
)

// DefaultTickInterval is how often a running session re-checks chunk
// eligibility.
const DefaultTickInterval = time.Second

// SessionConfig carries the per-consultation context a Session forwards to
// the diarization backend.
type SessionConfig struct {
	ConsultationID string
	AppointmentID  string
	PatientRef     string
	Language       string

	// TickInterval overrides [DefaultTickInterval] when positive.
	TickInterval time.Duration
}

// SessionOption is a functional option for configuring a [Session].
type SessionOption func(*Session)

// WithChunker overrides the default chunker (60s chunks, 5s overlap).
func WithChunker(c *Chunker) SessionOption {
	return func(s *Session) { s.chunker = c }
}

// WithMatcher overrides the default continuity matcher.
func WithMatcher(m *Matcher) SessionOption {
	return func(s *Session) { s.matcher = m }
}

// WithMerger overrides the default segment merger.
func WithMerger(m *Merger) SessionOption {
	return func(s *Session) { s.merger = m }
}

// WithBus sets the event bus progress is published to.
func WithBus(b *Bus) SessionOption {
	return func(s *Session) { s.bus = b }
}

// WithLogger sets the session logger.
func WithLogger(l *slog.Logger) SessionOption {
	return func(s *Session) { s.log = l }
}

// WithMetrics sets the metrics instance. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) SessionOption {
	return func(s *Session) { s.metrics = m }
}

// Session drives the chunk pipeline for one live recording. Each tick it
// checks whether the next chunk's wall-clock boundary has been crossed and,
// if no other chunk is in flight, extracts and processes it synchronously:
// diarize, continuity-match against the previous chunk's tail statistics,
// merge into the global transcript.
//
// A failed chunk is logged, counted, and skipped — processing continues with
// the next chunk, whose speakers all start fresh because the failed chunk
// left no tail statistics to match against.
type Session struct {
	cfg      SessionConfig
	capture  audio.Capture
	diarizer diarize.Provider

	chunker   *Chunker
	scheduler *Scheduler
	matcher   *Matcher
	merger    *Merger
	bus       *Bus
	log       *slog.Logger
	metrics   *observe.Metrics

	state *State
}

// NewSession creates a Session over an already-started capture.
func NewSession(cfg SessionConfig, capture audio.Capture, diarizer diarize.Provider, opts ...SessionOption) *Session {
	s := &Session{
		cfg:      cfg,
		capture:  capture,
		diarizer: diarizer,
		chunker:  NewChunker(DefaultChunkSeconds, DefaultOverlapSeconds),
		matcher:  NewMatcher(),
		merger:   NewMerger(),
		bus:      NewBus(),
		state:    NewState(),
	}
	for _, o := range opts {
		o(s)
	}
	s.scheduler = NewScheduler(s.chunker.ChunkSeconds())
	if s.log == nil {
		s.log = slog.Default().With("consultation_id", cfg.ConsultationID)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

// State returns the session's observable pipeline state.
func (s *Session) State() *State { return s.state }

// Bus returns the event bus this session publishes progress on.
func (s *Session) Bus() *Bus { return s.bus }

// Elapsed returns the recording duration so far, in seconds.
func (s *Session) Elapsed() float64 {
	return s.capture.Elapsed().Seconds()
}

// Transcript renders the current global transcript as text.
func (s *Session) Transcript() string {
	return FormatTranscript(s.state.Segments())
}

// Run ticks the session until ctx is cancelled. Chunk processing happens on
// this goroutine; a diarization round trip longer than the tick interval
// simply delays the next eligibility check, which the single-flight rule
// would have blocked anyway.
func (s *Session) Run(ctx context.Context) {
	interval := s.cfg.TickInterval
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick performs one scheduling pass: if the next chunk is due and nothing is
// in flight, extract it and process it to completion. Safe to call
// concurrently — at most one caller wins the in-flight slot.
func (s *Session) Tick(ctx context.Context) {
	elapsed := s.capture.Elapsed().Seconds()
	if !s.scheduler.ShouldProcessNext(elapsed, s.state.LastProcessedIndex()) {
		return
	}
	if !s.state.TryBeginFlight() {
		return
	}

	index := s.state.LastProcessedIndex() + 1
	chunk := s.chunker.ExtractChunk(s.capture.Buffer(), index, elapsed)
	if chunk == nil {
		// Boundary crossed but the buffer lags behind the clock. Retry on a
		// later tick.
		s.state.EndFlight()
		return
	}
	s.processChunk(ctx, chunk)
}

// Residual returns the trailing audio not covered by any completed chunk,
// or nil when the last chunk boundary consumed (almost) everything. Called
// once at recording stop; the result is submitted as the final chunk.
func (s *Session) Residual() *Chunk {
	index := s.state.LastProcessedIndex() + 1
	return s.chunker.ExtractFinalChunk(s.capture.Buffer(), index, s.capture.Elapsed().Seconds())
}

// processChunk runs one chunk through diarize → match → merge and commits
// the outcome. The in-flight slot is released on every exit path.
func (s *Session) processChunk(ctx context.Context, chunk *Chunk) {
	defer s.state.EndFlight()

	s.publishChunk(ChunkRecord{Index: chunk.Index, Status: ChunkProcessing})
	s.metrics.ChunksInFlight.Add(ctx, 1)
	defer s.metrics.ChunksInFlight.Add(ctx, -1)

	start := time.Now()
	res, err := s.diarizer.Diarize(ctx, diarize.Request{
		ConsultationID: s.cfg.ConsultationID,
		AppointmentID:  s.cfg.AppointmentID,
		PatientRef:     s.cfg.PatientRef,
		Language:       s.cfg.Language,
		ChunkIndex:     chunk.Index,
		ChunkStart:     chunk.StartTime,
		ChunkEnd:       chunk.EndTime,
		Audio:          chunk.Audio,
	})
	s.metrics.ChunkDuration.Record(ctx, time.Since(start).Seconds())

	if err != nil {
		s.log.Warn("chunk diarization failed, skipping",
			"chunk_index", chunk.Index,
			"error", err,
		)
		s.metrics.RecordChunk(ctx, "failed")
		s.state.failChunk(chunk.Index, err)
		s.publishChunk(ChunkRecord{Index: chunk.Index, Status: ChunkFailed, Err: err.Error()})
		return
	}

	mapping := s.matcher.Match(s.state.TailStats(), s.headStats(chunk, res))
	for local, canonical := range mapping {
		if canonical != local {
			s.metrics.RecordContinuity(ctx, "matched")
		} else {
			s.metrics.RecordContinuity(ctx, "new")
		}
	}

	merged := s.merger.Merge(s.state.Segments(), res.Segments, mapping, chunk.StartTime)
	s.state.completeChunk(chunk.Index, merged, s.nextTailStats(chunk, res, mapping), res.ConsultationType)

	s.metrics.RecordChunk(ctx, "completed")
	s.log.Info("chunk merged",
		"chunk_index", chunk.Index,
		"segments", len(res.Segments),
		"total_segments", len(merged),
		"speakers", s.state.SpeakerCount(),
	)

	s.publishChunk(ChunkRecord{Index: chunk.Index, Status: ChunkCompleted})
	s.bus.PublishSegments(SegmentsMergedEvent{
		ConsultationID: s.cfg.ConsultationID,
		ChunkIndex:     chunk.Index,
		Segments:       merged,
		SpeakerCount:   s.state.SpeakerCount(),
	})
}

// headStats returns per-speaker activity over the chunk's leading overlap
// window, preferring the backend's figures and falling back to a local
// computation over the returned segments.
func (s *Session) headStats(chunk *Chunk, res *diarize.Result) map[string]types.SpeakerStats {
	if len(res.StartOverlapStats) > 0 {
		return res.StartOverlapStats
	}
	if chunk.Index == 0 {
		// No leading overlap on the first chunk, and nothing earlier to
		// match against.
		return nil
	}
	return OverlapStats(res.Segments, 0, s.chunker.OverlapSeconds())
}

// nextTailStats returns the chunk's trailing-overlap statistics rekeyed to
// canonical speaker IDs, ready to seed the next continuity match.
func (s *Session) nextTailStats(chunk *Chunk, res *diarize.Result, mapping map[string]string) map[string]types.SpeakerStats {
	tail := res.EndOverlapStats
	if len(tail) == 0 {
		length := chunk.EndTime - chunk.StartTime
		tail = OverlapStats(res.Segments, length-s.chunker.OverlapSeconds(), length)
	}

	out := make(map[string]types.SpeakerStats, len(tail))
	for local, stats := range tail {
		canonical := local
		if mapped, ok := mapping[local]; ok {
			canonical = mapped
		}
		stats.SpeakerID = canonical
		out[canonical] = stats
	}
	return out
}

// publishChunk records the transition in state and announces it on the bus.
func (s *Session) publishChunk(rec ChunkRecord) {
	s.state.setChunk(rec)
	s.bus.PublishChunk(ChunkStatusEvent{ConsultationID: s.cfg.ConsultationID, Record: rec})
}
