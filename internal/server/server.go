// Package server exposes the consultation recording API over HTTP.
//
// The endpoints map one-to-one onto [app.Manager] operations:
//
//   - POST /consultations                    — start recording
//   - GET  /consultations                    — list active recordings
//   - GET  /consultations/{id}               — pipeline state snapshot
//   - GET  /consultations/{id}/transcript    — real-time transcript snapshot
//   - GET  /consultations/{id}/events        — websocket stream of pipeline progress
//   - POST /consultations/{id}/audio         — push raw PCM into the capture buffer
//   - POST /consultations/{id}/stop          — stop and finalize
//   - POST /consultations/{id}/cancel        — discard
//
// Responses are JSON. The events endpoint upgrades to a websocket and pushes
// merged-segment and chunk-status events as they happen, so the recording UI
// never has to poll.
package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/solinvox/medscribe/internal/app"
	"github.com/solinvox/medscribe/internal/pipeline"
	"github.com/solinvox/medscribe/pkg/types"
)

// maxAudioUpload caps a single audio upload. At 16-bit 48 kHz stereo this is
// well over a minute of PCM per request.
const maxAudioUpload = 16 << 20

// Server handles the consultation recording HTTP API.
type Server struct {
	manager *app.Manager
	log     *slog.Logger
}

// Option is a functional option for [New].
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.log = l }
}

// New creates a Server over the given session manager.
func New(manager *app.Manager, opts ...Option) *Server {
	s := &Server{manager: manager}
	for _, o := range opts {
		o(s)
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	return s
}

// Register adds all consultation routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /consultations", s.handleStart)
	mux.HandleFunc("GET /consultations", s.handleList)
	mux.HandleFunc("GET /consultations/{id}", s.handleGet)
	mux.HandleFunc("GET /consultations/{id}/transcript", s.handleTranscript)
	mux.HandleFunc("GET /consultations/{id}/events", s.handleEvents)
	mux.HandleFunc("POST /consultations/{id}/audio", s.handleAudio)
	mux.HandleFunc("POST /consultations/{id}/stop", s.handleStop)
	mux.HandleFunc("POST /consultations/{id}/cancel", s.handleCancel)
}

// ── Request / response bodies ─────────────────────────────────────────────────

type startRequest struct {
	ConsultationID string `json:"consultation_id"`
	AppointmentID  string `json:"appointment_id"`
	PatientRef     string `json:"patient_ref"`
	Language       string `json:"language"`
}

type sessionResponse struct {
	ConsultationID string    `json:"consultation_id"`
	AppointmentID  string    `json:"appointment_id,omitempty"`
	PatientRef     string    `json:"patient_ref,omitempty"`
	Language       string    `json:"language,omitempty"`
	StartedAt      time.Time `json:"started_at"`
}

type chunkResponse struct {
	Index  int    `json:"index"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type stateResponse struct {
	sessionResponse
	ElapsedSeconds     float64         `json:"elapsed_seconds"`
	LastProcessedIndex int             `json:"last_processed_index"`
	SpeakerCount       int             `json:"speaker_count"`
	ConsultationType   string          `json:"consultation_type,omitempty"`
	ChunkInFlight      bool            `json:"chunk_in_flight"`
	Chunks             []chunkResponse `json:"chunks"`
}

type transcriptResponse struct {
	ConsultationID string                  `json:"consultation_id"`
	Transcript     string                  `json:"transcript"`
	Segments       []types.DiarizedSegment `json:"segments"`
}

type stopResponse struct {
	ConsultationID      string `json:"consultation_id"`
	Transcript          string `json:"transcript"`
	FinalChunkSubmitted bool   `json:"final_chunk_submitted"`
}

type segmentsEvent struct {
	Type           string                  `json:"type"`
	ConsultationID string                  `json:"consultation_id"`
	ChunkIndex     int                     `json:"chunk_index"`
	SpeakerCount   int                     `json:"speaker_count"`
	Segments       []types.DiarizedSegment `json:"segments"`
}

type chunkEvent struct {
	Type           string        `json:"type"`
	ConsultationID string        `json:"consultation_id"`
	Chunk          chunkResponse `json:"chunk"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// ── Handlers ──────────────────────────────────────────────────────────────────

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
		return
	}

	info, err := s.manager.Start(r.Context(), app.StartRequest{
		ConsultationID: req.ConsultationID,
		AppointmentID:  req.AppointmentID,
		PatientRef:     req.PatientRef,
		Language:       req.Language,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSessionResponse(info))
}

func (s *Server) handleList(w http.ResponseWriter, _ *http.Request) {
	active := s.manager.Active()
	out := make([]sessionResponse, 0, len(active))
	for _, info := range active {
		out = append(out, toSessionResponse(info))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	info, err := s.manager.Info(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	sess, err := s.manager.Session(id)
	if err != nil {
		s.writeError(w, err)
		return
	}

	st := sess.State()
	records := st.ChunkRecords()
	chunks := make([]chunkResponse, 0, len(records))
	for _, rec := range records {
		chunks = append(chunks, toChunkResponse(rec))
	}

	writeJSON(w, http.StatusOK, stateResponse{
		sessionResponse:    toSessionResponse(info),
		ElapsedSeconds:     sess.Elapsed(),
		LastProcessedIndex: st.LastProcessedIndex(),
		SpeakerCount:       st.SpeakerCount(),
		ConsultationType:   st.ConsultationType(),
		ChunkInFlight:      st.InFlight(),
		Chunks:             chunks,
	})
}

func (s *Server) handleTranscript(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sess, err := s.manager.Session(id)
	if err != nil {
		s.writeError(w, err)
		return
	}

	segments := sess.State().Segments()
	if segments == nil {
		segments = []types.DiarizedSegment{}
	}
	writeJSON(w, http.StatusOK, transcriptResponse{
		ConsultationID: id,
		Transcript:     sess.Transcript(),
		Segments:       segments,
	})
}

// handleEvents upgrades to a websocket and streams pipeline progress until
// the client disconnects or the session ends.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sess, err := s.manager.Session(id)
	if err != nil {
		s.writeError(w, err)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.log.Warn("websocket accept failed", "consultation_id", id, "error", err)
		return
	}
	defer conn.CloseNow()

	// Bus dispatch is synchronous on the pipeline goroutine, so handlers only
	// enqueue. A slow client drops events rather than stalling the pipeline.
	events := make(chan any, 64)
	unsubSegments := sess.Bus().SubscribeSegments(func(ev pipeline.SegmentsMergedEvent) {
		select {
		case events <- segmentsEvent{
			Type:           "segments",
			ConsultationID: ev.ConsultationID,
			ChunkIndex:     ev.ChunkIndex,
			SpeakerCount:   ev.SpeakerCount,
			Segments:       ev.Segments,
		}:
		default:
		}
	})
	defer unsubSegments()
	unsubChunks := sess.Bus().SubscribeChunks(func(ev pipeline.ChunkStatusEvent) {
		select {
		case events <- chunkEvent{
			Type:           "chunk",
			ConsultationID: ev.ConsultationID,
			Chunk:          toChunkResponse(ev.Record),
		}:
		default:
		}
	})
	defer unsubChunks()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case ev := <-events:
			if err := wsjson.Write(ctx, conn, ev); err != nil {
				return
			}
		}
	}
}

// handleAudio appends an uploaded slab of raw PCM to the consultation's
// capture buffer.
func (s *Server) handleAudio(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxAudioUpload))
	if err != nil {
		writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "audio upload too large or unreadable"})
		return
	}
	if len(body) == 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "empty audio upload"})
		return
	}

	if err := s.manager.Ingest(id, body); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	res, err := s.manager.Stop(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stopResponse{
		ConsultationID:      res.Info.ConsultationID,
		Transcript:          res.Transcript,
		FinalChunkSubmitted: res.HasResidual,
	})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.manager.Cancel(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ── Helpers ───────────────────────────────────────────────────────────────────

func toSessionResponse(info app.SessionInfo) sessionResponse {
	return sessionResponse{
		ConsultationID: info.ConsultationID,
		AppointmentID:  info.AppointmentID,
		PatientRef:     info.PatientRef,
		Language:       info.Language,
		StartedAt:      info.StartedAt,
	}
}

func toChunkResponse(rec pipeline.ChunkRecord) chunkResponse {
	return chunkResponse{
		Index:  rec.Index,
		Status: string(rec.Status),
		Error:  rec.Err,
	}
}

// writeError maps manager errors onto HTTP status codes.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, app.ErrSessionNotFound):
		status = http.StatusNotFound
	case errors.Is(err, app.ErrSessionExists), errors.Is(err, app.ErrNotIngestible):
		status = http.StatusConflict
	case errors.Is(err, app.ErrShuttingDown):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		s.log.Error("request failed", "error", err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

// writeJSON encodes v as JSON and writes it with the given status code. On
// encoding failure it falls back to a plain-text 500 response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error":"encoding failed"}`, http.StatusInternalServerError)
	}
}
