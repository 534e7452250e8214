package diarize

import "github.com/solinvox/medscribe/pkg/types"

// Request carries one chunk's audio and session context to the backend.
type Request struct {
	// ConsultationID identifies the consultation this chunk belongs to.
	ConsultationID string

	// AppointmentID and PatientRef are optional identifiers forwarded for
	// downstream field extraction. Empty when not available.
	AppointmentID string
	PatientRef    string

	// Language is the consultation language code (e.g. "en", "nl").
	Language string

	// ChunkIndex is the zero-based position of the chunk in the recording.
	ChunkIndex int

	// ChunkStart and ChunkEnd are the chunk's offsets on the global recording
	// timeline, in seconds, overlap included.
	ChunkStart float64
	ChunkEnd   float64

	// Audio is the chunk's encoded audio payload.
	Audio []byte
}

// Result is the backend's response for one chunk.
type Result struct {
	// Segments are the diarized spans with chunk-relative timestamps and
	// chunk-local speaker IDs.
	Segments []types.DiarizedSegment

	// DetectedSpeakers lists the chunk-local speaker IDs present in Segments.
	DetectedSpeakers []string

	// StartOverlapStats and EndOverlapStats are per-speaker activity
	// statistics over the chunk's leading and trailing overlap windows,
	// keyed by chunk-local speaker ID.
	StartOverlapStats map[string]types.SpeakerStats
	EndOverlapStats   map[string]types.SpeakerStats

	// ConsultationType is an optional consultation-type signal detected by
	// the backend (used by form auto-selection downstream). May be empty.
	ConsultationType string
}

// FinalChunkRequest dispatches the residual final chunk for asynchronous
// processing after recording stop.
type FinalChunkRequest struct {
	ConsultationID string
	Language       string
	ChunkIndex     int
	ChunkStart     float64
	ChunkEnd       float64
	Audio          []byte
}

// FinalChunkAck is the backend's immediate acceptance acknowledgment for a
// final-chunk submission. The actual outcome arrives via the status feed.
type FinalChunkAck struct {
	// Accepted reports whether the backend queued the chunk.
	Accepted bool

	// JobID is the backend's identifier for the queued work, when provided.
	JobID string
}
