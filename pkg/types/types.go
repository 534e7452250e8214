// Package types defines the shared types used across all medscribe packages.
//
// These types form the lingua franca between the capture layer, the
// diarization provider, the continuity pipeline, and the finalization layer.
// They are intentionally minimal — each package defines its own domain types,
// but cross-cutting data structures live here to avoid circular imports.
package types

// DiarizedSegment is one speaker-attributed span of transcribed speech.
//
// Segments arrive from the diarization service with chunk-relative timestamps
// and chunk-local speaker IDs. The continuity pipeline relabels SpeakerID to a
// canonical ID and shifts StartTime/EndTime onto the global recording
// timeline before the segment enters the consultation transcript.
type DiarizedSegment struct {
	// SpeakerID is chunk-local as received from the diarization service and
	// canonical once the segment has passed through continuity matching.
	SpeakerID string `json:"speaker_id"`

	// SpeakerRole is an optional role hint from the service (e.g. "clinician",
	// "patient"). Empty when the service does not classify roles.
	SpeakerRole string `json:"speaker_role,omitempty"`

	// Text is the transcribed speech for this span.
	Text string `json:"text"`

	// StartTime and EndTime are in seconds. Chunk-relative on the wire,
	// global-timeline once merged.
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"`

	// ChunkIndex records which chunk produced this segment.
	ChunkIndex int `json:"chunk_index"`
}

// Duration returns the segment length in seconds.
func (s DiarizedSegment) Duration() float64 {
	return s.EndTime - s.StartTime
}

// SpeakerStats aggregates one chunk-local speaker's activity over an overlap
// window. The continuity matcher compares the tail stats of chunk n-1 against
// the head stats of chunk n to re-identify speakers across the boundary.
type SpeakerStats struct {
	// SpeakerID is the chunk-local speaker label these stats describe.
	SpeakerID string `json:"speaker_id"`

	// WordCount is the number of words the speaker produced inside the window.
	WordCount int `json:"word_count"`

	// Duration is the speaker's total speech time inside the window, in
	// seconds. Segments only partially inside the window contribute only the
	// overlapping portion.
	Duration float64 `json:"duration"`

	// SegmentCount is the number of segments that touch the window.
	SegmentCount int `json:"segment_count"`
}

// AvgSegmentLength returns the mean segment duration in seconds, or 0 when
// the speaker has no segments in the window.
func (s SpeakerStats) AvgSegmentLength() float64 {
	if s.SegmentCount == 0 {
		return 0
	}
	return s.Duration / float64(s.SegmentCount)
}

// TranscriptionStatus is the lifecycle state of a consultation's final-chunk
// processing. Completed and Failed are terminal.
type TranscriptionStatus string

const (
	StatusPending    TranscriptionStatus = "pending"
	StatusProcessing TranscriptionStatus = "processing"
	StatusCompleted  TranscriptionStatus = "completed"
	StatusFailed     TranscriptionStatus = "failed"
)

// IsValid reports whether t is a recognised transcription status.
func (t TranscriptionStatus) IsValid() bool {
	switch t {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether t is a terminal state.
func (t TranscriptionStatus) Terminal() bool {
	return t == StatusCompleted || t == StatusFailed
}

// StatusUpdate is one push notification from the transcription status feed.
type StatusUpdate struct {
	// ConsultationID identifies the consultation the update belongs to.
	ConsultationID string `json:"consultation_id"`

	// Status is the new transcription status.
	Status TranscriptionStatus `json:"transcription_status"`

	// Text carries the finalized diarized transcript when Status is completed.
	Text string `json:"text,omitempty"`

	// ErrorDetail describes the failure when Status is failed.
	ErrorDetail string `json:"error_detail,omitempty"`
}
