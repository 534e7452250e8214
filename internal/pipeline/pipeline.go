// Package pipeline implements the real-time chunked diarization pipeline
// that turns one continuous consultation recording into a speaker-consistent
// transcript.
//
// While a consultation is recorded, the audio is split into sequential,
// fixed-length, overlapping chunks. Each chunk is diarized independently by
// the external backend, which assigns chunk-local speaker labels — the same
// label may denote different people in different chunks. The pipeline
// restores a single coherent view in four stages per chunk:
//
//  1. Extraction ([Chunker]): carve the next chunk's payload out of the
//     capture buffer once the wall-clock boundary has been crossed.
//  2. Scheduling ([Scheduler] plus the session's in-flight flag): strictly
//     in-order processing with at most one chunk outstanding. This is the
//     load-bearing correctness constraint — continuity matching for chunk
//     n+1 needs the tail statistics of a *completed* chunk n.
//  3. Continuity matching ([Matcher]): map chunk-local speaker IDs onto the
//     canonical IDs established by earlier chunks, using activity-profile
//     similarity over the shared overlap window. Unmatched speakers are new.
//  4. Merging ([Merger]): relabel, shift onto the global timeline, drop the
//     double-diarized overlap duplicates, and keep the global segment list
//     sorted by start time.
//
// A [Session] owns the per-recording [State] and drives the stages from a
// periodic tick; consumers observe progress only through snapshot events on
// the [Bus].
package pipeline

// Chunk is one fixed-duration slice of recorded audio, submitted
// independently for diarization. StartTime/EndTime are on the global
// recording timeline, overlap included. Chunks are immutable after
// extraction.
type Chunk struct {
	// Index is the zero-based position of the chunk in the recording.
	Index int

	// StartTime and EndTime are in seconds from recording start.
	StartTime float64
	EndTime   float64

	// Audio is the chunk's payload, copied out of the capture buffer.
	Audio []byte
}

// ChunkStatus is the processing state of a single chunk.
type ChunkStatus string

const (
	ChunkPending    ChunkStatus = "pending"
	ChunkProcessing ChunkStatus = "processing"
	ChunkCompleted  ChunkStatus = "completed"
	ChunkFailed     ChunkStatus = "failed"
)

// ChunkRecord is the observable status of one chunk. A failed chunk records
// the error but never stalls the session — the scheduler accepts a gap in
// the transcript and moves on.
type ChunkRecord struct {
	Index  int
	Status ChunkStatus

	// Err holds the failure description when Status is ChunkFailed.
	Err string
}
