// Package diarize defines the provider interface for the external
// speaker-diarization backend.
//
// The backend receives one chunk of consultation audio per call and returns
// per-speaker segments with chunk-relative timestamps, the set of chunk-local
// speaker labels it detected, and speaker-activity statistics computed over
// the chunk's leading and trailing overlap windows. Labels are meaningful
// only within a single call — "speaker_0" in chunk 3 need not be the same
// person as "speaker_0" in chunk 4. Cross-chunk identity is the continuity
// pipeline's job, not the provider's.
//
// Implementations must be safe for concurrent use.
package diarize

import "context"

// Provider is a client for the diarization backend.
type Provider interface {
	// Diarize submits one chunk's audio together with its session context and
	// blocks until the backend returns segments and overlap statistics.
	//
	// Any transport or decode error is returned as-is; callers record it as
	// the chunk's failed status and move on — a failed chunk never aborts the
	// session.
	Diarize(ctx context.Context, req Request) (*Result, error)

	// SubmitFinalChunk hands the residual final chunk to asynchronous backend
	// processing. The backend acknowledges acceptance immediately; completion
	// or failure arrives later on the status feed keyed by consultation ID.
	SubmitFinalChunk(ctx context.Context, req FinalChunkRequest) (*FinalChunkAck, error)
}
