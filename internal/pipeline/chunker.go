package pipeline

import (
	"github.com/solinvox/medscribe/pkg/audio"
)

const (
	// DefaultChunkSeconds is the nominal chunk duration.
	DefaultChunkSeconds = 60.0

	// DefaultOverlapSeconds is the overlap window shared across a chunk
	// boundary, diarized by both neighbouring chunks.
	DefaultOverlapSeconds = 5.0

	// minResidualSeconds is the smallest trailing remainder worth dispatching
	// as a final chunk. Anything shorter is noise around the last boundary.
	minResidualSeconds = 1.0
)

// Chunker carves chunk payloads out of the capture buffer. Chunk n nominally
// covers [n·D, (n+1)·D) of the recording; every chunk after the first starts
// overlap seconds early so the boundary region is diarized twice.
//
// Both operations are pure over the buffer contents — the Chunker holds no
// per-session state.
type Chunker struct {
	chunkSeconds   float64
	overlapSeconds float64
}

// NewChunker creates a Chunker. Non-positive arguments fall back to the
// defaults (60s chunks, 5s overlap).
func NewChunker(chunkSeconds, overlapSeconds float64) *Chunker {
	if chunkSeconds <= 0 {
		chunkSeconds = DefaultChunkSeconds
	}
	if overlapSeconds < 0 || overlapSeconds >= chunkSeconds {
		overlapSeconds = DefaultOverlapSeconds
	}
	return &Chunker{chunkSeconds: chunkSeconds, overlapSeconds: overlapSeconds}
}

// ChunkSeconds returns the nominal chunk duration in seconds.
func (c *Chunker) ChunkSeconds() float64 { return c.chunkSeconds }

// OverlapSeconds returns the overlap window in seconds.
func (c *Chunker) OverlapSeconds() float64 { return c.overlapSeconds }

// ExtractChunk carves chunk index out of buf, or returns nil when not enough
// audio has accumulated — either the wall-clock boundary has not been
// crossed yet or the buffer does not cover the chunk's end (short recording,
// capture lag).
func (c *Chunker) ExtractChunk(buf *audio.Buffer, index int, elapsedSeconds float64) *Chunk {
	start, end := c.chunkRange(index)
	if elapsedSeconds < end {
		return nil
	}
	if buf.BufferedSeconds() < end {
		return nil
	}

	payload := buf.Slice(start, end)
	if len(payload) == 0 {
		return nil
	}
	return &Chunk{Index: index, StartTime: start, EndTime: end, Audio: payload}
}

// ExtractFinalChunk returns the trailing audio not yet covered by a
// completed chunk, invoked once at recording stop. index is the next unused
// chunk index. Returns nil when the last regular chunk already consumed
// everything (residual under minResidualSeconds).
func (c *Chunker) ExtractFinalChunk(buf *audio.Buffer, index int, elapsedSeconds float64) *Chunk {
	covered := float64(index) * c.chunkSeconds

	end := elapsedSeconds
	if buffered := buf.BufferedSeconds(); buffered < end {
		end = buffered
	}
	if end-covered < minResidualSeconds {
		return nil
	}

	start := covered
	if index > 0 {
		start -= c.overlapSeconds
	}

	payload := buf.Slice(start, end)
	if len(payload) == 0 {
		return nil
	}
	return &Chunk{Index: index, StartTime: start, EndTime: end, Audio: payload}
}

// chunkRange returns the global time range of chunk index, overlap included.
func (c *Chunker) chunkRange(index int) (start, end float64) {
	start = float64(index) * c.chunkSeconds
	if index > 0 {
		start -= c.overlapSeconds
	}
	end = float64(index+1) * c.chunkSeconds
	return start, end
}
