// Package audio defines the capture-side abstractions the diarization
// pipeline consumes: a [Recorder] that acquires microphone input for one
// consultation, a [Capture] handle scoped to a single recording, and the
// append-only [Buffer] the chunk extractor carves chunk payloads from.
//
// Actual microphone access, encoding, and device handling live behind the
// [Recorder] interface — the pipeline only ever sees buffered PCM bytes and
// an elapsed-time clock.
package audio

import (
	"context"
	"sync"
	"time"
)

// Recorder acquires audio capture for a consultation recording session.
//
// Start must fail (and acquire nothing) when the underlying device is
// unavailable — resource-acquisition failures are fatal to session start,
// unlike any later per-chunk error.
//
// Implementations must be safe for concurrent use.
type Recorder interface {
	// Start begins capturing audio for the given consultation and returns a
	// [Capture] handle scoped to this recording. The returned Capture must be
	// closed on every exit path (stop, cancel, teardown) to release the
	// device.
	Start(ctx context.Context, consultationID string) (Capture, error)
}

// Capture is a live audio capture scoped to one recording session.
type Capture interface {
	// Buffer returns the accumulated audio. The same Buffer is returned for
	// the lifetime of the capture; it grows as audio arrives.
	Buffer() *Buffer

	// Elapsed returns how long the capture has been recording.
	Elapsed() time.Duration

	// Close stops capturing and releases the underlying device. Safe to call
	// more than once.
	Close() error
}

// Ingestor is implemented by captures that are fed by pushed audio rather
// than a local device. The API layer forwards uploaded PCM to the capture
// through this interface.
type Ingestor interface {
	// Ingest appends received audio bytes to the capture. Returns an error
	// once the capture is closed.
	Ingest(p []byte) error
}

// Buffer is an append-only PCM byte buffer with a fixed byte rate, so time
// ranges can be mapped to byte ranges. It is the unit of exchange between
// the capture layer and the chunk extractor.
//
// All methods are safe for concurrent use.
type Buffer struct {
	mu             sync.RWMutex
	data           []byte
	bytesPerSecond int
}

// NewBuffer creates a Buffer for audio at the given byte rate
// (sampleRate * channels * bytesPerSample for raw PCM).
func NewBuffer(bytesPerSecond int) *Buffer {
	return &Buffer{bytesPerSecond: bytesPerSecond}
}

// Append adds captured bytes to the end of the buffer.
func (b *Buffer) Append(p []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data = append(b.data, p...)
}

// Len returns the number of buffered bytes.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.data)
}

// BufferedSeconds returns how many seconds of audio the buffer holds.
func (b *Buffer) BufferedSeconds() float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.bytesPerSecond == 0 {
		return 0
	}
	return float64(len(b.data)) / float64(b.bytesPerSecond)
}

// Slice returns a copy of the audio between startSec and endSec. Out-of-range
// bounds are clamped to the buffered data; an inverted or empty range yields
// nil. The copy keeps extracted chunks immutable while capture continues to
// append.
func (b *Buffer) Slice(startSec, endSec float64) []byte {
	b.mu.RLock()
	defer b.mu.RUnlock()

	from := int(startSec * float64(b.bytesPerSecond))
	to := int(endSec * float64(b.bytesPerSecond))
	if from < 0 {
		from = 0
	}
	if to > len(b.data) {
		to = len(b.data)
	}
	if from >= to {
		return nil
	}

	out := make([]byte, to-from)
	copy(out, b.data[from:to])
	return out
}
