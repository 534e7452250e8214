// Package ingest provides an [audio.Recorder] fed by pushed audio: clients
// upload raw PCM through the API instead of the server opening a microphone.
// The capture clock advances with the received bytes, so elapsed time and
// buffered audio never diverge.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/solinvox/medscribe/pkg/audio"
)

// ErrCaptureClosed is returned by Ingest after the capture has been closed.
var ErrCaptureClosed = errors.New("ingest: capture is closed")

// Recorder creates push-fed captures. It implements [audio.Recorder].
type Recorder struct {
	bytesPerSecond int
}

// NewRecorder creates a Recorder for PCM audio at the given byte rate
// (sampleRate * channels * bytesPerSample).
func NewRecorder(bytesPerSecond int) (*Recorder, error) {
	if bytesPerSecond <= 0 {
		return nil, fmt.Errorf("ingest: byte rate must be positive, got %d", bytesPerSecond)
	}
	return &Recorder{bytesPerSecond: bytesPerSecond}, nil
}

// Start implements [audio.Recorder]. The returned capture accepts audio via
// [Capture.Ingest] until it is closed.
func (r *Recorder) Start(_ context.Context, _ string) (audio.Capture, error) {
	return &Capture{
		buf:            audio.NewBuffer(r.bytesPerSecond),
		bytesPerSecond: r.bytesPerSecond,
		done:           make(chan struct{}),
	}, nil
}

// Capture is a push-fed [audio.Capture]. It also implements [audio.Ingestor].
type Capture struct {
	buf            *audio.Buffer
	bytesPerSecond int

	// done is closed exactly once by Close.
	done      chan struct{}
	closeOnce sync.Once
}

// Ingest implements [audio.Ingestor].
func (c *Capture) Ingest(p []byte) error {
	select {
	case <-c.done:
		return ErrCaptureClosed
	default:
	}
	c.buf.Append(p)
	return nil
}

// Buffer implements [audio.Capture].
func (c *Capture) Buffer() *audio.Buffer { return c.buf }

// Elapsed implements [audio.Capture]. Elapsed time is defined by the audio
// actually received, not by a wall clock — a stalled upload pauses the
// recording instead of opening a gap.
func (c *Capture) Elapsed() time.Duration {
	return time.Duration(c.buf.BufferedSeconds() * float64(time.Second))
}

// Close implements [audio.Capture]. Safe to call more than once.
func (c *Capture) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}
