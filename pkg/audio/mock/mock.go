// Package mock provides in-memory mock implementations of the
// [audio.Recorder] and [audio.Capture] interfaces for use in unit tests.
//
// All mocks are safe for concurrent use. They record every method call so
// that tests can assert on call counts and arguments, and they expose
// exported fields the test can set to control return values.
//
// Typical usage:
//
//	cap := mock.NewCapture(16000)
//	cap.Buffer().Append(make([]byte, 16000*60))
//	cap.SetElapsed(60 * time.Second)
//	rec := &mock.Recorder{StartResult: cap}
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/solinvox/medscribe/pkg/audio"
)

// StartCall records the arguments of a single [Recorder.Start] invocation.
type StartCall struct {
	// ConsultationID is the consultationID argument passed to Start.
	ConsultationID string
}

// Recorder is a mock implementation of [audio.Recorder].
// Set the exported Result fields before use; inspect StartCalls after.
type Recorder struct {
	mu sync.Mutex

	// StartResult is the [audio.Capture] returned by Start.
	StartResult audio.Capture

	// StartError is returned by Start. When non-nil, StartResult is ignored.
	StartError error

	// StartCalls records all Start invocations.
	StartCalls []StartCall
}

// Start implements [audio.Recorder].
func (r *Recorder) Start(_ context.Context, consultationID string) (audio.Capture, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.StartCalls = append(r.StartCalls, StartCall{ConsultationID: consultationID})
	if r.StartError != nil {
		return nil, r.StartError
	}
	return r.StartResult, nil
}

// Capture is a mock implementation of [audio.Capture] with a manually
// advanced clock, so tests control exactly how much recording time has
// "elapsed" at each pipeline tick.
type Capture struct {
	mu sync.Mutex

	buf     *audio.Buffer
	elapsed time.Duration

	// CloseError is returned by Close.
	CloseError error

	// CallCountClose records how many times Close was called.
	CallCountClose int
}

// NewCapture creates a mock Capture whose buffer uses the given byte rate.
func NewCapture(bytesPerSecond int) *Capture {
	return &Capture{buf: audio.NewBuffer(bytesPerSecond)}
}

// Buffer implements [audio.Capture].
func (c *Capture) Buffer() *audio.Buffer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf
}

// Elapsed implements [audio.Capture]. Returns the value last set via
// [Capture.SetElapsed].
func (c *Capture) Elapsed() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.elapsed
}

// SetElapsed advances the mock recording clock.
func (c *Capture) SetElapsed(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.elapsed = d
}

// Close implements [audio.Capture]. Returns CloseError.
func (c *Capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CallCountClose++
	return c.CloseError
}
