package pipeline

import (
	"sync"

	"github.com/solinvox/medscribe/pkg/types"
)

// SegmentsMergedEvent is published after a chunk's segments have been folded
// into the global transcript. Segments is a snapshot — subscribers may hold
// on to it without racing the session.
type SegmentsMergedEvent struct {
	ConsultationID string
	ChunkIndex     int
	Segments       []types.DiarizedSegment
	SpeakerCount   int
}

// ChunkStatusEvent is published on every chunk state transition
// (pending → processing → completed/failed).
type ChunkStatusEvent struct {
	ConsultationID string
	Record         ChunkRecord
}

// Bus is a typed in-process pub/sub channel for pipeline progress. The UI
// layer subscribes instead of polling; the session publishes snapshots, never
// live references to mutable state.
//
// Dispatch is synchronous on the publisher's goroutine, so handlers must be
// fast and must not call back into the session.
type Bus struct {
	mu       sync.RWMutex
	nextID   int
	segments map[int]func(SegmentsMergedEvent)
	chunks   map[int]func(ChunkStatusEvent)
}

// NewBus creates an empty Bus.
func NewBus() *Bus {
	return &Bus{
		segments: make(map[int]func(SegmentsMergedEvent)),
		chunks:   make(map[int]func(ChunkStatusEvent)),
	}
}

// SubscribeSegments registers fn for merged-segment events and returns the
// matching unsubscribe function.
func (b *Bus) SubscribeSegments(fn func(SegmentsMergedEvent)) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	b.segments[id] = fn
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.segments, id)
	}
}

// SubscribeChunks registers fn for chunk status events and returns the
// matching unsubscribe function.
func (b *Bus) SubscribeChunks(fn func(ChunkStatusEvent)) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	b.chunks[id] = fn
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.chunks, id)
	}
}

// PublishSegments delivers ev to all merged-segment subscribers.
func (b *Bus) PublishSegments(ev SegmentsMergedEvent) {
	for _, fn := range b.segmentHandlers() {
		fn(ev)
	}
}

// PublishChunk delivers ev to all chunk status subscribers.
func (b *Bus) PublishChunk(ev ChunkStatusEvent) {
	for _, fn := range b.chunkHandlers() {
		fn(ev)
	}
}

// segmentHandlers returns a snapshot of the current subscribers so dispatch
// runs outside the lock.
func (b *Bus) segmentHandlers() []func(SegmentsMergedEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]func(SegmentsMergedEvent), 0, len(b.segments))
	for _, fn := range b.segments {
		out = append(out, fn)
	}
	return out
}

func (b *Bus) chunkHandlers() []func(ChunkStatusEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]func(ChunkStatusEvent), 0, len(b.chunks))
	for _, fn := range b.chunks {
		out = append(out, fn)
	}
	return out
}
