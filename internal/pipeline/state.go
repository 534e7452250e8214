package pipeline

import (
	"sort"
	"sync"

	"github.com/solinvox/medscribe/pkg/types"
)

// State holds all mutable per-recording pipeline state behind one mutex:
// processing progress, the in-flight flag, the growing global transcript,
// and the tail-overlap statistics that seed the next continuity match.
//
// Only the single in-flight chunk mutates State, so readers always see a
// consistent snapshot between chunk completions. All methods are safe for
// concurrent use.
type State struct {
	mu sync.Mutex

	// lastProcessedIndex is the highest chunk index that has finished
	// (completed or failed). -1 before any chunk has been dispatched.
	lastProcessedIndex int

	// inFlight is true while a chunk is being diarized. At most one chunk
	// is ever in flight.
	inFlight bool

	segments []types.DiarizedSegment

	// tailStats holds the previous chunk's end-overlap statistics keyed by
	// canonical speaker ID. Nil after a failed chunk — the overlap audio was
	// never diarized, so the next match has nothing to compare against.
	tailStats map[string]types.SpeakerStats

	consultationType string

	chunks map[int]ChunkRecord
}

// NewState returns the initial state of a fresh recording.
func NewState() *State {
	return &State{
		lastProcessedIndex: -1,
		chunks:             make(map[int]ChunkRecord),
	}
}

// TryBeginFlight atomically claims the in-flight slot. It returns false when
// another chunk is already being diarized.
func (st *State) TryBeginFlight() bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.inFlight {
		return false
	}
	st.inFlight = true
	return true
}

// EndFlight releases the in-flight slot.
func (st *State) EndFlight() {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.inFlight = false
}

// InFlight reports whether a chunk is currently being diarized.
func (st *State) InFlight() bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.inFlight
}

// LastProcessedIndex returns the highest finished chunk index, -1 initially.
func (st *State) LastProcessedIndex() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.lastProcessedIndex
}

// Segments returns a copy of the global transcript, sorted by start time.
func (st *State) Segments() []types.DiarizedSegment {
	st.mu.Lock()
	defer st.mu.Unlock()
	out := make([]types.DiarizedSegment, len(st.segments))
	copy(out, st.segments)
	return out
}

// SpeakerCount returns the number of distinct canonical speakers in the
// transcript so far.
func (st *State) SpeakerCount() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	seen := make(map[string]struct{})
	for _, seg := range st.segments {
		seen[seg.SpeakerID] = struct{}{}
	}
	return len(seen)
}

// TailStats returns a copy of the previous chunk's end-overlap statistics,
// or nil when there are none (fresh recording, or previous chunk failed).
func (st *State) TailStats() map[string]types.SpeakerStats {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.tailStats == nil {
		return nil
	}
	out := make(map[string]types.SpeakerStats, len(st.tailStats))
	for k, v := range st.tailStats {
		out[k] = v
	}
	return out
}

// ConsultationType returns the backend-detected consultation type, empty
// until a chunk reports one.
func (st *State) ConsultationType() string {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.consultationType
}

// ChunkRecords returns the status of every dispatched chunk, ordered by
// index.
func (st *State) ChunkRecords() []ChunkRecord {
	st.mu.Lock()
	defer st.mu.Unlock()
	out := make([]ChunkRecord, 0, len(st.chunks))
	for _, rec := range st.chunks {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

// setChunk records a chunk status transition.
func (st *State) setChunk(rec ChunkRecord) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.chunks[rec.Index] = rec
}

// completeChunk commits a successful chunk: the merged transcript replaces
// the previous one, tailStats seed the next continuity match, and progress
// advances.
func (st *State) completeChunk(index int, merged []types.DiarizedSegment, tailStats map[string]types.SpeakerStats, consultationType string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.segments = merged
	st.tailStats = tailStats
	st.lastProcessedIndex = index
	if consultationType != "" {
		st.consultationType = consultationType
	}
	st.chunks[index] = ChunkRecord{Index: index, Status: ChunkCompleted}
}

// failChunk commits a failed chunk. Progress still advances — a gap in the
// transcript is preferable to a stalled recording — and tailStats are
// cleared because the overlap audio was never diarized.
func (st *State) failChunk(index int, err error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.tailStats = nil
	st.lastProcessedIndex = index
	st.chunks[index] = ChunkRecord{Index: index, Status: ChunkFailed, Err: err.Error()}
}
