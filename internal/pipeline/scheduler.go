package pipeline

// Scheduler decides when the next chunk becomes eligible for processing.
// Eligibility is purely a wall-clock question — chunk n may start once the
// recording has run past its end boundary at (n+1)·D seconds. The companion
// single-flight constraint (never start chunk n+1 while chunk n is still
// being diarized) lives on [State], which owns the in-flight flag; the
// session combines both checks on every tick.
type Scheduler struct {
	chunkSeconds float64
}

// NewScheduler creates a Scheduler for the given nominal chunk duration.
// Non-positive durations fall back to [DefaultChunkSeconds].
func NewScheduler(chunkSeconds float64) *Scheduler {
	if chunkSeconds <= 0 {
		chunkSeconds = DefaultChunkSeconds
	}
	return &Scheduler{chunkSeconds: chunkSeconds}
}

// ShouldProcessNext reports whether elapsed recording time has crossed the
// boundary for chunk lastProcessedIndex+1. lastProcessedIndex is -1 before
// any chunk has completed.
func (s *Scheduler) ShouldProcessNext(elapsedSeconds float64, lastProcessedIndex int) bool {
	next := lastProcessedIndex + 1
	return elapsedSeconds >= float64(next+1)*s.chunkSeconds
}
