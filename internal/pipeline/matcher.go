package pipeline

import (
	"log/slog"
	"sort"

	"github.com/solinvox/medscribe/pkg/types"
)

// Default similarity weighting and confidence threshold for continuity
// matching. Empirically chosen — treat as tunable parameters, not constants
// with inherent meaning.
const (
	DefaultDurationWeight   = 0.5
	DefaultWordCountWeight  = 0.3
	DefaultSegmentLenWeight = 0.2
	DefaultMatchThreshold   = 0.5
)

// MatcherOption is a functional option for configuring a [Matcher].
type MatcherOption func(*Matcher)

// WithMatchThreshold sets the minimum similarity required to accept a
// cross-chunk speaker match. Default: 0.5.
func WithMatchThreshold(threshold float64) MatcherOption {
	return func(m *Matcher) {
		m.threshold = threshold
	}
}

// WithWeights sets the similarity component weights (speech duration, word
// count, average segment length). The weights should sum to 1.
func WithWeights(duration, wordCount, segmentLen float64) MatcherOption {
	return func(m *Matcher) {
		m.durationWeight = duration
		m.wordCountWeight = wordCount
		m.segmentLenWeight = segmentLen
	}
}

// Matcher re-identifies speakers across a chunk boundary. Given the
// tail-overlap statistics of the previous chunk (keyed by canonical ID) and
// the head-overlap statistics of the current chunk (keyed by chunk-local
// ID), it produces a relabeling map from chunk-local to canonical IDs.
//
// Matching is greedy by activity: current speakers are processed in
// descending order of their own overlap duration, and each takes the most
// similar not-yet-claimed previous speaker — provided the similarity clears
// the confidence threshold. Identity is judged purely by activity profile,
// never by raw label equality, because the backend may assign "speaker_0"
// to a different person in every chunk.
//
// Greedy-by-activity assignment is an approximation: it does not guarantee
// the maximum-weight bipartite matching when several current speakers
// contend for the same previous speaker. The approximation is accepted for
// real-time latency; the most active (best-measured) speakers are matched
// first, which bounds the damage.
//
// The Matcher is read-only after construction and safe for concurrent use.
type Matcher struct {
	durationWeight   float64
	wordCountWeight  float64
	segmentLenWeight float64
	threshold        float64
}

// NewMatcher returns a Matcher configured with the supplied options.
func NewMatcher(opts ...MatcherOption) *Matcher {
	m := &Matcher{
		durationWeight:   DefaultDurationWeight,
		wordCountWeight:  DefaultWordCountWeight,
		segmentLenWeight: DefaultSegmentLenWeight,
		threshold:        DefaultMatchThreshold,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Match computes the continuity map for one chunk transition. The returned
// map contains exactly one entry per current speaker: matched speakers map
// to the claimed canonical ID, unmatched speakers map to themselves (they
// are new, and their chunk-local ID becomes canonical from here on).
//
// When previous is empty — first chunk, or the previous chunk failed —
// every current speaker is new.
func (m *Matcher) Match(previous, current map[string]types.SpeakerStats) map[string]string {
	mapping := make(map[string]string, len(current))

	if len(previous) == 0 {
		for id := range current {
			mapping[id] = id
		}
		return mapping
	}

	// Most active current speakers first: their overlap stats are the most
	// reliably measured, so they get first pick from the pool.
	order := make([]string, 0, len(current))
	for id := range current {
		order = append(order, id)
	}
	sort.Slice(order, func(i, j int) bool {
		a, b := current[order[i]], current[order[j]]
		if a.Duration != b.Duration {
			return a.Duration > b.Duration
		}
		return order[i] < order[j]
	})

	claimed := make(map[string]bool, len(previous))

	for _, id := range order {
		cur := current[id]

		bestID := ""
		bestScore := 0.0
		for prevID, prev := range previous {
			if claimed[prevID] {
				continue
			}
			score := m.similarity(prev, cur)
			if score > bestScore || (score == bestScore && bestID != "" && prevID < bestID) {
				bestID = prevID
				bestScore = score
			}
		}

		if bestID != "" && bestScore > m.threshold {
			mapping[id] = bestID
			claimed[bestID] = true
			continue
		}

		// No confident match: designed fallback, not an error. The speaker
		// keeps its chunk-local ID as canonical.
		mapping[id] = id
		slog.Debug("continuity: no confident match, treating speaker as new",
			"speaker_id", id,
			"best_score", bestScore,
			"threshold", m.threshold,
		)
	}

	return mapping
}

// similarity scores how likely prev and cur describe the same person,
// weighting speech duration, word count, and average segment length.
func (m *Matcher) similarity(prev, cur types.SpeakerStats) float64 {
	return m.durationWeight*ratioSimilarity(prev.Duration, cur.Duration) +
		m.wordCountWeight*ratioSimilarity(float64(prev.WordCount), float64(cur.WordCount)) +
		m.segmentLenWeight*ratioSimilarity(prev.AvgSegmentLength(), cur.AvgSegmentLength())
}

// ratioSimilarity is 1 − |a−b|/max(a,b), and 0 when the max is 0.
func ratioSimilarity(a, b float64) float64 {
	max := a
	if b > max {
		max = b
	}
	if max <= 0 {
		return 0
	}
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	return 1 - diff/max
}
