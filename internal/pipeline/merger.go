package pipeline

import (
	"sort"
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"

	"github.com/solinvox/medscribe/pkg/types"
)

const (
	// DefaultDedupToleranceSeconds is the maximum start-time difference under
	// which two same-speaker segments are considered candidates for the same
	// utterance.
	DefaultDedupToleranceSeconds = 2.0

	// dedupTextSimilarity is the Jaro-Winkler floor above which two
	// normalized texts count as near-identical even when neither contains
	// the other (the two diarization passes over the overlap window rarely
	// produce byte-identical transcriptions).
	dedupTextSimilarity = 0.92
)

// MergerOption is a functional option for configuring a [Merger].
type MergerOption func(*Merger)

// WithDedupTolerance sets the start-time tolerance in seconds for duplicate
// detection. Default: 2.0.
func WithDedupTolerance(seconds float64) MergerOption {
	return func(m *Merger) {
		m.tolerance = seconds
	}
}

// Merger folds one chunk's diarized segments into the global transcript.
// Per segment it: relabels the speaker via the continuity map (unmapped IDs
// pass through — they are new speakers), shifts chunk-relative timestamps
// onto the global timeline, and drops segments that duplicate speech already
// recorded. Duplicates exist by construction: the overlap window between
// chunk n-1 and chunk n is diarized twice, producing two near-identical
// transcriptions of the same utterance that must collapse to one.
//
// The Merger is read-only after construction and safe for concurrent use.
type Merger struct {
	tolerance float64
}

// NewMerger returns a Merger configured with the supplied options.
func NewMerger(opts ...MergerOption) *Merger {
	m := &Merger{tolerance: DefaultDedupToleranceSeconds}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Merge returns global extended with the non-duplicate segments of chunk,
// sorted by start time. global itself is not mutated. chunkStart is the
// chunk's offset on the recording timeline; mapping is the continuity map
// for this transition.
//
// Merge is idempotent: merging the same chunk twice yields the same list as
// merging it once.
func (m *Merger) Merge(global []types.DiarizedSegment, chunk []types.DiarizedSegment, mapping map[string]string, chunkStart float64) []types.DiarizedSegment {
	merged := make([]types.DiarizedSegment, len(global), len(global)+len(chunk))
	copy(merged, global)

	for _, seg := range chunk {
		if canonical, ok := mapping[seg.SpeakerID]; ok {
			seg.SpeakerID = canonical
		}
		seg.StartTime += chunkStart
		seg.EndTime += chunkStart

		// Duplicates are judged against the transcript as it stood before
		// this chunk. Two near-identical utterances within the chunk itself
		// are the backend's own segmentation and both pass through.
		if m.isDuplicate(global, seg) {
			continue
		}
		merged = append(merged, seg)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].StartTime < merged[j].StartTime
	})
	return merged
}

// isDuplicate reports whether candidate repeats an utterance already in
// list (the pre-merge global transcript): same canonical speaker, start
// times within the tolerance, and near-identical normalized text.
func (m *Merger) isDuplicate(list []types.DiarizedSegment, candidate types.DiarizedSegment) bool {
	candText := normalizeText(candidate.Text)

	for _, existing := range list {
		if existing.SpeakerID != candidate.SpeakerID {
			continue
		}
		delta := existing.StartTime - candidate.StartTime
		if delta < 0 {
			delta = -delta
		}
		if delta >= m.tolerance {
			continue
		}
		if sameUtterance(normalizeText(existing.Text), candText) {
			return true
		}
	}
	return false
}

// sameUtterance reports whether two normalized texts describe the same
// speech: equal, one contains the other, or Jaro-Winkler similarity above
// the near-identical floor.
func sameUtterance(a, b string) bool {
	if a == "" || b == "" {
		return a == b
	}
	if a == b {
		return true
	}
	if strings.Contains(a, b) || strings.Contains(b, a) {
		return true
	}
	return matchr.JaroWinkler(a, b, false) >= dedupTextSimilarity
}

// normalizeText lowercases, strips punctuation, and collapses whitespace so
// the duplicate test is insensitive to the cosmetic differences between two
// diarization passes.
func normalizeText(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsNumber(r):
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// FormatTranscript renders segments as one "Speaker: text" line per segment,
// in list order. Used for the fallback transcript persisted at stop time.
func FormatTranscript(segments []types.DiarizedSegment) string {
	var b strings.Builder
	for i, seg := range segments {
		if i > 0 {
			b.WriteByte('\n')
		}
		speaker := seg.SpeakerID
		if seg.SpeakerRole != "" {
			speaker = seg.SpeakerRole
		}
		b.WriteString(speaker)
		b.WriteString(": ")
		b.WriteString(seg.Text)
	}
	return b.String()
}
