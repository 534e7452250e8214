package pipeline

import (
	"strings"

	"github.com/solinvox/medscribe/pkg/types"
)

// OverlapStats aggregates per-speaker activity over the window
// [windowStart, windowEnd), in the same time base as the segments. Segments
// fully outside the window are excluded; a segment straddling a window edge
// contributes only the overlapping portion of its duration, while its word
// and segment counts are attributed whole.
//
// The diarization backend normally computes overlap statistics itself; this
// local fallback covers responses that omit them, so continuity matching
// never silently degrades to "everyone is new".
func OverlapStats(segments []types.DiarizedSegment, windowStart, windowEnd float64) map[string]types.SpeakerStats {
	stats := make(map[string]types.SpeakerStats)

	for _, seg := range segments {
		from := seg.StartTime
		if windowStart > from {
			from = windowStart
		}
		to := seg.EndTime
		if windowEnd < to {
			to = windowEnd
		}
		if to <= from {
			continue
		}

		s := stats[seg.SpeakerID]
		s.SpeakerID = seg.SpeakerID
		s.Duration += to - from
		s.WordCount += len(strings.Fields(seg.Text))
		s.SegmentCount++
		stats[seg.SpeakerID] = s
	}

	return stats
}
