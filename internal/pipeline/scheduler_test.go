package pipeline

import "testing"

func TestShouldProcessNext(t *testing.T) {
	s := NewScheduler(60)

	tests := []struct {
		name               string
		elapsed            float64
		lastProcessedIndex int
		want               bool
	}{
		{"fresh recording before first boundary", 59.9, -1, false},
		{"first boundary exactly", 60, -1, true},
		{"past first boundary", 75, -1, true},
		{"second chunk not yet due", 119, 0, false},
		{"second boundary", 120, 0, true},
		{"far behind after failures", 400, 2, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := s.ShouldProcessNext(tc.elapsed, tc.lastProcessedIndex)
			if got != tc.want {
				t.Errorf("ShouldProcessNext(%v, %d) = %v, want %v",
					tc.elapsed, tc.lastProcessedIndex, got, tc.want)
			}
		})
	}
}

func TestNewSchedulerDefaults(t *testing.T) {
	s := NewScheduler(0)
	if s.ShouldProcessNext(DefaultChunkSeconds-1, -1) {
		t.Error("chunk due before the default boundary")
	}
	if !s.ShouldProcessNext(DefaultChunkSeconds, -1) {
		t.Error("chunk not due at the default boundary")
	}
}
