package pipeline

import (
	"errors"
	"sync"
	"testing"

	"github.com/solinvox/medscribe/pkg/types"
)

func TestState_FlightSlotIsExclusive(t *testing.T) {
	st := NewState()

	if !st.TryBeginFlight() {
		t.Fatal("first TryBeginFlight = false, want true")
	}
	if st.TryBeginFlight() {
		t.Fatal("second TryBeginFlight = true, want false")
	}
	st.EndFlight()
	if !st.TryBeginFlight() {
		t.Fatal("TryBeginFlight after EndFlight = false, want true")
	}
}

func TestState_FlightSlotUnderContention(t *testing.T) {
	st := NewState()

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if st.TryBeginFlight() {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("wins = %d, want 1", wins)
	}
}

func TestState_CompleteChunkAdvances(t *testing.T) {
	st := NewState()
	if got := st.LastProcessedIndex(); got != -1 {
		t.Fatalf("initial LastProcessedIndex = %d, want -1", got)
	}

	segments := []types.DiarizedSegment{{SpeakerID: "doc", Text: "hello", StartTime: 1, EndTime: 2}}
	tail := map[string]types.SpeakerStats{"doc": {SpeakerID: "doc", Duration: 1}}
	st.completeChunk(0, segments, tail, "intake")

	if got := st.LastProcessedIndex(); got != 0 {
		t.Errorf("LastProcessedIndex = %d, want 0", got)
	}
	if got := st.ConsultationType(); got != "intake" {
		t.Errorf("ConsultationType = %q, want intake", got)
	}
	if got := st.TailStats(); len(got) != 1 {
		t.Errorf("TailStats size = %d, want 1", len(got))
	}
	if got := st.SpeakerCount(); got != 1 {
		t.Errorf("SpeakerCount = %d, want 1", got)
	}
}

func TestState_FailChunkAdvancesAndClearsTail(t *testing.T) {
	st := NewState()
	st.completeChunk(0, nil, map[string]types.SpeakerStats{"doc": {}}, "")

	st.failChunk(1, errors.New("backend unavailable"))

	if got := st.LastProcessedIndex(); got != 1 {
		t.Errorf("LastProcessedIndex = %d, want 1", got)
	}
	if got := st.TailStats(); got != nil {
		t.Errorf("TailStats = %v, want nil", got)
	}

	recs := st.ChunkRecords()
	if len(recs) != 2 {
		t.Fatalf("ChunkRecords size = %d, want 2", len(recs))
	}
	if recs[1].Status != ChunkFailed || recs[1].Err == "" {
		t.Errorf("failed record = %+v", recs[1])
	}
}

func TestState_SegmentsReturnsCopy(t *testing.T) {
	st := NewState()
	st.completeChunk(0, []types.DiarizedSegment{{SpeakerID: "doc", Text: "hi"}}, nil, "")

	snap := st.Segments()
	snap[0].Text = "mutated"

	if got := st.Segments()[0].Text; got != "hi" {
		t.Errorf("internal segment text = %q, want hi", got)
	}
}
