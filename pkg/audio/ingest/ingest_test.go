package ingest

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRecorder_RequiresPositiveByteRate(t *testing.T) {
	if _, err := NewRecorder(0); err == nil {
		t.Error("NewRecorder(0) returned nil error")
	}
	if _, err := NewRecorder(-1); err == nil {
		t.Error("NewRecorder(-1) returned nil error")
	}
}

func TestCapture_ElapsedTracksIngestedAudio(t *testing.T) {
	rec, err := NewRecorder(100)
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}
	cap, err := rec.Start(context.Background(), "c-1")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	if got := cap.Elapsed(); got != 0 {
		t.Errorf("Elapsed = %v before any audio, want 0", got)
	}

	ing := cap.(*Capture)
	if err := ing.Ingest(make([]byte, 250)); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if got := cap.Elapsed(); got != 2500*time.Millisecond {
		t.Errorf("Elapsed = %v, want 2.5s", got)
	}
	if got := cap.Buffer().BufferedSeconds(); got != 2.5 {
		t.Errorf("BufferedSeconds = %v, want 2.5", got)
	}
}

func TestCapture_IngestAfterClose(t *testing.T) {
	rec, _ := NewRecorder(100)
	cap, err := rec.Start(context.Background(), "c-1")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	if err := cap.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := cap.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	if err := cap.(*Capture).Ingest([]byte{1, 2, 3}); !errors.Is(err, ErrCaptureClosed) {
		t.Errorf("Ingest after close = %v, want ErrCaptureClosed", err)
	}
}
