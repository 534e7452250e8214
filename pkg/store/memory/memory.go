// Package memory provides a map-backed [store.ConsultationStore] for
// deployments without a database, typically local development. Records do
// not survive a restart.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/solinvox/medscribe/pkg/store"
	"github.com/solinvox/medscribe/pkg/types"
)

// Store is an in-memory consultation store. Safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	records map[string]store.ConsultationRecord
}

// New creates an empty Store.
func New() *Store {
	return &Store{records: make(map[string]store.ConsultationRecord)}
}

// Save implements [store.ConsultationStore].
func (s *Store) Save(_ context.Context, rec store.ConsultationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	if existing, ok := s.records[rec.ConsultationID]; ok {
		rec.CreatedAt = existing.CreatedAt
	} else {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	s.records[rec.ConsultationID] = rec
	return nil
}

// UpdateTranscription implements [store.ConsultationStore].
func (s *Store) UpdateTranscription(_ context.Context, consultationID string, status types.TranscriptionStatus, text, errorDetail string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[consultationID]
	if !ok {
		return store.ErrNotFound
	}
	rec.Status = status
	switch status {
	case types.StatusCompleted:
		rec.TranscriptText = text
		rec.ErrorDetail = ""
	case types.StatusFailed:
		rec.ErrorDetail = errorDetail
	}
	rec.UpdatedAt = time.Now().UTC()
	s.records[consultationID] = rec
	return nil
}

// Get implements [store.ConsultationStore].
func (s *Store) Get(_ context.Context, consultationID string) (*store.ConsultationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[consultationID]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := rec
	return &out, nil
}
