// Package mock provides an in-memory mock implementation of the
// [store.ConsultationStore] interface for use in unit tests.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/solinvox/medscribe/pkg/store"
	"github.com/solinvox/medscribe/pkg/types"
)

// UpdateCall records the arguments of one UpdateTranscription invocation.
type UpdateCall struct {
	ConsultationID string
	Status         types.TranscriptionStatus
	Text           string
	ErrorDetail    string
}

// Store is a mock implementation of [store.ConsultationStore] backed by a
// map. Set the Error fields to make calls fail.
type Store struct {
	mu sync.Mutex

	records map[string]store.ConsultationRecord

	// SaveError is returned by Save.
	SaveError error

	// UpdateError is returned by UpdateTranscription.
	UpdateError error

	// SaveCalls records all Save invocations in order.
	SaveCalls []store.ConsultationRecord

	// UpdateCalls records all UpdateTranscription invocations in order.
	UpdateCalls []UpdateCall
}

// New creates an empty mock Store.
func New() *Store {
	return &Store{records: make(map[string]store.ConsultationRecord)}
}

// Save implements [store.ConsultationStore].
func (s *Store) Save(_ context.Context, rec store.ConsultationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SaveCalls = append(s.SaveCalls, rec)
	if s.SaveError != nil {
		return s.SaveError
	}
	now := time.Now()
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
	s.UpdateCalls = append(s.UpdateCalls, UpdateCall{
		ConsultationID: consultationID,
		Status:         status,
		Text:           text,
		ErrorDetail:    errorDetail,
	})
	if s.UpdateError != nil {
		return s.UpdateError
	}
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
	rec.UpdatedAt = time.Now()
	s.records[consultationID] = rec
	return nil
}

// Get implements [store.ConsultationStore].
func (s *Store) Get(_ context.Context, consultationID string) (*store.ConsultationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[consultationID]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := rec
	return &out, nil
}
