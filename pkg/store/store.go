// Package store defines the persistence interface for consultation records.
//
// The pipeline itself keeps no on-disk state — all chunk and segment state is
// in-memory per session. Only the finalization outcome is persisted: the
// consultation is saved immediately at recording stop (with status pending
// when a residual final chunk is still processing) and reconciled later when
// the backend reports completion or failure.
//
// Implementations must be safe for concurrent use.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/solinvox/medscribe/pkg/types"
)

// ErrNotFound is returned by Get when no record exists for the consultation.
var ErrNotFound = errors.New("store: consultation not found")

// ConsultationRecord is the persisted outcome of a recording session.
type ConsultationRecord struct {
	// ConsultationID is the unique identifier of the consultation.
	ConsultationID string

	// AppointmentID and PatientRef are optional external identifiers.
	AppointmentID string
	PatientRef    string

	// Language is the consultation language code.
	Language string

	// TranscriptText is the best available transcript: the merged diarized
	// transcript when finalization completed, otherwise the real-time
	// transcript kept as a fallback.
	TranscriptText string

	// Status is the transcription lifecycle state.
	Status types.TranscriptionStatus

	// ErrorDetail describes the failure when Status is failed.
	ErrorDetail string

	// CreatedAt and UpdatedAt are set by the store.
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ConsultationStore persists consultation records.
type ConsultationStore interface {
	// Save upserts the record keyed by ConsultationID.
	Save(ctx context.Context, rec ConsultationRecord) error

	// UpdateTranscription transitions the record's transcription status. When
	// status is completed, text replaces the stored transcript; when failed,
	// the stored transcript is left untouched and errorDetail is recorded.
	UpdateTranscription(ctx context.Context, consultationID string, status types.TranscriptionStatus, text, errorDetail string) error

	// Get returns the record for consultationID, or [ErrNotFound].
	Get(ctx context.Context, consultationID string) (*ConsultationRecord, error)
}
