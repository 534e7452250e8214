// Package postgres provides a PostgreSQL-backed implementation of the
// [store.ConsultationStore] interface using a pgx connection pool.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/solinvox/medscribe/pkg/store"
	"github.com/solinvox/medscribe/pkg/types"
)

// Store implements store.ConsultationStore backed by PostgreSQL.
// All methods are safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// New connects to PostgreSQL using dsn and ensures the consultations table
// exists. The returned Store owns the pool; call [Store.Close] on shutdown.
func New(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("consultation store: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("consultation store: ping: %w", err)
	}

	s := &Store{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Ping probes connectivity. Used by the readiness checker.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Save implements [store.ConsultationStore]. It upserts the record keyed by
// consultation_id.
func (s *Store) Save(ctx context.Context, rec store.ConsultationRecord) error {
	const q = `
		INSERT INTO consultations
		    (consultation_id, appointment_id, patient_ref, language, transcript_text, status, error_detail, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
		ON CONFLICT (consultation_id) DO UPDATE SET
		    appointment_id  = EXCLUDED.appointment_id,
		    patient_ref     = EXCLUDED.patient_ref,
		    language        = EXCLUDED.language,
		    transcript_text = EXCLUDED.transcript_text,
		    status          = EXCLUDED.status,
		    error_detail    = EXCLUDED.error_detail,
		    updated_at      = now()`

	_, err := s.pool.Exec(ctx, q,
		rec.ConsultationID,
		rec.AppointmentID,
		rec.PatientRef,
		rec.Language,
		rec.TranscriptText,
		string(rec.Status),
		rec.ErrorDetail,
	)
	if err != nil {
		return fmt.Errorf("consultation store: save: %w", err)
	}
	return nil
}

// UpdateTranscription implements [store.ConsultationStore]. A completed
// status replaces the transcript text; a failed status records the error and
// retains the previously saved transcript as the fallback.
func (s *Store) UpdateTranscription(ctx context.Context, consultationID string, status types.TranscriptionStatus, text, errorDetail string) error {
	var (
		tag  string
		err  error
		exec = func(q string, args ...any) (int64, error) {
			ct, e := s.pool.Exec(ctx, q, args...)
			return ct.RowsAffected(), e
		}
	)

	var affected int64
	switch status {
	case types.StatusCompleted:
		tag = "completed"
		affected, err = exec(`
			UPDATE consultations
			SET    status = $2, transcript_text = $3, error_detail = '', updated_at = now()
			WHERE  consultation_id = $1`,
			consultationID, string(status), text)
	case types.StatusFailed:
		tag = "failed"
		affected, err = exec(`
			UPDATE consultations
			SET    status = $2, error_detail = $3, updated_at = now()
			WHERE  consultation_id = $1`,
			consultationID, string(status), errorDetail)
	default:
		tag = "status"
		affected, err = exec(`
			UPDATE consultations
			SET    status = $2, updated_at = now()
			WHERE  consultation_id = $1`,
			consultationID, string(status))
	}
	if err != nil {
		return fmt.Errorf("consultation store: update %s: %w", tag, err)
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// Get implements [store.ConsultationStore].
func (s *Store) Get(ctx context.Context, consultationID string) (*store.ConsultationRecord, error) {
	const q = `
		SELECT consultation_id, appointment_id, patient_ref, language, transcript_text, status, error_detail, created_at, updated_at
		FROM   consultations
		WHERE  consultation_id = $1`

	var (
		rec    store.ConsultationRecord
		status string
	)
	err := s.pool.QueryRow(ctx, q, consultationID).Scan(
		&rec.ConsultationID,
		&rec.AppointmentID,
		&rec.PatientRef,
		&rec.Language,
		&rec.TranscriptText,
		&status,
		&rec.ErrorDetail,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("consultation store: get: %w", err)
	}
	rec.Status = types.TranscriptionStatus(status)
	return &rec, nil
}
