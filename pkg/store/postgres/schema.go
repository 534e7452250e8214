package postgres

import (
	"context"
	"fmt"
)

// schema is the consultations table DDL. Idempotent so startup can always
// apply it.
const schema = `
CREATE TABLE IF NOT EXISTS consultations (
    consultation_id TEXT PRIMARY KEY,
    appointment_id  TEXT NOT NULL DEFAULT '',
    patient_ref     TEXT NOT NULL DEFAULT '',
    language        TEXT NOT NULL DEFAULT '',
    transcript_text TEXT NOT NULL DEFAULT '',
    status          TEXT NOT NULL,
    error_detail    TEXT NOT NULL DEFAULT '',
    created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS consultations_status_idx ON consultations (status);
`

// ensureSchema applies the DDL.
func (s *Store) ensureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("consultation store: ensure schema: %w", err)
	}
	return nil
}
