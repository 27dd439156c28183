package postgres

import (
	"context"
	"fmt"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS analyses (
	id              UUID PRIMARY KEY,
	batch_id        UUID,
	file_name       TEXT NOT NULL,
	status          TEXT NOT NULL,
	error           TEXT NOT NULL DEFAULT '',
	failure_kind    TEXT NOT NULL DEFAULT '',
	raw_preview     TEXT NOT NULL DEFAULT '',
	parse_tier      TEXT NOT NULL DEFAULT '',
	required_skills TEXT NOT NULL DEFAULT '',
	role_level      TEXT NOT NULL DEFAULT '',
	overall_score   INTEGER,
	analysis        JSONB,
	created_at      TIMESTAMPTZ NOT NULL,
	updated_at      TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS analyses_batch_id_idx ON analyses (batch_id);
CREATE INDEX IF NOT EXISTS analyses_status_updated_idx ON analyses (status, updated_at);
`

// EnsureSchema creates the analyses table and its indexes when missing.
func EnsureSchema(ctx context.Context, pool PgxPool) error {
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("op=postgres.ensure_schema: %w", err)
	}
	return nil
}
