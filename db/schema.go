package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// EnsureSchema creates the tables this service owns. The resumes table is
// the source of truth; resume_vectors is derived and rebuildable.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool, embeddingDim int) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS resumes (
			id             UUID PRIMARY KEY,
			filename       TEXT NOT NULL,
			raw_key        TEXT NOT NULL,
			processed_key  TEXT,
			content_hash   BYTEA NOT NULL,
			candidate_name TEXT NOT NULL DEFAULT '',
			skills         TEXT[] NOT NULL DEFAULT '{}',
			titles         TEXT[] NOT NULL DEFAULT '{}',
			experience     JSONB,
			status         TEXT NOT NULL,
			version        BIGINT NOT NULL DEFAULT 1,
			last_error     TEXT NOT NULL DEFAULT '',
			created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_resumes_content_hash ON resumes (content_hash)`,
		`CREATE INDEX IF NOT EXISTS idx_resumes_status ON resumes (status)`,
		`CREATE TABLE IF NOT EXISTS tasks (
			id           UUID PRIMARY KEY,
			resume_id    UUID NOT NULL,
			attempts     INT NOT NULL DEFAULT 0,
			visible_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
			lease_token  UUID,
			leased_until TIMESTAMPTZ,
			last_error   TEXT NOT NULL DEFAULT '',
			enqueued_at  TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_visible_at ON tasks (visible_at)`,
		`CREATE TABLE IF NOT EXISTS dead_tasks (
			id               UUID PRIMARY KEY,
			resume_id        UUID NOT NULL,
			attempts         INT NOT NULL,
			last_error       TEXT NOT NULL DEFAULT '',
			enqueued_at      TIMESTAMPTZ NOT NULL,
			dead_lettered_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS resume_vectors (
			resume_id  UUID PRIMARY KEY,
			embedding  vector(%d) NOT NULL,
			skills     TEXT[] NOT NULL DEFAULT '{}',
			titles     TEXT[] NOT NULL DEFAULT '{}',
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, embeddingDim),
	}

	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to ensure schema: %v", err)
		}
	}
	return nil
}
