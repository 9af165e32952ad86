package vectorindex

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/talentsift/talentsift/fault"
)

// PostgresIndex keeps vectors in the resume_vectors table with an ivfflat
// cosine index.
type PostgresIndex struct {
	db     *pgxpool.Pool
	logger *slog.Logger
}

func NewPostgresIndex(db *pgxpool.Pool, logger *slog.Logger) *PostgresIndex {
	return &PostgresIndex{db: db, logger: logger}
}

func (ix *PostgresIndex) Upsert(ctx context.Context, id uuid.UUID, embedding pgvector.Vector, skills, titles []string) error {
	_, err := ix.db.Exec(ctx, `
		INSERT INTO resume_vectors (resume_id, embedding, skills, titles, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (resume_id) DO UPDATE
		SET embedding = EXCLUDED.embedding,
		    skills = EXCLUDED.skills,
		    titles = EXCLUDED.titles,
		    updated_at = now()`,
		id, embedding, skills, titles)
	if err != nil {
		return fault.Transient(err, "vector upsert")
	}
	return nil
}

func (ix *PostgresIndex) Query(ctx context.Context, embedding pgvector.Vector, k int, skills []string) ([]Candidate, error) {
	if skills == nil {
		skills = []string{}
	}
	rows, err := ix.db.Query(ctx, `
		SELECT resume_id, 1 - (embedding <=> $1) AS similarity
		FROM resume_vectors
		WHERE cardinality($2::text[]) = 0 OR skills && $2
		ORDER BY embedding <=> $1, resume_id
		LIMIT $3`,
		embedding, skills, k)
	if err != nil {
		return nil, fault.Transient(err, "vector query")
	}
	defer rows.Close()

	var out []Candidate
	for rows.Next() {
		var c Candidate
		if err := rows.Scan(&c.ResumeID, &c.Similarity); err != nil {
			return nil, fault.Transient(err, "vector query")
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (ix *PostgresIndex) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := ix.db.Exec(ctx, `DELETE FROM resume_vectors WHERE resume_id = $1`, id)
	if err != nil {
		return fault.Transient(err, "vector delete")
	}
	return nil
}

func (ix *PostgresIndex) ListIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := ix.db.Query(ctx, `SELECT resume_id FROM resume_vectors`)
	if err != nil {
		return nil, fault.Transient(err, "vector list")
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fault.Transient(err, "vector list")
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ReindexIfNeeded rebuilds the ivfflat index when the vector count has
// drifted far from the list count it was built for. Lists follow the
// sqrt-of-rows heuristic with a floor of 100.
func (ix *PostgresIndex) ReindexIfNeeded(ctx context.Context) error {
	var currentLists int
	err := ix.db.QueryRow(ctx, `
		SELECT reloptions[1]::text::int
		FROM pg_class c
		LEFT JOIN pg_index i ON c.oid = i.indexrelid
		WHERE c.relname = 'idx_resume_vectors_embedding'
		AND reloptions IS NOT NULL
	`).Scan(&currentLists)
	if err != nil {
		// Index doesn't exist yet
		return ix.rebuildIndex(ctx)
	}

	count, err := ix.count(ctx)
	if err != nil {
		return err
	}
	optimalLists := optimalListCount(count)

	if math.Abs(float64(currentLists-optimalLists)) > float64(optimalLists)*0.5 {
		ix.logger.Info("rebuilding vector index due to significant size change",
			slog.Int("current_lists", currentLists),
			slog.Int("optimal_lists", optimalLists))
		return ix.rebuildIndex(ctx)
	}
	return nil
}

func (ix *PostgresIndex) rebuildIndex(ctx context.Context) error {
	count, err := ix.count(ctx)
	if err != nil {
		return err
	}
	lists := optimalListCount(count)

	if _, err := ix.db.Exec(ctx, "DROP INDEX IF EXISTS idx_resume_vectors_embedding"); err != nil {
		return fmt.Errorf("failed to drop existing index: %w", err)
	}

	createIndexSQL := fmt.Sprintf(`
		CREATE INDEX idx_resume_vectors_embedding
		ON resume_vectors
		USING ivfflat (embedding vector_cosine_ops)
		WITH (lists = %d)
	`, lists)
	if _, err := ix.db.Exec(ctx, createIndexSQL); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	ix.logger.Info("vector index rebuilt",
		slog.Int("vector_count", count),
		slog.Int("list_count", lists))
	return nil
}

func (ix *PostgresIndex) count(ctx context.Context) (int, error) {
	var count int
	if err := ix.db.QueryRow(ctx, "SELECT COUNT(*) FROM resume_vectors").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count vectors: %w", err)
	}
	return count, nil
}

func optimalListCount(count int) int {
	lists := int(math.Sqrt(float64(count)))
	if lists < 100 {
		lists = 100
	}
	return lists
}
