package resume

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/talentsift/talentsift/fault"
)

const recordColumns = `id, filename, raw_key, processed_key, content_hash, candidate_name,
	skills, titles, experience, status, version, last_error, created_at, updated_at`

// PostgresStore implements Store over the resumes table.
type PostgresStore struct {
	db     *pgxpool.Pool
	logger *slog.Logger
}

func NewPostgresStore(db *pgxpool.Pool, logger *slog.Logger) *PostgresStore {
	return &PostgresStore{db: db, logger: logger}
}

func (s *PostgresStore) Create(ctx context.Context, rec *Record) error {
	experience, err := json.Marshal(rec.Experience)
	if err != nil {
		return fmt.Errorf("failed to marshal experience: %v", err)
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO resumes (id, filename, raw_key, content_hash, candidate_name, skills, titles, experience, status, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 1)`,
		rec.ID, rec.Filename, rec.RawKey, rec.ContentHash, rec.CandidateName,
		rec.Skills, rec.Titles, experience, string(rec.Status))
	if err != nil {
		s.logger.Error("failed to create resume record",
			slog.String("resume_id", rec.ID.String()),
			slog.String("error", err.Error()))
		return fault.Transient(err, "create record")
	}
	rec.Version = 1
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id uuid.UUID) (*Record, error) {
	row := s.db.QueryRow(ctx, `SELECT `+recordColumns+` FROM resumes WHERE id = $1`, id)
	return scanRecord(row)
}

func (s *PostgresStore) FindByHash(ctx context.Context, hash []byte) (*Record, error) {
	row := s.db.QueryRow(ctx, `SELECT `+recordColumns+` FROM resumes WHERE content_hash = $1 ORDER BY created_at LIMIT 1`, hash)
	return scanRecord(row)
}

func (s *PostgresStore) Transition(ctx context.Context, id uuid.UUID, from, to Status, version int64) (*Record, error) {
	if !from.CanTransition(to) {
		return nil, fault.Invalid("illegal status transition %s -> %s", from, to)
	}
	row := s.db.QueryRow(ctx, `
		UPDATE resumes
		SET status = $1, version = version + 1, updated_at = now()
		WHERE id = $2 AND status = $3 AND version = $4
		RETURNING `+recordColumns,
		string(to), id, string(from), version)
	rec, err := scanRecord(row)
	if err != nil {
		return nil, s.conflictOrNotFound(ctx, id, err, "transition")
	}
	return rec, nil
}

func (s *PostgresStore) SaveExtraction(ctx context.Context, id uuid.UUID, version int64, fields Fields, processedKey string) (*Record, error) {
	experience, err := json.Marshal(fields.Experience)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal experience: %v", err)
	}
	row := s.db.QueryRow(ctx, `
		UPDATE resumes
		SET candidate_name = $1, skills = $2, titles = $3, experience = $4,
		    processed_key = $5, status = $6, version = version + 1, updated_at = now()
		WHERE id = $7 AND status = $8 AND version = $9
		RETURNING `+recordColumns,
		fields.CandidateName, fields.Skills, fields.Titles, experience,
		processedKey, string(StatusEmbedding), id, string(StatusExtracting), version)
	rec, err := scanRecord(row)
	if err != nil {
		return nil, s.conflictOrNotFound(ctx, id, err, "save extraction")
	}
	return rec, nil
}

func (s *PostgresStore) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE resumes
		SET status = $1, last_error = $2, version = version + 1, updated_at = now()
		WHERE id = $3 AND status NOT IN ($4, $5)`,
		string(StatusFailed), reason, id, string(StatusIndexed), string(StatusFailed))
	if err != nil {
		return fault.Transient(err, "mark failed")
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("record %s already terminal: %w", id, fault.ErrConflict)
	}
	return nil
}

func (s *PostgresStore) UpdateMetadata(ctx context.Context, id uuid.UUID, version int64, candidateName *string) (*Record, error) {
	if candidateName == nil {
		return s.Get(ctx, id)
	}
	row := s.db.QueryRow(ctx, `
		UPDATE resumes
		SET candidate_name = $1, version = version + 1, updated_at = now()
		WHERE id = $2 AND version = $3
		RETURNING `+recordColumns,
		*candidateName, id, version)
	rec, err := scanRecord(row)
	if err != nil {
		return nil, s.conflictOrNotFound(ctx, id, err, "update metadata")
	}
	return rec, nil
}

func (s *PostgresStore) ResetForReprocess(ctx context.Context, id uuid.UUID, rawKey string, hash []byte, filename string) (*Record, error) {
	row := s.db.QueryRow(ctx, `
		UPDATE resumes
		SET raw_key = $1, content_hash = $2, filename = $3, processed_key = NULL,
		    status = $4, last_error = '', version = version + 1, updated_at = now()
		WHERE id = $5
		RETURNING `+recordColumns,
		rawKey, hash, filename, string(StatusUploaded), id)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, fault.ErrNotFound) {
			return nil, err
		}
		return nil, fault.Transient(err, "reset for reprocess")
	}
	return rec, nil
}

func (s *PostgresStore) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM resumes WHERE id = $1`, id)
	if err != nil {
		return fault.Transient(err, "delete record")
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("record %s: %w", id, fault.ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) ListIDsByStatus(ctx context.Context, status Status, limit int) ([]uuid.UUID, error) {
	rows, err := s.db.Query(ctx, `SELECT id FROM resumes WHERE status = $1 ORDER BY updated_at LIMIT $2`,
		string(status), limit)
	if err != nil {
		return nil, fault.Transient(err, "list by status")
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fault.Transient(err, "list by status")
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *PostgresStore) ListIndexedByFilter(ctx context.Context, skills []string, limit int) ([]*Record, error) {
	if skills == nil {
		skills = []string{}
	}
	rows, err := s.db.Query(ctx, `
		SELECT `+recordColumns+`
		FROM resumes
		WHERE status = $1 AND (cardinality($2::text[]) = 0 OR skills @> $2)
		ORDER BY id
		LIMIT $3`,
		string(StatusIndexed), skills, limit)
	if err != nil {
		return nil, fault.Transient(err, "list indexed")
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fault.Transient(err, "list indexed")
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// conflictOrNotFound disambiguates an empty conditional update: the row is
// either gone or no longer matches the expected status/version.
func (s *PostgresStore) conflictOrNotFound(ctx context.Context, id uuid.UUID, err error, op string) error {
	if !errors.Is(err, fault.ErrNotFound) {
		return fault.Transient(err, op)
	}
	var exists bool
	if qerr := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM resumes WHERE id = $1)`, id).Scan(&exists); qerr == nil && exists {
		return fmt.Errorf("%s on record %s: %w", op, id, fault.ErrConflict)
	}
	return fmt.Errorf("record %s: %w", id, fault.ErrNotFound)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var (
		rec          Record
		processedKey *string
		experience   []byte
		status       string
		createdAt    time.Time
		updatedAt    time.Time
	)
	err := row.Scan(&rec.ID, &rec.Filename, &rec.RawKey, &processedKey, &rec.ContentHash,
		&rec.CandidateName, &rec.Skills, &rec.Titles, &experience, &status,
		&rec.Version, &rec.LastError, &createdAt, &updatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fault.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if processedKey != nil {
		rec.ProcessedKey = *processedKey
	}
	if len(experience) > 0 {
		if err := json.Unmarshal(experience, &rec.Experience); err != nil {
			return nil, fmt.Errorf("failed to parse experience: %v", err)
		}
	}
	rec.Status = Status(status)
	rec.CreatedAt = createdAt
	rec.UpdatedAt = updatedAt
	return &rec, nil
}
