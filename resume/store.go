package resume

import (
	"context"

	"github.com/google/uuid"
)

// Store is the metadata store boundary. All mutating calls are
// conditional: they fail with fault.ErrConflict when the row no longer
// matches the expected (status, version) pair, and fault.ErrNotFound when
// the record does not exist.
type Store interface {
	Create(ctx context.Context, rec *Record) error
	Get(ctx context.Context, id uuid.UUID) (*Record, error)
	FindByHash(ctx context.Context, hash []byte) (*Record, error)

	// Transition advances status iff the row still matches (from, version).
	// Returns the updated record with its new version.
	Transition(ctx context.Context, id uuid.UUID, from, to Status, version int64) (*Record, error)

	// SaveExtraction commits structured fields plus the processed blob key
	// and advances Extracting → Embedding in one conditional write.
	SaveExtraction(ctx context.Context, id uuid.UUID, version int64, fields Fields, processedKey string) (*Record, error)

	// MarkFailed is terminal and succeeds from any non-terminal status.
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error

	// UpdateMetadata applies a plain metadata edit (no re-extraction).
	UpdateMetadata(ctx context.Context, id uuid.UUID, version int64, candidateName *string) (*Record, error)

	// ResetForReprocess points the record at a new raw blob and returns it
	// to Uploaded so the pipeline runs again. Allowed from any status.
	ResetForReprocess(ctx context.Context, id uuid.UUID, rawKey string, hash []byte, filename string) (*Record, error)

	Delete(ctx context.Context, id uuid.UUID) error

	// ListIDsByStatus feeds the reconciler.
	ListIDsByStatus(ctx context.Context, status Status, limit int) ([]uuid.UUID, error)

	// ListIndexedByFilter serves filter-only search: Indexed records that
	// carry every skill in skills, ordered by id for determinism.
	ListIndexedByFilter(ctx context.Context, skills []string, limit int) ([]*Record, error)
}
