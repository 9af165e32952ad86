// Package vectorindex stores one embedding per resume record and serves
// approximate nearest-neighbor retrieval for the search path. The index
// is derived data: the metadata store stays authoritative and the index
// can always be rebuilt from its Indexed set.
package vectorindex

import (
	"context"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
)

// Candidate is one ANN hit. Similarity is cosine similarity in [0, 1]
// for normalized embeddings.
type Candidate struct {
	ResumeID   uuid.UUID
	Similarity float64
}

type Index interface {
	// Upsert overwrites the record's vector; the index never holds more
	// than one vector per identifier.
	Upsert(ctx context.Context, id uuid.UUID, embedding pgvector.Vector, skills, titles []string) error

	// Query returns up to k candidates nearest to the embedding,
	// optionally restricted to vectors sharing at least one skill.
	// Results are approximate; the caller re-filters against the
	// metadata store.
	Query(ctx context.Context, embedding pgvector.Vector, k int, skills []string) ([]Candidate, error)

	Delete(ctx context.Context, id uuid.UUID) error

	// ListIDs feeds the drift reconciler.
	ListIDs(ctx context.Context) ([]uuid.UUID, error)
}
