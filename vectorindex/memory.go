package vectorindex

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
)

type memoryVector struct {
	values []float32
	skills map[string]struct{}
}

// MemoryIndex is an exact in-process Index used by tests. Unlike the
// ivfflat backend it has perfect recall, which keeps test assertions
// deterministic.
type MemoryIndex struct {
	mu      sync.RWMutex
	vectors map[uuid.UUID]memoryVector
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{vectors: make(map[uuid.UUID]memoryVector)}
}

func (ix *MemoryIndex) Upsert(ctx context.Context, id uuid.UUID, embedding pgvector.Vector, skills, titles []string) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	skillSet := make(map[string]struct{}, len(skills))
	for _, s := range skills {
		skillSet[s] = struct{}{}
	}
	ix.vectors[id] = memoryVector{
		values: append([]float32(nil), embedding.Slice()...),
		skills: skillSet,
	}
	return nil
}

func (ix *MemoryIndex) Query(ctx context.Context, embedding pgvector.Vector, k int, skills []string) ([]Candidate, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	query := embedding.Slice()
	var out []Candidate
	for id, v := range ix.vectors {
		if len(skills) > 0 && !overlaps(v.skills, skills) {
			continue
		}
		out = append(out, Candidate{ResumeID: id, Similarity: cosineSimilarity(query, v.values)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Similarity == out[j].Similarity {
			return out[i].ResumeID.String() < out[j].ResumeID.String()
		}
		return out[i].Similarity > out[j].Similarity
	})
	if k > 0 && len(out) > k {
		out = out[:k]
	}
	return out, nil
}

func (ix *MemoryIndex) Delete(ctx context.Context, id uuid.UUID) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	delete(ix.vectors, id)
	return nil
}

func (ix *MemoryIndex) ListIDs(ctx context.Context) ([]uuid.UUID, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	ids := make([]uuid.UUID, 0, len(ix.vectors))
	for id := range ix.vectors {
		ids = append(ids, id)
	}
	return ids, nil
}

func overlaps(set map[string]struct{}, skills []string) bool {
	for _, s := range skills {
		if _, ok := set[s]; ok {
			return true
		}
	}
	return false
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
