package embedding

import (
	"context"
	"hash/fnv"

	"github.com/pgvector/pgvector-go"
)

// StaticEmbedder derives a deterministic pseudo-embedding from the text
// itself. It exists for tests and offline development, where calling a
// real model service is neither possible nor useful.
type StaticEmbedder struct {
	Dimension int
	// Err, when set, is returned by every call.
	Err error
}

func (s *StaticEmbedder) Embed(ctx context.Context, text string) (pgvector.Vector, error) {
	if s.Err != nil {
		return pgvector.Vector{}, s.Err
	}
	dim := s.Dimension
	if dim == 0 {
		dim = 8
	}
	values := make([]float32, dim)
	h := fnv.New32a()
	for i := range values {
		h.Write([]byte(text))
		h.Write([]byte{byte(i)})
		// Map the hash into [-1, 1).
		values[i] = float32(int32(h.Sum32()))/float32(1<<31)
	}
	return pgvector.NewVector(values), nil
}
