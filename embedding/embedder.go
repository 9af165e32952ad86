// Package embedding converts normalized text into fixed-length vectors by
// calling an external OpenAI-compatible model service. The dependency is
// treated as unreliable: every call carries a deadline, transient failures
// retry with backoff, and a circuit breaker sheds load during outages.
package embedding

import (
	"context"

	"github.com/pgvector/pgvector-go"
)

type Embedder interface {
	Embed(ctx context.Context, text string) (pgvector.Vector, error)
}
