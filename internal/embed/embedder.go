// Package embed provides sentence embeddings for the semantic similarity
// scorer via an HTTP inference service.
package embed

import "context"

// Embedder converts texts to dense vectors. Implementations must return one
// vector per input text, in input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}
