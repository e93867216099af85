package matcher

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/alanyoungcy/arbmon/internal/domain"
	"github.com/alanyoungcy/arbmon/internal/embed"
)

// Semantic scores pairs by cosine similarity of sentence embeddings,
// rescaled from [-1, 1] to [0, 1]. Embeddings are fetched in one batch per
// Prime call and cached by text, so repeated titles cost one request.
type Semantic struct {
	embedder embed.Embedder
	mu       sync.RWMutex
	vectors  map[string][]float32
}

// NewSemantic creates the semantic scorer backed by the given embedder.
func NewSemantic(embedder embed.Embedder) *Semantic {
	return &Semantic{
		embedder: embedder,
		vectors:  make(map[string][]float32),
	}
}

var _ Scorer = (*Semantic)(nil)

// Name returns the scorer identifier.
func (s *Semantic) Name() string { return "semantic" }

// Prime embeds every not-yet-cached listing title in a single batch. An
// error here means the semantic scorer is unavailable for the cycle; the
// engine then renormalizes the remaining weights.
func (s *Semantic) Prime(ctx context.Context, listings []domain.MarketListing) error {
	if s.embedder == nil {
		return domain.ErrNoEmbedder
	}

	s.mu.RLock()
	var missing []string
	seen := make(map[string]bool)
	for _, l := range listings {
		text := listingText(l)
		if text == "" || seen[text] {
			continue
		}
		seen[text] = true
		if _, ok := s.vectors[text]; !ok {
			missing = append(missing, text)
		}
	}
	s.mu.RUnlock()

	if len(missing) == 0 {
		return nil
	}

	vecs, err := s.embedder.Embed(ctx, missing)
	if err != nil {
		return err
	}

	s.mu.Lock()
	for i, text := range missing {
		s.vectors[text] = vecs[i]
	}
	s.mu.Unlock()
	return nil
}

// Score returns the rescaled cosine similarity of the two titles. Both
// listings must have been passed to a successful Prime.
func (s *Semantic) Score(a, b domain.MarketListing) (float64, error) {
	s.mu.RLock()
	va, oka := s.vectors[listingText(a)]
	vb, okb := s.vectors[listingText(b)]
	s.mu.RUnlock()

	if !oka || !okb {
		return 0, fmt.Errorf("semantic: missing embedding: %w", domain.ErrNoEmbedder)
	}
	cos, err := cosine(va, vb)
	if err != nil {
		return 0, err
	}
	// Cosine lands in [-1, 1]; shift to [0, 1].
	return clamp01((cos + 1) / 2), nil
}

// Reset drops the embedding cache, e.g. after a model change.
func (s *Semantic) Reset() {
	s.mu.Lock()
	s.vectors = make(map[string][]float32)
	s.mu.Unlock()
}

// cosine returns the cosine similarity of two equal-length vectors.
func cosine(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("semantic: vector length mismatch %d != %d", len(a), len(b))
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb)), nil
}
