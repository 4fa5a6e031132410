package search

import (
	"context"

	"github.com/gridtech/portfolio/internal/domain"
	"github.com/gridtech/portfolio/internal/domain/search"
)

// Repository defines the vector index contract for search operations.
type Repository interface {
	SearchKNN(ctx context.Context, c search.Collection, vec []float32, k int) ([]search.Result, error)
}

// Embedder vectorizes text into embeddings.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}
