package domain

import (
	"context"
	"fmt"
	"strings"
)

// DefaultEmbeddingModel and DefaultDimensions describe the provider used when config is silent.
const (
	DefaultEmbeddingModel = "text-embedding-3-small"
	DefaultDimensions     = 1536
)

// Embedder is the shared text vectorization contract between layers.
type Embedder interface {
	Embed(ctx context.Context, text string) (EmbeddingResult, error)
}

// HealthChecker verifies embedding provider availability.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// EmbeddingResult carries the embedding vector and token usage through the decorator chain.
type EmbeddingResult struct {
	Embedding    []float32
	PromptTokens int
	TotalTokens  int
}

// ValidateEmbeddingInput rejects text that would only produce the model's baseline vector.
func ValidateEmbeddingInput(text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyInput
	}
	return nil
}

// CheckDimensions verifies that vec has exactly dim components. dim <= 0 disables the check.
func CheckDimensions(vec []float32, dim int) error {
	if dim > 0 && len(vec) != dim {
		return fmt.Errorf("%w: got %d, want %d", ErrVectorDimMismatch, len(vec), dim)
	}
	return nil
}
