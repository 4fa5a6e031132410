// Package embedding decorates the embedding provider with input validation and logging.
package embedding

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/gridtech/portfolio/internal/domain"
)

// InstrumentedEmbedder rejects empty input before it reaches the provider and
// normalizes every failure into a *domain.EmbeddingFailure.
// Transport metrics (requests, duration, tokens) are recorded in transport/openai.
type InstrumentedEmbedder struct {
	inner  domain.Embedder
	model  string
	logger *zap.Logger
}

// NewInstrumentedEmbedder wraps an embedder with validation and observability.
func NewInstrumentedEmbedder(inner domain.Embedder, model string, logger *zap.Logger) *InstrumentedEmbedder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InstrumentedEmbedder{inner: inner, model: model, logger: logger}
}

// Embed validates text, delegates to the inner embedder, and logs the outcome.
func (p *InstrumentedEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	if err := domain.ValidateEmbeddingInput(text); err != nil {
		return domain.EmbeddingResult{}, domain.NewEmbeddingFailure("", err)
	}

	start := time.Now()
	result, err := p.inner.Embed(ctx, text)
	duration := time.Since(start)

	if err != nil {
		p.logger.Error("Embedding request failed",
			zap.String("model", p.model),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return domain.EmbeddingResult{}, domain.NewEmbeddingFailure("", err)
	}
	if len(result.Embedding) == 0 {
		return domain.EmbeddingResult{}, domain.NewEmbeddingFailure("", domain.ErrEmbeddingProviderError)
	}

	p.logger.Debug("Embedding request completed",
		zap.String("model", p.model),
		zap.Duration("duration", duration),
		zap.Int("dimensions", len(result.Embedding)),
		zap.Int("prompt_tokens", result.PromptTokens),
		zap.Int("total_tokens", result.TotalTokens),
	)

	return result, nil
}
