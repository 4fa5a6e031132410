// Package search answers free-text questions with the most similar portfolio records.
package search

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/gridtech/portfolio/internal/domain"
	"github.com/gridtech/portfolio/internal/domain/search"
	"github.com/gridtech/portfolio/internal/logger"
	"github.com/gridtech/portfolio/internal/metrics"
)

// overFetch is how many KNN candidates are requested per result slot. The threshold
// filter runs after the index returns, so a wider candidate set keeps the limit reachable.
const overFetch = 2

// Service handles scoped semantic search over the portfolio.
type Service struct {
	repo   Repository
	embed  Embedder
	logger *zap.Logger
}

// New creates a search service.
func New(repo Repository, embed Embedder, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{repo: repo, embed: embed, logger: logger}
}

// Search embeds query and returns records of the scope's collection with similarity
// >= opts.Threshold, most similar first, at most opts.Limit of them.
//
// The index is asked for overFetch*opts.Limit candidates and ties are broken by ID
// among those only. When more records than that share the cutoff similarity (identical
// content), the HNSW candidate order decides which of them are returned.
func (s *Service) Search(ctx context.Context, query string, opts search.Options) ([]search.Result, error) {
	if err := search.ValidateQuery(query); err != nil {
		return nil, err
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	scope := opts.Scope.Normalize()
	if !opts.Scope.Known() && opts.Scope != "" {
		logger.FromContext(ctx, s.logger).Debug("Unknown data scope, searching full portfolio",
			zap.String("scope", string(opts.Scope)))
	}
	collection := scope.Collection()

	emb, err := s.embed.Embed(ctx, query)
	if err != nil {
		metrics.SearchRequestsTotal.WithLabelValues(string(collection), "embedding_error").Inc()
		return nil, fmt.Errorf("embed query: %w", domain.NewEmbeddingFailure("", err))
	}
	domain.UsageFromContext(ctx).AddTokens(emb.TotalTokens)

	candidates, err := s.repo.SearchKNN(ctx, collection, emb.Embedding, opts.Limit*overFetch)
	if err != nil {
		metrics.SearchRequestsTotal.WithLabelValues(string(collection), "unavailable").Inc()
		var su *domain.SearchUnavailable
		if errors.As(err, &su) {
			return nil, err
		}
		return nil, &domain.SearchUnavailable{Collection: string(collection), Err: err}
	}

	results := search.Rank(candidates, opts.Threshold, opts.Limit)

	outcome := "hit"
	if len(results) == 0 {
		outcome = "empty"
	}
	metrics.SearchRequestsTotal.WithLabelValues(string(collection), outcome).Inc()

	logger.FromContext(ctx, s.logger).Debug("Portfolio search completed",
		zap.String("scope", string(scope)),
		zap.String("collection", string(collection)),
		zap.Int("candidates", len(candidates)),
		zap.Int("results", len(results)),
	)

	return results, nil
}
