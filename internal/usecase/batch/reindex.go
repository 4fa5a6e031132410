package batch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	dombatch "github.com/gridtech/portfolio/internal/domain/batch"
	"github.com/gridtech/portfolio/internal/domain/record"
	"github.com/gridtech/portfolio/internal/logger"
)

// errNotEmbedded marks a record that has no stored vector to restore.
var errNotEmbedded = errors.New("record has no stored embedding")

// Reindex rebuilds the vector hashes of kind from the embeddings already stored on the
// record rows. The provider is never called, so a flushed vector store can be restored
// without spending tokens. Records that were never embedded are reported as failures.
func (s *Service) Reindex(ctx context.Context, kind record.Kind) (dombatch.Report, error) {
	report := dombatch.Report{Kind: kind}
	ctx = logger.With(ctx, s.logger,
		zap.String("run_id", uuid.NewString()), zap.String("kind", string(kind)), zap.String("mode", "reindex"))
	log := logger.FromContext(ctx, s.logger)

	recs, err := s.records.List(ctx, kind)
	if err != nil {
		return report, fmt.Errorf("fetch %s records: %w", kind, err)
	}
	if err := s.index.EnsureIndexesForKind(ctx, kind); err != nil {
		return report, fmt.Errorf("ensure %s index: %w", kind, err)
	}

	start := time.Now()
	for _, rec := range recs {
		if ctx.Err() != nil {
			break
		}
		err := s.restore(ctx, rec)
		report.Add(rec.ID(), err)
		if err != nil {
			log.Warn("Record reindex failed", zap.String("record_id", rec.ID()), zap.Error(err))
		}
	}

	log.Info("Reindex finished",
		zap.Int("attempted", report.Attempted),
		zap.Int("succeeded", report.Succeeded),
		zap.Int("failed", len(report.Failures)),
		zap.Duration("duration", time.Since(start)),
	)

	if err := ctx.Err(); err != nil {
		return report, fmt.Errorf("reindex %s interrupted: %w", kind, err)
	}
	return report, nil
}

func (s *Service) restore(ctx context.Context, rec record.Record) error {
	stored, err := s.records.StoredEmbedding(ctx, rec.Kind(), rec.ID())
	if err != nil {
		return err
	}
	if len(stored.Vector) == 0 {
		return fmt.Errorf("%s: %w", rec.ID(), errNotEmbedded)
	}
	stored.Title = rec.Title()
	if err := s.index.Upsert(ctx, stored); err != nil {
		return persistenceFailure(rec.ID(), fmt.Errorf("index: %w", err))
	}
	return nil
}
