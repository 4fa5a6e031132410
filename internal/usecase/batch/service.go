// Package batch (re)computes content_for_search and embeddings for portfolio records.
package batch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/gridtech/portfolio/internal/domain"
	dombatch "github.com/gridtech/portfolio/internal/domain/batch"
	"github.com/gridtech/portfolio/internal/domain/record"
	"github.com/gridtech/portfolio/internal/logger"
	"github.com/gridtech/portfolio/internal/metrics"
)

// Config tunes the throttle and concurrency of a run.
type Config struct {
	Interval time.Duration // minimum spacing between embedding calls (default 100ms)
	Burst    int
	Workers  int
	Model    string // recorded as embedding_model
}

// Service runs the batch embedding job.
type Service struct {
	records RecordReader
	writer  EmbeddingWriter
	index   VectorIndex
	embed   Embedder
	limiter Limiter
	workers int
	model   string
	logger  *zap.Logger
}

// New creates a batch service with a token-bucket limiter built from cfg.
func New(
	records RecordReader, writer EmbeddingWriter, index VectorIndex,
	embed Embedder, cfg Config, logger *zap.Logger,
) *Service {
	if cfg.Interval <= 0 {
		cfg.Interval = 100 * time.Millisecond
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	return &Service{
		records: records,
		writer:  writer,
		index:   index,
		embed:   embed,
		limiter: rate.NewLimiter(rate.Every(cfg.Interval), cfg.Burst),
		workers: cfg.Workers,
		model:   cfg.Model,
		logger:  logger,
	}
}

// WithLimiter replaces the default limiter.
func (s *Service) WithLimiter(l Limiter) *Service {
	if l != nil {
		s.limiter = l
	}
	return s
}

// Run embeds every record of kind. Per-record failures land in the report and never
// stop the run. A fetch or index error aborts the kind before any record is attempted.
// On cancellation no new record is started; the partial report is returned with ctx.Err().
func (s *Service) Run(ctx context.Context, kind record.Kind) (dombatch.Report, error) {
	report := dombatch.Report{Kind: kind}
	ctx = logger.With(ctx, s.logger, zap.String("run_id", uuid.NewString()), zap.String("kind", string(kind)))
	log := logger.FromContext(ctx, s.logger)

	recs, err := s.records.List(ctx, kind)
	if err != nil {
		return report, fmt.Errorf("fetch %s records: %w", kind, err)
	}
	if err := s.index.EnsureIndexesForKind(ctx, kind); err != nil {
		return report, fmt.Errorf("ensure %s index: %w", kind, err)
	}

	log.Info("Batch embedding started", zap.Int("records", len(recs)), zap.Int("workers", s.workers))
	start := time.Now()

	outcomes := make([]error, len(recs))
	attempted := make([]bool, len(recs))

	var g errgroup.Group
	g.SetLimit(s.workers)

	for i, rec := range recs {
		if ctx.Err() != nil {
			break
		}
		if err := s.limiter.Wait(ctx); err != nil {
			break
		}
		g.Go(func() error {
			// A slot may free up only after cancellation.
			if ctx.Err() != nil {
				return nil
			}
			attempted[i] = true
			outcomes[i] = s.process(ctx, rec)
			return nil
		})
	}
	_ = g.Wait()

	for i, rec := range recs {
		if !attempted[i] {
			continue
		}
		report.Add(rec.ID(), outcomes[i])
		if outcomes[i] != nil {
			metrics.BatchRecordsTotal.WithLabelValues(string(kind), "failed").Inc()
			log.Warn("Record embedding failed", zap.String("record_id", rec.ID()), zap.Error(outcomes[i]))
		} else {
			metrics.BatchRecordsTotal.WithLabelValues(string(kind), "ok").Inc()
		}
	}

	log.Info("Batch embedding finished",
		zap.Int("attempted", report.Attempted),
		zap.Int("succeeded", report.Succeeded),
		zap.Int("failed", len(report.Failures)),
		zap.Int("skipped", len(recs)-report.Attempted),
		zap.Duration("duration", time.Since(start)),
	)

	if err := ctx.Err(); err != nil {
		return report, fmt.Errorf("batch %s interrupted: %w", kind, err)
	}
	return report, nil
}

// RunAll runs every kind in order. A kind that fails to start does not stop the others;
// cancellation does.
func (s *Service) RunAll(ctx context.Context) ([]dombatch.Report, error) {
	reports := make([]dombatch.Report, 0, len(record.Kinds))
	var errs []error
	for _, kind := range record.Kinds {
		rep, err := s.Run(ctx, kind)
		reports = append(reports, rep)
		if err != nil {
			errs = append(errs, err)
			if ctx.Err() != nil {
				break
			}
		}
	}
	return reports, errors.Join(errs...)
}

// Refresh re-embeds one record. When the record no longer exists its vector hash is
// removed and domain.ErrRecordNotFound is returned.
func (s *Service) Refresh(ctx context.Context, kind record.Kind, id string) error {
	rec, err := s.records.Get(ctx, kind, id)
	if err != nil {
		if errors.Is(err, domain.ErrRecordNotFound) {
			if derr := s.index.Delete(ctx, kind, id); derr != nil {
				logger.FromContext(ctx, s.logger).Warn("Failed to drop stale vector",
					zap.String("kind", string(kind)), zap.String("record_id", id), zap.Error(derr))
			}
		}
		return fmt.Errorf("refresh %s %s: %w", kind, id, err)
	}
	if err := s.index.EnsureIndexesForKind(ctx, kind); err != nil {
		return fmt.Errorf("ensure %s index: %w", kind, err)
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("refresh %s %s: %w", kind, id, err)
	}
	if err := s.process(ctx, rec); err != nil {
		metrics.BatchRecordsTotal.WithLabelValues(string(kind), "failed").Inc()
		return err
	}
	metrics.BatchRecordsTotal.WithLabelValues(string(kind), "ok").Inc()
	return nil
}

// process formats, embeds and writes one record. Once a vector exists the row and
// hash writes ignore cancellation so the two never diverge.
func (s *Service) process(ctx context.Context, rec record.Record) error {
	content := record.FormatForSearch(rec)

	res, err := s.embed.Embed(ctx, content)
	if err != nil {
		return domain.NewEmbeddingFailure(rec.ID(), err)
	}

	e := record.Embedded{
		Kind:    rec.Kind(),
		ID:      rec.ID(),
		Title:   rec.Title(),
		Content: content,
		Vector:  res.Embedding,
		Model:   s.model,
	}

	wctx := context.WithoutCancel(ctx)
	if err := s.writer.SaveEmbedding(wctx, e); err != nil {
		return persistenceFailure(rec.ID(), err)
	}
	if err := s.index.Upsert(wctx, e); err != nil {
		return persistenceFailure(rec.ID(), fmt.Errorf("index: %w", err))
	}
	return nil
}

// persistenceFailure reports a failed row or vector-hash write as *domain.PersistenceFailure.
func persistenceFailure(id string, err error) error {
	var pf *domain.PersistenceFailure
	if errors.As(err, &pf) {
		return err
	}
	return &domain.PersistenceFailure{RecordID: id, Err: err}
}
