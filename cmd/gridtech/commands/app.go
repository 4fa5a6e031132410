package commands

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/gridtech/portfolio/internal/config"
	dbRedis "github.com/gridtech/portfolio/internal/db/redis"
	"github.com/gridtech/portfolio/internal/domain"
	"github.com/gridtech/portfolio/internal/domain/search"
	logpkg "github.com/gridtech/portfolio/internal/logger"
	"github.com/gridtech/portfolio/internal/metrics"
	"github.com/gridtech/portfolio/internal/repository/embcache"
	recordrepo "github.com/gridtech/portfolio/internal/repository/record"
	vectorrepo "github.com/gridtech/portfolio/internal/repository/vector"
	openaiTransport "github.com/gridtech/portfolio/internal/transport/openai"
	batchuc "github.com/gridtech/portfolio/internal/usecase/batch"
	chatuc "github.com/gridtech/portfolio/internal/usecase/chat"
	embeddinguc "github.com/gridtech/portfolio/internal/usecase/embedding"
	searchuc "github.com/gridtech/portfolio/internal/usecase/search"
)

// app is the composition root shared by the subcommands.
type app struct {
	env    string
	cfg    config.Config
	logger *zap.Logger

	store    *dbRedis.Store
	records  *recordrepo.Repo
	vectors  *vectorrepo.Repo
	provider *openaiTransport.Embedder

	docEmbedder   domain.Embedder
	queryEmbedder domain.Embedder
}

// newApp loads config, builds the logger and connects both stores.
func newApp(ctx context.Context, opts *rootOptions) (*app, error) {
	cfg, err := config.Load(opts.env)
	if err != nil {
		return nil, err
	}

	logger, err := logpkg.NewLogger(opts.env, firstNonEmpty(opts.logLevel, cfg.Logging.Level))
	if err != nil {
		return nil, err
	}

	a := &app{env: opts.env, cfg: cfg, logger: logger}

	// Vector store: redis and valkey share the same client and command set.
	a.store, err = dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Database.Addrs,
		Password: cfg.Database.Password,
	})
	if err != nil {
		a.close()
		return nil, fmt.Errorf("create %s store: %w", cfg.Database.Driver, err)
	}
	readiness := time.Duration(cfg.Database.ReadinessTimeout) * time.Second
	if err := a.store.WaitForReady(ctx, readiness); err != nil {
		a.close()
		return nil, fmt.Errorf("%s not ready: %w", cfg.Database.Driver, err)
	}

	a.records, err = recordrepo.Open(cfg.Records.DSN)
	if err != nil {
		a.close()
		return nil, err
	}

	a.vectors = vectorrepo.New(a.store, vectorrepo.Config{
		KeyPrefix:       cfg.Database.KeyPrefix,
		Dimensions:      cfg.Embedding.Dimensions,
		HNSWM:           cfg.Database.HNSWM,
		HNSWEFConstruct: cfg.Database.HNSWEFConstruct,
	})

	metrics.Register()
	a.buildEmbedders()

	logger.Debug("Application initialized",
		zap.String("env", opts.env),
		zap.String("db_driver", cfg.Database.Driver),
		zap.Strings("db_addrs", cfg.Database.Addrs),
		zap.String("records_dsn", cfg.Records.DSN),
		zap.String("embedding_model", cfg.Embedding.Model),
		zap.Int("dimensions", cfg.Embedding.Dimensions),
	)
	return a, nil
}

// buildEmbedders assembles the decorator chains: OpenAI -> Instrumented for records,
// OpenAI -> Instrumented -> Cached for queries.
func (a *app) buildEmbedders() {
	a.provider = openaiTransport.NewEmbedder(&openaiTransport.Config{
		APIKey:     a.cfg.Embedding.APIKey,
		BaseURL:    a.cfg.Embedding.BaseURL,
		Model:      a.cfg.Embedding.Model,
		Dimensions: a.cfg.Embedding.Dimensions,
		Logger:     a.logger,
	})

	instrumented := embeddinguc.NewInstrumentedEmbedder(a.provider, a.cfg.Embedding.Model, a.logger)
	a.docEmbedder = instrumented
	a.queryEmbedder = instrumented

	if a.cfg.Embedding.CacheTTLSec > 0 {
		a.queryEmbedder = embcache.New(instrumented, a.store, embcache.Config{
			KeyPrefix:  a.cfg.Database.KeyPrefix,
			Model:      a.cfg.Embedding.Model,
			Dimensions: a.cfg.Embedding.Dimensions,
			TTL:        time.Duration(a.cfg.Embedding.CacheTTLSec) * time.Second,
		}, metrics.EmbeddingCacheTotal, a.logger)
	}
}

func (a *app) searchService() *searchuc.Service {
	return searchuc.New(a.vectors, a.queryEmbedder, a.logger)
}

func (a *app) batchService() *batchuc.Service {
	return batchuc.New(a.records, a.records, a.vectors, a.docEmbedder, batchuc.Config{
		Interval: time.Duration(a.cfg.Batch.IntervalMS) * time.Millisecond,
		Burst:    a.cfg.Batch.Burst,
		Workers:  a.cfg.Batch.Workers,
		Model:    a.cfg.Embedding.Model,
	}, a.logger)
}

func (a *app) chatService(searcher chatuc.Searcher) *chatuc.Service {
	completer := openaiTransport.NewCompleter(&openaiTransport.CompleterConfig{
		APIKey:      a.cfg.Chat.APIKey,
		BaseURL:     a.cfg.Chat.BaseURL,
		Model:       a.cfg.Chat.Model,
		MaxTokens:   a.cfg.Chat.MaxTokens,
		Temperature: a.cfg.Chat.Temperature,
		Logger:      a.logger,
	})
	return chatuc.New(searcher, completer, chatuc.Config{
		Search: search.Options{
			Threshold: *a.cfg.Search.Threshold,
			Limit:     a.cfg.Search.Limit,
		},
		MaxContextChars: a.cfg.Chat.MaxContextChars,
		Timeout:         time.Duration(a.cfg.Chat.TimeoutSec) * time.Second,
		Model:           completer.Model(),
	}, a.logger)
}

func (a *app) close() {
	if a.records != nil {
		if err := a.records.Close(); err != nil {
			a.logger.Warn("Failed to close record store", zap.Error(err))
		}
	}
	if a.store != nil {
		a.store.Close()
	}
	_ = a.logger.Sync()
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
