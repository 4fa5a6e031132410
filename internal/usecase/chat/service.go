// Package chat grounds language-model replies in retrieved portfolio records.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/gridtech/portfolio/internal/domain"
	"github.com/gridtech/portfolio/internal/domain/search"
	"github.com/gridtech/portfolio/internal/logger"
	"github.com/gridtech/portfolio/internal/metrics"
)

// DegradedContext replaces the portfolio context when search is unavailable.
const DegradedContext = "Note: Portfolio search is not available. " +
	"Embeddings may not be generated yet. Please run: gridtech embed"

const systemPreamble = `You are an AI assistant for GridTech, a portfolio management platform for grid technology projects.
You help users analyze and understand their portfolio data including:
- Technology pilots and their status
- Risk assessments and scores
- Technology library and specifications
- Market intelligence and trends
- Project intake and portfolio management`

const groundingRule = "IMPORTANT: Use the portfolio data provided below to answer questions accurately. " +
	"Only reference data that is explicitly provided in the context. " +
	"If the data doesn't contain information to answer the question, acknowledge this limitation."

const closingInstruction = "Provide concise, actionable insights based on the actual portfolio data above."

// Config tunes retrieval for chat turns.
type Config struct {
	Search          search.Options // Scope is overridden per call
	MaxContextChars int
	Timeout         time.Duration // bounds the completion call; 0 = caller's deadline only
	Model           string        // labels completer errors that are not already *domain.ChatFailure
}

// Service composes the grounded prompt and asks the language model for a reply.
type Service struct {
	searcher  Searcher
	completer Completer
	assembler Assembler
	opts      search.Options
	timeout   time.Duration
	model     string
	logger    *zap.Logger
}

// New creates a chat service. A zero cfg.Search falls back to search.DefaultOptions.
func New(searcher Searcher, completer Completer, cfg Config, logger *zap.Logger) *Service {
	opts := cfg.Search
	if opts.Limit == 0 && opts.Threshold == 0 {
		opts = search.DefaultOptions()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		searcher:  searcher,
		completer: completer,
		assembler: Assembler{MaxChars: cfg.MaxContextChars},
		opts:      opts,
		timeout:   cfg.Timeout,
		model:     cfg.Model,
		logger:    logger,
	}
}

// Respond answers the latest user message. Search failures degrade the context
// instead of failing the turn; completion failures are *domain.ChatFailure.
func (s *Service) Respond(ctx context.Context, messages []domain.Message, scope search.Scope) (string, error) {
	question, ok := domain.LastUserMessage(messages)
	if !ok || strings.TrimSpace(question) == "" {
		return "", fmt.Errorf("%w: no user message", domain.ErrInvalidRequest)
	}
	if scope == "" {
		scope = search.ScopeFullPortfolio
	}

	log := logger.FromContext(ctx, s.logger)

	grounding := "grounded"
	opts := s.opts
	opts.Scope = scope
	var portfolioContext string
	results, err := s.searcher.Search(ctx, question, opts)
	if err != nil {
		grounding = "degraded"
		portfolioContext = DegradedContext
		log.Warn("Portfolio search failed, answering without grounding",
			zap.String("scope", string(scope)), zap.Error(err))
	} else {
		portfolioContext = s.assembler.Assemble(results)
	}

	cctx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		cctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	reply, err := s.completer.Complete(cctx, BuildPrompt(scope, portfolioContext, question))
	if err != nil {
		metrics.ChatCompletionsTotal.WithLabelValues(grounding, "error").Inc()
		var cf *domain.ChatFailure
		if !errors.As(err, &cf) {
			err = &domain.ChatFailure{Model: s.model, Err: err}
		}
		return "", err
	}
	metrics.ChatCompletionsTotal.WithLabelValues(grounding, "ok").Inc()

	log.Debug("Chat reply generated",
		zap.String("scope", string(scope)),
		zap.String("grounding", grounding),
		zap.Int("results", len(results)),
	)
	return reply, nil
}

// BuildPrompt composes the single prompt sent to the language model.
// The scope label is the raw tag sent by the caller.
func BuildPrompt(scope search.Scope, portfolioContext, question string) string {
	var b strings.Builder
	b.WriteString(systemPreamble)
	b.WriteString("\n\nCurrent data scope: ")
	b.WriteString(string(scope))
	b.WriteString("\n\n")
	b.WriteString(groundingRule)
	b.WriteString("\n\n")
	b.WriteString(portfolioContext)
	b.WriteString("\n\n")
	b.WriteString(closingInstruction)
	b.WriteString("\n\nUser question: ")
	b.WriteString(question)
	return b.String()
}
