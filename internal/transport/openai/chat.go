package openai

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/gridtech/portfolio/internal/domain"
	"github.com/gridtech/portfolio/internal/metrics"
)

// Chat completion defaults.
const (
	DefaultChatModel   = "gpt-4o-mini"
	DefaultMaxTokens   = 1000
	DefaultTemperature = 0.7
)

var errNoChoices = errors.New("completion returned no choices")

// CompleterConfig holds the language-model settings.
type CompleterConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature *float32 // nil = DefaultTemperature
	Logger      *zap.Logger
}

// Completer sends a single-prompt chat completion to an OpenAI-compatible API.
type Completer struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
	logger      *zap.Logger
}

// NewCompleter creates a chat completer, filling unset fields with defaults.
func NewCompleter(cfg *CompleterConfig) *Completer {
	c := &Completer{
		client:      newClient(cfg.APIKey, cfg.BaseURL),
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: DefaultTemperature,
		logger:      cfg.Logger,
	}
	if c.model == "" {
		c.model = DefaultChatModel
	}
	if c.maxTokens <= 0 {
		c.maxTokens = DefaultMaxTokens
	}
	if cfg.Temperature != nil {
		c.temperature = *cfg.Temperature
	}
	// The request field is omitempty; this is how go-openai sends an explicit zero.
	if c.temperature == 0 {
		c.temperature = math.SmallestNonzeroFloat32
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	return c
}

// Model returns the configured chat model name.
func (c *Completer) Model() string { return c.model }

// Complete sends prompt as a single user message and returns the first choice.
// Failures and empty replies are *domain.ChatFailure.
func (c *Completer) Complete(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
	})
	metrics.ChatCompletionDuration.WithLabelValues(c.model).Observe(time.Since(start).Seconds())

	if err != nil {
		return "", &domain.ChatFailure{Model: c.model, Err: parseAPIError("chat", err)}
	}
	if len(resp.Choices) == 0 {
		return "", &domain.ChatFailure{Model: c.model, Err: errNoChoices}
	}

	reply := resp.Choices[0].Message.Content
	if strings.TrimSpace(reply) == "" {
		return "", &domain.ChatFailure{Model: c.model, Err: errNoChoices}
	}

	c.logger.Debug("chat completion",
		zap.String("model", c.model),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
	)
	return reply, nil
}
