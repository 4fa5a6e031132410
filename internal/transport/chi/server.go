package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/gridtech/portfolio/internal/domain"
	"github.com/gridtech/portfolio/internal/domain/record"
	"github.com/gridtech/portfolio/internal/domain/search"
	"github.com/gridtech/portfolio/internal/logger"
	healthuc "github.com/gridtech/portfolio/internal/usecase/health"
)

// Error codes returned alongside the human-readable message.
const (
	codeBadRequest        = "bad_request"
	codeInvalidQuery      = "invalid_query"
	codeUnknownKind       = "unknown_kind"
	codeEmptyInput        = "empty_input"
	codeRecordNotFound    = "record_not_found"
	codeEmbeddingProvider = "embedding_provider_error"
	codeSearchUnavailable = "search_unavailable"
	codeChatProvider      = "chat_provider_error"
	codeInternal          = "internal_error"
	codeUnauthorized      = "unauthorized"
)

const (
	chatFailureMessage     = "Failed to generate response"
	invalidMessagesMessage = "Invalid messages format"
)

// Searcher runs portfolio searches.
type Searcher interface {
	Search(ctx context.Context, query string, opts search.Options) ([]search.Result, error)
}

// Responder answers chat turns.
type Responder interface {
	Respond(ctx context.Context, messages []domain.Message, scope search.Scope) (string, error)
}

// Refresher re-embeds a single record.
type Refresher interface {
	Refresh(ctx context.Context, kind record.Kind, id string) error
}

// HealthChecker aggregates component health.
type HealthChecker interface {
	Check(ctx context.Context) healthuc.Report
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server serves the portfolio HTTP API.
type Server struct {
	search        Searcher
	chat          Responder
	refresh       Refresher
	health        HealthChecker
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(
	search Searcher,
	chat Responder,
	refresh Refresher,
	health HealthChecker,
	logger *zap.Logger,
) *Server {
	s := &Server{
		search:  search,
		chat:    chat,
		refresh: refresh,
		health:  health,
		logger:  logger,
	}
	// Order matters: an empty-input failure also unwraps to the provider sentinel.
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrInvalidQuery, http.StatusBadRequest, codeInvalidQuery),
		sentinelHandler(domain.ErrInvalidRequest, http.StatusBadRequest, codeBadRequest),
		sentinelHandler(domain.ErrUnknownKind, http.StatusBadRequest, codeUnknownKind),
		sentinelHandler(domain.ErrEmptyInput, http.StatusBadRequest, codeEmptyInput),
		sentinelHandler(domain.ErrRecordNotFound, http.StatusNotFound, codeRecordNotFound),
		sentinelHandler(domain.ErrEmbeddingProviderError, http.StatusBadGateway, codeEmbeddingProvider),
		sentinelHandler(domain.ErrSearchUnavailable, http.StatusServiceUnavailable, codeSearchUnavailable),
		sentinelHandler(domain.ErrChatProvider, http.StatusBadGateway, codeChatProvider),
	}
	return s
}

// Register mounts the API routes on r.
func (s *Server) Register(r chi.Router) {
	r.Post("/api/chat", s.Chat)
	r.Post("/api/search", s.Search)
	r.Post("/api/embeddings/{kind}/{id}", s.RefreshEmbedding)
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
}

type chatRequest struct {
	Messages  []domain.Message `json:"messages"`
	DataScope string           `json:"dataScope"`
}

type chatResponse struct {
	Reply string `json:"reply"`
}

// Chat handles POST /api/chat.
func (s *Server) Chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Messages == nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, invalidMessagesMessage)
		return
	}

	reply, err := s.chat.Respond(r.Context(), req.Messages, search.Scope(req.DataScope))
	if err != nil {
		if errors.Is(err, domain.ErrInvalidRequest) {
			writeError(w, http.StatusBadRequest, codeBadRequest, invalidMessagesMessage)
			return
		}
		logger.FromContext(r.Context(), s.logger).Error("Chat turn failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, codeChatProvider, chatFailureMessage)
		return
	}

	writeJSON(w, http.StatusOK, chatResponse{Reply: reply})
}

type searchRequest struct {
	Query     string   `json:"query"`
	Threshold *float64 `json:"threshold,omitempty"`
	Limit     *int     `json:"limit,omitempty"`
	DataScope string   `json:"dataScope,omitempty"`
}

type searchResultItem struct {
	Source     record.Kind `json:"source"`
	ID         string      `json:"id"`
	Title      string      `json:"title"`
	Content    string      `json:"content"`
	Similarity float64     `json:"similarity"`
}

type searchResponse struct {
	Results []searchResultItem `json:"results"`
}

// Search handles POST /api/search.
func (s *Server) Search(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	opts := search.DefaultOptions()
	if req.Threshold != nil {
		opts.Threshold = *req.Threshold
	}
	if req.Limit != nil {
		opts.Limit = *req.Limit
	}
	if req.DataScope != "" {
		opts.Scope = search.Scope(req.DataScope)
	}

	ctx, usage := domain.NewContextWithUsage(r.Context())
	results, err := s.search.Search(ctx, req.Query, opts)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	items := make([]searchResultItem, len(results))
	for i, res := range results {
		items[i] = searchResultItem(res)
	}

	setEmbeddingHeaders(w, usage)
	writeJSON(w, http.StatusOK, searchResponse{Results: items})
}

// RefreshEmbedding handles POST /api/embeddings/{kind}/{id}.
func (s *Server) RefreshEmbedding(w http.ResponseWriter, r *http.Request) {
	kind, err := record.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	id := chi.URLParam(r, "id")

	if err := s.refresh.Refresh(r.Context(), kind, id); err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type healthResponse struct {
	Status healthuc.Status                 `json:"status"`
	Checks map[string]healthuc.CheckResult `json:"checks"`
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, healthResponse{Status: report.Status, Checks: report.Checks})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func setEmbeddingHeaders(w http.ResponseWriter, usage *domain.EmbeddingUsage) {
	if usage != nil && usage.Calls > 0 {
		w.Header().Set("X-Embedding-Tokens", strconv.Itoa(usage.TotalTokens))
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: message, Code: code})
}

// safeDomainMessage returns a client-safe message. Validation errors carry useful detail;
// backend errors are reduced to their sentinel so hosts and keys never leak.
func safeDomainMessage(err error) string {
	detailed := []error{
		domain.ErrInvalidQuery,
		domain.ErrInvalidRequest,
		domain.ErrUnknownKind,
	}
	for _, s := range detailed {
		if errors.Is(err, s) {
			return err.Error()
		}
	}

	sentinels := []error{
		domain.ErrEmptyInput,
		domain.ErrRecordNotFound,
		domain.ErrEmbeddingProviderError,
		domain.ErrSearchUnavailable,
		domain.ErrChatProvider,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	log := logger.FromContext(r.Context(), s.logger)
	log.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	log.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, codeInternal, "internal error")
}
