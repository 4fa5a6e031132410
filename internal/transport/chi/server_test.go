package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gridtech/portfolio/internal/domain"
	"github.com/gridtech/portfolio/internal/domain/record"
	"github.com/gridtech/portfolio/internal/domain/search"
	healthuc "github.com/gridtech/portfolio/internal/usecase/health"
)

// --- Mocks ---

type mockSearcher struct {
	results  []search.Result
	err      error
	tokens   int
	lastQ    string
	lastOpts search.Options
}

func (m *mockSearcher) Search(ctx context.Context, q string, opts search.Options) ([]search.Result, error) {
	m.lastQ = q
	m.lastOpts = opts
	if m.err != nil {
		return nil, m.err
	}
	domain.UsageFromContext(ctx).AddTokens(m.tokens)
	return m.results, nil
}

type mockResponder struct {
	reply     string
	err       error
	lastMsgs  []domain.Message
	lastScope search.Scope
}

func (m *mockResponder) Respond(_ context.Context, msgs []domain.Message, scope search.Scope) (string, error) {
	m.lastMsgs = msgs
	m.lastScope = scope
	return m.reply, m.err
}

type mockRefresher struct {
	err      error
	lastKind record.Kind
	lastID   string
}

func (m *mockRefresher) Refresh(_ context.Context, kind record.Kind, id string) error {
	m.lastKind = kind
	m.lastID = id
	return m.err
}

type mockHealth struct {
	report healthuc.Report
}

func (m *mockHealth) Check(_ context.Context) healthuc.Report { return m.report }

type fixture struct {
	search  *mockSearcher
	chat    *mockResponder
	refresh *mockRefresher
	health  *mockHealth
	handler http.Handler
}

func newFixture(apiKeys ...string) *fixture {
	f := &fixture{
		search:  &mockSearcher{},
		chat:    &mockResponder{},
		refresh: &mockRefresher{},
		health: &mockHealth{report: healthuc.Report{
			Status: healthuc.Healthy,
			Checks: map[string]healthuc.CheckResult{healthuc.ComponentVectorStore: healthuc.CheckOK},
		}},
	}
	srv := NewServer(f.search, f.chat, f.refresh, f.health, zap.NewNop())
	f.handler = NewRouter(srv, apiKeys, zap.NewNop())
	return f
}

func (f *fixture) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, http.NoBody)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, req)
	return rr
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var e errorResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&e))
	return e
}

// --- Chat ---

func TestChat_OK(t *testing.T) {
	f := newFixture()
	f.chat.reply = "Two pilots are active."

	rr := f.do("POST", "/api/chat",
		`{"messages":[{"role":"user","content":"How many pilots?"}],"dataScope":"pilots-only"}`)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp chatResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, "Two pilots are active.", resp.Reply)
	assert.Equal(t, search.ScopePilotsOnly, f.chat.lastScope)
	require.Len(t, f.chat.lastMsgs, 1)
	assert.Equal(t, domain.RoleUser, f.chat.lastMsgs[0].Role)
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))
}

func TestChat_InvalidBody(t *testing.T) {
	for _, body := range []string{`not json`, `{"dataScope":"full-portfolio"}`, `{"messages":"hi"}`} {
		f := newFixture()
		rr := f.do("POST", "/api/chat", body)
		assert.Equal(t, http.StatusBadRequest, rr.Code, body)
		assert.Equal(t, "Invalid messages format", decodeError(t, rr).Error)
	}
}

func TestChat_NoUserMessage(t *testing.T) {
	f := newFixture()
	f.chat.err = domain.ErrInvalidRequest

	rr := f.do("POST", "/api/chat", `{"messages":[{"role":"assistant","content":"hi"}]}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestChat_CompletionFailure(t *testing.T) {
	f := newFixture()
	f.chat.err = &domain.ChatFailure{Model: "gpt-4o-mini", Err: errors.New("upstream 500 sk-secret")}

	rr := f.do("POST", "/api/chat", `{"messages":[{"role":"user","content":"q"}]}`)
	require.Equal(t, http.StatusInternalServerError, rr.Code)
	e := decodeError(t, rr)
	assert.Equal(t, "Failed to generate response", e.Error)
	assert.NotContains(t, rr.Body.String(), "sk-secret")
}

// --- Search ---

func TestSearch_OK(t *testing.T) {
	f := newFixture()
	f.search.tokens = 4
	f.search.results = []search.Result{{
		Source: record.KindTechnology, ID: "NGT-004", Title: "Hydrogen Storage",
		Content: "Technology: Hydrogen Storage", Similarity: 0.82,
	}}

	rr := f.do("POST", "/api/search", `{"query":"hydrogen","limit":5,"threshold":0.6,"dataScope":"technology-library"}`)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp searchResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "NGT-004", resp.Results[0].ID)
	assert.Equal(t, record.KindTechnology, resp.Results[0].Source)
	assert.InDelta(t, 0.82, resp.Results[0].Similarity, 1e-9)

	assert.Equal(t, "hydrogen", f.search.lastQ)
	assert.Equal(t, 5, f.search.lastOpts.Limit)
	assert.InDelta(t, 0.6, f.search.lastOpts.Threshold, 1e-9)
	assert.Equal(t, search.ScopeTechnologyLibrary, f.search.lastOpts.Scope)
	assert.Equal(t, "4", rr.Header().Get("X-Embedding-Tokens"))
}

func TestSearch_Defaults(t *testing.T) {
	f := newFixture()

	rr := f.do("POST", "/api/search", `{"query":"grid"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, search.DefaultOptions(), f.search.lastOpts)
	assert.JSONEq(t, `{"results":[]}`, rr.Body.String())
}

func TestSearch_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"invalid query", errors.Join(domain.ErrInvalidQuery, errors.New("threshold must be within [0,1]")),
			http.StatusBadRequest, codeInvalidQuery},
		{"empty input", domain.NewEmbeddingFailure("", domain.ErrEmptyInput),
			http.StatusBadRequest, codeEmptyInput},
		{"embedding", domain.NewEmbeddingFailure("", errors.New("401")),
			http.StatusBadGateway, codeEmbeddingProvider},
		{"unavailable", &domain.SearchUnavailable{Collection: "portfolio", Err: errors.New("redis:6379 refused")},
			http.StatusServiceUnavailable, codeSearchUnavailable},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError, codeInternal},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture()
			f.search.err = tc.err

			rr := f.do("POST", "/api/search", `{"query":"q"}`)
			assert.Equal(t, tc.status, rr.Code)
			e := decodeError(t, rr)
			assert.Equal(t, tc.code, e.Code)
			assert.NotContains(t, e.Error, "redis:6379")
		})
	}
}

func TestSearch_BadBody(t *testing.T) {
	f := newFixture()
	rr := f.do("POST", "/api/search", `{"query":`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, codeBadRequest, decodeError(t, rr).Code)
}

// --- Refresh ---

func TestRefreshEmbedding_OK(t *testing.T) {
	f := newFixture()

	rr := f.do("POST", "/api/embeddings/technologies/NGT-001", "")
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, record.KindTechnology, f.refresh.lastKind)
	assert.Equal(t, "NGT-001", f.refresh.lastID)
}

func TestRefreshEmbedding_UnknownKind(t *testing.T) {
	f := newFixture()

	rr := f.do("POST", "/api/embeddings/intake/1", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, codeUnknownKind, decodeError(t, rr).Code)
	assert.Empty(t, f.refresh.lastID)
}

func TestRefreshEmbedding_NotFound(t *testing.T) {
	f := newFixture()
	f.refresh.err = errors.Join(errors.New("refresh pilot p9"), domain.ErrRecordNotFound)

	rr := f.do("POST", "/api/embeddings/pilot/p9", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, codeRecordNotFound, decodeError(t, rr).Code)
}

// --- Health, metrics, routing ---

func TestHealth(t *testing.T) {
	f := newFixture()
	rr := f.do("GET", "/health", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok","checks":{"vector_store":"ok"}}`, rr.Body.String())

	f.health.report = healthuc.Report{
		Status: healthuc.Degraded,
		Checks: map[string]healthuc.CheckResult{
			healthuc.ComponentVectorStore: healthuc.CheckOK,
			healthuc.ComponentEmbedding:   healthuc.CheckError,
		},
	}
	rr = f.do("GET", "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture()
	rr := f.do("GET", "/metrics", "")
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestRouting_NotFoundAndMethod(t *testing.T) {
	f := newFixture()

	rr := f.do("GET", "/api/unknown", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = f.do("GET", "/api/search", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestRouter_AuthEnabled(t *testing.T) {
	f := newFixture("secret")

	rr := f.do("POST", "/api/search", `{"query":"q"}`)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = f.do("GET", "/health", "")
	assert.Equal(t, http.StatusOK, rr.Code)

	req := httptest.NewRequest("POST", "/api/search", strings.NewReader(`{"query":"q"}`))
	req.Header.Set("Authorization", "Bearer secret")
	ok := httptest.NewRecorder()
	f.handler.ServeHTTP(ok, req)
	assert.Equal(t, http.StatusOK, ok.Code)
}

func TestJSONRecoverer(t *testing.T) {
	h := JSONRecoverer(zap.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest("GET", "/", http.NoBody))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.Equal(t, codeInternal, decodeError(t, rr).Code)
}
