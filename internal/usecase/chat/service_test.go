package chat

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gridtech/portfolio/internal/domain"
	"github.com/gridtech/portfolio/internal/domain/record"
	"github.com/gridtech/portfolio/internal/domain/search"
)

// --- Mocks ---

type mockSearcher struct {
	results   []search.Result
	err       error
	calls     int
	lastQuery string
	lastOpts  search.Options
}

func (m *mockSearcher) Search(_ context.Context, query string, opts search.Options) ([]search.Result, error) {
	m.calls++
	m.lastQuery = query
	m.lastOpts = opts
	return m.results, m.err
}

type mockCompleter struct {
	reply      string
	err        error
	lastPrompt string
	calls      int
}

func (m *mockCompleter) Complete(_ context.Context, prompt string) (string, error) {
	m.calls++
	m.lastPrompt = prompt
	return m.reply, m.err
}

func newService(s *mockSearcher, c *mockCompleter) *Service {
	return New(s, c, Config{Model: "gpt-4o-mini"}, zap.NewNop())
}

func userTurn(q string) []domain.Message {
	return []domain.Message{{Role: domain.RoleUser, Content: q}}
}

// --- Tests ---

func TestRespond_Grounded(t *testing.T) {
	s := &mockSearcher{results: []search.Result{{
		Source: record.KindPilot, ID: "p1", Title: "Feeder 12 DLR", Content: "Pilot: Feeder 12 DLR", Similarity: 0.91,
	}}}
	c := &mockCompleter{reply: "Feeder 12 DLR is active."}

	reply, err := newService(s, c).Respond(context.Background(), userTurn("Which pilots are active?"), search.ScopePilotsOnly)
	require.NoError(t, err)
	assert.Equal(t, "Feeder 12 DLR is active.", reply)

	assert.Equal(t, "Which pilots are active?", s.lastQuery)
	assert.Equal(t, search.ScopePilotsOnly, s.lastOpts.Scope)
	assert.InDelta(t, 0.5, s.lastOpts.Threshold, 1e-9)
	assert.Equal(t, 10, s.lastOpts.Limit)

	assert.Contains(t, c.lastPrompt, "Current data scope: pilots-only")
	assert.Contains(t, c.lastPrompt, "[1] PILOT: Feeder 12 DLR\nPilot: Feeder 12 DLR\n(Relevance: 91.0%)")
	assert.True(t, strings.HasSuffix(c.lastPrompt, "\n\nUser question: Which pilots are active?"))
}

func TestRespond_UsesLatestUserMessage(t *testing.T) {
	s := &mockSearcher{}
	c := &mockCompleter{reply: "ok"}
	msgs := []domain.Message{
		{Role: domain.RoleUser, Content: "first"},
		{Role: domain.RoleAssistant, Content: "answer"},
		{Role: domain.RoleUser, Content: "second"},
		{Role: domain.RoleAssistant, Content: "answer 2"},
	}

	_, err := newService(s, c).Respond(context.Background(), msgs, search.ScopeFullPortfolio)
	require.NoError(t, err)
	assert.Equal(t, "second", s.lastQuery)
	assert.True(t, strings.HasSuffix(c.lastPrompt, "User question: second"))
}

func TestRespond_NoResults(t *testing.T) {
	c := &mockCompleter{reply: "nothing found"}

	_, err := newService(&mockSearcher{}, c).Respond(context.Background(), userTurn("tidal?"), search.ScopeFullPortfolio)
	require.NoError(t, err)
	assert.Contains(t, c.lastPrompt, "\n\nNo relevant data found in the portfolio.\n\n")
}

func TestRespond_DegradesOnSearchFailure(t *testing.T) {
	failures := []error{
		&domain.SearchUnavailable{Collection: "portfolio", Err: errors.New("no such index")},
		domain.NewEmbeddingFailure("", errors.New("429")),
		errors.New("unexpected"),
	}
	for _, fail := range failures {
		t.Run(fail.Error(), func(t *testing.T) {
			c := &mockCompleter{reply: "limited answer"}

			reply, err := newService(&mockSearcher{err: fail}, c).
				Respond(context.Background(), userTurn("Status of hydrogen?"), search.ScopeTechnologyLibrary)
			require.NoError(t, err)
			assert.Equal(t, "limited answer", reply)
			assert.Contains(t, c.lastPrompt, DegradedContext)
			assert.NotContains(t, c.lastPrompt, "RELEVANT PORTFOLIO DATA")
		})
	}
}

func TestRespond_NoUserMessage(t *testing.T) {
	tests := []struct {
		name string
		msgs []domain.Message
	}{
		{"nil", nil},
		{"assistant only", []domain.Message{{Role: domain.RoleAssistant, Content: "hi"}}},
		{"blank user", userTurn("   ")},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := &mockSearcher{}
			c := &mockCompleter{}

			_, err := newService(s, c).Respond(context.Background(), tc.msgs, search.ScopeFullPortfolio)
			require.ErrorIs(t, err, domain.ErrInvalidRequest)
			assert.Zero(t, s.calls)
			assert.Zero(t, c.calls)
		})
	}
}

func TestRespond_CompletionFailure(t *testing.T) {
	c := &mockCompleter{err: errors.New("503 overloaded")}

	_, err := newService(&mockSearcher{}, c).Respond(context.Background(), userTurn("q"), search.ScopeFullPortfolio)
	require.ErrorIs(t, err, domain.ErrChatProvider)

	var cf *domain.ChatFailure
	require.ErrorAs(t, err, &cf)
	assert.Equal(t, "gpt-4o-mini", cf.Model)
}

func TestRespond_KeepsTypedChatFailure(t *testing.T) {
	inner := &domain.ChatFailure{Model: "gpt-4o", Err: errors.New("empty choices")}
	c := &mockCompleter{err: inner}

	_, err := newService(&mockSearcher{}, c).Respond(context.Background(), userTurn("q"), search.ScopeFullPortfolio)
	assert.Same(t, inner, err)
}

func TestRespond_EmptyScopeLabel(t *testing.T) {
	s := &mockSearcher{}
	c := &mockCompleter{reply: "ok"}

	_, err := newService(s, c).Respond(context.Background(), userTurn("q"), "")
	require.NoError(t, err)
	assert.Equal(t, search.ScopeFullPortfolio, s.lastOpts.Scope)
	assert.Contains(t, c.lastPrompt, "Current data scope: full-portfolio")
}

func TestNew_ConfiguredSearchOptions(t *testing.T) {
	s := &mockSearcher{}
	svc := New(s, &mockCompleter{reply: "ok"}, Config{Search: search.Options{Threshold: 0.7, Limit: 5}}, nil)

	_, err := svc.Respond(context.Background(), userTurn("q"), search.ScopeRiskRegister)
	require.NoError(t, err)
	assert.InDelta(t, 0.7, s.lastOpts.Threshold, 1e-9)
	assert.Equal(t, 5, s.lastOpts.Limit)
	assert.Equal(t, search.ScopeRiskRegister, s.lastOpts.Scope)
}

func TestBuildPrompt_Layout(t *testing.T) {
	got := BuildPrompt("risk-register", "CTX", "Q?")

	assert.True(t, strings.HasPrefix(got, "You are an AI assistant for GridTech"))
	assert.Contains(t, got, "- Project intake and portfolio management\n\nCurrent data scope: risk-register\n\nIMPORTANT:")
	assert.Contains(t, got, "acknowledge this limitation.\n\nCTX\n\nProvide concise, actionable insights")
	assert.True(t, strings.HasSuffix(got, "based on the actual portfolio data above.\n\nUser question: Q?"))
}

type deadlineCompleter struct {
	hadDeadline bool
}

func (d *deadlineCompleter) Complete(ctx context.Context, _ string) (string, error) {
	_, d.hadDeadline = ctx.Deadline()
	return "ok", nil
}

func TestRespond_CompletionTimeout(t *testing.T) {
	c := &deadlineCompleter{}
	svc := New(&mockSearcher{}, c, Config{Timeout: time.Second}, zap.NewNop())

	_, err := svc.Respond(context.Background(), userTurn("q"), search.ScopeFullPortfolio)
	require.NoError(t, err)
	assert.True(t, c.hadDeadline)
}
