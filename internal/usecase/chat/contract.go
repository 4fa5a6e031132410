package chat

import (
	"context"

	"github.com/gridtech/portfolio/internal/domain/search"
)

// Searcher retrieves grounding records for a question.
type Searcher interface {
	Search(ctx context.Context, query string, opts search.Options) ([]search.Result, error)
}

// Completer produces a language-model reply for a single prompt.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}
