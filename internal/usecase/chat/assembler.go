package chat

import (
	"strconv"
	"strings"

	"github.com/gridtech/portfolio/internal/domain/search"
)

const (
	noResultsContext = "No relevant data found in the portfolio."
	contextHeader    = "RELEVANT PORTFOLIO DATA:\n\n"
	blockSeparator   = "\n\n---\n\n"
)

// Assembler renders ranked results into the context block given to the language model.
// MaxChars > 0 bounds the output; whole blocks are dropped from the tail, the first is always kept.
type Assembler struct {
	MaxChars int
}

// Assemble renders results with no size bound.
func Assemble(results []search.Result) string {
	return Assembler{}.Assemble(results)
}

// Assemble renders results in the order given.
func (a Assembler) Assemble(results []search.Result) string {
	if len(results) == 0 {
		return noResultsContext
	}

	var b strings.Builder
	b.WriteString(contextHeader)
	for i, r := range results {
		block := formatBlock(i+1, r)
		if i > 0 {
			if a.MaxChars > 0 && b.Len()+len(blockSeparator)+len(block) > a.MaxChars {
				break
			}
			b.WriteString(blockSeparator)
		}
		b.WriteString(block)
	}
	return b.String()
}

// formatBlock renders "[n] SOURCE: Title\nContent\n(Relevance: xx.x%)".
func formatBlock(n int, r search.Result) string {
	source := string(r.Source)
	if source == "" {
		source = "data"
	}
	title := r.Title
	if title == "" {
		title = "Untitled"
	}

	var b strings.Builder
	b.WriteByte('[')
	b.WriteString(strconv.Itoa(n))
	b.WriteString("] ")
	b.WriteString(strings.ToUpper(source))
	b.WriteString(": ")
	b.WriteString(title)
	b.WriteByte('\n')
	b.WriteString(r.Content)
	b.WriteString("\n(Relevance: ")
	b.WriteString(strconv.FormatFloat(r.Similarity*100, 'f', 1, 64))
	b.WriteString("%)")
	return b.String()
}
