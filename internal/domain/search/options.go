package search

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/gridtech/portfolio/internal/domain"
	"github.com/gridtech/portfolio/internal/domain/record"
)

// Search defaults and bounds.
const (
	DefaultThreshold = 0.5
	DefaultLimit     = 10
	MaxLimit         = 50
)

// Options tunes a single search call.
type Options struct {
	Threshold float64
	Limit     int
	Scope     Scope
}

// DefaultOptions returns threshold 0.5, limit 10, full-portfolio scope.
func DefaultOptions() Options {
	return Options{Threshold: DefaultThreshold, Limit: DefaultLimit, Scope: ScopeFullPortfolio}
}

// Validate rejects out-of-range values; nothing is clamped.
func (o Options) Validate() error {
	if math.IsNaN(o.Threshold) || o.Threshold < 0 || o.Threshold > 1 {
		return fmt.Errorf("%w: threshold must be within [0,1], got %v", domain.ErrInvalidQuery, o.Threshold)
	}
	if o.Limit < 1 || o.Limit > MaxLimit {
		return fmt.Errorf("%w: limit must be within [1,%d], got %d", domain.ErrInvalidQuery, MaxLimit, o.Limit)
	}
	return nil
}

// ValidateQuery rejects empty and whitespace-only queries.
func ValidateQuery(q string) error {
	if strings.TrimSpace(q) == "" {
		return fmt.Errorf("%w: query is required", domain.ErrInvalidQuery)
	}
	return nil
}

// Result is a single ranked match. It is never persisted.
type Result struct {
	Source     record.Kind
	ID         string
	Title      string
	Content    string
	Similarity float64
}

// Rank filters results below threshold, orders them by similarity descending with
// ID ascending as the tie-break, and caps the slice at limit.
// The order is deterministic for the given input; a caller that truncates candidates
// before Rank decides which tied records reach it.
func Rank(results []Result, threshold float64, limit int) []Result {
	kept := make([]Result, 0, len(results))
	for _, r := range results {
		if r.Similarity >= threshold {
			kept = append(kept, r)
		}
	}
	slices.SortStableFunc(kept, func(a, b Result) int {
		if c := cmp.Compare(b.Similarity, a.Similarity); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	if limit > 0 && len(kept) > limit {
		kept = kept[:limit]
	}
	return kept
}
