package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/gridtech/portfolio/internal/domain/search"
)

const previewLen = 80

// NewSearchCmd creates the search command.
func NewSearchCmd(opts *rootOptions) *cobra.Command {
	var (
		scope     string
		threshold float64
		limit     int
		asJSON    bool
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the portfolio",
		Long: `Run a scoped semantic search, exactly as the assistant does before answering.

Scopes: full-portfolio, pilots-only, technology-library, risk-register,
market-intelligence. Unknown scopes search the full portfolio.

Examples:
  gridtech search "hydrogen storage"
  gridtech search --scope pilots-only --limit 5 "line rating"
  gridtech search --json "sodium-ion vendors"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			o := search.Options{Threshold: threshold, Limit: limit, Scope: search.Scope(scope)}
			return runSearch(cmd.Context(), cmd.OutOrStdout(), opts, strings.Join(args, " "), o, asJSON)
		},
	}

	cmd.Flags().StringVar(&scope, "scope", string(search.ScopeFullPortfolio), "Data scope")
	cmd.Flags().Float64Var(&threshold, "threshold", search.DefaultThreshold, "Minimum similarity in [0,1]")
	cmd.Flags().IntVar(&limit, "limit", search.DefaultLimit, fmt.Sprintf("Maximum results (1-%d)", search.MaxLimit))
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print results as JSON")
	return cmd
}

func runSearch(ctx context.Context, out io.Writer, opts *rootOptions, query string, o search.Options, asJSON bool) error {
	if err := search.ValidateQuery(query); err != nil {
		return err
	}
	if err := o.Validate(); err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := newApp(ctx, opts)
	if err != nil {
		return err
	}
	defer a.close()

	results, err := a.searchService().Search(ctx, query, o)
	if err != nil {
		return err
	}
	return printResults(out, query, results, asJSON)
}

type resultJSON struct {
	Source     string  `json:"source"`
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Content    string  `json:"content"`
	Similarity float64 `json:"similarity"`
}

func printResults(out io.Writer, query string, results []search.Result, asJSON bool) error {
	if asJSON {
		items := make([]resultJSON, len(results))
		for i, r := range results {
			items[i] = resultJSON{
				Source: string(r.Source), ID: r.ID, Title: r.Title, Content: r.Content, Similarity: r.Similarity,
			}
		}
		data, err := json.MarshalIndent(items, "", "  ")
		if err != nil {
			return fmt.Errorf("marshaling JSON: %w", err)
		}
		fmt.Fprintf(out, "%s\n", data)
		return nil
	}

	if len(results) == 0 {
		fmt.Fprintf(out, "No portfolio records found for query: %s\n", query)
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "SIMILARITY\tSOURCE\tID\tTITLE\tPREVIEW\n")
	for _, r := range results {
		fmt.Fprintf(w, "%.1f%%\t%s\t%s\t%s\t%s\n",
			r.Similarity*100, r.Source, r.ID, r.Title, preview(r.Content))
	}
	return w.Flush()
}

// preview flattens content to one line and truncates it on a rune boundary.
func preview(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= previewLen {
		return s
	}
	return string(runes[:previewLen-3]) + "..."
}
