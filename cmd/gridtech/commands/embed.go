package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	dombatch "github.com/gridtech/portfolio/internal/domain/batch"
	"github.com/gridtech/portfolio/internal/domain/record"
)

// NewEmbedCmd creates the embed command.
func NewEmbedCmd(opts *rootOptions) *cobra.Command {
	var (
		kinds []string
		flags embedFlags
	)

	cmd := &cobra.Command{
		Use:   "embed",
		Short: "Generate embeddings for portfolio records",
		Long: `Recompute content_for_search and the embedding of every record, then upsert the
searchable vector. Runs are idempotent and rate limited (batch.interval_ms).

A failing record is reported and skipped; the run continues. Ctrl-C stops before
the next record and prints the partial report.

Examples:
  gridtech embed
  gridtech embed --kind technologies --kind pilots
  gridtech embed --reindex    # restore vectors from stored embeddings, no provider calls
  gridtech embed --migrate    # create missing record tables first (local/dev)
  gridtech embed --rebuild-index --reindex    # after changing embedding.dimensions`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			selected, err := parseKinds(kinds)
			if err != nil {
				return err
			}
			return runEmbed(cmd.Context(), cmd.OutOrStdout(), opts, selected, flags)
		},
	}

	cmd.Flags().StringSliceVar(&kinds, "kind", nil, "Record kind to process (technology, pilot, watchlist); repeatable")
	cmd.Flags().BoolVar(&flags.reindex, "reindex", false, "Rebuild vectors from stored embeddings without calling the provider")
	cmd.Flags().BoolVar(&flags.migrate, "migrate", false, "Add missing tables and embedding columns before running")
	cmd.Flags().BoolVar(&flags.rebuildIndex, "rebuild-index", false, "Drop and recreate the vector indexes before running")
	return cmd
}

// parseKinds resolves flag values; no values selects every kind.
func parseKinds(vals []string) ([]record.Kind, error) {
	if len(vals) == 0 {
		return record.Kinds, nil
	}
	out := make([]record.Kind, 0, len(vals))
	seen := make(map[record.Kind]bool, len(vals))
	for _, v := range vals {
		k, err := record.ParseKind(v)
		if err != nil {
			return nil, err
		}
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	return out, nil
}

type embedFlags struct {
	reindex      bool
	migrate      bool
	rebuildIndex bool
}

func runEmbed(ctx context.Context, out io.Writer, opts *rootOptions, kinds []record.Kind, flags embedFlags) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, opts)
	if err != nil {
		return err
	}
	defer a.close()

	if flags.migrate {
		if err := a.records.Migrate(ctx); err != nil {
			return err
		}
		a.logger.Info("Record tables migrated")
	}
	if flags.rebuildIndex {
		if err := a.vectors.RebuildIndexes(ctx); err != nil {
			return err
		}
		a.logger.Info("Vector indexes rebuilt", zap.Int("dimensions", a.vectors.Dimensions()))
	}

	svc := a.batchService()
	reports := make([]dombatch.Report, 0, len(kinds))
	var runErr error
	for _, kind := range kinds {
		var rep dombatch.Report
		if flags.reindex {
			rep, err = svc.Reindex(ctx, kind)
		} else {
			rep, err = svc.Run(ctx, kind)
		}
		reports = append(reports, rep)
		if err != nil {
			a.logger.Error("Embedding run failed", zap.String("kind", string(kind)), zap.Error(err))
			runErr = err
			if ctx.Err() != nil {
				break
			}
		}
	}

	if err := printReports(out, reports); err != nil {
		return err
	}
	if runErr != nil {
		return runErr
	}
	if n := failedCount(reports); n > 0 {
		return fmt.Errorf("%d record(s) failed", n)
	}
	return nil
}

func printReports(out io.Writer, reports []dombatch.Report) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "KIND\tATTEMPTED\tSUCCEEDED\tFAILED\n")
	for _, r := range reports {
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\n", r.Kind, r.Attempted, r.Succeeded, len(r.Failures))
	}
	if err := w.Flush(); err != nil {
		return err
	}

	for _, r := range reports {
		for _, f := range r.Failures {
			fmt.Fprintf(out, "  %s %s: %s\n", r.Kind, f.ID, f.Reason)
		}
	}
	return nil
}

func failedCount(reports []dombatch.Report) int {
	n := 0
	for _, r := range reports {
		n += len(r.Failures)
	}
	return n
}
