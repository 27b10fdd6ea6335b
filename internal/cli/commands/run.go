package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/eduanalytics/caaspp/internal/engine"
	"github.com/eduanalytics/caaspp/internal/metrics"
	"github.com/eduanalytics/caaspp/internal/state"
	"github.com/spf13/cobra"
)

// RunOptions holds options for the run command.
type RunOptions struct {
	SkipIndex bool
	NoPush    bool
}

// NewRunCommand creates the run command.
func NewRunCommand() *cobra.Command {
	opts := &RunOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Load the configured years and rebuild the entity index",
		Long: `Run the ingestion pipeline over the configured window of academic years.

For every year the listing page is scanned for archives, each archive is
downloaded and classified, and the year's facts are replaced in a single
warehouse transaction. A failing year never stops the others and keeps its
prior facts. After all years the entity index is rebuilt from the latest
year's entities and the reference tables.

The command exits non-zero only when the whole run failed. A partial run
prints the failing years and exits zero.`,
		Example: `  # Load the default three-year window
  caaspp run

  # Load 2019 through 2023 with eight concurrent downloads
  caaspp run --latest-year 2023 --years 5 --workers 8

  # Load facts only
  caaspp run --skip-index

  # Machine-readable report
  caaspp run -o json`,
		Aliases: []string{"ingest"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRun(cmd, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.SkipIndex, "skip-index", false, "Do not rebuild the entity index")
	cmd.Flags().BoolVar(&opts.NoPush, "no-push", false, "Do not push metrics even if a pushgateway is configured")

	return cmd
}

func runRun(cmd *cobra.Command, opts *RunOptions) error {
	cc := NewCommandContext(cmd)
	defer func() { _ = cc.Close() }()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	m := metrics.New()
	eng, err := cc.NewEngine(ctx, EngineOptions{SkipIndex: opts.SkipIndex, Metrics: m})
	if err != nil {
		return err
	}

	report, runErr := eng.Run(ctx)

	if !opts.NoPush && cc.Cfg.Metrics.PushgatewayURL != "" {
		if err := m.Push(context.WithoutCancel(ctx), cc.Cfg.MetricsPushConfig()); err != nil {
			cc.Logger.Warn("failed to push metrics", slog.String("error", err.Error()))
		}
	}

	if report == nil {
		return fmt.Errorf("run failed: %w", runErr)
	}

	format := outputFormat(cmd)
	if err := render(cmd.OutOrStdout(), format, yearTable(report)); err != nil {
		return err
	}
	if format == FormatTable {
		printRunSummary(cmd.OutOrStdout(), report)
	}

	if runErr != nil {
		return fmt.Errorf("run %s failed: %w", report.RunID, runErr)
	}
	return nil
}

func yearTable(r *engine.Report) *tabular {
	t := &tabular{
		Title: fmt.Sprintf("Run %s (%s)", r.RunID, r.Window),
		Columns: []column{
			{"Year", "year"},
			{"Status", "status"},
			{"Archives", "archives"},
			{"Failed", "failed_archives"},
			{"Tables", "tables"},
			{"Rows", "rows"},
			{"Dropped", "dropped_rows"},
			{"Load Time", "load_seconds"},
			{"Error", "error"},
		},
	}
	for _, y := range r.Years {
		msg := ""
		if y.Err != nil {
			msg = y.Err.Error()
		}
		t.add(y.Year, y.Status, y.Archives, y.Failed, y.Load.Tables, y.Load.Rows, y.Load.DroppedRows, y.LoadTime, truncate(msg, 80))
	}
	return t
}

func printRunSummary(w io.Writer, r *engine.Report) {
	switch {
	case r.Index != nil:
		_, _ = fmt.Fprintf(w, "Entity index: %d documents in %d batches (%d duplicates dropped)\n",
			r.Index.Written, r.Index.Batches, r.Index.Duplicates)
	case r.IndexErr != nil:
		_, _ = fmt.Fprintf(w, "Entity index: not rebuilt: %v\n", r.IndexErr)
		_, _ = fmt.Fprintln(w, "  rerun with 'caaspp index' once the cause is fixed")
	default:
		_, _ = fmt.Fprintln(w, "Entity index: skipped")
	}

	_, _ = fmt.Fprintf(w, "Run %s %s in %s\n", r.RunID, r.Status, r.CompletedAt.Sub(r.StartedAt).Round(time.Millisecond))
	if r.Status == state.RunStatusPartial {
		for _, y := range r.Failed() {
			_, _ = fmt.Fprintf(w, "  year %d failed: %v\n", y.Year, y.Err)
		}
	}
}
