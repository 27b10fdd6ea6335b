package commands

import (
	"errors"
	"fmt"

	"github.com/eduanalytics/caaspp/internal/state"
	"github.com/spf13/cobra"
)

// StatusOptions holds options for the status command.
type StatusOptions struct {
	Limit    int
	Archives bool
}

// NewStatusCommand creates the status command.
func NewStatusCommand() *cobra.Command {
	opts := &StatusOptions{}

	cmd := &cobra.Command{
		Use:   "status [run-id|latest]",
		Short: "Show recorded runs and their per-year outcomes",
		Long: `Read the run ledger.

Without arguments the most recent runs are listed. With a run id (or
"latest") the outcome of every year of that run is shown, and with
--archives every downloaded archive as well.`,
		Example: `  # Recent runs
  caaspp status

  # Years and archives of the last run
  caaspp status latest --archives`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd, args, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 20, "Number of runs to list (0 for all)")
	cmd.Flags().BoolVar(&opts.Archives, "archives", false, "Also list the archives of the run")

	return cmd
}

func runStatus(cmd *cobra.Command, args []string, opts *StatusOptions) error {
	cc := NewCommandContext(cmd)
	defer func() { _ = cc.Close() }()

	ledger, err := cc.OpenLedger(cmd.Context())
	if err != nil {
		return err
	}

	if len(args) == 0 {
		return listRuns(cmd, ledger, opts.Limit)
	}
	return showRun(cmd, ledger, args[0], opts.Archives)
}

func listRuns(cmd *cobra.Command, ledger state.Store, limit int) error {
	if limit <= 0 {
		limit = -1
	}
	runs, err := ledger.ListRuns(cmd.Context(), limit)
	if err != nil {
		return err
	}

	t := &tabular{
		Columns: []column{
			{"Run", "run_id"},
			{"Status", "status"},
			{"Years", "years"},
			{"Started", "started_at"},
			{"Duration", "duration_seconds"},
			{"Index Docs", "index_documents"},
			{"Error", "error"},
		},
	}
	for _, r := range runs {
		t.add(r.ID, r.Status, fmt.Sprintf("%d-%d", r.FirstYear, r.LastYear), r.StartedAt, r.Duration(), r.IndexDocuments, truncate(r.Error, 60))
	}
	return render(cmd.OutOrStdout(), outputFormat(cmd), t)
}

func showRun(cmd *cobra.Command, ledger state.Store, id string, archives bool) error {
	ctx := cmd.Context()

	var run *state.Run
	var err error
	if id == "latest" {
		run, err = ledger.GetLatestRun(ctx)
	} else {
		run, err = ledger.GetRun(ctx, id)
	}
	if errors.Is(err, state.ErrRunNotFound) {
		return fmt.Errorf("run %q not found", id)
	}
	if err != nil {
		return err
	}

	years, err := ledger.GetYearOutcomes(ctx, run.ID)
	if err != nil {
		return err
	}

	t := &tabular{
		Title: fmt.Sprintf("Run %s: %s", run.ID, run.Status),
		Columns: []column{
			{"Year", "year"},
			{"Status", "status"},
			{"Archives", "archives"},
			{"Tables", "tables"},
			{"Rows", "rows"},
			{"Dropped", "dropped_rows"},
			{"Error", "error"},
		},
	}
	for _, y := range years {
		t.add(y.Year, y.Status, y.Archives, y.Tables, y.Rows, y.DroppedRows, truncate(y.Error, 80))
	}
	if err := render(cmd.OutOrStdout(), outputFormat(cmd), t); err != nil {
		return err
	}
	if !archives {
		return nil
	}

	outcomes, err := ledger.GetArchiveOutcomes(ctx, run.ID)
	if err != nil {
		return err
	}
	at := &tabular{
		Title: "Archives",
		Columns: []column{
			{"Year", "year"},
			{"Status", "status"},
			{"Bytes", "bytes"},
			{"Skipped", "skipped_entries"},
			{"URL", "url"},
			{"Error", "error"},
		},
	}
	for _, a := range outcomes {
		at.add(a.Year, a.Status, a.Bytes, a.Skipped, a.URL, truncate(a.Error, 60))
	}
	return render(cmd.OutOrStdout(), outputFormat(cmd), at)
}
