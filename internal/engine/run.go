package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/eduanalytics/caaspp/internal/entityindex"
	"github.com/eduanalytics/caaspp/internal/facts"
	"github.com/eduanalytics/caaspp/internal/state"
	"github.com/eduanalytics/caaspp/internal/table"
	"github.com/eduanalytics/caaspp/pkg/adapter"
)

// YearReport is the outcome of one year.
type YearReport struct {
	Year     int
	Status   state.YearStatus
	Archives int
	Failed   int
	Load     facts.Result
	// LoadTime is the duration of the warehouse replace, zero if none ran.
	LoadTime time.Duration
	Err      error
}

// Report is the outcome of a run.
type Report struct {
	RunID       string
	Window      Window
	Status      state.RunStatus
	Years       []YearReport
	Index       *entityindex.Stats
	IndexErr    error
	StartedAt   time.Time
	CompletedAt time.Time
}

// Failed returns the years that failed.
func (r *Report) Failed() []YearReport {
	var out []YearReport
	for _, y := range r.Years {
		if y.Status == state.YearStatusFailed {
			out = append(out, y)
		}
	}
	return out
}

// Err joins every year and index error.
func (r *Report) Err() error {
	var errs []error
	for _, y := range r.Years {
		if y.Err != nil {
			errs = append(errs, fmt.Errorf("year %d: %w", y.Year, y.Err))
		}
	}
	if r.IndexErr != nil {
		errs = append(errs, fmt.Errorf("entity index: %w", r.IndexErr))
	}
	return errors.Join(errs...)
}

// yearEntities is the entities table of one processed year.
type yearEntities struct {
	year  int
	table *table.RawTable
}

// Run processes every year of the window, then rebuilds the entity index.
// A failing year never stops the others. The returned report is non-nil
// once the run has started; the error is non-nil only when the run failed
// as a whole.
func (e *Engine) Run(ctx context.Context) (*Report, error) {
	report := &Report{Window: e.window, StartedAt: time.Now().UTC()}
	e.logger.Info("starting run", slog.String("window", e.window.String()))

	if e.ledger != nil {
		run, err := e.ledger.CreateRun(ctx, e.window.First, e.window.Last)
		if err != nil {
			return nil, fmt.Errorf("failed to create run: %w", err)
		}
		report.RunID = run.ID
		e.logger.Debug("created run", slog.String("run_id", run.ID))
	}

	if err := e.ensureYears(ctx); err != nil {
		report.Status = state.RunStatusFailed
		e.finish(ctx, report, err.Error())
		return report, err
	}

	var latest *yearEntities
	for _, year := range e.window.Years() {
		yr := YearReport{Year: year, Status: state.YearStatusFailed, Err: ctx.Err()}
		var entities *table.RawTable
		if yr.Err == nil {
			yr, entities = e.processYear(ctx, report.RunID, year)
		}
		report.Years = append(report.Years, yr)
		e.recordYear(ctx, report.RunID, yr)
		if entities != nil {
			latest = &yearEntities{year: year, table: entities}
		}
	}

	if e.index != nil && ctx.Err() == nil {
		stats, err := e.buildIndex(ctx, latest)
		if err != nil {
			report.IndexErr = err
			e.logger.Error("entity index build failed", slog.String("error", err.Error()))
		} else {
			report.Index = &stats
			e.metrics.RecordIndex(stats.Written)
		}
	}

	report.Status = runStatus(report, ctx.Err())
	var runErr error
	if report.Status == state.RunStatusFailed {
		runErr = report.Err()
		if runErr == nil {
			runErr = ctx.Err()
		}
	}
	msg := ""
	if err := report.Err(); err != nil {
		msg = err.Error()
	}
	e.finish(ctx, report, msg)
	return report, runErr
}

func (e *Engine) ensureYears(ctx context.Context) error {
	years := e.window.Years()
	dims := make([]adapter.Year, 0, len(years))
	for _, y := range years {
		dims = append(dims, adapter.Year{Key: y, Label: adapter.YearLabel(y)})
	}
	if err := e.warehouse.EnsureYears(ctx, dims); err != nil {
		return fmt.Errorf("failed to ensure year dimension: %w", err)
	}
	return nil
}

// processYear locates, fetches and loads one year. It returns the year's
// entities table when one was found.
func (e *Engine) processYear(ctx context.Context, runID string, year int) (YearReport, *table.RawTable) {
	yr := YearReport{Year: year}
	log := e.logger.With(slog.Int("year", year))

	urls, err := e.locator.Locate(ctx, year)
	if err != nil {
		yr.Status, yr.Err = state.YearStatusFailed, err
		log.Error("failed to locate archives", slog.String("error", err.Error()))
		return yr, nil
	}
	yr.Archives = len(urls)

	if len(urls) == 0 {
		if !e.purge {
			yr.Status = state.YearStatusSkipped
			log.Warn("no archives located, keeping prior facts")
			return yr, nil
		}
		n, err := e.warehouse.DeleteYear(ctx, year)
		if err != nil {
			yr.Status, yr.Err = state.YearStatusFailed, fmt.Errorf("failed to purge year: %w", err)
			return yr, nil
		}
		yr.Status = state.YearStatusPurged
		log.Warn("no archives located, purged prior facts", slog.Int64("rows", n))
		return yr, nil
	}

	results := e.fetchAll(ctx, runID, year, urls)
	tests, entities, archiveErrs := split(results)
	yr.Failed = len(archiveErrs)

	// Replacing the year without a failed archive would drop that archive's
	// rows, so the prior facts stay until every archive parses.
	if len(archiveErrs) > 0 {
		yr.Status = state.YearStatusFailed
		yr.Err = errors.Join(archiveErrs...)
		log.Error("archives failed, keeping prior facts", slog.Int("archives", len(urls)), slog.Int("failed", yr.Failed))
		return yr, entities
	}
	if len(tests) == 0 {
		yr.Status = state.YearStatusFailed
		yr.Err = fmt.Errorf("%w in %d archive(s)", facts.ErrNothingToLoad, len(urls))
		log.Error("no results table for year", slog.Int("archives", len(urls)))
		return yr, entities
	}

	started := time.Now()
	res, err := e.loader.Load(ctx, year, tests, facts.LookupFromTable(entities))
	yr.Load, yr.LoadTime = res, time.Since(started)
	if err != nil {
		yr.Status, yr.Err = state.YearStatusFailed, err
		return yr, entities
	}
	yr.Status = state.YearStatusLoaded
	return yr, entities
}

func (e *Engine) recordYear(ctx context.Context, runID string, yr YearReport) {
	e.metrics.RecordYear(yr.Year, string(yr.Status), yr.Load.Rows, yr.Load.DroppedRows, yr.LoadTime)

	if e.ledger == nil || runID == "" {
		return
	}
	out := &state.YearOutcome{
		RunID:       runID,
		Year:        yr.Year,
		Status:      yr.Status,
		Archives:    yr.Archives,
		Tables:      yr.Load.Tables,
		Rows:        yr.Load.Rows,
		DroppedRows: yr.Load.DroppedRows,
	}
	if yr.Err != nil {
		out.Error = yr.Err.Error()
	}
	if err := e.ledger.RecordYear(context.WithoutCancel(ctx), out); err != nil {
		e.logger.Warn("failed to record year outcome", slog.Int("year", yr.Year), slog.String("error", err.Error()))
	}
}

func runStatus(r *Report, ctxErr error) state.RunStatus {
	failed := len(r.Failed())
	switch {
	case len(r.Years) == 0 || failed == len(r.Years):
		return state.RunStatusFailed
	case ctxErr != nil:
		return state.RunStatusFailed
	case failed > 0 || r.IndexErr != nil:
		return state.RunStatusPartial
	default:
		return state.RunStatusCompleted
	}
}

func (e *Engine) finish(ctx context.Context, r *Report, errMsg string) {
	r.CompletedAt = time.Now().UTC()
	took := r.CompletedAt.Sub(r.StartedAt)
	e.metrics.RecordRun(string(r.Status), r.CompletedAt, took)

	docs := 0
	if r.Index != nil {
		docs = r.Index.Written
	}
	if e.ledger != nil && r.RunID != "" {
		if err := e.ledger.CompleteRun(context.WithoutCancel(ctx), r.RunID, r.Status, docs, errMsg); err != nil {
			e.logger.Warn("failed to complete run", slog.String("run_id", r.RunID), slog.String("error", err.Error()))
		}
	}

	level := slog.LevelInfo
	if r.Status != state.RunStatusCompleted {
		level = slog.LevelWarn
	}
	e.logger.Log(ctx, level, "run finished",
		slog.String("run_id", r.RunID),
		slog.String("status", string(r.Status)),
		slog.Int("years", len(r.Years)),
		slog.Int("failed_years", len(r.Failed())),
		slog.Int("index_documents", docs),
		slog.Duration("took", took))
}
