package facts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/eduanalytics/caaspp/internal/schema"
	"github.com/eduanalytics/caaspp/internal/table"
	"github.com/eduanalytics/caaspp/pkg/adapter"
)

// ErrNothingToLoad is returned when none of a year's tables could be
// reshaped. The warehouse is left untouched in that case.
var ErrNothingToLoad = errors.New("no loadable results table")

// Result summarizes one year's load.
type Result struct {
	Year int
	// Tables is the number of tables streamed into the warehouse.
	Tables int
	// Abandoned lists tables dropped before loading, with the reason.
	Abandoned []error
	Rows      int64
	// DroppedRows counts rows without a test identifier.
	DroppedRows int
}

// Loader reshapes results tables and replaces a year's facts.
type Loader struct {
	warehouse adapter.Warehouse
	logger    *slog.Logger
}

// NewLoader creates a Loader. If logger is nil, a discard logger is used.
func NewLoader(w adapter.Warehouse, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Loader{warehouse: w, logger: logger}
}

// Load replaces every fact of year with the rows of tables, in one
// warehouse transaction. Tables without a test_id column are abandoned and
// reported in Result.Abandoned; if no table is left, ErrNothingToLoad is
// returned joined with the reasons and the year's prior facts stay as they
// were. lookup may be nil.
func (l *Loader) Load(ctx context.Context, year int, tables []*table.RawTable, lookup *Lookup) (Result, error) {
	res := Result{Year: year}

	var planned []plannedTable
	for _, t := range tables {
		if t == nil {
			continue
		}
		t = withSynonyms(t)
		p, err := NewPlan(t)
		if err != nil {
			l.logger.Warn("abandoning results table", slog.Int("year", year), slog.String("table", t.Name), slog.String("error", err.Error()))
			res.Abandoned = append(res.Abandoned, err)
			continue
		}
		if missing := p.Missing(); len(missing) > 0 {
			l.logger.Info("results table lacks columns, loading as null",
				slog.Int("year", year), slog.String("table", t.Name), slog.Any("columns", missing))
		}
		planned = append(planned, plannedTable{table: t, plan: p})
	}

	if len(planned) == 0 {
		return res, errors.Join(append([]error{fmt.Errorf("year %d: %w", year, ErrNothingToLoad)}, res.Abandoned...)...)
	}

	if lookup == nil {
		l.logger.Debug("no entities lookup, county names stay null", slog.Int("year", year))
	}

	src := &stream{year: year, tables: planned, lookup: lookup, ctx: ctx}
	n, err := l.warehouse.ReplaceYear(ctx, year, schema.FactColumns, src)
	if err != nil {
		return res, fmt.Errorf("failed to load facts for %d: %w", year, err)
	}

	res.Tables = len(planned)
	res.Rows = n
	res.DroppedRows = src.dropped
	l.logger.Info("loaded facts",
		slog.Int("year", year),
		slog.Int("tables", res.Tables),
		slog.Int64("rows", n),
		slog.Int("dropped_rows", src.dropped))
	return res, nil
}

// withSynonyms returns t with any still-unrenamed legacy columns mapped to
// their canonical names. Rows are shared, not copied.
func withSynonyms(t *table.RawTable) *table.RawTable {
	cols := schema.ApplySynonyms(t.Columns)
	return &table.RawTable{Name: t.Name, Columns: cols, Rows: t.Rows}
}

type plannedTable struct {
	table *table.RawTable
	plan  Plan
}

// stream is the adapter.RowSource over a year's planned tables. Rows are
// reshaped lazily so a large file is never materialized twice.
type stream struct {
	ctx    context.Context
	year   int
	tables []plannedTable
	lookup *Lookup

	ti, ri  int
	current []any
	dropped int
	err     error
}

func (s *stream) Next() bool {
	for s.ti < len(s.tables) {
		if err := s.ctx.Err(); err != nil {
			s.err = err
			return false
		}
		pt := s.tables[s.ti]
		if s.ri >= len(pt.table.Rows) {
			s.ti++
			s.ri = 0
			continue
		}
		rec, ok := pt.plan.Reshape(pt.table, s.ri, s.year, s.lookup)
		s.ri++
		if !ok {
			s.dropped++
			continue
		}
		s.current = rec.Values()
		return true
	}
	return false
}

func (s *stream) Values() ([]any, error) { return s.current, nil }

func (s *stream) Err() error { return s.err }
