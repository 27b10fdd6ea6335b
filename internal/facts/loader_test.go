package facts

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/eduanalytics/caaspp/internal/schema"
	"github.com/eduanalytics/caaspp/internal/table"
	"github.com/eduanalytics/caaspp/internal/testutil"
	"github.com/eduanalytics/caaspp/pkg/adapter"
	"github.com/eduanalytics/caaspp/pkg/adapters/duckdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingWarehouse drains the row source and keeps the rows per year.
type recordingWarehouse struct {
	adapter.Warehouse
	columns []string
	rows    map[int][][]any
	calls   int
	err     error
}

func (w *recordingWarehouse) ReplaceYear(_ context.Context, year int, columns []string, src adapter.RowSource) (int64, error) {
	w.calls++
	if w.err != nil {
		return 0, w.err
	}
	w.columns = columns
	var rows [][]any
	for src.Next() {
		v, err := src.Values()
		if err != nil {
			return 0, err
		}
		rows = append(rows, v)
	}
	if err := src.Err(); err != nil {
		return 0, err
	}
	if w.rows == nil {
		w.rows = map[int][][]any{}
	}
	w.rows[year] = rows
	return int64(len(rows)), nil
}

func TestLoaderStreamsCanonicalRows(t *testing.T) {
	w := &recordingWarehouse{}
	l := NewLoader(w, testutil.NewTestLogger(t))

	tests := readNormalized(t, testutil.ResultsFile)
	lookup := LookupFromTable(readNormalized(t, testutil.EntitiesFile))

	res, err := l.Load(context.Background(), 2024, []*table.RawTable{tests}, lookup)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Tables)
	assert.Equal(t, int64(3), res.Rows)
	assert.Empty(t, res.Abandoned)
	assert.Equal(t, schema.FactColumns, w.columns)

	rows := w.rows[2024]
	require.Len(t, rows, 3)
	for _, r := range rows {
		assert.Len(t, r, len(schema.FactColumns))
		assert.Equal(t, int32(2024), r[0])
	}
	// statewide row
	assert.Equal(t, "00000000000000", rows[0][20])
	assert.Equal(t, "State of California", rows[0][21])
}

func TestLoaderLoadsAllTablesOfAYearTogether(t *testing.T) {
	w := &recordingWarehouse{}
	l := NewLoader(w, nil)

	a := readNormalized(t, testutil.ResultsFile)
	b := readNormalized(t, testutil.ResultsFile)

	res, err := l.Load(context.Background(), 2023, []*table.RawTable{a, nil, b}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, w.calls, "one transaction per year")
	assert.Equal(t, 2, res.Tables)
	assert.Equal(t, int64(6), res.Rows)
}

func TestLoaderAbandonsTableWithoutTestID(t *testing.T) {
	w := &recordingWarehouse{}
	logger, logs := testutil.NewCaptureLogger()
	l := NewLoader(w, logger)

	bad := &table.RawTable{Name: "broken.txt", Columns: []string{"county_code", "mean_scale_score"}, Rows: [][]string{{"01", "1"}}}
	good := readNormalized(t, testutil.ResultsFile)

	res, err := l.Load(context.Background(), 2024, []*table.RawTable{bad, good}, nil)
	require.NoError(t, err)
	require.Len(t, res.Abandoned, 1)
	assert.ErrorIs(t, res.Abandoned[0], ErrNoTestID)
	assert.Equal(t, int64(3), res.Rows)
	assert.Contains(t, logs.String(), "abandoning results table")
}

func TestLoaderNothingToLoadLeavesWarehouseUntouched(t *testing.T) {
	w := &recordingWarehouse{}
	l := NewLoader(w, nil)

	bad := &table.RawTable{Name: "broken.txt", Columns: []string{"grade"}}
	_, err := l.Load(context.Background(), 2024, []*table.RawTable{bad}, nil)

	require.ErrorIs(t, err, ErrNothingToLoad)
	assert.ErrorIs(t, err, ErrNoTestID)
	assert.Zero(t, w.calls)
}

func TestLoaderDropsRowsWithoutTestID(t *testing.T) {
	w := &recordingWarehouse{}
	l := NewLoader(w, nil)

	tbl := &table.RawTable{Columns: []string{"test_id", "grade"}, Rows: [][]string{{"1", "3"}, {"", "4"}, {"NA", "5"}, {"2", "6"}}}
	res, err := l.Load(context.Background(), 2024, []*table.RawTable{tbl}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Rows)
	assert.Equal(t, 2, res.DroppedRows)
}

func TestLoaderAppliesLegacySynonyms(t *testing.T) {
	w := &recordingWarehouse{}
	l := NewLoader(w, nil)

	// columns normalized but not renamed, as a caller outside the archive
	// parser might hand them over
	tbl := &table.RawTable{
		Columns: []string{"test_id", "students_tested", "percentage_standard_met_and_exceeded"},
		Rows:    [][]string{{"1", "40", "55.5"}},
	}
	_, err := l.Load(context.Background(), 2024, []*table.RawTable{tbl}, nil)
	require.NoError(t, err)

	row := w.rows[2024][0]
	assert.Equal(t, int64(40), row[4])
	assert.Equal(t, 55.5, row[11])
	assert.Equal(t, []string{"test_id", "students_tested", "percentage_standard_met_and_exceeded"}, tbl.Columns, "input not mutated")
}

func TestLoaderReportsWarehouseFailure(t *testing.T) {
	w := &recordingWarehouse{err: errors.New("connection reset")}
	l := NewLoader(w, nil)

	_, err := l.Load(context.Background(), 2024, []*table.RawTable{readNormalized(t, testutil.ResultsFile)}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestLoaderCanceledContextStopsStream(t *testing.T) {
	w := &recordingWarehouse{}
	l := NewLoader(w, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := l.Load(ctx, 2024, []*table.RawTable{readNormalized(t, testutil.ResultsFile)}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func newDuckDB(t *testing.T) *duckdb.Adapter {
	t.Helper()
	ctx := context.Background()
	w := duckdb.New(nil)
	require.NoError(t, w.Connect(ctx, adapter.Config{Type: "duckdb", Path: ":memory:"}))
	t.Cleanup(func() { _ = w.Close() })
	require.NoError(t, w.Migrate(ctx))
	return w
}

func snapshot(t *testing.T, w *duckdb.Adapter, year int) []string {
	t.Helper()
	rows, err := w.DB.QueryContext(context.Background(), `
		SELECT test_id, coalesce(subgroup, ''), coalesce(cds_code, ''), coalesce(district_code, ''),
		       coalesce(cast(cnt_exceeded AS VARCHAR), ''), coalesce(county_name, '')
		FROM "analytics"."fact_scores" WHERE year_key = ?
		ORDER BY 1, 2, 3`, year)
	require.NoError(t, err)
	defer func() { _ = rows.Close() }()

	var out []string
	for rows.Next() {
		var a, b, c, d, e, f string
		require.NoError(t, rows.Scan(&a, &b, &c, &d, &e, &f))
		out = append(out, strings.Join([]string{a, b, c, d, e, f}, "|"))
	}
	require.NoError(t, rows.Err())
	return out
}

func TestLoadIsIdempotent(t *testing.T) {
	ctx := context.Background()
	w := newDuckDB(t)
	l := NewLoader(w, nil)
	lookup := LookupFromTable(readNormalized(t, testutil.EntitiesFile))

	_, err := l.Load(ctx, 2024, []*table.RawTable{readNormalized(t, testutil.ResultsFile)}, lookup)
	require.NoError(t, err)
	first := snapshot(t, w, 2024)

	_, err = l.Load(ctx, 2024, []*table.RawTable{readNormalized(t, testutil.ResultsFile)}, lookup)
	require.NoError(t, err)
	second := snapshot(t, w, 2024)

	require.Len(t, first, 3)
	assert.Equal(t, first, second)
}

func TestLoadMissingDistrictCodeEndToEnd(t *testing.T) {
	ctx := context.Background()
	w := newDuckDB(t)
	l := NewLoader(w, nil)

	body := strings.Join([]string{
		"County Code^School Code^Test Year^Student Group ID^Test Type^Grade^Test ID^Mean Scale Score^Students with Scores^Count Standard Exceeded",
		"01^0131177^2024^1^B^11^2^2601.2^398^119",
	}, "\n")

	res, err := l.Load(ctx, 2024, []*table.RawTable{readNormalized(t, body)}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Rows)

	assert.Equal(t, []string{"2|1|||119|"}, snapshot(t, w, 2024))
}
