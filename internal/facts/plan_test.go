package facts

import (
	"strings"
	"testing"

	"github.com/eduanalytics/caaspp/internal/schema"
	"github.com/eduanalytics/caaspp/internal/table"
	"github.com/eduanalytics/caaspp/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readNormalized(t *testing.T, body string) *table.RawTable {
	t.Helper()
	tbl, err := table.Read([]byte(body), table.Options{Name: "fixture.txt"})
	require.NoError(t, err)
	tbl.Columns = schema.NormalizeColumns(tbl.Columns)
	return tbl
}

func TestRecordValuesFollowCanonicalOrder(t *testing.T) {
	rec := Record{
		YearKey:      2024,
		TestID:       "1",
		CntNotMet:    some(int64(5)),
		CDSCode:      some("01611190131177"),
		SchoolName:   some("Alameda High"),
		DistrictCode: some("61119"),
	}
	vals := rec.Values()
	require.Len(t, vals, len(schema.FactColumns))

	at := func(col string) any {
		for i, c := range schema.FactColumns {
			if c == col {
				return vals[i]
			}
		}
		t.Fatalf("no column %s", col)
		return nil
	}
	assert.Equal(t, int32(2024), at(schema.FactYearKey))
	assert.Equal(t, "1", at(schema.FactTestID))
	assert.Equal(t, int64(5), at(schema.FactCntNotMet))
	assert.Equal(t, "61119", at(schema.FactDistrictCode))
	assert.Equal(t, "01611190131177", at(schema.FactCDSCode))
	assert.Equal(t, "Alameda High", at(schema.FactSchoolName))
	assert.Nil(t, at(schema.FactPctNotMet))
	assert.Nil(t, at(schema.FactCountyName))
}

func TestReshapeFullRow(t *testing.T) {
	tbl := readNormalized(t, testutil.ResultsFile)
	lookup := LookupFromTable(readNormalized(t, testutil.EntitiesFile))

	p, err := NewPlan(tbl)
	require.NoError(t, err)

	rec, ok := p.Reshape(tbl, 1, 2024, lookup)
	require.True(t, ok)

	assert.Equal(t, 2024, rec.YearKey)
	assert.Equal(t, "2", rec.TestID)
	assert.Equal(t, some("1"), rec.Subgroup)
	assert.Equal(t, some("11"), rec.Grade)
	assert.Equal(t, some(int64(400)), rec.Tested, "legacy students_tested")
	assert.Equal(t, some(int64(398)), rec.TestedWithScores, "legacy students_with_scores")
	assert.Equal(t, some(2601.2), rec.MeanScaleScore)
	assert.Equal(t, some(30.0), rec.PctExceeded)
	assert.Equal(t, some(int64(119)), rec.CntExceeded)
	assert.Equal(t, some(55.0), rec.PctMetAndAbove)
	assert.Equal(t, some(int64(219)), rec.CntMetAndAbove)
	assert.Equal(t, some(int64(99)), rec.CntNotMet)
	assert.Equal(t, some("01"), rec.CountyCode)
	assert.Equal(t, some("61119"), rec.DistrictCode)
	assert.Equal(t, some("0131177"), rec.SchoolCode)
	assert.Equal(t, some("01611190131177"), rec.CDSCode)
	assert.Equal(t, some("Alameda"), rec.CountyName)
	assert.Equal(t, some("Alameda Unified"), rec.DistrictName, "enriched by cds_code")
	assert.Equal(t, some("Alameda High"), rec.SchoolName, "enriched by cds_code")
}

func TestReshapeSuppressedAndUnpaddedRow(t *testing.T) {
	tbl := readNormalized(t, testutil.ResultsFile)
	p, err := NewPlan(tbl)
	require.NoError(t, err)

	rec, ok := p.Reshape(tbl, 2, 2024, nil)
	require.True(t, ok)

	assert.Equal(t, some("01"), rec.CountyCode, "county code 1 padded")
	assert.Equal(t, some("01611190131177"), rec.CDSCode)
	assert.Equal(t, some(int64(12)), rec.Tested)
	assert.False(t, rec.MeanScaleScore.Valid)
	assert.False(t, rec.PctExceeded.Valid)
	assert.False(t, rec.CntExceeded.Valid)
	assert.False(t, rec.CountyName.Valid, "no lookup, no county name")
}

func TestReshapeMissingDistrictCode(t *testing.T) {
	body := strings.Join([]string{
		"County Code^School Code^Test Year^Student Group ID^Test Type^Grade^Test ID^Mean Scale Score^Total Students Tested with Scores^Count Standard Exceeded^Percentage Standard Exceeded",
		"01^0131177^2024^1^B^11^2^2601.2^398^119^30.00",
	}, "\n")
	tbl := readNormalized(t, body)
	lookup := LookupFromTable(readNormalized(t, testutil.EntitiesFile))

	p, err := NewPlan(tbl)
	require.NoError(t, err)
	assert.Contains(t, p.Missing(), schema.FactDistrictCode)
	assert.Equal(t, -1, p.Source(schema.FactDistrictCode))

	rec, ok := p.Reshape(tbl, 0, 2024, lookup)
	require.True(t, ok)

	assert.False(t, rec.DistrictCode.Valid)
	assert.False(t, rec.CDSCode.Valid, "cds_code needs all three codes")
	assert.Equal(t, some("01"), rec.CountyCode)
	assert.Equal(t, some("0131177"), rec.SchoolCode)
	assert.Equal(t, some("Alameda"), rec.CountyName, "county enrichment still applies")
	assert.False(t, rec.DistrictName.Valid)
	assert.Equal(t, some(int64(119)), rec.CntExceeded)
	assert.Equal(t, some(30.0), rec.PctExceeded)
	assert.Equal(t, some(int64(398)), rec.TestedWithScores)
	assert.False(t, rec.Tested.Valid)
	assert.False(t, rec.CntMet.Valid)
}

func TestMissingColumnsNeverShiftValues(t *testing.T) {
	// each metric removed in turn; the remaining ones keep their own values
	order := []string{
		"percentage_standard_exceeded", "count_standard_exceeded",
		"percentage_standard_met", "count_standard_met",
		"percentage_standard_not_met", "count_standard_not_met",
	}
	cells := map[string]string{
		"percentage_standard_exceeded": "10.5",
		"count_standard_exceeded":      "11",
		"percentage_standard_met":      "20.5",
		"count_standard_met":           "21",
		"percentage_standard_not_met":  "30.5",
		"count_standard_not_met":       "31",
	}
	want := map[string]any{
		"percentage_standard_exceeded": 10.5,
		"count_standard_exceeded":      int64(11),
		"percentage_standard_met":      20.5,
		"count_standard_met":           int64(21),
		"percentage_standard_not_met":  30.5,
		"count_standard_not_met":       int64(31),
	}

	for _, drop := range order {
		t.Run("without "+drop, func(t *testing.T) {
			cols := []string{"test_id"}
			row := []string{"1"}
			for _, c := range order {
				if c == drop {
					continue
				}
				cols = append(cols, c)
				row = append(row, cells[c])
			}
			tbl := &table.RawTable{Name: "t", Columns: cols, Rows: [][]string{row}}

			p, err := NewPlan(tbl)
			require.NoError(t, err)
			rec, ok := p.Reshape(tbl, 0, 2023, nil)
			require.True(t, ok)

			got := map[string]any{
				"percentage_standard_exceeded": value(rec.PctExceeded),
				"count_standard_exceeded":      value(rec.CntExceeded),
				"percentage_standard_met":      value(rec.PctMet),
				"count_standard_met":           value(rec.CntMet),
				"percentage_standard_not_met":  value(rec.PctNotMet),
				"count_standard_not_met":       value(rec.CntNotMet),
			}
			for _, c := range order {
				if c == drop {
					assert.Nil(t, got[c], c)
					continue
				}
				assert.Equal(t, want[c], got[c], c)
			}
		})
	}
}

func TestNewPlanRequiresTestID(t *testing.T) {
	tbl := &table.RawTable{Name: "no-subject.txt", Columns: []string{"county_code", "mean_scale_score"}}
	_, err := NewPlan(tbl)
	require.ErrorIs(t, err, ErrNoTestID)
	assert.Contains(t, err.Error(), "no-subject.txt")
}

func TestReshapeRowWithoutTestID(t *testing.T) {
	tbl := &table.RawTable{Columns: []string{"test_id", "grade"}, Rows: [][]string{{"", "3"}}}
	p, err := NewPlan(tbl)
	require.NoError(t, err)

	_, ok := p.Reshape(tbl, 0, 2024, nil)
	assert.False(t, ok)
}

func TestLookup(t *testing.T) {
	entities := ReadEntities(readNormalized(t, testutil.EntitiesFile))
	require.Len(t, entities, 5)
	assert.Equal(t, "00000000000000", entities[0].CDSCode)
	assert.Equal(t, "94501", entities[3].ZipCode)
	assert.Equal(t, "07", entities[3].TypeID)

	l := NewLookup(entities)
	assert.Equal(t, 5, l.Len())

	name, ok := l.CountyName("19")
	assert.True(t, ok)
	assert.Equal(t, "Los Angeles", name)

	_, ok = l.CountyName("1")
	assert.False(t, ok, "lookup keys are padded codes")

	e, ok := l.Entity("19647331933746")
	require.True(t, ok)
	assert.Equal(t, "Lincoln Elementary", e.SchoolName)

	var nilLookup *Lookup
	_, ok = nilLookup.CountyName("01")
	assert.False(t, ok)
	_, ok = nilLookup.Entity("x")
	assert.False(t, ok)
	assert.Nil(t, LookupFromTable(nil))
}
