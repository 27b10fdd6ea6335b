package facts

import (
	"errors"
	"fmt"

	"github.com/eduanalytics/caaspp/internal/schema"
	"github.com/eduanalytics/caaspp/internal/table"
)

// ErrNoTestID is returned when a results table has no test identifier
// column; the subject of its rows cannot be inferred.
var ErrNoTestID = errors.New("results table has no test_id column")

// Plan maps every canonical fact column to its source column index in one
// table, or -1 when the source lacks it. Values are always read by name
// through the plan, never by position, so a missing column becomes a null
// instead of shifting its neighbours.
type Plan struct {
	index map[string]int
}

// NewPlan builds the plan for a normalized results table.
func NewPlan(t *table.RawTable) (Plan, error) {
	p := Plan{index: make(map[string]int, len(schema.FactColumns))}
	for _, fact := range schema.FactColumns {
		p.index[fact] = -1
		if src, ok := schema.FactSources[fact]; ok {
			p.index[fact] = t.Index(src)
		}
	}
	if p.index[schema.FactTestID] < 0 {
		return Plan{}, fmt.Errorf("%s: %w", t.Name, ErrNoTestID)
	}
	return p, nil
}

// Source returns the source column index for a fact column.
func (p Plan) Source(fact string) int {
	if i, ok := p.index[fact]; ok {
		return i
	}
	return -1
}

// Missing lists canonical columns the source does not provide, in canonical
// order. Derived and enriched columns are not reported.
func (p Plan) Missing() []string {
	var out []string
	for _, fact := range schema.FactColumns {
		if _, sourced := schema.FactSources[fact]; sourced && p.index[fact] < 0 {
			out = append(out, fact)
		}
	}
	return out
}

// Reshape builds the record for row r. ok is false when the row has no
// test identifier.
func (p Plan) Reshape(t *table.RawTable, r, year int, lookup *Lookup) (Record, bool) {
	testID, ok := t.Cell(r, p.index[schema.FactTestID])
	if !ok {
		return Record{}, false
	}

	str := func(fact string) string {
		v, _ := t.Cell(r, p.index[fact])
		return v
	}
	text := func(fact string) nullString {
		v, ok := t.Cell(r, p.index[fact])
		if !ok {
			return nullString{}
		}
		return some(v)
	}
	integer := func(fact string) nullInt {
		if n, ok := ParseInt(str(fact)); ok {
			return some(n)
		}
		return nullInt{}
	}
	float := func(fact string) nullFloat {
		if f, ok := ParseFloat(str(fact)); ok {
			return some(f)
		}
		return nullFloat{}
	}
	code := func(fact string, width int) nullString {
		v, ok := t.Cell(r, p.index[fact])
		return padNull(v, ok, width)
	}

	rec := Record{
		YearKey:          year,
		TestID:           testID,
		Subgroup:         text(schema.FactSubgroup),
		Grade:            text(schema.FactGrade),
		Tested:           integer(schema.FactTested),
		TestedWithScores: integer(schema.FactTestedWithScores),
		MeanScaleScore:   float(schema.FactMeanScaleScore),
		PctExceeded:      float(schema.FactPctExceeded),
		CntExceeded:      integer(schema.FactCntExceeded),
		PctMet:           float(schema.FactPctMet),
		CntMet:           integer(schema.FactCntMet),
		PctMetAndAbove:   float(schema.FactPctMetAndAbove),
		CntMetAndAbove:   integer(schema.FactCntMetAndAbove),
		PctNearlyMet:     float(schema.FactPctNearlyMet),
		CntNearlyMet:     integer(schema.FactCntNearlyMet),
		PctNotMet:        float(schema.FactPctNotMet),
		CntNotMet:        integer(schema.FactCntNotMet),
		CountyCode:       code(schema.FactCountyCode, schema.CountyCodeWidth),
		DistrictCode:     code(schema.FactDistrictCode, schema.DistrictCodeWidth),
		SchoolCode:       code(schema.FactSchoolCode, schema.SchoolCodeWidth),
		DistrictName:     text(schema.FactDistrictName),
		SchoolName:       text(schema.FactSchoolName),
	}
	rec.CDSCode = CDSCode(rec.CountyCode, rec.DistrictCode, rec.SchoolCode)
	enrich(&rec, lookup)
	return rec, true
}

// enrich fills names from the entities lookup. It never fails: anything it
// cannot resolve stays null.
func enrich(rec *Record, lookup *Lookup) {
	if rec.CountyCode.Valid {
		if name, ok := lookup.CountyName(rec.CountyCode.V); ok {
			rec.CountyName = some(name)
		}
	}
	if !rec.CDSCode.Valid || (rec.DistrictName.Valid && rec.SchoolName.Valid) {
		return
	}
	e, ok := lookup.Entity(rec.CDSCode.V)
	if !ok {
		return
	}
	if !rec.DistrictName.Valid && e.DistrictName != "" {
		rec.DistrictName = some(e.DistrictName)
	}
	if !rec.SchoolName.Valid && e.SchoolName != "" {
		rec.SchoolName = some(e.SchoolName)
	}
}
