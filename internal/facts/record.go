// Package facts reshapes normalized results tables into canonical fact
// records and loads them into the warehouse one year at a time.
package facts

import (
	"database/sql"
)

// Record is one canonical fact row. Field order follows schema.FactColumns;
// Values is the only place that order is materialized.
type Record struct {
	YearKey          int
	TestID           string
	Subgroup         sql.Null[string]
	Grade            sql.Null[string]
	Tested           sql.Null[int64]
	TestedWithScores sql.Null[int64]
	MeanScaleScore   sql.Null[float64]

	PctExceeded    sql.Null[float64]
	CntExceeded    sql.Null[int64]
	PctMet         sql.Null[float64]
	CntMet         sql.Null[int64]
	PctMetAndAbove sql.Null[float64]
	CntMetAndAbove sql.Null[int64]
	PctNearlyMet   sql.Null[float64]
	CntNearlyMet   sql.Null[int64]
	PctNotMet      sql.Null[float64]
	CntNotMet      sql.Null[int64]

	CountyCode   sql.Null[string]
	DistrictCode sql.Null[string]
	SchoolCode   sql.Null[string]
	CDSCode      sql.Null[string]
	CountyName   sql.Null[string]
	DistrictName sql.Null[string]
	SchoolName   sql.Null[string]
}

// Values returns the record in canonical column order with nil for nulls,
// as plain driver values accepted by both COPY and the DuckDB appender.
func (r *Record) Values() []any {
	return []any{
		int32(r.YearKey), //nolint:gosec // year keys are four-digit
		r.TestID,
		value(r.Subgroup),
		value(r.Grade),
		value(r.Tested),
		value(r.TestedWithScores),
		value(r.MeanScaleScore),
		value(r.PctExceeded),
		value(r.CntExceeded),
		value(r.PctMet),
		value(r.CntMet),
		value(r.PctMetAndAbove),
		value(r.CntMetAndAbove),
		value(r.PctNearlyMet),
		value(r.CntNearlyMet),
		value(r.PctNotMet),
		value(r.CntNotMet),
		value(r.CountyCode),
		value(r.DistrictCode),
		value(r.SchoolCode),
		value(r.CDSCode),
		value(r.CountyName),
		value(r.DistrictName),
		value(r.SchoolName),
	}
}

type (
	nullString = sql.Null[string]
	nullInt    = sql.Null[int64]
	nullFloat  = sql.Null[float64]
)

func value[T any](n sql.Null[T]) any {
	if !n.Valid {
		return nil
	}
	return n.V
}

func some[T any](v T) sql.Null[T] {
	return sql.Null[T]{V: v, Valid: true}
}
