package facts

import (
	"database/sql"
	"math"
	"strconv"
	"strings"

	"github.com/eduanalytics/caaspp/internal/schema"
	"github.com/eduanalytics/caaspp/internal/table"
)

// PadCode left-pads a code with zeros to width. Codes that arrive as
// integral floats ("1.0") are reduced to their integer digits first. A code
// already at or beyond width is returned unchanged.
func PadCode(code string, width int) (string, bool) {
	code = strings.TrimSpace(code)
	if table.IsNull(code) {
		return "", false
	}
	if strings.HasSuffix(code, ".0") {
		if _, err := strconv.ParseInt(strings.TrimSuffix(code, ".0"), 10, 64); err == nil {
			code = strings.TrimSuffix(code, ".0")
		}
	}
	if len(code) >= width {
		return code, true
	}
	return strings.Repeat("0", width-len(code)) + code, true
}

func padNull(code string, ok bool, width int) sql.Null[string] {
	if !ok {
		return sql.Null[string]{}
	}
	p, ok := PadCode(code, width)
	if !ok {
		return sql.Null[string]{}
	}
	return some(p)
}

// CDSCode concatenates already padded county, district and school codes.
// It is only derived when all three are present.
func CDSCode(county, district, school sql.Null[string]) sql.Null[string] {
	if !county.Valid || !district.Valid || !school.Valid {
		return sql.Null[string]{}
	}
	return some(county.V + district.V + school.V)
}

// ComposeCDS pads raw codes and concatenates them; ok is false unless all
// three are present.
func ComposeCDS(county, district, school string) (string, bool) {
	c, okC := PadCode(county, schema.CountyCodeWidth)
	d, okD := PadCode(district, schema.DistrictCodeWidth)
	s, okS := PadCode(school, schema.SchoolCodeWidth)
	if !okC || !okD || !okS {
		return "", false
	}
	return c + d + s, true
}

// ParseInt coerces a cell to an integer. Integral floats such as "12.0" are
// accepted; thousands separators are ignored. Anything else is null.
func ParseInt(s string) (int64, bool) {
	s = cleanNumber(s)
	if s == "" {
		return 0, false
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != float64(int64(f)) {
		return 0, false
	}
	return int64(f), true
}

// ParseFloat coerces a cell to a float. Non-numeric values are null.
func ParseFloat(s string) (float64, bool) {
	s = cleanNumber(s)
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func cleanNumber(s string) string {
	s = strings.TrimSpace(s)
	if table.IsNull(s) {
		return ""
	}
	s = strings.ReplaceAll(s, ",", "")
	return strings.TrimSuffix(s, "%")
}
