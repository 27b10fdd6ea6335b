// Package entityindex renders entities, student groups, tests and grades
// as lookup documents and rebuilds the index wholesale.
package entityindex

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/eduanalytics/caaspp/internal/facts"
	"github.com/eduanalytics/caaspp/internal/table"
	"github.com/eduanalytics/caaspp/internal/vectorstore"
)

// Document types understood by the resolver.
const (
	TypeEntity   = "entity"
	TypeSubgroup = "subgroup"
	TypeTest     = "test"
	TypeGrade    = "grade"
)

// AllGrades is the grade code the publisher uses for all grades combined.
const AllGrades = "13"

// DefaultGrades are the tested grades plus the all-grades code.
var DefaultGrades = []string{"3", "4", "5", "6", "7", "8", "11", AllGrades}

// LabelSeparator joins name levels in entity labels.
const LabelSeparator = " | "

// Normalized reference table columns.
const (
	colDemographicIDNum = "demographic_id_num"
	colDemographicID    = "demographic_id"
	colDemographicName  = "demographic_name"
	colStudentGroup     = "student_group"
	colTestIDNum        = "test_id_num"
	colTestID           = "test_id"
	colTestName         = "test_name"
)

// EntityLabel joins the non-empty names. A district row has no school
// segment at all, not an empty one.
func EntityLabel(e facts.Entity) string {
	var parts []string
	for _, n := range []string{e.CountyName, e.DistrictName, e.SchoolName} {
		if n = strings.TrimSpace(n); n != "" && !table.IsNull(n) {
			parts = append(parts, n)
		}
	}
	return strings.Trim(strings.Join(parts, LabelSeparator), " |")
}

func entityKey(e facts.Entity) string {
	if e.CDSCode != "" {
		return e.CDSCode
	}
	return strings.Join([]string{e.CountyCode, e.DistrictCode, e.SchoolCode}, "-")
}

func entityDocument(year int, e facts.Entity) (vectorstore.Document, bool) {
	label := EntityLabel(e)
	if label == "" {
		return vectorstore.Document{}, false
	}
	return vectorstore.Document{
		ID:    TypeEntity + ":" + entityKey(e),
		Type:  TypeEntity,
		Label: label,
		Text:  fmt.Sprintf("%s | CDS:%s | type:%s", label, e.CDSCode, e.TypeID),
		Metadata: map[string]any{
			"type":          TypeEntity,
			"county_code":   e.CountyCode,
			"district_code": e.DistrictCode,
			"school_code":   e.SchoolCode,
			"cds_code":      e.CDSCode,
			"county_name":   e.CountyName,
			"district_name": e.DistrictName,
			"school_name":   e.SchoolName,
			"type_id":       e.TypeID,
			"test_year":     e.TestYear,
			"zip_code":      e.ZipCode,
			"year_key":      year,
		},
	}, true
}

// subgroupDocuments reads the student group reference table. The id is
// the numeric form results files carry in student_group_id.
func subgroupDocuments(t *table.RawTable) []vectorstore.Document {
	if t == nil {
		return nil
	}
	num, id := t.Index(colDemographicIDNum), t.Index(colDemographicID)
	name, group := t.Index(colDemographicName), t.Index(colStudentGroup)

	var out []vectorstore.Document
	for r := range t.Rows {
		key := firstCell(t, r, num, id)
		label, _ := t.Cell(r, name)
		if key == "" || label == "" {
			continue
		}
		student, _ := t.Cell(r, group)

		text := label
		if student != "" && student != label {
			text += " | " + student
		}
		out = append(out, vectorstore.Document{
			ID:    TypeSubgroup + ":" + key,
			Type:  TypeSubgroup,
			Label: fmt.Sprintf("%s (ID: %s)", label, key),
			Text:  text + " | subgroup:" + key,
			Metadata: map[string]any{
				"type":             TypeSubgroup,
				"demographic_id":   key,
				"demographic_name": label,
				"student_group":    student,
			},
		})
	}
	return out
}

func testDocuments(t *table.RawTable) []vectorstore.Document {
	if t == nil {
		return nil
	}
	id, num, name := t.Index(colTestID), t.Index(colTestIDNum), t.Index(colTestName)

	var out []vectorstore.Document
	for r := range t.Rows {
		key := firstCell(t, r, id, num)
		label, _ := t.Cell(r, name)
		if key == "" || label == "" {
			continue
		}
		out = append(out, vectorstore.Document{
			ID:    TypeTest + ":" + key,
			Type:  TypeTest,
			Label: fmt.Sprintf("%s (ID: %s)", label, key),
			Text:  label + " | test:" + key,
			Metadata: map[string]any{
				"type":      TypeTest,
				"test_id":   key,
				"test_name": label,
			},
		})
	}
	return out
}

func gradeDocument(grade string) vectorstore.Document {
	label := "Grade " + grade
	text := label
	if grade == AllGrades {
		text = "All grades | " + label
	}
	return vectorstore.Document{
		ID:    TypeGrade + ":" + grade,
		Type:  TypeGrade,
		Label: label,
		Text:  text + " | grade:" + grade,
		Metadata: map[string]any{
			"type":  TypeGrade,
			"grade": grade,
		},
	}
}

// firstCell returns the first non-null cell among cols, with leading zeros
// of a numeric id removed so "001" and "1" agree.
func firstCell(t *table.RawTable, r int, cols ...int) string {
	for _, c := range cols {
		if v, ok := t.Cell(r, c); ok {
			return canonicalID(v)
		}
	}
	return ""
}

func canonicalID(v string) string {
	v = strings.TrimSpace(v)
	if n, err := strconv.Atoi(v); err == nil && n >= 0 {
		return strconv.Itoa(n)
	}
	return v
}
