// Package schema canonicalizes CAASPP column names and defines the canonical
// fact layout shared by the parser, the fact loader and the warehouse adapters.
//
// Column names in published research files drift between releases in two
// ways: cosmetic changes (capitalization, punctuation, spacing) and outright
// renames. NormalizeName handles the first, the synonym table handles the
// second. Both run here so no other package needs per-year branches.
package schema

import (
	"fmt"
	"regexp"
	"strings"
)

// Separator joins the alphanumeric runs of a normalized column name.
const Separator = "_"

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// synonym maps a historical column name onto its canonical name.
type synonym struct {
	Legacy    string
	Canonical string
}

// synonyms lists every known legacy spelling. When several spellings of one
// canonical name are present, the leftmost column is renamed.
var synonyms = []synonym{
	{Legacy: "students_with_scores", Canonical: ColTestedWithScores},
	{Legacy: "total_tested_with_scores", Canonical: ColTestedWithScores},
	{Legacy: "students_tested", Canonical: ColTested},
	{Legacy: "percentage_standard_met_and_exceeded", Canonical: "percentage_standard_met_and_above"},
	{Legacy: "count_standard_met_and_exceeded", Canonical: "count_standard_met_and_above"},
}

// Synonyms returns a copy of the legacy → canonical rename table.
func Synonyms() map[string]string {
	out := make(map[string]string, len(synonyms))
	for _, s := range synonyms {
		if _, ok := out[s.Legacy]; !ok {
			out[s.Legacy] = s.Canonical
		}
	}
	return out
}

// NormalizeName lower-cases name, collapses every run of non-alphanumeric
// characters into a single separator and trims separators from both ends.
func NormalizeName(name string) string {
	n := nonAlnum.ReplaceAllString(strings.ToLower(name), Separator)
	return strings.Trim(n, Separator)
}

// NormalizeColumns applies NormalizeName to every column and then the
// synonym table. Names that collide after normalization are suffixed with
// their occurrence number (_2, _3, ...) so positions stay unambiguous.
func NormalizeColumns(columns []string) []string {
	out := make([]string, len(columns))
	taken := make(map[string]bool, len(columns))
	for i, c := range columns {
		n := NormalizeName(c)
		if n == "" {
			n = fmt.Sprintf("column_%d", i+1)
		}
		if taken[n] {
			base := n
			for k := 2; taken[n]; k++ {
				n = fmt.Sprintf("%s%s%d", base, Separator, k)
			}
		}
		taken[n] = true
		out[i] = n
	}
	return ApplySynonyms(out)
}

// ApplySynonyms renames legacy columns to their canonical names. A rename is
// applied only when the canonical name is absent, and only to the first
// column (in column order) holding any legacy spelling of it. Already-canonical
// input is returned unchanged, so the function is idempotent.
func ApplySynonyms(columns []string) []string {
	out := make([]string, len(columns))
	copy(out, columns)

	present := make(map[string]bool, len(out))
	for _, c := range out {
		present[c] = true
	}

	legacyOf := make(map[string]map[string]bool)
	var canonicals []string
	for _, s := range synonyms {
		if legacyOf[s.Canonical] == nil {
			legacyOf[s.Canonical] = make(map[string]bool)
			canonicals = append(canonicals, s.Canonical)
		}
		legacyOf[s.Canonical][s.Legacy] = true
	}

	for _, canonical := range canonicals {
		if present[canonical] {
			continue
		}
		for i, c := range out {
			if legacyOf[canonical][c] {
				out[i] = canonical
				present[canonical] = true
				break
			}
		}
	}
	return out
}
