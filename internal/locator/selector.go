package locator

import (
	"fmt"
	neturl "net/url"
	"path"
	"sort"
	"strings"
)

// Selector decides which archive links on a listing page are combined,
// all-subject result files in delimited-text form.
//
// The publisher's file naming is the most volatile external dependency of
// the pipeline; when it changes, add or select a different Selector rather
// than editing the locator.
type Selector interface {
	Name() string
	Select(url string) bool
}

// RuleSelector matches when the lower-cased URL contains every Require
// substring, at least one AnyOf substring (if any are given) and none of
// the Exclude substrings.
type RuleSelector struct {
	RuleName string
	Require  []string
	AnyOf    []string
	Exclude  []string
}

// Name returns the rule name.
func (r RuleSelector) Name() string { return r.RuleName }

// Select applies the rule to the file name of a single URL.
func (r RuleSelector) Select(url string) bool {
	u := strings.ToLower(fileName(url))
	for _, s := range r.Require {
		if !strings.Contains(u, s) {
			return false
		}
	}
	for _, s := range r.Exclude {
		if strings.Contains(u, s) {
			return false
		}
	}
	if len(r.AnyOf) == 0 {
		return true
	}
	for _, s := range r.AnyOf {
		if strings.Contains(u, s) {
			return true
		}
	}
	return false
}

func fileName(raw string) string {
	if u, err := neturl.Parse(raw); err == nil && u.Path != "" {
		return path.Base(u.Path)
	}
	return path.Base(raw)
}

// Built-in rule names.
const (
	RuleCombined = "combined"
	RuleLegacy   = "legacy"
	RuleAny      = "any"
)

var builtins = map[string]Selector{
	// Current naming, e.g. sb_ca2024_all_csv_v1.zip.
	RuleCombined: RuleSelector{
		RuleName: RuleCombined,
		Require:  []string{"sb_", "csv", "all"},
		Exclude:  []string{"math", "ela"},
	},
	// Earlier naming, where combined files were labelled caret or csv.
	RuleLegacy: RuleSelector{
		RuleName: RuleLegacy,
		AnyOf:    []string{"caret", "csv"},
	},
	RuleAny: RuleSelector{RuleName: RuleAny},
}

// Lookup returns a built-in selector by name.
func Lookup(name string) (Selector, error) {
	if s, ok := builtins[strings.ToLower(strings.TrimSpace(name))]; ok {
		return s, nil
	}
	return nil, fmt.Errorf("unknown archive selector %q (available: %s)", name, strings.Join(Names(), ", "))
}

// Names lists the built-in selector names, sorted.
func Names() []string {
	names := make([]string, 0, len(builtins))
	for n := range builtins {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Versioned picks a selector per year, falling back to Default.
type Versioned struct {
	Default Selector
	ByYear  map[int]Selector
}

// For returns the selector that applies to year.
func (v Versioned) For(year int) Selector {
	if s, ok := v.ByYear[year]; ok {
		return s
	}
	return v.Default
}

// NewVersioned resolves rule names into a Versioned selector.
func NewVersioned(defaultRule string, byYear map[int]string) (Versioned, error) {
	def, err := Lookup(defaultRule)
	if err != nil {
		return Versioned{}, err
	}
	v := Versioned{Default: def, ByYear: make(map[int]Selector, len(byYear))}
	for year, rule := range byYear {
		s, err := Lookup(rule)
		if err != nil {
			return Versioned{}, fmt.Errorf("year %d: %w", year, err)
		}
		v.ByYear[year] = s
	}
	return v, nil
}
