package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

// Output formats accepted by --output.
const (
	FormatTable    = "table"
	FormatJSON     = "json"
	FormatCSV      = "csv"
	FormatMarkdown = "markdown"
)

// OutputFormats lists the values accepted by --output.
var OutputFormats = []string{FormatTable, FormatJSON, FormatCSV, FormatMarkdown}

// column is one rendered column: Title heads the table, Key names the JSON field.
type column struct {
	Title string
	Key   string
}

// tabular is a rendered result set.
type tabular struct {
	Title   string
	Columns []column
	Rows    [][]any
}

func (t *tabular) add(values ...any) {
	t.Rows = append(t.Rows, values)
}

// outputFormat returns the --output flag inherited from the root command.
func outputFormat(cmd *cobra.Command) string {
	if f := cmd.Flag("output"); f != nil && f.Value.String() != "" {
		return strings.ToLower(f.Value.String())
	}
	return FormatTable
}

func render(w io.Writer, format string, t *tabular) error {
	switch format {
	case FormatJSON:
		return renderJSON(w, t)
	case FormatCSV, FormatMarkdown, "md", FormatTable, "":
	default:
		return fmt.Errorf("unknown output format %q (expected %s)", format, strings.Join(OutputFormats, ", "))
	}

	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleLight)

	header := make(table.Row, len(t.Columns))
	for i, c := range t.Columns {
		header[i] = c.Title
	}
	tw.AppendHeader(header)
	for _, r := range t.Rows {
		row := make(table.Row, len(r))
		for i, v := range r {
			row[i] = formatValue(v)
		}
		tw.AppendRow(row)
	}

	switch format {
	case FormatCSV:
		tw.RenderCSV()
	case FormatMarkdown, "md":
		tw.RenderMarkdown()
	default:
		if t.Title != "" {
			tw.SetTitle(t.Title)
		}
		if len(t.Rows) == 0 {
			_, _ = fmt.Fprintln(w, "(0 rows)")
			return nil
		}
		tw.Render()
	}
	return nil
}

func renderJSON(w io.Writer, t *tabular) error {
	results := make([]map[string]any, 0, len(t.Rows))
	for _, r := range t.Rows {
		obj := make(map[string]any, len(t.Columns))
		for i, c := range t.Columns {
			if i < len(r) {
				obj[c.Key] = jsonValue(r[i])
			}
		}
		results = append(results, obj)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(results)
}

func jsonValue(v any) any {
	switch x := v.(type) {
	case time.Duration:
		return x.Seconds()
	case *time.Time:
		if x == nil {
			return nil
		}
		return x.UTC().Format(time.RFC3339)
	case time.Time:
		return x.UTC().Format(time.RFC3339)
	case fmt.Stringer:
		return x.String()
	}
	return v
}

func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case time.Duration:
		return x.Round(time.Millisecond).String()
	case *time.Time:
		if x == nil {
			return ""
		}
		return x.Local().Format(time.DateTime)
	case time.Time:
		return x.Local().Format(time.DateTime)
	}
	return fmt.Sprintf("%v", v)
}

// truncate shortens s to n runes for table cells.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
