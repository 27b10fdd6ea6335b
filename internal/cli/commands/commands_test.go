// Package commands_test provides tests for CLI command creation.
package commands

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRunCommand(t *testing.T) {
	cmd := NewRunCommand()

	assert.Equal(t, "run", cmd.Use)
	assert.NotEmpty(t, cmd.Short, "Short should not be empty")

	for _, flag := range []string{"skip-index", "no-push"} {
		assert.NotNil(t, cmd.Flags().Lookup(flag), "flag %q should exist", flag)
	}

	assert.NotEmpty(t, cmd.Aliases, "run command should have aliases")
	assert.Equal(t, "ingest", cmd.Aliases[0], "run command should have 'ingest' alias")
}

func TestNewLocateCommand(t *testing.T) {
	cmd := NewLocateCommand()

	assert.Equal(t, "locate [year...]", cmd.Use)
	assert.NotEmpty(t, cmd.Short, "Short should not be empty")
	assert.NotEmpty(t, cmd.Example, "Example should not be empty")
}

func TestNewInspectCommand(t *testing.T) {
	cmd := NewInspectCommand()

	assert.Equal(t, "inspect <archive>", cmd.Use)
	assert.NotEmpty(t, cmd.Example, "Example should not be empty")
	for _, flag := range []string{"reference", "columns"} {
		assert.NotNil(t, cmd.Flags().Lookup(flag), "flag %q should exist", flag)
	}
	assert.Error(t, cmd.Args(cmd, nil), "inspect requires an archive")
}

func TestNewIndexCommand(t *testing.T) {
	cmd := NewIndexCommand()

	assert.Equal(t, "index", cmd.Use)
	assert.NotEmpty(t, cmd.Short, "Short should not be empty")
}

func TestNewMigrateCommand(t *testing.T) {
	cmd := NewMigrateCommand()

	assert.Equal(t, "migrate", cmd.Use)
	assert.NotEmpty(t, cmd.Long, "Long should not be empty")
}

func TestNewStatusCommand(t *testing.T) {
	cmd := NewStatusCommand()

	assert.Equal(t, "status [run-id|latest]", cmd.Use)
	limit := cmd.Flags().Lookup("limit")
	require.NotNil(t, limit)
	assert.Equal(t, "n", limit.Shorthand)
	assert.Equal(t, "20", limit.DefValue)
	assert.NotNil(t, cmd.Flags().Lookup("archives"))
	assert.Error(t, cmd.Args(cmd, []string{"a", "b"}), "status takes at most one run")
}

func TestParseYears(t *testing.T) {
	years, err := parseYears([]string{"2019", "2024"})
	require.NoError(t, err)
	assert.Equal(t, []int{2019, 2024}, years)

	for _, bad := range []string{"19", "twenty", "12345"} {
		_, err := parseYears([]string{bad})
		assert.Error(t, err, "year %q should be rejected", bad)
	}
}

func sampleTable() *tabular {
	t := &tabular{
		Title:   "Run abc",
		Columns: []column{{"Year", "year"}, {"Status", "status"}, {"Duration", "duration_seconds"}},
	}
	t.add(2024, "loaded", 1500*time.Millisecond)
	t.add(2023, "failed", 2*time.Second)
	return t
}

func TestRenderTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, render(&buf, FormatTable, sampleTable()))

	out := buf.String()
	assert.Contains(t, out, "Run abc")
	assert.Contains(t, out, "loaded")
	assert.Contains(t, out, "1.5s")
}

func TestRenderEmptyTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, render(&buf, FormatTable, &tabular{Columns: []column{{"Year", "year"}}}))
	assert.Equal(t, "(0 rows)\n", buf.String())
}

func TestRenderJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, render(&buf, FormatJSON, sampleTable()))

	var rows []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, float64(2024), rows[0]["year"])
	assert.Equal(t, "failed", rows[1]["status"])
	assert.Equal(t, 1.5, rows[0]["duration_seconds"])
}

func TestRenderCSVAndMarkdown(t *testing.T) {
	var csv bytes.Buffer
	require.NoError(t, render(&csv, FormatCSV, sampleTable()))
	assert.Contains(t, csv.String(), "Year,Status,Duration")
	assert.Contains(t, csv.String(), "2023,failed,2s")

	var md bytes.Buffer
	require.NoError(t, render(&md, FormatMarkdown, sampleTable()))
	assert.Contains(t, md.String(), "| 2024 | loaded |")
}

func TestRenderUnknownFormat(t *testing.T) {
	err := render(new(bytes.Buffer), "xml", sampleTable())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown output format")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcd…", truncate("abcdefgh", 5))
}
