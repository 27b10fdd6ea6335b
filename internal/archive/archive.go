// Package archive opens CAASPP research ZIP archives and classifies the
// delimited tables inside them.
package archive

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"

	"github.com/eduanalytics/caaspp/internal/schema"
	"github.com/eduanalytics/caaspp/internal/table"
)

// textExtensions are accepted entry suffixes. The publisher labels caret
// files as .txt and comma files as .csv, but not consistently.
var textExtensions = []string{".txt", ".csv"}

// Skipped records an entry that was read but not used.
type Skipped struct {
	Entry  string
	Reason string
}

// Contents is the classification result for one archive.
type Contents struct {
	Entities *table.RawTable
	Tests    *table.RawTable
	Skipped  []Skipped
	// Err is set when the archive could not be opened at all.
	Err error
}

// Empty reports whether neither table was found.
func (c Contents) Empty() bool {
	return c.Entities == nil && c.Tests == nil
}

// Parse classifies every text entry of a ZIP payload. It never fails: a
// payload that cannot be opened yields empty Contents with Err set, and
// unreadable or unrecognized entries are recorded in Skipped.
// If logger is nil, a discard logger is used.
func Parse(data []byte, logger *slog.Logger) Contents {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		logger.Error("failed to open archive", slog.Int("bytes", len(data)), slog.String("error", err.Error()))
		return Contents{Err: fmt.Errorf("failed to open archive: %w", err)}
	}

	var out Contents
	skip := func(name, reason string) {
		logger.Warn("skipping archive entry", slog.String("entry", name), slog.String("reason", reason))
		out.Skipped = append(out.Skipped, Skipped{Entry: name, Reason: reason})
	}

	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		if !isTextEntry(f.Name) {
			logger.Debug("ignoring non-text entry", slog.String("entry", f.Name))
			continue
		}

		raw, err := readEntry(f)
		if err != nil {
			skip(f.Name, err.Error())
			continue
		}

		t, err := table.Read(raw, table.Options{Name: f.Name})
		if err != nil {
			skip(f.Name, err.Error())
			continue
		}
		t.Columns = schema.NormalizeColumns(t.Columns)

		switch schema.Classify(t.Columns) {
		case schema.KindTests:
			if out.Tests != nil {
				skip(f.Name, "second results table in archive (kept "+out.Tests.Name+")")
				continue
			}
			out.Tests = t
			logger.Debug("classified entry", slog.String("entry", f.Name), slog.String("kind", string(schema.KindTests)), slog.Int("rows", t.Len()))
		case schema.KindEntities:
			if out.Entities != nil {
				skip(f.Name, "second entities table in archive (kept "+out.Entities.Name+")")
				continue
			}
			out.Entities = t
			logger.Debug("classified entry", slog.String("entry", f.Name), slog.String("kind", string(schema.KindEntities)), slog.Int("rows", t.Len()))
		default:
			skip(f.Name, "column set matches no known signature")
		}
	}

	return out
}

// ParseReference reads the first text entry of a reference archive with an
// explicit delimiter. Reference files are small flat tables (student groups,
// tests) whose delimiter differs by file, so it is never sniffed here.
func ParseReference(data []byte, delimiter rune) (*table.RawTable, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		if bytes.HasPrefix(data, []byte("PK")) {
			return nil, fmt.Errorf("failed to open reference archive: %w", err)
		}
		// Some reference files are published unzipped.
		return readReference(data, "reference", delimiter)
	}

	for _, f := range zr.File {
		if f.FileInfo().IsDir() || !isTextEntry(f.Name) {
			continue
		}
		raw, err := readEntry(f)
		if err != nil {
			return nil, err
		}
		return readReference(raw, f.Name, delimiter)
	}
	return nil, fmt.Errorf("reference archive has no text entry")
}

func readReference(raw []byte, name string, delimiter rune) (*table.RawTable, error) {
	t, err := table.Read(raw, table.Options{Name: name, Delimiter: delimiter})
	if err != nil {
		return nil, err
	}
	// A wrong delimiter does not fail parsing, it silently yields one wide
	// column. Surface that instead of loading garbage.
	if len(t.Columns) == 1 && strings.ContainsAny(t.Columns[0], "^,") {
		return nil, fmt.Errorf("%s parsed as a single column with %s delimiter; header %q looks %s-delimited",
			name, table.DelimiterName(delimiter), t.Columns[0], table.DelimiterName(table.Sniff(raw)))
	}
	t.Columns = schema.NormalizeColumns(t.Columns)
	return t, nil
}

func isTextEntry(name string) bool {
	ext := strings.ToLower(path.Ext(name))
	for _, e := range textExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

func readEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open entry: %w", err)
	}
	defer func() { _ = rc.Close() }()

	raw, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to read entry: %w", err)
	}
	return raw, nil
}
