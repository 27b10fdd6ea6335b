// Package table reads delimiter-separated text into in-memory raw tables.
package table

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

// Delimiters used by CAASPP research files.
const (
	Caret = '^'
	Comma = ','
)

// nullTokens are cell values treated as SQL NULL. "*" is the publisher's
// small-population suppression marker.
var nullTokens = map[string]struct{}{
	"":    {},
	"NA":  {},
	"N/A": {},
	"*":   {},
}

// ErrEmpty is returned when the input has no header line.
var ErrEmpty = errors.New("table has no header")

// RawTable is a parsed delimited file: named columns over string cells.
type RawTable struct {
	Name    string
	Columns []string
	Rows    [][]string
}

// Index returns the position of column name, or -1 when absent.
func (t *RawTable) Index(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Has reports whether the table carries column name.
func (t *RawTable) Has(name string) bool {
	return t.Index(name) >= 0
}

// Len returns the number of data rows.
func (t *RawTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Cell returns the value at row r, column index c. Out-of-range columns and
// null tokens report ok=false.
func (t *RawTable) Cell(r, c int) (string, bool) {
	if c < 0 || r < 0 || r >= len(t.Rows) {
		return "", false
	}
	row := t.Rows[r]
	if c >= len(row) {
		return "", false
	}
	v := strings.TrimSpace(row[c])
	if IsNull(v) {
		return "", false
	}
	return v, true
}

// IsNull reports whether a trimmed cell value represents a missing value.
func IsNull(v string) bool {
	_, ok := nullTokens[v]
	return ok
}

// Options controls how Read interprets its input.
type Options struct {
	// Delimiter forces a field separator. Zero means sniff from the header.
	Delimiter rune
	// Name is recorded on the resulting table for diagnostics.
	Name string
}

// Read parses delimited text. The first record is the header. Input that is
// not valid UTF-8 is decoded as Windows-1252, which is what older research
// files were exported in.
func Read(data []byte, opts Options) (*RawTable, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if !utf8.Valid(data) {
		decoded, _, err := transform.Bytes(charmap.Windows1252.NewDecoder(), data)
		if err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", opts.Name, err)
		}
		data = decoded
	}

	delim := opts.Delimiter
	if delim == 0 {
		delim = Sniff(data)
	}

	var records [][]string
	var err error
	if delim == Caret {
		records = splitCaret(data)
	} else {
		records, err = readQuoted(data, delim)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", opts.Name, err)
		}
	}

	if len(records) == 0 {
		return nil, ErrEmpty
	}
	return &RawTable{Name: opts.Name, Columns: records[0], Rows: records[1:]}, nil
}

// splitCaret splits caret files by line and by '^'. Research files never
// quote fields, so a '"' is part of the value.
func splitCaret(data []byte) [][]string {
	var records [][]string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSuffix(line, "\r")
		if line == "" {
			continue
		}
		rec := strings.Split(line, string(Caret))
		if len(records) > 0 && isBlank(rec) {
			continue
		}
		records = append(records, rec)
	}
	return records
}

// readQuoted reads RFC 4180 text. Stray quotes are an error rather than
// being folded into the following records.
func readQuoted(data []byte, delim rune) ([][]string, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = delim
	r.FieldsPerRecord = -1

	var records [][]string
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(records) > 0 && isBlank(rec) {
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// Sniff picks the delimiter from the first line: caret when it appears at
// all, comma otherwise.
func Sniff(data []byte) rune {
	line := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		line = data[:i]
	}
	if bytes.IndexByte(line, byte(Caret)) >= 0 {
		return Caret
	}
	return Comma
}

// DelimiterName renders a delimiter for logs and configuration.
func DelimiterName(d rune) string {
	switch d {
	case Caret:
		return "caret"
	case Comma:
		return "comma"
	default:
		return strconv.QuoteRune(d)
	}
}

// ParseDelimiter accepts "caret", "comma", "^", "," (case-insensitive).
func ParseDelimiter(s string) (rune, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "caret", "^":
		return Caret, nil
	case "comma", ",":
		return Comma, nil
	case "", "auto":
		return 0, nil
	}
	return 0, fmt.Errorf("unsupported delimiter %q (want caret or comma)", s)
}

func isBlank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
