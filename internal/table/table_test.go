package table

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadSniffsDelimiter(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		columns []string
		rows    int
	}{
		{
			name:    "caret file",
			input:   "County Code^District Code^School Name\n01^00000^\n01^61119^Alameda High\n",
			columns: []string{"County Code", "District Code", "School Name"},
			rows:    2,
		},
		{
			name:    "comma file",
			input:   "Demographic ID,Demographic Name\n1,All Students\n",
			columns: []string{"Demographic ID", "Demographic Name"},
			rows:    1,
		},
		{
			name:    "crlf and blank lines",
			input:   "a^b\r\n1^2\r\n\r\n^\r\n3^4\r\n",
			columns: []string{"a", "b"},
			rows:    2,
		},
		{
			name:    "byte order mark",
			input:   "\xef\xbb\xbfa,b\n1,2\n",
			columns: []string{"a", "b"},
			rows:    1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tbl, err := Read([]byte(tt.input), Options{Name: tt.name})
			require.NoError(t, err)
			assert.Equal(t, tt.columns, tbl.Columns)
			assert.Equal(t, tt.rows, tbl.Len())
			assert.Equal(t, tt.name, tbl.Name)
		})
	}
}

func TestReadForcedDelimiter(t *testing.T) {
	// A caret file read as comma collapses into one column instead of failing.
	tbl, err := Read([]byte("a^b\n1^2\n"), Options{Delimiter: Comma})
	require.NoError(t, err)
	assert.Equal(t, []string{"a^b"}, tbl.Columns)
}

func TestReadQuotes(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		rows    int
		first   []string
		wantErr bool
	}{
		{
			name:  "caret keeps leading quote literal",
			input: "County Code^School Name^Grade\n01^\"Sunrise\" Academy^5\n02^Oak Elementary^3\n03^Pine^4\n",
			rows:  3,
			first: []string{"01", "\"Sunrise\" Academy", "5"},
		},
		{
			name:  "caret keeps unbalanced quote literal",
			input: "a^b\n\"open^1\n2^3\n",
			rows:  2,
			first: []string{"\"open", "1"},
		},
		{
			name:  "comma honours quoted delimiter",
			input: "Demographic ID,Demographic Name\n1,\"Asian, not Filipino\"\n2,Filipino\n",
			rows:  2,
			first: []string{"1", "Asian, not Filipino"},
		},
		{
			name:    "comma stray quote fails",
			input:   "a,b\n1,x\"y\n2,z\n",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tbl, err := Read([]byte(tt.input), Options{Name: tt.name})
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.rows, tbl.Len())
			assert.Equal(t, tt.first, tbl.Rows[0])
		})
	}
}

func TestReadWindows1252(t *testing.T) {
	// "Peñasco" encoded as Windows-1252 (0xF1 for ñ) is not valid UTF-8.
	input := []byte("name^code\nPe\xf1asco^01\n")

	tbl, err := Read(input, Options{})
	require.NoError(t, err)

	v, ok := tbl.Cell(0, 0)
	require.True(t, ok)
	assert.Equal(t, "Peñasco", v)
}

func TestReadEmpty(t *testing.T) {
	_, err := Read(nil, Options{})
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestCell(t *testing.T) {
	tbl := &RawTable{
		Columns: []string{"a", "b", "c"},
		Rows: [][]string{
			{" 12 ", "*", "N/A"},
			{"x"},
		},
	}

	v, ok := tbl.Cell(0, 0)
	assert.True(t, ok)
	assert.Equal(t, "12", v)

	_, ok = tbl.Cell(0, 1)
	assert.False(t, ok, "suppressed value is null")
	_, ok = tbl.Cell(0, 2)
	assert.False(t, ok)
	_, ok = tbl.Cell(1, 2)
	assert.False(t, ok, "short row is null, not shifted")
	_, ok = tbl.Cell(0, -1)
	assert.False(t, ok, "absent column is null")
	_, ok = tbl.Cell(5, 0)
	assert.False(t, ok)
}

func TestIndexAndHas(t *testing.T) {
	tbl := &RawTable{Columns: []string{"test_id", "grade"}}
	assert.Equal(t, 1, tbl.Index("grade"))
	assert.Equal(t, -1, tbl.Index("district_code"))
	assert.True(t, tbl.Has("test_id"))
	assert.False(t, tbl.Has("school_code"))

	var nilTable *RawTable
	assert.Equal(t, 0, nilTable.Len())
}

func TestParseDelimiter(t *testing.T) {
	tests := []struct {
		in      string
		want    rune
		wantErr bool
	}{
		{"caret", Caret, false},
		{"^", Caret, false},
		{"Comma", Comma, false},
		{",", Comma, false},
		{"auto", 0, false},
		{"tab", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			d, err := ParseDelimiter(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, d)
		})
	}
	assert.Equal(t, "caret", DelimiterName(Caret))
	assert.Equal(t, "comma", DelimiterName(Comma))
}
