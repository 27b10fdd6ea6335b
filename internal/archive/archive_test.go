package archive

import (
	"testing"

	"github.com/eduanalytics/caaspp/internal/schema"
	"github.com/eduanalytics/caaspp/internal/table"
	"github.com/eduanalytics/caaspp/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClassifiesRegardlessOfOrder(t *testing.T) {
	entities := testutil.ZipEntry{Name: "sb_ca2024entities_csv.txt", Body: testutil.EntitiesFile}
	results := testutil.ZipEntry{Name: "sb_ca2024_all_csv_v1.txt", Body: testutil.ResultsFile}

	orders := map[string][]testutil.ZipEntry{
		"entities first": {entities, results},
		"results first":  {results, entities},
	}

	for name, entries := range orders {
		t.Run(name, func(t *testing.T) {
			c := Parse(testutil.ZipBytes(t, entries...), testutil.NewTestLogger(t))

			require.NoError(t, c.Err)
			require.NotNil(t, c.Tests)
			require.NotNil(t, c.Entities)
			assert.Equal(t, "sb_ca2024_all_csv_v1.txt", c.Tests.Name)
			assert.Equal(t, "sb_ca2024entities_csv.txt", c.Entities.Name)
			assert.Equal(t, 3, c.Tests.Len())
			assert.Equal(t, 5, c.Entities.Len())
			assert.Empty(t, c.Skipped)
			assert.False(t, c.Empty())
		})
	}
}

func TestParseNormalizesColumns(t *testing.T) {
	c := Parse(testutil.ZipBytes(t, testutil.ZipEntry{Name: "results.TXT", Body: testutil.ResultsFile}), nil)

	require.NotNil(t, c.Tests)
	assert.True(t, c.Tests.Has(schema.ColTestedWithScores), "legacy 'Students with Scores' renamed")
	assert.True(t, c.Tests.Has(schema.ColTested), "legacy 'Students Tested' renamed")
	assert.True(t, c.Tests.Has(schema.ColStudentGroupID))
	assert.False(t, c.Tests.Has("students_with_scores"))
}

func TestParseCommaDelimitedCSV(t *testing.T) {
	body := "County Code,District Code,School Code,Type ID,Test Year,County Name\n01,00000,0000000,05,2024,Alameda\n"
	c := Parse(testutil.ZipBytes(t, testutil.ZipEntry{Name: "entities.csv", Body: body}), nil)

	require.NotNil(t, c.Entities)
	assert.Equal(t, 1, c.Entities.Len())
	assert.Nil(t, c.Tests)
}

func TestParseSkipsUnrecognized(t *testing.T) {
	logger, logs := testutil.NewCaptureLogger()
	data := testutil.ZipBytes(t,
		testutil.ZipEntry{Name: "readme.pdf", Body: "%PDF"},
		testutil.ZipEntry{Name: "layout.txt", Body: "Field^Description\nCounty Code^two digit code\n"},
		testutil.ZipEntry{Name: "empty.csv", Body: ""},
		testutil.ZipEntry{Name: "results.txt", Body: testutil.ResultsFile},
	)

	c := Parse(data, logger)

	require.NotNil(t, c.Tests)
	assert.Nil(t, c.Entities)
	require.Len(t, c.Skipped, 2)
	assert.Equal(t, "layout.txt", c.Skipped[0].Entry)
	assert.Equal(t, "empty.csv", c.Skipped[1].Entry)
	assert.Contains(t, logs.String(), "skipping archive entry")
}

func TestParseSecondTableOfSameKindDropped(t *testing.T) {
	data := testutil.ZipBytes(t,
		testutil.ZipEntry{Name: "a.txt", Body: testutil.ResultsFile},
		testutil.ZipEntry{Name: "b.txt", Body: testutil.ResultsFile},
	)

	c := Parse(data, nil)

	require.NotNil(t, c.Tests)
	assert.Equal(t, "a.txt", c.Tests.Name)
	require.Len(t, c.Skipped, 1)
	assert.Equal(t, "b.txt", c.Skipped[0].Entry)
}

func TestParseCorruptArchive(t *testing.T) {
	c := Parse([]byte("this is not a zip"), nil)

	assert.Error(t, c.Err)
	assert.True(t, c.Empty())
}

func TestParseReference(t *testing.T) {
	t.Run("comma subgroups", func(t *testing.T) {
		data := testutil.ZipBytes(t, testutil.ZipEntry{Name: "StudentGroups.txt", Body: testutil.StudentGroupsFile})
		tbl, err := ParseReference(data, table.Comma)
		require.NoError(t, err)
		assert.Equal(t, []string{"demographic_id_num", "demographic_id", "demographic_name", "student_group"}, tbl.Columns)
		assert.Equal(t, 3, tbl.Len())
	})

	t.Run("caret tests", func(t *testing.T) {
		data := testutil.ZipBytes(t, testutil.ZipEntry{Name: "Tests.txt", Body: testutil.TestsFile})
		tbl, err := ParseReference(data, table.Caret)
		require.NoError(t, err)
		assert.Equal(t, []string{"test_id_num", "test_id", "test_name"}, tbl.Columns)
		assert.Equal(t, 2, tbl.Len())
	})

	t.Run("wrong delimiter is an error", func(t *testing.T) {
		data := testutil.ZipBytes(t, testutil.ZipEntry{Name: "Tests.txt", Body: testutil.TestsFile})
		_, err := ParseReference(data, table.Comma)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "single column")
	})

	t.Run("unzipped payload", func(t *testing.T) {
		tbl, err := ParseReference([]byte(testutil.TestsFile), table.Caret)
		require.NoError(t, err)
		assert.Equal(t, 2, tbl.Len())
	})

	t.Run("archive without text entry", func(t *testing.T) {
		data := testutil.ZipBytes(t, testutil.ZipEntry{Name: "x.bin", Body: "\x00"})
		_, err := ParseReference(data, table.Caret)
		assert.Error(t, err)
	})
}
