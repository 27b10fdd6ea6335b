package locator

import (
	"context"
	"errors"
	"net/url"
	"testing"

	"github.com/eduanalytics/caaspp/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubFetcher struct {
	pages map[string][]byte
	err   error
	calls []string
}

func (s *stubFetcher) Fetch(_ context.Context, u string) ([]byte, error) {
	s.calls = append(s.calls, u)
	if s.err != nil {
		return nil, s.err
	}
	return s.pages[u], nil
}

const listingPage = `<html><body>
<table>
<tr><td><a href="/caaspp/researchfiles/sb_ca2024_all_csv_v1.zip">All, caret</a></td></tr>
<tr><td><a class="x" HREF='/caaspp/researchfiles/sb_ca2024_all_csv_ela_v1.zip'>ELA only</a></td></tr>
<tr><td><a href="https://caaspp-elpac.ets.org/caaspp/researchfiles/sb_ca2024_all_01_csv_v1.zip">Alameda</a></td></tr>
<tr><td><a href="researchfiles/sb_ca2024_all_math_csv_v1.zip">Math only</a></td></tr>
<tr><td><a href = "/caaspp/researchfiles/sb_ca2024_all_csv_v1.zip">duplicate</a></td></tr>
<tr><td><a href="/caaspp/researchfiles/sb_ca2024_all_19_csv_v1.zip">Los Angeles</a></td></tr>
<tr><td><a href="/caaspp/researchfiles/sb_ca2024_all_csv_v1.pdf">layout</a></td></tr>
</table></body></html>`

func TestLocateSelectsCombinedArchives(t *testing.T) {
	l, err := New(Config{ListURL: "https://example.test/list?year={year}"}, nil, testutil.NewTestLogger(t))
	require.NoError(t, err)
	f := &stubFetcher{pages: map[string][]byte{"https://example.test/list?year=2024": []byte(listingPage)}}
	l.fetcher = f

	urls, err := l.Locate(context.Background(), 2024)
	require.NoError(t, err)

	// three matching links, two subject-split links excluded, duplicate removed
	assert.Equal(t, []string{
		"https://caaspp-elpac.ets.org/caaspp/researchfiles/sb_ca2024_all_csv_v1.zip",
		"https://caaspp-elpac.ets.org/caaspp/researchfiles/sb_ca2024_all_01_csv_v1.zip",
		"https://caaspp-elpac.ets.org/caaspp/researchfiles/sb_ca2024_all_19_csv_v1.zip",
	}, urls)
	assert.Equal(t, []string{"https://example.test/list?year=2024"}, f.calls)
}

func TestLocateNoMatchesIsNotAnError(t *testing.T) {
	f := &stubFetcher{pages: map[string][]byte{}}
	l, err := New(Config{ListURL: "https://example.test/{year}"}, f, nil)
	require.NoError(t, err)

	urls, err := l.Locate(context.Background(), 2019)
	require.NoError(t, err)
	assert.Empty(t, urls)
}

func TestLocateFetchError(t *testing.T) {
	f := &stubFetcher{err: errors.New("boom")}
	l, err := New(Config{}, f, nil)
	require.NoError(t, err)

	_, err = l.Locate(context.Background(), 2023)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2023")
}

func TestLocateUsesYearSelector(t *testing.T) {
	page := []byte(`<a href="/files/ca2016_caret.zip">x</a><a href="/files/sb_ca2016_all_csv_v3.zip">y</a>`)
	v, err := NewVersioned(RuleCombined, map[int]string{2016: RuleLegacy})
	require.NoError(t, err)

	f := &stubFetcher{pages: map[string][]byte{"https://example.test/2016": page, "https://example.test/2017": page}}
	l, err := New(Config{ListURL: "https://example.test/{year}", BaseURL: "https://files.test", Selectors: v}, f, nil)
	require.NoError(t, err)

	legacy, err := l.Locate(context.Background(), 2016)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://files.test/files/ca2016_caret.zip", "https://files.test/files/sb_ca2016_all_csv_v3.zip"}, legacy)

	combined, err := l.Locate(context.Background(), 2017)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://files.test/files/sb_ca2016_all_csv_v3.zip"}, combined)
}

func TestExtractLinks(t *testing.T) {
	base, _ := url.Parse("https://host.test/dir/page.aspx")
	page := []byte(`<a href="a.zip">1</a> <a href="/b.ZIP">2</a> <a href="https://cdn.test/c.zip?x=1&amp;y=2">bad</a> <a href="a.zip">dup</a>`)

	links := ExtractLinks(page, base)
	assert.Equal(t, []string{"https://host.test/dir/a.zip", "https://host.test/b.ZIP"}, links)
}

func TestSelectors(t *testing.T) {
	combined, err := Lookup("Combined")
	require.NoError(t, err)
	legacy, err := Lookup(RuleLegacy)
	require.NoError(t, err)
	anySel, err := Lookup(RuleAny)
	require.NoError(t, err)

	tests := []struct {
		url      string
		combined bool
		legacy   bool
	}{
		{"https://x/sb_ca2024_all_csv_v1.zip", true, true},
		{"https://x/sb_ca2024_all_csv_ela_v1.zip", false, true},
		{"https://x/sb_ca2024_all_csv_math_v1.zip", false, true},
		{"https://x/sb_ca2015_1_csv_v3.zip", false, true},
		{"https://x/ca2015_all_caret_v2.zip", false, true},
		{"https://x/sb_ca2024_all_fixed.zip", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.combined, combined.Select(tt.url))
			assert.Equal(t, tt.legacy, legacy.Select(tt.url))
			assert.True(t, anySel.Select(tt.url))
		})
	}

	_, err = Lookup("nope")
	assert.Error(t, err)
	assert.Equal(t, []string{"any", "combined", "legacy"}, Names())

	_, err = NewVersioned(RuleCombined, map[int]string{2015: "nope"})
	assert.Error(t, err)
}
