// Package locator discovers research archive URLs on the publisher's
// per-year listing page.
package locator

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"github.com/eduanalytics/caaspp/internal/transport"
	"golang.org/x/net/html"
)

// Defaults for the CAASPP research file listing.
const (
	DefaultListURL = "https://caaspp-elpac.ets.org/caaspp/ResearchFileListSB.aspx?lstCounty=00&lstDistrict=00000&lstTestType=B&lstTestYear={year}&ps=true"
	DefaultBaseURL = "https://caaspp-elpac.ets.org"
)

// Locator finds archive URLs for a year.
type Locator struct {
	fetcher   transport.Fetcher
	listURL   string
	base      *url.URL
	selectors Versioned
	logger    *slog.Logger
}

// Config holds locator settings.
type Config struct {
	// ListURL is the listing page template; "{year}" is replaced.
	ListURL string
	// BaseURL resolves relative links.
	BaseURL   string
	Selectors Versioned
}

// New creates a Locator. If logger is nil, a discard logger is used.
func New(cfg Config, fetcher transport.Fetcher, logger *slog.Logger) (*Locator, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cfg.ListURL == "" {
		cfg.ListURL = DefaultListURL
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Selectors.Default == nil {
		def, _ := Lookup(RuleCombined)
		cfg.Selectors.Default = def
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url %q: %w", cfg.BaseURL, err)
	}
	return &Locator{
		fetcher:   fetcher,
		listURL:   cfg.ListURL,
		base:      base,
		selectors: cfg.Selectors,
		logger:    logger,
	}, nil
}

// ListingURL renders the listing page URL for year.
func (l *Locator) ListingURL(year int) string {
	return strings.ReplaceAll(l.listURL, "{year}", strconv.Itoa(year))
}

// Locate fetches the listing page for year and returns the selected archive
// URLs. A page without matching links yields an empty slice and no error.
func (l *Locator) Locate(ctx context.Context, year int) ([]string, error) {
	page, err := l.fetcher.Fetch(ctx, l.ListingURL(year))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch listing for %d: %w", year, err)
	}

	sel := l.selectors.For(year)
	links := ExtractLinks(page, l.base)
	urls := Filter(links, sel)

	l.logger.Info("located archives",
		slog.Int("year", year),
		slog.String("selector", sel.Name()),
		slog.Int("links", len(links)),
		slog.Int("selected", len(urls)))
	return urls, nil
}

// ExtractLinks tokenizes the page and returns the href of every tag that
// points at a .zip file, as absolute URLs, deduplicated, in page order.
// Relative links resolve against base. Malformed markup is tolerated.
func ExtractLinks(page []byte, base *url.URL) []string {
	var out []string
	seen := make(map[string]struct{})
	z := html.NewTokenizer(bytes.NewReader(page))
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			return out
		}
		if tt != html.StartTagToken && tt != html.SelfClosingTagToken {
			continue
		}
		for _, attr := range z.Token().Attr {
			if !strings.EqualFold(attr.Key, "href") {
				continue
			}
			raw := strings.TrimSpace(attr.Val)
			if !strings.HasSuffix(strings.ToLower(raw), ".zip") {
				continue
			}
			u, err := url.Parse(raw)
			if err != nil {
				continue
			}
			if base != nil {
				u = base.ResolveReference(u)
			}
			s := u.String()
			if _, dup := seen[s]; dup {
				continue
			}
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
}

// Filter keeps the links accepted by sel, preserving order.
func Filter(links []string, sel Selector) []string {
	out := make([]string, 0, len(links))
	for _, l := range links {
		if sel.Select(l) {
			out = append(out, l)
		}
	}
	return out
}
