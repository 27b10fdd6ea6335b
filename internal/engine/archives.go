package engine

import (
	"context"
	"log/slog"

	"github.com/eduanalytics/caaspp/internal/archive"
	"github.com/eduanalytics/caaspp/internal/state"
	"github.com/eduanalytics/caaspp/internal/table"
	"golang.org/x/sync/errgroup"
)

// archiveResult is the outcome of fetching and parsing one archive.
type archiveResult struct {
	url      string
	contents archive.Contents
	bytes    int
	err      error
}

func (r archiveResult) status() state.ArchiveStatus {
	switch {
	case r.err != nil:
		return state.ArchiveStatusFailed
	case r.contents.Empty():
		return state.ArchiveStatusEmpty
	default:
		return state.ArchiveStatusParsed
	}
}

// fetchAll downloads and parses urls concurrently, at most e.workers at a
// time. A failed archive never stops its siblings; results keep the order
// of urls.
func (e *Engine) fetchAll(ctx context.Context, runID string, year int, urls []string) []archiveResult {
	results := make([]archiveResult, len(urls))

	var g errgroup.Group
	g.SetLimit(e.workers)
	for i, u := range urls {
		g.Go(func() error {
			results[i] = e.fetchArchive(ctx, u)
			e.recordArchive(ctx, runID, year, results[i])
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (e *Engine) fetchArchive(ctx context.Context, url string) archiveResult {
	res := archiveResult{url: url}
	if err := ctx.Err(); err != nil {
		res.err = err
		return res
	}

	data, err := e.fetcher.Fetch(ctx, url)
	if err != nil {
		res.err = err
		return res
	}
	res.bytes = len(data)

	res.contents = archive.Parse(data, e.logger.With(slog.String("archive", url)))
	res.err = res.contents.Err
	return res
}

func (e *Engine) recordArchive(ctx context.Context, runID string, year int, r archiveResult) {
	status := r.status()
	e.metrics.RecordArchive(string(status), r.bytes)

	attrs := []any{
		slog.Int("year", year),
		slog.String("url", r.url),
		slog.String("status", string(status)),
		slog.Int("bytes", r.bytes),
	}
	if r.err != nil {
		e.logger.Warn("archive failed", append(attrs, slog.String("error", r.err.Error()))...)
	} else {
		e.logger.Debug("archive processed", append(attrs, slog.Int("skipped_entries", len(r.contents.Skipped)))...)
	}

	if e.ledger == nil || runID == "" {
		return
	}
	out := &state.ArchiveOutcome{
		RunID:   runID,
		Year:    year,
		URL:     r.url,
		Status:  status,
		Bytes:   r.bytes,
		Skipped: len(r.contents.Skipped),
	}
	if r.err != nil {
		out.Error = r.err.Error()
	}
	if err := e.ledger.RecordArchive(context.WithoutCancel(ctx), out); err != nil {
		e.logger.Warn("failed to record archive outcome", slog.String("url", r.url), slog.String("error", err.Error()))
	}
}

// split returns the results tables in url order, the first entities table
// found, and the archive errors.
func split(results []archiveResult) (tests []*table.RawTable, entities *table.RawTable, errs []error) {
	for _, r := range results {
		if r.err != nil {
			errs = append(errs, r.err)
			continue
		}
		if r.contents.Tests != nil {
			tests = append(tests, r.contents.Tests)
		}
		if entities == nil && r.contents.Entities != nil {
			entities = r.contents.Entities
		}
	}
	return tests, entities, errs
}
