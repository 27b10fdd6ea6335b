package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/eduanalytics/caaspp/internal/archive"
	"github.com/eduanalytics/caaspp/internal/entityindex"
	"github.com/eduanalytics/caaspp/internal/facts"
	"github.com/eduanalytics/caaspp/internal/table"
)

// ErrNoEntities is returned when no year of the window yielded an entities
// table. The index is left as it was.
var ErrNoEntities = errors.New("no entities table found")

// buildIndex fetches the reference tables and rebuilds the index from the
// entities of latest. Any missing input aborts before the index is cleared.
func (e *Engine) buildIndex(ctx context.Context, latest *yearEntities) (entityindex.Stats, error) {
	if latest == nil {
		return entityindex.Stats{}, fmt.Errorf("%w in %s", ErrNoEntities, e.window)
	}

	subgroups, err := e.fetchReference(ctx, "subgroups", e.reference.SubgroupsURL, e.reference.SubgroupsDelimiter)
	if err != nil {
		return entityindex.Stats{}, err
	}
	tests, err := e.fetchReference(ctx, "tests", e.reference.TestsURL, e.reference.TestsDelimiter)
	if err != nil {
		return entityindex.Stats{}, err
	}

	e.logger.Info("building entity index", slog.Int("entities_year", latest.year), slog.Int("entities", latest.table.Len()))
	return e.index.Build(ctx, entityindex.Inputs{
		Entities:  []entityindex.YearEntities{{Year: latest.year, Entities: facts.ReadEntities(latest.table)}},
		Subgroups: subgroups,
		Tests:     tests,
	})
}

// fetchReference downloads one reference table. An unset url yields nil.
func (e *Engine) fetchReference(ctx context.Context, name, url string, delimiter rune) (*table.RawTable, error) {
	if url == "" {
		e.logger.Warn("reference table not configured", slog.String("reference", name))
		return nil, nil
	}
	data, err := e.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s reference: %w", name, err)
	}
	t, err := archive.ParseReference(data, delimiter)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s reference: %w", name, err)
	}
	e.logger.Debug("fetched reference table", slog.String("reference", name), slog.Int("rows", t.Len()))
	return t, nil
}

// RebuildIndex rebuilds the entity index without loading facts. Entities
// come from the most recent year of the window that publishes them.
func (e *Engine) RebuildIndex(ctx context.Context) (entityindex.Stats, error) {
	if e.index == nil {
		return entityindex.Stats{}, errors.New("entity index not configured")
	}

	years := e.window.Years()
	slices.Reverse(years)
	for _, year := range years {
		urls, err := e.locator.Locate(ctx, year)
		if err != nil {
			return entityindex.Stats{}, err
		}
		if len(urls) == 0 {
			continue
		}
		_, entities, errs := split(e.fetchAll(ctx, "", year, urls))
		if entities != nil {
			stats, err := e.buildIndex(ctx, &yearEntities{year: year, table: entities})
			if err == nil {
				e.metrics.RecordIndex(stats.Written)
			}
			return stats, err
		}
		if len(errs) > 0 {
			return entityindex.Stats{}, fmt.Errorf("year %d: %w", year, errors.Join(errs...))
		}
	}
	return entityindex.Stats{}, fmt.Errorf("%w in %s", ErrNoEntities, e.window)
}
