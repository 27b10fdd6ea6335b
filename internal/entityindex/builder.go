package entityindex

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/eduanalytics/caaspp/internal/facts"
	"github.com/eduanalytics/caaspp/internal/table"
	"github.com/eduanalytics/caaspp/internal/vectorstore"
)

// DefaultBatchSize bounds the number of documents per Write call.
const DefaultBatchSize = 100

// YearEntities pairs an entities list with the year it was published for.
type YearEntities struct {
	Year     int
	Entities []facts.Entity
}

// Inputs is everything one index build reads.
type Inputs struct {
	// Entities is conventionally the latest year only. When a code appears
	// in several years, the most recent year wins.
	Entities  []YearEntities
	Subgroups *table.RawTable
	Tests     *table.RawTable
	// Grades defaults to DefaultGrades when nil.
	Grades []string
}

// Stats counts what a build produced.
type Stats struct {
	Entities   int
	Subgroups  int
	Tests      int
	Grades     int
	Duplicates int
	Batches    int
	Written    int
}

// Documents is the total number of distinct documents.
func (s Stats) Documents() int {
	return s.Entities + s.Subgroups + s.Tests + s.Grades
}

// BatchError reports the batch that failed. Documents before Offset were
// written; the index holds a truncated set until the next build.
type BatchError struct {
	Batch   int
	Offset  int
	Written int
	Err     error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("index write failed at batch %d (offset %d, %d documents written): %v",
		e.Batch, e.Offset, e.Written, e.Err)
}

func (e *BatchError) Unwrap() error { return e.Err }

// Builder rebuilds the index.
type Builder struct {
	store     vectorstore.Store
	batchSize int
	logger    *slog.Logger
}

// NewBuilder creates a Builder. A non-positive batchSize uses
// DefaultBatchSize. If logger is nil, a discard logger is used.
func NewBuilder(store vectorstore.Store, batchSize int, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Builder{store: store, batchSize: batchSize, logger: logger}
}

// Documents renders in as deduplicated documents: entities, then
// subgroups, tests and grades. The first document of each id wins.
func Documents(in Inputs) ([]vectorstore.Document, Stats) {
	var (
		stats Stats
		out   []vectorstore.Document
		seen  = make(map[string]struct{})
	)
	add := func(d vectorstore.Document, counter *int) {
		if _, dup := seen[d.ID]; dup {
			stats.Duplicates++
			return
		}
		seen[d.ID] = struct{}{}
		out = append(out, d)
		*counter++
	}

	years := make([]YearEntities, len(in.Entities))
	copy(years, in.Entities)
	sort.SliceStable(years, func(i, j int) bool { return years[i].Year > years[j].Year })
	for _, ye := range years {
		for _, e := range ye.Entities {
			if d, ok := entityDocument(ye.Year, e); ok {
				add(d, &stats.Entities)
			}
		}
	}

	for _, d := range subgroupDocuments(in.Subgroups) {
		add(d, &stats.Subgroups)
	}
	for _, d := range testDocuments(in.Tests) {
		add(d, &stats.Tests)
	}

	grades := in.Grades
	if grades == nil {
		grades = DefaultGrades
	}
	for _, g := range grades {
		add(gradeDocument(canonicalID(g)), &stats.Grades)
	}
	return out, stats
}

// Build replaces the index contents with the documents of in. The index is
// created if missing and cleared before writing, so running Build twice
// leaves a single copy of every document. A failed batch stops the build
// and returns a *BatchError.
func (b *Builder) Build(ctx context.Context, in Inputs) (Stats, error) {
	docs, stats := Documents(in)

	if err := b.store.EnsureIndex(ctx); err != nil {
		return stats, err
	}
	if err := b.store.Clear(ctx); err != nil {
		return stats, err
	}

	for start := 0; start < len(docs); start += b.batchSize {
		if err := ctx.Err(); err != nil {
			return stats, &BatchError{Batch: stats.Batches, Offset: start, Written: stats.Written, Err: err}
		}
		end := min(start+b.batchSize, len(docs))
		if err := b.store.Write(ctx, docs[start:end]); err != nil {
			b.logger.Error("index batch failed",
				slog.Int("batch", stats.Batches),
				slog.Int("offset", start),
				slog.Int("written", stats.Written),
				slog.String("error", err.Error()))
			return stats, &BatchError{Batch: stats.Batches, Offset: start, Written: stats.Written, Err: err}
		}
		stats.Batches++
		stats.Written += end - start
	}

	b.logger.Info("rebuilt entity index",
		slog.Int("entities", stats.Entities),
		slog.Int("subgroups", stats.Subgroups),
		slog.Int("tests", stats.Tests),
		slog.Int("grades", stats.Grades),
		slog.Int("duplicates", stats.Duplicates),
		slog.Int("batches", stats.Batches))
	return stats, nil
}
