// Package vectorstore holds the write side of the lookup index used to
// resolve fuzzy names (schools, student groups, tests) to warehouse keys.
package vectorstore

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// DefaultIndex is the index name used when none is configured.
const DefaultIndex = "eduanalytics_entities"

// Document is one resolvable item. ID is stable across rebuilds.
type Document struct {
	ID       string
	Type     string
	Label    string
	Text     string
	Metadata map[string]any
}

// Store is the index write API.
type Store interface {
	// EnsureIndex creates the index if it does not exist yet.
	EnsureIndex(ctx context.Context) error
	// Clear removes every document. A missing index is not an error.
	Clear(ctx context.Context) error
	// Write inserts docs. It either writes all of them or none.
	Write(ctx context.Context, docs []Document) error
	Count(ctx context.Context) (int64, error)
	Close() error
}

// Config selects and configures a Store backend.
type Config struct {
	// Backend is "sqlite" or "pgvector".
	Backend string
	// Index is the table name holding the documents.
	Index string
	// DSN is a file path for sqlite or a connection string for pgvector.
	DSN string
	// Dimensions is the embedding width. Required for pgvector.
	Dimensions int
}

// IndexName returns the configured index or DefaultIndex.
func (c Config) IndexName() string {
	if c.Index == "" {
		return DefaultIndex
	}
	return c.Index
}

// Open creates the configured backend. embedder may be nil for sqlite, in
// which case documents are stored without vectors.
func Open(ctx context.Context, cfg Config, embedder Embedder, logger *slog.Logger) (Store, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	switch strings.ToLower(cfg.Backend) {
	case "", "sqlite":
		return OpenSQLite(ctx, cfg.DSN, cfg.IndexName(), embedder, logger)
	case "pgvector", "postgres":
		return OpenPGVector(ctx, cfg, embedder, logger)
	default:
		return nil, fmt.Errorf("unknown index backend %q (expected sqlite or pgvector)", cfg.Backend)
	}
}

// quoteIdent double-quotes an identifier for both backends.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func texts(docs []Document) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i] = d.Text
		if out[i] == "" {
			out[i] = d.Label
		}
	}
	return out
}
