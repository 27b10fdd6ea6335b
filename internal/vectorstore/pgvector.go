package vectorstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// undefinedTable is the Postgres SQLSTATE for a missing relation.
const undefinedTable = "42P01"

// PGVectorStore keeps the index in a Postgres table with a pgvector column.
type PGVectorStore struct {
	pool       *pgxpool.Pool
	table      string
	dimensions int
	embedder   Embedder
	logger     *slog.Logger
}

// OpenPGVector connects to cfg.DSN. An embedder and cfg.Dimensions are
// required: every document is stored with its vector.
func OpenPGVector(ctx context.Context, cfg Config, embedder Embedder, logger *slog.Logger) (*PGVectorStore, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if embedder == nil {
		return nil, errors.New("pgvector index requires an embeddings client")
	}
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("pgvector index requires positive dimensions, got %d", cfg.Dimensions)
	}

	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to create index pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to index database: %w", err)
	}

	return &PGVectorStore{
		pool:       pool,
		table:      cfg.IndexName(),
		dimensions: cfg.Dimensions,
		embedder:   embedder,
		logger:     logger,
	}, nil
}

// EnsureIndex creates the vector extension, the table and its HNSW index.
func (s *PGVectorStore) EnsureIndex(ctx context.Context) error {
	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT to_regclass($1) IS NOT NULL`, quoteIdent(s.table)).Scan(&exists); err != nil {
		return fmt.Errorf("failed to inspect index: %w", err)
	}
	if exists {
		return nil
	}

	s.logger.Info("creating index", slog.String("index", s.table), slog.String("backend", "pgvector"), slog.Int("dimensions", s.dimensions))
	for _, stmt := range s.createStatements() {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	return nil
}

func (s *PGVectorStore) createStatements() []string {
	t := quoteIdent(s.table)
	return []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id        TEXT PRIMARY KEY,
			type      TEXT NOT NULL,
			label     TEXT NOT NULL,
			content   TEXT NOT NULL,
			metadata  JSONB NOT NULL,
			embedding vector(%d) NOT NULL
		)`, t, s.dimensions),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s USING hnsw (embedding vector_cosine_ops)`,
			quoteIdent(s.table+"_embedding_idx"), t),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (type)`, quoteIdent(s.table+"_type_idx"), t),
	}
}

// Clear truncates the table.
func (s *PGVectorStore) Clear(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "TRUNCATE "+quoteIdent(s.table))
	if err != nil {
		if isUndefinedTable(err) {
			s.logger.Debug("index not found, nothing to clear", slog.String("index", s.table))
			return nil
		}
		return fmt.Errorf("failed to clear index: %w", err)
	}
	return nil
}

// Write embeds docs and inserts them in one transaction.
func (s *PGVectorStore) Write(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}

	vectors, err := s.embedder.Embed(ctx, texts(docs))
	if err != nil {
		return err
	}

	batch := &pgx.Batch{}
	query := fmt.Sprintf(
		`INSERT INTO %s (id, type, label, content, metadata, embedding) VALUES ($1, $2, $3, $4, $5, $6)`,
		quoteIdent(s.table))
	for i, d := range docs {
		if len(vectors[i]) != s.dimensions {
			return fmt.Errorf("document %s: embedding has %d dimensions, index has %d", d.ID, len(vectors[i]), s.dimensions)
		}
		meta, err := json.Marshal(d.Metadata)
		if err != nil {
			return fmt.Errorf("failed to encode metadata of %s: %w", d.ID, err)
		}
		batch.Queue(query, d.ID, d.Type, d.Label, d.Text, meta, pgvector.NewVector(vectors[i]))
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	br := tx.SendBatch(ctx, batch)
	for _, d := range docs {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return fmt.Errorf("failed to insert document %s: %w", d.ID, err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("failed to insert documents: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit documents: %w", err)
	}
	return nil
}

// Count returns the number of stored documents.
func (s *PGVectorStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, "SELECT count(*) FROM "+quoteIdent(s.table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	return n, nil
}

// Close releases the pool.
func (s *PGVectorStore) Close() error {
	s.pool.Close()
	return nil
}

func isUndefinedTable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == undefinedTable
}

var _ Store = (*PGVectorStore)(nil)
