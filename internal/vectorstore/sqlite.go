package vectorstore

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strings"

	_ "modernc.org/sqlite" // register "sqlite" driver
)

// SQLiteStore keeps the index in a local SQLite file. Vectors, when an
// embedder is configured, are stored as little-endian float32 blobs.
type SQLiteStore struct {
	db       *sql.DB
	table    string
	embedder Embedder
	logger   *slog.Logger
}

// OpenSQLite opens path (":memory:" for a private in-memory database).
func OpenSQLite(ctx context.Context, path, index string, embedder Embedder, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if path == "" {
		path = ":memory:"
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open index database: %w", err)
	}
	// each connection to :memory: is a separate database
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping index database: %w", err)
	}
	if index == "" {
		index = DefaultIndex
	}
	return &SQLiteStore{db: db, table: index, embedder: embedder, logger: logger}, nil
}

// EnsureIndex creates the documents table if needed.
func (s *SQLiteStore) EnsureIndex(ctx context.Context) error {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, s.table).Scan(&n)
	if err != nil {
		return fmt.Errorf("failed to inspect index: %w", err)
	}
	if n > 0 {
		return nil
	}

	s.logger.Info("creating index", slog.String("index", s.table), slog.String("backend", "sqlite"))
	_, err = s.db.ExecContext(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id        TEXT PRIMARY KEY,
		type      TEXT NOT NULL,
		label     TEXT NOT NULL,
		content   TEXT NOT NULL,
		metadata  TEXT NOT NULL,
		embedding BLOB
	)`, quoteIdent(s.table)))
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	return nil
}

// Clear deletes every document.
func (s *SQLiteStore) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM "+quoteIdent(s.table))
	if err != nil {
		if strings.Contains(err.Error(), "no such table") {
			s.logger.Debug("index not found, nothing to clear", slog.String("index", s.table))
			return nil
		}
		return fmt.Errorf("failed to clear index: %w", err)
	}
	return nil
}

// Write inserts docs in one transaction.
func (s *SQLiteStore) Write(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}

	var vectors [][]float32
	if s.embedder != nil {
		v, err := s.embedder.Embed(ctx, texts(docs))
		if err != nil {
			return err
		}
		vectors = v
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		`INSERT INTO %s (id, type, label, content, metadata, embedding) VALUES (?, ?, ?, ?, ?, ?)`,
		quoteIdent(s.table)))
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i, d := range docs {
		meta, err := json.Marshal(d.Metadata)
		if err != nil {
			return fmt.Errorf("failed to encode metadata of %s: %w", d.ID, err)
		}
		var blob []byte
		if vectors != nil {
			blob = encodeVector(vectors[i])
		}
		if _, err := stmt.ExecContext(ctx, d.ID, d.Type, d.Label, d.Text, string(meta), blob); err != nil {
			return fmt.Errorf("failed to insert document %s: %w", d.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit documents: %w", err)
	}
	return nil
}

// Count returns the number of stored documents.
func (s *SQLiteStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT count(*) FROM "+quoteIdent(s.table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	return n, nil
}

// Get returns the document with id.
func (s *SQLiteStore) Get(ctx context.Context, id string) (Document, error) {
	var (
		d    Document
		meta string
	)
	err := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT id, type, label, content, metadata FROM %s WHERE id = ?`, quoteIdent(s.table)), id).
		Scan(&d.ID, &d.Type, &d.Label, &d.Text, &meta)
	if err != nil {
		return Document{}, fmt.Errorf("failed to get document %s: %w", id, err)
	}
	if err := json.Unmarshal([]byte(meta), &d.Metadata); err != nil {
		return Document{}, fmt.Errorf("failed to decode metadata of %s: %w", id, err)
	}
	return d, nil
}

// Embedding returns the stored vector of id, or nil when documents were
// written without an embedder.
func (s *SQLiteStore) Embedding(ctx context.Context, id string) ([]float32, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT embedding FROM %s WHERE id = ?`, quoteIdent(s.table)), id).Scan(&blob)
	if err != nil {
		return nil, fmt.Errorf("failed to get embedding of %s: %w", id, err)
	}
	if blob == nil {
		return nil, nil
	}
	return decodeVector(blob), nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func encodeVector(v []float32) []byte {
	b := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(b[4*i:], math.Float32bits(f))
	}
	return b
}

func decodeVector(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v
}

var _ Store = (*SQLiteStore)(nil)
