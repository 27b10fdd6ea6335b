package vectorstore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/eduanalytics/caaspp/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubEmbedder struct {
	err   error
	calls int
}

func (e *stubEmbedder) Embed(_ context.Context, inputs []string) ([][]float32, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(inputs))
	for i, in := range inputs {
		out[i] = []float32{float32(len(in)), 1}
	}
	return out, nil
}

func newSQLite(t *testing.T, embedder Embedder) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLite(context.Background(), ":memory:", "", embedder, testutil.NewTestLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func docs() []Document {
	return []Document{
		{ID: "grade:3", Type: "grade", Label: "Grade 3", Text: "Grade 3", Metadata: map[string]any{"type": "grade", "grade": "3"}},
		{ID: "test:1", Type: "test", Label: "ELA (ID: 1)", Metadata: map[string]any{"type": "test", "test_id": "1"}},
	}
}

func TestSQLiteStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newSQLite(t, nil)

	require.NoError(t, s.Clear(ctx), "missing index is not an error")
	require.NoError(t, s.EnsureIndex(ctx))
	require.NoError(t, s.EnsureIndex(ctx), "check-before-create")

	require.NoError(t, s.Write(ctx, docs()))
	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	d, err := s.Get(ctx, "test:1")
	require.NoError(t, err)
	assert.Equal(t, "ELA (ID: 1)", d.Label)
	assert.Equal(t, "", d.Text)
	assert.Equal(t, "1", d.Metadata["test_id"])

	emb, err := s.Embedding(ctx, "test:1")
	require.NoError(t, err)
	assert.Nil(t, emb)

	require.NoError(t, s.Clear(ctx))
	n, err = s.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSQLiteStoreDuplicateIDRollsBackWrite(t *testing.T) {
	ctx := context.Background()
	s := newSQLite(t, nil)
	require.NoError(t, s.EnsureIndex(ctx))

	batch := append(docs(), docs()[0])
	require.Error(t, s.Write(ctx, batch))

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "all or nothing")
}

func TestSQLiteStoreStoresEmbeddings(t *testing.T) {
	ctx := context.Background()
	e := &stubEmbedder{}
	s := newSQLite(t, e)
	require.NoError(t, s.EnsureIndex(ctx))
	require.NoError(t, s.Write(ctx, docs()))
	assert.Equal(t, 1, e.calls)

	// label stands in for an empty text
	emb, err := s.Embedding(ctx, "test:1")
	require.NoError(t, err)
	assert.Equal(t, []float32{float32(len("ELA (ID: 1)")), 1}, emb)
}

func TestSQLiteStoreEmbedderFailure(t *testing.T) {
	ctx := context.Background()
	s := newSQLite(t, &stubEmbedder{err: errors.New("rate limited")})
	require.NoError(t, s.EnsureIndex(ctx))

	err := s.Write(ctx, docs())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")
}

func TestSQLiteStoreFileIsReopenable(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "index.db")

	s, err := OpenSQLite(ctx, path, "entities", nil, nil)
	require.NoError(t, err)
	require.NoError(t, s.EnsureIndex(ctx))
	require.NoError(t, s.Write(ctx, docs()))
	require.NoError(t, s.Close())

	s, err = OpenSQLite(ctx, path, "entities", nil, nil)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestVectorEncoding(t *testing.T) {
	v := []float32{0, -1.5, 3.25, 1e-7}
	assert.Equal(t, v, decodeVector(encodeVector(v)))
	assert.Len(t, encodeVector(v), 16)
}

func TestOpenBackends(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, Config{Backend: "sqlite"}, nil, nil)
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, s)
	require.NoError(t, s.Close())

	_, err = Open(ctx, Config{Backend: "pgvector", Dimensions: 8}, nil, nil)
	assert.ErrorContains(t, err, "embeddings client")

	_, err = Open(ctx, Config{Backend: "pgvector"}, &stubEmbedder{}, nil)
	assert.ErrorContains(t, err, "dimensions")

	_, err = Open(ctx, Config{Backend: "pinecone"}, nil, nil)
	assert.ErrorContains(t, err, "unknown index backend")
}
