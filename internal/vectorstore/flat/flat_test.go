package flat

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"compliance/internal/domain"
	"compliance/internal/vectorstore"
)

var (
	_ vectorstore.Storage     = (*Storage)(nil)
	_ vectorstore.ChunkLister = (*Storage)(nil)
)

func seed(t *testing.T, s *Storage) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.Init(ctx, 2))
	require.NoError(t, s.Upsert(ctx, []domain.Chunk{
		{ChunkID: "a", Text: "origin", Language: domain.LanguageEnglish},
		{ChunkID: "b", Text: "far"},
		{ChunkID: "c", Text: "near"},
	}, [][]float32{{0, 0}, {3, 4}, {1, 0}}))
}

func TestSearchSquaredL2Ascending(t *testing.T) {
	s := NewStorage("")
	seed(t, s)

	res, err := s.Search(context.Background(), []float32{0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, "a", res[0].Chunk.ChunkID)
	assert.Equal(t, float32(0), res[0].Score)
	assert.Equal(t, "c", res[1].Chunk.ChunkID)
	assert.Equal(t, float32(1), res[1].Score)

	res, err = s.Search(context.Background(), []float32{3, 4}, 10)
	require.NoError(t, err)
	require.Len(t, res, 3)
	assert.Equal(t, "b", res[0].Chunk.ChunkID)
	assert.Equal(t, float32(25), res[2].Score)
}

func TestDimensionChecks(t *testing.T) {
	ctx := context.Background()
	s := NewStorage("")
	assert.Error(t, s.Init(ctx, 0))
	assert.Error(t, s.Upsert(ctx, []domain.Chunk{{}}, [][]float32{{1}}))

	seed(t, s)
	assert.Error(t, s.Upsert(ctx, []domain.Chunk{{}}, [][]float32{{1, 2, 3}}))
	assert.Error(t, s.Upsert(ctx, []domain.Chunk{{}, {}}, [][]float32{{1, 2}}))
	_, err := s.Search(ctx, []float32{1}, 1)
	assert.Error(t, err)
}

func TestEmptySearch(t *testing.T) {
	s := NewStorage("")
	require.NoError(t, s.Init(context.Background(), 3))
	res, err := s.Search(context.Background(), []float32{1, 2, 3}, 5)
	require.NoError(t, err)
	assert.Empty(t, res)
}

func TestFlushAndOpen(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "2024", "English")

	s := NewStorage(dir)
	seed(t, s)
	require.NoError(t, s.Flush(ctx))
	assert.FileExists(t, filepath.Join(dir, indexFile))
	assert.FileExists(t, filepath.Join(dir, docstoreFile))

	loaded, err := Open(dir)
	require.NoError(t, err)
	ok, err := loaded.Exists(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 3, loaded.Len())

	res, err := loaded.Search(ctx, []float32{1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "c", res[0].Chunk.ChunkID)
	assert.Equal(t, "near", res[0].Chunk.Text)

	chunks, err := loaded.Chunks(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.LanguageEnglish, chunks[0].Language)
}

func TestOpenMissingDirIsEmpty(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "nothing"))
	require.NoError(t, err)
	ok, err := s.Exists(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestOpenRejectsCorruptIndex(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, indexFile), []byte("garbage-bytes-here"), 0o644))
	_, err := Open(dir)
	assert.Error(t, err)
}

func TestClearRemovesFiles(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s := NewStorage(dir)
	seed(t, s)
	require.NoError(t, s.Flush(ctx))
	require.NoError(t, s.Clear(ctx))

	ok, err := s.Exists(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoFileExists(t, filepath.Join(dir, indexFile))
	assert.NoFileExists(t, filepath.Join(dir, docstoreFile))
}
