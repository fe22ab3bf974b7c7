package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "openai", cfg.Embedder.Type)
	assert.Equal(t, "text-embedding-3-large", cfg.Embedder.OpenAI.Model)
	assert.Equal(t, "semantic", cfg.Chunker.Type)
	assert.Equal(t, 95.0, cfg.Chunker.BreakpointPercentile)
	assert.Equal(t, "flat", cfg.VectorStore.Type)
	assert.Equal(t, "gpt-4o", cfg.LLM.Model)
	assert.Equal(t, "gpt-4o-mini", cfg.Vision.Model)
	assert.Equal(t, 300.0, cfg.Vision.DPI)
	assert.Equal(t, 1000, cfg.Vision.MaxTokens)
	assert.Equal(t, 5, cfg.Retrieval.TopK)
	assert.Equal(t, 5, cfg.Retrieval.MinWords)
	assert.Equal(t, 0.5, cfg.Retrieval.MinAlphaRatio)
	assert.Equal(t, []int{2024}, cfg.Compliance.Years)
	assert.Equal(t, []string{"English", "Arabic"}, cfg.Compliance.Languages)
}

func TestLoadAppliesDefaultsToPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
embedder:
  type: tfidf
vector_store:
  type: qdrant
  qdrant:
    addr: qdrant:6334
retrieval:
  top_k: 8
compliance:
  years: [2024, 2025]
`)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "tfidf", cfg.Embedder.Type)
	assert.Nil(t, cfg.Embedder.OpenAI)
	assert.Equal(t, "qdrant:6334", cfg.VectorStore.Qdrant.Addr)
	assert.Equal(t, "compliance", cfg.VectorStore.Qdrant.CollectionPrefix)
	assert.Equal(t, 8, cfg.Retrieval.TopK)
	assert.Equal(t, 5, cfg.Retrieval.MinWords)
	assert.Equal(t, []int{2024, 2025}, cfg.Compliance.Years)
}

func TestLoadRejectsInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("embedder: [unclosed"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := Default()
	cfg.Server.Addr = ":9090"
	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", loaded.Server.Addr)
	assert.Equal(t, cfg.Vision, loaded.Vision)
}
