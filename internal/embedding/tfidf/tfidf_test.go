package tfidf

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"compliance/internal/domain"
)

var _ domain.StatefulEmbedder = (*Embedder)(nil)

func norm(v []float32) float64 {
	s := 0.0
	for _, x := range v {
		s += float64(x) * float64(x)
	}
	return math.Sqrt(s)
}

func TestEmbedRequiresPrepare(t *testing.T) {
	_, err := NewEmbedder().Embed(context.Background(), "anything")
	assert.Error(t, err)
}

func TestPrepareRejectsEmptyCorpus(t *testing.T) {
	assert.Error(t, NewEmbedder().Prepare(nil))
	assert.Error(t, NewEmbedder().Prepare([]string{"the and of"}))
}

func TestEmbedNormalisedAndStable(t *testing.T) {
	e := NewEmbedder()
	require.NoError(t, e.Prepare([]string{
		"Records must be retained for five years.",
		"Access to systems requires approval.",
		"سياسة الاحتفاظ بالسجلات",
	}))
	assert.Greater(t, e.Dimension(), 0)

	v, err := e.Embed(context.Background(), "retained records")
	require.NoError(t, err)
	assert.Len(t, v, e.Dimension())
	assert.InDelta(t, 1.0, norm(v), 1e-5)

	zero, err := e.Embed(context.Background(), "unknown vocabulary")
	require.NoError(t, err)
	assert.Equal(t, 0.0, norm(zero))

	arabic, err := e.Embed(context.Background(), "السجلات")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, norm(arabic), 1e-5)
}

func TestSnapshotRestore(t *testing.T) {
	ctx := context.Background()
	e := NewEmbedder()
	require.NoError(t, e.Prepare([]string{"alpha beta", "beta gamma", "gamma delta"}))
	want, err := e.Embed(ctx, "beta gamma")
	require.NoError(t, err)

	data, err := e.Snapshot()
	require.NoError(t, err)

	restored := NewEmbedder()
	require.NoError(t, restored.Restore(data))
	assert.Equal(t, e.Dimension(), restored.Dimension())
	got, err := restored.Embed(ctx, "beta gamma")
	require.NoError(t, err)
	assert.Equal(t, want, got)

	assert.Error(t, NewEmbedder().Restore([]byte(`{"vocabulary":{"a":0},"idf":[]}`)))
	_, err = NewEmbedder().Snapshot()
	assert.Error(t, err)
}

func TestEmbedBatchPreservesOrder(t *testing.T) {
	ctx := context.Background()
	e := NewEmbedder()
	require.NoError(t, e.Prepare([]string{"alpha", "beta"}))
	vs, err := e.EmbedBatch(ctx, []string{"beta", "alpha"})
	require.NoError(t, err)
	require.Len(t, vs, 2)
	a, _ := e.Embed(ctx, "alpha")
	b, _ := e.Embed(ctx, "beta")
	assert.Equal(t, b, vs[0])
	assert.Equal(t, a, vs[1])
}
