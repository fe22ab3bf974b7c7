package chunker

import (
	"context"
	"math"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"compliance/internal/domain"
)

// SemanticChunker groups consecutive sentences and starts a new chunk where the
// embedding distance between neighbouring sentence windows exceeds a percentile
// of all such distances.
type SemanticChunker struct {
	embedder   domain.Embedder
	percentile float64
	bufferSize int
}

func NewSemanticChunker(embedder domain.Embedder, percentile float64, bufferSize int) *SemanticChunker {
	if percentile <= 0 || percentile > 100 {
		percentile = 95
	}
	if bufferSize < 0 {
		bufferSize = 0
	}
	return &SemanticChunker{embedder: embedder, percentile: percentile, bufferSize: bufferSize}
}

func (c *SemanticChunker) Chunk(ctx context.Context, document domain.Document) ([]domain.Chunk, error) {
	sentences := splitSentences(document.Content)
	switch len(sentences) {
	case 0:
		return nil, nil
	case 1:
		return []domain.Chunk{newChunk(document, 0, sentences[0])}, nil
	}

	windows := make([]string, len(sentences))
	for i := range sentences {
		lo := max(0, i-c.bufferSize)
		hi := min(len(sentences), i+c.bufferSize+1)
		windows[i] = strings.Join(sentences[lo:hi], " ")
	}
	vectors, err := c.embedder.EmbedBatch(ctx, windows)
	if err != nil {
		return nil, errors.Wrap(err, "embed sentence windows")
	}
	if len(vectors) != len(windows) {
		return nil, errors.Errorf("embedder returned %d vectors for %d windows", len(vectors), len(windows))
	}

	distances := make([]float64, len(vectors)-1)
	for i := range distances {
		distances[i] = 1 - cosine(vectors[i], vectors[i+1])
	}
	threshold := percentile(distances, c.percentile)

	var chunks []domain.Chunk
	start := 0
	for i, d := range distances {
		if d > threshold {
			chunks = append(chunks, newChunk(document, len(chunks), strings.Join(sentences[start:i+1], " ")))
			start = i + 1
		}
	}
	if start < len(sentences) {
		chunks = append(chunks, newChunk(document, len(chunks), strings.Join(sentences[start:], " ")))
	}
	return chunks, nil
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// percentile uses linear interpolation between closest ranks.
func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	pos := (float64(len(sorted)) - 1) * p / 100
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	return sorted[lo] + (sorted[hi]-sorted[lo])*(pos-float64(lo))
}
