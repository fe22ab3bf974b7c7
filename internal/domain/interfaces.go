package domain

import "context"

// Document represents a single reference source loaded into an index.
// PDF sources produce one Document per page.
type Document struct {
	ID      string
	Path    string
	Content string
}

// Chunk is a semantically meaningful part of a reference document used for indexing.
type Chunk struct {
	DocumentID string   `json:"document_id"`
	ChunkID    string   `json:"chunk_id"`
	Text       string   `json:"text"`
	Index      int      `json:"index"`
	Language   Language `json:"language,omitempty"`
	Source     string   `json:"source,omitempty"`
}

// SearchResult represents a matching chunk with its distance to the query.
// Lower scores are closer.
type SearchResult struct {
	Chunk Chunk
	Score float32
}

// Embedder converts free text into a numeric vector representation.
// Implementations may require a preparation phase over the corpus.
type Embedder interface {
	Name() string
	Prepare(corpus []string) error
	Dimension() int
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// StatefulEmbedder is an Embedder whose learned state must travel with an index.
type StatefulEmbedder interface {
	Embedder
	Snapshot() ([]byte, error)
	Restore(data []byte) error
}

// Chunker splits documents into chunks suitable for retrieval indexing.
type Chunker interface {
	Chunk(ctx context.Context, document Document) ([]Chunk, error)
}

// Summarizer produces a brief summary of the provided text.
type Summarizer interface {
	Summarize(text string, maxSentences int) (string, error)
}
