package vectorstore

import (
	"context"

	"compliance/internal/domain"
)

// Storage persists vectors for one index and supports similarity search.
// Search results are ordered by ascending distance.
type Storage interface {
	Init(ctx context.Context, dimension int) error
	Upsert(ctx context.Context, chunks []domain.Chunk, vectors [][]float32) error
	Search(ctx context.Context, vector []float32, topK int) ([]domain.SearchResult, error)
	Clear(ctx context.Context) error
	Exists(ctx context.Context) (bool, error)
	Flush(ctx context.Context) error
	Close() error
}

// ChunkLister is implemented by stores that can enumerate every stored chunk.
type ChunkLister interface {
	Chunks(ctx context.Context) ([]domain.Chunk, error)
}
