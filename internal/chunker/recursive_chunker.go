package chunker

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/tmc/langchaingo/textsplitter"

	"compliance/internal/domain"
)

// RecursiveChunker splits on paragraph, line and word boundaries until pieces
// fit in chunkSize characters.
type RecursiveChunker struct {
	splitter textsplitter.RecursiveCharacter
}

func NewRecursiveChunker(chunkSize, chunkOverlap int) *RecursiveChunker {
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		chunkOverlap = 0
	}
	return &RecursiveChunker{
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(chunkSize),
			textsplitter.WithChunkOverlap(chunkOverlap),
		),
	}
}

func (c *RecursiveChunker) Chunk(_ context.Context, document domain.Document) ([]domain.Chunk, error) {
	if strings.TrimSpace(document.Content) == "" {
		return nil, nil
	}
	parts, err := c.splitter.SplitText(document.Content)
	if err != nil {
		return nil, errors.Wrap(err, "recursive split")
	}
	chunks := make([]domain.Chunk, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		chunks = append(chunks, newChunk(document, len(chunks), p))
	}
	return chunks, nil
}
