package chunker

import (
	"regexp"
	"strings"

	"github.com/google/uuid"

	"compliance/internal/domain"
)

// A sentence ends at Latin or Arabic terminal punctuation followed by
// whitespace or the end of the text, so "3.2" and "5.5" stay intact. A
// trailing fragment without terminal punctuation is kept as its own sentence.
var sentenceEndRe = regexp.MustCompile(`[.!?؟]+(?:\s+|$)`)

func splitSentences(text string) []string {
	var out []string
	last := 0
	for _, loc := range sentenceEndRe.FindAllStringIndex(text, -1) {
		if s := strings.TrimSpace(text[last:loc[1]]); s != "" {
			out = append(out, s)
		}
		last = loc[1]
	}
	if tail := strings.TrimSpace(text[last:]); tail != "" {
		out = append(out, tail)
	}
	return out
}

func newChunk(doc domain.Document, idx int, text string) domain.Chunk {
	return domain.Chunk{
		DocumentID: doc.ID,
		ChunkID:    uuid.NewString(),
		Text:       text,
		Index:      idx,
		Source:     doc.Path,
	}
}
