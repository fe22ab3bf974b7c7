package retrieval

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"compliance/internal/domain"
	"compliance/internal/index"
	"compliance/internal/vectorstore"
)

type Options struct {
	TopK          int
	MinWords      int
	MinAlphaRatio float64
	MaxQueryChars int
}

// Retriever searches an index for passages similar to a query.
type Retriever struct {
	opts   Options
	logger *zap.Logger
}

func NewRetriever(opts Options, logger *zap.Logger) *Retriever {
	if opts.TopK <= 0 {
		opts.TopK = 5
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retriever{opts: opts, logger: logger}
}

func (r *Retriever) Options() Options { return r.opts }

// Retrieve returns up to TopK chunks closest to query, closest first.
func (r *Retriever) Retrieve(ctx context.Context, idx *index.Index, query string) ([]domain.SearchResult, error) {
	query = Truncate(query, r.opts.MaxQueryChars)
	if strings.TrimSpace(query) == "" {
		r.logger.Warn("empty retrieval query", zap.Stringer("index", idx.Key))
		return []domain.SearchResult{}, nil
	}
	vec, err := idx.Embedder.Embed(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "embed query")
	}

	var res []domain.SearchResult
	if isZero(vec) {
		// No query token is known to the embedder.
		lister, ok := idx.Store.(vectorstore.ChunkLister)
		if !ok {
			r.logger.Warn("query has no known terms", zap.Stringer("index", idx.Key))
			return []domain.SearchResult{}, nil
		}
		chunks, err := lister.Chunks(ctx)
		if err != nil {
			return nil, err
		}
		res = lexicalSearch(chunks, query, r.opts.TopK)
	} else {
		res, err = idx.Store.Search(ctx, vec, r.opts.TopK)
		if err != nil {
			return nil, errors.Wrap(err, "search index")
		}
	}
	if len(res) == 0 {
		r.logger.Warn("no documents found for query", zap.Stringer("index", idx.Key))
		return []domain.SearchResult{}, nil
	}
	return res, nil
}

// FilterRelevant keeps results whose content has at least minWords words and
// whose share of letters among all characters exceeds minAlphaRatio.
func FilterRelevant(results []domain.SearchResult, minWords int, minAlphaRatio float64) []domain.SearchResult {
	out := make([]domain.SearchResult, 0, len(results))
	for _, r := range results {
		if IsRelevant(r.Chunk.Text, minWords, minAlphaRatio) {
			out = append(out, r)
		}
	}
	return out
}

func IsRelevant(text string, minWords int, minAlphaRatio float64) bool {
	content := strings.TrimSpace(text)
	if len(strings.Fields(content)) < minWords {
		return false
	}
	total, letters := 0, 0
	for _, r := range content {
		total++
		if unicode.IsLetter(r) {
			letters++
		}
	}
	if total == 0 {
		return false
	}
	return float64(letters)/float64(total) > minAlphaRatio
}

// FormatContext renders results for the evaluation prompt.
func FormatContext(results []domain.SearchResult) string {
	parts := make([]string, len(results))
	for i, r := range results {
		parts[i] = fmt.Sprintf("Score: %v\nContent: %s", r.Score, r.Chunk.Text)
	}
	return strings.Join(parts, "\n")
}

// Truncate cuts s to at most n runes. n <= 0 disables truncation.
func Truncate(s string, n int) string {
	if n <= 0 {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

func isZero(vec []float32) bool {
	for _, v := range vec {
		if v != 0 {
			return false
		}
	}
	return true
}
