package index

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/tmc/langchaingo/documentloaders"
	"go.uber.org/zap"

	"compliance/internal/domain"
	"compliance/internal/vectorstore"
)

var ErrNoSources = errors.New("no readable reference documents")

const (
	manifestFile = "manifest.json"
	embedderFile = "embedder.json"
)

// EmbedderFactory returns the embedder used for one index. Stateful embedders
// must return a fresh instance per call.
type EmbedderFactory func() domain.Embedder

// ChunkerFactory returns a chunker bound to the index embedder.
type ChunkerFactory func(domain.Embedder) domain.Chunker

// StoreOpener opens the vector store backing key.
type StoreOpener func(key domain.IndexKey) (vectorstore.Storage, error)

// Manifest describes a built index.
type Manifest struct {
	Embedder  string    `json:"embedder"`
	Dimension int       `json:"dimension"`
	Documents int       `json:"documents"`
	Chunks    int       `json:"chunks"`
	BuiltAt   time.Time `json:"built_at"`
}

// BuildReport summarises one Build call.
type BuildReport struct {
	Key       domain.IndexKey
	Documents int
	Chunks    int
	Dimension int
	Skipped   []string
	Summary   string
}

// Dir returns the directory holding the metadata of key under root.
func Dir(root string, key domain.IndexKey) string {
	return filepath.Join(root, fmt.Sprint(key.Year), string(key.Language))
}

type Builder struct {
	dir                 string
	newEmbedder         EmbedderFactory
	newChunker          ChunkerFactory
	openStore           StoreOpener
	summarizer          domain.Summarizer
	summaryMaxSentences int
	batchSize           int
	logger              *zap.Logger
}

type BuilderConfig struct {
	Dir                 string
	NewEmbedder         EmbedderFactory
	NewChunker          ChunkerFactory
	OpenStore           StoreOpener
	Summarizer          domain.Summarizer
	SummaryMaxSentences int
	BatchSize           int
	Logger              *zap.Logger
}

func NewBuilder(cfg BuilderConfig) *Builder {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 64
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Builder{
		dir:                 cfg.Dir,
		newEmbedder:         cfg.NewEmbedder,
		newChunker:          cfg.NewChunker,
		openStore:           cfg.OpenStore,
		summarizer:          cfg.Summarizer,
		summaryMaxSentences: cfg.SummaryMaxSentences,
		batchSize:           cfg.BatchSize,
		logger:              cfg.Logger,
	}
}

// Build replaces the index for key with the contents of paths. Paths may be
// files, directories or glob patterns; PDF pages and .txt files are indexed.
func (b *Builder) Build(ctx context.Context, key domain.IndexKey, paths []string) (*BuildReport, error) {
	log := b.logger.With(zap.Stringer("index", key))
	documents, skipped, err := b.loadSources(ctx, paths)
	if err != nil {
		return nil, err
	}
	for _, s := range skipped {
		log.Warn("skipping unsupported source", zap.String("path", s))
	}
	if len(documents) == 0 {
		return nil, ErrNoSources
	}

	corpus := make([]string, len(documents))
	var allText strings.Builder
	for i, d := range documents {
		corpus[i] = d.Content
		allText.WriteString("\n")
		allText.WriteString(d.Content)
	}
	embedder := b.newEmbedder()
	if err := embedder.Prepare(corpus); err != nil {
		return nil, errors.Wrap(err, "prepare embedder")
	}

	chunker := b.newChunker(embedder)
	var chunks []domain.Chunk
	for _, d := range documents {
		cs, err := chunker.Chunk(ctx, d)
		if err != nil {
			return nil, errors.Wrapf(err, "chunk %s", d.Path)
		}
		for i := range cs {
			cs[i].Language = key.Language
		}
		chunks = append(chunks, cs...)
	}
	if len(chunks) == 0 {
		return nil, ErrNoSources
	}
	log.Info("chunked reference corpus", zap.Int("documents", len(documents)), zap.Int("chunks", len(chunks)))

	vectors := make([][]float32, 0, len(chunks))
	for start := 0; start < len(chunks); start += b.batchSize {
		end := min(start+b.batchSize, len(chunks))
		texts := make([]string, end-start)
		for i, c := range chunks[start:end] {
			texts[i] = c.Text
		}
		vs, err := embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, errors.Wrap(err, "embed chunks")
		}
		vectors = append(vectors, vs...)
	}
	dim := len(vectors[0])

	store, err := b.openStore(key)
	if err != nil {
		return nil, errors.Wrap(err, "open vector store")
	}
	defer store.Close()
	if err := store.Clear(ctx); err != nil {
		return nil, errors.Wrap(err, "clear vector store")
	}
	if err := store.Init(ctx, dim); err != nil {
		return nil, errors.Wrap(err, "init vector store")
	}
	for start := 0; start < len(chunks); start += b.batchSize {
		end := min(start+b.batchSize, len(chunks))
		if err := store.Upsert(ctx, chunks[start:end], vectors[start:end]); err != nil {
			return nil, errors.Wrap(err, "upsert chunks")
		}
	}
	if err := store.Flush(ctx); err != nil {
		return nil, errors.Wrap(err, "flush vector store")
	}

	if err := b.writeMetadata(key, embedder, Manifest{
		Embedder:  embedder.Name(),
		Dimension: dim,
		Documents: len(documents),
		Chunks:    len(chunks),
		BuiltAt:   time.Now().UTC(),
	}); err != nil {
		return nil, err
	}

	summary, err := b.summarizer.Summarize(allText.String(), b.summaryMaxSentences)
	if err != nil {
		return nil, errors.Wrap(err, "summarize corpus")
	}
	log.Info("index built", zap.Int("dimension", dim))
	return &BuildReport{
		Key:       key,
		Documents: len(documents),
		Chunks:    len(chunks),
		Dimension: dim,
		Skipped:   skipped,
		Summary:   summary,
	}, nil
}

func (b *Builder) writeMetadata(key domain.IndexKey, embedder domain.Embedder, m Manifest) error {
	dir := Dir(b.dir, key)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(err, "create index dir")
	}
	if se, ok := embedder.(domain.StatefulEmbedder); ok {
		state, err := se.Snapshot()
		if err != nil {
			return errors.Wrap(err, "snapshot embedder")
		}
		if err := os.WriteFile(filepath.Join(dir, embedderFile), state, 0o644); err != nil {
			return errors.Wrap(err, "write embedder state")
		}
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return errors.Wrap(os.WriteFile(filepath.Join(dir, manifestFile), data, 0o644), "write manifest")
}

func (b *Builder) loadSources(ctx context.Context, paths []string) ([]domain.Document, []string, error) {
	var files []string
	for _, p := range paths {
		matches, _ := filepath.Glob(p)
		if matches == nil {
			matches = []string{p}
		}
		for _, m := range matches {
			info, err := os.Stat(m)
			if err != nil {
				return nil, nil, errors.Wrapf(err, "stat %s", m)
			}
			if !info.IsDir() {
				files = append(files, m)
				continue
			}
			err = filepath.WalkDir(m, func(path string, d os.DirEntry, err error) error {
				if err != nil {
					return err
				}
				if !d.IsDir() {
					files = append(files, path)
				}
				return nil
			})
			if err != nil {
				return nil, nil, errors.Wrapf(err, "walk %s", m)
			}
		}
	}

	var (
		documents []domain.Document
		skipped   []string
	)
	for _, f := range files {
		switch strings.ToLower(filepath.Ext(f)) {
		case ".pdf":
			pages, err := loadPDF(ctx, f)
			if err != nil {
				return nil, nil, err
			}
			documents = append(documents, pages...)
		case ".txt":
			data, err := os.ReadFile(f)
			if err != nil {
				return nil, nil, errors.Wrapf(err, "read %s", f)
			}
			if strings.TrimSpace(string(data)) != "" {
				documents = append(documents, domain.Document{ID: hashString(f), Path: f, Content: string(data)})
			}
		default:
			skipped = append(skipped, f)
		}
	}
	return documents, skipped, nil
}

// loadPDF returns one document per non-empty page.
func loadPDF(ctx context.Context, path string) ([]domain.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, errors.Wrapf(err, "stat %s", path)
	}
	pages, err := documentloaders.NewPDF(f, info.Size()).Load(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "load pdf %s", path)
	}
	docs := make([]domain.Document, 0, len(pages))
	for i, p := range pages {
		if strings.TrimSpace(p.PageContent) == "" {
			continue
		}
		docs = append(docs, domain.Document{
			ID:      hashString(fmt.Sprintf("%s#%d", path, i+1)),
			Path:    fmt.Sprintf("%s#page=%d", path, i+1),
			Content: p.PageContent,
		})
	}
	return docs, nil
}

func hashString(s string) string {
	h := sha1.Sum([]byte(s))
	return hex.EncodeToString(h[:8])
}
