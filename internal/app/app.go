// Package app assembles the compliance components from configuration.
package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"compliance/internal/chunker"
	"compliance/internal/compliance"
	"compliance/internal/config"
	"compliance/internal/domain"
	"compliance/internal/embedding/openai"
	"compliance/internal/embedding/tfidf"
	"compliance/internal/extract"
	"compliance/internal/extract/fitz"
	"compliance/internal/extract/vision"
	"compliance/internal/index"
	"compliance/internal/llm"
	"compliance/internal/pointer"
	"compliance/internal/retrieval"
	"compliance/internal/store"
	"compliance/internal/store/sqlite"
	"compliance/internal/summarizer"
	"compliance/internal/vectorstore"
	"compliance/internal/vectorstore/flat"
	"compliance/internal/vectorstore/qdrant"
)

// App holds the long-lived components. Components that call hosted models
// are created on first use so that commands which only touch the database
// work without API keys.
type App struct {
	Config    *config.AppConfig
	Logger    *zap.Logger
	Store     store.Store
	Pointers  *pointer.Service
	Retriever *retrieval.Retriever

	mu          sync.Mutex
	newEmbedder index.EmbedderFactory
	catalog     *index.Catalog
	checker     *compliance.Checker
}

func New(ctx context.Context, cfg *config.AppConfig, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := sqlite.NewDB(ctx, cfg.Store.Path)
	if err != nil {
		return nil, errors.Wrap(err, "open store")
	}
	return &App{
		Config:   cfg,
		Logger:   logger,
		Store:    db,
		Pointers: pointer.NewService(db, cfg.Compliance.Years, cfg.Compliance.Languages, logger.Named("pointer")),
		Retriever: retrieval.NewRetriever(retrieval.Options{
			TopK:          cfg.Retrieval.TopK,
			MinWords:      cfg.Retrieval.MinWords,
			MinAlphaRatio: cfg.Retrieval.MinAlphaRatio,
			MaxQueryChars: cfg.Retrieval.MaxQueryChars,
		}, logger.Named("retrieval")),
	}, nil
}

// NewLogger builds the zap logger for cfg. verbose forces debug level.
func NewLogger(cfg config.LogConfig, verbose bool) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zc = zap.NewDevelopmentConfig()
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		if err := level.Set(cfg.Level); err != nil {
			return nil, errors.Wrapf(err, "log level %q", cfg.Level)
		}
	}
	if verbose {
		level = zapcore.DebugLevel
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

func (a *App) embedderFactory() (index.EmbedderFactory, error) {
	if a.newEmbedder != nil {
		return a.newEmbedder, nil
	}
	cfg := a.Config.Embedder
	switch cfg.Type {
	case "tfidf":
		a.newEmbedder = func() domain.Embedder { return tfidf.NewEmbedder() }
	case "openai", "":
		if cfg.OpenAI == nil {
			return nil, errors.New("openai embedder config missing")
		}
		client, err := openai.NewClient(openai.Config{
			BaseURL:   cfg.OpenAI.BaseURL,
			APIKeyEnv: cfg.OpenAI.APIKeyEnv,
			Model:     cfg.OpenAI.Model,
			Timeout:   time.Duration(cfg.OpenAI.TimeoutSecs) * time.Second,
			BatchSize: cfg.OpenAI.BatchSize,
		})
		if err != nil {
			return nil, errors.Wrap(err, "openai embedder init failed")
		}
		a.newEmbedder = func() domain.Embedder { return client }
	default:
		return nil, errors.Errorf("unknown embedder: %s", cfg.Type)
	}
	return a.newEmbedder, nil
}

// ChunkerFactory returns the configured chunker constructor.
func ChunkerFactory(cfg config.ChunkerConfig) (index.ChunkerFactory, error) {
	switch cfg.Type {
	case "semantic", "":
		return func(e domain.Embedder) domain.Chunker {
			return chunker.NewSemanticChunker(e, cfg.BreakpointPercentile, cfg.BufferSize)
		}, nil
	case "sentence":
		return func(domain.Embedder) domain.Chunker {
			return chunker.NewSentenceChunker(cfg.SentencesPerChunk, cfg.OverlapSentences)
		}, nil
	case "recursive":
		return func(domain.Embedder) domain.Chunker {
			return chunker.NewRecursiveChunker(cfg.ChunkSize, cfg.ChunkOverlap)
		}, nil
	default:
		return nil, errors.Errorf("unknown chunker: %s", cfg.Type)
	}
}

// StoreOpener returns the configured vector store constructor.
func StoreOpener(cfg config.VectorStoreConfig) (index.StoreOpener, error) {
	switch cfg.Type {
	case "flat", "":
		return func(key domain.IndexKey) (vectorstore.Storage, error) {
			return flat.Open(index.Dir(cfg.IndexDir, key))
		}, nil
	case "qdrant":
		if cfg.Qdrant == nil {
			return nil, errors.New("qdrant config missing")
		}
		q := *cfg.Qdrant
		return func(key domain.IndexKey) (vectorstore.Storage, error) {
			return qdrant.New(qdrant.Config{
				Addr:       q.Addr,
				APIKey:     q.APIKey,
				Collection: CollectionName(q.CollectionPrefix, key),
				Timeout:    time.Duration(q.TimeoutSecs) * time.Second,
			})
		}, nil
	default:
		return nil, errors.Errorf("unknown vector store: %s", cfg.Type)
	}
}

// CollectionName is the Qdrant collection holding key.
func CollectionName(prefix string, key domain.IndexKey) string {
	return fmt.Sprintf("%s_%d_%s", prefix, key.Year, strings.ToLower(string(key.Language)))
}

func (a *App) summarizer() (domain.Summarizer, error) {
	switch a.Config.Summarizer.Type {
	case "frequency", "":
		return summarizer.NewFrequencySummarizer(), nil
	default:
		return nil, errors.Errorf("unknown summarizer: %s", a.Config.Summarizer.Type)
	}
}

// Indexes returns the index catalog.
func (a *App) Indexes() (*index.Catalog, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.indexesLocked()
}

func (a *App) indexesLocked() (*index.Catalog, error) {
	if a.catalog != nil {
		return a.catalog, nil
	}
	newEmbedder, err := a.embedderFactory()
	if err != nil {
		return nil, err
	}
	opener, err := StoreOpener(a.Config.VectorStore)
	if err != nil {
		return nil, err
	}
	a.catalog = index.NewCatalog(a.Config.VectorStore.IndexDir, newEmbedder, opener)
	return a.catalog, nil
}

// Builder returns an index builder for the configured stack.
func (a *App) Builder() (*index.Builder, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	newEmbedder, err := a.embedderFactory()
	if err != nil {
		return nil, err
	}
	newChunker, err := ChunkerFactory(a.Config.Chunker)
	if err != nil {
		return nil, err
	}
	opener, err := StoreOpener(a.Config.VectorStore)
	if err != nil {
		return nil, err
	}
	sum, err := a.summarizer()
	if err != nil {
		return nil, err
	}
	batch := 64
	if o := a.Config.Embedder.OpenAI; o != nil && o.BatchSize > 0 {
		batch = o.BatchSize
	}
	return index.NewBuilder(index.BuilderConfig{
		Dir:                 a.Config.VectorStore.IndexDir,
		NewEmbedder:         newEmbedder,
		NewChunker:          newChunker,
		OpenStore:           opener,
		Summarizer:          sum,
		SummaryMaxSentences: a.Config.Summarizer.MaxSentences,
		BatchSize:           batch,
		Logger:              a.Logger.Named("index"),
	}), nil
}

// Checker returns the compliance checker, creating the model clients on first use.
func (a *App) Checker() (*compliance.Checker, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.checker != nil {
		return a.checker, nil
	}
	catalog, err := a.indexesLocked()
	if err != nil {
		return nil, err
	}
	v := a.Config.Vision
	reader, err := vision.NewClient(vision.Config{
		BaseURL:   v.BaseURL,
		APIKeyEnv: v.APIKeyEnv,
		Model:     v.Model,
		MaxTokens: v.MaxTokens,
	})
	if err != nil {
		return nil, errors.Wrap(err, "vision client init failed")
	}
	judge, err := llm.NewJudge(llm.Config{
		BaseURL:     a.Config.LLM.BaseURL,
		APIKeyEnv:   a.Config.LLM.APIKeyEnv,
		Model:       a.Config.LLM.Model,
		Temperature: a.Config.LLM.Temperature,
		Timeout:     time.Duration(a.Config.LLM.TimeoutSecs) * time.Second,
	})
	if err != nil {
		return nil, errors.Wrap(err, "judge init failed")
	}
	sum, err := a.summarizer()
	if err != nil {
		return nil, err
	}
	extractor := extract.NewExtractor(fitz.New(), reader, extract.Options{
		DPI:               v.DPI,
		MaxImageSide:      v.MaxImageSide,
		Concurrency:       v.Concurrency,
		RequestsPerSecond: v.RequestsPerSecond,
	}, a.Logger.Named("extract"))
	a.checker = compliance.NewChecker(a.Store, extractor, catalog, a.Retriever, judge, sum, compliance.Options{
		MinWords:            a.Config.Retrieval.MinWords,
		MinAlphaRatio:       a.Config.Retrieval.MinAlphaRatio,
		SummaryMaxSentences: a.Config.Summarizer.MaxSentences,
	}, a.Logger.Named("compliance"))
	return a.checker, nil
}

func (a *App) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	var first error
	if a.catalog != nil {
		first = a.catalog.Close()
	}
	if err := a.Store.Close(); err != nil && first == nil {
		first = err
	}
	return first
}
