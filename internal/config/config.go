package config

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type OpenAIEmbedderConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
	BatchSize   int    `yaml:"batch_size"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type   string                `yaml:"type"`
	OpenAI *OpenAIEmbedderConfig `yaml:"openai,omitempty"`
}

// ChunkerConfig configures how reference documents are split into chunks.
type ChunkerConfig struct {
	Type                 string  `yaml:"type"`
	BreakpointPercentile float64 `yaml:"breakpoint_percentile"`
	BufferSize           int     `yaml:"buffer_size"`
	SentencesPerChunk    int     `yaml:"sentences_per_chunk"`
	OverlapSentences     int     `yaml:"overlap_sentences"`
	ChunkSize            int     `yaml:"chunk_size"`
	ChunkOverlap         int     `yaml:"chunk_overlap"`
}

// VectorStoreConfig selects and configures the vector store implementation.
type VectorStoreConfig struct {
	Type     string        `yaml:"type"`
	IndexDir string        `yaml:"index_dir"`
	Qdrant   *QdrantConfig `yaml:"qdrant,omitempty"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	Addr             string `yaml:"addr"`
	APIKey           string `yaml:"api_key"`
	CollectionPrefix string `yaml:"collection_prefix"`
	TimeoutSecs      int    `yaml:"timeout_secs"`
}

// LLMConfig configures the chat model that judges compliance.
type LLMConfig struct {
	BaseURL     string  `yaml:"base_url"`
	APIKeyEnv   string  `yaml:"api_key_env"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	TimeoutSecs int     `yaml:"timeout_secs"`
}

// VisionConfig configures page rendering and vision-model text extraction.
type VisionConfig struct {
	BaseURL           string  `yaml:"base_url"`
	APIKeyEnv         string  `yaml:"api_key_env"`
	Model             string  `yaml:"model"`
	DPI               float64 `yaml:"dpi"`
	MaxTokens         int     `yaml:"max_tokens"`
	Concurrency       int     `yaml:"concurrency"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	MaxImageSide      int     `yaml:"max_image_side"`
}

// RetrievalConfig configures similarity search and chunk filtering.
type RetrievalConfig struct {
	TopK          int     `yaml:"top_k"`
	MinWords      int     `yaml:"min_words"`
	MinAlphaRatio float64 `yaml:"min_alpha_ratio"`
	MaxQueryChars int     `yaml:"max_query_chars"`
}

// SummarizerConfig selects and configures the summarizer.
type SummarizerConfig struct {
	Type         string `yaml:"type"`
	MaxSentences int    `yaml:"max_sentences"`
}

// StoreConfig locates the document database.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// ComplianceConfig lists the years and languages pointers may target.
type ComplianceConfig struct {
	Years     []int    `yaml:"years"`
	Languages []string `yaml:"languages"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Embedder    EmbedderConfig    `yaml:"embedder"`
	Chunker     ChunkerConfig     `yaml:"chunker"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	LLM         LLMConfig         `yaml:"llm"`
	Vision      VisionConfig      `yaml:"vision"`
	Retrieval   RetrievalConfig   `yaml:"retrieval"`
	Summarizer  SummarizerConfig  `yaml:"summarizer"`
	Store       StoreConfig       `yaml:"store"`
	Server      ServerConfig      `yaml:"server"`
	Compliance  ComplianceConfig  `yaml:"compliance"`
	Log         LogConfig         `yaml:"log"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, errors.Wrapf(err, "read config %s", path)
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrapf(err, "parse config %s", path)
	}
	applyConfigDefaults(&cfg)
	return &cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/compliance/config.yaml.
// If neither exists, it writes defaults to ~/.config/compliance/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := DefaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := Default()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, "create config dir")
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.Wrap(err, "marshal config")
	}
	return errors.Wrap(os.WriteFile(path, data, 0o644), "write config")
}

// DefaultUserConfigPath returns ~/.config/compliance/config.yaml.
func DefaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "resolve home dir")
	}
	return filepath.Join(home, ".config", "compliance", "config.yaml"), nil
}

// Default returns the built-in configuration.
func Default() *AppConfig {
	cfg := &AppConfig{
		Embedder:    EmbedderConfig{Type: "openai", OpenAI: &OpenAIEmbedderConfig{}},
		Chunker:     ChunkerConfig{Type: "semantic"},
		VectorStore: VectorStoreConfig{Type: "flat"},
		Summarizer:  SummarizerConfig{Type: "frequency"},
	}
	applyConfigDefaults(cfg)
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = "openai"
	}
	if cfg.Embedder.Type == "openai" {
		if cfg.Embedder.OpenAI == nil {
			cfg.Embedder.OpenAI = &OpenAIEmbedderConfig{}
		}
		o := cfg.Embedder.OpenAI
		if o.BaseURL == "" {
			o.BaseURL = "https://api.openai.com/v1"
		}
		if o.APIKeyEnv == "" {
			o.APIKeyEnv = "OPENAI_API_KEY"
		}
		if o.Model == "" {
			o.Model = "text-embedding-3-large"
		}
		if o.TimeoutSecs == 0 {
			o.TimeoutSecs = 30
		}
		if o.BatchSize == 0 {
			o.BatchSize = 32
		}
	}

	if cfg.Chunker.Type == "" {
		cfg.Chunker.Type = "semantic"
	}
	if cfg.Chunker.BreakpointPercentile == 0 {
		cfg.Chunker.BreakpointPercentile = 95
	}
	if cfg.Chunker.BufferSize == 0 {
		cfg.Chunker.BufferSize = 1
	}
	if cfg.Chunker.SentencesPerChunk == 0 {
		cfg.Chunker.SentencesPerChunk = 5
	}
	if cfg.Chunker.ChunkSize == 0 {
		cfg.Chunker.ChunkSize = 1000
	}
	if cfg.Chunker.ChunkOverlap == 0 {
		cfg.Chunker.ChunkOverlap = 200
	}

	if cfg.VectorStore.Type == "" {
		cfg.VectorStore.Type = "flat"
	}
	if cfg.VectorStore.IndexDir == "" {
		cfg.VectorStore.IndexDir = "indexes"
	}
	if cfg.VectorStore.Type == "qdrant" {
		if cfg.VectorStore.Qdrant == nil {
			cfg.VectorStore.Qdrant = &QdrantConfig{}
		}
		q := cfg.VectorStore.Qdrant
		if q.Addr == "" {
			q.Addr = "localhost:6334"
		}
		if q.CollectionPrefix == "" {
			q.CollectionPrefix = "compliance"
		}
		if q.TimeoutSecs == 0 {
			q.TimeoutSecs = 15
		}
	}

	if cfg.LLM.BaseURL == "" {
		cfg.LLM.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.LLM.APIKeyEnv == "" {
		cfg.LLM.APIKeyEnv = "OPENAI_API_KEY"
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "gpt-4o"
	}
	if cfg.LLM.TimeoutSecs == 0 {
		cfg.LLM.TimeoutSecs = 120
	}

	if cfg.Vision.BaseURL == "" {
		cfg.Vision.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Vision.APIKeyEnv == "" {
		cfg.Vision.APIKeyEnv = "OPENAI_API_KEY"
	}
	if cfg.Vision.Model == "" {
		cfg.Vision.Model = "gpt-4o-mini"
	}
	if cfg.Vision.DPI == 0 {
		cfg.Vision.DPI = 300
	}
	if cfg.Vision.MaxTokens == 0 {
		cfg.Vision.MaxTokens = 1000
	}
	if cfg.Vision.Concurrency == 0 {
		cfg.Vision.Concurrency = 4
	}
	if cfg.Vision.RequestsPerSecond == 0 {
		cfg.Vision.RequestsPerSecond = 2
	}
	if cfg.Vision.MaxImageSide == 0 {
		cfg.Vision.MaxImageSide = 2048
	}

	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 5
	}
	if cfg.Retrieval.MinWords == 0 {
		cfg.Retrieval.MinWords = 5
	}
	if cfg.Retrieval.MinAlphaRatio == 0 {
		cfg.Retrieval.MinAlphaRatio = 0.5
	}
	if cfg.Retrieval.MaxQueryChars == 0 {
		cfg.Retrieval.MaxQueryChars = 24000
	}

	if cfg.Summarizer.Type == "" {
		cfg.Summarizer.Type = "frequency"
	}
	if cfg.Summarizer.MaxSentences == 0 {
		cfg.Summarizer.MaxSentences = 5
	}

	if cfg.Store.Path == "" {
		cfg.Store.Path = "compliance.db"
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if len(cfg.Compliance.Years) == 0 {
		cfg.Compliance.Years = []int{2024}
	}
	if len(cfg.Compliance.Languages) == 0 {
		cfg.Compliance.Languages = []string{"English", "Arabic"}
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
}
