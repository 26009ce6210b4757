package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"pdf-chat/internal/models"
)

type Config struct {
	Provider     string         `yaml:"provider"`
	LogLevel     string         `yaml:"log_level"`
	RAG          RAGConfig      `yaml:"rag"`
	EmbedLLM     LLMConfig      `yaml:"embed_llm"`
	InferenceLLM LLMConfig      `yaml:"inference_llm"`
	Retry        RetryConfig    `yaml:"retry"`
	Store        StoreConfig    `yaml:"store"`
	Database     DatabaseConfig `yaml:"database"`
	Qdrant       QdrantConfig   `yaml:"qdrant"`
	Counter      CounterConfig  `yaml:"counter"`
}

type RAGConfig struct {
	ChunkSize    int    `yaml:"chunk_size"`
	ChunkOverlap int    `yaml:"chunk_overlap"`
	Separator    string `yaml:"separator"`
	RetrievalK   int    `yaml:"retrieval_k"`
}

// LLMConfig describes one model endpoint. Key falls back to the env var named by KeyEnv.
type LLMConfig struct {
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
	Key     string `yaml:"key"`
	KeyEnv  string `yaml:"key_env"`
}

type RetryConfig struct {
	MaxRetries  int `yaml:"max_retries"`
	BaseDelayMS int `yaml:"base_delay_ms"`
}

type StoreConfig struct {
	Backend       string `yaml:"backend"`
	Path          string `yaml:"path"`
	ExportPath    string `yaml:"export_path"`
	EncryptionKey string `yaml:"encryption_key"`
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	Driver   string `yaml:"driver"`
	Debug    bool   `yaml:"debug"`
}

type QdrantConfig struct {
	Host   string `yaml:"host"`
	Port   int    `yaml:"port"`
	APIKey string `yaml:"api_key"`
	UseTLS bool   `yaml:"use_tls"`
}

type CounterConfig struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
}

// explicitRAG records which rag keys a file sets, zero values included.
type explicitRAG struct {
	RAG struct {
		ChunkOverlap *int    `yaml:"chunk_overlap"`
		Separator    *string `yaml:"separator"`
	} `yaml:"rag"`
}

const (
	BackendMemory   = "memory"
	BackendChromem  = "chromem"
	BackendPgvector = "pgvector"
	BackendQdrant   = "qdrant"
)

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	var set explicitRAG
	if err := yaml.Unmarshal(data, &set); err != nil {
		return nil, err
	}
	ApplyDefaults(&cfg)
	// explicit zero values in the file override the defaults
	if set.RAG.ChunkOverlap != nil {
		cfg.RAG.ChunkOverlap = *set.RAG.ChunkOverlap
	}
	if set.RAG.Separator != nil {
		cfg.RAG.Separator = *set.RAG.Separator
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

func ApplyDefaults(cfg *Config) {
	if cfg.Provider == "" {
		cfg.Provider = models.ProviderOpenAI
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.RAG.ChunkSize == 0 {
		cfg.RAG.ChunkSize = models.DefaultChunkSize
	}
	if cfg.RAG.ChunkOverlap == 0 {
		cfg.RAG.ChunkOverlap = models.DefaultChunkOverlap
		if cfg.RAG.ChunkOverlap >= cfg.RAG.ChunkSize {
			cfg.RAG.ChunkOverlap = cfg.RAG.ChunkSize / 5
		}
	}
	if cfg.RAG.Separator == "" {
		cfg.RAG.Separator = models.DefaultSeparator
	}
	if cfg.RAG.RetrievalK == 0 {
		cfg.RAG.RetrievalK = models.DefaultRetrievalK
	}
	if cfg.Retry.MaxRetries == 0 {
		cfg.Retry.MaxRetries = 3
	}
	if cfg.Retry.BaseDelayMS == 0 {
		cfg.Retry.BaseDelayMS = 500
	}
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = BackendChromem
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "pgdriver"
	}
	if cfg.Qdrant.Host == "" {
		cfg.Qdrant.Host = "localhost"
	}
	if cfg.Qdrant.Port == 0 {
		cfg.Qdrant.Port = 6334
	}
	if cfg.Counter.Backend == "" {
		cfg.Counter.Backend = "file"
	}
	if cfg.Counter.Path == "" {
		cfg.Counter.Path = "count.txt"
	}

	switch cfg.Provider {
	case models.ProviderOpenAI:
		applyLLMDefaults(&cfg.EmbedLLM, "https://api.openai.com/v1", "text-embedding-3-small", "OPENAI_API_KEY")
		applyLLMDefaults(&cfg.InferenceLLM, "https://api.openai.com/v1", "gpt-4o-mini", "OPENAI_API_KEY")
	case models.ProviderLocal:
		applyLLMDefaults(&cfg.EmbedLLM, "http://localhost:11434", "nomic-embed-text", "")
		applyLLMDefaults(&cfg.InferenceLLM, "http://localhost:11434", "llama3.2", "")
	}
}

func applyLLMDefaults(c *LLMConfig, baseURL, model, keyEnv string) {
	if c.BaseURL == "" {
		c.BaseURL = baseURL
	}
	if c.Model == "" {
		c.Model = model
	}
	if c.KeyEnv == "" {
		c.KeyEnv = keyEnv
	}
}

func (c *Config) Validate() error {
	switch c.Provider {
	case models.ProviderOpenAI, models.ProviderLocal:
	default:
		return fmt.Errorf("unknown provider %q (want %s or %s)", c.Provider, models.ProviderOpenAI, models.ProviderLocal)
	}
	if c.RAG.ChunkSize <= 0 {
		return fmt.Errorf("chunk_size must be positive, got %d", c.RAG.ChunkSize)
	}
	if c.RAG.ChunkOverlap < 0 || c.RAG.ChunkOverlap >= c.RAG.ChunkSize {
		return fmt.Errorf("chunk_overlap must be in [0, %d), got %d", c.RAG.ChunkSize, c.RAG.ChunkOverlap)
	}
	if c.RAG.RetrievalK < 0 {
		return fmt.Errorf("retrieval_k must not be negative, got %d", c.RAG.RetrievalK)
	}
	switch c.Store.Backend {
	case BackendMemory, BackendChromem, BackendQdrant:
	case BackendPgvector:
		if c.Database.URL == "" {
			return fmt.Errorf("database.url is required for the %s backend", BackendPgvector)
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	return nil
}

// APIKey resolves the credential, preferring the inline key.
func (c LLMConfig) APIKey() string {
	if c.Key != "" {
		return strings.TrimPrefix(c.Key, "Bearer ")
	}
	if c.KeyEnv != "" {
		return os.Getenv(c.KeyEnv)
	}
	return ""
}
