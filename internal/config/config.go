// Package config builds the single configuration value shared by every
// component. Values are layered as defaults, then an optional YAML file, then
// the process environment (after a .env file has been applied to it).
package config

import (
	"time"

	"github.com/0xcro3dile/ragchat/internal/domain/entities"
)

const (
	NebiusBaseURL = "https://api.studio.nebius.com/v1/"
	OllamaBaseURL = "http://localhost:11434"
)

// Vector index backends.
const (
	IndexBackendSQLite = "sqlite"
	// IndexBackendMemory keeps entries in process memory; they are lost on exit.
	IndexBackendMemory = "memory"
)

type Config struct {
	Provider  entities.Provider `koanf:"provider"  validate:"required,oneof=nebius openai ollama"`
	APIKey    string            `koanf:"api_key"   validate:"required_unless=Provider ollama"`
	Server    ServerConfig      `koanf:"server"`
	Storage   StorageConfig     `koanf:"storage"`
	Chat      ChatConfig        `koanf:"chat"`
	Embedding EmbeddingConfig   `koanf:"embedding"`
	Chunking  ChunkingConfig    `koanf:"chunking"`
	Log       LogConfig         `koanf:"log"`
}

type ServerConfig struct {
	Addr            string        `koanf:"addr"             validate:"required"`
	CORSOrigins     []string      `koanf:"cors_origins"`
	ReadTimeout     time.Duration `koanf:"read_timeout"     validate:"gte=0"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gte=0"`
}

type StorageConfig struct {
	DocsDir              string `koanf:"docs_dir"                validate:"required"`
	IndexBackend         string `koanf:"index_backend"           validate:"oneof=sqlite memory"`
	IndexDir             string `koanf:"index_dir"               validate:"required"`
	MappingFile          string `koanf:"mapping_file"            validate:"required"`
	PruneMappingOnDelete bool   `koanf:"prune_mapping_on_delete"`
	Watch                bool   `koanf:"watch"`
}

type ChatConfig struct {
	Model   string `koanf:"model"`
	BaseURL string `koanf:"base_url"`
	// MaxContextTokens overrides the provider's context budget when positive.
	MaxContextTokens int    `koanf:"max_context_tokens" validate:"gte=0"`
	SystemPrompt     string `koanf:"system_prompt"`
	TopK             int    `koanf:"top_k"              validate:"gte=1"`
}

type EmbeddingConfig struct {
	// Provider defaults to the chat provider.
	Provider  entities.Provider `koanf:"provider"   validate:"omitempty,oneof=nebius openai ollama"`
	Model     string            `koanf:"model"`
	BaseURL   string            `koanf:"base_url"`
	CacheSize int               `koanf:"cache_size" validate:"gte=0"`
}

type ChunkingConfig struct {
	Size    int `koanf:"size"    validate:"gte=1"`
	Overlap int `koanf:"overlap" validate:"gte=0,ltfield=Size"`
}

type LogConfig struct {
	Level string `koanf:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `koanf:"json"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		Provider: entities.ProviderNebius,
		Server: ServerConfig{
			Addr:            ":8000",
			CORSOrigins:     []string{"*"},
			ReadTimeout:     30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Storage: StorageConfig{
			DocsDir:      "base_docs",
			IndexBackend: IndexBackendSQLite,
			IndexDir:     "vectorstore",
			MappingFile:  "ids.json",
		},
		Chat: ChatConfig{
			TopK: 3,
		},
		Embedding: EmbeddingConfig{
			CacheSize: 256,
		},
		Chunking: ChunkingConfig{
			Size:    1000,
			Overlap: 200,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// applyProviderDefaults fills model names and endpoints left empty.
func (c *Config) applyProviderDefaults() {
	if c.Embedding.Provider == "" {
		c.Embedding.Provider = c.Provider
	}
	if c.Chat.Model == "" {
		c.Chat.Model = defaultChatModel(c.Provider)
	}
	if c.Chat.BaseURL == "" {
		c.Chat.BaseURL = defaultBaseURL(c.Provider)
	}
	if c.Embedding.Model == "" {
		c.Embedding.Model = defaultEmbeddingModel(c.Embedding.Provider)
	}
	if c.Embedding.BaseURL == "" {
		c.Embedding.BaseURL = defaultBaseURL(c.Embedding.Provider)
	}
}

func defaultChatModel(p entities.Provider) string {
	switch p {
	case entities.ProviderNebius:
		return "Qwen/Qwen3-235B-A22B"
	case entities.ProviderOllama:
		return "llama3.2"
	default:
		return "gpt-4o-mini"
	}
}

func defaultEmbeddingModel(p entities.Provider) string {
	switch p {
	case entities.ProviderNebius:
		return "Qwen/Qwen3-Embedding-8B"
	case entities.ProviderOllama:
		return "nomic-embed-text"
	default:
		return "text-embedding-3-small"
	}
}

func defaultBaseURL(p entities.Provider) string {
	switch p {
	case entities.ProviderNebius:
		return NebiusBaseURL
	case entities.ProviderOllama:
		return OllamaBaseURL
	default:
		return ""
	}
}
