// Package embedding adapts langchaingo embedders to ports.EmbeddingService.
package embedding

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/0xcro3dile/ragchat/internal/domain/entities"
)

const defaultBatchSize = 64

type Config struct {
	Provider entities.Provider
	Model    string
	BaseURL  string
	APIKey   string
	// CacheSize bounds the query embedding cache; zero disables it.
	CacheSize int
}

// Embedder embeds text through a provider and caches query vectors.
type Embedder struct {
	impl  embeddings.Embedder
	model string
	cache *lru.Cache[string, []float32]
}

// New builds the provider client described by cfg.
func New(cfg Config) (*Embedder, error) {
	impl, err := buildProviderEmbedder(cfg)
	if err != nil {
		return nil, err
	}
	return Wrap(impl, cfg.Model, cfg.CacheSize)
}

// Wrap adapts an existing langchaingo embedder.
func Wrap(impl embeddings.Embedder, model string, cacheSize int) (*Embedder, error) {
	e := &Embedder{impl: impl, model: model}
	if cacheSize > 0 {
		cache, err := lru.New[string, []float32](cacheSize)
		if err != nil {
			return nil, fmt.Errorf("creating embedding cache: %w", err)
		}
		e.cache = cache
	}
	return e, nil
}

// Embed returns the query vector for text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if e.cache != nil {
		if v, ok := e.cache.Get(text); ok {
			return clone(v), nil
		}
	}
	v, err := e.impl.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embedding query with %s: %w", e.model, err)
	}
	if e.cache != nil {
		e.cache.Add(text, clone(v))
	}
	return v, nil
}

// EmbedBatch embeds texts in provider-sized batches.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	vectors, err := e.impl.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embedding %d texts with %s: %w", len(texts), e.model, err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embedding with %s: got %d vectors for %d texts", e.model, len(vectors), len(texts))
	}
	return vectors, nil
}

func buildProviderEmbedder(cfg Config) (embeddings.Embedder, error) {
	opts := []embeddings.Option{
		embeddings.WithBatchSize(defaultBatchSize),
		embeddings.WithStripNewLines(false),
	}
	switch cfg.Provider {
	case entities.ProviderNebius, entities.ProviderOpenAI:
		openaiOpts := []openai.Option{
			openai.WithEmbeddingModel(cfg.Model),
			openai.WithToken(cfg.APIKey),
		}
		if cfg.BaseURL != "" {
			openaiOpts = append(openaiOpts, openai.WithBaseURL(cfg.BaseURL))
		}
		client, err := openai.New(openaiOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize %s embedding client: %w", cfg.Provider, err)
		}
		return embeddings.NewEmbedder(client, opts...)
	case entities.ProviderOllama:
		ollamaOpts := []ollama.Option{ollama.WithModel(cfg.Model)}
		if cfg.BaseURL != "" {
			ollamaOpts = append(ollamaOpts, ollama.WithServerURL(cfg.BaseURL))
		}
		client, err := ollama.New(ollamaOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize ollama embedding client: %w", err)
		}
		return embeddings.NewEmbedder(client, opts...)
	default:
		return nil, fmt.Errorf("embedding provider %q is not supported", cfg.Provider)
	}
}

func clone(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	return out
}
