package embedding

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"pdf-chat/internal/config"
	"pdf-chat/internal/llmservice"
	"pdf-chat/internal/models"
)

// NewEmbedder creates the embedder for the selected provider. The client is
// built on first use and every call goes through the retry policy.
func NewEmbedder(provider string, llmConfig config.LLMConfig, retry llmservice.RetryPolicy) (embeddings.Embedder, error) {
	var build func() (embeddings.Embedder, error)
	switch provider {
	case models.ProviderOpenAI:
		build = func() (embeddings.Embedder, error) { return newOpenAIEmbedder(llmConfig) }
	case models.ProviderLocal:
		build = func() (embeddings.Embedder, error) { return newOllamaEmbedder(llmConfig) }
	default:
		return nil, fmt.Errorf("unknown provider %q", provider)
	}
	log.Debug().Interface("config", map[string]string{
		"provider":        provider,
		"base_url":        llmConfig.BaseURL,
		"embedding_model": llmConfig.Model,
	}).Msg("Configured embedder")

	return NewRetryingEmbedder(&lazyEmbedder{build: build}, provider, retry), nil
}

func newOpenAIEmbedder(llmConfig config.LLMConfig) (embeddings.Embedder, error) {
	llm, err := openai.New(
		openai.WithBaseURL(llmConfig.BaseURL),
		openai.WithToken(llmConfig.APIKey()),
		openai.WithEmbeddingModel(llmConfig.Model),
	)
	if err != nil {
		return nil, err
	}
	return embeddings.NewEmbedder(llm)
}

// new ollama embedder
func newOllamaEmbedder(llmConfig config.LLMConfig) (embeddings.Embedder, error) {
	llm, err := ollama.New(
		ollama.WithServerURL(llmConfig.BaseURL),
		ollama.WithModel(llmConfig.Model),
	)
	if err != nil {
		return nil, err
	}
	return embeddings.NewEmbedder(llm)
}

type lazyEmbedder struct {
	build    func() (embeddings.Embedder, error)
	once     sync.Once
	embedder embeddings.Embedder
	err      error
}

func (e *lazyEmbedder) get() (embeddings.Embedder, error) {
	e.once.Do(func() {
		e.embedder, e.err = e.build()
	})
	return e.embedder, e.err
}

func (e *lazyEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	inner, err := e.get()
	if err != nil {
		return nil, err
	}
	return inner.EmbedDocuments(ctx, texts)
}

func (e *lazyEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	inner, err := e.get()
	if err != nil {
		return nil, err
	}
	return inner.EmbedQuery(ctx, text)
}

// RetryingEmbedder embeds every text on its own, retrying transient failures.
type RetryingEmbedder struct {
	inner    embeddings.Embedder
	provider string
	retry    llmservice.RetryPolicy
}

func NewRetryingEmbedder(inner embeddings.Embedder, provider string, retry llmservice.RetryPolicy) *RetryingEmbedder {
	return &RetryingEmbedder{inner: inner, provider: provider, retry: retry}
}

func (e *RetryingEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return llmservice.Retry(ctx, e.retry, e.provider, func(ctx context.Context) ([]float32, error) {
		return e.inner.EmbedQuery(ctx, text)
	})
}

func (e *RetryingEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := e.EmbedQuery(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

// GenerateEmbedding embeds every chunk and checks that all vectors share one dimension.
func GenerateEmbedding(ctx context.Context, embedder embeddings.Embedder, chunks []models.Chunk) ([]models.ChunkEmbedding, error) {
	if len(chunks) == 0 {
		log.Info().Msg("No chunks generated from content")
		return nil, nil
	}

	chunkEmbeddings := make([]models.ChunkEmbedding, 0, len(chunks))
	dim := 0
	for _, chunk := range chunks {
		vec, err := embedder.EmbedQuery(ctx, chunk.Content)
		if err != nil {
			return nil, fmt.Errorf("failed to embed chunk %d: %w", chunk.Index, err)
		}
		if len(vec) == 0 {
			return nil, fmt.Errorf("failed to embed chunk %d: %w", chunk.Index, errEmptyVector)
		}
		if dim == 0 {
			dim = len(vec)
		} else if len(vec) != dim {
			return nil, fmt.Errorf("chunk %d embedded with dimension %d, want %d", chunk.Index, len(vec), dim)
		}
		chunkEmbeddings = append(chunkEmbeddings, models.ChunkEmbedding{Chunk: chunk, Embedding: vec})
	}
	log.Debug().Int("chunks", len(chunkEmbeddings)).Int("dimension", dim).Msg("Generated embeddings")
	return chunkEmbeddings, nil
}

var errEmptyVector = errors.New("provider returned an empty vector")
