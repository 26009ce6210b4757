package llmservice

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"pdf-chat/internal/config"
	"pdf-chat/internal/models"
)

// NewModel returns the chat model for the selected provider. The underlying
// client is built on first use so a missing credential surfaces from the
// first call rather than at startup.
func NewModel(provider string, llmConfig config.LLMConfig) (llms.Model, error) {
	switch provider {
	case models.ProviderOpenAI:
		return &lazyModel{build: func() (llms.Model, error) {
			return openai.New(
				openai.WithBaseURL(llmConfig.BaseURL),
				openai.WithToken(llmConfig.APIKey()),
				openai.WithModel(llmConfig.Model),
			)
		}}, nil
	case models.ProviderLocal:
		return &lazyModel{build: func() (llms.Model, error) {
			return ollama.New(
				ollama.WithServerURL(llmConfig.BaseURL),
				ollama.WithModel(llmConfig.Model),
			)
		}}, nil
	default:
		return nil, fmt.Errorf("unknown provider %q", provider)
	}
}

type lazyModel struct {
	build func() (llms.Model, error)
	once  sync.Once
	model llms.Model
	err   error
}

func (m *lazyModel) get() (llms.Model, error) {
	m.once.Do(func() {
		m.model, m.err = m.build()
	})
	return m.model, m.err
}

func (m *lazyModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	model, err := m.get()
	if err != nil {
		return nil, err
	}
	return model.GenerateContent(ctx, messages, options...)
}

func (m *lazyModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

// Generator calls a chat model under the retry policy and returns the first choice.
type Generator struct {
	model    llms.Model
	provider string
	retry    RetryPolicy
}

func NewGenerator(model llms.Model, provider string, retry RetryPolicy) *Generator {
	return &Generator{model: model, provider: provider, retry: retry}
}

// call llm
func (g *Generator) GenerateContent(ctx context.Context, messages []llms.MessageContent) (string, error) {
	log.Debug().Str("provider", g.provider).Int("messages", len(messages)).Msg("Generating content")
	return Retry(ctx, g.retry, g.provider, func(ctx context.Context) (string, error) {
		res, err := g.model.GenerateContent(ctx, messages)
		if err != nil {
			return "", err
		}
		if len(res.Choices) == 0 {
			return "", errors.New("no response generated")
		}
		return res.Choices[0].Content, nil
	})
}

// TextMessage builds a single-part text message.
func TextMessage(role llms.ChatMessageType, text string) llms.MessageContent {
	return llms.MessageContent{
		Role:  role,
		Parts: []llms.ContentPart{llms.TextContent{Text: text}},
	}
}
