package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"

	"pdf-chat/internal/config"
	"pdf-chat/internal/helper"
	"pdf-chat/internal/index"
	"pdf-chat/internal/llmservice"
	"pdf-chat/internal/models"
	"pdf-chat/internal/parser"
)

// Generator produces one completion for a conversation.
type Generator interface {
	GenerateContent(ctx context.Context, messages []llms.MessageContent) (string, error)
}

// Answer is the outcome of one question.
type Answer struct {
	Text string
	// Query is the standalone question used for retrieval.
	Query   string
	Sources []models.SearchResult
	History []models.Turn
}

// Session is one conversation over the most recently ingested documents.
// Ingest and Ask are serialized.
type Session struct {
	ID string

	mu       sync.Mutex
	cfg      config.RAGConfig
	embedder embeddings.Embedder
	gen      Generator
	open     index.BackendFactory
	extract  func([]models.Document) (string, error)
	store    *index.Store
	history  []models.Turn
}

func NewSession(cfg config.RAGConfig, embedder embeddings.Embedder, gen Generator, open index.BackendFactory) (*Session, error) {
	id, err := helper.GenerateUUID()
	if err != nil {
		return nil, err
	}
	return &Session{
		ID:       id,
		cfg:      cfg,
		embedder: embedder,
		gen:      gen,
		open:     open,
		extract:  parser.ExtractText,
	}, nil
}

// Ingest replaces the searchable store with one built from docs. On failure
// the previous store stays in place. History is kept.
func (s *Session) Ingest(ctx context.Context, docs []models.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	text, err := s.extract(docs)
	if err != nil {
		return err
	}
	chunks, err := parser.Chunks(text, s.cfg)
	if err != nil {
		return err
	}
	store, err := index.Build(ctx, chunks, s.embedder, s.open)
	if err != nil {
		return err
	}

	old := s.store
	s.store = store
	if old != nil {
		if err := old.Close(ctx); err != nil {
			log.Warn().Err(err).Str("batch", old.BatchID).Msg("Failed to drop previous vector store")
		}
	}
	log.Info().Str("session", s.ID).Int("documents", len(docs)).Int("chunks", len(chunks)).Msg("Documents processed")
	return nil
}

// Ask answers question from the ingested documents and the conversation so
// far. Once the session is ready the user turn is recorded even if answering fails.
func (s *Session) Ask(ctx context.Context, question string) (*Answer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.store == nil {
		return nil, models.ErrNotReady
	}
	prior := s.history
	s.history = append(s.history, models.Turn{Role: models.RoleUser, Content: question})

	query, err := s.condense(ctx, prior, question)
	if err != nil {
		return nil, &models.GenerationError{Stage: models.StageCondense, Err: err}
	}

	sources, err := s.store.Search(ctx, query, s.cfg.RetrievalK)
	if err != nil {
		var embErr *models.EmbeddingError
		if errors.As(err, &embErr) {
			return nil, embErr
		}
		return nil, fmt.Errorf("failed to retrieve context: %w", err)
	}

	text, err := s.gen.GenerateContent(ctx, answerMessages(sources, prior, question))
	if err != nil {
		return nil, &models.GenerationError{Stage: models.StageAnswer, Err: err}
	}
	s.history = append(s.history, models.Turn{Role: models.RoleAssistant, Content: text})

	log.Debug().Str("session", s.ID).Str("query", query).Int("sources", len(sources)).Msg("Question answered")
	return &Answer{
		Text:    text,
		Query:   query,
		Sources: sources,
		History: s.copyHistory(),
	}, nil
}

// condense rewrites a follow-up into a standalone question. The first
// question of a conversation is used as is.
func (s *Session) condense(ctx context.Context, prior []models.Turn, question string) (string, error) {
	if len(prior) == 0 {
		return question, nil
	}
	prompt := fmt.Sprintf(models.CondenseQuestionTemplate, formatHistory(prior), question)
	query, err := s.gen.GenerateContent(ctx, []llms.MessageContent{
		llmservice.TextMessage(llms.ChatMessageTypeHuman, prompt),
	})
	if err != nil {
		return "", err
	}
	if query = strings.TrimSpace(query); query == "" {
		return question, nil
	}
	return query, nil
}

func answerMessages(sources []models.SearchResult, prior []models.Turn, question string) []llms.MessageContent {
	parts := make([]string, len(sources))
	for i, r := range sources {
		parts[i] = r.Content
	}
	messages := make([]llms.MessageContent, 0, len(prior)+2)
	messages = append(messages, llmservice.TextMessage(llms.ChatMessageTypeSystem,
		fmt.Sprintf(models.AnswerSystemTemplate, strings.Join(parts, models.ContextSeparator))))
	for _, turn := range prior {
		role := llms.ChatMessageTypeHuman
		if turn.Role == models.RoleAssistant {
			role = llms.ChatMessageTypeAI
		}
		messages = append(messages, llmservice.TextMessage(role, turn.Content))
	}
	return append(messages, llmservice.TextMessage(llms.ChatMessageTypeHuman, question))
}

func formatHistory(turns []models.Turn) string {
	var sb strings.Builder
	for _, turn := range turns {
		speaker := "Human"
		if turn.Role == models.RoleAssistant {
			speaker = "Assistant"
		}
		fmt.Fprintf(&sb, "%s: %s\n", speaker, turn.Content)
	}
	return sb.String()
}

// History returns a copy of the conversation so far.
func (s *Session) History() []models.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyHistory()
}

func (s *Session) copyHistory() []models.Turn {
	out := make([]models.Turn, len(s.history))
	copy(out, s.history)
	return out
}

func (s *Session) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store != nil
}

// Close drops the current store. The session can be ingested into again.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.store == nil {
		return nil
	}
	err := s.store.Close(ctx)
	s.store = nil
	return err
}
