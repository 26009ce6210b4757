package index

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"

	"pdf-chat/internal/embedding"
	"pdf-chat/internal/helper"
	"pdf-chat/internal/models"
)

// ErrDimensionMismatch is returned when a vector's length differs from the
// dimension the backend was loaded with.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// Backend holds the vectors of one ingestion batch.
type Backend interface {
	// Insert stores all records; it is called once per backend.
	Insert(ctx context.Context, records []models.ChunkEmbedding) error
	// Query returns up to k records ordered by distance, then by chunk index.
	Query(ctx context.Context, vector []float32, k int) ([]models.SearchResult, error)
	// Drop releases everything the backend holds.
	Drop(ctx context.Context) error
}

// BackendFactory opens an empty backend for the batch with the given id.
type BackendFactory func(ctx context.Context, batchID string) (Backend, error)

// Store is the searchable result of one ingestion.
type Store struct {
	BatchID  string
	backend  Backend
	embedder embeddings.Embedder
	size     int
}

// Build embeds every chunk and loads them into a fresh backend. On failure
// the backend is dropped and no store is returned.
func Build(ctx context.Context, chunks []models.Chunk, embedder embeddings.Embedder, open BackendFactory) (*Store, error) {
	if len(chunks) == 0 {
		return nil, models.ErrEmptyBatch
	}

	records, err := embedding.GenerateEmbedding(ctx, embedder, chunks)
	if err != nil {
		return nil, &models.EmbeddingError{Err: err}
	}
	if len(records) != len(chunks) {
		return nil, &models.EmbeddingError{Err: fmt.Errorf("got %d vectors for %d chunks", len(records), len(chunks))}
	}

	batchID := helper.ShortID()
	backend, err := open(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to open vector store: %w", err)
	}
	if err := backend.Insert(ctx, records); err != nil {
		if dropErr := backend.Drop(ctx); dropErr != nil {
			log.Warn().Err(dropErr).Str("batch", batchID).Msg("Failed to drop partial vector store")
		}
		return nil, fmt.Errorf("failed to store vectors: %w", err)
	}

	log.Info().Str("batch", batchID).Int("chunks", len(records)).Msg("Built vector store")
	return &Store{BatchID: batchID, backend: backend, embedder: embedder, size: len(records)}, nil
}

// Len reports the number of stored chunks.
func (s *Store) Len() int { return s.size }

// Search embeds the query and returns the k nearest chunks. k <= 0 means models.DefaultRetrievalK.
func (s *Store) Search(ctx context.Context, query string, k int) ([]models.SearchResult, error) {
	if k <= 0 {
		k = models.DefaultRetrievalK
	}
	if k > s.size {
		k = s.size
	}
	vec, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, &models.EmbeddingError{Err: fmt.Errorf("failed to embed query: %w", err)}
	}
	results, err := s.backend.Query(ctx, vec, k)
	if err != nil {
		return nil, fmt.Errorf("failed to query vector store: %w", err)
	}
	log.Debug().Str("batch", s.BatchID).Int("k", k).Int("results", len(results)).Msg("Searched vector store")
	return results, nil
}

// Close drops the backend and everything stored in it. The store must not
// be searched afterwards.
func (s *Store) Close(ctx context.Context) error {
	return s.backend.Drop(ctx)
}

// Rank orders results by distance, earlier chunks first on ties, and keeps the first k.
func Rank(results []models.SearchResult, k int) []models.SearchResult {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Distance != results[j].Distance {
			return results[i].Distance < results[j].Distance
		}
		return results[i].Index < results[j].Index
	})
	if k >= 0 && k < len(results) {
		results = results[:k]
	}
	return results
}
