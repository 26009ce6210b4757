package index

import (
	"context"
	"fmt"
	"math"
	"sync"

	"pdf-chat/internal/models"
)

// MemoryBackend is a brute-force cosine index held in process.
type MemoryBackend struct {
	mu      sync.RWMutex
	records []models.ChunkEmbedding
	mags    []float64
	dim     int
}

// NewMemoryBackend is a BackendFactory for in-process stores.
func NewMemoryBackend(ctx context.Context, batchID string) (Backend, error) {
	return &MemoryBackend{}, nil
}

func (m *MemoryBackend) Insert(ctx context.Context, records []models.ChunkEmbedding) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range records {
		if m.dim == 0 {
			m.dim = len(r.Embedding)
		}
		if len(r.Embedding) != m.dim {
			return fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(r.Embedding), m.dim)
		}
	}
	for _, r := range records {
		m.records = append(m.records, r)
		m.mags = append(m.mags, magnitude(r.Embedding))
	}
	return nil
}

func (m *MemoryBackend) Query(ctx context.Context, vector []float32, k int) ([]models.SearchResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.records) == 0 {
		return nil, nil
	}
	if len(vector) != m.dim {
		return nil, fmt.Errorf("%w: query %d vs index %d", ErrDimensionMismatch, len(vector), m.dim)
	}
	qm := magnitude(vector)
	results := make([]models.SearchResult, len(m.records))
	for i, r := range m.records {
		results[i] = models.SearchResult{Chunk: r.Chunk, Distance: cosineDistance(vector, r.Embedding, qm, m.mags[i])}
	}
	return Rank(results, k), nil
}

func (m *MemoryBackend) Drop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records, m.mags, m.dim = nil, nil, 0
	return nil
}

// cosineDistance is 1 - cosine similarity; a zero vector counts as orthogonal.
func cosineDistance(a, b []float32, ma, mb float64) float64 {
	if ma == 0 || mb == 0 {
		return 1
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return 1 - dot/(ma*mb)
}

func magnitude(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}
