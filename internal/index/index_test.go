package index

import (
	"context"
	"errors"
	"strings"
	"testing"

	"pdf-chat/internal/models"
	"pdf-chat/internal/parser"
)

// letterEmbedder counts occurrences of each alphabet rune.
type letterEmbedder struct {
	alphabet string
	failOn   string
	calls    int
}

func (e *letterEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	e.calls++
	if e.failOn != "" && text == e.failOn {
		return nil, errors.New("API returned unexpected status code: 400: input too long")
	}
	vec := make([]float32, len(e.alphabet))
	for _, r := range text {
		if i := strings.IndexRune(e.alphabet, r); i >= 0 {
			vec[i]++
		}
	}
	return vec, nil
}

func (e *letterEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := e.EmbedQuery(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func chunksOf(texts ...string) []models.Chunk {
	out := make([]models.Chunk, len(texts))
	for i, t := range texts {
		out[i] = models.Chunk{Index: i, Content: t}
	}
	return out
}

type recordingBackend struct {
	MemoryBackend
	insertErr error
	dropped   bool
}

func (b *recordingBackend) Insert(ctx context.Context, records []models.ChunkEmbedding) error {
	if b.insertErr != nil {
		return b.insertErr
	}
	return b.MemoryBackend.Insert(ctx, records)
}

func (b *recordingBackend) Drop(ctx context.Context) error {
	b.dropped = true
	return b.MemoryBackend.Drop(ctx)
}

func TestBuildAndSearch_Scenario(t *testing.T) {
	ctx := context.Background()
	texts, err := parser.SplitText("AAAA\nBBBB\nCCCC\nDDDD", 8, 2, "\n")
	if err != nil {
		t.Fatalf("SplitText failed: %v", err)
	}
	emb := &letterEmbedder{alphabet: "ABCD\n"}
	store, err := Build(ctx, chunksOf(texts...), emb, NewMemoryBackend)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if store.Len() != len(texts) {
		t.Fatalf("store holds %d chunks, want %d", store.Len(), len(texts))
	}
	if emb.calls != len(texts) {
		t.Errorf("embedder called %d times for %d chunks", emb.calls, len(texts))
	}

	results, err := store.Search(ctx, texts[1], 4)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != len(texts) {
		t.Fatalf("Search returned %d results, want %d", len(results), len(texts))
	}
	if results[0].Index != 1 || results[0].Content != texts[1] {
		t.Errorf("first result = %+v, want chunk 1 %q", results[0].Chunk, texts[1])
	}
	for i := 1; i < len(results); i++ {
		if results[i].Distance < results[i-1].Distance {
			t.Errorf("results not sorted by distance: %v before %v", results[i-1].Distance, results[i].Distance)
		}
	}
}

func TestSearch_KBounds(t *testing.T) {
	ctx := context.Background()
	store, err := Build(ctx, chunksOf("ab", "bc", "cd"), &letterEmbedder{alphabet: "abcd"}, NewMemoryBackend)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	testCases := []struct {
		name string
		k    int
		want int
	}{
		{"Fewer", 2, 2},
		{"MoreThanStored", 10, 3},
		{"Default", 0, 3},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			results, err := store.Search(ctx, "ab", tc.k)
			if err != nil {
				t.Fatalf("Search failed: %v", err)
			}
			if len(results) != tc.want {
				t.Errorf("Search(k=%d) returned %d results, want %d", tc.k, len(results), tc.want)
			}
		})
	}
}

func TestSearch_TiesKeepInsertionOrder(t *testing.T) {
	ctx := context.Background()
	store, err := Build(ctx, chunksOf("xy", "zz", "xy", "xy"), &letterEmbedder{alphabet: "xyz"}, NewMemoryBackend)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	results, err := store.Search(ctx, "xy", 3)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	var got []int
	for _, r := range results {
		got = append(got, r.Index)
	}
	want := []int{0, 2, 3}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("tie order = %v, want %v", got, want)
		}
	}
}

func TestBuild_EmbeddingFailureIsFatal(t *testing.T) {
	opened := false
	open := func(ctx context.Context, batchID string) (Backend, error) {
		opened = true
		return &MemoryBackend{}, nil
	}
	emb := &letterEmbedder{alphabet: "abc", failOn: "bad"}
	store, err := Build(context.Background(), chunksOf("abc", "bad", "cab"), emb, open)
	if store != nil {
		t.Fatal("partial store returned")
	}
	var embErr *models.EmbeddingError
	if !errors.As(err, &embErr) {
		t.Fatalf("Build error = %v, want EmbeddingError", err)
	}
	if opened {
		t.Error("backend opened before all chunks were embedded")
	}
}

func TestBuild_InsertFailureDropsBackend(t *testing.T) {
	backend := &recordingBackend{insertErr: errors.New("disk full")}
	open := func(ctx context.Context, batchID string) (Backend, error) { return backend, nil }
	store, err := Build(context.Background(), chunksOf("abc"), &letterEmbedder{alphabet: "abc"}, open)
	if err == nil || store != nil {
		t.Fatalf("Build = %v, %v; want error and no store", store, err)
	}
	if !backend.dropped {
		t.Error("backend not dropped after failed insert")
	}
}

func TestBuild_EmptyChunks(t *testing.T) {
	_, err := Build(context.Background(), nil, &letterEmbedder{alphabet: "a"}, NewMemoryBackend)
	if !errors.Is(err, models.ErrEmptyBatch) {
		t.Fatalf("Build(nil) error = %v, want ErrEmptyBatch", err)
	}
}

func TestRank(t *testing.T) {
	in := []models.SearchResult{
		{Chunk: models.Chunk{Index: 3}, Distance: 0.5},
		{Chunk: models.Chunk{Index: 1}, Distance: 0.1},
		{Chunk: models.Chunk{Index: 0}, Distance: 0.5},
		{Chunk: models.Chunk{Index: 2}, Distance: 0.9},
	}
	out := Rank(in, 3)
	want := []int{1, 0, 3}
	if len(out) != len(want) {
		t.Fatalf("Rank returned %d results, want %d", len(out), len(want))
	}
	for i := range want {
		if out[i].Index != want[i] {
			t.Errorf("Rank[%d] = chunk %d, want %d", i, out[i].Index, want[i])
		}
	}
}

func TestMemoryBackend_DimensionMismatch(t *testing.T) {
	ctx := context.Background()
	m := &MemoryBackend{}
	mixed := []models.ChunkEmbedding{
		{Chunk: models.Chunk{Index: 0}, Embedding: []float32{1, 0}},
		{Chunk: models.Chunk{Index: 1}, Embedding: []float32{1, 0, 0}},
	}
	if err := m.Insert(ctx, mixed); !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("Insert error = %v, want ErrDimensionMismatch", err)
	}
	if err := m.Insert(ctx, mixed[:1]); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if _, err := m.Query(ctx, []float32{1, 0, 0}, 1); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("Query error = %v, want ErrDimensionMismatch", err)
	}
}

func TestStore_CloseDropsBackend(t *testing.T) {
	ctx := context.Background()
	backend := &recordingBackend{}
	open := func(ctx context.Context, batchID string) (Backend, error) { return backend, nil }
	store, err := Build(ctx, chunksOf("AB", "BA"), &letterEmbedder{alphabet: "AB"}, open)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if err := store.Close(ctx); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !backend.dropped {
		t.Error("Close did not drop the backend")
	}
	if results, _ := backend.Query(ctx, []float32{1, 0}, 2); len(results) != 0 {
		t.Errorf("backend still holds %d records after Close", len(results))
	}
}
