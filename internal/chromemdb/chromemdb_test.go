package chromemdb

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"pdf-chat/internal/index"
	"pdf-chat/internal/models"
)

type letterEmbedder struct{ alphabet string }

func (e letterEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vec := make([]float32, len(e.alphabet))
	for _, r := range text {
		if i := strings.IndexRune(e.alphabet, r); i >= 0 {
			vec[i]++
		}
	}
	return vec, nil
}

func (e letterEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i], _ = e.EmbedQuery(ctx, text)
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

func TestChromemBackend_Search(t *testing.T) {
	ctx := context.Background()
	m, err := NewVectorDBManager("", "", "")
	if err != nil {
		t.Fatalf("NewVectorDBManager failed: %v", err)
	}
	texts := []string{"AAAA\n", "A\nBBBB\n", "B\nCCCC\n", "C\nDDDD"}
	store, err := index.Build(ctx, chunksOf(texts...), letterEmbedder{alphabet: "ABCD\n"}, m.Open)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	results, err := store.Search(ctx, texts[2], 2)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("Search returned %d results, want 2", len(results))
	}
	if results[0].Index != 2 || results[0].Content != texts[2] {
		t.Errorf("first result = %+v, want chunk 2", results[0].Chunk)
	}
	if results[1].Distance < results[0].Distance {
		t.Errorf("results not sorted: %v then %v", results[0].Distance, results[1].Distance)
	}
}

func TestChromemBackend_TiesAndDrop(t *testing.T) {
	ctx := context.Background()
	m, err := NewVectorDBManager("", "", "")
	if err != nil {
		t.Fatalf("NewVectorDBManager failed: %v", err)
	}
	store, err := index.Build(ctx, chunksOf("xy", "zz", "xy"), letterEmbedder{alphabet: "xyz"}, m.Open)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	results, err := store.Search(ctx, "xy", 10)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("Search returned %d results, want 3", len(results))
	}
	if results[0].Index != 0 || results[1].Index != 2 || results[2].Index != 1 {
		t.Errorf("order = [%d %d %d], want [0 2 1]", results[0].Index, results[1].Index, results[2].Index)
	}

	if err := store.Close(ctx); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if got := m.db.ListCollections(); len(got) != 0 {
		t.Errorf("collections left after Close: %d", len(got))
	}
}

func TestChromemBackend_Export(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	m, err := NewVectorDBManager("", dir, "0123456789abcdef0123456789abcdef")
	if err != nil {
		t.Fatalf("NewVectorDBManager failed: %v", err)
	}
	store, err := index.Build(ctx, chunksOf("ab", "ba"), letterEmbedder{alphabet: "ab"}, m.Open)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	path := filepath.Join(dir, collectionPrefix+store.BatchID+exportFileSuffix)
	if _, err := os.Stat(path); err != nil {
		t.Errorf("export file missing: %v", err)
	}
}

func TestNewVectorDBManager_BadKey(t *testing.T) {
	if _, err := NewVectorDBManager("", "", "short"); err == nil {
		t.Fatal("expected error for short encryption key")
	}
}
