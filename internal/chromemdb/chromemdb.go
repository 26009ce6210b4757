package chromemdb

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"strconv"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"

	"pdf-chat/internal/index"
	"pdf-chat/internal/models"
)

const (
	compress         = false
	collectionPrefix = "chunks-"
	chunkIndexKey    = "chunk_index"
	exportFileSuffix = ".chromem"
)

var errNoEmbeddingFunc = errors.New("chunk embeddings are computed before insertion")

// VectorDBManager encapsulates the chromem-go database operations
type VectorDBManager struct {
	db            *chromem.DB
	exportDir     string
	encryptionKey string
}

// NewVectorDBManager opens an in-memory database when dbPath is empty and a
// persistent one otherwise. A non-empty exportDir makes every built
// collection get exported there, encrypted when encryptionKey is set.
func NewVectorDBManager(dbPath, exportDir, encryptionKey string) (*VectorDBManager, error) {
	var db *chromem.DB
	var err error
	if dbPath == "" {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(dbPath, compress)
		if err != nil {
			return nil, fmt.Errorf("failed to create database: %w", err)
		}
	}
	if encryptionKey != "" && len(encryptionKey) != 32 {
		return nil, fmt.Errorf("encryption key must be 32 bytes, got %d", len(encryptionKey))
	}
	log.Debug().Str("path", dbPath).Bool("persistent", dbPath != "").Msg("Opened chromem database")

	return &VectorDBManager{
		db:            db,
		exportDir:     exportDir,
		encryptionKey: encryptionKey,
	}, nil
}

// Open is an index.BackendFactory creating one collection per batch.
func (m *VectorDBManager) Open(ctx context.Context, batchID string) (index.Backend, error) {
	name := collectionPrefix + batchID
	c, err := m.db.GetOrCreateCollection(name, map[string]string{"batch": batchID}, refuseEmbedding)
	if err != nil {
		return nil, fmt.Errorf("failed to create/get collection: %w", err)
	}
	return &collection{manager: m, collection: c}, nil
}

func refuseEmbedding(ctx context.Context, text string) ([]float32, error) {
	return nil, errNoEmbeddingFunc
}

type collection struct {
	manager    *VectorDBManager
	collection *chromem.Collection
}

// Insert adds every chunk with its precomputed embedding
func (c *collection) Insert(ctx context.Context, records []models.ChunkEmbedding) error {
	docs := make([]chromem.Document, len(records))
	for i, r := range records {
		docs[i] = chromem.Document{
			ID:        fmt.Sprintf("%s-%d", c.collection.Name, r.Index),
			Content:   r.Content,
			Metadata:  map[string]string{chunkIndexKey: strconv.Itoa(r.Index)},
			Embedding: r.Embedding,
		}
	}
	if err := c.collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("failed to add documents: %w", err)
	}
	if c.manager.exportDir != "" {
		if err := c.manager.Export(c.collection.Name); err != nil {
			return err
		}
	}
	return nil
}

// Query ranks the whole collection so ties resolve by chunk index.
func (c *collection) Query(ctx context.Context, vector []float32, k int) ([]models.SearchResult, error) {
	n := c.collection.Count()
	if n == 0 {
		return nil, nil
	}
	results, err := c.collection.QueryEmbedding(ctx, vector, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query by similarity: %w", err)
	}

	out := make([]models.SearchResult, 0, len(results))
	for _, r := range results {
		idx, err := strconv.Atoi(r.Metadata[chunkIndexKey])
		if err != nil {
			return nil, fmt.Errorf("document %s has no chunk index: %w", r.ID, err)
		}
		out = append(out, models.SearchResult{
			Chunk:    models.Chunk{Index: idx, Content: r.Content},
			Distance: 1 - float64(r.Similarity),
		})
	}
	return index.Rank(out, k), nil
}

// delete collection
func (c *collection) Drop(ctx context.Context) error {
	if err := c.manager.db.DeleteCollection(c.collection.Name); err != nil {
		return fmt.Errorf("failed to drop collection: %w", err)
	}
	return nil
}

// Export writes one collection to <exportDir>/<name>.chromem
func (m *VectorDBManager) Export(name string) error {
	filePath := filepath.Join(m.exportDir, name+exportFileSuffix)
	log.Debug().Str("collection", name).Str("file", filePath).Bool("encrypted", m.encryptionKey != "").Msg("Exporting collection")

	if err := m.db.ExportToFile(filePath, compress, m.encryptionKey, name); err != nil {
		return fmt.Errorf("failed to export database: %w", err)
	}
	return nil
}
