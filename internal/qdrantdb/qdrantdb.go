package qdrantdb

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"
	"github.com/rs/zerolog/log"

	"pdf-chat/internal/config"
	"pdf-chat/internal/index"
	"pdf-chat/internal/models"
)

const (
	collectionPrefix = "pdfchat_"
	chunkIndexKey    = "chunk_index"
	contentKey       = "content"
)

type Client struct {
	Client *qdrant.Client
}

func NewClient(cfg config.QdrantConfig) (*Client, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port, // gRPC port
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, err
	}
	return &Client{Client: client}, nil
}

func (c *Client) Close() error {
	return c.Client.Close()
}

// Open is an index.BackendFactory. The collection is created on Insert,
// once the vector size is known.
func (c *Client) Open(ctx context.Context, batchID string) (index.Backend, error) {
	return &collection{client: c.Client, name: CollectionName(batchID)}, nil
}

func CollectionName(batchID string) string {
	return collectionPrefix + batchID
}

type collection struct {
	client  *qdrant.Client
	name    string
	created bool
	count   int
}

func (c *collection) Insert(ctx context.Context, records []models.ChunkEmbedding) error {
	if len(records) == 0 {
		return nil
	}
	err := c.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: c.name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(len(records[0].Embedding)),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("err create collection %s: %w", c.name, err)
	}
	c.created = true

	points := make([]*qdrant.PointStruct, len(records))
	for i, r := range records {
		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDNum(uint64(r.Index)),
			Vectors: qdrant.NewVectorsDense(r.Embedding),
			Payload: qdrant.NewValueMap(map[string]any{
				chunkIndexKey: int64(r.Index),
				contentKey:    r.Content,
			}),
		}
	}
	_, err = c.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: c.name,
		Wait:           qdrant.PtrOf(true),
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("err upsert points: %w", err)
	}
	c.count = len(records)
	log.Debug().Str("collection", c.name).Int("points", len(points)).Msg("Upserted points")
	return nil
}

// Query scores every point and ranks locally so ties resolve by chunk index.
func (c *collection) Query(ctx context.Context, vector []float32, k int) ([]models.SearchResult, error) {
	if c.count == 0 {
		return nil, nil
	}
	points, err := c.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: c.name,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(c.count)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("err query points: %w", err)
	}
	return index.Rank(toResults(points), k), nil
}

func toResults(points []*qdrant.ScoredPoint) []models.SearchResult {
	out := make([]models.SearchResult, 0, len(points))
	for _, p := range points {
		out = append(out, models.SearchResult{
			Chunk: models.Chunk{
				Index:   int(p.GetPayload()[chunkIndexKey].GetIntegerValue()),
				Content: p.GetPayload()[contentKey].GetStringValue(),
			},
			Distance: 1 - float64(p.GetScore()),
		})
	}
	return out
}

func (c *collection) Drop(ctx context.Context) error {
	if !c.created {
		return nil
	}
	if err := c.client.DeleteCollection(ctx, c.name); err != nil {
		return fmt.Errorf("err delete collection %s: %w", c.name, err)
	}
	c.created, c.count = false, 0
	return nil
}
