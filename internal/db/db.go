package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	"pdf-chat/internal/config"
	"pdf-chat/internal/index"
	"pdf-chat/internal/models"
)

// Document is one stored chunk; rows of different batches share the table.
type Document struct {
	bun.BaseModel `bun:"table:documents,alias:d"`
	ID            int64           `bun:"id,pk,autoincrement"`
	BatchID       string          `bun:"batch_id,notnull"`
	ChunkIndex    int             `bun:"chunk_index,notnull"`
	Content       string          `bun:"content,notnull"`
	Embedding     pgvector.Vector `bun:"embedding,notnull,type:vector"`
	Distance      float64         `bun:"distance,scanonly"`
}

func NewDB(sqldb *sql.DB, debug bool) *bun.DB {
	db := bun.NewDB(sqldb, pgdialect.New())
	if debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return db
}

// ConnectDB opens the database with pgdriver, or with lib/pq when driver is "pq".
func ConnectDB(cfg *config.DatabaseConfig) (*sql.DB, error) {
	dsn := withSSLMode(cfg.URL)
	switch cfg.Driver {
	case "pq":
		return sql.Open("postgres", dsn)
	case "pgdriver", "":
		opts := []pgdriver.Option{pgdriver.WithDSN(dsn)}
		if cfg.Password != "" {
			opts = append(opts, pgdriver.WithPassword(cfg.Password))
		}
		return sql.OpenDB(pgdriver.NewConnector(opts...)), nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

func withSSLMode(dsn string) string {
	if strings.Contains(dsn, "sslmode=") {
		return dsn
	}
	if strings.Contains(dsn, "?") {
		return dsn + "&sslmode=disable"
	}
	return dsn + "?sslmode=disable"
}

func InitDB(ctx context.Context, db *bun.DB) error {
	if _, err := db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to enable pgvector: %w", err)
	}
	if _, err := db.NewCreateTable().Model((*Document)(nil)).IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("failed to create documents table: %w", err)
	}
	_, err := db.NewCreateIndex().Model((*Document)(nil)).Index("documents_batch_idx").IfNotExists().Column("batch_id").Exec(ctx)
	return err
}

// Store hands out one batch-scoped backend per ingestion over a shared table.
type Store struct {
	db *bun.DB
}

func NewStore(ctx context.Context, db *bun.DB) (*Store, error) {
	if err := InitDB(ctx, db); err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// Open is an index.BackendFactory
func (s *Store) Open(ctx context.Context, batchID string) (index.Backend, error) {
	return &batch{db: s.db, id: batchID}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

type batch struct {
	db *bun.DB
	id string
}

// Insert writes the whole batch in one transaction.
func (b *batch) Insert(ctx context.Context, records []models.ChunkEmbedding) error {
	docs := make([]Document, len(records))
	for i, r := range records {
		docs[i] = Document{
			BatchID:    b.id,
			ChunkIndex: r.Index,
			Content:    r.Content,
			Embedding:  pgvector.NewVector(r.Embedding),
		}
	}
	return b.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewInsert().Model(&docs).Exec(ctx)
		return err
	})
}

// Query orders by cosine distance, then chunk index.
func (b *batch) Query(ctx context.Context, vector []float32, k int) ([]models.SearchResult, error) {
	var docs []Document
	err := b.db.NewSelect().
		Model(&docs).
		Column("chunk_index", "content").
		ColumnExpr("embedding <=> ? AS distance", pgvector.NewVector(vector)).
		Where("batch_id = ?", b.id).
		OrderExpr("distance ASC, chunk_index ASC").
		Limit(k).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	results := make([]models.SearchResult, len(docs))
	for i, d := range docs {
		results[i] = models.SearchResult{
			Chunk:    models.Chunk{Index: d.ChunkIndex, Content: d.Content},
			Distance: d.Distance,
		}
	}
	return results, nil
}

// drop this batch's rows
func (b *batch) Drop(ctx context.Context) error {
	_, err := b.db.NewDelete().Model((*Document)(nil)).Where("batch_id = ?", b.id).Exec(ctx)
	return err
}
