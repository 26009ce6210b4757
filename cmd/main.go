package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/tmc/langchaingo/embeddings"

	"pdf-chat/internal/chromemdb"
	"pdf-chat/internal/config"
	"pdf-chat/internal/db"
	"pdf-chat/internal/embedding"
	"pdf-chat/internal/helper"
	"pdf-chat/internal/index"
	"pdf-chat/internal/llmservice"
	"pdf-chat/internal/qdrantdb"
	"pdf-chat/internal/rag"
)

const configFilePath = "./configs/config.yaml"

var (
	cfgFile  string
	logLevel string
	cfg      *config.Config
)

var rootCmd = &cobra.Command{
	Use:           "pdf-chat",
	Short:         "Chat with multiple PDFs",
	Long:          "Extracts text from PDF, DOCX and XLSX files, indexes it in a vector store and answers questions about it.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load .env: %w", err)
		}
		loaded, err := loadConfig(cfgFile)
		if err != nil {
			return err
		}
		cfg = loaded
		if logLevel != "" {
			cfg.LogLevel = logLevel
		}
		helper.SetupLogger(cfg.LogLevel, os.Stderr)
		log.Debug().Str("provider", cfg.Provider).Str("store", cfg.Store.Backend).Interface("rag", cfg.RAG).Msg("Loaded config")
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", configFilePath, "config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override the configured log level")
	rootCmd.AddCommand(chunksCmd(), searchCmd(), askCmd(), chatCmd())
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		log.Error().Err(err).Msg("Command failed")
		os.Exit(1)
	}
}

// loadConfig falls back to defaults when the default config file is absent.
func loadConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) && path == configFilePath {
		return config.Default(), nil
	}
	return config.LoadConfig(path)
}

// openBackend returns the factory for the configured vector store and a
// function releasing its connection.
func openBackend(ctx context.Context, cfg *config.Config) (index.BackendFactory, func(), error) {
	switch cfg.Store.Backend {
	case config.BackendMemory:
		return index.NewMemoryBackend, func() {}, nil
	case config.BackendChromem:
		if err := helper.CreateFolder(cfg.Store.ExportPath); err != nil {
			return nil, nil, err
		}
		m, err := chromemdb.NewVectorDBManager(cfg.Store.Path, cfg.Store.ExportPath, cfg.Store.EncryptionKey)
		if err != nil {
			return nil, nil, err
		}
		return m.Open, func() {}, nil
	case config.BackendPgvector:
		sqldb, err := db.ConnectDB(&cfg.Database)
		if err != nil {
			return nil, nil, fmt.Errorf("error connecting to database: %w", err)
		}
		store, err := db.NewStore(ctx, db.NewDB(sqldb, cfg.Database.Debug))
		if err != nil {
			sqldb.Close()
			return nil, nil, fmt.Errorf("error initializing database: %w", err)
		}
		return store.Open, func() { store.Close() }, nil
	case config.BackendQdrant:
		client, err := qdrantdb.NewClient(cfg.Qdrant)
		if err != nil {
			return nil, nil, fmt.Errorf("error connecting to qdrant: %w", err)
		}
		return client.Open, func() { client.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

func newEmbedder(cfg *config.Config) (embeddings.Embedder, error) {
	emb, err := embedding.NewEmbedder(cfg.Provider, cfg.EmbedLLM, llmservice.NewRetryPolicy(cfg.Retry))
	if err != nil {
		return nil, fmt.Errorf("error initializing embedder: %w", err)
	}
	return emb, nil
}

// newSession wires providers and the vector store into a chat session.
func newSession(ctx context.Context, cfg *config.Config) (*rag.Session, func(), error) {
	embedder, err := newEmbedder(cfg)
	if err != nil {
		return nil, nil, err
	}
	model, err := llmservice.NewModel(cfg.Provider, cfg.InferenceLLM)
	if err != nil {
		return nil, nil, fmt.Errorf("error initializing model: %w", err)
	}
	gen := llmservice.NewGenerator(model, cfg.Provider, llmservice.NewRetryPolicy(cfg.Retry))

	open, release, err := openBackend(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	session, err := rag.NewSession(cfg.RAG, embedder, gen, open)
	if err != nil {
		release()
		return nil, nil, err
	}
	cleanup := func() {
		if err := session.Close(context.Background()); err != nil {
			log.Warn().Err(err).Msg("Error closing session")
		}
		release()
	}
	return session, cleanup, nil
}
