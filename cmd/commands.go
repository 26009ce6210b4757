package main

import (
	"context"
	"fmt"
	"io"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/tmc/langchaingo/embeddings"

	"pdf-chat/internal/counter"
	"pdf-chat/internal/helper"
	"pdf-chat/internal/index"
	"pdf-chat/internal/models"
	"pdf-chat/internal/parser"
	"pdf-chat/internal/transcript"
	"pdf-chat/internal/tui"
)

// chunksCmd prints the chunks of the given files without embedding them.
func chunksCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chunks FILE...",
		Short: "Print the chunks the documents split into",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			docs, err := parser.ReadFiles(args)
			if err != nil {
				return err
			}
			text, err := parser.ExtractText(docs)
			if err != nil {
				return err
			}
			chunks, err := parser.Chunks(text, cfg.RAG)
			if err != nil {
				return err
			}
			helper.PrettyPrint(cmd.OutOrStdout(), chunks)
			log.Info().Int("documents", len(docs)).Int("chunks", len(chunks)).Msg("Chunked documents")
			return nil
		},
	}
}

func searchCmd() *cobra.Command {
	var (
		query string
		k     int
	)
	cmd := &cobra.Command{
		Use:   "search FILE...",
		Short: "Index the documents and print the chunks nearest to a query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			docs, err := parser.ReadFiles(args)
			if err != nil {
				return err
			}
			text, err := parser.ExtractText(docs)
			if err != nil {
				return err
			}
			chunks, err := parser.Chunks(text, cfg.RAG)
			if err != nil {
				return err
			}
			embedder, err := newEmbedder(cfg)
			if err != nil {
				return err
			}
			open, release, err := openBackend(ctx, cfg)
			if err != nil {
				return err
			}
			defer release()
			return search(ctx, cmd.OutOrStdout(), chunks, embedder, open, query, k, cfg.RAG.RetrievalK)
		},
	}
	cmd.Flags().StringVarP(&query, "query", "q", "", "query to search for")
	cmd.Flags().IntVarP(&k, "k", "k", 0, "number of chunks to return (default from config)")
	cmd.MarkFlagRequired("query")
	return cmd
}

// search indexes chunks and prints the k nearest to query. k <= 0 falls
// back to defaultK, the configured retrieval_k.
func search(ctx context.Context, out io.Writer, chunks []models.Chunk, embedder embeddings.Embedder, open index.BackendFactory, query string, k, defaultK int) error {
	store, err := index.Build(ctx, chunks, embedder, open)
	if err != nil {
		return err
	}
	defer store.Close(context.Background())

	if k <= 0 {
		k = defaultK
	}
	results, err := store.Search(ctx, query, k)
	if err != nil {
		return err
	}
	for i, r := range results {
		fmt.Fprintf(out, "#%d chunk %d distance=%.4f\n%s\n\n", i+1, r.Index, r.Distance, r.Content)
	}
	return nil
}

// askCmd answers one or more questions in a single conversation.
func askCmd() *cobra.Command {
	var questions []string
	cmd := &cobra.Command{
		Use:   "ask FILE...",
		Short: "Answer questions about the documents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			docs, err := parser.ReadFiles(args)
			if err != nil {
				return err
			}
			session, cleanup, err := newSession(ctx, cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := session.Ingest(ctx, docs); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, q := range questions {
				answer, err := session.Ask(ctx, q)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Q: %s\nA: %s\n\n", q, answer.Text)
			}
			return nil
		},
	}
	cmd.Flags().StringArrayVarP(&questions, "question", "q", nil, "question to ask; repeat for follow-ups")
	cmd.MarkFlagRequired("question")
	return cmd
}

func chatCmd() *cobra.Command {
	var (
		transcriptPath string
		logFile        string
	)
	cmd := &cobra.Command{
		Use:   "chat FILE...",
		Short: "Chat with the documents in the terminal",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			// the terminal belongs to the TUI from here on
			f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
			if err != nil {
				return fmt.Errorf("failed to open log file: %w", err)
			}
			defer f.Close()
			helper.SetupLogger(cfg.LogLevel, f)

			views := 0
			c, err := counter.New(cfg.Counter)
			if err != nil {
				log.Warn().Err(err).Msg("Visit counter unavailable")
			} else {
				if views, err = c.Increment(); err != nil {
					log.Warn().Err(err).Msg("Failed to update visit counter")
				}
				c.Close()
			}

			docs, err := parser.ReadFiles(args)
			if err != nil {
				return err
			}
			session, cleanup, err := newSession(ctx, cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			fmt.Fprintf(cmd.OutOrStdout(), "Processing %d documents...\n", len(docs))
			if err := session.Ingest(ctx, docs); err != nil {
				return err
			}

			summary := fmt.Sprintf("%d documents indexed", len(docs))
			if views > 0 {
				summary += fmt.Sprintf(" | visits: %d", views)
			}
			if _, err := tea.NewProgram(tui.New(ctx, session, summary), tea.WithAltScreen()).Run(); err != nil {
				return fmt.Errorf("chat UI failed: %w", err)
			}

			if transcriptPath != "" {
				if err := transcript.Save(transcriptPath, session.History()); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Transcript written to %s\n", transcriptPath)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&transcriptPath, "transcript", "", "write the conversation to this .md or .html file on exit")
	cmd.Flags().StringVar(&logFile, "log-file", "pdf-chat.log", "where logs go while the chat is open")
	return cmd
}
