package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Albertdeng23/GEEQuestionBank/cmd/qbank/ui"
	"github.com/Albertdeng23/GEEQuestionBank/internal/domain"
	"github.com/Albertdeng23/GEEQuestionBank/internal/embedding"
	"github.com/Albertdeng23/GEEQuestionBank/internal/store"
)

var embedCmd = &cobra.Command{
	Use:   "embed",
	Short: "Precompute embedding vectors for every stored question",
	Long: `Reads the question store, embeds each record's searchable text in
batches, normalizes the vectors, and writes the resulting matrix next to
the store. Row i of the matrix is the embedding of record i; the query
command requires the counts to match, so rerun embed after every
digitize.`,
	RunE: runEmbed,
}

func init() {
	rootCmd.AddCommand(embedCmd)
}

func runEmbed(cmd *cobra.Command, args []string) error {
	if cfg.VLM.APIKey == "" {
		ui.Error("QBANK_API_KEY is not set")
		return fmt.Errorf("missing API key")
	}

	qs := store.NewQuestionStore(cfg.StorePath(), logger)
	records, err := qs.Load()
	if err != nil {
		return err
	}
	if len(records) == 0 {
		ui.Error("question store is empty, run digitize first")
		return domain.ValidationError("question store is empty", nil)
	}

	client, err := embedding.NewClient(embedding.Config{
		APIKey:    cfg.VLM.APIKey,
		Model:     cfg.Embedding.Model,
		BaseURL:   cfg.Embedding.BaseURL,
		Dimension: cfg.Embedding.Dimension,
		Timeout:   cfg.Embedding.Timeout,
	})
	if err != nil {
		return domain.ConfigError("failed to create embedding client", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	texts := make([]string, len(records))
	for i, rec := range records {
		texts[i] = rec.SearchableText
	}

	ui.Message("Embedding %d questions with %s", len(records), client.Model())
	bar := ui.NewProgressBar(int64(len(texts)), "embedding")

	vectors := make([][]float32, 0, len(texts))
	batchSize := cfg.Embedding.BatchSize
	for start := 0; start < len(texts); start += batchSize {
		end := start + batchSize
		if end > len(texts) {
			end = len(texts)
		}

		batch, err := client.Embed(ctx, texts[start:end])
		if err != nil {
			bar.Finish()
			ui.Error("embedding batch %d-%d failed: %v", start, end-1, err)
			return domain.APIError("embedding request failed", err)
		}

		vectors = append(vectors, batch...)
		bar.Add(end - start)
	}
	bar.Finish()

	embedding.Normalize(vectors)

	if err := store.WriteMatrix(cfg.VectorPath(), vectors); err != nil {
		return err
	}

	ui.Success("wrote %d vectors (%d dims) to %s", len(vectors), client.Dimension(), cfg.VectorPath())
	return nil
}
