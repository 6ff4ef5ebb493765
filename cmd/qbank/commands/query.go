package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Albertdeng23/GEEQuestionBank/cmd/qbank/ui"
	"github.com/Albertdeng23/GEEQuestionBank/internal/domain"
	"github.com/Albertdeng23/GEEQuestionBank/internal/embedding"
	"github.com/Albertdeng23/GEEQuestionBank/internal/search"
)

var queryTopK int

var queryCmd = &cobra.Command{
	Use:   "query <text>",
	Short: "Find stored questions most similar to a text query",
	Long: `Embeds the query text and ranks every stored question by cosine
similarity against the precomputed vector matrix. Requires a prior embed
run; refuses to answer when the matrix is stale.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().IntVarP(&queryTopK, "top", "k", 3, "number of results to return")
	rootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	if cfg.VLM.APIKey == "" {
		ui.Error("QBANK_API_KEY is not set")
		return fmt.Errorf("missing API key")
	}

	queryText := strings.Join(args, " ")

	index, err := search.Load(cfg.StorePath(), cfg.VectorPath(), logger)
	if err != nil {
		ui.Error("%v", err)
		return err
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

	sp := ui.NewSpinner("embedding query")
	sp.Start()
	vec, err := client.EmbedSingle(ctx, queryText)
	sp.Stop()
	if err != nil {
		return domain.APIError("failed to embed query", err)
	}
	normalized := [][]float32{vec}
	embedding.Normalize(normalized)

	matches := index.TopK(normalized[0], queryTopK)

	ui.Message("Top %d of %d questions for: %s", len(matches), index.Count(), queryText)
	for rank, match := range matches {
		printMatch(rank+1, match)
	}

	return nil
}

func printMatch(rank int, match search.Match) {
	bold := color.New(color.Bold)
	cyan := color.New(color.FgCyan)

	fmt.Println()
	bold.Printf("#%d  similarity %.4f\n", rank, match.Similarity)

	rec := match.Record
	if rec.SectionTitle != nil && *rec.SectionTitle != "" {
		cyan.Printf("%s", *rec.SectionTitle)
		if rec.QuestionNumber != nil && *rec.QuestionNumber != "" {
			cyan.Printf("  %s", *rec.QuestionNumber)
		}
		fmt.Println()
	} else if rec.QuestionNumber != nil && *rec.QuestionNumber != "" {
		cyan.Printf("%s\n", *rec.QuestionNumber)
	}

	fmt.Println(rec.StemText)

	if len(rec.Options) > 0 {
		for _, key := range sortedKeys(rec.Options) {
			fmt.Printf("  %s %s\n", key, rec.Options[key])
		}
	}
	if rec.ImageDescription != "" && rec.ImageDescription != domain.NoFigure {
		color.New(color.Faint).Printf("  [figure: %s]\n", rec.ImageDescription)
	}
	color.New(color.Faint).Printf("  %s p.%d\n", rec.SourceFile, rec.SourcePage)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
