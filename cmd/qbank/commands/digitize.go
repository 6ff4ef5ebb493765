package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Albertdeng23/GEEQuestionBank/cmd/qbank/ui"
	"github.com/Albertdeng23/GEEQuestionBank/internal/continuity"
	"github.com/Albertdeng23/GEEQuestionBank/internal/domain"
	"github.com/Albertdeng23/GEEQuestionBank/internal/pdf"
	"github.com/Albertdeng23/GEEQuestionBank/internal/pipeline"
	"github.com/Albertdeng23/GEEQuestionBank/internal/store"
	"github.com/Albertdeng23/GEEQuestionBank/internal/vlm"
)

var digitizeCmd = &cobra.Command{
	Use:   "digitize",
	Short: "Digitize every new PDF in the input directory",
	Long: `Scans the input directory for PDF files, skips files already recorded
in the ledger, and runs each remaining file through the extraction
pipeline: page rendering, vision-model extraction, cross-page stitching,
and storage. Files that yield no questions are left out of the ledger and
retried on the next run.`,
	RunE: runDigitize,
}

func init() {
	digitizeCmd.Flags().String("input", "", "input directory (overrides config)")
	rootCmd.AddCommand(digitizeCmd)
}

func runDigitize(cmd *cobra.Command, args []string) error {
	if cfg.VLM.APIKey == "" {
		ui.Error("QBANK_API_KEY is not set")
		return fmt.Errorf("missing API key")
	}

	inputDir := cfg.Paths.InputDir
	if v, _ := cmd.Flags().GetString("input"); v != "" {
		inputDir = v
	}

	if err := os.MkdirAll(cfg.Paths.ResultDir, 0o755); err != nil {
		return domain.IOError("failed to create result directory", err)
	}
	if err := os.MkdirAll(cfg.Paths.TempDir, 0o755); err != nil {
		return domain.IOError("failed to create temp directory", err)
	}

	renderer := pdf.NewRenderer(cfg.Render.DPI, cfg.Paths.TempDir, logger)
	extractor := vlm.NewClient(vlm.Config{
		BaseURL:    cfg.VLM.BaseURL,
		APIKey:     cfg.VLM.APIKey,
		Model:      cfg.VLM.Model,
		MaxTokens:  cfg.VLM.MaxTokens,
		Timeout:    cfg.VLM.Timeout,
		MaxRetries: cfg.VLM.MaxRetries,
	}, logger)

	driver := pipeline.NewDriver(pipeline.Deps{
		Renderer:  renderer,
		Extractor: extractor,
		Engine:    continuity.NewEngine(logger),
		Ledger:    store.NewLedger(cfg.LedgerPath(), logger),
		Store:     store.NewQuestionStore(cfg.StorePath(), logger),
		Logger:    logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eventCh := make(chan domain.StreamEvent, 256)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		displayEvents(eventCh)
	}()

	summary, runErr := driver.Run(ctx, inputDir, eventCh)
	close(eventCh)
	wg.Wait()

	if summary != nil {
		printSummary(summary)
	}

	if runErr != nil {
		if ctx.Err() != nil {
			ui.Warning("interrupted, partial progress is saved")
		} else {
			ui.Error("digitize failed: %v", runErr)
		}
		return runErr
	}

	return nil
}

// displayEvents renders pipeline events until the channel closes.
func displayEvents(eventCh <-chan domain.StreamEvent) {
	sp := ui.NewSpinner("scanning input directory")
	sp.Start()
	defer sp.Stop()

	for event := range eventCh {
		switch event.Type {
		case domain.EventRunStart:
			sp.UpdateMessage(fmt.Sprintf("%v", event.Payload))
		case domain.EventFileStart:
			sp.UpdateMessage(fmt.Sprintf("digitizing %s", event.File))
		case domain.EventFileSkipped:
			sp.Stop()
			ui.Message("  %s already digitized, skipped", event.File)
			sp.Start()
		case domain.EventPageProcessing:
			sp.UpdateMessage(fmt.Sprintf("%s page %d", event.File, event.PageNumber))
		case domain.EventPageFailed:
			sp.Stop()
			ui.Warning("%s page %d failed: %v", event.File, event.PageNumber, event.Payload)
			sp.Start()
		case domain.EventFragmentDropped:
			sp.Stop()
			ui.Warning("%s page %d: dangling question fragment discarded", event.File, event.PageNumber)
			sp.Start()
		case domain.EventFileComplete:
			sp.Stop()
			ui.Success("%s: %v questions stored", event.File, event.Payload)
			sp.Start()
		case domain.EventFileEmpty:
			sp.Stop()
			ui.Warning("%s yielded no questions, will retry next run", event.File)
			sp.Start()
		case domain.EventFileAbandoned:
			sp.Stop()
			ui.Error("%s abandoned: %v", event.File, event.Payload)
			sp.Start()
		}
	}
}

func printSummary(summary *domain.RunSummary) {
	ui.Section("Summary")
	ui.Message("  Files processed:  %d", summary.FilesProcessed)
	ui.Message("  Files skipped:    %d", summary.FilesSkipped)
	ui.Message("  Files abandoned:  %d", summary.FilesAbandoned)
	ui.Message("  Files empty:      %d", summary.FilesEmpty)
	ui.Message("  Questions added:  %d", summary.QuestionsAdded)
	if summary.PagesFailed > 0 {
		ui.Warning("  Pages failed:     %d", summary.PagesFailed)
	}
	if summary.FragmentsDropped > 0 {
		ui.Warning("  Fragments dropped: %d", summary.FragmentsDropped)
	}
	ui.Message("  Duration:         %v", summary.Duration.Round(time.Second))
}
