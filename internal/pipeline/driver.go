// Package pipeline orchestrates the digitization batch: ledger gate, page
// rendering, per-page extraction, continuity stitching, and persistence.
package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Albertdeng23/GEEQuestionBank/internal/continuity"
	"github.com/Albertdeng23/GEEQuestionBank/internal/domain"
)

// Deps holds the collaborators the driver orchestrates. All of them are
// constructed at startup and passed in explicitly; the driver owns no
// ambient state.
type Deps struct {
	Renderer  domain.Renderer
	Extractor domain.ExtractionClient
	Engine    *continuity.Engine
	Ledger    domain.Ledger
	Store     domain.Store
	Logger    zerolog.Logger
}

// Driver runs the per-file state machine over a batch of PDFs. Processing
// is strictly sequential: one file at a time, one page at a time. The
// continuity engine's correctness depends on page order, so pages are
// never processed concurrently.
type Driver struct {
	renderer  domain.Renderer
	extractor domain.ExtractionClient
	engine    *continuity.Engine
	ledger    domain.Ledger
	store     domain.Store
	logger    zerolog.Logger
}

// NewDriver creates a pipeline driver
func NewDriver(deps Deps) *Driver {
	return &Driver{
		renderer:  deps.Renderer,
		extractor: deps.Extractor,
		engine:    deps.Engine,
		ledger:    deps.Ledger,
		store:     deps.Store,
		logger:    deps.Logger.With().Str("component", "pipeline").Logger(),
	}
}

// Run scans inputDir for PDFs and digitizes every file not yet in the
// ledger. Events are emitted on eventCh (nil is allowed) for progress
// display; the returned summary counts files processed, skipped, abandoned
// and left empty. Per-page and per-fragment failures degrade the output;
// only context cancellation aborts the batch.
func (d *Driver) Run(ctx context.Context, inputDir string, eventCh chan<- domain.StreamEvent) (*domain.RunSummary, error) {
	startTime := time.Now()
	summary := &domain.RunSummary{RunID: uuid.NewString()}

	logger := d.logger.With().Str("run_id", summary.RunID).Logger()

	pdfPaths, err := filepath.Glob(filepath.Join(inputDir, "*.pdf"))
	if err != nil {
		return nil, domain.IOError("failed to scan input directory", err)
	}
	sort.Strings(pdfPaths)

	d.emit(eventCh, domain.StreamEvent{
		Type:      domain.EventRunStart,
		Payload:   fmt.Sprintf("found %d PDF files in %s", len(pdfPaths), inputDir),
		Timestamp: time.Now(),
	})

	if len(pdfPaths) == 0 {
		logger.Warn().Str("input_dir", inputDir).Msg("no PDF files found")
	}

	defer d.renderer.Cleanup()

	for _, pdfPath := range pdfPaths {
		select {
		case <-ctx.Done():
			return summary, ctx.Err()
		default:
		}

		if err := d.processFile(ctx, pdfPath, eventCh, summary, logger); err != nil {
			// Only context cancellation propagates; everything else was
			// absorbed into the summary.
			summary.Duration = time.Since(startTime)
			return summary, err
		}
	}

	summary.Duration = time.Since(startTime)

	logger.Info().
		Int("processed", summary.FilesProcessed).
		Int("skipped", summary.FilesSkipped).
		Int("abandoned", summary.FilesAbandoned).
		Int("empty", summary.FilesEmpty).
		Int("questions", summary.QuestionsAdded).
		Dur("duration", summary.Duration).
		Msg("batch complete")

	d.emit(eventCh, domain.StreamEvent{
		Type: domain.EventRunComplete,
		Payload: fmt.Sprintf("processed %d, skipped %d, abandoned %d files in %v",
			summary.FilesProcessed, summary.FilesSkipped, summary.FilesAbandoned,
			summary.Duration.Round(time.Second)),
		Timestamp: time.Now(),
	})

	return summary, nil
}

// processFile walks one file through the state machine: ledger gate →
// render → per-page extraction loop → finalize → persist. A non-nil return
// aborts the batch and happens only on context cancellation.
func (d *Driver) processFile(ctx context.Context, pdfPath string, eventCh chan<- domain.StreamEvent, summary *domain.RunSummary, logger zerolog.Logger) error {
	filename := filepath.Base(pdfPath)
	fileLogger := logger.With().Str("file", filename).Logger()

	processed, err := d.ledger.HasProcessed(filename)
	if err != nil {
		return err
	}
	if processed {
		fileLogger.Info().Msg("already digitized, skipping")
		summary.FilesSkipped++
		d.emit(eventCh, domain.StreamEvent{
			Type:      domain.EventFileSkipped,
			File:      filename,
			Timestamp: time.Now(),
		})
		return nil
	}

	d.emit(eventCh, domain.StreamEvent{
		Type:      domain.EventFileStart,
		File:      filename,
		Timestamp: time.Now(),
	})

	pages, err := d.renderer.Render(ctx, pdfPath)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// Render failure abandons the file with no partial state; the
		// file stays out of the ledger and is retried on the next run.
		fileLogger.Error().Err(err).Msg("render failed, abandoning file")
		summary.FilesAbandoned++
		d.emit(eventCh, domain.StreamEvent{
			Type:      domain.EventFileAbandoned,
			File:      filename,
			Payload:   err.Error(),
			Timestamp: time.Now(),
		})
		return nil
	}

	// Temporary page images are scoped to this file: released on success,
	// zero-records and cancellation alike.
	defer func() {
		if err := d.renderer.Release(pdfPath); err != nil {
			fileLogger.Warn().Err(err).Msg("failed to remove temp page images")
		}
	}()

	var collected []domain.QuestionRecord
	var pending *domain.QuestionRecord

	for _, page := range pages {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		d.emit(eventCh, domain.StreamEvent{
			Type:       domain.EventPageProcessing,
			File:       filename,
			PageNumber: page.PageNumber,
			Timestamp:  time.Now(),
		})

		raw, err := d.extractor.ExtractPage(ctx, page.ImagePath, pending)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// Extraction failure loses this page's content but not the
			// file: the page contributes zero records.
			fileLogger.Warn().Int("page", page.PageNumber).Err(err).Msg("extraction failed, page yields no records")
			summary.PagesFailed++
			d.emit(eventCh, domain.StreamEvent{
				Type:       domain.EventPageFailed,
				File:       filename,
				PageNumber: page.PageNumber,
				Payload:    err.Error(),
				Timestamp:  time.Now(),
			})
			raw = nil
		}

		result := d.engine.Step(filename, page.PageNumber, raw, pending)
		pending = result.Pending
		collected = append(collected, result.Finalized...)

		if result.DroppedPending {
			summary.FragmentsDropped++
			d.emit(eventCh, domain.StreamEvent{
				Type:       domain.EventFragmentDropped,
				File:       filename,
				PageNumber: page.PageNumber,
				Timestamp:  time.Now(),
			})
		}
		if result.Pending != nil {
			d.emit(eventCh, domain.StreamEvent{
				Type:       domain.EventFragmentPending,
				File:       filename,
				PageNumber: page.PageNumber,
				Timestamp:  time.Now(),
			})
		}

		d.emit(eventCh, domain.StreamEvent{
			Type:       domain.EventPageComplete,
			File:       filename,
			PageNumber: page.PageNumber,
			Payload:    len(result.Finalized),
			Timestamp:  time.Now(),
		})
	}

	if pending != nil {
		// The file ended with a fragment still pending. There is no next
		// page to complete it, so it is dropped, never finalized.
		fileLogger.Warn().Msg("file ended with a pending fragment, discarding it")
		summary.FragmentsDropped++
		d.emit(eventCh, domain.StreamEvent{
			Type:       domain.EventFragmentDropped,
			File:       filename,
			PageNumber: len(pages),
			Timestamp:  time.Now(),
		})
	}

	if len(collected) == 0 {
		// Left out of the ledger on purpose so the next run retries it.
		fileLogger.Warn().Msg("no questions extracted, file will be retried on next run")
		summary.FilesEmpty++
		d.emit(eventCh, domain.StreamEvent{
			Type:      domain.EventFileEmpty,
			File:      filename,
			Timestamp: time.Now(),
		})
		return nil
	}

	if err := d.store.Append(collected); err != nil {
		fileLogger.Error().Err(err).Msg("store write failed, file left unmarked")
		summary.FilesAbandoned++
		d.emit(eventCh, domain.StreamEvent{
			Type:      domain.EventFileAbandoned,
			File:      filename,
			Payload:   err.Error(),
			Timestamp: time.Now(),
		})
		return nil
	}

	// Ledger entry only after the record set is durably stored; the
	// invariant is ledger membership implies all questions are in the
	// store. A failed ledger write leaves the stored records unmarked, so
	// the next run re-appends them; the file counts as abandoned rather
	// than processed so the summary flags the duplication risk.
	if err := d.ledger.MarkProcessed(filename); err != nil {
		fileLogger.Error().Err(err).Msg("ledger write failed, file will be reprocessed next run")
		summary.FilesAbandoned++
		summary.QuestionsAdded += len(collected)
		d.emit(eventCh, domain.StreamEvent{
			Type:      domain.EventFileAbandoned,
			File:      filename,
			Payload:   "questions stored but ledger write failed: " + err.Error(),
			Timestamp: time.Now(),
		})
		return nil
	}

	summary.FilesProcessed++
	summary.QuestionsAdded += len(collected)

	fileLogger.Info().Int("questions", len(collected)).Int("pages", len(pages)).Msg("file digitized")

	d.emit(eventCh, domain.StreamEvent{
		Type:      domain.EventFileComplete,
		File:      filename,
		Payload:   len(collected),
		Timestamp: time.Now(),
	})

	return nil
}

// emit safely emits an event to the channel
func (d *Driver) emit(eventCh chan<- domain.StreamEvent, event domain.StreamEvent) {
	if eventCh == nil {
		return
	}
	select {
	case eventCh <- event:
	default:
		d.logger.Warn().Str("event", string(event.Type)).Msg("event channel full, dropping event")
	}
}
