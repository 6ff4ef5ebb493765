// Package continuity stitches question records across page boundaries.
// A question that starts at the bottom of one page and continues on the
// next arrives from the extraction service as two partial records; the
// engine detects the truncated tail, carries it as a pending fragment, and
// accepts the next page's leading record as the merged completion.
package continuity

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/Albertdeng23/GEEQuestionBank/internal/domain"
)

// choiceMarkers flag a multiple-choice stem cut off before its options:
// a marker in the stem tail with no options field means the option block
// landed on the next page.
var choiceMarkers = []string{"A.", "B.", "C.", "D."}

// danglingSuffixes are trailing tokens that signal the sentence continues
// on the next page. The set is kept exactly as proven in production use;
// it is a heuristic, not a parser, and both false positives and false
// negatives are accepted.
var danglingSuffixes = []string{"，", ",", "：", ":", "如图所示"}

// stemTailRunes is how far back the choice-marker check looks.
const stemTailRunes = 10

// Engine decides per-page record completeness and merges continuations.
type Engine struct {
	logger zerolog.Logger
}

// NewEngine creates a continuity engine
func NewEngine(logger zerolog.Logger) *Engine {
	return &Engine{
		logger: logger.With().Str("component", "continuity").Logger(),
	}
}

// StepResult is the outcome of one per-page step.
type StepResult struct {
	// Finalized records carry provenance and searchable text and are ready
	// for the store, in page order.
	Finalized []domain.QuestionRecord

	// Pending is the page's trailing record when judged incomplete; it must
	// be fed into the next page's step. Nil when the page ended cleanly.
	Pending *domain.QuestionRecord

	// DroppedPending is true when a fragment carried into this step was
	// lost because the page produced no records.
	DroppedPending bool
}

// Step consumes one page's candidate records together with the pending
// fragment from the previous page.
//
// When a fragment is pending and the page produced records, the first
// record is the service's merged completion of the fragment (requested via
// the continuation prompt) and is finalized directly. When a fragment is
// pending but the page produced nothing, the fragment is dropped: losing
// one question is preferred over a cross-page retry mechanism.
//
// Only the last candidate of a page is tested for incompleteness; earlier
// candidates cannot have been cut off by the page boundary.
func (e *Engine) Step(file string, page int, raw []domain.QuestionRecord, pending *domain.QuestionRecord) StepResult {
	var result StepResult
	var candidates []domain.QuestionRecord

	if pending != nil {
		if len(raw) == 0 {
			e.logger.Warn().
				Str("file", file).
				Int("page", page).
				Msg("page yielded no records, dropping pending fragment")
			result.DroppedPending = true
		} else {
			result.Finalized = append(result.Finalized, finalize(raw[0], file, page))
			candidates = raw[1:]
		}
	} else {
		candidates = raw
	}

	if n := len(candidates); n > 0 && IsIncomplete(candidates[n-1]) {
		fragment := candidates[n-1]
		candidates = candidates[:n-1]
		result.Pending = &fragment
		e.logger.Warn().
			Str("file", file).
			Int("page", page).
			Msg("last record on page looks incomplete, holding as pending fragment")
	}

	for _, c := range candidates {
		result.Finalized = append(result.Finalized, finalize(c, file, page))
	}

	return result
}

// IsIncomplete judges whether a record was truncated by a page boundary.
func IsIncomplete(q domain.QuestionRecord) bool {
	if q.Options == nil {
		tail := stemTail(q.StemText, stemTailRunes)
		for _, marker := range choiceMarkers {
			if strings.Contains(tail, marker) {
				return true
			}
		}
	}

	for _, suffix := range danglingSuffixes {
		if strings.HasSuffix(q.StemText, suffix) {
			return true
		}
	}

	return false
}

// finalize attaches provenance and derived search text, making the record
// eligible for persistent storage.
func finalize(q domain.QuestionRecord, file string, page int) domain.QuestionRecord {
	q.SourceFile = file
	q.SourcePage = page
	q.SearchableText = SearchableText(q)
	return q
}

// SearchableText derives the concatenation consumed by the embedding step.
func SearchableText(q domain.QuestionRecord) string {
	var section, number string
	if q.SectionTitle != nil {
		section = *q.SectionTitle
	}
	if q.QuestionNumber != nil {
		number = *q.QuestionNumber
	}
	return fmt.Sprintf("%s %s: %s", section, number, q.StemText)
}

// stemTail returns the last n runes of s. Stems mix CJK text with LaTeX,
// so the window is counted in runes, not bytes.
func stemTail(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[len(runes)-n:])
}
