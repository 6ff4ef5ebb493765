package vlm

import (
	"encoding/json"
	"fmt"

	"github.com/Albertdeng23/GEEQuestionBank/internal/domain"
)

// extractionPrompt is the base instruction for a page with no pending
// fragment from the previous page.
const extractionPrompt = `You are an exam-paper digitization expert fluent in LaTeX and Markdown. Analyze the provided scanned exam page and extract every question into structured JSON.

Follow these instructions strictly:
1. IDENTIFY everything on the page: section headings (such as "Part I. Multiple Choice") and each individual question.
2. TRANSCRIBE with high fidelity:
   - All mathematical formulas in questions and options MUST be transcribed as LaTeX.
   - Tables inside a question stem or option MUST be converted to Markdown tables.
3. For EACH question, extract these fields:
   - "section_title": string, the heading of the enclosing question group, or null if it cannot be determined.
   - "question_number": string, the question's number, e.g. "1" or "17", or null.
   - "stem_text": string, the complete question stem with all formulas in LaTeX.
   - "options": JSON object mapping option letters to option text (LaTeX preserved); null for non-multiple-choice questions.
   - "image_description": string, a detailed description of any attached figure or diagram; use "none" if the question has no figure.
4. CROSS-PAGE HANDLING: if this page begins with the tail end of a question and a partially extracted question was provided above, merge them into one complete question and return the merged question FIRST.
5. OUTPUT: a single JSON array of question objects. Do not output any explanatory text or code fences.`

// continuationPreamble is prepended when the previous page ended with an
// incomplete question. The pending fragment is embedded as a JSON context
// block; the service is asked to complete it before extracting new
// questions.
const continuationPreamble = `CONTINUATION TASK: the last question on the previous page was incomplete. This is the partial information extracted so far:
%s

Analyze the current page, complete that question first, then continue extracting the other new questions on this page. Return the completed question together with the new questions in the standard JSON array format.`

// buildPrompt selects the base or continuation prompt. A non-nil pending
// fragment is serialized as-is; it carries no provenance yet.
func buildPrompt(pending *domain.QuestionRecord) (string, error) {
	if pending == nil {
		return extractionPrompt, nil
	}

	context, err := json.Marshal(pending)
	if err != nil {
		return "", domain.ExtractionError("failed to serialize pending fragment", err)
	}

	return fmt.Sprintf(continuationPreamble, string(context)) + "\n" + extractionPrompt, nil
}
