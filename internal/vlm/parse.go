package vlm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Albertdeng23/GEEQuestionBank/internal/domain"
)

// parseQuestions extracts and validates the question array from the model
// output. Models occasionally wrap the JSON in code fences or surround it
// with prose, so the array is located by its bracket window before
// unmarshaling. Any shape mismatch is an extraction failure; the page then
// contributes zero records.
func parseQuestions(content string) ([]domain.QuestionRecord, error) {
	cleaned := stripCodeFences(content)

	start := strings.Index(cleaned, "[")
	end := strings.LastIndex(cleaned, "]")
	if start == -1 || end == -1 || end <= start {
		return nil, domain.ExtractionError("no JSON array found in response", nil)
	}

	var raw []rawQuestion
	if err := json.Unmarshal([]byte(cleaned[start:end+1]), &raw); err != nil {
		return nil, domain.ExtractionError("response is not a valid question array", err)
	}

	records := make([]domain.QuestionRecord, 0, len(raw))
	for i, q := range raw {
		record, err := q.toRecord()
		if err != nil {
			return nil, domain.ExtractionError(fmt.Sprintf("question %d has invalid shape", i), err)
		}
		records = append(records, record)
	}

	return records, nil
}

// rawQuestion mirrors the service's response shape. Optional fields keep
// explicit null semantics instead of implicit missing-key semantics.
type rawQuestion struct {
	SectionTitle     *string           `json:"section_title"`
	QuestionNumber   *string           `json:"question_number"`
	StemText         string            `json:"stem_text"`
	Options          map[string]string `json:"options"`
	ImageDescription string            `json:"image_description"`
}

func (q rawQuestion) toRecord() (domain.QuestionRecord, error) {
	if strings.TrimSpace(q.StemText) == "" {
		return domain.QuestionRecord{}, fmt.Errorf("stem_text is empty")
	}

	imageDescription := q.ImageDescription
	if strings.TrimSpace(imageDescription) == "" {
		imageDescription = domain.NoFigure
	}

	return domain.QuestionRecord{
		SectionTitle:     q.SectionTitle,
		QuestionNumber:   q.QuestionNumber,
		StemText:         q.StemText,
		Options:          q.Options,
		ImageDescription: imageDescription,
	}, nil
}

// stripCodeFences removes Markdown code fences around the payload
func stripCodeFences(content string) string {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	return strings.TrimSpace(content)
}
