package domain

import "time"

// NoFigure is the sentinel used in ImageDescription when a question has no
// attached figure.
const NoFigure = "none"

// QuestionRecord is one digitized exam question. Records returned by the
// extraction service carry only the first five fields; provenance and
// SearchableText are attached at finalization, once the record is known to
// be complete.
type QuestionRecord struct {
	SectionTitle     *string           `json:"section_title"`
	QuestionNumber   *string           `json:"question_number"`
	StemText         string            `json:"stem_text"`
	Options          map[string]string `json:"options"`
	ImageDescription string            `json:"image_description"`

	SourceFile     string `json:"source_pdf,omitempty"`
	SourcePage     int    `json:"source_page,omitempty"`
	SearchableText string `json:"searchable_text,omitempty"`
}

// Finalized reports whether provenance has been attached.
func (q *QuestionRecord) Finalized() bool {
	return q.SourceFile != "" && q.SourcePage >= 1
}

// Document represents the source PDF file being processed
type Document struct {
	FilePath   string
	TotalPages int
}

// PageImage represents a single rendered PDF page
type PageImage struct {
	PageNumber int
	ImagePath  string // Path to temporary PNG file
	Width      int
	Height     int
}

// EventType represents the type of stream event
type EventType string

const (
	EventRunStart        EventType = "run_start"
	EventFileStart       EventType = "file_start"
	EventFileSkipped     EventType = "file_skipped"
	EventPageProcessing  EventType = "page_processing"
	EventPageComplete    EventType = "page_complete"
	EventPageFailed      EventType = "page_failed"
	EventFragmentPending EventType = "fragment_pending"
	EventFragmentDropped EventType = "fragment_dropped"
	EventFileComplete    EventType = "file_complete"
	EventFileEmpty       EventType = "file_empty"
	EventFileAbandoned   EventType = "file_abandoned"
	EventRunComplete     EventType = "run_complete"
)

// StreamEvent represents an event emitted during pipeline processing
type StreamEvent struct {
	Type       EventType   `json:"type"`
	File       string      `json:"file,omitempty"`
	PageNumber int         `json:"page_number,omitempty"`
	Payload    interface{} `json:"payload,omitempty"` // Status message or count
	Timestamp  time.Time   `json:"timestamp"`
}

// RunSummary contains metadata about one batch execution
type RunSummary struct {
	RunID            string
	FilesProcessed   int
	FilesSkipped     int
	FilesAbandoned   int
	FilesEmpty       int
	QuestionsAdded   int
	PagesFailed      int
	FragmentsDropped int
	Duration         time.Duration
}
