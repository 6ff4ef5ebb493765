package domain

import "context"

// Renderer defines the interface for turning a PDF into page images
type Renderer interface {
	// Render rasterizes every page of the PDF into a temporary image file
	Render(ctx context.Context, pdfPath string) ([]PageImage, error)

	// Release removes the temporary images produced for one PDF
	Release(pdfPath string) error

	// Cleanup removes all remaining temporary files
	Cleanup() error
}

// ExtractionClient defines the interface to the structured-extraction service.
// A non-nil pending fragment selects the continuation prompt, which asks the
// service to complete the fragment before extracting new questions.
type ExtractionClient interface {
	ExtractPage(ctx context.Context, imagePath string, pending *QuestionRecord) ([]QuestionRecord, error)
}

// Ledger tracks which source files have been fully digitized
type Ledger interface {
	HasProcessed(filename string) (bool, error)
	MarkProcessed(filename string) error
}

// Store is the append-only question record store
type Store interface {
	Load() ([]QuestionRecord, error)
	Append(records []QuestionRecord) error
}
