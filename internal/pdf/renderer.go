package pdf

import (
	"context"
	"fmt"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/rs/zerolog"

	"github.com/Albertdeng23/GEEQuestionBank/internal/domain"
)

// Renderer implements PDF to image conversion using go-fitz. Each Render
// call places its page images in a dedicated directory under tempRoot so
// one file's images can be released independently of the rest of the batch.
type Renderer struct {
	dpi      int
	tempRoot string
	tempDirs map[string]string // pdf path -> temp dir
	logger   zerolog.Logger
}

// NewRenderer creates a new PDF renderer instance
func NewRenderer(dpi int, tempRoot string, logger zerolog.Logger) *Renderer {
	return &Renderer{
		dpi:      dpi,
		tempRoot: tempRoot,
		tempDirs: make(map[string]string),
		logger:   logger.With().Str("component", "renderer").Logger(),
	}
}

// Render rasterizes every page of the PDF to a PNG file at the configured
// DPI and returns the page images in page order. Any failure abandons the
// whole file: no partial page set is returned.
func (r *Renderer) Render(ctx context.Context, pdfPath string) ([]domain.PageImage, error) {
	validator := NewValidator()
	if err := validator.ValidatePDFPath(pdfPath); err != nil {
		return nil, err
	}
	if err := validator.ValidateDPI(r.dpi); err != nil {
		return nil, err
	}

	doc, err := fitz.New(pdfPath)
	if err != nil {
		return nil, domain.RenderError("failed to open PDF", err)
	}
	defer doc.Close()

	if err := os.MkdirAll(r.tempRoot, 0755); err != nil {
		return nil, domain.IOError("failed to create temp root", err)
	}

	baseName := strings.TrimSuffix(filepath.Base(pdfPath), filepath.Ext(pdfPath))
	tempDir, err := os.MkdirTemp(r.tempRoot, baseName+"-*")
	if err != nil {
		return nil, domain.IOError("failed to create temp directory", err)
	}
	r.tempDirs[pdfPath] = tempDir

	pageCount := doc.NumPage()
	if pageCount == 0 {
		return nil, domain.RenderError("PDF has no pages", nil)
	}

	images := make([]domain.PageImage, 0, pageCount)

	for pageNum := 0; pageNum < pageCount; pageNum++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		img, err := doc.ImageDPI(pageNum, float64(r.dpi))
		if err != nil {
			return nil, domain.RenderError(fmt.Sprintf("failed to rasterize page %d", pageNum+1), err)
		}

		outputPath := filepath.Join(tempDir, fmt.Sprintf("page_%03d.png", pageNum+1))
		outputFile, err := os.Create(outputPath)
		if err != nil {
			return nil, domain.IOError(fmt.Sprintf("failed to create output file for page %d", pageNum+1), err)
		}

		err = png.Encode(outputFile, img)
		outputFile.Close()
		if err != nil {
			return nil, domain.RenderError(fmt.Sprintf("failed to encode page %d as PNG", pageNum+1), err)
		}

		bounds := img.Bounds()
		images = append(images, domain.PageImage{
			PageNumber: pageNum + 1,
			ImagePath:  outputPath,
			Width:      bounds.Dx(),
			Height:     bounds.Dy(),
		})
	}

	r.logger.Debug().Str("file", filepath.Base(pdfPath)).Int("pages", pageCount).Msg("rendered pages")

	return images, nil
}

// Release removes the temporary images produced for one PDF.
func (r *Renderer) Release(pdfPath string) error {
	tempDir, ok := r.tempDirs[pdfPath]
	if !ok {
		return nil
	}
	delete(r.tempDirs, pdfPath)

	if err := os.RemoveAll(tempDir); err != nil {
		return domain.IOError("failed to remove temp directory", err)
	}
	return nil
}

// Cleanup removes all remaining temporary files.
func (r *Renderer) Cleanup() error {
	var errs []error

	for path, dir := range r.tempDirs {
		if err := os.RemoveAll(dir); err != nil {
			errs = append(errs, err)
		}
		delete(r.tempDirs, path)
	}

	if len(errs) > 0 {
		return fmt.Errorf("cleanup errors: %v", errs)
	}

	return nil
}
