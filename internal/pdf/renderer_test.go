package pdf

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Albertdeng23/GEEQuestionBank/internal/domain"
)

func TestRenderRejectsInvalidInput(t *testing.T) {
	dir := t.TempDir()
	r := NewRenderer(300, filepath.Join(dir, "temp"), zerolog.Nop())

	_, err := r.Render(context.Background(), "")
	require.Error(t, err)
	assert.True(t, domain.IsType(err, domain.ErrorTypeValidation))

	_, err = r.Render(context.Background(), filepath.Join(dir, "absent.pdf"))
	require.Error(t, err)
	assert.True(t, domain.IsType(err, domain.ErrorTypeValidation))
}

func TestRenderRejectsInvalidDPI(t *testing.T) {
	dir := t.TempDir()
	pdfPath := filepath.Join(dir, "exam.pdf")
	require.NoError(t, os.WriteFile(pdfPath, []byte("%PDF-1.4"), 0o644))

	r := NewRenderer(10, filepath.Join(dir, "temp"), zerolog.Nop())

	_, err := r.Render(context.Background(), pdfPath)
	require.Error(t, err)
	assert.True(t, domain.IsType(err, domain.ErrorTypeValidation))
}

func TestRenderRejectsCorruptPDF(t *testing.T) {
	dir := t.TempDir()
	pdfPath := filepath.Join(dir, "broken.pdf")
	require.NoError(t, os.WriteFile(pdfPath, []byte("not a pdf at all"), 0o644))

	r := NewRenderer(300, filepath.Join(dir, "temp"), zerolog.Nop())

	_, err := r.Render(context.Background(), pdfPath)
	require.Error(t, err)
	assert.True(t, domain.IsType(err, domain.ErrorTypeRender))
}

func TestReleaseUnknownFileIsNoop(t *testing.T) {
	r := NewRenderer(300, t.TempDir(), zerolog.Nop())
	assert.NoError(t, r.Release("/never/rendered.pdf"))
}

func TestCleanupRemovesTrackedDirs(t *testing.T) {
	tempRoot := t.TempDir()
	r := NewRenderer(300, tempRoot, zerolog.Nop())

	tracked := filepath.Join(tempRoot, "exam-123")
	require.NoError(t, os.MkdirAll(tracked, 0o755))
	r.tempDirs["/input/exam.pdf"] = tracked

	require.NoError(t, r.Cleanup())

	_, err := os.Stat(tracked)
	assert.True(t, os.IsNotExist(err))
	assert.Empty(t, r.tempDirs)
}
