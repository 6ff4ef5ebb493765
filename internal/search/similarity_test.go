package search

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Albertdeng23/GEEQuestionBank/internal/domain"
	"github.com/Albertdeng23/GEEQuestionBank/internal/store"
)

func writeFixture(t *testing.T, records []domain.QuestionRecord, vectors [][]float32) (string, string) {
	t.Helper()
	dir := t.TempDir()
	storePath := filepath.Join(dir, "questions.json")
	vectorPath := filepath.Join(dir, "embeddings.npy")

	if len(records) > 0 {
		qs := store.NewQuestionStore(storePath, zerolog.Nop())
		require.NoError(t, qs.Append(records))
	}
	require.NoError(t, store.WriteMatrix(vectorPath, vectors))

	return storePath, vectorPath
}

func indexedRecord(stem string) domain.QuestionRecord {
	number := "1"
	return domain.QuestionRecord{
		QuestionNumber:   &number,
		StemText:         stem,
		ImageDescription: domain.NoFigure,
		SourceFile:       "exam2023.pdf",
		SourcePage:       1,
		SearchableText:   " 1: " + stem,
	}
}

func TestCosine(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 0}, []float32{1, 0}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"zero vector", []float32{0, 0}, []float32{1, 0}, 0},
		{"length mismatch", []float32{1, 0}, []float32{1}, 0},
		{"empty", nil, nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Cosine(tt.a, tt.b), 1e-9)
		})
	}
}

func TestLoadAndTopK(t *testing.T) {
	records := []domain.QuestionRecord{
		indexedRecord("求导数。"),
		indexedRecord("求积分。"),
		indexedRecord("解线性方程组。"),
	}
	vectors := [][]float32{
		{1, 0, 0},
		{0, 1, 0},
		{0.7071, 0.7071, 0},
	}

	storePath, vectorPath := writeFixture(t, records, vectors)

	index, err := Load(storePath, vectorPath, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, 3, index.Count())

	matches := index.TopK([]float32{1, 0, 0}, 2)
	require.Len(t, matches, 2)

	assert.Equal(t, "求导数。", matches[0].Record.StemText)
	assert.Equal(t, 1.0, matches[0].Similarity)
	assert.Equal(t, "解线性方程组。", matches[1].Record.StemText)
	assert.Equal(t, 0.7071, matches[1].Similarity, "similarity is rounded to 4 digits")
}

func TestTopKClampsToIndexSize(t *testing.T) {
	records := []domain.QuestionRecord{indexedRecord("唯一的题。")}
	storePath, vectorPath := writeFixture(t, records, [][]float32{{1, 0}})

	index, err := Load(storePath, vectorPath, zerolog.Nop())
	require.NoError(t, err)

	matches := index.TopK([]float32{1, 0}, 10)
	assert.Len(t, matches, 1)
}

func TestLoadEmptyStore(t *testing.T) {
	storePath, vectorPath := writeFixture(t, nil, nil)

	_, err := Load(storePath, vectorPath, zerolog.Nop())
	require.Error(t, err)
	assert.True(t, domain.IsType(err, domain.ErrorTypeValidation))
}

func TestLoadRejectsStaleVectors(t *testing.T) {
	records := []domain.QuestionRecord{
		indexedRecord("第一题。"),
		indexedRecord("第二题。"),
	}
	storePath, vectorPath := writeFixture(t, records, [][]float32{{1, 0}})

	_, err := Load(storePath, vectorPath, zerolog.Nop())
	require.Error(t, err)
	assert.True(t, domain.IsType(err, domain.ErrorTypeValidation))
	assert.Contains(t, err.Error(), "run embed again")
}
