package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Albertdeng23/GEEQuestionBank/internal/domain"
)

func testRecord(stem string, page int) domain.QuestionRecord {
	section := "一、选择题"
	number := "1"
	return domain.QuestionRecord{
		SectionTitle:     &section,
		QuestionNumber:   &number,
		StemText:         stem,
		Options:          map[string]string{"A": "甲", "B": "乙"},
		ImageDescription: domain.NoFigure,
		SourceFile:       "exam2023.pdf",
		SourcePage:       page,
		SearchableText:   "一、选择题 1: " + stem,
	}
}

func TestStoreLoadMissingFile(t *testing.T) {
	s := NewQuestionStore(filepath.Join(t.TempDir(), "questions.json"), zerolog.Nop())

	records, err := s.Load()
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestStoreAppendAndLoad(t *testing.T) {
	s := NewQuestionStore(filepath.Join(t.TempDir(), "questions.json"), zerolog.Nop())

	first := []domain.QuestionRecord{testRecord("第一题。", 1), testRecord("第二题。", 1)}
	require.NoError(t, s.Append(first))

	second := []domain.QuestionRecord{testRecord("第三题。", 2)}
	require.NoError(t, s.Append(second))

	records, err := s.Load()
	require.NoError(t, err)
	require.Len(t, records, 3)

	// Append preserves insertion order across rewrites.
	assert.Equal(t, "第一题。", records[0].StemText)
	assert.Equal(t, "第二题。", records[1].StemText)
	assert.Equal(t, "第三题。", records[2].StemText)

	assert.Equal(t, "exam2023.pdf", records[2].SourceFile)
	assert.Equal(t, 2, records[2].SourcePage)
}

func TestStoreAppendNothingIsNoop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "questions.json")
	s := NewQuestionStore(path, zerolog.Nop())

	require.NoError(t, s.Append(nil))

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err), "empty append must not create the document")
}

func TestStoreCorruptDocumentTreatedAsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "questions.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	s := NewQuestionStore(path, zerolog.Nop())

	records, err := s.Load()
	require.NoError(t, err)
	assert.Empty(t, records)

	// The next append overwrites the corrupt content with a valid document.
	require.NoError(t, s.Append([]domain.QuestionRecord{testRecord("新题。", 1)}))

	records, err = s.Load()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "新题。", records[0].StemText)
}

func TestStoreDocumentKeepsUnicodeReadable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "questions.json")
	s := NewQuestionStore(path, zerolog.Nop())

	rec := testRecord("设 a<b 且 b>c。", 1)
	require.NoError(t, s.Append([]domain.QuestionRecord{rec}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	assert.Contains(t, string(data), "设 a<b 且 b>c。", "HTML escaping must stay off")
	assert.Contains(t, string(data), "source_pdf")
	assert.Contains(t, string(data), "searchable_text")
}
