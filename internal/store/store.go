// Package store persists pipeline state: the question store document, the
// processed-files ledger, and the embedding vector file. All three are
// single-writer resources; concurrent pipeline runs against the same paths
// are not supported.
package store

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/Albertdeng23/GEEQuestionBank/internal/domain"
)

// QuestionStore is the append-only question record store, persisted as one
// ordered JSON document. Appending loads the full document, extends it in
// memory, and rewrites it atomically.
type QuestionStore struct {
	path   string
	logger zerolog.Logger
}

// NewQuestionStore creates a store backed by the given file path
func NewQuestionStore(path string, logger zerolog.Logger) *QuestionStore {
	return &QuestionStore{
		path:   path,
		logger: logger.With().Str("component", "store").Logger(),
	}
}

// Load reads the full record sequence. A missing file is an empty store.
// Malformed content is treated as empty with a logged warning rather than
// a failure, so a corrupted document is overwritten on the next append.
func (s *QuestionStore) Load() ([]domain.QuestionRecord, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, domain.IOError("failed to read store document", err)
	}

	var records []domain.QuestionRecord
	if err := json.Unmarshal(data, &records); err != nil {
		s.logger.Warn().
			Str("path", s.path).
			Err(err).
			Msg("store document is not valid JSON, treating as empty")
		return nil, nil
	}

	return records, nil
}

// Append extends the store with the given records and rewrites the
// document. The rewrite goes through a temp file in the same directory and
// a rename, so readers never observe a half-written document.
func (s *QuestionStore) Append(records []domain.QuestionRecord) error {
	if len(records) == 0 {
		return nil
	}

	existing, err := s.Load()
	if err != nil {
		return err
	}

	combined := append(existing, records...)

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(combined); err != nil {
		return domain.StoreError("failed to encode store document", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return domain.IOError("failed to create result directory", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), "."+filepath.Base(s.path)+"-*")
	if err != nil {
		return domain.IOError("failed to create temp store file", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return domain.IOError("failed to write temp store file", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return domain.IOError("failed to close temp store file", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return domain.IOError("failed to replace store document", err)
	}

	s.logger.Debug().Int("appended", len(records)).Int("total", len(combined)).Msg("store document rewritten")

	return nil
}
