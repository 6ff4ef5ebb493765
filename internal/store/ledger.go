package store

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/Albertdeng23/GEEQuestionBank/internal/domain"
)

// Ledger is the record of which source files have been fully digitized.
// One file name per line, append-only, no removal operation. A name is
// written only after the file's full record set has been stored, so a name
// in the ledger implies all of its questions are in the store.
type Ledger struct {
	path   string
	logger zerolog.Logger
}

// NewLedger creates a ledger backed by the given file path
func NewLedger(path string, logger zerolog.Logger) *Ledger {
	return &Ledger{
		path:   path,
		logger: logger.With().Str("component", "ledger").Logger(),
	}
}

// Processed returns the set of file names already digitized.
func (l *Ledger) Processed() (map[string]struct{}, error) {
	file, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]struct{}{}, nil
		}
		return nil, domain.IOError("failed to open ledger", err)
	}
	defer file.Close()

	processed := make(map[string]struct{})
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		name := strings.TrimSpace(scanner.Text())
		if name != "" {
			processed[name] = struct{}{}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, domain.IOError("failed to read ledger", err)
	}

	return processed, nil
}

// HasProcessed reports whether a file name appears in the ledger.
func (l *Ledger) HasProcessed(filename string) (bool, error) {
	processed, err := l.Processed()
	if err != nil {
		return false, err
	}
	_, ok := processed[filename]
	return ok, nil
}

// MarkProcessed appends a file name to the ledger.
func (l *Ledger) MarkProcessed(filename string) error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return domain.IOError("failed to create result directory", err)
	}

	file, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return domain.IOError("failed to open ledger for append", err)
	}
	defer file.Close()

	if _, err := file.WriteString(filename + "\n"); err != nil {
		return domain.IOError("failed to append to ledger", err)
	}

	l.logger.Debug().Str("file", filename).Msg("marked as processed")

	return nil
}
