// Package search ranks stored questions by cosine similarity against a
// query embedding.
package search

import (
	"fmt"
	"math"
	"sort"

	"github.com/rs/zerolog"

	"github.com/Albertdeng23/GEEQuestionBank/internal/domain"
	"github.com/Albertdeng23/GEEQuestionBank/internal/store"
)

// Index pairs the question store with its precomputed embedding matrix.
// Row i of the matrix is the embedding of record i's searchable text.
type Index struct {
	records []domain.QuestionRecord
	vectors [][]float32
}

// Match is one ranked result. Similarity is rounded to 4 digits.
type Match struct {
	Record     domain.QuestionRecord `json:"record"`
	Similarity float64               `json:"similarity"`
}

// Load reads the store document and the vector file and validates that
// their counts agree. A mismatch means the vector file is stale and must
// be regenerated; serving wrong neighbors is worse than refusing to start.
func Load(storePath, vectorPath string, logger zerolog.Logger) (*Index, error) {
	qs := store.NewQuestionStore(storePath, logger)
	records, err := qs.Load()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, domain.ValidationError("question store is empty, run digitize first", nil)
	}

	vectors, err := store.ReadMatrix(vectorPath)
	if err != nil {
		return nil, err
	}

	if len(vectors) != len(records) {
		return nil, domain.ValidationError(
			fmt.Sprintf("vector file has %d rows but store has %d records, run embed again", len(vectors), len(records)), nil)
	}

	return &Index{records: records, vectors: vectors}, nil
}

// Count returns the number of indexed records.
func (ix *Index) Count() int {
	return len(ix.records)
}

// TopK returns the k most similar records to the query embedding, best
// first.
func (ix *Index) TopK(query []float32, k int) []Match {
	matches := make([]Match, 0, len(ix.records))
	for i, vec := range ix.vectors {
		sim := Cosine(query, vec)
		matches = append(matches, Match{
			Record:     ix.records[i],
			Similarity: math.Round(sim*10000) / 10000,
		})
	}

	sort.SliceStable(matches, func(a, b int) bool {
		return matches[a].Similarity > matches[b].Similarity
	})

	if k > len(matches) {
		k = len(matches)
	}
	return matches[:k]
}

// Cosine computes the cosine similarity of two vectors. Mismatched lengths
// and zero vectors score 0.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
