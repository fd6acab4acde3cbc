// Package retrieval ranks chunk embeddings against a query embedding.
package retrieval

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"docqa-service/internal/model"
)

var ErrInvalidVector = errors.New("invalid vector")

// Cosine returns the cosine similarity of a and b, clamped to [-1, 1].
func Cosine(a, b []float32) (float64, error) {
	if len(a) == 0 || len(b) == 0 {
		return 0, fmt.Errorf("%w: empty vector", ErrInvalidVector)
	}
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: length mismatch %d != %d", ErrInvalidVector, len(a), len(b))
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0, fmt.Errorf("%w: zero magnitude", ErrInvalidVector)
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	return math.Max(-1, math.Min(1, sim)), nil
}

// TopK scores every candidate against query and returns the best k, highest
// score first and ties in ascending index order. k <= 0 or k larger than the
// candidate count returns every candidate.
func TopK(query []float32, vectors [][]float32, texts []string, k int) (model.RetrievalResult, error) {
	if len(vectors) != len(texts) {
		return model.RetrievalResult{}, fmt.Errorf("%w: %d vectors for %d texts", ErrInvalidVector, len(vectors), len(texts))
	}

	scored := make([]model.ScoredChunk, 0, len(vectors))
	for i, v := range vectors {
		score, err := Cosine(query, v)
		if err != nil {
			return model.RetrievalResult{}, fmt.Errorf("score chunk %d: %w", i, err)
		}
		scored = append(scored, model.ScoredChunk{Index: i, Text: texts[i], Score: score})
	}

	Sort(scored)
	if k <= 0 || k > len(scored) {
		k = len(scored)
	}
	return model.RetrievalResult{Matches: scored[:k]}, nil
}

// Sort orders matches by descending score, breaking ties by ascending index.
func Sort(matches []model.ScoredChunk) {
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Index < matches[j].Index
	})
}
