// Package chunker splits extracted text into fixed-size, non-overlapping word windows.
package chunker

import (
	"errors"
	"strings"

	"docqa-service/internal/model"
)

var (
	ErrEmptyText     = errors.New("text is empty")
	ErrInvalidWindow = errors.New("max words must be positive")
)

// Chunk splits text on whitespace into windows of at most maxWords words.
// Words inside a chunk are joined with a single space, so original
// whitespace runs and line breaks are not preserved.
func Chunk(documentID, text string, maxWords int) ([]model.Chunk, error) {
	if maxWords <= 0 {
		return nil, ErrInvalidWindow
	}
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil, ErrEmptyText
	}

	total := (len(words) + maxWords - 1) / maxWords
	chunks := make([]model.Chunk, 0, total)
	for start := 0; start < len(words); start += maxWords {
		end := start + maxWords
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, model.Chunk{
			DocumentID:  documentID,
			Index:       len(chunks),
			Text:        strings.Join(words[start:end], " "),
			TotalChunks: total,
		})
	}
	return chunks, nil
}

// WindowSize picks the words-per-chunk for a text of charCount characters.
// Longer documents get smaller windows so retrieval stays precise.
func WindowSize(charCount int) int {
	switch {
	case charCount <= 50_000:
		return 300
	case charCount <= 200_000:
		return 250
	case charCount <= 500_000:
		return 200
	default:
		return 150
	}
}

// Cap keeps at most max chunks. When chunks are dropped the survivors are
// re-stamped with the new total and truncated is true.
func Cap(chunks []model.Chunk, max int) (kept []model.Chunk, truncated bool) {
	if max <= 0 || len(chunks) <= max {
		return chunks, false
	}
	kept = make([]model.Chunk, max)
	copy(kept, chunks[:max])
	for i := range kept {
		kept[i].TotalChunks = max
	}
	return kept, true
}
