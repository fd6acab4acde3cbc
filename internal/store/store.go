// Package store persists chunk embeddings per document so a document is only
// ingested once.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"docqa-service/internal/model"
)

var (
	ErrUpsert = errors.New("store upsert failed")
	ErrQuery  = errors.New("store query failed")
	ErrPurge  = errors.New("store purge failed")
)

const defaultBatchSize = 100

// Store is a persisted vector index keyed by document URL.
type Store interface {
	// Exists reports whether the document was ingested before. Lookup
	// errors are treated as absence.
	Exists(ctx context.Context, documentID string) bool
	// Upsert writes the chunks together with notes, the caveats raised while
	// ingesting the document.
	Upsert(ctx context.Context, documentID string, chunks []model.Chunk, vectors [][]float32, notes []string) error
	// Notes returns the caveats recorded by Upsert. Lookup errors yield nil.
	Notes(ctx context.Context, documentID string) []string
	Query(ctx context.Context, documentID string, vector []float32, k int) (model.RetrievalResult, error)
	Purge(ctx context.Context, documentID string) error
}

// Record is one chunk as written to a backend.
type Record struct {
	ID          string
	Vector      []float32
	Text        string
	PDFURL      string
	ChunkIndex  int
	TotalChunks int
	CreatedAt   string
}

// BuildRecords pairs chunks with their vectors, stamping every record with the
// same creation time.
func BuildRecords(documentID string, chunks []model.Chunk, vectors [][]float32, now time.Time) ([]Record, error) {
	if len(chunks) != len(vectors) {
		return nil, fmt.Errorf("%w: %d chunks but %d vectors", ErrUpsert, len(chunks), len(vectors))
	}
	createdAt := now.UTC().Format(time.RFC3339)
	records := make([]Record, len(chunks))
	for i, c := range chunks {
		records[i] = Record{
			ID:          model.ChunkRecordID(documentID, c.Index),
			Vector:      vectors[i],
			Text:        c.Text,
			PDFURL:      documentID,
			ChunkIndex:  c.Index,
			TotalChunks: c.TotalChunks,
			CreatedAt:   createdAt,
		}
	}
	return records, nil
}

// batchRanges splits n items into [start, end) windows of at most size.
func batchRanges(n, size int) [][2]int {
	if size <= 0 {
		size = defaultBatchSize
	}
	var out [][2]int
	for start := 0; start < n; start += size {
		out = append(out, [2]int{start, min(start+size, n)})
	}
	return out
}

func encodeNotes(notes []string) string {
	if len(notes) == 0 {
		return ""
	}
	raw, err := json.Marshal(notes)
	if err != nil {
		return ""
	}
	return string(raw)
}

func decodeNotes(raw string) []string {
	if raw == "" {
		return nil
	}
	var notes []string
	if err := json.Unmarshal([]byte(raw), &notes); err != nil {
		return nil
	}
	return notes
}
