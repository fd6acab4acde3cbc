package model

import "fmt"

// Chunk is a contiguous word window of a document's text.
type Chunk struct {
	DocumentID  string `json:"document_id"`
	Index       int    `json:"index"`
	Text        string `json:"text"`
	TotalChunks int    `json:"total_chunks"`
}

// RecordID is the persisted identifier of a chunk: "<documentId>_chunk_<index>".
func (c Chunk) RecordID() string {
	return ChunkRecordID(c.DocumentID, c.Index)
}

func ChunkRecordID(documentID string, index int) string {
	return fmt.Sprintf("%s_chunk_%d", documentID, index)
}

type ScoredChunk struct {
	Index int     `json:"index"`
	Text  string  `json:"text"`
	Score float64 `json:"score"`
}

// RetrievalResult lists matches by descending score, ties by ascending index.
type RetrievalResult struct {
	Matches []ScoredChunk `json:"matches"`
}

func (r RetrievalResult) Texts() []string {
	out := make([]string, 0, len(r.Matches))
	for _, m := range r.Matches {
		out = append(out, m.Text)
	}
	return out
}
