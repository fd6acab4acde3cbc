package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"time"

	"docqa-service/internal/model"
	"docqa-service/internal/retrieval"
)

type documentRepository interface {
	GetByURLHash(urlHash string) (*model.StoredDocument, error)
	CreateWithChunks(doc *model.StoredDocument, chunks []model.StoredChunk, batchSize int) error
	DeleteByURLHash(urlHash string) (int64, error)
}

type chunkRepository interface {
	ListByURLHash(urlHash string) ([]model.StoredChunk, error)
}

// SQLStore keeps chunks and their embeddings in MySQL and ranks them in
// process.
type SQLStore struct {
	docs      documentRepository
	chunks    chunkRepository
	batchSize int
	now       func() time.Time
}

func NewSQLStore(docs documentRepository, chunks chunkRepository, batchSize int) *SQLStore {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &SQLStore{docs: docs, chunks: chunks, batchSize: batchSize, now: time.Now}
}

func (s *SQLStore) Exists(_ context.Context, documentID string) bool {
	doc, err := s.docs.GetByURLHash(URLHash(documentID))
	if err != nil {
		log.Printf("store: sql existence check failed for %s: %v", documentID, err)
		return false
	}
	return doc != nil
}

func (s *SQLStore) Upsert(_ context.Context, documentID string, chunks []model.Chunk, vectors [][]float32, notes []string) error {
	records, err := BuildRecords(documentID, chunks, vectors, s.now())
	if err != nil {
		return err
	}

	hash := URLHash(documentID)
	createdAt := s.now()
	rows := make([]model.StoredChunk, len(records))
	for i, rec := range records {
		rows[i] = model.StoredChunk{
			RecordID:    model.ChunkRecordID(hash, rec.ChunkIndex),
			URLHash:     hash,
			PDFURL:      rec.PDFURL,
			ChunkIndex:  rec.ChunkIndex,
			TotalChunks: rec.TotalChunks,
			Content:     rec.Text,
			CreatedAt:   createdAt,
		}
		rows[i].SetEmbedding(rec.Vector)
	}

	doc := &model.StoredDocument{
		URLHash:     hash,
		URL:         documentID,
		TotalChunks: len(rows),
		Notes:       encodeNotes(notes),
		CreatedAt:   createdAt,
	}
	if err := s.docs.CreateWithChunks(doc, rows, s.batchSize); err != nil {
		return fmt.Errorf("%w: %v", ErrUpsert, err)
	}
	return nil
}

func (s *SQLStore) Notes(_ context.Context, documentID string) []string {
	doc, err := s.docs.GetByURLHash(URLHash(documentID))
	if err != nil {
		log.Printf("store: sql notes lookup failed for %s: %v", documentID, err)
		return nil
	}
	if doc == nil {
		return nil
	}
	return decodeNotes(doc.Notes)
}

func (s *SQLStore) Query(_ context.Context, documentID string, vector []float32, k int) (model.RetrievalResult, error) {
	rows, err := s.chunks.ListByURLHash(URLHash(documentID))
	if err != nil {
		return model.RetrievalResult{}, fmt.Errorf("%w: %v", ErrQuery, err)
	}

	vectors := make([][]float32, len(rows))
	texts := make([]string, len(rows))
	for i := range rows {
		vectors[i] = rows[i].EmbeddingVector()
		texts[i] = rows[i].Content
	}
	res, err := retrieval.TopK(vector, vectors, texts, k)
	if err != nil {
		return model.RetrievalResult{}, fmt.Errorf("%w: %v", ErrQuery, err)
	}
	for i := range res.Matches {
		res.Matches[i].Index = rows[res.Matches[i].Index].ChunkIndex
	}
	return res, nil
}

func (s *SQLStore) Purge(_ context.Context, documentID string) error {
	removed, err := s.docs.DeleteByURLHash(URLHash(documentID))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPurge, err)
	}
	log.Printf("store: purged %d sql chunks of %s", removed, documentID)
	return nil
}

// URLHash is the fixed-width key signed URLs are stored under.
func URLHash(documentID string) string {
	sum := sha256.Sum256([]byte(documentID))
	return hex.EncodeToString(sum[:])
}
