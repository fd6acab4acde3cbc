package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	chromago "github.com/amikos-tech/chroma-go/pkg/api/v2"
	"github.com/amikos-tech/chroma-go/pkg/embeddings"

	"docqa-service/internal/model"
	"docqa-service/internal/retrieval"
)

const (
	metaText        = "text"
	metaPDFURL      = "pdfUrl"
	metaChunkIndex  = "chunkIndex"
	metaTotalChunks = "totalChunks"
	metaCreatedAt   = "createdAt"
	metaNotes       = "notes"
)

// The client has no Include constant for distances.
const includeDistances chromago.Include = "distances"

// ChromaStore keeps every document's chunks in one cosine-space collection,
// filtered per document by the pdfUrl metadata field.
type ChromaStore struct {
	collection chromago.Collection
	batchSize  int
	now        func() time.Time
}

func NewChromaStore(collection chromago.Collection, batchSize int) *ChromaStore {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &ChromaStore{collection: collection, batchSize: batchSize, now: time.Now}
}

// Exists runs a metadata-only lookup limited to one record.
func (s *ChromaStore) Exists(ctx context.Context, documentID string) bool {
	res, err := s.collection.Get(ctx,
		chromago.WithWhereGet(chromago.EqString(metaPDFURL, documentID)),
		chromago.WithLimitGet(1),
	)
	if err != nil {
		log.Printf("store: chroma existence check failed for %s: %v", documentID, err)
		return false
	}
	return len(res.GetIDs()) > 0
}

// Upsert adds records batch by batch and stops at the first failed batch.
// Notes ride along in every record's metadata.
func (s *ChromaStore) Upsert(ctx context.Context, documentID string, chunks []model.Chunk, vectors [][]float32, notes []string) error {
	records, err := BuildRecords(documentID, chunks, vectors, s.now())
	if err != nil {
		return err
	}
	encodedNotes := encodeNotes(notes)

	for n, r := range batchRanges(len(records), s.batchSize) {
		batch := records[r[0]:r[1]]
		ids := make([]chromago.DocumentID, len(batch))
		texts := make([]string, len(batch))
		embs := make([]embeddings.Embedding, len(batch))
		metas := make([]chromago.DocumentMetadata, len(batch))
		for i, rec := range batch {
			ids[i] = chromago.DocumentID(rec.ID)
			texts[i] = rec.Text
			embs[i] = embeddings.NewEmbeddingFromFloat32(rec.Vector)
			metas[i] = chromago.NewDocumentMetadata(
				chromago.NewStringAttribute(metaText, rec.Text),
				chromago.NewStringAttribute(metaPDFURL, rec.PDFURL),
				chromago.NewIntAttribute(metaChunkIndex, int64(rec.ChunkIndex)),
				chromago.NewIntAttribute(metaTotalChunks, int64(rec.TotalChunks)),
				chromago.NewStringAttribute(metaCreatedAt, rec.CreatedAt),
			)
			if encodedNotes != "" {
				metas[i].SetString(metaNotes, encodedNotes)
			}
		}

		if err := s.collection.Add(ctx,
			chromago.WithIDs(ids...),
			chromago.WithTexts(texts...),
			chromago.WithEmbeddings(embs...),
			chromago.WithMetadatas(metas...),
		); err != nil {
			return fmt.Errorf("%w: batch %d of %s: %v", ErrUpsert, n, documentID, err)
		}
	}
	return nil
}

func (s *ChromaStore) Notes(ctx context.Context, documentID string) []string {
	res, err := s.collection.Get(ctx,
		chromago.WithWhereGet(chromago.EqString(metaPDFURL, documentID)),
		chromago.WithLimitGet(1),
		chromago.WithIncludeGet(chromago.IncludeMetadatas),
	)
	if err != nil {
		log.Printf("store: chroma notes lookup failed for %s: %v", documentID, err)
		return nil
	}
	metas := res.GetMetadatas()
	if len(metas) == 0 || metas[0] == nil {
		return nil
	}
	raw, _ := metas[0].GetString(metaNotes)
	return decodeNotes(raw)
}

func (s *ChromaStore) Query(ctx context.Context, documentID string, vector []float32, k int) (model.RetrievalResult, error) {
	if k <= 0 {
		k = 1
	}
	res, err := s.collection.Query(ctx,
		chromago.WithQueryEmbeddings(embeddings.NewEmbeddingFromFloat32(vector)),
		chromago.WithNResults(k),
		chromago.WithWhereQuery(chromago.EqString(metaPDFURL, documentID)),
		chromago.WithIncludeQuery(chromago.IncludeDocuments, chromago.IncludeMetadatas, includeDistances),
	)
	if err != nil {
		return model.RetrievalResult{}, fmt.Errorf("%w: %v", ErrQuery, err)
	}

	docGroups := res.GetDocumentsGroups()
	metaGroups := res.GetMetadatasGroups()
	distGroups := res.GetDistancesGroups()
	if len(docGroups) == 0 {
		return model.RetrievalResult{}, nil
	}

	scored := len(distGroups) > 0 && len(distGroups[0]) == len(docGroups[0])
	matches := make([]model.ScoredChunk, 0, len(docGroups[0]))
	for i, doc := range docGroups[0] {
		match := model.ScoredChunk{Index: i, Text: doc.ContentString()}
		if len(metaGroups) > 0 && i < len(metaGroups[0]) {
			meta := metadataMap(metaGroups[0][i])
			if idx, ok := meta[metaChunkIndex].(float64); ok {
				match.Index = int(idx)
			}
			if text, ok := meta[metaText].(string); ok && match.Text == "" {
				match.Text = text
			}
		}
		if scored {
			match.Score = scoreFromDistance(float64(distGroups[0][i]))
		}
		matches = append(matches, match)
	}

	// The index already ranks results; re-sort so ties follow chunk order.
	// Without distances the server order is the only ranking there is.
	if scored {
		retrieval.Sort(matches)
	}
	return model.RetrievalResult{Matches: matches}, nil
}

// Purge enumerates the document's record ids, then deletes them in batches.
func (s *ChromaStore) Purge(ctx context.Context, documentID string) error {
	res, err := s.collection.Get(ctx, chromago.WithWhereGet(chromago.EqString(metaPDFURL, documentID)))
	if err != nil {
		return fmt.Errorf("%w: list records of %s: %v", ErrPurge, documentID, err)
	}
	ids := res.GetIDs()
	for _, r := range batchRanges(len(ids), s.batchSize) {
		if err := s.collection.Delete(ctx, chromago.WithIDsDelete(ids[r[0]:r[1]]...)); err != nil {
			return fmt.Errorf("%w: delete records of %s: %v", ErrPurge, documentID, err)
		}
	}
	log.Printf("store: purged %d chroma records of %s", len(ids), documentID)
	return nil
}

// scoreFromDistance converts a cosine-space distance into a similarity.
func scoreFromDistance(distance float64) float64 {
	return 1 - distance
}

// metadataMap reads metadata through its JSON form so callers do not depend
// on the attribute accessors.
func metadataMap(meta interface{}) map[string]interface{} {
	if meta == nil {
		return nil
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return nil
	}
	var out map[string]interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}
