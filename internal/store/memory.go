package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"docqa-service/internal/model"
	"docqa-service/internal/retrieval"
)

// MemoryStore keeps records in process memory. Records vanish on restart.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string][]Record
	notes   map[string][]string
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string][]Record),
		notes:   make(map[string][]string),
		now:     time.Now,
	}
}

func (s *MemoryStore) Exists(_ context.Context, documentID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records[documentID]) > 0
}

func (s *MemoryStore) Upsert(_ context.Context, documentID string, chunks []model.Chunk, vectors [][]float32, notes []string) error {
	records, err := BuildRecords(documentID, chunks, vectors, s.now())
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[documentID] = records
	if len(notes) > 0 {
		s.notes[documentID] = append([]string(nil), notes...)
	} else {
		delete(s.notes, documentID)
	}
	return nil
}

func (s *MemoryStore) Notes(_ context.Context, documentID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.notes[documentID]...)
}

func (s *MemoryStore) Query(_ context.Context, documentID string, vector []float32, k int) (model.RetrievalResult, error) {
	s.mu.RLock()
	records := s.records[documentID]
	s.mu.RUnlock()

	vectors := make([][]float32, len(records))
	texts := make([]string, len(records))
	for i, r := range records {
		vectors[i] = r.Vector
		texts[i] = r.Text
	}
	res, err := retrieval.TopK(vector, vectors, texts, k)
	if err != nil {
		return model.RetrievalResult{}, fmt.Errorf("%w: %v", ErrQuery, err)
	}
	for i := range res.Matches {
		res.Matches[i].Index = records[res.Matches[i].Index].ChunkIndex
	}
	return res, nil
}

func (s *MemoryStore) Purge(_ context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, documentID)
	delete(s.notes, documentID)
	return nil
}
