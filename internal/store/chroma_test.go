package store

import (
	"context"
	"errors"
	"sync"
	"testing"

	chromago "github.com/amikos-tech/chroma-go/pkg/api/v2"
	"github.com/amikos-tech/chroma-go/pkg/embeddings"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type chromaRecord struct {
	id   chromago.DocumentID
	meta chromago.DocumentMetadata
}

// fakeCollection keeps added records in memory. Methods the store never calls
// fall through to the nil embedded Collection.
type fakeCollection struct {
	chromago.Collection

	mu      sync.Mutex
	records []chromaRecord
	addSize []int
	deleted [][]chromago.DocumentID

	failAddAt int // 1-based Add call that fails; 0 never fails
	getErr    error
	queryRes  chromago.QueryResult
	queryOp   *chromago.CollectionQueryOp
}

func (f *fakeCollection) Add(_ context.Context, opts ...chromago.CollectionAddOption) error {
	op, err := chromago.NewCollectionAddOp(opts...)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.addSize = append(f.addSize, len(op.Ids))
	if f.failAddAt == len(f.addSize) {
		return errors.New("quota exceeded")
	}
	for i, id := range op.Ids {
		f.records = append(f.records, chromaRecord{id: id, meta: op.Metadatas[i]})
	}
	return nil
}

func (f *fakeCollection) Get(_ context.Context, opts ...chromago.CollectionGetOption) (chromago.GetResult, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	op, err := chromago.NewCollectionGetOp(opts...)
	if err != nil {
		return nil, err
	}
	want := whereOperand(op.Where)

	f.mu.Lock()
	defer f.mu.Unlock()
	res := &chromago.GetResultImpl{}
	for _, r := range f.records {
		if url, _ := r.meta.GetString(metaPDFURL); url != want {
			continue
		}
		res.Ids = append(res.Ids, r.id)
		res.Metadatas = append(res.Metadatas, r.meta)
		if op.Limit > 0 && len(res.Ids) == op.Limit {
			break
		}
	}
	return res, nil
}

func (f *fakeCollection) Query(_ context.Context, opts ...chromago.CollectionQueryOption) (chromago.QueryResult, error) {
	op, err := chromago.NewCollectionQueryOp(opts...)
	if err != nil {
		return nil, err
	}
	f.queryOp = op
	return f.queryRes, nil
}

func (f *fakeCollection) Delete(_ context.Context, opts ...chromago.CollectionDeleteOption) error {
	op, err := chromago.NewCollectionDeleteOp(opts...)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, op.Ids)
	drop := make(map[chromago.DocumentID]bool, len(op.Ids))
	for _, id := range op.Ids {
		drop[id] = true
	}
	kept := f.records[:0]
	for _, r := range f.records {
		if !drop[r.id] {
			kept = append(kept, r)
		}
	}
	f.records = kept
	return nil
}

func whereOperand(where chromago.WhereFilter) string {
	clause, ok := where.(interface{ Operand() interface{} })
	if !ok {
		return ""
	}
	s, _ := clause.Operand().(string)
	return s
}

func textDocs(texts ...string) chromago.Documents {
	docs := make(chromago.Documents, len(texts))
	for i, t := range texts {
		docs[i] = chromago.NewTextDocument(t)
	}
	return docs
}

func chunkMetas(indexes ...int64) chromago.DocumentMetadatas {
	metas := make(chromago.DocumentMetadatas, len(indexes))
	for i, idx := range indexes {
		metas[i] = chromago.NewDocumentMetadata(chromago.NewIntAttribute(metaChunkIndex, idx))
	}
	return metas
}

func TestChromaStoreUpsertAndNotes(t *testing.T) {
	ctx := context.Background()
	coll := &fakeCollection{}
	s := NewChromaStore(coll, 2)

	assert.False(t, s.Exists(ctx, docURL))
	chunks, vectors := sampleChunks()
	require.NoError(t, s.Upsert(ctx, docURL, chunks, vectors, []string{"Partial coverage: 2 of 3 parts processed"}))

	assert.Equal(t, []int{2, 1}, coll.addSize)
	assert.True(t, s.Exists(ctx, docURL))
	assert.False(t, s.Exists(ctx, "https://example.com/other.pdf"))
	assert.Equal(t, []string{"Partial coverage: 2 of 3 parts processed"}, s.Notes(ctx, docURL))

	idx, ok := coll.records[2].meta.GetInt(metaChunkIndex)
	require.True(t, ok)
	assert.Equal(t, int64(2), idx)
	assert.Equal(t, chromago.DocumentID(docURL+"_chunk_2"), coll.records[2].id)
}

func TestChromaStoreUpsertStopsAtFailedBatch(t *testing.T) {
	ctx := context.Background()
	coll := &fakeCollection{failAddAt: 2}
	s := NewChromaStore(coll, 1)

	chunks, vectors := sampleChunks()
	err := s.Upsert(ctx, docURL, chunks, vectors, nil)
	require.ErrorIs(t, err, ErrUpsert)
	assert.Contains(t, err.Error(), "batch 1")
	assert.Len(t, coll.addSize, 2, "later batches are not attempted")
	assert.Len(t, coll.records, 1)
}

func TestChromaStoreLookupErrorsReadAsAbsent(t *testing.T) {
	ctx := context.Background()
	coll := &fakeCollection{getErr: errors.New("connection refused")}
	s := NewChromaStore(coll, 0)

	assert.False(t, s.Exists(ctx, docURL))
	assert.Nil(t, s.Notes(ctx, docURL))
	assert.ErrorIs(t, s.Purge(ctx, docURL), ErrPurge)
}

func TestChromaStoreQueryBreaksTiesByChunkIndex(t *testing.T) {
	ctx := context.Background()
	coll := &fakeCollection{queryRes: &chromago.QueryResultImpl{
		DocumentsLists: []chromago.Documents{textDocs("seven", "two", "four")},
		MetadatasLists: []chromago.DocumentMetadatas{chunkMetas(7, 2, 4)},
		DistancesLists: []embeddings.Distances{{0.2, 0.2, 0.1}},
	}}
	s := NewChromaStore(coll, 0)

	res, err := s.Query(ctx, docURL, []float32{1, 0}, 3)
	require.NoError(t, err)
	require.Len(t, res.Matches, 3)
	assert.Equal(t, []int{4, 2, 7}, []int{res.Matches[0].Index, res.Matches[1].Index, res.Matches[2].Index})
	assert.Equal(t, []string{"four", "two", "seven"}, res.Texts())
	assert.InDelta(t, 0.9, res.Matches[0].Score, 1e-6)

	require.NotNil(t, coll.queryOp)
	assert.Equal(t, 3, coll.queryOp.NResults)
	assert.Contains(t, coll.queryOp.Include, chromago.Include("distances"))
	assert.Equal(t, docURL, whereOperand(coll.queryOp.Where))
}

func TestChromaStoreQueryKeepsServerOrderWithoutDistances(t *testing.T) {
	ctx := context.Background()
	coll := &fakeCollection{queryRes: &chromago.QueryResultImpl{
		DocumentsLists: []chromago.Documents{textDocs("seven", "two", "four")},
		MetadatasLists: []chromago.DocumentMetadatas{chunkMetas(7, 2, 4)},
	}}
	s := NewChromaStore(coll, 0)

	res, err := s.Query(ctx, docURL, []float32{1, 0}, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"seven", "two", "four"}, res.Texts())
}

func TestChromaStoreQueryEmpty(t *testing.T) {
	coll := &fakeCollection{queryRes: &chromago.QueryResultImpl{}}
	res, err := NewChromaStore(coll, 0).Query(context.Background(), docURL, []float32{1}, 0)
	require.NoError(t, err)
	assert.Empty(t, res.Matches)
	assert.Equal(t, 1, coll.queryOp.NResults)
}

func TestChromaStorePurgeListsThenDeletesInBatches(t *testing.T) {
	ctx := context.Background()
	coll := &fakeCollection{}
	s := NewChromaStore(coll, 2)

	chunks, vectors := sampleChunks()
	require.NoError(t, s.Upsert(ctx, docURL, chunks, vectors, nil))
	other := "https://example.com/other.pdf"
	require.NoError(t, s.Upsert(ctx, other, chunks[:1], vectors[:1], nil))

	require.NoError(t, s.Purge(ctx, docURL))
	require.Len(t, coll.deleted, 2)
	assert.Len(t, coll.deleted[0], 2)
	assert.Len(t, coll.deleted[1], 1)
	assert.False(t, s.Exists(ctx, docURL))
	assert.True(t, s.Exists(ctx, other))
}
