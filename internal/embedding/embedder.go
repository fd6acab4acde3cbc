// Package embedding turns chunk texts into vectors through a remote batch API.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

var ErrEmbeddingService = errors.New("embedding service error")

const defaultBatchSize = 10

// BatchClient embeds one batch of texts, returning vectors in input order.
type BatchClient interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Embedder sends fixed-size batches one after another. Batches of one Embed
// call are spaced by delay; separate calls are not throttled against each
// other, so concurrent question embeddings run in parallel.
type Embedder struct {
	client    BatchClient
	batchSize int
	limit     rate.Limit
}

// New builds an Embedder. A delay of zero disables throttling.
func New(client BatchClient, batchSize int, delay time.Duration) *Embedder {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	limit := rate.Inf
	if delay > 0 {
		limit = rate.Every(delay)
	}
	return &Embedder{
		client:    client,
		batchSize: batchSize,
		limit:     limit,
	}
}

// Embed returns one vector per text in the same order. Any failed batch fails
// the whole call; partial results are discarded.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	limiter := rate.NewLimiter(e.limit, 1)
	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.batchSize {
		end := start + e.batchSize
		if end > len(texts) {
			end = len(texts)
		}

		if err := limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: wait for batch %d: %v", ErrEmbeddingService, start/e.batchSize, err)
		}
		batch, err := e.client.EmbedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("%w: batch %d: %v", ErrEmbeddingService, start/e.batchSize, err)
		}
		if len(batch) != end-start {
			return nil, fmt.Errorf("%w: batch %d returned %d vectors for %d texts", ErrEmbeddingService, start/e.batchSize, len(batch), end-start)
		}
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}

// EmbedOne embeds a single text, typically a question.
func (e *Embedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.client.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingService, err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("%w: got %d vectors for 1 text", ErrEmbeddingService, len(vectors))
	}
	return vectors[0], nil
}
