package embedding

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	mu      sync.Mutex
	batches [][]string
	failOn  int
	short   bool
}

func (f *fakeClient) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, append([]string(nil), texts...))
	if f.failOn > 0 && len(f.batches) == f.failOn {
		return nil, errors.New("quota exceeded")
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		n, _ := strconv.Atoi(t)
		out[i] = []float32{float32(n)}
	}
	if f.short {
		out = out[:len(out)-1]
	}
	return out, nil
}

func inputs(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = strconv.Itoa(i)
	}
	return out
}

func TestEmbedPreservesOrderAcrossBatches(t *testing.T) {
	client := &fakeClient{}
	e := New(client, 10, 0)

	vectors, err := e.Embed(context.Background(), inputs(25))
	require.NoError(t, err)
	require.Len(t, vectors, 25)
	for i, v := range vectors {
		assert.Equal(t, float32(i), v[0])
	}

	require.Len(t, client.batches, 3)
	assert.Len(t, client.batches[0], 10)
	assert.Len(t, client.batches[2], 5)
}

func TestEmbedFailsWholeCallOnBatchError(t *testing.T) {
	client := &fakeClient{failOn: 2}
	e := New(client, 4, 0)

	vectors, err := e.Embed(context.Background(), inputs(12))
	assert.ErrorIs(t, err, ErrEmbeddingService)
	assert.Nil(t, vectors)
	assert.Len(t, client.batches, 2, "later batches are not sent")
}

func TestEmbedRejectsShortBatch(t *testing.T) {
	e := New(&fakeClient{short: true}, 4, 0)
	_, err := e.Embed(context.Background(), inputs(3))
	assert.ErrorIs(t, err, ErrEmbeddingService)
}

func TestEmbedThrottlesBetweenBatches(t *testing.T) {
	e := New(&fakeClient{}, 1, 20*time.Millisecond)

	start := time.Now()
	_, err := e.Embed(context.Background(), inputs(3))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 35*time.Millisecond)
}

func TestEmbedHonoursCancellation(t *testing.T) {
	e := New(&fakeClient{}, 1, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Embed(ctx, inputs(2))
	assert.ErrorIs(t, err, ErrEmbeddingService)
}

func TestEmbedOne(t *testing.T) {
	v, err := New(&fakeClient{}, 10, 0).EmbedOne(context.Background(), "7")
	require.NoError(t, err)
	assert.Equal(t, []float32{7}, v)
}

func TestConcurrentEmbedOneIsNotThrottled(t *testing.T) {
	const delay = 100 * time.Millisecond
	e := New(&fakeClient{}, 10, delay)

	// A long ingestion in flight must not hold up question embeddings.
	go func() { _, _ = e.Embed(context.Background(), inputs(40)) }()

	start := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := e.EmbedOne(context.Background(), strconv.Itoa(i))
			assert.NoError(t, err)
			assert.Equal(t, []float32{float32(i)}, v)
		}(i)
	}
	wg.Wait()
	assert.Less(t, time.Since(start), 3*delay)
}

func TestSeparateEmbedCallsDoNotShareThrottle(t *testing.T) {
	e := New(&fakeClient{}, 10, time.Hour)

	// Each call's first batch goes out immediately.
	for i := 0; i < 3; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		_, err := e.Embed(ctx, inputs(5))
		cancel()
		require.NoError(t, err)
	}
}
