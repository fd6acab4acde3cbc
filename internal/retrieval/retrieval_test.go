package retrieval

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCosineProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 100; i++ {
		a := randomVector(rng, 16)
		b := randomVector(rng, 16)

		ab, err := Cosine(a, b)
		require.NoError(t, err)
		ba, err := Cosine(b, a)
		require.NoError(t, err)

		assert.InDelta(t, ab, ba, 1e-12)
		assert.GreaterOrEqual(t, ab, -1.0)
		assert.LessOrEqual(t, ab, 1.0)

		aa, err := Cosine(a, a)
		require.NoError(t, err)
		assert.InDelta(t, 1.0, aa, 1e-9)
	}
}

func TestCosineInvalid(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
	}{
		{"empty", nil, []float32{1}},
		{"mismatch", []float32{1, 2}, []float32{1}},
		{"zero magnitude", []float32{0, 0}, []float32{1, 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Cosine(tt.a, tt.b)
			assert.ErrorIs(t, err, ErrInvalidVector)
		})
	}
}

func TestTopKOrderingAndBounds(t *testing.T) {
	query := []float32{1, 0}
	vectors := [][]float32{
		{0, 1},  // 0
		{1, 0},  // 1
		{1, 1},  // ~0.707
		{2, 0},  // 1, ties with index 1
		{-1, 0}, // -1
	}
	texts := []string{"a", "b", "c", "d", "e"}

	res, err := TopK(query, vectors, texts, 3)
	require.NoError(t, err)
	require.Len(t, res.Matches, 3)
	assert.Equal(t, 1, res.Matches[0].Index)
	assert.Equal(t, 3, res.Matches[1].Index)
	assert.Equal(t, 2, res.Matches[2].Index)

	for _, k := range []int{-1, 0, 5, 50} {
		res, err := TopK(query, vectors, texts, k)
		require.NoError(t, err)
		assert.Len(t, res.Matches, len(vectors), "k=%d", k)
		for i := 1; i < len(res.Matches); i++ {
			assert.GreaterOrEqual(t, res.Matches[i-1].Score, res.Matches[i].Score)
		}
	}
}

func TestTopKRandomNeverExceedsK(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	query := randomVector(rng, 8)
	vectors := make([][]float32, 20)
	texts := make([]string, 20)
	for i := range vectors {
		vectors[i] = randomVector(rng, 8)
	}

	for k := 1; k <= 25; k++ {
		res, err := TopK(query, vectors, texts, k)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(res.Matches), min(k, len(vectors)))
	}
}

func TestTopKPropagatesInvalidVector(t *testing.T) {
	_, err := TopK([]float32{1, 0}, [][]float32{{1}}, []string{"x"}, 1)
	assert.ErrorIs(t, err, ErrInvalidVector)
}

func randomVector(rng *rand.Rand, n int) []float32 {
	v := make([]float32, n)
	for i := range v {
		v[i] = rng.Float32()*2 - 1
	}
	v[0] += 0.01
	return v
}
