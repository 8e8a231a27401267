package generate

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/playlistnet/internal/tensor"
)

func TestArgmax(t *testing.T) {
	assert.Equal(t, int32(2), Argmax([]float32{0.1, 0.5, 0.9, 0.2}))
	assert.Equal(t, int32(0), Argmax([]float32{1, 1, 1}))
	assert.Equal(t, int32(1), Argmax([]float32{-3, -1, -2}))
}

func TestArgmaxRows(t *testing.T) {
	logits, err := tensor.FromFloat32([]float32{
		0, 1, 0,
		5, 1, 0,
		0, 1, 7,
		2, 2, 2,
	}, tensor.Shape{2, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, []int32{1, 0, 2, 0}, ArgmaxRows(logits))
}

func TestMultinomial_Deterministic(t *testing.T) {
	logits := []float32{0.1, 0.2, 0.3, 0.4}
	a := NewSampler(SamplingConfig{Seed: 42, Epsilon: 1e-8})
	b := NewSampler(SamplingConfig{Seed: 42, Epsilon: 1e-8})
	for i := 0; i < 20; i++ {
		assert.Equal(t, a.Multinomial(logits), b.Multinomial(logits))
	}
}

func TestMultinomial_FollowsDistribution(t *testing.T) {
	s := NewSampler(SamplingConfig{Seed: 1, Epsilon: 1e-8})
	// Token 2 holds nearly all of the mass.
	logits := []float32{0, 0, 20, 0}
	counts := make([]int, 4)
	for i := 0; i < 500; i++ {
		counts[s.Multinomial(logits)]++
	}
	assert.Greater(t, counts[2], 490)
}

func TestMultinomialRows_Shape(t *testing.T) {
	s := NewSampler(SamplingConfig{Seed: 3})
	logits := tensor.Full(tensor.Shape{3, 5, 7}, 0)
	ids := s.MultinomialRows(logits)
	require.Len(t, ids, 15)
	for _, id := range ids {
		assert.GreaterOrEqual(t, id, int32(0))
		assert.Less(t, id, int32(7))
	}
}

func TestSoftmaxAndLogSoftmax(t *testing.T) {
	logits := []float32{1, 2, 3}
	probs := Softmax(logits)
	logProbs := LogSoftmax(logits)
	var sum float64
	for i, p := range probs {
		sum += p
		assert.InDelta(t, p, math.Exp(logProbs[i]), 1e-9)
	}
	assert.InDelta(t, 1, sum, 1e-12)
}

func TestTopK(t *testing.T) {
	scores := []float64{0.1, 0.7, 0.3, 0.7, -1}
	assert.Equal(t, []int{1, 3, 2}, TopK(scores, 3))
	assert.Equal(t, []int{1, 3, 2, 0, 4}, TopK(scores, 10))
}
