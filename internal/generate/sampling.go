// Package generate provides the token selection strategies used at decode
// time: argmax, multinomial sampling from a softmax, and top-k ranking for
// beam search.
package generate

import (
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/born-ml/playlistnet/internal/tensor"
)

// SamplingConfig configures a Sampler.
type SamplingConfig struct {
	// Seed for reproducibility. -1 = random.
	Seed int64

	// Epsilon is added to every probability before sampling so that no
	// token has exactly zero mass. 0 disables it.
	Epsilon float64
}

// Sampler picks token IDs from logit rows.
type Sampler struct {
	config SamplingConfig
	src    rand.Source
}

// NewSampler creates a new sampler with the given configuration.
func NewSampler(config SamplingConfig) *Sampler {
	seed := uint64(config.Seed)
	if config.Seed < 0 {
		seed = rand.Uint64() //nolint:gosec // User requested random seed
	}
	return &Sampler{
		config: config,
		src:    rand.NewPCG(seed, seed^0x9e3779b97f4a7c15),
	}
}

// Argmax returns the index of the largest logit. Ties go to the lowest index.
func Argmax(logits []float32) int32 {
	best := 0
	for i, v := range logits[1:] {
		if v > logits[best] {
			best = i + 1
		}
	}
	return int32(best)
}

// ArgmaxRows applies Argmax to every row of logits along the last dimension.
func ArgmaxRows(logits *tensor.RawTensor) []int32 {
	data, width := rows(logits)
	ids := make([]int32, len(data)/width)
	for r := range ids {
		ids[r] = Argmax(data[r*width : (r+1)*width])
	}
	return ids
}

// Multinomial draws one index from softmax(logits).
func (s *Sampler) Multinomial(logits []float32) int32 {
	probs := Softmax(logits)
	for i := range probs {
		probs[i] += s.config.Epsilon
	}
	return int32(distuv.NewCategorical(probs, s.src).Rand())
}

// MultinomialRows draws one index per row of logits along the last dimension.
func (s *Sampler) MultinomialRows(logits *tensor.RawTensor) []int32 {
	data, width := rows(logits)
	ids := make([]int32, len(data)/width)
	for r := range ids {
		ids[r] = s.Multinomial(data[r*width : (r+1)*width])
	}
	return ids
}

// Bernoulli returns true with probability p.
func (s *Sampler) Bernoulli(p float64) bool {
	return distuv.Bernoulli{P: p, Src: s.src}.Rand() == 1
}

// Softmax returns the probabilities of a logit row in float64.
func Softmax(logits []float32) []float64 {
	maxVal := float64(logits[Argmax(logits)])
	probs := make([]float64, len(logits))
	var sum float64
	for i, v := range logits {
		probs[i] = math.Exp(float64(v) - maxVal)
		sum += probs[i]
	}
	for i := range probs {
		probs[i] /= sum
	}
	return probs
}

// LogSoftmax returns log(softmax(logits)) in float64.
func LogSoftmax(logits []float32) []float64 {
	maxVal := float64(logits[Argmax(logits)])
	var sum float64
	for _, v := range logits {
		sum += math.Exp(float64(v) - maxVal)
	}
	lse := maxVal + math.Log(sum)
	out := make([]float64, len(logits))
	for i, v := range logits {
		out[i] = float64(v) - lse
	}
	return out
}

// TopK returns the indices of the k largest scores in descending order.
// Equal scores keep their index order.
func TopK(scores []float64, k int) []int {
	idx := make([]int, len(scores))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return scores[idx[a]] > scores[idx[b]]
	})
	if k < len(idx) {
		idx = idx[:k]
	}
	return idx
}

func rows(logits *tensor.RawTensor) ([]float32, int) {
	shape := logits.Shape()
	return logits.AsFloat32(), shape[len(shape)-1]
}
