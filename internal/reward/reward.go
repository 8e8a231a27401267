// Package reward scores sampled playlists for policy-gradient fine-tuning.
//
// The reward only shapes length: a continuation close to TargetLength valid
// songs scores near 1 before the batch-wide Shift is applied.
package reward

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/born-ml/playlistnet/internal/model"
)

// Reward constants.
const (
	TargetLength = 30
	Scale        = 150.0
	Shift        = 0.5
)

// LengthReward is 1 - sqrt(|TargetLength - n| / Scale), before the shift.
func LengthReward(n int) float64 {
	return 1 - math.Sqrt(math.Abs(float64(TargetLength-n))/Scale)
}

// ValidLength counts the non-sentinel ids in seq.
func ValidLength(seq []int32) int {
	n := 0
	for _, id := range seq {
		if !model.IsSentinel(id) {
			n++
		}
	}
	return n
}

// Result is the reward of one sampled batch.
type Result struct {
	Rewards   []float32 // per row, shifted by -Shift
	AvgLength float64   // mean valid length per row
}

// Mean returns the mean shifted reward.
func (r Result) Mean() float64 {
	if len(r.Rewards) == 0 {
		return 0
	}
	wide := make([]float64, len(r.Rewards))
	for i, v := range r.Rewards {
		wide[i] = float64(v)
	}
	return floats.Sum(wide) / float64(len(wide))
}

// Compute scores every sampled row. Values are nominally in [-0.5, 0.5] but
// fall below for lengths far from the target.
func Compute(sampled [][]int32) Result {
	res := Result{Rewards: make([]float32, len(sampled))}
	if len(sampled) == 0 {
		return res
	}
	lengths := make([]float64, len(sampled))
	for i, seq := range sampled {
		n := ValidLength(seq)
		lengths[i] = float64(n)
		res.Rewards[i] = float32(LengthReward(n) - Shift)
	}
	res.AvgLength = floats.Sum(lengths) / float64(len(lengths))
	return res
}
