package reward

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func repeat(id int32, n int) []int32 {
	out := make([]int32, n)
	for i := range out {
		out[i] = id
	}
	return out
}

func TestLengthRewardBoundaries(t *testing.T) {
	assert.InDelta(t, 1.0, LengthReward(30), 1e-12)
	assert.InDelta(t, 1-math.Sqrt(30.0/150.0), LengthReward(0), 1e-12)
	assert.InDelta(t, LengthReward(20), LengthReward(40), 1e-12)
	assert.Less(t, LengthReward(400), -0.5, "far lengths leave the nominal range")
}

func TestComputeIgnoresSentinels(t *testing.T) {
	exact := append(repeat(7, 30), 0, 1, 2, 3, -1, 0)
	empty := []int32{0, 0, 2, 1, 3}

	res := Compute([][]int32{exact, empty})

	assert.InDelta(t, 0.5, res.Rewards[0], 1e-6)
	assert.InDelta(t, 1-math.Sqrt(0.2)-0.5, res.Rewards[1], 1e-6)
	assert.InDelta(t, 15, res.AvgLength, 1e-12)
	assert.InDelta(t, (float64(res.Rewards[0])+float64(res.Rewards[1]))/2, res.Mean(), 1e-9)
}

func TestComputeEmptyBatch(t *testing.T) {
	res := Compute(nil)
	assert.Empty(t, res.Rewards)
	assert.Zero(t, res.Mean())
}
