package srcnn

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/playlistnet/internal/config"
	"github.com/born-ml/playlistnet/internal/model"
	"github.com/born-ml/playlistnet/internal/nn"
)

const (
	testVocab  = 12
	testMaxLen = 14
)

func testParams(t *testing.T, mode string, mutate func(*config.Params)) config.Params {
	t.Helper()
	p := config.Defaults()
	p.NN = "cnn"
	p.Mode = mode
	p.Debug = true
	p.MaxLen = testMaxLen
	p.Dropout = 0
	p.ModelDir = t.TempDir()
	p.DataDir = t.TempDir()
	if mutate != nil {
		mutate(&p)
	}
	p, err := p.Derive(testVocab, 2)
	require.NoError(t, err)
	return p
}

func row(ids ...int32) []int32 {
	out := make([]int32, testMaxLen)
	copy(out, ids)
	return out
}

func testInputs() model.Inputs {
	return model.Inputs{
		EncoderIDs: [][]int32{row(4, 5, 6, 7, 2), row(8, 9, 10, 2)},
		EncoderLen: []int32{5, 4},
		SeedIDs:    []int32{11, 4},
	}
}

func testBatch() model.Batch {
	in := testInputs()
	targets := [][]int32{row(5, 6, 7, 8, 9, 2), row(9, 10, 11, 2)}
	return model.Batch{
		Inputs:         in,
		DecoderIDs:     targets,
		DecoderTargets: targets,
		DecoderLen:     []int32{6, 4},
	}
}

func TestNew_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Params)
	}{
		{"recurrent bundle", func(p *config.Params) { p.NN = "rnn" }},
		{"short sequences", func(p *config.Params) { p.MaxLen = 12 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(testParams(t, "train", tt.mutate))
			require.ErrorIs(t, err, model.ErrConfiguration)
		})
	}
}

func TestPredict_Shape(t *testing.T) {
	m, err := New(testParams(t, "test", nil))
	require.NoError(t, err)

	pred, err := m.Predict(testInputs())
	require.NoError(t, err)

	require.Len(t, pred.IDs, 2)
	for _, r := range pred.IDs {
		require.Len(t, r, testMaxLen)
		for _, beams := range r {
			require.Len(t, beams, 1)
			assert.GreaterOrEqual(t, beams[0], int32(0))
			assert.Less(t, beams[0], int32(testVocab))
		}
	}
	assert.Equal(t, []int{2, testMaxLen, testVocab}, []int(pred.Logits.Shape()))
}

func TestPredict_AnyBatchSizeInTestMode(t *testing.T) {
	m, err := New(testParams(t, "test", nil))
	require.NoError(t, err)

	in := model.Inputs{
		EncoderIDs: [][]int32{row(4, 2)},
		EncoderLen: []int32{2},
		SeedIDs:    []int32{5},
	}
	pred, err := m.Predict(in)
	require.NoError(t, err)
	assert.Len(t, pred.IDs, 1)
}

func TestEvaluate_SeededBuildsAgree(t *testing.T) {
	a, err := New(testParams(t, "valid", nil))
	require.NoError(t, err)
	b, err := New(testParams(t, "valid", nil))
	require.NoError(t, err)

	ra, err := a.Evaluate(testBatch())
	require.NoError(t, err)
	rb, err := b.Evaluate(testBatch())
	require.NoError(t, err)

	assert.Equal(t, ra.Loss, rb.Loss)
	assert.Equal(t, 10, ra.PredictCount)
}

func TestTrainStep_LowersLoss(t *testing.T) {
	m, err := New(testParams(t, "train", func(p *config.Params) { p.AdamLearningRate = 0.01 }))
	require.NoError(t, err)

	first, err := m.TrainStep(testBatch())
	require.NoError(t, err)
	var last float32
	for i := 0; i < 30; i++ {
		res, err := m.TrainStep(testBatch())
		require.NoError(t, err)
		last = res.Loss
	}

	assert.False(t, math.IsNaN(float64(last)))
	assert.Less(t, last, first.Loss)
	assert.InDelta(t, 0.01, first.LearningRate, 1e-9)
}

func TestTrainStep_ShapeMismatch(t *testing.T) {
	m, err := New(testParams(t, "train", nil))
	require.NoError(t, err)

	batch := testBatch()
	batch.SeedIDs = batch.SeedIDs[:1]
	_, err = m.TrainStep(batch)
	require.ErrorIs(t, err, model.ErrShapeMismatch)
}

func TestSampleAndRLStep(t *testing.T) {
	m, err := New(testParams(t, "rl", nil))
	require.NoError(t, err)

	sampled, err := m.Sample(testInputs())
	require.NoError(t, err)
	require.Len(t, sampled, 2)
	for _, r := range sampled {
		require.Len(t, r, testMaxLen)
		for _, id := range r {
			assert.GreaterOrEqual(t, id, int32(0))
			assert.Less(t, id, int32(testVocab))
		}
	}

	before := m.StateDict()["output_projection.weight"].Clone().AsFloat32()
	res, err := m.RLStep(testInputs(), sampled, []float32{0.3, -0.2})
	require.NoError(t, err)

	assert.False(t, math.IsNaN(float64(res.Loss)))
	assert.InDelta(t, 0.0005, res.LearningRate, 1e-9)
	assert.Equal(t, 2*testMaxLen, res.PredictCount)
	assert.NotEqual(t, before, m.StateDict()["output_projection.weight"].AsFloat32())
}

func TestRLStep_RejectsBadRewards(t *testing.T) {
	m, err := New(testParams(t, "rl", nil))
	require.NoError(t, err)

	sampled, err := m.Sample(testInputs())
	require.NoError(t, err)
	_, err = m.RLStep(testInputs(), sampled, []float32{1})
	require.ErrorIs(t, err, model.ErrShapeMismatch)
}

func TestPlans_CachedPerMode(t *testing.T) {
	m, err := New(testParams(t, "train", nil))
	require.NoError(t, err)

	train := m.planFor(model.ModeTrain)
	assert.Same(t, train, m.planFor(model.ModeTrain))
	assert.NotNil(t, train.optimizer)
	assert.True(t, train.dropout)
	assert.Nil(t, m.planFor(model.ModeValid).optimizer)
	assert.False(t, m.planFor(model.ModeTest).dropout)
	assert.Zero(t, m.planFor(model.ModeTest).dims.BatchSize)
}

func TestBatchNormToggle(t *testing.T) {
	with, err := New(testParams(t, "valid", nil))
	require.NoError(t, err)
	without, err := New(testParams(t, "valid", func(p *config.Params) { p.BatchNorm = false }))
	require.NoError(t, err)

	// Five normalized stages, each with a scale and an offset per channel.
	extra := 2 * (64 + 32 + 1 + 32 + 64)
	assert.Equal(t, nn.CountParameters(with.Parameters())-extra, nn.CountParameters(without.Parameters()))

	res, err := without.Evaluate(testBatch())
	require.NoError(t, err)
	assert.False(t, math.IsNaN(float64(res.Loss)))
}
