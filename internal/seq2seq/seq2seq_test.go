package seq2seq

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/playlistnet/internal/config"
	"github.com/born-ml/playlistnet/internal/model"
	"github.com/born-ml/playlistnet/internal/tensor"
)

const testVocab = 12

func testParams(t *testing.T, mode string, mutate func(*config.Params)) config.Params {
	t.Helper()
	p := config.Defaults()
	p.NN = "rnn"
	p.Mode = mode
	p.Debug = true
	p.MaxLen = 9
	p.ModelDir = t.TempDir()
	p.DataDir = t.TempDir()
	if mutate != nil {
		mutate(&p)
	}
	p, err := p.Derive(testVocab, 2)
	require.NoError(t, err)
	return p
}

func testInputs() model.Inputs {
	return model.Inputs{
		EncoderIDs: [][]int32{
			{4, 5, 6, 7, 2, 0, 0, 0},
			{8, 9, 2, 0, 0, 0, 0, 0},
		},
		EncoderLen: []int32{5, 3},
		SeedIDs:    []int32{10, 11},
	}
}

func testBatch() model.Batch {
	return model.Batch{
		Inputs:         testInputs(),
		DecoderIDs:     [][]int32{{1, 5, 6, 7, 0, 0, 0, 0}, {1, 9, 4, 0, 0, 0, 0, 0}},
		DecoderTargets: [][]int32{{5, 6, 7, 2, 0, 0, 0, 0}, {9, 4, 2, 0, 0, 0, 0, 0}},
		DecoderLen:     []int32{4, 3},
	}
}

func TestNew_RejectsRL(t *testing.T) {
	p := testParams(t, "rl", nil)

	_, err := New(p)
	require.ErrorIs(t, err, model.ErrConfiguration)
}

func TestNew_RejectsWideBeam(t *testing.T) {
	p := testParams(t, "test", func(p *config.Params) { p.BeamWidth = testVocab + 1 })

	_, err := New(p)
	require.ErrorIs(t, err, model.ErrConfiguration)
}

func TestModel_ModeGuards(t *testing.T) {
	m, err := New(testParams(t, "valid", nil))
	require.NoError(t, err)
	assert.Equal(t, model.ModeValid, m.Mode())

	_, err = m.TrainStep(testBatch(), 0)
	require.ErrorIs(t, err, model.ErrConfiguration)
	_, err = m.Predict(testInputs())
	require.ErrorIs(t, err, model.ErrConfiguration)
}

func TestModel_ShapeMismatch(t *testing.T) {
	m, err := New(testParams(t, "train", nil))
	require.NoError(t, err)

	batch := testBatch()
	batch.EncoderIDs[1] = batch.EncoderIDs[1][:7]
	_, err = m.TrainStep(batch, 0)
	require.ErrorIs(t, err, model.ErrShapeMismatch)

	batch = testBatch()
	batch.DecoderTargets[0][0] = testVocab
	_, err = m.Evaluate(batch)
	require.ErrorIs(t, err, model.ErrShapeMismatch)
}

func TestModel_SeededBuildsAgree(t *testing.T) {
	a, err := New(testParams(t, "valid", nil))
	require.NoError(t, err)
	b, err := New(testParams(t, "valid", nil))
	require.NoError(t, err)

	ra, err := a.Evaluate(testBatch())
	require.NoError(t, err)
	rb, err := b.Evaluate(testBatch())
	require.NoError(t, err)

	assert.Equal(t, ra.Loss, rb.Loss)
	assert.Equal(t, 7, ra.PredictCount)
	assert.Greater(t, ra.Loss, float32(0))
}

func TestModel_TrainStepLowersLoss(t *testing.T) {
	for _, attention := range []string{"luong", "bahdanau"} {
		t.Run(attention, func(t *testing.T) {
			m, err := New(testParams(t, "train", func(p *config.Params) {
				p.AttentionMode = attention
				p.ScheduledSampling = false
				p.Dropout = 0
			}))
			require.NoError(t, err)

			first, err := m.TrainStep(testBatch(), 0)
			require.NoError(t, err)
			var last float32
			for step := int64(1); step < 40; step++ {
				res, err := m.TrainStep(testBatch(), step)
				require.NoError(t, err)
				last = res.Loss
			}

			assert.False(t, math.IsNaN(float64(last)))
			assert.Less(t, last, first.Loss)
			assert.InDelta(t, 0.5, first.LearningRate, 1e-6)
			assert.Positive(t, first.GradNorm)
		})
	}
}

func TestModel_ScheduledSamplingStep(t *testing.T) {
	m, err := New(testParams(t, "train", func(p *config.Params) { p.StartDecayStep = 10 }))
	require.NoError(t, err)

	assert.Zero(t, m.SamplingProbability(0))
	assert.Positive(t, m.SamplingProbability(5000))

	res, err := m.TrainStep(testBatch(), 5000)
	require.NoError(t, err)
	assert.False(t, math.IsNaN(float64(res.Loss)))
}

func TestPredict_Greedy(t *testing.T) {
	m, err := New(testParams(t, "test", func(p *config.Params) { p.BeamSearch = false }))
	require.NoError(t, err)

	pred, err := m.Predict(testInputs())
	require.NoError(t, err)

	require.Len(t, pred.IDs, 2)
	steps := len(pred.IDs[0])
	require.LessOrEqual(t, steps, 8)
	require.NotNil(t, pred.Logits)
	assert.Equal(t, []int{2, steps, testVocab}, []int(pred.Logits.Shape()))
	for _, row := range pred.IDs {
		require.Len(t, row, steps)
		assertEndsAtEnd(t, row, 1)
	}
}

func TestPredict_BeamShape(t *testing.T) {
	m, err := New(testParams(t, "test", func(p *config.Params) { p.BeamWidth = 3 }))
	require.NoError(t, err)

	pred, err := m.Predict(testInputs())
	require.NoError(t, err)

	require.Len(t, pred.IDs, 2)
	assert.Nil(t, pred.Logits)
	for _, row := range pred.IDs {
		require.NotEmpty(t, row)
		require.LessOrEqual(t, len(row), 8)
		assertEndsAtEnd(t, row, 3)
	}
	assert.Len(t, pred.TopBeam(), 2)

	require.NotNil(t, pred.Scores)
	steps := len(pred.IDs[0])
	assert.Equal(t, tensor.Shape{2, steps, 3}, pred.Scores.Shape())
	scores := pred.Scores.AsFloat32()
	for i := 0; i < 2; i++ {
		last := scores[(i*steps+steps-1)*3 : (i*steps+steps)*3]
		for beam, s := range last {
			assert.False(t, math.IsInf(float64(s), 0), "row %d beam %d", i, beam)
			assert.LessOrEqual(t, s, float32(0))
			if beam > 0 {
				assert.GreaterOrEqual(t, last[beam-1], s, "beams are ranked")
			}
		}
	}
}

func TestPredict_BeamOfOneMatchesGreedy(t *testing.T) {
	greedy, err := New(testParams(t, "test", func(p *config.Params) { p.BeamSearch = false }))
	require.NoError(t, err)
	beam, err := New(testParams(t, "test", nil))
	require.NoError(t, err)

	g, err := greedy.Predict(testInputs())
	require.NoError(t, err)
	b, err := beam.Predict(testInputs())
	require.NoError(t, err)

	assert.Equal(t, g.IDs, b.IDs)
}

func TestBacktrack(t *testing.T) {
	// One row, two beams. Step 1 swaps the beams, step 2 extends beam 0.
	history := [][]int32{{4, 5}, {2, 6}, {7, 8}}
	parents := [][]int32{{0, 0}, {1, 0}, {0, 0}}
	scores := [][]float64{{-1, -2}, {-1.5, -3}, {-1.5, -4}}

	ids, beamScores := backtrack(history, parents, scores, 1, 2)

	assert.Equal(t, [][][]int32{{{5, 5}, {2, 2}, {2, 2}}}, ids)
	assert.Equal(t, []float32{-2, -2, -1.5, -1.5, -1.5, -4}, beamScores)
}

func assertEndsAtEnd(t *testing.T, row [][]int32, width int) {
	t.Helper()
	for beam := 0; beam < width; beam++ {
		ended := false
		for _, step := range row {
			require.Len(t, step, width)
			if ended {
				assert.Equal(t, model.EndID, step[beam])
			}
			ended = ended || step[beam] == model.EndID
		}
	}
}
