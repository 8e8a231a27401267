package srcnn

import (
	"github.com/born-ml/playlistnet/internal/autodiff"
	"github.com/born-ml/playlistnet/internal/generate"
	"github.com/born-ml/playlistnet/internal/model"
	"github.com/born-ml/playlistnet/internal/nn"
	"github.com/born-ml/playlistnet/internal/optim"
	"github.com/born-ml/playlistnet/internal/tensor"
)

// forward returns the logits [B, max_len, V].
func (m *Model) forward(in model.Inputs, train bool) *tensor.RawTensor {
	b := m.backend
	n, length, emb := in.BatchSize(), m.cfg.MaxLen, m.cfg.EmbeddingSize

	x := b.Reshape(m.embedding.Forward(model.IDMatrix(in.EncoderIDs)), tensor.Shape{n, 1, length, emb})
	seed := b.Reshape(m.embedding.Forward(model.IDVector(in.SeedIDs)), tensor.Shape{n, 1, 1, emb})

	conv1 := m.conv1.Forward(x)
	conv2 := m.conv2.Forward(m.stage1.Forward(conv1, train))
	conv3 := m.conv3.Forward(m.stage2.Forward(conv2, train))
	encoded := m.stage3.Forward(conv3, train)

	inv3 := b.Add(m.invConv3.Forward(encoded), conv2)
	inv2 := b.Add(m.invConv2.Forward(m.invStage3.Forward(inv3, train)), conv1)
	inv1 := m.invConv1.Forward(m.invStage2.Forward(inv2, train))

	residual := b.Add(b.Add(inv1, x), seed)
	return m.outputProjection.Forward(b.Reshape(residual, tensor.Shape{n, length, emb}))
}

// TrainStep runs one supervised Adam update.
func (m *Model) TrainStep(batch model.Batch) (model.StepResult, error) {
	p := m.planFor(model.ModeTrain)
	if err := model.ValidateBatch(batch, p.dims); err != nil {
		return model.StepResult{}, err
	}

	loss, grads := autodiff.Record(m.backend, func() *tensor.RawTensor {
		return nn.SequenceCrossEntropy(m.backend, m.forward(batch.Inputs, p.dropout), batch.DecoderTargets, batch.DecoderLen)
	})
	norm := optim.GlobalNorm(m.params, grads)
	p.optimizer.Step(grads)

	return model.StepResult{
		Loss:         loss.Item(),
		PredictCount: batch.PredictCount(),
		LearningRate: p.optimizer.GetLR(),
		GradNorm:     norm,
	}, nil
}

// Evaluate computes the supervised loss without dropout or updates.
func (m *Model) Evaluate(batch model.Batch) (model.StepResult, error) {
	p := m.planFor(model.ModeValid)
	if err := model.ValidateBatch(batch, p.dims); err != nil {
		return model.StepResult{}, err
	}
	loss := nn.SequenceCrossEntropy(m.backend, m.forward(batch.Inputs, p.dropout), batch.DecoderTargets, batch.DecoderLen)
	return model.StepResult{Loss: loss.Item(), PredictCount: batch.PredictCount()}, nil
}

// Sample draws one token per position from softmax(logits), giving the
// [B][max_len] trajectories the reward is computed on.
func (m *Model) Sample(in model.Inputs) ([][]int32, error) {
	p := m.planFor(model.ModeRL)
	if err := model.ValidateInputs(in, p.dims); err != nil {
		return nil, err
	}
	ids := m.sampler.MultinomialRows(m.forward(in, p.dropout))
	return split(ids, in.BatchSize()), nil
}

// RLStep applies one policy-gradient update for sampled trajectories and
// their per-row rewards.
func (m *Model) RLStep(in model.Inputs, sampled [][]int32, rewards []float32) (model.StepResult, error) {
	p := m.planFor(model.ModeRL)
	if err := model.ValidateInputs(in, p.dims); err != nil {
		return model.StepResult{}, err
	}
	if err := model.ValidateSampled(sampled, rewards, in.BatchSize(), p.dims); err != nil {
		return model.StepResult{}, err
	}

	loss, grads := autodiff.Record(m.backend, func() *tensor.RawTensor {
		return nn.PolicyGradientLoss(m.backend, m.forward(in, p.dropout), sampled, rewards)
	})
	norm := optim.GlobalNorm(m.params, grads)
	p.optimizer.Step(grads)

	return model.StepResult{
		Loss:         loss.Item(),
		PredictCount: in.BatchSize() * m.cfg.MaxLen,
		LearningRate: p.optimizer.GetLR(),
		GradNorm:     norm,
	}, nil
}

// Predict takes the argmax at every position. IDs is [B][max_len][1].
func (m *Model) Predict(in model.Inputs) (model.Prediction, error) {
	p := m.planFor(model.ModeTest)
	if err := model.ValidateInputs(in, p.dims); err != nil {
		return model.Prediction{}, err
	}

	logits := m.forward(in, p.dropout)
	rows := split(generate.ArgmaxRows(logits), in.BatchSize())
	ids := make([][][]int32, len(rows))
	for i, row := range rows {
		ids[i] = make([][]int32, len(row))
		for t, id := range row {
			ids[i][t] = []int32{id}
		}
	}
	return model.Prediction{IDs: ids, Logits: logits}, nil
}

// split cuts a flat row-major id list into n equal rows.
func split(ids []int32, n int) [][]int32 {
	width := len(ids) / n
	out := make([][]int32, n)
	for i := range out {
		out[i] = ids[i*width : (i+1)*width : (i+1)*width]
	}
	return out
}
