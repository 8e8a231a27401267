package seq2seq

import (
	"github.com/born-ml/playlistnet/internal/autodiff"
	"github.com/born-ml/playlistnet/internal/model"
	"github.com/born-ml/playlistnet/internal/nn"
	"github.com/born-ml/playlistnet/internal/optim"
	"github.com/born-ml/playlistnet/internal/tensor"
)

// TrainStep runs one supervised update at global step.
func (m *Model) TrainStep(batch model.Batch, step int64) (model.StepResult, error) {
	if err := m.require(model.ModeTrain); err != nil {
		return model.StepResult{}, err
	}
	if err := model.ValidateBatch(batch, m.dims); err != nil {
		return model.StepResult{}, err
	}

	loss, grads := autodiff.Record(m.backend, func() *tensor.RawTensor {
		return m.loss(batch, step, true)
	})
	clipped, norm := optim.ClipByGlobalNorm(m.params, grads, float32(m.cfg.MaxGradientNorm))

	lr := m.LearningRate(step)
	m.optimizer.SetLR(lr)
	m.optimizer.Step(clipped)

	return model.StepResult{
		Loss:         loss.Item(),
		PredictCount: batch.PredictCount(),
		LearningRate: lr,
		GradNorm:     norm,
	}, nil
}

// Evaluate computes the teacher-forced loss without dropout or updates.
func (m *Model) Evaluate(batch model.Batch) (model.StepResult, error) {
	if err := m.require(model.ModeTrain, model.ModeValid); err != nil {
		return model.StepResult{}, err
	}
	if err := model.ValidateBatch(batch, m.dims); err != nil {
		return model.StepResult{}, err
	}
	loss := m.loss(batch, 0, false)
	return model.StepResult{Loss: loss.Item(), PredictCount: batch.PredictCount()}, nil
}

// LearningRate is the decayed rate used at step.
func (m *Model) LearningRate(step int64) float32 {
	return optim.StaircaseDecay(float32(m.cfg.LearningRate), step, m.cfg.StartDecayStep, m.cfg.DecaySteps, float32(m.cfg.DecayFactor))
}

// SamplingProbability is the chance of feeding back the model's own token
// at step; 0 when scheduled sampling is off.
func (m *Model) SamplingProbability(step int64) float32 {
	if !m.cfg.ScheduledSampling {
		return 0
	}
	return optim.SamplingProbability(step, m.cfg.StartDecayStep)
}

func (m *Model) loss(batch model.Batch, step int64, train bool) *tensor.RawTensor {
	enc := m.encode(batch.Inputs, train)
	logits := m.unroll(enc, batch, step, train)
	return nn.SequenceCrossEntropy(m.backend, logits, batch.DecoderTargets, batch.DecoderLen)
}

// unroll runs the decoder over max(DecoderLen) steps and returns the logits
// [B, steps, V]. With scheduled sampling each row independently replaces
// the ground-truth input with a token sampled from its previous output.
func (m *Model) unroll(enc encoding, batch model.Batch, step int64, train bool) *tensor.RawTensor {
	b := m.backend
	n, vocab := batch.BatchSize(), m.cfg.DecoderVocabSize

	steps := 1
	for _, l := range batch.DecoderLen {
		steps = max(steps, int(l))
	}
	p := float64(0)
	if train {
		p = float64(m.SamplingProbability(step))
	}

	memory := m.mechanism.Bind(enc.memory, enc.lengths)
	state := m.decoder.InitialState(enc.states)
	tokens := make([]int32, n)
	logits := make([]*tensor.RawTensor, steps)
	var prev []float32

	for t := 0; t < steps; t++ {
		for i := range tokens {
			tokens[i] = batch.DecoderIDs[i][t]
			if t > 0 && p > 0 && m.sampler.Bernoulli(p) {
				tokens[i] = m.sampler.Multinomial(prev[i*vocab : (i+1)*vocab])
			}
		}
		var out *tensor.RawTensor
		out, state = m.decoder.Step(m.decoderEmbedding.Forward(model.IDVector(tokens)), state, memory, train)
		stepLogits := m.outputProjection.Forward(out)
		prev = stepLogits.AsFloat32()
		logits[t] = b.Reshape(stepLogits, tensor.Shape{n, 1, vocab})
	}
	return b.Cat(logits, 1)
}
