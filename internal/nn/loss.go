package nn

import (
	"fmt"

	"github.com/born-ml/playlistnet/internal/tensor"
)

// RLEpsilon guards log(0) in the policy-gradient loss and in sampling.
const RLEpsilon = 1e-8

// SequenceCrossEntropy computes the masked token-level cross-entropy
//
//	loss = Σ_{b, t < lengths[b]} CE(logits[b, t], targets[b][t]) / B
//
// logits are [B, T, V]; targets must cover at least T positions per row.
// Positions at or past a row's length carry zero weight, so whatever sits
// in the padded region of targets or logits never changes the loss.
func SequenceCrossEntropy(backend tensor.Backend, logits *tensor.RawTensor, targets [][]int32, lengths []int32) *tensor.RawTensor {
	shape := logits.Shape()
	if len(shape) != 3 || len(targets) != shape[0] || len(lengths) != shape[0] {
		panic(fmt.Sprintf("sequence loss: logits %v with %d targets and %d lengths", shape, len(targets), len(lengths)))
	}
	batch, steps, vocab := shape[0], shape[1], shape[2]

	ids := tensor.MustNewRaw(tensor.Shape{batch * steps}, tensor.Int32, tensor.CPU)
	weights := Zeros(tensor.Shape{batch * steps})
	idData, wData := ids.AsInt32(), weights.AsFloat32()
	for b := 0; b < batch; b++ {
		for t := 0; t < steps && t < int(lengths[b]); t++ {
			idData[b*steps+t] = targets[b][t]
			wData[b*steps+t] = 1
		}
	}

	flat := backend.Reshape(logits, tensor.Shape{batch * steps, vocab})
	return backend.MulScalar(backend.SoftmaxCrossEntropy(flat, ids, weights), 1/float32(batch))
}

// PolicyGradientLoss computes the REINFORCE loss
//
//	loss = -Σ_{b,t} log(softmax(logits[b, t])[sampled[b][t]] + ε) * rewards[b] / B
//
// for logits [B, T, V], sampled ids [B][T] and one reward per row.
func PolicyGradientLoss(backend tensor.Backend, logits *tensor.RawTensor, sampled [][]int32, rewards []float32) *tensor.RawTensor {
	shape := logits.Shape()
	if len(shape) != 3 || len(sampled) != shape[0] || len(rewards) != shape[0] {
		panic(fmt.Sprintf("policy loss: logits %v with %d samples and %d rewards", shape, len(sampled), len(rewards)))
	}
	batch, steps, vocab := shape[0], shape[1], shape[2]

	// One-hot of the sampled id, scaled by the row's reward.
	selection := Zeros(tensor.Shape{batch * steps, vocab})
	sel := selection.AsFloat32()
	for b := 0; b < batch; b++ {
		for t := 0; t < steps; t++ {
			id := int(sampled[b][t])
			if id < 0 || id >= vocab {
				panic(fmt.Sprintf("policy loss: sampled id %d out of range [0, %d)", id, vocab))
			}
			sel[(b*steps+t)*vocab+id] = rewards[b]
		}
	}

	flat := backend.Reshape(logits, tensor.Shape{batch * steps, vocab})
	logP := backend.Log(backend.AddScalar(backend.Softmax(flat), RLEpsilon))
	return backend.MulScalar(backend.Sum(backend.Mul(logP, selection)), -1/float32(batch))
}
