package ops

import (
	"math"

	"github.com/born-ml/playlistnet/internal/tensor"
)

// SoftmaxOp represents the softmax operation along the last dimension.
//
// Backward, per row:
//
//	∂L/∂x_j = softmax_j * (∂L/∂softmax_j - Σ_i ∂L/∂softmax_i * softmax_i)
type SoftmaxOp struct {
	input  *tensor.RawTensor
	output *tensor.RawTensor // cached softmax output for backward pass
}

// NewSoftmaxOp creates a new softmax operation.
func NewSoftmaxOp(input, output *tensor.RawTensor) *SoftmaxOp {
	return &SoftmaxOp{input: input, output: output}
}

// Inputs returns the input tensors.
func (op *SoftmaxOp) Inputs() []*tensor.RawTensor {
	return []*tensor.RawTensor{op.input}
}

// Output returns the output tensor.
func (op *SoftmaxOp) Output() *tensor.RawTensor {
	return op.output
}

// Backward computes the gradient with respect to input.
func (op *SoftmaxOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	shape := op.input.Shape()
	width := shape[len(shape)-1]
	rows := op.input.NumElements() / width

	inputGrad := tensor.MustNewRaw(shape, tensor.Float32, backend.Device())
	s := op.output.AsFloat32()
	g := outputGrad.AsFloat32()
	dx := inputGrad.AsFloat32()
	for r := 0; r < rows; r++ {
		base := r * width
		var dot float32
		for j := 0; j < width; j++ {
			dot += g[base+j] * s[base+j]
		}
		for j := 0; j < width; j++ {
			dx[base+j] = s[base+j] * (g[base+j] - dot)
		}
	}
	return []*tensor.RawTensor{inputGrad}
}

// SoftmaxCrossEntropyOp represents the fused weighted cross-entropy:
//
//	Loss = Σ_i w_i * -log_softmax(logits_i)[targets_i]
//
// Backward:
//
//	∂L/∂logits[i,v] = grad * w_i * (softmax(logits_i)[v] - 1{v == targets_i})
//
// Targets and weights are constants and receive no gradient.
type SoftmaxCrossEntropyOp struct {
	logits  *tensor.RawTensor // [N, V]
	targets *tensor.RawTensor // int32 [N]
	weights *tensor.RawTensor // float32 [N]
	output  *tensor.RawTensor // scalar
}

// NewSoftmaxCrossEntropyOp creates a new cross-entropy operation.
func NewSoftmaxCrossEntropyOp(logits, targets, weights, output *tensor.RawTensor) *SoftmaxCrossEntropyOp {
	return &SoftmaxCrossEntropyOp{logits: logits, targets: targets, weights: weights, output: output}
}

// Inputs returns [logits].
func (op *SoftmaxCrossEntropyOp) Inputs() []*tensor.RawTensor {
	return []*tensor.RawTensor{op.logits}
}

// Output returns the scalar loss.
func (op *SoftmaxCrossEntropyOp) Output() *tensor.RawTensor {
	return op.output
}

// Backward computes the gradient with respect to logits.
func (op *SoftmaxCrossEntropyOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	shape := op.logits.Shape()
	n, v := shape[0], shape[1]
	scale := outputGrad.AsFloat32()[0]

	logitsGrad := tensor.MustNewRaw(shape, tensor.Float32, backend.Device())
	l := op.logits.AsFloat32()
	t := op.targets.AsInt32()
	w := op.weights.AsFloat32()
	dl := logitsGrad.AsFloat32()
	for i := 0; i < n; i++ {
		if w[i] == 0 {
			continue
		}
		row := l[i*v : (i+1)*v]
		maxVal := row[0]
		for _, x := range row[1:] {
			if x > maxVal {
				maxVal = x
			}
		}
		var sum float64
		for _, x := range row {
			sum += math.Exp(float64(x - maxVal))
		}
		k := scale * w[i]
		for j, x := range row {
			p := float32(math.Exp(float64(x-maxVal)) / sum)
			if j == int(t[i]) {
				p--
			}
			dl[i*v+j] = k * p
		}
	}
	return []*tensor.RawTensor{logitsGrad}
}
