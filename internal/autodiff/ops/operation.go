// Package ops defines the differentiable operations recorded on the gradient tape.
//
// Each operation keeps the tensors its backward rule needs and computes
// input gradients from the output gradient:
//   - AddOp / SubOp / MulOp: broadcasting element-wise arithmetic
//   - MatMulOp: d(A@B)/dA = grad@B^T, d(A@B)/dB = A^T@grad
//   - Conv2DOp / ConvTranspose2DOp / BatchNorm2DOp: convolutional stack
//   - GatherOp: embedding lookup with scatter-add backward
//   - ReshapeOp / NarrowOp / CatOp: shape bookkeeping for recurrent steps
//   - SumDimOp / SumOp / scalar ops / activations / SoftmaxOp
//   - SoftmaxCrossEntropyOp: fused weighted cross-entropy
package ops

import "github.com/born-ml/playlistnet/internal/tensor"

// Operation represents a differentiable operation in the computation graph.
// Each operation records its inputs and output during the forward pass,
// and computes input gradients during the backward pass.
type Operation interface {
	// Backward computes gradients for inputs given the output gradient.
	// Returns a slice of gradients corresponding to each input tensor.
	Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor

	// Inputs returns the differentiable input tensors for this operation.
	// Integer indices and constant weights are not listed.
	Inputs() []*tensor.RawTensor

	// Output returns the output tensor produced by this operation.
	Output() *tensor.RawTensor
}
