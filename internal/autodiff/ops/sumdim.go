package ops

import "github.com/born-ml/playlistnet/internal/tensor"

// SumDimOp represents a reduction sum along a dimension: output = sum(x, dim).
//
// Backward: the output gradient is broadcast back over the reduced dimension
// (after restoring it when keepDim=false).
type SumDimOp struct {
	x       *tensor.RawTensor
	output  *tensor.RawTensor
	dim     int
	keepDim bool
}

// NewSumDimOp creates a new SumDimOp.
func NewSumDimOp(x, output *tensor.RawTensor, dim int, keepDim bool) *SumDimOp {
	return &SumDimOp{x: x, output: output, dim: x.Shape().Normalize(dim), keepDim: keepDim}
}

// Backward broadcasts the gradient to the input shape.
func (op *SumDimOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	grad := outputGrad
	if !op.keepDim {
		kept := op.x.Shape().Clone()
		kept[op.dim] = 1
		grad = backend.Reshape(grad, kept)
	}
	return []*tensor.RawTensor{backend.BroadcastTo(grad, op.x.Shape())}
}

// Inputs returns [x].
func (op *SumDimOp) Inputs() []*tensor.RawTensor { return []*tensor.RawTensor{op.x} }

// Output returns sum(x, dim).
func (op *SumDimOp) Output() *tensor.RawTensor { return op.output }

// SumOp reduces all elements to a scalar.
type SumOp struct {
	x      *tensor.RawTensor
	output *tensor.RawTensor
}

// NewSumOp creates a new SumOp.
func NewSumOp(x, output *tensor.RawTensor) *SumOp {
	return &SumOp{x: x, output: output}
}

// Backward broadcasts the scalar gradient to the input shape.
func (op *SumOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{backend.BroadcastTo(outputGrad, op.x.Shape())}
}

// Inputs returns [x].
func (op *SumOp) Inputs() []*tensor.RawTensor { return []*tensor.RawTensor{op.x} }

// Output returns the scalar sum.
func (op *SumOp) Output() *tensor.RawTensor { return op.output }
