package ops

import (
	"github.com/born-ml/playlistnet/internal/tensor"
)

// ReshapeOp records a reshape operation for autodiff.
//
// Backward: reshape the output gradient back to the input shape.
type ReshapeOp struct {
	input     *tensor.RawTensor
	output    *tensor.RawTensor
	origShape tensor.Shape
}

// NewReshapeOp creates a new Reshape operation.
func NewReshapeOp(input, output *tensor.RawTensor) *ReshapeOp {
	return &ReshapeOp{input: input, output: output, origShape: input.Shape().Clone()}
}

// Inputs returns the input tensors.
func (op *ReshapeOp) Inputs() []*tensor.RawTensor {
	return []*tensor.RawTensor{op.input}
}

// Output returns the output tensor.
func (op *ReshapeOp) Output() *tensor.RawTensor {
	return op.output
}

// Backward computes gradients for Reshape.
func (op *ReshapeOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{backend.Reshape(outputGrad, op.origShape)}
}

// NarrowOp records the slice [start, start+length) along dim.
//
// Backward: the output gradient is written into a zero tensor of the input
// shape at the same slice.
type NarrowOp struct {
	input  *tensor.RawTensor
	output *tensor.RawTensor
	dim    int
	start  int
}

// NewNarrowOp creates a new Narrow operation.
func NewNarrowOp(input, output *tensor.RawTensor, dim, start int) *NarrowOp {
	return &NarrowOp{input: input, output: output, dim: input.Shape().Normalize(dim), start: start}
}

// Inputs returns the input tensors.
func (op *NarrowOp) Inputs() []*tensor.RawTensor {
	return []*tensor.RawTensor{op.input}
}

// Output returns the output tensor.
func (op *NarrowOp) Output() *tensor.RawTensor {
	return op.output
}

// Backward scatters the gradient back into the narrowed slice.
func (op *NarrowOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	shape := op.input.Shape()
	inputGrad := tensor.MustNewRaw(shape, tensor.Float32, backend.Device())

	outer, inner := 1, 1
	for i := 0; i < op.dim; i++ {
		outer *= shape[i]
	}
	for i := op.dim + 1; i < len(shape); i++ {
		inner *= shape[i]
	}
	length := outputGrad.Shape()[op.dim]

	dst := inputGrad.AsFloat32()
	src := outputGrad.AsFloat32()
	for o := 0; o < outer; o++ {
		copy(dst[(o*shape[op.dim]+op.start)*inner:(o*shape[op.dim]+op.start+length)*inner],
			src[o*length*inner:(o+1)*length*inner])
	}
	return []*tensor.RawTensor{inputGrad}
}

// CatOp records concatenation along dim.
//
// Backward: each input receives the matching slice of the output gradient.
type CatOp struct {
	inputs []*tensor.RawTensor
	output *tensor.RawTensor
	dim    int
}

// NewCatOp creates a new Cat operation.
func NewCatOp(inputs []*tensor.RawTensor, output *tensor.RawTensor, dim int) *CatOp {
	return &CatOp{inputs: inputs, output: output, dim: output.Shape().Normalize(dim)}
}

// Inputs returns the concatenated tensors.
func (op *CatOp) Inputs() []*tensor.RawTensor {
	return op.inputs
}

// Output returns the output tensor.
func (op *CatOp) Output() *tensor.RawTensor {
	return op.output
}

// Backward splits the gradient along dim.
func (op *CatOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	grads := make([]*tensor.RawTensor, len(op.inputs))
	start := 0
	for i, in := range op.inputs {
		size := in.Shape()[op.dim]
		grads[i] = backend.Narrow(outputGrad, op.dim, start, size)
		start += size
	}
	return grads
}
