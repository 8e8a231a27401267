package ops

import (
	"github.com/born-ml/playlistnet/internal/tensor"
)

// GatherOp represents an embedding lookup: output[i] = weight[indices[i]].
//
// Backward:
//
//	For each index i, accumulate grad_output[i] to grad_weight[indices[i]]
//	This is a scatter-add; gradients for a repeated index are summed.
//
// Example:
//
//	indices = [0, 1, 0]  // index 0 appears twice
//	grad_output = [[1,2], [3,4], [5,6]]
//	grad_weight[0] = [1,2] + [5,6] = [6,8]
//	grad_weight[1] = [3,4]
type GatherOp struct {
	weight  *tensor.RawTensor // [numEmbeddings, embeddingDim]
	indices *tensor.RawTensor // int32, any shape
	output  *tensor.RawTensor
}

// NewGatherOp creates a new embedding lookup operation.
func NewGatherOp(weight, indices, output *tensor.RawTensor) *GatherOp {
	return &GatherOp{weight: weight, indices: indices, output: output}
}

// Inputs returns the weight only; indices are integer positions.
func (op *GatherOp) Inputs() []*tensor.RawTensor {
	return []*tensor.RawTensor{op.weight}
}

// Output returns the output tensor.
func (op *GatherOp) Output() *tensor.RawTensor {
	return op.output
}

// Backward scatter-adds the output gradient into the weight rows.
func (op *GatherOp) Backward(gradOutput *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	embeddingDim := op.weight.Shape()[1]
	gradWeight := tensor.MustNewRaw(op.weight.Shape(), tensor.Float32, backend.Device())

	gw := gradWeight.AsFloat32()
	g := gradOutput.AsFloat32()
	for i, idx := range op.indices.AsInt32() {
		row := gw[int(idx)*embeddingDim : (int(idx)+1)*embeddingDim]
		for j, v := range g[i*embeddingDim : (i+1)*embeddingDim] {
			row[j] += v
		}
	}
	return []*tensor.RawTensor{gradWeight}
}
