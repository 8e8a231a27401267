package cpu

import (
	"github.com/born-ml/playlistnet/internal/tensor"
)

// SumDim sums tensor elements along the specified dimension.
//
// Parameters:
//   - dim: dimension to reduce (supports negative indexing: -1 = last dim)
//   - keepDim: if true, keep the reduced dimension with size 1; if false, remove it
//
// Example:
//
//	y := backend.SumDim(x, -1, true)   // [2, 3, 4] -> [2, 3, 1]
//	z := backend.SumDim(x, -1, false)  // [2, 3, 4] -> [2, 3]
func (cpu *CPUBackend) SumDim(x *tensor.RawTensor, dim int, keepDim bool) *tensor.RawTensor {
	shape := x.Shape()
	dim = shape.Normalize(dim)

	var outShape tensor.Shape
	if keepDim {
		outShape = shape.Clone()
		outShape[dim] = 1
	} else {
		outShape = make(tensor.Shape, 0, len(shape)-1)
		for i := range shape {
			if i != dim {
				outShape = append(outShape, shape[i])
			}
		}
	}

	result := tensor.MustNewRaw(outShape, tensor.Float32, cpu.device)
	out := result.AsFloat32()
	src := x.AsFloat32()
	outer, inner := splitAt(shape, dim)
	size := shape[dim]
	for o := 0; o < outer; o++ {
		for k := 0; k < size; k++ {
			base := (o*size + k) * inner
			for i := 0; i < inner; i++ {
				out[o*inner+i] += src[base+i]
			}
		}
	}
	return result
}

// Sum reduces every element into a scalar (shape []).
func (cpu *CPUBackend) Sum(x *tensor.RawTensor) *tensor.RawTensor {
	result := tensor.MustNewRaw(tensor.Shape{}, tensor.Float32, cpu.device)
	var total float64
	for _, v := range x.AsFloat32() {
		total += float64(v)
	}
	result.AsFloat32()[0] = float32(total)
	return result
}
