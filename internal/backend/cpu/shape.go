package cpu

import (
	"fmt"

	"github.com/born-ml/playlistnet/internal/tensor"
)

// Reshape returns a view of t with a new shape and the same element count.
func (cpu *CPUBackend) Reshape(t *tensor.RawTensor, newShape tensor.Shape) *tensor.RawTensor {
	view, err := t.View(newShape)
	if err != nil {
		panic(fmt.Sprintf("reshape: %v", err))
	}
	return view
}

// Narrow copies the slice [start, start+length) of dimension dim.
func (cpu *CPUBackend) Narrow(t *tensor.RawTensor, dim, start, length int) *tensor.RawTensor {
	shape := t.Shape()
	dim = shape.Normalize(dim)
	if start < 0 || length <= 0 || start+length > shape[dim] {
		panic(fmt.Sprintf("narrow: range [%d, %d) out of bounds for dim %d of %v", start, start+length, dim, shape))
	}

	outShape := shape.Clone()
	outShape[dim] = length
	result := tensor.MustNewRaw(outShape, t.DType(), cpu.device)

	outer, inner := splitAt(shape, dim)
	elem := t.DType().Size()
	src := t.Data()
	dst := result.Data()
	srcRow := shape[dim] * inner * elem
	dstRow := length * inner * elem
	for o := 0; o < outer; o++ {
		copy(dst[o*dstRow:(o+1)*dstRow], src[o*srcRow+start*inner*elem:o*srcRow+(start+length)*inner*elem])
	}
	return result
}

// Cat concatenates tensors along dim. All other dimensions must match.
func (cpu *CPUBackend) Cat(ts []*tensor.RawTensor, dim int) *tensor.RawTensor {
	if len(ts) == 0 {
		panic("cat: no tensors")
	}
	first := ts[0].Shape()
	dim = first.Normalize(dim)

	total := 0
	for _, t := range ts {
		s := t.Shape()
		if len(s) != len(first) || t.DType() != ts[0].DType() {
			panic(fmt.Sprintf("cat: incompatible tensors %v and %v", first, s))
		}
		for i := range s {
			if i != dim && s[i] != first[i] {
				panic(fmt.Sprintf("cat: shape mismatch %v vs %v at dim %d", first, s, i))
			}
		}
		total += s[dim]
	}

	outShape := first.Clone()
	outShape[dim] = total
	result := tensor.MustNewRaw(outShape, ts[0].DType(), cpu.device)

	outer, inner := splitAt(first, dim)
	elem := ts[0].DType().Size()
	dst := result.Data()
	dstRow := total * inner * elem
	pos := 0
	for _, t := range ts {
		width := t.Shape()[dim] * inner * elem
		src := t.Data()
		for o := 0; o < outer; o++ {
			copy(dst[o*dstRow+pos:o*dstRow+pos+width], src[o*width:(o+1)*width])
		}
		pos += width
	}
	return result
}

// Gather selects rows of weight [V, D] by int32 indices of any shape.
func (cpu *CPUBackend) Gather(weight, indices *tensor.RawTensor) *tensor.RawTensor {
	wShape := weight.Shape()
	if len(wShape) != 2 {
		panic(fmt.Sprintf("gather: weight must be 2D, got %v", wShape))
	}
	rows, width := wShape[0], wShape[1]

	outShape := append(indices.Shape().Clone(), width)
	result := tensor.MustNewRaw(outShape, tensor.Float32, cpu.device)
	out := result.AsFloat32()
	w := weight.AsFloat32()
	for i, id := range indices.AsInt32() {
		if id < 0 || int(id) >= rows {
			panic(fmt.Sprintf("gather: index %d out of range [0, %d)", id, rows))
		}
		copy(out[i*width:(i+1)*width], w[int(id)*width:(int(id)+1)*width])
	}
	return result
}

// BroadcastTo expands t to shape following broadcasting rules.
func (cpu *CPUBackend) BroadcastTo(t *tensor.RawTensor, shape tensor.Shape) *tensor.RawTensor {
	if t.Shape().Equal(shape) {
		return t
	}
	strides := tensor.BroadcastStrides(t.Shape(), shape)
	result := tensor.MustNewRaw(shape, tensor.Float32, cpu.device)
	out := result.AsFloat32()
	src := t.AsFloat32()
	walk(shape, strides, func(i, off int) {
		out[i] = src[off]
	})
	return result
}

// ReduceTo sums t over every dimension that broadcasting expanded from shape.
func (cpu *CPUBackend) ReduceTo(t *tensor.RawTensor, shape tensor.Shape) *tensor.RawTensor {
	if t.Shape().Equal(shape) {
		return t
	}
	if full, _, err := tensor.BroadcastShapes(shape, t.Shape()); err != nil || !full.Equal(t.Shape()) {
		panic(fmt.Sprintf("reduce_to: %v does not broadcast to %v", shape, t.Shape()))
	}
	result := tensor.MustNewRaw(shape, tensor.Float32, cpu.device)
	strides := tensor.BroadcastStrides(shape, t.Shape())
	out := result.AsFloat32()
	src := t.AsFloat32()
	walk(t.Shape(), strides, func(i, off int) {
		out[off] += src[i]
	})
	return result
}

// walk visits every linear index of shape together with the matching offset
// under strides.
func walk(shape tensor.Shape, strides []int, f func(i, off int)) {
	n := shape.NumElements()
	idx := make([]int, len(shape))
	off := 0
	for i := 0; i < n; i++ {
		f(i, off)
		for d := len(shape) - 1; d >= 0; d-- {
			idx[d]++
			off += strides[d]
			if idx[d] < shape[d] {
				break
			}
			off -= strides[d] * shape[d]
			idx[d] = 0
		}
	}
}

// splitAt returns the products of the dimensions before and after dim.
func splitAt(shape tensor.Shape, dim int) (outer, inner int) {
	outer, inner = 1, 1
	for i := 0; i < dim; i++ {
		outer *= shape[i]
	}
	for i := dim + 1; i < len(shape); i++ {
		inner *= shape[i]
	}
	return outer, inner
}
