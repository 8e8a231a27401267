package cpu

import (
	"fmt"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"

	"github.com/born-ml/playlistnet/internal/tensor"
)

// MatMul performs matrix multiplication.
// For 2D tensors: (M, K) @ (K, N) -> (M, N)
func (cpu *CPUBackend) MatMul(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.MatMulTransposed(a, b, false, false)
}

// MatMulTransposed computes op(a) @ op(b) with a single SGEMM call, so the
// backward pass never materializes a transposed copy.
func (cpu *CPUBackend) MatMulTransposed(a, b *tensor.RawTensor, transA, transB bool) *tensor.RawTensor {
	aShape := a.Shape()
	bShape := b.Shape()
	if len(aShape) != 2 || len(bShape) != 2 {
		panic(fmt.Sprintf("matmul: only 2D tensors supported, got %dD and %dD", len(aShape), len(bShape)))
	}

	m, k := aShape[0], aShape[1]
	if transA {
		m, k = k, m
	}
	kAlt, n := bShape[0], bShape[1]
	if transB {
		kAlt, n = n, kAlt
	}
	if k != kAlt {
		panic(fmt.Sprintf("matmul: shape mismatch %v (trans=%t) @ %v (trans=%t)", aShape, transA, bShape, transB))
	}

	result := tensor.MustNewRaw(tensor.Shape{m, n}, tensor.Float32, cpu.device)
	blas32.Gemm(transpose(transA), transpose(transB), 1,
		general(a), general(b),
		0, blas32.General{Rows: m, Cols: n, Stride: n, Data: result.AsFloat32()})
	return result
}

func transpose(t bool) blas.Transpose {
	if t {
		return blas.Trans
	}
	return blas.NoTrans
}

func general(t *tensor.RawTensor) blas32.General {
	s := t.Shape()
	return blas32.General{Rows: s[0], Cols: s[1], Stride: s[1], Data: t.AsFloat32()}
}
