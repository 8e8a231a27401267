package cpu

import (
	"fmt"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"

	"github.com/born-ml/playlistnet/internal/parallel"
	"github.com/born-ml/playlistnet/internal/tensor"
)

// convGeometry holds the dimensions shared by the forward and backward kernels.
type convGeometry struct {
	n, cIn, h, w       int
	cOut, kH, kW       int
	hOut, wOut         int
	stride, padding    int
	colWidth, colCount int
}

func newConvGeometry(inputShape, kernelShape tensor.Shape, stride, padding int) convGeometry {
	if len(inputShape) != 4 {
		panic(fmt.Sprintf("conv2d: input must be 4D [N,C,H,W], got %dD", len(inputShape)))
	}
	if len(kernelShape) != 4 {
		panic(fmt.Sprintf("conv2d: kernel must be 4D [C_out,C_in,K_h,K_w], got %dD", len(kernelShape)))
	}
	if inputShape[1] != kernelShape[1] {
		panic(fmt.Sprintf("conv2d: input channels %d != kernel channels %d", inputShape[1], kernelShape[1]))
	}
	if stride < 1 {
		panic(fmt.Sprintf("conv2d: stride must be >= 1, got %d", stride))
	}

	g := convGeometry{
		n: inputShape[0], cIn: inputShape[1], h: inputShape[2], w: inputShape[3],
		cOut: kernelShape[0], kH: kernelShape[2], kW: kernelShape[3],
		stride: stride, padding: padding,
	}
	g.hOut = (g.h+2*padding-g.kH)/stride + 1
	g.wOut = (g.w+2*padding-g.kW)/stride + 1
	if g.hOut <= 0 || g.wOut <= 0 {
		panic(fmt.Sprintf("conv2d: invalid output dimensions: out_h=%d, out_w=%d (input %v, kernel %v)",
			g.hOut, g.wOut, inputShape, kernelShape))
	}
	g.colWidth = g.cIn * g.kH * g.kW
	g.colCount = g.n * g.hOut * g.wOut
	return g
}

// Conv2D performs 2D convolution using the im2col algorithm.
//
// Input shape: [batch, in_channels, height, width]
// Kernel shape: [out_channels, in_channels, kernel_h, kernel_w]
// Output shape: [batch, out_channels, out_h, out_w]
//
// Algorithm:
//  1. Im2col: [N, C, H, W] -> cols [N*H_out*W_out, C*K_h*K_w]
//  2. SGEMM: kernel [C_out, C*K_h*K_w] @ cols^T -> [C_out, N*H_out*W_out]
//  3. Rearrange to [N, C_out, H_out, W_out]
func (cpu *CPUBackend) Conv2D(input, kernel *tensor.RawTensor, stride, padding int) *tensor.RawTensor {
	g := newConvGeometry(input.Shape(), kernel.Shape(), stride, padding)

	cols := make([]float32, g.colCount*g.colWidth)
	cpu.im2col(cols, input.AsFloat32(), g)

	tmp := make([]float32, g.cOut*g.colCount)
	blas32.Gemm(blas.NoTrans, blas.Trans, 1,
		blas32.General{Rows: g.cOut, Cols: g.colWidth, Stride: g.colWidth, Data: kernel.AsFloat32()},
		blas32.General{Rows: g.colCount, Cols: g.colWidth, Stride: g.colWidth, Data: cols},
		0, blas32.General{Rows: g.cOut, Cols: g.colCount, Stride: g.colCount, Data: tmp})

	output := tensor.MustNewRaw(tensor.Shape{g.n, g.cOut, g.hOut, g.wOut}, tensor.Float32, cpu.device)
	out := output.AsFloat32()
	plane := g.hOut * g.wOut
	for n := 0; n < g.n; n++ {
		for c := 0; c < g.cOut; c++ {
			copy(out[(n*g.cOut+c)*plane:(n*g.cOut+c+1)*plane], tmp[c*g.colCount+n*plane:c*g.colCount+(n+1)*plane])
		}
	}
	return output
}

// im2col fills cols with one row per output position; each row is the
// flattened input patch (zero where the patch reaches into padding).
func (cpu *CPUBackend) im2col(cols, input []float32, g convGeometry) {
	plane := g.hOut * g.wOut
	cpu.forEach(g.n, func(n int) {
		for outH := 0; outH < g.hOut; outH++ {
			for outW := 0; outW < g.wOut; outW++ {
				row := cols[(n*plane+outH*g.wOut+outW)*g.colWidth:]
				hStart := outH*g.stride - g.padding
				wStart := outW*g.stride - g.padding
				idx := 0
				for c := 0; c < g.cIn; c++ {
					for kh := 0; kh < g.kH; kh++ {
						h := hStart + kh
						for kw := 0; kw < g.kW; kw++ {
							w := wStart + kw
							if h >= 0 && h < g.h && w >= 0 && w < g.w {
								row[idx] = input[((n*g.cIn+c)*g.h+h)*g.w+w]
							} else {
								row[idx] = 0
							}
							idx++
						}
					}
				}
			}
		}
	})
}

// Conv2DInputBackward computes the gradient w.r.t. the convolution input:
// every output gradient is scattered back through the kernel onto the input
// positions it was computed from (a full, transposed convolution).
func (cpu *CPUBackend) Conv2DInputBackward(inputShape tensor.Shape, kernel, grad *tensor.RawTensor, stride, padding int) *tensor.RawTensor {
	g := newConvGeometry(inputShape, kernel.Shape(), stride, padding)
	gradShape := grad.Shape()
	if gradShape[0] != g.n || gradShape[1] != g.cOut || gradShape[2] != g.hOut || gradShape[3] != g.wOut {
		panic(fmt.Sprintf("conv2d backward: grad shape %v does not match output [%d %d %d %d]",
			gradShape, g.n, g.cOut, g.hOut, g.wOut))
	}

	inputGrad := tensor.MustNewRaw(inputShape, tensor.Float32, cpu.device)
	dx := inputGrad.AsFloat32()
	dy := grad.AsFloat32()
	k := kernel.AsFloat32()

	cpu.forEach(g.n, func(n int) {
		for o := 0; o < g.cOut; o++ {
			for outH := 0; outH < g.hOut; outH++ {
				for outW := 0; outW < g.wOut; outW++ {
					gv := dy[((n*g.cOut+o)*g.hOut+outH)*g.wOut+outW]
					if gv == 0 {
						continue
					}
					hStart := outH*g.stride - g.padding
					wStart := outW*g.stride - g.padding
					for c := 0; c < g.cIn; c++ {
						kBase := (o*g.cIn + c) * g.kH * g.kW
						for kh := 0; kh < g.kH; kh++ {
							h := hStart + kh
							if h < 0 || h >= g.h {
								continue
							}
							for kw := 0; kw < g.kW; kw++ {
								w := wStart + kw
								if w < 0 || w >= g.w {
									continue
								}
								dx[((n*g.cIn+c)*g.h+h)*g.w+w] += gv * k[kBase+kh*g.kW+kw]
							}
						}
					}
				}
			}
		}
	})
	return inputGrad
}

// Conv2DKernelBackward computes the gradient w.r.t. the kernel as
// grad [C_out, N*H_out*W_out] @ cols [N*H_out*W_out, C_in*K_h*K_w].
func (cpu *CPUBackend) Conv2DKernelBackward(input *tensor.RawTensor, kernelShape tensor.Shape, grad *tensor.RawTensor, stride, padding int) *tensor.RawTensor {
	g := newConvGeometry(input.Shape(), kernelShape, stride, padding)

	cols := make([]float32, g.colCount*g.colWidth)
	cpu.im2col(cols, input.AsFloat32(), g)

	// [N, C_out, H_out*W_out] -> [C_out, N*H_out*W_out]
	plane := g.hOut * g.wOut
	dy := grad.AsFloat32()
	gradMat := make([]float32, g.cOut*g.colCount)
	for n := 0; n < g.n; n++ {
		for o := 0; o < g.cOut; o++ {
			copy(gradMat[o*g.colCount+n*plane:o*g.colCount+(n+1)*plane], dy[(n*g.cOut+o)*plane:(n*g.cOut+o+1)*plane])
		}
	}

	kernelGrad := tensor.MustNewRaw(kernelShape, tensor.Float32, cpu.device)
	blas32.Gemm(blas.NoTrans, blas.NoTrans, 1,
		blas32.General{Rows: g.cOut, Cols: g.colCount, Stride: g.colCount, Data: gradMat},
		blas32.General{Rows: g.colCount, Cols: g.colWidth, Stride: g.colWidth, Data: cols},
		0, blas32.General{Rows: g.cOut, Cols: g.colWidth, Stride: g.colWidth, Data: kernelGrad.AsFloat32()})
	return kernelGrad
}

// ConvTranspose2D performs a stride-1 unpadded transposed convolution.
//
// Input shape: [N, C_in, H, W]
// Kernel shape: [C_in, C_out, K_h, K_w]
// Output shape: [N, C_out, H+K_h-1, W+K_w-1]
//
// A transposed convolution is the input-gradient of the convolution whose
// kernel it shares, so the forward pass reuses Conv2DInputBackward.
func (cpu *CPUBackend) ConvTranspose2D(input, kernel *tensor.RawTensor) *tensor.RawTensor {
	inShape := input.Shape()
	kShape := kernel.Shape()
	if len(inShape) != 4 || len(kShape) != 4 {
		panic(fmt.Sprintf("conv_transpose2d: expected 4D input and kernel, got %v and %v", inShape, kShape))
	}
	if inShape[1] != kShape[0] {
		panic(fmt.Sprintf("conv_transpose2d: input channels %d != kernel input channels %d", inShape[1], kShape[0]))
	}
	outShape := tensor.Shape{inShape[0], kShape[1], inShape[2] + kShape[2] - 1, inShape[3] + kShape[3] - 1}
	return cpu.Conv2DInputBackward(outShape, kernel, input, 1, 0)
}

func (cpu *CPUBackend) forEach(n int, f func(i int)) {
	cfg := cpu.parallel
	cfg.MinChunkSize = 1 // one sample per chunk
	parallel.For(n, f, cfg)
}
