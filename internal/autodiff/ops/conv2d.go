package ops

import "github.com/born-ml/playlistnet/internal/tensor"

// Conv2DOp records a 2D convolution operation for autodiff.
//
// Forward: output = Conv2D(input, kernel, stride, padding)
//
// Backward (gradients):
//   - d_input:  transposed convolution of d_output with kernel
//   - d_kernel: correlation of input with d_output
type Conv2DOp struct {
	input   *tensor.RawTensor
	kernel  *tensor.RawTensor
	output  *tensor.RawTensor
	stride  int
	padding int
}

// NewConv2DOp creates a new Conv2D operation.
func NewConv2DOp(input, kernel, output *tensor.RawTensor, stride, padding int) *Conv2DOp {
	return &Conv2DOp{input: input, kernel: kernel, output: output, stride: stride, padding: padding}
}

// Inputs returns the input tensors.
func (op *Conv2DOp) Inputs() []*tensor.RawTensor {
	return []*tensor.RawTensor{op.input, op.kernel}
}

// Output returns the output tensor.
func (op *Conv2DOp) Output() *tensor.RawTensor {
	return op.output
}

// Backward computes gradients for Conv2D by delegating to the backend kernels.
func (op *Conv2DOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	inputGrad := backend.Conv2DInputBackward(op.input.Shape(), op.kernel, outputGrad, op.stride, op.padding)
	kernelGrad := backend.Conv2DKernelBackward(op.input, op.kernel.Shape(), outputGrad, op.stride, op.padding)
	return []*tensor.RawTensor{inputGrad, kernelGrad}
}

// ConvTranspose2DOp records a stride-1 unpadded transposed convolution.
//
// With kernel [C_in, C_out, K_h, K_w] the transposed convolution is the
// input-gradient of Conv2D(·, kernel), so its own gradients are:
//   - d_input:  Conv2D(d_output, kernel)
//   - d_kernel: Conv2DKernelBackward(d_output, kernel.shape, input)
type ConvTranspose2DOp struct {
	input  *tensor.RawTensor
	kernel *tensor.RawTensor
	output *tensor.RawTensor
}

// NewConvTranspose2DOp creates a new transposed convolution operation.
func NewConvTranspose2DOp(input, kernel, output *tensor.RawTensor) *ConvTranspose2DOp {
	return &ConvTranspose2DOp{input: input, kernel: kernel, output: output}
}

// Inputs returns the input tensors.
func (op *ConvTranspose2DOp) Inputs() []*tensor.RawTensor {
	return []*tensor.RawTensor{op.input, op.kernel}
}

// Output returns the output tensor.
func (op *ConvTranspose2DOp) Output() *tensor.RawTensor {
	return op.output
}

// Backward computes gradients for the transposed convolution.
func (op *ConvTranspose2DOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	inputGrad := backend.Conv2D(outputGrad, op.kernel, 1, 0)
	kernelGrad := backend.Conv2DKernelBackward(outputGrad, op.kernel.Shape(), op.input, 1, 0)
	return []*tensor.RawTensor{inputGrad, kernelGrad}
}
