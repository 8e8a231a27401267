package nn

import (
	"github.com/born-ml/playlistnet/internal/tensor"
)

// Conv2D is an unpadded stride-1 convolution over NCHW inputs.
//
// Input:  [N, C_in, H, W]
// Output: [N, C_out, H-K_h+1, W-K_w+1]
//
// The layer has no bias: in the convolutional stack a bias is added after
// batch normalization.
type Conv2D struct {
	kernel  *Parameter // [C_out, C_in, K_h, K_w]
	backend tensor.Backend
}

// NewConv2D creates a convolution layer with kernel drawn from init.
func NewConv2D(name string, inChannels, outChannels, kernelH, kernelW int, init Initializer, backend tensor.Backend) *Conv2D {
	return &Conv2D{
		kernel:  NewParameter(name, init(tensor.Shape{outChannels, inChannels, kernelH, kernelW})),
		backend: backend,
	}
}

// Forward applies the convolution.
func (c *Conv2D) Forward(x *tensor.RawTensor) *tensor.RawTensor {
	return c.backend.Conv2D(x, c.kernel.Tensor(), 1, 0)
}

// Parameters returns the kernel.
func (c *Conv2D) Parameters() []*Parameter {
	return []*Parameter{c.kernel}
}

// ConvTranspose2D is the unpadded stride-1 transposed convolution that
// undoes the spatial shrink of a matching Conv2D.
//
// Input:  [N, C_in, H, W]
// Output: [N, C_out, H+K_h-1, W+K_w-1]
type ConvTranspose2D struct {
	kernel  *Parameter // [C_in, C_out, K_h, K_w]
	backend tensor.Backend
}

// NewConvTranspose2D creates a transposed convolution with kernel drawn from init.
func NewConvTranspose2D(name string, inChannels, outChannels, kernelH, kernelW int, init Initializer, backend tensor.Backend) *ConvTranspose2D {
	return &ConvTranspose2D{
		kernel:  NewParameter(name, init(tensor.Shape{inChannels, outChannels, kernelH, kernelW})),
		backend: backend,
	}
}

// Forward applies the transposed convolution.
func (c *ConvTranspose2D) Forward(x *tensor.RawTensor) *tensor.RawTensor {
	return c.backend.ConvTranspose2D(x, c.kernel.Tensor())
}

// Parameters returns the kernel.
func (c *ConvTranspose2D) Parameters() []*Parameter {
	return []*Parameter{c.kernel}
}
