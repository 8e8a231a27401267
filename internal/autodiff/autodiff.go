// Package autodiff implements automatic differentiation using the decorator pattern.
//
// AutodiffBackend wraps a Backend implementation and adds gradient tracking
// through a GradientTape.
//
// Architecture:
//   - Decorator pattern: AutodiffBackend wraps any tensor.Backend
//   - GradientTape: Records operations during forward pass
//   - Operation interface: Each op implements its backward rule
//   - Reverse-mode AD: Computes gradients efficiently using chain rule
//
// Usage:
//
//	backend := autodiff.New(cpu.New())
//	backend.Tape().StartRecording()
//	y := backend.Mul(x, x) // y = x²
//	loss := backend.Sum(y)
//	grads := autodiff.Backward(loss, backend)
//	fmt.Println(grads[x]) // dy/dx = 2x
package autodiff

import (
	"github.com/born-ml/playlistnet/internal/autodiff/ops"
	"github.com/born-ml/playlistnet/internal/tensor"
)

// AutodiffBackend wraps a Backend and adds automatic differentiation.
// It implements the tensor.Backend interface and records operations in a GradientTape.
type AutodiffBackend struct {
	inner tensor.Backend
	tape  *GradientTape
}

// New creates a new AutodiffBackend wrapping the given backend.
func New(backend tensor.Backend) *AutodiffBackend {
	return &AutodiffBackend{
		inner: backend,
		tape:  NewGradientTape(),
	}
}

// Tape returns the gradient tape for manual control.
func (b *AutodiffBackend) Tape() *GradientTape {
	return b.tape
}

// Inner returns the wrapped backend for direct access.
func (b *AutodiffBackend) Inner() tensor.Backend {
	return b.inner
}

// Name returns the backend name.
func (b *AutodiffBackend) Name() string {
	return "Autodiff(" + b.inner.Name() + ")"
}

// Device returns the compute device.
func (b *AutodiffBackend) Device() tensor.Device {
	return b.inner.Device()
}

func (b *AutodiffBackend) record(op ops.Operation) {
	if b.tape.IsRecording() {
		b.tape.Record(op)
	}
}

// Add performs element-wise addition and records the operation.
func (b *AutodiffBackend) Add(a, c *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.Add(a, c)
	b.record(ops.NewAddOp(a, c, result))
	return result
}

// Sub performs element-wise subtraction and records the operation.
func (b *AutodiffBackend) Sub(a, c *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.Sub(a, c)
	b.record(ops.NewSubOp(a, c, result))
	return result
}

// Mul performs element-wise multiplication and records the operation.
func (b *AutodiffBackend) Mul(a, c *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.Mul(a, c)
	b.record(ops.NewMulOp(a, c, result))
	return result
}

// MatMul performs matrix multiplication and records the operation.
func (b *AutodiffBackend) MatMul(a, c *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.MatMul(a, c)
	b.record(ops.NewMatMulOp(a, c, result))
	return result
}

// MatMulTransposed delegates to the wrapped backend without recording.
// It exists for backward rules; forward code uses MatMul.
func (b *AutodiffBackend) MatMulTransposed(a, c *tensor.RawTensor, transA, transB bool) *tensor.RawTensor {
	return b.inner.MatMulTransposed(a, c, transA, transB)
}

// Conv2D performs 2D convolution and records the operation.
func (b *AutodiffBackend) Conv2D(input, kernel *tensor.RawTensor, stride, padding int) *tensor.RawTensor {
	result := b.inner.Conv2D(input, kernel, stride, padding)
	b.record(ops.NewConv2DOp(input, kernel, result, stride, padding))
	return result
}

// Conv2DInputBackward delegates to the wrapped backend without recording.
func (b *AutodiffBackend) Conv2DInputBackward(inputShape tensor.Shape, kernel, grad *tensor.RawTensor, stride, padding int) *tensor.RawTensor {
	return b.inner.Conv2DInputBackward(inputShape, kernel, grad, stride, padding)
}

// Conv2DKernelBackward delegates to the wrapped backend without recording.
func (b *AutodiffBackend) Conv2DKernelBackward(input *tensor.RawTensor, kernelShape tensor.Shape, grad *tensor.RawTensor, stride, padding int) *tensor.RawTensor {
	return b.inner.Conv2DKernelBackward(input, kernelShape, grad, stride, padding)
}

// ConvTranspose2D performs a transposed convolution and records the operation.
func (b *AutodiffBackend) ConvTranspose2D(input, kernel *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.ConvTranspose2D(input, kernel)
	b.record(ops.NewConvTranspose2DOp(input, kernel, result))
	return result
}

// BatchNorm2D normalizes per channel and records the operation.
func (b *AutodiffBackend) BatchNorm2D(x, scale, offset *tensor.RawTensor, eps float32) (out, mean, invStd *tensor.RawTensor) {
	out, mean, invStd = b.inner.BatchNorm2D(x, scale, offset, eps)
	b.record(ops.NewBatchNorm2DOp(x, scale, offset, mean, invStd, out))
	return out, mean, invStd
}

// Reshape changes the tensor shape and records the operation.
func (b *AutodiffBackend) Reshape(t *tensor.RawTensor, newShape tensor.Shape) *tensor.RawTensor {
	result := b.inner.Reshape(t, newShape)
	b.record(ops.NewReshapeOp(t, result))
	return result
}

// Narrow slices along a dimension and records the operation.
func (b *AutodiffBackend) Narrow(t *tensor.RawTensor, dim, start, length int) *tensor.RawTensor {
	result := b.inner.Narrow(t, dim, start, length)
	b.record(ops.NewNarrowOp(t, result, dim, start))
	return result
}

// Cat concatenates tensors and records the operation.
func (b *AutodiffBackend) Cat(ts []*tensor.RawTensor, dim int) *tensor.RawTensor {
	result := b.inner.Cat(ts, dim)
	b.record(ops.NewCatOp(ts, result, dim))
	return result
}

// Gather looks up embedding rows and records the operation.
func (b *AutodiffBackend) Gather(weight, indices *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.Gather(weight, indices)
	b.record(ops.NewGatherOp(weight, indices, result))
	return result
}

// BroadcastTo delegates to the wrapped backend without recording.
func (b *AutodiffBackend) BroadcastTo(t *tensor.RawTensor, shape tensor.Shape) *tensor.RawTensor {
	return b.inner.BroadcastTo(t, shape)
}

// ReduceTo delegates to the wrapped backend without recording.
func (b *AutodiffBackend) ReduceTo(t *tensor.RawTensor, shape tensor.Shape) *tensor.RawTensor {
	return b.inner.ReduceTo(t, shape)
}

// SumDim sums along a dimension and records the operation.
func (b *AutodiffBackend) SumDim(x *tensor.RawTensor, dim int, keepDim bool) *tensor.RawTensor {
	result := b.inner.SumDim(x, dim, keepDim)
	b.record(ops.NewSumDimOp(x, result, dim, keepDim))
	return result
}

// Sum reduces to a scalar and records the operation.
func (b *AutodiffBackend) Sum(x *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.Sum(x)
	b.record(ops.NewSumOp(x, result))
	return result
}

// MulScalar multiplies by a scalar and records the operation.
func (b *AutodiffBackend) MulScalar(x *tensor.RawTensor, scalar float32) *tensor.RawTensor {
	result := b.inner.MulScalar(x, scalar)
	b.record(ops.NewMulScalarOp(x, result, scalar))
	return result
}

// AddScalar adds a scalar and records the operation.
func (b *AutodiffBackend) AddScalar(x *tensor.RawTensor, scalar float32) *tensor.RawTensor {
	result := b.inner.AddScalar(x, scalar)
	b.record(ops.NewAddScalarOp(x, result))
	return result
}

// Exp computes e^x and records the operation.
func (b *AutodiffBackend) Exp(x *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.Exp(x)
	b.record(ops.NewExpOp(x, result))
	return result
}

// Log computes ln(x) and records the operation.
func (b *AutodiffBackend) Log(x *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.Log(x)
	b.record(ops.NewLogOp(x, result))
	return result
}

// Sigmoid applies the logistic function and records the operation.
func (b *AutodiffBackend) Sigmoid(x *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.Sigmoid(x)
	b.record(ops.NewSigmoidOp(x, result))
	return result
}

// Tanh applies the hyperbolic tangent and records the operation.
func (b *AutodiffBackend) Tanh(x *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.Tanh(x)
	b.record(ops.NewTanhOp(x, result))
	return result
}

// ReLU applies max(0, x) and records the operation.
func (b *AutodiffBackend) ReLU(x *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.ReLU(x)
	b.record(ops.NewReLUOp(x, result))
	return result
}

// Softmax applies softmax over the last dimension and records the operation.
func (b *AutodiffBackend) Softmax(x *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.Softmax(x)
	b.record(ops.NewSoftmaxOp(x, result))
	return result
}

// SoftmaxCrossEntropy computes the weighted cross-entropy and records the operation.
func (b *AutodiffBackend) SoftmaxCrossEntropy(logits, targets, weights *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.SoftmaxCrossEntropy(logits, targets, weights)
	b.record(ops.NewSoftmaxCrossEntropyOp(logits, targets, weights, result))
	return result
}
