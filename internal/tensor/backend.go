package tensor

// Backend defines the interface that compute backends implement.
// Backends handle the actual computation; the autodiff decorator wraps a
// Backend and records the differentiable operations on a GradientTape.
//
// Shape misuse inside a kernel is a programmer error and panics. Callers
// that handle user data validate shapes before reaching the backend.
type Backend interface {
	Name() string
	Device() Device

	// Element-wise binary operations with NumPy-style broadcasting.
	Add(a, b *RawTensor) *RawTensor
	Sub(a, b *RawTensor) *RawTensor
	Mul(a, b *RawTensor) *RawTensor

	// MatMul multiplies 2-D matrices: [M, K] @ [K, N] -> [M, N].
	MatMul(a, b *RawTensor) *RawTensor
	// MatMulTransposed multiplies op(a) @ op(b) where op transposes when
	// the matching flag is set.
	MatMulTransposed(a, b *RawTensor, transA, transB bool) *RawTensor

	// Convolution over NCHW inputs with [C_out, C_in, K_h, K_w] kernels.
	Conv2D(input, kernel *RawTensor, stride, padding int) *RawTensor
	Conv2DInputBackward(inputShape Shape, kernel, grad *RawTensor, stride, padding int) *RawTensor
	Conv2DKernelBackward(input *RawTensor, kernelShape Shape, grad *RawTensor, stride, padding int) *RawTensor
	// ConvTranspose2D is the stride-1 unpadded transposed convolution with a
	// [C_in, C_out, K_h, K_w] kernel: [N, C_in, H, W] -> [N, C_out, H+K_h-1, W+K_w-1].
	ConvTranspose2D(input, kernel *RawTensor) *RawTensor

	// BatchNorm2D normalizes each channel with statistics over batch and
	// spatial axes. It also returns the per-channel mean and 1/sqrt(var+eps).
	BatchNorm2D(x, scale, offset *RawTensor, eps float32) (out, mean, invStd *RawTensor)

	// Shape operations
	Reshape(t *RawTensor, newShape Shape) *RawTensor
	Narrow(t *RawTensor, dim, start, length int) *RawTensor
	Cat(ts []*RawTensor, dim int) *RawTensor
	// Gather selects rows of a 2-D weight by int32 indices of any shape;
	// the result has shape indices.Shape() + [weight.Shape()[1]].
	Gather(weight, indices *RawTensor) *RawTensor
	BroadcastTo(t *RawTensor, shape Shape) *RawTensor
	// ReduceTo sums t over the dimensions that were broadcast from shape.
	ReduceTo(t *RawTensor, shape Shape) *RawTensor

	// Reductions
	SumDim(x *RawTensor, dim int, keepDim bool) *RawTensor
	Sum(x *RawTensor) *RawTensor

	// Scalar operations
	MulScalar(x *RawTensor, scalar float32) *RawTensor
	AddScalar(x *RawTensor, scalar float32) *RawTensor

	// Element-wise math and activations
	Exp(x *RawTensor) *RawTensor
	Log(x *RawTensor) *RawTensor
	Sigmoid(x *RawTensor) *RawTensor
	Tanh(x *RawTensor) *RawTensor
	ReLU(x *RawTensor) *RawTensor

	// Softmax along the last dimension.
	Softmax(x *RawTensor) *RawTensor
	// SoftmaxCrossEntropy returns the scalar Σ_i weights[i] * CE(logits[i], targets[i])
	// for logits [N, V], int32 targets [N] and float32 weights [N].
	SoftmaxCrossEntropy(logits, targets, weights *RawTensor) *RawTensor
}
