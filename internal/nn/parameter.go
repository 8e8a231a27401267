package nn

import (
	"github.com/born-ml/playlistnet/internal/tensor"
)

// Parameter represents a trainable parameter in a neural network.
//
// Parameters are tensors that require gradient computation during training.
// Optimizers update the buffer in place after Backward has consumed the tape;
// LoadStateDict installs copies with SetTensor.
//
// Example:
//
//	weight := nn.NewParameter("decoder.projection.weight", w)
//	grads := autodiff.Backward(loss, backend)
//	weight.SetGrad(grads[weight.Tensor()])
type Parameter struct {
	name   string
	tensor *tensor.RawTensor
	grad   *tensor.RawTensor
}

// NewParameter creates a new trainable parameter.
func NewParameter(name string, t *tensor.RawTensor) *Parameter {
	return &Parameter{
		name:   name,
		tensor: t,
	}
}

// Name returns the parameter name.
func (p *Parameter) Name() string {
	return p.name
}

// Tensor returns the parameter tensor.
func (p *Parameter) Tensor() *tensor.RawTensor {
	return p.tensor
}

// SetTensor replaces the parameter value.
func (p *Parameter) SetTensor(t *tensor.RawTensor) {
	p.tensor = t
}

// Grad returns the gradient tensor.
//
// Returns nil if no gradient has been computed yet (before backward pass),
// or when the parameter did not take part in the last forward pass.
func (p *Parameter) Grad() *tensor.RawTensor {
	return p.grad
}

// SetGrad sets the gradient tensor.
func (p *Parameter) SetGrad(grad *tensor.RawTensor) {
	p.grad = grad
}

// ZeroGrad clears the gradient tensor.
func (p *Parameter) ZeroGrad() {
	p.grad = nil
}
