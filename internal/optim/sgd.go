package optim

import (
	"github.com/born-ml/playlistnet/internal/nn"
	"github.com/born-ml/playlistnet/internal/tensor"
)

// SGD implements Stochastic Gradient Descent optimizer.
//
// Update rule (without momentum):
//
//	param = param - lr * gradient
//
// Update rule (with momentum):
//
//	velocity = momentum * velocity + gradient
//	param = param - lr * velocity
type SGD struct {
	params   []*nn.Parameter
	lr       float32
	momentum float32
	velocity map[*nn.Parameter][]float32
}

// SGDConfig holds configuration for SGD optimizer.
type SGDConfig struct {
	LR       float32 // Learning rate (default: 0.01)
	Momentum float32 // Momentum factor (default: 0.0, no momentum)
}

// NewSGD creates a new SGD optimizer.
func NewSGD(params []*nn.Parameter, config SGDConfig) *SGD {
	if config.LR == 0 {
		config.LR = 0.01
	}
	return &SGD{
		params:   params,
		lr:       config.LR,
		momentum: config.Momentum,
		velocity: make(map[*nn.Parameter][]float32),
	}
}

// Step performs a single optimization step.
func (s *SGD) Step(grads map[*tensor.RawTensor]*tensor.RawTensor) {
	for _, param := range s.params {
		grad := getGradient(param, grads)
		if grad == nil {
			continue
		}
		g := grad.AsFloat32()
		data := param.Tensor().AsFloat32()

		if s.momentum == 0 {
			for i := range data {
				data[i] -= s.lr * g[i]
			}
			continue
		}

		v, ok := s.velocity[param]
		if !ok {
			v = make([]float32, len(data))
			s.velocity[param] = v
		}
		for i := range data {
			v[i] = s.momentum*v[i] + g[i]
			data[i] -= s.lr * v[i]
		}
	}
}

// ZeroGrad clears gradients for all parameters.
func (s *SGD) ZeroGrad() {
	nn.ZeroGrad(s.params)
}

// GetLR returns the current learning rate.
func (s *SGD) GetLR() float32 {
	return s.lr
}

// SetLR sets the learning rate for the next step.
func (s *SGD) SetLR(lr float32) {
	s.lr = lr
}
