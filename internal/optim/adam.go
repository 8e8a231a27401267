package optim

import (
	"fmt"
	"math"

	"github.com/born-ml/playlistnet/internal/nn"
	"github.com/born-ml/playlistnet/internal/tensor"
)

// Adam implements the Adam (Adaptive Moment Estimation) optimizer.
//
// Update rule:
//
//	m_t = beta1 * m_{t-1} + (1-beta1) * gradient
//	v_t = beta2 * v_{t-1} + (1-beta2) * gradient²
//	m_hat = m_t / (1 - beta1^t)
//	v_hat = v_t / (1 - beta2^t)
//	param = param - lr * m_hat / (sqrt(v_hat) + eps)
//
// Reference: "Adam: A Method for Stochastic Optimization" (Kingma & Ba, 2014)
type Adam struct {
	params []*nn.Parameter
	lr     float32
	beta1  float32
	beta2  float32
	eps    float32
	t      int // Timestep for bias correction
	m      map[*nn.Parameter][]float32
	v      map[*nn.Parameter][]float32
}

// AdamConfig holds configuration for Adam optimizer.
type AdamConfig struct {
	LR    float32    // Learning rate (default: 0.001)
	Betas [2]float32 // Coefficients for computing running averages (default: [0.9, 0.999])
	Eps   float32    // Term for numerical stability (default: 1e-8)
}

// NewAdam creates a new Adam optimizer, filling zero config fields with the
// usual defaults.
func NewAdam(params []*nn.Parameter, config AdamConfig) *Adam {
	if config.LR == 0 {
		config.LR = 0.001
	}
	if config.Betas[0] == 0 {
		config.Betas[0] = 0.9
	}
	if config.Betas[1] == 0 {
		config.Betas[1] = 0.999
	}
	if config.Eps == 0 {
		config.Eps = 1e-8
	}

	return &Adam{
		params: params,
		lr:     config.LR,
		beta1:  config.Betas[0],
		beta2:  config.Betas[1],
		eps:    config.Eps,
		m:      make(map[*nn.Parameter][]float32),
		v:      make(map[*nn.Parameter][]float32),
	}
}

// Step performs a single optimization step using Adam algorithm.
// Parameters with no gradient are skipped.
func (a *Adam) Step(grads map[*tensor.RawTensor]*tensor.RawTensor) {
	a.t++
	biasCorrection1 := float32(1.0 - math.Pow(float64(a.beta1), float64(a.t)))
	biasCorrection2 := float32(1.0 - math.Pow(float64(a.beta2), float64(a.t)))

	for _, param := range a.params {
		grad := getGradient(param, grads)
		if grad == nil {
			continue
		}

		n := param.Tensor().NumElements()
		m, ok := a.m[param]
		if !ok {
			m = make([]float32, n)
			a.m[param] = m
		}
		v, ok := a.v[param]
		if !ok {
			v = make([]float32, n)
			a.v[param] = v
		}

		gradData := grad.AsFloat32()
		paramData := param.Tensor().AsFloat32()
		for i := range paramData {
			g := gradData[i]
			m[i] = a.beta1*m[i] + (1.0-a.beta1)*g
			v[i] = a.beta2*v[i] + (1.0-a.beta2)*g*g
			mHat := m[i] / biasCorrection1
			vHat := v[i] / biasCorrection2
			paramData[i] -= a.lr * mHat / (float32(math.Sqrt(float64(vHat))) + a.eps)
		}
	}
}

// ZeroGrad clears gradients for all parameters.
func (a *Adam) ZeroGrad() {
	nn.ZeroGrad(a.params)
}

// GetLR returns the current learning rate.
func (a *Adam) GetLR() float32 {
	return a.lr
}

// SetLR sets the learning rate for the next step.
func (a *Adam) SetLR(lr float32) {
	a.lr = lr
}

// GetTimestep returns the current timestep (number of steps taken).
func (a *Adam) GetTimestep() int {
	return a.t
}

// State dict keys written by Adam. Slots are stored per parameter as
// "optimizer.adam.<param>.m" and "optimizer.adam.<param>.v".
const (
	adamPrefix  = "optimizer.adam."
	adamStepKey = adamPrefix + "step"
)

// StateDict returns the timestep and the moment estimates of every
// parameter that has taken a step. The tensors are copies.
func (a *Adam) StateDict() map[string]*tensor.RawTensor {
	state := make(map[string]*tensor.RawTensor, 2*len(a.m)+1)
	step, _ := tensor.FromInt32([]int32{int32(a.t)}, tensor.Shape{1}) //nolint:gosec // step counts fit int32
	state[adamStepKey] = step
	for _, p := range a.params {
		m, ok := a.m[p]
		if !ok {
			continue
		}
		state[adamPrefix+p.Name()+".m"], _ = tensor.FromFloat32(m, tensor.Shape{len(m)})
		state[adamPrefix+p.Name()+".v"], _ = tensor.FromFloat32(a.v[p], tensor.Shape{len(m)})
	}
	return state
}

// LoadStateDict restores what StateDict wrote. Keys it does not know are
// ignored, and a state without a timestep leaves the optimizer fresh.
func (a *Adam) LoadStateDict(state map[string]*tensor.RawTensor) error {
	step, ok := state[adamStepKey]
	if !ok {
		return nil
	}
	if step.DType() != tensor.Int32 || step.NumElements() != 1 {
		return fmt.Errorf("optim: %s must be one int32, got %s %v", adamStepKey, step.DType(), step.Shape())
	}

	m := make(map[*nn.Parameter][]float32, len(a.params))
	v := make(map[*nn.Parameter][]float32, len(a.params))
	for _, p := range a.params {
		mt, hasM := state[adamPrefix+p.Name()+".m"]
		vt, hasV := state[adamPrefix+p.Name()+".v"]
		if !hasM && !hasV {
			continue
		}
		n := p.Tensor().NumElements()
		if !hasM || !hasV || mt.NumElements() != n || vt.NumElements() != n {
			return fmt.Errorf("optim: adam slots of %s do not match its %d values", p.Name(), n)
		}
		m[p] = append([]float32(nil), mt.AsFloat32()...)
		v[p] = append([]float32(nil), vt.AsFloat32()...)
	}
	a.t, a.m, a.v = int(step.AsInt32()[0]), m, v
	return nil
}
