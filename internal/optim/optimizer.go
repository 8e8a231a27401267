// Package optim implements optimization algorithms for training neural networks.
//
// This package provides:
//   - Optimizer interface: Base interface for all optimizers
//   - SGD: Stochastic Gradient Descent with momentum and an adjustable rate
//   - Adam: Adaptive Moment Estimation
//   - ClipByGlobalNorm: gradient rescaling before an update
//   - StaircaseDecay, SamplingProbability: pure schedules of the step counter
//
// Example usage:
//
//	optimizer := optim.NewSGD(params, optim.SGDConfig{LR: 0.5})
//
//	backend.Tape().StartRecording()
//	loss := model.Loss(batch)
//	grads := autodiff.Backward(loss, backend)
//	clipped, norm := optim.ClipByGlobalNorm(params, grads, 5)
//
//	optimizer.SetLR(optim.StaircaseDecay(0.5, step, 20000, 10000, 0.98))
//	optimizer.Step(clipped)
//	optimizer.ZeroGrad()
package optim

import (
	"github.com/born-ml/playlistnet/internal/nn"
	"github.com/born-ml/playlistnet/internal/tensor"
)

// Optimizer is the base interface for all optimization algorithms.
type Optimizer interface {
	// Step applies gradient updates to all parameters.
	//
	// Takes a gradient map from Backward() and updates parameters in-place.
	// Parameters missing from the map are left unchanged.
	Step(grads map[*tensor.RawTensor]*tensor.RawTensor)

	// ZeroGrad clears all parameter gradients.
	ZeroGrad()

	// GetLR returns the current learning rate.
	GetLR() float32

	// SetLR replaces the learning rate used by the next Step.
	SetLR(lr float32)
}

// Stateful is an optimizer whose slots survive a checkpoint.
type Stateful interface {
	Optimizer
	StateDict() map[string]*tensor.RawTensor
	LoadStateDict(state map[string]*tensor.RawTensor) error
}

// Config is the base configuration for all optimizers.
type Config struct {
	LR float32 // Learning rate
}

// getGradient safely retrieves gradient for a parameter.
//
// Returns nil if no gradient is found (parameter wasn't part of computation graph).
// The gradient is also stored on the parameter for inspection.
func getGradient(param *nn.Parameter, grads map[*tensor.RawTensor]*tensor.RawTensor) *tensor.RawTensor {
	if param == nil {
		return nil
	}
	grad := grads[param.Tensor()]
	if grad != nil {
		param.SetGrad(grad)
	}
	return grad
}
