// Package nn implements the neural network layers both playlist models are
// assembled from.
//
// This package provides:
//   - Module interface and Parameter with gradient slots
//   - Linear, Embedding, Conv2D, ConvTranspose2D, BatchNorm2D, Dropout
//   - LSTMCell and StackedLSTM with length masking
//   - Luong and Bahdanau attention, AttentionWrapper
//   - Masked sequence cross-entropy and the policy-gradient loss
//
// Layers hold a tensor.Backend. When that backend is an autodiff decorator
// with a recording tape, every forward pass is recorded for Backward.
package nn

import (
	"fmt"

	"github.com/born-ml/playlistnet/internal/tensor"
)

// Module is the base interface for all neural network components.
type Module interface {
	// Parameters returns all trainable parameters of this module,
	// including those of nested modules.
	Parameters() []*Parameter
}

// CollectParameters concatenates the parameters of several modules in order.
func CollectParameters(modules ...Module) []*Parameter {
	var params []*Parameter
	for _, m := range modules {
		params = append(params, m.Parameters()...)
	}
	return params
}

// CountParameters returns the total number of scalar weights.
func CountParameters(params []*Parameter) int {
	n := 0
	for _, p := range params {
		n += p.Tensor().NumElements()
	}
	return n
}

// StateDict maps parameter names to their current tensors.
func StateDict(params []*Parameter) map[string]*tensor.RawTensor {
	state := make(map[string]*tensor.RawTensor, len(params))
	for _, p := range params {
		state[p.Name()] = p.Tensor()
	}
	return state
}

// LoadStateDict copies tensors from state into params by name.
// Every parameter must be present with a matching shape.
func LoadStateDict(params []*Parameter, state map[string]*tensor.RawTensor) error {
	for _, p := range params {
		t, ok := state[p.Name()]
		if !ok {
			return fmt.Errorf("missing parameter %q", p.Name())
		}
		if !t.Shape().Equal(p.Tensor().Shape()) {
			return fmt.Errorf("parameter %q: shape %v, want %v", p.Name(), t.Shape(), p.Tensor().Shape())
		}
		p.SetTensor(t.Clone())
	}
	return nil
}

// ZeroGrad clears the gradients of every parameter.
func ZeroGrad(params []*Parameter) {
	for _, p := range params {
		p.ZeroGrad()
	}
}
