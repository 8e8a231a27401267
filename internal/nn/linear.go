package nn

import (
	"fmt"

	"github.com/born-ml/playlistnet/internal/tensor"
)

// Linear implements a fully connected (dense) layer.
//
// Performs the transformation: y = x @ W + b
// where:
//   - x has shape [..., in_features]; leading dimensions are flattened
//   - W is the weight matrix with shape [in_features, out_features]
//   - b is the optional bias vector with shape [out_features]
//
// Example:
//
//	proj := nn.NewLinear("concat_projection", 142, 128, true, init, backend)
//	out := proj.Forward(x) // [B, T, 142] -> [B, T, 128]
type Linear struct {
	inFeatures  int
	outFeatures int
	weight      *Parameter
	bias        *Parameter // nil when the layer has no bias
	backend     tensor.Backend
}

// NewLinear creates a new Linear layer. The weight is drawn from init and
// the bias, when enabled, starts at zero.
func NewLinear(name string, inFeatures, outFeatures int, bias bool, init Initializer, backend tensor.Backend) *Linear {
	l := &Linear{
		inFeatures:  inFeatures,
		outFeatures: outFeatures,
		weight:      NewParameter(name+".weight", init(tensor.Shape{inFeatures, outFeatures})),
		backend:     backend,
	}
	if bias {
		l.bias = NewParameter(name+".bias", Zeros(tensor.Shape{outFeatures}))
	}
	return l
}

// Forward computes the output of the linear layer.
func (l *Linear) Forward(input *tensor.RawTensor) *tensor.RawTensor {
	shape := input.Shape()
	if len(shape) < 2 || shape[len(shape)-1] != l.inFeatures {
		panic(fmt.Sprintf("linear: expected [..., %d] input, got %v", l.inFeatures, shape))
	}

	x := input
	if len(shape) > 2 {
		x = l.backend.Reshape(input, tensor.Shape{shape.NumElements() / l.inFeatures, l.inFeatures})
	}
	out := l.backend.MatMul(x, l.weight.Tensor())
	if l.bias != nil {
		out = l.backend.Add(out, l.bias.Tensor())
	}
	if len(shape) > 2 {
		outShape := shape.Clone()
		outShape[len(outShape)-1] = l.outFeatures
		out = l.backend.Reshape(out, outShape)
	}
	return out
}

// Weight returns the weight parameter.
func (l *Linear) Weight() *Parameter {
	return l.weight
}

// Parameters returns the weight and, when present, the bias.
func (l *Linear) Parameters() []*Parameter {
	if l.bias == nil {
		return []*Parameter{l.weight}
	}
	return []*Parameter{l.weight, l.bias}
}

// InFeatures returns the number of input features.
func (l *Linear) InFeatures() int {
	return l.inFeatures
}

// OutFeatures returns the number of output features.
func (l *Linear) OutFeatures() int {
	return l.outFeatures
}
