package ops

import "github.com/born-ml/playlistnet/internal/tensor"

// unaryOp is shared by the element-wise operations whose derivative can be
// written from the input x, the output y and the output gradient g.
type unaryOp struct {
	x      *tensor.RawTensor
	output *tensor.RawTensor
	deriv  func(x, y, g float32) float32
}

func (op *unaryOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	grad := tensor.MustNewRaw(op.x.Shape(), tensor.Float32, backend.Device())
	dx := grad.AsFloat32()
	x := op.x.AsFloat32()
	y := op.output.AsFloat32()
	g := outputGrad.AsFloat32()
	for i := range dx {
		dx[i] = op.deriv(x[i], y[i], g[i])
	}
	return []*tensor.RawTensor{grad}
}

func (op *unaryOp) Inputs() []*tensor.RawTensor { return []*tensor.RawTensor{op.x} }

func (op *unaryOp) Output() *tensor.RawTensor { return op.output }

// ExpOp represents y = e^x; dy/dx = y.
type ExpOp struct{ unaryOp }

// NewExpOp creates a new ExpOp.
func NewExpOp(x, output *tensor.RawTensor) *ExpOp {
	return &ExpOp{unaryOp{x: x, output: output, deriv: func(_, y, g float32) float32 { return g * y }}}
}

// LogOp represents y = ln(x); dy/dx = 1/x.
type LogOp struct{ unaryOp }

// NewLogOp creates a new LogOp.
func NewLogOp(x, output *tensor.RawTensor) *LogOp {
	return &LogOp{unaryOp{x: x, output: output, deriv: func(x, _, g float32) float32 { return g / x }}}
}

// SigmoidOp represents y = σ(x); dy/dx = y(1-y).
type SigmoidOp struct{ unaryOp }

// NewSigmoidOp creates a new SigmoidOp.
func NewSigmoidOp(x, output *tensor.RawTensor) *SigmoidOp {
	return &SigmoidOp{unaryOp{x: x, output: output, deriv: func(_, y, g float32) float32 { return g * y * (1 - y) }}}
}

// TanhOp represents y = tanh(x); dy/dx = 1 - y².
type TanhOp struct{ unaryOp }

// NewTanhOp creates a new TanhOp.
func NewTanhOp(x, output *tensor.RawTensor) *TanhOp {
	return &TanhOp{unaryOp{x: x, output: output, deriv: func(_, y, g float32) float32 { return g * (1 - y*y) }}}
}

// ReLUOp represents y = max(0, x); dy/dx = 1 if x > 0, else 0.
type ReLUOp struct{ unaryOp }

// NewReLUOp creates a new ReLUOp.
func NewReLUOp(x, output *tensor.RawTensor) *ReLUOp {
	return &ReLUOp{unaryOp{x: x, output: output, deriv: func(x, _, g float32) float32 {
		if x > 0 {
			return g
		}
		return 0
	}}}
}
