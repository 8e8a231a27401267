package nn

import (
	"fmt"
	"math/rand/v2"

	"github.com/born-ml/playlistnet/internal/tensor"
)

// LSTMState is the (c, h) pair carried between LSTM steps, each [B, units].
type LSTMState struct {
	C *tensor.RawTensor
	H *tensor.RawTensor
}

// LSTMCell is a single LSTM layer step.
//
// The kernel is applied to concat([x, h]) and split into the i, j, f, o
// gate blocks:
//
//	c' = σ(f + forgetBias) * c + σ(i) * tanh(j)
//	h' = σ(o) * tanh(c')
type LSTMCell struct {
	inputSize  int
	units      int
	forgetBias float32
	kernel     *Parameter // [input+units, 4*units]
	bias       *Parameter // [4*units]
	backend    tensor.Backend
}

// NewLSTMCell creates an LSTM cell with forget bias 1.0.
func NewLSTMCell(name string, inputSize, units int, init Initializer, backend tensor.Backend) *LSTMCell {
	return &LSTMCell{
		inputSize:  inputSize,
		units:      units,
		forgetBias: 1.0,
		kernel:     NewParameter(name+".kernel", init(tensor.Shape{inputSize + units, 4 * units})),
		bias:       NewParameter(name+".bias", Zeros(tensor.Shape{4 * units})),
		backend:    backend,
	}
}

// ZeroState returns an all-zero state for a batch.
func (c *LSTMCell) ZeroState(batch int) LSTMState {
	return LSTMState{
		C: Zeros(tensor.Shape{batch, c.units}),
		H: Zeros(tensor.Shape{batch, c.units}),
	}
}

// Step advances the cell by one time step. x is [B, input].
func (c *LSTMCell) Step(x *tensor.RawTensor, state LSTMState) (*tensor.RawTensor, LSTMState) {
	if x.Shape()[1] != c.inputSize {
		panic(fmt.Sprintf("lstm: expected input width %d, got %v", c.inputSize, x.Shape()))
	}
	b := c.backend
	gates := b.Add(b.MatMul(b.Cat([]*tensor.RawTensor{x, state.H}, 1), c.kernel.Tensor()), c.bias.Tensor())

	i := b.Narrow(gates, 1, 0, c.units)
	j := b.Narrow(gates, 1, c.units, c.units)
	f := b.Narrow(gates, 1, 2*c.units, c.units)
	o := b.Narrow(gates, 1, 3*c.units, c.units)

	newC := b.Add(
		b.Mul(b.Sigmoid(b.AddScalar(f, c.forgetBias)), state.C),
		b.Mul(b.Sigmoid(i), b.Tanh(j)),
	)
	newH := b.Mul(b.Sigmoid(o), b.Tanh(newC))
	return newH, LSTMState{C: newC, H: newH}
}

// Units returns the hidden size.
func (c *LSTMCell) Units() int {
	return c.units
}

// Parameters returns kernel and bias.
func (c *LSTMCell) Parameters() []*Parameter {
	return []*Parameter{c.kernel, c.bias}
}

// StackedLSTM runs several LSTM layers per step, feeding each layer's output
// into the next. Every layer's input passes through its own dropout.
type StackedLSTM struct {
	cells    []*LSTMCell
	dropouts []*Dropout
	backend  tensor.Backend
}

// NewStackedLSTM creates numLayers cells with independent weights. The first
// layer reads inputSize features, the rest read units.
func NewStackedLSTM(name string, numLayers, inputSize, units int, dropout float64, src rand.Source, init Initializer, backend tensor.Backend) *StackedLSTM {
	s := &StackedLSTM{backend: backend}
	in := inputSize
	for l := 0; l < numLayers; l++ {
		s.cells = append(s.cells, NewLSTMCell(fmt.Sprintf("%s.cell_%d", name, l), in, units, init, backend))
		s.dropouts = append(s.dropouts, NewDropout(dropout, src, backend))
		in = units
	}
	return s
}

// ZeroState returns zero states for every layer.
func (s *StackedLSTM) ZeroState(batch int) []LSTMState {
	states := make([]LSTMState, len(s.cells))
	for l, c := range s.cells {
		states[l] = c.ZeroState(batch)
	}
	return states
}

// Step advances every layer by one step and returns the top layer output.
func (s *StackedLSTM) Step(x *tensor.RawTensor, states []LSTMState, train bool) (*tensor.RawTensor, []LSTMState) {
	next := make([]LSTMState, len(s.cells))
	out := x
	for l, c := range s.cells {
		out, next[l] = c.Step(s.dropouts[l].Forward(out, train), states[l])
	}
	return out, next
}

// Run unrolls the stack over inputs [B, T, input] from zero state.
//
// Rows stop advancing at their length: past it the state is carried through
// unchanged and the output is zero. The returned states are each row's state
// at its own final step.
func (s *StackedLSTM) Run(inputs *tensor.RawTensor, lengths []int32, train bool) (*tensor.RawTensor, []LSTMState) {
	shape := inputs.Shape()
	batch, steps, width := shape[0], shape[1], shape[2]
	b := s.backend

	states := s.ZeroState(batch)
	outputs := make([]*tensor.RawTensor, steps)
	active := 0
	for _, n := range lengths {
		active = max(active, min(int(n), steps))
	}
	for t := active; t < steps; t++ {
		outputs[t] = Zeros(tensor.Shape{batch, 1, s.Units()})
	}
	for t := 0; t < active; t++ {
		x := b.Reshape(b.Narrow(inputs, 1, t, 1), tensor.Shape{batch, width})
		out, next := s.Step(x, states, train)

		keep, hold := StepMasks(lengths, t)
		for l := range next {
			next[l] = LSTMState{
				C: b.Add(b.Mul(next[l].C, keep), b.Mul(states[l].C, hold)),
				H: b.Add(b.Mul(next[l].H, keep), b.Mul(states[l].H, hold)),
			}
		}
		states = next
		outputs[t] = b.Reshape(b.Mul(out, keep), tensor.Shape{batch, 1, s.Units()})
	}
	return b.Cat(outputs, 1), states
}

// Units returns the hidden size of the top layer.
func (s *StackedLSTM) Units() int {
	return s.cells[len(s.cells)-1].units
}

// Parameters returns every cell's parameters, bottom layer first.
func (s *StackedLSTM) Parameters() []*Parameter {
	var params []*Parameter
	for _, c := range s.cells {
		params = append(params, c.Parameters()...)
	}
	return params
}

// StepMasks returns [B, 1] constants: keep is 1 where t < lengths[b] and
// hold is its complement.
func StepMasks(lengths []int32, t int) (keep, hold *tensor.RawTensor) {
	keep = Zeros(tensor.Shape{len(lengths), 1})
	hold = Zeros(tensor.Shape{len(lengths), 1})
	k, h := keep.AsFloat32(), hold.AsFloat32()
	for i, n := range lengths {
		if int32(t) < n {
			k[i] = 1
		} else {
			h[i] = 1
		}
	}
	return keep, hold
}
