package nn

import (
	"fmt"

	"github.com/born-ml/playlistnet/internal/tensor"
)

// maskValue is added to scores of padded memory positions so softmax gives
// them no weight.
const maskValue = -1e9

// AttentionMechanism scores decoder queries against an encoder memory.
// Bind projects one batch of memory; the returned Memory is reused for every
// decoder step of that batch.
type AttentionMechanism interface {
	Module
	Bind(memory *tensor.RawTensor, lengths []int32) *Memory
	score(query *tensor.RawTensor, m *Memory) *tensor.RawTensor
}

// Memory is an encoder memory bound to an attention mechanism.
type Memory struct {
	mech   AttentionMechanism
	values *tensor.RawTensor // [B, T, D], zero past each row's length
	keys   *tensor.RawTensor // [B, T, units]
	bias   *tensor.RawTensor // [B, T]: 0 on valid positions, maskValue elsewhere
}

// Attend returns the alignment [B, T] and context [B, D] for query [B, Q].
func (m *Memory) Attend(query *tensor.RawTensor, backend tensor.Backend) (alignments, context *tensor.RawTensor) {
	vs := m.values.Shape()
	alignments = backend.Softmax(backend.Add(m.mech.score(query, m), m.bias))
	weighted := backend.Mul(backend.Reshape(alignments, tensor.Shape{vs[0], vs[1], 1}), m.values)
	return alignments, backend.SumDim(weighted, 1, false)
}

func bindMemory(mech AttentionMechanism, memoryLayer *Linear, memory *tensor.RawTensor, lengths []int32, backend tensor.Backend) *Memory {
	shape := memory.Shape()
	if len(shape) != 3 || len(lengths) != shape[0] {
		panic(fmt.Sprintf("attention: memory %v does not match %d lengths", shape, len(lengths)))
	}
	batch, steps := shape[0], shape[1]

	valid := Zeros(tensor.Shape{batch, steps, 1})
	bias := tensor.Full(tensor.Shape{batch, steps}, maskValue)
	vd, bd := valid.AsFloat32(), bias.AsFloat32()
	for i, n := range lengths {
		for t := 0; t < steps && t < int(n); t++ {
			vd[i*steps+t] = 1
			bd[i*steps+t] = 0
		}
	}

	values := backend.Mul(memory, valid)
	return &Memory{
		mech:   mech,
		values: values,
		keys:   memoryLayer.Forward(values),
		bias:   bias,
	}
}

// LuongAttention is multiplicative attention with a learned scalar scale:
//
//	score(q, k_t) = g * (q · W_m m_t)
type LuongAttention struct {
	memoryLayer *Linear
	g           *Parameter // [1], starts at 1
	backend     tensor.Backend
}

// NewLuongAttention creates scaled Luong attention. The query width must
// equal units.
func NewLuongAttention(name string, units, memoryDepth int, init Initializer, backend tensor.Backend) *LuongAttention {
	return &LuongAttention{
		memoryLayer: NewLinear(name+".memory_layer", memoryDepth, units, false, init, backend),
		g:           NewParameter(name+".attention_g", Ones(tensor.Shape{1})),
		backend:     backend,
	}
}

// Bind projects memory into keys.
func (a *LuongAttention) Bind(memory *tensor.RawTensor, lengths []int32) *Memory {
	return bindMemory(a, a.memoryLayer, memory, lengths, a.backend)
}

func (a *LuongAttention) score(query *tensor.RawTensor, m *Memory) *tensor.RawTensor {
	b := a.backend
	qs := query.Shape()
	q := b.Reshape(query, tensor.Shape{qs[0], 1, qs[1]})
	return b.Mul(b.SumDim(b.Mul(m.keys, q), -1, false), a.g.Tensor())
}

// Parameters returns the memory projection and the scale.
func (a *LuongAttention) Parameters() []*Parameter {
	return append(a.memoryLayer.Parameters(), a.g)
}

// BahdanauAttention is additive attention:
//
//	score(q, k_t) = v · tanh(W_m m_t + W_q q)
type BahdanauAttention struct {
	memoryLayer *Linear
	queryLayer  *Linear
	v           *Parameter // [units]
	backend     tensor.Backend
}

// NewBahdanauAttention creates additive attention over queries of width queryDepth.
func NewBahdanauAttention(name string, units, memoryDepth, queryDepth int, init Initializer, backend tensor.Backend) *BahdanauAttention {
	return &BahdanauAttention{
		memoryLayer: NewLinear(name+".memory_layer", memoryDepth, units, false, init, backend),
		queryLayer:  NewLinear(name+".query_layer", queryDepth, units, false, init, backend),
		v:           NewParameter(name+".attention_v", init(tensor.Shape{units})),
		backend:     backend,
	}
}

// Bind projects memory into keys.
func (a *BahdanauAttention) Bind(memory *tensor.RawTensor, lengths []int32) *Memory {
	return bindMemory(a, a.memoryLayer, memory, lengths, a.backend)
}

func (a *BahdanauAttention) score(query *tensor.RawTensor, m *Memory) *tensor.RawTensor {
	b := a.backend
	pq := a.queryLayer.Forward(query)
	ps := pq.Shape()
	pq = b.Reshape(pq, tensor.Shape{ps[0], 1, ps[1]})
	return b.SumDim(b.Mul(b.Tanh(b.Add(m.keys, pq)), a.v.Tensor()), -1, false)
}

// Parameters returns both projections and v.
func (a *BahdanauAttention) Parameters() []*Parameter {
	params := append(a.memoryLayer.Parameters(), a.queryLayer.Parameters()...)
	return append(params, a.v)
}

// AttentionState is the decoder state carried by AttentionWrapper.
type AttentionState struct {
	Cells     []LSTMState
	Attention *tensor.RawTensor // [B, attention_size]
}

// AttentionWrapper wraps a StackedLSTM with attention over a bound memory.
//
// Per step:
//
//	cell_in   = concat(input, prev_attention)
//	cell_out  = stack(cell_in)
//	context   = Σ_t softmax(score(cell_out))_t * memory_t
//	attention = W_a concat(cell_out, context)
//
// The step output is the attention vector for every mechanism.
type AttentionWrapper struct {
	cell           *StackedLSTM
	mechanism      AttentionMechanism
	attentionLayer *Linear
	backend        tensor.Backend
}

// NewAttentionWrapper creates the wrapper. The stack's first layer must
// accept input_width + attentionSize features.
func NewAttentionWrapper(name string, cell *StackedLSTM, mechanism AttentionMechanism, memoryDepth, attentionSize int, init Initializer, backend tensor.Backend) *AttentionWrapper {
	return &AttentionWrapper{
		cell:           cell,
		mechanism:      mechanism,
		attentionLayer: NewLinear(name+".attention_layer", cell.Units()+memoryDepth, attentionSize, false, init, backend),
		backend:        backend,
	}
}

// InitialState starts from the given per-layer cell states with a zero
// attention vector.
func (w *AttentionWrapper) InitialState(cells []LSTMState) AttentionState {
	batch := cells[0].H.Shape()[0]
	return AttentionState{
		Cells:     cells,
		Attention: Zeros(tensor.Shape{batch, w.attentionLayer.OutFeatures()}),
	}
}

// Step advances the decoder by one token.
func (w *AttentionWrapper) Step(input *tensor.RawTensor, state AttentionState, memory *Memory, train bool) (*tensor.RawTensor, AttentionState) {
	b := w.backend
	cellOut, cells := w.cell.Step(b.Cat([]*tensor.RawTensor{input, state.Attention}, 1), state.Cells, train)
	_, context := memory.Attend(cellOut, b)
	attention := w.attentionLayer.Forward(b.Cat([]*tensor.RawTensor{cellOut, context}, 1))

	return attention, AttentionState{Cells: cells, Attention: attention}
}

// OutputSize returns the width of Step's output.
func (w *AttentionWrapper) OutputSize() int {
	return w.attentionLayer.OutFeatures()
}

// Parameters returns cell, mechanism and attention layer parameters.
func (w *AttentionWrapper) Parameters() []*Parameter {
	return CollectParameters(w.cell, w.mechanism, w.attentionLayer)
}
