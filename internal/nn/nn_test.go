package nn_test

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/playlistnet/internal/autodiff"
	"github.com/born-ml/playlistnet/internal/backend/cpu"
	"github.com/born-ml/playlistnet/internal/nn"
	"github.com/born-ml/playlistnet/internal/tensor"
)

func mustFloat(t *testing.T, data []float32, shape tensor.Shape) *tensor.RawTensor {
	t.Helper()
	r, err := tensor.FromFloat32(data, shape)
	require.NoError(t, err)
	return r
}

func mustInt(t *testing.T, data []int32, shape tensor.Shape) *tensor.RawTensor {
	t.Helper()
	r, err := tensor.FromInt32(data, shape)
	require.NoError(t, err)
	return r
}

func seeded(seed uint64) nn.Initializer {
	return nn.UniformInit(0.1, rand.NewPCG(seed, seed+1))
}

func TestLinear_Forward3D(t *testing.T) {
	backend := cpu.New()
	layer := nn.NewLinear("proj", 2, 3, true, seeded(1), backend)
	layer.Weight().SetTensor(mustFloat(t, []float32{1, 0, 1, 0, 1, 1}, tensor.Shape{2, 3}))

	x := mustFloat(t, []float32{1, 2, 3, 4}, tensor.Shape{2, 1, 2})
	out := layer.Forward(x)

	assert.Equal(t, tensor.Shape{2, 1, 3}, out.Shape())
	assert.Equal(t, []float32{1, 2, 3, 3, 4, 7}, out.AsFloat32())
	assert.Len(t, layer.Parameters(), 2)
	assert.Len(t, nn.NewLinear("nobias", 2, 3, false, seeded(1), backend).Parameters(), 1)
}

func TestEmbedding_Forward(t *testing.T) {
	backend := cpu.New()
	embed := nn.NewEmbedding("embedding", 3, 2, seeded(2), backend)
	embed.Weight().SetTensor(mustFloat(t, []float32{0, 1, 10, 11, 20, 21}, tensor.Shape{3, 2}))

	out := embed.Forward(mustInt(t, []int32{2, 0, 1}, tensor.Shape{1, 3}))
	assert.Equal(t, tensor.Shape{1, 3, 2}, out.Shape())
	assert.Equal(t, []float32{20, 21, 0, 1, 10, 11}, out.AsFloat32())
}

func TestInit_Seeded(t *testing.T) {
	a := nn.Uniform(tensor.Shape{4, 4}, 0.1, rand.NewPCG(7, 8))
	b := nn.Uniform(tensor.Shape{4, 4}, 0.1, rand.NewPCG(7, 8))
	assert.Equal(t, a.AsFloat32(), b.AsFloat32())
	for _, v := range a.AsFloat32() {
		assert.LessOrEqual(t, math.Abs(float64(v)), 0.1)
	}

	n := nn.Normal(tensor.Shape{1000}, 1e-3, rand.NewPCG(1, 1))
	var sq float64
	for _, v := range n.AsFloat32() {
		sq += float64(v) * float64(v)
	}
	assert.InDelta(t, 1e-3, math.Sqrt(sq/1000), 2e-4)
}

func TestDropout(t *testing.T) {
	backend := cpu.New()
	d := nn.NewDropout(0.5, rand.NewPCG(3, 4), backend)
	x := tensor.Full(tensor.Shape{100}, 1)

	assert.Same(t, x, d.Forward(x, false))

	out := d.Forward(x, true).AsFloat32()
	zeros := 0
	for _, v := range out {
		if v == 0 {
			zeros++
			continue
		}
		assert.Equal(t, float32(2), v)
	}
	assert.Greater(t, zeros, 20)
	assert.Less(t, zeros, 80)
}

func TestLSTMCell_Step(t *testing.T) {
	backend := cpu.New()
	cell := nn.NewLSTMCell("cell", 1, 1, seeded(4), backend)
	params := cell.Parameters()
	params[0].SetTensor(nn.Zeros(tensor.Shape{2, 4}))
	// Gate order i, j, f, o.
	params[1].SetTensor(mustFloat(t, []float32{0, 1, 0, 0}, tensor.Shape{4}))

	out, state := cell.Step(mustFloat(t, []float32{5}, tensor.Shape{1, 1}), cell.ZeroState(1))

	wantC := 0.5 * math.Tanh(1)
	wantH := 0.5 * math.Tanh(wantC)
	assert.InDelta(t, wantC, state.C.Item(), 1e-6)
	assert.InDelta(t, wantH, state.H.Item(), 1e-6)
	assert.Same(t, state.H, out)
}

func TestStackedLSTM_RunMasksPastLength(t *testing.T) {
	backend := cpu.New()
	stack := nn.NewStackedLSTM("enc", 2, 3, 4, 0, rand.NewPCG(1, 1), seeded(5), backend)

	rng := rand.New(rand.NewPCG(9, 9))
	data := make([]float32, 2*3*3)
	for i := range data {
		data[i] = rng.Float32()
	}
	inputs := mustFloat(t, data, tensor.Shape{2, 3, 3})

	outputs, states := stack.Run(inputs, []int32{3, 1}, false)
	require.Equal(t, tensor.Shape{2, 3, 4}, outputs.Shape())
	require.Len(t, states, 2)

	// Row 1 stops after one step: its later outputs are zero and its final
	// state equals a single-step run on that row alone.
	out := outputs.AsFloat32()
	for _, v := range out[12+4 : 24] {
		assert.Equal(t, float32(0), v)
	}

	single := mustFloat(t, data[9:12], tensor.Shape{1, 1, 3})
	soloOut, soloStates := stack.Run(single, []int32{1}, false)
	assert.InDeltaSlice(t, soloOut.AsFloat32(), out[12:16], 1e-6)
	for l := range states {
		assert.InDeltaSlice(t, soloStates[l].H.AsFloat32(), states[l].H.AsFloat32()[4:8], 1e-6)
		assert.InDeltaSlice(t, soloStates[l].C.AsFloat32(), states[l].C.AsFloat32()[4:8], 1e-6)
	}
}

func TestAttention_MasksPaddedMemory(t *testing.T) {
	backend := cpu.New()
	memory := nn.Uniform(tensor.Shape{2, 4, 3}, 1, rand.NewPCG(6, 6))
	query := nn.Uniform(tensor.Shape{2, 3}, 1, rand.NewPCG(7, 7))

	mechanisms := map[string]nn.AttentionMechanism{
		"luong":    nn.NewLuongAttention("luong", 3, 3, seeded(8), backend),
		"bahdanau": nn.NewBahdanauAttention("bahdanau", 3, 3, 3, seeded(9), backend),
	}
	for name, mech := range mechanisms {
		t.Run(name, func(t *testing.T) {
			bound := mech.Bind(memory, []int32{4, 2})
			align, context := bound.Attend(query, backend)

			require.Equal(t, tensor.Shape{2, 4}, align.Shape())
			require.Equal(t, tensor.Shape{2, 3}, context.Shape())
			a := align.AsFloat32()
			assert.InDelta(t, 1, a[0]+a[1]+a[2]+a[3], 1e-5)
			assert.InDelta(t, 1, a[4]+a[5], 1e-5)
			assert.InDelta(t, 0, a[6], 1e-6)
			assert.InDelta(t, 0, a[7], 1e-6)
		})
	}
}

func TestAttentionWrapper_Step(t *testing.T) {
	backend := cpu.New()
	// Cells of 4 units, memory depth 4, attention width 5.
	mechanisms := map[string]func() nn.AttentionMechanism{
		"luong":    func() nn.AttentionMechanism { return nn.NewLuongAttention("attn", 4, 4, seeded(12), backend) },
		"bahdanau": func() nn.AttentionMechanism { return nn.NewBahdanauAttention("attn", 4, 4, 4, seeded(12), backend) },
	}
	for name, newMech := range mechanisms {
		t.Run(name, func(t *testing.T) {
			src := rand.NewPCG(10, 10)
			// Input width 2 plus attention width 5.
			stack := nn.NewStackedLSTM("dec", 2, 7, 4, 0, src, seeded(11), backend)
			mech := newMech()
			wrapper := nn.NewAttentionWrapper("dec", stack, mech, 4, 5, seeded(13), backend)

			memory := mech.Bind(nn.Uniform(tensor.Shape{3, 5, 4}, 1, src), []int32{5, 3, 1})
			state := wrapper.InitialState(stack.ZeroState(3))
			out, next := wrapper.Step(nn.Uniform(tensor.Shape{3, 2}, 1, src), state, memory, false)

			assert.Equal(t, tensor.Shape{3, 5}, out.Shape())
			assert.Same(t, next.Attention, out)
			assert.Len(t, next.Cells, 2)
			assert.Equal(t, 5, wrapper.OutputSize())
		})
	}
}

func TestSequenceCrossEntropy_IgnoresPadding(t *testing.T) {
	backend := cpu.New()
	rng := rand.New(rand.NewPCG(1, 2))
	data := make([]float32, 2*3*5)
	for i := range data {
		data[i] = rng.Float32()
	}
	lengths := []int32{2, 1}

	logitsA := mustFloat(t, data, tensor.Shape{2, 3, 5})
	targetsA := [][]int32{{1, 4, 0}, {3, 0, 0}}

	padded := append([]float32(nil), data...)
	padded[2*5] = 100      // row 0, t=2
	padded[15+1*5+3] = -50 // row 1, t=1
	logitsB := mustFloat(t, padded, tensor.Shape{2, 3, 5})
	targetsB := [][]int32{{1, 4, 2}, {3, 4, 1}}

	lossA := nn.SequenceCrossEntropy(backend, logitsA, targetsA, lengths).Item()
	lossB := nn.SequenceCrossEntropy(backend, logitsB, targetsB, lengths).Item()
	assert.Equal(t, lossA, lossB)
}

func TestPolicyGradientLoss_UniformLogits(t *testing.T) {
	backend := cpu.New()
	logits := nn.Zeros(tensor.Shape{2, 3, 4})
	sampled := [][]int32{{0, 1, 2}, {3, 3, 3}}
	rewards := []float32{0.5, -0.25}

	got := nn.PolicyGradientLoss(backend, logits, sampled, rewards).Item()
	logP := math.Log(0.25 + nn.RLEpsilon)
	want := -(3*0.5*logP + 3*-0.25*logP) / 2
	assert.InDelta(t, want, got, 1e-5)
}

func TestSequenceCrossEntropy_GradientsReachWeights(t *testing.T) {
	backend := autodiff.New(cpu.New())
	layer := nn.NewLinear("out", 3, 4, true, seeded(14), backend)

	backend.Tape().StartRecording()
	x := nn.Uniform(tensor.Shape{2, 2, 3}, 1, rand.NewPCG(2, 2))
	loss := nn.SequenceCrossEntropy(backend, layer.Forward(x), [][]int32{{1, 2}, {3, 0}}, []int32{2, 1})
	grads := autodiff.Backward(loss, backend)

	for _, p := range layer.Parameters() {
		g, ok := grads[p.Tensor()]
		require.True(t, ok, p.Name())
		assert.Equal(t, p.Tensor().Shape(), g.Shape())
	}
}

func TestStateDict_RoundTrip(t *testing.T) {
	backend := cpu.New()
	a := nn.NewLinear("proj", 2, 2, true, seeded(1), backend)
	b := nn.NewLinear("proj", 2, 2, true, seeded(99), backend)

	require.NoError(t, nn.LoadStateDict(b.Parameters(), nn.StateDict(a.Parameters())))
	assert.Equal(t, a.Weight().Tensor().AsFloat32(), b.Weight().Tensor().AsFloat32())

	err := nn.LoadStateDict(b.Parameters(), map[string]*tensor.RawTensor{})
	assert.ErrorContains(t, err, "proj.weight")
	assert.Equal(t, 6, nn.CountParameters(a.Parameters()))
}
