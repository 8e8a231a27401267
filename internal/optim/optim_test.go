package optim_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/playlistnet/internal/autodiff"
	"github.com/born-ml/playlistnet/internal/backend/cpu"
	"github.com/born-ml/playlistnet/internal/nn"
	"github.com/born-ml/playlistnet/internal/optim"
	"github.com/born-ml/playlistnet/internal/tensor"
)

func scalarParam(t *testing.T, name string, v ...float32) *nn.Parameter {
	t.Helper()
	x, err := tensor.FromFloat32(v, tensor.Shape{len(v)})
	require.NoError(t, err)
	return nn.NewParameter(name, x)
}

func TestSGD_SimpleUpdate(t *testing.T) {
	param := scalarParam(t, "x", 2.0)
	optimizer := optim.NewSGD([]*nn.Parameter{param}, optim.SGDConfig{LR: 0.1})

	grads := map[*tensor.RawTensor]*tensor.RawTensor{
		param.Tensor(): tensor.Full(tensor.Shape{1}, 1),
	}
	optimizer.Step(grads)

	// x_new = 2.0 - 0.1 * 1.0
	assert.InDelta(t, 1.9, param.Tensor().AsFloat32()[0], 1e-6)
	assert.NotNil(t, param.Grad())

	optimizer.ZeroGrad()
	assert.Nil(t, param.Grad())
}

func TestSGD_WithMomentum(t *testing.T) {
	param := scalarParam(t, "x", 1.0)
	optimizer := optim.NewSGD([]*nn.Parameter{param}, optim.SGDConfig{LR: 0.1, Momentum: 0.9})
	grad := tensor.Full(tensor.Shape{1}, 1)

	optimizer.Step(map[*tensor.RawTensor]*tensor.RawTensor{param.Tensor(): grad})
	// v = 1, x = 1 - 0.1
	assert.InDelta(t, 0.9, param.Tensor().AsFloat32()[0], 1e-6)

	optimizer.Step(map[*tensor.RawTensor]*tensor.RawTensor{param.Tensor(): grad})
	// v = 0.9 + 1 = 1.9, x = 0.9 - 0.19
	assert.InDelta(t, 0.71, param.Tensor().AsFloat32()[0], 1e-6)
}

func TestSGD_SetLR(t *testing.T) {
	param := scalarParam(t, "x", 0)
	optimizer := optim.NewSGD([]*nn.Parameter{param}, optim.SGDConfig{})
	assert.Equal(t, float32(0.01), optimizer.GetLR())

	optimizer.SetLR(0.5)
	optimizer.Step(map[*tensor.RawTensor]*tensor.RawTensor{param.Tensor(): tensor.Full(tensor.Shape{1}, 2)})
	assert.InDelta(t, -1.0, param.Tensor().AsFloat32()[0], 1e-6)
}

func TestSGD_SkipsMissingGradient(t *testing.T) {
	param := scalarParam(t, "x", 3)
	optimizer := optim.NewSGD([]*nn.Parameter{param}, optim.SGDConfig{LR: 1})
	optimizer.Step(map[*tensor.RawTensor]*tensor.RawTensor{})
	assert.Equal(t, float32(3), param.Tensor().AsFloat32()[0])
}

func TestAdam_FirstStep(t *testing.T) {
	param := scalarParam(t, "x", 1.0, -1.0)
	optimizer := optim.NewAdam([]*nn.Parameter{param}, optim.AdamConfig{LR: 0.01})

	grad, err := tensor.FromFloat32([]float32{0.5, -2}, tensor.Shape{2})
	require.NoError(t, err)
	optimizer.Step(map[*tensor.RawTensor]*tensor.RawTensor{param.Tensor(): grad})

	// With bias correction the first update is lr * sign(grad).
	data := param.Tensor().AsFloat32()
	assert.InDelta(t, 0.99, data[0], 1e-5)
	assert.InDelta(t, -0.99, data[1], 1e-5)
	assert.Equal(t, 1, optimizer.GetTimestep())
}

func TestAdam_MinimizesQuadratic(t *testing.T) {
	backend := autodiff.New(cpu.New())
	param := scalarParam(t, "x", 3.0)
	optimizer := optim.NewAdam([]*nn.Parameter{param}, optim.AdamConfig{LR: 0.1})

	for i := 0; i < 300; i++ {
		backend.Tape().Clear()
		backend.Tape().StartRecording()
		x := param.Tensor()
		loss := backend.Sum(backend.Mul(x, x))
		grads := autodiff.Backward(loss, backend)
		optimizer.Step(grads)
		optimizer.ZeroGrad()
	}
	assert.InDelta(t, 0, param.Tensor().AsFloat32()[0], 0.05)
}

func TestAdam_StateDictResumes(t *testing.T) {
	step := func(o *optim.Adam, p *nn.Parameter, g ...float32) {
		grad, err := tensor.FromFloat32(g, tensor.Shape{len(g)})
		require.NoError(t, err)
		o.Step(map[*tensor.RawTensor]*tensor.RawTensor{p.Tensor(): grad})
	}

	original := scalarParam(t, "w", 1, 2)
	skipped := scalarParam(t, "frozen", 5)
	first := optim.NewAdam([]*nn.Parameter{original, skipped}, optim.AdamConfig{LR: 0.1})
	step(first, original, 0.5, -1)
	step(first, original, 0.25, 3)

	state := first.StateDict()
	require.Contains(t, state, "optimizer.adam.step")
	assert.Equal(t, []int32{2}, state["optimizer.adam.step"].AsInt32())
	assert.Contains(t, state, "optimizer.adam.w.m")
	assert.Contains(t, state, "optimizer.adam.w.v")
	assert.NotContains(t, state, "optimizer.adam.frozen.m")

	resumed := scalarParam(t, "w", original.Tensor().AsFloat32()...)
	second := optim.NewAdam([]*nn.Parameter{resumed}, optim.AdamConfig{LR: 0.1})
	require.NoError(t, second.LoadStateDict(state))
	assert.Equal(t, 2, second.GetTimestep())

	step(first, original, -1, 0.5)
	step(second, resumed, -1, 0.5)
	assert.InDeltaSlice(t, original.Tensor().AsFloat32(), resumed.Tensor().AsFloat32(), 1e-7)
}

func TestAdam_LoadStateDict(t *testing.T) {
	param := scalarParam(t, "w", 1, 2)
	count, err := tensor.FromInt32([]int32{3}, tensor.Shape{1})
	require.NoError(t, err)
	short, err := tensor.FromFloat32([]float32{1}, tensor.Shape{1})
	require.NoError(t, err)

	tests := []struct {
		name    string
		state   map[string]*tensor.RawTensor
		wantErr bool
		wantT   int
	}{
		{name: "no timestep keeps a fresh optimizer", state: map[string]*tensor.RawTensor{"w": param.Tensor()}},
		{name: "timestep only", state: map[string]*tensor.RawTensor{"optimizer.adam.step": count}, wantT: 3},
		{name: "float timestep", state: map[string]*tensor.RawTensor{"optimizer.adam.step": short}, wantErr: true},
		{name: "slot of the wrong size", state: map[string]*tensor.RawTensor{
			"optimizer.adam.step": count, "optimizer.adam.w.m": short, "optimizer.adam.w.v": short,
		}, wantErr: true},
		{name: "half a slot", state: map[string]*tensor.RawTensor{
			"optimizer.adam.step": count, "optimizer.adam.w.m": param.Tensor(),
		}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := optim.NewAdam([]*nn.Parameter{param}, optim.AdamConfig{})
			err := o.LoadStateDict(tt.state)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantT, o.GetTimestep())
		})
	}
}

func TestClipByGlobalNorm(t *testing.T) {
	a := scalarParam(t, "a", 0, 0)
	b := scalarParam(t, "b", 0)
	gradA, _ := tensor.FromFloat32([]float32{3, 0}, tensor.Shape{2})
	gradB, _ := tensor.FromFloat32([]float32{4}, tensor.Shape{1})
	grads := map[*tensor.RawTensor]*tensor.RawTensor{a.Tensor(): gradA, b.Tensor(): gradB}
	params := []*nn.Parameter{a, b}

	clipped, norm := optim.ClipByGlobalNorm(params, grads, 1)
	assert.InDelta(t, 5, norm, 1e-6)
	assert.InDeltaSlice(t, []float32{0.6, 0}, clipped[a.Tensor()].AsFloat32(), 1e-6)
	assert.InDeltaSlice(t, []float32{0.8}, clipped[b.Tensor()].AsFloat32(), 1e-6)
	// Inputs are untouched.
	assert.Equal(t, []float32{3, 0}, gradA.AsFloat32())

	unclipped, norm := optim.ClipByGlobalNorm(params, grads, 10)
	assert.InDelta(t, 5, norm, 1e-6)
	assert.Same(t, gradA, unclipped[a.Tensor()])
	assert.InDelta(t, 5, optim.GlobalNorm(params, grads), 1e-6)
}

func TestStaircaseDecay(t *testing.T) {
	tests := []struct {
		step int64
		want float64
	}{
		{0, 0.5},
		{19999, 0.5},
		{20000, 0.5},
		{29999, 0.5},
		{30000, 0.5 * 0.98},
		{45000, 0.5 * 0.98 * 0.98},
	}
	for _, tt := range tests {
		got := optim.StaircaseDecay(0.5, tt.step, 20000, 10000, 0.98)
		assert.InDelta(t, tt.want, got, 1e-6, "step %d", tt.step)
	}
}

func TestSamplingProbability(t *testing.T) {
	const start = 100
	assert.Equal(t, float32(0), optim.SamplingProbability(0, start))
	assert.Equal(t, float32(1), optim.SamplingProbability(2*start, start))
	assert.Equal(t, float32(1), optim.SamplingProbability(10*start, start))
	assert.InDelta(t, 0.25, optim.SamplingProbability(50, start), 1e-6)

	prev := float32(-1)
	for step := int64(0); step <= 3*start; step++ {
		p := optim.SamplingProbability(step, start)
		assert.GreaterOrEqual(t, p, prev)
		assert.False(t, math.IsNaN(float64(p)))
		prev = p
	}
}
