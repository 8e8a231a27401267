package autodiff_test

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/born-ml/playlistnet/internal/autodiff"
	"github.com/born-ml/playlistnet/internal/backend/cpu"
	"github.com/born-ml/playlistnet/internal/tensor"
)

// lossFn builds a scalar loss from the given inputs on backend b.
type lossFn func(b tensor.Backend, in []*tensor.RawTensor) *tensor.RawTensor

func randomTensor(rng *rand.Rand, shape tensor.Shape, scale float32) *tensor.RawTensor {
	r := tensor.MustNewRaw(shape, tensor.Float32, tensor.CPU)
	data := r.AsFloat32()
	for i := range data {
		data[i] = (rng.Float32()*2 - 1) * scale
	}
	return r
}

// weightedSum turns any tensor into a scalar with non-uniform gradients.
func weightedSum(b tensor.Backend, x *tensor.RawTensor) *tensor.RawTensor {
	rng := rand.New(rand.NewSource(99))
	w := randomTensor(rng, x.Shape(), 1)
	return b.Sum(b.Mul(x, w))
}

// checkGradients compares tape gradients against central finite differences
// for every element of every input.
func checkGradients(t *testing.T, f lossFn, inputs ...*tensor.RawTensor) {
	t.Helper()
	const eps = 1e-2

	backend := autodiff.New(cpu.New())
	backend.Tape().StartRecording()
	loss := f(backend, inputs)
	grads := autodiff.Backward(loss, backend)

	plain := cpu.New()
	eval := func() float64 {
		return float64(f(plain, inputs).Item())
	}

	for k, in := range inputs {
		grad, ok := grads[in]
		require.True(t, ok, "input %d received no gradient", k)
		data := in.AsFloat32()
		analytic := grad.AsFloat32()
		for i := range data {
			orig := data[i]
			data[i] = orig + eps
			plus := eval()
			data[i] = orig - eps
			minus := eval()
			data[i] = orig

			numeric := (plus - minus) / (2 * eps)
			tol := 1e-2 + 5e-2*math.Abs(numeric)
			require.InDelta(t, numeric, float64(analytic[i]), tol, "input %d element %d", k, i)
		}
	}
}

func TestGradient_MatMulAddBroadcast(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	x := randomTensor(rng, tensor.Shape{3, 4}, 1)
	w := randomTensor(rng, tensor.Shape{4, 2}, 1)
	bias := randomTensor(rng, tensor.Shape{2}, 1)

	checkGradients(t, func(b tensor.Backend, in []*tensor.RawTensor) *tensor.RawTensor {
		return weightedSum(b, b.Add(b.MatMul(in[0], in[1]), in[2]))
	}, x, w, bias)
}

func TestGradient_Activations(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	x := randomTensor(rng, tensor.Shape{2, 5}, 1)

	checkGradients(t, func(b tensor.Backend, in []*tensor.RawTensor) *tensor.RawTensor {
		s := b.Sigmoid(in[0])
		th := b.Tanh(in[0])
		return weightedSum(b, b.Mul(s, th))
	}, x)
}

func TestGradient_SoftmaxLog(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	x := randomTensor(rng, tensor.Shape{3, 6}, 2)

	checkGradients(t, func(b tensor.Backend, in []*tensor.RawTensor) *tensor.RawTensor {
		return weightedSum(b, b.Log(b.AddScalar(b.Softmax(in[0]), 1e-8)))
	}, x)
}

func TestGradient_SoftmaxCrossEntropy(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	logits := randomTensor(rng, tensor.Shape{4, 5}, 2)
	targets, err := tensor.FromInt32([]int32{0, 3, 4, 1}, tensor.Shape{4})
	require.NoError(t, err)
	weights, err := tensor.FromFloat32([]float32{1, 0, 1, 0.5}, tensor.Shape{4})
	require.NoError(t, err)

	checkGradients(t, func(b tensor.Backend, in []*tensor.RawTensor) *tensor.RawTensor {
		return b.SoftmaxCrossEntropy(in[0], targets, weights)
	}, logits)
}

func TestGradient_Conv2D(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	x := randomTensor(rng, tensor.Shape{2, 2, 5, 4}, 1)
	k := randomTensor(rng, tensor.Shape{3, 2, 3, 2}, 1)

	checkGradients(t, func(b tensor.Backend, in []*tensor.RawTensor) *tensor.RawTensor {
		return weightedSum(b, b.Conv2D(in[0], in[1], 1, 0))
	}, x, k)
}

func TestGradient_ConvTranspose2D(t *testing.T) {
	rng := rand.New(rand.NewSource(6))
	x := randomTensor(rng, tensor.Shape{2, 2, 3, 3}, 1)
	k := randomTensor(rng, tensor.Shape{2, 3, 2, 3}, 1)

	checkGradients(t, func(b tensor.Backend, in []*tensor.RawTensor) *tensor.RawTensor {
		return weightedSum(b, b.ConvTranspose2D(in[0], in[1]))
	}, x, k)
}

func TestGradient_BatchNorm2D(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	x := randomTensor(rng, tensor.Shape{2, 3, 2, 2}, 1)
	scale := randomTensor(rng, tensor.Shape{3}, 1)
	offset := randomTensor(rng, tensor.Shape{3}, 1)

	checkGradients(t, func(b tensor.Backend, in []*tensor.RawTensor) *tensor.RawTensor {
		out, _, _ := b.BatchNorm2D(in[0], in[1], in[2], 1e-5)
		return weightedSum(b, out)
	}, x, scale, offset)
}

func TestGradient_GatherNarrowCat(t *testing.T) {
	rng := rand.New(rand.NewSource(8))
	table := randomTensor(rng, tensor.Shape{5, 3}, 1)
	ids, err := tensor.FromInt32([]int32{1, 4, 1, 0}, tensor.Shape{2, 2})
	require.NoError(t, err)

	checkGradients(t, func(b tensor.Backend, in []*tensor.RawTensor) *tensor.RawTensor {
		emb := b.Gather(in[0], ids) // [2, 2, 3]
		first := b.Narrow(emb, 1, 0, 1)
		second := b.Narrow(emb, 1, 1, 1)
		joined := b.Cat([]*tensor.RawTensor{second, first}, 2) // [2, 1, 6]
		return weightedSum(b, b.Reshape(joined, tensor.Shape{12}))
	}, table)
}

func TestGradient_SumDimScalar(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	x := randomTensor(rng, tensor.Shape{2, 3, 4}, 1)

	checkGradients(t, func(b tensor.Backend, in []*tensor.RawTensor) *tensor.RawTensor {
		rows := b.SumDim(in[0], 1, true) // [2, 1, 4]
		cols := b.SumDim(in[0], 2, true) // [2, 3, 1]
		flat := b.SumDim(in[0], 0, false) // [3, 4]
		return weightedSum(b, b.Add(b.MulScalar(b.Sub(rows, cols), 0.5), flat))
	}, x)
}
