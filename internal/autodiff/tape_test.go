package autodiff_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/playlistnet/internal/autodiff"
	"github.com/born-ml/playlistnet/internal/backend/cpu"
	"github.com/born-ml/playlistnet/internal/tensor"
)

func TestTape_RecordsOnlyWhileRecording(t *testing.T) {
	backend := autodiff.New(cpu.New())
	x := tensor.Full(tensor.Shape{2}, 3)

	backend.Mul(x, x)
	assert.Equal(t, 0, backend.Tape().NumOps())

	backend.Tape().StartRecording()
	backend.Mul(x, x)
	assert.Equal(t, 1, backend.Tape().NumOps())

	backend.Tape().Clear()
	assert.Equal(t, 0, backend.Tape().NumOps())
	assert.True(t, backend.Tape().IsRecording())
}

func TestBackward_AccumulatesReusedTensor(t *testing.T) {
	backend := autodiff.New(cpu.New())
	backend.Tape().StartRecording()

	x, err := tensor.FromFloat32([]float32{2, -1}, tensor.Shape{2})
	require.NoError(t, err)
	// loss = Σ x*x + x  ->  dloss/dx = 2x + 1
	loss := backend.Sum(backend.Add(backend.Mul(x, x), x))
	grads := autodiff.Backward(loss, backend)

	assert.InDeltaSlice(t, []float32{5, -1}, grads[x].AsFloat32(), 1e-6)
	assert.Equal(t, 3, backend.Tape().NumOps())
}

func TestBackward_PanicsOnEmptyTape(t *testing.T) {
	backend := autodiff.New(cpu.New())
	loss := tensor.Full(tensor.Shape{}, 1)
	assert.Panics(t, func() { autodiff.Backward(loss, backend) })
}

func TestBackward_IgnoresUnrelatedOps(t *testing.T) {
	backend := autodiff.New(cpu.New())
	backend.Tape().StartRecording()

	a := tensor.Full(tensor.Shape{3}, 1)
	b := tensor.Full(tensor.Shape{3}, 2)
	loss := backend.Sum(backend.MulScalar(a, 4))
	backend.Exp(b) // recorded after the loss, not on its path

	grads := autodiff.Backward(loss, backend)
	assert.InDeltaSlice(t, []float32{4, 4, 4}, grads[a].AsFloat32(), 1e-6)
	_, ok := grads[b]
	assert.False(t, ok)
}

func TestRecord_ClearsTapeAfterwards(t *testing.T) {
	backend := autodiff.New(cpu.New())
	x, err := tensor.FromFloat32([]float32{1, 2, 3}, tensor.Shape{3})
	require.NoError(t, err)

	loss, grads := autodiff.Record(backend, func() *tensor.RawTensor {
		return backend.Sum(backend.MulScalar(x, 4))
	})

	assert.InDelta(t, 24, loss.Item(), 1e-6)
	assert.InDeltaSlice(t, []float32{4, 4, 4}, grads[x].AsFloat32(), 1e-6)
	assert.Equal(t, 0, backend.Tape().NumOps())
	assert.False(t, backend.Tape().IsRecording())
}
