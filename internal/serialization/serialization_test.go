package serialization

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/playlistnet/internal/nn"
	"github.com/born-ml/playlistnet/internal/tensor"
)

func testState(t *testing.T) map[string]*tensor.RawTensor {
	t.Helper()
	w, err := tensor.FromFloat32([]float32{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3})
	require.NoError(t, err)
	b, err := tensor.FromFloat32([]float32{0.5, -0.5, 0.25}, tensor.Shape{3})
	require.NoError(t, err)
	ids, err := tensor.FromInt32([]int32{7, 8}, tensor.Shape{2})
	require.NoError(t, err)
	return map[string]*tensor.RawTensor{
		"dense.weight": w,
		"dense.bias":   b,
		"lookup.ids":   ids,
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	state := testState(t)
	var buf bytes.Buffer
	err := Encode(&buf, state, Header{
		ModelType: "cnn",
		Metadata:  map[string]string{"vocab_size": "100"},
		CheckpointMeta: &CheckpointMeta{
			RunID: "run-1", Mode: "train", Step: 42, OptimizerType: "Adam",
		},
	})
	require.NoError(t, err)

	got, header, err := Decode(&buf)
	require.NoError(t, err)

	assert.Equal(t, FormatVersion, header.FormatVersion)
	assert.Equal(t, "cnn", header.ModelType)
	assert.Equal(t, "100", header.Metadata["vocab_size"])
	require.NotNil(t, header.CheckpointMeta)
	assert.Equal(t, int64(42), header.CheckpointMeta.Step)
	assert.False(t, header.CreatedAt.IsZero())

	require.Len(t, header.Tensors, 3)
	assert.Equal(t, "dense.bias", header.Tensors[0].Name)
	assert.Equal(t, "dense.weight", header.Tensors[1].Name)
	assert.Equal(t, "lookup.ids", header.Tensors[2].Name)

	assert.Equal(t, state["dense.weight"].AsFloat32(), got["dense.weight"].AsFloat32())
	assert.Equal(t, tensor.Shape{2, 3}, got["dense.weight"].Shape())
	assert.Equal(t, state["dense.bias"].AsFloat32(), got["dense.bias"].AsFloat32())
	assert.Equal(t, []int32{7, 8}, got["lookup.ids"].AsInt32())
}

func TestDataSectionIsAligned(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, testState(t), Header{ModelType: "rnn"}))

	// 6+3 float32 plus 2 int32 follow the padded header.
	dataSize := (6 + 3 + 2) * 4
	assert.Zero(t, (buf.Len()-dataSize)%HeaderAlignment)
}

func TestDecodeDetectsCorruption(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, testState(t), Header{}))
	raw := buf.Bytes()
	raw[len(raw)-1] ^= 0xFF

	_, _, err := Decode(bytes.NewReader(raw))
	assert.ErrorIs(t, err, ErrChecksumMismatch)
}

func TestDecodeRejectsBadMagic(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, testState(t), Header{}))
	raw := buf.Bytes()
	copy(raw, "NOPE")

	_, _, err := Decode(bytes.NewReader(raw))
	assert.ErrorIs(t, err, ErrInvalidMagic)
}

func TestDecodeRejectsUnknownVersion(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, testState(t), Header{}))
	raw := buf.Bytes()
	raw[versionOffset] = 9

	_, _, err := Decode(bytes.NewReader(raw))
	assert.ErrorIs(t, err, ErrUnsupportedVersion)
}

func TestEncodeRejectsPathLikeNames(t *testing.T) {
	state := map[string]*tensor.RawTensor{"../escape": tensor.Full(tensor.Shape{1}, 1)}
	err := Encode(&bytes.Buffer{}, state, Header{})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "invalid_name", verr.Type)
}

func TestValidateTensorOffsets(t *testing.T) {
	ok := []TensorMeta{
		{Name: "a", Offset: 0, Size: 8},
		{Name: "b", Offset: 8, Size: 8},
	}
	require.NoError(t, ValidateTensorOffsets(ok, 16))

	overlap := []TensorMeta{
		{Name: "a", Offset: 0, Size: 12},
		{Name: "b", Offset: 8, Size: 8},
	}
	var verr *ValidationError
	require.ErrorAs(t, ValidateTensorOffsets(overlap, 16), &verr)
	assert.Equal(t, "offset_overlap", verr.Type)

	require.ErrorAs(t, ValidateTensorOffsets(ok, 12), &verr)
	assert.Equal(t, "out_of_bounds", verr.Type)
}

func TestSaveCheckpointAndLoadParameters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model", "ckpt.born")

	w := nn.NewParameter("dense.weight", tensor.Full(tensor.Shape{2, 2}, 3))
	b := nn.NewParameter("dense.bias", tensor.Full(tensor.Shape{2}, -1))
	require.NoError(t, SaveCheckpoint(path, nn.StateDict([]*nn.Parameter{w, b}), Header{ModelType: "rnn"}))
	assert.True(t, Exists(path))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary file must be renamed away")

	w2 := nn.NewParameter("dense.weight", nn.Zeros(tensor.Shape{2, 2}))
	b2 := nn.NewParameter("dense.bias", nn.Zeros(tensor.Shape{2}))
	header, err := LoadParameters(path, []*nn.Parameter{w2, b2})
	require.NoError(t, err)
	assert.Equal(t, "rnn", header.ModelType)
	assert.Equal(t, []float32{3, 3, 3, 3}, w2.Tensor().AsFloat32())
	assert.Equal(t, []float32{-1, -1}, b2.Tensor().AsFloat32())
}

func TestLoadParametersErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ckpt.born")
	w := nn.NewParameter("dense.weight", tensor.Full(tensor.Shape{2, 2}, 3))
	require.NoError(t, SaveCheckpoint(path, nn.StateDict([]*nn.Parameter{w}), Header{}))

	missing := nn.NewParameter("dense.bias", nn.Zeros(tensor.Shape{2}))
	_, err := LoadParameters(path, []*nn.Parameter{missing})
	assert.ErrorIs(t, err, ErrMissingTensor)

	wrong := nn.NewParameter("dense.weight", nn.Zeros(tensor.Shape{4}))
	_, err = LoadParameters(path, []*nn.Parameter{wrong})
	assert.ErrorIs(t, err, ErrShapeMismatch)
	assert.Equal(t, []float32{0, 0, 0, 0}, wrong.Tensor().AsFloat32())
}
