package serialization

import (
	"time"

	"github.com/born-ml/playlistnet/internal/tensor"
)

// Format constants.
const (
	MagicBytes        = "BORN"
	FormatVersion     = 2    // SHA-256 checksummed layout
	HeaderAlignment   = 64   // Tensor data starts on a 64-byte boundary
	FixedHeaderSize   = 64   // Fixed header size (0x40 bytes)
	ChecksumSize      = 32   // SHA-256 checksum size
	ChecksumOffset    = 0x20 // Checksum offset in the fixed header
	headerSizeOffset  = 0x10
	dataSizeOffset    = 0x18
	flagsOffset       = 0x08
	versionOffset     = 0x04
	writerVersionName = "playlistnet/0.1.0"
)

// Data type string constants for serialization.
const (
	DTypeFloat32 = "float32"
	DTypeInt32   = "int32"
)

// Flags for the .born format.
const (
	FlagHasCheckpoint uint32 = 1 << 1 // bit 1: training state included
	FlagHasMetadata   uint32 = 1 << 2 // bit 2: custom metadata included
)

// Header represents the JSON header in a .born file.
type Header struct {
	FormatVersion  int               `json:"format_version"`
	WriterVersion  string            `json:"writer_version"`
	ModelType      string            `json:"model_type"` // "rnn" or "cnn"
	CreatedAt      time.Time         `json:"created_at"`
	Tensors        []TensorMeta      `json:"tensors"`
	Metadata       map[string]string `json:"metadata"`
	CheckpointMeta *CheckpointMeta   `json:"checkpoint,omitempty"`
}

// CheckpointMeta contains training state information for checkpoints.
type CheckpointMeta struct {
	RunID           string             `json:"run_id"`
	Mode            string             `json:"mode"`
	Step            int64              `json:"step"`
	Loss            float64            `json:"loss"`
	OptimizerType   string             `json:"optimizer_type"` // "SGD" or "Adam"
	OptimizerConfig map[string]float64 `json:"optimizer_config"`
}

// TensorMeta describes a tensor in the .born file.
type TensorMeta struct {
	Name   string `json:"name"`   // e.g. "decoder.cell_0.kernel"
	DType  string `json:"dtype"`  // "float32" or "int32"
	Shape  []int  `json:"shape"`  // Tensor shape
	Offset int64  `json:"offset"` // Bytes from the start of the data section
	Size   int64  `json:"size"`   // Size in bytes
}

func dtypeToString(dt tensor.DataType) string {
	switch dt {
	case tensor.Float32:
		return DTypeFloat32
	case tensor.Int32:
		return DTypeInt32
	default:
		return "unknown"
	}
}

func stringToDtype(s string) (tensor.DataType, bool) {
	switch s {
	case DTypeFloat32:
		return tensor.Float32, true
	case DTypeInt32:
		return tensor.Int32, true
	default:
		return 0, false
	}
}
