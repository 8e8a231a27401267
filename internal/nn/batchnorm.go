package nn

import (
	"github.com/born-ml/playlistnet/internal/tensor"
)

// BatchNorm2D normalizes each channel of an NCHW tensor with the statistics
// of the current batch (no running averages), then applies a learned scale
// and offset.
type BatchNorm2D struct {
	eps     float32
	scale   *Parameter // [C]
	offset  *Parameter // [C]
	backend tensor.Backend
}

// NewBatchNorm2D creates a batch normalization layer over channels.
func NewBatchNorm2D(name string, channels int, eps float32, init Initializer, backend tensor.Backend) *BatchNorm2D {
	return &BatchNorm2D{
		eps:     eps,
		scale:   NewParameter(name+".scale", init(tensor.Shape{channels})),
		offset:  NewParameter(name+".offset", init(tensor.Shape{channels})),
		backend: backend,
	}
}

// Forward normalizes x of shape [N, C, H, W].
func (bn *BatchNorm2D) Forward(x *tensor.RawTensor) *tensor.RawTensor {
	out, _, _ := bn.backend.BatchNorm2D(x, bn.scale.Tensor(), bn.offset.Tensor(), bn.eps)
	return out
}

// Parameters returns scale and offset.
func (bn *BatchNorm2D) Parameters() []*Parameter {
	return []*Parameter{bn.scale, bn.offset}
}
