package nn

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/born-ml/playlistnet/internal/tensor"
)

// Dropout zeroes elements with probability rate during training and scales
// the survivors by 1/(1-rate). Outside training it is the identity.
type Dropout struct {
	rate    float64
	src     rand.Source
	backend tensor.Backend
}

// NewDropout creates a dropout layer. A rate of 0 disables it.
func NewDropout(rate float64, src rand.Source, backend tensor.Backend) *Dropout {
	return &Dropout{rate: rate, src: src, backend: backend}
}

// Forward applies dropout when train is set.
func (d *Dropout) Forward(x *tensor.RawTensor, train bool) *tensor.RawTensor {
	if !train || d.rate <= 0 {
		return x
	}
	keep := 1 - d.rate
	coin := distuv.Bernoulli{P: keep, Src: d.src}
	mask := tensor.MustNewRaw(x.Shape(), tensor.Float32, x.Device())
	data := mask.AsFloat32()
	scale := float32(1 / keep)
	for i := range data {
		if coin.Rand() == 1 {
			data[i] = scale
		}
	}
	return d.backend.Mul(x, mask)
}

// Parameters returns nil: dropout has no weights.
func (d *Dropout) Parameters() []*Parameter {
	return nil
}
