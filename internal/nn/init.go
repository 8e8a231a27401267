package nn

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/born-ml/playlistnet/internal/tensor"
)

// Initializer produces a freshly initialized tensor of the given shape.
type Initializer func(shape tensor.Shape) *tensor.RawTensor

// UniformInit returns an initializer drawing from U(-scale, scale).
func UniformInit(scale float64, src rand.Source) Initializer {
	return func(shape tensor.Shape) *tensor.RawTensor {
		return Uniform(shape, scale, src)
	}
}

// Uniform fills a tensor with values drawn from U(-scale, scale).
func Uniform(shape tensor.Shape, scale float64, src rand.Source) *tensor.RawTensor {
	dist := distuv.Uniform{Min: -scale, Max: scale, Src: src}
	t := tensor.MustNewRaw(shape, tensor.Float32, tensor.CPU)
	data := t.AsFloat32()
	for i := range data {
		data[i] = float32(dist.Rand())
	}
	return t
}

// Normal fills a tensor with values drawn from N(0, stddev²).
func Normal(shape tensor.Shape, stddev float64, src rand.Source) *tensor.RawTensor {
	dist := distuv.Normal{Mu: 0, Sigma: stddev, Src: src}
	t := tensor.MustNewRaw(shape, tensor.Float32, tensor.CPU)
	data := t.AsFloat32()
	for i := range data {
		data[i] = float32(dist.Rand())
	}
	return t
}

// Zeros creates a tensor filled with zeros. Used for biases.
func Zeros(shape tensor.Shape) *tensor.RawTensor {
	return tensor.MustNewRaw(shape, tensor.Float32, tensor.CPU)
}

// Ones creates a tensor filled with ones.
func Ones(shape tensor.Shape) *tensor.RawTensor {
	return tensor.Full(shape, 1)
}
