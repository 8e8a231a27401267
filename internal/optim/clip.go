package optim

import (
	"gonum.org/v1/gonum/floats"

	"github.com/born-ml/playlistnet/internal/nn"
	"github.com/born-ml/playlistnet/internal/tensor"
)

// ClipByGlobalNorm rescales the gradients of params so that their joint L2
// norm is at most maxNorm:
//
//	global = sqrt(Σ ||g_i||²)
//	g_i'   = g_i * maxNorm / max(global, maxNorm)
//
// It returns a new gradient map (the input map and its tensors are left
// untouched) together with the norm measured before clipping.
func ClipByGlobalNorm(params []*nn.Parameter, grads map[*tensor.RawTensor]*tensor.RawTensor, maxNorm float32) (map[*tensor.RawTensor]*tensor.RawTensor, float32) {
	norms := make([]float64, 0, len(params))
	for _, p := range params {
		g := grads[p.Tensor()]
		if g == nil {
			continue
		}
		norms = append(norms, floats.Norm(widen(g.AsFloat32()), 2))
	}
	global := floats.Norm(norms, 2)

	scale := float32(1)
	if global > float64(maxNorm) {
		scale = float32(float64(maxNorm) / global)
	}

	clipped := make(map[*tensor.RawTensor]*tensor.RawTensor, len(norms))
	for _, p := range params {
		g := grads[p.Tensor()]
		if g == nil {
			continue
		}
		if scale == 1 {
			clipped[p.Tensor()] = g
			continue
		}
		out := g.Clone()
		data := out.AsFloat32()
		for i := range data {
			data[i] *= scale
		}
		clipped[p.Tensor()] = out
	}
	return clipped, float32(global)
}

// GlobalNorm returns sqrt(Σ ||g_i||²) over the gradients of params.
func GlobalNorm(params []*nn.Parameter, grads map[*tensor.RawTensor]*tensor.RawTensor) float32 {
	var norms []float64
	for _, p := range params {
		if g := grads[p.Tensor()]; g != nil {
			norms = append(norms, floats.Norm(widen(g.AsFloat32()), 2))
		}
	}
	return float32(floats.Norm(norms, 2))
}

func widen(src []float32) []float64 {
	dst := make([]float64, len(src))
	for i, v := range src {
		dst[i] = float64(v)
	}
	return dst
}
