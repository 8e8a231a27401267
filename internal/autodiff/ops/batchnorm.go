package ops

import "github.com/born-ml/playlistnet/internal/tensor"

// BatchNorm2DOp records per-channel batch normalization over N, H and W.
//
// With x̂ = (x - mean) * invStd and M = N*H*W elements per channel:
//
//	grad_offset = Σ grad
//	grad_scale  = Σ grad * x̂
//	grad_x      = scale * invStd / M * (M*grad - Σ grad - x̂ * Σ grad*x̂)
type BatchNorm2DOp struct {
	x, scale, offset *tensor.RawTensor
	mean, invStd     *tensor.RawTensor
	output           *tensor.RawTensor
}

// NewBatchNorm2DOp creates a new batch normalization operation.
func NewBatchNorm2DOp(x, scale, offset, mean, invStd, output *tensor.RawTensor) *BatchNorm2DOp {
	return &BatchNorm2DOp{x: x, scale: scale, offset: offset, mean: mean, invStd: invStd, output: output}
}

// Inputs returns [x, scale, offset].
func (op *BatchNorm2DOp) Inputs() []*tensor.RawTensor {
	return []*tensor.RawTensor{op.x, op.scale, op.offset}
}

// Output returns the normalized tensor.
func (op *BatchNorm2DOp) Output() *tensor.RawTensor {
	return op.output
}

// Backward computes gradients for x, scale and offset.
func (op *BatchNorm2DOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	shape := op.x.Shape()
	n, c, plane := shape[0], shape[1], shape[2]*shape[3]
	count := float32(n * plane)

	xGrad := tensor.MustNewRaw(shape, tensor.Float32, backend.Device())
	scaleGrad := tensor.MustNewRaw(tensor.Shape{c}, tensor.Float32, backend.Device())
	offsetGrad := tensor.MustNewRaw(tensor.Shape{c}, tensor.Float32, backend.Device())

	x := op.x.AsFloat32()
	dy := outputGrad.AsFloat32()
	dx := xGrad.AsFloat32()
	mean := op.mean.AsFloat32()
	invStd := op.invStd.AsFloat32()
	gamma := op.scale.AsFloat32()
	dGamma := scaleGrad.AsFloat32()
	dBeta := offsetGrad.AsFloat32()

	for ch := 0; ch < c; ch++ {
		var sumDy, sumDyXhat float32
		for b := 0; b < n; b++ {
			base := (b*c + ch) * plane
			for i := 0; i < plane; i++ {
				xhat := (x[base+i] - mean[ch]) * invStd[ch]
				sumDy += dy[base+i]
				sumDyXhat += dy[base+i] * xhat
			}
		}
		dBeta[ch] = sumDy
		dGamma[ch] = sumDyXhat

		k := gamma[ch] * invStd[ch] / count
		for b := 0; b < n; b++ {
			base := (b*c + ch) * plane
			for i := 0; i < plane; i++ {
				xhat := (x[base+i] - mean[ch]) * invStd[ch]
				dx[base+i] = k * (count*dy[base+i] - sumDy - xhat*sumDyXhat)
			}
		}
	}

	return []*tensor.RawTensor{xGrad, scaleGrad, offsetGrad}
}
