package cpu

import (
	"fmt"
	"math"

	"github.com/born-ml/playlistnet/internal/tensor"
)

// BatchNorm2D normalizes x [N, C, H, W] per channel with batch statistics
// computed over the N, H and W axes (population variance):
//
//	out = (x - mean) * scale / sqrt(var + eps) + offset
//
// mean and invStd ([C]) are returned for the backward pass.
func (cpu *CPUBackend) BatchNorm2D(x, scale, offset *tensor.RawTensor, eps float32) (out, mean, invStd *tensor.RawTensor) {
	shape := x.Shape()
	if len(shape) != 4 {
		panic(fmt.Sprintf("batchnorm2d: input must be 4D [N,C,H,W], got %v", shape))
	}
	n, c, plane := shape[0], shape[1], shape[2]*shape[3]
	if scale.NumElements() != c || offset.NumElements() != c {
		panic(fmt.Sprintf("batchnorm2d: scale/offset must have %d elements, got %d/%d",
			c, scale.NumElements(), offset.NumElements()))
	}

	out = tensor.MustNewRaw(shape, tensor.Float32, cpu.device)
	mean = tensor.MustNewRaw(tensor.Shape{c}, tensor.Float32, cpu.device)
	invStd = tensor.MustNewRaw(tensor.Shape{c}, tensor.Float32, cpu.device)

	xd := x.AsFloat32()
	od := out.AsFloat32()
	md := mean.AsFloat32()
	sd := invStd.AsFloat32()
	gamma := scale.AsFloat32()
	beta := offset.AsFloat32()
	count := float64(n * plane)

	for ch := 0; ch < c; ch++ {
		var sum float64
		for b := 0; b < n; b++ {
			for _, v := range xd[(b*c+ch)*plane : (b*c+ch+1)*plane] {
				sum += float64(v)
			}
		}
		mu := sum / count

		var sq float64
		for b := 0; b < n; b++ {
			for _, v := range xd[(b*c+ch)*plane : (b*c+ch+1)*plane] {
				d := float64(v) - mu
				sq += d * d
			}
		}
		inv := 1 / math.Sqrt(sq/count+float64(eps))

		md[ch] = float32(mu)
		sd[ch] = float32(inv)
		for b := 0; b < n; b++ {
			base := (b*c + ch) * plane
			for i := 0; i < plane; i++ {
				od[base+i] = float32((float64(xd[base+i])-mu)*inv)*gamma[ch] + beta[ch]
			}
		}
	}
	return out, mean, invStd
}
