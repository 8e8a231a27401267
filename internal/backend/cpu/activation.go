package cpu

import (
	"fmt"
	"math"

	"github.com/born-ml/playlistnet/internal/tensor"
)

// Exp computes e^x element-wise.
func (cpu *CPUBackend) Exp(x *tensor.RawTensor) *tensor.RawTensor {
	return cpu.unary(x, func(v float32) float32 { return float32(math.Exp(float64(v))) })
}

// Log computes the natural logarithm element-wise. Callers guard zero inputs.
func (cpu *CPUBackend) Log(x *tensor.RawTensor) *tensor.RawTensor {
	return cpu.unary(x, func(v float32) float32 { return float32(math.Log(float64(v))) })
}

// Sigmoid computes 1 / (1 + e^-x) element-wise.
func (cpu *CPUBackend) Sigmoid(x *tensor.RawTensor) *tensor.RawTensor {
	return cpu.unary(x, sigmoid)
}

// Tanh computes the hyperbolic tangent element-wise.
func (cpu *CPUBackend) Tanh(x *tensor.RawTensor) *tensor.RawTensor {
	return cpu.unary(x, func(v float32) float32 { return float32(math.Tanh(float64(v))) })
}

// ReLU computes max(0, x) element-wise.
func (cpu *CPUBackend) ReLU(x *tensor.RawTensor) *tensor.RawTensor {
	return cpu.unary(x, func(v float32) float32 {
		if v > 0 {
			return v
		}
		return 0
	})
}

func sigmoid(v float32) float32 {
	if v >= 0 {
		return float32(1 / (1 + math.Exp(-float64(v))))
	}
	e := math.Exp(float64(v))
	return float32(e / (1 + e))
}

// Softmax computes softmax along the last dimension with max-shifting for
// numerical stability.
func (cpu *CPUBackend) Softmax(x *tensor.RawTensor) *tensor.RawTensor {
	shape := x.Shape()
	if len(shape) == 0 {
		panic("softmax: scalar input")
	}
	width := shape[len(shape)-1]
	rows := x.NumElements() / width

	result := tensor.MustNewRaw(shape, tensor.Float32, cpu.device)
	src := x.AsFloat32()
	out := result.AsFloat32()
	for r := 0; r < rows; r++ {
		softmaxRow(out[r*width:(r+1)*width], src[r*width:(r+1)*width])
	}
	return result
}

func softmaxRow(dst, src []float32) {
	maxVal := src[0]
	for _, v := range src[1:] {
		if v > maxVal {
			maxVal = v
		}
	}
	var sum float64
	for i, v := range src {
		e := math.Exp(float64(v - maxVal))
		dst[i] = float32(e)
		sum += e
	}
	for i := range dst {
		dst[i] = float32(float64(dst[i]) / sum)
	}
}

// logSumExp returns log(Σ exp(row)) using the max-shift trick.
func logSumExp(row []float32) float64 {
	maxVal := row[0]
	for _, v := range row[1:] {
		if v > maxVal {
			maxVal = v
		}
	}
	var sum float64
	for _, v := range row {
		sum += math.Exp(float64(v - maxVal))
	}
	return float64(maxVal) + math.Log(sum)
}

// SoftmaxCrossEntropy returns Σ_i weights[i] * (logsumexp(logits[i]) - logits[i][targets[i]]).
//
// Rows with zero weight contribute nothing, which is how padded positions
// are masked out of sequence losses.
func (cpu *CPUBackend) SoftmaxCrossEntropy(logits, targets, weights *tensor.RawTensor) *tensor.RawTensor {
	shape := logits.Shape()
	if len(shape) != 2 {
		panic(fmt.Sprintf("softmax_cross_entropy: logits must be 2D [N,V], got %v", shape))
	}
	n, v := shape[0], shape[1]
	if targets.NumElements() != n || weights.NumElements() != n {
		panic(fmt.Sprintf("softmax_cross_entropy: expected %d targets and weights, got %d/%d",
			n, targets.NumElements(), weights.NumElements()))
	}

	l := logits.AsFloat32()
	t := targets.AsInt32()
	w := weights.AsFloat32()
	var total float64
	for i := 0; i < n; i++ {
		if w[i] == 0 {
			continue
		}
		target := int(t[i])
		if target < 0 || target >= v {
			panic(fmt.Sprintf("softmax_cross_entropy: target %d out of range [0, %d)", target, v))
		}
		row := l[i*v : (i+1)*v]
		total += float64(w[i]) * (logSumExp(row) - float64(row[target]))
	}

	result := tensor.MustNewRaw(tensor.Shape{}, tensor.Float32, cpu.device)
	result.AsFloat32()[0] = float32(total)
	return result
}
