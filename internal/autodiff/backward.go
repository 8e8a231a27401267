package autodiff

import (
	"fmt"

	"github.com/born-ml/playlistnet/internal/tensor"
)

// Backward computes gradients of a scalar loss using the backend's tape.
//
// The output gradient is seeded with ones. Backward runs on the wrapped
// backend, so gradient computation itself is never recorded.
//
// Example:
//
//	backend := autodiff.New(cpu.New())
//	backend.Tape().StartRecording()
//	loss := model.Loss(batch)
//	grads := autodiff.Backward(loss, backend)
//	grad := grads[weight] // gradient for a parameter tensor
func Backward(loss *tensor.RawTensor, backend *AutodiffBackend) map[*tensor.RawTensor]*tensor.RawTensor {
	tape := backend.Tape()
	if tape.NumOps() == 0 {
		panic("backward: no operations recorded (did you forget to call Tape().StartRecording()?)")
	}
	if loss.DType() != tensor.Float32 {
		panic(fmt.Sprintf("backward: unsupported dtype %s (only float32 supported)", loss.DType()))
	}

	return tape.Backward(loss, tensor.Full(loss.Shape(), 1), backend.Inner())
}

// Record clears the tape, runs forward with recording on, and returns the
// loss it produced together with the loss gradients. The tape is stopped
// and cleared again before Record returns.
//
//	loss, grads := autodiff.Record(backend, func() *tensor.RawTensor {
//		return model.Loss(batch)
//	})
func Record(backend *AutodiffBackend, forward func() *tensor.RawTensor) (*tensor.RawTensor, map[*tensor.RawTensor]*tensor.RawTensor) {
	tape := backend.Tape()
	tape.Clear()
	tape.StartRecording()
	defer func() {
		tape.StopRecording()
		tape.Clear()
	}()

	loss := forward()
	return loss, Backward(loss, backend)
}
