// Package tensor provides the raw tensor storage and the Backend contract
// shared by the compute backends and the autodiff decorator.
package tensor

// DataType represents runtime type information for tensors.
type DataType int

// Supported data types. Weights and activations are float32; token IDs,
// lengths and targets are int32.
const (
	Float32 DataType = iota
	Int32
)

// Size returns the byte size of the data type.
func (dt DataType) Size() int {
	switch dt {
	case Float32, Int32:
		return 4
	default:
		panic("unknown data type")
	}
}

// String returns a human-readable name for the data type.
func (dt DataType) String() string {
	switch dt {
	case Float32:
		return "float32"
	case Int32:
		return "int32"
	default:
		return "unknown"
	}
}
