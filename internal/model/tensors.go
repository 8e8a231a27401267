package model

import "github.com/born-ml/playlistnet/internal/tensor"

// IDMatrix packs equal-length rows into an int32 [len(rows), len(rows[0])] tensor.
func IDMatrix(rows [][]int32) *tensor.RawTensor {
	width := len(rows[0])
	t := tensor.MustNewRaw(tensor.Shape{len(rows), width}, tensor.Int32, tensor.CPU)
	data := t.AsInt32()
	for i, row := range rows {
		copy(data[i*width:(i+1)*width], row)
	}
	return t
}

// IDVector packs ids into an int32 [len(ids)] tensor.
func IDVector(ids []int32) *tensor.RawTensor {
	t := tensor.MustNewRaw(tensor.Shape{len(ids)}, tensor.Int32, tensor.CPU)
	copy(t.AsInt32(), ids)
	return t
}
