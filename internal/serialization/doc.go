// Package serialization stores model weights in the .born checkpoint format.
//
// Layout:
//
//	0x00  [4 bytes: Magic "BORN"]
//	0x04  [4 bytes: Version (uint32 LE)]
//	0x08  [4 bytes: Flags (uint32 LE)]
//	0x0C  [4 bytes: reserved]
//	0x10  [8 bytes: Header Size (uint64 LE)]
//	0x18  [8 bytes: Data Size (uint64 LE)]
//	0x20  [32 bytes: SHA-256 of the data section]
//	0x40  [Header: JSON metadata]
//	      [Tensor data: raw little-endian bytes, 64-byte aligned start]
//
// Tensors are written in name order. The header carries CheckpointMeta: step, loss, optimizer and the
// run id of the training run that produced the file.
//
// Example usage:
//
//	err := serialization.SaveCheckpoint(path, nn.StateDict(params), header)
//
//	header, err := serialization.LoadParameters(path, params)
package serialization
