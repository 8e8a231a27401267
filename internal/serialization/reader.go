package serialization

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-json"

	"github.com/born-ml/playlistnet/internal/nn"
	"github.com/born-ml/playlistnet/internal/tensor"
)

// Decode reads a .born stream, verifying magic, version, header limits and
// the data checksum before any tensor is built.
func Decode(r io.Reader) (map[string]*tensor.RawTensor, Header, error) {
	fixed := make([]byte, FixedHeaderSize)
	if _, err := io.ReadFull(r, fixed); err != nil {
		return nil, Header{}, fmt.Errorf("failed to read fixed header: %w", err)
	}
	if string(fixed[0:4]) != MagicBytes {
		return nil, Header{}, ErrInvalidMagic
	}
	if version := binary.LittleEndian.Uint32(fixed[versionOffset:]); version != FormatVersion {
		return nil, Header{}, fmt.Errorf("%w: got %d, expected %d", ErrUnsupportedVersion, version, FormatVersion)
	}
	headerSize := binary.LittleEndian.Uint64(fixed[headerSizeOffset:])
	dataSize := binary.LittleEndian.Uint64(fixed[dataSizeOffset:])
	if headerSize > MaxHeaderSize {
		return nil, Header{}, ErrHeaderTooLarge
	}
	var stored [32]byte
	copy(stored[:], fixed[ChecksumOffset:ChecksumOffset+ChecksumSize])

	headerBytes := make([]byte, headerSize)
	if _, err := io.ReadFull(r, headerBytes); err != nil {
		return nil, Header{}, fmt.Errorf("failed to read header: %w", err)
	}
	var header Header
	if err := json.Unmarshal(headerBytes, &header); err != nil {
		return nil, Header{}, fmt.Errorf("failed to parse header JSON: %w", err)
	}
	//nolint:gosec // G115: headerSize was bounded by MaxHeaderSize above
	if _, err := io.CopyN(io.Discard, r, int64(alignmentPadding(int(headerSize)))); err != nil {
		return nil, Header{}, fmt.Errorf("failed to read padding: %w", err)
	}
	//nolint:gosec // G115: data section sizes fit in int64
	if err := ValidateHeader(&header, int64(dataSize)); err != nil {
		return nil, Header{}, fmt.Errorf("validation failed: %w", err)
	}

	data := make([]byte, dataSize)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, Header{}, fmt.Errorf("failed to read tensor data: %w", err)
	}
	if err := ValidateChecksum(ComputeChecksum(data), stored); err != nil {
		return nil, Header{}, err
	}

	stateDict := make(map[string]*tensor.RawTensor, len(header.Tensors))
	for _, meta := range header.Tensors {
		dtype, _ := stringToDtype(meta.DType)
		raw, err := tensor.NewRaw(tensor.Shape(meta.Shape), dtype, tensor.CPU)
		if err != nil {
			return nil, Header{}, fmt.Errorf("failed to create tensor %s: %w", meta.Name, err)
		}
		copy(raw.Data(), data[meta.Offset:meta.Offset+meta.Size])
		stateDict[meta.Name] = raw
	}
	return stateDict, header, nil
}

// ReadCheckpoint decodes the .born file at path.
func ReadCheckpoint(path string) (map[string]*tensor.RawTensor, Header, error) {
	//nolint:gosec // G304: checkpoint paths come from the run configuration
	f, err := os.Open(path)
	if err != nil {
		return nil, Header{}, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close() //nolint:errcheck // read-only

	return Decode(bufio.NewReader(f))
}

// LoadParameters reads the checkpoint at path into params by name.
//
// Every parameter must be present with its exact shape; extra tensors in the
// file are ignored.
func LoadParameters(path string, params []*nn.Parameter) (Header, error) {
	stateDict, header, err := ReadCheckpoint(path)
	if err != nil {
		return Header{}, err
	}
	if err := AssignParameters(stateDict, params); err != nil {
		return Header{}, err
	}
	return header, nil
}

// AssignParameters is LoadParameters over an already decoded state dict.
// Nothing is assigned unless every parameter matches.
func AssignParameters(stateDict map[string]*tensor.RawTensor, params []*nn.Parameter) error {
	for _, p := range params {
		t, ok := stateDict[p.Name()]
		if !ok {
			return fmt.Errorf("%w: %s", ErrMissingTensor, p.Name())
		}
		if !t.Shape().Equal(p.Tensor().Shape()) || t.DType() != p.Tensor().DType() {
			return fmt.Errorf("%w: %s is %v, want %v", ErrShapeMismatch, p.Name(), t.Shape(), p.Tensor().Shape())
		}
	}
	for _, p := range params {
		p.SetTensor(stateDict[p.Name()])
	}
	return nil
}

// Exists reports whether a checkpoint file is present at path.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
