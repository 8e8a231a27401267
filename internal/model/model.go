// Package model holds the contract shared by the two playlist models: the
// operating modes, the batch records fed to them, their outputs and the
// errors they return before any forward pass runs.
package model

import (
	"fmt"
	"strings"

	"github.com/born-ml/playlistnet/internal/tensor"
)

// Reserved token ids. Vocabulary index 0 is padding, 1 starts a decoded
// sequence, 2 ends it and 3 stands for any song missing from the vocabulary.
const (
	PadID     int32 = 0
	StartID   int32 = 1
	EndID     int32 = 2
	UnknownID int32 = 3
)

// IsSentinel reports whether id is a reserved token (or the -1 filler some
// decoders emit) rather than a song.
func IsSentinel(id int32) bool {
	return id >= -1 && id <= UnknownID
}

// Mode selects which computation a model runs.
type Mode int

// Operating modes.
const (
	ModeTrain Mode = iota
	ModeValid
	ModeTest
	ModeRL
)

var modeNames = [...]string{"train", "valid", "test", "rl"}

// String returns the configuration name of the mode.
func (m Mode) String() string {
	if m < 0 || int(m) >= len(modeNames) {
		return fmt.Sprintf("Mode(%d)", int(m))
	}
	return modeNames[m]
}

// Training reports whether the mode updates weights (and so uses dropout).
func (m Mode) Training() bool {
	return m == ModeTrain || m == ModeRL
}

// ParseMode parses "train", "valid", "test" or "rl".
func ParseMode(s string) (Mode, error) {
	for i, name := range modeNames {
		if strings.EqualFold(s, name) {
			return Mode(i), nil
		}
	}
	return 0, fmt.Errorf("%w: unknown mode %q", ErrConfiguration, s)
}

// Arch names a model architecture.
type Arch string

// Supported architectures.
const (
	ArchRNN Arch = "rnn" // attention seq2seq
	ArchCNN Arch = "cnn" // SRCNN
)

// ParseArch parses "rnn" or "cnn".
func ParseArch(s string) (Arch, error) {
	switch a := Arch(strings.ToLower(s)); a {
	case ArchRNN, ArchCNN:
		return a, nil
	default:
		return "", fmt.Errorf("%w: unknown architecture %q", ErrConfiguration, s)
	}
}

// CheckSupported rejects (arch, mode) pairs no model implements.
func CheckSupported(arch Arch, mode Mode) error {
	if arch == ArchRNN && mode == ModeRL {
		return fmt.Errorf("%w: reinforcement learning is not supported for the %s model", ErrConfiguration, arch)
	}
	return nil
}

// Inputs is what every inference call receives.
type Inputs struct {
	EncoderIDs [][]int32 // [B][max_len], zero padded
	EncoderLen []int32   // [B]
	SeedIDs    []int32   // [B]
}

// BatchSize returns the number of rows.
func (in Inputs) BatchSize() int {
	return len(in.EncoderIDs)
}

// Batch is one supervised training or validation batch.
type Batch struct {
	Inputs
	DecoderIDs     [][]int32 // [B][max_len]
	DecoderLen     []int32   // [B]
	DecoderTargets [][]int32 // [B][max_len]
}

// PredictCount returns the number of target tokens the loss is taken over.
func (b Batch) PredictCount() int {
	n := 0
	for _, l := range b.DecoderLen {
		n += int(l)
	}
	return n
}

// Prediction is the result of an inference call.
type Prediction struct {
	// IDs is [B][steps][beam]. steps is at most max_len; beam is 1 for
	// greedy and argmax decoding.
	IDs [][][]int32

	// Logits is the raw output layer for reranking: [B, steps, V] for
	// greedy and argmax decoding, nil for beam search.
	Logits *tensor.RawTensor

	// Scores holds the beam scores of beam search: [B, steps, beam], the
	// summed log-probability of each beam's prefix after every step. Nil
	// for the other decoders.
	Scores *tensor.RawTensor
}

// TopBeam returns the first beam of every row as [B][steps].
func (p Prediction) TopBeam() [][]int32 {
	out := make([][]int32, len(p.IDs))
	for b, steps := range p.IDs {
		out[b] = make([]int32, len(steps))
		for t, beams := range steps {
			out[b][t] = beams[0]
		}
	}
	return out
}

// StepResult reports one training, RL or validation step.
type StepResult struct {
	Loss         float32
	PredictCount int
	LearningRate float32
	GradNorm     float32
}
