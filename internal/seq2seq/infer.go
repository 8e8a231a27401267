package seq2seq

import (
	"math"

	"github.com/born-ml/playlistnet/internal/generate"
	"github.com/born-ml/playlistnet/internal/model"
	"github.com/born-ml/playlistnet/internal/nn"
	"github.com/born-ml/playlistnet/internal/tensor"
)

// Predict decodes a batch with beam search when beam_search is set and
// greedily otherwise. Decoding starts from model.StartID and stops once
// every row (or beam) has produced model.EndID, or after max_len steps.
func (m *Model) Predict(in model.Inputs) (model.Prediction, error) {
	if err := m.require(model.ModeTest); err != nil {
		return model.Prediction{}, err
	}
	if err := model.ValidateInputs(in, m.dims); err != nil {
		return model.Prediction{}, err
	}

	enc := m.encode(in, false)
	if m.cfg.BeamSearch {
		return m.beamSearch(enc, m.cfg.EffectiveBeamWidth()), nil
	}
	return m.greedy(enc), nil
}

// greedy feeds back the argmax token. Rows that already ended keep
// emitting model.EndID.
func (m *Model) greedy(enc encoding) model.Prediction {
	b := m.backend
	n, vocab := len(enc.lengths), m.cfg.DecoderVocabSize

	memory := m.mechanism.Bind(enc.memory, enc.lengths)
	state := m.decoder.InitialState(enc.states)

	ids := make([][][]int32, n)
	tokens := filled(n, model.StartID)
	finished := make([]bool, n)
	var logits []*tensor.RawTensor

	for t := 0; t < m.dims.MaxLen; t++ {
		var out *tensor.RawTensor
		out, state = m.decoder.Step(m.decoderEmbedding.Forward(model.IDVector(tokens)), state, memory, false)
		stepLogits := m.outputProjection.Forward(out)
		logits = append(logits, b.Reshape(stepLogits, tensor.Shape{n, 1, vocab}))

		next := generate.ArgmaxRows(stepLogits)
		for i := range next {
			if finished[i] {
				next[i] = model.EndID
			}
			finished[i] = next[i] == model.EndID
			ids[i] = append(ids[i], []int32{next[i]})
		}
		tokens = next
		if all(finished) {
			break
		}
	}
	return model.Prediction{IDs: ids, Logits: b.Cat(logits, 1)}
}

// beamSearch keeps the width best partial sequences per row, ranked by
// summed log-probability. Memory, lengths and encoder states are tiled
// batch-major so rows [i*width, (i+1)*width) hold the beams of row i.
func (m *Model) beamSearch(enc encoding, width int) model.Prediction {
	b := m.backend
	n, vocab := len(enc.lengths), m.cfg.DecoderVocabSize
	rows := n * width

	tile := make([]int32, rows)
	lengths := make([]int32, rows)
	for r := range tile {
		tile[r] = int32(r / width) //nolint:gosec // bounded by the batch size
		lengths[r] = enc.lengths[r/width]
	}
	cells := make([]nn.LSTMState, len(enc.states))
	for l, s := range enc.states {
		cells[l] = nn.LSTMState{C: selectRows(b, s.C, tile), H: selectRows(b, s.H, tile)}
	}
	memory := m.mechanism.Bind(selectRows(b, enc.memory, tile), lengths)
	state := m.decoder.InitialState(cells)

	scores := make([]float64, rows)
	for r := range scores {
		if r%width != 0 {
			scores[r] = math.Inf(-1)
		}
	}
	tokens := filled(rows, model.StartID)
	finished := make([]bool, rows)
	var history, parents [][]int32
	var scoreHistory [][]float64
	candidates := make([]float64, width*vocab)

	for t := 0; t < m.dims.MaxLen; t++ {
		out, next := m.decoder.Step(m.decoderEmbedding.Forward(model.IDVector(tokens)), state, memory, false)
		logits := m.outputProjection.Forward(out).AsFloat32()

		stepTokens := make([]int32, rows)
		stepParents := make([]int32, rows)
		stepScores := make([]float64, rows)
		stepFinished := make([]bool, rows)
		for i := 0; i < n; i++ {
			for j := 0; j < width; j++ {
				r := i*width + j
				c := candidates[j*vocab : (j+1)*vocab]
				if finished[r] {
					for v := range c {
						c[v] = math.Inf(-1)
					}
					c[model.EndID] = scores[r]
					continue
				}
				for v, lp := range generate.LogSoftmax(logits[r*vocab : (r+1)*vocab]) {
					c[v] = scores[r] + lp
				}
			}
			for j, idx := range generate.TopK(candidates, width) {
				r := i*width + j
				parent := i*width + idx/vocab
				stepParents[r] = int32(parent) //nolint:gosec // bounded by rows
				stepTokens[r] = int32(idx % vocab) //nolint:gosec // bounded by the vocabulary
				stepScores[r] = candidates[idx]
				stepFinished[r] = finished[parent] || stepTokens[r] == model.EndID
			}
		}

		state = reorderState(b, next, stepParents)
		history = append(history, stepTokens)
		parents = append(parents, stepParents)
		scoreHistory = append(scoreHistory, stepScores)
		tokens, scores, finished = stepTokens, stepScores, stepFinished
		if all(finished) {
			break
		}
	}

	ids, beamScores := backtrack(history, parents, scoreHistory, n, width)
	scored := tensor.MustNewRaw(tensor.Shape{n, len(history), width}, tensor.Float32, tensor.CPU)
	copy(scored.AsFloat32(), beamScores)
	return model.Prediction{IDs: ids, Scores: scored}
}

// backtrack follows parent pointers from the last step and lays the beams
// out as [batch][step][beam], together with the summed log-probability of
// each beam's prefix in the same layout, flattened. Everything after a
// beam's first end token is model.EndID.
func backtrack(history, parents [][]int32, scores [][]float64, n, width int) ([][][]int32, []float32) {
	steps := len(history)
	flat := make([]float32, n*steps*width)
	ids := make([][][]int32, n)
	for i := range ids {
		ids[i] = make([][]int32, steps)
		for t := range ids[i] {
			ids[i][t] = make([]int32, width)
		}
	}

	seq := make([]int32, steps)
	for r := 0; r < n*width; r++ {
		i, beam := r/width, r%width
		cur := r
		for t := steps - 1; t >= 0; t-- {
			seq[t] = history[t][cur]
			flat[(i*steps+t)*width+beam] = float32(scores[t][cur])
			cur = int(parents[t][cur])
		}
		ended := false
		for t, tok := range seq {
			if ended {
				tok = model.EndID
			}
			ended = ended || tok == model.EndID
			ids[i][t][beam] = tok
		}
	}
	return ids, flat
}

func reorderState(b tensor.Backend, s nn.AttentionState, idx []int32) nn.AttentionState {
	cells := make([]nn.LSTMState, len(s.Cells))
	for l, c := range s.Cells {
		cells[l] = nn.LSTMState{C: selectRows(b, c.C, idx), H: selectRows(b, c.H, idx)}
	}
	return nn.AttentionState{Cells: cells, Attention: selectRows(b, s.Attention, idx)}
}

// selectRows gathers rows of t along its first axis.
func selectRows(b tensor.Backend, t *tensor.RawTensor, idx []int32) *tensor.RawTensor {
	shape := t.Shape()
	width := shape.NumElements() / shape[0]
	picked := b.Gather(b.Reshape(t, tensor.Shape{shape[0], width}), model.IDVector(idx))
	return b.Reshape(picked, append(tensor.Shape{len(idx)}, shape[1:]...))
}

func filled(n int, v int32) []int32 {
	s := make([]int32, n)
	for i := range s {
		s[i] = v
	}
	return s
}

func all(flags []bool) bool {
	for _, f := range flags {
		if !f {
			return false
		}
	}
	return true
}
