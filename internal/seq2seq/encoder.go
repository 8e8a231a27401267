package seq2seq

import (
	"github.com/born-ml/playlistnet/internal/model"
	"github.com/born-ml/playlistnet/internal/nn"
	"github.com/born-ml/playlistnet/internal/tensor"
)

// encoding is the encoder side of one batch.
type encoding struct {
	memory  *tensor.RawTensor // [B, T, units], seed-conditioned
	lengths []int32
	states  []nn.LSTMState // final per-layer states

	// seedProjected is the one-hot seed branch [B, emb]; nothing downstream
	// reads it.
	seedProjected *tensor.RawTensor
}

func (m *Model) encode(in model.Inputs, train bool) encoding {
	b := m.backend
	batch, steps, emb := in.BatchSize(), len(in.EncoderIDs[0]), m.cfg.EmbeddingSize

	outputs, states := m.encoder.Run(m.encoderEmbedding.Forward(model.IDMatrix(in.EncoderIDs)), in.EncoderLen, train)

	seeds := model.IDVector(in.SeedIDs)
	seed := b.Reshape(m.encoderEmbedding.Forward(seeds), tensor.Shape{batch, 1, emb})
	tiled := b.Add(nn.Zeros(tensor.Shape{batch, steps, emb}), seed)
	concat := b.Cat([]*tensor.RawTensor{outputs, tiled}, 2)

	return encoding{
		memory:        m.concatProjection.Forward(concat),
		lengths:       in.EncoderLen,
		states:        states,
		seedProjected: m.seedProjection.Forward(seeds),
	}
}
