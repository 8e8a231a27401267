// Package seq2seq implements the attention-based recurrent playlist model.
//
// A stacked LSTM encodes the playlist prefix. The seed song's embedding,
// looked up in the same encoder table, is tiled over time, concatenated with
// the encoder outputs and projected back to num_units; that projection is
// the attention memory. A second stacked LSTM wrapped with Luong or Bahdanau
// attention decodes the continuation, starting from the encoder's final
// states.
//
// Training uses teacher forcing or scheduled sampling with plain gradient
// descent, a staircase learning-rate decay and global-norm clipping.
// Inference is greedy or beam search. Reinforcement learning is not
// supported.
package seq2seq

import (
	"fmt"
	"math/rand/v2"

	"github.com/rs/zerolog"

	"github.com/born-ml/playlistnet/internal/autodiff"
	"github.com/born-ml/playlistnet/internal/backend/cpu"
	"github.com/born-ml/playlistnet/internal/config"
	"github.com/born-ml/playlistnet/internal/generate"
	"github.com/born-ml/playlistnet/internal/logging"
	"github.com/born-ml/playlistnet/internal/model"
	"github.com/born-ml/playlistnet/internal/nn"
	"github.com/born-ml/playlistnet/internal/optim"
	"github.com/born-ml/playlistnet/internal/tensor"
)

// Model is the attention seq2seq model built for one mode.
type Model struct {
	cfg     config.Params
	mode    model.Mode
	dims    model.Dims
	backend *autodiff.AutodiffBackend
	sampler *generate.Sampler
	log     zerolog.Logger

	encoderEmbedding *nn.Embedding // shared by the playlist and seed encoders
	seedProjection   *seedProjection
	encoder          *nn.StackedLSTM
	concatProjection *nn.Linear
	decoderEmbedding *nn.Embedding
	mechanism        nn.AttentionMechanism
	decoder          *nn.AttentionWrapper
	outputProjection *nn.Linear

	params    []*nn.Parameter
	optimizer *optim.SGD // train mode only
}

// Option customizes New.
type Option func(*options)

type options struct {
	backend *autodiff.AutodiffBackend
	logger  *zerolog.Logger
}

// WithBackend runs the model on backend instead of a fresh CPU backend.
func WithBackend(backend *autodiff.AutodiffBackend) Option {
	return func(o *options) { o.backend = backend }
}

// WithLogger replaces the global logger.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.logger = &l }
}

// New builds the model for params.Mode. It returns model.ErrConfiguration,
// before allocating any weight, for RL mode or a non-rnn bundle.
func New(params config.Params, opts ...Option) (*Model, error) {
	if params.Arch() != model.ArchRNN {
		return nil, fmt.Errorf("%w: seq2seq built with nn=%q", model.ErrConfiguration, params.NN)
	}
	if err := model.CheckSupported(model.ArchRNN, params.RunMode()); err != nil {
		return nil, err
	}
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("seq2seq: %w", err)
	}
	if w := params.EffectiveBeamWidth(); w > params.DecoderVocabSize {
		return nil, fmt.Errorf("%w: beam width %d exceeds vocabulary size %d", model.ErrConfiguration, w, params.DecoderVocabSize)
	}

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.backend == nil {
		o.backend = autodiff.New(cpu.New())
	}
	if o.logger == nil {
		l := logging.Logger()
		o.logger = &l
	}

	m := &Model{
		cfg:     params,
		mode:    params.RunMode(),
		dims:    params.Dims(),
		backend: o.backend,
		sampler: generate.NewSampler(generate.SamplingConfig{Seed: params.Seed, Epsilon: nn.RLEpsilon}),
		log:     o.logger.With().Str("component", "seq2seq").Logger(),
	}
	m.build(rand.NewPCG(uint64(params.Seed), uint64(params.Seed))) //nolint:gosec // seed reinterpretation
	m.params = m.collect()

	if m.mode == model.ModeTrain {
		m.optimizer = optim.NewSGD(m.params, optim.SGDConfig{LR: float32(params.LearningRate)})
	}

	m.log.Debug().
		Str("mode", m.mode.String()).
		Str("attention", params.AttentionMode).
		Int("parameters", nn.CountParameters(m.params)).
		Msg("model built")
	return m, nil
}

func (m *Model) build(src rand.Source) {
	p, b := m.cfg, m.backend
	init := nn.UniformInit(p.InitWeight, src)
	units, emb := p.NumUnits, p.EmbeddingSize

	m.encoderEmbedding = nn.NewEmbedding("playlist_encoder.embedding", p.EncoderVocabSize, emb, init, b)
	m.encoder = nn.NewStackedLSTM("playlist_encoder.rnn", p.NumLayers, emb, units, p.Dropout, src, init, b)
	m.seedProjection = newSeedProjection("seed_song_encoder.seed_song_projection", p.EncoderVocabSize, emb, init, b)
	m.concatProjection = nn.NewLinear("concat_projection", units+emb, units, true, init, b)

	m.decoderEmbedding = nn.NewEmbedding("decoder.embedding", p.DecoderVocabSize, emb, init, b)
	cell := nn.NewStackedLSTM("decoder.rnn", p.NumLayers, emb+units, units, p.Dropout, src, init, b)
	if p.AttentionMode == "bahdanau" {
		m.mechanism = nn.NewBahdanauAttention("decoder.attention", units, units, units, init, b)
	} else {
		m.mechanism = nn.NewLuongAttention("decoder.attention", units, units, init, b)
	}
	m.decoder = nn.NewAttentionWrapper("decoder", cell, m.mechanism, units, units, init, b)
	m.outputProjection = nn.NewLinear("decoder.output_projection", m.decoder.OutputSize(), p.DecoderVocabSize, true, init, b)
}

func (m *Model) collect() []*nn.Parameter {
	return nn.CollectParameters(
		m.encoderEmbedding,
		m.encoder,
		m.seedProjection,
		m.concatProjection,
		m.decoderEmbedding,
		m.decoder,
		m.outputProjection,
	)
}

// Mode returns the mode the model was built for.
func (m *Model) Mode() model.Mode {
	return m.mode
}

// Parameters returns every trainable parameter.
func (m *Model) Parameters() []*nn.Parameter {
	return m.params
}

// StateDict maps parameter names to their tensors.
func (m *Model) StateDict() map[string]*tensor.RawTensor {
	return nn.StateDict(m.params)
}

// LoadStateDict copies weights by name.
func (m *Model) LoadStateDict(state map[string]*tensor.RawTensor) error {
	return nn.LoadStateDict(m.params, state)
}

func (m *Model) require(modes ...model.Mode) error {
	for _, mode := range modes {
		if m.mode == mode {
			return nil
		}
	}
	return fmt.Errorf("%w: operation not available in %s mode", model.ErrConfiguration, m.mode)
}

// seedProjection is a dense layer over the seed song's one-hot vector,
// computed as a row lookup plus bias.
type seedProjection struct {
	table *nn.Embedding
	bias  *nn.Parameter
	b     tensor.Backend
}

func newSeedProjection(name string, vocab, dim int, init nn.Initializer, b tensor.Backend) *seedProjection {
	return &seedProjection{
		table: nn.NewEmbedding(name+".weight", vocab, dim, init, b),
		bias:  nn.NewParameter(name+".bias", nn.Zeros(tensor.Shape{dim})),
		b:     b,
	}
}

func (s *seedProjection) Forward(seeds *tensor.RawTensor) *tensor.RawTensor {
	return s.b.Add(s.table.Forward(seeds), s.bias.Tensor())
}

func (s *seedProjection) Parameters() []*nn.Parameter {
	return []*nn.Parameter{s.table.Weight(), s.bias}
}
