// Package srcnn implements the residual convolutional playlist model.
//
// The embedded playlist is treated as a one-channel image of max_len rows
// by embedding_size columns. Three unpadded convolutions (9x9, 1x1, 5x5)
// shrink it; three transposed convolutions grow it back, each adding the
// matching encoder pre-activation. The last residual sum re-injects the
// input embedding and the seed song's embedding, and a dense layer maps
// every position to vocabulary logits. All positions are produced at once.
//
// Supervised training uses Adam. Reinforcement learning draws sampled
// trajectories with Sample, scores them outside the model and applies the
// policy-gradient loss with plain gradient descent in RLStep.
package srcnn

import (
	"fmt"
	"math/rand/v2"
	"sync"

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

const (
	bnEpsilon  = 1e-8
	convStddev = 1e-3
)

// Model is the SRCNN. One weight set serves every mode; the per-mode
// execution plans are created on first use.
type Model struct {
	cfg     config.Params
	backend *autodiff.AutodiffBackend
	sampler *generate.Sampler
	log     zerolog.Logger

	embedding *nn.Embedding

	conv1, conv2, conv3          *nn.Conv2D
	stage1, stage2, stage3       *stage
	invConv3, invConv2, invConv1 *nn.ConvTranspose2D
	invStage3, invStage2         *stage

	outputProjection *nn.Linear
	params           []*nn.Parameter

	mu    sync.Mutex
	plans map[model.Mode]*plan
}

// plan is what one mode needs beyond the shared weights.
type plan struct {
	mode      model.Mode
	dims      model.Dims
	dropout   bool
	optimizer optim.Optimizer // nil for valid and test
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

// New creates the weights. It fails with model.ErrConfiguration when the
// bundle is not a cnn bundle or its geometry is too small for the kernels.
func New(params config.Params, opts ...Option) (*Model, error) {
	if params.Arch() != model.ArchCNN {
		return nil, fmt.Errorf("%w: srcnn built with nn=%q", model.ErrConfiguration, params.NN)
	}
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("srcnn: %w", err)
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
		backend: o.backend,
		sampler: generate.NewSampler(generate.SamplingConfig{Seed: params.Seed, Epsilon: nn.RLEpsilon}),
		log:     o.logger.With().Str("component", "srcnn").Logger(),
		plans:   make(map[model.Mode]*plan),
	}
	m.build(rand.NewPCG(uint64(params.Seed), uint64(params.Seed))) //nolint:gosec // seed reinterpretation

	m.log.Debug().Int("parameters", nn.CountParameters(m.params)).Msg("model built")
	return m, nil
}

func (m *Model) build(src rand.Source) {
	p, b := m.cfg, m.backend
	init := nn.UniformInit(p.InitWeight, src)
	conv := func(shape tensor.Shape) *tensor.RawTensor { return nn.Normal(shape, convStddev, src) }
	stageFor := func(name string, channels int) *stage {
		return newStage(name, channels, p.BatchNorm, p.Dropout, src, init, b)
	}

	m.embedding = nn.NewEmbedding("encoder_embedding", p.EncoderVocabSize, p.EmbeddingSize, init, b)

	m.conv1 = nn.NewConv2D("conv1.weight", 1, 64, 9, 9, conv, b)
	m.stage1 = stageFor("conv1", 64)
	m.conv2 = nn.NewConv2D("conv2.weight", 64, 32, 1, 1, conv, b)
	m.stage2 = stageFor("conv2", 32)
	m.conv3 = nn.NewConv2D("conv3.weight", 32, 1, 5, 5, conv, b)
	m.stage3 = stageFor("conv3", 1)

	m.invConv3 = nn.NewConvTranspose2D("inv_conv3.weight", 1, 32, 5, 5, conv, b)
	m.invStage3 = stageFor("inv_conv3", 32)
	m.invConv2 = nn.NewConvTranspose2D("inv_conv2.weight", 32, 64, 1, 1, conv, b)
	m.invStage2 = stageFor("inv_conv2", 64)
	m.invConv1 = nn.NewConvTranspose2D("inv_conv1.weight", 64, 1, 9, 9, conv, b)

	m.outputProjection = nn.NewLinear("output_projection", p.EmbeddingSize, p.DecoderVocabSize, true, init, b)

	m.params = nn.CollectParameters(
		m.embedding,
		m.conv1, m.stage1, m.conv2, m.stage2, m.conv3, m.stage3,
		m.invConv3, m.invStage3, m.invConv2, m.invStage2, m.invConv1,
		m.outputProjection,
	)
}

// planFor returns the cached plan for mode, creating it on first use.
// The train plan owns an Adam optimizer and the rl plan a plain gradient
// descent optimizer at rl_learning_rate.
func (m *Model) planFor(mode model.Mode) *plan {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.plans[mode]; ok {
		return p
	}

	p := &plan{mode: mode, dims: m.cfg.Dims(), dropout: mode.Training()}
	if mode == model.ModeTest {
		p.dims.BatchSize = 0
	}
	switch mode {
	case model.ModeTrain:
		p.optimizer = optim.NewAdam(m.params, optim.AdamConfig{LR: float32(m.cfg.AdamLearningRate)})
	case model.ModeRL:
		p.optimizer = optim.NewSGD(m.params, optim.SGDConfig{LR: float32(m.cfg.RLLearningRate)})
	}
	m.plans[mode] = p
	m.log.Debug().Str("mode", mode.String()).Msg("plan built")
	return p
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

// OptimizerState returns the slots of the optimizer the configured mode
// trains with, or nil when it keeps none.
func (m *Model) OptimizerState() map[string]*tensor.RawTensor {
	if s, ok := m.planFor(m.cfg.RunMode()).optimizer.(optim.Stateful); ok {
		return s.StateDict()
	}
	return nil
}

// LoadOptimizerState restores slots saved by OptimizerState.
func (m *Model) LoadOptimizerState(state map[string]*tensor.RawTensor) error {
	if s, ok := m.planFor(m.cfg.RunMode()).optimizer.(optim.Stateful); ok {
		return s.LoadStateDict(state)
	}
	return nil
}

// stage is the activation block after a convolution:
//
//	dropout(relu(batch_norm(x) + bias))
//
// Batch normalization is skipped when disabled in the params.
type stage struct {
	bn      *nn.BatchNorm2D
	bias    *nn.Parameter // [C, 1, 1]
	dropout *nn.Dropout
	backend tensor.Backend
}

func newStage(name string, channels int, batchNorm bool, rate float64, src rand.Source, init nn.Initializer, b tensor.Backend) *stage {
	s := &stage{
		bias:    nn.NewParameter(name+".bias", nn.Zeros(tensor.Shape{channels, 1, 1})),
		dropout: nn.NewDropout(rate, src, b),
		backend: b,
	}
	if batchNorm {
		s.bn = nn.NewBatchNorm2D(name+".bn", channels, bnEpsilon, init, b)
	}
	return s
}

func (s *stage) Forward(x *tensor.RawTensor, train bool) *tensor.RawTensor {
	if s.bn != nil {
		x = s.bn.Forward(x)
	}
	return s.dropout.Forward(s.backend.ReLU(s.backend.Add(x, s.bias.Tensor())), train)
}

func (s *stage) Parameters() []*nn.Parameter {
	if s.bn == nil {
		return []*nn.Parameter{s.bias}
	}
	return append(s.bn.Parameters(), s.bias)
}
