// Package runner drives one playlistnet run: it prepares the parameter
// bundle, builds the model for the configured architecture and runs the
// train, rl, valid or test loop against the data on disk.
package runner

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/born-ml/playlistnet/internal/config"
	"github.com/born-ml/playlistnet/internal/logging"
	"github.com/born-ml/playlistnet/internal/metrics"
	"github.com/born-ml/playlistnet/internal/model"
	"github.com/born-ml/playlistnet/internal/nn"
	"github.com/born-ml/playlistnet/internal/seq2seq"
	"github.com/born-ml/playlistnet/internal/srcnn"
	"github.com/born-ml/playlistnet/internal/tensor"
	"github.com/born-ml/playlistnet/internal/vocab"
)

// ErrNoCheckpoint is returned when a mode needs trained weights and none
// are on disk.
var ErrNoCheckpoint = errors.New("runner: no checkpoint")

// Model is what every architecture offers the driver.
type Model interface {
	Evaluate(batch model.Batch) (model.StepResult, error)
	Predict(in model.Inputs) (model.Prediction, error)
	Parameters() []*nn.Parameter
	StateDict() map[string]*tensor.RawTensor
}

// Policy is a model that can be fine-tuned with policy gradients.
type Policy interface {
	Sample(in model.Inputs) ([][]int32, error)
	RLStep(in model.Inputs, sampled [][]int32, rewards []float32) (model.StepResult, error)
}

type trainFunc func(batch model.Batch, step int64) (model.StepResult, error)

// Runner runs one mode of one model.
type Runner struct {
	cfg     config.Params
	runID   string
	log     zerolog.Logger
	metrics *metrics.Metrics

	net       Model
	train     trainFunc
	policy    Policy // nil for the recurrent model
	optimizer string
	lr        float64
}

// Option customizes New.
type Option func(*Runner)

// WithLogger replaces the global logger.
func WithLogger(l zerolog.Logger) Option {
	return func(r *Runner) { r.log = l }
}

// WithMetrics reports to m instead of a private collector set.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Runner) { r.metrics = m }
}

// WithRunID sets the run id stamped into logs and checkpoints.
func WithRunID(id string) Option {
	return func(r *Runner) { r.runID = id }
}

// Prepare derives the run's fields from the vocabulary file and, in test
// mode, from the number of inference lines, then validates the result.
func Prepare(p config.Params) (config.Params, error) {
	vocabPath := p.VocabPath
	if vocabPath == "" {
		vocabPath = filepath.Join(p.DataDir, "vocab_default.txt")
	}
	size, err := vocab.CountLines(vocabPath)
	if err != nil {
		return config.Params{}, fmt.Errorf("runner: vocabulary: %w", err)
	}
	testLines := 0
	if p.Mode == model.ModeTest.String() {
		if testLines, err = vocab.CountLines(inputPath(p)); err != nil {
			return config.Params{}, fmt.Errorf("runner: test inputs: %w", err)
		}
	}

	derived, err := p.Derive(size, testLines)
	if err != nil {
		return config.Params{}, err
	}
	if err := derived.Validate(); err != nil {
		return config.Params{}, err
	}
	return derived, nil
}

// New builds the model for cfg, which must come from Prepare.
func New(cfg config.Params, opts ...Option) (*Runner, error) {
	if !cfg.Derived() {
		return nil, fmt.Errorf("%w: params were not prepared", model.ErrConfiguration)
	}
	r := &Runner{cfg: cfg, log: logging.Logger()}
	for _, opt := range opts {
		opt(r)
	}
	if r.runID == "" {
		r.runID = logging.NewRunID()
	}
	if r.metrics == nil {
		r.metrics = metrics.New(cfg.Arch())
	}
	r.log = r.log.With().Str("nn", cfg.NN).Str("mode", cfg.Mode).Logger()

	switch cfg.Arch() {
	case model.ArchRNN:
		m, err := seq2seq.New(cfg, seq2seq.WithLogger(r.log))
		if err != nil {
			return nil, err
		}
		r.net, r.train = m, m.TrainStep
		r.optimizer, r.lr = "SGD", cfg.LearningRate
	case model.ArchCNN:
		m, err := srcnn.New(cfg, srcnn.WithLogger(r.log))
		if err != nil {
			return nil, err
		}
		r.net, r.policy = m, m
		r.train = func(batch model.Batch, _ int64) (model.StepResult, error) { return m.TrainStep(batch) }
		r.optimizer, r.lr = "Adam", cfg.AdamLearningRate
		if cfg.RunMode() == model.ModeRL {
			r.optimizer, r.lr = "SGD", cfg.RLLearningRate
		}
	default:
		return nil, fmt.Errorf("%w: unknown nn %q", model.ErrConfiguration, cfg.NN)
	}
	return r, nil
}

// RunID returns the run identifier.
func (r *Runner) RunID() string {
	return r.runID
}

// Run executes the configured mode until it completes, num_steps is
// reached or ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	ctx = logging.ContextWithRunID(ctx, r.runID)
	ctx = logging.ContextWithLogger(ctx, r.log)

	switch r.cfg.RunMode() {
	case model.ModeTrain:
		return r.runTrain(ctx)
	case model.ModeValid:
		return r.runValid(ctx)
	case model.ModeRL:
		return r.runRL(ctx)
	case model.ModeTest:
		return r.runTest(ctx)
	default:
		return fmt.Errorf("%w: unknown mode %q", model.ErrConfiguration, r.cfg.Mode)
	}
}

func inputPath(p config.Params) string {
	return filepath.Join(p.ResultsDir, "in.txt")
}
