package runner

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/born-ml/playlistnet/internal/dataset"
	"github.com/born-ml/playlistnet/internal/logging"
	"github.com/born-ml/playlistnet/internal/model"
)

// Perplexity is exp(Σ loss·B / Σ predict_count) over a window of steps.
// It is +Inf when the sum overflows and 0 for an empty window.
func Perplexity(weightedLoss float64, predictCount int) float64 {
	if predictCount == 0 {
		return 0
	}
	return math.Exp(weightedLoss / float64(predictCount))
}

// window accumulates the steps between two stats lines.
type window struct {
	weightedLoss float64
	predictCount int
	steps        int
	elapsed      time.Duration
}

func (w *window) add(res model.StepResult, batchSize int, took time.Duration) {
	w.weightedLoss += float64(res.Loss) * float64(batchSize)
	w.predictCount += res.PredictCount
	w.steps++
	w.elapsed += took
}

func (w *window) perplexity() float64 {
	return Perplexity(w.weightedLoss, w.predictCount)
}

func (w *window) stepTime() time.Duration {
	if w.steps == 0 {
		return 0
	}
	return w.elapsed / time.Duration(w.steps)
}

// source opens the record store of split. It wraps os.ErrNotExist when the
// split was never converted.
func (r *Runner) source(ctx context.Context, split string) (*dataset.Source, error) {
	path := dataset.StorePath(r.cfg.DataDir, r.cfg.NN, split)
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("runner: %s records: %w", split, err)
	}
	store, err := dataset.Open(path)
	if err != nil {
		return nil, err
	}
	defer store.Close() //nolint:errcheck // records are already in memory

	records, err := store.Records(ctx)
	if err != nil {
		return nil, err
	}

	cfg := dataset.SourceConfig{BatchSize: r.cfg.BatchSize, Width: r.cfg.MaxLen, Seed: r.cfg.Seed}
	if r.cfg.Arch() == model.ArchRNN {
		cfg.Width++
		cfg.Recurrent = true
	}
	return dataset.NewSource(records, cfg)
}

func (r *Runner) runTrain(ctx context.Context) error {
	log := logging.Ctx(ctx)
	train, err := r.source(ctx, "train")
	if err != nil {
		return err
	}
	valid, err := r.source(ctx, "valid")
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return err
		}
		log.Warn().Err(err).Msg("no validation records, skipping validation")
		valid = nil
	}

	step, _, err := r.restore(ctx, r.cfg.CheckpointPath())
	if err != nil {
		return err
	}
	if err := r.cfg.WriteJSON(); err != nil {
		return err
	}
	log.Info().Int64("from_step", step).Int64("num_steps", r.cfg.NumSteps).Msg("training started")

	var (
		stats window
		last  model.StepResult
	)
	for ; step < r.cfg.NumSteps; step++ {
		batch, err := train.Next(ctx)
		if err != nil {
			return r.interrupted(ctx, step, last, err)
		}
		start := time.Now()
		last, err = r.train(batch, step)
		if err != nil {
			return fmt.Errorf("runner: step %d: %w", step, err)
		}
		took := time.Since(start)
		r.metrics.ObserveStep(model.ModeTrain, last, took)
		stats.add(last, batch.BatchSize(), took)

		done := step + 1
		if done%r.cfg.StepsPerStats == 0 {
			ppl := stats.perplexity()
			r.metrics.ObservePerplexity(model.ModeTrain, ppl)
			log.Info().
				Int64("step", done).
				Int("epoch", train.Epoch()).
				Float64("perplexity", ppl).
				Float32("learning_rate", last.LearningRate).
				Float32("grad_norm", last.GradNorm).
				Dur("step_time", stats.stepTime()).
				Msg("train")
			stats = window{}
		}
		if r.cfg.CheckpointEvery > 0 && done%r.cfg.CheckpointEvery == 0 {
			if err := r.save(ctx, done, last.Loss); err != nil {
				return err
			}
			if valid != nil {
				if _, err := r.validate(ctx, valid); err != nil {
					return err
				}
			}
		}
	}
	return r.save(ctx, step, last.Loss)
}

// interrupted saves progress when the loop stopped because ctx ended.
func (r *Runner) interrupted(ctx context.Context, step int64, last model.StepResult, cause error) error {
	if ctx.Err() == nil {
		return cause
	}
	logging.Ctx(ctx).Warn().Int64("step", step).Msg("interrupted, saving checkpoint")
	if err := r.save(context.WithoutCancel(ctx), step, last.Loss); err != nil {
		return errors.Join(cause, err)
	}
	return cause
}

// validate evaluates valid_batches batches and returns their perplexity.
func (r *Runner) validate(ctx context.Context, src *dataset.Source) (float64, error) {
	var stats window
	for i := 0; i < r.cfg.ValidBatches; i++ {
		batch, err := src.Next(ctx)
		if err != nil {
			return 0, err
		}
		start := time.Now()
		res, err := r.net.Evaluate(batch)
		if err != nil {
			return 0, fmt.Errorf("runner: validation: %w", err)
		}
		took := time.Since(start)
		r.metrics.ObserveStep(model.ModeValid, res, took)
		stats.add(res, batch.BatchSize(), took)
	}

	ppl := stats.perplexity()
	r.metrics.ObservePerplexity(model.ModeValid, ppl)
	logging.Ctx(ctx).Info().
		Int("batches", stats.steps).
		Float64("perplexity", ppl).
		Dur("step_time", stats.stepTime()).
		Msg("valid")
	return ppl, nil
}

func (r *Runner) runValid(ctx context.Context) error {
	src, err := r.source(ctx, "valid")
	if err != nil {
		return err
	}
	if _, err := r.mustRestore(ctx, r.cfg.CheckpointPath()); err != nil {
		return err
	}
	_, err = r.validate(ctx, src)
	return err
}
