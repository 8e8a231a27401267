package runner

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/born-ml/playlistnet/internal/logging"
	"github.com/born-ml/playlistnet/internal/model"
	"github.com/born-ml/playlistnet/internal/reward"
)

// runRL fine-tunes with sampled trajectories and the length reward. It
// resumes the rl run directory when it holds a checkpoint and otherwise
// starts from the supervised run's weights.
func (r *Runner) runRL(ctx context.Context) error {
	if r.policy == nil {
		return fmt.Errorf("%w: %s has no policy-gradient mode", model.ErrConfiguration, r.cfg.NN)
	}
	log := logging.Ctx(ctx)

	src, err := r.source(ctx, "train")
	if err != nil {
		return err
	}
	step, ok, err := r.restore(ctx, r.cfg.CheckpointPath())
	if err != nil {
		return err
	}
	if !ok {
		pretrained := filepath.Join(r.cfg.PretrainDir(), filepath.Base(r.cfg.CheckpointPath()))
		if _, err := r.mustRestore(ctx, pretrained); err != nil {
			return err
		}
		step = 0
	}
	if err := r.cfg.WriteJSON(); err != nil {
		return err
	}
	log.Info().Int64("from_step", step).Int64("num_steps", r.cfg.NumSteps).Msg("rl started")

	var (
		last      model.StepResult
		rewardSum float64
		lengthSum float64
		stats     window
	)
	for ; step < r.cfg.NumSteps; step++ {
		batch, err := src.Next(ctx)
		if err != nil {
			return r.interrupted(ctx, step, last, err)
		}
		start := time.Now()
		sampled, err := r.policy.Sample(batch.Inputs)
		if err != nil {
			return fmt.Errorf("runner: sample at step %d: %w", step, err)
		}
		scored := reward.Compute(sampled)
		last, err = r.policy.RLStep(batch.Inputs, sampled, scored.Rewards)
		if err != nil {
			return fmt.Errorf("runner: rl step %d: %w", step, err)
		}
		took := time.Since(start)
		r.metrics.ObserveStep(model.ModeRL, last, took)
		r.metrics.ObserveReward(scored.Mean(), scored.AvgLength)
		stats.add(last, batch.BatchSize(), took)
		rewardSum += scored.Mean()
		lengthSum += scored.AvgLength

		done := step + 1
		if done%r.cfg.StepsPerStats == 0 {
			n := float64(stats.steps)
			log.Info().
				Int64("step", done).
				Float32("loss", last.Loss).
				Float64("reward", rewardSum/n).
				Float64("avg_length", lengthSum/n).
				Dur("step_time", stats.stepTime()).
				Msg("rl")
			stats, rewardSum, lengthSum = window{}, 0, 0
		}
		if r.cfg.CheckpointEvery > 0 && done%r.cfg.CheckpointEvery == 0 {
			if err := r.save(ctx, done, last.Loss); err != nil {
				return err
			}
		}
	}
	return r.save(ctx, step, last.Loss)
}
